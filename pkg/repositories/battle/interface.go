package battle

import (
	"context"
	"errors"
	"time"

	"github.com/fadedpez/caseclash/pkg/entities"
)

var (
	ErrBattleNotFound = errors.New("battle not found")
	ErrStaleVersion   = errors.New("stored battle has a newer version")
)

// Repository persists battle session snapshots. Sessions are owned by a
// single writer, so Save is an upsert guarded by Version.
type Repository interface {
	Save(ctx context.Context, session *entities.BattleSession) error
	Get(ctx context.Context, id string) (*entities.BattleSession, error)
	ListByStatus(ctx context.Context, statuses ...entities.BattleStatus) ([]*entities.BattleSession, error)
	PruneFinishedBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// terminalStatuses are the statuses PruneFinishedBefore removes
var terminalStatuses = []entities.BattleStatus{
	entities.BattleFinished,
	entities.BattleCancelled,
	entities.BattleExpired,
}
