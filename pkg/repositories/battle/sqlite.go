package battle

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/fadedpez/caseclash/pkg/entities"
)

const timestampFormat = "2006-01-02T15:04:05.000000000Z07:00"

// SQLiteRepository implements Repository using SQLite, storing each session
// as a JSON document
type SQLiteRepository struct {
	db  *sql.DB
	now func() time.Time
}

// NewSQLiteRepository creates a repository over an already migrated database
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db, now: time.Now}
}

// Save implements Repository
func (r *SQLiteRepository) Save(ctx context.Context, session *entities.BattleSession) error {
	state, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("error encoding battle: %w", err)
	}

	query := `
		INSERT INTO battles (id, mode, status, is_private, version, state, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			mode = excluded.mode,
			status = excluded.status,
			is_private = excluded.is_private,
			version = excluded.version,
			state = excluded.state,
			updated_at = excluded.updated_at
		WHERE excluded.version >= battles.version
	`
	res, err := r.db.ExecContext(ctx, query,
		session.ID, string(session.Mode), string(session.Status), session.IsPrivate, session.Version, string(state),
		session.CreatedAt.UTC().Format(timestampFormat), r.now().UTC().Format(timestampFormat),
	)
	if err != nil {
		return fmt.Errorf("error saving battle: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("error saving battle: %w", err)
	}
	if affected == 0 {
		return ErrStaleVersion
	}
	return nil
}

// Get implements Repository
func (r *SQLiteRepository) Get(ctx context.Context, id string) (*entities.BattleSession, error) {
	var state string
	err := r.db.QueryRowContext(ctx, `SELECT state FROM battles WHERE id = ?`, id).Scan(&state)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrBattleNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("error getting battle: %w", err)
	}
	return decodeState([]byte(state))
}

// ListByStatus implements Repository, oldest first
func (r *SQLiteRepository) ListByStatus(ctx context.Context, statuses ...entities.BattleStatus) ([]*entities.BattleSession, error) {
	if len(statuses) == 0 {
		return nil, nil
	}

	args := make([]any, len(statuses))
	for i, s := range statuses {
		args[i] = string(s)
	}
	query := fmt.Sprintf(`SELECT state FROM battles WHERE status IN (%s) ORDER BY created_at, id`, placeholders(len(statuses)))

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("error listing battles: %w", err)
	}
	defer rows.Close()

	var out []*entities.BattleSession
	for rows.Next() {
		var state string
		if err := rows.Scan(&state); err != nil {
			return nil, err
		}
		session, err := decodeState([]byte(state))
		if err != nil {
			return nil, err
		}
		out = append(out, session)
	}
	return out, rows.Err()
}

// PruneFinishedBefore implements Repository
func (r *SQLiteRepository) PruneFinishedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	args := []any{cutoff.UTC().Format(timestampFormat)}
	for _, s := range terminalStatuses {
		args = append(args, string(s))
	}
	query := fmt.Sprintf(`DELETE FROM battles WHERE updated_at < ? AND status IN (%s)`, placeholders(len(terminalStatuses)))

	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("error pruning battles: %w", err)
	}
	return res.RowsAffected()
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

func decodeState(data []byte) (*entities.BattleSession, error) {
	var session entities.BattleSession
	if err := json.Unmarshal(data, &session); err != nil {
		return nil, fmt.Errorf("error decoding battle: %w", err)
	}
	return &session, nil
}
