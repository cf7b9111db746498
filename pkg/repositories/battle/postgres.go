package battle

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/fadedpez/caseclash/pkg/entities"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresRepository implements Repository on a pgx pool, storing state as JSONB
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository creates a repository over an already migrated database
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Save implements Repository
func (r *PostgresRepository) Save(ctx context.Context, session *entities.BattleSession) error {
	state, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("error encoding battle: %w", err)
	}

	tag, err := r.db.Exec(ctx, `
		INSERT INTO battles (id, mode, status, is_private, version, state, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NOW())
		ON CONFLICT (id) DO UPDATE SET
			mode = EXCLUDED.mode,
			status = EXCLUDED.status,
			is_private = EXCLUDED.is_private,
			version = EXCLUDED.version,
			state = EXCLUDED.state,
			updated_at = EXCLUDED.updated_at
		WHERE EXCLUDED.version >= battles.version
	`, session.ID, string(session.Mode), string(session.Status), session.IsPrivate, session.Version, state, session.CreatedAt)
	if err != nil {
		return fmt.Errorf("error saving battle: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrStaleVersion
	}
	return nil
}

// Get implements Repository
func (r *PostgresRepository) Get(ctx context.Context, id string) (*entities.BattleSession, error) {
	var state []byte
	err := r.db.QueryRow(ctx, `SELECT state FROM battles WHERE id = $1`, id).Scan(&state)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrBattleNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("error getting battle: %w", err)
	}
	return decodeState(state)
}

// ListByStatus implements Repository, oldest first
func (r *PostgresRepository) ListByStatus(ctx context.Context, statuses ...entities.BattleStatus) ([]*entities.BattleSession, error) {
	if len(statuses) == 0 {
		return nil, nil
	}
	names := make([]string, len(statuses))
	for i, s := range statuses {
		names[i] = string(s)
	}

	rows, err := r.db.Query(ctx, `SELECT state FROM battles WHERE status = ANY($1) ORDER BY created_at, id`, names)
	if err != nil {
		return nil, fmt.Errorf("error listing battles: %w", err)
	}
	defer rows.Close()

	var out []*entities.BattleSession
	for rows.Next() {
		var state []byte
		if err := rows.Scan(&state); err != nil {
			return nil, err
		}
		session, err := decodeState(state)
		if err != nil {
			return nil, err
		}
		out = append(out, session)
	}
	return out, rows.Err()
}

// PruneFinishedBefore implements Repository
func (r *PostgresRepository) PruneFinishedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	names := make([]string, len(terminalStatuses))
	for i, s := range terminalStatuses {
		names[i] = string(s)
	}
	tag, err := r.db.Exec(ctx, `DELETE FROM battles WHERE updated_at < $1 AND status = ANY($2)`, cutoff, names)
	if err != nil {
		return 0, fmt.Errorf("error pruning battles: %w", err)
	}
	return tag.RowsAffected(), nil
}
