package battle

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/fadedpez/caseclash/pkg/entities"
)

type storedBattle struct {
	session   *entities.BattleSession
	updatedAt time.Time
}

// MemoryRepository implements Repository in memory
type MemoryRepository struct {
	mu      sync.RWMutex
	battles map[string]storedBattle
	now     func() time.Time
}

// NewMemoryRepository creates a new in-memory battle repository
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		battles: make(map[string]storedBattle),
		now:     time.Now,
	}
}

// Save implements Repository
func (r *MemoryRepository) Save(ctx context.Context, session *entities.BattleSession) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.battles[session.ID]; ok && existing.session.Version > session.Version {
		return ErrStaleVersion
	}
	r.battles[session.ID] = storedBattle{session: session.Clone(), updatedAt: r.now()}
	return nil
}

// Get implements Repository
func (r *MemoryRepository) Get(ctx context.Context, id string) (*entities.BattleSession, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	stored, ok := r.battles[id]
	if !ok {
		return nil, ErrBattleNotFound
	}
	return stored.session.Clone(), nil
}

// ListByStatus implements Repository, oldest first
func (r *MemoryRepository) ListByStatus(ctx context.Context, statuses ...entities.BattleStatus) ([]*entities.BattleSession, error) {
	want := make(map[entities.BattleStatus]bool, len(statuses))
	for _, s := range statuses {
		want[s] = true
	}

	r.mu.RLock()
	var out []*entities.BattleSession
	for _, stored := range r.battles {
		if want[stored.session.Status] {
			out = append(out, stored.session.Clone())
		}
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

// PruneFinishedBefore implements Repository
func (r *MemoryRepository) PruneFinishedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var pruned int64
	for id, stored := range r.battles {
		if stored.session.Status.IsTerminal() && stored.updatedAt.Before(cutoff) {
			delete(r.battles, id)
			pruned++
		}
	}
	return pruned, nil
}
