package scheduler

import (
	"context"
	"time"

	"github.com/fadedpez/caseclash/internal/logging"
)

// Task names registered by Maintenance
const (
	TaskBattleSweep  = "battle_sweep"
	TaskArchivePrune = "archive_prune"
	TaskIndexPrune   = "index_pruning"
)

// Sweeper drives battle deadlines and frees finished sessions
type Sweeper interface {
	TickAll(ctx context.Context) error
	Reap(olderThan time.Duration) int
}

// ArchivePruner deletes finished battles older than a cutoff
type ArchivePruner interface {
	PruneFinishedBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// IndexPruner drops search indices past their retention
type IndexPruner interface {
	PruneOldIndices(ctx context.Context) ([]string, error)
}

// MaintenanceConfig holds the maintenance schedules
type MaintenanceConfig struct {
	SweepSchedule    string
	PruneSchedule    string
	ArchiveRetention time.Duration
	// ReapAfter is how long a finished battle stays live in memory
	ReapAfter time.Duration
}

// Maintenance registers the background jobs that keep battles moving and
// storage bounded
type Maintenance struct {
	sweeper Sweeper
	archive ArchivePruner
	indices IndexPruner
	config  MaintenanceConfig
	now     func() time.Time
	logger  *logging.Logger
}

// NewMaintenance creates the maintenance jobs. archive and indices may be nil.
func NewMaintenance(sweeper Sweeper, archive ArchivePruner, indices IndexPruner, config MaintenanceConfig, logger *logging.Logger) *Maintenance {
	if config.ReapAfter <= 0 {
		config.ReapAfter = 10 * time.Minute
	}
	if logger == nil {
		logger = logging.Default
	}
	return &Maintenance{
		sweeper: sweeper,
		archive: archive,
		indices: indices,
		config:  config,
		now:     time.Now,
		logger:  logger.WithField("component", "maintenance"),
	}
}

// Register adds every configured job to s
func (m *Maintenance) Register(s *Scheduler) error {
	if m.sweeper != nil {
		if err := s.AddTask(TaskBattleSweep, m.config.SweepSchedule, m.sweep); err != nil {
			return err
		}
	}
	if m.archive != nil && m.config.ArchiveRetention > 0 {
		if err := s.AddTask(TaskArchivePrune, m.config.PruneSchedule, m.pruneArchive); err != nil {
			return err
		}
	}
	if m.indices != nil {
		if err := s.AddTask(TaskIndexPrune, m.config.PruneSchedule, m.pruneIndices); err != nil {
			return err
		}
	}
	return nil
}

func (m *Maintenance) sweep(ctx context.Context) error {
	if err := m.sweeper.TickAll(ctx); err != nil {
		return err
	}
	if reaped := m.sweeper.Reap(m.config.ReapAfter); reaped > 0 {
		m.logger.Debug("Released %d finished battle(s)", reaped)
	}
	return nil
}

func (m *Maintenance) pruneArchive(ctx context.Context) error {
	cutoff := m.now().Add(-m.config.ArchiveRetention)
	pruned, err := m.archive.PruneFinishedBefore(ctx, cutoff)
	if err != nil {
		return err
	}
	if pruned > 0 {
		m.logger.WithField("cutoff", cutoff.Format(time.RFC3339)).Info("Pruned %d archived battle(s)", pruned)
	}
	return nil
}

func (m *Maintenance) pruneIndices(ctx context.Context) error {
	deleted, err := m.indices.PruneOldIndices(ctx)
	if err != nil {
		return err
	}
	for _, index := range deleted {
		m.logger.WithField("index", index).Info("Deleted expired battle index")
	}
	return nil
}
