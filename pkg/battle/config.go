package battle

import (
	"time"

	"github.com/fadedpez/caseclash/internal/logging"
	"github.com/fadedpez/caseclash/pkg/entities"
	"github.com/fadedpez/caseclash/pkg/notify"
	battleRepo "github.com/fadedpez/caseclash/pkg/repositories/battle"
	"github.com/fadedpez/caseclash/pkg/services/resolver"
)

// Limits on battle shape
const (
	MinPlayers = 2
	MaxSeats   = 8
	MaxRounds  = 50
)

// Config holds the timing rules every session follows
type Config struct {
	LobbyTimeout      time.Duration
	CountdownWindow   time.Duration
	RoundInterval     time.Duration
	FastRoundInterval time.Duration
	RoundTimeout      time.Duration
}

// DefaultConfig returns the timings used when none are configured
func DefaultConfig() Config {
	return Config{
		LobbyTimeout:      5 * time.Minute,
		CountdownWindow:   5 * time.Second,
		RoundInterval:     6 * time.Second,
		FastRoundInterval: 2 * time.Second,
		RoundTimeout:      15 * time.Second,
	}
}

// roundInterval is the pause before the next round; fast mode only changes pacing
func (c Config) roundInterval(mode entities.Mode) time.Duration {
	if mode == entities.ModeFast {
		return c.FastRoundInterval
	}
	return c.RoundInterval
}

// Option configures a Manager
type Option func(*Manager)

// WithClock replaces the wall clock
func WithClock(clock Clock) Option {
	return func(m *Manager) { m.clock = clock }
}

// WithRNG replaces the crypto-backed random source
func WithRNG(rng resolver.Source) Option {
	return func(m *Manager) { m.rng = rng }
}

// WithRepository persists sessions after every change
func WithRepository(repo battleRepo.Repository) Option {
	return func(m *Manager) { m.repo = repo }
}

// WithNotifier publishes an event after every change
func WithNotifier(n notify.Notifier) Option {
	return func(m *Manager) { m.notifier = n }
}

// WithLogger replaces the default logger
func WithLogger(logger *logging.Logger) Option {
	return func(m *Manager) { m.logger = logger }
}
