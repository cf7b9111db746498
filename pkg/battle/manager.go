package battle

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/fadedpez/caseclash/internal/logging"
	"github.com/fadedpez/caseclash/internal/types"
	"github.com/fadedpez/caseclash/pkg/entities"
	"github.com/fadedpez/caseclash/pkg/notify"
	battleRepo "github.com/fadedpez/caseclash/pkg/repositories/battle"
	"github.com/fadedpez/caseclash/pkg/services/boxes"
	"github.com/fadedpez/caseclash/pkg/services/ledger"
	"github.com/fadedpez/caseclash/pkg/services/resolver"
)

// tickConcurrency bounds how many sessions are ticked at once
const tickConcurrency = 16

// CreateRequest describes a new battle
type CreateRequest struct {
	Mode        entities.Mode
	BoxSequence []string
	EntryCost   int64
	MaxPlayers  int
	TeamCount   int
	IsPrivate   bool
	CreatorID   string
}

// Manager owns every live battle session. Each session runs on its own
// goroutine; the manager only routes requests to it.
type Manager struct {
	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.RWMutex
	sessions map[string]*session

	catalog  *boxes.Catalog
	ledger   ledger.Ledger
	repo     battleRepo.Repository
	notifier notify.Notifier
	rng      resolver.Source
	clock    Clock
	config   Config
	logger   *logging.Logger
}

// NewManager creates a battle manager
func NewManager(catalog *boxes.Catalog, l ledger.Ledger, cfg Config, opts ...Option) *Manager {
	ctx, cancel := context.WithCancel(context.Background())
	m := &Manager{
		ctx:      ctx,
		cancel:   cancel,
		sessions: make(map[string]*session),
		catalog:  catalog,
		ledger:   l,
		config:   cfg,
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.repo == nil {
		m.repo = battleRepo.NewMemoryRepository()
	}
	if m.notifier == nil {
		m.notifier = notify.Nop{}
	}
	if m.rng == nil {
		m.rng = resolver.DefaultSource()
	}
	if m.clock == nil {
		m.clock = realClock{}
	}
	if m.logger == nil {
		m.logger = logging.Default
	}
	m.logger = m.logger.WithField("component", "battle")
	return m
}

// CreateBattle validates the request and opens a lobby
func (m *Manager) CreateBattle(ctx context.Context, req CreateRequest) (*entities.BattleSession, error) {
	if err := m.validate(req); err != nil {
		return nil, err
	}

	teamCount := req.TeamCount
	if teamCount <= 1 {
		teamCount = 0
	}

	now := m.clock.Now()
	state := &entities.BattleSession{
		ID:           uuid.New().String(),
		Mode:         req.Mode,
		TeamCount:    teamCount,
		MaxPlayers:   req.MaxPlayers,
		EntryCost:    req.EntryCost,
		BoxSequence:  append([]string(nil), req.BoxSequence...),
		Status:       entities.BattleWaiting,
		IsPrivate:    req.IsPrivate,
		CreatorID:    req.CreatorID,
		Participants: []*entities.Participant{},
		Rounds:       [][]entities.RoundOutcome{},
		Version:      1,
		CreatedAt:    now,
		ExpiresAt:    now.Add(m.config.LobbyTimeout),
	}

	if err := m.repo.Save(ctx, state.Clone()); err != nil {
		return nil, types.WrapError(types.ErrDatabaseError, "failed to store battle", err)
	}

	s := newSession(m, state)
	m.mu.Lock()
	m.sessions[state.ID] = s
	m.mu.Unlock()

	snap := s.Snapshot()
	m.notifier.Publish(ctx, notify.Event{
		Type:      notify.EventBattleCreated,
		SessionID: snap.ID,
		Version:   snap.Version,
		Status:    snap.Status,
		Snapshot:  snap,
		Timestamp: now,
	})

	m.logger.WithFields(logging.Fields{
		"session_id": state.ID,
		"mode":       state.Mode,
		"players":    state.MaxPlayers,
		"rounds":     state.TotalRounds(),
	}).Info("Battle created")

	return snap.Clone(), nil
}

func (m *Manager) validate(req CreateRequest) error {
	if !req.Mode.Valid() {
		return types.NewGameError(types.ErrInvalidArgument, fmt.Sprintf("unknown mode %q", req.Mode))
	}
	if len(req.BoxSequence) == 0 || len(req.BoxSequence) > MaxRounds {
		return types.NewGameError(types.ErrInvalidArgument, fmt.Sprintf("a battle needs between 1 and %d boxes", MaxRounds))
	}
	for _, id := range req.BoxSequence {
		if _, err := m.catalog.Box(id); err != nil {
			return err
		}
	}
	if req.MaxPlayers < MinPlayers || req.MaxPlayers > MaxSeats {
		return types.NewGameError(types.ErrInvalidArgument, fmt.Sprintf("max players must be between %d and %d", MinPlayers, MaxSeats))
	}
	if req.EntryCost < 0 {
		return types.NewGameError(types.ErrInvalidArgument, "entry cost cannot be negative")
	}
	switch {
	case req.TeamCount <= 1:
	case req.TeamCount == 2:
		if req.MaxPlayers%req.TeamCount != 0 || req.MaxPlayers < 2*req.TeamCount {
			return types.NewGameError(types.ErrInvalidArgument, "team battles need an even number of players, at least two per team")
		}
	default:
		return types.NewGameError(types.ErrInvalidArgument, "only two-team battles are supported")
	}
	return nil
}

// JoinBattle seats a user after checking they can cover the entry fee
func (m *Manager) JoinBattle(ctx context.Context, sessionID, userID string) (*entities.Participant, error) {
	if userID == "" {
		return nil, types.NewGameError(types.ErrInvalidArgument, "user id is required")
	}
	s, err := m.session(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	snap := s.Snapshot()
	if err := joinable(snap); err != nil {
		return nil, err
	}

	wallet, _, err := m.ledger.GetOrCreateWallet(ctx, userID)
	if err != nil {
		return nil, err
	}
	if wallet.Balance < snap.EntryCost {
		return nil, types.NewGameError(types.ErrInsufficientFunds,
			fmt.Sprintf("balance %d is below the entry cost of %d", wallet.Balance, snap.EntryCost))
	}

	req := newRequest(ctx)
	r, err := m.send(ctx, s, joinCmd{request: req, userID: userID, walletID: wallet.ID}, req.reply)
	if err != nil {
		return nil, err
	}
	return r.participant, nil
}

// AddBot seats a bot
func (m *Manager) AddBot(ctx context.Context, sessionID string) (*entities.Participant, error) {
	s, err := m.session(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	req := newRequest(ctx)
	r, err := m.send(ctx, s, addBotCmd{request: req}, req.reply)
	if err != nil {
		return nil, err
	}
	return r.participant, nil
}

// LeaveBattle frees a user's seat before the battle starts
func (m *Manager) LeaveBattle(ctx context.Context, sessionID, userID string) (*entities.BattleSession, error) {
	s, err := m.session(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	req := newRequest(ctx)
	r, err := m.send(ctx, s, leaveCmd{request: req, userID: userID}, req.reply)
	if err != nil {
		return nil, err
	}
	return r.session, nil
}

// SetConnected records a user's connection going up or down
func (m *Manager) SetConnected(ctx context.Context, sessionID, userID string, connected bool) (*entities.BattleSession, error) {
	s, err := m.session(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	req := newRequest(ctx)
	r, err := m.send(ctx, s, connectionCmd{request: req, userID: userID, connected: connected}, req.reply)
	if err != nil {
		return nil, err
	}
	return r.session, nil
}

// AdvanceRound plays round if it is the current one, or returns its outcomes
// if it was already played
func (m *Manager) AdvanceRound(ctx context.Context, sessionID string, round int) ([]entities.RoundOutcome, error) {
	s, err := m.session(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	req := newRequest(ctx)
	r, err := m.send(ctx, s, advanceCmd{request: req, round: round}, req.reply)
	if err != nil {
		return nil, err
	}
	return r.outcomes, nil
}

// CancelBattle ends a battle and refunds every collected fee
func (m *Manager) CancelBattle(ctx context.Context, sessionID, reason string) (*entities.BattleSession, error) {
	s, err := m.session(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	req := newRequest(ctx)
	r, err := m.send(ctx, s, cancelCmd{request: req, reason: reason}, req.reply)
	if err != nil {
		return nil, err
	}
	return r.session, nil
}

// GetBattle returns a snapshot of a live or archived battle
func (m *Manager) GetBattle(ctx context.Context, sessionID string) (*entities.BattleSession, error) {
	m.mu.RLock()
	s := m.sessions[sessionID]
	m.mu.RUnlock()
	if s != nil {
		return s.Snapshot().Clone(), nil
	}

	archived, err := m.repo.Get(ctx, sessionID)
	if errors.Is(err, battleRepo.ErrBattleNotFound) {
		return nil, types.NewGameError(types.ErrBattleNotFound, fmt.Sprintf("battle %s not found", sessionID))
	}
	if err != nil {
		return nil, types.WrapError(types.ErrDatabaseError, "failed to load battle", err)
	}
	return archived, nil
}

// ListOpenBattles returns public lobbies still accepting players, oldest first
func (m *Manager) ListOpenBattles() []*entities.BattleSession {
	m.mu.RLock()
	open := make([]*entities.BattleSession, 0, len(m.sessions))
	for _, s := range m.sessions {
		snap := s.Snapshot()
		if snap.Status == entities.BattleWaiting && !snap.IsPrivate && snap.CancelReason == "" {
			open = append(open, snap.Clone())
		}
	}
	m.mu.RUnlock()

	sort.Slice(open, func(i, j int) bool {
		if open[i].CreatedAt.Equal(open[j].CreatedAt) {
			return open[i].ID < open[j].ID
		}
		return open[i].CreatedAt.Before(open[j].CreatedAt)
	})
	return open
}

// Tick applies any deadlines that have passed for one session
func (m *Manager) Tick(ctx context.Context, sessionID string) (*entities.BattleSession, error) {
	s, err := m.session(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	req := newRequest(ctx)
	r, err := m.send(ctx, s, tickCmd{request: req}, req.reply)
	if err != nil {
		return nil, err
	}
	return r.session, nil
}

// TickAll ticks every live session that is not yet terminal. Per-session
// failures are logged so one battle can't hold up the rest.
func (m *Manager) TickAll(ctx context.Context) error {
	m.mu.RLock()
	ids := make([]string, 0, len(m.sessions))
	for id, s := range m.sessions {
		if !s.Snapshot().Status.IsTerminal() {
			ids = append(ids, id)
		}
	}
	m.mu.RUnlock()

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(tickConcurrency)
	for _, id := range ids {
		g.Go(func() error {
			if _, err := m.Tick(gctx, id); err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				m.logger.WithField("session_id", id).Debug("Tick reported: %v", err)
			}
			return nil
		})
	}
	return g.Wait()
}

// Run ticks every session on interval until ctx is done
func (m *Manager) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-m.ctx.Done():
			return
		case <-ticker.C:
			if err := m.TickAll(ctx); err != nil && ctx.Err() == nil {
				m.logger.Warn("Tick sweep failed: %v", err)
			}
		}
	}
}

// Restore reloads unfinished sessions from the repository after a restart
func (m *Manager) Restore(ctx context.Context) (int, error) {
	live, err := m.repo.ListByStatus(ctx,
		entities.BattleWaiting, entities.BattleCountdown, entities.BattleActive)
	if err != nil {
		return 0, types.WrapError(types.ErrDatabaseError, "failed to load battles", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	restored := 0
	for _, state := range live {
		if _, ok := m.sessions[state.ID]; ok {
			continue
		}
		m.sessions[state.ID] = newSession(m, state)
		restored++
	}
	if restored > 0 {
		m.logger.Info("Restored %d battle(s)", restored)
	}
	return restored, nil
}

// Reap stops sessions that ended more than olderThan ago. They stay
// readable through the repository.
func (m *Manager) Reap(olderThan time.Duration) int {
	cutoff := m.clock.Now().Add(-olderThan)

	m.mu.Lock()
	var stopped []*session
	for id, s := range m.sessions {
		snap := s.Snapshot()
		if snap.Status.IsTerminal() && snap.FinishedAt != nil && snap.FinishedAt.Before(cutoff) {
			delete(m.sessions, id)
			stopped = append(stopped, s)
		}
	}
	m.mu.Unlock()

	for _, s := range stopped {
		select {
		case s.inbox <- shutdownCmd{}:
		case <-s.done:
		}
	}
	if len(stopped) > 0 {
		m.logger.Debug("Reaped %d finished battle(s)", len(stopped))
	}
	return len(stopped)
}

// Close stops every session goroutine
func (m *Manager) Close() {
	m.cancel()
}

func (m *Manager) session(ctx context.Context, sessionID string) (*session, error) {
	m.mu.RLock()
	s := m.sessions[sessionID]
	m.mu.RUnlock()
	if s != nil {
		return s, nil
	}

	// reaped battles are still known, just closed
	if archived, err := m.repo.Get(ctx, sessionID); err == nil {
		return nil, types.NewGameError(types.ErrInvalidState, fmt.Sprintf("battle is %s", archived.Status))
	}
	return nil, types.NewGameError(types.ErrBattleNotFound, fmt.Sprintf("battle %s not found", sessionID))
}

// send delivers cmd to the session goroutine and waits for its reply
func (m *Manager) send(ctx context.Context, s *session, cmd command, reply <-chan result) (result, error) {
	stopped := types.NewGameError(types.ErrBattleNotFound, fmt.Sprintf("battle %s is no longer running", s.id))

	select {
	case s.inbox <- cmd:
	case <-s.done:
		return result{}, stopped
	case <-ctx.Done():
		return result{}, types.WrapError(types.ErrInternalError, "request cancelled", ctx.Err())
	}

	select {
	case r := <-reply:
		return r, r.err
	case <-s.done:
		return result{}, stopped
	case <-ctx.Done():
		return result{}, types.WrapError(types.ErrInternalError, "request cancelled", ctx.Err())
	}
}
