package battle

import (
	"context"
	"fmt"
	"sort"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/fadedpez/caseclash/internal/logging"
	"github.com/fadedpez/caseclash/internal/types"
	"github.com/fadedpez/caseclash/pkg/entities"
	"github.com/fadedpez/caseclash/pkg/notify"
	"github.com/fadedpez/caseclash/pkg/services/resolver"
)

// Cancel reasons recorded on the session
const (
	ReasonLobbyExpired   = "lobby expired"
	ReasonNoEligible     = "no eligible participants"
	ReasonResolverFailed = "resolver failure"
	ReasonScoringFailed  = "scoring failure"
	ReasonCancelled      = "cancelled"
)

// session owns one battle. Only its goroutine reads or writes state.
type session struct {
	id       string
	m        *Manager
	state    *entities.BattleSession
	snapshot atomic.Pointer[entities.BattleSession]
	inbox    chan command
	done     chan struct{}
	logger   *logging.Logger
}

func newSession(m *Manager, state *entities.BattleSession) *session {
	s := &session{
		id:     state.ID,
		m:      m,
		state:  state,
		inbox:  make(chan command, 64),
		done:   make(chan struct{}),
		logger: m.logger.WithField("session_id", state.ID),
	}
	s.snapshot.Store(state.Clone())
	go s.loop(m.ctx)
	return s
}

// Snapshot returns the last committed state
func (s *session) Snapshot() *entities.BattleSession {
	return s.snapshot.Load()
}

func (s *session) loop(ctx context.Context) {
	defer close(s.done)
	for {
		select {
		case <-ctx.Done():
			return
		case cmd := <-s.inbox:
			if _, ok := cmd.(shutdownCmd); ok {
				return
			}
			s.handle(cmd)
		}
	}
}

func (s *session) handle(cmd command) {
	switch c := cmd.(type) {
	case joinCmd:
		c.reply <- s.join(context.WithoutCancel(c.ctx), c.userID, c.walletID)
	case addBotCmd:
		c.reply <- s.addBot(context.WithoutCancel(c.ctx))
	case leaveCmd:
		c.reply <- s.leave(context.WithoutCancel(c.ctx), c.userID)
	case connectionCmd:
		c.reply <- s.setConnected(context.WithoutCancel(c.ctx), c.userID, c.connected)
	case advanceCmd:
		c.reply <- s.advance(context.WithoutCancel(c.ctx), c.round)
	case cancelCmd:
		c.reply <- s.cancelRequested(context.WithoutCancel(c.ctx), c.reason)
	case tickCmd:
		c.reply <- s.tick(context.WithoutCancel(c.ctx))
	}
}

// commit makes next the current state, persists it and publishes events
func (s *session) commit(ctx context.Context, next *entities.BattleSession, events ...notify.EventType) {
	next.Version = s.state.Version + 1
	s.state = next
	snap := next.Clone()
	s.snapshot.Store(snap)

	if err := s.m.repo.Save(ctx, snap); err != nil {
		s.logger.LogError(types.WrapError(types.ErrConcurrentModificationConflict, "failed to persist battle", err))
	}

	now := s.m.clock.Now()
	for _, typ := range events {
		s.m.notifier.Publish(ctx, notify.Event{
			Type:      typ,
			SessionID: snap.ID,
			Version:   snap.Version,
			Status:    snap.Status,
			Round:     snap.CurrentRound,
			Snapshot:  snap,
			Timestamp: now,
		})
	}
}

func (s *session) ok() result {
	return result{session: s.state.Clone()}
}

func fail(err error) result {
	return result{err: err}
}

// joinable reports why new seats can't be taken
func joinable(b *entities.BattleSession) error {
	switch {
	case b.Status == entities.BattleActive || b.Status == entities.BattleFinished:
		return types.NewGameError(types.ErrBattleAlreadyStarted, "battle has already started")
	case b.Status.IsTerminal() || b.CancelReason != "":
		return types.NewGameError(types.ErrInvalidState, fmt.Sprintf("battle is %s", b.Status))
	case b.IsFull():
		return types.NewGameError(types.ErrBattleFull, "battle is full")
	}
	return nil
}

func (s *session) join(ctx context.Context, userID, walletID string) result {
	if err := joinable(s.state); err != nil {
		return fail(err)
	}
	if s.state.ParticipantByUser(userID) != nil {
		return fail(types.NewGameError(types.ErrAlreadyJoined, "already joined this battle"))
	}

	next := s.state.Clone()
	p := s.seat(next, userID, walletID, false)
	events := []notify.EventType{notify.EventParticipantJoined}
	if next.IsFull() {
		s.startCountdown(next)
		events = append(events, notify.EventCountdownStarted)
	}
	s.commit(ctx, next, events...)

	s.logger.WithFields(logging.Fields{"user": userID, "seat": p.Seat}).Info("Participant joined")
	snap := next.Clone()
	return result{session: snap, participant: snap.Participant(p.ID)}
}

func (s *session) addBot(ctx context.Context) result {
	if err := joinable(s.state); err != nil {
		return fail(err)
	}

	next := s.state.Clone()
	p := s.seat(next, "", "", true)
	events := []notify.EventType{notify.EventParticipantJoined}
	if next.IsFull() {
		s.startCountdown(next)
		events = append(events, notify.EventCountdownStarted)
	}
	s.commit(ctx, next, events...)

	s.logger.WithField("seat", p.Seat).Debug("Bot added")
	snap := next.Clone()
	return result{session: snap, participant: snap.Participant(p.ID)}
}

// seat adds a participant at the lowest free seat
func (s *session) seat(b *entities.BattleSession, userID, walletID string, bot bool) *entities.Participant {
	taken := make(map[int]bool, len(b.Participants))
	for _, p := range b.Participants {
		taken[p.Seat] = true
	}
	seat := 0
	for taken[seat] {
		seat++
	}

	p := &entities.Participant{
		ID:               uuid.New().String(),
		SessionID:        b.ID,
		UserID:           userID,
		WalletID:         walletID,
		IsBot:            bot,
		Seat:             seat,
		AccumulatedValue: decimal.Zero,
		PerRoundLoot:     [][]entities.Item{},
		JoinedAt:         s.m.clock.Now(),
		Connected:        true,
	}
	if b.IsTeamBattle() {
		team := seat % b.TeamCount
		p.Team = &team
	}

	b.Participants = append(b.Participants, p)
	sort.Slice(b.Participants, func(i, j int) bool { return b.Participants[i].Seat < b.Participants[j].Seat })
	return p
}

func (s *session) startCountdown(b *entities.BattleSession) {
	ends := s.m.clock.Now().Add(s.m.config.CountdownWindow)
	b.Status = entities.BattleCountdown
	b.CountdownEndsAt = &ends
}

func (s *session) leave(ctx context.Context, userID string) result {
	b := s.state
	if b.Status != entities.BattleWaiting && b.Status != entities.BattleCountdown {
		return fail(types.NewGameError(types.ErrBattleAlreadyStarted, "battle can no longer be left"))
	}
	p := b.ParticipantByUser(userID)
	if p == nil {
		return fail(types.NewGameError(types.ErrPlayerNotFound, "not a participant in this battle"))
	}

	next := b.Clone()
	next.Participants = removeParticipants(next.Participants, map[string]bool{p.ID: true})
	events := []notify.EventType{notify.EventParticipantLeft}
	if next.Status == entities.BattleCountdown {
		next.Status = entities.BattleWaiting
		next.CountdownEndsAt = nil
		next.ExpiresAt = s.m.clock.Now().Add(s.m.config.LobbyTimeout)
		events = append(events, notify.EventBattleReverted)
	}
	s.commit(ctx, next, events...)

	s.logger.WithField("user", userID).Info("Participant left")
	return s.ok()
}

func removeParticipants(participants []*entities.Participant, drop map[string]bool) []*entities.Participant {
	kept := participants[:0]
	for _, p := range participants {
		if !drop[p.ID] {
			kept = append(kept, p)
		}
	}
	return kept
}

func (s *session) setConnected(ctx context.Context, userID string, connected bool) result {
	if s.state.Status.IsTerminal() {
		return fail(types.NewGameError(types.ErrInvalidState, fmt.Sprintf("battle is %s", s.state.Status)))
	}
	current := s.state.ParticipantByUser(userID)
	if current == nil {
		return fail(types.NewGameError(types.ErrPlayerNotFound, "not a participant in this battle"))
	}
	if current.Connected == connected {
		return s.ok()
	}

	next := s.state.Clone()
	p := next.Participant(current.ID)
	p.Connected = connected
	if connected {
		p.DisconnectedAt = nil
	} else {
		now := s.m.clock.Now()
		p.DisconnectedAt = &now
	}
	s.commit(ctx, next, notify.EventConnectionChanged)

	s.logger.WithFields(logging.Fields{"user": userID, "connected": connected}).Info("Connection changed")
	return s.ok()
}

func (s *session) advance(ctx context.Context, round int) result {
	b := s.state
	switch {
	case b.CancelReason != "" && !b.Status.IsTerminal():
		return fail(types.NewGameError(types.ErrInvalidState, "battle is being cancelled"))
	case b.Status != entities.BattleActive && b.Status != entities.BattleFinished:
		return fail(types.NewGameError(types.ErrInvalidState, fmt.Sprintf("battle is %s", b.Status)))
	case round < 0 || round >= b.TotalRounds():
		return fail(types.NewGameError(types.ErrInvalidArgument, fmt.Sprintf("round %d out of range", round)))
	case round < b.CurrentRound:
		// already committed
		return result{session: b.Clone(), outcomes: append([]entities.RoundOutcome(nil), b.Rounds[round]...)}
	case round > b.CurrentRound:
		return fail(types.NewGameError(types.ErrInvalidArgument, fmt.Sprintf("round %d has not started", round)))
	}
	return s.playRound(ctx)
}

// playRound draws the current round for every eligible participant
func (s *session) playRound(ctx context.Context) result {
	now := s.m.clock.Now()
	round := s.state.CurrentRound

	// barrier on disconnected participants still inside their grace window
	var timedOut []*entities.Participant
	for _, p := range s.state.Participants {
		if p.IsBot || p.Forfeited || p.Connected {
			continue
		}
		if p.DisconnectedAt != nil && now.Sub(*p.DisconnectedAt) < s.m.config.RoundTimeout {
			return fail(types.NewGameError(types.ErrRoundPending,
				fmt.Sprintf("waiting for participant %s to reconnect", p.ID)))
		}
		timedOut = append(timedOut, p)
	}

	if len(timedOut) > 0 {
		next := s.state.Clone()
		for _, p := range timedOut {
			next.Participant(p.ID).Forfeited = true
			s.logger.WithFields(logging.Fields{"participant": p.ID, "round": round}).LogError(
				types.NewGameError(types.ErrParticipantDisconnectTimeout,
					fmt.Sprintf("participant %s forfeited after %v disconnected", p.ID, s.m.config.RoundTimeout)))
		}
		s.commit(ctx, next, notify.EventParticipantForfeit)
	}

	if eligibleHumans(s.state) == 0 {
		return s.cancelWithRefund(ctx, ReasonNoEligible, entities.BattleCancelled)
	}

	boxID := s.state.BoxSequence[round]
	box, err := s.m.catalog.Box(boxID)
	if err != nil {
		s.logger.LogError(err)
		if r := s.cancelWithRefund(ctx, ReasonResolverFailed, entities.BattleCancelled); r.err != nil {
			return r
		}
		return fail(err)
	}

	next := s.state.Clone()
	outcomes := make([]entities.RoundOutcome, 0, len(next.Participants))
	for _, p := range next.Participants {
		outcome := entities.RoundOutcome{SessionID: next.ID, Round: round, ParticipantID: p.ID}
		if p.Forfeited {
			outcome.Forfeited = true
			p.PerRoundLoot = append(p.PerRoundLoot, []entities.Item{})
			outcomes = append(outcomes, outcome)
			continue
		}

		item, err := resolver.Resolve(box, s.m.rng)
		if err != nil {
			s.logger.LogError(err)
			if r := s.cancelWithRefund(ctx, ReasonResolverFailed, entities.BattleCancelled); r.err != nil {
				return r
			}
			return fail(err)
		}
		p.PerRoundLoot = append(p.PerRoundLoot, []entities.Item{item})
		p.AccumulatedValue = p.AccumulatedValue.Add(item.MarketValue)
		outcome.Item = &item
		outcomes = append(outcomes, outcome)
	}

	next.Rounds = append(next.Rounds, outcomes)
	next.CurrentRound++
	if next.CurrentRound < next.TotalRounds() {
		due := now.Add(s.m.config.roundInterval(next.Mode))
		next.NextRoundAt = &due
	} else {
		next.NextRoundAt = nil
	}
	s.commit(ctx, next, notify.EventRoundCompleted)

	s.logger.WithField("round", round).Debug("Round committed")

	// settlement problems are retried on tick and never undo a committed round
	if next.CurrentRound == next.TotalRounds() {
		if r := s.finish(ctx); r.err != nil {
			s.logger.LogError(r.err)
		}
	}
	return result{session: s.state.Clone(), outcomes: outcomes}
}

// eligibleHumans counts players still able to win. Bots only play for the house.
func eligibleHumans(b *entities.BattleSession) int {
	count := 0
	for _, p := range b.Participants {
		if !p.IsBot && !p.Forfeited {
			count++
		}
	}
	return count
}

func (s *session) cancelRequested(ctx context.Context, reason string) result {
	if s.state.Status.IsTerminal() {
		return fail(types.NewGameError(types.ErrInvalidState, fmt.Sprintf("battle is already %s", s.state.Status)))
	}
	if reason == "" {
		reason = ReasonCancelled
	}
	return s.cancelWithRefund(ctx, reason, entities.BattleCancelled)
}

// tick applies whatever deadlines have passed
func (s *session) tick(ctx context.Context) result {
	b := s.state
	now := s.m.clock.Now()

	switch {
	case b.Status.IsTerminal():
		return s.ok()

	case b.CancelReason != "":
		status := entities.BattleCancelled
		if b.CancelReason == ReasonLobbyExpired {
			status = entities.BattleExpired
		}
		return s.cancelWithRefund(ctx, b.CancelReason, status)

	case b.Status == entities.BattleWaiting && !now.Before(b.ExpiresAt):
		if b.HumanCount() <= 1 {
			return s.cancelWithRefund(ctx, ReasonLobbyExpired, entities.BattleExpired)
		}
		return s.fillWithBots(ctx)

	case b.Status == entities.BattleCountdown && b.CountdownEndsAt != nil && !now.Before(*b.CountdownEndsAt):
		return s.start(ctx)

	case b.Status == entities.BattleActive && b.CurrentRound >= b.TotalRounds():
		return s.finish(ctx)

	case b.Status == entities.BattleActive && b.NextRoundAt != nil && !now.Before(*b.NextRoundAt):
		r := s.playRound(ctx)
		if types.IsGameError(r.err, types.ErrRoundPending) {
			return s.ok()
		}
		return r
	}
	return s.ok()
}

// fillWithBots seats bots in every free seat and starts the countdown
func (s *session) fillWithBots(ctx context.Context) result {
	next := s.state.Clone()
	added := 0
	for !next.IsFull() {
		s.seat(next, "", "", true)
		added++
	}
	s.startCountdown(next)
	s.commit(ctx, next, notify.EventParticipantJoined, notify.EventCountdownStarted)

	s.logger.WithField("bots", added).Info("Lobby deadline passed, filled with bots")
	return s.ok()
}

// timeNow is a helper for optional timestamps
func timeNow(c Clock) *time.Time {
	now := c.Now()
	return &now
}
