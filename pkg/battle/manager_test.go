package battle

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/fadedpez/caseclash/internal/types"
	"github.com/fadedpez/caseclash/pkg/entities"
	"github.com/fadedpez/caseclash/pkg/notify"
	battleRepo "github.com/fadedpez/caseclash/pkg/repositories/battle"
	walletRepo "github.com/fadedpez/caseclash/pkg/repositories/wallet"
	"github.com/fadedpez/caseclash/pkg/services/boxes"
	"github.com/fadedpez/caseclash/pkg/services/ledger"
	"github.com/fadedpez/caseclash/pkg/services/resolver"
)

// high and low roll into the two halves of the duel box
const (
	high = 0.9
	low  = 0.1
)

func duelBox() *entities.LootBox {
	return &entities.LootBox{
		ID:           "duel",
		Name:         "Duel Case",
		PriceVirtual: 100,
		Entries: []entities.BoxEntry{
			{Item: entities.Item{ID: "pebble", Name: "Pebble", Rarity: entities.RarityCommon, MarketValue: decimal.NewFromInt(50)}, Weight: 50},
			{Item: entities.Item{ID: "crown", Name: "Crown", Rarity: entities.RarityLegendary, MarketValue: decimal.NewFromInt(150)}, Weight: 50},
		},
	}
}

type recorder struct {
	mu     sync.Mutex
	events []notify.Event
}

func (r *recorder) Publish(_ context.Context, event notify.Event) {
	r.mu.Lock()
	r.events = append(r.events, event)
	r.mu.Unlock()
}

func (r *recorder) seen() []notify.EventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]notify.EventType, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e.Type)
	}
	return out
}

// flakyLedger fails the next n batches with LEDGER_UNAVAILABLE
type flakyLedger struct {
	ledger.Ledger
	failures atomic.Int32
}

func (f *flakyLedger) PostBatch(ctx context.Context, postings []ledger.Posting) ([]*entities.Transaction, error) {
	if f.failures.Add(-1) >= 0 {
		return nil, types.NewGameError(types.ErrLedgerUnavailable, "ledger offline")
	}
	return f.Ledger.PostBatch(ctx, postings)
}

type ManagerTestSuite struct {
	suite.Suite
	ctx     context.Context
	clock   *ManualClock
	rng     *resolver.FixedSource
	ledger  *flakyLedger
	repo    *battleRepo.MemoryRepository
	events  *recorder
	catalog *boxes.Catalog
	config  Config
	manager *Manager
}

func (s *ManagerTestSuite) SetupTest() {
	s.ctx = context.Background()
	s.clock = NewManualClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	s.rng = resolver.NewFixedSource(high, low)
	s.ledger = &flakyLedger{Ledger: ledger.NewService(walletRepo.NewMemoryRepository(),
		ledger.WithStartingBalance(1000),
		ledger.WithRetry(1, time.Millisecond, time.Millisecond))}
	s.repo = battleRepo.NewMemoryRepository()
	s.events = &recorder{}
	s.config = DefaultConfig()

	var err error
	s.catalog, err = boxes.NewCatalog(duelBox())
	s.Require().NoError(err)

	s.manager = s.newManager()
}

func (s *ManagerTestSuite) TearDownTest() {
	s.manager.Close()
}

func (s *ManagerTestSuite) newManager() *Manager {
	return NewManager(s.catalog, s.ledger, s.config,
		WithClock(s.clock),
		WithRNG(s.rng),
		WithRepository(s.repo),
		WithNotifier(s.events))
}

func (s *ManagerTestSuite) create(players int, rounds int, mode entities.Mode) *entities.BattleSession {
	sequence := make([]string, rounds)
	for i := range sequence {
		sequence[i] = "duel"
	}
	b, err := s.manager.CreateBattle(s.ctx, CreateRequest{
		Mode:        mode,
		BoxSequence: sequence,
		EntryCost:   100,
		MaxPlayers:  players,
		CreatorID:   "alice",
	})
	s.Require().NoError(err)
	return b
}

func (s *ManagerTestSuite) join(id string, users ...string) {
	for _, user := range users {
		_, err := s.manager.JoinBattle(s.ctx, id, user)
		s.Require().NoError(err)
	}
}

// startFull fills a 1v1 battle and runs the countdown out
func (s *ManagerTestSuite) startFull(rounds int) *entities.BattleSession {
	b := s.create(2, rounds, entities.ModeClassic)
	s.join(b.ID, "alice", "bob")
	s.clock.Advance(s.config.CountdownWindow)
	started, err := s.manager.Tick(s.ctx, b.ID)
	s.Require().NoError(err)
	s.Require().Equal(entities.BattleActive, started.Status)
	return started
}

func (s *ManagerTestSuite) balance(user string) int64 {
	w, _, err := s.ledger.GetOrCreateWallet(s.ctx, user)
	s.Require().NoError(err)
	return w.Balance
}

func (s *ManagerTestSuite) kinds(user string) []entities.TransactionKind {
	w, _, err := s.ledger.GetOrCreateWallet(s.ctx, user)
	s.Require().NoError(err)
	txs, err := s.ledger.Transactions(s.ctx, w.ID, 50)
	s.Require().NoError(err)
	kinds := make([]entities.TransactionKind, 0, len(txs))
	for _, tx := range txs {
		kinds = append(kinds, tx.Kind)
	}
	return kinds
}

func (s *ManagerTestSuite) get(id string) *entities.BattleSession {
	b, err := s.manager.GetBattle(s.ctx, id)
	s.Require().NoError(err)
	return b
}

func (s *ManagerTestSuite) TestClassicBattlePaysHighestTotal() {
	b := s.startFull(1)
	s.Equal(int64(900), s.balance("alice"))
	s.Equal(int64(900), s.balance("bob"))
	s.Equal(int64(200), b.Pool())

	outcomes, err := s.manager.AdvanceRound(s.ctx, b.ID, 0)
	s.Require().NoError(err)
	s.Require().Len(outcomes, 2)
	s.Equal("crown", outcomes[0].Item.ID)
	s.Equal("pebble", outcomes[1].Item.ID)

	finished := s.get(b.ID)
	s.Equal(entities.BattleFinished, finished.Status)
	s.NotNil(finished.FinishedAt)
	alice := finished.ParticipantByUser("alice")
	s.Equal(map[string]int64{alice.ID: 200}, finished.Payouts)

	s.Equal(int64(1100), s.balance("alice"))
	s.Equal(int64(900), s.balance("bob"))
	s.Contains(s.kinds("alice"), entities.TransactionKindPayout)
	s.Contains(s.events.seen(), notify.EventBattleFinished)
}

func (s *ManagerTestSuite) TestLobbyExpiresWithOneHuman() {
	b := s.create(2, 1, entities.ModeClassic)
	s.join(b.ID, "alice")

	s.clock.Advance(s.config.LobbyTimeout)
	expired, err := s.manager.Tick(s.ctx, b.ID)
	s.Require().NoError(err)

	s.Equal(entities.BattleExpired, expired.Status)
	s.Equal(ReasonLobbyExpired, expired.CancelReason)
	s.Equal(int64(1000), s.balance("alice"))
	s.Contains(s.events.seen(), notify.EventBattleExpired)
}

func (s *ManagerTestSuite) TestLobbyTimeoutFillsWithBots() {
	b := s.create(3, 1, entities.ModeClassic)
	s.join(b.ID, "alice", "bob")

	s.clock.Advance(s.config.LobbyTimeout)
	filled, err := s.manager.Tick(s.ctx, b.ID)
	s.Require().NoError(err)
	s.Equal(entities.BattleCountdown, filled.Status)
	s.Require().Len(filled.Participants, 3)
	bot := filled.Participants[2]
	s.True(bot.IsBot)
	s.Empty(bot.WalletID)

	s.clock.Advance(s.config.CountdownWindow)
	started, err := s.manager.Tick(s.ctx, b.ID)
	s.Require().NoError(err)
	s.Equal(int64(200), started.Pool())

	// the bot in seat 2 draws the crown
	s.rng = resolver.NewFixedSource(low, low, high)
	s.manager.rng = s.rng
	_, err = s.manager.AdvanceRound(s.ctx, b.ID, 0)
	s.Require().NoError(err)

	finished := s.get(b.ID)
	s.Equal(entities.BattleFinished, finished.Status)
	s.Empty(finished.Payouts)
	s.Equal(int64(900), s.balance("alice"))
	s.Equal(int64(900), s.balance("bob"))
}

func (s *ManagerTestSuite) TestCountdownEvictsParticipantWhoCannotPay() {
	b := s.create(2, 1, entities.ModeClassic)
	s.join(b.ID, "alice", "bob")

	bob, _, err := s.ledger.GetOrCreateWallet(s.ctx, "bob")
	s.Require().NoError(err)
	_, err = s.ledger.Debit(s.ctx, ledger.Posting{
		WalletID:       bob.ID,
		Kind:           entities.TransactionKindBoxOpen,
		Amount:         950,
		IdempotencyKey: "drain-bob",
	})
	s.Require().NoError(err)

	s.clock.Advance(s.config.CountdownWindow)
	_, err = s.manager.Tick(s.ctx, b.ID)
	s.True(types.IsGameError(err, types.ErrInsufficientFunds))

	reverted := s.get(b.ID)
	s.Equal(entities.BattleWaiting, reverted.Status)
	s.Require().Len(reverted.Participants, 1)
	s.Equal("alice", reverted.Participants[0].UserID)
	s.Equal(s.clock.Now().Add(s.config.LobbyTimeout), reverted.ExpiresAt)
	s.Equal(int64(1000), s.balance("alice"))
	s.Equal(int64(50), s.balance("bob"))
	s.Contains(s.events.seen(), notify.EventBattleReverted)
}

func (s *ManagerTestSuite) TestJoinErrors() {
	b := s.create(2, 1, entities.ModeClassic)
	s.join(b.ID, "alice")

	_, err := s.manager.JoinBattle(s.ctx, b.ID, "alice")
	s.True(types.IsGameError(err, types.ErrAlreadyJoined))

	_, err = s.manager.JoinBattle(s.ctx, "missing", "bob")
	s.True(types.IsGameError(err, types.ErrBattleNotFound))

	_, err = s.manager.JoinBattle(s.ctx, b.ID, "")
	s.True(types.IsGameError(err, types.ErrInvalidArgument))

	s.join(b.ID, "bob")
	_, err = s.manager.JoinBattle(s.ctx, b.ID, "carol")
	s.True(types.IsGameError(err, types.ErrBattleFull))

	s.clock.Advance(s.config.CountdownWindow)
	_, err = s.manager.Tick(s.ctx, b.ID)
	s.Require().NoError(err)
	_, err = s.manager.JoinBattle(s.ctx, b.ID, "carol")
	s.True(types.IsGameError(err, types.ErrBattleAlreadyStarted))
}

func (s *ManagerTestSuite) TestJoinRequiresEntryFee() {
	b, err := s.manager.CreateBattle(s.ctx, CreateRequest{
		Mode:        entities.ModeClassic,
		BoxSequence: []string{"duel"},
		EntryCost:   5000,
		MaxPlayers:  2,
	})
	s.Require().NoError(err)

	_, err = s.manager.JoinBattle(s.ctx, b.ID, "alice")
	s.True(types.IsGameError(err, types.ErrInsufficientFunds))
	s.Empty(s.get(b.ID).Participants)
}

func (s *ManagerTestSuite) TestAdvanceRoundIsIdempotent() {
	b := s.startFull(2)

	_, err := s.manager.AdvanceRound(s.ctx, b.ID, 1)
	s.True(types.IsGameError(err, types.ErrInvalidArgument))

	first, err := s.manager.AdvanceRound(s.ctx, b.ID, 0)
	s.Require().NoError(err)

	// a different roll must not change a committed round
	s.manager.rng = resolver.NewFixedSource(low)
	again, err := s.manager.AdvanceRound(s.ctx, b.ID, 0)
	s.Require().NoError(err)
	s.Equal(first, again)
	s.Equal(1, s.get(b.ID).CurrentRound)

	_, err = s.manager.AdvanceRound(s.ctx, b.ID, 2)
	s.True(types.IsGameError(err, types.ErrInvalidArgument))
}

func (s *ManagerTestSuite) TestAdvanceBeforeStartIsRejected() {
	b := s.create(2, 1, entities.ModeClassic)
	_, err := s.manager.AdvanceRound(s.ctx, b.ID, 0)
	s.True(types.IsGameError(err, types.ErrInvalidState))
}

func (s *ManagerTestSuite) TestDisconnectedParticipantForfeitsAfterTimeout() {
	b := s.startFull(1)

	_, err := s.manager.SetConnected(s.ctx, b.ID, "bob", false)
	s.Require().NoError(err)

	_, err = s.manager.AdvanceRound(s.ctx, b.ID, 0)
	s.True(types.IsGameError(err, types.ErrRoundPending))
	s.Equal(0, s.get(b.ID).CurrentRound)

	s.clock.Advance(s.config.RoundTimeout)
	// bob would have drawn the crown
	s.manager.rng = resolver.NewFixedSource(low, high)
	outcomes, err := s.manager.AdvanceRound(s.ctx, b.ID, 0)
	s.Require().NoError(err)
	s.Require().Len(outcomes, 2)
	s.False(outcomes[0].Forfeited)
	s.True(outcomes[1].Forfeited)
	s.Nil(outcomes[1].Item)

	finished := s.get(b.ID)
	s.Equal(entities.BattleFinished, finished.Status)
	s.True(finished.ParticipantByUser("bob").Forfeited)
	s.Equal(int64(1100), s.balance("alice"))
	s.Equal(int64(900), s.balance("bob"))
	s.Contains(s.events.seen(), notify.EventParticipantForfeit)
}

func (s *ManagerTestSuite) TestReconnectLiftsBarrier() {
	b := s.startFull(1)

	_, err := s.manager.SetConnected(s.ctx, b.ID, "bob", false)
	s.Require().NoError(err)
	s.clock.Advance(s.config.RoundTimeout / 2)
	_, err = s.manager.SetConnected(s.ctx, b.ID, "bob", true)
	s.Require().NoError(err)

	outcomes, err := s.manager.AdvanceRound(s.ctx, b.ID, 0)
	s.Require().NoError(err)
	s.False(outcomes[1].Forfeited)
}

func (s *ManagerTestSuite) TestEveryoneForfeitedCancelsAndRefunds() {
	b := s.startFull(2)

	_, err := s.manager.SetConnected(s.ctx, b.ID, "alice", false)
	s.Require().NoError(err)
	_, err = s.manager.SetConnected(s.ctx, b.ID, "bob", false)
	s.Require().NoError(err)
	s.clock.Advance(s.config.RoundTimeout)

	_, err = s.manager.AdvanceRound(s.ctx, b.ID, 0)
	s.Require().NoError(err)

	cancelled := s.get(b.ID)
	s.Equal(entities.BattleCancelled, cancelled.Status)
	s.Equal(ReasonNoEligible, cancelled.CancelReason)
	s.Equal(int64(1000), s.balance("alice"))
	s.Equal(int64(1000), s.balance("bob"))
	s.Contains(s.kinds("bob"), entities.TransactionKindRefund)
}

func (s *ManagerTestSuite) TestForfeitedHumansCancelDespiteBots() {
	b := s.create(3, 1, entities.ModeClassic)
	s.join(b.ID, "alice", "bob")
	s.clock.Advance(s.config.LobbyTimeout)
	_, err := s.manager.Tick(s.ctx, b.ID)
	s.Require().NoError(err)
	s.clock.Advance(s.config.CountdownWindow)
	started, err := s.manager.Tick(s.ctx, b.ID)
	s.Require().NoError(err)
	s.Require().Equal(entities.BattleActive, started.Status)

	_, err = s.manager.SetConnected(s.ctx, b.ID, "alice", false)
	s.Require().NoError(err)
	_, err = s.manager.SetConnected(s.ctx, b.ID, "bob", false)
	s.Require().NoError(err)
	s.clock.Advance(s.config.RoundTimeout)

	_, err = s.manager.AdvanceRound(s.ctx, b.ID, 0)
	s.Require().NoError(err)

	cancelled := s.get(b.ID)
	s.Equal(entities.BattleCancelled, cancelled.Status)
	s.Equal(ReasonNoEligible, cancelled.CancelReason)
	s.Empty(cancelled.Payouts)
	s.Equal(int64(1000), s.balance("alice"))
	s.Equal(int64(1000), s.balance("bob"))
}

func (s *ManagerTestSuite) TestConcurrentJoinsNeverOverfill() {
	b := s.create(4, 1, entities.ModeClassic)

	var wg sync.WaitGroup
	var joined, full atomic.Int32
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(user string) {
			defer wg.Done()
			_, err := s.manager.JoinBattle(s.ctx, b.ID, user)
			switch {
			case err == nil:
				joined.Add(1)
			case types.IsGameError(err, types.ErrBattleFull):
				full.Add(1)
			}
		}(fmt.Sprintf("user-%d", i))
	}
	wg.Wait()

	s.Equal(int32(4), joined.Load())
	s.Equal(int32(16), full.Load())
	current := s.get(b.ID)
	s.Len(current.Participants, 4)
	s.Equal(entities.BattleCountdown, current.Status)
}

func (s *ManagerTestSuite) TestListOpenBattles() {
	open := s.create(2, 1, entities.ModeClassic)
	s.clock.Advance(time.Second)

	_, err := s.manager.CreateBattle(s.ctx, CreateRequest{
		Mode:        entities.ModeClassic,
		BoxSequence: []string{"duel"},
		MaxPlayers:  2,
		IsPrivate:   true,
	})
	s.Require().NoError(err)

	full := s.create(2, 1, entities.ModeCrazy)
	s.join(full.ID, "alice", "bob")

	listed := s.manager.ListOpenBattles()
	s.Require().Len(listed, 1)
	s.Equal(open.ID, listed[0].ID)
}

func (s *ManagerTestSuite) TestTeamSharedBattleSplitsPool() {
	b, err := s.manager.CreateBattle(s.ctx, CreateRequest{
		Mode:        entities.ModeShared,
		BoxSequence: []string{"duel"},
		EntryCost:   100,
		MaxPlayers:  4,
		TeamCount:   2,
	})
	s.Require().NoError(err)
	s.join(b.ID, "alice", "bob", "carol", "dave")

	current := s.get(b.ID)
	s.Equal(0, *current.ParticipantByUser("alice").Team)
	s.Equal(1, *current.ParticipantByUser("bob").Team)

	s.clock.Advance(s.config.CountdownWindow)
	_, err = s.manager.Tick(s.ctx, b.ID)
	s.Require().NoError(err)
	_, err = s.manager.AdvanceRound(s.ctx, b.ID, 0)
	s.Require().NoError(err)

	finished := s.get(b.ID)
	s.Equal(entities.BattleFinished, finished.Status)
	for _, user := range []string{"alice", "bob", "carol", "dave"} {
		s.Equal(int64(100), finished.Payouts[finished.ParticipantByUser(user).ID], user)
		s.Equal(int64(1000), s.balance(user), user)
	}
}

func (s *ManagerTestSuite) TestLeaveDuringCountdownReopensLobby() {
	b := s.create(2, 1, entities.ModeClassic)
	s.join(b.ID, "alice", "bob")

	// the countdown has not been ticked, and the original lobby expiry is long gone
	s.clock.Advance(s.config.LobbyTimeout + time.Minute)
	left, err := s.manager.LeaveBattle(s.ctx, b.ID, "bob")
	s.Require().NoError(err)
	s.Equal(entities.BattleWaiting, left.Status)
	s.Nil(left.CountdownEndsAt)
	s.Len(left.Participants, 1)
	s.True(left.ExpiresAt.Equal(s.clock.Now().Add(s.config.LobbyTimeout)))
	s.Contains(s.events.seen(), notify.EventBattleReverted)

	ticked, err := s.manager.Tick(s.ctx, b.ID)
	s.Require().NoError(err)
	s.Equal(entities.BattleWaiting, ticked.Status)
	s.Len(ticked.Participants, 1)

	_, err = s.manager.LeaveBattle(s.ctx, b.ID, "bob")
	s.True(types.IsGameError(err, types.ErrPlayerNotFound))
}

func (s *ManagerTestSuite) TestSettlementRetriedOnTick() {
	b := s.startFull(1)

	s.ledger.failures.Store(1)
	outcomes, err := s.manager.AdvanceRound(s.ctx, b.ID, 0)
	s.Require().NoError(err)
	s.Len(outcomes, 2)

	pending := s.get(b.ID)
	s.Equal(entities.BattleActive, pending.Status)
	s.NotEmpty(pending.Payouts)
	s.Equal(int64(900), s.balance("alice"))

	finished, err := s.manager.Tick(s.ctx, b.ID)
	s.Require().NoError(err)
	s.Equal(entities.BattleFinished, finished.Status)
	s.Equal(pending.Payouts, finished.Payouts)
	s.Equal(int64(1100), s.balance("alice"))
}

func (s *ManagerTestSuite) TestFeeCollectionRetriedAfterLedgerOutage() {
	b := s.create(2, 1, entities.ModeClassic)
	s.join(b.ID, "alice", "bob")

	s.ledger.failures.Store(1)
	s.clock.Advance(s.config.CountdownWindow)
	_, err := s.manager.Tick(s.ctx, b.ID)
	s.True(types.IsGameError(err, types.ErrSettlementFailure))
	s.Equal(entities.BattleCountdown, s.get(b.ID).Status)
	s.Equal(int64(1000), s.balance("alice"))

	started, err := s.manager.Tick(s.ctx, b.ID)
	s.Require().NoError(err)
	s.Equal(entities.BattleActive, started.Status)
	s.Equal(int64(900), s.balance("alice"))
}

func (s *ManagerTestSuite) TestCancelActiveBattleRefunds() {
	b := s.startFull(3)
	_, err := s.manager.AdvanceRound(s.ctx, b.ID, 0)
	s.Require().NoError(err)

	cancelled, err := s.manager.CancelBattle(s.ctx, b.ID, "")
	s.Require().NoError(err)
	s.Equal(entities.BattleCancelled, cancelled.Status)
	s.Equal(ReasonCancelled, cancelled.CancelReason)
	s.Equal(int64(1000), s.balance("alice"))
	s.Equal(int64(1000), s.balance("bob"))
	s.Contains(s.kinds("alice"), entities.TransactionKindRefund)

	_, err = s.manager.CancelBattle(s.ctx, b.ID, "")
	s.True(types.IsGameError(err, types.ErrInvalidState))
}

func (s *ManagerTestSuite) TestRestoreResumesLiveBattles() {
	b := s.create(2, 1, entities.ModeClassic)
	s.join(b.ID, "alice")
	s.manager.Close()

	s.manager = s.newManager()
	restored, err := s.manager.Restore(s.ctx)
	s.Require().NoError(err)
	s.Equal(1, restored)

	s.join(b.ID, "bob")
	s.Equal(entities.BattleCountdown, s.get(b.ID).Status)
}

func (s *ManagerTestSuite) TestMissingBoxCancelsWithRefund() {
	alice, _, err := s.ledger.GetOrCreateWallet(s.ctx, "alice")
	s.Require().NoError(err)
	now := s.clock.Now()
	s.Require().NoError(s.repo.Save(s.ctx, &entities.BattleSession{
		ID:          "legacy",
		Mode:        entities.ModeClassic,
		MaxPlayers:  2,
		EntryCost:   100,
		BoxSequence: []string{"retired"},
		Status:      entities.BattleActive,
		Participants: []*entities.Participant{
			{ID: "p1", SessionID: "legacy", UserID: "alice", WalletID: alice.ID, Seat: 0, HasPaid: true, Connected: true},
			{ID: "p2", SessionID: "legacy", IsBot: true, Seat: 1, Connected: true},
		},
		Version:   3,
		CreatedAt: now,
		ExpiresAt: now,
	}))

	_, err = s.manager.Restore(s.ctx)
	s.Require().NoError(err)

	_, err = s.manager.AdvanceRound(s.ctx, "legacy", 0)
	s.True(types.IsGameError(err, types.ErrBoxNotFound))

	cancelled := s.get("legacy")
	s.Equal(entities.BattleCancelled, cancelled.Status)
	s.Equal(ReasonResolverFailed, cancelled.CancelReason)
	s.Equal(int64(1100), s.balance("alice"))
}

func (s *ManagerTestSuite) TestReapKeepsBattlesReadable() {
	b := s.startFull(1)
	_, err := s.manager.AdvanceRound(s.ctx, b.ID, 0)
	s.Require().NoError(err)

	s.Equal(0, s.manager.Reap(time.Hour))
	s.clock.Advance(2 * time.Hour)
	s.Equal(1, s.manager.Reap(time.Hour))

	s.Equal(entities.BattleFinished, s.get(b.ID).Status)
	_, err = s.manager.JoinBattle(s.ctx, b.ID, "carol")
	s.True(types.IsGameError(err, types.ErrInvalidState))
}

func (s *ManagerTestSuite) TestTickAllDrivesRounds() {
	b := s.startFull(2)

	s.clock.Advance(s.config.RoundInterval)
	s.Require().NoError(s.manager.TickAll(s.ctx))
	s.Equal(1, s.get(b.ID).CurrentRound)

	s.clock.Advance(s.config.RoundInterval)
	s.Require().NoError(s.manager.TickAll(s.ctx))
	s.Equal(entities.BattleFinished, s.get(b.ID).Status)
}

func TestManagerSuite(t *testing.T) {
	suite.Run(t, new(ManagerTestSuite))
}

func TestCreateBattleValidation(t *testing.T) {
	catalog, err := boxes.NewCatalog(duelBox())
	require.NoError(t, err)
	l := ledger.NewService(walletRepo.NewMemoryRepository())
	m := NewManager(catalog, l, DefaultConfig(), WithClock(NewManualClock(time.Now())))
	defer m.Close()

	tooMany := make([]string, MaxRounds+1)
	for i := range tooMany {
		tooMany[i] = "duel"
	}

	tests := []struct {
		name string
		req  CreateRequest
		code types.ErrorCode
	}{
		{"unknown mode", CreateRequest{Mode: "roulette", BoxSequence: []string{"duel"}, MaxPlayers: 2}, types.ErrInvalidArgument},
		{"no boxes", CreateRequest{Mode: entities.ModeClassic, MaxPlayers: 2}, types.ErrInvalidArgument},
		{"too many rounds", CreateRequest{Mode: entities.ModeClassic, BoxSequence: tooMany, MaxPlayers: 2}, types.ErrInvalidArgument},
		{"unknown box", CreateRequest{Mode: entities.ModeClassic, BoxSequence: []string{"nope"}, MaxPlayers: 2}, types.ErrBoxNotFound},
		{"one player", CreateRequest{Mode: entities.ModeClassic, BoxSequence: []string{"duel"}, MaxPlayers: 1}, types.ErrInvalidArgument},
		{"nine players", CreateRequest{Mode: entities.ModeClassic, BoxSequence: []string{"duel"}, MaxPlayers: 9}, types.ErrInvalidArgument},
		{"negative cost", CreateRequest{Mode: entities.ModeClassic, BoxSequence: []string{"duel"}, MaxPlayers: 2, EntryCost: -1}, types.ErrInvalidArgument},
		{"three teams", CreateRequest{Mode: entities.ModeClassic, BoxSequence: []string{"duel"}, MaxPlayers: 6, TeamCount: 3}, types.ErrInvalidArgument},
		{"teams of one", CreateRequest{Mode: entities.ModeClassic, BoxSequence: []string{"duel"}, MaxPlayers: 2, TeamCount: 2}, types.ErrInvalidArgument},
		{"uneven teams", CreateRequest{Mode: entities.ModeClassic, BoxSequence: []string{"duel"}, MaxPlayers: 5, TeamCount: 2}, types.ErrInvalidArgument},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := m.CreateBattle(context.Background(), tt.req)
			assert.True(t, types.IsGameError(err, tt.code), "got %v", err)
		})
	}

	b, err := m.CreateBattle(context.Background(), CreateRequest{
		Mode: entities.ModeJackpot, BoxSequence: []string{"duel", "duel"}, MaxPlayers: 4, TeamCount: 2,
	})
	require.NoError(t, err)
	assert.Equal(t, entities.BattleWaiting, b.Status)
	assert.Equal(t, int64(1), b.Version)
	assert.Equal(t, 2, b.TotalRounds())
}
