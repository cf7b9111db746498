package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/fadedpez/caseclash/internal/types"
	"github.com/fadedpez/caseclash/pkg/battle"
	"github.com/fadedpez/caseclash/pkg/entities"
	"github.com/fadedpez/caseclash/pkg/notify"
	battleRepo "github.com/fadedpez/caseclash/pkg/repositories/battle"
	walletRepo "github.com/fadedpez/caseclash/pkg/repositories/wallet"
	"github.com/fadedpez/caseclash/pkg/services/boxes"
	"github.com/fadedpez/caseclash/pkg/services/ledger"
	"github.com/fadedpez/caseclash/pkg/services/resolver"
)

type fakeHistory struct {
	docs []*battleRepo.BattleDocument
}

func (f *fakeHistory) UserHistory(_ context.Context, userID string, limit int) ([]*battleRepo.BattleDocument, error) {
	return f.docs, nil
}

type ServerTestSuite struct {
	suite.Suite
	clock   *battle.ManualClock
	broker  *notify.Broker
	manager *battle.Manager
	server  *Server
	http    *httptest.Server
}

func (s *ServerTestSuite) SetupTest() {
	catalog, err := boxes.NewCatalog(&entities.LootBox{
		ID:           "coin",
		Name:         "Coin Case",
		PriceVirtual: 10,
		Entries: []entities.BoxEntry{
			{Item: entities.Item{ID: "penny", Name: "Penny", Rarity: entities.RarityCommon, MarketValue: decimal.NewFromInt(1)}, Weight: 60},
			{Item: entities.Item{ID: "ruby", Name: "Ruby", Rarity: entities.RarityEpic, MarketValue: decimal.NewFromInt(40)}, Weight: 40},
		},
	})
	s.Require().NoError(err)

	l := ledger.NewService(walletRepo.NewMemoryRepository(), ledger.WithStartingBalance(100))
	rng := resolver.NewFixedSource(0.9)
	s.clock = battle.NewManualClock(time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC))
	s.broker = notify.NewBroker(16)
	s.manager = battle.NewManager(catalog, l, battle.DefaultConfig(),
		battle.WithClock(s.clock),
		battle.WithRNG(rng),
		battle.WithNotifier(s.broker))

	s.server = NewServer(Deps{
		Battles: s.manager,
		Boxes:   boxes.NewService(catalog, l, rng),
		Ledger:  l,
		Broker:  s.broker,
	})
	s.http = httptest.NewServer(s.server.Routes())
}

func (s *ServerTestSuite) TearDownTest() {
	s.http.Close()
	s.broker.Close()
	s.manager.Close()
}

func (s *ServerTestSuite) do(method, path string, body interface{}, out interface{}) int {
	var buf bytes.Buffer
	if body != nil {
		s.Require().NoError(json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, s.http.URL+path, &buf)
	s.Require().NoError(err)
	resp, err := s.http.Client().Do(req)
	s.Require().NoError(err)
	defer resp.Body.Close()
	if out != nil {
		s.Require().NoError(json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func (s *ServerTestSuite) createBattle(cost int64) *entities.BattleSession {
	var created entities.BattleSession
	status := s.do(http.MethodPost, "/battles", map[string]interface{}{
		"mode":        "classic",
		"boxes":       []string{"coin"},
		"entry_cost":  cost,
		"max_players": 2,
	}, &created)
	s.Require().Equal(http.StatusCreated, status)
	return &created
}

func (s *ServerTestSuite) TestHealthz() {
	s.Equal(http.StatusOK, s.do(http.MethodGet, "/healthz", nil, nil))
}

func (s *ServerTestSuite) TestBattleLifecycle() {
	b := s.createBattle(40)
	s.Equal(entities.BattleWaiting, b.Status)

	var open []*entities.BattleSession
	s.Equal(http.StatusOK, s.do(http.MethodGet, "/battles", nil, &open))
	s.Len(open, 1)

	var p entities.Participant
	s.Equal(http.StatusOK, s.do(http.MethodPost, "/battles/"+b.ID+"/join", map[string]string{"user_id": "alice"}, &p))
	s.Equal("alice", p.UserID)
	s.Equal(http.StatusCreated, s.do(http.MethodPost, "/battles/"+b.ID+"/bots", nil, &p))
	s.True(p.IsBot)

	s.clock.Advance(battle.DefaultConfig().CountdownWindow)
	var current entities.BattleSession
	s.Equal(http.StatusOK, s.do(http.MethodPost, "/battles/"+b.ID+"/tick", nil, &current))
	s.Equal(entities.BattleActive, current.Status)

	var round roundResponse
	s.Equal(http.StatusOK, s.do(http.MethodPost, "/battles/"+b.ID+"/rounds/0", nil, &round))
	s.Len(round.Outcomes, 2)

	s.Equal(http.StatusOK, s.do(http.MethodGet, "/battles/"+b.ID, nil, &current))
	s.Equal(entities.BattleFinished, current.Status)

	var wallet walletResponse
	s.Equal(http.StatusOK, s.do(http.MethodGet, "/wallets/alice", nil, &wallet))
	// both drew a ruby and tied; the bot's half of the pool stays with the house
	s.Equal(int64(80), wallet.Balance)
}

func (s *ServerTestSuite) TestErrorStatuses() {
	var body errorBody
	s.Equal(http.StatusNotFound, s.do(http.MethodGet, "/battles/missing", nil, &body))
	s.Equal(types.ErrBattleNotFound, body.Code)

	s.Equal(http.StatusBadRequest, s.do(http.MethodPost, "/battles", map[string]interface{}{"mode": "classic", "max_players": 2}, &body))
	s.Equal(types.ErrInvalidArgument, body.Code)

	b := s.createBattle(500)
	s.Equal(http.StatusPaymentRequired, s.do(http.MethodPost, "/battles/"+b.ID+"/join", map[string]string{"user_id": "alice"}, &body))
	s.Equal(types.ErrInsufficientFunds, body.Code)

	s.Equal(http.StatusBadRequest, s.do(http.MethodPost, "/battles/"+b.ID+"/rounds/first", nil, &body))
	s.Equal(http.StatusConflict, s.do(http.MethodPost, "/battles/"+b.ID+"/rounds/0", nil, &body))
	s.Equal(types.ErrInvalidState, body.Code)

	s.Equal(http.StatusBadRequest, s.do(http.MethodPost, "/battles/"+b.ID+"/join", map[string]string{"user": "alice"}, &body))
}

func (s *ServerTestSuite) TestOpenBoxAndTransactions() {
	var opening openingResponse
	s.Equal(http.StatusOK, s.do(http.MethodPost, "/boxes/coin/open",
		map[string]interface{}{"user_id": "bob", "idempotency_key": "k1"}, &opening))
	s.Equal("ruby", opening.Item.ID)
	s.Require().Len(opening.Transactions, 1)
	s.Equal(int64(90), opening.Transactions[0].BalanceAfter)

	var txs []transactionResponse
	s.Equal(http.StatusOK, s.do(http.MethodGet, "/wallets/bob/transactions?limit=10", nil, &txs))
	s.Len(txs, 2)

	var body errorBody
	s.Equal(http.StatusBadRequest, s.do(http.MethodGet, "/wallets/bob/transactions?limit=-1", nil, &body))
	s.Equal(http.StatusNotFound, s.do(http.MethodPost, "/boxes/nope/open", map[string]string{"user_id": "bob"}, &body))
	s.Equal(types.ErrBoxNotFound, body.Code)

	var catalog []*entities.LootBox
	s.Equal(http.StatusOK, s.do(http.MethodGet, "/boxes", nil, &catalog))
	s.Len(catalog, 1)
}

func (s *ServerTestSuite) TestHistory() {
	var body errorBody
	s.Equal(http.StatusNotImplemented, s.do(http.MethodGet, "/users/alice/history", nil, &body))

	s.server.history = &fakeHistory{docs: []*battleRepo.BattleDocument{{BattleID: "b1", Mode: entities.ModeClassic}}}
	var docs []*battleRepo.BattleDocument
	s.Equal(http.StatusOK, s.do(http.MethodGet, "/users/alice/history", nil, &docs))
	s.Require().Len(docs, 1)
	s.Equal("b1", docs[0].BattleID)
}

func (s *ServerTestSuite) TestStreamPushesEvents() {
	b := s.createBattle(0)
	s.do(http.MethodPost, "/battles/"+b.ID+"/join", map[string]string{"user_id": "alice"}, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	url := "ws" + strings.TrimPrefix(s.http.URL, "http") + "/battles/" + b.ID + "/ws?user=alice"
	conn, _, err := websocket.Dial(ctx, url, nil)
	s.Require().NoError(err)
	defer conn.Close(websocket.StatusNormalClosure, "done")

	read := func() notify.Event {
		_, data, err := conn.Read(ctx)
		s.Require().NoError(err)
		var event notify.Event
		s.Require().NoError(json.Unmarshal(data, &event))
		return event
	}

	first := read()
	s.Equal(notify.EventType(MessageSnapshot), first.Type)
	s.Equal(b.ID, first.SessionID)

	s.do(http.MethodPost, "/battles/"+b.ID+"/join", map[string]string{"user_id": "bob"}, nil)
	for {
		event := read()
		if event.Type == notify.EventParticipantJoined {
			s.Require().NotNil(event.Snapshot)
			s.Len(event.Snapshot.Participants, 2)
			break
		}
	}

	// the battle is still counting down
	s.Require().NoError(conn.Write(ctx, websocket.MessageText, []byte(`{"type":"advance","round":0}`)))
	for {
		_, data, err := conn.Read(ctx)
		s.Require().NoError(err)
		var failure errorMessage
		s.Require().NoError(json.Unmarshal(data, &failure))
		if failure.Type == MessageError {
			s.Equal(types.ErrInvalidState, failure.Code)
			break
		}
	}
}

func TestServerSuite(t *testing.T) {
	suite.Run(t, new(ServerTestSuite))
}

func TestStatusFor(t *testing.T) {
	tests := map[types.ErrorCode]int{
		types.ErrInvalidArgument:                http.StatusBadRequest,
		types.ErrInsufficientFunds:              http.StatusPaymentRequired,
		types.ErrPlayerNotFound:                 http.StatusNotFound,
		types.ErrBattleFull:                     http.StatusConflict,
		types.ErrConcurrentModificationConflict: http.StatusConflict,
		types.ErrRoundPending:                   http.StatusTooEarly,
		types.ErrLedgerUnavailable:              http.StatusServiceUnavailable,
		types.ErrDatabaseError:                  http.StatusInternalServerError,
	}
	for code, want := range tests {
		assert.Equal(t, want, statusFor(code), string(code))
	}
}

func TestDecodeRejectsUnknownFields(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"user_id":"a","extra":1}`))
	var body userRequest
	err := decode(req, &body)
	require.Error(t, err)
	assert.True(t, types.IsGameError(err, types.ErrInvalidArgument))

	empty := httptest.NewRequest(http.MethodPost, "/", http.NoBody)
	require.NoError(t, decode(empty, &body))
}
