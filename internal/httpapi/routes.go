package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/fadedpez/caseclash/internal/logging"
	"github.com/fadedpez/caseclash/pkg/battle"
	"github.com/fadedpez/caseclash/pkg/entities"
	"github.com/fadedpez/caseclash/pkg/notify"
	battleRepo "github.com/fadedpez/caseclash/pkg/repositories/battle"
	"github.com/fadedpez/caseclash/pkg/services/boxes"
	"github.com/fadedpez/caseclash/pkg/services/ledger"
)

// Battles is the battle API the handlers drive
type Battles interface {
	CreateBattle(ctx context.Context, req battle.CreateRequest) (*entities.BattleSession, error)
	JoinBattle(ctx context.Context, sessionID, userID string) (*entities.Participant, error)
	AddBot(ctx context.Context, sessionID string) (*entities.Participant, error)
	LeaveBattle(ctx context.Context, sessionID, userID string) (*entities.BattleSession, error)
	SetConnected(ctx context.Context, sessionID, userID string, connected bool) (*entities.BattleSession, error)
	AdvanceRound(ctx context.Context, sessionID string, round int) ([]entities.RoundOutcome, error)
	CancelBattle(ctx context.Context, sessionID, reason string) (*entities.BattleSession, error)
	GetBattle(ctx context.Context, sessionID string) (*entities.BattleSession, error)
	ListOpenBattles() []*entities.BattleSession
	Tick(ctx context.Context, sessionID string) (*entities.BattleSession, error)
}

// History looks up finished battles a user took part in
type History interface {
	UserHistory(ctx context.Context, userID string, limit int) ([]*battleRepo.BattleDocument, error)
}

// Deps are the services the API is built on. History is optional.
type Deps struct {
	Battles Battles
	Boxes   *boxes.Service
	Ledger  ledger.Ledger
	Broker  *notify.Broker
	History History
	Logger  *logging.Logger
}

// Server serves the HTTP and websocket API
type Server struct {
	battles Battles
	boxes   *boxes.Service
	ledger  ledger.Ledger
	broker  *notify.Broker
	history History
	logger  *logging.Logger

	writeTimeout time.Duration
	readTimeout  time.Duration
}

// NewServer creates the API server
func NewServer(deps Deps) *Server {
	logger := deps.Logger
	if logger == nil {
		logger = logging.Default
	}
	return &Server{
		battles:      deps.Battles,
		boxes:        deps.Boxes,
		ledger:       deps.Ledger,
		broker:       deps.Broker,
		history:      deps.History,
		logger:       logger.WithField("component", "httpapi"),
		writeTimeout: 3 * time.Second,
		readTimeout:  60 * time.Second,
	}
}

// Routes builds the router
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", Healthz)

	r.Route("/boxes", func(r chi.Router) {
		r.Get("/", s.ListBoxes)
		r.Post("/{boxID}/open", s.OpenBox)
	})

	r.Route("/wallets/{userID}", func(r chi.Router) {
		r.Get("/", s.GetWallet)
		r.Get("/transactions", s.ListTransactions)
	})

	r.Get("/users/{userID}/history", s.UserHistory)

	r.Route("/battles", func(r chi.Router) {
		r.Post("/", s.CreateBattle)
		r.Get("/", s.ListOpenBattles)
		r.Route("/{battleID}", func(r chi.Router) {
			r.Get("/", s.GetBattle)
			r.Post("/join", s.JoinBattle)
			r.Post("/bots", s.AddBot)
			r.Post("/leave", s.LeaveBattle)
			r.Post("/connection", s.SetConnected)
			r.Post("/rounds/{round}", s.AdvanceRound)
			r.Post("/cancel", s.CancelBattle)
			r.Post("/tick", s.Tick)
			r.Get("/ws", s.Stream)
		})
	})
	return r
}

// Healthz reports liveness
func Healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}
