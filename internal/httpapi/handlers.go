package httpapi

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/fadedpez/caseclash/internal/types"
	"github.com/fadedpez/caseclash/pkg/battle"
	"github.com/fadedpez/caseclash/pkg/entities"
	"github.com/fadedpez/caseclash/pkg/services/boxes"
)

const (
	defaultTransactionLimit = 50
	defaultHistoryLimit     = 20
	maxListLimit            = 200
)

type createBattleRequest struct {
	Mode       entities.Mode `json:"mode"`
	Boxes      []string      `json:"boxes"`
	EntryCost  int64         `json:"entry_cost"`
	MaxPlayers int           `json:"max_players"`
	TeamCount  int           `json:"team_count"`
	Private    bool          `json:"private"`
	CreatorID  string        `json:"creator_id"`
}

type userRequest struct {
	UserID string `json:"user_id"`
}

type connectionRequest struct {
	UserID    string `json:"user_id"`
	Connected bool   `json:"connected"`
}

type cancelRequest struct {
	Reason string `json:"reason"`
}

type openBoxRequest struct {
	UserID         string `json:"user_id"`
	IdempotencyKey string `json:"idempotency_key"`
	SellBack       bool   `json:"sell_back"`
}

type roundResponse struct {
	Round    int                     `json:"round"`
	Outcomes []entities.RoundOutcome `json:"outcomes"`
}

type walletResponse struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Balance   int64     `json:"balance"`
	UpdatedAt time.Time `json:"updated_at"`
}

type transactionResponse struct {
	ID              string                   `json:"id"`
	Kind            entities.TransactionKind `json:"kind"`
	Amount          int64                    `json:"amount"`
	RelatedEntityID string                   `json:"related_entity_id,omitempty"`
	Description     string                   `json:"description"`
	BalanceAfter    int64                    `json:"balance_after"`
	Timestamp       time.Time                `json:"timestamp"`
}

type openingResponse struct {
	BoxID        string                `json:"box_id"`
	Item         entities.Item         `json:"item"`
	Replayed     bool                  `json:"replayed"`
	Transactions []transactionResponse `json:"transactions"`
}

func toWallet(w *entities.Wallet) walletResponse {
	return walletResponse{ID: w.ID, UserID: w.UserID, Balance: w.Balance, UpdatedAt: w.UpdatedAt}
}

func toTransactions(txs []*entities.Transaction) []transactionResponse {
	out := make([]transactionResponse, 0, len(txs))
	for _, tx := range txs {
		out = append(out, transactionResponse{
			ID:              tx.ID,
			Kind:            tx.Kind,
			Amount:          tx.Amount,
			RelatedEntityID: tx.RelatedEntityID,
			Description:     tx.Description,
			BalanceAfter:    tx.BalanceAfter,
			Timestamp:       tx.Timestamp,
		})
	}
	return out
}

// limitParam reads ?limit=, falling back to def and capping at maxListLimit
func limitParam(r *http.Request, def int) (int, error) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return def, nil
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit <= 0 {
		return 0, types.NewGameError(types.ErrInvalidArgument, "limit must be a positive integer")
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	return limit, nil
}

// CreateBattle opens a new lobby
func (s *Server) CreateBattle(w http.ResponseWriter, r *http.Request) {
	var req createBattleRequest
	if err := decode(r, &req); err != nil {
		s.writeError(w, err)
		return
	}

	session, err := s.battles.CreateBattle(r.Context(), battle.CreateRequest{
		Mode:        req.Mode,
		BoxSequence: req.Boxes,
		EntryCost:   req.EntryCost,
		MaxPlayers:  req.MaxPlayers,
		TeamCount:   req.TeamCount,
		IsPrivate:   req.Private,
		CreatorID:   req.CreatorID,
	})
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, session)
}

// ListOpenBattles lists public lobbies
func (s *Server) ListOpenBattles(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.battles.ListOpenBattles())
}

// GetBattle returns a battle snapshot
func (s *Server) GetBattle(w http.ResponseWriter, r *http.Request) {
	session, err := s.battles.GetBattle(r.Context(), chi.URLParam(r, "battleID"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, session)
}

// JoinBattle seats a user
func (s *Server) JoinBattle(w http.ResponseWriter, r *http.Request) {
	var req userRequest
	if err := decode(r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	participant, err := s.battles.JoinBattle(r.Context(), chi.URLParam(r, "battleID"), req.UserID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, participant)
}

// AddBot seats a bot
func (s *Server) AddBot(w http.ResponseWriter, r *http.Request) {
	participant, err := s.battles.AddBot(r.Context(), chi.URLParam(r, "battleID"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, participant)
}

// LeaveBattle frees a user's seat
func (s *Server) LeaveBattle(w http.ResponseWriter, r *http.Request) {
	var req userRequest
	if err := decode(r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	session, err := s.battles.LeaveBattle(r.Context(), chi.URLParam(r, "battleID"), req.UserID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, session)
}

// SetConnected reports a client connection change
func (s *Server) SetConnected(w http.ResponseWriter, r *http.Request) {
	var req connectionRequest
	if err := decode(r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	session, err := s.battles.SetConnected(r.Context(), chi.URLParam(r, "battleID"), req.UserID, req.Connected)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, session)
}

// AdvanceRound plays or replays a round
func (s *Server) AdvanceRound(w http.ResponseWriter, r *http.Request) {
	round, err := strconv.Atoi(chi.URLParam(r, "round"))
	if err != nil {
		s.writeError(w, types.NewGameError(types.ErrInvalidArgument, "round must be an integer"))
		return
	}
	outcomes, err := s.battles.AdvanceRound(r.Context(), chi.URLParam(r, "battleID"), round)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, roundResponse{Round: round, Outcomes: outcomes})
}

// CancelBattle cancels and refunds a battle
func (s *Server) CancelBattle(w http.ResponseWriter, r *http.Request) {
	var req cancelRequest
	if err := decode(r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	session, err := s.battles.CancelBattle(r.Context(), chi.URLParam(r, "battleID"), req.Reason)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, session)
}

// Tick applies due deadlines to a battle
func (s *Server) Tick(w http.ResponseWriter, r *http.Request) {
	session, err := s.battles.Tick(r.Context(), chi.URLParam(r, "battleID"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, session)
}

// ListBoxes returns the box catalog
func (s *Server) ListBoxes(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.boxes.Catalog().Boxes())
}

// OpenBox opens a single box for a user
func (s *Server) OpenBox(w http.ResponseWriter, r *http.Request) {
	var req openBoxRequest
	if err := decode(r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	wallet, _, err := s.ledger.GetOrCreateWallet(r.Context(), req.UserID)
	if err != nil {
		s.writeError(w, err)
		return
	}

	opening, err := s.boxes.OpenLootBox(r.Context(), boxes.OpenRequest{
		WalletID:       wallet.ID,
		BoxID:          chi.URLParam(r, "boxID"),
		IdempotencyKey: req.IdempotencyKey,
		SellBack:       req.SellBack,
	})
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, openingResponse{
		BoxID:        opening.Box.ID,
		Item:         opening.Item,
		Replayed:     opening.Replayed,
		Transactions: toTransactions(opening.Transactions),
	})
}

// GetWallet returns a user's wallet, opening it on first use
func (s *Server) GetWallet(w http.ResponseWriter, r *http.Request) {
	wallet, _, err := s.ledger.GetOrCreateWallet(r.Context(), chi.URLParam(r, "userID"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, toWallet(wallet))
}

// ListTransactions returns a user's most recent ledger entries
func (s *Server) ListTransactions(w http.ResponseWriter, r *http.Request) {
	limit, err := limitParam(r, defaultTransactionLimit)
	if err != nil {
		s.writeError(w, err)
		return
	}
	wallet, _, err := s.ledger.GetOrCreateWallet(r.Context(), chi.URLParam(r, "userID"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	txs, err := s.ledger.Transactions(r.Context(), wallet.ID, limit)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, toTransactions(txs))
}

// UserHistory returns the finished battles a user played in
func (s *Server) UserHistory(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		s.writeJSON(w, http.StatusNotImplemented, errorBody{Code: types.ErrInternalError, Message: "battle history is not enabled"})
		return
	}
	limit, err := limitParam(r, defaultHistoryLimit)
	if err != nil {
		s.writeError(w, err)
		return
	}
	docs, err := s.history.UserHistory(r.Context(), chi.URLParam(r, "userID"), limit)
	if err != nil {
		s.writeError(w, types.WrapError(types.ErrDatabaseError, "failed to search battle history", err))
		return
	}
	s.writeJSON(w, http.StatusOK, docs)
}
