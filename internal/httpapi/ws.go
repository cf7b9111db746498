package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"

	"github.com/coder/websocket"
	"github.com/go-chi/chi/v5"

	"github.com/fadedpez/caseclash/internal/logging"
	"github.com/fadedpez/caseclash/internal/types"
	"github.com/fadedpez/caseclash/pkg/notify"
)

// Message types written to stream clients besides battle events
const (
	MessageSnapshot = "snapshot"
	MessageError    = "error"
)

type clientMessage struct {
	Type  string `json:"type"`
	Round int    `json:"round"`
}

type errorMessage struct {
	Type    string          `json:"type"`
	Code    types.ErrorCode `json:"code"`
	Message string          `json:"message"`
}

// Stream pushes battle events over a websocket. A ?user= query marks that
// participant connected for the life of the socket.
func (s *Server) Stream(w http.ResponseWriter, r *http.Request) {
	battleID := chi.URLParam(r, "battleID")
	userID := r.URL.Query().Get("user")

	snapshot, err := s.battles.GetBattle(r.Context(), battleID)
	if err != nil {
		s.writeError(w, err)
		return
	}

	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close(websocket.StatusNormalClosure, "bye")

	logger := s.logger.WithFields(logging.Fields{"session_id": battleID, "user": userID})
	sub := s.broker.Subscribe(battleID)
	defer sub.Close()

	// the socket outlives the upgrade request's handlers
	ctx := context.WithoutCancel(r.Context())

	if userID != "" {
		if _, err := s.battles.SetConnected(ctx, battleID, userID, true); err != nil && !types.IsGameError(err, types.ErrPlayerNotFound) {
			logger.Debug("Connect not recorded: %v", err)
		}
		defer func() {
			if _, err := s.battles.SetConnected(ctx, battleID, userID, false); err != nil && !types.IsGameError(err, types.ErrPlayerNotFound) {
				logger.Debug("Disconnect not recorded: %v", err)
			}
		}()
	}

	var writeMu sync.Mutex
	write := func(v interface{}) error {
		payload, err := json.Marshal(v)
		if err != nil {
			return err
		}
		writeMu.Lock()
		defer writeMu.Unlock()
		wctx, cancel := context.WithTimeout(r.Context(), s.writeTimeout)
		defer cancel()
		return conn.Write(wctx, websocket.MessageText, payload)
	}

	if err := write(notify.Event{
		Type:      MessageSnapshot,
		SessionID: snapshot.ID,
		Version:   snapshot.Version,
		Status:    snapshot.Status,
		Round:     snapshot.CurrentRound,
		Snapshot:  snapshot,
	}); err != nil {
		return
	}

	// Writer goroutine
	writeCtx, writeCancel := context.WithCancel(r.Context())
	defer writeCancel()
	go func() {
		for {
			select {
			case <-writeCtx.Done():
				return
			case event, ok := <-sub.C():
				if !ok {
					// dropped for falling behind; the client reconnects for a fresh snapshot
					conn.Close(websocket.StatusTryAgainLater, "too slow")
					return
				}
				if err := write(event); err != nil {
					return
				}
			}
		}
	}()

	// Reader loop
	for {
		rctx, cancel := context.WithTimeout(r.Context(), s.readTimeout)
		_, data, err := conn.Read(rctx)
		cancel()
		if err != nil {
			switch websocket.CloseStatus(err) {
			case websocket.StatusNormalClosure, websocket.StatusGoingAway:
			default:
				logger.Debug("Stream closed: %v", err)
			}
			return
		}

		var msg clientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			_ = write(errorMessage{Type: MessageError, Code: types.ErrInvalidArgument, Message: "bad json"})
			continue
		}

		switch msg.Type {
		case "ping":
		case "advance":
			if _, err := s.battles.AdvanceRound(ctx, battleID, msg.Round); err != nil {
				_ = write(errorMessage{Type: MessageError, Code: types.CodeOf(err), Message: err.Error()})
			}
		default:
			_ = write(errorMessage{Type: MessageError, Code: types.ErrInvalidArgument, Message: "unknown type"})
		}
	}
}
