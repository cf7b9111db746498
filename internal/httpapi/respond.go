package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/fadedpez/caseclash/internal/types"
)

type errorBody struct {
	Code    types.ErrorCode `json:"code"`
	Message string          `json:"message"`
}

// statusFor maps an error code to the HTTP status returned for it
func statusFor(code types.ErrorCode) int {
	switch code {
	case types.ErrInvalidArgument, types.ErrInvalidBoxConfig:
		return http.StatusBadRequest
	case types.ErrInsufficientFunds:
		return http.StatusPaymentRequired
	case types.ErrBattleNotFound, types.ErrBoxNotFound, types.ErrWalletNotFound, types.ErrPlayerNotFound:
		return http.StatusNotFound
	case types.ErrBattleFull, types.ErrBattleAlreadyStarted, types.ErrAlreadyJoined,
		types.ErrInvalidState, types.ErrIdempotencyConflict, types.ErrConcurrentModificationConflict:
		return http.StatusConflict
	case types.ErrRoundPending:
		return http.StatusTooEarly
	case types.ErrLedgerUnavailable, types.ErrSettlementFailure:
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Warn("Failed to write response: %v", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	code := types.CodeOf(err)
	status := statusFor(code)

	message := err.Error()
	var gameErr *types.GameError
	if types.As(err, &gameErr) {
		message = gameErr.Message
	}
	if status >= http.StatusInternalServerError {
		s.logger.LogError(err)
	}
	s.writeJSON(w, status, errorBody{Code: code, Message: message})
}

// decode reads a JSON body into v. An empty body leaves v untouched.
func decode(r *http.Request, v interface{}) error {
	if r.Body == nil {
		return nil
	}
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return types.WrapError(types.ErrInvalidArgument, "malformed request body", err)
	}
	return nil
}
