package types

import (
	"errors"
	"fmt"
)

// ErrorCode represents a specific error type
type ErrorCode string

const (
	// Ledger errors
	ErrInsufficientFunds   ErrorCode = "INSUFFICIENT_FUNDS"
	ErrLedgerUnavailable   ErrorCode = "LEDGER_UNAVAILABLE"
	ErrIdempotencyConflict ErrorCode = "IDEMPOTENCY_CONFLICT"
	ErrSettlementFailure   ErrorCode = "SETTLEMENT_FAILURE"
	ErrWalletNotFound      ErrorCode = "WALLET_NOT_FOUND"

	// Box errors
	ErrInvalidBoxConfig ErrorCode = "INVALID_BOX_CONFIG"
	ErrBoxNotFound      ErrorCode = "BOX_NOT_FOUND"

	// Battle errors
	ErrBattleNotFound                 ErrorCode = "BATTLE_NOT_FOUND"
	ErrBattleFull                     ErrorCode = "BATTLE_FULL"
	ErrBattleAlreadyStarted           ErrorCode = "BATTLE_ALREADY_STARTED"
	ErrAlreadyJoined                  ErrorCode = "ALREADY_JOINED"
	ErrPlayerNotFound                 ErrorCode = "PLAYER_NOT_FOUND"
	ErrRoundPending                   ErrorCode = "ROUND_PENDING"
	ErrParticipantDisconnectTimeout   ErrorCode = "PARTICIPANT_DISCONNECT_TIMEOUT"
	ErrConcurrentModificationConflict ErrorCode = "CONCURRENT_MODIFICATION"
	ErrInvalidState                   ErrorCode = "INVALID_STATE"

	// Request errors
	ErrInvalidArgument ErrorCode = "INVALID_ARGUMENT"

	// System errors
	ErrInternalError ErrorCode = "INTERNAL_ERROR"
	ErrDatabaseError ErrorCode = "DATABASE_ERROR"
)

// GameError represents a domain error surfaced to callers of the core API
type GameError struct {
	Code    ErrorCode
	Message string
	Err     error // Underlying error, if any
}

// Error implements the error interface
func (e *GameError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (%v)", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error
func (e *GameError) Unwrap() error {
	return e.Err
}

// NewGameError creates a new GameError
func NewGameError(code ErrorCode, message string) *GameError {
	return &GameError{
		Code:    code,
		Message: message,
	}
}

// WrapError wraps an existing error in a GameError
func WrapError(code ErrorCode, message string, err error) *GameError {
	return &GameError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// IsGameError checks if an error is, or wraps, a GameError with a specific code
func IsGameError(err error, code ErrorCode) bool {
	var gameErr *GameError
	if err == nil {
		return false
	}
	if ok := As(err, &gameErr); !ok {
		return false
	}
	return gameErr.Code == code
}

// As finds the first GameError in err's chain
func As(err error, target **GameError) bool {
	if target == nil {
		return false
	}
	return errors.As(err, target)
}

// CodeOf returns the code of the first GameError in err's chain, or ErrInternalError
func CodeOf(err error) ErrorCode {
	var gameErr *GameError
	if As(err, &gameErr) {
		return gameErr.Code
	}
	return ErrInternalError
}
