package types

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/suite"
)

type ErrorTestSuite struct {
	suite.Suite
}

func TestErrorSuite(t *testing.T) {
	suite.Run(t, new(ErrorTestSuite))
}

func (s *ErrorTestSuite) TestNewGameError() {
	err := NewGameError(ErrBattleFull, "battle is full")

	s.Equal(ErrBattleFull, err.Code, "Error code should match")
	s.Equal("battle is full", err.Message, "Error message should match")
	s.Nil(err.Err, "Underlying error should be nil")
}

func (s *ErrorTestSuite) TestWrapError() {
	underlying := errors.New("connection refused")

	err := WrapError(ErrLedgerUnavailable, "ledger unavailable", underlying)

	s.Equal(ErrLedgerUnavailable, err.Code)
	s.Equal("ledger unavailable", err.Message)
	s.Equal(underlying, err.Err)
	s.ErrorIs(err, underlying, "Wrapped error should unwrap to the cause")
}

func (s *ErrorTestSuite) TestErrorString() {
	testCases := []struct {
		name     string
		err      *GameError
		expected string
	}{
		{
			name:     "Simple error",
			err:      NewGameError(ErrBattleNotFound, "battle not found"),
			expected: "BATTLE_NOT_FOUND: battle not found",
		},
		{
			name:     "Wrapped error",
			err:      WrapError(ErrSettlementFailure, "entry fees not collected", errors.New("tx aborted")),
			expected: "SETTLEMENT_FAILURE: entry fees not collected (tx aborted)",
		},
	}

	for _, tc := range testCases {
		s.Run(tc.name, func() {
			s.Equal(tc.expected, tc.err.Error())
		})
	}
}

func (s *ErrorTestSuite) TestIsGameError() {
	gameErr := NewGameError(ErrBattleFull, "battle is full")

	testCases := []struct {
		name     string
		err      error
		code     ErrorCode
		expected bool
	}{
		{name: "Matching game error", err: gameErr, code: ErrBattleFull, expected: true},
		{name: "Non-matching game error", err: gameErr, code: ErrInternalError, expected: false},
		{name: "Wrapped game error", err: fmt.Errorf("join: %w", gameErr), code: ErrBattleFull, expected: true},
		{name: "Regular error", err: errors.New("regular error"), code: ErrBattleFull, expected: false},
		{name: "Nil error", err: nil, code: ErrBattleFull, expected: false},
	}

	for _, tc := range testCases {
		s.Run(tc.name, func() {
			s.Equal(tc.expected, IsGameError(tc.err, tc.code))
		})
	}
}

func (s *ErrorTestSuite) TestAs() {
	gameErr := NewGameError(ErrBattleNotFound, "battle not found")

	var target *GameError
	s.True(As(fmt.Errorf("lookup: %w", gameErr), &target))
	s.Equal(gameErr, target)

	target = nil
	s.False(As(errors.New("regular error"), &target))
	s.Nil(target)
	s.False(As(nil, &target))
}

func (s *ErrorTestSuite) TestCodeOf() {
	s.Equal(ErrRoundPending, CodeOf(NewGameError(ErrRoundPending, "waiting")))
	s.Equal(ErrInternalError, CodeOf(errors.New("boom")))
}
