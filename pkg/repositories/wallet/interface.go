package wallet

import (
	"context"
	"errors"
	"fmt"

	"github.com/fadedpez/caseclash/pkg/entities"
)

//go:generate mockgen -source=$GOFILE -destination=mock/mock.go -package=mock_wallet

var (
	ErrWalletNotFound      = errors.New("wallet not found")
	ErrWalletExists        = errors.New("wallet already exists for user")
	ErrInsufficientFunds   = errors.New("insufficient funds")
	ErrIdempotencyConflict = errors.New("idempotency key reused with different parameters")
	ErrUnavailable         = errors.New("wallet store temporarily unavailable")
	ErrInvalidEntry        = errors.New("invalid ledger entry")
	ErrTransactionNotFound = errors.New("transaction not found")
)

// InsufficientFundsError names the wallet that could not cover its entry
type InsufficientFundsError struct {
	WalletID string
	Balance  int64
	Required int64
}

func (e *InsufficientFundsError) Error() string {
	return fmt.Sprintf("insufficient funds in wallet %s: balance %d, required %d", e.WalletID, e.Balance, e.Required)
}

// Is lets errors.Is match ErrInsufficientFunds
func (e *InsufficientFundsError) Is(target error) bool {
	return target == ErrInsufficientFunds
}

// Entry is one signed balance change to apply to a wallet
type Entry struct {
	WalletID        string
	Kind            entities.TransactionKind
	Amount          int64
	RelatedEntityID string
	IdempotencyKey  string
	Description     string
}

// Validate checks the entry can be posted
func (e Entry) Validate() error {
	if e.WalletID == "" {
		return fmt.Errorf("%w: wallet id is required", ErrInvalidEntry)
	}
	if e.IdempotencyKey == "" {
		return fmt.Errorf("%w: idempotency key is required", ErrInvalidEntry)
	}
	if e.Amount == 0 {
		return fmt.Errorf("%w: amount cannot be zero", ErrInvalidEntry)
	}
	return nil
}

// Matches reports whether an existing transaction was produced by this entry
func (e Entry) Matches(tx *entities.Transaction) bool {
	return tx.WalletID == e.WalletID && tx.Amount == e.Amount && tx.Kind == e.Kind
}

// Repository defines the interface for wallet data operations
type Repository interface {
	// GetWallet retrieves a wallet by wallet ID
	GetWallet(ctx context.Context, walletID string) (*entities.Wallet, error)

	// GetWalletByUser retrieves the wallet owned by a user
	GetWalletByUser(ctx context.Context, userID string) (*entities.Wallet, error)

	// CreateWallet stores a new wallet, failing with ErrWalletExists if the user has one
	CreateWallet(ctx context.Context, wallet *entities.Wallet) error

	// ApplyEntries applies every entry in one atomic unit and returns the
	// resulting transactions in entry order. An entry whose idempotency key was
	// already committed with the same parameters is not reapplied and its
	// original transaction is returned instead.
	ApplyEntries(ctx context.Context, entries []Entry) ([]*entities.Transaction, error)

	// GetTransactions retrieves recent transactions for a wallet, newest first
	GetTransactions(ctx context.Context, walletID string, limit int) ([]*entities.Transaction, error)

	// FindByIdempotencyKey retrieves the transaction committed under key
	FindByIdempotencyKey(ctx context.Context, key string) (*entities.Transaction, error)
}
