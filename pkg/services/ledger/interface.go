package ledger

import (
	"context"

	"github.com/fadedpez/caseclash/pkg/entities"
)

// Direction says whether a posting removes or adds funds
type Direction int

const (
	Debit Direction = iota + 1
	Credit
)

// Posting is a request to move an amount in or out of one wallet
type Posting struct {
	WalletID        string
	Direction       Direction
	Kind            entities.TransactionKind
	Amount          int64 // magnitude, must be positive
	RelatedEntityID string
	IdempotencyKey  string
	Description     string
}

//go:generate mockgen -source=$GOFILE -destination=mock/mock.go -package=mock_ledger

// Ledger is the only component allowed to change wallet balances
type Ledger interface {
	GetOrCreateWallet(ctx context.Context, userID string) (*entities.Wallet, bool, error)
	GetWallet(ctx context.Context, walletID string) (*entities.Wallet, error)
	Debit(ctx context.Context, posting Posting) (*entities.Transaction, error)
	Credit(ctx context.Context, posting Posting) (*entities.Transaction, error)
	AtomicExchange(ctx context.Context, exchange Exchange) ([]*entities.Transaction, error)
	PostBatch(ctx context.Context, postings []Posting) ([]*entities.Transaction, error)
	Transactions(ctx context.Context, walletID string, limit int) ([]*entities.Transaction, error)
	// FindTransaction returns the row committed under an idempotency key, or nil if none was
	FindTransaction(ctx context.Context, idempotencyKey string) (*entities.Transaction, error)
}

// Exchange debits and credits the same wallet in one atomic step
type Exchange struct {
	WalletID        string
	DebitAmount     int64
	DebitKind       entities.TransactionKind
	CreditAmount    int64
	CreditKind      entities.TransactionKind
	RelatedEntityID string
	IdempotencyKey  string
	Description     string
}
