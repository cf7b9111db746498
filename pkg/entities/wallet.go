package entities

import (
	"time"
)

// Wallet holds a user's virtual currency balance
type Wallet struct {
	ID        string    // Unique identifier
	UserID    string    // Owning user, one wallet per user
	Balance   int64     // Current balance, never negative
	Version   int64     // Incremented on every balance change
	CreatedAt time.Time // When the wallet was opened
	UpdatedAt time.Time // When the balance last changed
}

// TransactionKind represents the reason for a ledger entry
type TransactionKind string

const (
	TransactionKindDeposit  TransactionKind = "DEPOSIT"
	TransactionKindEntryFee TransactionKind = "ENTRY_FEE"
	TransactionKindPayout   TransactionKind = "PAYOUT"
	TransactionKindRefund   TransactionKind = "REFUND"
	TransactionKindBoxOpen  TransactionKind = "BOX_OPEN"
	TransactionKindExchange TransactionKind = "EXCHANGE"
)

// Transaction is an immutable ledger row
type Transaction struct {
	ID              string          // Unique identifier
	WalletID        string          // Wallet the amount was applied to
	Kind            TransactionKind // Reason for the entry
	Amount          int64           // Positive for credits, negative for debits
	RelatedEntityID string          // Battle session, box or round this entry belongs to
	IdempotencyKey  string          // Caller supplied key, unique across the ledger
	Description     string          // Human-readable description
	BalanceAfter    int64           // Balance after this transaction
	Timestamp       time.Time       // When the transaction was committed
}
