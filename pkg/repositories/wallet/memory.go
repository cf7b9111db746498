package wallet

import (
	"context"
	"sync"
	"time"

	"github.com/fadedpez/caseclash/pkg/entities"
	"github.com/google/uuid"
)

// MemoryRepository implements Repository using in-memory storage
type MemoryRepository struct {
	wallets      map[string]*entities.Wallet
	byUser       map[string]string
	transactions map[string][]*entities.Transaction
	byKey        map[string]*entities.Transaction
	now          func() time.Time
	mu           sync.RWMutex
}

// NewMemoryRepository creates a new in-memory wallet repository
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		wallets:      make(map[string]*entities.Wallet),
		byUser:       make(map[string]string),
		transactions: make(map[string][]*entities.Transaction),
		byKey:        make(map[string]*entities.Transaction),
		now:          time.Now,
	}
}

// GetWallet retrieves a wallet by wallet ID
func (r *MemoryRepository) GetWallet(ctx context.Context, walletID string) (*entities.Wallet, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	wallet, exists := r.wallets[walletID]
	if !exists {
		return nil, ErrWalletNotFound
	}

	walletCopy := *wallet
	return &walletCopy, nil
}

// GetWalletByUser retrieves the wallet owned by a user
func (r *MemoryRepository) GetWalletByUser(ctx context.Context, userID string) (*entities.Wallet, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	walletID, exists := r.byUser[userID]
	if !exists {
		return nil, ErrWalletNotFound
	}

	walletCopy := *r.wallets[walletID]
	return &walletCopy, nil
}

// CreateWallet stores a new wallet
func (r *MemoryRepository) CreateWallet(ctx context.Context, wallet *entities.Wallet) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byUser[wallet.UserID]; exists {
		return ErrWalletExists
	}
	if wallet.ID == "" {
		wallet.ID = uuid.New().String()
	}
	if wallet.CreatedAt.IsZero() {
		wallet.CreatedAt = r.now()
	}
	wallet.UpdatedAt = wallet.CreatedAt

	walletCopy := *wallet
	r.wallets[wallet.ID] = &walletCopy
	r.byUser[wallet.UserID] = wallet.ID
	return nil
}

// ApplyEntries applies every entry atomically under the write lock
func (r *MemoryRepository) ApplyEntries(ctx context.Context, entries []Entry) ([]*entities.Transaction, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	for _, entry := range entries {
		if err := entry.Validate(); err != nil {
			return nil, err
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	// Stage balances so a failure part way leaves nothing applied
	staged := make(map[string]int64)
	results := make([]*entities.Transaction, len(entries))
	pending := make([]int, 0, len(entries))
	seen := make(map[string]bool)

	for i, entry := range entries {
		if existing, ok := r.byKey[entry.IdempotencyKey]; ok {
			if !entry.Matches(existing) {
				return nil, ErrIdempotencyConflict
			}
			txCopy := *existing
			results[i] = &txCopy
			continue
		}
		if seen[entry.IdempotencyKey] {
			return nil, ErrIdempotencyConflict
		}
		seen[entry.IdempotencyKey] = true

		wallet, exists := r.wallets[entry.WalletID]
		if !exists {
			return nil, ErrWalletNotFound
		}
		balance, ok := staged[entry.WalletID]
		if !ok {
			balance = wallet.Balance
		}
		if balance+entry.Amount < 0 {
			return nil, &InsufficientFundsError{WalletID: entry.WalletID, Balance: balance, Required: -entry.Amount}
		}
		staged[entry.WalletID] = balance + entry.Amount
		pending = append(pending, i)
	}

	now := r.now()
	running := make(map[string]int64)
	applied := make(map[string]int64)
	for _, i := range pending {
		entry := entries[i]
		wallet := r.wallets[entry.WalletID]
		balance, ok := running[entry.WalletID]
		if !ok {
			balance = wallet.Balance
		}
		balance += entry.Amount
		running[entry.WalletID] = balance
		applied[entry.WalletID]++

		tx := &entities.Transaction{
			ID:              uuid.New().String(),
			WalletID:        entry.WalletID,
			Kind:            entry.Kind,
			Amount:          entry.Amount,
			RelatedEntityID: entry.RelatedEntityID,
			IdempotencyKey:  entry.IdempotencyKey,
			Description:     entry.Description,
			BalanceAfter:    balance,
			Timestamp:       now,
		}
		r.transactions[entry.WalletID] = append(r.transactions[entry.WalletID], tx)
		r.byKey[entry.IdempotencyKey] = tx

		txCopy := *tx
		results[i] = &txCopy
	}

	for walletID, balance := range running {
		wallet := r.wallets[walletID]
		wallet.Balance = balance
		wallet.Version += applied[walletID]
		wallet.UpdatedAt = now
	}

	return results, nil
}

// GetTransactions retrieves recent transactions for a wallet, newest first
func (r *MemoryRepository) GetTransactions(ctx context.Context, walletID string, limit int) ([]*entities.Transaction, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	transactions := r.transactions[walletID]
	if limit <= 0 || limit > len(transactions) {
		limit = len(transactions)
	}

	result := make([]*entities.Transaction, 0, limit)
	for i := len(transactions) - 1; i >= 0 && len(result) < limit; i-- {
		txCopy := *transactions[i]
		result = append(result, &txCopy)
	}

	return result, nil
}

// FindByIdempotencyKey retrieves the transaction committed under key
func (r *MemoryRepository) FindByIdempotencyKey(ctx context.Context, key string) (*entities.Transaction, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	tx, exists := r.byKey[key]
	if !exists {
		return nil, ErrTransactionNotFound
	}
	txCopy := *tx
	return &txCopy, nil
}
