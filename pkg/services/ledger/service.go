package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/fadedpez/caseclash/internal/logging"
	"github.com/fadedpez/caseclash/internal/types"
	"github.com/fadedpez/caseclash/pkg/entities"
	walletRepo "github.com/fadedpez/caseclash/pkg/repositories/wallet"
)

// Service handles wallet business logic on top of a wallet repository
type Service struct {
	repo            walletRepo.Repository
	startingBalance int64
	maxTries        uint
	initialBackoff  time.Duration
	maxBackoff      time.Duration
	logger          *logging.Logger
}

// Option configures a Service
type Option func(*Service)

// WithStartingBalance sets the deposit granted to newly created wallets
func WithStartingBalance(amount int64) Option {
	return func(s *Service) { s.startingBalance = amount }
}

// WithRetry sets how often a transiently failing write is attempted
func WithRetry(maxTries uint, initial, max time.Duration) Option {
	return func(s *Service) {
		s.maxTries = maxTries
		s.initialBackoff = initial
		s.maxBackoff = max
	}
}

// WithLogger overrides the default logger
func WithLogger(logger *logging.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

// NewService creates a new ledger service
func NewService(repo walletRepo.Repository, opts ...Option) *Service {
	s := &Service{
		repo:           repo,
		maxTries:       5,
		initialBackoff: 50 * time.Millisecond,
		maxBackoff:     2 * time.Second,
		logger:         logging.Default.WithField("component", "ledger"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// GetOrCreateWallet retrieves a user's wallet or opens one with the starting balance
func (s *Service) GetOrCreateWallet(ctx context.Context, userID string) (*entities.Wallet, bool, error) {
	if userID == "" {
		return nil, false, types.NewGameError(types.ErrInvalidArgument, "user id is required")
	}

	created := false
	wallet, err := s.repo.GetWalletByUser(ctx, userID)
	if errors.Is(err, walletRepo.ErrWalletNotFound) {
		wallet = &entities.Wallet{UserID: userID}
		err = s.repo.CreateWallet(ctx, wallet)
		switch {
		case err == nil:
			created = true
			s.logger.WithFields(logging.Fields{"wallet": wallet.ID, "user": userID}).Info("Opened wallet")
		case errors.Is(err, walletRepo.ErrWalletExists):
			wallet, err = s.repo.GetWalletByUser(ctx, userID)
		}
	}
	if err != nil {
		return nil, false, s.mapError(err, "failed to load wallet")
	}

	// Version 0 means the opening deposit has not landed yet
	if s.startingBalance > 0 && wallet.Version == 0 {
		_, err := s.Credit(ctx, Posting{
			WalletID:       wallet.ID,
			Kind:           entities.TransactionKindDeposit,
			Amount:         s.startingBalance,
			IdempotencyKey: fmt.Sprintf("wallet:%s:opening", userID),
			Description:    "Opening balance",
		})
		if err != nil {
			return nil, false, err
		}
		if wallet, err = s.GetWallet(ctx, wallet.ID); err != nil {
			return nil, false, err
		}
	}

	return wallet, created, nil
}

// GetWallet returns the wallet with the given ID
func (s *Service) GetWallet(ctx context.Context, walletID string) (*entities.Wallet, error) {
	wallet, err := s.repo.GetWallet(ctx, walletID)
	if err != nil {
		return nil, s.mapError(err, "failed to load wallet")
	}
	return wallet, nil
}

// Debit removes funds from a wallet, failing if the balance would go negative
func (s *Service) Debit(ctx context.Context, posting Posting) (*entities.Transaction, error) {
	posting.Direction = Debit
	txs, err := s.PostBatch(ctx, []Posting{posting})
	if err != nil {
		return nil, err
	}
	return txs[0], nil
}

// Credit adds funds to a wallet
func (s *Service) Credit(ctx context.Context, posting Posting) (*entities.Transaction, error) {
	posting.Direction = Credit
	txs, err := s.PostBatch(ctx, []Posting{posting})
	if err != nil {
		return nil, err
	}
	return txs[0], nil
}

// AtomicExchange debits and credits one wallet together, both or neither
func (s *Service) AtomicExchange(ctx context.Context, exchange Exchange) ([]*entities.Transaction, error) {
	if exchange.IdempotencyKey == "" {
		return nil, types.NewGameError(types.ErrInvalidArgument, "idempotency key is required")
	}
	postings := []Posting{{
		WalletID:        exchange.WalletID,
		Direction:       Debit,
		Kind:            exchange.DebitKind,
		Amount:          exchange.DebitAmount,
		RelatedEntityID: exchange.RelatedEntityID,
		IdempotencyKey:  exchange.IdempotencyKey + ":debit",
		Description:     exchange.Description,
	}}
	if exchange.CreditAmount > 0 {
		postings = append(postings, Posting{
			WalletID:        exchange.WalletID,
			Direction:       Credit,
			Kind:            exchange.CreditKind,
			Amount:          exchange.CreditAmount,
			RelatedEntityID: exchange.RelatedEntityID,
			IdempotencyKey:  exchange.IdempotencyKey + ":credit",
			Description:     exchange.Description,
		})
	}
	return s.PostBatch(ctx, postings)
}

// PostBatch applies every posting or none of them
func (s *Service) PostBatch(ctx context.Context, postings []Posting) ([]*entities.Transaction, error) {
	if len(postings) == 0 {
		return []*entities.Transaction{}, nil
	}

	entries := make([]walletRepo.Entry, len(postings))
	for i, p := range postings {
		if p.Amount <= 0 {
			return nil, types.NewGameError(types.ErrInvalidArgument,
				fmt.Sprintf("posting amount must be positive (got %d)", p.Amount))
		}
		if p.IdempotencyKey == "" {
			return nil, types.NewGameError(types.ErrInvalidArgument, "idempotency key is required")
		}
		amount := p.Amount
		switch p.Direction {
		case Debit:
			amount = -amount
		case Credit:
		default:
			return nil, types.NewGameError(types.ErrInvalidArgument, "posting direction is required")
		}
		entries[i] = walletRepo.Entry{
			WalletID:        p.WalletID,
			Kind:            p.Kind,
			Amount:          amount,
			RelatedEntityID: p.RelatedEntityID,
			IdempotencyKey:  p.IdempotencyKey,
			Description:     p.Description,
		}
	}

	txs, err := s.apply(ctx, entries)
	if err != nil {
		return nil, s.mapError(err, "failed to post ledger entries")
	}
	return txs, nil
}

// Transactions returns a wallet's most recent ledger rows
func (s *Service) Transactions(ctx context.Context, walletID string, limit int) ([]*entities.Transaction, error) {
	txs, err := s.repo.GetTransactions(ctx, walletID, limit)
	if err != nil {
		return nil, s.mapError(err, "failed to load transactions")
	}
	return txs, nil
}

// FindTransaction returns the row committed under an idempotency key, or nil if none was
func (s *Service) FindTransaction(ctx context.Context, idempotencyKey string) (*entities.Transaction, error) {
	tx, err := s.repo.FindByIdempotencyKey(ctx, idempotencyKey)
	if errors.Is(err, walletRepo.ErrTransactionNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, s.mapError(err, "failed to look up transaction")
	}
	return tx, nil
}

// apply retries transient store failures with exponential backoff
func (s *Service) apply(ctx context.Context, entries []walletRepo.Entry) ([]*entities.Transaction, error) {
	attempt := 0
	operation := func() ([]*entities.Transaction, error) {
		attempt++
		txs, err := s.repo.ApplyEntries(ctx, entries)
		if err == nil {
			return txs, nil
		}
		if errors.Is(err, walletRepo.ErrUnavailable) {
			s.logger.WithField("attempt", attempt).Warn("Ledger store unavailable, retrying: %v", err)
			return nil, err
		}
		return nil, backoff.Permanent(err)
	}

	expo := backoff.NewExponentialBackOff()
	expo.InitialInterval = s.initialBackoff
	expo.MaxInterval = s.maxBackoff

	return backoff.Retry(ctx, operation,
		backoff.WithBackOff(expo),
		backoff.WithMaxTries(s.maxTries),
	)
}

// mapError converts repository errors into GameErrors
func (s *Service) mapError(err error, message string) error {
	var insufficient *walletRepo.InsufficientFundsError
	switch {
	case errors.As(err, &insufficient):
		return types.WrapError(types.ErrInsufficientFunds,
			fmt.Sprintf("wallet %s cannot cover %d", insufficient.WalletID, insufficient.Required), err)
	case errors.Is(err, walletRepo.ErrInsufficientFunds):
		return types.WrapError(types.ErrInsufficientFunds, message, err)
	case errors.Is(err, walletRepo.ErrWalletNotFound):
		return types.WrapError(types.ErrWalletNotFound, message, err)
	case errors.Is(err, walletRepo.ErrIdempotencyConflict):
		return types.WrapError(types.ErrIdempotencyConflict, message, err)
	case errors.Is(err, walletRepo.ErrInvalidEntry):
		return types.WrapError(types.ErrInvalidArgument, message, err)
	case errors.Is(err, walletRepo.ErrUnavailable),
		errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, context.Canceled):
		return types.WrapError(types.ErrLedgerUnavailable, message, err)
	}
	s.logger.WithField("error", err.Error()).Error("Unexpected ledger failure")
	return types.WrapError(types.ErrDatabaseError, message, err)
}

// InsufficientWallet returns the wallet named by an insufficient funds error
func InsufficientWallet(err error) (string, bool) {
	var insufficient *walletRepo.InsufficientFundsError
	if errors.As(err, &insufficient) {
		return insufficient.WalletID, true
	}
	return "", false
}
