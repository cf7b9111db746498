package wallet

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fadedpez/caseclash/pkg/entities"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgreSQL error codes treated as retryable
const (
	pgUniqueViolation      = "23505"
	pgSerializationFailure = "40001"
	pgDeadlockDetected     = "40P01"
)

// PostgresRepository implements Repository on a pgx connection pool
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository creates a repository over an already migrated database
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// GetWallet retrieves a wallet by wallet ID
func (r *PostgresRepository) GetWallet(ctx context.Context, walletID string) (*entities.Wallet, error) {
	query := `SELECT id, user_id, balance, version, created_at, updated_at FROM wallets WHERE id = $1`
	return scanPgWallet(r.db.QueryRow(ctx, query, walletID))
}

// GetWalletByUser retrieves the wallet owned by a user
func (r *PostgresRepository) GetWalletByUser(ctx context.Context, userID string) (*entities.Wallet, error) {
	query := `SELECT id, user_id, balance, version, created_at, updated_at FROM wallets WHERE user_id = $1`
	return scanPgWallet(r.db.QueryRow(ctx, query, userID))
}

// CreateWallet stores a new wallet
func (r *PostgresRepository) CreateWallet(ctx context.Context, wallet *entities.Wallet) error {
	if wallet.ID == "" {
		wallet.ID = uuid.New().String()
	}
	if wallet.CreatedAt.IsZero() {
		wallet.CreatedAt = time.Now().UTC()
	}
	wallet.UpdatedAt = wallet.CreatedAt

	_, err := r.db.Exec(ctx, `
		INSERT INTO wallets (id, user_id, balance, version, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, wallet.ID, wallet.UserID, wallet.Balance, wallet.Version, wallet.CreatedAt, wallet.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return ErrWalletExists
		}
		return classifyPg(fmt.Errorf("error creating wallet: %w", err))
	}
	return nil
}

// ApplyEntries locks each touched wallet row and applies the entries in one transaction
func (r *PostgresRepository) ApplyEntries(ctx context.Context, entries []Entry) ([]*entities.Transaction, error) {
	for _, entry := range entries {
		if err := entry.Validate(); err != nil {
			return nil, err
		}
	}

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, classifyPg(fmt.Errorf("error beginning transaction: %w", err))
	}
	defer tx.Rollback(ctx)

	results := make([]*entities.Transaction, len(entries))
	seen := make(map[string]bool)

	for i, entry := range entries {
		existing, err := findPgByKey(ctx, tx, entry.IdempotencyKey)
		if err == nil {
			if !entry.Matches(existing) {
				return nil, ErrIdempotencyConflict
			}
			results[i] = existing
			continue
		}
		if !errors.Is(err, ErrTransactionNotFound) {
			return nil, classifyPg(err)
		}
		if seen[entry.IdempotencyKey] {
			return nil, ErrIdempotencyConflict
		}
		seen[entry.IdempotencyKey] = true

		var current int64
		err = tx.QueryRow(ctx, `SELECT balance FROM wallets WHERE id = $1 FOR UPDATE`, entry.WalletID).Scan(&current)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return nil, ErrWalletNotFound
			}
			return nil, classifyPg(fmt.Errorf("error locking wallet: %w", err))
		}

		var balance int64
		var updatedAt time.Time
		err = tx.QueryRow(ctx, `
			UPDATE wallets
			SET balance = balance + $1, version = version + 1, updated_at = NOW()
			WHERE id = $2 AND balance + $1 >= 0
			RETURNING balance, updated_at
		`, entry.Amount, entry.WalletID).Scan(&balance, &updatedAt)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return nil, &InsufficientFundsError{WalletID: entry.WalletID, Balance: current, Required: -entry.Amount}
			}
			return nil, classifyPg(fmt.Errorf("error updating balance: %w", err))
		}

		record := &entities.Transaction{
			ID:              uuid.New().String(),
			WalletID:        entry.WalletID,
			Kind:            entry.Kind,
			Amount:          entry.Amount,
			RelatedEntityID: entry.RelatedEntityID,
			IdempotencyKey:  entry.IdempotencyKey,
			Description:     entry.Description,
			BalanceAfter:    balance,
			Timestamp:       updatedAt,
		}
		_, err = tx.Exec(ctx, `
			INSERT INTO transactions (
				id, wallet_id, kind, amount, related_entity_id, idempotency_key, description, balance_after, timestamp
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		`, record.ID, record.WalletID, string(record.Kind), record.Amount, record.RelatedEntityID,
			record.IdempotencyKey, record.Description, record.BalanceAfter, record.Timestamp)
		if err != nil {
			return nil, classifyPg(fmt.Errorf("error adding transaction: %w", err))
		}
		results[i] = record
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, classifyPg(fmt.Errorf("error committing transaction: %w", err))
	}
	return results, nil
}

// GetTransactions retrieves recent transactions for a wallet, newest first
func (r *PostgresRepository) GetTransactions(ctx context.Context, walletID string, limit int) ([]*entities.Transaction, error) {
	query := `
		SELECT id, wallet_id, kind, amount, related_entity_id, idempotency_key, description, balance_after, timestamp
		FROM transactions
		WHERE wallet_id = $1
		ORDER BY timestamp DESC
	`
	args := []any{walletID}
	if limit > 0 {
		query += ` LIMIT $2`
		args = append(args, limit)
	}

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("error querying transactions: %w", err)
	}
	defer rows.Close()

	transactions := make([]*entities.Transaction, 0)
	for rows.Next() {
		tx, err := scanPgTransaction(rows)
		if err != nil {
			return nil, err
		}
		transactions = append(transactions, tx)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating transaction rows: %w", err)
	}
	return transactions, nil
}

// FindByIdempotencyKey retrieves the transaction committed under key
func (r *PostgresRepository) FindByIdempotencyKey(ctx context.Context, key string) (*entities.Transaction, error) {
	return findPgByKey(ctx, r.db, key)
}

type pgQueryer interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func findPgByKey(ctx context.Context, q pgQueryer, key string) (*entities.Transaction, error) {
	row := q.QueryRow(ctx, `
		SELECT id, wallet_id, kind, amount, related_entity_id, idempotency_key, description, balance_after, timestamp
		FROM transactions
		WHERE idempotency_key = $1
	`, key)
	tx, err := scanPgTransaction(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrTransactionNotFound
	}
	return tx, err
}

func scanPgWallet(row pgx.Row) (*entities.Wallet, error) {
	var wallet entities.Wallet
	err := row.Scan(&wallet.ID, &wallet.UserID, &wallet.Balance, &wallet.Version, &wallet.CreatedAt, &wallet.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrWalletNotFound
		}
		return nil, classifyPg(fmt.Errorf("error getting wallet: %w", err))
	}
	return &wallet, nil
}

func scanPgTransaction(row pgx.Row) (*entities.Transaction, error) {
	var tx entities.Transaction
	var kind string
	err := row.Scan(
		&tx.ID,
		&tx.WalletID,
		&kind,
		&tx.Amount,
		&tx.RelatedEntityID,
		&tx.IdempotencyKey,
		&tx.Description,
		&tx.BalanceAfter,
		&tx.Timestamp,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("error scanning transaction row: %w", err)
	}
	tx.Kind = entities.TransactionKind(kind)
	return &tx, nil
}

// classifyPg marks connection loss and lock conflicts as retryable
func classifyPg(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgUniqueViolation, pgSerializationFailure, pgDeadlockDetected:
			return fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		return err
	}
	if pgconn.SafeToRetry(err) || pgconn.Timeout(err) {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return err
}
