package wallet

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/fadedpez/caseclash/pkg/entities"
	"github.com/google/uuid"
	"github.com/mattn/go-sqlite3"
)

// fixed width so text ordering matches time ordering
const timestampFormat = "2006-01-02T15:04:05.000000000Z07:00"

// SQLiteRepository implements Repository using SQLite
type SQLiteRepository struct {
	db  *sql.DB
	now func() time.Time
}

// NewSQLiteRepository creates a repository over an already migrated database
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db, now: time.Now}
}

type rowScanner interface {
	Scan(dest ...any) error
}

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// GetWallet retrieves a wallet by wallet ID
func (r *SQLiteRepository) GetWallet(ctx context.Context, walletID string) (*entities.Wallet, error) {
	query := `SELECT id, user_id, balance, version, created_at, updated_at FROM wallets WHERE id = ?`
	return scanWallet(r.db.QueryRowContext(ctx, query, walletID))
}

// GetWalletByUser retrieves the wallet owned by a user
func (r *SQLiteRepository) GetWalletByUser(ctx context.Context, userID string) (*entities.Wallet, error) {
	query := `SELECT id, user_id, balance, version, created_at, updated_at FROM wallets WHERE user_id = ?`
	return scanWallet(r.db.QueryRowContext(ctx, query, userID))
}

// CreateWallet stores a new wallet
func (r *SQLiteRepository) CreateWallet(ctx context.Context, wallet *entities.Wallet) error {
	if wallet.ID == "" {
		wallet.ID = uuid.New().String()
	}
	if wallet.CreatedAt.IsZero() {
		wallet.CreatedAt = r.now().UTC()
	}
	wallet.UpdatedAt = wallet.CreatedAt

	query := `
		INSERT INTO wallets (id, user_id, balance, version, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`
	_, err := r.db.ExecContext(ctx, query,
		wallet.ID, wallet.UserID, wallet.Balance, wallet.Version,
		wallet.CreatedAt.Format(timestampFormat), wallet.UpdatedAt.Format(timestampFormat),
	)
	if err != nil {
		var sqliteErr sqlite3.Error
		if errors.As(err, &sqliteErr) && sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique {
			return ErrWalletExists
		}
		return classifySQLite(fmt.Errorf("error creating wallet: %w", err))
	}
	return nil
}

// ApplyEntries applies every entry inside one database transaction
func (r *SQLiteRepository) ApplyEntries(ctx context.Context, entries []Entry) ([]*entities.Transaction, error) {
	for _, entry := range entries {
		if err := entry.Validate(); err != nil {
			return nil, err
		}
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, classifySQLite(fmt.Errorf("error beginning transaction: %w", err))
	}
	defer tx.Rollback()

	results := make([]*entities.Transaction, len(entries))
	seen := make(map[string]bool)

	for i, entry := range entries {
		existing, err := findByKey(ctx, tx, entry.IdempotencyKey)
		if err == nil {
			if !entry.Matches(existing) {
				return nil, ErrIdempotencyConflict
			}
			results[i] = existing
			continue
		}
		if !errors.Is(err, ErrTransactionNotFound) {
			return nil, classifySQLite(err)
		}
		if seen[entry.IdempotencyKey] {
			return nil, ErrIdempotencyConflict
		}
		seen[entry.IdempotencyKey] = true

		now := r.now().UTC()
		res, err := tx.ExecContext(ctx, `
			UPDATE wallets
			SET balance = balance + ?, version = version + 1, updated_at = ?
			WHERE id = ? AND balance + ? >= 0
		`, entry.Amount, now.Format(timestampFormat), entry.WalletID, entry.Amount)
		if err != nil {
			return nil, classifySQLite(fmt.Errorf("error updating balance: %w", err))
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return nil, classifySQLite(fmt.Errorf("error getting rows affected: %w", err))
		}

		var balance int64
		if err := tx.QueryRowContext(ctx, `SELECT balance FROM wallets WHERE id = ?`, entry.WalletID).Scan(&balance); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, ErrWalletNotFound
			}
			return nil, classifySQLite(fmt.Errorf("error reading balance: %w", err))
		}
		if affected == 0 {
			return nil, &InsufficientFundsError{WalletID: entry.WalletID, Balance: balance, Required: -entry.Amount}
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
			Timestamp:       now,
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO transactions (
				id, wallet_id, kind, amount, related_entity_id, idempotency_key, description, balance_after, timestamp
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, record.ID, record.WalletID, record.Kind, record.Amount, record.RelatedEntityID,
			record.IdempotencyKey, record.Description, record.BalanceAfter, now.Format(timestampFormat))
		if err != nil {
			return nil, classifySQLite(fmt.Errorf("error adding transaction: %w", err))
		}
		results[i] = record
	}

	if err := tx.Commit(); err != nil {
		return nil, classifySQLite(fmt.Errorf("error committing transaction: %w", err))
	}
	return results, nil
}

// GetTransactions retrieves recent transactions for a wallet, newest first
func (r *SQLiteRepository) GetTransactions(ctx context.Context, walletID string, limit int) ([]*entities.Transaction, error) {
	if limit <= 0 {
		limit = -1
	}
	query := `
		SELECT id, wallet_id, kind, amount, related_entity_id, idempotency_key, description, balance_after, timestamp
		FROM transactions
		WHERE wallet_id = ?
		ORDER BY timestamp DESC, rowid DESC
		LIMIT ?
	`

	rows, err := r.db.QueryContext(ctx, query, walletID, limit)
	if err != nil {
		return nil, fmt.Errorf("error querying transactions: %w", err)
	}
	defer rows.Close()

	transactions := make([]*entities.Transaction, 0)
	for rows.Next() {
		tx, err := scanTransaction(rows)
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
func (r *SQLiteRepository) FindByIdempotencyKey(ctx context.Context, key string) (*entities.Transaction, error) {
	return findByKey(ctx, r.db, key)
}

func findByKey(ctx context.Context, q queryer, key string) (*entities.Transaction, error) {
	row := q.QueryRowContext(ctx, `
		SELECT id, wallet_id, kind, amount, related_entity_id, idempotency_key, description, balance_after, timestamp
		FROM transactions
		WHERE idempotency_key = ?
	`, key)
	tx, err := scanTransaction(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrTransactionNotFound
	}
	return tx, err
}

func scanWallet(row rowScanner) (*entities.Wallet, error) {
	var wallet entities.Wallet
	var createdAt, updatedAt string

	err := row.Scan(&wallet.ID, &wallet.UserID, &wallet.Balance, &wallet.Version, &createdAt, &updatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrWalletNotFound
		}
		return nil, fmt.Errorf("error getting wallet: %w", err)
	}

	if wallet.CreatedAt, err = parseTimestamp(createdAt); err != nil {
		return nil, err
	}
	if wallet.UpdatedAt, err = parseTimestamp(updatedAt); err != nil {
		return nil, err
	}
	return &wallet, nil
}

func scanTransaction(row rowScanner) (*entities.Transaction, error) {
	var tx entities.Transaction
	var timestamp string

	err := row.Scan(
		&tx.ID,
		&tx.WalletID,
		&tx.Kind,
		&tx.Amount,
		&tx.RelatedEntityID,
		&tx.IdempotencyKey,
		&tx.Description,
		&tx.BalanceAfter,
		&timestamp,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("error scanning transaction row: %w", err)
	}

	if tx.Timestamp, err = parseTimestamp(timestamp); err != nil {
		return nil, err
	}
	return &tx, nil
}

// parseTimestamp accepts the formats SQLite may hand back
func parseTimestamp(value string) (time.Time, error) {
	formats := []string{
		time.RFC3339Nano,
		"2006-01-02 15:04:05",
		"2006-01-02T15:04:05Z",
		time.RFC3339,
	}

	var parseErr error
	for _, format := range formats {
		t, err := time.Parse(format, value)
		if err == nil {
			return t, nil
		}
		parseErr = err
	}
	return time.Time{}, fmt.Errorf("error parsing timestamp '%s': %w", value, parseErr)
}

// classifySQLite marks lock contention and key races as retryable
func classifySQLite(err error) error {
	var sqliteErr sqlite3.Error
	if !errors.As(err, &sqliteErr) {
		return err
	}
	switch {
	case sqliteErr.Code == sqlite3.ErrBusy, sqliteErr.Code == sqlite3.ErrLocked:
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	case sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique:
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return err
}
