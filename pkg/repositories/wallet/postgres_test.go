package wallet

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/suite"

	"github.com/fadedpez/caseclash/pkg/db"
)

// TEST_DATABASE_URL points at a disposable Postgres database; its wallet
// tables are truncated before every test
func TestPostgresRepository(t *testing.T) {
	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}

	ctx := context.Background()
	pool, err := db.OpenPostgres(ctx, url)
	if err != nil {
		t.Fatalf("open postgres: %v", err)
	}
	t.Cleanup(pool.Close)

	suite.Run(t, &RepositoryTestSuite{newRepo: func() Repository {
		if _, err := pool.Exec(ctx, "TRUNCATE transactions, wallets CASCADE"); err != nil {
			t.Fatalf("truncate: %v", err)
		}
		return NewPostgresRepository(pool)
	}})
}
