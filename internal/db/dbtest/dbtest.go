// Package dbtest opens the Postgres database named by TEST_DSN for
// repository tests and skips them when it is unset.
package dbtest

import (
	"database/sql"
	"os"
	"testing"

	"github.com/dreamshop/gateway/internal/db"
)

func Open(t testing.TB, truncate ...string) *sql.DB {
	t.Helper()
	dsn := os.Getenv("TEST_DSN")
	if dsn == "" {
		t.Skip("TEST_DSN is not set")
	}
	conn, err := db.NewDB(dsn)
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	clean := func() {
		for _, table := range truncate {
			_, _ = conn.Exec("TRUNCATE " + table)
		}
	}
	clean()
	t.Cleanup(func() {
		clean()
		_ = conn.Close()
	})
	return conn
}
