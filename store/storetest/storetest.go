// Package storetest opens migrated in-memory stores for tests.
package storetest

import (
	"context"
	"testing"

	"github.com/MrEthical07/sessioncore/store"
)

// New returns a migrated SQLite ":memory:" store closed at test cleanup.
func New(tb testing.TB) *store.Store {
	tb.Helper()
	s, err := store.Open(context.Background(), store.Config{
		Driver: store.DriverSQLite,
		DSN:    ":memory:",
	})
	if err != nil {
		tb.Fatalf("failed to open store: %v", err)
	}
	if err := s.Migrate(context.Background()); err != nil {
		tb.Fatalf("failed to migrate store: %v", err)
	}
	tb.Cleanup(func() { _ = s.Close() })
	return s
}
