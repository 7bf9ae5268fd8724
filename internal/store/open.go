package store

import (
	"context"
	"fmt"
)

// Open connects the named backend ("postgres" or "memory"). The PostgreSQL
// schema is applied before the store is returned.
func Open(ctx context.Context, backend, dsn string) (LedgerStore, error) {
	switch backend {
	case "memory":
		return NewMemoryStore(), nil
	case "postgres":
		s, err := NewPostgresStore(ctx, dsn)
		if err != nil {
			return nil, err
		}
		if err := s.Migrate(ctx); err != nil {
			s.Close()
			return nil, err
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unknown ledger backend %q", backend)
	}
}
