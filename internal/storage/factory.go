// Package storage persists individual and run records. The memory backend is
// always available; the SQLite backend needs the sqlite build tag.
package storage

import (
	"fmt"

	"gramforge/internal/fault"
)

func NewStore(kind, sqlitePath string) (Store, error) {
	switch kind {
	case "", "memory":
		return NewMemoryStore(), nil
	case "sqlite":
		return newSQLiteStore(sqlitePath)
	default:
		return nil, fmt.Errorf("%w: unsupported store backend: %s", fault.ErrConfiguration, kind)
	}
}

func CloseIfSupported(store Store) error {
	closer, ok := store.(interface{ Close() error })
	if !ok {
		return nil
	}
	return closer.Close()
}
