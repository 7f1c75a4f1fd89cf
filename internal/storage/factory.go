package storage

import (
	"errors"
	"fmt"
	"strings"
)

const (
	KindMemory = "memory"
	KindSQLite = "sqlite"
)

var ErrUnsupportedStore = errors.New("unsupported store backend")

// NewStore builds the checkpoint store named by kind. An empty kind selects
// DefaultStoreKind; path is only read by the sqlite backend.
func NewStore(kind, path string) (Store, error) {
	kind = strings.ToLower(strings.TrimSpace(kind))
	if kind == "" {
		kind = DefaultStoreKind()
	}
	switch kind {
	case KindMemory:
		return NewMemoryStore(), nil
	case KindSQLite:
		if strings.TrimSpace(path) == "" {
			return nil, fmt.Errorf("sqlite store requires a database path")
		}
		return newSQLiteStore(path)
	default:
		return nil, fmt.Errorf("%w: %q (want %s or %s)", ErrUnsupportedStore, kind, KindMemory, KindSQLite)
	}
}

// CloseIfSupported releases stores that hold a connection.
func CloseIfSupported(store Store) error {
	closer, ok := store.(interface{ Close() error })
	if !ok {
		return nil
	}
	return closer.Close()
}
