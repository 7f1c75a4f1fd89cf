package storage

import (
	"errors"
	"path/filepath"
	"testing"
)

func TestNewStoreMemory(t *testing.T) {
	for _, kind := range []string{"memory", " Memory "} {
		store, err := NewStore(kind, "")
		if err != nil {
			t.Fatalf("new %q store: %v", kind, err)
		}
		if _, ok := store.(*MemoryStore); !ok {
			t.Fatalf("%q: expected memory store, got %T", kind, store)
		}
		if err := CloseIfSupported(store); err != nil {
			t.Fatalf("close memory store: %v", err)
		}
	}
}

func TestNewStoreEmptyKindUsesDefault(t *testing.T) {
	store, err := NewStore("", filepath.Join(t.TempDir(), "anfis.db"))
	if err != nil {
		t.Fatalf("new default store: %v", err)
	}
	defer func() {
		_ = CloseIfSupported(store)
	}()
	_, isMemory := store.(*MemoryStore)
	if isMemory != (DefaultStoreKind() == KindMemory) {
		t.Fatalf("default kind %s built %T", DefaultStoreKind(), store)
	}
}

func TestNewStoreUnsupported(t *testing.T) {
	_, err := NewStore("unknown", "")
	if !errors.Is(err, ErrUnsupportedStore) {
		t.Fatalf("expected unsupported store error, got=%v", err)
	}
}

func TestNewStoreSQLiteRequiresPath(t *testing.T) {
	if _, err := NewStore(KindSQLite, " "); err == nil {
		t.Fatal("expected missing path error")
	}
}

func TestDefaultStoreKindIsSupported(t *testing.T) {
	switch kind := DefaultStoreKind(); kind {
	case KindMemory, KindSQLite:
	default:
		t.Fatalf("unexpected default store kind: %s", kind)
	}
}
