package storage

import (
	"errors"
	"path/filepath"
	"testing"
)

func exercise(t *testing.T, db Database) {
	t.Helper()
	if _, err := db.Get([]byte("missing")); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := db.Put([]byte("k"), []byte("v1")); err != nil {
		t.Fatalf("put: %v", err)
	}
	value, err := db.Get([]byte("k"))
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if string(value) != "v1" {
		t.Fatalf("expected v1, got %q", value)
	}
	has, err := db.Has([]byte("k"))
	if err != nil || !has {
		t.Fatalf("expected key present, got %v %v", has, err)
	}
	if err := db.Delete([]byte("k")); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if has, _ := db.Has([]byte("k")); has {
		t.Fatalf("expected key removed")
	}
}

func TestMemDB(t *testing.T) {
	db := NewMemDB()
	defer db.Close()
	exercise(t, db)

	value := []byte("abc")
	if err := db.Put([]byte("copy"), value); err != nil {
		t.Fatalf("put: %v", err)
	}
	value[0] = 'z'
	stored, _ := db.Get([]byte("copy"))
	if string(stored) != "abc" {
		t.Fatalf("memdb must copy values, got %q", stored)
	}
}

func TestLevelDB(t *testing.T) {
	db, err := NewLevelDB(filepath.Join(t.TempDir(), "ldb"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer db.Close()
	exercise(t, db)
}

func TestBoltDB(t *testing.T) {
	db, err := NewBoltDB(filepath.Join(t.TempDir(), "state.db"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer db.Close()
	exercise(t, db)
}

func TestOpenUnknownBackend(t *testing.T) {
	if _, err := Open("redis", ""); err == nil {
		t.Fatalf("expected unknown backend to fail")
	}
	db, err := Open("memory", "")
	if err != nil {
		t.Fatalf("open memory: %v", err)
	}
	db.Close()
}
