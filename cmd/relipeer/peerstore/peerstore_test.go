package peerstore

import (
	"path/filepath"
	"testing"
)

func TestIncrementAccumulates(t *testing.T) {
	store, err := Open(filepath.Join(t.TempDir(), "store"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer store.Close()

	if v, err := store.Increment("peer-1", 3); err != nil || v != 3 {
		t.Fatalf("expected 3, got %d err=%v", v, err)
	}
	if v, err := store.Increment("peer-1", 4); err != nil || v != 7 {
		t.Fatalf("expected 7, got %d err=%v", v, err)
	}
}

func TestGetUnsetKeyIsZero(t *testing.T) {
	store, err := Open(filepath.Join(t.TempDir(), "store"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer store.Close()

	v, err := store.Get("nobody")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if v != 0 {
		t.Fatalf("expected 0 for an unset key, got %d", v)
	}
}

func TestDeleteRemovesCounter(t *testing.T) {
	store, err := Open(filepath.Join(t.TempDir(), "store"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer store.Close()

	if _, err := store.Increment("peer-2", 1); err != nil {
		t.Fatalf("increment: %v", err)
	}
	if err := store.Delete("peer-2"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	v, err := store.Get("peer-2")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if v != 0 {
		t.Fatalf("expected 0 after delete, got %d", v)
	}
}
