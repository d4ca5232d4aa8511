/*
File Name:  peerstore.go
Copyright:  2021 Peernet s.r.o.
Author:     Peter Kleissner

peerstore persists a rolling per-peer delivery counter to disk using
pogreb, an embedded key-value store, the way warehouse.Warehouse persists
file blobs under a directory: Init takes a directory and creates it if
missing, and the caller is responsible for Close. Unlike Warehouse this
package stores small fixed-size counters rather than file content, so a
key-value store fits better than a content-addressed directory layout.
*/
package peerstore

import (
	"encoding/binary"

	"github.com/akrylysov/pogreb"
)

// Store is a durable counter log, one uint64 counter per peer key (e.g. a
// session id's string form or a fingerprint's hex encoding).
type Store struct {
	db *pogreb.DB
}

// Open opens or creates a peerstore rooted at dir.
func Open(dir string) (*Store, error) {
	db, err := pogreb.Open(dir, nil)
	if err != nil {
		return nil, err
	}
	return &Store{db: db}, nil
}

// Close flushes and closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Increment adds delta to the counter stored under key and returns the new
// value. It reads the counter and writes it back as two separate pogreb
// calls with no lock held between them, so it is not safe for concurrent
// Increments of the same key, and it is not atomic across process crashes
// mid-write beyond whatever guarantee pogreb itself provides for a single
// Put.
func (s *Store) Increment(key string, delta uint64) (uint64, error) {
	current, err := s.Get(key)
	if err != nil {
		return 0, err
	}
	next := current + delta
	buf := make([]byte, 8)
	binary.LittleEndian.PutUint64(buf, next)
	if err := s.db.Put([]byte(key), buf); err != nil {
		return 0, err
	}
	return next, nil
}

// Get returns the counter stored under key, or 0 if it has never been set.
func (s *Store) Get(key string) (uint64, error) {
	data, err := s.db.Get([]byte(key))
	if err != nil {
		return 0, err
	}
	if data == nil {
		return 0, nil
	}
	return binary.LittleEndian.Uint64(data), nil
}

// Delete removes the counter stored under key, if any.
func (s *Store) Delete(key string) error {
	return s.db.Delete([]byte(key))
}
