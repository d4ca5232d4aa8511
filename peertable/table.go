/*
File Name:  table.go
Copyright:  2021 Peernet s.r.o.
Author:     Peter Kleissner

Table is the server-side registry of peer Connectors the embedder owns: the
reliability layer itself never tracks its peers, so something above it
must. Table fills that role the way WebapiInstance in
webapi/API.go tracks concurrent search jobs and downloads in maps guarded by
a sync.RWMutex, keyed by a uuid.UUID session id as well as the remote
address. Entries are created per address: a peer that changes address is
registered as a new Entry with a new session id and a different
fingerprint.
*/
package peertable

import (
	"errors"
	"net"
	"sync"

	"github.com/google/uuid"
	"lukechampine.com/blake3"

	reliconn "github.com/Trangar/reliconn"
	"github.com/Trangar/reliconn/packet"
)

// ErrUnknownSession is returned when looking up a session id the Table does
// not hold.
var ErrUnknownSession = errors.New("peertable: unknown session")

// Entry is one tracked peer: its Connector plus the bookkeeping the
// embedder needs to route inbound datagrams and report on status.
type Entry[TSend, TReceive any] struct {
	Session     uuid.UUID
	Fingerprint [32]byte
	Conn        *reliconn.Connector[TSend, TReceive]
}

// Table is a concurrency-safe registry of peer Connectors, one per remote
// address. It does not own any socket; the embedder drives Update/
// ReceiveFrom for each Entry's Connector itself, typically from a single
// poll loop that demultiplexes inbound datagrams by address.
type Table[TSend, TReceive any] struct {
	mu        sync.RWMutex
	byAddr    map[string]*Entry[TSend, TReceive]
	bySession map[uuid.UUID]*Entry[TSend, TReceive]

	params  reliconn.Params
	encode  packet.Encoder[TSend]
	decode  packet.Decoder[TReceive]
	filters reliconn.Filters
}

// New builds an empty Table. Every Connector it creates shares params,
// encode, decode, and filters.
func New[TSend, TReceive any](params reliconn.Params, encode packet.Encoder[TSend], decode packet.Decoder[TReceive], filters reliconn.Filters) *Table[TSend, TReceive] {
	return &Table[TSend, TReceive]{
		byAddr:    make(map[string]*Entry[TSend, TReceive]),
		bySession: make(map[uuid.UUID]*Entry[TSend, TReceive]),
		params:    params,
		encode:    encode,
		decode:    decode,
		filters:   filters,
	}
}

// Fingerprint hashes a peer address into a stable 32-byte identifier for
// logs and metrics. It is the blake3 digest of addr.String(), so addresses
// with the same textual form share a fingerprint.
func Fingerprint(addr net.Addr) [32]byte {
	return blake3.Sum256([]byte(addr.String()))
}

// Register creates a new Connector bound to addr and assigns it a fresh
// session id. If addr is already registered, its existing Entry is
// returned instead and no new Connector is created.
func (t *Table[TSend, TReceive]) Register(addr net.Addr) (*Entry[TSend, TReceive], error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	key := addr.String()
	if e, ok := t.byAddr[key]; ok {
		return e, nil
	}

	conn, err := reliconn.New[TSend, TReceive](addr, t.params, t.encode, t.decode, t.filters)
	if err != nil {
		return nil, err
	}

	e := &Entry[TSend, TReceive]{
		Session:     uuid.New(),
		Fingerprint: Fingerprint(addr),
		Conn:        conn,
	}
	t.byAddr[key] = e
	t.bySession[e.Session] = e
	return e, nil
}

// ByAddr looks up the Entry for a peer address.
func (t *Table[TSend, TReceive]) ByAddr(addr net.Addr) (*Entry[TSend, TReceive], bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	e, ok := t.byAddr[addr.String()]
	return e, ok
}

// BySession looks up the Entry for a session id.
func (t *Table[TSend, TReceive]) BySession(id uuid.UUID) (*Entry[TSend, TReceive], bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	e, ok := t.bySession[id]
	return e, ok
}

// Remove drops a peer entirely, e.g. once its Connector has been
// Disconnected long enough that the embedder gives up on it.
func (t *Table[TSend, TReceive]) Remove(id uuid.UUID) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	e, ok := t.bySession[id]
	if !ok {
		return ErrUnknownSession
	}
	delete(t.bySession, id)
	delete(t.byAddr, e.Conn.BoundAddr().String())
	return nil
}

// Len returns the number of tracked peers.
func (t *Table[TSend, TReceive]) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.bySession)
}

// Snapshot returns every tracked Entry. The Connectors themselves are not
// copied, so callers must still serialize access to each one (e.g. from the
// same goroutine that owns the underlying socket).
func (t *Table[TSend, TReceive]) Snapshot() []*Entry[TSend, TReceive] {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make([]*Entry[TSend, TReceive], 0, len(t.bySession))
	for _, e := range t.bySession {
		out = append(out, e)
	}
	return out
}

// Stats summarizes unbounded-growth signals across every tracked peer.
// Neither the unconfirmed cache nor the missing-id list is bounded inside
// Connector, so an embedder that wants to alert on a stuck or abusive peer
// can poll this instead. Unlike Snapshot, which only returns the Entries,
// it reads every Connector directly and so must only be called from the
// goroutine that owns them.
type Stats struct {
	PeerCount             int
	TotalUnconfirmed      int
	TotalMissing          int
	MaxUnconfirmedPerPeer int
	MaxMissingPerPeer     int
}

// Stats aggregates UnconfirmedCount and MissingCount across every tracked
// peer.
func (t *Table[TSend, TReceive]) Stats() Stats {
	t.mu.RLock()
	defer t.mu.RUnlock()

	s := Stats{PeerCount: len(t.bySession)}
	for _, e := range t.bySession {
		uc := e.Conn.UnconfirmedCount()
		mc := e.Conn.MissingCount()
		s.TotalUnconfirmed += uc
		s.TotalMissing += mc
		if uc > s.MaxUnconfirmedPerPeer {
			s.MaxUnconfirmedPerPeer = uc
		}
		if mc > s.MaxMissingPerPeer {
			s.MaxMissingPerPeer = mc
		}
	}
	return s
}
