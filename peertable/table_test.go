package peertable

import (
	"testing"

	"github.com/google/uuid"

	reliconn "github.com/Trangar/reliconn"
	"github.com/Trangar/reliconn/transport"
)

func byteCodec() (func([]byte) ([]byte, error), func([]byte) ([]byte, error)) {
	id := func(b []byte) ([]byte, error) { return b, nil }
	return id, id
}

func TestRegisterIsIdempotentPerAddr(t *testing.T) {
	enc, dec := byteCodec()
	table := New[[]byte, []byte](reliconn.DefaultParams(), enc, dec, reliconn.Filters{})

	addr := transport.PipeAddr("peer-1")
	first, err := table.Register(addr)
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	second, err := table.Register(addr)
	if err != nil {
		t.Fatalf("register again: %v", err)
	}
	if first.Session != second.Session {
		t.Fatalf("expected the same session id for repeated registration of the same address")
	}
	if table.Len() != 1 {
		t.Fatalf("expected exactly one tracked peer, got %d", table.Len())
	}
}

func TestByAddrAndBySessionAgree(t *testing.T) {
	enc, dec := byteCodec()
	table := New[[]byte, []byte](reliconn.DefaultParams(), enc, dec, reliconn.Filters{})

	addr := transport.PipeAddr("peer-2")
	entry, err := table.Register(addr)
	if err != nil {
		t.Fatalf("register: %v", err)
	}

	byAddr, ok := table.ByAddr(addr)
	if !ok || byAddr.Session != entry.Session {
		t.Fatalf("ByAddr did not return the registered entry")
	}

	bySession, ok := table.BySession(entry.Session)
	if !ok || bySession.Conn.BoundAddr().String() != addr.String() {
		t.Fatalf("BySession did not return the registered entry")
	}
}

func TestFingerprintIsStablePerAddress(t *testing.T) {
	a := transport.PipeAddr("same")
	b := transport.PipeAddr("same")
	c := transport.PipeAddr("different")

	if Fingerprint(a) != Fingerprint(b) {
		t.Fatalf("expected identical fingerprints for identical addresses")
	}
	if Fingerprint(a) == Fingerprint(c) {
		t.Fatalf("expected different fingerprints for different addresses")
	}
}

func TestRemoveDropsBothIndexes(t *testing.T) {
	enc, dec := byteCodec()
	table := New[[]byte, []byte](reliconn.DefaultParams(), enc, dec, reliconn.Filters{})

	addr := transport.PipeAddr("peer-3")
	entry, err := table.Register(addr)
	if err != nil {
		t.Fatalf("register: %v", err)
	}

	if err := table.Remove(entry.Session); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if _, ok := table.ByAddr(addr); ok {
		t.Fatalf("expected ByAddr to forget a removed peer")
	}
	if _, ok := table.BySession(entry.Session); ok {
		t.Fatalf("expected BySession to forget a removed peer")
	}
	if err := table.Remove(entry.Session); err != ErrUnknownSession {
		t.Fatalf("expected ErrUnknownSession removing twice, got %v", err)
	}
}

func TestRemoveUnknownSession(t *testing.T) {
	enc, dec := byteCodec()
	table := New[[]byte, []byte](reliconn.DefaultParams(), enc, dec, reliconn.Filters{})

	if err := table.Remove(uuid.New()); err != ErrUnknownSession {
		t.Fatalf("expected ErrUnknownSession, got %v", err)
	}
}

func TestSnapshotReturnsEveryPeer(t *testing.T) {
	enc, dec := byteCodec()
	table := New[[]byte, []byte](reliconn.DefaultParams(), enc, dec, reliconn.Filters{})

	addrs := []transport.PipeAddr{"p1", "p2", "p3"}
	for _, a := range addrs {
		if _, err := table.Register(a); err != nil {
			t.Fatalf("register %s: %v", a, err)
		}
	}

	snap := table.Snapshot()
	if len(snap) != len(addrs) {
		t.Fatalf("expected %d entries, got %d", len(addrs), len(snap))
	}
}

func TestStatsAggregatesUnconfirmedAndMissing(t *testing.T) {
	enc, dec := byteCodec()
	table := New[[]byte, []byte](reliconn.DefaultParams(), enc, dec, reliconn.Filters{})

	medium := transport.NewFaultyMedium(1, 0, 0)
	local := transport.PipeAddr("local")
	sock := medium.Endpoint(local)

	peerAddr := transport.PipeAddr("peer-4")
	entry, err := table.Register(peerAddr)
	if err != nil {
		t.Fatalf("register: %v", err)
	}

	for i := 0; i < 3; i++ {
		if err := entry.Conn.SendConfirmed(sock, []byte("hi")); err != nil {
			t.Fatalf("send confirmed: %v", err)
		}
	}

	stats := table.Stats()
	if stats.PeerCount != 1 {
		t.Fatalf("expected 1 peer, got %d", stats.PeerCount)
	}
	if stats.TotalUnconfirmed != 3 || stats.MaxUnconfirmedPerPeer != 3 {
		t.Fatalf("expected 3 unconfirmed messages, got total=%d max=%d", stats.TotalUnconfirmed, stats.MaxUnconfirmedPerPeer)
	}
	if stats.TotalMissing != 0 || stats.MaxMissingPerPeer != 0 {
		t.Fatalf("expected no missing ids yet, got total=%d max=%d", stats.TotalMissing, stats.MaxMissingPerPeer)
	}
}
