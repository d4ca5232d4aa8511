/*
File Name:  send_half.go
Copyright:  2021 Peernet s.r.o.
Author:     Peter Kleissner

The sending half of a Connector: id allocation and the unconfirmed-message
cache used for retransmission. Mirrors ConnectorSend's field layout; see
Connection.go's LastPacketOut/LastPingOut fields for the Go idiom of plain
timestamps rather than per-entry timers.
*/

package reliconn

import (
	"time"

	"github.com/Trangar/reliconn/packet"
)

type cachedPacket[TSend any] struct {
	raw      []byte
	pkt      packet.Packet[TSend]
	lastEmit time.Time
}

// sendHalf tracks outgoing confirmed messages awaiting acknowledgement and
// the next id to hand out. The zero value is a valid, freshly reset half.
type sendHalf[TSend any] struct {
	cache      map[packet.ID]*cachedPacket[TSend]
	nextID     packet.OptID // absent: no confirmed message has ever been sent
	lastPingAt time.Time
}

func newSendHalf[TSend any]() sendHalf[TSend] {
	return sendHalf[TSend]{cache: make(map[packet.ID]*cachedPacket[TSend])}
}

// allocate returns the next message id to use and advances the allocator.
// It never returns 0.
func (s *sendHalf[TSend]) allocate() (packet.ID, error) {
	id, ok := s.nextID.Get()
	if !ok {
		id, _ = packet.NewID(1)
	}
	next, err := id.Next()
	if err != nil {
		return 0, err
	}
	s.nextID = packet.SomeID(next)
	return id, nil
}

// highestAllocated returns the highest id ever allocated, i.e. next-1, for
// use as a Ping/Pong announcement.
func (s *sendHalf[TSend]) highestAllocated() packet.OptID {
	id, ok := s.nextID.Get()
	if !ok {
		return packet.NoID()
	}
	// id is "next to assign"; the highest one actually used is id-1, which
	// is always representable since allocate() only ever advances from 1.
	return packet.SomeID(packet.ID(id.Uint64() - 1))
}

func (s *sendHalf[TSend]) cacheInsert(id packet.ID, raw []byte, pkt packet.Packet[TSend], now time.Time) {
	s.cache[id] = &cachedPacket[TSend]{raw: raw, pkt: pkt, lastEmit: now}
}

func (s *sendHalf[TSend]) cacheRemove(id packet.ID) {
	delete(s.cache, id)
}

func (s *sendHalf[TSend]) cacheGet(id packet.ID) (*cachedPacket[TSend], bool) {
	e, ok := s.cache[id]
	return e, ok
}

// dueForResend returns the raw bytes of every cached entry whose last emit
// is older than interval, and marks each as emitted now before returning.
func (s *sendHalf[TSend]) dueForResend(now time.Time, interval time.Duration) [][]byte {
	var due [][]byte
	for _, entry := range s.cache {
		if now.Sub(entry.lastEmit) > interval {
			entry.lastEmit = now
			due = append(due, entry.raw)
		}
	}
	return due
}
