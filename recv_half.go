/*
File Name:  recv_half.go
Copyright:  2021 Peernet s.r.o.
Author:     Peter Kleissner

The receiving half of a Connector: the high-water id and the missing-id
gap tracker. Mirrors the ConnectorReceive field layout.
*/

package reliconn

import (
	"time"

	"github.com/Trangar/reliconn/packet"
)

type missingEntry struct {
	id          packet.ID
	lastRequest time.Time
}

// recvHalf tracks what has been seen from the peer and which confirmed ids
// are still missing. The zero value is a valid, freshly reset half.
type recvHalf struct {
	lastMessageID packet.OptID
	missing       []missingEntry
	lastPingAt    time.Time
}

// ensureMissingRange makes sure every id in (low, high] is present in the
// missing list, appending any that aren't with a zero lastRequest so they
// are immediately due on the next request sweep. low is the previous
// last_message_id value, or 0 if it was absent.
func (r *recvHalf) ensureMissingRange(low, high uint64) {
	for v := low + 1; v <= high; v++ {
		id := packet.ID(v)
		if r.hasMissing(id) {
			continue
		}
		r.missing = append(r.missing, missingEntry{id: id})
	}
}

func (r *recvHalf) hasMissing(id packet.ID) bool {
	for _, m := range r.missing {
		if m.id == id {
			return true
		}
	}
	return false
}

func (r *recvHalf) removeMissing(id packet.ID) {
	for i, m := range r.missing {
		if m.id == id {
			r.missing = append(r.missing[:i], r.missing[i+1:]...)
			return
		}
	}
}

func lowWaterMark(last packet.OptID) uint64 {
	if v, ok := last.Get(); ok {
		return v.Uint64()
	}
	return 0
}

// recordData handles the arrival of a Data packet's message id: it fills
// the gap below m, removes m itself from the missing list (delivery
// satisfies it), and unconditionally sets last_message_id to m. A no-op
// OptID (unconfirmed Data) does nothing.
func (r *recvHalf) recordData(m packet.OptID) {
	id, ok := m.Get()
	if !ok {
		return
	}
	low := lowWaterMark(r.lastMessageID)
	r.ensureMissingRange(low, id.Uint64()-1)
	r.removeMissing(id)
	r.lastMessageID = packet.SomeID(id)
}

// resolvePingAnnouncement handles a Ping/Pong's last_sent_id announcement:
// it fills the gap up to and including a, and unconditionally sets
// last_message_id to a. An absent announcement is a no-op.
func (r *recvHalf) resolvePingAnnouncement(a packet.OptID) {
	id, ok := a.Get()
	if !ok {
		return
	}
	low := lowWaterMark(r.lastMessageID)
	r.ensureMissingRange(low, id.Uint64())
	r.lastMessageID = packet.SomeID(id)
}

// dropMissing removes id from the missing list, e.g. on PacketNotFound.
// It is a silent no-op if id is not present.
func (r *recvHalf) dropMissing(id packet.ID) {
	r.removeMissing(id)
}

// dueForRequest returns every missing id whose last request is older than
// interval, marking each as requested now before returning.
func (r *recvHalf) dueForRequest(now time.Time, interval time.Duration) []packet.ID {
	var due []packet.ID
	for i := range r.missing {
		if now.Sub(r.missing[i].lastRequest) > interval {
			r.missing[i].lastRequest = now
			due = append(due, r.missing[i].id)
		}
	}
	return due
}
