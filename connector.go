/*
File Name:  connector.go
Copyright:  2021 Peernet s.r.o.
Author:     Peter Kleissner

Connector is the reliability state machine described by this repository's
spec: message-id allocation, the outgoing unconfirmed-cache with
retransmission, the incoming missing-id tracker with gap detection and
re-requests, the ping/pong heartbeat with connection-state derivation, and
the packet-driven protocol that glues these together.

A Connector is single-owner, single-threaded: every exported method
mutates private state and requires unique access. A host managing many
peers must serialize per-connector access itself, e.g. one worker per
connector or a lock around it (cmd/relipeer's pollLoop does the former).
*/

package reliconn

import (
	"errors"
	"net"
	"time"

	"github.com/Trangar/reliconn/packet"
	"github.com/Trangar/reliconn/transport"
)

// ErrBrokenTransport is returned by ReceiveFrom when a zero-byte datagram
// arrives before any real datagram has been processed during that call,
// signalling that the underlying transport has failed rather than merely
// having nothing to offer right now.
var ErrBrokenTransport = errors.New("reliconn: broken transport")

// Connector owns a Send half and a Receive half plus the peer address it
// is bound to. The peer address never changes for the life of the
// Connector; Connect resets both halves but keeps it.
type Connector[TSend, TReceive any] struct {
	addr    net.Addr
	params  Params
	encode  packet.Encoder[TSend]
	decode  packet.Decoder[TReceive]
	filters Filters

	send sendHalf[TSend]
	recv recvHalf

	lastReportedState State
	stateReported      bool
}

// New builds a Connector bound to addr. encode serializes outgoing
// application payloads; decode deserializes incoming ones. Both must form
// a bijection with their counterpart on the peer's Connector.
func New[TSend, TReceive any](addr net.Addr, params Params, encode packet.Encoder[TSend], decode packet.Decoder[TReceive], filters Filters) (*Connector[TSend, TReceive], error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	return &Connector[TSend, TReceive]{
		addr:    addr,
		params:  params,
		encode:  encode,
		decode:  decode,
		filters: filters,
		send:    newSendHalf[TSend](),
	}, nil
}

// BoundAddr returns the peer address this Connector is bound to.
func (c *Connector[TSend, TReceive]) BoundAddr() net.Addr { return c.addr }

// UnconfirmedCount returns the number of SendConfirmed messages still
// awaiting acknowledgement. There is no cap on this, so a peer that stops
// responding without disconnecting will grow it without bound; an embedder
// wanting to alert on that should poll this alongside MissingCount.
func (c *Connector[TSend, TReceive]) UnconfirmedCount() int { return len(c.send.cache) }

// MissingCount returns the number of confirmed message ids this Connector
// still considers missing from the peer and will keep re-requesting.
func (c *Connector[TSend, TReceive]) MissingCount() int { return len(c.recv.missing) }

// State derives the tri-state connection status from the two ping
// timestamps on every call rather than from a cached transition.
func (c *Connector[TSend, TReceive]) State() State {
	now := time.Now()
	rin := now.Sub(c.recv.lastPingAt)
	if rin <= c.params.ReceivePingTimeout {
		c.reportState(Connected)
		return Connected
	}
	rout := now.Sub(c.send.lastPingAt)
	if rout <= c.params.SendPingTimeout {
		c.reportState(Connecting)
		return Connecting
	}
	c.reportState(Disconnected)
	return Disconnected
}

func (c *Connector[TSend, TReceive]) reportState(s State) {
	if c.filters.StateChange == nil {
		return
	}
	if c.stateReported && c.lastReportedState == s {
		return
	}
	old := c.lastReportedState
	c.lastReportedState = s
	c.stateReported = true
	if old != s {
		c.filters.StateChange(old, s)
	}
}

// Connect resets both halves (empty cache, id allocator, and timestamps)
// and immediately emits a Ping. There is no internal teardown packet; the
// Connector lives until the embedder drops it.
func (c *Connector[TSend, TReceive]) Connect(sock transport.Socket) error {
	c.send = newSendHalf[TSend]()
	c.recv = recvHalf{}
	return c.sendPing(sock)
}

func (c *Connector[TSend, TReceive]) sendPing(sock transport.Socket) error {
	pkt := packet.Ping[TSend](c.send.highestAllocated())
	if err := c.emit(sock, pkt); err != nil {
		return err
	}
	c.send.lastPingAt = time.Now()
	return nil
}

// emit encodes and sends a packet carrying the TSend payload type (used
// for every outgoing packet except confirmed Data, whose encoded bytes are
// sent, cached and resent directly).
func (c *Connector[TSend, TReceive]) emit(sock transport.Socket, pkt packet.Packet[TSend]) error {
	raw, err := packet.Encode(pkt, c.encode)
	if err != nil {
		return err
	}
	if err := sock.SendTo(raw, c.addr); err != nil {
		return err
	}
	c.filters.packetOut(pkt.Kind)
	return nil
}

// SendUnconfirmed emits a Data packet with no message id. It is sent once
// and never retried.
func (c *Connector[TSend, TReceive]) SendUnconfirmed(sock transport.Socket, msg TSend) error {
	return c.emit(sock, packet.Data[TSend](packet.NoID(), msg))
}

// SendConfirmed allocates a new message id, emits the Data packet, and
// caches it for retransmission until it is acknowledged or the Connector
// disconnects. There is no retransmission cap.
func (c *Connector[TSend, TReceive]) SendConfirmed(sock transport.Socket, msg TSend) error {
	id, err := c.send.allocate()
	if err != nil {
		return err
	}
	pkt := packet.Data[TSend](packet.SomeID(id), msg)
	raw, err := packet.Encode(pkt, c.encode)
	if err != nil {
		return err
	}
	if err := sock.SendTo(raw, c.addr); err != nil {
		return err
	}
	c.filters.packetOut(pkt.Kind)
	c.send.cacheInsert(id, raw, pkt, time.Now())
	return nil
}

// Update emits a heartbeat if due, re-requests missing ids that are due,
// and retransmits unconfirmed cache entries that are due, in that fixed
// order. It does nothing if State() is Disconnected; the embedder must
// call Connect to resume. A send failure aborts the sweep and propagates.
func (c *Connector[TSend, TReceive]) Update(sock transport.Socket) error {
	if c.State() == Disconnected {
		return nil
	}

	now := time.Now()

	if now.Sub(c.send.lastPingAt) > c.params.PingInterval {
		if err := c.sendPing(sock); err != nil {
			return err
		}
	}

	for _, id := range c.recv.dueForRequest(now, c.params.RequestMissingInterval) {
		if err := c.emit(sock, packet.Request[TSend](id)); err != nil {
			return err
		}
	}

	for _, raw := range c.send.dueForResend(now, c.params.EmitUnconfirmedInterval) {
		if err := sock.SendTo(raw, c.addr); err != nil {
			return err
		}
		c.filters.packetOut(packet.KindData)
	}

	return nil
}

// HandleIncomingData decodes one datagram and dispatches it by Kind. It
// returns the delivered application payload and true only for a Data
// packet. A decode failure is reported as an error without otherwise
// mutating Connector state.
//
// Re-delivery of an already-seen confirmed id is not suppressed: the
// payload is handed to the caller again and a Confirm packet is still
// sent; exactly-once delivery is left to the application layer.
func (c *Connector[TSend, TReceive]) HandleIncomingData(sock transport.Socket, data []byte) (TReceive, bool, error) {
	var zero TReceive

	pkt, err := packet.Decode(data, c.decode)
	if err != nil {
		return zero, false, err
	}

	// Any successfully decoded inbound packet counts as liveness, not only
	// pings: a busy data flow keeps the connection Connected on its own.
	c.recv.lastPingAt = time.Now()
	c.filters.packetIn(pkt.Kind)

	switch pkt.Kind {
	case packet.KindPing:
		c.recv.resolvePingAnnouncement(pkt.LastSentID)
		if err := c.emit(sock, packet.Pong[TSend](c.send.highestAllocated())); err != nil {
			return zero, false, err
		}
		return zero, false, nil

	case packet.KindPong:
		c.recv.resolvePingAnnouncement(pkt.LastSentID)
		return zero, false, nil

	case packet.KindData:
		if id, ok := pkt.MessageID.Get(); ok {
			c.recv.recordData(pkt.MessageID)
			if err := c.emit(sock, packet.Confirm[TSend](id)); err != nil {
				return zero, false, err
			}
		}
		return pkt.Payload, true, nil

	case packet.KindRequest:
		if entry, ok := c.send.cacheGet(pkt.ID); ok {
			entry.lastEmit = time.Now()
			if err := sock.SendTo(entry.raw, c.addr); err != nil {
				return zero, false, err
			}
			c.filters.packetOut(packet.KindData)
		} else {
			if err := c.emit(sock, packet.NotFound[TSend](pkt.ID)); err != nil {
				return zero, false, err
			}
		}
		return zero, false, nil

	case packet.KindConfirm:
		c.send.cacheRemove(pkt.ID)
		return zero, false, nil

	case packet.KindNotFound:
		c.recv.dropMissing(pkt.ID)
		return zero, false, nil

	default:
		return zero, false, packet.ErrUnknownKind
	}
}

// ReceiveFrom drains every currently available datagram from sock,
// discarding any not from the bound peer, and returns the application
// messages delivered in arrival order. It stops as soon as the socket
// reports it would block. A decode error aborts the drain and is returned
// alongside whatever was accumulated so far.
func (c *Connector[TSend, TReceive]) ReceiveFrom(sock transport.Socket) ([]TReceive, error) {
	buf := make([]byte, c.params.MaxDatagramSize)
	var result []TReceive
	hadMessage := false

	for {
		n, addr, err := sock.RecvFrom(buf)
		if err != nil {
			if errors.Is(err, transport.ErrWouldBlock) {
				return result, nil
			}
			return result, err
		}

		if !addrEqual(addr, c.addr) {
			continue
		}

		if n == 0 {
			if !hadMessage {
				return result, ErrBrokenTransport
			}
			return result, nil
		}

		hadMessage = true

		msg, delivered, err := c.HandleIncomingData(sock, buf[:n])
		if err != nil {
			return result, err
		}
		if delivered {
			result = append(result, msg)
		}
	}
}

// UpdateAndReceive calls Update then ReceiveFrom.
func (c *Connector[TSend, TReceive]) UpdateAndReceive(sock transport.Socket) ([]TReceive, error) {
	if err := c.Update(sock); err != nil {
		return nil, err
	}
	return c.ReceiveFrom(sock)
}

func addrEqual(a, b net.Addr) bool {
	if a == nil || b == nil {
		return false
	}
	return a.String() == b.String()
}
