/*
File Name:  packet.go
Copyright:  2021 Peernet s.r.o.
Author:     Peter Kleissner

Wire packets exchanged between two Connector instances. A packet is a small
tagged union; only the fields relevant to Kind are ever populated. Encoding
is hand-rolled little-endian binary, matching the rest of this codebase
rather than pulling in a reflection-based codec.
*/

package packet

import (
	"encoding/binary"
	"errors"
)

// ID is a message identifier. It is always strictly positive; zero is
// reserved as the "absent" sentinel used by OptID and the wire encoding.
type ID uint64

// ErrZeroID is returned when constructing an ID from the reserved zero value.
var ErrZeroID = errors.New("packet: message id zero is reserved")

// ErrIDOverflow is returned when an id allocator would wrap past the
// maximum representable id. There is no wraparound behavior.
var ErrIDOverflow = errors.New("packet: message id overflow")

// NewID builds a checked ID. It rejects the reserved zero value, so callers
// never need unsafe arithmetic to uphold the positive-id invariant.
func NewID(v uint64) (ID, error) {
	if v == 0 {
		return 0, ErrZeroID
	}
	return ID(v), nil
}

// Uint64 returns the underlying value.
func (id ID) Uint64() uint64 { return uint64(id) }

// Next returns id+1, checked against overflow.
func (id ID) Next() (ID, error) {
	if id == ID(^uint64(0)) {
		return 0, ErrIDOverflow
	}
	return id + 1, nil
}

// OptID is an ID that may be absent. The zero value is absent.
type OptID struct {
	id      ID
	present bool
}

// NoID returns an absent OptID.
func NoID() OptID { return OptID{} }

// SomeID wraps a concrete ID as present.
func SomeID(id ID) OptID { return OptID{id: id, present: true} }

// Get returns the wrapped id and whether it is present.
func (o OptID) Get() (ID, bool) { return o.id, o.present }

// Present reports whether the id is set.
func (o OptID) Present() bool { return o.present }

// MustGet returns the wrapped id, panicking if absent. Used only where the
// caller has already checked Present().
func (o OptID) MustGet() ID {
	if !o.present {
		panic("packet: MustGet on absent OptID")
	}
	return o.id
}

// Kind identifies which of the six packet variants is populated.
type Kind uint8

const (
	// KindPing is a heartbeat announcing the sender's highest confirmed-send id.
	KindPing Kind = iota
	// KindPong replies to a Ping with the same announcement.
	KindPong
	// KindData carries an application payload, confirmed iff MessageID is present.
	KindData
	// KindConfirm acknowledges receipt of a confirmed message.
	KindConfirm
	// KindRequest asks the peer to retransmit a confirmed message.
	KindRequest
	// KindNotFound informs the peer that a requested id will never arrive.
	KindNotFound
)

func (k Kind) String() string {
	switch k {
	case KindPing:
		return "Ping"
	case KindPong:
		return "Pong"
	case KindData:
		return "Data"
	case KindConfirm:
		return "Confirm"
	case KindRequest:
		return "Request"
	case KindNotFound:
		return "NotFound"
	default:
		return "Unknown"
	}
}

// Packet is the tagged union of all wire messages. TPayload is the
// application payload type carried by KindData; it is ignored by every
// other kind.
type Packet[TPayload any] struct {
	Kind Kind

	// Ping / Pong
	LastSentID OptID

	// Data
	MessageID OptID
	Payload   TPayload

	// Confirm / Request / NotFound
	ID ID
}

// Ping builds a Ping packet.
func Ping[T any](lastSentID OptID) Packet[T] {
	return Packet[T]{Kind: KindPing, LastSentID: lastSentID}
}

// Pong builds a Pong packet.
func Pong[T any](lastSentID OptID) Packet[T] {
	return Packet[T]{Kind: KindPong, LastSentID: lastSentID}
}

// Data builds a Data packet. messageID is absent for unconfirmed sends.
func Data[T any](messageID OptID, payload T) Packet[T] {
	return Packet[T]{Kind: KindData, MessageID: messageID, Payload: payload}
}

// Confirm builds a ConfirmPacket.
func Confirm[T any](id ID) Packet[T] {
	return Packet[T]{Kind: KindConfirm, ID: id}
}

// Request builds a RequestPacket.
func Request[T any](id ID) Packet[T] {
	return Packet[T]{Kind: KindRequest, ID: id}
}

// NotFound builds a PacketNotFound.
func NotFound[T any](id ID) Packet[T] {
	return Packet[T]{Kind: KindNotFound, ID: id}
}

// Encoder turns an application payload into bytes. It must be a bijection
// with the matching Decoder: Decode(Encode(v)) == v.
type Encoder[T any] func(T) ([]byte, error)

// Decoder turns bytes back into an application payload.
type Decoder[T any] func([]byte) (T, error)

// ErrUnknownKind is returned by Decode when the leading tag byte does not
// match any known Kind. An unrecognized tag means the datagram is from a
// newer or incompatible peer; the caller drops it rather than panicking.
var ErrUnknownKind = errors.New("packet: unknown kind byte")

// ErrTruncated is returned by Decode when the datagram is shorter than the
// fixed-size header its Kind requires.
var ErrTruncated = errors.New("packet: truncated datagram")

func putOptID(buf []byte, o OptID) int {
	id, ok := o.Get()
	if !ok {
		buf[0] = 0
		return 1
	}
	buf[0] = 1
	binary.LittleEndian.PutUint64(buf[1:9], id.Uint64())
	return 9
}

func getOptID(data []byte) (OptID, int, error) {
	if len(data) < 1 {
		return OptID{}, 0, ErrTruncated
	}
	if data[0] == 0 {
		return NoID(), 1, nil
	}
	if len(data) < 9 {
		return OptID{}, 0, ErrTruncated
	}
	v := binary.LittleEndian.Uint64(data[1:9])
	id, err := NewID(v)
	if err != nil {
		return OptID{}, 0, err
	}
	return SomeID(id), 9, nil
}

// Encode serializes p into a self-delimited byte slice. enc is only invoked
// for KindData; callers that never emit application payloads may pass nil.
func Encode[T any](p Packet[T], enc Encoder[T]) ([]byte, error) {
	switch p.Kind {
	case KindPing, KindPong:
		buf := make([]byte, 1+9)
		buf[0] = byte(p.Kind)
		n := putOptID(buf[1:], p.LastSentID)
		return buf[:1+n], nil

	case KindConfirm, KindRequest, KindNotFound:
		buf := make([]byte, 1+8)
		buf[0] = byte(p.Kind)
		binary.LittleEndian.PutUint64(buf[1:9], p.ID.Uint64())
		return buf, nil

	case KindData:
		if enc == nil {
			return nil, errors.New("packet: Data payload requires an encoder")
		}
		payload, err := enc(p.Payload)
		if err != nil {
			return nil, err
		}
		buf := make([]byte, 1+9, 1+9+len(payload))
		buf[0] = byte(p.Kind)
		n := putOptID(buf[1:], p.MessageID)
		buf = buf[:1+n]
		buf = append(buf, payload...)
		return buf, nil

	default:
		return nil, ErrUnknownKind
	}
}

// Decode deserializes data into a Packet. dec is only invoked for a decoded
// KindData packet.
func Decode[T any](data []byte, dec Decoder[T]) (Packet[T], error) {
	if len(data) < 1 {
		return Packet[T]{}, ErrTruncated
	}
	kind := Kind(data[0])
	rest := data[1:]

	switch kind {
	case KindPing, KindPong:
		opt, _, err := getOptID(rest)
		if err != nil {
			return Packet[T]{}, err
		}
		return Packet[T]{Kind: kind, LastSentID: opt}, nil

	case KindConfirm, KindRequest, KindNotFound:
		if len(rest) < 8 {
			return Packet[T]{}, ErrTruncated
		}
		id, err := NewID(binary.LittleEndian.Uint64(rest[:8]))
		if err != nil {
			return Packet[T]{}, err
		}
		return Packet[T]{Kind: kind, ID: id}, nil

	case KindData:
		opt, n, err := getOptID(rest)
		if err != nil {
			return Packet[T]{}, err
		}
		payloadBytes := rest[n:]
		if dec == nil {
			return Packet[T]{}, errors.New("packet: Data payload requires a decoder")
		}
		payload, err := dec(payloadBytes)
		if err != nil {
			return Packet[T]{}, err
		}
		return Packet[T]{Kind: kind, MessageID: opt, Payload: payload}, nil

	default:
		return Packet[T]{}, ErrUnknownKind
	}
}
