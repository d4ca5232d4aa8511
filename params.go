/*
File Name:  params.go
Copyright:  2021 Peernet s.r.o.
Author:     Peter Kleissner

Construction-time tunables for a Connector. There is no environment
variable or file based configuration at this layer; the embedder decides
where its Params values come from (see cmd/relipeer for a YAML-backed
example).
*/

package reliconn

import (
	"errors"
	"time"
)

// Params holds every timeout and interval a Connector needs. All durations
// must be positive and finite.
type Params struct {
	// PingInterval is how long to wait since the last emitted Ping before
	// emitting another one.
	PingInterval time.Duration

	// RequestMissingInterval is how long to wait before re-requesting a
	// missing confirmed message.
	RequestMissingInterval time.Duration

	// EmitUnconfirmedInterval is how long to wait before resending a
	// cached confirmed message that has not yet been acknowledged.
	EmitUnconfirmedInterval time.Duration

	// ReceivePingTimeout is how long since the last inbound packet before
	// the connection is no longer considered Connected.
	ReceivePingTimeout time.Duration

	// SendPingTimeout is how long since the last emitted Ping before the
	// connection is considered fully Disconnected rather than Connecting.
	SendPingTimeout time.Duration

	// MaxDatagramSize bounds the receive buffer used by ReceiveFrom.
	MaxDatagramSize int
}

// DefaultParams returns a 500ms ping interval, 1s request/retransmit
// intervals, and 3x the ping interval for both disconnect timeouts.
func DefaultParams() Params {
	const pingInterval = 500 * time.Millisecond
	return Params{
		PingInterval:            pingInterval,
		RequestMissingInterval:  time.Second,
		EmitUnconfirmedInterval: time.Second,
		ReceivePingTimeout:      3 * pingInterval,
		SendPingTimeout:         3 * pingInterval,
		MaxDatagramSize:         1024,
	}
}

// ErrInvalidParams is returned by Validate when a tunable is non-positive,
// non-finite, or when ReceivePingTimeout is not strictly greater than
// PingInterval (which would make the connection thrash between Connected
// and Connecting on every ping cycle).
var ErrInvalidParams = errors.New("reliconn: invalid params")

// Validate checks the invariants every Params value must satisfy.
func (p Params) Validate() error {
	for _, d := range []time.Duration{
		p.PingInterval, p.RequestMissingInterval, p.EmitUnconfirmedInterval,
		p.ReceivePingTimeout, p.SendPingTimeout,
	} {
		if d <= 0 {
			return ErrInvalidParams
		}
	}
	if p.MaxDatagramSize <= 0 {
		return ErrInvalidParams
	}
	if p.ReceivePingTimeout <= p.PingInterval {
		return ErrInvalidParams
	}
	return nil
}
