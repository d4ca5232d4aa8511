/*
File Name:  filters.go
Copyright:  2021 Peernet s.r.o.
Author:     Peter Kleissner

Filters let the embedder observe what a Connector does without the core
taking a dependency on any logging library. The functions are called
synchronously and must not block or mutate Connector state; if a filter
needs to do real work it should hand off to a goroutine itself, the same
contract Filter.go documents for the rest of this codebase.
*/

package reliconn

import "github.com/Trangar/reliconn/packet"

// Filters contains optional hooks the embedder can install to observe a
// Connector. Use nil for any hook that isn't needed.
type Filters struct {
	// LogError is an error-logging hook. No Connector method calls it:
	// every error a Connector observes, including a malformed datagram,
	// is returned to the caller instead.
	LogError func(function, format string, v ...interface{})

	// PacketOut is called for every packet this Connector emits.
	PacketOut func(kind packet.Kind)

	// PacketIn is called for every packet successfully decoded from the peer.
	PacketIn func(kind packet.Kind)

	// StateChange is called whenever State() is observed to differ from
	// the last time StateChange fired for this Connector.
	StateChange func(old, new State)
}

func (f Filters) logError(function, format string, v ...interface{}) {
	if f.LogError != nil {
		f.LogError(function, format, v...)
	}
}

func (f Filters) packetOut(kind packet.Kind) {
	if f.PacketOut != nil {
		f.PacketOut(kind)
	}
}

func (f Filters) packetIn(kind packet.Kind) {
	if f.PacketIn != nil {
		f.PacketIn(kind)
	}
}
