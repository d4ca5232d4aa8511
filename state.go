/*
File Name:  state.go
Copyright:  2021 Peernet s.r.o.
Author:     Peter Kleissner
*/

package reliconn

// State is the tri-state connection status derived purely from the two
// ping timestamps and the configured timeouts; it is re-evaluated on every
// State() call rather than tracked as an explicit transition.
type State uint8

const (
	// Disconnected means no inbound packet has arrived recently enough,
	// and our own pings have also gone unanswered for long enough that we
	// have given up. Only Connect() resumes from here.
	Disconnected State = iota
	// Connecting means no inbound packet has arrived recently, but we are
	// still actively pinging and haven't yet given up.
	Connecting
	// Connected means an inbound packet arrived within ReceivePingTimeout.
	Connected
)

// String implements fmt.Stringer.
func (s State) String() string {
	switch s {
	case Connected:
		return "Connected"
	case Connecting:
		return "Connecting"
	case Disconnected:
		return "Disconnected"
	default:
		return "Unknown"
	}
}
