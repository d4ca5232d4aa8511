/*
File Name:  transport.go
Copyright:  2021 Peernet s.r.o.
Author:     Peter Kleissner

Socket is the narrow capability the reliability core consumes. It never
opens sockets, selects, or multiplexes connections itself; that is owned by
the embedder, matching Network.go's separation between the UDP listener and
the higher-level protocol logic.
*/

package transport

import (
	"errors"
	"net"
	"time"
)

// ErrWouldBlock is returned by Socket.RecvFrom when no datagram is
// currently available. It must be distinguishable from any other receive
// error so that a draining loop knows to stop rather than fail.
var ErrWouldBlock = errors.New("transport: would block")

// Socket is the transport capability the Connector is parameterized over.
// Implementations must preserve datagram boundaries: one packet per
// RecvFrom/SendTo call, as is natural for UDP.
type Socket interface {
	// RecvFrom reads one datagram into buf. It returns ErrWouldBlock
	// (wrapped or not, checked with errors.Is) if none is currently
	// available, rather than blocking.
	RecvFrom(buf []byte) (n int, addr net.Addr, err error)

	// LocalAddr returns the address this socket is bound to.
	LocalAddr() net.Addr

	// SendTo writes buf as a single datagram to dest. It may block briefly;
	// the reliability core does not time it out.
	SendTo(buf []byte, dest net.Addr) error
}

// UDPSocket adapts a *net.UDPConn to Socket, translating read timeouts into
// ErrWouldBlock so a single-threaded Connector can poll it non-blockingly.
type UDPSocket struct {
	conn *net.UDPConn
}

// NewUDPSocket wraps an already-bound UDP connection.
func NewUDPSocket(conn *net.UDPConn) *UDPSocket {
	return &UDPSocket{conn: conn}
}

// ListenUDP opens a new UDP socket, mirroring Network.go's AutoAssignPort
// in spirit but without the multi-interface/NAT bookkeeping that belongs to
// the embedder, not the core.
func ListenUDP(addr *net.UDPAddr) (*UDPSocket, error) {
	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		return nil, err
	}
	return NewUDPSocket(conn), nil
}

// RecvFrom implements Socket. It sets an immediate read deadline so the
// underlying blocking socket call behaves like a non-blocking poll.
func (s *UDPSocket) RecvFrom(buf []byte) (int, net.Addr, error) {
	if err := s.conn.SetReadDeadline(time.Now()); err != nil {
		return 0, nil, err
	}
	n, addr, err := s.conn.ReadFrom(buf)
	if err != nil {
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			return 0, nil, ErrWouldBlock
		}
		return 0, nil, err
	}
	return n, addr, nil
}

// LocalAddr implements Socket.
func (s *UDPSocket) LocalAddr() net.Addr { return s.conn.LocalAddr() }

// SendTo implements Socket.
func (s *UDPSocket) SendTo(buf []byte, dest net.Addr) error {
	_, err := s.conn.WriteTo(buf, dest)
	return err
}

// Close releases the underlying socket.
func (s *UDPSocket) Close() error { return s.conn.Close() }
