// Package datagram defines the Conn interface the reliability core uses to
// send and receive raw segments, plus a real net.UDPConn-backed
// implementation. Core packages (sender, receiver) depend only on Conn,
// never on net.PacketConn directly, so they can be driven in tests by the
// in-memory fake in memconn.go instead.
package datagram

import (
	"net"
	"time"

	"github.com/pkg/errors"
)

// Error is a sentinel error type, mirroring the reference stack's
// types.Error.
type Error struct{ s string }

func (e *Error) Error() string { return e.s }

// ErrTimeout is returned by Conn.Recv when no datagram arrives within the
// requested timeout.
var ErrTimeout = &Error{"datagram: recv timed out"}

// Conn is the datagram transport the core depends on: a blocking send and
// a receive-with-timeout, each carrying one already-framed segment.
type Conn interface {
	Send(b []byte) error
	Recv(timeout time.Duration) ([]byte, error)
}

// UDPConn sends to and receives from a single fixed peer over two
// independently-bound UDP sockets (distinct send/recv local ports, as the
// CLI surface requires), matching the source implementation's so/si
// socket pair.
type UDPConn struct {
	sendConn *net.UDPConn
	recvConn *net.UDPConn
	peer     *net.UDPAddr
	bufSize  int
}

// DialUDP binds a send socket at sendAddr and a recv socket at recvAddr,
// targeting peer for every Send, and sizing Recv's read buffer at
// ibufferSize bytes.
func DialUDP(sendAddr, recvAddr, peer string, ibufferSize int) (*UDPConn, error) {
	sLocal, err := net.ResolveUDPAddr("udp", sendAddr)
	if err != nil {
		return nil, errors.Wrapf(err, "resolve send address %q", sendAddr)
	}
	rLocal, err := net.ResolveUDPAddr("udp", recvAddr)
	if err != nil {
		return nil, errors.Wrapf(err, "resolve recv address %q", recvAddr)
	}
	peerAddr, err := net.ResolveUDPAddr("udp", peer)
	if err != nil {
		return nil, errors.Wrapf(err, "resolve peer address %q", peer)
	}

	sendConn, err := net.ListenUDP("udp", sLocal)
	if err != nil {
		return nil, errors.Wrapf(err, "bind send socket %s", sendAddr)
	}
	recvConn, err := net.ListenUDP("udp", rLocal)
	if err != nil {
		sendConn.Close()
		return nil, errors.Wrapf(err, "bind recv socket %s", recvAddr)
	}

	return &UDPConn{
		sendConn: sendConn,
		recvConn: recvConn,
		peer:     peerAddr,
		bufSize:  ibufferSize,
	}, nil
}

// Send transmits b to the configured peer over the send socket.
func (c *UDPConn) Send(b []byte) error {
	_, err := c.sendConn.WriteToUDP(b, c.peer)
	if err != nil {
		return errors.Wrap(err, "send datagram")
	}
	return nil
}

// Recv blocks for at most timeout waiting for one datagram on the recv
// socket. It returns ErrTimeout if none arrives in time. A timeout of zero
// (or less) polls: a datagram already queued is returned, otherwise
// ErrTimeout after at most a millisecond.
func (c *UDPConn) Recv(timeout time.Duration) ([]byte, error) {
	if timeout <= 0 {
		// A deadline already in the past fails the read before the socket
		// is even checked, so a poll uses a minimal positive deadline.
		timeout = time.Millisecond
	}
	if err := c.recvConn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
		return nil, errors.Wrap(err, "set read deadline")
	}
	buf := make([]byte, c.bufSize)
	n, _, err := c.recvConn.ReadFromUDP(buf)
	if err != nil {
		if ne, ok := err.(net.Error); ok && ne.Timeout() {
			return nil, ErrTimeout
		}
		return nil, errors.Wrap(err, "recv datagram")
	}
	return buf[:n], nil
}

// Close releases both underlying sockets.
func (c *UDPConn) Close() error {
	err1 := c.sendConn.Close()
	err2 := c.recvConn.Close()
	if err1 != nil {
		return err1
	}
	return err2
}
