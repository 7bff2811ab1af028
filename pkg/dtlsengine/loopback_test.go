package dtlsengine_test

import (
	"errors"
	"net"
	"time"
)

// loopbackConn is a minimal net.Conn used only to drive the client half of
// a handshake against dtlsengine.Engine's server pipe in tests.
type loopbackConn struct {
	inbound chan []byte
	toFeed  func([]byte)
	closed  chan struct{}
	local   net.Addr
	remote  net.Addr
}

func newLoopbackClientConn(local, remote net.Addr) (*loopbackConn, func([]byte)) {
	c := &loopbackConn{
		inbound: make(chan []byte, 64),
		closed:  make(chan struct{}),
		local:   local,
		remote:  remote,
	}
	return c, c.feed
}

// bindTo wires the engine's Feed so bytes this conn writes reach the server.
func (c *loopbackConn) bindTo(engineFeed func([]byte)) { c.toFeed = engineFeed }

func (c *loopbackConn) feed(b []byte) {
	cp := append([]byte(nil), b...)
	select {
	case c.inbound <- cp:
	case <-c.closed:
	}
}

func (c *loopbackConn) Read(b []byte) (int, error) {
	select {
	case data := <-c.inbound:
		return copy(b, data), nil
	case <-c.closed:
		return 0, errors.New("loopback closed")
	}
}

func (c *loopbackConn) Write(b []byte) (int, error) {
	if c.toFeed != nil {
		c.toFeed(b)
	}
	return len(b), nil
}

func (c *loopbackConn) Close() error {
	select {
	case <-c.closed:
	default:
		close(c.closed)
	}
	return nil
}

func (c *loopbackConn) LocalAddr() net.Addr                { return c.local }
func (c *loopbackConn) RemoteAddr() net.Addr               { return c.remote }
func (c *loopbackConn) SetDeadline(t time.Time) error      { return nil }
func (c *loopbackConn) SetReadDeadline(t time.Time) error  { return nil }
func (c *loopbackConn) SetWriteDeadline(t time.Time) error { return nil }
