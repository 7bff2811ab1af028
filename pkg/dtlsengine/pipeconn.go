package dtlsengine

import (
	"errors"
	"net"
	"time"
)

// pipeConn adapts the session's UDP read loop / send callback to the
// net.Conn shape pion/dtls/v3 drives its handshake over. This is the Go
// expression of the original "BIO callbacks that reach back into the
// session" design: inbound bytes are queued by Feed, outbound bytes are
// handed to send.
type pipeConn struct {
	inbound chan []byte
	send    func([]byte) error
	closed  chan struct{}
	local   net.Addr
	remote  net.Addr
}

func newPipeConn(send func([]byte) error, local, remote net.Addr) *pipeConn {
	return &pipeConn{
		inbound: make(chan []byte, 64),
		send:    send,
		closed:  make(chan struct{}),
		local:   local,
		remote:  remote,
	}
}

// Feed queues an inbound datagram read off the UDP socket by the session.
func (c *pipeConn) Feed(b []byte) {
	cp := append([]byte(nil), b...)
	select {
	case c.inbound <- cp:
	case <-c.closed:
	}
}

func (c *pipeConn) Read(b []byte) (int, error) {
	select {
	case data := <-c.inbound:
		n := copy(b, data)
		return n, nil
	case <-c.closed:
		return 0, errors.New("dtlsengine: pipe closed")
	}
}

func (c *pipeConn) Write(b []byte) (int, error) {
	if err := c.send(b); err != nil {
		return 0, err
	}
	return len(b), nil
}

func (c *pipeConn) Close() error {
	select {
	case <-c.closed:
	default:
		close(c.closed)
	}
	return nil
}

func (c *pipeConn) LocalAddr() net.Addr  { return c.local }
func (c *pipeConn) RemoteAddr() net.Addr { return c.remote }

func (c *pipeConn) SetDeadline(t time.Time) error      { return nil }
func (c *pipeConn) SetReadDeadline(t time.Time) error   { return nil }
func (c *pipeConn) SetWriteDeadline(t time.Time) error  { return nil }
