package transport

import (
	"context"
	"fmt"
	"io"
	"net"
	"time"

	"go.uber.org/zap"
)

// TCPListener accepts the consumer over plain TCP.
type TCPListener struct {
	ln   net.Listener
	opts Options
	log  *zap.SugaredLogger
}

// ListenTCP listens on addr.
func ListenTCP(ctx context.Context, addr string, opts Options, logger *zap.SugaredLogger) (*TCPListener, error) {
	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen %s: %w", addr, err)
	}
	return &TCPListener{ln: ln, opts: opts, log: logger}, nil
}

// Addr returns the address the listener is bound to.
func (l *TCPListener) Addr() net.Addr { return l.ln.Addr() }

// Accept waits for one consumer and performs the handshake. On a failed
// handshake the connection is closed and an error wrapping ErrHandshake is
// returned.
func (l *TCPListener) Accept(ctx context.Context) (Channel, error) {
	stop := context.AfterFunc(ctx, func() { l.ln.Close() })
	conn, err := l.ln.Accept()
	stop()
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("accept: %w", err)
	}
	l.log.Infow("consumer connected", "remote", conn.RemoteAddr())

	if l.opts.HandshakeTimeout > 0 {
		conn.SetReadDeadline(time.Now().Add(l.opts.HandshakeTimeout))
	}
	stop = context.AfterFunc(ctx, func() { conn.Close() })
	err = Handshake(conn)
	stop()
	if err != nil {
		conn.Close()
		return nil, err
	}
	conn.SetReadDeadline(time.Time{})
	l.log.Infow("handshake complete", "remote", conn.RemoteAddr())
	return NewTCPChannel(conn, l.opts), nil
}

// Close stops listening. An accepted channel stays open.
func (l *TCPListener) Close() error { return l.ln.Close() }

// TCPChannel writes records to a stream connection. Records are written
// back to back without a delimiter; the consumer reads a fixed number of
// bytes per poll.
type TCPChannel struct {
	conn net.Conn
	opts Options
}

// NewTCPChannel wraps an established connection.
func NewTCPChannel(conn net.Conn, opts Options) *TCPChannel {
	return &TCPChannel{conn: conn, opts: opts}
}

// Send writes r.
func (c *TCPChannel) Send(r Record) error {
	if c.opts.WriteTimeout > 0 {
		c.conn.SetWriteDeadline(time.Now().Add(c.opts.WriteTimeout))
	}
	if _, err := io.WriteString(c.conn, r.Format(c.opts.Precision)); err != nil {
		return fmt.Errorf("send record: %w", err)
	}
	return nil
}

// Close closes the connection.
func (c *TCPChannel) Close() error { return c.conn.Close() }
