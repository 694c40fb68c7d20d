// Package transport streams pupil coordinates to the single consumer of a
// tracking session.
//
// A session starts with a handshake: the consumer connects and sends the
// token "ok". After that the tracker writes one Record per processed frame.
package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
)

// HandshakeToken is what the consumer must send before records flow.
const HandshakeToken = "ok"

// handshakeSize is the most bytes read for the handshake message.
const handshakeSize = 32

// DefaultPrecision is the number of decimals records are written with.
const DefaultPrecision = 4

// ErrHandshake is returned when the consumer sends anything but
// HandshakeToken.
var ErrHandshake = errors.New("handshake failed")

// Record is the pupil position for one frame, in normalized coordinates.
type Record struct {
	X, Y float64
}

// Format renders r as "x,y,0,0" with the given number of decimals. The
// two trailing fields are reserved and always zero.
func (r Record) Format(precision int) string {
	var b strings.Builder
	b.WriteString(strconv.FormatFloat(r.X, 'f', precision, 64))
	b.WriteByte(',')
	b.WriteString(strconv.FormatFloat(r.Y, 'f', precision, 64))
	b.WriteString(",0,0")
	return b.String()
}

// Channel delivers records to the consumer.
type Channel interface {
	Send(r Record) error
	Close() error
}

// Acceptor waits for the consumer to connect and complete the handshake.
type Acceptor interface {
	Addr() net.Addr
	Accept(ctx context.Context) (Channel, error)
	Close() error
}

// Options configures channels.
type Options struct {
	// Precision is the number of decimals of each coordinate.
	Precision int
	// WriteTimeout bounds each Send; zero waits forever. A consumer that
	// stops reading stalls the tracker for at most this long before the
	// send fails.
	WriteTimeout time.Duration
	// HandshakeTimeout bounds the wait for the handshake message once a
	// consumer has connected; zero waits forever.
	HandshakeTimeout time.Duration
}

// Transport kinds accepted by Listen.
const (
	KindTCP       = "tcp"
	KindWebSocket = "websocket"
)

// Listen starts listening for the consumer on addr using the given
// transport kind.
func Listen(ctx context.Context, kind, addr string, opts Options, logger *zap.SugaredLogger) (Acceptor, error) {
	switch kind {
	case KindTCP:
		return ListenTCP(ctx, addr, opts, logger)
	case KindWebSocket:
		return ListenWebSocket(ctx, addr, opts, logger)
	}
	return nil, fmt.Errorf("unknown transport %q", kind)
}

// CheckToken validates a handshake message.
func CheckToken(msg string) error {
	if got := strings.TrimSpace(msg); got != HandshakeToken {
		return fmt.Errorf("%w: got %q, want %q", ErrHandshake, got, HandshakeToken)
	}
	return nil
}

// Handshake reads one message of at most 32 bytes from r and validates it.
func Handshake(r io.Reader) error {
	buf := make([]byte, handshakeSize)
	n, err := r.Read(buf)
	if n == 0 && err != nil {
		return fmt.Errorf("read handshake: %w", err)
	}
	return CheckToken(string(buf[:n]))
}
