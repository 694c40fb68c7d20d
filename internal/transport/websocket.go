package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// StreamPath is the HTTP path consumers upgrade on.
const StreamPath = "/stream"

// WebSocketListener accepts the consumer as a WebSocket client. The first
// text message from the client is the handshake; each record is then sent
// as its own text message.
type WebSocketListener struct {
	ln       net.Listener
	srv      *http.Server
	opts     Options
	log      *zap.SugaredLogger
	upgrader websocket.Upgrader

	conns chan *websocket.Conn
	done  chan struct{}

	mu     sync.Mutex
	busy   bool
	closed bool
}

// ListenWebSocket starts an HTTP server on addr serving StreamPath.
func ListenWebSocket(ctx context.Context, addr string, opts Options, logger *zap.SugaredLogger) (*WebSocketListener, error) {
	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen %s: %w", addr, err)
	}
	l := &WebSocketListener{
		ln:   ln,
		opts: opts,
		log:  logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		conns: make(chan *websocket.Conn),
		done:  make(chan struct{}),
	}
	mux := http.NewServeMux()
	mux.HandleFunc(StreamPath, l.handleStream)
	l.srv = &http.Server{Handler: mux, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		if err := l.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Errorw("websocket server stopped", "error", err)
		}
	}()
	return l, nil
}

// Addr returns the address the server is bound to.
func (l *WebSocketListener) Addr() net.Addr { return l.ln.Addr() }

func (l *WebSocketListener) handleStream(w http.ResponseWriter, r *http.Request) {
	l.mu.Lock()
	if l.busy || l.closed {
		l.mu.Unlock()
		http.Error(w, "a consumer is already connected", http.StatusConflict)
		return
	}
	l.busy = true
	l.mu.Unlock()

	conn, err := l.upgrader.Upgrade(w, r, nil)
	if err != nil {
		l.release()
		l.log.Warnw("websocket upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}
	l.log.Infow("consumer connected", "remote", conn.RemoteAddr())
	select {
	case l.conns <- conn:
	case <-l.done:
		conn.Close()
	}
}

func (l *WebSocketListener) release() {
	l.mu.Lock()
	l.busy = false
	l.mu.Unlock()
}

// Accept waits for a consumer to connect and send the handshake.
func (l *WebSocketListener) Accept(ctx context.Context) (Channel, error) {
	var conn *websocket.Conn
	select {
	case conn = <-l.conns:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	if l.opts.HandshakeTimeout > 0 {
		conn.SetReadDeadline(time.Now().Add(l.opts.HandshakeTimeout))
	}
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	_, msg, err := conn.ReadMessage()
	stop()
	if err == nil {
		if len(msg) > handshakeSize {
			msg = msg[:handshakeSize]
		}
		err = CheckToken(string(msg))
	} else {
		err = fmt.Errorf("read handshake: %w", err)
	}
	if err != nil {
		conn.Close()
		l.release()
		return nil, err
	}
	conn.SetReadDeadline(time.Time{})
	l.log.Infow("handshake complete", "remote", conn.RemoteAddr())
	return &WebSocketChannel{conn: conn, opts: l.opts, done: l.release}, nil
}

// Close shuts the HTTP server down. An accepted channel stays open.
func (l *WebSocketListener) Close() error {
	l.mu.Lock()
	if !l.closed {
		l.closed = true
		close(l.done)
	}
	l.mu.Unlock()
	return l.srv.Close()
}

// WebSocketChannel sends each record as one text message.
type WebSocketChannel struct {
	conn *websocket.Conn
	opts Options
	done func()
	once sync.Once
}

// Send writes r.
func (c *WebSocketChannel) Send(r Record) error {
	if c.opts.WriteTimeout > 0 {
		c.conn.SetWriteDeadline(time.Now().Add(c.opts.WriteTimeout))
	}
	if err := c.conn.WriteMessage(websocket.TextMessage, []byte(r.Format(c.opts.Precision))); err != nil {
		return fmt.Errorf("send record: %w", err)
	}
	return nil
}

// Close sends a close frame and closes the connection.
func (c *WebSocketChannel) Close() error {
	var err error
	c.once.Do(func() {
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "session over")
		c.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
		err = c.conn.Close()
		if c.done != nil {
			c.done()
		}
	})
	return err
}
