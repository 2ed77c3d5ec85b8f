// Package remote drives the embedded player in a browser page over a
// websocket. The page connects to the bridge, the session logic sends JSON
// commands, and the page reports ready/ended events back.
package remote

import (
	"context"
	"net"
	"net/http"
	gosync "sync"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/cimena/cinecast/internal/errors"
	"github.com/cimena/cinecast/internal/log"
	"github.com/cimena/cinecast/player"
)

const (
	ErrNotConnected errors.Code = "player page not connected"
	ErrBufferFull   errors.Code = "buffer_full"
)

const (
	pingInterval = 10 * time.Second
	pingTimeout  = 3 * time.Second
	writeTimeout = 3 * time.Second
	bufCommands  = 16
)

type command struct {
	Op      string `json:"op"`
	VideoID string `json:"videoId,omitempty"`
	Volume  *int   `json:"volume,omitempty"`
}

type pageEvent struct {
	Event string `json:"event"`
}

// Bridge accepts at most one page connection at a time; a newer connection
// replaces the previous one. It implements player.Factory, handing out
// controllers bound to whichever page is currently attached.
type Bridge struct {
	allowedOrigins []string
	logger         *log.Logger

	mu      gosync.Mutex
	session *session
	events  player.Events
}

func NewBridge(allowedOrigins []string, logger *log.Logger) *Bridge {
	return &Bridge{
		allowedOrigins: allowedOrigins,
		logger:         logger.Module("remote"),
	}
}

// Acquire returns a controller for the attached page, or ErrNotConnected
// when no page is attached yet.
func (b *Bridge) Acquire(_ context.Context, events player.Events) (player.Controller, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.session == nil {
		return nil, errors.New(ErrNotConnected, "acquire")
	}
	b.events = events
	return &controller{bridge: b}, nil
}

// HandleWebSocket upgrades the request and serves the page connection until
// it closes.
func (b *Bridge) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	wsConn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: b.allowedOrigins,
	})
	if err != nil {
		b.logger.Error("WebSocket open failed",
			log.String("remote_addr", r.RemoteAddr),
			log.Error(err))
		return
	}

	s := newSession(wsConn, b.logger)
	s.open(r.Context())

	b.mu.Lock()
	if prev := b.session; prev != nil {
		prev.close(nil)
	}
	b.session = s
	b.mu.Unlock()

	b.logger.Info("Player page connected",
		log.String("remote_addr", r.RemoteAddr))

	go b.readLoop(s)
	s.wait()

	b.mu.Lock()
	if b.session == s {
		b.session = nil
	}
	b.mu.Unlock()

	b.logger.Info("Player page disconnected",
		log.String("remote_addr", r.RemoteAddr))
}

func (b *Bridge) readLoop(s *session) {
	for {
		var ev pageEvent
		if err := wsjson.Read(s.ctx, s.conn, &ev); err != nil {
			s.close(err)
			return
		}
		b.dispatch(ev.Event)
	}
}

func (b *Bridge) dispatch(name string) {
	b.mu.Lock()
	events := b.events
	b.mu.Unlock()

	switch name {
	case "ready":
		if events.OnReady != nil {
			events.OnReady()
		}
	case "ended":
		if events.OnEnded != nil {
			events.OnEnded()
		}
	default:
		b.logger.Debug("Ignoring unknown page event", log.String("event", name))
	}
}

func (b *Bridge) send(cmd command) error {
	b.mu.Lock()
	s := b.session
	b.mu.Unlock()

	if s == nil {
		return errors.Newf(ErrNotConnected, "send %s", cmd.Op)
	}
	return s.write(cmd)
}

type controller struct {
	bridge *Bridge
}

func (c *controller) LoadByID(videoID string) error {
	return c.bridge.send(command{Op: "loadById", VideoID: videoID})
}

func (c *controller) Mute() error {
	return c.bridge.send(command{Op: "mute"})
}

func (c *controller) Unmute() error {
	return c.bridge.send(command{Op: "unmute"})
}

func (c *controller) SetVolume(percent int) error {
	return c.bridge.send(command{Op: "setVolume", Volume: &percent})
}

func (c *controller) Destroy() error {
	return c.bridge.send(command{Op: "destroy"})
}

func (c *controller) Stop() error {
	return c.bridge.send(command{Op: "stop"})
}

type session struct {
	conn  *websocket.Conn
	chBuf chan func() error

	ctx       context.Context
	cancel    context.CancelFunc
	closeOnce gosync.Once
	logger    *log.Logger
}

func newSession(conn *websocket.Conn, logger *log.Logger) *session {
	return &session{
		conn:   conn,
		chBuf:  make(chan func() error, bufCommands),
		logger: logger,
	}
}

func (s *session) open(ctx context.Context) {
	s.ctx, s.cancel = context.WithCancel(ctx)

	go func() {
		err := s.writePump(s.ctx)
		s.close(err)
	}()
}

func (s *session) write(obj any) error {
	select {
	case <-s.ctx.Done():
		return net.ErrClosed
	default:
	}

	action := func() error {
		ctx, cancel := context.WithTimeout(s.ctx, writeTimeout)
		defer cancel()
		return wsjson.Write(ctx, s.conn, obj)
	}

	select {
	case s.chBuf <- action:
		return nil
	default:
		s.close(ErrBufferFull)
		return ErrBufferFull
	}
}

func (s *session) writePump(ctx context.Context) error {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := s.ping(ctx); err != nil {
				return err
			}
		case action := <-s.chBuf:
			if err := action(); err != nil {
				return err
			}
		}
	}
}

func (s *session) ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()

	return s.conn.Ping(ctx)
}

func (s *session) close(err error) {
	s.closeOnce.Do(func() {
		code := websocket.StatusNormalClosure
		closed := false
		_, peerClosed := errors.As[*websocket.CloseError](err)

		switch {
		case err == nil || errors.Is(err, context.Canceled):
		case peerClosed, errors.Is(err, net.ErrClosed):
			closed = true
		case errors.Is(err, ErrBufferFull):
			code = websocket.StatusPolicyViolation
		default:
			s.logger.Warn("Page connection closing on error", log.Error(err))
			code = websocket.StatusInternalError
		}

		if closed {
			_ = s.conn.CloseNow()
		} else {
			_ = s.conn.Close(code, "bye")
		}
		s.cancel()
	})
}

func (s *session) wait() {
	<-s.ctx.Done()
}
