// Package signal adapts WebSocket connections to the relay core. It owns
// the upgrade handshake, the read/write pumps and the heartbeat; the relay
// only ever sees the SignalConn interface.
package signal

import (
	"context"
	"errors"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/Instaresz90008/video-conferencing-sub001/internal/app"
	"github.com/Instaresz90008/video-conferencing-sub001/internal/config"
	"github.com/Instaresz90008/video-conferencing-sub001/internal/core"
)

var ErrBackpressure = errors.New("backpressure")

type Controller struct {
	Relay *app.Relay
	Cfg   *config.Config
}

func NewController(relay *app.Relay, cfg *config.Config) *Controller {
	return &Controller{Relay: relay, Cfg: cfg}
}

// wsConn carries one gorilla connection plus its outbound buffer. The send
// channel exists because gorilla allows only one concurrent writer; the
// write pump drains it sequentially.
type wsConn struct {
	conn *websocket.Conn
	send chan core.Frame

	mu     sync.RWMutex
	closed bool
}

func (c *wsConn) TrySend(f core.Frame) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return errors.New("connection closed")
	}
	select {
	case c.send <- f:
	default:
		return ErrBackpressure
	}
	return nil
}

func (c *wsConn) Open() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return !c.closed
}

func (c *wsConn) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	close(c.send)
	_ = c.conn.Close()
	c.mu.Unlock()
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// HandleSignal upgrades the request and hands the connection to the relay.
func (ctl *Controller) HandleSignal(ctx context.Context, c *gin.Context) {
	ct := c.GetString("client_token")

	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("ws upgrade")
		return
	}

	conn := &wsConn{
		conn: ws,
		send: make(chan core.Frame, 32),
	}

	id := ctl.Relay.Attach(conn)
	log.Info().Str("module", "signal").Str("conn", string(id)).Str("ct", ct).Msg("new WS connection")

	ctx, cancel := context.WithCancel(ctx)

	go ctl.writePump(ctx, conn, cancel)
	go ctl.readPump(ctx, id, conn, cancel)
}
