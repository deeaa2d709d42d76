package ws

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/ThuyDang88/webview/internal/infrastructure/logging"
	"github.com/ThuyDang88/webview/internal/infrastructure/monitoring"
	"github.com/ThuyDang88/webview/internal/shared/id"
	"github.com/ThuyDang88/webview/internal/views"
)

const (
	// writeWait bounds a single frame write.
	writeWait = 10 * time.Second
	// pongWait is how long a client may stay silent before the read side
	// gives up; pings go out at pingPeriod to keep it fed.
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
	// maxInbound caps client payloads (posted data, injected scripts).
	maxInbound = 512 * 1024
	// controlBuffer holds replies (hello, pong, errors) awaiting the writer.
	controlBuffer = 8
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin: func(r *http.Request) bool {
		return true // all origins may connect
	},
}

// Handler upgrades control-API clients onto per-view event streams.
type Handler struct {
	views   *views.Manager
	log     *logging.Logger
	metrics *monitoring.Metrics
}

// NewHandler creates a stream handler over the view registry.
func NewHandler(mgr *views.Manager, log *logging.Logger, metrics *monitoring.Metrics) *Handler {
	return &Handler{
		views:   mgr,
		log:     logging.OrNop(log),
		metrics: metrics,
	}
}

// inbound is what stream clients may send.
type inbound struct {
	Type   string `json:"type"`
	Data   string `json:"data,omitempty"`
	Script string `json:"script,omitempty"`
}

// control frames sit outside the view stream: the hello snapshot, pongs
// and error notices.
type control struct {
	Type      string      `json:"type"`
	Message   string      `json:"message,omitempty"`
	View      *views.Info `json:"view,omitempty"`
	Timestamp int64       `json:"timestamp"`
}

// HandleEvents upgrades the connection and streams the view's frames until
// either side goes away. Client messages drive the view: "post" delivers a
// host-to-page message, "inject" queues script, "ping" keeps the socket
// warm.
func (h *Handler) HandleEvents(c *gin.Context) {
	viewID := id.ViewID(c.Param("id"))
	entry, ok := h.views.Get(viewID)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "view not found"})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Warn("websocket upgrade failed",
			zap.String("view_id", viewID.String()),
			zap.Error(err),
		)
		return
	}

	frames, cancel := entry.Subscribe()
	cl := &client{
		id:      id.NewClientID(),
		conn:    conn,
		entry:   entry,
		log:     h.log,
		metrics: h.metrics,
		frames:  frames,
		control: make(chan control, controlBuffer),
	}

	if h.metrics != nil {
		h.metrics.IncWSConnections()
	}
	h.log.Info("stream client connected",
		zap.String("client_id", cl.id.String()),
		zap.String("view_id", entry.ID().String()),
	)

	info := entry.Info()
	cl.reply(control{Type: "hello", View: &info, Timestamp: time.Now().Unix()})

	go cl.writePump()
	cl.readLoop()

	// Closing the subscription ends the write pump, which closes the
	// connection.
	cancel()
	if h.metrics != nil {
		h.metrics.DecWSConnections()
	}
	h.log.Info("stream client disconnected",
		zap.String("client_id", cl.id.String()),
		zap.String("view_id", entry.ID().String()),
	)
}

// client is one upgraded connection. The write pump is the only goroutine
// that touches conn's write side.
type client struct {
	id      id.ClientID
	conn    *websocket.Conn
	entry   *views.Entry
	log     *logging.Logger
	metrics *monitoring.Metrics

	frames  <-chan views.Frame
	control chan control
}

func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case frame, ok := <-c.frames:
			if !ok {
				// Subscription ended: either the client left or the view
				// was deleted under it.
				deadline := time.Now().Add(writeWait)
				msg := websocket.FormatCloseMessage(websocket.CloseGoingAway, "view closed")
				_ = c.conn.WriteControl(websocket.CloseMessage, msg, deadline)
				return
			}
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteJSON(frame); err != nil {
				return
			}
			if c.metrics != nil {
				c.metrics.RecordWSMessage("out", frame.Type)
			}
		case note := <-c.control:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteJSON(note); err != nil {
				return
			}
			if c.metrics != nil {
				c.metrics.RecordWSMessage("out", note.Type)
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *client) readLoop() {
	c.conn.SetReadLimit(maxInbound)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		var msg inbound
		if err := c.conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.log.Debug("stream read ended",
					zap.String("client_id", c.id.String()),
					zap.Error(err),
				)
			}
			return
		}
		if c.metrics != nil {
			c.metrics.RecordWSMessage("in", msg.Type)
		}

		switch msg.Type {
		case "post":
			c.entry.Post(msg.Data)
		case "inject":
			if msg.Script == "" {
				c.reply(control{Type: "error", Message: "inject requires a script", Timestamp: time.Now().Unix()})
				continue
			}
			c.entry.Inject(msg.Script)
		case "ping":
			c.reply(control{Type: "pong", Timestamp: time.Now().Unix()})
		default:
			c.reply(control{
				Type:      "error",
				Message:   fmt.Sprintf("unknown message type %q", msg.Type),
				Timestamp: time.Now().Unix(),
			})
		}
	}
}

// reply queues a control frame without ever blocking the read loop.
func (c *client) reply(note control) {
	select {
	case c.control <- note:
	default:
		c.log.Debug("control buffer full, dropping reply",
			zap.String("client_id", c.id.String()),
			zap.String("type", note.Type),
		)
	}
}
