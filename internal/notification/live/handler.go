package live

import (
	"encoding/json"
	"net/http"
	"time"

	"clinicbook_backend/platform/httpkit"
	"clinicbook_backend/platform/logger"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

const (
	heartbeatInterval = 25 * time.Second
	writeWait         = 10 * time.Second
	pongWait          = 60 * time.Second
	pingPeriod        = (pongWait * 9) / 10
)

// Handler serves the SSE and websocket endpoints.
type Handler struct {
	hub      *Hub
	log      *logger.Logger
	upgrader websocket.Upgrader
}

// NewHandler creates a live handler. checkOrigin may be nil, in which case
// websocket upgrades are restricted to same-origin requests.
func NewHandler(hub *Hub, log *logger.Logger, checkOrigin func(*http.Request) bool) *Handler {
	return &Handler{
		hub: hub,
		log: log,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     checkOrigin,
		},
	}
}

// RegisterRoutes mounts the stream endpoints on an authenticated group.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/appointments/stream", h.Stream)
	rg.GET("/appointments/ws", h.WebSocket)
}

// subscriptionTopics returns the topics identity may listen on. Admins see
// every appointment; everyone else only their own.
func subscriptionTopics(identity httpkit.Identity) []string {
	if identity.HasRole(httpkit.RoleAdmin) {
		return []string{TopicAppointments}
	}
	return []string{PatientTopic(identity.UserID())}
}

// eventName reads the envelope type for the SSE event field.
func eventName(payload []byte) string {
	var head struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(payload, &head); err != nil || head.Type == "" {
		return "message"
	}
	return head.Type
}

func (h *Handler) Stream(c *gin.Context) {
	identity := httpkit.MustGetIdentity(c)
	if identity == nil {
		return
	}

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")
	c.Writer.Header().Set("X-Accel-Buffering", "no")

	sub := h.hub.Register(subscriptionTopics(identity)...)
	defer h.hub.Unregister(sub)

	c.SSEvent("connected", gin.H{"userId": identity.UserID(), "topics": sub.Topics})
	c.Writer.Flush()
	h.log.Debug("live stream connected", "user_id", identity.UserID().String(), "subscriber", sub.ID)

	heartbeat := time.NewTicker(heartbeatInterval)
	defer heartbeat.Stop()

	clientGone := c.Request.Context().Done()
	for {
		select {
		case <-clientGone:
			h.log.Debug("live stream disconnected", "subscriber", sub.ID)
			return
		case <-heartbeat.C:
			c.SSEvent("ping", gin.H{"at": time.Now().UTC()})
			c.Writer.Flush()
		case msg, ok := <-sub.Send:
			if !ok {
				return
			}
			c.SSEvent(eventName(msg.Payload), string(msg.Payload))
			c.Writer.Flush()
		}
	}
}

type wsFrame struct {
	Topic string          `json:"topic"`
	Event json.RawMessage `json:"event"`
}

func (h *Handler) WebSocket(c *gin.Context) {
	identity := httpkit.MustGetIdentity(c)
	if identity == nil {
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Warn("websocket upgrade failed", "error", err)
		return
	}

	sub := h.hub.Register(subscriptionTopics(identity)...)
	done := make(chan struct{})
	go h.readPump(conn, done)
	h.writePump(conn, sub, done)
}

// readPump discards client frames and keeps the read deadline fresh. It
// closes done when the peer goes away.
func (h *Handler) readPump(conn *websocket.Conn, done chan<- struct{}) {
	defer close(done)

	conn.SetReadLimit(512)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.log.Debug("websocket read error", "error", err)
			}
			return
		}
	}
}

func (h *Handler) writePump(conn *websocket.Conn, sub *Subscriber, done <-chan struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		h.hub.Unregister(sub)
		_ = conn.Close()
	}()

	for {
		select {
		case <-done:
			return
		case msg, ok := <-sub.Send:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := conn.WriteJSON(wsFrame{Topic: msg.Topic, Event: msg.Payload}); err != nil {
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
