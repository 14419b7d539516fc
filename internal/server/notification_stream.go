package server

import (
	"net/http"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/smallbiznis/pasar/internal/notification/stream"
	obsmetrics "github.com/smallbiznis/pasar/internal/observability/metrics"
	"go.uber.org/zap"
)

const (
	streamWriteWait     = 10 * time.Second
	streamPongWait      = 60 * time.Second
	streamPingInterval  = 30 * time.Second
	streamIdentifyLimit = 10 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

type identifyMessage struct {
	Type   string `json:"type"`
	UserID string `json:"user_id"`
}

// StreamNotifications upgrades the connection and streams unread-count
// hints and notification events for the authenticated user. The first
// client frame must be an identify message naming the same user the
// token resolved to.
func (s *Server) StreamNotifications(c *gin.Context) {
	userID := currentUserID(c)

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade already wrote the failure response.
		return
	}
	defer conn.Close()

	log := s.log.Named("stream").With(zap.String("user_id", userID.String()))

	if err := awaitIdentify(conn, userID); err != nil {
		log.Debug("identify handshake failed", zap.Error(err))
		_ = conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "identify mismatch"),
			time.Now().Add(streamWriteWait),
		)
		return
	}

	sub, backlog, err := s.hub.Subscribe(userID)
	if err != nil {
		log.Warn("stream subscribe failed", zap.Error(err))
		return
	}
	defer sub.Close()

	obsmetrics.StreamConnections.Inc()
	defer obsmetrics.StreamConnections.Dec()

	// Initial snapshot so the client can render a badge before any
	// event arrives.
	count, err := s.notificationSvc.UnreadCount(c.Request.Context(), userID)
	if err == nil {
		_ = writeEvent(conn, stream.Event{Kind: stream.EventKindUnreadCount, UnreadCount: count})
	}
	for _, event := range backlog {
		if err := writeEvent(conn, event); err != nil {
			return
		}
	}

	conn.SetReadLimit(512)
	_ = conn.SetReadDeadline(time.Now().Add(streamPongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(streamPongWait))
	})

	// Reader drains control frames and detects the peer going away.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(streamPingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-c.Request.Context().Done():
			return
		case event, ok := <-sub.Events():
			if !ok {
				return
			}
			if err := writeEvent(conn, event); err != nil {
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(streamWriteWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func awaitIdentify(conn *websocket.Conn, userID snowflake.ID) error {
	_ = conn.SetReadDeadline(time.Now().Add(streamIdentifyLimit))

	var msg identifyMessage
	if err := conn.ReadJSON(&msg); err != nil {
		return err
	}
	if msg.Type != "identify" {
		return ErrInvalidRequest
	}
	claimed, err := snowflake.ParseString(msg.UserID)
	if err != nil || claimed != userID {
		return ErrForbidden
	}
	return nil
}

func writeEvent(conn *websocket.Conn, event stream.Event) error {
	_ = conn.SetWriteDeadline(time.Now().Add(streamWriteWait))
	return conn.WriteJSON(event)
}
