package ws

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel"

	"groupchat-service/internal/auth"
	"groupchat-service/internal/models"
	"groupchat-service/internal/observability"
)

const (
	eventsRoutingKey = "ws_events.groups"

	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// clientFrame is a request read from the websocket.
type clientFrame struct {
	Type    string `json:"type"`
	GroupID int    `json:"group_id"`
	Limit   int    `json:"limit,omitempty"`
	Text    string `json:"text,omitempty"`
}

type joinResult struct {
	Type    string            `json:"type"`
	Joined  bool              `json:"joined"`
	GroupID int               `json:"group_id"`
	Backlog []models.Message  `json:"backlog,omitempty"`
	Error   *models.WireError `json:"error,omitempty"`
}

type leftFrame struct {
	Type    string `json:"type"`
	GroupID int    `json:"group_id"`
}

type errorFrame struct {
	Type  string           `json:"type"`
	Error models.WireError `json:"error"`
}

// WebSocketHandler authenticates, upgrades and drives connections through
// the join/send/leave protocol.
type WebSocketHandler struct {
	registry    *Registry
	rooms       *RoomManager
	broadcaster *Broadcaster
	verifier    auth.TokenVerifier
}

// NewWebSocketHandler constructs a WebSocketHandler.
func NewWebSocketHandler(registry *Registry, rooms *RoomManager, broadcaster *Broadcaster, verifier auth.TokenVerifier) *WebSocketHandler {
	return &WebSocketHandler{
		registry:    registry,
		rooms:       rooms,
		broadcaster: broadcaster,
		verifier:    verifier,
	}
}

// Handle serves GET /ws: verifies the bearer token, upgrades the transport
// and registers the connection. Unauthenticated requests never upgrade.
func (h *WebSocketHandler) Handle(c *gin.Context) {
	ctx, span := otel.Tracer("groupchat-service/ws").Start(c.Request.Context(), "ws.handshake")
	defer span.End()
	c.Request = c.Request.WithContext(ctx)

	userID, err := h.authenticate(c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": models.WireError{
			Code:    models.CodeUnauthenticated,
			Message: "invalid token",
		}})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}

	cl := NewClient(conn, userID)
	cl.DeviceID = observability.DeviceIDFromRequest(c.Request)
	cl.IP = observability.IPFromRequest(c.Request)
	cl.RequestID = observability.RequestIDFromRequest(c.Request)
	cl.TraceID = span.SpanContext().TraceID().String()

	if err := h.registry.Register(cl); err != nil {
		conn.Close()
		return
	}

	observability.IncWSEvent("ws_connect")
	h.publishWSEvent(ctx, cl, "ws_connect", "")

	// net/http cancels the request context as soon as this handler returns,
	// even for hijacked connections. The pumps outlive it on a detached
	// context that keeps the request's values.
	connCtx := context.WithoutCancel(ctx)
	go h.writePump(cl)
	go h.readPump(connCtx, cl)
}

func (h *WebSocketHandler) authenticate(c *gin.Context) (int, error) {
	token := c.GetHeader("Authorization")
	if token == "" {
		token = c.Query("token")
		if token != "" {
			token = "Bearer " + token
		}
	}

	parts := strings.SplitN(token, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return 0, auth.ErrInvalidToken
	}
	return h.verifier.Verify(parts[1])
}

// readPump reads frames until the transport drops, then runs the cascading
// cleanup. Pongs drive liveness.
func (h *WebSocketHandler) readPump(ctx context.Context, cl *Client) {
	var closeReason string
	defer func() {
		h.registry.Unregister(cl.ID)
		observability.IncWSEvent("ws_disconnect")
		h.publishWSEvent(ctx, cl, "ws_disconnect", closeReason)
	}()

	cl.conn.SetReadDeadline(time.Now().Add(pongWait))
	cl.conn.SetPongHandler(func(string) error {
		cl.conn.SetReadDeadline(time.Now().Add(pongWait))
		h.registry.Touch(cl.ID)
		return nil
	})

	for {
		_, raw, err := cl.conn.ReadMessage()
		if err != nil {
			closeReason = err.Error()
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				observability.IncWSEvent("ws_error")
				h.publishWSEvent(ctx, cl, "ws_error", closeReason)
			}
			return
		}

		var frame clientFrame
		if err := json.Unmarshal(raw, &frame); err != nil {
			h.sendError(cl, models.WireError{Code: models.CodeInvalidMessage, Message: "malformed frame"})
			continue
		}
		h.dispatch(ctx, cl, frame)
	}
}

func (h *WebSocketHandler) dispatch(ctx context.Context, cl *Client, frame clientFrame) {
	switch frame.Type {
	case "join":
		h.handleJoin(ctx, cl, frame)
	case "send":
		h.handleSend(ctx, cl, frame)
	case "leave":
		h.rooms.Leave(cl, frame.GroupID)
		h.reply(cl, leftFrame{Type: "left", GroupID: frame.GroupID})
	default:
		h.sendError(cl, models.WireError{Code: models.CodeInvalidMessage, Message: "unknown frame type"})
	}
}

func (h *WebSocketHandler) handleJoin(ctx context.Context, cl *Client, frame clientFrame) {
	// One room at a time: joining a new group implies leaving the old one.
	if current, joined := cl.JoinedGroup(); joined && current != frame.GroupID {
		h.rooms.Leave(cl, current)
	}

	backlog, err := h.rooms.Join(ctx, cl, frame.GroupID, frame.Limit)
	if err != nil {
		log.Printf("join rejected conn_id=%s group_id=%d: %v", cl.ID, frame.GroupID, err)
		h.reply(cl, joinResult{
			Type:    "joined",
			Joined:  false,
			GroupID: frame.GroupID,
			Error:   &models.WireError{Code: CodeForError(err), Message: err.Error()},
		})
		return
	}

	if backlog == nil {
		backlog = []models.Message{}
	}
	h.reply(cl, joinResult{
		Type:    "joined",
		Joined:  true,
		GroupID: frame.GroupID,
		Backlog: backlog,
	})
}

func (h *WebSocketHandler) handleSend(ctx context.Context, cl *Client, frame clientFrame) {
	// No direct ack on success; the broadcast event reaching the sender is
	// the authoritative effect.
	if _, err := h.broadcaster.Send(ctx, cl, frame.GroupID, frame.Text); err != nil {
		log.Printf("send rejected conn_id=%s group_id=%d: %v", cl.ID, frame.GroupID, err)
		h.sendError(cl, models.WireError{Code: CodeForError(err), Message: err.Error()})
	}
}

// writePump drains the send channel to the transport and keeps the
// connection alive with pings.
func (h *WebSocketHandler) writePump(cl *Client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		cl.conn.Close()
	}()

	for {
		select {
		case payload := <-cl.send:
			cl.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := cl.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				log.Printf("websocket write error: %v", err)
				h.registry.Unregister(cl.ID)
				return
			}
		case <-ticker.C:
			cl.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := cl.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				h.registry.Unregister(cl.ID)
				return
			}
		case <-cl.done:
			cl.conn.SetWriteDeadline(time.Now().Add(writeWait))
			cl.conn.WriteMessage(websocket.CloseMessage, nil)
			return
		}
	}
}

func (h *WebSocketHandler) reply(cl *Client, v interface{}) {
	payload, err := json.Marshal(v)
	if err != nil {
		log.Printf("marshal reply: %v", err)
		return
	}
	cl.Enqueue(payload)
}

func (h *WebSocketHandler) sendError(cl *Client, wireErr models.WireError) {
	h.reply(cl, errorFrame{Type: "error", Error: wireErr})
}

func (h *WebSocketHandler) publishWSEvent(ctx context.Context, cl *Client, event, reason string) {
	groupID, _ := cl.JoinedGroup()
	payload := observability.NewWSEventPayload(groupID, event, cl.ID, cl.ConnectedAt, reason, observability.WSIdentity{
		UserID:   cl.UserID,
		DeviceID: cl.DeviceID,
		IP:       cl.IP,
	})
	headers := observability.BuildHeaders(cl.RequestID, cl.TraceID)
	_ = observability.PublishEvent(ctx, eventsRoutingKey, observability.EventEnvelope{
		EventType: "ws_events",
		EventName: event,
		Payload:   payload,
	}, headers)
}
