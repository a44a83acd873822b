// Package websocket serves the realtime endpoint: session authentication,
// the inbound command protocol and the per-connection pumps.
package websocket

import (
	"context"
	"net/http"
	"strings"
	"time"

	"casebridge/internal/auth"
	"casebridge/internal/broadcast"
	"casebridge/internal/domain/message"
	"casebridge/internal/presence"
	"casebridge/internal/services"
	"casebridge/internal/transport/httpdto"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const defaultAuthTimeout = 10 * time.Second

// ConversationEngine is the slice of the conversation service the command protocol needs.
type ConversationEngine interface {
	SendMessage(ctx context.Context, in services.SendMessageInput) (message.Message, error)
	MarkRead(ctx context.Context, conversationID, userID uuid.UUID) (services.ReadResult, error)
	MarkDelivered(ctx context.Context, messageID, userID uuid.UUID) (bool, error)
	EnsureParticipant(ctx context.Context, conversationID, userID uuid.UUID) error
}

type TypingTracker interface {
	SetTyping(conversationID, userID uuid.UUID, isTyping bool, originSessionID string)
	ClearUser(userID uuid.UUID)
}

type Handler struct {
	verifier      auth.Verifier
	registry      *presence.Registry
	conversations ConversationEngine
	typing        TypingTracker
	engine        *broadcast.Engine
	logger        *SessionLogger
	upgrader      websocket.Upgrader
	limits        CommandLimits
	authTimeout   time.Duration
}

func NewHandler(verifier auth.Verifier, registry *presence.Registry, conversations ConversationEngine, typing TypingTracker, engine *broadcast.Engine, logger *zap.Logger) *Handler {
	return &Handler{
		verifier:      verifier,
		registry:      registry,
		conversations: conversations,
		typing:        typing,
		engine:        engine,
		logger:        NewSessionLogger(logger),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
		limits:      DefaultCommandLimits,
		authTimeout: defaultAuthTimeout,
	}
}

// ServeWS upgrades the request. A token in the query or Authorization header
// authenticates during the handshake; otherwise the first frame must be authenticate.
func (h *Handler) ServeWS(c *gin.Context) {
	ctx := c.Request.Context()

	token := extractToken(c.Request)
	var userID uuid.UUID
	if token != "" {
		id, err := h.verifier.Verify(ctx, token)
		if err != nil {
			h.logger.Warn("handshake_rejected", uuid.Nil, "", zap.String("remote_addr", c.ClientIP()))
			c.JSON(http.StatusUnauthorized, httpdto.NewErrorResponse("invalid or expired token", "UNAUTHENTICATED"))
			return
		}
		userID = id
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Error("upgrade_failed", userID, "", err)
		return
	}

	client := newClient(conn, h.limits)
	go client.writePump()

	if token != "" {
		if _, err := h.attach(ctx, client, userID); err != nil {
			h.replyError(client, "", nil, err)
			client.Close()
		}
	} else {
		timer := time.AfterFunc(h.authTimeout, func() {
			if _, _, ok := client.identity(); !ok {
				client.Close()
			}
		})
		defer timer.Stop()
	}

	h.readPump(client)
	h.detach(client)
}

func (h *Handler) attach(ctx context.Context, c *Client, userID uuid.UUID) (string, error) {
	sessionID, err := h.registry.Register(ctx, userID, c)
	if err != nil {
		h.logger.Error("register_failed", userID, "", err)
		return "", err
	}
	c.attach(userID, sessionID)
	h.logger.Info("connected", userID, sessionID)
	return sessionID, nil
}

func (h *Handler) detach(c *Client) {
	defer c.Close()
	userID, sessionID, ok := c.identity()
	if !ok {
		return
	}
	if last := h.registry.Unregister(sessionID); last {
		h.typing.ClearUser(userID)
	}
	h.logger.Info("disconnected", userID, sessionID)
}

func (h *Handler) readPump(c *Client) {
	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				userID, sessionID, _ := c.identity()
				h.logger.Warn("read_failed", userID, sessionID, zap.Error(err))
			}
			return
		}
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		h.handleFrame(c, raw)
	}
}

func extractToken(r *http.Request) string {
	if token := r.URL.Query().Get("token"); token != "" {
		return token
	}
	header := r.Header.Get("Authorization")
	if strings.HasPrefix(header, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	}
	return ""
}
