// Package ws is the connection gateway: it authenticates websocket
// handshakes, registers connections with the presence registry, and
// dispatches inbound client events to the message lifecycle engine.
package ws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"rtchat/internal/chat"
	"rtchat/internal/config"
	"rtchat/internal/domain"
	"rtchat/internal/metrics"
	"rtchat/internal/presence"
	"rtchat/internal/security"
)

// inboundEvent is a raw client frame; payloads are decoded per event.
type inboundEvent struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// connContext carries the per-connection state handlers need: the verified
// user and the outbound handle. Handlers themselves stay stateless.
type connContext struct {
	user   *domain.User
	client *Client
}

func normalizeAllowedOrigins(origins []string) map[string]struct{} {
	res := make(map[string]struct{}, len(origins))
	for _, origin := range origins {
		o := strings.TrimSpace(strings.ToLower(origin))
		if o != "" {
			res[o] = struct{}{}
		}
	}
	return res
}

func makeCheckOrigin(allowedOrigins []string) func(r *http.Request) bool {
	allowed := normalizeAllowedOrigins(allowedOrigins)

	return func(r *http.Request) bool {
		origin := strings.TrimSpace(strings.ToLower(r.Header.Get("Origin")))
		// Only browsers send Origin; non-browser clients (CLIs, mobile
		// SDKs) are gated by the bearer credential instead.
		if origin == "" {
			return true
		}
		if len(allowed) == 0 {
			return false
		}
		if _, ok := allowed[origin]; ok {
			return true
		}

		u, err := url.Parse(origin)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return false
		}
		normalized := strings.ToLower(fmt.Sprintf("%s://%s", u.Scheme, u.Host))
		_, ok := allowed[normalized]
		return ok
	}
}

// extractToken pulls the bearer credential from the handshake. The first
// non-empty source wins: Authorization header, token query parameter, then
// the websocket subprotocol list ("bearer, <token>").
func extractToken(r *http.Request) (string, error) {
	authHeader := strings.TrimSpace(r.Header.Get("Authorization"))
	if strings.HasPrefix(strings.ToLower(authHeader), "bearer ") {
		if token := strings.TrimSpace(authHeader[len("Bearer "):]); token != "" {
			return token, nil
		}
	}

	if token := strings.TrimSpace(r.URL.Query().Get("token")); token != "" {
		return token, nil
	}

	protocolHeader := r.Header.Get("Sec-WebSocket-Protocol")
	if protocolHeader != "" {
		parts := strings.Split(protocolHeader, ",")
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}
		if len(parts) >= 2 && strings.EqualFold(parts[0], "bearer") && parts[1] != "" {
			return parts[1], nil
		}
	}

	return "", domain.ErrNoCredential
}

// MakeHandler returns the HTTP handler for the /ws endpoint.
//
// Handshake: bearer credential required, suspended accounts rejected before
// any room join. On accept the connection is registered in the presence
// registry, joined to its personal and global rooms, and the online flag is
// flushed best-effort. Inbound events are then dispatched in arrival order:
//   - sendMessage                  -> create + fan out + async delivery marking
//   - delivered / seen             -> idempotent receipt tracking
//   - editMessage / deleteMessage  -> sender-gated mutations
//   - addReaction                  -> toggle + aggregate broadcast
//   - typing                       -> forwarded indicator
//   - joinRoom / leaveRoom / getRooms -> room membership management
func MakeHandler(
	cfg *config.Config,
	registry *presence.Registry,
	tokens *security.TokenService,
	users domain.UserRepository,
	engine *chat.Engine,
	logger *zap.Logger,
) http.HandlerFunc {
	checkOrigin := makeCheckOrigin(cfg.CORSOrigins)
	upgrader := websocket.Upgrader{
		CheckOrigin:  checkOrigin,
		Subprotocols: []string{"bearer"},
	}

	return func(w http.ResponseWriter, r *http.Request) {
		if !checkOrigin(r) {
			http.Error(w, "origin not allowed", http.StatusForbidden)
			return
		}

		tokenStr, err := extractToken(r)
		if err != nil {
			http.Error(w, "missing bearer token", http.StatusUnauthorized)
			return
		}

		userID, err := tokens.Verify(tokenStr)
		if err != nil {
			if errors.Is(err, domain.ErrCredentialExpired) {
				http.Error(w, "token expired", http.StatusUnauthorized)
				return
			}
			http.Error(w, "invalid token", http.StatusUnauthorized)
			return
		}

		ctx := r.Context()
		user, err := users.GetByID(ctx, userID)
		if err != nil || user == nil {
			http.Error(w, "invalid token", http.StatusUnauthorized)
			return
		}
		if user.Suspended {
			http.Error(w, "account suspended", http.StatusForbidden)
			return
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		client := NewClient(conn)
		defer client.Close()

		metrics.ConnectionsTotal.Inc()
		metrics.ConnectionsActive.Inc()
		defer metrics.ConnectionsActive.Dec()

		registry.Register(user.ID, client, presence.Meta{Nickname: user.Nickname, Avatar: user.Avatar})
		if err := users.SetOnlineStatus(ctx, user.ID, true); err != nil {
			// Best effort: presence is in-memory truth, the flush may fail.
			logger.Warn("set online", zap.String("user_id", user.ID), zap.Error(err))
		}
		engine.BroadcastPresence()
		logger.Info("connection accepted", zap.String("user_id", user.ID), zap.String("username", user.Username))

		defer func() {
			if registry.Deregister(user.ID, client) {
				if err := users.SetOnlineStatus(context.Background(), user.ID, false); err != nil {
					logger.Warn("set offline", zap.String("user_id", user.ID), zap.Error(err))
				}
				engine.BroadcastPresence()
			}
			logger.Info("connection closed", zap.String("user_id", user.ID))
		}()

		cc := &connContext{user: user, client: client}
		limiter := newEventLimiter(cfg.EventMinInterval)

		for {
			var ev inboundEvent
			if err := conn.ReadJSON(&ev); err != nil {
				return
			}
			if ev.Event == "" {
				continue
			}
			if !limiter.Allow(ev.Event) {
				metrics.EventsDropped.WithLabelValues(ev.Event).Inc()
				continue
			}
			metrics.EventsTotal.WithLabelValues(ev.Event).Inc()
			dispatch(ctx, cc, ev, registry, engine, logger)
		}
	}
}

// dispatch routes one inbound event. Failures are contained here: they are
// logged and, for the acknowledged events, reported back to the originating
// connection only. No failure crosses over to other connections.
func dispatch(
	ctx context.Context,
	cc *connContext,
	ev inboundEvent,
	registry *presence.Registry,
	engine *chat.Engine,
	logger *zap.Logger,
) {
	userID := cc.user.ID

	switch ev.Event {
	case "sendMessage":
		var p struct {
			Content  string `json:"content"`
			RoomID   string `json:"roomId"`
			Type     string `json:"type"`
			Receiver string `json:"receiver"`
			ReplyTo  string `json:"replyTo"`
			FileURL  string `json:"fileUrl"`
			FileName string `json:"fileName"`
		}
		if err := json.Unmarshal(ev.Data, &p); err != nil {
			sendError(cc.client, "malformed sendMessage payload")
			return
		}
		_, err := engine.Create(ctx, chat.CreateInput{
			SenderID:   userID,
			Content:    p.Content,
			RoomID:     p.RoomID,
			Kind:       domain.MessageKind(p.Type),
			ReceiverID: p.Receiver,
			ReplyToID:  p.ReplyTo,
			FileURL:    p.FileURL,
			FileName:   p.FileName,
		})
		if err != nil {
			logger.Warn("sendMessage", zap.String("user_id", userID), zap.Error(err))
			sendError(cc.client, "failed to send message")
		}

	case "typing":
		var p struct {
			RoomID   string `json:"roomId"`
			Receiver string `json:"receiver"`
			IsTyping bool   `json:"isTyping"`
		}
		if err := json.Unmarshal(ev.Data, &p); err != nil {
			return
		}
		engine.Typing(ctx, userID, cc.user.Nickname, p.RoomID, p.Receiver, p.IsTyping)

	case "delivered":
		var p struct {
			MessageID string `json:"messageId"`
		}
		if err := json.Unmarshal(ev.Data, &p); err != nil {
			return
		}
		if err := engine.Deliver(ctx, p.MessageID, userID); err != nil {
			logger.Warn("delivered", zap.String("user_id", userID), zap.Error(err))
		}

	case "seen":
		var p struct {
			MessageID string `json:"messageId"`
		}
		if err := json.Unmarshal(ev.Data, &p); err != nil {
			return
		}
		if err := engine.See(ctx, p.MessageID, userID); err != nil {
			logger.Warn("seen", zap.String("user_id", userID), zap.Error(err))
		}

	case "editMessage":
		var p struct {
			MessageID string `json:"messageId"`
			Content   string `json:"content"`
		}
		if err := json.Unmarshal(ev.Data, &p); err != nil {
			sendError(cc.client, "malformed editMessage payload")
			return
		}
		if _, err := engine.Edit(ctx, p.MessageID, userID, p.Content); err != nil {
			logger.Warn("editMessage", zap.String("user_id", userID), zap.Error(err))
			sendError(cc.client, "failed to edit message")
		}

	case "deleteMessage":
		var p struct {
			MessageID   string `json:"messageId"`
			ForEveryone bool   `json:"forEveryone"`
		}
		if err := json.Unmarshal(ev.Data, &p); err != nil {
			sendError(cc.client, "malformed deleteMessage payload")
			return
		}
		if err := engine.Delete(ctx, p.MessageID, userID, p.ForEveryone); err != nil {
			logger.Warn("deleteMessage", zap.String("user_id", userID), zap.Error(err))
			sendError(cc.client, "failed to delete message")
		}

	case "addReaction":
		var p struct {
			MessageID string `json:"messageId"`
			Emoji     string `json:"emoji"`
		}
		if err := json.Unmarshal(ev.Data, &p); err != nil {
			return
		}
		if err := engine.ToggleReaction(ctx, p.MessageID, userID, p.Emoji); err != nil {
			logger.Warn("addReaction", zap.String("user_id", userID), zap.Error(err))
		}

	case "joinRoom":
		var p struct {
			RoomID string `json:"roomId"`
		}
		if err := json.Unmarshal(ev.Data, &p); err != nil || p.RoomID == "" {
			return
		}
		registry.Join(userID, p.RoomID)

	case "leaveRoom":
		var p struct {
			RoomID string `json:"roomId"`
		}
		if err := json.Unmarshal(ev.Data, &p); err != nil || p.RoomID == "" {
			return
		}
		registry.Leave(userID, p.RoomID)

	case "getRooms":
		cc.client.Send("roomsList", registry.Rooms(userID))

	default:
		logger.Debug("unknown event", zap.String("event", ev.Event), zap.String("user_id", userID))
	}
}

func sendError(c *Client, msg string) {
	c.Send("error", map[string]string{"message": msg})
}
