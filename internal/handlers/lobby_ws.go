// internal/handlers/lobby_ws.go
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/blue-orion/pongservice/internal/gateway"
	"github.com/blue-orion/pongservice/internal/lobby"
	"github.com/blue-orion/pongservice/internal/middleware"
	"github.com/coder/websocket"
	"github.com/google/uuid"
)

// wsCommand is the inbound message envelope.
type wsCommand struct {
	Type     string `json:"type"`
	TargetID string `json:"target_id,omitempty"`
	Msg      string `json:"msg,omitempty"`
}

type wsError struct {
	Type    string `json:"type"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

type wsSnapshot struct {
	Type    string         `json:"type"`
	Payload lobby.Snapshot `json:"payload"`
}

// wsSession is one connected client. out carries handler replies; committed
// events arrive on the gateway subscription. A single write pump serializes
// both onto the socket.
type wsSession struct {
	userID   uuid.UUID
	username string
	out      chan any
}

// LobbyWSHandler upgrades to a lobby session: joins (or rejoins) the lobby,
// sends the authoritative snapshot, then relays commands in and events out
// until the socket closes. A closed socket counts as leaving.
func (s *Server) LobbyWSHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		remoteAddr := r.RemoteAddr
		lobbyID, err := pathUUID(r, "lobby_id")
		if err != nil {
			http.Error(w, "invalid lobby_id", http.StatusBadRequest)
			return
		}

		// Cookie for a fresh guest must go out with the upgrade response, so
		// authenticate before accepting.
		userID, err := s.EnsureEphemeralUser(w, r)
		if err != nil {
			s.Log.WithError(err).Warn("websocket auth failed")
			http.Error(w, "authentication failed", http.StatusForbidden)
			return
		}

		c, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			Subprotocols:   []string{"lobby"},
			OriginPatterns: []string{"*"},
		})
		if err != nil {
			s.Log.WithError(err).Warn("websocket accept error")
			return
		}
		defer c.Close(websocket.StatusInternalError, "handler finished")

		if c.Subprotocol() != "lobby" {
			c.Close(BadSubprotocolError, "client must speak the lobby subprotocol")
			return
		}

		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()

		// Join is idempotent for this flow: an enabled member reconnecting and
		// a started lobby's member are both fine, they just subscribe.
		if _, err := s.Registry.Join(ctx, lobbyID, userID); err != nil {
			switch {
			case errors.Is(err, lobby.ErrAlreadyInLobby), errors.Is(err, lobby.ErrLobbyAlreadyStarted):
			case errors.Is(err, lobby.ErrLobbyNotFound):
				c.Close(InvalidLobbyIDError, "lobby does not exist")
				return
			default:
				c.Close(websocket.StatusPolicyViolation, lobby.ErrorCode(err))
				return
			}
		}

		snap, sub, err := s.Registry.Subscribe(ctx, lobbyID)
		if err != nil {
			c.Close(InvalidLobbyIDError, "lobby does not exist")
			return
		}

		sess := &wsSession{
			userID:   userID,
			username: s.usernameFor(ctx, userID),
			out:      make(chan any, 16),
		}
		sess.out <- wsSnapshot{Type: "snapshot", Payload: snap}

		middleware.LogWebSocketConnect(s.Log, remoteAddr, r.URL.Path)

		go s.writePump(ctx, c, sess, sub)
		readErr := s.readPump(ctx, c, sess, lobbyID)

		cancel()
		s.Registry.Hub().Unsubscribe(sub)
		middleware.LogWebSocketDisconnect(s.Log, remoteAddr, r.URL.Path, readErr)

		// Disconnect counts as leaving. Best-effort with a fresh context; the
		// request context is already done.
		leaveCtx, leaveCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer leaveCancel()
		if err := s.Registry.Leave(leaveCtx, lobbyID, userID); err != nil &&
			!errors.Is(err, lobby.ErrNotMember) && !errors.Is(err, lobby.ErrLobbyNotFound) {
			s.Log.WithError(err).WithField("lobby_id", lobbyID).Warn("leave on disconnect failed")
		}
	}
}

func (s *Server) readPump(ctx context.Context, c *websocket.Conn, sess *wsSession, lobbyID uuid.UUID) error {
	for {
		typ, msg, err := c.Read(ctx)
		if err != nil {
			status := websocket.CloseStatus(err)
			if status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway {
				return nil
			}
			return err
		}
		if typ != websocket.MessageText {
			continue
		}

		var cmd wsCommand
		if err := json.Unmarshal(msg, &cmd); err != nil {
			sess.reply(wsError{Type: "error", Code: "BAD_JSON", Message: "invalid JSON"})
			continue
		}
		s.handleCommand(ctx, sess, lobbyID, cmd)
	}
}

func (s *Server) handleCommand(ctx context.Context, sess *wsSession, lobbyID uuid.UUID, cmd wsCommand) {
	var err error
	switch cmd.Type {
	case "ready":
		_, err = s.Registry.ToggleReady(ctx, lobbyID, sess.userID)
	case "leave_lobby":
		err = s.Registry.Leave(ctx, lobbyID, sess.userID)
	case "transfer_leadership":
		var targetID uuid.UUID
		targetID, err = parseUUIDField(cmd.TargetID)
		if err == nil {
			err = s.Registry.TransferLeadership(ctx, lobbyID, sess.userID, targetID)
		}
	case "start_matches":
		_, err = s.Registry.CreateMatches(ctx, lobbyID, sess.userID)
	case "chat":
		if cmd.Msg != "" {
			s.Registry.Chat(ctx, lobbyID, sess.userID, sess.username, cmd.Msg)
		}
	default:
		sess.reply(wsError{Type: "error", Code: "UNKNOWN_ACTION", Message: "unknown action type: " + cmd.Type})
		return
	}
	if err != nil {
		sess.reply(wsError{Type: "error", Code: lobby.ErrorCode(err), Message: err.Error()})
	}
}

func (s *Server) writePump(ctx context.Context, c *websocket.Conn, sess *wsSession, sub *gateway.Subscription) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-sub.Events():
			if !ok {
				// Topic closed: the lobby is finished.
				c.Close(websocket.StatusNormalClosure, "lobby completed")
				return
			}
			if !s.writeJSONFrame(ctx, c, ev) {
				return
			}
		case msg, ok := <-sess.out:
			if !ok {
				return
			}
			if !s.writeJSONFrame(ctx, c, msg) {
				return
			}
		case <-ticker.C:
			pingCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
			err := c.Ping(pingCtx)
			cancel()
			if err != nil {
				return
			}
		}
	}
}

func (s *Server) writeJSONFrame(ctx context.Context, c *websocket.Conn, v any) bool {
	data, err := json.Marshal(v)
	if err != nil {
		s.Log.WithError(err).Warn("failed to marshal outgoing ws message")
		return true
	}
	writeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return c.Write(writeCtx, websocket.MessageText, data) == nil
}

// reply queues a handler response, dropping it if the client is too slow to
// matter.
func (sess *wsSession) reply(v any) {
	select {
	case sess.out <- v:
	default:
	}
}

func (s *Server) usernameFor(ctx context.Context, userID uuid.UUID) string {
	if s.Users == nil {
		return "Guest"
	}
	u, err := s.Users.GetUserByID(ctx, userID)
	if err != nil {
		return "Guest"
	}
	return u.Username
}
