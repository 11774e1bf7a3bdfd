package collab

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/zishang520/engine.io/v2/types"
	socketio "github.com/zishang520/socket.io/v2/socket"

	"notify-collab/auth"
	"notify-collab/core"
)

// Gateway authenticates every incoming socket before it can interact with any
// other component, dispatches its events, and guarantees cleanup when the
// connection drops.
type Gateway struct {
	store    core.NoteStore
	verifier auth.Verifier

	registry *Registry
	rooms    *Rooms
	presence *Presence
	updater  *Updater
	emit     Emitter

	typingTTL time.Duration
	bridge    *Bridge
}

// Option configures a Gateway.
type Option func(*Gateway)

// WithBridge attaches a Redis fanout bridge for multi-instance deployments.
func WithBridge(bridge *Bridge) Option {
	return func(g *Gateway) { g.bridge = bridge }
}

// WithTypingTTL overrides the typing auto-expiry window.
func WithTypingTTL(ttl time.Duration) Option {
	return func(g *Gateway) { g.typingTTL = ttl }
}

func NewGateway(store core.NoteStore, verifier auth.Verifier, opts ...Option) *Gateway {
	g := &Gateway{
		store:     store,
		verifier:  verifier,
		registry:  NewRegistry(),
		rooms:     NewRooms(),
		typingTTL: DefaultTypingTTL,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Rooms exposes the membership tracker for read-only surfaces such as the
// active-rooms endpoint.
func (g *Gateway) Rooms() *Rooms {
	return g.rooms
}

// Registry exposes the connection registry.
func (g *Gateway) Registry() *Registry {
	return g.registry
}

// SetupServer builds the socket.io server and wires the gateway onto it.
func (g *Gateway) SetupServer() *socketio.Server {
	opts := socketio.DefaultServerOptions()
	opts.SetMaxHttpBufferSize(5000000)
	opts.SetPath("/socket.io")
	opts.SetAllowEIO3(true)
	opts.SetCors(&types.Cors{
		Origin:      "*",
		Credentials: true,
	})
	srv := socketio.NewServer(nil, opts)
	g.Attach(srv)
	return srv
}

// Attach registers the connection handler on an existing server and wires the
// room emitter (bridged when a Bridge is configured).
func (g *Gateway) Attach(srv *socketio.Server) {
	var emit Emitter = &serverEmitter{srv: srv}
	if g.bridge != nil {
		g.bridge.Subscribe(context.Background(), emit)
		emit = &fanoutEmitter{local: emit, bridge: g.bridge}
	}
	g.emit = emit
	g.presence = NewPresence(g.rooms, emit, g.typingTTL)
	g.updater = NewUpdater(g.store, emit)

	srv.On("connection", func(clients ...any) {
		socket, ok := clients[0].(*socketio.Socket)
		if !ok {
			return
		}
		g.handleConnection(socket)
	})
}

func (g *Gateway) handleConnection(socket *socketio.Socket) {
	connID := string(socket.Id())
	log := logrus.WithField("conn_id", connID)

	identity, err := g.verifier.Verify(context.Background(), handshakeToken(socket))
	if err != nil {
		var authErr *auth.Error
		if errors.As(err, &authErr) {
			log.WithField("reason", authErr.Reason).Warn("rejecting unauthenticated connection")
		} else {
			log.WithError(err).Error("identity verification failed")
		}
		_ = socket.Emit(EventError, ErrorEvent{Message: "Authentication error"})
		socket.Disconnect(true)
		return
	}

	if err := g.registry.Register(connID, identity); err != nil {
		// Should not happen; one bad session must not take down the rest.
		log.WithError(err).Error("connection registration failed")
		_ = socket.Emit(EventError, ErrorEvent{Message: "Authentication error"})
		socket.Disconnect(true)
		return
	}

	log = log.WithFields(logrus.Fields{
		"user_id":  identity.ID,
		"username": identity.Username,
	})
	log.Info("user connected")

	socket.On(EventJoinNote, func(datas ...any) {
		g.handleJoin(socket, identity, datas)
	})
	socket.On(EventLeaveNote, func(datas ...any) {
		g.handleLeave(socket, identity, datas)
	})
	socket.On(EventNoteUpdate, func(datas ...any) {
		g.handleNoteUpdate(socket, identity, datas)
	})
	socket.On(EventCursorUpdate, func(datas ...any) {
		g.handleCursorUpdate(socket, identity, datas)
	})
	socket.On(EventTyping, func(datas ...any) {
		g.handleTyping(socket, identity, datas)
	})
	socket.On(EventPreviewModeChange, func(datas ...any) {
		g.handlePreviewModeChange(socket, identity, datas)
	})
	socket.On("disconnecting", func(...any) {
		log.Info("user disconnected")
		g.cleanupConnection(connID)
	})
	socket.On("disconnect", func(...any) {
		socket.RemoveAllListeners("")
	})
}

func (g *Gateway) handleJoin(socket *socketio.Socket, identity core.Identity, datas []any) {
	connID := string(socket.Id())
	noteID, ok := firstString(datas)
	if !ok {
		g.sendError(socket, "Note id is required")
		return
	}
	log := logrus.WithFields(logrus.Fields{
		"conn_id": connID,
		"note_id": noteID,
		"user_id": identity.ID,
	})

	note, err := g.store.GetNote(context.Background(), noteID)
	if err != nil {
		if errors.Is(err, core.ErrNoteNotFound) {
			g.sendError(socket, "Note not found")
			return
		}
		log.WithError(err).Error("failed to load note for join")
		g.sendError(socket, "Failed to join note")
		return
	}

	roster, prev, err := g.rooms.Join(noteID, connID, identity, note)
	if err != nil {
		if errors.Is(err, ErrAccessDenied) {
			g.sendError(socket, "Access denied")
			return
		}
		log.WithError(err).Error("failed to join note")
		g.sendError(socket, "Failed to join note")
		return
	}

	// A connection edits one note at a time; detach from the previous room
	// before entering the new one.
	if prev != nil {
		socket.Leave(socketio.Room(prev.NoteID))
		g.afterDeparture(*prev, identity)
	}

	socket.Join(socketio.Room(noteID))
	g.emit.ToRoom(noteID, EventUsersInNote, roster)
	log.Info("user joined note")
}

func (g *Gateway) handleLeave(socket *socketio.Socket, identity core.Identity, datas []any) {
	connID := string(socket.Id())
	noteID, ok := firstString(datas)
	if !ok {
		return
	}

	socket.Leave(socketio.Room(noteID))
	roster, empty, removed := g.rooms.Leave(noteID, connID)
	if !removed {
		// Leaving a room the connection never joined changes nothing, so
		// there is no roster to re-broadcast.
		return
	}
	g.afterDeparture(RoomChange{NoteID: noteID, Roster: roster, Empty: empty}, identity)

	logrus.WithFields(logrus.Fields{
		"conn_id": connID,
		"note_id": noteID,
		"user_id": identity.ID,
	}).Info("user left note")
}

// afterDeparture clears any per-user transient state the departing connection
// leaves behind and re-broadcasts the roster to whoever remains.
func (g *Gateway) afterDeparture(change RoomChange, identity core.Identity) {
	if !g.rooms.HasUser(change.NoteID, identity.ID) {
		g.presence.ClearUser(change.NoteID, identity)
	}
	if !change.Empty {
		g.emit.ToRoom(change.NoteID, EventUsersInNote, change.Roster)
	}
}

func (g *Gateway) handleNoteUpdate(socket *socketio.Socket, identity core.Identity, datas []any) {
	connID := string(socket.Id())

	var payload NoteUpdatePayload
	if len(datas) == 0 || decodePayload(datas[0], &payload) != nil || payload.NoteID == "" {
		g.sendError(socket, "Invalid note update")
		return
	}

	_, err := g.updater.ApplyEdit(context.Background(), payload.NoteID, connID, identity, payload.Content)
	if err == nil {
		return
	}

	log := logrus.WithFields(logrus.Fields{
		"conn_id": connID,
		"note_id": payload.NoteID,
		"user_id": identity.ID,
	})
	var persistErr *PersistenceError
	switch {
	case errors.Is(err, core.ErrNoteNotFound):
		g.sendError(socket, "Note not found")
	case errors.Is(err, ErrAccessDenied):
		g.sendError(socket, "No edit permission")
	case errors.As(err, &persistErr):
		log.WithError(persistErr.Err).Error("failed to persist note update")
		g.sendError(socket, "Failed to update note")
	default:
		log.WithError(err).Error("failed to update note")
		g.sendError(socket, "Failed to update note")
	}
}

func (g *Gateway) handleCursorUpdate(socket *socketio.Socket, identity core.Identity, datas []any) {
	connID := string(socket.Id())

	var payload CursorPayload
	if len(datas) == 0 || decodePayload(datas[0], &payload) != nil || payload.NoteID == "" {
		return
	}
	if current, ok := g.rooms.NoteOf(connID); !ok || current != payload.NoteID {
		return
	}
	g.presence.RelayCursor(payload.NoteID, connID, identity, payload.CursorPosition)
}

func (g *Gateway) handleTyping(socket *socketio.Socket, identity core.Identity, datas []any) {
	connID := string(socket.Id())

	var payload TypingPayload
	if len(datas) == 0 || decodePayload(datas[0], &payload) != nil || payload.NoteID == "" {
		return
	}
	if current, ok := g.rooms.NoteOf(connID); !ok || current != payload.NoteID {
		return
	}
	g.presence.SetTyping(payload.NoteID, connID, identity, payload.IsTyping)
}

func (g *Gateway) handlePreviewModeChange(socket *socketio.Socket, identity core.Identity, datas []any) {
	connID := string(socket.Id())

	var payload PreviewModePayload
	if len(datas) == 0 || decodePayload(datas[0], &payload) != nil || payload.NoteID == "" {
		return
	}
	// The payload names a user, but preview state is keyed by the
	// authenticated identity; clients cannot toggle each other.
	if current, ok := g.rooms.NoteOf(connID); !ok || current != payload.NoteID {
		return
	}
	g.presence.SetPreview(payload.NoteID, identity, payload.IsPreview)
}

// cleanupConnection detaches a connection from everything it touched. Safe to
// call for connections that never fully registered, and safe to call twice.
func (g *Gateway) cleanupConnection(connID string) {
	identity, err := g.registry.IdentityOf(connID)
	if err != nil {
		g.registry.Remove(connID)
		return
	}

	if change, ok := g.rooms.LeaveAll(connID); ok {
		g.afterDeparture(change, identity)
	}
	g.registry.Remove(connID)
}

func (g *Gateway) sendError(socket *socketio.Socket, message string) {
	_ = socket.Emit(EventError, ErrorEvent{Message: message})
}

// handshakeToken pulls the bearer credential from the handshake auth payload,
// falling back to the query string for clients that cannot set auth fields.
func handshakeToken(socket *socketio.Socket) string {
	hs := socket.Handshake()
	if hs == nil {
		return ""
	}
	if fields, ok := hs.Auth.(map[string]any); ok {
		if token, ok := fields["token"].(string); ok && token != "" {
			return token
		}
	}
	if values, ok := hs.Query["token"]; ok && len(values) > 0 {
		return values[0]
	}
	return ""
}
