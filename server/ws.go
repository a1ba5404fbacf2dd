package server

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/net/websocket"

	"go-battleship/domain/session"
	"go-battleship/wire"
)

const maxFramePayloadBytes = 16 * 1024

// GameHandler serves the game websocket. Each connection speaks for at most
// one player id, fixed by its first accepted join.
type GameHandler struct {
	dir        *session.Directory
	hub        *Hub
	decoder    *wire.Decoder
	auth       *Authenticator
	sendBuffer int
	logger     *slog.Logger
	tracer     trace.Tracer
}

type HandlerOption func(*GameHandler)

// WithAuthenticator requires a valid token on upgrade. Joins must then use
// the token subject as the player id.
func WithAuthenticator(a *Authenticator) HandlerOption {
	return func(h *GameHandler) {
		h.auth = a
	}
}

func WithSendBuffer(n int) HandlerOption {
	return func(h *GameHandler) {
		if n > 0 {
			h.sendBuffer = n
		}
	}
}

func WithHandlerLogger(logger *slog.Logger) HandlerOption {
	return func(h *GameHandler) {
		if logger != nil {
			h.logger = logger
		}
	}
}

func NewGameHandler(dir *session.Directory, hub *Hub, opts ...HandlerOption) *GameHandler {
	h := &GameHandler{
		dir:        dir,
		hub:        hub,
		decoder:    wire.NewDecoder(),
		sendBuffer: DefaultSendBuffer,
		logger:     slog.Default(),
		tracer:     otel.Tracer("go-battleship/server"),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func (h *GameHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var subject string
	if h.auth != nil {
		id, err := h.auth.Subject(r)
		if err != nil {
			h.logger.InfoContext(r.Context(), "websocket unauthorized",
				slog.String("remote", r.RemoteAddr),
				slog.Any("error", err),
			)
			http.Error(w, "authentication required", http.StatusUnauthorized)
			return
		}
		subject = id
	}

	websocket.Handler(func(conn *websocket.Conn) {
		h.serveConn(r.Context(), conn, subject)
	}).ServeHTTP(w, r)
}

func (h *GameHandler) serveConn(ctx context.Context, conn *websocket.Conn, subject string) {
	conn.MaxPayloadBytes = maxFramePayloadBytes
	p := newPeer(conn, h.sendBuffer)
	go p.writePump(h.logger)

	logger := h.logger.With(slog.String("conn", p.id))
	logger.DebugContext(ctx, "websocket connected", slog.String("subject", subject))

	defer func() {
		p.close()
		_ = conn.Close()
		h.release(context.WithoutCancel(ctx), p, logger)
	}()

	for {
		var data []byte
		if err := websocket.Message.Receive(conn, &data); err != nil {
			if errors.Is(err, websocket.ErrFrameTooLarge) {
				logger.WarnContext(ctx, "discarded frame", slog.String("reason", "too large"))
				continue
			}
			if !errors.Is(err, io.EOF) {
				logger.DebugContext(ctx, "websocket read failed", slog.Any("error", err))
			}
			return
		}
		h.handleFrame(ctx, p, subject, data, logger)
	}
}

// release reports the departure, then frees the player id. The id stays
// bound to p until the directory has dropped its seat.
func (h *GameHandler) release(ctx context.Context, p *peer, logger *slog.Logger) {
	id := p.player()
	if id == "" || !h.hub.boundTo(id, p) {
		return
	}
	if err := h.dir.HandleDisconnect(ctx, id); err != nil && !errors.Is(err, session.ErrUnknownPlayer) {
		logger.WarnContext(ctx, "disconnect", slog.String("player", id), slog.Any("error", err))
	}
	h.hub.unbind(id, p)
	logger.DebugContext(ctx, "websocket closed", slog.String("player", id))
}

func (h *GameHandler) handleFrame(ctx context.Context, p *peer, subject string, data []byte, logger *slog.Logger) {
	frame, err := h.decoder.Decode(data)
	if err != nil {
		logger.WarnContext(ctx, "discarded frame", slog.Any("error", err))
		return
	}

	ctx, span := h.tracer.Start(ctx, "ws."+frame.Type, trace.WithAttributes(
		attribute.String("ws.conn", p.id),
		attribute.String("ws.frame.type", frame.Type),
	))
	defer span.End()

	switch frame.Type {
	case wire.TypeJoin:
		err = h.join(ctx, p, subject, *frame.Join)
	case wire.TypeReady:
		err = h.ready(ctx, p, *frame.Ready)
	case wire.TypeAttack:
		err = h.attack(ctx, p, *frame.Attack)
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		logger.InfoContext(ctx, "frame not applied",
			slog.String("type", frame.Type),
			slog.String("player", p.player()),
			slog.Any("error", err),
		)
	}
}

var (
	errSubjectMismatch = errors.New("player id does not match credentials")
	errRebind          = errors.New("connection already joined as another player")
	errIDInUse         = errors.New("player id already connected")
	errNotJoined       = errors.New("connection has not joined")
	errForeignPlayer   = errors.New("frame names another player")
)

func (h *GameHandler) join(ctx context.Context, p *peer, subject string, j wire.Join) error {
	id := j.User
	if subject != "" && id != subject {
		h.reply(p, session.JoinRejected{Message: "Player id does not match credentials"})
		return errSubjectMismatch
	}

	current := p.player()
	if current != "" && current != id {
		h.reply(p, session.JoinRejected{Message: "Connection already joined as " + current})
		return errRebind
	}
	if !h.hub.bind(id, p) {
		h.reply(p, session.JoinRejected{Message: "Player already connected"})
		return errIDInUse
	}

	err := h.dir.HandleJoin(ctx, j.Lobby, j.Player())
	if err != nil && current == "" {
		if _, seated := h.dir.SeatOf(id); !seated {
			h.hub.unbind(id, p)
		}
	}
	return err
}

func (h *GameHandler) ready(ctx context.Context, p *peer, r wire.Ready) error {
	id := p.player()
	if id == "" {
		return errNotJoined
	}
	if r.User != "" && r.User != id {
		return errForeignPlayer
	}
	b, err := r.Fleet()
	if err != nil {
		return err
	}
	return h.dir.HandleReady(ctx, id, b)
}

func (h *GameHandler) attack(ctx context.Context, p *peer, a wire.Attack) error {
	id := p.player()
	if id == "" {
		return errNotJoined
	}
	trace.SpanFromContext(ctx).SetAttributes(attribute.Int("attack.x", *a.X), attribute.Int("attack.y", *a.Y))
	return h.dir.HandleAttack(ctx, id, *a.X, *a.Y)
}

// reply sends an event to p regardless of which player it is bound to.
func (h *GameHandler) reply(p *peer, event session.Event) {
	frame, err := wire.Encode(event)
	if err != nil {
		h.logger.Error("encode event", slog.String("type", event.Type()), slog.Any("error", err))
		return
	}
	p.enqueue(frame)
}
