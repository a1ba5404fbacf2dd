package server

import (
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/net/websocket"

	"go-battleship/domain/session"
	"go-battleship/wire"
)

// DefaultSendBuffer is the number of outbound frames queued per connection
// before further frames are dropped.
const DefaultSendBuffer = 32

// peer is one websocket connection. Frames are queued on send and written by
// a single writer goroutine.
type peer struct {
	id   string
	conn *websocket.Conn
	send chan []byte
	done chan struct{}
	once sync.Once

	mu       sync.Mutex
	playerID string
}

func newPeer(conn *websocket.Conn, buffer int) *peer {
	if buffer <= 0 {
		buffer = DefaultSendBuffer
	}
	return &peer{
		id:   uuid.NewString(),
		conn: conn,
		send: make(chan []byte, buffer),
		done: make(chan struct{}),
	}
}

func (p *peer) player() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.playerID
}

func (p *peer) setPlayer(id string) {
	p.mu.Lock()
	p.playerID = id
	p.mu.Unlock()
}

// enqueue never blocks. It reports false when the queue is full or the peer
// is closed.
func (p *peer) enqueue(frame []byte) bool {
	select {
	case <-p.done:
		return false
	default:
	}
	select {
	case p.send <- frame:
		return true
	default:
		return false
	}
}

func (p *peer) close() {
	p.once.Do(func() {
		close(p.done)
	})
}

// writePump drains the send queue until the peer closes or a write fails.
func (p *peer) writePump(logger *slog.Logger) {
	for {
		select {
		case <-p.done:
			return
		case frame := <-p.send:
			if err := websocket.Message.Send(p.conn, string(frame)); err != nil {
				logger.Debug("websocket write failed", slog.String("conn", p.id), slog.Any("error", err))
				p.close()
				_ = p.conn.Close()
				return
			}
		}
	}
}

// Hub routes session events to the connection bound to each player id.
// It implements session.Notifier.
type Hub struct {
	mu     sync.RWMutex
	peers  map[string]*peer // player id -> connection
	logger *slog.Logger
}

func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		peers:  make(map[string]*peer),
		logger: logger,
	}
}

// Notify encodes event and queues it for playerID. Events for players with
// no connection, or whose queue is full, are dropped.
func (h *Hub) Notify(playerID string, event session.Event) {
	h.mu.RLock()
	p, ok := h.peers[playerID]
	h.mu.RUnlock()
	if !ok {
		return
	}
	frame, err := wire.Encode(event)
	if err != nil {
		h.logger.Error("encode event", slog.String("type", event.Type()), slog.Any("error", err))
		return
	}
	if !p.enqueue(frame) {
		h.logger.Warn("dropped event",
			slog.String("type", event.Type()),
			slog.String("player", playerID),
			slog.String("conn", p.id),
		)
	}
}

// bind attaches playerID to p. It fails when another live connection already
// holds the id.
func (h *Hub) bind(playerID string, p *peer) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	if current, ok := h.peers[playerID]; ok && current != p {
		return false
	}
	h.peers[playerID] = p
	p.setPlayer(playerID)
	return true
}

// unbind detaches playerID if it is still held by p.
func (h *Hub) unbind(playerID string, p *peer) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	if current, ok := h.peers[playerID]; !ok || current != p {
		return false
	}
	delete(h.peers, playerID)
	p.setPlayer("")
	return true
}

func (h *Hub) boundTo(playerID string, p *peer) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.peers[playerID] == p
}

// Connected reports whether playerID has a live connection.
func (h *Hub) Connected(playerID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.peers[playerID]
	return ok
}

// Len returns the number of bound connections.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.peers)
}
