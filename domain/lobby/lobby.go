// Package lobby tracks the players waiting for a session to start and the
// fleets they submit when ready.
package lobby

import (
	"go-battleship/domain/board"
	"go-battleship/domain/player"
)

// Lobby is not safe for concurrent use; the session directory serializes
// access to it.
type Lobby struct {
	code    string
	players []player.Player
	ready   map[string]bool
	boards  map[string]board.Board
}

func New(code string) *Lobby {
	return &Lobby{
		code:   code,
		ready:  make(map[string]bool),
		boards: make(map[string]board.Board),
	}
}

func (l *Lobby) Code() string {
	return l.code
}

// AddPlayer appends p and marks them not ready. Adding a player already
// present is a no-op and returns false. The lobby does not cap its size.
func (l *Lobby) AddPlayer(p player.Player) bool {
	if l.HasPlayer(p.ID) {
		return false
	}
	l.players = append(l.players, p)
	l.ready[p.ID] = false
	return true
}

// RemovePlayer drops the player together with their readiness and board.
func (l *Lobby) RemovePlayer(id string) bool {
	for i, p := range l.players {
		if p.ID != id {
			continue
		}
		l.players = append(l.players[:i], l.players[i+1:]...)
		delete(l.ready, id)
		delete(l.boards, id)
		return true
	}
	return false
}

func (l *Lobby) HasPlayer(id string) bool {
	for _, p := range l.players {
		if p.ID == id {
			return true
		}
	}
	return false
}

// SetReady marks a member ready with their fleet. A later call replaces the
// earlier board. Non-members are ignored.
func (l *Lobby) SetReady(id string, b board.Board) bool {
	if !l.HasPlayer(id) {
		return false
	}
	l.ready[id] = true
	l.boards[id] = b
	return true
}

func (l *Lobby) IsReady(id string) bool {
	return l.ready[id]
}

// AllReady is true when at least two players are present and every one of
// them is ready.
func (l *Lobby) AllReady() bool {
	if len(l.players) < 2 {
		return false
	}
	for _, p := range l.players {
		if !l.ready[p.ID] {
			return false
		}
	}
	return true
}

// Players returns the players in join order.
func (l *Lobby) Players() []player.Player {
	out := make([]player.Player, len(l.players))
	copy(out, l.players)
	return out
}

func (l *Lobby) Board(id string) (board.Board, bool) {
	b, ok := l.boards[id]
	return b, ok
}

func (l *Lobby) Len() int {
	return len(l.players)
}
