// Package match resolves attacks for one in-progress two-player session.
//
// A Match starts in AwaitingAttack once the first turn has been decided and
// ends in Over when one fleet has no ships left. Out-of-turn attacks and
// attacks on cells already fired upon are no-ops: they return an outcome with
// every flag false and the turn unchanged.
package match

import (
	"errors"
	"math/rand/v2"
	"time"

	"go-battleship/domain/board"
	"go-battleship/domain/player"
)

var (
	ErrMissingPlayer = errors.New("match requires two player ids")
	ErrSamePlayer    = errors.New("match players must be distinct")
)

type State int

const (
	AwaitingAttack State = iota
	Over
)

func (s State) String() string {
	switch s {
	case AwaitingAttack:
		return "awaiting_attack"
	case Over:
		return "over"
	default:
		return "unknown"
	}
}

// Coin returns 0 or 1.
type Coin func() int

// FairCoin flips a uniformly random coin.
func FairCoin() int {
	return rand.IntN(2)
}

// Outcome is the result of one attack attempt.
type Outcome struct {
	Hit        bool
	ShipSunk   bool
	SunkShipID string
	GameOver   bool
	WinnerID   string
	NextTurn   string
}

type side struct {
	player       player.Player
	board        board.Board
	hits         board.CellSet // cells the opponent fired at
	destroyed    map[string]bool
	remaining    int
	disconnected bool
}

// Match is not safe for concurrent use; the session directory serializes
// access to it.
type Match struct {
	code      string
	sides     [2]*side
	turn      int
	decided   bool
	state     State
	winner    string
	attacks   int
	startedAt time.Time
}

// New builds a match between two distinct players and their fleets, started
// at startedAt.
func New(code string, a, b player.Player, boardA, boardB board.Board, startedAt time.Time) (*Match, error) {
	if a.ID == "" || b.ID == "" {
		return nil, ErrMissingPlayer
	}
	if a.ID == b.ID {
		return nil, ErrSamePlayer
	}
	return &Match{
		code:      code,
		sides:     [2]*side{newSide(a, boardA), newSide(b, boardB)},
		state:     AwaitingAttack,
		startedAt: startedAt,
	}, nil
}

func newSide(p player.Player, b board.Board) *side {
	destroyed := make(map[string]bool, b.Len())
	for _, id := range b.Ships() {
		destroyed[id] = false
	}
	return &side{
		player:    p,
		board:     b,
		destroyed: destroyed,
		remaining: b.Len(),
	}
}

// DecideFirstTurn flips coin to pick who attacks first and returns the index
// (0 or 1) of that player. Only the first call flips; later calls return the
// index already chosen.
func (m *Match) DecideFirstTurn(coin Coin) int {
	if m.decided {
		return m.turn
	}
	if coin == nil {
		coin = FairCoin
	}
	m.turn = coin() & 1
	m.decided = true
	return m.turn
}

// ResolveAttack applies an attack from attackerID at (x, y).
func (m *Match) ResolveAttack(attackerID string, x, y int) Outcome {
	if !m.decided || m.state == Over || !board.InBounds(x, y) {
		return m.noop()
	}
	if attackerID != m.sides[m.turn].player.ID {
		return m.noop()
	}

	defender := m.sides[1-m.turn]
	if !defender.hits.Add(board.Index(x, y)) {
		return m.noop()
	}
	m.attacks++

	// Only ships on the attacked cell can become fully hit. Overlapping
	// layouts may sink more than one; the cell's owner is reported first.
	var out Outcome
	for _, shipID := range defender.board.ShipsOn(x, y) {
		out.Hit = true
		if defender.destroyed[shipID] || !defender.board.IsShipFullyHit(shipID, &defender.hits) {
			continue
		}
		defender.destroyed[shipID] = true
		defender.remaining--
		if !out.ShipSunk {
			out.ShipSunk = true
			out.SunkShipID = shipID
		}
	}

	if defender.remaining <= 0 {
		m.state = Over
		m.winner = attackerID
		out.GameOver = true
		out.WinnerID = attackerID
	}

	m.turn = 1 - m.turn
	out.NextTurn = m.sides[m.turn].player.ID
	return out
}

func (m *Match) noop() Outcome {
	return Outcome{NextTurn: m.CurrentTurn()}
}

func (m *Match) Code() string {
	return m.code
}

// CurrentTurn returns the id of the player allowed to attack, or "" before
// the first turn is decided.
func (m *Match) CurrentTurn() string {
	if !m.decided {
		return ""
	}
	return m.sides[m.turn].player.ID
}

func (m *Match) State() State {
	return m.state
}

// Winner returns the winning player id once the match is over.
func (m *Match) Winner() (string, bool) {
	return m.winner, m.state == Over
}

// Players returns both players in construction order.
func (m *Match) Players() [2]player.Player {
	return [2]player.Player{m.sides[0].player, m.sides[1].player}
}

func (m *Match) HasPlayer(id string) bool {
	return m.sideOf(id) >= 0
}

// OpponentOf returns the other player's id.
func (m *Match) OpponentOf(id string) (string, bool) {
	i := m.sideOf(id)
	if i < 0 {
		return "", false
	}
	return m.sides[1-i].player.ID, true
}

// ShipsRemaining returns how many of id's ships are still afloat.
func (m *Match) ShipsRemaining(id string) int {
	i := m.sideOf(id)
	if i < 0 {
		return 0
	}
	return m.sides[i].remaining
}

// ShipDestroyed reports whether id's ship has been sunk.
func (m *Match) ShipDestroyed(id, shipID string) bool {
	i := m.sideOf(id)
	if i < 0 {
		return false
	}
	return m.sides[i].destroyed[shipID]
}

// CellsAttacked returns how many of id's cells the opponent has fired at.
func (m *Match) CellsAttacked(id string) int {
	i := m.sideOf(id)
	if i < 0 {
		return 0
	}
	return m.sides[i].hits.Len()
}

// PlayerDisconnected records that id left. It neither ends the match nor
// declares a winner.
func (m *Match) PlayerDisconnected(id string) bool {
	i := m.sideOf(id)
	if i < 0 {
		return false
	}
	m.sides[i].disconnected = true
	return true
}

func (m *Match) Disconnected(id string) bool {
	i := m.sideOf(id)
	return i >= 0 && m.sides[i].disconnected
}

// Abandoned is true once both players have disconnected.
func (m *Match) Abandoned() bool {
	return m.sides[0].disconnected && m.sides[1].disconnected
}

// Attacks returns the number of processed attacks.
func (m *Match) Attacks() int {
	return m.attacks
}

func (m *Match) StartedAt() time.Time {
	return m.startedAt
}

func (m *Match) sideOf(id string) int {
	for i, s := range m.sides {
		if s.player.ID == id {
			return i
		}
	}
	return -1
}
