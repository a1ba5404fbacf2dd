package session

import "sort"

type Phase string

const (
	PhaseLobby Phase = "lobby"
	PhaseMatch Phase = "match"
)

// Snapshot is a read-only view of one session for status queries.
type Snapshot struct {
	Code        string
	Phase       Phase
	Players     []PlayerStatus
	CurrentTurn string
}

type PlayerStatus struct {
	ID             string
	DisplayName    string
	Ready          bool
	ShipsRemaining int
	Disconnected   bool
}

// Snapshot returns the state of the session for code.
func (d *Directory) Snapshot(code string) (Snapshot, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	e, ok := d.sessions[code]
	if !ok {
		return Snapshot{}, false
	}
	return snapshotOf(code, e), true
}

// Snapshots returns every session ordered by code.
func (d *Directory) Snapshots() []Snapshot {
	d.mu.RLock()
	defer d.mu.RUnlock()

	out := make([]Snapshot, 0, len(d.sessions))
	for code, e := range d.sessions {
		out = append(out, snapshotOf(code, e))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out
}

// SeatOf returns the session code a player is seated in.
func (d *Directory) SeatOf(playerID string) (string, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	code, ok := d.seats[playerID]
	return code, ok
}

func snapshotOf(code string, e *entry) Snapshot {
	if e.match != nil {
		m := e.match
		players := m.Players()
		s := Snapshot{
			Code:        code,
			Phase:       PhaseMatch,
			Players:     make([]PlayerStatus, 0, len(players)),
			CurrentTurn: m.CurrentTurn(),
		}
		for _, p := range players {
			s.Players = append(s.Players, PlayerStatus{
				ID:             p.ID,
				DisplayName:    p.DisplayName,
				Ready:          true,
				ShipsRemaining: m.ShipsRemaining(p.ID),
				Disconnected:   m.Disconnected(p.ID),
			})
		}
		return s
	}

	players := e.lobby.Players()
	s := Snapshot{
		Code:    code,
		Phase:   PhaseLobby,
		Players: make([]PlayerStatus, 0, len(players)),
	}
	for _, p := range players {
		status := PlayerStatus{
			ID:          p.ID,
			DisplayName: p.DisplayName,
			Ready:       e.lobby.IsReady(p.ID),
		}
		if b, ok := e.lobby.Board(p.ID); ok {
			status.ShipsRemaining = b.Len()
		}
		s.Players = append(s.Players, status)
	}
	return s
}
