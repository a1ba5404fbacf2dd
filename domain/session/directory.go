// Package session owns the process-wide registry of sessions. Each session
// code maps to exactly one Lobby or one Match, and the Directory is the only
// place that moves a code from one to the other.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go-battleship/domain/board"
	"go-battleship/domain/lobby"
	"go-battleship/domain/match"
	"go-battleship/domain/player"
)

// MaxPlayers is the number of players a lobby seats and a match needs.
const MaxPlayers = 2

var (
	ErrEmptyCode       = errors.New("session code is required")
	ErrEmptyPlayer     = errors.New("player id is required")
	ErrLobbyFull       = errors.New("lobby is full")
	ErrMatchInProgress = errors.New("game already in progress")
	ErrAlreadySeated   = errors.New("player is seated in another session")
	ErrUnknownPlayer   = errors.New("player is not in a session")
	ErrNotInLobby      = errors.New("player is not in a lobby")
	ErrNotInMatch      = errors.New("player is not in a match")
	ErrOutOfBounds     = errors.New("attack outside grid")
	ErrPlayerCount     = errors.New("match needs exactly two players")
)

// Result describes a finished match.
type Result struct {
	Code       string
	WinnerID   string
	LoserID    string
	Attacks    int
	StartedAt  time.Time
	FinishedAt time.Time
}

// ResultRecorder receives finished matches. It is called after the directory
// lock is released.
type ResultRecorder interface {
	RecordResult(ctx context.Context, result Result) error
}

type entry struct {
	lobby *lobby.Lobby
	match *match.Match
}

// Directory maps session codes to lobbies and matches. All operations are
// serialized by one mutex and events are handed to the Notifier while it is
// held, so a session's events reach the transport in the order they were
// applied.
type Directory struct {
	mu       sync.RWMutex
	sessions map[string]*entry
	seats    map[string]string // player id -> session code
	notifier Notifier
	coin     match.Coin
	recorder ResultRecorder
	logger   *slog.Logger
	now      func() time.Time
}

type Option func(*Directory)

// WithCoin replaces the fair coin used to pick the first turn.
func WithCoin(coin match.Coin) Option {
	return func(d *Directory) {
		d.coin = coin
	}
}

func WithResultRecorder(r ResultRecorder) Option {
	return func(d *Directory) {
		d.recorder = r
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(d *Directory) {
		if logger != nil {
			d.logger = logger
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(d *Directory) {
		if now != nil {
			d.now = now
		}
	}
}

func NewDirectory(notifier Notifier, opts ...Option) *Directory {
	d := &Directory{
		sessions: make(map[string]*entry),
		seats:    make(map[string]string),
		notifier: notifier,
		coin:     match.FairCoin,
		logger:   slog.Default(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Reserve creates an empty lobby for code. It returns false when the code is
// already in use.
func (d *Directory) Reserve(code string) bool {
	if code == "" {
		return false
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.sessions[code]; ok {
		return false
	}
	d.sessions[code] = &entry{lobby: lobby.New(code)}
	return true
}

// HandleJoin seats p in the lobby for code, creating the lobby on first use.
// The joiner always gets JoinConfirmed or JoinRejected; the first player is
// told when a second one arrives.
func (d *Directory) HandleJoin(ctx context.Context, code string, p player.Player) error {
	if code == "" {
		return ErrEmptyCode
	}
	if p.ID == "" {
		return ErrEmptyPlayer
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if seated, ok := d.seats[p.ID]; ok && seated != code {
		return d.rejectJoin(p.ID, ErrAlreadySeated, "Already in lobby "+seated)
	}

	e, ok := d.sessions[code]
	if !ok {
		e = &entry{lobby: lobby.New(code)}
		d.sessions[code] = e
		d.logger.InfoContext(ctx, "lobby created", slog.String("code", code))
	}
	if e.match != nil {
		return d.rejectJoin(p.ID, ErrMatchInProgress, "Game already in progress")
	}

	l := e.lobby
	if !l.HasPlayer(p.ID) && l.Len() >= MaxPlayers {
		return d.rejectJoin(p.ID, ErrLobbyFull, "Lobby is full")
	}

	added := l.AddPlayer(p)
	d.seats[p.ID] = code
	d.logger.InfoContext(ctx, "player joined lobby",
		slog.String("code", code),
		slog.String("player", p.ID),
		slog.Int("players", l.Len()),
	)

	if added && l.Len() == MaxPlayers {
		first := l.Players()[0]
		d.notify(first.ID, OpponentJoined{DisplayName: p.DisplayName})
	}
	d.notify(p.ID, JoinConfirmed{Message: "Successfully joined lobby " + code})
	return nil
}

func (d *Directory) rejectJoin(playerID string, err error, message string) error {
	d.notify(playerID, JoinRejected{Message: message})
	return err
}

// HandleReady stores the player's fleet and, once everyone in the lobby is
// ready, replaces the lobby with a match under the same code.
func (d *Directory) HandleReady(ctx context.Context, playerID string, b board.Board) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	code, ok := d.seats[playerID]
	if !ok {
		return ErrUnknownPlayer
	}
	e := d.sessions[code]
	if e == nil || e.lobby == nil {
		return ErrNotInLobby
	}
	if !e.lobby.SetReady(playerID, b) {
		return ErrNotInLobby
	}
	d.logger.InfoContext(ctx, "player ready",
		slog.String("code", code),
		slog.String("player", playerID),
		slog.Int("ships", b.Len()),
	)

	if !e.lobby.AllReady() {
		return nil
	}
	return d.startMatch(ctx, code, e)
}

func (d *Directory) startMatch(ctx context.Context, code string, e *entry) error {
	players := e.lobby.Players()
	if len(players) != MaxPlayers {
		d.logger.ErrorContext(ctx, "cannot start match", slog.String("code", code), slog.Int("players", len(players)))
		return fmt.Errorf("start match %s with %d players: %w", code, len(players), ErrPlayerCount)
	}

	boardA, _ := e.lobby.Board(players[0].ID)
	boardB, _ := e.lobby.Board(players[1].ID)
	m, err := match.New(code, players[0], players[1], boardA, boardB, d.now())
	if err != nil {
		d.logger.ErrorContext(ctx, "cannot start match", slog.String("code", code), slog.Any("error", err))
		return fmt.Errorf("start match %s: %w", code, err)
	}
	first := players[m.DecideFirstTurn(d.coin)].ID

	e.lobby = nil
	e.match = m

	d.logger.InfoContext(ctx, "match started", slog.String("code", code), slog.String("first", first))
	for _, p := range players {
		d.notify(p.ID, MatchStart{FirstTurnPlayerID: first})
	}
	return nil
}

// HandleAttack resolves an attack by playerID. Out-of-grid coordinates are
// discarded without any event. Every resolved attempt, including no-ops,
// reports to both players; a finished match is removed.
func (d *Directory) HandleAttack(ctx context.Context, playerID string, x, y int) error {
	result, over, err := d.attack(ctx, playerID, x, y)
	if err != nil || !over {
		return err
	}
	if d.recorder != nil {
		if err := d.recorder.RecordResult(ctx, result); err != nil {
			d.logger.WarnContext(ctx, "record result", slog.String("code", result.Code), slog.Any("error", err))
		}
	}
	return nil
}

func (d *Directory) attack(ctx context.Context, playerID string, x, y int) (Result, bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	code, ok := d.seats[playerID]
	if !ok {
		return Result{}, false, ErrUnknownPlayer
	}
	e := d.sessions[code]
	if e == nil || e.match == nil {
		return Result{}, false, ErrNotInMatch
	}
	if !board.InBounds(x, y) {
		return Result{}, false, fmt.Errorf("attack (%d,%d): %w", x, y, ErrOutOfBounds)
	}

	m := e.match
	out := m.ResolveAttack(playerID, x, y)
	report := AttackReport{
		X:          x,
		Y:          y,
		Hit:        out.Hit,
		ShipSunk:   out.ShipSunk,
		SunkShipID: out.SunkShipID,
		NextTurn:   out.NextTurn,
		GameOver:   out.GameOver,
		WinnerID:   out.WinnerID,
	}
	defender, _ := m.OpponentOf(playerID)
	d.notify(playerID, AttackResult{AttackReport: report})
	d.notify(defender, Attacked{AttackReport: report})

	if !out.GameOver {
		return Result{}, false, nil
	}

	for _, id := range []string{playerID, defender} {
		d.notify(id, GameOver{WinnerID: out.WinnerID})
	}
	result := Result{
		Code:       code,
		WinnerID:   out.WinnerID,
		LoserID:    defender,
		Attacks:    m.Attacks(),
		StartedAt:  m.StartedAt(),
		FinishedAt: d.now(),
	}
	d.remove(code, m)
	d.logger.InfoContext(ctx, "match over",
		slog.String("code", code),
		slog.String("winner", result.WinnerID),
		slog.Int("attacks", result.Attacks),
	)
	return result, true, nil
}

// HandleDisconnect removes a departing player from their lobby, or records
// the departure in their match and tells the opponent. The match itself is
// kept until it finishes or both players are gone.
func (d *Directory) HandleDisconnect(ctx context.Context, playerID string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	code, ok := d.seats[playerID]
	if !ok {
		return ErrUnknownPlayer
	}
	delete(d.seats, playerID)

	e := d.sessions[code]
	if e == nil {
		return nil
	}

	if e.lobby != nil {
		e.lobby.RemovePlayer(playerID)
		if e.lobby.Len() == 0 {
			delete(d.sessions, code)
			d.logger.InfoContext(ctx, "lobby emptied", slog.String("code", code))
		}
		return nil
	}

	m := e.match
	m.PlayerDisconnected(playerID)
	d.logger.InfoContext(ctx, "player left match", slog.String("code", code), slog.String("player", playerID))
	if opponent, ok := m.OpponentOf(playerID); ok && !m.Disconnected(opponent) {
		d.notify(opponent, OpponentDisconnected{Message: "Your opponent has disconnected from the game."})
	}
	if m.Abandoned() {
		d.remove(code, m)
		d.logger.InfoContext(ctx, "match abandoned", slog.String("code", code))
	}
	return nil
}

// remove drops a match entry and frees the seats still pointing at it.
// Callers hold d.mu.
func (d *Directory) remove(code string, m *match.Match) {
	delete(d.sessions, code)
	for _, p := range m.Players() {
		if d.seats[p.ID] == code {
			delete(d.seats, p.ID)
		}
	}
}

func (d *Directory) notify(playerID string, event Event) {
	if d.notifier == nil || playerID == "" {
		return
	}
	d.notifier.Notify(playerID, event)
}
