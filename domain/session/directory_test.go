package session

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"go-battleship/domain/board"
	"go-battleship/domain/player"
)

type delivery struct {
	to    string
	event Event
}

type recordingNotifier struct {
	mu         sync.Mutex
	deliveries []delivery
}

func (r *recordingNotifier) Notify(playerID string, event Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.deliveries = append(r.deliveries, delivery{to: playerID, event: event})
}

// take returns and clears everything delivered so far.
func (r *recordingNotifier) take() []delivery {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := r.deliveries
	r.deliveries = nil
	return out
}

func (r *recordingNotifier) to(playerID string) []Event {
	var out []Event
	for _, d := range r.take() {
		if d.to == playerID {
			out = append(out, d.event)
		}
	}
	return out
}

type fakeRecorder struct {
	results []Result
	err     error
}

func (f *fakeRecorder) RecordResult(_ context.Context, r Result) error {
	f.results = append(f.results, r)
	return f.err
}

var (
	p1 = player.Player{ID: "p1", DisplayName: "Ann"}
	p2 = player.Player{ID: "p2", DisplayName: "Bob"}
	p3 = player.Player{ID: "p3", DisplayName: "Cid"}
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestDirectory(coin int, opts ...Option) (*Directory, *recordingNotifier) {
	n := &recordingNotifier{}
	opts = append([]Option{
		WithCoin(func() int { return coin }),
		WithLogger(quietLogger()),
	}, opts...)
	return NewDirectory(n, opts...), n
}

func mustBoard(t *testing.T, ships map[string][]int) board.Board {
	t.Helper()
	b, err := board.New(ships)
	if err != nil {
		t.Fatalf("new board: %v", err)
	}
	return b
}

// startMatch seats p1 {0} and p2 {99} in ABCD and readies both.
func startMatch(t *testing.T, d *Directory, n *recordingNotifier) {
	t.Helper()
	ctx := context.Background()
	for _, p := range []player.Player{p1, p2} {
		if err := d.HandleJoin(ctx, "ABCD", p); err != nil {
			t.Fatalf("join %s: %v", p.ID, err)
		}
	}
	if err := d.HandleReady(ctx, "p1", mustBoard(t, map[string][]int{"s": {0}})); err != nil {
		t.Fatalf("ready p1: %v", err)
	}
	if err := d.HandleReady(ctx, "p2", mustBoard(t, map[string][]int{"s": {99}})); err != nil {
		t.Fatalf("ready p2: %v", err)
	}
	n.take()
}

func TestJoinNotifiesFirstPlayer(t *testing.T) {
	d, n := newTestDirectory(0)
	ctx := context.Background()

	if err := d.HandleJoin(ctx, "ABCD", p1); err != nil {
		t.Fatalf("join p1: %v", err)
	}
	got := n.take()
	if len(got) != 1 || got[0].to != "p1" {
		t.Fatalf("deliveries after first join = %+v", got)
	}
	if _, ok := got[0].event.(JoinConfirmed); !ok {
		t.Fatalf("event = %T, want JoinConfirmed", got[0].event)
	}

	if err := d.HandleJoin(ctx, "ABCD", p2); err != nil {
		t.Fatalf("join p2: %v", err)
	}
	got = n.take()
	if len(got) != 2 {
		t.Fatalf("deliveries after second join = %+v", got)
	}
	if got[0].to != "p1" || got[0].event != (OpponentJoined{DisplayName: "Bob"}) {
		t.Fatalf("first delivery = %+v, want OpponentJoined{Bob} to p1", got[0])
	}
	if got[1].to != "p2" {
		t.Fatalf("second delivery to %q, want p2", got[1].to)
	}
	if _, ok := got[1].event.(JoinConfirmed); !ok {
		t.Fatalf("event = %T, want JoinConfirmed", got[1].event)
	}
}

func TestRepeatedJoinIsIdempotent(t *testing.T) {
	d, n := newTestDirectory(0)
	ctx := context.Background()
	_ = d.HandleJoin(ctx, "ABCD", p1)
	_ = d.HandleJoin(ctx, "ABCD", p2)
	n.take()

	if err := d.HandleJoin(ctx, "ABCD", p2); err != nil {
		t.Fatalf("rejoin: %v", err)
	}
	got := n.take()
	if len(got) != 1 || got[0].to != "p2" {
		t.Fatalf("deliveries after rejoin = %+v, want only confirmation", got)
	}
	s, _ := d.Snapshot("ABCD")
	if len(s.Players) != 2 {
		t.Fatalf("players = %d, want 2", len(s.Players))
	}
}

func TestThirdJoinerRejected(t *testing.T) {
	d, n := newTestDirectory(0)
	ctx := context.Background()
	_ = d.HandleJoin(ctx, "ABCD", p1)
	_ = d.HandleJoin(ctx, "ABCD", p2)
	n.take()

	err := d.HandleJoin(ctx, "ABCD", p3)
	if !errors.Is(err, ErrLobbyFull) {
		t.Fatalf("third join error = %v, want %v", err, ErrLobbyFull)
	}
	got := n.to("p3")
	if len(got) != 1 || got[0] != (JoinRejected{Message: "Lobby is full"}) {
		t.Fatalf("p3 events = %+v", got)
	}
	if _, ok := d.SeatOf("p3"); ok {
		t.Fatal("rejected player was seated")
	}
}

func TestJoinWhileSeatedElsewhereRejected(t *testing.T) {
	d, _ := newTestDirectory(0)
	ctx := context.Background()
	_ = d.HandleJoin(ctx, "ABCD", p1)

	if err := d.HandleJoin(ctx, "WXYZ", p1); !errors.Is(err, ErrAlreadySeated) {
		t.Fatalf("error = %v, want %v", err, ErrAlreadySeated)
	}
	if _, ok := d.Snapshot("WXYZ"); ok {
		t.Fatal("rejected join created a lobby")
	}
}

func TestJoinValidatesInput(t *testing.T) {
	d, _ := newTestDirectory(0)
	ctx := context.Background()
	if err := d.HandleJoin(ctx, "", p1); !errors.Is(err, ErrEmptyCode) {
		t.Fatalf("empty code error = %v", err)
	}
	if err := d.HandleJoin(ctx, "ABCD", player.Player{}); !errors.Is(err, ErrEmptyPlayer) {
		t.Fatalf("empty player error = %v", err)
	}
}

func TestReadyStartsMatch(t *testing.T) {
	for _, tc := range []struct {
		coin  int
		first string
	}{{0, "p1"}, {1, "p2"}} {
		d, n := newTestDirectory(tc.coin)
		ctx := context.Background()
		_ = d.HandleJoin(ctx, "ABCD", p1)
		_ = d.HandleJoin(ctx, "ABCD", p2)
		n.take()

		if err := d.HandleReady(ctx, "p1", mustBoard(t, map[string][]int{"s": {0}})); err != nil {
			t.Fatalf("ready p1: %v", err)
		}
		if got := n.take(); len(got) != 0 {
			t.Fatalf("deliveries after one ready = %+v", got)
		}
		if s, _ := d.Snapshot("ABCD"); s.Phase != PhaseLobby {
			t.Fatalf("phase = %s, want lobby", s.Phase)
		}

		if err := d.HandleReady(ctx, "p2", mustBoard(t, map[string][]int{"s": {99}})); err != nil {
			t.Fatalf("ready p2: %v", err)
		}
		got := n.take()
		if len(got) != 2 {
			t.Fatalf("deliveries after both ready = %+v", got)
		}
		for i, want := range []string{"p1", "p2"} {
			if got[i].to != want || got[i].event != (MatchStart{FirstTurnPlayerID: tc.first}) {
				t.Fatalf("delivery %d = %+v, want MatchStart{%s} to %s", i, got[i], tc.first, want)
			}
		}

		s, ok := d.Snapshot("ABCD")
		if !ok || s.Phase != PhaseMatch || s.CurrentTurn != tc.first {
			t.Fatalf("snapshot = %+v", s)
		}
	}
}

func TestReadyErrors(t *testing.T) {
	d, n := newTestDirectory(0)
	ctx := context.Background()
	b := mustBoard(t, map[string][]int{"s": {0}})

	if err := d.HandleReady(ctx, "ghost", b); !errors.Is(err, ErrUnknownPlayer) {
		t.Fatalf("unknown player error = %v", err)
	}

	startMatch(t, d, n)
	if err := d.HandleReady(ctx, "p1", b); !errors.Is(err, ErrNotInLobby) {
		t.Fatalf("ready during match error = %v", err)
	}
}

func TestWinningAttack(t *testing.T) {
	rec := &fakeRecorder{}
	finished := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	d, n := newTestDirectory(0, WithResultRecorder(rec), WithClock(func() time.Time { return finished }))
	startMatch(t, d, n)

	if err := d.HandleAttack(context.Background(), "p1", 9, 9); err != nil {
		t.Fatalf("attack: %v", err)
	}

	report := AttackReport{X: 9, Y: 9, Hit: true, ShipSunk: true, SunkShipID: "s", NextTurn: "p2", GameOver: true, WinnerID: "p1"}
	want := []delivery{
		{to: "p1", event: AttackResult{AttackReport: report}},
		{to: "p2", event: Attacked{AttackReport: report}},
		{to: "p1", event: GameOver{WinnerID: "p1"}},
		{to: "p2", event: GameOver{WinnerID: "p1"}},
	}
	got := n.take()
	if len(got) != len(want) {
		t.Fatalf("deliveries = %+v, want %+v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("delivery %d = %+v, want %+v", i, got[i], want[i])
		}
	}

	if _, ok := d.Snapshot("ABCD"); ok {
		t.Fatal("finished match still registered")
	}
	if _, ok := d.SeatOf("p1"); ok {
		t.Fatal("winner still seated")
	}
	if len(rec.results) != 1 {
		t.Fatalf("recorded results = %d, want 1", len(rec.results))
	}
	r := rec.results[0]
	if r.Code != "ABCD" || r.WinnerID != "p1" || r.LoserID != "p2" || r.Attacks != 1 || !r.FinishedAt.Equal(finished) {
		t.Fatalf("result = %+v", r)
	}

	if err := d.HandleAttack(context.Background(), "p1", 0, 0); !errors.Is(err, ErrUnknownPlayer) {
		t.Fatalf("attack after game over error = %v", err)
	}
}

func TestResultUsesDirectoryClock(t *testing.T) {
	rec := &fakeRecorder{}
	clock := time.Date(2026, 1, 2, 3, 0, 0, 0, time.UTC)
	d, n := newTestDirectory(0, WithResultRecorder(rec), WithClock(func() time.Time { return clock }))
	startMatch(t, d, n)

	clock = clock.Add(90 * time.Second)
	if err := d.HandleAttack(context.Background(), "p1", 9, 9); err != nil {
		t.Fatalf("attack: %v", err)
	}
	if len(rec.results) != 1 {
		t.Fatalf("recorded results = %d, want 1", len(rec.results))
	}
	r := rec.results[0]
	if got := r.FinishedAt.Sub(r.StartedAt); got != 90*time.Second {
		t.Fatalf("match duration = %v, want 1m30s", got)
	}
}

func TestRecorderFailureDoesNotFailAttack(t *testing.T) {
	rec := &fakeRecorder{err: errors.New("disk full")}
	d, n := newTestDirectory(0, WithResultRecorder(rec))
	startMatch(t, d, n)

	if err := d.HandleAttack(context.Background(), "p1", 9, 9); err != nil {
		t.Fatalf("attack: %v", err)
	}
	if _, ok := d.Snapshot("ABCD"); ok {
		t.Fatal("finished match still registered")
	}
}

func TestMissReportsToBoth(t *testing.T) {
	d, n := newTestDirectory(0)
	startMatch(t, d, n)

	if err := d.HandleAttack(context.Background(), "p1", 1, 1); err != nil {
		t.Fatalf("attack: %v", err)
	}
	report := AttackReport{X: 1, Y: 1, NextTurn: "p2"}
	got := n.take()
	if len(got) != 2 {
		t.Fatalf("deliveries = %+v", got)
	}
	if got[0] != (delivery{to: "p1", event: AttackResult{AttackReport: report}}) {
		t.Fatalf("attacker delivery = %+v", got[0])
	}
	if got[1] != (delivery{to: "p2", event: Attacked{AttackReport: report}}) {
		t.Fatalf("defender delivery = %+v", got[1])
	}
	if s, _ := d.Snapshot("ABCD"); s.CurrentTurn != "p2" {
		t.Fatalf("turn = %q, want p2", s.CurrentTurn)
	}
}

func TestOutOfTurnAttackKeepsTurn(t *testing.T) {
	d, n := newTestDirectory(0)
	startMatch(t, d, n)

	if err := d.HandleAttack(context.Background(), "p2", 0, 0); err != nil {
		t.Fatalf("attack: %v", err)
	}
	got := n.take()
	if len(got) != 2 {
		t.Fatalf("deliveries = %+v", got)
	}
	want := AttackResult{AttackReport: AttackReport{X: 0, Y: 0, NextTurn: "p1"}}
	if got[0].to != "p2" || got[0].event != want {
		t.Fatalf("attacker delivery = %+v, want %+v", got[0], want)
	}
	s, _ := d.Snapshot("ABCD")
	if s.CurrentTurn != "p1" {
		t.Fatalf("turn = %q, want p1", s.CurrentTurn)
	}
	for _, p := range s.Players {
		if p.ShipsRemaining != 1 {
			t.Fatalf("%s ships remaining = %d, want 1", p.ID, p.ShipsRemaining)
		}
	}
}

func TestOutOfGridAttackDiscarded(t *testing.T) {
	d, n := newTestDirectory(0)
	startMatch(t, d, n)

	for _, c := range [][2]int{{-1, 0}, {10, 0}, {0, 10}, {0, -3}} {
		if err := d.HandleAttack(context.Background(), "p1", c[0], c[1]); !errors.Is(err, ErrOutOfBounds) {
			t.Fatalf("attack %v error = %v, want %v", c, err, ErrOutOfBounds)
		}
	}
	if got := n.take(); len(got) != 0 {
		t.Fatalf("out of grid attack delivered %+v", got)
	}
}

func TestAttackFromLobbyOrStranger(t *testing.T) {
	d, _ := newTestDirectory(0)
	ctx := context.Background()
	if err := d.HandleAttack(ctx, "ghost", 0, 0); !errors.Is(err, ErrUnknownPlayer) {
		t.Fatalf("stranger error = %v", err)
	}
	_ = d.HandleJoin(ctx, "ABCD", p1)
	if err := d.HandleAttack(ctx, "p1", 0, 0); !errors.Is(err, ErrNotInMatch) {
		t.Fatalf("lobby attack error = %v", err)
	}
}

func TestDisconnectFromLobby(t *testing.T) {
	d, n := newTestDirectory(0)
	ctx := context.Background()
	_ = d.HandleJoin(ctx, "ABCD", p1)
	_ = d.HandleJoin(ctx, "ABCD", p2)
	n.take()

	if err := d.HandleDisconnect(ctx, "p2"); err != nil {
		t.Fatalf("disconnect: %v", err)
	}
	if got := n.take(); len(got) != 0 {
		t.Fatalf("lobby disconnect delivered %+v", got)
	}
	s, ok := d.Snapshot("ABCD")
	if !ok || len(s.Players) != 1 || s.Players[0].ID != "p1" {
		t.Fatalf("snapshot = %+v", s)
	}

	// The freed seat can be taken again.
	if err := d.HandleJoin(ctx, "ABCD", p3); err != nil {
		t.Fatalf("join p3: %v", err)
	}

	_ = d.HandleDisconnect(ctx, "p1")
	_ = d.HandleDisconnect(ctx, "p3")
	if _, ok := d.Snapshot("ABCD"); ok {
		t.Fatal("empty lobby still registered")
	}
	if err := d.HandleDisconnect(ctx, "p1"); !errors.Is(err, ErrUnknownPlayer) {
		t.Fatalf("second disconnect error = %v", err)
	}
}

func TestDisconnectFromMatch(t *testing.T) {
	d, n := newTestDirectory(0)
	startMatch(t, d, n)
	ctx := context.Background()

	if err := d.HandleDisconnect(ctx, "p2"); err != nil {
		t.Fatalf("disconnect: %v", err)
	}
	got := n.take()
	want := delivery{to: "p1", event: OpponentDisconnected{Message: "Your opponent has disconnected from the game."}}
	if len(got) != 1 || got[0] != want {
		t.Fatalf("deliveries = %+v, want %+v", got, want)
	}

	s, ok := d.Snapshot("ABCD")
	if !ok || s.Phase != PhaseMatch {
		t.Fatal("match removed on first disconnect")
	}
	if err := d.HandleAttack(ctx, "p1", 1, 1); err != nil {
		t.Fatalf("attack after opponent left: %v", err)
	}
	got = n.take()
	if len(got) != 2 || got[1].to != "p2" {
		t.Fatalf("deliveries after opponent left = %+v", got)
	}

	if err := d.HandleDisconnect(ctx, "p1"); err != nil {
		t.Fatalf("second disconnect: %v", err)
	}
	if got := n.take(); len(got) != 0 {
		t.Fatalf("second disconnect delivered %+v", got)
	}
	if _, ok := d.Snapshot("ABCD"); ok {
		t.Fatal("abandoned match still registered")
	}
}

func TestJoinDuringMatchRejected(t *testing.T) {
	d, n := newTestDirectory(0)
	startMatch(t, d, n)

	if err := d.HandleJoin(context.Background(), "ABCD", p3); !errors.Is(err, ErrMatchInProgress) {
		t.Fatalf("error = %v, want %v", err, ErrMatchInProgress)
	}
	got := n.to("p3")
	if len(got) != 1 || got[0] != (JoinRejected{Message: "Game already in progress"}) {
		t.Fatalf("p3 events = %+v", got)
	}
}

func TestReserve(t *testing.T) {
	d, _ := newTestDirectory(0)
	if !d.Reserve("QWERTY") {
		t.Fatal("first Reserve = false")
	}
	if d.Reserve("QWERTY") || d.Reserve("") {
		t.Fatal("Reserve accepted a used or empty code")
	}
	if err := d.HandleJoin(context.Background(), "QWERTY", p1); err != nil {
		t.Fatalf("join reserved: %v", err)
	}
	snaps := d.Snapshots()
	if len(snaps) != 1 || snaps[0].Code != "QWERTY" || len(snaps[0].Players) != 1 {
		t.Fatalf("snapshots = %+v", snaps)
	}
}

func TestConcurrentAttacksResolveOnce(t *testing.T) {
	d, n := newTestDirectory(0)
	startMatch(t, d, n)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = d.HandleAttack(context.Background(), "p1", 1, 1)
		}()
	}
	wg.Wait()

	n.take()

	d.mu.RLock()
	attacks := d.sessions["ABCD"].match.Attacks()
	d.mu.RUnlock()
	if attacks != 1 {
		t.Fatalf("processed attacks = %d, want 1", attacks)
	}
	if s, _ := d.Snapshot("ABCD"); s.CurrentTurn != "p2" {
		t.Fatalf("turn = %q, want p2", s.CurrentTurn)
	}
}
