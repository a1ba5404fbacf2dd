package session

// Event is an outbound notification addressed to one player. Field names on
// the wire follow the browser client protocol.
type Event interface {
	Type() string
}

// Notifier delivers events to players by identity. Notify must not block the
// caller; recipients that are gone are ignored.
type Notifier interface {
	Notify(playerID string, event Event)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(playerID string, event Event)

func (f NotifierFunc) Notify(playerID string, event Event) {
	f(playerID, event)
}

type JoinConfirmed struct {
	Message string `json:"message"`
}

func (JoinConfirmed) Type() string { return "joinConfirmed" }

type JoinRejected struct {
	Message string `json:"message"`
}

func (JoinRejected) Type() string { return "joinRejected" }

type OpponentJoined struct {
	DisplayName string `json:"username"`
}

func (OpponentJoined) Type() string { return "opponentJoined" }

type MatchStart struct {
	FirstTurnPlayerID string `json:"firstPlayer"`
}

func (MatchStart) Type() string { return "gameStart" }

// AttackReport carries the fields shared by AttackResult and Attacked.
type AttackReport struct {
	X          int    `json:"x"`
	Y          int    `json:"y"`
	Hit        bool   `json:"hit"`
	ShipSunk   bool   `json:"sunk"`
	SunkShipID string `json:"shipId,omitempty"`
	NextTurn   string `json:"nextPlayer"`
	GameOver   bool   `json:"gameOver"`
	WinnerID   string `json:"winner"`
}

// AttackResult goes to the attacker.
type AttackResult struct {
	AttackReport
}

func (AttackResult) Type() string { return "attackResult" }

// Attacked goes to the defender.
type Attacked struct {
	AttackReport
}

func (Attacked) Type() string { return "attacked" }

type GameOver struct {
	WinnerID string `json:"winner"`
}

func (GameOver) Type() string { return "gameOver" }

type OpponentDisconnected struct {
	Message string `json:"message"`
}

func (OpponentDisconnected) Type() string { return "opponentDisconnected" }
