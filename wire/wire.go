// Package wire decodes inbound client frames and encodes outbound events.
//
// Frames are flat JSON objects with a "type" field, matching the browser
// client. Payloads are validated here so that only well-formed requests
// reach the session directory.
package wire

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/go-playground/validator/v10"

	"go-battleship/domain/board"
	"go-battleship/domain/player"
	"go-battleship/domain/session"
)

const (
	TypeJoin   = "join"
	TypeReady  = "ready"
	TypeAttack = "attack"
)

var (
	ErrMalformed   = errors.New("malformed frame")
	ErrUnknownType = errors.New("unknown frame type")
	ErrInvalid     = errors.New("invalid frame payload")
)

type envelope struct {
	Type string `json:"type"`
}

// Join asks to be seated in the lobby for a session code.
type Join struct {
	Lobby    string `json:"lobby" validate:"required,max=64"`
	User     string `json:"user" validate:"required,max=128"`
	Username string `json:"username" validate:"max=64"`
}

func (j Join) Player() player.Player {
	name := j.Username
	if name == "" {
		name = j.User
	}
	return player.Player{ID: j.User, DisplayName: name}
}

// Ready submits a fleet. Ship cells are grid indices in [0,100).
type Ready struct {
	User  string           `json:"user" validate:"max=128"`
	Board map[string][]int `json:"board" validate:"required,min=1,max=16,dive,keys,required,max=64,endkeys,required,min=1,max=100,dive,min=0,max=99"`
}

// Fleet converts the submitted layout to a board.
func (r Ready) Fleet() (board.Board, error) {
	return board.New(r.Board)
}

// Attack fires at (X, Y). Range checks are left to the session directory.
type Attack struct {
	X *int `json:"x" validate:"required"`
	Y *int `json:"y" validate:"required"`
}

// Frame is one decoded inbound message. Exactly one of the payload fields
// is set, according to Type.
type Frame struct {
	Type   string
	Join   *Join
	Ready  *Ready
	Attack *Attack
}

// Decoder validates inbound frames. It is safe for concurrent use.
type Decoder struct {
	validate *validator.Validate
}

func NewDecoder() *Decoder {
	return &Decoder{validate: validator.New(validator.WithRequiredStructEnabled())}
}

// Decode parses and validates one frame.
func (d *Decoder) Decode(data []byte) (Frame, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Frame{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	frame := Frame{Type: env.Type}
	var payload any
	switch env.Type {
	case TypeJoin:
		frame.Join = &Join{}
		payload = frame.Join
	case TypeReady:
		frame.Ready = &Ready{}
		payload = frame.Ready
	case TypeAttack:
		frame.Attack = &Attack{}
		payload = frame.Attack
	default:
		return Frame{}, fmt.Errorf("%w: %q", ErrUnknownType, env.Type)
	}

	if err := json.Unmarshal(data, payload); err != nil {
		return Frame{}, fmt.Errorf("%w: %s: %v", ErrMalformed, env.Type, err)
	}
	if err := d.validate.Struct(payload); err != nil {
		return Frame{}, fmt.Errorf("%w: %s: %v", ErrInvalid, env.Type, err)
	}
	return frame, nil
}

// Encode renders an outbound event as a flat JSON object carrying its type.
func Encode(event session.Event) ([]byte, error) {
	body, err := json.Marshal(event)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", event.Type(), err)
	}
	fields := map[string]json.RawMessage{}
	if err := json.Unmarshal(body, &fields); err != nil {
		return nil, fmt.Errorf("encode %s: %w", event.Type(), err)
	}
	fields["type"] = json.RawMessage(strconv.Quote(event.Type()))
	return json.Marshal(fields)
}
