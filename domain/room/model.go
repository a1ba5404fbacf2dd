package room

import (
	"fmt"
	"time"

	"google.golang.org/protobuf/reflect/protoreflect"
	"google.golang.org/protobuf/types/dynamicpb"
	"google.golang.org/protobuf/types/known/structpb"

	"go-battleship/domain/session"
)

// Room status responses are untyped structs so that clients can use the
// Connect JSON protocol without generated stubs.

func roomValue(s session.Snapshot) map[string]any {
	players := make([]any, 0, len(s.Players))
	for _, p := range s.Players {
		players = append(players, map[string]any{
			"id":              p.ID,
			"username":        p.DisplayName,
			"ready":           p.Ready,
			"ships_remaining": p.ShipsRemaining,
			"disconnected":    p.Disconnected,
		})
	}
	return map[string]any{
		"code":         s.Code,
		"phase":        string(s.Phase),
		"players":      players,
		"current_turn": s.CurrentTurn,
	}
}

func resultValue(r session.Result) map[string]any {
	return map[string]any{
		"code":        r.Code,
		"winner":      r.WinnerID,
		"loser":       r.LoserID,
		"attacks":     r.Attacks,
		"started_at":  r.StartedAt.UTC().Format(time.RFC3339),
		"finished_at": r.FinishedAt.UTC().Format(time.RFC3339),
	}
}

func newStruct(fields map[string]any) (*structpb.Struct, error) {
	msg, err := structpb.NewStruct(fields)
	if err != nil {
		return nil, fmt.Errorf("build message: %w", err)
	}
	return msg, nil
}

// stringArg reads a set string field of a request message.
func stringArg(msg *dynamicpb.Message, name protoreflect.Name) string {
	if fd, ok := argField(msg, name); ok {
		return msg.Get(fd).String()
	}
	return ""
}

// intArg reads a set integer field of a request message.
func intArg(msg *dynamicpb.Message, name protoreflect.Name) (int64, bool) {
	if fd, ok := argField(msg, name); ok {
		return msg.Get(fd).Int(), true
	}
	return 0, false
}

func argField(msg *dynamicpb.Message, name protoreflect.Name) (protoreflect.FieldDescriptor, bool) {
	if msg == nil {
		return nil, false
	}
	fd := msg.Descriptor().Fields().ByName(name)
	if fd == nil || !msg.Has(fd) {
		return nil, false
	}
	return fd, true
}
