package player

// Player is a participant identified by a caller-supplied identity.
type Player struct {
	ID          string
	DisplayName string
}
