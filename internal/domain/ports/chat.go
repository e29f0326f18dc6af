package ports

import "context"

// UserID identifies one conversing party on the chat transport.
type UserID int64

// Reply is an outbound message. Keyboard rows, when present, replace the
// user's current keyboard; RemoveKeyboard clears it.
type Reply struct {
	Text           string
	Keyboard       [][]string
	RemoveKeyboard bool
}

// Sender delivers replies back to the chat transport.
type Sender interface {
	Send(ctx context.Context, user UserID, reply Reply) error
}
