package inline

import (
	"context"

	"ghosttext/internal/render"
)

// State is the suggestion lifecycle of one view.
type State int

const (
	Idle State = iota
	Requesting
	Displaying
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Requesting:
		return "requesting"
	case Displaying:
		return "displaying"
	default:
		return "unknown"
	}
}

// Session is one suggestion request from trigger to terminal event.
type Session struct {
	ID string
	// Origin is the caret offset in snapshot Version when the request started.
	Origin  int
	Version int
	// Typed is the caret line up to the caret, used to drop echoed input.
	Typed string

	Raw     string
	Display string
	Full    string
	Handle  *render.SessionHandle

	ctx    context.Context
	cancel context.CancelFunc
}

func (s *Session) cancelled() bool { return s.ctx.Err() != nil }
