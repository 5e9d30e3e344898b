// Summary: Inline chat: a caret-anchored instruction box whose reply is previewed as a diff
// against the whole buffer and either accepted (full replace) or cancelled.
package inlinechat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/google/uuid"

	"ghosttext/internal/chat"
	"ghosttext/internal/dispatch"
	"ghosttext/internal/editor"
	"ghosttext/internal/feature"
	"ghosttext/internal/logging"
	"ghosttext/internal/suggest"
)

// ErrNilCollaborator is returned by New when a dependency is missing.
var ErrNilCollaborator = errors.New("inlinechat: nil collaborator")

const (
	MinZoom     = 0.5
	MaxZoom     = 3.0
	DefaultZoom = 1.0
	zoomStep    = 0.1
)

// State is the lifecycle of one inline chat.
type State int

const (
	Closed State = iota
	InputVisible
	Sending
	DiffVisible
)

func (s State) String() string {
	switch s {
	case Closed:
		return "closed"
	case InputVisible:
		return "input"
	case Sending:
		return "sending"
	case DiffVisible:
		return "diff"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Host is the UI the session drives. Calls are made from the dispatch loop.
type Host interface {
	Snapshot() editor.Snapshot
	ShowInput(ctx context.Context, anchor int) error
	SetInputEnabled(ctx context.Context, enabled bool) error
	ShowDiff(ctx context.Context, d Diff, zoom float64) error
	CloseUI(ctx context.Context) error
	ShowError(ctx context.Context, msg string) error
	Beep(ctx context.Context) error
	ReplaceAll(ctx context.Context, text string) error
}

// Deps are the collaborators of one Session.
type Deps struct {
	Loop    *dispatch.Loop
	Gate    *feature.Coordinator
	Host    Host
	Backend chat.Backend
	// Name labels the unified diff headers.
	Name string
}

// Session is the inline chat of one view. Like inline.Manager its state
// lives on the dispatch loop and exported methods must not be called from it.
type Session struct {
	loop    *dispatch.Loop
	gate    *feature.Coordinator
	host    Host
	backend chat.Backend
	name    string

	base       context.Context
	cancelBase context.CancelFunc

	// loop-owned
	id       string
	state    State
	anchor   int
	original string
	proposal string
	diff     Diff
	zoom     float64
	cancel   context.CancelFunc

	open atomic.Bool
}

// New wires an inline chat session for one view.
func New(d Deps) (*Session, error) {
	if d.Loop == nil || d.Gate == nil || d.Host == nil || d.Backend == nil {
		return nil, ErrNilCollaborator
	}
	name := d.Name
	if name == "" {
		name = "buffer"
	}
	base, cancel := context.WithCancel(context.Background())
	return &Session{
		loop:       d.Loop,
		gate:       d.Gate,
		host:       d.Host,
		backend:    d.Backend,
		name:       name,
		base:       base,
		cancelBase: cancel,
		zoom:       DefaultZoom,
	}, nil
}

// Toggle opens the input box at the caret, or closes whatever is open.
func (s *Session) Toggle(ctx context.Context) error {
	return s.do(ctx, func() error {
		if s.state != Closed {
			s.close(ctx, "toggled")
			return nil
		}
		if !s.gate.TryBeginInlineChat() {
			logging.Logf("chat ", "inline chat refused: suggestion running")
			return s.host.Beep(ctx)
		}
		snap := s.host.Snapshot()
		s.id = uuid.NewString()
		s.anchor = snap.Caret
		s.state = InputVisible
		logging.Logf("chat ", "inline chat %s open at %d", s.id, s.anchor)
		if err := s.host.ShowInput(ctx, s.anchor); err != nil {
			s.close(ctx, "show input failed")
			return err
		}
		return nil
	})
}

// Send submits instruction with the full buffer. The reply arrives
// asynchronously and is shown as a diff, or as an error that closes the chat.
func (s *Session) Send(ctx context.Context, instruction string) error {
	return s.do(ctx, func() error {
		if s.state != InputVisible {
			logging.Logf("chat ", "send ignored in state %s", s.state)
			return nil
		}
		if strings.TrimSpace(instruction) == "" {
			return nil
		}
		if err := s.host.SetInputEnabled(ctx, false); err != nil {
			logging.Logf("chat ", "disable input: %v", err)
		}
		snap := s.host.Snapshot()
		s.original = snap.Text
		s.state = Sending
		rctx, cancel := context.WithCancel(s.base)
		s.cancel = cancel
		id := s.id
		prompt := chat.InlineChatPrompt(instruction, snap.Text)
		logging.Logf("chat ", "inline chat %s sending instruction=%q", id, logging.PreviewForLog(instruction))
		go s.request(rctx, id, prompt)
		return nil
	})
}

// Accept replaces the buffer with the previewed proposal and closes.
func (s *Session) Accept(ctx context.Context) error {
	return s.do(ctx, func() error {
		if s.state != DiffVisible {
			return nil
		}
		err := s.host.ReplaceAll(ctx, s.proposal)
		s.close(ctx, "accepted")
		return err
	})
}

// Cancel closes the chat without touching the buffer.
func (s *Session) Cancel(ctx context.Context) error {
	return s.do(ctx, func() error {
		if s.state != Closed {
			s.close(ctx, "cancelled")
		}
		return nil
	})
}

// ZoomIn, ZoomOut and ResetZoom change the diff viewer zoom and return it.
func (s *Session) ZoomIn(ctx context.Context) (float64, error) { return s.Zoom(ctx, zoomStep) }

func (s *Session) ZoomOut(ctx context.Context) (float64, error) { return s.Zoom(ctx, -zoomStep) }

func (s *Session) ResetZoom(ctx context.Context) (float64, error) {
	var z float64
	err := s.do(ctx, func() error {
		z = s.setZoom(ctx, DefaultZoom)
		return nil
	})
	return z, err
}

// Zoom adds delta to the zoom, clamped to [MinZoom, MaxZoom].
func (s *Session) Zoom(ctx context.Context, delta float64) (float64, error) {
	var z float64
	err := s.do(ctx, func() error {
		z = s.setZoom(ctx, s.zoom+delta)
		return nil
	})
	return z, err
}

// Close ends the session for a closed view.
func (s *Session) Close(ctx context.Context) error {
	err := s.do(ctx, func() error {
		if s.state != Closed {
			s.close(ctx, "view closed")
		}
		return nil
	})
	s.cancelBase()
	return err
}

// State returns the current state.
func (s *Session) State(ctx context.Context) (State, error) {
	var st State
	err := s.do(ctx, func() error {
		st = s.state
		return nil
	})
	return st, err
}

// CurrentDiff returns the previewed diff, if one is visible.
func (s *Session) CurrentDiff(ctx context.Context) (Diff, bool, error) {
	var (
		d  Diff
		ok bool
	)
	err := s.do(ctx, func() error {
		d, ok = s.diff, s.state == DiffVisible
		return nil
	})
	return d, ok, err
}

// IsOpen reports whether any inline chat UI is open.
func (s *Session) IsOpen() bool { return s.open.Load() }

func (s *Session) do(ctx context.Context, fn func() error) error {
	var err error
	if lerr := s.loop.Do(ctx, func() {
		err = fn()
		s.open.Store(s.state != Closed)
	}); lerr != nil {
		return lerr
	}
	return err
}

func (s *Session) request(ctx context.Context, id, prompt string) {
	reply, err := s.callBackend(ctx, prompt)
	_ = s.loop.Post(func() {
		s.complete(ctx, id, reply, err)
		s.open.Store(s.state != Closed)
	})
}

func (s *Session) callBackend(ctx context.Context, prompt string) (reply string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("backend panic: %v", r)
		}
	}()
	return s.backend.Complete(ctx, prompt)
}

// complete runs on the loop with the backend outcome of request id.
func (s *Session) complete(ctx context.Context, id, reply string, err error) {
	if s.state != Sending || s.id != id || ctx.Err() != nil {
		logging.Logf("chat ", "inline chat %s result dropped (stale)", id)
		return
	}
	if err != nil {
		logging.Logf("chat ", "%sinline chat %s failed: %v%s", logging.AnsiRed, id, err, logging.AnsiBase)
		if herr := s.host.ShowError(s.base, "Inline chat failed: "+err.Error()); herr != nil {
			logging.Logf("chat ", "show error: %v", herr)
		}
		s.close(s.base, "backend error")
		return
	}
	s.proposal = suggest.StripCodeFences(reply)
	s.diff = ComputeDiff(s.name, s.original, s.proposal)
	s.state = DiffVisible
	logging.Logf("chat ", "inline chat %s diff +%d -%d", id, s.diff.Added, s.diff.Removed)
	if herr := s.host.ShowDiff(s.base, s.diff, s.zoom); herr != nil {
		logging.Logf("chat ", "show diff: %v", herr)
		s.close(s.base, "show diff failed")
	}
}

func (s *Session) setZoom(ctx context.Context, z float64) float64 {
	z = min(max(z, MinZoom), MaxZoom)
	// keep one decimal so repeated steps land on round values
	z = float64(int(z*10+0.5)) / 10
	s.zoom = z
	if s.state == DiffVisible {
		if err := s.host.ShowDiff(ctx, s.diff, z); err != nil {
			logging.Logf("chat ", "zoom redraw: %v", err)
		}
	}
	return z
}

// close is the single exit: it stops any request, hides the UI and releases
// the feature gate once.
func (s *Session) close(ctx context.Context, reason string) {
	if s.state == Closed {
		return
	}
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	if err := s.host.CloseUI(ctx); err != nil {
		logging.Logf("chat ", "close ui: %v", err)
	}
	s.state = Closed
	s.original, s.proposal, s.diff = "", "", Diff{}
	s.gate.EndInlineChat()
	logging.Logf("chat ", "inline chat %s closed: %s", s.id, reason)
}
