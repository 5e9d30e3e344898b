// Summary: Inline suggestion manager: debounced, single-flight ghost-text requests with
// cancellation, rendering, Tab fallback insertion and feature-gate pairing.
package inline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"ghosttext/internal/chat"
	"ghosttext/internal/dispatch"
	"ghosttext/internal/editor"
	"ghosttext/internal/feature"
	"ghosttext/internal/logging"
	"ghosttext/internal/render"
	"ghosttext/internal/suggest"
	"ghosttext/internal/textctx"
)

// ErrNilCollaborator is returned by NewManager when a dependency is missing.
var ErrNilCollaborator = errors.New("inline: nil collaborator")

// DefaultDebounce is used when Config.Debounce is zero.
const DefaultDebounce = 150 * time.Millisecond

// Deps are the collaborators of one Manager.
type Deps struct {
	Loop     *dispatch.Loop
	Gate     *feature.Coordinator
	View     editor.View
	Backend  chat.Backend
	Renderer *render.Renderer
}

// Config tunes request pacing and context size.
type Config struct {
	// Debounce delays a trigger until input pauses; negative means no delay.
	Debounce time.Duration
	// MinInterval throttles how often a request may start; zero disables it.
	MinInterval time.Duration
	Extractor   textctx.Extractor
}

// Manager runs inline suggestions for one editor view. Session state lives
// on the dispatch loop; the exported methods marshal onto it and may be
// called from any goroutine except the loop itself.
type Manager struct {
	loop      *dispatch.Loop
	gate      *feature.Coordinator
	view      editor.View
	backend   chat.Backend
	renderer  *render.Renderer
	debouncer *dispatch.Debouncer
	limiter   *rate.Limiter
	extractor textctx.Extractor
	debounce  time.Duration

	base       context.Context
	cancelBase context.CancelFunc

	// loop-owned
	state       State
	session     *Session
	caretBefore int
	closed      bool

	// mirrors for cross-goroutine queries
	busy    atomic.Bool
	active  atomic.Bool
	pending atomic.Bool
	done    atomic.Bool
}

// NewManager wires a manager. Every collaborator is required.
func NewManager(d Deps, cfg Config) (*Manager, error) {
	if d.Loop == nil || d.Gate == nil || d.View == nil || d.Backend == nil || d.Renderer == nil {
		return nil, ErrNilCollaborator
	}
	debounce := cfg.Debounce
	if debounce == 0 {
		debounce = DefaultDebounce
	}
	if debounce < 0 {
		debounce = 0
	}
	limit := rate.Inf
	if cfg.MinInterval > 0 {
		limit = rate.Every(cfg.MinInterval)
	}
	ext := cfg.Extractor
	if ext.MaxLines <= 0 || ext.MaxChars <= 0 {
		ext = textctx.Default()
	}
	base, cancel := context.WithCancel(context.Background())
	return &Manager{
		loop:        d.Loop,
		gate:        d.Gate,
		view:        d.View,
		backend:     d.Backend,
		renderer:    d.Renderer,
		debouncer:   dispatch.NewDebouncer(d.Loop),
		limiter:     rate.NewLimiter(limit, 1),
		extractor:   ext,
		debounce:    debounce,
		base:        base,
		cancelBase:  cancel,
		caretBefore: -1,
	}, nil
}

// Trigger asks for a suggestion. The request goes through the debouncer so
// only the last trigger of a burst runs. A trigger while busy is dropped.
func (m *Manager) Trigger(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if m.done.Load() {
		return nil
	}
	if m.busy.Load() {
		logging.Logf("inline ", "trigger rejected: busy")
		return nil
	}
	m.debouncer.Schedule(m.debounce, m.start)
	return nil
}

// RememberCaret records the caret right before Tab is handed to the editor.
func (m *Manager) RememberCaret(ctx context.Context) error {
	return m.do(ctx, func() {
		m.caretBefore = m.view.Snapshot().Caret
	})
}

// FallbackInsertIfNeeded runs after Tab reached the editor. If the host
// still shows the proposal it consumed Tab and accepted it; otherwise the
// full suggestion is inserted at the remembered caret.
func (m *Manager) FallbackInsertIfNeeded(ctx context.Context) error {
	var err error
	derr := m.do(ctx, func() {
		s := m.session
		if s == nil || m.state != Displaying {
			return
		}
		if m.renderer.HasActiveSession() {
			m.renderer.Clear()
			m.finish(s, "accepted by host")
			return
		}
		at := m.caretBefore
		if at < 0 {
			at = s.Origin
		}
		err = m.view.ApplyEdit(ctx, editor.Edit{Offset: at, Text: s.Full})
		if err != nil {
			m.finish(s, "fallback insert failed: "+err.Error())
			return
		}
		m.finish(s, "fallback insert")
	})
	if derr != nil {
		return derr
	}
	return err
}

// Accept records that the host accepted the displayed proposal.
func (m *Manager) Accept(ctx context.Context) error {
	return m.do(ctx, func() {
		if s := m.session; s != nil && m.state == Displaying {
			m.renderer.Clear()
			m.finish(s, "accepted")
		}
	})
}

// Dismiss cancels the current session, hiding any displayed proposal.
func (m *Manager) Dismiss(ctx context.Context, reason string) error {
	return m.do(ctx, func() { m.dismiss(reason) })
}

// CaretMoved cancels the session when the caret leaves the origin.
func (m *Manager) CaretMoved(ctx context.Context, offset int) error {
	return m.do(ctx, func() {
		if s := m.session; s != nil && offset != s.Origin {
			m.dismiss("caret moved")
		}
	})
}

// TextChanged supersedes the current session after a buffer edit.
func (m *Manager) TextChanged(ctx context.Context) error {
	return m.do(ctx, func() {
		if m.session != nil {
			m.dismiss("superseded")
		}
	})
}

// Close ends the manager for a closed view.
func (m *Manager) Close(ctx context.Context) error {
	m.done.Store(true)
	m.debouncer.Stop()
	err := m.do(ctx, func() {
		m.dismiss("view closed")
		m.closed = true
	})
	m.cancelBase()
	return err
}

// State returns the current lifecycle state.
func (m *Manager) State(ctx context.Context) (State, error) {
	var st State
	err := m.do(ctx, func() { st = m.state })
	return st, err
}

// Session returns a copy of the live session, if any.
func (m *Manager) Session(ctx context.Context) (Session, bool, error) {
	var (
		out Session
		ok  bool
	)
	err := m.do(ctx, func() {
		if m.session != nil {
			out, ok = *m.session, true
		}
	})
	return out, ok, err
}

// IsBusy reports whether a session exists, from trigger to terminal event.
func (m *Manager) IsBusy() bool { return m.busy.Load() }

// HasActiveSession reports whether the host is displaying a proposal.
func (m *Manager) HasActiveSession() bool { return m.active.Load() }

// HasPendingSuggestion reports whether a finished suggestion awaits Tab,
// whether or not the host displayed it.
func (m *Manager) HasPendingSuggestion() bool { return m.pending.Load() }

func (m *Manager) do(ctx context.Context, fn func()) error {
	return m.loop.Do(ctx, func() {
		fn()
		m.mirror()
	})
}

func (m *Manager) mirror() {
	m.busy.Store(m.session != nil)
	m.active.Store(m.renderer.HasActiveSession())
	m.pending.Store(m.session != nil && m.state == Displaying)
}

// start runs on the loop when the debounce delay elapsed.
func (m *Manager) start(_ context.Context) {
	defer m.mirror()
	if m.closed {
		return
	}
	if m.session != nil {
		logging.Logf("inline ", "trigger rejected: busy")
		return
	}
	if !m.limiter.Allow() {
		logging.Logf("inline ", "trigger throttled")
		return
	}
	if !m.gate.TryBeginSuggestion() {
		logging.Logf("inline ", "trigger rejected: inline chat active")
		return
	}
	snap := m.view.Snapshot()
	sctx, cancel := context.WithCancel(m.base)
	s := &Session{
		ID:      uuid.NewString(),
		Origin:  snap.Caret,
		Version: snap.Version,
		Typed:   snap.LinePrefix(),
		ctx:     sctx,
		cancel:  cancel,
	}
	m.session = s
	m.state = Requesting
	tc := m.extractor.Extract(snap.Text, snap.Caret, snap.Version)
	if tc.Empty() {
		m.finish(s, "empty context")
		return
	}
	logging.Logf("inline ", "session %s requesting caret=%d version=%d context=%d", s.ID, s.Origin, s.Version, len(tc.Text))
	go m.request(s, tc)
}

// request calls the backend off the loop and posts the outcome back.
func (m *Manager) request(s *Session, tc textctx.Context) {
	raw, err := m.callBackend(s.ctx, tc)
	if perr := m.loop.Post(func() {
		m.complete(s, tc, raw, err)
		m.mirror()
	}); perr != nil {
		s.cancel()
	}
}

func (m *Manager) callBackend(ctx context.Context, tc textctx.Context) (raw string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("backend panic: %v", r)
		}
	}()
	return m.backend.Complete(ctx, chat.SuggestionPrompt(tc.Text))
}

// complete runs on the loop with the backend outcome for s.
func (m *Manager) complete(s *Session, tc textctx.Context, raw string, err error) {
	if m.session != s || s.cancelled() {
		logging.Logf("inline ", "session %s result dropped (stale)", s.ID)
		return
	}
	if err != nil {
		logging.Logf("inline ", "%ssession %s backend error: %v%s", logging.AnsiRed, s.ID, err, logging.AnsiBase)
		m.finish(s, "backend error")
		return
	}
	s.Raw = raw
	s.Display = suggest.StripTypedPrefix(s.Typed, suggest.Trim(raw, tc.Text, true))
	s.Full = suggest.StripTypedPrefix(s.Typed, suggest.Trim(raw, tc.Text, false))
	if strings.TrimSpace(s.Display) == "" || strings.TrimSpace(s.Full) == "" {
		m.finish(s, "empty suggestion")
		return
	}
	h, err := m.renderer.Show(s.ctx, s.Display, s.Origin)
	if err != nil {
		logging.Logf("inline ", "%ssession %s display failed: %v%s", logging.AnsiRed, s.ID, err, logging.AnsiBase)
		m.finish(s, "display failed")
		return
	}
	s.Handle = h
	m.state = Displaying
	if h == nil {
		logging.Logf("inline ", "session %s displaying (host declined, Tab will insert)", s.ID)
		return
	}
	logging.Logf("inline ", "session %s displaying size=%d", s.ID, len(s.Display))
}

// dismiss hides and ends the current session, if any.
func (m *Manager) dismiss(reason string) {
	s := m.session
	if s == nil {
		return
	}
	if m.renderer.HasActiveSession() {
		if err := m.renderer.Dismiss(m.base); err != nil {
			logging.Logf("inline ", "dismiss failed: %v", err)
		}
	}
	m.finish(s, reason)
}

// finish is the single terminal transition: it cancels s, returns to Idle
// and releases the feature gate exactly once per session.
func (m *Manager) finish(s *Session, reason string) {
	if m.session != s {
		return
	}
	s.cancel()
	m.session = nil
	m.state = Idle
	m.caretBefore = -1
	m.gate.EndSuggestion()
	logging.Logf("inline ", "session %s ended: %s", s.ID, reason)
}
