package inlinechat

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"ghosttext/internal/chat"
	"ghosttext/internal/dispatch"
	"ghosttext/internal/editor"
	"ghosttext/internal/feature"
)

type recordingHost struct {
	mu       sync.Mutex
	buf      *editor.Buffer
	events   []string
	diffs    []Diff
	zooms    []float64
	errors   []string
	replaced string
}

func (h *recordingHost) record(ev string) {
	h.mu.Lock()
	h.events = append(h.events, ev)
	h.mu.Unlock()
}

func (h *recordingHost) Snapshot() editor.Snapshot { return h.buf.Snapshot() }
func (h *recordingHost) ShowInput(context.Context, int) error {
	h.record("input")
	return nil
}
func (h *recordingHost) SetInputEnabled(_ context.Context, on bool) error {
	if on {
		h.record("enable")
	} else {
		h.record("disable")
	}
	return nil
}
func (h *recordingHost) ShowDiff(_ context.Context, d Diff, zoom float64) error {
	h.mu.Lock()
	h.diffs = append(h.diffs, d)
	h.zooms = append(h.zooms, zoom)
	h.mu.Unlock()
	h.record("diff")
	return nil
}
func (h *recordingHost) CloseUI(context.Context) error {
	h.record("close")
	return nil
}
func (h *recordingHost) ShowError(_ context.Context, msg string) error {
	h.mu.Lock()
	h.errors = append(h.errors, msg)
	h.mu.Unlock()
	h.record("error")
	return nil
}
func (h *recordingHost) Beep(context.Context) error {
	h.record("beep")
	return nil
}
func (h *recordingHost) ReplaceAll(_ context.Context, text string) error {
	h.buf.SetText(text)
	h.mu.Lock()
	h.replaced = text
	h.mu.Unlock()
	h.record("replace")
	return nil
}

func (h *recordingHost) Events() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.events...)
}

type chatHarness struct {
	s    *Session
	loop *dispatch.Loop
	gate *feature.Coordinator
	host *recordingHost
}

func newChatHarness(t *testing.T, backend chat.Backend) *chatHarness {
	t.Helper()
	loop := dispatch.NewLoop(0)
	ctx, cancel := context.WithCancel(context.Background())
	go func() { _ = loop.Run(ctx) }()
	t.Cleanup(cancel)
	h := &chatHarness{loop: loop, gate: feature.NewCoordinator(), host: &recordingHost{buf: editor.NewBuffer("a\nb\n")}}
	s, err := New(Deps{Loop: loop, Gate: h.gate, Host: h.host, Backend: backend, Name: "main.go"})
	require.NoError(t, err)
	h.s = s
	return h
}

func (h *chatHarness) waitState(t *testing.T, want State) {
	t.Helper()
	require.Eventually(t, func() bool {
		st, err := h.s.State(context.Background())
		return err == nil && st == want
	}, 2*time.Second, 2*time.Millisecond)
}

func (h *chatHarness) gateFlags(t *testing.T) (chatActive, suggestion bool) {
	t.Helper()
	require.NoError(t, h.loop.Do(context.Background(), func() {
		chatActive, suggestion = h.gate.InlineChatActive(), h.gate.SuggestionRunning()
	}))
	return chatActive, suggestion
}

func reply(text string, err error) chat.Backend {
	return chat.BackendFunc(func(context.Context, string) (string, error) { return text, err })
}

func TestSession_ToggleOpensAndCloses(t *testing.T) {
	h := newChatHarness(t, reply("", nil))
	ctx := context.Background()
	require.NoError(t, h.s.Toggle(ctx))
	require.True(t, h.s.IsOpen())
	active, _ := h.gateFlags(t)
	require.True(t, active)

	require.NoError(t, h.s.Toggle(ctx))
	require.False(t, h.s.IsOpen())
	active, _ = h.gateFlags(t)
	require.False(t, active)
	require.Equal(t, []string{"input", "close"}, h.host.Events())
}

func TestSession_ToggleBeepsWhileSuggestionRuns(t *testing.T) {
	h := newChatHarness(t, reply("", nil))
	require.NoError(t, h.loop.Do(context.Background(), func() { h.gate.TryBeginSuggestion() }))
	require.NoError(t, h.s.Toggle(context.Background()))
	require.False(t, h.s.IsOpen())
	require.Equal(t, []string{"beep"}, h.host.Events())
	active, running := h.gateFlags(t)
	require.False(t, active)
	require.True(t, running)
}

func TestSession_SendShowsDiffAndAcceptReplaces(t *testing.T) {
	h := newChatHarness(t, reply("```go\na\nB\n```", nil))
	ctx := context.Background()
	require.NoError(t, h.s.Toggle(ctx))
	require.NoError(t, h.s.Send(ctx, "capitalise b"))
	h.waitState(t, DiffVisible)

	d, ok, err := h.s.CurrentDiff(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, 1, d.Added)
	require.Equal(t, 1, d.Removed)

	require.NoError(t, h.s.Accept(ctx))
	require.Equal(t, "a\nB", h.host.buf.Text())
	require.Equal(t, []string{"input", "disable", "diff", "replace", "close"}, h.host.Events())
	active, _ := h.gateFlags(t)
	require.False(t, active)
}

func TestSession_BackendErrorIsShownAndCloses(t *testing.T) {
	h := newChatHarness(t, reply("", errors.New("rate limited")))
	ctx := context.Background()
	require.NoError(t, h.s.Toggle(ctx))
	require.NoError(t, h.s.Send(ctx, "do it"))
	h.waitState(t, Closed)
	require.Equal(t, []string{"input", "disable", "error", "close"}, h.host.Events())
	h.host.mu.Lock()
	require.Contains(t, h.host.errors[0], "rate limited")
	h.host.mu.Unlock()
	active, _ := h.gateFlags(t)
	require.False(t, active)
}

func TestSession_CancelDuringSendDropsReply(t *testing.T) {
	release := make(chan struct{})
	backend := chat.BackendFunc(func(ctx context.Context, _ string) (string, error) {
		<-release
		return "changed", nil
	})
	h := newChatHarness(t, backend)
	ctx := context.Background()
	require.NoError(t, h.s.Toggle(ctx))
	require.NoError(t, h.s.Send(ctx, "x"))
	require.NoError(t, h.s.Cancel(ctx))
	close(release)
	time.Sleep(20 * time.Millisecond)
	require.NoError(t, h.loop.Do(ctx, func() {}))
	st, err := h.s.State(ctx)
	require.NoError(t, err)
	require.Equal(t, Closed, st)
	require.Equal(t, "a\nb\n", h.host.buf.Text())
	require.Equal(t, []string{"input", "disable", "close"}, h.host.Events())
}

func TestSession_SendOutsideInputIsIgnored(t *testing.T) {
	calls := 0
	h := newChatHarness(t, chat.BackendFunc(func(context.Context, string) (string, error) {
		calls++
		return "", nil
	}))
	require.NoError(t, h.s.Send(context.Background(), "x"))
	require.NoError(t, h.s.Toggle(context.Background()))
	require.NoError(t, h.s.Send(context.Background(), "   "))
	require.NoError(t, h.loop.Do(context.Background(), func() {}))
	require.Zero(t, calls)
}

func TestSession_ZoomIsClamped(t *testing.T) {
	h := newChatHarness(t, reply("a\nc\n", nil))
	ctx := context.Background()
	z, err := h.s.ZoomIn(ctx)
	require.NoError(t, err)
	require.InDelta(t, 1.1, z, 1e-9)
	for i := 0; i < 40; i++ {
		z, _ = h.s.ZoomIn(ctx)
	}
	require.InDelta(t, MaxZoom, z, 1e-9)
	for i := 0; i < 40; i++ {
		z, _ = h.s.ZoomOut(ctx)
	}
	require.InDelta(t, MinZoom, z, 1e-9)
	z, _ = h.s.ResetZoom(ctx)
	require.InDelta(t, DefaultZoom, z, 1e-9)

	require.NoError(t, h.s.Toggle(ctx))
	require.NoError(t, h.s.Send(ctx, "x"))
	h.waitState(t, DiffVisible)
	_, err = h.s.Zoom(ctx, 0.5)
	require.NoError(t, err)
	h.host.mu.Lock()
	require.Equal(t, []float64{1.0, 1.5}, h.host.zooms)
	h.host.mu.Unlock()
}

func TestNew_NilCollaborator(t *testing.T) {
	_, err := New(Deps{})
	require.ErrorIs(t, err, ErrNilCollaborator)
}
