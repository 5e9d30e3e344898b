// Summary: Terminal hosts: a ghost-text renderer that prints proposals and an inline chat
// host over an in-memory buffer that prints diffs and reports session events.
package ghosttextcli

import (
	"context"
	"fmt"
	"io"
	"sync"

	"ghosttext/internal/editor"
	"ghosttext/internal/inlinechat"
	"ghosttext/internal/logging"
	"ghosttext/internal/render"
)

// printHost shows ghost text by printing it. A terminal cannot keep the
// proposal on screen, so every display is reported as declined and Tab
// falls back to inserting the full suggestion.
type printHost struct {
	out io.Writer
}

func newPrintHost(out io.Writer) *printHost { return &printHost{out: out} }

func (h *printHost) TryDisplay(_ context.Context, p render.Proposal) (*render.SessionHandle, error) {
	fmt.Fprintln(h.out, ghostStyle.Render(p.Text))
	return nil, nil
}

func (h *printHost) Dismiss(context.Context, *render.SessionHandle) error { return nil }

// chatEvent is what the terminal chat host reports back to the command.
type chatEvent struct {
	diff   *inlinechat.Diff
	err    string
	closed bool
}

// terminalChatHost drives an inline chat over a buffer on a terminal.
type terminalChatHost struct {
	buf    *editor.Buffer
	out    io.Writer
	errw   io.Writer
	events chan chatEvent

	mu       sync.Mutex
	replaced bool
}

func newTerminalChatHost(buf *editor.Buffer, out, errw io.Writer) *terminalChatHost {
	return &terminalChatHost{buf: buf, out: out, errw: errw, events: make(chan chatEvent, 4)}
}

var _ inlinechat.Host = (*terminalChatHost)(nil)

func (h *terminalChatHost) Snapshot() editor.Snapshot { return h.buf.Snapshot() }

func (h *terminalChatHost) ShowInput(context.Context, int) error { return nil }

func (h *terminalChatHost) SetInputEnabled(_ context.Context, enabled bool) error {
	if !enabled {
		fmt.Fprintln(h.errw, logging.AnsiBase+"waiting for the model…"+logging.AnsiReset)
	}
	return nil
}

func (h *terminalChatHost) ShowDiff(_ context.Context, d inlinechat.Diff, _ float64) error {
	if !d.Empty() {
		fmt.Fprint(h.out, renderDiff(d))
	}
	h.emit(chatEvent{diff: &d})
	return nil
}

func (h *terminalChatHost) CloseUI(context.Context) error {
	h.emit(chatEvent{closed: true})
	return nil
}

func (h *terminalChatHost) ShowError(_ context.Context, msg string) error {
	fmt.Fprintln(h.errw, logging.AnsiRed+msg+logging.AnsiReset)
	h.emit(chatEvent{err: msg})
	return nil
}

func (h *terminalChatHost) Beep(context.Context) error {
	fmt.Fprint(h.errw, "\a")
	return nil
}

func (h *terminalChatHost) ReplaceAll(_ context.Context, text string) error {
	h.buf.SetText(text)
	h.mu.Lock()
	h.replaced = true
	h.mu.Unlock()
	return nil
}

func (h *terminalChatHost) wasReplaced() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.replaced
}

// emit never blocks the dispatch loop.
func (h *terminalChatHost) emit(ev chatEvent) {
	select {
	case h.events <- ev:
	default:
	}
}
