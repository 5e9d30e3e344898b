// Summary: "ghosttext complete": runs one inline suggestion against a file at a caret, prints
// the ghost text and optionally accepts it with Tab, writing the file back.
package ghosttextcli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync/atomic"
	"time"

	"github.com/spf13/cobra"

	"ghosttext/internal/chat"
	"ghosttext/internal/dispatch"
	"ghosttext/internal/editor"
	"ghosttext/internal/feature"
	"ghosttext/internal/inline"
	"ghosttext/internal/keyrouting"
	"ghosttext/internal/logging"
	"ghosttext/internal/render"
)

var (
	errNoContext    = errors.New("nothing before the caret to complete")
	errNoSuggestion = errors.New("the model returned no usable suggestion")
)

type completeFlags struct {
	line, col int
	write     bool
	timeout   time.Duration
}

func newCompleteCmd(o *Options) *cobra.Command {
	var f completeFlags
	cmd := &cobra.Command{
		Use:   "complete FILE",
		Short: "Suggest a continuation at a caret position in FILE",
		Long: `complete extracts the text before the caret, asks the model for a
continuation and prints the ghost text. With --write the suggestion is
accepted as if Tab was pressed and the file is saved.

Lines and columns are 1-based; columns count bytes. Without --line the
caret sits at the end of the file.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			backend, _, err := o.backend(chat.SuggestionSystemPrompt)
			if err != nil {
				return err
			}
			return runComplete(cmd.Context(), o, backend, args[0], f)
		},
	}
	cmd.Flags().IntVar(&f.line, "line", 0, "Caret line (1-based, 0 means end of file)")
	cmd.Flags().IntVar(&f.col, "col", 0, "Caret column in bytes (1-based, 0 means end of line)")
	cmd.Flags().BoolVar(&f.write, "write", false, "Accept the suggestion and write the file")
	cmd.Flags().DurationVar(&f.timeout, "timeout", time.Minute, "Give up after this long")
	return cmd
}

// trackedBackend records that the backend call returned.
type trackedBackend struct {
	chat.Backend
	done atomic.Bool
}

func (b *trackedBackend) Complete(ctx context.Context, prompt string) (string, error) {
	defer b.done.Store(true)
	return b.Backend.Complete(ctx, prompt)
}

func runComplete(ctx context.Context, o *Options, backend chat.Backend, path string, f completeFlags) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	text := string(data)
	buf := editor.NewBuffer(text)
	buf.SetCaret(caretOffset(text, f.line, f.col))
	cfg := o.config()
	if cfg.Extractor().Extract(text, buf.Snapshot().Caret, 0).Empty() {
		return errNoContext
	}
	if f.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.timeout)
		defer cancel()
	}

	loop := dispatch.NewLoop(0)
	go func() { _ = loop.Run(ctx) }()
	defer loop.Stop()

	r, err := render.New(newPrintHost(o.Stdout))
	if err != nil {
		return err
	}
	tracked := &trackedBackend{Backend: backend}
	m, err := inline.NewManager(inline.Deps{
		Loop:     loop,
		Gate:     feature.NewCoordinator(),
		View:     buf,
		Backend:  tracked,
		Renderer: r,
	}, inline.Config{Debounce: -1, Extractor: cfg.Extractor()})
	if err != nil {
		return err
	}
	defer func() { _ = m.Close(context.Background()) }()
	filter, err := keyrouting.NewFilter(m, keyrouting.HandlerFunc(func(context.Context, keyrouting.Command) error { return nil }))
	if err != nil {
		return err
	}

	if err := filter.Exec(ctx, keyrouting.Trigger); err != nil {
		return err
	}
	if err := waitForSuggestion(ctx, m, tracked); err != nil {
		return err
	}
	if !f.write {
		return nil
	}
	if err := filter.Exec(ctx, keyrouting.Tab); err != nil {
		return err
	}
	out := buf.Text()
	if out == text {
		return errNoSuggestion
	}
	if err := writeKeepingMode(path, out); err != nil {
		return err
	}
	fmt.Fprintf(o.Stderr, logging.AnsiBase+"inserted %d bytes into %s"+logging.AnsiReset+"\n", len(out)-len(text), path)
	return nil
}

// waitForSuggestion returns once a suggestion is pending or the session
// ended without one.
func waitForSuggestion(ctx context.Context, m *inline.Manager, b *trackedBackend) error {
	tick := time.NewTicker(10 * time.Millisecond)
	defer tick.Stop()
	for {
		if m.HasPendingSuggestion() {
			return nil
		}
		if b.done.Load() && !m.IsBusy() {
			return errNoSuggestion
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-tick.C:
		}
	}
}

// caretOffset maps a 1-based line and byte column to an offset, clamped to
// the text. Line 0 is the end of the text, column 0 the end of the line.
func caretOffset(text string, line, col int) int {
	if line <= 0 {
		return len(text)
	}
	lines := strings.SplitAfter(text, "\n")
	off := 0
	for i := 0; i < line-1 && i < len(lines); i++ {
		off += len(lines[i])
	}
	if line > len(lines) {
		return len(text)
	}
	cur := strings.TrimSuffix(lines[line-1], "\n")
	if col <= 0 || col-1 > len(cur) {
		return off + len(cur)
	}
	return off + col - 1
}

func writeKeepingMode(path, text string) error {
	mode := os.FileMode(0o644)
	if fi, err := os.Stat(path); err == nil {
		mode = fi.Mode().Perm()
	}
	return os.WriteFile(path, []byte(text), mode)
}
