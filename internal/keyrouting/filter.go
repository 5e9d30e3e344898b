// Summary: Command routing in front of the editor's own handlers: the suggestion trigger
// is answered here, Tab is wrapped with caret bookkeeping and fallback insertion.
package keyrouting

import (
	"context"
	"errors"

	"ghosttext/internal/logging"
)

// Command names an editor action routed through the filter.
type Command string

const (
	// Trigger requests an inline suggestion.
	Trigger Command = "ghosttext.suggest"
	// Tab is the editor's indent/accept key.
	Tab Command = "tab"
)

var (
	// ErrNoNext is returned when the filter has nothing to forward to.
	ErrNoNext = errors.New("keyrouting: nil next handler")
	// ErrNoSuggester is returned when the filter has no suggestion manager.
	ErrNoSuggester = errors.New("keyrouting: nil suggestion manager")
)

// Handler executes editor commands.
type Handler interface {
	Exec(ctx context.Context, cmd Command) error
}

// HandlerFunc adapts a func to Handler.
type HandlerFunc func(ctx context.Context, cmd Command) error

func (f HandlerFunc) Exec(ctx context.Context, cmd Command) error { return f(ctx, cmd) }

// Suggester is the part of inline.Manager the filter drives.
type Suggester interface {
	Trigger(ctx context.Context) error
	IsBusy() bool
	HasPendingSuggestion() bool
	RememberCaret(ctx context.Context) error
	FallbackInsertIfNeeded(ctx context.Context) error
}

// Status answers whether a command is handled here and may run now.
type Status struct {
	Supported bool
	Enabled   bool
}

// Filter sits first in the command chain of one view.
type Filter struct {
	suggester Suggester
	next      Handler
}

// NewFilter returns a filter that forwards unhandled commands to next.
func NewFilter(s Suggester, next Handler) (*Filter, error) {
	if s == nil {
		return nil, ErrNoSuggester
	}
	if next == nil {
		return nil, ErrNoNext
	}
	return &Filter{suggester: s, next: next}, nil
}

// QueryStatus reports the trigger as enabled only while no session is busy.
// Other commands belong to the next handler.
func (f *Filter) QueryStatus(cmd Command) Status {
	if cmd == Trigger {
		return Status{Supported: true, Enabled: !f.suggester.IsBusy()}
	}
	return Status{}
}

// Exec routes cmd. Tab always reaches the next handler; when a suggestion is
// pending the caret is recorded first and the fallback insert runs after.
func (f *Filter) Exec(ctx context.Context, cmd Command) error {
	switch cmd {
	case Trigger:
		if !f.QueryStatus(cmd).Enabled {
			logging.Logf("keys ", "trigger ignored: busy")
			return nil
		}
		return f.suggester.Trigger(ctx)
	case Tab:
		if !f.suggester.HasPendingSuggestion() {
			return f.next.Exec(ctx, cmd)
		}
		if err := f.suggester.RememberCaret(ctx); err != nil {
			return err
		}
		if err := f.next.Exec(ctx, cmd); err != nil {
			return err
		}
		return f.suggester.FallbackInsertIfNeeded(ctx)
	default:
		return f.next.Exec(ctx, cmd)
	}
}
