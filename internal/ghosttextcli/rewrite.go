// Summary: "ghosttext rewrite": an inline chat session against a file. The model's rewrite is
// shown as a coloured diff and written back once confirmed.
package ghosttextcli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"ghosttext/internal/chat"
	"ghosttext/internal/dispatch"
	"ghosttext/internal/editor"
	"ghosttext/internal/feature"
	"ghosttext/internal/inlinechat"
	"ghosttext/internal/logging"
)

var errNoInstruction = errors.New("an instruction is required (--instruction)")

type rewriteFlags struct {
	instruction string
	yes         bool
}

func newRewriteCmd(o *Options) *cobra.Command {
	var f rewriteFlags
	cmd := &cobra.Command{
		Use:   "rewrite FILE",
		Short: "Rewrite FILE with an instruction, preview the diff and apply it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if strings.TrimSpace(f.instruction) == "" {
				return errNoInstruction
			}
			backend, _, err := o.backend(chat.InlineChatSystemPrompt)
			if err != nil {
				return err
			}
			return runRewrite(cmd.Context(), o, backend, args[0], f)
		},
	}
	cmd.Flags().StringVarP(&f.instruction, "instruction", "i", "", "What to change")
	cmd.Flags().BoolVarP(&f.yes, "yes", "y", false, "Apply without asking")
	return cmd
}

func runRewrite(ctx context.Context, o *Options, backend chat.Backend, path string, f rewriteFlags) error {
	if strings.TrimSpace(f.instruction) == "" {
		return errNoInstruction
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	buf := editor.NewBuffer(string(data))
	buf.SetCaret(0)

	loop := dispatch.NewLoop(0)
	go func() { _ = loop.Run(ctx) }()
	defer loop.Stop()

	host := newTerminalChatHost(buf, o.Stdout, o.Stderr)
	s, err := inlinechat.New(inlinechat.Deps{
		Loop:    loop,
		Gate:    feature.NewCoordinator(),
		Host:    host,
		Backend: backend,
		Name:    path,
	})
	if err != nil {
		return err
	}
	defer func() { _ = s.Close(context.Background()) }()

	if err := s.Toggle(ctx); err != nil {
		return err
	}
	if err := s.Send(ctx, f.instruction); err != nil {
		return err
	}

	var ev chatEvent
	select {
	case ev = <-host.events:
	case <-ctx.Done():
		return ctx.Err()
	}
	switch {
	case ev.err != "":
		return errors.New(ev.err)
	case ev.diff == nil:
		return errors.New("inline chat closed before a reply arrived")
	case ev.diff.Empty():
		fmt.Fprintln(o.Stderr, logging.AnsiBase+"no changes"+logging.AnsiReset)
		return s.Cancel(ctx)
	}
	fmt.Fprintf(o.Stderr, logging.AnsiBase+"+%d -%d lines"+logging.AnsiReset+"\n", ev.diff.Added, ev.diff.Removed)

	if !f.yes && !confirm(o, fmt.Sprintf("Apply changes to %s? [y/N] ", path)) {
		fmt.Fprintln(o.Stderr, logging.AnsiBase+"discarded"+logging.AnsiReset)
		return s.Cancel(ctx)
	}
	if err := s.Accept(ctx); err != nil {
		return err
	}
	if !host.wasReplaced() {
		return errors.New("rewrite was not applied")
	}
	if err := writeKeepingMode(path, buf.Text()); err != nil {
		return err
	}
	fmt.Fprintf(o.Stderr, logging.AnsiBase+"wrote %s"+logging.AnsiReset+"\n", path)
	return nil
}

// confirm asks on stderr and reads one answer line from stdin.
func confirm(o *Options, question string) bool {
	fmt.Fprint(o.Stderr, question)
	line, err := bufio.NewReader(o.Stdin).ReadString('\n')
	if err != nil && line == "" {
		return false
	}
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return true
	}
	return false
}
