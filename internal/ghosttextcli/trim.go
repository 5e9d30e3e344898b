// Summary: "ghosttext trim": runs the suggestion post-processor over a raw reply on stdin.
package ghosttextcli

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"ghosttext/internal/suggest"
)

var errEmptySuggestion = errors.New("nothing left to suggest after trimming")

func newTrimCmd(o *Options) *cobra.Command {
	var (
		contextFile string
		display     bool
		typed       string
	)
	cmd := &cobra.Command{
		Use:   "trim",
		Short: "Turn a raw model reply (stdin) into a ghost-text suggestion",
		Long: `trim applies the same post-processing as inline suggestions: code fences are
stripped, lines repeating the end of the context are dropped, braces are
rebalanced and the reply is cut to one statement or one block. With
--display the result is further limited to what the ghost text shows.`,
		Args: cobra.NoArgs,
		RunE: func(*cobra.Command, []string) error {
			raw, err := io.ReadAll(o.Stdin)
			if err != nil {
				return fmt.Errorf("read reply: %w", err)
			}
			var context string
			if contextFile != "" {
				b, err := os.ReadFile(contextFile)
				if err != nil {
					return fmt.Errorf("read context: %w", err)
				}
				context = string(b)
			}
			out := suggest.StripTypedPrefix(typed, suggest.Trim(string(raw), context, display))
			if out == "" {
				return errEmptySuggestion
			}
			fmt.Fprintln(o.Stdout, out)
			return nil
		},
	}
	cmd.Flags().StringVar(&contextFile, "context", "", "File holding the text before the caret")
	cmd.Flags().BoolVar(&display, "display", false, "Limit the result to the ghost-text display size")
	cmd.Flags().StringVar(&typed, "typed", "", "Text already typed on the caret line")
	return cmd
}
