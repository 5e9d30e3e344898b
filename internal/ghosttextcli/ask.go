// Summary: "ghosttext ask": reads input from args and piped stdin, sends it to the configured
// model, streams or collects the reply and prints a short summary to stderr.
package ghosttextcli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"ghosttext/internal/llm"
	"ghosttext/internal/logging"
)

var errNoInput = errors.New("no input provided; pass text as an argument or via stdin")

func newAskCmd(o *Options) *cobra.Command {
	return &cobra.Command{
		Use:   "ask [text...]",
		Short: "Ask the configured model; piped stdin is appended to the text",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := o.client(o.config())
			if err != nil {
				return err
			}
			return RunAsk(cmd.Context(), args, o.Stdin, o.Stdout, o.Stderr, client)
		},
	}
}

// RunAsk executes the ask flow using an already-constructed client.
// Useful for testing and embedding.
func RunAsk(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer, client llm.Client) error {
	input, err := readInput(stdin, args)
	if err != nil {
		return err
	}
	printProviderInfo(stderr, client)
	msgs := buildMessages(input)
	if err := runChat(ctx, client, msgs, input, stdout, stderr); err != nil {
		return fmt.Errorf("ask: %w", err)
	}
	return nil
}

// readInput reads from stdin and args, then combines them per CLI rules.
func readInput(stdin io.Reader, args []string) (string, error) {
	var stdinData string
	if piped(stdin) {
		b, _ := io.ReadAll(bufio.NewReader(stdin))
		stdinData = strings.TrimSpace(string(b))
	}
	argData := strings.TrimSpace(strings.Join(args, " "))
	switch {
	case stdinData != "" && argData != "":
		return fmt.Sprintf("%s:\n\n%s", argData, stdinData), nil
	case stdinData != "":
		return stdinData, nil
	case argData != "":
		return argData, nil
	default:
		return "", errNoInput
	}
}

// piped reports whether stdin carries data rather than a terminal.
func piped(stdin io.Reader) bool {
	if stdin == nil {
		return false
	}
	f, ok := stdin.(*os.File)
	if !ok {
		return true
	}
	fi, err := f.Stat()
	return err == nil && (fi.Mode()&os.ModeCharDevice) == 0
}

// buildMessages creates system and user messages based on input content.
func buildMessages(input string) []llm.Message {
	lower := strings.ToLower(input)
	system := "You are ghosttext. Default to very short, concise answers. If the user asks for commands, output only the commands (one per line) with no commentary or explanation. Only when the word 'explain' appears in the prompt, produce a verbose explanation."
	if strings.Contains(lower, "explain") {
		system = "You are ghosttext. The user requested an explanation. Provide a clear, verbose explanation with reasoning and details. If commands are needed, include them with brief context."
	}
	return []llm.Message{
		{Role: "system", Content: system},
		{Role: "user", Content: input},
	}
}

// runChat executes the chat request, handling streaming and summary output.
func runChat(ctx context.Context, client llm.Client, msgs []llm.Message, input string, out io.Writer, errw io.Writer) error {
	start := time.Now()
	var output string
	if s, ok := client.(llm.Streamer); ok {
		var b strings.Builder
		if err := s.ChatStream(ctx, msgs, func(chunk string) {
			b.WriteString(chunk)
			fmt.Fprint(out, chunk)
		}); err != nil {
			return err
		}
		output = b.String()
	} else {
		txt, err := client.Chat(ctx, msgs)
		if err != nil {
			return err
		}
		output = txt
		fmt.Fprint(out, output)
	}
	dur := time.Since(start)
	fmt.Fprintf(errw, "\n"+logging.AnsiBase+"done provider=%s model=%s time=%s in_bytes=%d out_bytes=%d"+logging.AnsiReset+"\n",
		client.Name(), client.DefaultModel(), dur.Round(time.Millisecond), len(input), len(output))
	return nil
}

// printProviderInfo writes the provider/model line to stderr.
func printProviderInfo(errw io.Writer, client llm.Client) {
	fmt.Fprintf(errw, logging.AnsiBase+"provider=%s model=%s"+logging.AnsiReset+"\n", client.Name(), client.DefaultModel())
}
