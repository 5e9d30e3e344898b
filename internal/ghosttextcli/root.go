// Summary: ghosttext CLI: cobra root command, shared options (streams, config, client
// construction) and the Execute entrypoint used by cmd/ghosttext.
package ghosttextcli

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"

	"github.com/spf13/cobra"

	"ghosttext/internal"
	"ghosttext/internal/appconfig"
	"ghosttext/internal/chat"
	"ghosttext/internal/ghosttextlsp"
	"ghosttext/internal/llm"
	"ghosttext/internal/logging"
)

// Options carries the streams and injectable constructors of the CLI.
// Zero fields fall back to the process streams and the configured provider.
type Options struct {
	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer

	// LoadConfig defaults to appconfig.Load.
	LoadConfig func(logger *log.Logger) appconfig.App
	// NewClient defaults to llm.NewFromConfig with keys from the environment.
	NewClient func(cfg appconfig.App) (llm.Client, error)
	// Serve defaults to ghosttextlsp.Run.
	Serve func(logPath string, stdin io.Reader, stdout, stderr io.Writer) error
}

func (o Options) withDefaults() Options {
	if o.Stdin == nil {
		o.Stdin = os.Stdin
	}
	if o.Stdout == nil {
		o.Stdout = os.Stdout
	}
	if o.Stderr == nil {
		o.Stderr = os.Stderr
	}
	if o.LoadConfig == nil {
		o.LoadConfig = appconfig.Load
	}
	if o.NewClient == nil {
		o.NewClient = func(cfg appconfig.App) (llm.Client, error) {
			return llm.NewFromConfig(cfg.LLMConfig(), llm.KeysFromEnv())
		}
	}
	if o.Serve == nil {
		o.Serve = ghosttextlsp.Run
	}
	return o
}

func (o *Options) config() appconfig.App {
	cfg := o.LoadConfig(log.New(o.Stderr, "ghosttext ", 0))
	if cfg.LogPreviewLimit >= 0 {
		logging.SetLogPreviewLimit(cfg.LogPreviewLimit)
	}
	return cfg
}

func (o *Options) client(cfg appconfig.App) (llm.Client, error) {
	c, err := o.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("LLM disabled: %w", err)
	}
	return c, nil
}

// backend builds a chat backend with the given system prompt.
func (o *Options) backend(system string) (chat.Backend, llm.Client, error) {
	cfg := o.config()
	c, err := o.client(cfg)
	if err != nil {
		return nil, nil, err
	}
	b, err := chat.NewLLMBackend(c, system, cfg.RequestOptions()...)
	if err != nil {
		return nil, nil, err
	}
	return b, c, nil
}

// NewRootCmd assembles the command tree.
func NewRootCmd(opts Options) *cobra.Command {
	o := opts.withDefaults()
	var verbose bool
	root := &cobra.Command{
		Use:   "ghosttext",
		Short: "LLM ghost-text suggestions and inline chat for editors",
		Long: `ghosttext offers inline code suggestions and an inline chat that rewrites a file.

Examples:
  ghosttext ask "list open ports on linux"
  git diff | ghosttext ask "write a commit message"
  ghosttext complete main.go --line 12 --col 9
  ghosttext rewrite main.go --instruction "add error handling"
  ghosttext serve --log /tmp/ghosttext-lsp.log`,
		Version:           internal.Version,
		SilenceUsage:      true,
		SilenceErrors:     true,
		CompletionOptions: cobra.CompletionOptions{DisableDefaultCmd: true},
		PersistentPreRun: func(*cobra.Command, []string) {
			if verbose {
				logging.Bind(log.New(o.Stderr, "ghosttext ", log.LstdFlags|log.Lmsgprefix))
			}
		},
	}
	root.SetIn(o.Stdin)
	root.SetOut(o.Stdout)
	root.SetErr(o.Stderr)
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Log requests and session events to stderr")
	root.AddCommand(
		newAskCmd(&o),
		newTrimCmd(&o),
		newCompleteCmd(&o),
		newRewriteCmd(&o),
		newServeCmd(&o),
		newVersionCmd(&o),
	)
	return root
}

// Execute runs the CLI with args (without the program name) and reports
// errors on stderr.
func Execute(ctx context.Context, args []string, opts Options) error {
	root := NewRootCmd(opts)
	root.SetArgs(args)
	if err := root.ExecuteContext(ctx); err != nil {
		errw := opts.Stderr
		if errw == nil {
			errw = os.Stderr
		}
		fmt.Fprintf(errw, logging.AnsiBase+"ghosttext: %v"+logging.AnsiReset+"\n", err)
		return err
	}
	return nil
}

func newServeCmd(o *Options) *cobra.Command {
	var logPath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the LSP server on stdin/stdout",
		Args:  cobra.NoArgs,
		RunE: func(*cobra.Command, []string) error {
			return o.Serve(logPath, o.Stdin, o.Stdout, o.Stderr)
		},
	}
	cmd.Flags().StringVar(&logPath, "log", "/tmp/ghosttext-lsp.log", "Path to log file (empty logs to stderr)")
	return cmd
}

func newVersionCmd(o *Options) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(*cobra.Command, []string) {
			fmt.Fprintln(o.Stdout, internal.Version)
		},
	}
}
