// Summary: ghosttext LSP runner; configures logging, loads and watches config, builds the LLM
// backends and runs the dispatch loop and LSP server together (with injectable factory for tests).
package ghosttextlsp

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"ghosttext/internal/appconfig"
	"ghosttext/internal/chat"
	"ghosttext/internal/dispatch"
	"ghosttext/internal/llm"
	"ghosttext/internal/logging"
	"ghosttext/internal/lsp"
	"ghosttext/internal/textctx"
)

// ServerRunner is the minimal interface satisfied by lsp.Server.
type ServerRunner interface{ Run() error }

// ServerFactory creates a ServerRunner. Default uses lsp.NewServer.
type ServerFactory func(r io.Reader, w io.Writer, logger *log.Logger, opts lsp.ServerOptions) ServerRunner

// pacer is implemented by servers that accept live pacing changes.
type pacer interface {
	UpdatePacing(debounce, minInterval time.Duration, ext textctx.Extractor)
}

// watcher delivers reloaded configuration.
type watcher interface {
	Watch(fn func(appconfig.App)) bool
}

// Run configures logging, loads config, builds the LLM client and runs the LSP server.
// It is thin and delegates to runServer.
func Run(logPath string, stdin io.Reader, stdout io.Writer, stderr io.Writer) error {
	logger := log.New(stderr, "ghosttext-lsp ", log.LstdFlags|log.Lmsgprefix)
	if strings.TrimSpace(logPath) != "" {
		f, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return fmt.Errorf("open log file: %w", err)
		}
		defer f.Close()
		logger.SetOutput(f)
	}
	logging.Bind(logger)
	cfg, loader := loadConfig(logger)
	var w watcher
	if loader != nil {
		w = loader
	}
	return runServer(logPath, stdin, stdout, logger, cfg, nil, nil, w)
}

// RunWithFactory is the testable entrypoint. When client is nil, it is built from cfg+env.
// When factory is nil, lsp.NewServer is used.
func RunWithFactory(logPath string, stdin io.Reader, stdout io.Writer, logger *log.Logger, cfg appconfig.App, client llm.Client, factory ServerFactory) error {
	return runServer(logPath, stdin, stdout, logger, cfg, client, factory, nil)
}

func runServer(logPath string, stdin io.Reader, stdout io.Writer, logger *log.Logger, cfg appconfig.App, client llm.Client, factory ServerFactory, w watcher) error {
	applyLogging(cfg)
	client = buildClientIfNil(cfg, client)
	factory = ensureFactory(factory)

	loop := dispatch.NewLoop(0)
	opts := makeServerOptions(cfg, strings.TrimSpace(logPath) != "", client)
	opts.Loop = loop
	server := factory(stdin, stdout, logger, opts)
	if w != nil && w.Watch(func(next appconfig.App) { applyReload(server, next) }) {
		logging.Logf("lsp ", "watching config for changes")
	}

	g, ctx := errgroup.WithContext(context.Background())
	g.Go(func() error { return loop.Run(ctx) })
	g.Go(func() error {
		defer loop.Stop()
		if err := server.Run(); err != nil {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})
	return g.Wait()
}

// --- helpers to keep runServer small ---

func loadConfig(logger *log.Logger) (appconfig.App, *appconfig.Loader) {
	dir, err := appconfig.ConfigDir()
	if err != nil {
		logger.Printf("%v", err)
		return appconfig.Defaults(), nil
	}
	loader := appconfig.NewLoader(dir, logger)
	cfg, err := loader.Load()
	if err != nil {
		logger.Printf("%v", err)
		return appconfig.Defaults(), nil
	}
	return cfg, loader
}

func applyLogging(cfg appconfig.App) {
	if cfg.LogPreviewLimit >= 0 {
		logging.SetLogPreviewLimit(cfg.LogPreviewLimit)
	}
}

// applyReload takes over the settings that can change without a restart.
func applyReload(server ServerRunner, cfg appconfig.App) {
	applyLogging(cfg)
	if p, ok := server.(pacer); ok {
		p.UpdatePacing(cfg.Debounce(), cfg.MinRequestInterval(), cfg.Extractor())
	}
	logging.Logf("lsp ", "config reloaded; provider changes need a restart")
}

func buildClientIfNil(cfg appconfig.App, client llm.Client) llm.Client {
	if client != nil {
		return client
	}
	c, err := llm.NewFromConfig(cfg.LLMConfig(), llm.KeysFromEnv())
	if err != nil {
		logging.Logf("lsp ", "llm disabled: %v", err)
		return nil
	}
	logging.Logf("lsp ", "llm enabled provider=%s model=%s", c.Name(), c.DefaultModel())
	return c
}

func ensureFactory(factory ServerFactory) ServerFactory {
	if factory != nil {
		return factory
	}
	return func(r io.Reader, w io.Writer, logger *log.Logger, opts lsp.ServerOptions) ServerRunner {
		return lsp.NewServer(r, w, logger, opts)
	}
}

func makeServerOptions(cfg appconfig.App, logContext bool, client llm.Client) lsp.ServerOptions {
	opts := lsp.ServerOptions{
		LogContext:        logContext,
		TriggerCharacters: cfg.TriggerCharacters,
		Debounce:          cfg.Debounce(),
		MinInterval:       cfg.MinRequestInterval(),
		Extractor:         cfg.Extractor(),
	}
	if client == nil {
		return opts
	}
	opts.ClientLabel = client.Name() + ":" + client.DefaultModel()
	reqOpts := cfg.RequestOptions()
	if b, err := chat.NewLLMBackend(client, chat.SuggestionSystemPrompt, reqOpts...); err == nil {
		opts.Backend = b
	}
	if b, err := chat.NewLLMBackend(client, chat.InlineChatSystemPrompt, reqOpts...); err == nil {
		opts.ChatBackend = b
	}
	return opts
}
