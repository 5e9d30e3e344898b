// Summary: LSP server over stdio; owns the document store, the feature gate shared by all
// documents and the correlation of server-to-client requests.
package lsp

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"ghosttext/internal/chat"
	"ghosttext/internal/dispatch"
	"ghosttext/internal/feature"
	"ghosttext/internal/inline"
	"ghosttext/internal/logging"
	"ghosttext/internal/textctx"
)

const (
	// DefaultProposalTimeout bounds the wait for a ghosttext/showProposal reply.
	DefaultProposalTimeout = 2 * time.Second
	// DefaultEditTimeout bounds the wait for a workspace/applyEdit reply.
	DefaultEditTimeout = 2 * time.Second
)

// ServerOptions configures NewServer.
type ServerOptions struct {
	// Loop must be running; all suggestion and inline chat state lives on it.
	Loop *dispatch.Loop
	// Backend serves inline suggestions, ChatBackend inline chat. Without a
	// Backend the server still tracks documents but offers no suggestions.
	Backend     chat.Backend
	ChatBackend chat.Backend
	// ClientLabel names provider:model in serverInfo and completion details.
	ClientLabel string

	TriggerCharacters []string
	Debounce          time.Duration
	MinInterval       time.Duration
	Extractor         textctx.Extractor
	// Both timeouts hold the dispatch loop while the client answers.
	ProposalTimeout   time.Duration
	EditTimeout       time.Duration
	LogContext        bool
}

// Server implements a minimal LSP over stdio.
type Server struct {
	in     *bufio.Reader
	out    io.Writer
	outMu  sync.Mutex
	logger *log.Logger
	opts   ServerOptions

	gate     *feature.Coordinator
	handlers map[string]func(Request)

	mu      sync.RWMutex
	docs    map[string]*document
	nextID  int64
	pending map[string]chan incoming

	exited atomic.Bool
	ctx    context.Context
	cancel context.CancelFunc
}

func NewServer(r io.Reader, w io.Writer, logger *log.Logger, opts ServerOptions) *Server {
	if opts.ProposalTimeout <= 0 {
		opts.ProposalTimeout = DefaultProposalTimeout
	}
	if opts.EditTimeout <= 0 {
		opts.EditTimeout = DefaultEditTimeout
	}
	if opts.ChatBackend == nil {
		opts.ChatBackend = opts.Backend
	}
	if len(opts.TriggerCharacters) == 0 {
		opts.TriggerCharacters = []string{".", ":", "/", "_", ")", "{"}
	}
	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		in:      bufio.NewReader(r),
		out:     w,
		logger:  logger,
		opts:    opts,
		gate:    feature.NewCoordinator(),
		docs:    make(map[string]*document),
		pending: make(map[string]chan incoming),
		ctx:     ctx,
		cancel:  cancel,
	}
	s.handlers = map[string]func(Request){
		"initialize":               s.handleInitialize,
		"initialized":              func(Request) { s.handleInitialized() },
		"shutdown":                 s.handleShutdown,
		"exit":                     func(Request) { s.handleExit() },
		"textDocument/didOpen":     s.handleDidOpen,
		"textDocument/didChange":   s.handleDidChange,
		"textDocument/didClose":    s.handleDidClose,
		"textDocument/completion":  s.handleCompletion,
		"textDocument/codeAction":  s.handleCodeAction,
		"workspace/executeCommand": s.handleExecuteCommand,
		"ghosttext/caretMoved":     s.handleCaretMoved,
	}
	return s
}

// syncMethods update server state in message order and never wait on the
// dispatch loop; everything else runs on its own goroutine.
var syncMethods = map[string]bool{
	"initialize":             true,
	"initialized":            true,
	"shutdown":               true,
	"exit":                   true,
	"textDocument/didOpen":   true,
	"textDocument/didChange": true,
	"textDocument/didClose":  true,
	"ghosttext/caretMoved":   true,
}

// Run reads messages until EOF or exit.
func (s *Server) Run() error {
	defer s.shutdownDocuments()
	for {
		body, err := s.readMessage()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		var msg incoming
		if err := json.Unmarshal(body, &msg); err != nil {
			logging.Logf("lsp ", "invalid JSON: %v", err)
			continue
		}
		if msg.Method == "" {
			s.deliverResponse(msg)
			continue
		}
		req := Request{JSONRPC: msg.JSONRPC, ID: msg.ID, Method: msg.Method, Params: msg.Params}
		if syncMethods[req.Method] {
			s.handle(req)
		} else {
			go s.handle(req)
		}
		if s.exited.Load() {
			return nil
		}
	}
}

// UpdatePacing changes request pacing and context size for documents opened
// from now on. Open documents keep their settings.
func (s *Server) UpdatePacing(debounce, minInterval time.Duration, ext textctx.Extractor) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.opts.Debounce = debounce
	s.opts.MinInterval = minInterval
	s.opts.Extractor = ext
}

func (s *Server) pacing() inline.Config {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return inline.Config{Debounce: s.opts.Debounce, MinInterval: s.opts.MinInterval, Extractor: s.opts.Extractor}
}

// shutdownDocuments closes every open document when the stream ends.
func (s *Server) shutdownDocuments() {
	s.mu.Lock()
	docs := make([]*document, 0, len(s.docs))
	for uri, d := range s.docs {
		docs = append(docs, d)
		delete(s.docs, uri)
	}
	s.mu.Unlock()
	s.cancel()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	for _, d := range docs {
		s.closeDocument(ctx, d)
	}
}
