// Summary: Initialization and lifecycle handlers.
package lsp

import (
	"ghosttext/internal"
	"ghosttext/internal/logging"
)

func (s *Server) handleInitialize(req Request) {
	version := internal.Version
	if s.opts.ClientLabel != "" {
		version = version + " [" + s.opts.ClientLabel + "]"
	}
	res := InitializeResult{
		Capabilities: ServerCapabilities{
			TextDocumentSync: 1, // 1 = TextDocumentSyncKindFull
			CompletionProvider: &CompletionOptions{
				ResolveProvider:   false,
				TriggerCharacters: s.opts.TriggerCharacters,
			},
			CodeActionProvider:     CodeActionOptions{ResolveProvider: false},
			ExecuteCommandProvider: &ExecuteCommandOptions{Commands: allCommands},
		},
		ServerInfo: &ServerInfo{Name: "ghosttext", Version: version},
	}
	s.reply(req.ID, res, nil)
}

func (s *Server) handleInitialized() {
	logging.Logf("lsp ", "client initialized")
}

func (s *Server) handleShutdown(req Request) {
	s.reply(req.ID, nil, nil)
}

func (s *Server) handleExit() {
	s.exited.Store(true)
}
