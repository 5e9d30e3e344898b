// Summary: Document open/change/close and caret notifications; each open document gets its
// own suggestion manager, key filter and inline chat bound to the shared feature gate.
package lsp

import (
	"context"
	"encoding/json"

	"ghosttext/internal/inline"
	"ghosttext/internal/inlinechat"
	"ghosttext/internal/keyrouting"
	"ghosttext/internal/logging"
	"ghosttext/internal/render"
)

func (s *Server) handleDidOpen(req Request) {
	var p DidOpenTextDocumentParams
	if err := json.Unmarshal(req.Params, &p); err != nil {
		logging.Logf("lsp ", "didOpen: %v", err)
		return
	}
	d := newDocument(s, p.TextDocument.URI, p.TextDocument.Text)
	s.attach(d)
	s.mu.Lock()
	old := s.docs[d.uri]
	s.docs[d.uri] = d
	s.mu.Unlock()
	if old != nil {
		go s.closeDocument(s.ctx, old)
	}
}

func (s *Server) handleDidChange(req Request) {
	var p DidChangeTextDocumentParams
	if err := json.Unmarshal(req.Params, &p); err != nil {
		logging.Logf("lsp ", "didChange: %v", err)
		return
	}
	d := s.getDocument(p.TextDocument.URI)
	if d == nil {
		return
	}
	for _, ch := range p.ContentChanges {
		d.applyChange(ch)
	}
	if d.manager != nil {
		go func() {
			if err := d.manager.TextChanged(s.ctx); err != nil {
				logging.Logf("lsp ", "text changed: %v", err)
			}
		}()
	}
}

func (s *Server) handleDidClose(req Request) {
	var p DidCloseTextDocumentParams
	if err := json.Unmarshal(req.Params, &p); err != nil {
		logging.Logf("lsp ", "didClose: %v", err)
		return
	}
	s.mu.Lock()
	d := s.docs[p.TextDocument.URI]
	delete(s.docs, p.TextDocument.URI)
	s.mu.Unlock()
	if d != nil {
		go s.closeDocument(s.ctx, d)
	}
}

func (s *Server) handleCaretMoved(req Request) {
	var p CaretMovedParams
	if err := json.Unmarshal(req.Params, &p); err != nil {
		logging.Logf("lsp ", "caretMoved: %v", err)
		return
	}
	d := s.getDocument(p.URI)
	if d == nil {
		return
	}
	off := d.setCaret(p.Position)
	if d.manager != nil {
		go func() {
			if err := d.manager.CaretMoved(s.ctx, off); err != nil {
				logging.Logf("lsp ", "caret moved: %v", err)
			}
		}()
	}
}

func (s *Server) getDocument(uri string) *document {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.docs[uri]
}

// attach wires the suggestion and inline chat components of d. Without a
// backend the document stays passive.
func (s *Server) attach(d *document) {
	if s.opts.Loop == nil || s.opts.Backend == nil {
		return
	}
	r, err := render.New(&proposalHost{s: s, d: d})
	if err != nil {
		logging.Logf("lsp ", "renderer: %v", err)
		return
	}
	m, err := inline.NewManager(inline.Deps{
		Loop:     s.opts.Loop,
		Gate:     s.gate,
		View:     d,
		Backend:  s.opts.Backend,
		Renderer: r,
	}, s.pacing())
	if err != nil {
		logging.Logf("lsp ", "inline manager: %v", err)
		return
	}
	f, err := keyrouting.NewFilter(m, keyrouting.HandlerFunc(clientKeys))
	if err != nil {
		logging.Logf("lsp ", "key filter: %v", err)
		return
	}
	c, err := inlinechat.New(inlinechat.Deps{
		Loop:    s.opts.Loop,
		Gate:    s.gate,
		Host:    &chatHost{s: s, d: d},
		Backend: s.opts.ChatBackend,
		Name:    d.uri,
	})
	if err != nil {
		logging.Logf("lsp ", "inline chat: %v", err)
		return
	}
	d.manager, d.filter, d.chat = m, f, c
}

// clientKeys stands for the editor's own key handling, which the client
// performs before it reports the key to the server.
func clientKeys(_ context.Context, cmd keyrouting.Command) error {
	logging.Logf("lsp ", "key %s handled by client", cmd)
	return nil
}

func (s *Server) closeDocument(ctx context.Context, d *document) {
	if d.manager != nil {
		if err := d.manager.Close(ctx); err != nil {
			logging.Logf("lsp ", "close manager %s: %v", d.uri, err)
		}
	}
	if d.chat != nil {
		if err := d.chat.Close(ctx); err != nil {
			logging.Logf("lsp ", "close inline chat %s: %v", d.uri, err)
		}
	}
}
