// Summary: textDocument/completion bridge: serves the pending ghost-text suggestion as a
// completion item, reports a busy item while a request runs, and otherwise triggers one.
package lsp

import (
	"encoding/json"
	"strings"

	"ghosttext/internal/keyrouting"
	"ghosttext/internal/logging"
)

func (s *Server) handleCompletion(req Request) {
	var p CompletionParams
	if err := json.Unmarshal(req.Params, &p); err != nil {
		s.reply(req.ID, CompletionList{Items: []CompletionItem{}}, nil)
		return
	}
	tk, tch := extractTriggerInfo(p)
	logging.Logf("lsp ", "completion trigger kind=%d char=%q uri=%s line=%d char=%d",
		tk, tch, p.TextDocument.URI, p.Position.Line, p.Position.Character)
	d := s.getDocument(p.TextDocument.URI)
	if d == nil || d.manager == nil {
		s.reply(req.ID, CompletionList{Items: []CompletionItem{}}, nil)
		return
	}
	if s.opts.LogContext {
		logging.Logf("lsp ", "completion ctx uri=%s line=%d current=%q", p.TextDocument.URI, p.Position.Line, trimLen(d.lineAt(p.Position.Line)))
	}
	off := d.setCaret(p.Position)

	sess, ok, err := d.manager.Session(s.ctx)
	if err != nil {
		s.reply(req.ID, CompletionList{Items: []CompletionItem{}}, nil)
		return
	}
	if ok && sess.Full != "" && sess.Origin == off {
		s.reply(req.ID, CompletionList{IsIncomplete: false, Items: []CompletionItem{s.suggestionItem(p, sess.Full)}}, nil)
		return
	}
	if d.manager.IsBusy() {
		s.reply(req.ID, CompletionList{IsIncomplete: true, Items: []CompletionItem{s.busyCompletionItem()}}, nil)
		return
	}
	if err := d.filter.Exec(s.ctx, keyrouting.Trigger); err != nil {
		logging.Logf("lsp ", "completion trigger: %v", err)
	}
	s.reply(req.ID, CompletionList{IsIncomplete: true, Items: []CompletionItem{}}, nil)
}

// extractTriggerInfo returns the LSP completion TriggerKind and TriggerCharacter
// if provided by the client; when absent it returns zeros.
func extractTriggerInfo(p CompletionParams) (kind int, ch string) {
	if len(p.Context) == 0 {
		return 0, ""
	}
	var ctx struct {
		TriggerKind      int    `json:"triggerKind"`
		TriggerCharacter string `json:"triggerCharacter,omitempty"`
	}
	_ = json.Unmarshal(p.Context, &ctx)
	return ctx.TriggerKind, ctx.TriggerCharacter
}

// suggestionItem inserts text at the cursor and reports the acceptance back.
func (s *Server) suggestionItem(p CompletionParams, text string) CompletionItem {
	detail := "ghosttext suggestion"
	if s.opts.ClientLabel != "" {
		detail = "ghosttext " + s.opts.ClientLabel
	}
	return CompletionItem{
		Label:            labelForCompletion(text),
		Kind:             1,
		Detail:           detail,
		InsertTextFormat: 1,
		TextEdit:         &TextEdit{Range: Range{Start: p.Position, End: p.Position}, NewText: text},
		SortText:         "0000",
		Documentation:    text,
		Command: &Command{
			Title:     "accept suggestion",
			Command:   cmdAccept,
			Arguments: []any{CommandArgs{URI: p.TextDocument.URI}},
		},
	}
}

// busyCompletionItem builds a visible, non-inserting completion item indicating
// that an LLM request is already in flight.
func (s *Server) busyCompletionItem() CompletionItem {
	label := "ghosttext: LLM busy"
	if s.opts.ClientLabel != "" {
		label += " (" + s.opts.ClientLabel + ")"
	}
	return CompletionItem{
		Label:         label,
		Detail:        "Another request is running; only one is allowed concurrently",
		InsertText:    "",
		FilterText:    "",
		SortText:      "~~~~~busy", // float to top
		Documentation: "ghosttext is processing a previous request. Please retry shortly.",
	}
}

func labelForCompletion(text string) string {
	label := trimLen(firstLine(text))
	if label == "" {
		label = strings.TrimSpace(text)
	}
	return label
}
