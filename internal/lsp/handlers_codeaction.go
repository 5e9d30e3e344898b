// Summary: Code action offering inline chat at the selection start.
package lsp

import (
	"encoding/json"
)

func (s *Server) handleCodeAction(req Request) {
	var p CodeActionParams
	if err := json.Unmarshal(req.Params, &p); err != nil {
		if len(req.ID) != 0 {
			s.reply(req.ID, []CodeAction{}, nil)
		}
		return
	}
	d := s.getDocument(p.TextDocument.URI)
	if d == nil || d.chat == nil || d.chat.IsOpen() {
		if len(req.ID) != 0 {
			s.reply(req.ID, []CodeAction{}, nil)
		}
		return
	}
	pos := p.Range.Start
	action := CodeAction{
		Title: "Ghosttext: inline chat",
		Kind:  "refactor.rewrite",
		Command: &Command{
			Title:     "Ghosttext: inline chat",
			Command:   cmdInlineChatToggle,
			Arguments: []any{CommandArgs{URI: p.TextDocument.URI, Position: &pos}},
		},
	}
	if len(req.ID) != 0 {
		s.reply(req.ID, []CodeAction{action}, nil)
	}
}
