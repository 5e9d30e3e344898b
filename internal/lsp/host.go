// Summary: Client-side hosts for one document: ghost-text display through
// ghosttext/showProposal and the inline chat UI through ghosttext/inlineChat/*.
package lsp

import (
	"bytes"
	"context"
	"encoding/json"

	"ghosttext/internal/editor"
	"ghosttext/internal/inlinechat"
	"ghosttext/internal/render"
)

// proposalHost implements render.Host. The client replies with a session id
// when it shows the ghost text (and then owns Tab acceptance), or null when
// it declines.
type proposalHost struct {
	s *Server
	d *document
}

func (h *proposalHost) TryDisplay(ctx context.Context, p render.Proposal) (*render.SessionHandle, error) {
	start := h.d.position(p.Span.Offset)
	params := ShowProposalParams{
		URI:        h.d.uri,
		ProposalID: p.ID,
		Range:      Range{Start: start, End: h.d.position(p.Span.Offset + p.Span.Length)},
		Text:       p.Text,
		CaretAfter: afterInsert(start, p.Text),
	}
	ctx, cancel := context.WithTimeout(ctx, h.s.opts.ProposalTimeout)
	defer cancel()
	raw, err := h.s.call(ctx, "ghosttext/showProposal", params)
	if err != nil {
		return nil, err
	}
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, nil
	}
	var res ShowProposalResult
	if err := json.Unmarshal(raw, &res); err != nil {
		return nil, err
	}
	if res.SessionID == "" {
		return nil, nil
	}
	return &render.SessionHandle{ID: res.SessionID, ProposalID: p.ID}, nil
}

func (h *proposalHost) Dismiss(_ context.Context, sh *render.SessionHandle) error {
	return h.s.notify("ghosttext/hideProposal", HideProposalParams{URI: h.d.uri, SessionID: sh.ID, ProposalID: sh.ProposalID})
}

// afterInsert returns the position following text inserted at start.
func afterInsert(start Position, text string) Position {
	end := positionIn(text, len(text))
	if end.Line == 0 {
		return Position{Line: start.Line, Character: start.Character + end.Character}
	}
	return Position{Line: start.Line + end.Line, Character: end.Character}
}

// chatHost implements inlinechat.Host.
type chatHost struct {
	s *Server
	d *document
}

var _ inlinechat.Host = (*chatHost)(nil)

func (h *chatHost) Snapshot() editor.Snapshot { return h.d.Snapshot() }

func (h *chatHost) ShowInput(_ context.Context, anchor int) error {
	return h.s.notify("ghosttext/inlineChat/showInput", InlineChatInputParams{URI: h.d.uri, Position: h.d.position(anchor)})
}

func (h *chatHost) SetInputEnabled(_ context.Context, enabled bool) error {
	return h.s.notify("ghosttext/inlineChat/setInputEnabled", InlineChatEnabledParams{URI: h.d.uri, Enabled: enabled})
}

func (h *chatHost) ShowDiff(_ context.Context, d inlinechat.Diff, zoom float64) error {
	return h.s.notify("ghosttext/inlineChat/showDiff", InlineChatDiffParams{URI: h.d.uri, Diff: d, Zoom: zoom})
}

func (h *chatHost) CloseUI(context.Context) error {
	return h.s.notify("ghosttext/inlineChat/close", InlineChatCloseParams{URI: h.d.uri})
}

func (h *chatHost) ShowError(_ context.Context, msg string) error {
	h.s.showMessage(messageError, msg)
	return nil
}

func (h *chatHost) Beep(context.Context) error {
	return h.s.notify("window/logMessage", MessageParams{Type: messageWarning, Message: "ghosttext: inline chat unavailable while a suggestion is running"})
}

func (h *chatHost) ReplaceAll(ctx context.Context, text string) error {
	return h.d.replaceAll(ctx, text)
}
