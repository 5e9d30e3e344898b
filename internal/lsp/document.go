// Summary: In-memory document model for the LSP; tracks text, lines, caret and version,
// converts positions to byte offsets and serves as the editor view of one open file.
package lsp

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"ghosttext/internal/editor"
	"ghosttext/internal/inline"
	"ghosttext/internal/inlinechat"
	"ghosttext/internal/keyrouting"
)

// --- Document store and helpers ---

type document struct {
	uri string
	srv *Server

	mu      sync.Mutex
	text    string
	lines   []string
	version int
	caret   int

	// nil when no LLM backend is configured
	manager *inline.Manager
	filter  *keyrouting.Filter
	chat    *inlinechat.Session
}

func newDocument(srv *Server, uri, text string) *document {
	d := &document{uri: uri, srv: srv}
	d.setText(text)
	return d
}

// setText replaces the whole text, keeping the caret in range.
func (d *document) setText(text string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.setTextLocked(text)
}

func (d *document) setTextLocked(text string) {
	d.text = normalizeNewlines(text)
	d.lines = strings.Split(d.text, "\n")
	d.version++
	d.caret = min(d.caret, len(d.text))
}

// applyChange applies one didChange event (full or ranged).
func (d *document) applyChange(ch TextDocumentContentChangeEvent) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if ch.Range == nil {
		d.setTextLocked(ch.Text)
		return
	}
	start := d.offsetLocked(ch.Range.Start)
	end := max(d.offsetLocked(ch.Range.End), start)
	d.setTextLocked(d.text[:start] + normalizeNewlines(ch.Text) + d.text[end:])
}

// setCaret moves the caret to pos and returns the byte offset.
func (d *document) setCaret(pos Position) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.caret = d.offsetLocked(pos)
	return d.caret
}

func (d *document) offset(pos Position) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.offsetLocked(pos)
}

// offsetLocked maps a position (UTF-8 byte columns) to a byte offset,
// clamping lines and columns to the document.
func (d *document) offsetLocked(pos Position) int {
	line := min(max(pos.Line, 0), len(d.lines)-1)
	off := 0
	for i := 0; i < line; i++ {
		off += len(d.lines[i]) + 1
	}
	col := min(max(pos.Character, 0), len(d.lines[line]))
	return off + col
}

func (d *document) position(off int) Position {
	d.mu.Lock()
	defer d.mu.Unlock()
	return positionIn(d.text, off)
}

func positionIn(text string, off int) Position {
	off = min(max(off, 0), len(text))
	before := text[:off]
	line := strings.Count(before, "\n")
	col := off - (strings.LastIndexByte(before, '\n') + 1)
	return Position{Line: line, Character: col}
}

func (d *document) currentText() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.text
}

func (d *document) lineAt(line int) string {
	d.mu.Lock()
	defer d.mu.Unlock()
	if line < 0 || line >= len(d.lines) {
		return ""
	}
	return d.lines[line]
}

// Snapshot implements editor.View.
func (d *document) Snapshot() editor.Snapshot {
	d.mu.Lock()
	defer d.mu.Unlock()
	return editor.Snapshot{Text: d.text, Caret: d.caret, Version: d.version}
}

// ApplyEdit implements editor.View by asking the client to apply the edit
// through workspace/applyEdit. The local copy follows once it is applied.
func (d *document) ApplyEdit(ctx context.Context, e editor.Edit) error {
	d.mu.Lock()
	next, err := e.Apply(d.text)
	r := Range{Start: positionIn(d.text, e.Offset), End: positionIn(d.text, e.Offset+e.Length)}
	version := d.version
	d.mu.Unlock()
	if err != nil {
		return err
	}
	if err := d.srv.applyEdit(ctx, "ghosttext: insert suggestion", d.uri, []TextEdit{{Range: r, NewText: e.Text}}); err != nil {
		return err
	}
	d.adoptEdit(version, next, e.Offset+len(e.Text))
	return nil
}

// replaceAll swaps the whole buffer through the client.
func (d *document) replaceAll(ctx context.Context, text string) error {
	d.mu.Lock()
	end := positionIn(d.text, len(d.text))
	version := d.version
	caret := d.caret
	d.mu.Unlock()
	edit := TextEdit{Range: Range{End: end}, NewText: text}
	if err := d.srv.applyEdit(ctx, "ghosttext: inline chat", d.uri, []TextEdit{edit}); err != nil {
		return fmt.Errorf("replace buffer: %w", err)
	}
	d.adoptEdit(version, text, caret)
	return nil
}

// adoptEdit records an applied edit locally. If a didChange arrived while
// the client was applying it, that text already reflects the edit and any
// keystrokes after it, so only the caret moves.
func (d *document) adoptEdit(version int, next string, caret int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.version == version {
		d.setTextLocked(next)
	}
	d.caret = min(max(caret, 0), len(d.text))
}

func normalizeNewlines(s string) string {
	return strings.ReplaceAll(s, "\r\n", "\n")
}

func trimLen(s string) string {
	s = strings.TrimSpace(s)
	if len(s) > 200 {
		return s[:200] + "…"
	}
	return s
}

func firstLine(s string) string {
	s = normalizeNewlines(s)
	if idx := strings.IndexByte(s, '\n'); idx >= 0 {
		return s[:idx]
	}
	return s
}
