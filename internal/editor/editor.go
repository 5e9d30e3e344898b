// Summary: Editor view seam: frozen text/caret snapshots and direct buffer edits.
package editor

import (
	"context"
	"fmt"
	"strings"
	"sync"
)

// Snapshot is a frozen (text, caret) pair captured at request time. Version
// increases with every change to the underlying buffer.
type Snapshot struct {
	Text    string
	Caret   int
	Version int
}

// Edit replaces Length bytes at Offset with Text. Length 0 is an insertion.
type Edit struct {
	Offset int
	Length int
	Text   string
}

// Apply returns text with the edit applied.
func (e Edit) Apply(text string) (string, error) {
	if e.Offset < 0 || e.Length < 0 || e.Offset+e.Length > len(text) {
		return "", fmt.Errorf("edit [%d,+%d) out of range (len %d)", e.Offset, e.Length, len(text))
	}
	return text[:e.Offset] + e.Text + text[e.Offset+e.Length:], nil
}

// View is the slice of the host editor the suggestion manager needs.
type View interface {
	Snapshot() Snapshot
	ApplyEdit(ctx context.Context, e Edit) error
}

// Buffer is an in-memory View used by the CLI and tests.
type Buffer struct {
	mu      sync.Mutex
	text    string
	caret   int
	version int
	edits   []Edit
}

// NewBuffer creates a buffer with the caret at the end of text.
func NewBuffer(text string) *Buffer {
	return &Buffer{text: text, caret: len(text)}
}

func (b *Buffer) Snapshot() Snapshot {
	b.mu.Lock()
	defer b.mu.Unlock()
	return Snapshot{Text: b.text, Caret: b.caret, Version: b.version}
}

// ApplyEdit applies e and moves the caret to the end of the inserted text.
func (b *Buffer) ApplyEdit(ctx context.Context, e Edit) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	next, err := e.Apply(b.text)
	if err != nil {
		return err
	}
	b.text = next
	b.caret = e.Offset + len(e.Text)
	b.version++
	b.edits = append(b.edits, e)
	return nil
}

// SetText replaces the whole buffer, keeping the caret in range.
func (b *Buffer) SetText(text string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.text = text
	if b.caret > len(text) {
		b.caret = len(text)
	}
	b.version++
}

// SetCaret moves the caret, clamped to the buffer.
func (b *Buffer) SetCaret(offset int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.caret = clamp(offset, 0, len(b.text))
}

// Type inserts s at the caret, as if the user typed it.
func (b *Buffer) Type(s string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.text = b.text[:b.caret] + s + b.text[b.caret:]
	b.caret += len(s)
	b.version++
}

// Text returns the current buffer text.
func (b *Buffer) Text() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.text
}

// Edits returns the edits applied through ApplyEdit so far.
func (b *Buffer) Edits() []Edit {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]Edit(nil), b.edits...)
}

// LinePrefix returns the text between the start of the caret line and the caret.
func (s Snapshot) LinePrefix() string {
	c := clamp(s.Caret, 0, len(s.Text))
	start := strings.LastIndexByte(s.Text[:c], '\n') + 1
	return s.Text[start:c]
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
