// Summary: Extracts the prompt context that precedes the caret (bounded by lines and characters).
package textctx

import (
	"strings"
	"unicode/utf8"
)

const (
	DefaultMaxLines = 120
	DefaultMaxChars = 4000
)

// Context is the immutable text captured before the caret, plus the
// snapshot version it came from.
type Context struct {
	Text    string
	Version int
}

// Empty reports whether the context has no usable text.
func (c Context) Empty() bool { return strings.TrimSpace(c.Text) == "" }

// Lines returns the context split on '\n'.
func (c Context) Lines() []string {
	if c.Text == "" {
		return nil
	}
	return strings.Split(c.Text, "\n")
}

// Extractor bounds how much text is collected.
type Extractor struct {
	MaxLines int
	MaxChars int
}

// Default returns an extractor with the standard 120 line / 4000 char budget.
func Default() Extractor {
	return Extractor{MaxLines: DefaultMaxLines, MaxChars: DefaultMaxChars}
}

// Extract is Default().Extract.
func Extract(text string, caret, version int) Context {
	return Default().Extract(text, caret, version)
}

// Extract walks backwards from caret one line at a time until MaxLines lines
// or MaxChars characters (runes) are collected and returns them top to bottom. The
// caret line counts as the first line and only contributes its left part.
// A line that would overflow the character budget is clipped from the left
// and ends the walk.
func (e Extractor) Extract(text string, caret, version int) Context {
	maxLines, maxChars := e.MaxLines, e.MaxChars
	if maxLines <= 0 {
		maxLines = DefaultMaxLines
	}
	if maxChars <= 0 {
		maxChars = DefaultMaxChars
	}
	if caret > len(text) {
		caret = len(text)
	}
	if caret <= 0 {
		return Context{Version: version}
	}
	before := strings.ReplaceAll(text[:caret], "\r\n", "\n")

	var collected []string
	total := 0
	end := len(before)
	for len(collected) < maxLines {
		start := strings.LastIndexByte(before[:end], '\n') + 1
		line := before[start:end]
		need := utf8.RuneCountInString(line)
		if len(collected) > 0 {
			need++ // joining newline
		}
		if total+need > maxChars {
			room := maxChars - total
			if len(collected) > 0 {
				room--
			}
			if room > 0 {
				collected = append(collected, clipLeft(line, room))
			}
			break
		}
		collected = append(collected, line)
		total += need
		if start == 0 {
			break
		}
		end = start - 1
	}
	for i, j := 0, len(collected)-1; i < j; i, j = i+1, j-1 {
		collected[i], collected[j] = collected[j], collected[i]
	}
	return Context{Text: strings.Join(collected, "\n"), Version: version}
}

// clipLeft keeps at most n trailing runes of s.
func clipLeft(s string, n int) string {
	if n <= 0 {
		return ""
	}
	i := len(s)
	for count := 0; count < n && i > 0; count++ {
		_, size := utf8.DecodeLastRuneInString(s[:i])
		i -= size
	}
	return s[i:]
}
