// Summary: Post-processing of raw model replies into ghost-text suggestions: fence stripping,
// duplicate-line removal, brace rebalancing, block/else-chain extraction and statement truncation.
package suggest

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

const (
	// MaxDisplayLines is how many reply lines the ghost text may show.
	MaxDisplayLines = 3
	// MaxDisplayChars caps the ghost text; never applied to the full text.
	MaxDisplayChars = 240
)

var (
	headerRe = regexp.MustCompile(`^\s*(if|for|while|do|foreach|switch)\b`)
	elseRe   = regexp.MustCompile(`^\s*else\b`)
	whileRe  = regexp.MustCompile(`^\s*while\b`)
)

// Trim turns a raw model reply into a suggestion. With limitToDisplayLength
// the result is the ghost-text variant (at most 3 lines, 240 chars); without
// it the result is the full text used for fallback insertion. An empty
// result means there is nothing worth suggesting.
func Trim(raw, context string, limitToDisplayLength bool) string {
	text := StripCodeFences(raw)
	text = normalizeNewlines(text)
	lines := strings.Split(text, "\n")
	lines = RemoveDuplicateLines(lines, context)
	if limitToDisplayLength && len(lines) > MaxDisplayLines {
		lines = lines[:MaxDisplayLines]
	}
	if strings.TrimSpace(strings.Join(lines, "\n")) == "" {
		return ""
	}
	lines = rebalanceBraces(lines)
	out := truncateStatement(strings.Join(lines, "\n"))
	if limitToDisplayLength {
		out = capRunes(out, MaxDisplayChars)
	}
	if strings.TrimSpace(out) == "" {
		return ""
	}
	return out
}

// StripCodeFences removes a leading ``` line (with optional language tag)
// and a trailing ``` line. Text without fences is returned unchanged.
func StripCodeFences(s string) string {
	lines := strings.Split(normalizeNewlines(s), "\n")
	first, last := 0, len(lines)-1
	for first <= last && strings.TrimSpace(lines[first]) == "" {
		first++
	}
	for last >= first && strings.TrimSpace(lines[last]) == "" {
		last--
	}
	if first > last {
		return s
	}
	opened := strings.HasPrefix(strings.TrimSpace(lines[first]), "```")
	closed := last > first && strings.TrimSpace(lines[last]) == "```"
	if !opened && !closed {
		return s
	}
	start, end := 0, len(lines)
	if opened {
		start = first + 1
	}
	if closed {
		end = last
	}
	if start >= end {
		return ""
	}
	return strings.Join(lines[start:end], "\n")
}

// RemoveDuplicateLines drops reply lines that repeat the tail of context.
// The first reply line is compared to the last context line, the second to
// the one before it, and so on, stopping at the first mismatch. Lines are
// compared with surrounding whitespace trimmed. A blank caret line at the
// end of context (caret at the start of a fresh line) is skipped, so the
// first reply line is compared to the last line actually written.
func RemoveDuplicateLines(lines []string, context string) []string {
	if context == "" {
		return lines
	}
	ctx := strings.Split(normalizeNewlines(context), "\n")
	if len(ctx) > 1 && strings.TrimSpace(ctx[len(ctx)-1]) == "" {
		ctx = ctx[:len(ctx)-1]
	}
	i := 0
	for i < len(lines) && i < len(ctx) {
		if strings.TrimSpace(lines[i]) != strings.TrimSpace(ctx[len(ctx)-1-i]) {
			break
		}
		i++
	}
	return lines[i:]
}

// StripTypedPrefix removes text the user already typed on the caret line when
// the model repeats it at the start of its suggestion, e.g. typed "x :=" and
// suggestion "x := f()" becomes " f()". It prefers the whole typed text and
// falls back to the longest token-aligned suffix of it.
func StripTypedPrefix(typed, suggestion string) string {
	if suggestion == "" {
		return suggestion
	}
	s := strings.TrimLeft(suggestion, " \t")
	p := strings.TrimSpace(typed)
	trailingSpace := typed != strings.TrimRight(typed, " \t")
	cut := func(n int) string {
		rest := s[n:]
		if trailingSpace {
			rest = strings.TrimLeft(rest, " \t")
		}
		return rest
	}
	if p == "" {
		return suggestion
	}
	if strings.HasPrefix(s, p) {
		return cut(len(p))
	}
	for k := 1; k < len(p); k++ {
		if !isIdentBoundary(p[k-1]) {
			continue
		}
		suf := strings.TrimLeft(p[k:], " \t")
		if suf == "" || !isIdentStart(suf[0]) {
			continue
		}
		if strings.HasPrefix(s, suf) {
			return cut(len(suf))
		}
	}
	return suggestion
}

// rebalanceBraces drops trailing lines that only close blocks opened before
// the suggestion, so the ghost text never ends in a dangling '}'.
func rebalanceBraces(lines []string) []string {
	opens, closes := 0, 0
	per := make([][2]int, len(lines))
	for i, ln := range lines {
		o, c := braceCounts(ln)
		per[i] = [2]int{o, c}
		opens += o
		closes += c
	}
	for len(lines) > 0 {
		last := len(lines) - 1
		o, c := per[last][0], per[last][1]
		tailCloses := strings.TrimSpace(lines[last]) == "}" || c > o
		if !tailCloses || closes <= opens {
			break
		}
		opens -= o
		closes -= c
		lines = lines[:last]
	}
	return lines
}

// truncateStatement keeps a single statement or a single balanced block.
func truncateStatement(text string) string {
	mask := codeMask(text)
	if kw, at, ok := blockHeader(text); ok {
		open := indexCode(text, mask, at, '{')
		semi := topLevelSemicolon(text, mask, at, len(text))
		if open >= 0 && (semi < 0 || open < semi) {
			end := matchBrace(text, mask, open)
			if end < 0 {
				return text
			}
			if kw == "do" {
				end = extendDoWhile(text, mask, end)
			} else {
				end = extendElseChain(text, mask, end)
			}
			return text[:end+1]
		}
	}
	if semi := topLevelSemicolon(text, mask, 0, len(text)); semi >= 0 {
		return text[:semi+1]
	}
	return text
}

// blockHeader reports whether the first non-blank line opens a block with one
// of the header keywords, returning the keyword and the offset of that line.
func blockHeader(text string) (string, int, bool) {
	off := 0
	for _, ln := range strings.SplitAfter(text, "\n") {
		if strings.TrimSpace(ln) == "" {
			off += len(ln)
			continue
		}
		m := headerRe.FindStringSubmatch(ln)
		if m == nil {
			return "", 0, false
		}
		return m[1], off, true
	}
	return "", 0, false
}

// extendElseChain follows "else" / "else if" links after the block ending at
// end and returns the close of the last complete link.
func extendElseChain(text string, mask []bool, end int) int {
	for {
		rest := text[end+1:]
		loc := elseRe.FindStringIndex(rest)
		if loc == nil {
			return end
		}
		from := end + 1 + loc[1]
		open := indexCode(text, mask, from, '{')
		if open < 0 {
			return end
		}
		if semi := topLevelSemicolon(text, mask, from, open); semi >= 0 {
			return end // brace-less else
		}
		closeIdx := matchBrace(text, mask, open)
		if closeIdx < 0 {
			return end
		}
		end = closeIdx
	}
}

// extendDoWhile keeps the "while (...);" tail of a do block.
func extendDoWhile(text string, mask []bool, end int) int {
	rest := text[end+1:]
	loc := whileRe.FindStringIndex(rest)
	if loc == nil {
		return end
	}
	if semi := topLevelSemicolon(text, mask, end+1+loc[1], len(text)); semi >= 0 {
		return semi
	}
	return end
}

func normalizeNewlines(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	return strings.ReplaceAll(s, "\r", "\n")
}

func capRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	i := 0
	for count := 0; count < n; count++ {
		_, size := utf8.DecodeRuneInString(s[i:])
		i += size
	}
	return s[:i]
}

func isIdentBoundary(ch byte) bool {
	return !isIdentChar(ch)
}

func isIdentChar(ch byte) bool {
	return (ch >= 'a' && ch <= 'z') || (ch >= 'A' && ch <= 'Z') || (ch >= '0' && ch <= '9') || ch == '_'
}

func isIdentStart(ch byte) bool {
	return (ch >= 'a' && ch <= 'z') || (ch >= 'A' && ch <= 'Z') || ch == '_'
}
