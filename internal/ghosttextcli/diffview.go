// Summary: Terminal rendering of inline chat diffs with lipgloss styles; changed
// character spans inside a line are emphasised.
package ghosttextcli

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"ghosttext/internal/inlinechat"
)

var (
	headerStyle  = lipgloss.NewStyle().Bold(true)
	hunkStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("6"))
	addedStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("2"))
	removedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("1"))
	contextStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	ghostStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("8")).Italic(true)

	hunkRe = regexp.MustCompile(`^@@ -(\d+)(?:,\d+)? \+(\d+)(?:,\d+)? @@`)
)

// renderDiff colours the unified text of d.
func renderDiff(d inlinechat.Diff) string {
	oldSpans := make(map[int][]inlinechat.Span)
	newSpans := make(map[int][]inlinechat.Span)
	for _, c := range d.Changes {
		if c.OldLine >= 0 {
			oldSpans[c.OldLine] = c.OldSpans
		}
		if c.NewLine >= 0 {
			newSpans[c.NewLine] = c.NewSpans
		}
	}
	var b strings.Builder
	oldLn, newLn := 0, 0
	for _, line := range strings.Split(strings.TrimRight(d.Unified, "\n"), "\n") {
		switch {
		case strings.HasPrefix(line, "--- "), strings.HasPrefix(line, "+++ "):
			b.WriteString(headerStyle.Render(line))
		case strings.HasPrefix(line, "@@"):
			if m := hunkRe.FindStringSubmatch(line); m != nil {
				o, _ := strconv.Atoi(m[1])
				n, _ := strconv.Atoi(m[2])
				oldLn, newLn = max(o-1, 0), max(n-1, 0)
			}
			b.WriteString(hunkStyle.Render(line))
		case strings.HasPrefix(line, "-"):
			b.WriteString(emphasise("-", line[1:], oldSpans[oldLn], removedStyle))
			oldLn++
		case strings.HasPrefix(line, "+"):
			b.WriteString(emphasise("+", line[1:], newSpans[newLn], addedStyle))
			newLn++
		case strings.HasPrefix(line, "\\"):
			b.WriteString(contextStyle.Render(line))
		default:
			b.WriteString(contextStyle.Render(line))
			oldLn++
			newLn++
		}
		b.WriteByte('\n')
	}
	return b.String()
}

// emphasise renders text in style with spans additionally reversed.
func emphasise(prefix, text string, spans []inlinechat.Span, style lipgloss.Style) string {
	strong := style.Reverse(true)
	var b strings.Builder
	b.WriteString(style.Render(prefix))
	at := 0
	for _, sp := range spans {
		start, end := min(max(sp.Start, at), len(text)), min(sp.End, len(text))
		if end <= start {
			continue
		}
		if start > at {
			b.WriteString(style.Render(text[at:start]))
		}
		b.WriteString(strong.Render(text[start:end]))
		at = end
	}
	if at < len(text) {
		b.WriteString(style.Render(text[at:]))
	}
	return b.String()
}
