package inlinechat

import (
	"strings"

	dmp "github.com/sergi/go-diff/diffmatchpatch"
	diff "github.com/shogoki/gotextdiff"
)

// Span is a byte range [Start, End) inside one line.
type Span struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// LineChange pairs a removed line with the line that replaced it. A pure
// deletion has NewLine -1, a pure insertion has OldLine -1. Line numbers are
// zero based.
type LineChange struct {
	OldLine  int    `json:"oldLine"`
	NewLine  int    `json:"newLine"`
	Old      string `json:"old,omitempty"`
	New      string `json:"new,omitempty"`
	OldSpans []Span `json:"oldSpans,omitempty"`
	NewSpans []Span `json:"newSpans,omitempty"`
}

// Diff describes the change from the current buffer to a proposal.
type Diff struct {
	Unified string       `json:"unified"`
	Added   int          `json:"added"`
	Removed int          `json:"removed"`
	Changes []LineChange `json:"changes,omitempty"`
}

// Empty reports whether before and after were identical.
func (d Diff) Empty() bool { return d.Added == 0 && d.Removed == 0 }

// ComputeDiff builds the unified text and the per-line character spans.
func ComputeDiff(name, before, after string) Diff {
	if before == after {
		return Diff{}
	}
	out := Diff{Unified: string(diff.Diff(name, []byte(before), name, []byte(after)))}

	d := dmp.New()
	a, b, lines := d.DiffLinesToChars(before, after)
	diffs := d.DiffCharsToLines(d.DiffMain(a, b, false), lines)

	oldLine, newLine := 0, 0
	var dels, ins []string
	flush := func() {
		out.Removed += len(dels)
		out.Added += len(ins)
		n := max(len(dels), len(ins))
		for i := 0; i < n; i++ {
			c := LineChange{OldLine: -1, NewLine: -1}
			switch {
			case i < len(dels) && i < len(ins):
				c.OldLine, c.NewLine = oldLine+i, newLine+i
				c.Old, c.New = dels[i], ins[i]
				c.OldSpans, c.NewSpans = charSpans(d, dels[i], ins[i])
			case i < len(dels):
				c.OldLine, c.Old = oldLine+i, dels[i]
				c.OldSpans = wholeLine(dels[i])
			default:
				c.NewLine, c.New = newLine+i, ins[i]
				c.NewSpans = wholeLine(ins[i])
			}
			out.Changes = append(out.Changes, c)
		}
		oldLine += len(dels)
		newLine += len(ins)
		dels, ins = nil, nil
	}
	for _, df := range diffs {
		ls := splitLines(df.Text)
		switch df.Type {
		case dmp.DiffDelete:
			dels = append(dels, ls...)
		case dmp.DiffInsert:
			ins = append(ins, ls...)
		case dmp.DiffEqual:
			flush()
			oldLine += len(ls)
			newLine += len(ls)
		}
	}
	flush()
	return out
}

// charSpans returns the changed byte ranges of a replaced line pair.
func charSpans(d *dmp.DiffMatchPatch, before, after string) (olds, news []Span) {
	diffs := d.DiffMain(before, after, false)
	diffs = d.DiffCleanupSemantic(diffs)
	oi, ni := 0, 0
	for _, df := range diffs {
		n := len(df.Text)
		switch df.Type {
		case dmp.DiffDelete:
			olds = append(olds, Span{Start: oi, End: oi + n})
			oi += n
		case dmp.DiffInsert:
			news = append(news, Span{Start: ni, End: ni + n})
			ni += n
		case dmp.DiffEqual:
			oi += n
			ni += n
		}
	}
	return olds, news
}

func wholeLine(s string) []Span {
	if s == "" {
		return nil
	}
	return []Span{{Start: 0, End: len(s)}}
}

func splitLines(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(strings.TrimSuffix(s, "\n"), "\n")
}
