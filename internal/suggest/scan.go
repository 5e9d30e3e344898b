package suggest

// codeMask marks the bytes of s that are code, i.e. not inside a string,
// char or raw-string literal and not inside a comment. Literal delimiters and
// comment markers are not code. Unterminated quoted literals end at newline.
func codeMask(s string) []bool {
	mask := make([]bool, len(s))
	var quote byte
	lineComment, blockComment, escaped := false, false, false
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case lineComment:
			if c == '\n' {
				lineComment = false
				mask[i] = true
			}
		case blockComment:
			if c == '*' && i+1 < len(s) && s[i+1] == '/' {
				blockComment = false
				i++
			}
		case quote != 0:
			switch {
			case escaped:
				escaped = false
			case c == '\\' && quote != '`':
				escaped = true
			case c == quote:
				quote = 0
			case c == '\n' && quote != '`':
				quote = 0
				mask[i] = true
			}
		default:
			switch {
			case c == '/' && i+1 < len(s) && s[i+1] == '/':
				lineComment = true
				i++
			case c == '/' && i+1 < len(s) && s[i+1] == '*':
				blockComment = true
				i++
			case c == '"' || c == '\'' || c == '`':
				quote = c
			default:
				mask[i] = true
			}
		}
	}
	return mask
}

// braceCounts returns the number of code '{' and '}' in s.
func braceCounts(s string) (opens, closes int) {
	mask := codeMask(s)
	for i := 0; i < len(s); i++ {
		if !mask[i] {
			continue
		}
		switch s[i] {
		case '{':
			opens++
		case '}':
			closes++
		}
	}
	return opens, closes
}

// indexCode returns the first code occurrence of c at or after from, or -1.
func indexCode(s string, mask []bool, from int, c byte) int {
	for i := from; i < len(s); i++ {
		if mask[i] && s[i] == c {
			return i
		}
	}
	return -1
}

// matchBrace returns the index of the '}' closing the '{' at open, or -1.
func matchBrace(s string, mask []bool, open int) int {
	depth := 0
	for i := open; i < len(s); i++ {
		if !mask[i] {
			continue
		}
		switch s[i] {
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}

// topLevelSemicolon returns the first ';' in s[from:to] that sits outside any
// bracket pair opened within that range, or -1. Closers without an opener in
// range keep the depth at zero, so "b);" still counts as top level.
func topLevelSemicolon(s string, mask []bool, from, to int) int {
	depth := 0
	for i := from; i < to && i < len(s); i++ {
		if !mask[i] {
			continue
		}
		switch s[i] {
		case '(', '[', '{':
			depth++
		case ')', ']', '}':
			if depth > 0 {
				depth--
			}
		case ';':
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}
