package delivery

import (
	"strings"
	"unicode"
	"unicode/utf16"

	"github.com/edgard/assistbot/internal/markup"
)

// TextLength measures s the way the transport does, in UTF-16 code units.
func TextLength(s string) int {
	n := 0
	for _, r := range s {
		n += utf16.RuneLen(r)
	}
	return n
}

// Split cuts plain text into segments of at most limit UTF-16 units.
func Split(text string, limit int) []string {
	return SplitMarkup(text, limit, nil)
}

// SplitMarkup cuts text rendered in d into segments of at most limit UTF-16
// units. It breaks at line boundaries and slices a single over-long line only
// as a last resort, never inside an escape sequence, an HTML entity or a tag.
// A code block cut in two is closed at the end of one segment and reopened at
// the start of the next. Whitespace-only segments are dropped.
func SplitMarkup(text string, limit int, d markup.Dialect) []string {
	if limit <= 0 {
		limit = MaxMessageLength
	}
	if TextLength(text) <= limit {
		if strings.TrimSpace(text) == "" {
			return nil
		}
		return []string{text}
	}

	blocks, _ := d.(markup.BlockDialect)
	var (
		segments []string
		cur      strings.Builder
		curLen   int
		hasBody  bool
		open     string
	)
	closeLen := func(state string) int {
		if blocks == nil || state == "" {
			return 0
		}
		return TextLength(blocks.CloseBlock(state))
	}
	scan := func(state, s string) string {
		if blocks == nil {
			return ""
		}
		return blocks.BlockState(state, s)
	}
	write := func(s string) {
		cur.WriteString(s)
		curLen += TextLength(s)
		hasBody = true
		open = scan(open, s)
	}
	flush := func() {
		if hasBody {
			seg := strings.TrimRight(cur.String(), "\n")
			if open != "" {
				seg += blocks.CloseBlock(open)
			}
			if strings.TrimSpace(seg) != "" {
				segments = append(segments, seg)
			}
		}
		cur.Reset()
		curLen, hasBody = 0, false
		if open != "" {
			prefix := blocks.ReopenBlock(open)
			cur.WriteString(prefix)
			curLen = TextLength(prefix)
		}
	}
	fits := func(line string) bool {
		return curLen+TextLength(line)+closeLen(scan(open, line)) <= limit
	}

	for _, line := range strings.SplitAfter(text, "\n") {
		if fits(line) {
			write(line)
			continue
		}
		flush()
		if fits(line) {
			write(line)
			continue
		}
		budget := limit - curLen - max(closeLen(open), closeLen(scan(open, line)))
		for _, p := range hardSplit(line, max(budget, 1)) {
			if hasBody {
				flush()
			}
			write(p)
		}
	}
	flush()
	return segments
}

// hardSplit slices a single line into pieces that fit limit.
func hardSplit(line string, limit int) []string {
	rs := []rune(line)
	var pieces []string
	for len(rs) > 0 {
		cut, units := 0, 0
		for cut < len(rs) {
			w := utf16.RuneLen(rs[cut])
			if units+w > limit {
				break
			}
			units += w
			cut++
		}
		if cut == 0 {
			cut = 1
		} else if cut < len(rs) {
			cut = adjustCut(rs[:cut])
		}
		pieces = append(pieces, string(rs[:cut]))
		rs = rs[cut:]
	}
	return pieces
}

// adjustCut moves the cut point of piece back to a safer boundary.
func adjustCut(piece []rune) int {
	cut := len(piece)
	half := cut / 2

	// Prefer a word boundary in the second half of the piece.
	for i := cut - 1; i > half; i-- {
		if unicode.IsSpace(piece[i]) {
			cut = i + 1
			break
		}
	}

	// Do not open an entity or a tag that would be closed in the next piece.
	for _, pair := range [][2]rune{{'&', ';'}, {'<', '>'}} {
		for i := cut - 1; i >= 0 && cut-i <= 64; i-- {
			if piece[i] == pair[1] {
				break
			}
			if piece[i] == pair[0] {
				if i > 0 {
					cut = i
				}
				break
			}
		}
	}

	// An odd run of trailing backslashes would escape the next piece's first rune.
	slashes := 0
	for i := cut - 1; i >= 0 && piece[i] == '\\'; i-- {
		slashes++
	}
	if slashes%2 == 1 && cut > 1 {
		cut--
	}

	if cut <= 0 {
		cut = len(piece)
	}
	return cut
}
