package markup

import (
	"regexp"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"
)

// BulletMarker replaces bare list bullets.
const BulletMarker = "🔹"

// Code fences are swapped for private-use placeholders so that no later pass
// can touch their content.
const (
	placeholderOpen  = "\uE000"
	placeholderClose = "\uE001"
)

var (
	fenceRe     = regexp.MustCompile("(?s)```(?:([\\w+#.-]+)[ \\t]*\\n|[ \\t]*\\n?)(.*?)```")
	listRe      = regexp.MustCompile(`^(\s*)([*-]|\d+\.)\s+(.*)$`)
	headingRe   = regexp.MustCompile(`^#{1,6}\s+(.*)$`)
	blankRunsRe = regexp.MustCompile(`\n(?:[ \t]*\n){2,}`)
)

// annotation pairs an emoji with the lower-case keywords that trigger it.
type annotation struct {
	emoji    string
	keywords []string
}

// annotations are checked in order; the first match wins.
var annotations = []annotation{
	{"❌", []string{"ошибка", "error"}},
	{"⚠️", []string{"важно", "important"}},
	{"💡", []string{"совет", "tip", "рекомендация"}},
	{"✅", []string{"успешно", "success", "готово"}},
	{"❓", []string{"вопрос", "question"}},
}

// newsPrefixes mark a short line as a news item.
var newsPrefixes = []string{"новост", "news"}

// Renderer converts plain model output into a Dialect.
type Renderer struct {
	d Dialect
}

// NewRenderer returns a renderer for d.
func NewRenderer(d Dialect) *Renderer {
	return &Renderer{d: d}
}

// Dialect returns the dialect this renderer targets.
func (r *Renderer) Dialect() Dialect { return r.d }

// Render formats text. Blank input renders to "", which callers must not send.
func (r *Renderer) Render(text string) string {
	text = strings.TrimSpace(strings.ReplaceAll(text, "\r\n", "\n"))
	if text == "" {
		return ""
	}

	var blocks []string
	text = fenceRe.ReplaceAllStringFunc(text, func(m string) string {
		sub := fenceRe.FindStringSubmatch(m)
		code := strings.Trim(sub[2], "\n")
		blocks = append(blocks, r.d.CodeBlock(code, sub[1]))
		return placeholderOpen + strconv.Itoa(len(blocks)-1) + placeholderClose
	})

	lines := strings.Split(text, "\n")
	out := make([]string, 0, len(lines)+8)
	inList := false

	lastBlank := func() bool {
		return len(out) == 0 || strings.TrimSpace(out[len(out)-1]) == ""
	}

	for i, line := range lines {
		stripped := strings.TrimSpace(line)
		prevBlank := i > 0 && strings.TrimSpace(lines[i-1]) == ""

		if header, ok := headerText(stripped, prevBlank); ok {
			if !lastBlank() {
				out = append(out, "")
			}
			out = append(out, r.d.Bold(r.d.Escape(header)))
			inList = false
			continue
		}

		if m := listRe.FindStringSubmatch(line); m != nil {
			if !inList && !lastBlank() {
				out = append(out, "")
			}
			inList = true
			marker := BulletMarker
			if m[2] != "*" && m[2] != "-" {
				marker = r.d.Code(m[2])
			}
			out = append(out, m[1]+marker+" "+r.inline(m[3]))
			continue
		}

		inList = false
		formatted := r.inline(line)
		if emoji := annotate(stripped); emoji != "" {
			formatted = emoji + " " + formatted
		}
		out = append(out, formatted)
	}

	result := blankRunsRe.ReplaceAllString(strings.Join(out, "\n"), "\n\n")

	if len(blocks) > 0 {
		pairs := make([]string, 0, len(blocks)*2)
		for i, block := range blocks {
			pairs = append(pairs, placeholderOpen+strconv.Itoa(i)+placeholderClose, block)
		}
		result = strings.NewReplacer(pairs...).Replace(result)
	}

	return strings.TrimSpace(result)
}

// headerText reports whether a trimmed line is a header and returns its text.
func headerText(stripped string, prevBlank bool) (string, bool) {
	if stripped == "" {
		return "", false
	}
	if m := headingRe.FindStringSubmatch(stripped); m != nil {
		return stripEmphasis(m[1]), true
	}
	n := utf8.RuneCountInString(stripped)
	if strings.HasSuffix(stripped, ":") && n < 100 {
		return stripEmphasis(stripped), true
	}
	if prevBlank && n > 3 && n < 50 && isUpper(stripped) {
		return stripEmphasis(stripped), true
	}
	return "", false
}

// stripEmphasis removes paired bold markers; the header itself is bold.
func stripEmphasis(s string) string {
	if strings.Count(s, "**") >= 2 {
		return strings.ReplaceAll(s, "**", "")
	}
	return s
}

// isUpper reports whether s has cased letters and all of them are upper case.
func isUpper(s string) bool {
	cased := false
	for _, r := range s {
		if unicode.IsLower(r) {
			return false
		}
		if unicode.IsUpper(r) {
			cased = true
		}
	}
	return cased
}

func annotate(stripped string) string {
	if stripped == "" {
		return ""
	}
	lower := strings.ToLower(stripped)
	for _, a := range annotations {
		for _, kw := range a.keywords {
			if strings.Contains(lower, kw) {
				return a.emoji
			}
		}
	}
	if utf8.RuneCountInString(stripped) < 50 {
		for _, p := range newsPrefixes {
			if strings.HasPrefix(lower, p) {
				return "📰"
			}
		}
	}
	return ""
}

// inline converts **bold**, *italic* and `code` spans and escapes the rest.
func (r *Renderer) inline(s string) string {
	var b strings.Builder
	b.Grow(len(s) + len(s)/4)

	lit := 0
	flush := func(end int) {
		if end > lit {
			b.WriteString(r.d.Escape(s[lit:end]))
		}
	}

	for i := 0; i < len(s); {
		switch {
		case strings.HasPrefix(s[i:], "**"):
			if j := strings.Index(s[i+2:], "**"); j > 0 {
				flush(i)
				b.WriteString(r.d.Bold(r.d.Escape(s[i+2 : i+2+j])))
				i += j + 4
				lit = i
				continue
			}
		case s[i] == '*':
			if j := strings.IndexByte(s[i+1:], '*'); j > 0 {
				content := s[i+1 : i+1+j]
				if !startsOrEndsWithSpace(content) {
					flush(i)
					b.WriteString(r.d.Italic(r.d.Escape(content)))
					i += j + 2
					lit = i
					continue
				}
			}
		case s[i] == '`':
			if j := strings.IndexByte(s[i+1:], '`'); j > 0 {
				flush(i)
				b.WriteString(r.d.Code(s[i+1 : i+1+j]))
				i += j + 2
				lit = i
				continue
			}
		}
		i++
	}
	flush(len(s))
	return b.String()
}

func startsOrEndsWithSpace(s string) bool {
	first, _ := utf8.DecodeRuneInString(s)
	last, _ := utf8.DecodeLastRuneInString(s)
	return unicode.IsSpace(first) || unicode.IsSpace(last)
}
