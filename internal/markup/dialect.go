// Package markup renders plain model output into the transport's rich-text
// dialects and strips that markup again for plain-text and speech fallbacks.
package markup

import (
	"fmt"
	"html"
	"regexp"
	"strings"

	"github.com/go-telegram/bot/models"
)

// Dialect is one escaping and formatting rule set understood by the transport.
// Bold and Italic take text that is already escaped; Code and CodeBlock take
// raw text and escape it for a literal context themselves.
type Dialect interface {
	Name() string
	ParseMode() models.ParseMode
	Escape(s string) string
	Bold(s string) string
	Italic(s string) string
	Code(s string) string
	CodeBlock(code, lang string) string
	// Strip removes markup produced by this dialect, returning visible text.
	Strip(s string) string
}

// BlockDialect is implemented by dialects whose code blocks span lines. A
// splitter uses it to close a block at a cut and reopen it in the next part,
// so every part parses on its own.
type BlockDialect interface {
	Dialect
	// BlockState returns the opening markup of the block still open after
	// line, given the one open before it, or "" when no block is open.
	BlockState(open, line string) string
	// CloseBlock returns the markup that ends a block opened with open.
	CloseBlock(open string) string
	// ReopenBlock returns the markup that continues a block opened with open.
	ReopenBlock(open string) string
}

// Dialect names accepted in configuration.
const (
	NameMarkdownV2 = "markdownv2"
	NameHTML       = "html"
)

// ForName returns the dialect registered under name.
func ForName(name string) (Dialect, error) {
	switch strings.ToLower(name) {
	case NameMarkdownV2:
		return MarkdownV2{}, nil
	case NameHTML:
		return HTML{}, nil
	default:
		return nil, fmt.Errorf("unknown markup dialect %q", name)
	}
}

// MarkdownV2 is the backslash-escaped dialect.
type MarkdownV2 struct{}

var (
	mdEscaper     = strings.NewReplacer(mdReplacements("\\_*[]()~`>#+-=|{}.!")...)
	mdCodeEscaper = strings.NewReplacer(`\`, `\\`, "`", "\\`")
)

func mdReplacements(chars string) []string {
	pairs := make([]string, 0, len(chars)*2)
	for _, c := range chars {
		pairs = append(pairs, string(c), `\`+string(c))
	}
	return pairs
}

func (MarkdownV2) Name() string                { return NameMarkdownV2 }
func (MarkdownV2) ParseMode() models.ParseMode { return models.ParseModeMarkdown }
func (MarkdownV2) Escape(s string) string      { return mdEscaper.Replace(s) }
func (MarkdownV2) Bold(s string) string        { return "*" + s + "*" }
func (MarkdownV2) Italic(s string) string      { return "_" + s + "_" }
func (MarkdownV2) Code(s string) string        { return "`" + mdCodeEscaper.Replace(s) + "`" }

func (MarkdownV2) CodeBlock(code, lang string) string {
	return "```" + lang + "\n" + mdCodeEscaper.Replace(code) + "\n```"
}

// BlockState tracks ``` fences. The language tag stays part of the opener.
func (MarkdownV2) BlockState(open, line string) string {
	for i := 0; i < len(line); i++ {
		switch {
		case line[i] == '\\':
			i++
		case strings.HasPrefix(line[i:], "```"):
			if open != "" {
				open = ""
				i += 2
				continue
			}
			opener := line[i:]
			if j := strings.IndexByte(opener, '\n'); j >= 0 {
				opener = opener[:j]
			}
			return opener
		}
	}
	return open
}

func (MarkdownV2) CloseBlock(string) string       { return "\n```" }
func (MarkdownV2) ReopenBlock(open string) string { return open + "\n" }

// Strip undoes escapes and drops formatting markers outside code spans.
func (MarkdownV2) Strip(s string) string {
	const (
		normal = iota
		inline
		pre
	)

	rs := []rune(s)
	var b strings.Builder
	b.Grow(len(s))
	state := normal

	for i := 0; i < len(rs); {
		r := rs[i]
		if r == '\\' && i+1 < len(rs) {
			b.WriteRune(rs[i+1])
			i += 2
			continue
		}
		fence := r == '`' && i+2 < len(rs) && rs[i+1] == '`' && rs[i+2] == '`'

		switch state {
		case normal:
			switch {
			case fence:
				state = pre
				i += 3
				for i < len(rs) && rs[i] != '\n' {
					i++
				}
				i++ // newline after the language tag
			case r == '`':
				state = inline
				i++
			case r == '*' || r == '_' || r == '~' || r == '|':
				i++
			default:
				b.WriteRune(r)
				i++
			}
		case inline:
			if r == '`' {
				state = normal
			} else {
				b.WriteRune(r)
			}
			i++
		case pre:
			if fence {
				out := strings.TrimSuffix(b.String(), "\n")
				b.Reset()
				b.WriteString(out)
				state = normal
				i += 3
				continue
			}
			b.WriteRune(r)
			i++
		}
	}
	return b.String()
}

// HTML is the angle-bracket tag dialect.
type HTML struct{}

var (
	htmlEscaper = strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;")
	htmlTagRe   = regexp.MustCompile(`<[^>]*>`)
	htmlPreRe   = regexp.MustCompile(`<pre>(?:<code[^>]*>)?`)
)

func (HTML) Name() string                { return NameHTML }
func (HTML) ParseMode() models.ParseMode { return models.ParseModeHTML }
func (HTML) Escape(s string) string      { return htmlEscaper.Replace(s) }
func (HTML) Bold(s string) string        { return "<b>" + s + "</b>" }
func (HTML) Italic(s string) string      { return "<i>" + s + "</i>" }
func (HTML) Code(s string) string        { return "<code>" + htmlEscaper.Replace(s) + "</code>" }

func (HTML) CodeBlock(code, lang string) string {
	if lang == "" {
		return "<pre><code>" + htmlEscaper.Replace(code) + "</code></pre>"
	}
	return `<pre><code class="language-` + htmlEscaper.Replace(strings.ToLower(lang)) + `">` +
		htmlEscaper.Replace(code) + "</code></pre>"
}

func (HTML) BlockState(open, line string) string {
	for line != "" {
		if open != "" {
			i := strings.Index(line, "</pre>")
			if i < 0 {
				return open
			}
			open = ""
			line = line[i+len("</pre>"):]
			continue
		}
		loc := htmlPreRe.FindStringIndex(line)
		if loc == nil {
			return ""
		}
		open = line[loc[0]:loc[1]]
		line = line[loc[1]:]
	}
	return open
}

func (HTML) CloseBlock(open string) string {
	if strings.Contains(open, "<code") {
		return "</code></pre>"
	}
	return "</pre>"
}

func (HTML) ReopenBlock(open string) string { return open }

func (HTML) Strip(s string) string {
	return html.UnescapeString(htmlTagRe.ReplaceAllString(s, ""))
}
