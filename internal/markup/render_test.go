package markup_test

import (
	"strings"
	"testing"

	"github.com/edgard/assistbot/internal/markup"
)

func TestRender_Structure(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		dialect markup.Dialect
		input   string
		want    string
	}{
		{
			name:    "empty input",
			dialect: markup.HTML{},
			input:   " \n\t ",
			want:    "",
		},
		{
			name:    "inline emphasis html",
			dialect: markup.HTML{},
			input:   "**bold** and *it* and `a<b`",
			want:    "<b>bold</b> and <i>it</i> and <code>a&lt;b</code>",
		},
		{
			name:    "inline emphasis markdown",
			dialect: markup.MarkdownV2{},
			input:   "**bold.** and *it!*",
			want:    "*bold\\.* and _it\\!_",
		},
		{
			name:    "arithmetic is not italic",
			dialect: markup.HTML{},
			input:   "2 * 3 * 4",
			want:    "2 * 3 * 4",
		},
		{
			name:    "header gets separated",
			dialect: markup.HTML{},
			input:   "Text here\nSteps:\nDo it",
			want:    "Text here\n\n<b>Steps:</b>\nDo it",
		},
		{
			name:    "all caps header after blank line",
			dialect: markup.HTML{},
			input:   "intro\n\nSECOND PART\nbody",
			want:    "intro\n\n<b>SECOND PART</b>\nbody",
		},
		{
			name:    "markdown heading",
			dialect: markup.MarkdownV2{},
			input:   "## Plan **A**",
			want:    "*Plan A*",
		},
		{
			name:    "lists",
			dialect: markup.MarkdownV2{},
			input:   "Intro\n- one\n- two\n1. three",
			want:    "Intro\n\n🔹 one\n🔹 two\n`1.` three",
		},
		{
			name:    "emoji priority",
			dialect: markup.HTML{},
			input:   "error with a tip",
			want:    "❌ error with a tip",
		},
		{
			name:    "emoji russian keyword",
			dialect: markup.HTML{},
			input:   "Это важно знать",
			want:    "⚠️ Это важно знать",
		},
		{
			name:    "news prefix only when short",
			dialect: markup.HTML{},
			input:   "Новости дня",
			want:    "📰 Новости дня",
		},
		{
			name:    "blank runs collapse",
			dialect: markup.HTML{},
			input:   "a\n\n\n\n\nb",
			want:    "a\n\nb",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := markup.NewRenderer(tt.dialect).Render(tt.input)
			if got != tt.want {
				t.Errorf("Render(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestRender_CodeFenceOpacity(t *testing.T) {
	t.Parallel()

	input := "Run:\n```sh\necho error *hi* _x_ <b>\n```\nafter"

	md := markup.NewRenderer(markup.MarkdownV2{}).Render(input)
	wantMD := "*Run:*\n```sh\necho error *hi* _x_ <b>\n```\nafter"
	if md != wantMD {
		t.Errorf("MarkdownV2 Render() = %q, want %q", md, wantMD)
	}

	html := markup.NewRenderer(markup.HTML{}).Render(input)
	wantBlock := `<pre><code class="language-sh">echo error *hi* _x_ &lt;b&gt;</code></pre>`
	if !strings.Contains(html, wantBlock) {
		t.Errorf("HTML Render() = %q, want block %q", html, wantBlock)
	}
	if strings.Contains(html, "❌") {
		t.Errorf("HTML Render() annotated code content: %q", html)
	}
}

func TestRender_UnterminatedFenceKeepsContent(t *testing.T) {
	t.Parallel()

	input := "```python\nprint(a_b)"
	for _, d := range []markup.Dialect{markup.HTML{}, markup.MarkdownV2{}} {
		got := markup.NewRenderer(d).Render(input)
		if stripped := d.Strip(got); stripped != input {
			t.Errorf("%s: Strip(Render(%q)) = %q", d.Name(), input, stripped)
		}
	}
}

func TestRender_EscapingRoundTrip(t *testing.T) {
	t.Parallel()

	inputs := map[string]markup.Dialect{
		`Price (USD) = 5.00! a_b x~y c|d {k} [l] #1 + 2 > 1 \ end`: markup.MarkdownV2{},
		"first line.\nsecond = (line)!":                            markup.MarkdownV2{},
		`a < b && c > d "quoted" & 'single' &amp;`:                 markup.HTML{},
	}

	for input, d := range inputs {
		rendered := markup.NewRenderer(d).Render(input)
		if got := d.Strip(rendered); got != input {
			t.Errorf("%s: Strip(Render(%q)) = %q (rendered %q)", d.Name(), input, got, rendered)
		}
	}
}

func TestForName(t *testing.T) {
	t.Parallel()

	for _, name := range []string{"markdownv2", "HTML"} {
		if _, err := markup.ForName(name); err != nil {
			t.Errorf("ForName(%q) error = %v", name, err)
		}
	}
	if _, err := markup.ForName("bbcode"); err == nil {
		t.Errorf("ForName(bbcode) error = nil, want error")
	}
}

func TestMarkdownV2_Strip(t *testing.T) {
	t.Parallel()

	d := markup.MarkdownV2{}
	tests := []struct {
		in   string
		want string
	}{
		{`*bold\!* _it_ \_lit\_`, "bold! it _lit_"},
		{"`a*b\\`c`", "a*b`c"},
		{"x\n```go\nfmt.Println(\"*\")\n```\ny", "x\nfmt.Println(\"*\")\ny"},
	}
	for _, tt := range tests {
		if got := d.Strip(tt.in); got != tt.want {
			t.Errorf("Strip(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestBlockState(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		dialect markup.BlockDialect
		open    string
		line    string
		want    string
	}{
		{"md opens with language", markup.MarkdownV2{}, "", "```go\n", "```go"},
		{"md stays open", markup.MarkdownV2{}, "```go", "x := a * b_c\n", "```go"},
		{"md escaped backtick", markup.MarkdownV2{}, "```", "\\`\\`\\`\n", "```"},
		{"md closes", markup.MarkdownV2{}, "```go", "``` done\n", ""},
		{"md plain line", markup.MarkdownV2{}, "", "just \\*text\\*\n", ""},
		{"html opens", markup.HTML{}, "", `<pre><code class="language-go">x := 1` + "\n", `<pre><code class="language-go">`},
		{"html opens and closes", markup.HTML{}, "", "<pre><code>x</code></pre> after\n", ""},
		{"html closes", markup.HTML{}, "<pre><code>", "y</code></pre>\n", ""},
		{"html inline code", markup.HTML{}, "", "<code>x</code>\n", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := tt.dialect.BlockState(tt.open, tt.line); got != tt.want {
				t.Errorf("BlockState(%q, %q) = %q, want %q", tt.open, tt.line, got, tt.want)
			}
		})
	}

	if got := (markup.HTML{}).CloseBlock("<pre>"); got != "</pre>" {
		t.Errorf("CloseBlock(<pre>) = %q", got)
	}
	if got := (markup.MarkdownV2{}).ReopenBlock("```go"); got != "```go\n" {
		t.Errorf("ReopenBlock() = %q", got)
	}
}
