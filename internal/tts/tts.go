// Package tts synthesizes speech with the Google Translate TTS endpoint.
package tts

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/edgard/assistbot/internal/config"
	"github.com/edgard/assistbot/internal/httpkit"
	"github.com/edgard/assistbot/internal/resilience"
	"github.com/edgard/assistbot/internal/result"
	"github.com/edgard/assistbot/internal/scratch"
)

// maxAudioChunk bounds the size of one synthesized fragment.
const maxAudioChunk = 2 << 20

// Client produces MP3 files in a scratch directory. It satisfies
// delivery.Synthesizer.
type Client struct {
	http      *http.Client
	baseURL   string
	lang      string
	chunkSize int
	dir       *scratch.Dir
	log       *slog.Logger
}

// NewClient creates a speech synthesizer.
func NewClient(cfg config.TTSConfig, dir *scratch.Dir, log *slog.Logger) *Client {
	log = log.With("component", "tts")
	chunk := cfg.ChunkSize
	if chunk <= 0 {
		chunk = 200
	}
	return &Client{
		http: httpkit.NewClient(
			httpkit.WithTimeout(cfg.Timeout),
			httpkit.WithRetry(2, 500*time.Millisecond),
			httpkit.WithBreaker(resilience.New(resilience.Config{Name: "tts", Logger: log})),
			httpkit.WithLogger(log),
		),
		baseURL:   cfg.BaseURL,
		lang:      cfg.Language,
		chunkSize: chunk,
		dir:       dir,
		log:       log,
	}
}

// Synthesize returns the path of an MP3 file with text spoken. The caller
// owns the file. On failure nothing is left on disk.
func (c *Client) Synthesize(ctx context.Context, text string) result.Result[string] {
	chunks := Chunks(text, c.chunkSize)
	if len(chunks) == 0 {
		return result.Empty[string]()
	}
	c.log.InfoContext(ctx, "Synthesizing speech", "text_length", len(text), "chunks", len(chunks))

	var audio bytes.Buffer
	for i, chunk := range chunks {
		data, err := c.fetch(ctx, chunk, i, len(chunks))
		if err != nil {
			c.log.ErrorContext(ctx, "Speech synthesis failed", "chunk", i+1, "total", len(chunks), "error", err)
			return result.Failed[string](err)
		}
		audio.Write(data)
	}
	if audio.Len() == 0 {
		return result.Empty[string]()
	}

	f, err := c.dir.Write("tts", ".mp3", &audio)
	if err != nil {
		return result.Failed[string](err)
	}
	c.log.DebugContext(ctx, "Speech synthesized", "path", f.Path())
	return result.Success(f.Path())
}

func (c *Client) fetch(ctx context.Context, chunk string, idx, total int) ([]byte, error) {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid tts base URL: %w", err)
	}
	q := url.Values{}
	q.Set("ie", "UTF-8")
	q.Set("client", "tw-ob")
	q.Set("tl", c.lang)
	q.Set("q", chunk)
	q.Set("idx", strconv.Itoa(idx))
	q.Set("total", strconv.Itoa(total))
	q.Set("textlen", strconv.Itoa(len([]rune(chunk))))
	u.RawQuery = q.Encode()

	data, err := httpkit.Get(ctx, c.http, u.String(), maxAudioChunk)
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("empty audio for chunk %d", idx+1)
	}
	return data, nil
}

// Chunks splits text into pieces of at most size runes, preferring sentence
// ends and then word boundaries.
func Chunks(text string, size int) []string {
	text = strings.Join(strings.Fields(text), " ")
	if text == "" {
		return nil
	}

	var out []string
	rs := []rune(text)
	for len(rs) > 0 {
		if len(rs) <= size {
			out = append(out, string(rs))
			break
		}
		cut := lastIndexFunc(rs[:size], func(r rune) bool { return strings.ContainsRune(".!?;:…", r) })
		if cut < size/3 {
			cut = lastIndexFunc(rs[:size], unicode.IsSpace)
		}
		if cut <= 0 {
			cut = size - 1
		}
		piece := strings.TrimSpace(string(rs[:cut+1]))
		if piece != "" {
			out = append(out, piece)
		}
		rs = []rune(strings.TrimLeftFunc(string(rs[cut+1:]), unicode.IsSpace))
	}
	return out
}

func lastIndexFunc(rs []rune, f func(rune) bool) int {
	for i := len(rs) - 1; i >= 0; i-- {
		if f(rs[i]) {
			return i
		}
	}
	return -1
}
