// Package translate translates text with the public Google Translate
// endpoint and falls back to a secondary translator when it fails.
package translate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/edgard/assistbot/internal/config"
	"github.com/edgard/assistbot/internal/httpkit"
	"github.com/edgard/assistbot/internal/resilience"
	"github.com/edgard/assistbot/internal/result"
)

// Translator translates text into the language with the given code.
type Translator interface {
	Translate(ctx context.Context, text, targetLang string) result.Result[string]
}

// GoogleClient calls the translate_a/single endpoint.
type GoogleClient struct {
	http    *http.Client
	baseURL string
	log     *slog.Logger
}

// NewGoogleClient creates the primary translator.
func NewGoogleClient(cfg config.TranslateConfig, log *slog.Logger) *GoogleClient {
	log = log.With("component", "translate")
	return &GoogleClient{
		http: httpkit.NewClient(
			httpkit.WithTimeout(cfg.Timeout),
			httpkit.WithRetry(2, 500*time.Millisecond),
			httpkit.WithBreaker(resilience.New(resilience.Config{Name: "google_translate", Logger: log})),
			httpkit.WithLogger(log),
		),
		baseURL: cfg.BaseURL,
		log:     log,
	}
}

// Translate implements Translator.
func (c *GoogleClient) Translate(ctx context.Context, text, targetLang string) result.Result[string] {
	if strings.TrimSpace(text) == "" {
		return result.Empty[string]()
	}

	u, err := url.Parse(c.baseURL)
	if err != nil {
		return result.Failed[string](fmt.Errorf("invalid translate base URL: %w", err))
	}
	q := url.Values{}
	q.Set("client", "gtx")
	q.Set("sl", "auto")
	q.Set("tl", targetLang)
	q.Set("dt", "t")
	q.Set("q", text)
	u.RawQuery = q.Encode()

	body, err := httpkit.Get(ctx, c.http, u.String(), 1<<20)
	if err != nil {
		c.log.WarnContext(ctx, "Translation request failed", "target", targetLang, "error", err)
		return result.Failed[string](err)
	}

	translated, err := parseResponse(body)
	if err != nil {
		c.log.WarnContext(ctx, "Failed to parse translation response", "error", err)
		return result.Failed[string](err)
	}
	c.log.InfoContext(ctx, "Translation successful", "target", targetLang, "length", len(translated))
	return result.FromText(translated, nil)
}

// parseResponse extracts the translated sentences from the nested array the
// endpoint returns: [[["translated","original",...],...],...].
func parseResponse(body []byte) (string, error) {
	var raw []json.RawMessage
	if err := json.Unmarshal(body, &raw); err != nil {
		return "", fmt.Errorf("unexpected response shape: %w", err)
	}
	if len(raw) == 0 {
		return "", errors.New("empty response")
	}

	var sentences [][]any
	if err := json.Unmarshal(raw[0], &sentences); err != nil {
		return "", fmt.Errorf("unexpected sentence list: %w", err)
	}

	var sb strings.Builder
	for _, s := range sentences {
		if len(s) == 0 {
			continue
		}
		if part, ok := s[0].(string); ok {
			sb.WriteString(part)
		}
	}
	return sb.String(), nil
}

// Fallback tries Primary and then Secondary.
type Fallback struct {
	Primary   Translator
	Secondary Translator
	Log       *slog.Logger
}

// Translate implements Translator.
func (f *Fallback) Translate(ctx context.Context, text, targetLang string) result.Result[string] {
	res := f.Primary.Translate(ctx, text, targetLang)
	if res.OK() || f.Secondary == nil {
		return res
	}
	if f.Log != nil {
		f.Log.WarnContext(ctx, "Primary translator failed, trying fallback", "target", targetLang, "result", res.Kind().String())
	}
	return f.Secondary.Translate(ctx, text, targetLang)
}

// languages maps lower-case names in Russian and English to codes.
var languages = map[string]string{
	"английский": "en", "english": "en",
	"русский": "ru", "russian": "ru",
	"немецкий": "de", "german": "de",
	"французский": "fr", "french": "fr",
	"испанский": "es", "spanish": "es",
	"итальянский": "it", "italian": "it",
	"португальский": "pt", "portuguese": "pt",
	"китайский": "zh-CN", "chinese": "zh-CN",
	"японский": "ja", "japanese": "ja",
	"корейский": "ko", "korean": "ko",
	"украинский": "uk", "ukrainian": "uk",
	"белорусский": "be", "belarusian": "be",
	"польский": "pl", "polish": "pl",
	"турецкий": "tr", "turkish": "tr",
	"арабский": "ar", "arabic": "ar",
	"казахский": "kk", "kazakh": "kk",
	"грузинский": "ka", "georgian": "ka",
	"армянский": "hy", "armenian": "hy",
	"чешский": "cs", "czech": "cs",
	"нидерландский": "nl", "голландский": "nl", "dutch": "nl",
	"греческий": "el", "greek": "el",
	"иврит": "he", "hebrew": "he",
	"хинди": "hi", "hindi": "hi",
	"финский": "fi", "finnish": "fi",
	"шведский": "sv", "swedish": "sv",
}

// LangCode resolves a language name or code. The second result is false for
// anything it does not know.
func LangCode(nameOrCode string) (string, bool) {
	key := strings.ToLower(strings.TrimSpace(nameOrCode))
	if code, ok := languages[key]; ok {
		return code, true
	}
	for _, code := range languages {
		if strings.EqualFold(code, key) {
			return code, true
		}
	}
	return "", false
}
