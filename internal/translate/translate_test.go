package translate_test

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/edgard/assistbot/internal/config"
	"github.com/edgard/assistbot/internal/logger"
	"github.com/edgard/assistbot/internal/result"
	"github.com/edgard/assistbot/internal/translate"
)

func TestGoogleClient_Translate(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("tl") != "en" {
			t.Errorf("tl = %q, want en", r.URL.Query().Get("tl"))
		}
		fmt.Fprint(w, `[[["Hello. ","Привет. ",null,null,10],["How are you?","Как дела?",null,null,10]],null,"ru"]`)
	}))
	defer srv.Close()

	c := translate.NewGoogleClient(config.TranslateConfig{BaseURL: srv.URL, Timeout: time.Second}, logger.Discard())
	got, ok := c.Translate(context.Background(), "Привет. Как дела?", "en").Value()
	if !ok || got != "Hello. How are you?" {
		t.Errorf("Translate() = %q, %v, want %q", got, ok, "Hello. How are you?")
	}
}

func TestGoogleClient_Failures(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("tl") == "xx" {
			http.Error(w, "bad", http.StatusBadRequest)
			return
		}
		fmt.Fprint(w, `{"not":"an array"}`)
	}))
	defer srv.Close()

	c := translate.NewGoogleClient(config.TranslateConfig{BaseURL: srv.URL, Timeout: time.Second}, logger.Discard())
	if res := c.Translate(context.Background(), "x", "xx"); !res.IsFailed() {
		t.Errorf("Translate(status 400) = %v, want failure", res)
	}
	if res := c.Translate(context.Background(), "x", "en"); !res.IsFailed() {
		t.Errorf("Translate(bad json) = %v, want failure", res)
	}
	if res := c.Translate(context.Background(), "  ", "en"); !res.IsEmpty() {
		t.Errorf("Translate(blank) = %v, want empty", res)
	}
}

type stubTranslator struct {
	res   result.Result[string]
	calls int
}

func (s *stubTranslator) Translate(context.Context, string, string) result.Result[string] {
	s.calls++
	return s.res
}

func TestFallback(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name          string
		primary       result.Result[string]
		secondary     result.Result[string]
		want          string
		secondaryUsed bool
	}{
		{"primary ok", result.Success("a"), result.Success("b"), "a", false},
		{"primary failed", result.Failed[string](errors.New("down")), result.Success("b"), "b", true},
		{"primary empty", result.Empty[string](), result.Success("b"), "b", true},
		{"both failed", result.Failed[string](errors.New("down")), result.Failed[string](errors.New("down")), "", true},
	}
	for _, tt := range tests {
		p := &stubTranslator{res: tt.primary}
		s := &stubTranslator{res: tt.secondary}
		f := &translate.Fallback{Primary: p, Secondary: s, Log: logger.Discard()}

		got := f.Translate(context.Background(), "text", "en").ValueOr("")
		if got != tt.want {
			t.Errorf("%s: Translate() = %q, want %q", tt.name, got, tt.want)
		}
		if (s.calls > 0) != tt.secondaryUsed {
			t.Errorf("%s: secondary calls = %d", tt.name, s.calls)
		}
	}
}

func TestLangCode(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want string
		ok   bool
	}{
		{"английский", "en", true},
		{"English", "en", true},
		{"de", "de", true},
		{"ZH-cn", "zh-CN", true},
		{"клингонский", "", false},
	}
	for _, tt := range tests {
		got, ok := translate.LangCode(tt.in)
		if got != tt.want || ok != tt.ok {
			t.Errorf("LangCode(%q) = %q, %v, want %q, %v", tt.in, got, ok, tt.want, tt.ok)
		}
	}
}
