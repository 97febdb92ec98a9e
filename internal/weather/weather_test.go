package weather_test

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/edgard/assistbot/internal/config"
	"github.com/edgard/assistbot/internal/logger"
	"github.com/edgard/assistbot/internal/markup"
	"github.com/edgard/assistbot/internal/weather"
)

const minskJSON = `{"name":"Минск","main":{"temp":3.46,"feels_like":-1.2,"humidity":81},"weather":[{"description":"пасмурно"}],"wind":{"speed":5.5}}`

func newClient(t *testing.T, handler http.HandlerFunc, key string) *weather.Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return weather.NewClient(config.WeatherConfig{
		APIKey:  key,
		BaseURL: srv.URL + "/data/2.5/weather",
		Timeout: time.Second,
	}, logger.Discard())
}

func TestLookup_Success(t *testing.T) {
	t.Parallel()

	c := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("q") != "Минск" || r.URL.Query().Get("units") != "metric" {
			t.Errorf("unexpected query %s", r.URL.RawQuery)
		}
		fmt.Fprint(w, minskJSON)
	}, "key")

	res := c.Lookup(context.Background(), "Минск")
	rep, ok := res.Value()
	if !ok {
		t.Fatalf("Lookup() = %v, want success", res)
	}
	if rep.IsError() {
		t.Fatalf("report flagged as error: %+v", rep)
	}

	got := rep.Format(markup.HTML{})
	for _, want := range []string{"<b>Погода в городе Минск</b>", "<code>3.5</code>", "Пасмурно", "<code>81</code>", "<code>5.5</code>"} {
		if !strings.Contains(got, want) {
			t.Errorf("Format() = %q, missing %q", got, want)
		}
	}

	md := rep.Format(markup.MarkdownV2{})
	if !strings.Contains(md, "\\(ощущается как ") || !strings.Contains(md, "`-1.2`") {
		t.Errorf("Format(MarkdownV2) = %q, want escaped parentheses and code spans", md)
	}
}

func TestLookup_Problems(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		status int
		key    string
		want   string
	}{
		{"not found", http.StatusNotFound, "key", "не найден"},
		{"unauthorized", http.StatusUnauthorized, "key", "Ошибка авторизации"},
		{"rate limited", http.StatusTooManyRequests, "key", "Превышен лимит"},
		{"server error", http.StatusBadGateway, "key", "Статус: 502"},
		{"no key", http.StatusOK, "", "Сервис погоды недоступен"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			c := newClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				fmt.Fprint(w, `{"cod":"x"}`)
			}, tt.key)

			rep, ok := c.Lookup(context.Background(), "Нигде").Value()
			if !ok {
				t.Fatal("Lookup() must report provider problems as a report, not a failure")
			}
			if !rep.IsError() {
				t.Errorf("IsError() = false for %+v", rep)
			}
			if got := rep.Format(markup.HTML{}); !strings.Contains(got, tt.want) {
				t.Errorf("Format() = %q, want it to contain %q", got, tt.want)
			}
		})
	}
}

func TestLookup_Timeout(t *testing.T) {
	t.Parallel()

	c := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(3 * time.Second):
		}
	}, "key")

	rep, ok := c.Lookup(context.Background(), "Минск").Value()
	if !ok || !rep.IsError() {
		t.Fatalf("Lookup() = %+v, want problem report", rep)
	}
}

func TestReport_IsError(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		rep  weather.Report
		want bool
	}{
		{"conditions", weather.Report{City: "Минск", Description: "ясно", Temp: 12}, false},
		{"problem flag", weather.Report{Problem: true, Message: "Сервис временно перегружен."}, true},
		{"failure wording in conditions", weather.Report{City: "Минск", Description: "ошибка датчика"}, true},
		{"provider echoes not found", weather.Report{City: "City not found"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := tt.rep.IsError(); got != tt.want {
				t.Errorf("IsError() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestLooksLikeError(t *testing.T) {
	t.Parallel()

	tests := []struct {
		text string
		want bool
	}{
		{"Город 'X' не найден.", true},
		{"ОШИБКА сети", true},
		{"City not found", true},
		{"☀️ Погода в городе Минск", false},
		{"", false},
	}
	for _, tt := range tests {
		if got := weather.LooksLikeError(tt.text); got != tt.want {
			t.Errorf("LooksLikeError(%q) = %v, want %v", tt.text, got, tt.want)
		}
	}
}
