// Package weather looks up current conditions from OpenWeatherMap and formats
// them for the chat.
package weather

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/edgard/assistbot/internal/config"
	"github.com/edgard/assistbot/internal/httpkit"
	"github.com/edgard/assistbot/internal/markup"
	"github.com/edgard/assistbot/internal/resilience"
	"github.com/edgard/assistbot/internal/result"
)

// Service looks up the weather for a city. A lookup that reached the
// provider but could not produce conditions (unknown city, rate limit,
// timeout) is still a Success whose Report has Problem set.
type Service interface {
	Lookup(ctx context.Context, city string) result.Result[Report]
}

// Report is either current conditions or a user-facing problem description.
type Report struct {
	City        string
	Description string
	Temp        float64
	FeelsLike   float64
	Humidity    int
	WindSpeed   float64

	// Problem is set when Message explains why there are no conditions.
	Problem bool
	Message string
}

// failureKeywords mark a weather text as an error message.
var failureKeywords = []string{
	"не найден",
	"ошибка",
	"сервис погоды недоступен",
	"таймаут",
	"invalid",
	"not found",
}

// LooksLikeError reports whether text reads as a weather failure message.
func LooksLikeError(text string) bool {
	lower := strings.ToLower(text)
	for _, kw := range failureKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

// IsError reports whether the report should be delivered as a plain error
// message: the structured flag is set, or the text the user would read
// contains a failure keyword.
func (r Report) IsError() bool {
	if r.Problem {
		return true
	}
	return LooksLikeError(r.plain())
}

// Format renders the report in dialect d. Problem reports are plain text.
func (r Report) Format(d markup.Dialect) string {
	if r.Problem {
		return r.Message
	}
	if d == nil {
		return r.plain()
	}

	var sb strings.Builder
	sb.WriteString("☀️ " + d.Bold(d.Escape("Погода в городе "+r.City)) + d.Escape(":") + "\n\n")
	sb.WriteString("🌡️ Температура: " + d.Code(formatTemp(r.Temp)) + d.Escape("°C (ощущается как ") +
		d.Code(formatTemp(r.FeelsLike)) + d.Escape("°C)") + "\n")
	sb.WriteString("📝 Состояние: " + d.Escape(capitalize(r.Description)) + "\n")
	sb.WriteString("💧 Влажность: " + d.Code(strconv.Itoa(r.Humidity)) + d.Escape("%") + "\n")
	sb.WriteString("💨 Ветер: " + d.Code(formatSpeed(r.WindSpeed)) + d.Escape(" м/с"))
	return sb.String()
}

func (r Report) plain() string {
	return fmt.Sprintf("☀️ Погода в городе %s:\n\n🌡️ Температура: %s°C (ощущается как %s°C)\n📝 Состояние: %s\n💧 Влажность: %d%%\n💨 Ветер: %s м/с",
		r.City, formatTemp(r.Temp), formatTemp(r.FeelsLike), capitalize(r.Description), r.Humidity, formatSpeed(r.WindSpeed))
}

func formatTemp(v float64) string  { return strconv.FormatFloat(v, 'f', 1, 64) }
func formatSpeed(v float64) string { return strconv.FormatFloat(v, 'f', -1, 64) }

var upperRU = cases.Upper(language.Russian)

func capitalize(s string) string {
	if s == "" {
		return "нет данных"
	}
	r, size := utf8.DecodeRuneInString(s)
	return upperRU.String(string(r)) + s[size:]
}

// Client is the OpenWeatherMap implementation of Service.
type Client struct {
	http    *http.Client
	baseURL string
	apiKey  string
	timeout time.Duration
	log     *slog.Logger
}

// NewClient creates an OpenWeatherMap client.
func NewClient(cfg config.WeatherConfig, log *slog.Logger) *Client {
	log = log.With("component", "weather")
	return &Client{
		http: httpkit.NewClient(
			httpkit.WithTimeout(cfg.Timeout),
			httpkit.WithRetry(2, 500*time.Millisecond),
			httpkit.WithBreaker(resilience.New(resilience.Config{Name: "openweathermap", Logger: log})),
			httpkit.WithLogger(log),
		),
		baseURL: cfg.BaseURL,
		apiKey:  cfg.APIKey,
		timeout: cfg.Timeout,
		log:     log,
	}
}

type owmResponse struct {
	Name string `json:"name"`
	Main struct {
		Temp      float64 `json:"temp"`
		FeelsLike float64 `json:"feels_like"`
		Humidity  int     `json:"humidity"`
	} `json:"main"`
	Weather []struct {
		Description string `json:"description"`
	} `json:"weather"`
	Wind struct {
		Speed float64 `json:"speed"`
	} `json:"wind"`
}

func problem(format string, args ...any) result.Result[Report] {
	return result.Success(Report{Problem: true, Message: fmt.Sprintf(format, args...)})
}

// Lookup implements Service.
func (c *Client) Lookup(ctx context.Context, city string) result.Result[Report] {
	if c.apiKey == "" {
		c.log.WarnContext(ctx, "OpenWeatherMap API key is missing")
		return problem("Сервис погоды недоступен (отсутствует API ключ).")
	}

	u, err := url.Parse(c.baseURL)
	if err != nil {
		return result.Failed[Report](fmt.Errorf("invalid weather base URL: %w", err))
	}
	q := u.Query()
	q.Set("q", city)
	q.Set("appid", c.apiKey)
	q.Set("units", "metric")
	q.Set("lang", "ru")
	u.RawQuery = q.Encode()

	c.log.DebugContext(ctx, "Requesting weather", "city", city)
	body, err := httpkit.Get(ctx, c.http, u.String(), 1<<20)
	if err != nil {
		return c.classify(ctx, city, err)
	}

	var data owmResponse
	if err := json.Unmarshal(body, &data); err != nil {
		c.log.ErrorContext(ctx, "Failed to parse weather response", "city", city, "error", err)
		return problem("Ошибка обработки ответа от сервиса погоды для '%s'.", city)
	}

	rep := Report{
		City:      data.Name,
		Temp:      data.Main.Temp,
		FeelsLike: data.Main.FeelsLike,
		Humidity:  data.Main.Humidity,
		WindSpeed: data.Wind.Speed,
	}
	if rep.City == "" {
		rep.City = city
	}
	if len(data.Weather) > 0 {
		rep.Description = data.Weather[0].Description
	}
	c.log.InfoContext(ctx, "Fetched weather", "city", rep.City)
	return result.Success(rep)
}

func (c *Client) classify(ctx context.Context, city string, err error) result.Result[Report] {
	var se *httpkit.StatusError
	if errors.As(err, &se) {
		c.log.WarnContext(ctx, "Weather provider returned an error", "city", city, "status", se.Code, "body", se.Body)
		switch se.Code {
		case http.StatusNotFound:
			return problem("Город '%s' не найден. Попробуйте указать другой город.", city)
		case http.StatusUnauthorized:
			return problem("Ошибка авторизации в сервисе погоды. Проверьте API ключ.")
		case http.StatusTooManyRequests:
			return problem("Превышен лимит запросов к сервису погоды. Попробуйте позже.")
		default:
			return problem("Не удалось получить погоду для '%s'. Статус: %d.", city, se.Code)
		}
	}

	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		c.log.ErrorContext(ctx, "Weather request timed out", "city", city, "timeout", c.timeout)
		return problem("Таймаут: сервис погоды не ответил для '%s' за %d сек.", city, int(c.timeout.Seconds()))
	}
	if errors.Is(err, context.Canceled) {
		return result.Failed[Report](err)
	}

	c.log.ErrorContext(ctx, "Weather request failed", "city", city, "error", err)
	return problem("Ошибка сети при получении погоды для '%s'.", city)
}
