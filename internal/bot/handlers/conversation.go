package handlers

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/edgard/assistbot/internal/database"
	"github.com/edgard/assistbot/internal/delivery"
	"github.com/edgard/assistbot/internal/docs"
	"github.com/edgard/assistbot/internal/gemini"
	"github.com/edgard/assistbot/internal/markup"
)

// History entries recorded instead of the raw exchange.
const (
	historyGenerationFailed = "[Ошибка генерации ответа AI]"
	historyEmptySpeech      = "[Ошибка: пустой текст для озвучки]"
	historySpeakRequestFmt  = "[Запрошена озвучка текста: '%s']"

	historyPreviewLength = 100
)

// weatherTriggers start a typed weather request.
var weatherTriggers = []string{"погода", "weather"}

// conversation runs the dispatch shared by every message handler: weather
// short-circuit, model reply with the speech directive, history and delivery.
type conversation struct {
	deps     HandlerDeps
	renderer *markup.Renderer
	log      *slog.Logger
}

func newConversation(deps HandlerDeps) *conversation {
	return &conversation{
		deps:     deps,
		renderer: markup.NewRenderer(deps.Dialect),
		log:      deps.Logger.With("component", "conversation"),
	}
}

// text dispatches typed text.
func (cv *conversation) text(ctx context.Context, c Client, target delivery.Target, text string) {
	text = strings.TrimSpace(text)
	if text == "" {
		return
	}
	if city, ok := weatherQuery(text); ok {
		cv.weather(ctx, c, target, city)
		return
	}
	cv.chat(ctx, c, target, text, nil)
}

// weather looks up city and delivers the report. Problem reports are sent
// without markup.
func (cv *conversation) weather(ctx context.Context, c Client, target delivery.Target, city string) {
	if city == "" {
		city = cv.deps.Config.Weather.DefaultCity
	}
	msgs := cv.deps.Config.Messages

	p := cv.placeholder(ctx, c, target, fmt.Sprintf(msgs.WeatherLookupFmt, city))

	res := cv.deps.Weather.Lookup(ctx, city)
	report, ok := res.Value()
	if !ok {
		cv.log.ErrorContext(ctx, "Weather lookup failed", "city", city, "result", res.String())
		cv.notify(ctx, c, target, p, msgs.Apology)
		return
	}
	if report.IsError() {
		cv.log.InfoContext(ctx, "Weather lookup returned a problem", "city", city, "message", report.Message)
		cv.notify(ctx, c, target, p, report.Format(nil))
		return
	}

	cv.resolve(ctx, c, target, p, delivery.Message{Text: report.Format(cv.deps.Dialect), Dialect: cv.deps.Dialect})
}

// chat sends prompt with the user's history to the model and delivers the
// reply. p, when not nil, is the status message to resolve.
func (cv *conversation) chat(ctx context.Context, c Client, target delivery.Target, prompt string, p *delivery.Placeholder) {
	userID := target.UserID
	mood := cv.mood(ctx, userID)

	history, err := cv.deps.Store.GetHistory(ctx, userID)
	if err != nil {
		cv.log.WarnContext(ctx, "Failed to load history, continuing without it", "user_id", userID, "error", err)
		history = nil
	}
	cv.record(ctx, userID, database.RoleUser, prompt)

	res := cv.deps.Gemini.GenerateReply(ctx, history, mood, prompt)
	reply, ok := res.Value()
	if !ok {
		cv.log.ErrorContext(ctx, "Failed to generate reply", "user_id", userID, "result", res.String())
		cv.record(ctx, userID, database.RoleModel, historyGenerationFailed)
		cv.notify(ctx, c, target, p, cv.deps.Config.Messages.Apology)
		return
	}

	if inner, isSpeech := speechDirective(reply); isSpeech {
		cv.speak(ctx, c, target, p, inner)
		return
	}

	cv.record(ctx, userID, database.RoleModel, reply)
	cv.resolve(ctx, c, target, p, delivery.Message{Text: cv.renderer.Render(reply), Dialect: cv.deps.Dialect})
}

// speak handles an explicit speech request from the model. It always uses
// the voice path, whatever the user's speak preference.
func (cv *conversation) speak(ctx context.Context, c Client, target delivery.Target, p *delivery.Placeholder, text string) {
	if text == "" {
		cv.log.WarnContext(ctx, "Model asked to speak empty text", "user_id", target.UserID)
		cv.record(ctx, target.UserID, database.RoleModel, historyEmptySpeech)
		cv.notify(ctx, c, target, p, cv.deps.Config.Messages.EmptySpeech)
		return
	}

	cv.record(ctx, target.UserID, database.RoleModel,
		fmt.Sprintf(historySpeakRequestFmt, docs.Truncate(text, historyPreviewLength)))
	if p != nil {
		p.Delete(ctx)
	}
	outcome := cv.deps.Delivery.Voice(ctx, c, target, text)
	cv.log.InfoContext(ctx, "Speech request handled", "user_id", target.UserID, "outcome", outcome.String())
}

// mood returns the user's mood, creating the profile on first contact. A
// storage failure degrades to the default mood.
func (cv *conversation) mood(ctx context.Context, userID int64) string {
	profile, err := cv.deps.Store.GetOrCreateProfile(ctx, userID)
	if err != nil {
		cv.log.WarnContext(ctx, "Failed to load profile, using default mood", "user_id", userID, "error", err)
		return cv.deps.Config.Moods.Default
	}
	return profile.Mood
}

func (cv *conversation) record(ctx context.Context, userID int64, role database.Role, content string) {
	if err := cv.deps.Store.AppendTurn(ctx, userID, role, content); err != nil {
		cv.log.WarnContext(ctx, "Failed to save history turn", "user_id", userID, "role", role, "error", err)
	}
}

// placeholder sends a status message. It returns nil when that fails; the
// reply is then delivered as a new message.
func (cv *conversation) placeholder(ctx context.Context, c Client, target delivery.Target, text string) *delivery.Placeholder {
	p, err := cv.deps.Delivery.NewPlaceholder(ctx, c, target, text)
	if err != nil {
		cv.log.WarnContext(ctx, "Failed to send status message", "chat_id", target.ChatID, "error", err)
		return nil
	}
	return p
}

// progress updates the status message with an interim text.
func (cv *conversation) progress(ctx context.Context, p *delivery.Placeholder, text string) {
	if p == nil {
		return
	}
	if err := p.Update(ctx, text); err != nil {
		cv.log.DebugContext(ctx, "Failed to update status message", "error", err)
	}
}

// notify shows a fixed plain text, in place of the status message when
// there is one.
func (cv *conversation) notify(ctx context.Context, c Client, target delivery.Target, p *delivery.Placeholder, text string) {
	if p != nil {
		if err := p.Update(ctx, text); err == nil {
			return
		}
		p.Delete(ctx)
	}
	cv.deps.Delivery.SendPlain(ctx, c, target, text)
}

// resolve delivers the final reply.
func (cv *conversation) resolve(ctx context.Context, c Client, target delivery.Target, p *delivery.Placeholder, msg delivery.Message) {
	var outcome delivery.Outcome
	if p != nil {
		outcome = p.Resolve(ctx, msg)
	} else {
		outcome = cv.deps.Delivery.Deliver(ctx, c, target, msg)
	}
	cv.log.DebugContext(ctx, "Reply delivered", "chat_id", target.ChatID, "outcome", outcome.String())
}

// weatherQuery reports whether text is a weather request and returns the
// city, which may be empty.
func weatherQuery(text string) (string, bool) {
	for _, trigger := range weatherTriggers {
		if len(text) < len(trigger) || !strings.EqualFold(text[:len(trigger)], trigger) {
			continue
		}
		rest := text[len(trigger):]
		if rest != "" && !strings.HasPrefix(rest, " ") && !strings.HasPrefix(rest, "\t") && !strings.HasPrefix(rest, "\n") {
			continue
		}
		return strings.TrimSpace(rest), true
	}
	return "", false
}

// speechDirective extracts the text of a reply that is exactly one speech
// marker.
func speechDirective(reply string) (string, bool) {
	reply = strings.TrimSpace(reply)
	if len(reply) < len(gemini.SpeakMarkerPrefix)+len(gemini.SpeakMarkerSuffix) ||
		!strings.HasPrefix(reply, gemini.SpeakMarkerPrefix) ||
		!strings.HasSuffix(reply, gemini.SpeakMarkerSuffix) {
		return "", false
	}
	inner := reply[len(gemini.SpeakMarkerPrefix) : len(reply)-len(gemini.SpeakMarkerSuffix)]
	return strings.TrimSpace(inner), true
}
