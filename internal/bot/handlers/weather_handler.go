package handlers

import (
	"context"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"github.com/edgard/assistbot/internal/delivery"
)

// NewWeatherHandler returns a handler for /weather <city>.
func NewWeatherHandler(deps HandlerDeps) bot.HandlerFunc {
	return weatherHandler{deps: deps, conv: newConversation(deps)}.Handle
}

type weatherHandler struct {
	deps HandlerDeps
	conv *conversation
}

func (h weatherHandler) Handle(ctx context.Context, b *bot.Bot, update *models.Update) {
	h.handle(ctx, b, update)
}

func (h weatherHandler) handle(ctx context.Context, c Client, update *models.Update) {
	log := h.deps.Logger.With("handler", "weather")

	msg := update.Message
	if msg == nil || msg.From == nil {
		log.WarnContext(ctx, "Weather handler received update with nil message or sender", "update_id", update.ID)
		return
	}

	city := commandArgs(msg.Text)
	log.InfoContext(ctx, "Handling /weather command", "chat_id", msg.Chat.ID, "city", city)
	h.conv.weather(ctx, c, delivery.Target{ChatID: msg.Chat.ID, UserID: msg.From.ID, ReplyTo: msg.ID}, city)
}

// commandArgs returns the text after the command word.
func commandArgs(text string) string {
	_, rest := splitFirst(text)
	return rest
}
