package handlers

import (
	"context"
	"fmt"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"github.com/edgard/assistbot/internal/delivery"
)

// NewToggleSpeakHandler returns a handler for /toggle_speak.
func NewToggleSpeakHandler(deps HandlerDeps) bot.HandlerFunc {
	return toggleSpeakHandler{deps}.Handle
}

type toggleSpeakHandler struct {
	deps HandlerDeps
}

func (h toggleSpeakHandler) Handle(ctx context.Context, b *bot.Bot, update *models.Update) {
	h.handle(ctx, b, update)
}

func (h toggleSpeakHandler) handle(ctx context.Context, c Client, update *models.Update) {
	log := h.deps.Logger.With("handler", "toggle_speak")
	msgs := h.deps.Config.Messages

	msg := update.Message
	if msg == nil || msg.From == nil {
		log.WarnContext(ctx, "Toggle speak handler received update with nil message or sender", "update_id", update.ID)
		return
	}
	target := delivery.Target{ChatID: msg.Chat.ID}

	enabled, err := h.deps.Store.ToggleSpeak(ctx, msg.From.ID)
	if err != nil {
		log.ErrorContext(ctx, "Failed to toggle speak", "user_id", msg.From.ID, "error", err)
		h.deps.Delivery.SendPlain(ctx, c, target, msgs.Apology)
		return
	}
	log.InfoContext(ctx, "Speak preference changed", "user_id", msg.From.ID, "enabled", enabled)

	state := msgs.SpeakOff
	if enabled {
		state = msgs.SpeakOn
	}
	h.deps.Delivery.SendPlain(ctx, c, target, fmt.Sprintf(msgs.SpeakStateFmt, state))
}
