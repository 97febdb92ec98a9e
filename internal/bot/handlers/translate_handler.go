package handlers

import (
	"context"
	"fmt"
	"strings"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"github.com/edgard/assistbot/internal/delivery"
	"github.com/edgard/assistbot/internal/translate"
)

// NewTranslateHandler returns a handler for /translate <lang> <text>. When
// the text is omitted the replied-to message is translated.
func NewTranslateHandler(deps HandlerDeps) bot.HandlerFunc {
	return translateHandler{deps}.Handle
}

type translateHandler struct {
	deps HandlerDeps
}

func (h translateHandler) Handle(ctx context.Context, b *bot.Bot, update *models.Update) {
	h.handle(ctx, b, update)
}

func (h translateHandler) handle(ctx context.Context, c Client, update *models.Update) {
	log := h.deps.Logger.With("handler", "translate")
	msgs := h.deps.Config.Messages

	msg := update.Message
	if msg == nil || msg.From == nil {
		log.WarnContext(ctx, "Translate handler received update with nil message or sender", "update_id", update.ID)
		return
	}
	target := delivery.Target{ChatID: msg.Chat.ID, UserID: msg.From.ID, ReplyTo: msg.ID}

	lang, text := splitFirst(commandArgs(msg.Text))
	if text == "" && msg.ReplyToMessage != nil {
		text = strings.TrimSpace(msg.ReplyToMessage.Text)
	}
	if lang == "" || text == "" {
		h.deps.Delivery.SendPlain(ctx, c, target, msgs.TranslateUsage)
		return
	}

	code, ok := translate.LangCode(lang)
	if !ok {
		h.deps.Delivery.SendPlain(ctx, c, target, fmt.Sprintf(msgs.TranslateUnknown, lang))
		return
	}

	log.InfoContext(ctx, "Handling /translate command", "chat_id", msg.Chat.ID, "target", code, "length", len(text))
	res := h.deps.Translator.Translate(ctx, text, code)
	translated, ok := res.Value()
	if !ok {
		log.WarnContext(ctx, "Translation failed", "target", code, "result", res.String())
		h.deps.Delivery.SendPlain(ctx, c, target, msgs.TranslateFailed)
		return
	}
	h.deps.Delivery.Deliver(ctx, c, target, delivery.Message{Text: translated})
}

// splitFirst splits s into its first word and the trimmed rest.
func splitFirst(s string) (string, string) {
	s = strings.TrimSpace(s)
	i := strings.IndexAny(s, " \t\n")
	if i < 0 {
		return s, ""
	}
	return s[:i], strings.TrimSpace(s[i:])
}
