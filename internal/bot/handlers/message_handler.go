package handlers

import (
	"context"
	"strings"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"github.com/edgard/assistbot/internal/delivery"
)

// NewMessageHandler returns the default handler for every message that is
// not a command: text, voice, photo and document.
func NewMessageHandler(deps HandlerDeps) bot.HandlerFunc {
	return messageHandler{deps: deps, conv: newConversation(deps)}.Handle
}

type messageHandler struct {
	deps HandlerDeps
	conv *conversation
}

func (h messageHandler) Handle(ctx context.Context, b *bot.Bot, update *models.Update) {
	h.handle(ctx, b, update)
}

func (h messageHandler) handle(ctx context.Context, c Client, update *models.Update) {
	log := h.deps.Logger.With("handler", "message")

	msg := update.Message
	if msg == nil || msg.From == nil {
		log.DebugContext(ctx, "Ignoring update without message or sender", "update_id", update.ID)
		return
	}
	target := delivery.Target{ChatID: msg.Chat.ID, UserID: msg.From.ID, ReplyTo: msg.ID}

	switch {
	case msg.Voice != nil:
		log.InfoContext(ctx, "Handling voice message", "chat_id", target.ChatID, "duration", msg.Voice.Duration)
		h.conv.voice(ctx, c, target, msg.Voice)
	case len(msg.Photo) > 0:
		log.InfoContext(ctx, "Handling photo", "chat_id", target.ChatID, "sizes", len(msg.Photo))
		h.conv.photo(ctx, c, target, msg.Photo)
	case msg.Document != nil:
		log.InfoContext(ctx, "Handling document", "chat_id", target.ChatID, "filename", msg.Document.FileName)
		h.conv.document(ctx, c, target, msg.Document)
	case msg.Text != "":
		if strings.HasPrefix(msg.Text, "/") {
			log.DebugContext(ctx, "Ignoring unknown command", "chat_id", target.ChatID, "text", msg.Text)
			return
		}
		log.InfoContext(ctx, "Handling text message", "chat_id", target.ChatID, "user_id", target.UserID)
		h.conv.text(ctx, c, target, msg.Text)
	default:
		log.DebugContext(ctx, "Ignoring unsupported message type", "chat_id", target.ChatID)
	}
}
