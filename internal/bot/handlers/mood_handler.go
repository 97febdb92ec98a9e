package handlers

import (
	"context"
	"fmt"
	"strings"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"github.com/edgard/assistbot/internal/delivery"
)

// setMoodPrefix starts the callback data of a mood button.
const setMoodPrefix = "set_mood:"

// moodLabels are the button captions of known moods.
var moodLabels = map[string]string{
	"friendly":     "😊 Дружелюбный",
	"professional": "👔 Профессиональный",
	"sarcastic":    "😏 Саркастичный",
	"romantic":     "🌹 Романтичный",
	"funny":        "😂 Весёлый",
}

func moodLabel(mood string) string {
	if l, ok := moodLabels[mood]; ok {
		return l
	}
	return mood
}

// NewMoodHandler returns a handler for /mood that shows the mood keyboard.
func NewMoodHandler(deps HandlerDeps) bot.HandlerFunc {
	return moodHandler{deps}.Handle
}

type moodHandler struct {
	deps HandlerDeps
}

func (h moodHandler) Handle(ctx context.Context, b *bot.Bot, update *models.Update) {
	h.handle(ctx, b, update)
}

func (h moodHandler) handle(ctx context.Context, c Client, update *models.Update) {
	log := h.deps.Logger.With("handler", "mood")

	msg := update.Message
	if msg == nil || msg.From == nil {
		log.WarnContext(ctx, "Mood handler received update with nil message or sender", "update_id", update.ID)
		return
	}

	current := h.deps.Config.Moods.Default
	if profile, err := h.deps.Store.GetOrCreateProfile(ctx, msg.From.ID); err != nil {
		log.WarnContext(ctx, "Failed to load profile, showing default mood", "user_id", msg.From.ID, "error", err)
	} else {
		current = profile.Mood
	}

	_, err := c.SendMessage(ctx, &bot.SendMessageParams{
		ChatID:      msg.Chat.ID,
		Text:        fmt.Sprintf(h.deps.Config.Messages.MoodPromptFmt, moodLabel(current)),
		ReplyMarkup: moodKeyboard(h.deps.Config.Moods.Allowed, current),
	})
	if err != nil {
		log.ErrorContext(ctx, "Failed to send mood keyboard", "error", err, "chat_id", msg.Chat.ID)
	}
}

// moodKeyboard lays out one button per mood, two per row, marking current.
func moodKeyboard(moods []string, current string) *models.InlineKeyboardMarkup {
	var rows [][]models.InlineKeyboardButton
	var row []models.InlineKeyboardButton
	for _, mood := range moods {
		label := moodLabel(mood)
		if mood == current {
			label = "✅ " + label
		}
		row = append(row, models.InlineKeyboardButton{Text: label, CallbackData: setMoodPrefix + mood})
		if len(row) == 2 {
			rows = append(rows, row)
			row = nil
		}
	}
	if len(row) > 0 {
		rows = append(rows, row)
	}
	return &models.InlineKeyboardMarkup{InlineKeyboard: rows}
}

// NewSetMoodHandler returns a handler for set_mood:<mood> callbacks.
func NewSetMoodHandler(deps HandlerDeps) bot.HandlerFunc {
	return setMoodHandler{deps}.Handle
}

type setMoodHandler struct {
	deps HandlerDeps
}

func (h setMoodHandler) Handle(ctx context.Context, b *bot.Bot, update *models.Update) {
	h.handle(ctx, b, update)
}

func (h setMoodHandler) handle(ctx context.Context, c Client, update *models.Update) {
	log := h.deps.Logger.With("handler", "set_mood")
	msgs := h.deps.Config.Messages

	cq := update.CallbackQuery
	if cq == nil {
		log.WarnContext(ctx, "Set mood handler received update without callback", "update_id", update.ID)
		return
	}

	mood := strings.TrimPrefix(cq.Data, setMoodPrefix)
	if !h.deps.Config.IsMoodAllowed(mood) {
		log.WarnContext(ctx, "Unknown mood selected", "user_id", cq.From.ID, "mood", mood)
		h.answer(ctx, c, cq.ID, msgs.MoodUnknown, true)
		return
	}

	if err := h.deps.Store.SetMood(ctx, cq.From.ID, mood); err != nil {
		log.ErrorContext(ctx, "Failed to save mood", "user_id", cq.From.ID, "mood", mood, "error", err)
		h.answer(ctx, c, cq.ID, msgs.Apology, true)
		return
	}
	log.InfoContext(ctx, "Mood changed", "user_id", cq.From.ID, "mood", mood)

	confirmation := fmt.Sprintf(msgs.MoodChangedFmt, moodLabel(mood))
	h.answer(ctx, c, cq.ID, confirmation, false)

	chatID := chatOf(update)
	m := cq.Message.Message
	if chatID == 0 || m == nil {
		return
	}
	_, err := c.EditMessageText(ctx, &bot.EditMessageTextParams{
		ChatID:    chatID,
		MessageID: m.ID,
		Text:      confirmation,
	})
	if err != nil && !delivery.IsNotModified(err) {
		log.WarnContext(ctx, "Failed to edit mood message", "chat_id", chatID, "error", err)
	}
}

func (h setMoodHandler) answer(ctx context.Context, c Client, id, text string, alert bool) {
	if _, err := c.AnswerCallbackQuery(ctx, &bot.AnswerCallbackQueryParams{
		CallbackQueryID: id,
		Text:            text,
		ShowAlert:       alert,
	}); err != nil {
		h.deps.Logger.ErrorContext(ctx, "Failed to answer callback", "error", err)
	}
}
