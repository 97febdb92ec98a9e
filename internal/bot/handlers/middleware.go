// Package handlers contains Telegram bot command and message handlers,
// along with their registration logic and middleware.
package handlers

import (
	"context"
	"fmt"
	"runtime/debug"

	tgbot "github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"github.com/edgard/assistbot/internal/delivery"
)

// AuthGate drops updates from users outside the allow-list. Text messages
// and callbacks get the access denied notice; other updates are dropped
// silently.
func AuthGate(deps HandlerDeps) tgbot.Middleware {
	log := deps.Logger.With("middleware", "AuthGate")
	return func(next tgbot.HandlerFunc) tgbot.HandlerFunc {
		return func(ctx context.Context, bot *tgbot.Bot, update *models.Update) {
			user, allowed := authorize(deps, update)
			if allowed {
				next(ctx, bot, update)
				return
			}

			log.WarnContext(ctx, "Unauthorized access attempt", "user_id", user.ID, "username", user.Username)
			deny(ctx, bot, deps, update)
		}
	}
}

// AdminOnly creates a middleware that checks if the message sender is one of
// the configured administrators.
func AdminOnly(deps HandlerDeps) tgbot.Middleware {
	log := deps.Logger.With("middleware", "AdminOnly")
	return func(next tgbot.HandlerFunc) tgbot.HandlerFunc {
		return func(ctx context.Context, bot *tgbot.Bot, update *models.Update) {
			user := sender(update)
			if user != nil && deps.Config.IsAdmin(user.ID) {
				next(ctx, bot, update)
				return
			}

			var userID int64
			if user != nil {
				userID = user.ID
			}
			log.WarnContext(ctx, "Non-admin attempted admin command", "user_id", userID)
			deny(ctx, bot, deps, update)
		}
	}
}

// Recover turns a panic in any handler into a logged error and the generic
// apology, so one bad update never stops the polling loop.
func Recover(deps HandlerDeps) tgbot.Middleware {
	return func(next tgbot.HandlerFunc) tgbot.HandlerFunc {
		return func(ctx context.Context, bot *tgbot.Bot, update *models.Update) {
			guard(ctx, bot, deps, update, func() { next(ctx, bot, update) })
		}
	}
}

func guard(ctx context.Context, c delivery.Transport, deps HandlerDeps, update *models.Update, fn func()) {
	defer func() {
		r := recover()
		if r == nil {
			return
		}
		deps.Logger.ErrorContext(ctx, "Handler panicked", "update_id", update.ID,
			"panic", fmt.Sprint(r), "stack", string(debug.Stack()))

		if chatID := chatOf(update); chatID != 0 {
			deps.Delivery.SendPlain(ctx, c, delivery.Target{ChatID: chatID}, deps.Config.Messages.Apology)
		}
	}()
	fn()
}

// authorize applies the allow-list to the update's sender. Updates without a
// sender are refused.
func authorize(deps HandlerDeps, update *models.Update) (models.User, bool) {
	user := sender(update)
	if user == nil {
		return models.User{}, false
	}
	return *user, deps.Config.IsAllowed(user.ID)
}

func deny(ctx context.Context, c Client, deps HandlerDeps, update *models.Update) {
	text := deps.Config.Messages.AccessDenied
	if text == "" {
		return
	}

	switch {
	case update.CallbackQuery != nil:
		if _, err := c.AnswerCallbackQuery(ctx, &tgbot.AnswerCallbackQueryParams{
			CallbackQueryID: update.CallbackQuery.ID,
			Text:            text,
			ShowAlert:       true,
		}); err != nil {
			deps.Logger.ErrorContext(ctx, "Failed to answer denied callback", "error", err)
		}
	case update.Message != nil && update.Message.Text != "":
		deps.Delivery.SendPlain(ctx, c, delivery.Target{ChatID: update.Message.Chat.ID}, text)
	}
}

// sender returns the user that caused the update.
func sender(update *models.Update) *models.User {
	switch {
	case update.Message != nil:
		return update.Message.From
	case update.CallbackQuery != nil:
		return &update.CallbackQuery.From
	default:
		return nil
	}
}

// chatOf returns the chat the update belongs to, or 0.
func chatOf(update *models.Update) int64 {
	switch {
	case update.Message != nil:
		return update.Message.Chat.ID
	case update.CallbackQuery != nil:
		if m := update.CallbackQuery.Message.Message; m != nil {
			return m.Chat.ID
		}
		if m := update.CallbackQuery.Message.InaccessibleMessage; m != nil {
			return m.Chat.ID
		}
	}
	return 0
}
