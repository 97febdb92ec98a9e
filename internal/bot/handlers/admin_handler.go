package handlers

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"github.com/edgard/assistbot/internal/delivery"
)

// NewAdminHandler returns a handler for /admin.
func NewAdminHandler(deps HandlerDeps) bot.HandlerFunc {
	return adminHandler{deps}.Handle
}

type adminHandler struct {
	deps HandlerDeps
}

func (h adminHandler) Handle(ctx context.Context, b *bot.Bot, update *models.Update) {
	h.handle(ctx, b, update)
}

func (h adminHandler) handle(ctx context.Context, c Client, update *models.Update) {
	log := h.deps.Logger.With("handler", "admin")

	if update.Message == nil {
		log.WarnContext(ctx, "Admin handler received update with nil message", "update_id", update.ID)
		return
	}
	cfg := h.deps.Config

	allowed := "все пользователи"
	if len(cfg.Telegram.AllowedUserIDs) > 0 {
		allowed = joinIDs(cfg.Telegram.AllowedUserIDs)
	}

	var sb strings.Builder
	sb.WriteString("Панель администратора\n\n")
	fmt.Fprintf(&sb, "Администраторы: %s\n", joinIDs(cfg.Telegram.AdminUserIDs))
	fmt.Fprintf(&sb, "Разрешённые пользователи: %s\n", allowed)
	fmt.Fprintf(&sb, "Разметка: %s\n", h.deps.Dialect.Name())
	fmt.Fprintf(&sb, "Модель: %s\n", cfg.Gemini.ModelName)
	fmt.Fprintf(&sb, "Стили общения: %s (по умолчанию %s)", strings.Join(cfg.Moods.Allowed, ", "), cfg.Moods.Default)

	h.deps.Delivery.SendPlain(ctx, c, delivery.Target{ChatID: update.Message.Chat.ID}, sb.String())
}

// ErrRestartRequested is the cancellation cause set by /restart. The process
// exits with a dedicated code so its supervisor starts it again.
var ErrRestartRequested = errors.New("restart requested by administrator")

// NewRestartHandler returns a handler for /restart.
func NewRestartHandler(deps HandlerDeps) bot.HandlerFunc {
	return restartHandler{deps}.Handle
}

type restartHandler struct {
	deps HandlerDeps
}

func (h restartHandler) Handle(ctx context.Context, b *bot.Bot, update *models.Update) {
	h.handle(ctx, b, update)
}

func (h restartHandler) handle(ctx context.Context, c Client, update *models.Update) {
	log := h.deps.Logger.With("handler", "restart")

	if update.Message == nil {
		log.WarnContext(ctx, "Restart handler received update with nil message", "update_id", update.ID)
		return
	}
	target := delivery.Target{ChatID: update.Message.Chat.ID, ReplyTo: update.Message.ID}

	if h.deps.Shutdown == nil {
		log.ErrorContext(ctx, "Restart requested but no shutdown hook is configured")
		h.deps.Delivery.SendPlain(ctx, c, target, h.deps.Config.Messages.Apology)
		return
	}

	var userID int64
	if u := sender(update); u != nil {
		userID = u.ID
	}
	log.InfoContext(ctx, "Restart requested", "user_id", userID)
	h.deps.Delivery.SendPlain(ctx, c, target, h.deps.Config.Messages.Restarting)
	h.deps.Shutdown(ErrRestartRequested)
}

// NewStatusHandler returns a handler for /status.
func NewStatusHandler(deps HandlerDeps) bot.HandlerFunc {
	return statusHandler{deps}.Handle
}

type statusHandler struct {
	deps HandlerDeps
}

func (h statusHandler) Handle(ctx context.Context, b *bot.Bot, update *models.Update) {
	h.handle(ctx, b, update)
}

func (h statusHandler) handle(ctx context.Context, c Client, update *models.Update) {
	log := h.deps.Logger.With("handler", "status")

	if update.Message == nil {
		log.WarnContext(ctx, "Status handler received update with nil message", "update_id", update.ID)
		return
	}

	var sb strings.Builder
	sb.WriteString("Состояние бота\n\n")
	if !h.deps.Started.IsZero() {
		fmt.Fprintf(&sb, "Время работы: %s\n", time.Since(h.deps.Started).Truncate(time.Second))
	}

	if err := h.deps.Store.Ping(ctx); err != nil {
		log.ErrorContext(ctx, "Database ping failed", "error", err)
		sb.WriteString("База данных: недоступна\n")
	} else {
		sb.WriteString("База данных: OK\n")
	}

	if stats, err := h.deps.Store.CountStats(ctx); err != nil {
		log.ErrorContext(ctx, "Failed to count rows", "error", err)
	} else {
		fmt.Fprintf(&sb, "Пользователей: %d\nСообщений в истории: %d\n", stats.Users, stats.Turns)
	}

	if s := h.deps.Scheduler; s != nil {
		state := "остановлен"
		if s.Running() {
			state = "работает"
		}
		fmt.Fprintf(&sb, "Планировщик: %s, задач: %d\n", state, s.JobCount())
	}

	h.deps.Delivery.SendPlain(ctx, c, delivery.Target{ChatID: update.Message.Chat.ID}, strings.TrimRight(sb.String(), "\n"))
}

func joinIDs(ids []int64) string {
	if len(ids) == 0 {
		return "нет"
	}
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = strconv.FormatInt(id, 10)
	}
	return strings.Join(parts, ", ")
}
