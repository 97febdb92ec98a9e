package telegram

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edgard/assistbot/internal/bot/handlers"
	"github.com/edgard/assistbot/internal/logger"
)

type recordingSetter struct {
	calls []*bot.SetMyCommandsParams
	fail  map[int64]bool
}

func (r *recordingSetter) SetMyCommands(_ context.Context, p *bot.SetMyCommandsParams) (bool, error) {
	r.calls = append(r.calls, p)
	if s, ok := p.Scope.(*models.BotCommandScopeChat); ok && r.fail[s.ChatID.(int64)] {
		return false, errors.New("chat not found")
	}
	return true, nil
}

func TestSetCommands(t *testing.T) {
	user := []models.BotCommand{{Command: "start", Description: "Начать"}}
	admin := append([]models.BotCommand{}, user...)
	admin = append(admin, models.BotCommand{Command: "admin", Description: "Админ"})

	setter := &recordingSetter{fail: map[int64]bool{2: true}}
	err := SetCommands(context.Background(), setter, logger.Discard(), user, admin, []int64{1, 2, 3})
	require.NoError(t, err)

	require.Len(t, setter.calls, 4)
	assert.IsType(t, &models.BotCommandScopeDefault{}, setter.calls[0].Scope)
	assert.Equal(t, user, setter.calls[0].Commands)
	for i, id := range []int64{1, 2, 3} {
		scope, ok := setter.calls[i+1].Scope.(*models.BotCommandScopeChat)
		require.True(t, ok)
		assert.Equal(t, id, scope.ChatID)
		assert.Equal(t, admin, setter.calls[i+1].Commands)
	}
}

func TestApplyMiddlewareOrder(t *testing.T) {
	var order []string
	mw := func(name string) bot.Middleware {
		return func(next bot.HandlerFunc) bot.HandlerFunc {
			return func(ctx context.Context, b *bot.Bot, u *models.Update) {
				order = append(order, name)
				next(ctx, b, u)
			}
		}
	}
	h := applyMiddleware(func(context.Context, *bot.Bot, *models.Update) {
		order = append(order, "handler")
	}, []bot.Middleware{mw("outer"), mw("inner")})

	h(context.Background(), nil, &models.Update{})
	assert.Equal(t, []string{"outer", "inner", "handler"}, order)
}

func TestRegisterHandlers_Dispatches(t *testing.T) {
	b, err := NewTelegramBot("123456789:TEST", logger.Discard(), bot.WithSkipGetMe())
	require.NoError(t, err)

	var mu sync.Mutex
	var got []string
	record := func(name string) bot.HandlerFunc {
		return func(_ context.Context, _ *bot.Bot, _ *models.Update) {
			mu.Lock()
			defer mu.Unlock()
			got = append(got, name)
		}
	}

	err = RegisterHandlers(b, logger.Discard(), map[string]handlers.RegisteredHandler{
		"/ping": {
			HandlerType: bot.HandlerTypeMessageText,
			Pattern:     "ping",
			MatchType:   bot.MatchTypeCommandStartOnly,
			Handler:     record("ping"),
		},
		"cb:": {
			HandlerType: bot.HandlerTypeCallbackQueryData,
			Pattern:     "cb:",
			MatchType:   bot.MatchTypePrefix,
			Handler:     record("callback"),
		},
		"nil": {Pattern: "nil"},
	})
	require.NoError(t, err)

	b.ProcessUpdate(context.Background(), &models.Update{Message: &models.Message{
		Text:     "/ping",
		Chat:     models.Chat{ID: 1},
		Entities: []models.MessageEntity{{Type: models.MessageEntityTypeBotCommand, Offset: 0, Length: 5}},
	}})
	b.ProcessUpdate(context.Background(), &models.Update{CallbackQuery: &models.CallbackQuery{ID: "1", Data: "cb:x"}})

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == 2
	}, time.Second, 10*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.ElementsMatch(t, []string{"ping", "callback"}, got)
}

func TestNewTelegramBot_Validation(t *testing.T) {
	_, err := NewTelegramBot("", logger.Discard())
	require.Error(t, err)

	assert.Equal(t, "***", maskToken("short"))
	assert.Equal(t, "12345678...", maskToken("123456789:SECRET"))
}
