package handlers

import (
	tgbot "github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
)

// RegisteredHandler represents a command handler with its description and middleware.
// It encapsulates all information needed to register and document a command.
type RegisteredHandler struct {
	HandlerType tgbot.HandlerType
	Pattern     string
	Handler     tgbot.HandlerFunc
	Middleware  []tgbot.Middleware
	MatchType   tgbot.MatchType
	Description string
	AdminOnly   bool
}

// RegisterAllCommands initializes and returns a map of all available bot commands.
// It configures each command with appropriate handlers and middleware.
func RegisterAllCommands(deps HandlerDeps) map[string]RegisteredHandler {
	handlers := make(map[string]RegisteredHandler)

	command := func(name, description string, h tgbot.HandlerFunc) {
		handlers["/"+name] = RegisteredHandler{
			HandlerType: tgbot.HandlerTypeMessageText,
			Pattern:     name,
			Handler:     h,
			MatchType:   tgbot.MatchTypeCommandStartOnly,
			Description: description,
		}
	}

	command("start", "Начать работу", NewStartHandler(deps))
	command("help", "Что я умею", NewHelpHandler(deps))
	command("weather", "Погода: /weather <город>", NewWeatherHandler(deps))
	command("mood", "Выбрать стиль общения", NewMoodHandler(deps))
	command("toggle_speak", "Вкл/выкл озвучку ответов", NewToggleSpeakHandler(deps))
	command("translate", "Перевод: /translate <язык> <текст>", NewTranslateHandler(deps))

	handlers[setMoodPrefix] = RegisteredHandler{
		HandlerType: tgbot.HandlerTypeCallbackQueryData,
		Pattern:     setMoodPrefix,
		Handler:     NewSetMoodHandler(deps),
		MatchType:   tgbot.MatchTypePrefix,
	}

	adminMiddleware := []tgbot.Middleware{AdminOnly(deps)}

	handlers["/admin"] = RegisteredHandler{
		HandlerType: tgbot.HandlerTypeMessageText,
		Pattern:     "admin",
		Handler:     NewAdminHandler(deps),
		MatchType:   tgbot.MatchTypeCommandStartOnly,
		Middleware:  adminMiddleware,
		Description: "Панель администратора",
		AdminOnly:   true,
	}
	handlers["/status"] = RegisteredHandler{
		HandlerType: tgbot.HandlerTypeMessageText,
		Pattern:     "status",
		Handler:     NewStatusHandler(deps),
		MatchType:   tgbot.MatchTypeCommandStartOnly,
		Middleware:  adminMiddleware,
		Description: "Состояние бота",
		AdminOnly:   true,
	}
	handlers["/restart"] = RegisteredHandler{
		HandlerType: tgbot.HandlerTypeMessageText,
		Pattern:     "restart",
		Handler:     NewRestartHandler(deps),
		MatchType:   tgbot.MatchTypeCommandStartOnly,
		Middleware:  adminMiddleware,
		Description: "Перезапустить бота",
		AdminOnly:   true,
	}

	return handlers
}

// CommandMenu builds the command lists shown by Telegram clients. The admin
// list holds every command, the user list omits the admin-only ones.
func CommandMenu(registered map[string]RegisteredHandler) (user, admin []models.BotCommand) {
	for _, key := range commandOrder {
		h, ok := registered[key]
		if !ok || h.Description == "" {
			continue
		}
		cmd := models.BotCommand{Command: h.Pattern, Description: h.Description}
		if !h.AdminOnly {
			user = append(user, cmd)
		}
		admin = append(admin, cmd)
	}
	return user, admin
}

var commandOrder = []string{"/start", "/help", "/weather", "/mood", "/toggle_speak", "/translate", "/admin", "/status", "/restart"}
