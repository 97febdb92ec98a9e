// Package main contains the entrypoint for the Telegram bot application.
package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	tgbot "github.com/go-telegram/bot"

	"github.com/edgard/assistbot/internal/bot"
	"github.com/edgard/assistbot/internal/bot/handlers"
	"github.com/edgard/assistbot/internal/bot/tasks"
	"github.com/edgard/assistbot/internal/config"
	"github.com/edgard/assistbot/internal/database"
	"github.com/edgard/assistbot/internal/delivery"
	"github.com/edgard/assistbot/internal/docs"
	"github.com/edgard/assistbot/internal/gemini"
	"github.com/edgard/assistbot/internal/logger"
	"github.com/edgard/assistbot/internal/markup"
	"github.com/edgard/assistbot/internal/ocr"
	"github.com/edgard/assistbot/internal/scratch"
	"github.com/edgard/assistbot/internal/telegram"
	"github.com/edgard/assistbot/internal/translate"
	"github.com/edgard/assistbot/internal/tts"
	"github.com/edgard/assistbot/internal/weather"

	_ "modernc.org/sqlite"
)

// exitRestart tells the process supervisor that /restart asked for a new run.
const exitRestart = 3

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	exitCode := run(ctx)
	stop()
	os.Exit(exitCode)
}

// run wires every component, blocks until shutdown and returns the process
// exit code.
func run(ctx context.Context) int {
	configPath := flag.String("config", "./config.yaml", "Path to configuration file")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		slog.Error("Failed to load configuration", "path", *configPath, "error", err)
		return 1
	}

	log := logger.NewLogger(cfg.Logger.Level, cfg.Logger.JSON)
	log.Info("Logger initialized", "level", cfg.Logger.Level, "json", cfg.Logger.JSON)

	if len(cfg.Telegram.AllowedUserIDs) == 0 {
		log.Warn("Allow-list is empty, every Telegram user can talk to the bot")
	}

	dialect, err := markup.ForName(cfg.Telegram.MarkupDialect)
	if err != nil {
		log.Error("Invalid markup dialect", "dialect", cfg.Telegram.MarkupDialect, "error", err)
		return 1
	}

	db, err := database.NewDB(cfg.Database.Path)
	if err != nil {
		log.Error("Failed to connect to database", "path", cfg.Database.Path, "error", err)
		return 1
	}
	defer database.CloseDB(db)
	store := database.NewStore(db, log, database.Options{
		DefaultMood:  cfg.Moods.Default,
		HistoryTurns: cfg.Database.HistoryTurns,
	})

	scratchDir, err := scratch.New(cfg.Telegram.TempDir, log)
	if err != nil {
		log.Error("Failed to prepare scratch directory", "error", err)
		return 1
	}

	gemClient, err := gemini.NewClient(ctx, cfg.Gemini, log)
	if err != nil {
		log.Error("Failed to initialize Gemini client", "error", err)
		return 1
	}

	ocrEngine := ocr.New(cfg.OCR, log)
	if !ocrEngine.Available() {
		log.Warn("OCR binary not found, photo text recognition is disabled", "binary", cfg.OCR.Binary)
	}

	speech := tts.NewClient(cfg.TTS, scratchDir, log)
	engine := delivery.NewEngine(store, speech, delivery.Options{
		MaxMessageLength:   cfg.Telegram.MaxMessageLength,
		SegmentDelay:       cfg.Telegram.SegmentDelay,
		FailureNotice:      cfg.Messages.DeliveryFailed,
		SpeechFailedNotice: cfg.Messages.SpeechFailed,
	}, log)

	ctx, shutdown := context.WithCancelCause(ctx)
	defer shutdown(nil)

	startedAt := time.Now()
	hDeps := handlers.HandlerDeps{
		Logger:  log,
		Config:  cfg,
		Store:   store,
		Gemini:  gemClient,
		Weather: weather.NewClient(cfg.Weather, log),
		Translator: &translate.Fallback{
			Primary:   translate.NewGoogleClient(cfg.Translate, log),
			Secondary: gemClient,
			Log:       log,
		},
		OCR:      ocrEngine,
		Docs:     docs.New(cfg.Documents, log),
		Files:    handlers.NewFileFetcher(cfg.Telegram.Token, scratchDir, cfg.Documents.MaxFileSize, log),
		Delivery: engine,
		Dialect:  dialect,
		Started:  startedAt,
		Shutdown: shutdown,
	}

	sched, err := bot.NewScheduler(log, &cfg.Scheduler, tasks.RegisterAllTasks(tasks.TaskDeps{
		Logger:  log,
		Store:   store,
		Scratch: scratchDir,
		Config:  cfg,
	}))
	if err != nil {
		log.Error("Failed to create scheduler", "error", err)
		return 1
	}
	hDeps.Scheduler = sched

	botOpts := []tgbot.Option{
		tgbot.WithMiddlewares(logger.Middleware(log), handlers.Recover(hDeps), handlers.AuthGate(hDeps)),
		tgbot.WithDefaultHandler(handlers.NewMessageHandler(hDeps)),
	}
	tg, err := telegram.NewTelegramBot(cfg.Telegram.Token, log, botOpts...)
	if err != nil {
		log.Error("Failed to create Telegram bot", "error", err)
		return 1
	}

	cfg.Telegram.BotInfo, err = tg.GetMe(ctx)
	if err != nil {
		log.Error("Failed to get bot info", "error", err)
		return 1
	}
	log.Info("Retrieved bot info", "bot_id", cfg.Telegram.BotInfo.ID, "bot_username", cfg.Telegram.BotInfo.Username)

	cmdHandlers := handlers.RegisterAllCommands(hDeps)
	if err := telegram.RegisterHandlers(tg, log, cmdHandlers); err != nil {
		log.Error("Failed to register Telegram handlers", "error", err)
		return 1
	}

	userCmds, adminCmds := handlers.CommandMenu(cmdHandlers)
	if err := telegram.SetCommands(ctx, tg, log, userCmds, adminCmds, cfg.Telegram.AdminUserIDs); err != nil {
		log.Warn("Failed to publish command menu", "error", err)
	}

	app := bot.NewBot(log, tg, sched)

	log.Info("Starting bot...", "dialect", dialect.Name(), "model", cfg.Gemini.ModelName)
	runErr := app.Run(ctx)
	log.Info("Bot run loop finished. Initiating shutdown...")

	if errors.Is(context.Cause(ctx), handlers.ErrRestartRequested) {
		log.Info("Bot stopped for restart.")
		return exitRestart
	}
	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		log.Error("Bot stopped due to error", "error", runErr)
		return 1
	}

	log.Info("Bot stopped gracefully.")
	return 0
}
