package handlers

import (
	"context"
	"log/slog"
	"time"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"github.com/edgard/assistbot/internal/config"
	"github.com/edgard/assistbot/internal/database"
	"github.com/edgard/assistbot/internal/delivery"
	"github.com/edgard/assistbot/internal/docs"
	"github.com/edgard/assistbot/internal/gemini"
	"github.com/edgard/assistbot/internal/markup"
	"github.com/edgard/assistbot/internal/result"
	"github.com/edgard/assistbot/internal/scratch"
	"github.com/edgard/assistbot/internal/translate"
	"github.com/edgard/assistbot/internal/weather"
)

// Client is the part of the Telegram API the handlers use. *bot.Bot
// satisfies it.
type Client interface {
	delivery.Transport
	GetFile(ctx context.Context, params *bot.GetFileParams) (*models.File, error)
	AnswerCallbackQuery(ctx context.Context, params *bot.AnswerCallbackQueryParams) (bool, error)
}

// Recognizer extracts text from an image file. Empty means the image has no
// text, Failed means recognition did not run.
type Recognizer interface {
	Extract(ctx context.Context, path string) result.Result[string]
}

// Downloader stores a Telegram file in the scratch directory.
type Downloader interface {
	Download(ctx context.Context, c FileGetter, fileID, kind, ext string) (*scratch.File, error)
}

// SchedulerStatus reports the state of the task scheduler for /status.
type SchedulerStatus interface {
	Running() bool
	JobCount() int
}

// HandlerDeps provides dependencies for Telegram command handlers.
type HandlerDeps struct {
	Logger     *slog.Logger
	Config     *config.Config
	Store      database.Store
	Gemini     gemini.Client
	Weather    weather.Service
	Translator translate.Translator
	OCR        Recognizer
	Docs       *docs.Extractor
	Files      Downloader
	Delivery   *delivery.Engine
	Dialect    markup.Dialect
	Scheduler  SchedulerStatus
	Started    time.Time
	// Shutdown cancels the run context with a cause; nil disables /restart.
	Shutdown context.CancelCauseFunc
}
