// Package tasks implements the bot's scheduled maintenance tasks and their
// registration.
package tasks

import (
	"log/slog"

	"github.com/edgard/assistbot/internal/config"
	"github.com/edgard/assistbot/internal/database"
	"github.com/edgard/assistbot/internal/scratch"
)

// TaskDeps contains all dependencies required by scheduled tasks.
type TaskDeps struct {
	Logger  *slog.Logger
	Store   database.Store
	Scratch *scratch.Dir
	Config  *config.Config
}
