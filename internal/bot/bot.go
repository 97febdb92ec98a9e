// Package bot runs the Telegram listener and the task scheduler side by side
// and shuts both down together.
package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"
)

// Listener receives updates until its context is cancelled. *tgbot.Bot
// satisfies it.
type Listener interface {
	Start(ctx context.Context)
}

// Bot owns the lifetime of the update listener and the maintenance
// scheduler.
type Bot struct {
	logger    *slog.Logger
	listener  Listener
	scheduler *Scheduler
}

// NewBot creates the orchestrator for an already configured listener and
// scheduler.
func NewBot(logger *slog.Logger, listener Listener, scheduler *Scheduler) *Bot {
	return &Bot{
		logger:    logger.With("component", "bot_orchestrator"),
		listener:  listener,
		scheduler: scheduler,
	}
}

// Run serves chat updates and runs scheduled maintenance until ctx is done.
// A listener that returns on its own, or a scheduler that cannot start,
// stops both and is reported as an error.
func (b *Bot) Run(ctx context.Context) error {
	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() error { return b.listen(gCtx) })
	g.Go(func() error { return b.schedule(gCtx) })

	b.logger.Info("Assistant running, waiting for updates")
	err := g.Wait()
	if err != nil && !errors.Is(err, context.Canceled) {
		b.logger.Error("Assistant stopped due to error", "error", err)
		return err
	}

	b.logger.Info("Assistant stopped")
	return nil
}

func (b *Bot) listen(ctx context.Context) error {
	b.logger.Info("Listening for chat updates")
	b.listener.Start(ctx)

	if ctx.Err() == nil {
		b.logger.Warn("Update listener returned before shutdown")
		return errors.New("update listener stopped unexpectedly")
	}
	b.logger.Info("Update listener stopped")
	return nil
}

func (b *Bot) schedule(ctx context.Context) error {
	if err := b.scheduler.Start(); err != nil {
		return fmt.Errorf("failed to start maintenance scheduler: %w", err)
	}
	b.logger.Info("Maintenance scheduler started", "jobs", b.scheduler.JobCount())

	<-ctx.Done()
	if err := b.scheduler.Stop(); err != nil {
		b.logger.Error("Failed to stop maintenance scheduler", "error", err)
	}
	return nil
}
