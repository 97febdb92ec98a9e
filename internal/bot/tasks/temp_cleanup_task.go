package tasks

import (
	"context"
	"fmt"
)

// newTempCleanupTask removes scratch files left behind by updates that never
// released them, such as after a crash.
func newTempCleanupTask(deps TaskDeps) ScheduledTaskFunc {
	log := deps.Logger.With("task", "temp_cleanup")
	maxAge := deps.Config.Telegram.TempMaxAge

	return func(ctx context.Context) error {
		removed, err := deps.Scratch.CleanupOlderThan(ctx, maxAge)
		if err != nil {
			log.ErrorContext(ctx, "Scratch cleanup finished with errors", "removed", removed, "error", err)
			return fmt.Errorf("scratch cleanup failed: %w", err)
		}
		if removed > 0 {
			log.InfoContext(ctx, "Removed stale scratch files", "removed", removed, "max_age", maxAge)
		} else {
			log.DebugContext(ctx, "No stale scratch files")
		}
		return nil
	}
}
