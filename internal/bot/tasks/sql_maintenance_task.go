package tasks

import (
	"context"
	"fmt"
	"time"
)

// newSQLMaintenanceTask compacts the profile and history tables and logs how
// much conversation history the bot is holding afterwards.
func newSQLMaintenanceTask(deps TaskDeps) ScheduledTaskFunc {
	log := deps.Logger.With("task", "sql_maintenance")

	return func(ctx context.Context) error {
		startTime := time.Now()

		if err := deps.Store.RunSQLMaintenance(ctx); err != nil {
			log.ErrorContext(ctx, "Settings database compaction failed", "error", err, "duration", time.Since(startTime))
			return fmt.Errorf("sql maintenance failed: %w", err)
		}

		stats, err := deps.Store.CountStats(ctx)
		if err != nil {
			log.WarnContext(ctx, "Compacted settings database, counting rows failed", "error", err,
				"duration", time.Since(startTime))
			return nil
		}
		log.InfoContext(ctx, "Compacted settings database", "profiles", stats.Users, "history_turns", stats.Turns,
			"duration", time.Since(startTime))
		return nil
	}
}
