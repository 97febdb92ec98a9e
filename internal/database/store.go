package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/jmoiron/sqlx"
	"golang.org/x/sync/singleflight"

	"github.com/edgard/assistbot/internal/logger"
)

// ErrUnavailable wraps every storage failure so callers can degrade to
// defaults without inspecting driver errors.
var ErrUnavailable = errors.New("persistence unavailable")

// Store defines the settings and history operations used by the bot.
// Methods accept context.Context for cancellation and timeouts.
type Store interface {
	// Ping checks the database connection.
	Ping(ctx context.Context) error

	// GetOrCreateProfile returns the user's profile, creating it with
	// default values on first contact.
	GetOrCreateProfile(ctx context.Context, userID int64) (*Profile, error)

	// SetMood upserts the user's mood, creating the profile if absent.
	SetMood(ctx context.Context, userID int64, mood string) error

	// ToggleSpeak flips speak_enabled against the stored value and returns
	// the new value.
	ToggleSpeak(ctx context.Context, userID int64) (bool, error)

	// SpeakEnabled reads the speak preference without creating a profile.
	SpeakEnabled(ctx context.Context, userID int64) (bool, error)

	// AppendTurn stores a turn and prunes the user's history to the
	// retention cap in the same transaction.
	AppendTurn(ctx context.Context, userID int64, role Role, content string) error

	// GetHistory returns the retained turns in chronological order.
	GetHistory(ctx context.Context, userID int64) ([]Turn, error)

	// CountStats reports row counts for the status command.
	CountStats(ctx context.Context) (Stats, error)

	// RunSQLMaintenance performs database maintenance tasks like VACUUM.
	RunSQLMaintenance(ctx context.Context) error
}

// Options configures the defaults the store applies.
type Options struct {
	DefaultMood  string
	HistoryTurns int
}

// sqlxStore provides an implementation of the Store interface using sqlx.
type sqlxStore struct {
	db       *sqlx.DB
	logger   *slog.Logger
	opts     Options
	creating singleflight.Group
}

// NewStore creates a new Store implementation backed by sqlx.
func NewStore(db *sqlx.DB, log *slog.Logger, opts Options) Store {
	if log == nil {
		log = logger.Discard()
	}
	if opts.HistoryTurns <= 0 {
		opts.HistoryTurns = 40
	}
	return &sqlxStore{
		db:     db,
		logger: log.With("component", "store"),
		opts:   opts,
	}
}

// Ping checks the database connection.
func (s *sqlxStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// GetOrCreateProfile inserts the default row if it does not exist and then
// re-reads it, so concurrent first contacts converge on the same row.
func (s *sqlxStore) GetOrCreateProfile(ctx context.Context, userID int64) (*Profile, error) {
	if userID == 0 {
		return nil, fmt.Errorf("user_id cannot be zero")
	}

	v, err, shared := s.creating.Do(strconv.FormatInt(userID, 10), func() (any, error) {
		now := time.Now().UTC()
		_, err := s.db.ExecContext(ctx,
			`INSERT OR IGNORE INTO users (user_id, mood, speak_enabled, created_at, updated_at)
			 VALUES (?, ?, 0, ?, ?);`,
			userID, s.opts.DefaultMood, now, now)
		if err != nil {
			return nil, s.wrap(ctx, "create profile", userID, err)
		}

		var p Profile
		err = s.db.GetContext(ctx, &p,
			`SELECT user_id, mood, speak_enabled, created_at, updated_at FROM users WHERE user_id = ?;`, userID)
		if err != nil {
			return nil, s.wrap(ctx, "fetch profile", userID, err)
		}
		return &p, nil
	})
	if err != nil {
		return nil, err
	}
	if shared {
		s.logger.DebugContext(ctx, "Profile lookup shared with concurrent caller", "user_id", userID)
	}

	p := *v.(*Profile)
	return &p, nil
}

// SetMood upserts the mood column.
func (s *sqlxStore) SetMood(ctx context.Context, userID int64, mood string) error {
	if userID == 0 {
		return fmt.Errorf("user_id cannot be zero")
	}

	now := time.Now().UTC()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO users (user_id, mood, speak_enabled, created_at, updated_at)
		 VALUES (?, ?, 0, ?, ?)
		 ON CONFLICT(user_id) DO UPDATE SET mood = excluded.mood, updated_at = excluded.updated_at;`,
		userID, mood, now, now)
	if err != nil {
		return s.wrap(ctx, "set mood", userID, err)
	}

	s.logger.DebugContext(ctx, "Mood updated", "user_id", userID, "mood", mood)
	return nil
}

// ToggleSpeak flips the flag with a single UPDATE ... RETURNING so the new
// value is derived from the stored one, never from a cached copy.
func (s *sqlxStore) ToggleSpeak(ctx context.Context, userID int64) (bool, error) {
	if userID == 0 {
		return false, fmt.Errorf("user_id cannot be zero")
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return false, s.wrap(ctx, "begin toggle", userID, err)
	}
	defer s.rollback(ctx, tx)

	now := time.Now().UTC()
	if _, err := tx.ExecContext(ctx,
		`INSERT OR IGNORE INTO users (user_id, mood, speak_enabled, created_at, updated_at)
		 VALUES (?, ?, 0, ?, ?);`,
		userID, s.opts.DefaultMood, now, now); err != nil {
		return false, s.wrap(ctx, "create profile for toggle", userID, err)
	}

	var enabled bool
	if err := tx.GetContext(ctx, &enabled,
		`UPDATE users SET speak_enabled = 1 - speak_enabled, updated_at = ?
		 WHERE user_id = ? RETURNING speak_enabled;`,
		now, userID); err != nil {
		return false, s.wrap(ctx, "toggle speak", userID, err)
	}

	if err := tx.Commit(); err != nil {
		return false, s.wrap(ctx, "commit toggle", userID, err)
	}

	s.logger.InfoContext(ctx, "Speak preference toggled", "user_id", userID, "speak_enabled", enabled)
	return enabled, nil
}

// SpeakEnabled returns false for users without a profile.
func (s *sqlxStore) SpeakEnabled(ctx context.Context, userID int64) (bool, error) {
	var enabled bool
	err := s.db.GetContext(ctx, &enabled, `SELECT speak_enabled FROM users WHERE user_id = ?;`, userID)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return false, nil
	case err != nil:
		return false, s.wrap(ctx, "read speak preference", userID, err)
	}
	return enabled, nil
}

// AppendTurn inserts the turn and then deletes everything beyond the newest
// HistoryTurns rows for the user, committing both together.
func (s *sqlxStore) AppendTurn(ctx context.Context, userID int64, role Role, content string) error {
	if userID == 0 {
		return fmt.Errorf("user_id cannot be zero")
	}
	if !role.Valid() {
		return fmt.Errorf("invalid role %q", role)
	}
	if content == "" {
		return fmt.Errorf("turn content cannot be empty")
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return s.wrap(ctx, "begin append", userID, err)
	}
	defer s.rollback(ctx, tx)

	turn := Turn{UserID: userID, Role: role, Content: content, Timestamp: time.Now().UTC()}
	if _, err := tx.NamedExecContext(ctx,
		`INSERT INTO messages (user_id, role, content, timestamp)
		 VALUES (:user_id, :role, :content, :timestamp);`, turn); err != nil {
		return s.wrap(ctx, "insert turn", userID, err)
	}

	res, err := tx.ExecContext(ctx,
		`DELETE FROM messages
		 WHERE user_id = ? AND id NOT IN (
		     SELECT id FROM messages WHERE user_id = ?
		     ORDER BY timestamp DESC, id DESC
		     LIMIT ?
		 );`,
		userID, userID, s.opts.HistoryTurns)
	if err != nil {
		return s.wrap(ctx, "prune history", userID, err)
	}

	if err := tx.Commit(); err != nil {
		return s.wrap(ctx, "commit append", userID, err)
	}

	if pruned, err := res.RowsAffected(); err == nil && pruned > 0 {
		s.logger.DebugContext(ctx, "Pruned history", "user_id", userID, "pruned", pruned)
	}
	return nil
}

// GetHistory returns up to HistoryTurns turns, oldest first.
func (s *sqlxStore) GetHistory(ctx context.Context, userID int64) ([]Turn, error) {
	var turns []Turn
	err := s.db.SelectContext(ctx, &turns,
		`SELECT id, user_id, role, content, timestamp FROM (
		     SELECT id, user_id, role, content, timestamp FROM messages
		     WHERE user_id = ?
		     ORDER BY timestamp DESC, id DESC
		     LIMIT ?
		 ) ORDER BY timestamp ASC, id ASC;`,
		userID, s.opts.HistoryTurns)
	if err != nil {
		return nil, s.wrap(ctx, "read history", userID, err)
	}
	return turns, nil
}

// CountStats reports the number of profiles and stored turns.
func (s *sqlxStore) CountStats(ctx context.Context) (Stats, error) {
	var st Stats
	err := s.db.GetContext(ctx, &st,
		`SELECT (SELECT COUNT(*) FROM users) AS users, (SELECT COUNT(*) FROM messages) AS turns;`)
	if err != nil {
		return Stats{}, s.wrap(ctx, "count rows", 0, err)
	}
	return st, nil
}

// RunSQLMaintenance executes VACUUM and lets SQLite refresh its planner statistics.
func (s *sqlxStore) RunSQLMaintenance(ctx context.Context) error {
	if ctx.Err() != nil {
		s.logger.WarnContext(ctx, "Context cancelled or timed out before starting VACUUM", "error", ctx.Err())
		return ctx.Err()
	}

	s.logger.InfoContext(ctx, "Starting database maintenance (VACUUM)...")

	// VACUUM cannot run inside a transaction.
	_, err := s.db.ExecContext(ctx, "VACUUM;")
	switch {
	case errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled):
		s.logger.WarnContext(ctx, "VACUUM operation timed out or was cancelled", "error", err)
		return fmt.Errorf("database maintenance (VACUUM) timed out: %w", err)
	case err != nil:
		s.logger.ErrorContext(ctx, "Database maintenance (VACUUM) failed", "error", err)
		return fmt.Errorf("failed to execute VACUUM: %w", err)
	}

	if _, err := s.db.ExecContext(ctx, "PRAGMA optimize;"); err != nil {
		s.logger.WarnContext(ctx, "PRAGMA optimize failed", "error", err)
	}

	s.logger.InfoContext(ctx, "Database maintenance (VACUUM) completed successfully")
	return nil
}

func (s *sqlxStore) rollback(ctx context.Context, tx *sqlx.Tx) {
	if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		s.logger.WarnContext(ctx, "Error rolling back transaction", "error", err)
	}
}

// wrap logs a storage failure and tags it with ErrUnavailable. Context
// errors keep their identity so callers can tell timeouts apart.
func (s *sqlxStore) wrap(ctx context.Context, op string, userID int64, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		s.logger.WarnContext(ctx, "Store operation interrupted", "op", op, "user_id", userID, "error", err)
		return fmt.Errorf("%s: %w", op, err)
	}
	s.logger.ErrorContext(ctx, "Store operation failed", "op", op, "user_id", userID, "error", err)
	return fmt.Errorf("%w: %s: %w", ErrUnavailable, op, err)
}
