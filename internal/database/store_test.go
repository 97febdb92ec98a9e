package database_test

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edgard/assistbot/internal/database"
	"github.com/edgard/assistbot/internal/logger"
)

func newTestStore(t *testing.T, historyTurns int) database.Store {
	t.Helper()

	db, err := database.NewDB(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { database.CloseDB(db) })

	return database.NewStore(db, logger.Discard(), database.Options{
		DefaultMood:  "friendly",
		HistoryTurns: historyTurns,
	})
}

func TestStore_GetOrCreateProfileDefaults(t *testing.T) {
	store := newTestStore(t, 10)
	ctx := context.Background()

	p, err := store.GetOrCreateProfile(ctx, 42)
	require.NoError(t, err)
	assert.Equal(t, int64(42), p.UserID)
	assert.Equal(t, "friendly", p.Mood)
	assert.False(t, p.SpeakEnabled)

	again, err := store.GetOrCreateProfile(ctx, 42)
	require.NoError(t, err)
	assert.Equal(t, p.CreatedAt, again.CreatedAt)
}

func TestStore_GetOrCreateProfileConcurrent(t *testing.T) {
	store := newTestStore(t, 10)
	ctx := context.Background()

	const workers = 16
	var wg sync.WaitGroup
	errs := make(chan error, workers)
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p, err := store.GetOrCreateProfile(ctx, 7)
			if err == nil && p.Mood != "friendly" {
				err = fmt.Errorf("unexpected mood %q", p.Mood)
			}
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		require.NoError(t, err)
	}

	stats, err := store.CountStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Users)
}

func TestStore_SetMoodUpserts(t *testing.T) {
	store := newTestStore(t, 10)
	ctx := context.Background()

	require.NoError(t, store.SetMood(ctx, 5, "sarcastic"))
	p, err := store.GetOrCreateProfile(ctx, 5)
	require.NoError(t, err)
	assert.Equal(t, "sarcastic", p.Mood)

	require.NoError(t, store.SetMood(ctx, 5, "professional"))
	p, err = store.GetOrCreateProfile(ctx, 5)
	require.NoError(t, err)
	assert.Equal(t, "professional", p.Mood)
}

func TestStore_ToggleSpeakIsInvolution(t *testing.T) {
	store := newTestStore(t, 10)
	ctx := context.Background()

	enabled, err := store.SpeakEnabled(ctx, 9)
	require.NoError(t, err)
	assert.False(t, enabled, "missing profile reads as disabled")

	first, err := store.ToggleSpeak(ctx, 9)
	require.NoError(t, err)
	second, err := store.ToggleSpeak(ctx, 9)
	require.NoError(t, err)

	assert.True(t, first)
	assert.False(t, second)

	_, err = store.ToggleSpeak(ctx, 9)
	require.NoError(t, err)
	enabled, err = store.SpeakEnabled(ctx, 9)
	require.NoError(t, err)
	assert.True(t, enabled)
}

func TestStore_HistoryIsBounded(t *testing.T) {
	const limit = 6
	store := newTestStore(t, limit)
	ctx := context.Background()

	for i := range 15 {
		role := database.RoleUser
		if i%2 == 1 {
			role = database.RoleModel
		}
		require.NoError(t, store.AppendTurn(ctx, 1, role, fmt.Sprintf("turn %d", i)))
	}
	require.NoError(t, store.AppendTurn(ctx, 2, database.RoleUser, "other user"))

	history, err := store.GetHistory(ctx, 1)
	require.NoError(t, err)
	require.Len(t, history, limit)
	for i, turn := range history {
		assert.Equal(t, fmt.Sprintf("turn %d", 15-limit+i), turn.Content)
	}

	other, err := store.GetHistory(ctx, 2)
	require.NoError(t, err)
	require.Len(t, other, 1)

	stats, err := store.CountStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, limit+1, stats.Turns)
}

func TestStore_AppendTurnValidation(t *testing.T) {
	store := newTestStore(t, 10)
	ctx := context.Background()

	tests := []struct {
		name    string
		userID  int64
		role    database.Role
		content string
	}{
		{"zero user", 0, database.RoleUser, "x"},
		{"bad role", 1, database.Role("system"), "x"},
		{"empty content", 1, database.RoleModel, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := store.AppendTurn(ctx, tt.userID, tt.role, tt.content); err == nil {
				t.Errorf("AppendTurn() error = nil, want error")
			}
		})
	}
}

func TestStore_MaintenanceAndPing(t *testing.T) {
	store := newTestStore(t, 10)
	ctx := context.Background()

	require.NoError(t, store.Ping(ctx))
	require.NoError(t, store.AppendTurn(ctx, 1, database.RoleUser, "hello"))
	require.NoError(t, store.RunSQLMaintenance(ctx))

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	assert.ErrorIs(t, store.RunSQLMaintenance(cancelled), context.Canceled)
}

func TestExtractDBNameFromPath(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want string
	}{
		{"storage.db", "storage.db"},
		{"file:storage.db?_pragma=busy_timeout(5000)", "storage.db"},
		{"file:my%20bot.db", "my bot.db"},
	}
	for _, tt := range tests {
		if got := database.ExtractDBNameFromPath(tt.in); got != tt.want {
			t.Errorf("ExtractDBNameFromPath(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
