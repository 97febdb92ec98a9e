package delivery_test

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edgard/assistbot/internal/delivery"
	"github.com/edgard/assistbot/internal/delivery/deliverytest"
	"github.com/edgard/assistbot/internal/markup"
)

func TestPlaceholder_UpdateTreatsNotModifiedAsSuccess(t *testing.T) {
	t.Parallel()

	tr := &deliverytest.Transport{EditErrs: []error{deliverytest.ErrNotModified}}
	e := newEngine(t, prefs{}, nil, 4096)

	ph, err := e.NewPlaceholder(context.Background(), tr, target, "working...")
	require.NoError(t, err)

	assert.NoError(t, ph.Update(context.Background(), "working..."))

	tr.EditErrs = []error{deliverytest.ErrNetwork}
	assert.Error(t, ph.Update(context.Background(), "still working"))
}

func TestPlaceholder_ResolveEditsInPlace(t *testing.T) {
	t.Parallel()

	tr := &deliverytest.Transport{}
	e := newEngine(t, prefs{}, nil, 4096)

	ph, err := e.NewPlaceholder(context.Background(), tr, target, "working...")
	require.NoError(t, err)

	out := ph.Resolve(context.Background(), delivery.Message{Text: "<b>done</b>", Dialect: markup.HTML{}})

	assert.Equal(t, delivery.OutcomeText, out)
	require.Len(t, tr.Edits, 1)
	assert.Equal(t, ph.MessageID(), tr.Edits[0].MessageID)
	assert.Equal(t, "<b>done</b>", tr.Edits[0].Text)
	assert.Empty(t, tr.Deleted)
}

func TestPlaceholder_ResolveFallsBackToPlainEdit(t *testing.T) {
	t.Parallel()

	tr := &deliverytest.Transport{EditErrs: []error{deliverytest.ErrMarkup}}
	e := newEngine(t, prefs{}, nil, 4096)

	ph, err := e.NewPlaceholder(context.Background(), tr, target, "working...")
	require.NoError(t, err)

	out := ph.Resolve(context.Background(), delivery.Message{Text: "<b>done", Dialect: markup.HTML{}})

	assert.Equal(t, delivery.OutcomeText, out)
	require.Len(t, tr.Edits, 2)
	assert.Equal(t, "done", tr.Edits[1].Text)
}

func TestPlaceholder_ResolveLongTextReplacesPlaceholder(t *testing.T) {
	t.Parallel()

	tr := &deliverytest.Transport{}
	e := newEngine(t, prefs{}, nil, 100)

	ph, err := e.NewPlaceholder(context.Background(), tr, target, "working...")
	require.NoError(t, err)

	text := strings.Repeat("a", 80) + "\n" + strings.Repeat("b", 80)
	out := ph.Resolve(context.Background(), delivery.Message{Text: text})

	assert.Equal(t, delivery.OutcomeText, out)
	assert.Equal(t, []int{ph.MessageID()}, tr.Deleted)
	assert.Len(t, tr.Sent, 3)

	ph.Delete(context.Background())
	assert.Len(t, tr.Deleted, 1, "Delete must only act once")
}

func TestPlaceholder_ResolveSendsPlainAfterBothEditsFail(t *testing.T) {
	t.Parallel()

	tr := &deliverytest.Transport{EditErrs: []error{deliverytest.ErrMarkup, deliverytest.ErrNetwork}}
	e := newEngine(t, prefs{}, nil, 4096)

	ph, err := e.NewPlaceholder(context.Background(), tr, target, "working...")
	require.NoError(t, err)

	out := ph.Resolve(context.Background(), delivery.Message{Text: "<b>done", Dialect: markup.HTML{}})

	assert.Equal(t, delivery.OutcomeText, out)
	assert.Equal(t, []int{ph.MessageID()}, tr.Deleted)
	require.Len(t, tr.Sent, 2, "placeholder plus a single plain send")
	assert.Equal(t, "done", tr.Sent[1].Text)
	assert.Empty(t, tr.Sent[1].ParseMode)
}

func TestPlaceholder_ResolveKeepsMarkupWhenEditFailsOtherwise(t *testing.T) {
	t.Parallel()

	tr := &deliverytest.Transport{EditErrs: []error{deliverytest.ErrNetwork}}
	e := newEngine(t, prefs{}, nil, 4096)

	ph, err := e.NewPlaceholder(context.Background(), tr, target, "working...")
	require.NoError(t, err)

	out := ph.Resolve(context.Background(), delivery.Message{Text: "<b>done</b>", Dialect: markup.HTML{}})

	assert.Equal(t, delivery.OutcomeText, out)
	require.Len(t, tr.Edits, 1)
	require.Len(t, tr.Sent, 2)
	assert.Equal(t, "<b>done</b>", tr.Sent[1].Text)
	assert.Equal(t, markup.HTML{}.ParseMode(), tr.Sent[1].ParseMode)
}
