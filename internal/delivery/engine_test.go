package delivery_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-telegram/bot/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/edgard/assistbot/internal/delivery"
	"github.com/edgard/assistbot/internal/delivery/deliverytest"
	"github.com/edgard/assistbot/internal/markup"
	"github.com/edgard/assistbot/internal/result"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type prefs struct {
	enabled bool
	err     error
}

func (p prefs) SpeakEnabled(context.Context, int64) (bool, error) { return p.enabled, p.err }

// fileSynth writes a small audio file per call and remembers its path.
type fileSynth struct {
	dir   string
	fail  bool
	calls atomic.Int32
	last  string
}

func (s *fileSynth) Synthesize(_ context.Context, text string) result.Result[string] {
	s.calls.Add(1)
	if s.fail {
		return result.Failed[string](errors.New("tts down"))
	}
	path := filepath.Join(s.dir, "speech.mp3")
	if err := os.WriteFile(path, []byte("ID3:"+text), 0o600); err != nil {
		return result.Failed[string](err)
	}
	s.last = path
	return result.Success(path)
}

func newEngine(t *testing.T, p prefs, synth delivery.Synthesizer, limit int) *delivery.Engine {
	t.Helper()
	return delivery.NewEngine(p, synth, delivery.Options{
		MaxMessageLength:   limit,
		SegmentDelay:       time.Millisecond,
		FailureNotice:      "notice",
		SpeechFailedNotice: "speech failed",
	}, nil)
}

var target = delivery.Target{ChatID: 100, UserID: 7, ReplyTo: 55}

func TestDeliver_SingleMessageWithMarkup(t *testing.T) {
	t.Parallel()

	tr := &deliverytest.Transport{}
	e := newEngine(t, prefs{}, nil, 4096)

	out := e.Deliver(context.Background(), tr, target, delivery.Message{Text: "<b>hi</b>", Dialect: markup.HTML{}})

	assert.Equal(t, delivery.OutcomeText, out)
	require.Len(t, tr.Sent, 1)
	assert.Equal(t, models.ParseModeHTML, tr.Sent[0].ParseMode)
	assert.Equal(t, 55, tr.Sent[0].ReplyParameters.MessageID)
}

func TestDeliver_EmptyTextIsSuppressed(t *testing.T) {
	t.Parallel()

	tr := &deliverytest.Transport{}
	out := newEngine(t, prefs{}, nil, 4096).Deliver(context.Background(), tr, target, delivery.Message{Text: "  "})

	assert.Equal(t, delivery.OutcomeNone, out)
	assert.Empty(t, tr.Sent)
}

func TestDeliver_SegmentsCarryControlsOnlyOnLast(t *testing.T) {
	t.Parallel()

	tr := &deliverytest.Transport{}
	e := newEngine(t, prefs{}, nil, 100)
	text := strings.Repeat("a", 80) + "\n" + strings.Repeat("b", 80) + "\n" + strings.Repeat("c", 80)
	kb := &models.InlineKeyboardMarkup{}

	out := e.Deliver(context.Background(), tr, target, delivery.Message{Text: text, ReplyMarkup: kb})

	assert.Equal(t, delivery.OutcomeText, out)
	require.Len(t, tr.Sent, 3)
	assert.NotNil(t, tr.Sent[0].ReplyParameters)
	assert.Nil(t, tr.Sent[1].ReplyParameters)
	assert.Nil(t, tr.Sent[0].ReplyMarkup)
	assert.Nil(t, tr.Sent[1].ReplyMarkup)
	assert.Equal(t, kb, tr.Sent[2].ReplyMarkup)
}

func TestDeliver_MarkupRejectedRetriesPlainOnce(t *testing.T) {
	t.Parallel()

	tr := &deliverytest.Transport{SendErrs: []error{deliverytest.ErrMarkup}}
	e := newEngine(t, prefs{}, nil, 4096)

	out := e.Deliver(context.Background(), tr, target, delivery.Message{Text: `*bold\!*`, Dialect: markup.MarkdownV2{}})

	assert.Equal(t, delivery.OutcomeText, out)
	require.Len(t, tr.Sent, 2)
	assert.Equal(t, models.ParseModeMarkdown, tr.Sent[0].ParseMode)
	assert.Equal(t, models.ParseMode(""), tr.Sent[1].ParseMode)
	assert.Equal(t, "bold!", tr.Sent[1].Text)
}

func TestDeliver_MarkupRejectedTwiceSendsNotice(t *testing.T) {
	t.Parallel()

	tr := &deliverytest.Transport{SendErrs: []error{deliverytest.ErrMarkup, deliverytest.ErrMarkup}}
	e := newEngine(t, prefs{}, nil, 4096)

	out := e.Deliver(context.Background(), tr, target, delivery.Message{Text: "<b>x", Dialect: markup.HTML{}})

	assert.Equal(t, delivery.OutcomeNotice, out)
	assert.Equal(t, []string{"<b>x", "x", "notice"}, tr.Texts())
}

func TestDeliver_NetworkErrorDoesNotRetryPlain(t *testing.T) {
	t.Parallel()

	tr := &deliverytest.Transport{SendErrs: []error{deliverytest.ErrNetwork}}
	e := newEngine(t, prefs{}, nil, 4096)

	out := e.Deliver(context.Background(), tr, target, delivery.Message{Text: "<b>x</b>", Dialect: markup.HTML{}})

	assert.Equal(t, delivery.OutcomeNotice, out)
	assert.Equal(t, []string{"<b>x</b>", "notice"}, tr.Texts())
}

func TestDeliver_MidStreamFailureSkipsRemainingSegments(t *testing.T) {
	t.Parallel()

	tr := &deliverytest.Transport{SendErrs: []error{nil, deliverytest.ErrNetwork}}
	e := newEngine(t, prefs{}, nil, 100)
	text := strings.Repeat("a", 80) + "\n" + strings.Repeat("b", 80) + "\n" + strings.Repeat("c", 80)

	out := e.Deliver(context.Background(), tr, target, delivery.Message{Text: text})

	assert.Equal(t, delivery.OutcomeText, out)
	assert.Len(t, tr.Sent, 2)
}

func TestDeliver_CancelledDuringPacing(t *testing.T) {
	t.Parallel()

	tr := &deliverytest.Transport{}
	e := delivery.NewEngine(prefs{}, nil, delivery.Options{MaxMessageLength: 100, SegmentDelay: time.Hour}, nil)
	text := strings.Repeat("a", 80) + "\n" + strings.Repeat("b", 80)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	out := e.Deliver(ctx, tr, target, delivery.Message{Text: text})
	assert.Equal(t, delivery.OutcomeText, out)
	assert.Len(t, tr.Sent, 1)
}

func TestDeliver_VoiceWhenEnabled(t *testing.T) {
	t.Parallel()

	tr := &deliverytest.Transport{}
	synth := &fileSynth{dir: t.TempDir()}
	e := newEngine(t, prefs{enabled: true}, synth, 4096)

	out := e.Deliver(context.Background(), tr, target, delivery.Message{Text: "<b>Привет</b>", Dialect: markup.HTML{}})

	assert.Equal(t, delivery.OutcomeVoice, out)
	assert.Empty(t, tr.Sent)
	require.Len(t, tr.Voices, 1)
	assert.Equal(t, "ID3:Привет", string(tr.Voices[0].Data))
	assert.NoFileExists(t, synth.last)
	assert.Contains(t, tr.Actions, models.ChatActionRecordVoice)
}

func TestDeliver_PreferenceErrorFallsBackToText(t *testing.T) {
	t.Parallel()

	tr := &deliverytest.Transport{}
	synth := &fileSynth{dir: t.TempDir()}
	e := newEngine(t, prefs{enabled: true, err: errors.New("db locked")}, synth, 4096)

	out := e.Deliver(context.Background(), tr, target, delivery.Message{Text: "hi"})

	assert.Equal(t, delivery.OutcomeText, out)
	assert.Zero(t, synth.calls.Load())
}

func TestVoice_UploadFailureRemovesFileAndNotifies(t *testing.T) {
	t.Parallel()

	tr := &deliverytest.Transport{VoiceErr: errors.New("upload failed")}
	synth := &fileSynth{dir: t.TempDir()}
	e := newEngine(t, prefs{}, synth, 4096)

	out := e.Voice(context.Background(), tr, target, "text")

	assert.Equal(t, delivery.OutcomeNotice, out)
	assert.Equal(t, []string{"speech failed"}, tr.Texts())
	assert.NoFileExists(t, synth.last)
}

func TestVoice_SynthesisFailureNotifies(t *testing.T) {
	t.Parallel()

	tr := &deliverytest.Transport{}
	e := newEngine(t, prefs{}, &fileSynth{dir: t.TempDir(), fail: true}, 4096)

	out := e.Voice(context.Background(), tr, target, "text")

	assert.Equal(t, delivery.OutcomeNotice, out)
	assert.Zero(t, tr.VoiceCount())
}

func TestSpeak_EmptyTextNeverSynthesizes(t *testing.T) {
	t.Parallel()

	synth := &fileSynth{dir: t.TempDir()}
	err := newEngine(t, prefs{}, synth, 4096).Speak(context.Background(), &deliverytest.Transport{}, target, "  ")

	assert.ErrorIs(t, err, delivery.ErrEmptySpeech)
	assert.Zero(t, synth.calls.Load())
}

func TestIsMarkupRejected(t *testing.T) {
	t.Parallel()

	tests := []struct {
		err  error
		want bool
	}{
		{nil, false},
		{deliverytest.ErrMarkup, true},
		{errors.New("Bad Request: can't parse entities: unexpected end"), true},
		{deliverytest.ErrNetwork, false},
		{deliverytest.ErrNotModified, false},
	}
	for _, tt := range tests {
		if got := delivery.IsMarkupRejected(tt.err); got != tt.want {
			t.Errorf("IsMarkupRejected(%v) = %v, want %v", tt.err, got, tt.want)
		}
	}
}
