// Package delivery sends rendered replies to the chat transport. It decides
// between voice and text, splits long text into segments and falls back to
// plain text when the transport rejects markup.
package delivery

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"github.com/edgard/assistbot/internal/logger"
	"github.com/edgard/assistbot/internal/markup"
	"github.com/edgard/assistbot/internal/result"
)

// MaxMessageLength is the transport's hard ceiling for one text message.
const MaxMessageLength = 4096

// ErrEmptySpeech is returned when there is nothing to synthesize.
var ErrEmptySpeech = errors.New("empty text for speech")

// Transport is the subset of the Telegram client used for delivery.
// *bot.Bot satisfies it.
type Transport interface {
	SendMessage(ctx context.Context, params *bot.SendMessageParams) (*models.Message, error)
	EditMessageText(ctx context.Context, params *bot.EditMessageTextParams) (*models.Message, error)
	DeleteMessage(ctx context.Context, params *bot.DeleteMessageParams) (bool, error)
	SendVoice(ctx context.Context, params *bot.SendVoiceParams) (*models.Message, error)
	SendChatAction(ctx context.Context, params *bot.SendChatActionParams) (bool, error)
}

// Preferences reports whether a user wants replies spoken.
type Preferences interface {
	SpeakEnabled(ctx context.Context, userID int64) (bool, error)
}

// Synthesizer turns text into an audio file. Ownership of the returned path
// passes to the caller; a failed synthesis leaves no file behind.
type Synthesizer interface {
	Synthesize(ctx context.Context, text string) result.Result[string]
}

// Target addresses one reply.
type Target struct {
	ChatID  int64
	UserID  int64
	ReplyTo int
}

// Message is a reply ready for delivery. A nil Dialect means plain text.
type Message struct {
	Text        string
	Dialect     markup.Dialect
	ReplyMarkup models.ReplyMarkup
}

// Outcome reports which kind of delivery happened.
type Outcome int

const (
	// OutcomeNone means nothing reached the user.
	OutcomeNone Outcome = iota
	// OutcomeText means the text (possibly several segments) was sent.
	OutcomeText
	// OutcomeVoice means a voice message was sent.
	OutcomeVoice
	// OutcomeNotice means a generic failure notice was sent instead.
	OutcomeNotice
)

func (o Outcome) String() string {
	switch o {
	case OutcomeText:
		return "text"
	case OutcomeVoice:
		return "voice"
	case OutcomeNotice:
		return "notice"
	default:
		return "none"
	}
}

// Options configures an Engine.
type Options struct {
	MaxMessageLength   int
	SegmentDelay       time.Duration
	FailureNotice      string
	SpeechFailedNotice string
}

// Engine delivers replies. It holds no per-request state and is safe for
// concurrent use.
type Engine struct {
	prefs Preferences
	synth Synthesizer
	opts  Options
	log   *slog.Logger
}

// NewEngine creates a delivery engine.
func NewEngine(prefs Preferences, synth Synthesizer, opts Options, log *slog.Logger) *Engine {
	if log == nil {
		log = logger.Discard()
	}
	if opts.MaxMessageLength <= 0 || opts.MaxMessageLength > MaxMessageLength {
		opts.MaxMessageLength = MaxMessageLength
	}
	return &Engine{
		prefs: prefs,
		synth: synth,
		opts:  opts,
		log:   log.With("component", "delivery"),
	}
}

// Deliver sends msg as voice when the user enabled speech and as text
// otherwise. Exactly one of voice, text or a failure notice is attempted;
// errors are logged and never returned.
func (e *Engine) Deliver(ctx context.Context, t Transport, target Target, msg Message) Outcome {
	if strings.TrimSpace(msg.Text) == "" {
		e.log.WarnContext(ctx, "Refusing to deliver empty message", "chat_id", target.ChatID)
		return OutcomeNone
	}

	if e.speakEnabled(ctx, target.UserID) {
		return e.Voice(ctx, t, target, plainText(msg))
	}
	return e.sendText(ctx, t, target, msg)
}

// SendPlain sends fixed text without markup, ignoring the speech preference.
func (e *Engine) SendPlain(ctx context.Context, t Transport, target Target, text string) Outcome {
	if strings.TrimSpace(text) == "" {
		return OutcomeNone
	}
	return e.sendText(ctx, t, target, Message{Text: text})
}

// Voice speaks text regardless of the user's preference and sends the speech
// failure notice when synthesis or upload fails.
func (e *Engine) Voice(ctx context.Context, t Transport, target Target, text string) Outcome {
	if err := e.Speak(ctx, t, target, text); err != nil {
		e.log.ErrorContext(ctx, "Voice delivery failed", "chat_id", target.ChatID, "error", err)
		return e.notice(ctx, t, target, e.opts.SpeechFailedNotice)
	}
	return OutcomeVoice
}

// Speak synthesizes text and uploads it as a voice message. The audio file is
// removed on every path once synthesis has produced it.
func (e *Engine) Speak(ctx context.Context, t Transport, target Target, text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return ErrEmptySpeech
	}
	if e.synth == nil {
		return errors.New("speech synthesis is not configured")
	}

	if _, err := t.SendChatAction(ctx, &bot.SendChatActionParams{
		ChatID: target.ChatID,
		Action: models.ChatActionRecordVoice,
	}); err != nil {
		e.log.DebugContext(ctx, "Failed to send chat action", "error", err)
	}

	res := e.synth.Synthesize(ctx, text)
	path, ok := res.Value()
	if !ok {
		if res.IsEmpty() {
			return fmt.Errorf("speech synthesis produced no audio")
		}
		return fmt.Errorf("speech synthesis failed: %w", res.Err())
	}
	defer e.removeFile(ctx, path)

	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open synthesized audio: %w", err)
	}
	defer f.Close()

	params := &bot.SendVoiceParams{
		ChatID: target.ChatID,
		Voice:  &models.InputFileUpload{Filename: filepath.Base(path), Data: f},
	}
	if target.ReplyTo > 0 {
		params.ReplyParameters = &models.ReplyParameters{MessageID: target.ReplyTo, AllowSendingWithoutReply: true}
	}
	if _, err := t.SendVoice(ctx, params); err != nil {
		return fmt.Errorf("failed to send voice: %w", err)
	}

	e.log.InfoContext(ctx, "Voice message sent", "chat_id", target.ChatID, "text_length", len(text))
	return nil
}

func (e *Engine) speakEnabled(ctx context.Context, userID int64) bool {
	if e.prefs == nil || userID == 0 {
		return false
	}
	enabled, err := e.prefs.SpeakEnabled(ctx, userID)
	if err != nil {
		e.log.WarnContext(ctx, "Failed to read speak preference, using text", "user_id", userID, "error", err)
		return false
	}
	return enabled
}

// sendText sends every segment in order. A failure on the first segment
// turns into the failure notice; a later failure skips the remaining ones.
func (e *Engine) sendText(ctx context.Context, t Transport, target Target, msg Message) Outcome {
	segments := SplitMarkup(msg.Text, e.opts.MaxMessageLength, msg.Dialect)
	if len(segments) == 0 {
		return OutcomeNone
	}

	for i, seg := range segments {
		if i > 0 {
			if err := sleep(ctx, e.opts.SegmentDelay); err != nil {
				e.log.WarnContext(ctx, "Segment delivery interrupted", "chat_id", target.ChatID,
					"sent", i, "total", len(segments), "error", err)
				return OutcomeText
			}
		}

		var replyMarkup models.ReplyMarkup
		if i == len(segments)-1 {
			replyMarkup = msg.ReplyMarkup
		}
		replyTo := 0
		if i == 0 {
			replyTo = target.ReplyTo
		}

		err := e.sendSegment(ctx, t, target.ChatID, replyTo, seg, msg.Dialect, replyMarkup)
		if err == nil {
			continue
		}
		if i == 0 {
			e.log.ErrorContext(ctx, "Failed to send reply", "chat_id", target.ChatID, "error", err)
			return e.notice(ctx, t, target, e.opts.FailureNotice)
		}
		e.log.ErrorContext(ctx, "Failed to send segment, skipping the rest", "chat_id", target.ChatID,
			"segment", i+1, "total", len(segments), "error", err)
		return OutcomeText
	}

	e.log.DebugContext(ctx, "Reply delivered", "chat_id", target.ChatID, "segments", len(segments))
	return OutcomeText
}

// fallback stages for one segment.
type stage int

const (
	stageMarkup stage = iota
	stagePlain
	stageGiveUp
)

// sendSegment tries markup once, then plain text once, then gives up.
func (e *Engine) sendSegment(ctx context.Context, t Transport, chatID int64, replyTo int, text string, d markup.Dialect, replyMarkup models.ReplyMarkup) error {
	st := stageMarkup
	if d == nil {
		st = stagePlain
	}

	var lastErr error
	for st != stageGiveUp {
		params := &bot.SendMessageParams{
			ChatID:             chatID,
			Text:               text,
			ReplyMarkup:        replyMarkup,
			LinkPreviewOptions: &models.LinkPreviewOptions{IsDisabled: bot.True()},
		}
		if replyTo > 0 {
			params.ReplyParameters = &models.ReplyParameters{MessageID: replyTo, AllowSendingWithoutReply: true}
		}

		switch st {
		case stageMarkup:
			params.ParseMode = d.ParseMode()
			_, lastErr = t.SendMessage(ctx, params)
			switch {
			case lastErr == nil:
				return nil
			case IsMarkupRejected(lastErr):
				e.log.WarnContext(ctx, "Transport rejected markup, retrying as plain text", "chat_id", chatID, "error", lastErr)
				st = stagePlain
			default:
				st = stageGiveUp
			}
		case stagePlain:
			if d != nil {
				params.Text = d.Strip(text)
			}
			if _, lastErr = t.SendMessage(ctx, params); lastErr == nil {
				return nil
			}
			st = stageGiveUp
		}
	}
	return lastErr
}

func (e *Engine) notice(ctx context.Context, t Transport, target Target, text string) Outcome {
	if text == "" {
		return OutcomeNone
	}
	if _, err := t.SendMessage(ctx, &bot.SendMessageParams{ChatID: target.ChatID, Text: text}); err != nil {
		e.log.ErrorContext(ctx, "Failed to send failure notice", "chat_id", target.ChatID, "error", err)
		return OutcomeNone
	}
	return OutcomeNotice
}

func (e *Engine) removeFile(ctx context.Context, path string) {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		e.log.WarnContext(ctx, "Failed to remove audio file", "path", path, "error", err)
	}
}

func plainText(msg Message) string {
	if msg.Dialect == nil {
		return msg.Text
	}
	return msg.Dialect.Strip(msg.Text)
}

// sleep waits for d or until ctx is done.
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// IsMarkupRejected reports whether err is the transport refusing to parse
// the message's markup, as opposed to a network or permission failure.
func IsMarkupRejected(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "can't parse entities") {
		return true
	}
	return errors.Is(err, bot.ErrorBadRequest) &&
		(strings.Contains(msg, "can't find end of") || strings.Contains(msg, "unsupported start tag"))
}

// IsNotModified reports whether an edit failed only because the content is unchanged.
func IsNotModified(err error) bool {
	return err != nil && strings.Contains(strings.ToLower(err.Error()), "message is not modified")
}
