// Package deliverytest provides an in-memory chat transport for tests.
package deliverytest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
)

// ErrMarkup is what the Bot API answers for malformed entities.
var ErrMarkup = fmt.Errorf("%w, Bad Request: can't parse entities: can't find end of bold entity at byte offset 3", bot.ErrorBadRequest)

// ErrNetwork simulates a failure unrelated to markup.
var ErrNetwork = errors.New("connection reset by peer")

// ErrNotModified is what the Bot API answers for an edit with identical content.
var ErrNotModified = fmt.Errorf("%w, Bad Request: message is not modified", bot.ErrorBadRequest)

// Voice is an uploaded voice message.
type Voice struct {
	ChatID   any
	Filename string
	Data     []byte
}

// Transport records every call. Errors queued in SendErrs and EditErrs are
// returned by successive calls; an exhausted queue means success.
type Transport struct {
	mu sync.Mutex

	Sent     []bot.SendMessageParams
	Edits    []bot.EditMessageTextParams
	Deleted  []int
	Voices   []Voice
	Actions  []models.ChatAction
	Answered []bot.AnswerCallbackQueryParams

	SendErrs []error
	EditErrs []error
	VoiceErr error
	FileErr  error

	nextID int
}

// SendMessage implements delivery.Transport.
func (t *Transport) SendMessage(_ context.Context, p *bot.SendMessageParams) (*models.Message, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.Sent = append(t.Sent, *p)
	if len(t.SendErrs) > 0 {
		err := t.SendErrs[0]
		t.SendErrs = t.SendErrs[1:]
		if err != nil {
			return nil, err
		}
	}
	t.nextID++
	return &models.Message{ID: t.nextID, Text: p.Text}, nil
}

// EditMessageText implements delivery.Transport.
func (t *Transport) EditMessageText(_ context.Context, p *bot.EditMessageTextParams) (*models.Message, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.Edits = append(t.Edits, *p)
	if len(t.EditErrs) > 0 {
		err := t.EditErrs[0]
		t.EditErrs = t.EditErrs[1:]
		if err != nil {
			return nil, err
		}
	}
	return &models.Message{ID: p.MessageID, Text: p.Text}, nil
}

// DeleteMessage implements delivery.Transport.
func (t *Transport) DeleteMessage(_ context.Context, p *bot.DeleteMessageParams) (bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.Deleted = append(t.Deleted, p.MessageID)
	return true, nil
}

// SendVoice implements delivery.Transport and reads the uploaded audio.
func (t *Transport) SendVoice(_ context.Context, p *bot.SendVoiceParams) (*models.Message, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.VoiceErr != nil {
		return nil, t.VoiceErr
	}
	v := Voice{ChatID: p.ChatID}
	if up, ok := p.Voice.(*models.InputFileUpload); ok {
		v.Filename = up.Filename
		data, err := io.ReadAll(up.Data)
		if err != nil {
			return nil, err
		}
		v.Data = data
	}
	t.Voices = append(t.Voices, v)
	t.nextID++
	return &models.Message{ID: t.nextID}, nil
}

// SendChatAction implements delivery.Transport.
func (t *Transport) SendChatAction(_ context.Context, p *bot.SendChatActionParams) (bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.Actions = append(t.Actions, p.Action)
	return true, nil
}

// GetFile resolves a file id to a file path equal to the id.
func (t *Transport) GetFile(_ context.Context, p *bot.GetFileParams) (*models.File, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.FileErr != nil {
		return nil, t.FileErr
	}
	return &models.File{FileID: p.FileID, FilePath: p.FileID}, nil
}

// AnswerCallbackQuery records callback answers.
func (t *Transport) AnswerCallbackQuery(_ context.Context, p *bot.AnswerCallbackQueryParams) (bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.Answered = append(t.Answered, *p)
	return true, nil
}

// Texts returns the text of every sent message in order.
func (t *Transport) Texts() []string {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]string, len(t.Sent))
	for i, p := range t.Sent {
		out[i] = p.Text
	}
	return out
}

// VoiceCount returns the number of uploaded voice messages.
func (t *Transport) VoiceCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.Voices)
}
