package delivery

import (
	"context"
	"fmt"
	"sync"

	"github.com/go-telegram/bot"
)

// Placeholder is a "processing..." message that is edited in place while a
// long collaborator call runs and finally replaced by the result.
type Placeholder struct {
	engine    *Engine
	t         Transport
	target    Target
	messageID int

	deleteOnce sync.Once
}

// NewPlaceholder sends the initial status message.
func (e *Engine) NewPlaceholder(ctx context.Context, t Transport, target Target, text string) (*Placeholder, error) {
	params := &bot.SendMessageParams{ChatID: target.ChatID, Text: text}
	msg, err := t.SendMessage(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("failed to send placeholder: %w", err)
	}
	return &Placeholder{engine: e, t: t, target: target, messageID: msg.ID}, nil
}

// MessageID returns the transport id of the placeholder message.
func (p *Placeholder) MessageID() int { return p.messageID }

// Update replaces the placeholder text with an interim status. An unchanged
// text is not an error.
func (p *Placeholder) Update(ctx context.Context, text string) error {
	_, err := p.t.EditMessageText(ctx, &bot.EditMessageTextParams{
		ChatID:    p.target.ChatID,
		MessageID: p.messageID,
		Text:      text,
	})
	if err != nil && !IsNotModified(err) {
		return fmt.Errorf("failed to update placeholder: %w", err)
	}
	return nil
}

// Resolve turns the placeholder into the final reply. A reply that fits in
// one message replaces the placeholder text (with the markup, then the plain
// fallback); anything else, including spoken replies, is delivered as new
// messages after the placeholder is deleted.
func (p *Placeholder) Resolve(ctx context.Context, msg Message) Outcome {
	e := p.engine
	if e.speakEnabled(ctx, p.target.UserID) || TextLength(msg.Text) > e.opts.MaxMessageLength {
		p.Delete(ctx)
		return e.Deliver(ctx, p.t, p.target, msg)
	}

	markupRejected, err := p.edit(ctx, msg)
	if err == nil {
		return OutcomeText
	}
	e.log.WarnContext(ctx, "Failed to edit placeholder with result, sending new message",
		"chat_id", p.target.ChatID, "error", err)
	p.Delete(ctx)
	if markupRejected {
		return e.sendText(ctx, p.t, p.target, Message{Text: plainText(msg), ReplyMarkup: msg.ReplyMarkup})
	}
	return e.sendText(ctx, p.t, p.target, msg)
}

// edit replaces the placeholder text with msg. markupRejected reports that
// the transport refused msg's markup, so a fresh send should be plain.
func (p *Placeholder) edit(ctx context.Context, msg Message) (markupRejected bool, err error) {
	params := &bot.EditMessageTextParams{
		ChatID:      p.target.ChatID,
		MessageID:   p.messageID,
		Text:        msg.Text,
		ReplyMarkup: msg.ReplyMarkup,
	}
	if msg.Dialect != nil {
		params.ParseMode = msg.Dialect.ParseMode()
	}

	_, err = p.t.EditMessageText(ctx, params)
	if err == nil || IsNotModified(err) {
		return false, nil
	}
	if msg.Dialect == nil || !IsMarkupRejected(err) {
		return false, err
	}

	params.ParseMode = ""
	params.Text = msg.Dialect.Strip(msg.Text)
	_, err = p.t.EditMessageText(ctx, params)
	if err == nil || IsNotModified(err) {
		return true, nil
	}
	return true, err
}

// Delete removes the placeholder. Only the first call has an effect.
func (p *Placeholder) Delete(ctx context.Context) {
	p.deleteOnce.Do(func() {
		if _, err := p.t.DeleteMessage(ctx, &bot.DeleteMessageParams{
			ChatID:    p.target.ChatID,
			MessageID: p.messageID,
		}); err != nil {
			p.engine.log.WarnContext(ctx, "Failed to delete placeholder", "chat_id", p.target.ChatID,
				"message_id", p.messageID, "error", err)
		}
	})
}
