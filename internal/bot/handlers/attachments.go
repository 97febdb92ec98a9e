package handlers

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-telegram/bot/models"
	"golang.org/x/sync/errgroup"

	"github.com/edgard/assistbot/internal/database"
	"github.com/edgard/assistbot/internal/delivery"
	"github.com/edgard/assistbot/internal/docs"
	"github.com/edgard/assistbot/internal/result"
)

const (
	historyPhotoFmt       = "[Отправлено изображение '%s']"
	historyPhotoResultFmt = "[Анализ изображения '%s'] %s %s"
	historyDocumentFmt    = "[Отправлен файл для анализа: %s]"

	defaultVoiceMime = "audio/ogg"
	photoMime        = "image/jpeg"
)

// voice transcribes a voice message and answers the transcript like typed
// text. The weather trigger does not apply to transcripts.
func (cv *conversation) voice(ctx context.Context, c Client, target delivery.Target, v *models.Voice) {
	msgs := cv.deps.Config.Messages
	p := cv.placeholder(ctx, c, target, msgs.VoiceProcessing)

	file, err := cv.deps.Files.Download(ctx, c, v.FileID, "voice", ".ogg")
	if err != nil {
		cv.log.ErrorContext(ctx, "Failed to download voice message", "file_id", v.FileID, "error", err)
		cv.notify(ctx, c, target, p, msgs.VoiceDownloadError)
		return
	}
	defer file.Release()

	cv.progress(ctx, p, msgs.VoiceRecognizing)
	audio, err := os.ReadFile(file.Path())
	file.Release()
	if err != nil {
		cv.log.ErrorContext(ctx, "Failed to read voice file", "error", err)
		cv.notify(ctx, c, target, p, msgs.VoiceDownloadError)
		return
	}

	mime := v.MimeType
	if mime == "" {
		mime = defaultVoiceMime
	}
	res := cv.deps.Gemini.Transcribe(ctx, mime, audio)
	transcript, ok := res.Value()
	if !ok {
		cv.log.WarnContext(ctx, "Speech was not recognized", "user_id", target.UserID, "result", res.String())
		cv.notify(ctx, c, target, p, msgs.VoiceNotRecognized)
		return
	}

	cv.progress(ctx, p, fmt.Sprintf(msgs.VoiceRecognizedFmt, transcript))
	cv.chat(ctx, c, target, transcript, nil)
	if p != nil {
		p.Delete(ctx)
	}
}

// photo describes the largest size of a photo. OCR runs alongside the
// vision model; its text goes to history only.
func (cv *conversation) photo(ctx context.Context, c Client, target delivery.Target, sizes []models.PhotoSize) {
	msgs := cv.deps.Config.Messages
	photo := largestPhoto(sizes)
	p := cv.placeholder(ctx, c, target, msgs.PhotoProcessing)

	file, err := cv.deps.Files.Download(ctx, c, photo.FileID, "photo", ".jpg")
	if err != nil {
		cv.log.ErrorContext(ctx, "Failed to download photo", "file_id", photo.FileID, "error", err)
		cv.notify(ctx, c, target, p, msgs.PhotoDownloadError)
		return
	}
	defer file.Release()

	data, err := os.ReadFile(file.Path())
	if err != nil {
		cv.log.ErrorContext(ctx, "Failed to read photo file", "error", err)
		cv.notify(ctx, c, target, p, msgs.PhotoDownloadError)
		return
	}

	var ocr, vision result.Result[string]
	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		ocr = cv.deps.OCR.Extract(gCtx, file.Path())
		return nil
	})
	g.Go(func() error {
		vision = cv.deps.Gemini.AnalyzeImage(gCtx, photoMime, data)
		return nil
	})
	_ = g.Wait()
	file.Release()

	id := photo.FileUniqueID
	if id == "" {
		id = photo.FileID
	}
	cv.record(ctx, target.UserID, database.RoleUser, fmt.Sprintf(historyPhotoFmt, id))
	cv.record(ctx, target.UserID, database.RoleModel,
		fmt.Sprintf(historyPhotoResultFmt, id, visionSummary(vision), ocrSummary(ocr)))

	description, ok := vision.Value()
	if !ok {
		cv.log.WarnContext(ctx, "No image description", "file_id", photo.FileID, "result", vision.String())
		cv.notify(ctx, c, target, p, msgs.PhotoNoDescription)
		return
	}
	cv.resolve(ctx, c, target, p, delivery.Message{Text: cv.renderer.Render(description), Dialect: cv.deps.Dialect})
}

// document extracts and analyzes an uploaded file. Oversized files are
// refused before download.
func (cv *conversation) document(ctx context.Context, c Client, target delivery.Target, doc *models.Document) {
	msgs := cv.deps.Config.Messages
	name := doc.FileName
	if name == "" {
		name = doc.FileID
	}

	if status, ok := cv.deps.Docs.CheckSize(name, doc.FileSize); !ok {
		cv.log.WarnContext(ctx, "Refusing oversized document", "filename", name, "size", doc.FileSize)
		cv.deps.Delivery.SendPlain(ctx, c, target, status)
		return
	}

	p := cv.placeholder(ctx, c, target, fmt.Sprintf(msgs.FileProcessingFmt, name))

	file, err := cv.deps.Files.Download(ctx, c, doc.FileID, "doc", strings.ToLower(filepath.Ext(name)))
	if err != nil {
		cv.log.ErrorContext(ctx, "Failed to download document", "filename", name, "error", err)
		cv.notify(ctx, c, target, p, fmt.Sprintf(msgs.FileDownloadErrFmt, name))
		return
	}
	defer file.Release()

	out := cv.deps.Docs.Process(ctx, cv.deps.Gemini, docs.File{
		Path:     file.Path(),
		Name:     name,
		MimeType: doc.MimeType,
		Size:     doc.FileSize,
	})
	file.Release()

	cv.record(ctx, target.UserID, database.RoleUser, fmt.Sprintf(historyDocumentFmt, name))
	cv.record(ctx, target.UserID, database.RoleModel, cv.documentSummary(out))

	analysis, ok := out.Analysis.Value()
	if !out.Analyzed || !ok {
		cv.notify(ctx, c, target, p, out.Status)
		return
	}

	d := cv.deps.Dialect
	text := d.Italic(d.Escape(out.Status)) + "\n\n" + cv.renderer.Render(analysis)
	cv.resolve(ctx, c, target, p, delivery.Message{Text: text, Dialect: d})
}

// documentSummary is the history entry for a processed document.
func (cv *conversation) documentSummary(out docs.Outcome) string {
	parts := []string{fmt.Sprintf("[Статус обработки: %s]", out.Status)}
	if out.Content != "" {
		parts = append(parts, fmt.Sprintf("[Содержимое: %s]",
			docs.Truncate(out.Content, cv.deps.Config.Documents.MaxHistoryContentLength)))
	}
	if out.Analyzed {
		if analysis, ok := out.Analysis.Value(); ok {
			parts = append(parts, fmt.Sprintf("[Анализ Gemini: %s]", analysis))
		} else {
			parts = append(parts, "[Анализ Gemini: "+cv.deps.Config.Messages.FileNoAnalysis+"]")
		}
	}
	return strings.Join(parts, " ")
}

func visionSummary(r result.Result[string]) string {
	if text, ok := r.Value(); ok {
		return fmt.Sprintf("Vision: '%s'.", docs.Truncate(text, historyPreviewLength))
	}
	return "Vision: Ошибка."
}

// ocrSummary keeps "no text" and "OCR failed" apart.
func ocrSummary(r result.Result[string]) string {
	switch r.Kind() {
	case result.KindSuccess:
		return fmt.Sprintf("OCR: '%s'.", docs.Truncate(r.ValueOr(""), historyPreviewLength))
	case result.KindEmpty:
		return "OCR: Текст не найден."
	default:
		return "OCR: Ошибка."
	}
}

// largestPhoto picks the size with the most pixels.
func largestPhoto(sizes []models.PhotoSize) models.PhotoSize {
	best := sizes[0]
	for _, s := range sizes[1:] {
		if s.Width*s.Height > best.Width*best.Height {
			best = s
		}
	}
	return best
}
