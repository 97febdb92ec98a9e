// Package docs extracts text from uploaded documents and asks the language
// model to analyze it.
package docs

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/ledongthuc/pdf"

	"github.com/edgard/assistbot/internal/config"
	"github.com/edgard/assistbot/internal/result"
)

// Analyzer summarizes extracted content. gemini.Client satisfies it.
type Analyzer interface {
	AnalyzeDocument(ctx context.Context, filename, content string, truncated bool) result.Result[string]
}

// File describes an uploaded document.
type File struct {
	Path     string
	Name     string
	MimeType string
	Size     int64
}

// Outcome is the result of processing one document. Analyzed is false when
// the analyzer was never called (unsupported, oversized, empty or unreadable
// file); Analysis is only meaningful when it is true.
type Outcome struct {
	Status    string
	Content   string
	Truncated bool
	Analyzed  bool
	Analysis  result.Result[string]
}

// AnalysisFailedSuffix is appended to the status when the analyzer returned
// nothing usable.
const AnalysisFailedSuffix = ". Не удалось получить анализ содержимого от AI."

// Extractor reads supported document formats.
type Extractor struct {
	maxFileSize int64
	maxContent  int
	log         *slog.Logger
}

// New creates an Extractor.
func New(cfg config.DocumentsConfig, log *slog.Logger) *Extractor {
	return &Extractor{
		maxFileSize: cfg.MaxFileSize,
		maxContent:  cfg.MaxContentLength,
		log:         log.With("component", "docs"),
	}
}

// MaxFileSize returns the configured size limit in bytes.
func (e *Extractor) MaxFileSize() int64 { return e.maxFileSize }

// CheckSize returns a status message and false when size exceeds the limit.
func (e *Extractor) CheckSize(name string, size int64) (string, bool) {
	if e.maxFileSize > 0 && size > e.maxFileSize {
		return fmt.Sprintf("Файл '%s' слишком большой (>%s)", name, FormatSize(e.maxFileSize)), false
	}
	return "", true
}

// FormatSize renders n bytes in the largest unit that keeps it at least one.
func FormatSize(n int64) string {
	const (
		kb = 1024
		mb = 1024 * kb
	)
	switch {
	case n >= mb:
		return trimUnit(float64(n)/mb, "МБ")
	case n >= kb:
		return trimUnit(float64(n)/kb, "КБ")
	default:
		return fmt.Sprintf("%d Б", n)
	}
}

func trimUnit(v float64, unit string) string {
	s := strings.TrimSuffix(fmt.Sprintf("%.1f", v), ".0")
	return s + " " + unit
}

// Process extracts the document content and, when there is any, asks a to
// analyze it.
func (e *Extractor) Process(ctx context.Context, a Analyzer, f File) Outcome {
	if status, ok := e.CheckSize(f.Name, f.Size); !ok {
		e.log.WarnContext(ctx, "File exceeds max size", "filename", f.Name, "size", f.Size, "limit", e.maxFileSize)
		return Outcome{Status: status}
	}

	out := e.Extract(ctx, f)
	if out.Content == "" {
		return out
	}

	res := a.AnalyzeDocument(ctx, f.Name, out.Content, out.Truncated)
	out.Analyzed = true
	out.Analysis = res
	if !res.OK() {
		e.log.WarnContext(ctx, "Document analysis returned nothing", "filename", f.Name, "result", res.Kind().String())
		if !strings.Contains(out.Status, "Ошибка") {
			out.Status += AnalysisFailedSuffix
		}
	}
	return out
}

// Extract reads the document without analyzing it. Content is empty when
// nothing should be analyzed; Status explains why.
func (e *Extractor) Extract(ctx context.Context, f File) Outcome {
	kind := detect(f.Name, f.MimeType)
	e.log.InfoContext(ctx, "Processing file", "filename", f.Name, "size", f.Size, "mime_type", f.MimeType, "kind", kind)

	var out Outcome
	switch kind {
	case kindText:
		out = e.text(f)
	case kindPDF:
		out = e.pdf(f)
	case kindCSV:
		out = e.table(f, readCSV)
	case kindXLSX:
		out = e.table(f, readXLSX)
	case kindDOCX:
		out = e.docx(f)
	case kindDOC:
		return Outcome{Status: fmt.Sprintf("Файл '%s' старого формата .doc.\n"+
			"Чтение таких файлов напрямую не поддерживается из-за сложности формата.\n"+
			"Пожалуйста, конвертируйте его в формат .docx или .txt и отправьте снова.", f.Name)}
	case kindXLS:
		return Outcome{Status: fmt.Sprintf("Файл '%s' старого формата .xls.\n"+
			"Чтение таких файлов напрямую не поддерживается.\n"+
			"Пожалуйста, конвертируйте его в формат .xlsx или .csv и отправьте снова.", f.Name)}
	default:
		t := strings.TrimPrefix(filepath.Ext(f.Name), ".")
		if t == "" {
			t = f.MimeType
		}
		if t == "" {
			t = "неизвестный"
		}
		e.log.WarnContext(ctx, "Unsupported file type", "filename", f.Name, "mime_type", f.MimeType)
		return Outcome{Status: fmt.Sprintf("Файл '%s' имеет неподдерживаемый тип (%s)", f.Name, t)}
	}

	if out.Content != "" {
		out.Content, out.Truncated = truncate(out.Content, e.maxContent)
		if out.Truncated {
			e.log.WarnContext(ctx, "Content truncated for analysis", "filename", f.Name, "limit", e.maxContent)
		}
	}
	return out
}

func (e *Extractor) text(f File) Outcome {
	data, err := os.ReadFile(f.Path)
	if err != nil {
		e.log.Error("Failed to read text file", "filename", f.Name, "error", err)
		return Outcome{Status: fmt.Sprintf("Ошибка чтения текстового файла %s", f.Name)}
	}
	content := strings.ToValidUTF8(string(data), "")
	if strings.TrimSpace(content) == "" {
		return Outcome{Status: fmt.Sprintf("Файл %s пустой", f.Name)}
	}
	return Outcome{Status: fmt.Sprintf("Извлек текст из %s", f.Name), Content: content}
}

func (e *Extractor) pdf(f File) Outcome {
	content, err := readPDF(f.Path)
	if err != nil {
		e.log.Error("Failed to read PDF", "filename", f.Name, "error", err)
		return Outcome{Status: fmt.Sprintf("Ошибка: Не удалось прочитать PDF файл '%s'. Возможно, он поврежден или имеет несовместимый формат.", f.Name)}
	}
	if strings.TrimSpace(content) == "" {
		return Outcome{Status: fmt.Sprintf("Не удалось извлечь текст из PDF %s (возможно, содержит только изображения или текст не извлекается)", f.Name)}
	}
	return Outcome{
		Status:  fmt.Sprintf("Извлек текст из PDF %s (%d символов)", f.Name, utf8.RuneCountInString(content)),
		Content: content,
	}
}

func readPDF(path string) (content string, err error) {
	// The pdf reader panics on some malformed inputs.
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("pdf reader panic: %v", r)
		}
	}()

	fh, r, err := pdf.Open(path)
	if err != nil {
		return "", err
	}
	defer fh.Close()

	plain, err := r.GetPlainText()
	if err != nil {
		return "", err
	}
	data, err := io.ReadAll(plain)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func (e *Extractor) docx(f File) Outcome {
	content, err := readDOCX(f.Path)
	if err != nil {
		e.log.Error("Failed to read DOCX", "filename", f.Name, "error", err)
		return Outcome{Status: fmt.Sprintf("Ошибка: Не удалось открыть DOCX файл '%s'. Возможно, он поврежден или не является DOCX файлом.", f.Name)}
	}
	if strings.TrimSpace(content) == "" {
		return Outcome{Status: fmt.Sprintf("Не удалось извлечь текст из DOCX %s (файл пустой?)", f.Name)}
	}
	return Outcome{
		Status:  fmt.Sprintf("Извлек текст из DOCX %s (%d символов)", f.Name, utf8.RuneCountInString(content)),
		Content: content,
	}
}

func (e *Extractor) table(f File, read func(string) ([][]string, error)) Outcome {
	rows, err := read(f.Path)
	if err != nil {
		e.log.Error("Failed to read table", "filename", f.Name, "error", err)
		return Outcome{Status: fmt.Sprintf("Ошибка при чтении файла таблицы '%s'. Файл может быть поврежден или иметь несовместимый формат.", f.Name)}
	}
	summary, ok := summarizeTable(rows)
	if !ok {
		return Outcome{Status: fmt.Sprintf("Файл таблицы '%s' пуст.", f.Name)}
	}
	return Outcome{Status: fmt.Sprintf("Прочитал данные из таблицы %s", f.Name), Content: summary}
}

// truncate cuts s to at most limit runes.
func truncate(s string, limit int) (string, bool) {
	if limit <= 0 || utf8.RuneCountInString(s) <= limit {
		return s, false
	}
	return string([]rune(s)[:limit]), true
}

// Truncate cuts s to at most limit runes and appends an ellipsis when it did.
func Truncate(s string, limit int) string {
	if t, cut := truncate(s, limit); cut {
		return t + "..."
	}
	return s
}

type kind string

const (
	kindUnknown kind = "unknown"
	kindText    kind = "txt"
	kindPDF     kind = "pdf"
	kindCSV     kind = "csv"
	kindXLSX    kind = "xlsx"
	kindXLS     kind = "xls"
	kindDOCX    kind = "docx"
	kindDOC     kind = "doc"
)

var mimeKinds = map[string]kind{
	"text/plain":               kindText,
	"application/pdf":          kindPDF,
	"text/csv":                 kindCSV,
	"application/msword":       kindDOC,
	"application/vnd.ms-excel": kindXLS,
	"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet":       kindXLSX,
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document": kindDOCX,
}

// detect prefers the file extension and falls back to the MIME type.
func detect(name, mimeType string) kind {
	switch k := kind(strings.ToLower(strings.TrimPrefix(filepath.Ext(name), "."))); k {
	case kindText, kindPDF, kindCSV, kindXLSX, kindXLS, kindDOCX, kindDOC:
		return k
	}
	if k, ok := mimeKinds[strings.ToLower(mimeType)]; ok {
		return k
	}
	return kindUnknown
}
