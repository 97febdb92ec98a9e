// Package ocr extracts text from images with the tesseract command.
package ocr

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/edgard/assistbot/internal/config"
	"github.com/edgard/assistbot/internal/result"
)

// Output shorter than minUsefulChars letters and digits, or with fewer than
// minUsefulRatio of them among the non-space runes, is recognition noise.
const (
	minUsefulChars = 5
	minUsefulRatio = 0.4
)

// Engine runs tesseract. Extract returns Empty when tesseract ran but found
// no useful text and Failed when it could not run.
type Engine struct {
	binary    string
	languages string
	psm       int
	timeout   time.Duration
	log       *slog.Logger
}

// New creates an OCR engine.
func New(cfg config.OCRConfig, log *slog.Logger) *Engine {
	return &Engine{
		binary:    cfg.Binary,
		languages: cfg.Languages,
		psm:       cfg.PSM,
		timeout:   cfg.Timeout,
		log:       log.With("component", "ocr"),
	}
}

// Available reports whether the tesseract binary can be found.
func (e *Engine) Available() bool {
	_, err := exec.LookPath(e.binary)
	return err == nil
}

// Extract recognizes the text in the image at path.
func (e *Engine) Extract(ctx context.Context, path string) result.Result[string] {
	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	args := []string{path, "stdout", "-l", e.languages, "--psm", strconv.Itoa(e.psm)}
	cmd := exec.CommandContext(ctx, e.binary, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	if err := cmd.Run(); err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			err = fmt.Errorf("tesseract timed out after %s: %w", e.timeout, ctx.Err())
		} else if msg := strings.TrimSpace(stderr.String()); msg != "" {
			err = fmt.Errorf("tesseract failed: %w: %s", err, firstLine(msg))
		} else {
			err = fmt.Errorf("tesseract failed: %w", err)
		}
		e.log.ErrorContext(ctx, "OCR failed", "path", path, "error", err)
		return result.Failed[string](err)
	}

	text := normalize(stdout.String())
	e.log.InfoContext(ctx, "OCR finished", "path", path, "length", len(text), "duration", time.Since(start))
	if text != "" && !Useful(text) {
		e.log.DebugContext(ctx, "Discarding OCR noise", "path", path, "text", text)
		return result.Empty[string]()
	}
	return result.FromText(text, nil)
}

// Useful reports whether recognized text has enough letters and digits to be
// worth keeping.
func Useful(text string) bool {
	var total, alnum int
	for _, r := range text {
		if unicode.IsSpace(r) {
			continue
		}
		total++
		if r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r) {
			alnum++
		}
	}
	if alnum < minUsefulChars {
		return false
	}
	return float64(alnum)/float64(total) >= minUsefulRatio
}

// normalize trims each line and drops empty ones.
func normalize(s string) string {
	lines := strings.Split(s, "\n")
	out := lines[:0]
	for _, l := range lines {
		if l = strings.TrimSpace(l); l != "" {
			out = append(out, l)
		}
	}
	return strings.Join(out, "\n")
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
