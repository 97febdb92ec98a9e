package handlers

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"github.com/edgard/assistbot/internal/httpkit"
	"github.com/edgard/assistbot/internal/scratch"
)

const (
	telegramAPI     = "https://api.telegram.org"
	downloadTimeout = 2 * time.Minute
)

// FileGetter resolves a file id to its download path.
type FileGetter interface {
	GetFile(ctx context.Context, params *bot.GetFileParams) (*models.File, error)
}

// FileFetcher downloads attachments from the Bot API file endpoint.
type FileFetcher struct {
	http    *http.Client
	baseURL string
	token   string
	maxSize int64
	dir     *scratch.Dir
	log     *slog.Logger
}

// NewFileFetcher creates a Downloader. Files larger than maxSize are refused.
func NewFileFetcher(token string, dir *scratch.Dir, maxSize int64, log *slog.Logger) *FileFetcher {
	log = log.With("component", "file_fetcher")
	return &FileFetcher{
		http: httpkit.NewClient(
			httpkit.WithTimeout(downloadTimeout),
			httpkit.WithRetry(2, time.Second),
			httpkit.WithLogger(log),
		),
		baseURL: telegramAPI,
		token:   token,
		maxSize: maxSize,
		dir:     dir,
		log:     log,
	}
}

// Download fetches fileID into a new scratch file. The caller must Release it.
func (f *FileFetcher) Download(ctx context.Context, c FileGetter, fileID, kind, ext string) (*scratch.File, error) {
	info, err := c.GetFile(ctx, &bot.GetFileParams{FileID: fileID})
	if err != nil {
		return nil, fmt.Errorf("failed to get file info: %w", err)
	}
	if info.FilePath == "" {
		return nil, fmt.Errorf("file %s has no download path", fileID)
	}

	link := fmt.Sprintf("%s/file/bot%s/%s", f.baseURL, f.token, info.FilePath)
	data, err := httpkit.Get(ctx, f.http, link, f.maxSize)
	if err != nil {
		// The request URL carries the bot token.
		var uerr *url.Error
		if errors.As(err, &uerr) {
			err = uerr.Err
		}
		return nil, fmt.Errorf("failed to download file %s: %w", fileID, err)
	}

	file, err := f.dir.Write(kind, ext, bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	f.log.DebugContext(ctx, "File downloaded", "file_id", fileID, "size", len(data), "path", file.Path())
	return file, nil
}
