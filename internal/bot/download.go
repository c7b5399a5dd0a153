package bot

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog/log"
)

const (
	// DefaultDownloadTimeout is the default timeout for video downloads
	DefaultDownloadTimeout = 2 * time.Minute
	// DefaultMaxVideoSize is the Telegram Bot API download limit (20MB)
	DefaultMaxVideoSize = 20 * 1024 * 1024
)

// VideoDownloader downloads Telegram video files to disk.
type VideoDownloader struct {
	client  *resty.Client
	maxSize int64
	dir     string
}

// NewVideoDownloader creates a downloader writing into dir. An empty dir
// uses the system temp dir.
func NewVideoDownloader(dir string) *VideoDownloader {
	return &VideoDownloader{
		client:  resty.New().SetTimeout(DefaultDownloadTimeout),
		maxSize: DefaultMaxVideoSize,
		dir:     dir,
	}
}

// WithTimeout sets a custom timeout for downloads.
func (d *VideoDownloader) WithTimeout(timeout time.Duration) *VideoDownloader {
	d.client.SetTimeout(timeout)
	return d
}

// WithMaxSize sets a custom maximum file size.
func (d *VideoDownloader) WithMaxSize(maxSize int64) *VideoDownloader {
	d.maxSize = maxSize
	return d
}

// MaxSize returns the largest file the downloader accepts.
func (d *VideoDownloader) MaxSize() int64 {
	return d.maxSize
}

// DownloadFromURL streams the file at url into a new temp file and returns
// its path. The caller removes the file.
func (d *VideoDownloader) DownloadFromURL(ctx context.Context, url, fileName string) (string, error) {
	res, err := d.client.R().
		SetContext(ctx).
		SetDoNotParseResponse(true).
		Get(url)
	if err != nil {
		return "", fmt.Errorf("failed to download video: %w", err)
	}
	body := res.RawBody()
	defer body.Close()

	if res.IsError() {
		return "", fmt.Errorf("download failed: status %d", res.StatusCode())
	}

	contentType := res.Header().Get("Content-Type")
	if contentType != "" && !isVideoContentType(contentType) {
		return "", fmt.Errorf("invalid content type: expected video/*, got %s", contentType)
	}

	ext := filepath.Ext(fileName)
	if ext == "" {
		ext = ".mp4"
	}
	f, err := os.CreateTemp(d.dir, "video-*"+ext)
	if err != nil {
		return "", fmt.Errorf("failed to create temp file: %w", err)
	}

	// Read one byte past the limit to detect oversized bodies without
	// trusting Content-Length
	n, err := io.Copy(f, io.LimitReader(body, d.maxSize+1))
	closeErr := f.Close()
	if err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(f.Name())
		return "", fmt.Errorf("failed to write video: %w", err)
	}
	if n > d.maxSize {
		os.Remove(f.Name())
		return "", fmt.Errorf("video too large: exceeds limit of %d bytes", d.maxSize)
	}

	return f.Name(), nil
}

// DownloadFromTelegramFileID downloads a video from Telegram using a file ID.
// It uses the provided function to resolve the file ID to a direct URL.
func (d *VideoDownloader) DownloadFromTelegramFileID(
	ctx context.Context,
	getFileDirectURL func(fileID string) (string, error),
	fileID string,
	fileName string,
) (string, error) {
	log.Info().Str("fileID", fileID).Msg("downloading telegram file")

	url, err := getFileDirectURL(fileID)
	if err != nil {
		return "", fmt.Errorf("failed to get file URL: %w", err)
	}

	return d.DownloadFromURL(ctx, url, fileName)
}

func isVideoContentType(ct string) bool {
	return strings.HasPrefix(ct, "video/") || strings.HasPrefix(ct, "application/octet-stream")
}
