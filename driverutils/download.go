package driverutils

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// HTTPStatusError is returned for a non-2xx response; it keeps the status so
// the stack operator sees why the download failed.
type HTTPStatusError struct {
	URL        string
	StatusCode int
	Status     string
}

func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("GET %s: %s", e.URL, e.Status)
}

// ScratchError marks a failure writing the downloaded artifact locally.
type ScratchError struct {
	Path string
	Err  error
}

func (e *ScratchError) Error() string {
	return fmt.Sprintf("write scratch file %s: %v", e.Path, e.Err)
}

func (e *ScratchError) Unwrap() error {
	return e.Err
}

type Downloader struct {
	client *http.Client
	logger *zap.Logger
}

// NewDownloader uses a client with an overall timeout; redirects are followed
// by the default policy.
func NewDownloader(logger *zap.Logger) *Downloader {
	return NewDownloaderWithClient(&http.Client{Timeout: 5 * time.Minute}, logger)
}

func NewDownloaderWithClient(client *http.Client, logger *zap.Logger) *Downloader {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Downloader{client: client, logger: logger}
}

// Download fetches url into the file at path, replacing any previous content,
// and returns the number of bytes written.
func (d *Downloader) Download(ctx context.Context, url string, path string) (int64, error) {
	d.logger.Info("about to download the driver", zap.String("url", url))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, errors.Wrapf(err, "build request for %s", url)
	}

	res, err := d.client.Do(req)
	if err != nil {
		d.logger.Error("download failed", zap.String("url", url), zap.Error(err))
		return 0, errors.Wrapf(err, "GET %s", url)
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode > 299 {
		statusErr := &HTTPStatusError{URL: url, StatusCode: res.StatusCode, Status: res.Status}
		d.logger.Error("download failed", zap.String("url", url), zap.Int("status", res.StatusCode))
		return 0, statusErr
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return 0, &ScratchError{Path: path, Err: err}
	}
	file, err := os.Create(path)
	if err != nil {
		return 0, &ScratchError{Path: path, Err: err}
	}
	written, err := io.Copy(file, res.Body)
	if closeErr := file.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return written, &ScratchError{Path: path, Err: err}
	}

	d.logger.Info("driver downloaded", zap.String("path", path), zap.Int64("bytes", written))
	return written, nil
}
