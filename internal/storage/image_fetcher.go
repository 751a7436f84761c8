package storage

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"go-eyewear-vision/internal/logger"
)

// ImageFetcher downloads image bytes for the vision stage.
type ImageFetcher interface {
	FetchImage(ctx context.Context, url string) ([]byte, error)
}

// HTTPImageFetcher implements ImageFetcher over plain HTTP GET.
type HTTPImageFetcher struct {
	client *http.Client
}

// NewHTTPImageFetcher creates a fetcher with the given per-request timeout.
func NewHTTPImageFetcher(timeout time.Duration) *HTTPImageFetcher {
	return &HTTPImageFetcher{
		client: &http.Client{
			Timeout: timeout,
		},
	}
}

// FetchImage downloads the image at url. A non-200 response is treated as
// the image being absent: it logs and returns (nil, nil) so one dead URL
// does not fail the whole product. Transport failures return an error.
func (f *HTTPImageFetcher) FetchImage(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request for %s: %w", url, err)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to download image from %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		logger.WithFields(logrus.Fields{
			"url":         url,
			"status_code": resp.StatusCode,
		}).Warn("Image download returned non-200 status")
		return nil, nil
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read image body from %s: %w", url, err)
	}
	if len(data) == 0 {
		logger.WithField("url", url).Warn("Image download returned empty body")
		return nil, nil
	}

	return data, nil
}
