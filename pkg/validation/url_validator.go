package validation

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"go-eyewear-vision/internal/logger"
	"go-eyewear-vision/pkg/models"
)

var imageExtensions = []string{".jpg", ".jpeg", ".png", ".gif", ".webp", ".bmp", ".svg"}

// CDN URLs often carry no extension; a path keyword is accepted instead.
var imageKeywords = []string{"image", "img", "photo", "thumbnail", "media", "catalog", "product"}

// URLValidator checks candidate image URLs, first by format and then by a
// HEAD probe against the remote host.
type URLValidator struct {
	client         *http.Client
	timeout        time.Duration
	maxConcurrency int
}

// NewURLValidator creates a validator that probes URLs with the given
// per-request timeout and at most maxConcurrency requests in flight.
func NewURLValidator(timeout time.Duration, maxConcurrency int) *URLValidator {
	if maxConcurrency < 1 {
		maxConcurrency = 1
	}
	return &URLValidator{
		client: &http.Client{
			Timeout: timeout,
		},
		timeout:        timeout,
		maxConcurrency: maxConcurrency,
	}
}

// CheckFormat validates the URL shape without any network request.
// Returns a non-empty reason when the URL is rejected.
func (v *URLValidator) CheckFormat(rawURL string) (bool, string) {
	trimmed := strings.TrimSpace(rawURL)
	if trimmed == "" {
		return false, "URL is empty"
	}
	if len(trimmed) < 20 {
		return false, "URL too short - appears incomplete"
	}

	parsed, err := url.Parse(trimmed)
	if err != nil {
		return false, "Could not parse URL"
	}
	if parsed.Scheme == "" || parsed.Host == "" {
		return false, "Invalid URL format"
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return false, fmt.Sprintf("Invalid scheme: %s", parsed.Scheme)
	}
	if !strings.Contains(parsed.Host, ".") {
		return false, "Invalid domain"
	}
	if len(parsed.Path) < 5 {
		return false, "URL path too short - likely incomplete"
	}

	lower := strings.ToLower(trimmed)
	hasExtension := false
	for _, ext := range imageExtensions {
		if strings.HasSuffix(lower, ext) {
			hasExtension = true
			break
		}
	}
	hasKeyword := false
	for _, keyword := range imageKeywords {
		if strings.Contains(lower, keyword) {
			hasKeyword = true
			break
		}
	}
	if !hasExtension && !hasKeyword {
		return false, "URL does not appear to be an image"
	}

	segments := strings.Split(parsed.Path, "/")
	if strings.HasSuffix(parsed.Path, "/") || len(segments[len(segments)-1]) < 3 {
		return false, "URL appears incomplete - ends with folder path"
	}

	return true, ""
}

// ValidateOne runs the format check and then a HEAD probe. The returned
// InvalidURL is nil when the URL passed every check.
func (v *URLValidator) ValidateOne(ctx context.Context, rawURL string) *models.InvalidURL {
	if ok, reason := v.CheckFormat(rawURL); !ok {
		return &models.InvalidURL{
			URL:          rawURL,
			ErrorType:    "invalid_format",
			ErrorMessage: reason,
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, strings.TrimSpace(rawURL), nil)
	if err != nil {
		return &models.InvalidURL{
			URL:          rawURL,
			ErrorType:    "invalid_format",
			ErrorMessage: fmt.Sprintf("Could not build request: %v", err),
		}
	}

	resp, err := v.client.Do(req)
	if err != nil {
		return v.classifyTransportError(rawURL, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return &models.InvalidURL{
			URL:          rawURL,
			ErrorType:    "not_found",
			ErrorMessage: "URL returned 404 Not Found",
		}
	case resp.StatusCode == http.StatusForbidden:
		return &models.InvalidURL{
			URL:          rawURL,
			ErrorType:    "forbidden",
			ErrorMessage: "URL returned 403 Forbidden (access denied)",
		}
	case resp.StatusCode >= 400:
		return &models.InvalidURL{
			URL:          rawURL,
			ErrorType:    "http_error",
			ErrorMessage: fmt.Sprintf("URL returned HTTP %d", resp.StatusCode),
		}
	}

	// Some CDNs omit content-type on HEAD responses, so only an explicit
	// non-image type is rejected.
	contentType := strings.ToLower(resp.Header.Get("Content-Type"))
	if contentType != "" && !strings.HasPrefix(contentType, "image/") {
		for _, marker := range []string{"text", "html", "json", "xml"} {
			if strings.Contains(contentType, marker) {
				return &models.InvalidURL{
					URL:          rawURL,
					ErrorType:    "not_an_image",
					ErrorMessage: fmt.Sprintf("Content-Type is '%s', not an image", contentType),
				}
			}
		}
	}

	return nil
}

func (v *URLValidator) classifyTransportError(rawURL string, err error) *models.InvalidURL {
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return &models.InvalidURL{
			URL:          rawURL,
			ErrorType:    "timeout",
			ErrorMessage: fmt.Sprintf("Request timed out after %s", v.timeout),
		}
	}
	var opErr *net.OpError
	var dnsErr *net.DNSError
	if errors.As(err, &opErr) || errors.As(err, &dnsErr) {
		return &models.InvalidURL{
			URL:          rawURL,
			ErrorType:    "connection_error",
			ErrorMessage: "Could not connect to URL (DNS resolution failed or host unreachable)",
		}
	}
	logger.WithError(err).WithField("url", rawURL).Error("Unexpected error validating URL")
	return &models.InvalidURL{
		URL:          rawURL,
		ErrorType:    "unknown_error",
		ErrorMessage: fmt.Sprintf("Validation failed: %v", err),
	}
}

// ValidateAll probes all URLs concurrently and partitions them into valid
// URLs (in input order) and invalid URLs with error details.
func (v *URLValidator) ValidateAll(ctx context.Context, urls []string) ([]string, models.ImageValidation) {
	results := make([]*models.InvalidURL, len(urls))

	sem := make(chan struct{}, v.maxConcurrency)
	var wg sync.WaitGroup
	for i, u := range urls {
		wg.Add(1)
		go func(idx int, rawURL string) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()
			results[idx] = v.ValidateOne(ctx, rawURL)
		}(i, u)
	}
	wg.Wait()

	valid := make([]string, 0, len(urls))
	summary := models.ImageValidation{
		TotalProvided: len(urls),
		InvalidURLs:   []models.InvalidURL{},
	}
	for i, result := range results {
		if result == nil {
			valid = append(valid, urls[i])
		} else {
			summary.InvalidURLs = append(summary.InvalidURLs, *result)
		}
	}
	summary.ValidCount = len(valid)
	summary.InvalidCount = len(summary.InvalidURLs)
	return valid, summary
}
