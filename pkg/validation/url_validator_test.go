package validation

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestCheckFormat(t *testing.T) {
	v := NewURLValidator(3*time.Second, 5)

	tests := []struct {
		name      string
		url       string
		wantValid bool
	}{
		{
			name:      "valid jpg URL",
			url:       "https://cdn.example.com/products/frame-123.jpg",
			wantValid: true,
		},
		{
			name:      "valid keyword URL without extension",
			url:       "https://cdn.example.com/media/items/frame-123",
			wantValid: true,
		},
		{
			name:      "empty URL",
			url:       "",
			wantValid: false,
		},
		{
			name:      "whitespace only",
			url:       "   ",
			wantValid: false,
		},
		{
			name:      "too short",
			url:       "https://a.co/x.jpg",
			wantValid: false,
		},
		{
			name:      "ftp scheme",
			url:       "ftp://cdn.example.com/products/frame-123.jpg",
			wantValid: false,
		},
		{
			name:      "host without dot",
			url:       "https://localhost/products/frame-123.jpg",
			wantValid: false,
		},
		{
			name:      "path too short",
			url:       "https://www.example-store.com/i.j",
			wantValid: false,
		},
		{
			name:      "no extension and no keyword",
			url:       "https://cdn.example.com/assets/file-12345.pdf",
			wantValid: false,
		},
		{
			name:      "ends with folder path",
			url:       "https://cdn.example.com/products/images/",
			wantValid: false,
		},
		{
			name:      "last segment too short",
			url:       "https://cdn.example.com/products/images/ab",
			wantValid: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			valid, reason := v.CheckFormat(tt.url)
			if valid != tt.wantValid {
				t.Errorf("CheckFormat(%q) = %v (%q), want valid=%v", tt.url, valid, reason, tt.wantValid)
			}
			if !valid && reason == "" {
				t.Error("Expected a rejection reason for an invalid URL")
			}
		})
	}
}

func TestValidateOne(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/images/good-frame.jpg":
			w.Header().Set("Content-Type", "image/jpeg")
			w.WriteHeader(http.StatusOK)
		case "/images/missing-frame.jpg":
			w.WriteHeader(http.StatusNotFound)
		case "/images/locked-frame.jpg":
			w.WriteHeader(http.StatusForbidden)
		case "/images/broken-frame.jpg":
			w.WriteHeader(http.StatusInternalServerError)
		case "/images/error-page.jpg":
			w.Header().Set("Content-Type", "text/html; charset=utf-8")
			w.WriteHeader(http.StatusOK)
		case "/images/untyped-frame.jpg":
			// No content-type at all, as some CDNs do on HEAD
			w.WriteHeader(http.StatusOK)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer server.Close()

	v := NewURLValidator(3*time.Second, 5)

	tests := []struct {
		name          string
		path          string
		wantErrorType string
	}{
		{"reachable image", "/images/good-frame.jpg", ""},
		{"missing image", "/images/missing-frame.jpg", "not_found"},
		{"forbidden image", "/images/locked-frame.jpg", "forbidden"},
		{"server error", "/images/broken-frame.jpg", "http_error"},
		{"html response", "/images/error-page.jpg", "not_an_image"},
		{"missing content type accepted", "/images/untyped-frame.jpg", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := v.ValidateOne(context.Background(), server.URL+tt.path)
			if tt.wantErrorType == "" {
				if result != nil {
					t.Errorf("Expected valid URL, got error %s: %s", result.ErrorType, result.ErrorMessage)
				}
				return
			}
			if result == nil {
				t.Fatalf("Expected error type %s, got valid", tt.wantErrorType)
			}
			if result.ErrorType != tt.wantErrorType {
				t.Errorf("Expected error type %s, got %s", tt.wantErrorType, result.ErrorType)
			}
		})
	}
}

func TestValidateAllPartitionsResults(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/images/missing-frame.jpg" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "image/png")
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	v := NewURLValidator(3*time.Second, 5)

	urls := []string{
		server.URL + "/images/front-view.png",
		"not-a-url",
		server.URL + "/images/missing-frame.jpg",
		server.URL + "/images/side-view.png",
	}

	valid, summary := v.ValidateAll(context.Background(), urls)

	if summary.TotalProvided != 4 {
		t.Errorf("Expected total 4, got %d", summary.TotalProvided)
	}
	if summary.ValidCount != 2 || len(valid) != 2 {
		t.Fatalf("Expected 2 valid URLs, got %d (%v)", len(valid), valid)
	}
	if summary.InvalidCount != 2 || len(summary.InvalidURLs) != 2 {
		t.Fatalf("Expected 2 invalid URLs, got %d", len(summary.InvalidURLs))
	}
	// Valid URLs keep their input order
	if valid[0] != urls[0] || valid[1] != urls[3] {
		t.Errorf("Valid URLs out of order: %v", valid)
	}
}

func TestValidateOneConnectionError(t *testing.T) {
	v := NewURLValidator(2*time.Second, 5)

	// Reserved TLD, guaranteed not to resolve
	result := v.ValidateOne(context.Background(), "https://no-such-host.invalid/images/frame-123.jpg")
	if result == nil {
		t.Fatal("Expected a validation error for an unresolvable host")
	}
	if result.ErrorType != "connection_error" && result.ErrorType != "timeout" && result.ErrorType != "unknown_error" {
		t.Errorf("Unexpected error type %s", result.ErrorType)
	}
}
