package storage

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestFetchImageSuccess(t *testing.T) {
	payload := []byte("fake-jpeg-bytes")
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/jpeg")
		w.Write(payload)
	}))
	defer server.Close()

	fetcher := NewHTTPImageFetcher(5 * time.Second)
	data, err := fetcher.FetchImage(context.Background(), server.URL+"/frame.jpg")
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if !bytes.Equal(data, payload) {
		t.Errorf("Expected %q, got %q", payload, data)
	}
}

func TestFetchImageNon200IsAbsent(t *testing.T) {
	tests := []struct {
		name   string
		status int
	}{
		{"not found", http.StatusNotFound},
		{"forbidden", http.StatusForbidden},
		{"server error", http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
			}))
			defer server.Close()

			fetcher := NewHTTPImageFetcher(5 * time.Second)
			data, err := fetcher.FetchImage(context.Background(), server.URL+"/frame.jpg")
			if err != nil {
				t.Fatalf("Expected absent image without error, got %v", err)
			}
			if data != nil {
				t.Errorf("Expected nil data for status %d, got %d bytes", tt.status, len(data))
			}
		})
	}
}

func TestFetchImageEmptyBodyIsAbsent(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	fetcher := NewHTTPImageFetcher(5 * time.Second)
	data, err := fetcher.FetchImage(context.Background(), server.URL+"/frame.jpg")
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if data != nil {
		t.Error("Expected nil data for empty body")
	}
}

func TestFetchImageTransportError(t *testing.T) {
	fetcher := NewHTTPImageFetcher(2 * time.Second)
	_, err := fetcher.FetchImage(context.Background(), "http://no-such-host.invalid/frame.jpg")
	if err == nil {
		t.Fatal("Expected a transport error for an unresolvable host")
	}
}
