package ollama

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"golang.org/x/time/rate"

	"github.com/kirillkom/sd-photo-assistant/internal/core/domain"
)

func TestClassifyImageSendsBase64ImageAndParsesJSON(t *testing.T) {
	var payload map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/generate" {
			http.NotFound(w, r)
			return
		}
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		_, _ = w.Write([]byte(`{"response":"{\"category\":\"night\",\"tags\":[\"city\",\"lights\"],\"caption\":\"Neon\",\"confidence\":0.8}"}`))
	}))
	defer server.Close()

	client := New(Options{BaseURL: server.URL, Model: "llava:7b"})
	cls, err := client.ClassifyImage(context.Background(), []byte{0xff, 0xd8})
	if err != nil {
		t.Fatalf("ClassifyImage() error = %v", err)
	}
	if cls.Category != domain.CategoryNight || len(cls.Tags) != 2 {
		t.Fatalf("unexpected classification %+v", cls)
	}
	images, _ := payload["images"].([]any)
	if len(images) != 1 || images[0] != "/9g=" {
		t.Fatalf("expected base64 image in request, got %v", payload["images"])
	}
	if payload["format"] != "json" {
		t.Fatalf("expected json format request")
	}
}

func TestGenerateIncludesHTTPBodyInError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model unavailable", http.StatusBadGateway)
	}))
	defer server.Close()

	client := New(Options{BaseURL: server.URL, Model: "llava"})
	_, err := client.WriteSummary(context.Background(), "hello")
	if err == nil {
		t.Fatalf("expected error")
	}
	if !strings.Contains(err.Error(), "model unavailable") {
		t.Fatalf("expected response body in error, got %v", err)
	}
	if !domain.IsKind(err, domain.ErrRemoteTransport) {
		t.Fatalf("expected ErrRemoteTransport, got %v", err)
	}
}

func TestReadyRequiresModel(t *testing.T) {
	if err := New(Options{BaseURL: "http://localhost:11434"}).Ready(); !domain.IsKind(err, domain.ErrConfig) {
		t.Fatalf("expected ErrConfig, got %v", err)
	}
	if err := New(Options{BaseURL: "http://localhost:11434", Model: "llava"}).Ready(); err != nil {
		t.Fatalf("Ready() error = %v", err)
	}
}

func TestRequestsPerSecondThrottlesCalls(t *testing.T) {
	if New(Options{Model: "llava"}).limiter != nil {
		t.Fatalf("expected no limiter by default")
	}

	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		_, _ = w.Write([]byte(`{"response":"ok"}`))
	}))
	defer server.Close()

	client := New(Options{BaseURL: server.URL, Model: "llava", RequestsPerSecond: 4})
	if client.limiter.Limit() != rate.Limit(4) {
		t.Fatalf("unexpected limit %v", client.limiter.Limit())
	}
	started := time.Now()
	for i := 0; i < 6; i++ {
		if _, err := client.WriteSummary(context.Background(), "stats"); err != nil {
			t.Fatalf("WriteSummary() error = %v", err)
		}
	}
	// Burst of 4, then two more at 250ms spacing.
	if elapsed := time.Since(started); elapsed < 400*time.Millisecond {
		t.Fatalf("expected throttled calls, finished in %s", elapsed)
	}
	if hits.Load() != 6 {
		t.Fatalf("expected 6 calls, got %d", hits.Load())
	}
}
