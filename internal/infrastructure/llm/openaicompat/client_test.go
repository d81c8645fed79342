package openaicompat

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/kirillkom/sd-photo-assistant/internal/core/domain"
	"github.com/kirillkom/sd-photo-assistant/internal/infrastructure/resilience"
)

func chatServer(t *testing.T, status int, content string, capture func(*http.Request, map[string]any)) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			http.NotFound(w, r)
			return
		}
		var payload map[string]any
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if capture != nil {
			capture(r, payload)
		}
		if status != http.StatusOK {
			http.Error(w, "upstream says no", status)
			return
		}
		resp := map[string]any{
			"choices": []any{map[string]any{"message": map[string]any{"content": content}}},
		}
		_ = json.NewEncoder(w).Encode(resp)
	}))
}

func TestClassifyImageBuildsVisionRequest(t *testing.T) {
	var auth string
	var body map[string]any
	server := chatServer(t, http.StatusOK, `{"category":"风光","tags":["mountain"," lake ",""],"caption":"Calm","confidence":0.91}`,
		func(r *http.Request, payload map[string]any) {
			auth = r.Header.Get("Authorization")
			body = payload
		})
	defer server.Close()

	client := New(Options{BaseURL: server.URL, APIKey: "sk-test", Model: "gpt-4o-mini"})
	cls, err := client.ClassifyImage(context.Background(), []byte("jpeg-bytes"))
	if err != nil {
		t.Fatalf("ClassifyImage() error = %v", err)
	}
	if auth != "Bearer sk-test" {
		t.Fatalf("unexpected auth header %q", auth)
	}
	if body["model"] != "gpt-4o-mini" || body["max_tokens"] != float64(500) {
		t.Fatalf("unexpected request body %v", body)
	}
	raw, _ := json.Marshal(body["messages"])
	if !strings.Contains(string(raw), "data:image/jpeg;base64,") {
		t.Fatalf("expected data URL image part, got %s", raw)
	}
	if cls.Category != domain.CategoryLandscape {
		t.Fatalf("expected landscape, got %q", cls.Category)
	}
	if len(cls.Tags) != 2 || cls.Tags[1] != "lake" {
		t.Fatalf("expected trimmed tags, got %v", cls.Tags)
	}
}

func TestClassifyImageFallsBackToEmbeddedObject(t *testing.T) {
	server := chatServer(t, http.StatusOK, "Sure! ```json\n{\"category\":\"food\",\"tags\":[\"ramen\"],\"caption\":\"Lunch\",\"confidence\":0.7}\n```", nil)
	defer server.Close()

	cls, err := New(Options{BaseURL: server.URL, APIKey: "k"}).ClassifyImage(context.Background(), []byte("x"))
	if err != nil {
		t.Fatalf("ClassifyImage() error = %v", err)
	}
	if cls.Category != domain.CategoryFood || cls.Caption != "Lunch" {
		t.Fatalf("unexpected classification %+v", cls)
	}
}

func TestClassifyImageWithoutJSONIsFormatError(t *testing.T) {
	server := chatServer(t, http.StatusOK, "I cannot see the image.", nil)
	defer server.Close()

	_, err := New(Options{BaseURL: server.URL, APIKey: "k"}).ClassifyImage(context.Background(), []byte("x"))
	if !domain.IsKind(err, domain.ErrRemoteFormat) {
		t.Fatalf("expected ErrRemoteFormat, got %v", err)
	}
}

func TestClassifyImageMapsStatuses(t *testing.T) {
	cases := []struct {
		status int
		kind   error
	}{
		{http.StatusServiceUnavailable, domain.ErrRemoteTransport},
		{http.StatusTooManyRequests, domain.ErrRemoteTransport},
		{http.StatusUnauthorized, domain.ErrUnauthorized},
		{http.StatusForbidden, domain.ErrUnauthorized},
		{http.StatusBadRequest, domain.ErrRemoteTransport},
		{http.StatusNotFound, domain.ErrRemoteTransport},
	}
	for _, tc := range cases {
		server := chatServer(t, tc.status, "", nil)
		_, err := New(Options{BaseURL: server.URL, APIKey: "k"}).ClassifyImage(context.Background(), []byte("x"))
		server.Close()
		if !domain.IsKind(err, tc.kind) {
			t.Fatalf("status %d: expected %v, got %v", tc.status, tc.kind, err)
		}
		if !strings.Contains(err.Error(), "upstream says no") {
			t.Fatalf("status %d: expected body in error, got %v", tc.status, err)
		}
	}
}

func TestClassifyImageTimeoutIsTransportError(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
	}))
	defer server.Close()
	defer close(release)

	client := New(Options{BaseURL: server.URL, APIKey: "k", Timeout: 20 * time.Millisecond})
	_, err := client.ClassifyImage(context.Background(), []byte("x"))
	if !domain.IsKind(err, domain.ErrRemoteTransport) {
		t.Fatalf("expected ErrRemoteTransport on timeout, got %v", err)
	}
}

func TestReadyRejectsMissingOrPlaceholderKey(t *testing.T) {
	for _, key := range []string{"", "  ", "your_api_key_here"} {
		if err := New(Options{APIKey: key}).Ready(); !domain.IsKind(err, domain.ErrConfig) {
			t.Fatalf("key %q: expected ErrConfig, got %v", key, err)
		}
	}
	if err := New(Options{APIKey: "sk-live"}).Ready(); err != nil {
		t.Fatalf("Ready() error = %v", err)
	}
}

func TestWriteSummaryUsesTextMessage(t *testing.T) {
	var body map[string]any
	server := chatServer(t, http.StatusOK, "  Shoot more at golden hour.  ", func(_ *http.Request, payload map[string]any) {
		body = payload
	})
	defer server.Close()

	text, err := New(Options{BaseURL: server.URL, APIKey: "k"}).WriteSummary(context.Background(), "stats here")
	if err != nil {
		t.Fatalf("WriteSummary() error = %v", err)
	}
	if text != "Shoot more at golden hour." {
		t.Fatalf("unexpected text %q", text)
	}
	if body["max_tokens"] != float64(1000) {
		t.Fatalf("expected summary max tokens, got %v", body["max_tokens"])
	}
}

func retryingExecutor(maxRetries int) *resilience.Executor {
	cfg := resilience.ForRemoteCalls(maxRetries)
	cfg.RetryInitialBackoff = time.Millisecond
	cfg.RetryMaxBackoff = time.Millisecond
	return resilience.NewExecutor(cfg)
}

func TestClassifyImageStatusAttempts(t *testing.T) {
	cases := []struct {
		status   int
		attempts int
		kind     error
	}{
		{http.StatusNotFound, 3, domain.ErrRemoteTransport},
		{http.StatusBadRequest, 3, domain.ErrRemoteTransport},
		{http.StatusBadGateway, 3, domain.ErrRemoteTransport},
		{http.StatusUnauthorized, 1, domain.ErrUnauthorized},
	}
	for _, tc := range cases {
		var hits atomic.Int32
		server := chatServer(t, tc.status, "", func(*http.Request, map[string]any) { hits.Add(1) })
		client := New(Options{BaseURL: server.URL, APIKey: "k"})

		attempts, err := retryingExecutor(2).Execute(context.Background(), "vision.classify", func(ctx context.Context, _ int) error {
			_, err := client.ClassifyImage(ctx, []byte("x"))
			return err
		}, resilience.ClassifyRemoteError)
		server.Close()

		if attempts != tc.attempts || int(hits.Load()) != tc.attempts {
			t.Fatalf("status %d: attempts=%d http calls=%d, want %d", tc.status, attempts, hits.Load(), tc.attempts)
		}
		if !domain.IsKind(err, tc.kind) {
			t.Fatalf("status %d: expected %v, got %v", tc.status, tc.kind, err)
		}
	}
}
