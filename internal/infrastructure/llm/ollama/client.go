package ollama

import (
	"context"
	"encoding/base64"
	"errors"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/kirillkom/sd-photo-assistant/internal/core/domain"
	"github.com/kirillkom/sd-photo-assistant/internal/infrastructure/llm"
)

const provider = "ollama"

type Options struct {
	BaseURL string
	Model   string
	Timeout time.Duration
	// RequestsPerSecond caps calls across every worker; 0 means unlimited.
	RequestsPerSecond float64
}

// Client runs a local vision model through /api/generate.
type Client struct {
	baseURL    string
	model      string
	httpClient *http.Client
	limiter    *rate.Limiter
}

func New(opts Options) *Client {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/"),
		model:      strings.TrimSpace(opts.Model),
		httpClient: &http.Client{Timeout: timeout},
		limiter:    llm.NewLimiter(opts.RequestsPerSecond),
	}
}

func (c *Client) Ready() error {
	if strings.TrimSpace(c.baseURL) == "" || strings.TrimSpace(c.model) == "" {
		return domain.WrapError(domain.ErrConfig, "ollama client", errors.New("url and vision model are required"))
	}
	return nil
}

func (c *Client) ClassifyImage(ctx context.Context, jpeg []byte) (domain.Classification, error) {
	reqBody := map[string]any{
		"model":  c.model,
		"prompt": llm.ClassificationPrompt(),
		"images": []string{base64.StdEncoding.EncodeToString(jpeg)},
		"stream": false,
		"format": "json",
	}
	respText, err := c.generate(ctx, "classify", reqBody)
	if err != nil {
		return domain.Classification{}, err
	}
	return llm.ParseClassification(respText)
}

func (c *Client) WriteSummary(ctx context.Context, prompt string) (string, error) {
	reqBody := map[string]any{
		"model":  c.model,
		"prompt": prompt,
		"stream": false,
	}
	return c.generate(ctx, "summary", reqBody)
}

func (c *Client) generate(ctx context.Context, operation string, reqBody map[string]any) (string, error) {
	var response struct {
		Response string `json:"response"`
	}
	err := llm.PostJSON(ctx, c.httpClient, c.limiter, llm.Request{
		Provider:  provider,
		Operation: operation,
		URL:       c.baseURL + "/api/generate",
		Payload:   reqBody,
	}, &response)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(response.Response), nil
}
