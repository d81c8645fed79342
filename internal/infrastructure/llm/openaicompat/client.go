package openaicompat

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

const (
	provider            = "openai"
	placeholderAPIKey   = "your_api_key_here"
	visionMaxTokens     = 500
	summaryMaxTokens    = 1000
	defaultModel        = "gpt-4o"
	defaultBaseURL      = "https://api.openai.com/v1"
	defaultCallDuration = 60 * time.Second
)

type Options struct {
	BaseURL           string
	APIKey            string
	Model             string
	Timeout           time.Duration
	RequestsPerSecond float64
}

// Client talks to a /chat/completions endpoint for image classification and
// summary text.
type Client struct {
	baseURL    string
	apiKey     string
	model      string
	httpClient *http.Client
	limiter    *rate.Limiter
}

func New(opts Options) *Client {
	baseURL := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	model := strings.TrimSpace(opts.Model)
	if model == "" {
		model = defaultModel
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultCallDuration
	}
	return &Client{
		baseURL:    baseURL,
		apiKey:     strings.TrimSpace(opts.APIKey),
		model:      model,
		httpClient: &http.Client{Timeout: timeout},
		limiter:    llm.NewLimiter(opts.RequestsPerSecond),
	}
}

// Ready reports ErrConfig when no usable credential is configured.
func (c *Client) Ready() error {
	if c.apiKey == "" || c.apiKey == placeholderAPIKey {
		return domain.WrapError(domain.ErrConfig, "openai client", errors.New("api key is not configured"))
	}
	return nil
}

type contentPart struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *imageURL `json:"image_url,omitempty"`
}

type imageURL struct {
	URL string `json:"url"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content any    `json:"content"`
}

type chatRequest struct {
	Model     string        `json:"model"`
	Messages  []chatMessage `json:"messages"`
	MaxTokens int           `json:"max_tokens"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

func (c *Client) ClassifyImage(ctx context.Context, jpeg []byte) (domain.Classification, error) {
	if err := c.Ready(); err != nil {
		return domain.Classification{}, err
	}
	dataURL := "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(jpeg)
	req := chatRequest{
		Model: c.model,
		Messages: []chatMessage{{
			Role: "user",
			Content: []contentPart{
				{Type: "text", Text: llm.ClassificationPrompt()},
				{Type: "image_url", ImageURL: &imageURL{URL: dataURL}},
			},
		}},
		MaxTokens: visionMaxTokens,
	}

	content, err := c.complete(ctx, "classify", req)
	if err != nil {
		return domain.Classification{}, err
	}
	return llm.ParseClassification(content)
}

func (c *Client) WriteSummary(ctx context.Context, prompt string) (string, error) {
	if err := c.Ready(); err != nil {
		return "", err
	}
	req := chatRequest{
		Model:     c.model,
		Messages:  []chatMessage{{Role: "user", Content: prompt}},
		MaxTokens: summaryMaxTokens,
	}
	return c.complete(ctx, "summary", req)
}

func (c *Client) complete(ctx context.Context, operation string, payload chatRequest) (string, error) {
	var resp chatResponse
	err := llm.PostJSON(ctx, c.httpClient, c.limiter, llm.Request{
		Provider:  provider,
		Operation: operation,
		URL:       c.baseURL + "/chat/completions",
		Headers:   map[string]string{"Authorization": "Bearer " + c.apiKey},
		Payload:   payload,
	}, &resp)
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", domain.WrapError(domain.ErrRemoteFormat, operation, errors.New("response has no choices"))
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}
