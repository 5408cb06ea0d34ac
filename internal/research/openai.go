package research

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/meetscout/platform/internal/errors"
	"github.com/meetscout/platform/internal/trace"
)

// OpenAIConfig configures the chat-completions provider.
type OpenAIConfig struct {
	Endpoint    string
	APIKey      string
	Model       string
	MaxTokens   int
	Temperature float64
	Timeout     time.Duration
}

// OpenAIProvider queries an OpenAI-compatible chat completions endpoint.
type OpenAIProvider struct {
	cfg  OpenAIConfig
	http *http.Client
}

// NewOpenAIProvider creates the provider.
func NewOpenAIProvider(cfg OpenAIConfig) *OpenAIProvider {
	return &OpenAIProvider{
		cfg:  cfg,
		http: &http.Client{Timeout: cfg.Timeout},
	}
}

// Name returns the provider identifier.
func (p *OpenAIProvider) Name() string { return "openai" }

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens"`
	Temperature float64       `json:"temperature"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

// Research asks the model for a brief summary of the topic.
func (p *OpenAIProvider) Research(ctx context.Context, topic, contextPrompt string) (Result, error) {
	started := time.Now()

	reqBody := chatRequest{
		Model: p.cfg.Model,
		Messages: []chatMessage{
			{Role: "system", Content: contextPrompt},
			{Role: "user", Content: "Research this topic briefly: " + topic},
		},
		MaxTokens:   p.cfg.MaxTokens,
		Temperature: p.cfg.Temperature,
	}
	payload, err := json.Marshal(reqBody)
	if err != nil {
		return Result{}, errors.Wrap(err, errors.CodeResearchFailed, "encoding request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.cfg.Endpoint, bytes.NewReader(payload))
	if err != nil {
		return Result{}, errors.Wrap(err, errors.CodeResearchFailed, "building request")
	}
	req.Header.Set("Content-Type", "application/json")
	if p.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+p.cfg.APIKey)
	}
	if tc, ok := trace.FromContext(ctx); ok {
		req.Header.Set(trace.TraceIDHeader, tc.TraceID)
	}

	resp, err := p.http.Do(req)
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return Result{}, errors.Wrap(err, errors.CodeResearchTimeout, "query timed out")
		}
		return Result{}, errors.Wrap(err, errors.CodeResearchTimeout, "query failed")
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return Result{}, errors.Wrap(err, errors.CodeResearchFailed, "reading response")
	}
	if resp.StatusCode != http.StatusOK {
		return Result{}, errors.FromHTTPStatus("research", resp.StatusCode, truncate(string(raw), 200))
	}

	var cr chatResponse
	if err := json.Unmarshal(raw, &cr); err != nil {
		return Result{}, errors.Wrap(err, errors.CodeResearchFailed, "decoding response")
	}
	if len(cr.Choices) == 0 {
		return Result{}, errors.New(errors.CodeResearchFailed, "empty response from provider")
	}

	return Result{
		Topic:    topic,
		Summary:  cr.Choices[0].Message.Content,
		Provider: p.Name(),
		Model:    p.cfg.Model,
		Latency:  time.Since(started),
	}, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
