package recognizer

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/meetscout/platform/internal/audio"
	"github.com/meetscout/platform/internal/errors"
	"github.com/meetscout/platform/internal/metrics"
	"github.com/meetscout/platform/internal/resilience"
	"github.com/meetscout/platform/internal/trace"
	"github.com/meetscout/platform/internal/utterance"
)

// HTTPConfig configures the HTTP speech-to-text client.
type HTTPConfig struct {
	Endpoint   string
	APIKey     string
	Model      string
	Language   string
	Timeout    time.Duration
	MaxRetries int
}

// HTTPClient sends utterances to a transcription endpoint as multipart WAV
// uploads. Transient failures are retried with backoff; auth failures are
// not.
type HTTPClient struct {
	cfg   HTTPConfig
	http  *http.Client
	retry resilience.RetryConfig
}

// NewHTTPClient creates a recognizer backed by an HTTP provider.
func NewHTTPClient(cfg HTTPConfig) *HTTPClient {
	retry := resilience.DefaultRetryConfig()
	if cfg.MaxRetries > 0 {
		retry.MaxRetries = cfg.MaxRetries
	}
	return &HTTPClient{
		cfg:   cfg,
		http:  &http.Client{Timeout: cfg.Timeout},
		retry: retry,
	}
}

type transcriptionResponse struct {
	Text       string  `json:"text"`
	Language   string  `json:"language"`
	Confidence float64 `json:"confidence"`
}

// Recognize uploads the utterance and returns the transcript.
func (c *HTTPClient) Recognize(ctx context.Context, u *utterance.Utterance) (Result, error) {
	ctx, span := trace.StartSpan(ctx, "recognize")
	defer span.End()
	span.SetAttr("samples", len(u.Samples))

	wav, err := audio.EncodeWAV(u.Samples, u.SampleRate)
	if err != nil {
		return Result{}, errors.Wrap(err, errors.CodeRecognitionFailed, "encoding utterance")
	}

	started := time.Now()
	var result Result
	err = resilience.Retry(ctx, c.retry, func() error {
		var attemptErr error
		result, attemptErr = c.send(ctx, wav)
		return attemptErr
	})
	metrics.RecognitionLatency.Observe(time.Since(started).Seconds())

	if err != nil {
		metrics.RecognitionRequests.WithLabelValues(metrics.OutcomeError).Inc()
		return Result{}, err
	}
	metrics.RecognitionRequests.WithLabelValues(metrics.OutcomeOK).Inc()
	trace.Logger(ctx).Debug("utterance recognized",
		"chars", len(result.Text), "confidence", result.Confidence, "duration", u.Duration())
	return result, nil
}

func (c *HTTPClient) send(ctx context.Context, wav []byte) (Result, error) {
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	part, err := writer.CreateFormFile("file", "utterance.wav")
	if err != nil {
		return Result{}, errors.Wrap(err, errors.CodeRecognitionFailed, "building request")
	}
	if _, err := part.Write(wav); err != nil {
		return Result{}, errors.Wrap(err, errors.CodeRecognitionFailed, "building request")
	}
	if c.cfg.Model != "" {
		_ = writer.WriteField("model", c.cfg.Model)
	}
	if c.cfg.Language != "" {
		_ = writer.WriteField("language", c.cfg.Language)
	}
	if err := writer.Close(); err != nil {
		return Result{}, errors.Wrap(err, errors.CodeRecognitionFailed, "building request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.Endpoint, body)
	if err != nil {
		return Result{}, errors.Wrap(err, errors.CodeRecognitionFailed, "building request")
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	if c.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}
	if tc, ok := trace.FromContext(ctx); ok {
		req.Header.Set(trace.TraceIDHeader, tc.TraceID)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return Result{}, errors.Wrap(err, errors.CodeRecognitionFailed, "request cancelled")
		}
		return Result{}, errors.Wrap(err, errors.CodeRecognitionTimeout, "transcription request failed")
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return Result{}, errors.Wrap(err, errors.CodeRecognitionFailed, "reading response")
	}

	if resp.StatusCode != http.StatusOK {
		appErr := errors.FromHTTPStatus("recognition", resp.StatusCode, truncate(string(raw), 200))
		slog.Warn("transcription request rejected", "status", resp.StatusCode, "code", appErr.Code)
		return Result{}, appErr
	}

	var tr transcriptionResponse
	if err := json.Unmarshal(raw, &tr); err != nil {
		return Result{}, errors.Wrap(err, errors.CodeRecognitionFailed, "decoding response")
	}
	if tr.Confidence == 0 {
		// Providers that omit confidence are treated as confident.
		tr.Confidence = 0.9
	}
	return Result{Text: tr.Text, Confidence: tr.Confidence, Language: tr.Language}, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
