package research

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/meetscout/platform/internal/errors"
)

func chatServer(t *testing.T, handler http.HandlerFunc) *OpenAIProvider {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewOpenAIProvider(OpenAIConfig{
		Endpoint:    srv.URL,
		APIKey:      "sk-test",
		Model:       "gpt-4o-mini",
		MaxTokens:   250,
		Temperature: 0.3,
		Timeout:     time.Second,
	})
}

func answerWith(summary string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{
				{"message": map[string]string{"role": "assistant", "content": summary}},
			},
		})
	}
}

func TestOpenAIProviderRequestShape(t *testing.T) {
	var captured chatRequest
	p := chatServer(t, func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer sk-test" {
			t.Errorf("Authorization = %q", got)
		}
		if err := json.NewDecoder(r.Body).Decode(&captured); err != nil {
			t.Fatalf("decoding request: %v", err)
		}
		answerWith("Raft elects a leader.")(w, r)
	})

	got, err := p.Research(context.Background(), "Raft", "be brief")
	if err != nil {
		t.Fatalf("Research() = %v", err)
	}
	if got.Summary != "Raft elects a leader." {
		t.Errorf("Summary = %q", got.Summary)
	}
	if got.Provider != "openai" {
		t.Errorf("Provider = %q", got.Provider)
	}

	if captured.Model != "gpt-4o-mini" || captured.MaxTokens != 250 || captured.Temperature != 0.3 {
		t.Errorf("request = %+v", captured)
	}
	if len(captured.Messages) != 2 || captured.Messages[0].Role != "system" {
		t.Fatalf("messages = %+v", captured.Messages)
	}
	if !strings.Contains(captured.Messages[1].Content, "Raft") {
		t.Errorf("user message = %q, should carry the topic", captured.Messages[1].Content)
	}
}

func TestOpenAIProviderErrorMapping(t *testing.T) {
	cases := []struct {
		status int
		want   errors.Code
	}{
		{http.StatusUnauthorized, errors.CodeResearchAuth},
		{http.StatusTooManyRequests, errors.CodeResearchRateLimited},
		{http.StatusInternalServerError, errors.CodeResearchUnavailable},
		{http.StatusBadRequest, errors.CodeResearchFailed},
	}

	for _, tc := range cases {
		p := chatServer(t, func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "nope", tc.status)
		})
		_, err := p.Research(context.Background(), "Raft", "")
		if !errors.IsCode(err, tc.want) {
			t.Errorf("status %d: code = %v, want %v", tc.status, errors.CodeOf(err), tc.want)
		}
	}
}

func TestOpenAIProviderEmptyChoices(t *testing.T) {
	p := chatServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"choices":[]}`))
	})
	_, err := p.Research(context.Background(), "Raft", "")
	if !errors.IsCode(err, errors.CodeResearchFailed) {
		t.Errorf("code = %v, want RESEARCH_FAILED", errors.CodeOf(err))
	}
}

func TestEngineAppendsMeetingContext(t *testing.T) {
	var systemPrompt atomic.Value
	p := chatServer(t, func(w http.ResponseWriter, r *http.Request) {
		var req chatRequest
		json.NewDecoder(r.Body).Decode(&req)
		systemPrompt.Store(req.Messages[0].Content)
		answerWith("ok")(w, r)
	})

	e := NewEngine(p, time.Second, "")
	if _, err := e.Research(context.Background(), "Raft"); err != nil {
		t.Fatalf("Research() = %v", err)
	}
	if strings.Contains(systemPrompt.Load().(string), "Meeting context") {
		t.Error("prompt should not mention meeting context when unset")
	}

	e.SetMeetingContext("quarterly infra planning")
	if _, err := e.Research(context.Background(), "Raft"); err != nil {
		t.Fatalf("Research() = %v", err)
	}
	if !strings.Contains(systemPrompt.Load().(string), "quarterly infra planning") {
		t.Error("prompt should carry the meeting context")
	}

	e.ClearMeetingContext()
	if e.MeetingContext() != "" {
		t.Error("ClearMeetingContext() should empty the context")
	}
}

func TestEngineBreakerTripsAfterRepeatedFailures(t *testing.T) {
	var calls atomic.Int32
	p := chatServer(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "down", http.StatusInternalServerError)
	})

	e := NewEngine(p, time.Second, "")
	for i := 0; i < 3; i++ {
		if _, err := e.Research(context.Background(), "Raft"); err == nil {
			t.Fatal("expected failure")
		}
	}

	// Breaker is open: the provider must not be called again.
	before := calls.Load()
	_, err := e.Research(context.Background(), "Raft")
	if !errors.IsCode(err, errors.CodeResearchUnavailable) {
		t.Errorf("code = %v, want RESEARCH_UNAVAILABLE", errors.CodeOf(err))
	}
	if calls.Load() != before {
		t.Error("open breaker should short-circuit the provider call")
	}
}
