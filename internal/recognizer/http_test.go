package recognizer

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
	"github.com/meetscout/platform/internal/utterance"
)

func testUtterance() *utterance.Utterance {
	return &utterance.Utterance{
		Samples:    make([]float32, 1600),
		SampleRate: 16000,
		Start:      time.Unix(0, 0),
		End:        time.Unix(1, 0),
	}
}

func newTestClient(url string, retries int) *HTTPClient {
	c := NewHTTPClient(HTTPConfig{
		Endpoint:   url,
		APIKey:     "sk-test",
		Model:      "whisper-1",
		Language:   "en",
		Timeout:    time.Second,
		MaxRetries: retries,
	})
	c.retry.BaseDelay = time.Millisecond
	c.retry.MaxDelay = 2 * time.Millisecond
	return c
}

func TestRecognizeSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer sk-test" {
			t.Errorf("Authorization = %q", got)
		}
		if !strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
			t.Errorf("Content-Type = %q, want multipart", r.Header.Get("Content-Type"))
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Fatalf("parsing upload: %v", err)
		}
		if r.FormValue("model") != "whisper-1" {
			t.Errorf("model = %q", r.FormValue("model"))
		}
		file, header, err := r.FormFile("file")
		if err != nil {
			t.Fatalf("file part: %v", err)
		}
		defer file.Close()
		if header.Filename != "utterance.wav" {
			t.Errorf("filename = %q", header.Filename)
		}

		json.NewEncoder(w).Encode(transcriptionResponse{
			Text: "did you say kubernetes", Language: "en", Confidence: 0.87,
		})
	}))
	defer srv.Close()

	got, err := newTestClient(srv.URL, 1).Recognize(context.Background(), testUtterance())
	if err != nil {
		t.Fatalf("Recognize() = %v", err)
	}
	if got.Text != "did you say kubernetes" {
		t.Errorf("Text = %q", got.Text)
	}
	if got.Confidence != 0.87 {
		t.Errorf("Confidence = %g, want 0.87", got.Confidence)
	}
}

func TestRecognizeDefaultsConfidence(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"text":"hello"}`))
	}))
	defer srv.Close()

	got, err := newTestClient(srv.URL, 1).Recognize(context.Background(), testUtterance())
	if err != nil {
		t.Fatalf("Recognize() = %v", err)
	}
	if got.Confidence != 0.9 {
		t.Errorf("Confidence = %g, want default 0.9", got.Confidence)
	}
}

func TestRecognizeRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			http.Error(w, "overloaded", http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(`{"text":"recovered","confidence":0.8}`))
	}))
	defer srv.Close()

	got, err := newTestClient(srv.URL, 2).Recognize(context.Background(), testUtterance())
	if err != nil {
		t.Fatalf("Recognize() = %v", err)
	}
	if got.Text != "recovered" {
		t.Errorf("Text = %q", got.Text)
	}
	if calls.Load() != 3 {
		t.Errorf("calls = %d, want 3", calls.Load())
	}
}

func TestRecognizeDoesNotRetryAuthFailure(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "bad key", http.StatusUnauthorized)
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL, 3).Recognize(context.Background(), testUtterance())
	if !errors.IsCode(err, errors.CodeRecognitionAuth) {
		t.Errorf("error code = %v, want RECOGNITION_AUTH", errors.CodeOf(err))
	}
	if calls.Load() != 1 {
		t.Errorf("calls = %d, want 1", calls.Load())
	}
}

func TestRecognizeMalformedResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("not json"))
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL, 1).Recognize(context.Background(), testUtterance())
	if !errors.IsCode(err, errors.CodeRecognitionFailed) {
		t.Errorf("error code = %v, want RECOGNITION_FAILED", errors.CodeOf(err))
	}
}
