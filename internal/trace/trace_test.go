package trace

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestNewContext(t *testing.T) {
	tc := New()
	if len(tc.TraceID) != 32 {
		t.Errorf("TraceID length = %d, want 32", len(tc.TraceID))
	}
	if len(tc.SpanID) != 16 {
		t.Errorf("SpanID length = %d, want 16", len(tc.SpanID))
	}
	if tc.ParentSpanID != "" {
		t.Error("fresh context should have no parent")
	}
}

func TestNewChild(t *testing.T) {
	parent := New()
	child := NewChild(parent)

	if child.TraceID != parent.TraceID {
		t.Error("child should inherit trace ID")
	}
	if child.SpanID == parent.SpanID {
		t.Error("child should get a fresh span ID")
	}
	if child.ParentSpanID != parent.SpanID {
		t.Error("child parent should be the parent's span")
	}
}

func TestContextRoundTrip(t *testing.T) {
	tc := New()
	ctx := WithContext(context.Background(), tc)

	got, ok := FromContext(ctx)
	if !ok {
		t.Fatal("trace context should be present")
	}
	if got.TraceID != tc.TraceID {
		t.Errorf("TraceID = %q, want %q", got.TraceID, tc.TraceID)
	}
}

func TestEnsureContext(t *testing.T) {
	ctx, tc := EnsureContext(context.Background())
	if tc.TraceID == "" {
		t.Error("EnsureContext should create a trace")
	}

	ctx2, tc2 := EnsureContext(ctx)
	if tc2.TraceID != tc.TraceID {
		t.Error("EnsureContext should keep existing trace")
	}
	if ctx2 != ctx {
		t.Error("EnsureContext should not replace context when present")
	}
}

func TestSpan(t *testing.T) {
	ctx, span := StartSpan(context.Background(), "transcribe")
	if span.Name != "transcribe" {
		t.Errorf("Name = %q, want transcribe", span.Name)
	}
	if span.Duration() != 0 {
		t.Error("duration should be zero before End")
	}

	span.SetAttr("samples", 16000)
	time.Sleep(time.Millisecond)
	span.End()

	if span.Duration() <= 0 {
		t.Error("duration should be positive after End")
	}
	if _, ok := FromContext(ctx); !ok {
		t.Error("StartSpan should inject trace context")
	}

	_, child := StartSpan(ctx, "detect")
	if child.Ctx.TraceID != span.Ctx.TraceID {
		t.Error("child span should share the trace")
	}
}

func TestMiddleware(t *testing.T) {
	var seen Context
	handler := Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = FromContext(r.Context())
	}))

	req := httptest.NewRequest("GET", "/api/status", nil)
	req.Header.Set(TraceIDHeader, "abc123")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if seen.TraceID != "abc123" {
		t.Errorf("TraceID = %q, want abc123", seen.TraceID)
	}
	if rec.Header().Get(TraceIDHeader) != "abc123" {
		t.Error("trace ID should be echoed in response header")
	}

	// No incoming header: a fresh trace is created.
	req2 := httptest.NewRequest("GET", "/api/status", nil)
	rec2 := httptest.NewRecorder()
	handler.ServeHTTP(rec2, req2)
	if rec2.Header().Get(TraceIDHeader) == "" {
		t.Error("fresh trace ID should be set on response")
	}
}
