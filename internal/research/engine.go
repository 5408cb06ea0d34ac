package research

import (
	"context"
	"time"

	"github.com/meetscout/platform/internal/errors"
	"github.com/meetscout/platform/internal/metrics"
	"github.com/meetscout/platform/internal/resilience"
	"github.com/meetscout/platform/internal/syncx"
	"github.com/meetscout/platform/internal/trace"
)

// basePrompt frames every query. The per-meeting context is appended when
// set through the control API.
const basePrompt = "You are a research assistant in a live meeting. " +
	"Give a concise, factual summary in 2-3 sentences."

// Engine fronts a provider with a circuit breaker and a per-meeting
// context that callers can update between queries. Queries are never
// retried; a failed query surfaces immediately and repeated failures trip
// the breaker so the session stops waiting on a dead provider.
type Engine struct {
	provider       Provider
	breaker        *resilience.Breaker
	timeout        time.Duration
	meetingContext *syncx.RWGuard[string]
}

// NewEngine wraps provider with resilience and context handling.
func NewEngine(provider Provider, timeout time.Duration, meetingContext string) *Engine {
	return &Engine{
		provider:       provider,
		breaker:        resilience.NewBreaker(resilience.BreakerConfig{}),
		timeout:        timeout,
		meetingContext: syncx.NewGuard(meetingContext),
	}
}

// SetMeetingContext replaces the per-meeting context.
func (e *Engine) SetMeetingContext(ctx string) {
	e.meetingContext.Set(ctx)
}

// MeetingContext returns the current per-meeting context.
func (e *Engine) MeetingContext() string {
	return e.meetingContext.Get()
}

// ClearMeetingContext removes the per-meeting context.
func (e *Engine) ClearMeetingContext() {
	e.meetingContext.Set("")
}

// Research runs one query with the engine's timeout.
func (e *Engine) Research(ctx context.Context, topic string) (Result, error) {
	ctx, span := trace.StartSpan(ctx, "research")
	defer span.End()
	span.SetAttr("topic", topic)

	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	started := time.Now()
	result, err := resilience.ExecuteWithResult(e.breaker, func() (Result, error) {
		return e.provider.Research(ctx, topic, e.prompt())
	})
	metrics.ResearchLatency.Observe(time.Since(started).Seconds())

	if err != nil {
		metrics.ResearchRequests.WithLabelValues(metrics.OutcomeError).Inc()
		if err == resilience.ErrOpen {
			return Result{}, errors.Wrap(err, errors.CodeResearchUnavailable, "provider circuit open")
		}
		return Result{}, err
	}
	metrics.ResearchRequests.WithLabelValues(metrics.OutcomeOK).Inc()
	trace.Logger(ctx).Info("research completed",
		"topic", topic, "provider", result.Provider, "latency", result.Latency)
	return result, nil
}

func (e *Engine) prompt() string {
	prompt := basePrompt
	if mc := e.meetingContext.Get(); mc != "" {
		prompt += "\n\nMeeting context: " + mc
	}
	return prompt
}
