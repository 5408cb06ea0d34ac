// Package research answers topic queries through an external AI provider.
package research

import (
	"context"
	"time"
)

// Result is a completed research query.
type Result struct {
	Topic    string
	Summary  string
	Provider string
	Model    string
	Latency  time.Duration
}

// Provider answers a single topic query against the given context prompt.
// Implementations must be safe for concurrent use.
type Provider interface {
	Name() string
	Research(ctx context.Context, topic, contextPrompt string) (Result, error)
}
