// Package recognizer converts assembled utterances to text via an
// external speech-to-text provider.
package recognizer

import (
	"context"

	"github.com/meetscout/platform/internal/utterance"
)

// Result is a recognized utterance.
type Result struct {
	Text       string
	Confidence float64
	Language   string
}

// Recognizer transcribes a single utterance. Implementations must be safe
// for concurrent use.
type Recognizer interface {
	Recognize(ctx context.Context, u *utterance.Utterance) (Result, error)
}
