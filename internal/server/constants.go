// Package server exposes the local control surface: a websocket bridge
// for the overlay and tray, and a small REST API.
package server

import "time"

// Server configuration constants
const (
	// History page size cap for the REST API
	MaxHistoryLimit = 200

	// Per-connection websocket rate limiting
	RateLimitMessages = 30          // Max messages per connection per window
	RateLimitWindow   = time.Second // Sliding window duration
)
