// Package reconnect holds the retry policy for re-establishing the
// persistent channel between a page context and the hub.
package reconnect

import "time"

const (
	// DefaultDelay is the fixed pause between reconnect attempts.
	// Channel drops here are short-lived (a hub restart, a backgrounded
	// tab), so a growing backoff would only delay recovery; the bound
	// comes from DefaultMaxAttempts instead.
	DefaultDelay = 3 * time.Second

	// DefaultMaxAttempts is the number of consecutive failed attempts
	// after which the monitor gives up and requires an explicit reset.
	DefaultMaxAttempts = 10
)

// Exhausted reports whether attempt has passed the given bound.
// A bound of zero or less means DefaultMaxAttempts.
func Exhausted(attempt, max int) bool {
	if max <= 0 {
		max = DefaultMaxAttempts
	}
	return attempt >= max
}
