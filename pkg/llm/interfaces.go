package llm

import "context"

// Backend is the synchronous model call contract consumed by the worker pool.
// Provider specifics (model name, system prompt, credentials) are bound at
// client construction, never inspected at call time.
type Backend interface {
	// Call sends one request payload and returns the raw response text.
	// Failures are classified: a *TransientError is worth retrying, a
	// *FatalError is not. Any other error is treated as fatal.
	Call(ctx context.Context, payload string) (string, error)
}
