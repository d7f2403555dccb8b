package model

import "fmt"

// ConfigError means the request could not be attempted: missing or
// invalid API key, unknown provider id, no usable model. No vendor call
// is made and the error is surfaced to the user immediately.
type ConfigError struct {
	Provider string
	Reason   string
}

func (e *ConfigError) Error() string {
	if e.Provider == "" {
		return fmt.Sprintf("configuration error: %s", e.Reason)
	}
	return fmt.Sprintf("configuration error for %s: %s", e.Provider, e.Reason)
}

// ProviderError means the vendor rejected the request or the connection
// failed (auth, rate limit, malformed request, network, timeout). Not
// retried automatically.
type ProviderError struct {
	Provider string
	Err      error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("%s request failed: %v", e.Provider, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// StreamReadError is a transient fault reading an already-open stream.
// Benign re-reads after natural exhaustion are recovered locally with an
// empty non-terminal chunk; faults that indicate a dead connection
// escalate to *ProviderError instead.
type StreamReadError struct {
	Provider string
	Err      error
}

func (e *StreamReadError) Error() string {
	return fmt.Sprintf("%s stream read failed: %v", e.Provider, e.Err)
}

func (e *StreamReadError) Unwrap() error { return e.Err }

// BusyError means a second turn was attempted on a conversation that is
// still streaming. The rejected call leaves persisted state untouched.
type BusyError struct {
	ConversationID string
}

func (e *BusyError) Error() string {
	return fmt.Sprintf("conversation %s already has a turn in flight", e.ConversationID)
}

// PersistenceError wraps a failed conversation-store operation.
// Checkpoint failures are logged and non-fatal; the final write still
// delivers the terminate string so the UI never hangs.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("storage %s failed: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }
