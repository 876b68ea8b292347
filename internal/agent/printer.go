package agent

import (
	"context"
	"encoding/json"
)

// Result is the outcome of one physical print attempt. A non-OK result or a
// timeout both end the job in error with the message captured.
type Result struct {
	OK      bool   `json:"ok"`
	Message string `json:"message,omitempty"`
}

// Printer drives the physical device. Implementations should honor the
// context deadline; the poller enforces it regardless.
type Printer interface {
	Print(ctx context.Context, snapshot json.RawMessage) Result
}

// PrinterFunc adapts a function to the Printer interface.
type PrinterFunc func(ctx context.Context, snapshot json.RawMessage) Result

func (f PrinterFunc) Print(ctx context.Context, snapshot json.RawMessage) Result {
	return f(ctx, snapshot)
}
