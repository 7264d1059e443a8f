// Package generators implements component F: independent producers of
// Message values (webhook listeners, interval timers, a websocket tailer,
// and a queue poller), each emitting into a shared Sink.
package generators

import (
	"context"

	"github.com/plaidhost/plaid/internal/domain/message"
)

// Sink receives generated messages. The dispatcher implements this;
// generators never see routing or backpressure details beyond the error
// Enqueue returns.
type Sink interface {
	Enqueue(ctx context.Context, msg message.Message) error
}

// Generator is a running message source, stoppable via context
// cancellation and awaited via Run's return.
type Generator interface {
	Name() string
	Run(ctx context.Context, sink Sink) error
}
