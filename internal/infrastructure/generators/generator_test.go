package generators

import (
	"context"
	"sync"

	"github.com/plaidhost/plaid/internal/domain/message"
)

// fakeSink records every enqueued message; safe for concurrent use since
// generators run their own goroutines.
type fakeSink struct {
	mu       sync.Mutex
	messages []message.Message
	err      error
}

func (s *fakeSink) Enqueue(ctx context.Context, msg message.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.messages = append(s.messages, msg)
	return nil
}

func (s *fakeSink) snapshot() []message.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]message.Message, len(s.messages))
	copy(out, s.messages)
	return out
}
