// Package memory holds run events in process. It backs tests and runs
// where no event transport is configured.
package memory

import (
	"context"
	"sync"

	"github.com/AbderraoufBou14/trustpilot-sentiment-data-pipeline/internal/publisher"
)

// Publisher records events in memory.
type Publisher struct {
	mu     sync.Mutex
	events []publisher.RunEvent
	closed bool
}

// New returns an empty in-memory publisher.
func New() *Publisher {
	return &Publisher{}
}

// PublishRun appends the event to the in-memory log.
func (p *Publisher) PublishRun(_ context.Context, event publisher.RunEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return nil
}

// Events returns a copy of everything published so far.
func (p *Publisher) Events() []publisher.RunEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]publisher.RunEvent, len(p.events))
	copy(out, p.events)
	return out
}

// Close marks the publisher closed.
func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}
