package eventsvc

import (
	"context"
	"sync"

	"github.com/trezcool/scholar/core"
)

type Event struct {
	Subject string
	Payload interface{}
}

// Recorder keeps published events in memory, for tests.
type Recorder struct {
	mu     sync.Mutex
	events []Event
	Err    error // returned by Publish when set
}

var _ core.EventPublisher = (*Recorder)(nil)

func (r *Recorder) Publish(_ context.Context, subject string, v interface{}) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return r.Err
	}
	r.events = append(r.events, Event{Subject: subject, Payload: v})
	return nil
}

func (r *Recorder) Events(subject string) []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var events []Event
	for _, e := range r.events {
		if e.Subject == subject {
			events = append(events, e)
		}
	}
	return events
}

func (r *Recorder) Reset() {
	r.mu.Lock()
	r.events = nil
	r.mu.Unlock()
}
