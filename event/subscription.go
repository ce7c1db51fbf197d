package event

import (
	"sync"

	"github.com/google/uuid"
)

// Subscription is an active event connection. Close disconnects it.
type Subscription struct {
	close func() error
	err   error
	sink  *Sink
	id    uuid.UUID
	once  sync.Once
}

// NewSubscription wraps a connected sink. closeFn disconnects it and runs at
// most once.
func NewSubscription(sink *Sink, closeFn func() error) *Subscription {
	return &Subscription{
		close: closeFn,
		sink:  sink,
		id:    uuid.New(),
	}
}

// ID identifies the subscription in logs.
func (s *Subscription) ID() uuid.UUID {
	return s.id
}

// Sink returns the connected sink.
func (s *Subscription) Sink() *Sink {
	return s.sink
}

// Close disconnects the sink. Later calls return the first result.
func (s *Subscription) Close() error {
	s.once.Do(func() {
		s.err = s.close()
	})
	return s.err
}
