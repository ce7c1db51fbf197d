package resource

// ID is an opaque reference to an entry in a Table. The low 32 bits index
// the slot and the high 32 bits carry its generation, so a removed ID never
// aliases a later entry. ID 0 is reserved and always invalid.
type ID uint64

func makeID(slot uint32, gen uint32) ID {
	return ID(uint64(gen)<<32 | uint64(slot))
}

func (id ID) slot() uint32 { return uint32(id) }
func (id ID) gen() uint32  { return uint32(id >> 32) }

// Kind classifies the entries of a table.
type Kind uint8

const (
	KindObject Kind = iota + 1 // live object proxy
	KindSink                   // event sink
)

func (k Kind) String() string {
	switch k {
	case KindObject:
		return "object"
	case KindSink:
		return "sink"
	}
	return "unknown"
}

// EventType is the kind of lifecycle notification.
type EventType uint8

const (
	EventCreated EventType = iota
	EventDropped
)

// Event represents an entry lifecycle event.
type Event struct {
	Value any
	ID    ID
	Kind  Kind
	Type  EventType
}

// Observer receives notifications about entry lifecycle events.
// Notifications are delivered synchronously, outside the table's locks.
type Observer interface {
	OnResourceEvent(Event)
}

// ObserverFunc adapts a function to Observer. Only pointers to an
// ObserverFunc can be unsubscribed.
type ObserverFunc func(Event)

func (f *ObserverFunc) OnResourceEvent(e Event) { (*f)(e) }

// Dropper is optionally implemented by values that need cleanup when the
// table is closed.
type Dropper interface {
	Drop()
}
