package resource

import (
	"sync"
)

// Table maps IDs to live values and notifies observers of changes. It is
// safe for concurrent use.
type Table struct {
	store     *store
	observers []Observer
	obsMu     sync.RWMutex
}

// NewTable creates an empty table.
func NewTable() *Table {
	return &Table{store: newStore()}
}

// Insert adds a value and returns its ID. It fails once the table is
// closed.
func (t *Table) Insert(kind Kind, value any) (ID, error) {
	id, err := t.store.create(kind, value)
	if err != nil {
		return 0, err
	}
	t.notify(Event{Type: EventCreated, ID: id, Kind: kind, Value: value})
	return id, nil
}

// Get retrieves a value by ID.
func (t *Table) Get(id ID) (any, bool) {
	v, _, ok := t.store.get(id)
	return v, ok
}

// GetKind retrieves a value only if it has the expected kind.
func (t *Table) GetKind(id ID, kind Kind) (any, bool) {
	v, k, ok := t.store.get(id)
	if !ok || k != kind {
		return nil, false
	}
	return v, true
}

// Remove drops an entry and returns (value, true) if it was live.
func (t *Table) Remove(id ID) (any, bool) {
	value, kind, ok := t.store.drop(id)
	if !ok {
		return nil, false
	}
	t.notify(Event{Type: EventDropped, ID: id, Kind: kind, Value: value})
	return value, true
}

// Subscribe adds an observer for lifecycle events.
func (t *Table) Subscribe(o Observer) {
	t.obsMu.Lock()
	defer t.obsMu.Unlock()
	t.observers = append(t.observers, o)
}

// Unsubscribe removes an observer.
func (t *Table) Unsubscribe(o Observer) {
	t.obsMu.Lock()
	defer t.obsMu.Unlock()
	for i, obs := range t.observers {
		if obs == o {
			t.observers = append(t.observers[:i], t.observers[i+1:]...)
			return
		}
	}
}

// Len returns the number of live entries.
func (t *Table) Len() int {
	return t.store.len()
}

// Each calls fn for every live entry until it returns false. fn must not
// modify the table.
func (t *Table) Each(fn func(ID, Kind, any) bool) {
	t.store.each(fn)
}

// Close stops accepting inserts and drops all entries. Values implementing
// Dropper are dropped; observers are not notified.
func (t *Table) Close() error {
	for _, v := range t.store.close() {
		if d, ok := v.(Dropper); ok {
			d.Drop()
		}
	}
	return nil
}

func (t *Table) notify(e Event) {
	t.obsMu.RLock()
	observers := make([]Observer, len(t.observers))
	copy(observers, t.observers)
	t.obsMu.RUnlock()

	for _, o := range observers {
		o.OnResourceEvent(e)
	}
}
