// Package resource provides the live-entry registry behind apartments and
// event sinks.
//
// A Table maps generation-checked IDs to Go values:
//
//	table := resource.NewTable()
//
//	id, err := table.Insert(resource.KindObject, ref)
//	value, ok := table.Get(id)
//	value, ok = table.Remove(id)
//
// IDs are never reused while a stale copy could still be presented: each
// slot carries a generation that is bumped on reuse, so a removed ID fails
// to resolve instead of reaching a newer entry. This matters for sink ids,
// which travel through foreign code and may arrive after unsubscribe.
//
// # Observers
//
// Observers receive EventCreated and EventDropped notifications
// synchronously after the change. Apartments subscribe to wake their
// worker when the last live object goes away:
//
//	fn := resource.ObserverFunc(func(e resource.Event) {
//	    if e.Type == resource.EventDropped {
//	        wake()
//	    }
//	})
//	table.Subscribe(&fn)
//
// Close stops new inserts and drops what is left, calling Drop on values
// that implement Dropper.
package resource
