// Package comruntime lets Go code call methods on reference-counted foreign
// objects that may only be used from the apartment (a dedicated OS thread)
// that owns them.
//
// # Architecture Overview
//
//	comruntime/          Root package with Handle, Primitive and Sink
//	├── runtime/         Facade: configuration, logging, Wrap
//	├── proxy/           Object proxies: Call, Dispose, Is, QueryInterface, Advise
//	├── apartment/       Apartment threads and task marshaling
//	├── lifecycle/       Exactly-once release of native handles
//	├── descriptor/      Interface declarations and method descriptors
//	├── wire/            Conversion table between Go values and wire values
//	├── event/           Dispatch of foreign callbacks to Go listeners
//	├── resource/        Live handle registry with observers
//	├── errors/          Structured error types
//	├── testbed/         In-memory Primitive for tests
//	└── cmd/inspect/     Prints slot tables and descriptors of declarations
//
// # Quick Start
//
//	rt, err := runtime.New(primitive, runtime.Config{})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer rt.Close(ctx)
//
//	obj, err := rt.Wrap("main", handle, "IWidget")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer obj.Dispose()
//
//	name, err := obj.Call(ctx, "GetName")
//
// # Threading
//
// Every handle belongs to one apartment thread. Calls from any goroutine are
// queued on that thread and the caller blocks until the call completes.
// Calls made from the apartment thread itself run inline.
//
// # Lifetime
//
// An object proxy owns exactly one reference. Dispose releases it. Proxies that
// become unreachable without Dispose are released by a cleanup on their
// apartment; this is a safety net and its timing is up to the garbage
// collector.
package comruntime
