// Package runtime provides the high-level API for calling foreign objects.
//
// # Quick Start
//
//	rt, err := runtime.New(prim, runtime.Config{})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer rt.Close(context.Background())
//
//	// Declare interfaces (or list YAML files in Config.Declarations)
//	if err := rt.LoadDeclarations("excel.yaml"); err != nil {
//	    log.Fatal(err)
//	}
//
//	// Wrap a handle obtained from the primitive
//	app, err := rt.Wrap("", handle, "_Application")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer app.Dispose()
//
//	// Call methods by name
//	version, err := app.Call(ctx, "Version")
//
// # Apartments
//
// Every proxy is bound to the apartment thread it was created on and every
// call is marshaled to that thread. Apartments are created lazily by name:
//
//	th, err := rt.Apartment("ui")
//
// With apartment.idle_timeout set, a thread with no live objects exits and
// is recreated on next use.
//
// # Configuration
//
// Config is usually read from YAML:
//
//	log:
//	  level: info
//	  development: false
//	apartment:
//	  default: main
//	  idle_timeout: 30s
//	  shutdown_timeout: 5s
//	declarations:
//	  - excel.yaml
//
// # Events
//
// Proxy.Advise connects a Go listener to an event interface. Listener
// methods are matched to events by name; object arguments arrive as
// *proxy.Object values valid for the duration of the callback unless
// retained.
//
// # Resource Management
//
// Dispose proxies when done. Proxies that become unreachable are released
// on their apartment eventually, but only explicit disposal is prompt.
package runtime
