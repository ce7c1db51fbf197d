package runtime

import (
	"context"
	"reflect"
	"sync"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	comruntime "github.com/wippyai/com-runtime"
	"github.com/wippyai/com-runtime/apartment"
	"github.com/wippyai/com-runtime/descriptor"
	"github.com/wippyai/com-runtime/errors"
	"github.com/wippyai/com-runtime/event"
	"github.com/wippyai/com-runtime/internal/invoke"
	"github.com/wippyai/com-runtime/proxy"
	"github.com/wippyai/com-runtime/wire"
)

var objectType = reflect.TypeFor[*proxy.Object]()

// Option customizes New.
type Option func(*options)

type options struct {
	logger *zap.Logger
	table  *wire.Table
}

// WithLogger uses l instead of the logger described by Config.Log.
func WithLogger(l *zap.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithTable uses a custom conversion table, e.g. one with registered enums.
func WithTable(t *wire.Table) Option {
	return func(o *options) { o.table = t }
}

// Runtime ties a foreign call primitive to apartments, declarations and
// event dispatch.
type Runtime struct {
	prim     comruntime.Primitive
	registry *descriptor.Registry
	threads  *apartment.Manager
	events   *event.Dispatcher
	env      *proxy.Env
	log      *zap.Logger
	cfg      Config
	mu       sync.Mutex
	closed   bool
}

// New creates a runtime over prim. Declaration files named by cfg are
// loaded and validated.
func New(prim comruntime.Primitive, cfg Config, opts ...Option) (*Runtime, error) {
	if prim == nil {
		return nil, errors.InvalidInput(errors.PhaseConfig, "nil primitive")
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		l, err := cfg.Log.NewLogger()
		if err != nil {
			return nil, err
		}
		o.logger = l
	}
	installLogger(o.logger)

	reg := descriptor.NewRegistry(o.table)
	for _, path := range cfg.Declarations {
		ifaces, err := descriptor.LoadYAMLFile(path)
		if err != nil {
			return nil, err
		}
		if err := reg.Register(ifaces...); err != nil {
			return nil, err
		}
	}
	if len(cfg.Declarations) > 0 {
		if err := reg.Validate(); err != nil {
			return nil, err
		}
	}

	mc := apartment.ManagerConfig{IdleTimeout: cfg.Apartment.IdleTimeout}
	if init, ok := prim.(comruntime.Initializer); ok {
		mc.Initializer = init
	}

	r := &Runtime{
		prim:     prim,
		registry: reg,
		threads:  apartment.NewManager(mc),
		events:   event.NewDispatcher(reg),
		log:      o.logger,
		cfg:      cfg,
	}
	r.env = &proxy.Env{Prim: prim, Registry: reg, Events: r.events}
	r.events.SetObjectWrapper(r.wrapEventArg)

	r.log.Debug("runtime started",
		zap.Int("interfaces", len(reg.Names())),
		zap.Duration("idle_timeout", cfg.Apartment.IdleTimeout))
	return r, nil
}

// installLogger points every package logger at l.
func installLogger(l *zap.Logger) {
	apartment.SetLogger(l.Named("apartment"))
	invoke.SetLogger(l.Named("invoke"))
	proxy.SetLogger(l.Named("proxy"))
	event.SetLogger(l.Named("event"))
}

// Logger returns the runtime's logger.
func (r *Runtime) Logger() *zap.Logger {
	return r.log
}

// Registry returns the interface declarations.
func (r *Runtime) Registry() *descriptor.Registry {
	return r.registry
}

// Events returns the event dispatcher.
func (r *Runtime) Events() *event.Dispatcher {
	return r.events
}

// Register adds interface declarations.
func (r *Runtime) Register(ifaces ...*descriptor.Interface) error {
	return r.registry.Register(ifaces...)
}

// LoadDeclarations loads a YAML declaration file into the registry.
func (r *Runtime) LoadDeclarations(path string) error {
	ifaces, err := descriptor.LoadYAMLFile(path)
	if err != nil {
		return err
	}
	return r.registry.Register(ifaces...)
}

// Apartment returns the named apartment thread, starting it if needed. An
// empty name selects the configured default.
func (r *Runtime) Apartment(name string) (*apartment.Thread, error) {
	if err := r.checkOpen(); err != nil {
		return nil, err
	}
	if name == "" {
		name = r.cfg.defaultApartment()
	}
	return r.threads.Get(name)
}

// Wrap creates a proxy for h on the named apartment. The proxy takes over
// one reference on h; when Wrap fails the caller still owns it.
func (r *Runtime) Wrap(apartmentName string, h comruntime.Handle, iface string) (*proxy.Object, error) {
	th, err := r.Apartment(apartmentName)
	if err != nil {
		return nil, err
	}
	i, err := r.registry.Lookup(iface)
	if err != nil {
		return nil, err
	}
	return proxy.New(r.env, th, h, i)
}

// Create runs factory on the named apartment and wraps the handle it
// returns. The factory's reference moves to the proxy.
func (r *Runtime) Create(ctx context.Context, apartmentName, iface string, factory func() (comruntime.Handle, error)) (*proxy.Object, error) {
	th, err := r.Apartment(apartmentName)
	if err != nil {
		return nil, err
	}
	i, err := r.registry.Lookup(iface)
	if err != nil {
		return nil, err
	}
	res, err := th.Submit(ctx, func() (any, error) {
		h, err := factory()
		if err != nil {
			return nil, errors.ForeignCall(iface, "create", err)
		}
		p, err := proxy.New(r.env, th, h, i)
		if err != nil && h != 0 {
			r.prim.Release(h)
		}
		return p, err
	})
	if err != nil {
		return nil, err
	}
	return res.(*proxy.Object), nil
}

// wrapEventArg turns a borrowed object handle received by an event
// listener into a proxy on the current apartment.
func (r *Runtime) wrapEventArg(h comruntime.Handle, target reflect.Type) (any, error) {
	if !objectType.AssignableTo(target) {
		return nil, errors.TypeMismatch(errors.PhaseDispatch, target.String(), "object")
	}
	if h == 0 {
		return (*proxy.Object)(nil), nil
	}
	th := r.threads.Current()
	if th == nil {
		return nil, errors.WrongApartment("")
	}
	r.prim.AddRef(h)
	p, err := proxy.New(r.env, th, h, nil)
	if err != nil {
		r.prim.Release(h)
		return nil, err
	}
	return p, nil
}

func (r *Runtime) checkOpen() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return errors.Closed("runtime")
	}
	return nil
}

// Close shuts every apartment down. Live objects get until ctx expires or
// the configured shutdown timeout, whichever comes first, and are released
// forcibly after that.
func (r *Runtime) Close(ctx context.Context) error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	r.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, r.cfg.shutdownTimeout())
	defer cancel()

	err := multierr.Combine(
		r.threads.Close(ctx),
		r.events.Close(),
	)
	if err != nil {
		r.log.Warn("runtime closed with errors", zap.Error(err))
	}
	// Sync fails on some terminals; the error is not actionable.
	_ = r.log.Sync()
	return err
}
