// Package testbed provides an in-memory foreign object world for tests.
//
// World implements comruntime.Primitive with reference counting, call
// recording, in-flight tracking and connection points, so the runtime can
// be exercised end to end without a real foreign object model.
package testbed

import (
	"fmt"
	"sort"
	"sync"
	"sync/atomic"

	comruntime "github.com/wippyai/com-runtime"
	"github.com/wippyai/com-runtime/errors"
)

// Status codes returned by the world.
const (
	StatusNotImpl      errors.HRESULT = -2147467263 // E_NOTIMPL
	StatusPointer      errors.HRESULT = -2147467261 // E_POINTER
	StatusNoConnection errors.HRESULT = -2147220992 // CONNECT_E_NOCONNECTION
)

// Call records one primitive invocation.
type Call struct {
	Args     []any
	Codes    []comruntime.Code
	Handle   comruntime.Handle
	Slot     int
	RetIndex int
	DispID   int32
	Kind     comruntime.InvokeKind
	RetCode  comruntime.Code
	RetInOut bool
	Late     bool
}

// Method implements a vtable slot or dispatch id of a fake object.
type Method func(c *Call) (any, error)

// Object is a fake foreign object.
type Object struct {
	world    *World
	slots    map[int]Method
	disp     map[int32]Method
	iids     map[comruntime.IID]bool
	points   map[comruntime.IID]*Object
	sinks    map[comruntime.Handle]comruntime.Sink
	info     *errors.ErrorInfo
	infoErr  error
	Name     string
	refs     int
	released int
	Handle   comruntime.Handle
}

// World is a fake comruntime.Primitive. It is safe for concurrent use.
type World struct {
	objects    map[comruntime.Handle]*Object
	cookies    map[comruntime.Handle]*Object
	affinity   func() bool
	calls      []Call
	violations []string
	mu         sync.Mutex
	next       comruntime.Handle
	inFlight   atomic.Int32
	maxFlight  atomic.Int32
}

var _ comruntime.Primitive = (*World)(nil)

// NewWorld creates an empty world.
func NewWorld() *World {
	return &World{
		objects: make(map[comruntime.Handle]*Object),
		cookies: make(map[comruntime.Handle]*Object),
		next:    0x1000,
	}
}

// SetAffinity installs a check run on every primitive call; calls for which
// it returns false are recorded as violations.
func (w *World) SetAffinity(fn func() bool) {
	w.mu.Lock()
	w.affinity = fn
	w.mu.Unlock()
}

// NewObject creates an object holding one reference for the caller. Every
// object implements IUnknown.
func (w *World) NewObject(name string, iids ...comruntime.IID) *Object {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.next += 0x10
	o := &Object{
		world:  w,
		Name:   name,
		Handle: w.next,
		refs:   1,
		slots:  make(map[int]Method),
		disp:   make(map[int32]Method),
		iids:   map[comruntime.IID]bool{comruntime.IIDUnknown: true},
		points: make(map[comruntime.IID]*Object),
		sinks:  make(map[comruntime.Handle]comruntime.Sink),
	}
	for _, iid := range iids {
		o.iids[iid] = true
	}
	w.objects[o.Handle] = o
	return o
}

// On installs fn at vtable slot.
func (o *Object) On(slot int, fn Method) *Object {
	o.world.mu.Lock()
	o.slots[slot] = fn
	o.world.mu.Unlock()
	return o
}

// OnDispatch installs fn for dispatch id.
func (o *Object) OnDispatch(id int32, fn Method) *Object {
	o.world.mu.Lock()
	o.disp[id] = fn
	o.world.mu.Unlock()
	o.Implement(comruntime.IIDDispatch)
	return o
}

// Implement adds interfaces the object answers QueryInterface for.
func (o *Object) Implement(iids ...comruntime.IID) *Object {
	o.world.mu.Lock()
	for _, iid := range iids {
		o.iids[iid] = true
	}
	o.world.mu.Unlock()
	return o
}

// SetErrorInfo sets what ExtendedError returns for this object.
func (o *Object) SetErrorInfo(info *errors.ErrorInfo, err error) *Object {
	o.world.mu.Lock()
	o.info, o.infoErr = info, err
	o.world.mu.Unlock()
	return o
}

// Refs returns the current reference count.
func (o *Object) Refs() int {
	o.world.mu.Lock()
	defer o.world.mu.Unlock()
	return o.refs
}

// Released returns how many times the object has been released.
func (o *Object) Released() int {
	o.world.mu.Lock()
	defer o.world.mu.Unlock()
	return o.released
}

// ConnectionPoint makes o a connection point container and returns the
// connection point for events of iid. FindConnectionPoint is served at
// slot 4.
func (o *Object) ConnectionPoint(iid comruntime.IID) *Object {
	cp := o.world.NewObject(o.Name+".cp", comruntime.IIDConnectionPoint)
	// the container keeps its own reference
	o.world.mu.Lock()
	o.points[iid] = cp
	o.iids[comruntime.IIDConnectionPointContainer] = true
	o.world.mu.Unlock()

	o.On(4, func(c *Call) (any, error) {
		want, ok := c.Args[0].(comruntime.IID)
		if !ok {
			return nil, StatusPointer
		}
		o.world.mu.Lock()
		p := o.points[want]
		if p != nil {
			p.refs++
		}
		o.world.mu.Unlock()
		if p == nil {
			return comruntime.Handle(0), StatusNoConnection
		}
		return p.Handle, nil
	})
	return cp
}

// Sinks returns the number of sinks connected to a connection point.
func (o *Object) Sinks() int {
	o.world.mu.Lock()
	defer o.world.mu.Unlock()
	return len(o.sinks)
}

// Fire delivers an event to every sink connected to the connection point o
// and returns the first error.
func (o *Object) Fire(dispID int32, args ...any) error {
	o.world.mu.Lock()
	cookies := make([]comruntime.Handle, 0, len(o.sinks))
	for c := range o.sinks {
		cookies = append(cookies, c)
	}
	sort.Slice(cookies, func(i, j int) bool { return cookies[i] < cookies[j] })
	sinks := make([]comruntime.Sink, len(cookies))
	for i, c := range cookies {
		sinks[i] = o.sinks[c]
	}
	o.world.mu.Unlock()

	for _, s := range sinks {
		if _, err := s.Invoke(dispID, comruntime.InvokeMethod, args); err != nil {
			return err
		}
	}
	return nil
}

// Calls returns a copy of the recorded calls.
func (w *World) Calls() []Call {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]Call(nil), w.calls...)
}

// ResetCalls clears the call record.
func (w *World) ResetCalls() {
	w.mu.Lock()
	w.calls = nil
	w.mu.Unlock()
}

// MaxInFlight returns the highest number of concurrently running calls.
func (w *World) MaxInFlight() int {
	return int(w.maxFlight.Load())
}

// Violations lists refcount and affinity errors seen so far.
func (w *World) Violations() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]string(nil), w.violations...)
}

// Leaked returns objects whose reference count is still positive.
func (w *World) Leaked() []*Object {
	w.mu.Lock()
	defer w.mu.Unlock()
	var out []*Object
	for _, o := range w.objects {
		if o.refs > 0 {
			out = append(out, o)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Handle < out[j].Handle })
	return out
}

// lookup returns the live object for h. The caller holds w.mu.
func (w *World) lookup(op string, h comruntime.Handle) (*Object, error) {
	if w.affinity != nil && !w.affinity() {
		w.violations = append(w.violations, fmt.Sprintf("%s on %#x off apartment", op, h))
	}
	o := w.objects[h]
	if o == nil || o.refs <= 0 {
		w.violations = append(w.violations, fmt.Sprintf("%s on dead handle %#x", op, h))
		return nil, StatusPointer
	}
	return o, nil
}

func (w *World) enter() func() {
	n := w.inFlight.Add(1)
	for {
		m := w.maxFlight.Load()
		if n <= m || w.maxFlight.CompareAndSwap(m, n) {
			break
		}
	}
	return func() { w.inFlight.Add(-1) }
}

func (w *World) Invoke(h comruntime.Handle, slot int, args []any, codes []comruntime.Code, retIndex int, retInOut bool, retCode comruntime.Code) (any, error) {
	defer w.enter()()
	c := &Call{Handle: h, Slot: slot, Args: args, Codes: codes, RetIndex: retIndex, RetInOut: retInOut, RetCode: retCode}

	w.mu.Lock()
	w.calls = append(w.calls, *c)
	o, err := w.lookup("invoke", h)
	var fn Method
	if o != nil {
		fn = o.slots[slot]
	}
	w.mu.Unlock()
	if err != nil {
		return nil, err
	}
	if fn == nil {
		return nil, StatusNotImpl
	}
	return fn(c)
}

func (w *World) Dispatch(h comruntime.Handle, dispID int32, kind comruntime.InvokeKind, args []any, codes []comruntime.Code, retCode comruntime.Code) (any, error) {
	defer w.enter()()
	c := &Call{Handle: h, DispID: dispID, Kind: kind, Args: args, Codes: codes, RetCode: retCode, Late: true, RetIndex: -1}

	w.mu.Lock()
	w.calls = append(w.calls, *c)
	o, err := w.lookup("dispatch", h)
	var fn Method
	if o != nil {
		fn = o.disp[dispID]
	}
	w.mu.Unlock()
	if err != nil {
		return nil, err
	}
	if fn == nil {
		return nil, errors.HRESULT(errors.StatusMemberNotFound)
	}
	return fn(c)
}

func (w *World) QueryInterface(h comruntime.Handle, iid comruntime.IID) (comruntime.Handle, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	o, err := w.lookup("query", h)
	if err != nil {
		return 0, err
	}
	if !o.iids[iid] {
		return 0, nil
	}
	o.refs++
	return h, nil
}

func (w *World) AddRef(h comruntime.Handle) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if o, err := w.lookup("addref", h); err == nil {
		o.refs++
	}
}

func (w *World) Release(h comruntime.Handle) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if o, err := w.lookup("release", h); err == nil {
		o.refs--
		o.released++
	}
}

func (w *World) ExtendedError(h comruntime.Handle, _ comruntime.IID) (*errors.ErrorInfo, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	o := w.objects[h]
	if o == nil {
		return nil, StatusPointer
	}
	return o.info, o.infoErr
}

func (w *World) Advise(cp comruntime.Handle, sink comruntime.Sink, _ comruntime.IID) (comruntime.Handle, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	o, err := w.lookup("advise", cp)
	if err != nil {
		return 0, err
	}
	w.next += 0x10
	cookie := w.next
	o.sinks[cookie] = sink
	w.cookies[cookie] = o
	return cookie, nil
}

func (w *World) Unadvise(cookie comruntime.Handle) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	o := w.cookies[cookie]
	if o == nil {
		return StatusPointer
	}
	delete(w.cookies, cookie)
	delete(o.sinks, cookie)
	return nil
}
