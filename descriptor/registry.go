package descriptor

import (
	stderrors "errors"
	"fmt"
	"sort"
	"sync"

	comruntime "github.com/wippyai/com-runtime"
	"github.com/wippyai/com-runtime/errors"
	"github.com/wippyai/com-runtime/wire"
)

// Names of the built-in interfaces.
const (
	Unknown                  = "IUnknown"
	Dispatch                 = "IDispatch"
	ConnectionPointContainer = "IConnectionPointContainer"
	ConnectionPoint          = "IConnectionPoint"
)

// Registry holds interface declarations linked by name. It is safe for
// concurrent use.
type Registry struct {
	table  *wire.Table
	byName map[string]*Interface
	byIID  map[comruntime.IID]*Interface
	mu     sync.RWMutex
}

// NewRegistry creates a registry holding the built-in interfaces. A nil
// table uses wire.NewTable().
func NewRegistry(table *wire.Table) *Registry {
	if table == nil {
		table = wire.NewTable()
	}
	r := &Registry{
		table:  table,
		byName: make(map[string]*Interface),
		byIID:  make(map[comruntime.IID]*Interface),
	}
	if err := r.Register(builtins()...); err != nil {
		panic(err)
	}
	return r
}

// Table returns the conversion table descriptors are built from.
func (r *Registry) Table() *wire.Table {
	return r.table
}

// Register adds interface declarations. Names and IIDs must be unique and
// no method may claim a reserved slot.
func (r *Registry) Register(ifaces ...*Interface) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, i := range ifaces {
		if i.Name == "" {
			return errors.InvalidInput(errors.PhaseConfig, "interface without a name")
		}
		if _, dup := r.byName[i.Name]; dup {
			return errors.New(errors.PhaseConfig, errors.KindInvalidInput).
				Detail("interface %q already registered", i.Name).
				Build()
		}
		if prev, dup := r.byIID[i.IID]; dup && i.IID != (comruntime.IID{}) {
			return errors.New(errors.PhaseConfig, errors.KindInvalidInput).
				Detail("interface %q reuses the IID of %q", i.Name, prev.Name).
				Build()
		}
		for _, m := range i.Methods {
			if m.VTID != nil && *m.VTID < ReservedSlots && i.Parent != "" {
				return errors.New(errors.PhaseConfig, errors.KindInvalidInput).
					At(i.Name, m.Name).
					Detail("vtable slot %d is reserved", *m.VTID).
					Build()
			}
		}
		r.byName[i.Name] = i
		if i.IID != (comruntime.IID{}) {
			r.byIID[i.IID] = i
		}
	}
	return nil
}

// Lookup returns the interface named name.
func (r *Registry) Lookup(name string) (*Interface, error) {
	r.mu.RLock()
	i := r.byName[name]
	r.mu.RUnlock()
	if i == nil {
		return nil, errors.NotFound(errors.PhaseResolve, "interface", name)
	}
	return i, nil
}

// ByIID returns the interface with the given IID.
func (r *Registry) ByIID(iid comruntime.IID) (*Interface, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	i, ok := r.byIID[iid]
	return i, ok
}

// Names returns all registered interface names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	names := make([]string, 0, len(r.byName))
	for n := range r.byName {
		names = append(names, n)
	}
	r.mu.RUnlock()
	sort.Strings(names)
	return names
}

// Ancestry returns i followed by its ancestors, most-derived first.
func (r *Registry) Ancestry(i *Interface) ([]*Interface, error) {
	chain := []*Interface{i}
	seen := map[string]bool{i.Name: true}
	for cur := i; cur.Parent != ""; {
		p, err := r.Lookup(cur.Parent)
		if err != nil {
			return nil, errors.New(errors.PhaseResolve, errors.KindNotFound).
				At(cur.Name, "").
				Detail("parent interface %q is not registered", cur.Parent).
				Build()
		}
		if seen[p.Name] {
			return nil, errors.New(errors.PhaseResolve, errors.KindInvalidInput).
				At(i.Name, "").
				Detail("inheritance cycle through %q", p.Name).
				Build()
		}
		seen[p.Name] = true
		chain = append(chain, p)
		cur = p
	}
	return chain, nil
}

// FindMethod looks name up on i and then its ancestors. It returns the
// declaring interface and the method's ordinal there.
func (r *Registry) FindMethod(i *Interface, name string) (*Interface, int, error) {
	chain, err := r.Ancestry(i)
	if err != nil {
		return nil, -1, err
	}
	for _, decl := range chain {
		if ord, _ := decl.Method(name); ord >= 0 {
			return decl, ord, nil
		}
	}
	return nil, -1, errors.New(errors.PhaseResolve, errors.KindNotFound).
		At(i.Name, name).
		Detail("no such method").
		Build()
}

// Validate resolves every method of every registered interface and reports
// all failures at once. Missing descriptors are grouped into a single
// errors.MissingDescriptorsError.
func (r *Registry) Validate() error {
	var missing []*errors.Error
	for _, name := range r.Names() {
		i, _ := r.Lookup(name)
		if _, err := r.SlotTable(i); err != nil {
			return err
		}
		for ord, m := range i.Methods {
			if m.Restricted {
				continue
			}
			if _, err := r.Resolve(i, ord); err != nil {
				var e *errors.Error
				if stderrors.As(err, &e) && e.Kind == errors.KindMissingDescriptor {
					missing = append(missing, e)
					continue
				}
				return fmt.Errorf("%s.%s: %w", i.Name, m.Name, err)
			}
		}
	}
	if len(missing) > 0 {
		return &errors.MissingDescriptorsError{Methods: missing}
	}
	return nil
}

func builtins() []*Interface {
	return []*Interface{
		{Name: Unknown, IID: comruntime.IIDUnknown},
		{
			Name:   Dispatch,
			Parent: Unknown,
			IID:    comruntime.IIDDispatch,
			Methods: []*Method{
				{Name: "GetTypeInfoCount", VTID: Slot(3), Return: &Return{Code: wire.CodeUInt32, Index: 0}},
				{Name: "GetTypeInfo", VTID: Slot(4), Params: []wire.Code{wire.CodeUInt32, wire.CodeUInt32}, Return: &Return{Code: wire.CodeObject, Index: 2}},
				{Name: "GetIDsOfNames", VTID: Slot(5), Restricted: true},
				{Name: "Invoke", VTID: Slot(6), Restricted: true},
			},
		},
		{
			Name:   ConnectionPointContainer,
			Parent: Unknown,
			IID:    comruntime.IIDConnectionPointContainer,
			Methods: []*Method{
				{Name: "EnumConnectionPoints", VTID: Slot(3), Restricted: true},
				{Name: "FindConnectionPoint", VTID: Slot(4), Params: []wire.Code{wire.CodeGUID}, Return: &Return{Code: wire.CodeObject, Index: 1, Interface: ConnectionPoint}},
			},
		},
		{
			Name:   ConnectionPoint,
			Parent: Unknown,
			IID:    comruntime.IIDConnectionPoint,
			Methods: []*Method{
				{Name: "GetConnectionInterface", VTID: Slot(3), Return: &Return{Code: wire.CodeGUID, Index: 0}},
				{Name: "GetConnectionPointContainer", VTID: Slot(4), Return: &Return{Code: wire.CodeObject, Index: 0, Interface: ConnectionPointContainer}},
				{Name: "Advise", VTID: Slot(5), Restricted: true},
				{Name: "Unadvise", VTID: Slot(6), Restricted: true},
				{Name: "EnumConnections", VTID: Slot(7), Restricted: true},
			},
		},
	}
}
