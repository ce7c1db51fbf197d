package descriptor

import (
	"github.com/wippyai/com-runtime/errors"
)

// SlotEntry is one assigned vtable slot.
type SlotEntry struct {
	Interface *Interface
	Method    *Method
	Index     int
}

// SlotTable is the vtable layout of an interface hierarchy.
type SlotTable struct {
	Interface *Interface
	// Entries is indexed by slot. Reserved and unassigned slots are nil.
	Entries []*SlotEntry
	// Shadowed lists methods that lost a slot to an earlier assignment.
	Shadowed []*SlotEntry
}

// Len returns the number of slots, reserved ones included.
func (t *SlotTable) Len() int {
	return len(t.Entries)
}

// At returns the entry at slot, or nil.
func (t *SlotTable) At(slot int) *SlotEntry {
	if slot < 0 || slot >= len(t.Entries) {
		return nil
	}
	return t.Entries[slot]
}

// SlotTable computes the vtable layout of i. Methods of i come first, then
// those of its ancestors; the first method to claim a slot keeps it.
func (r *Registry) SlotTable(i *Interface) (*SlotTable, error) {
	chain, err := r.Ancestry(i)
	if err != nil {
		return nil, err
	}

	size := ReservedSlots
	for _, decl := range chain {
		for _, m := range decl.Methods {
			if m.VTID != nil && *m.VTID+1 > size {
				size = *m.VTID + 1
			}
		}
	}

	t := &SlotTable{Interface: i, Entries: make([]*SlotEntry, size)}
	for _, decl := range chain {
		for _, m := range decl.Methods {
			if m.VTID == nil || m.IsFacade() {
				continue
			}
			slot := *m.VTID
			if slot < ReservedSlots {
				return nil, errors.New(errors.PhaseResolve, errors.KindInvalidInput).
					At(decl.Name, m.Name).
					Detail("vtable slot %d is reserved", slot).
					Build()
			}
			e := &SlotEntry{Interface: decl, Method: m, Index: slot}
			if t.Entries[slot] != nil {
				t.Shadowed = append(t.Shadowed, e)
				continue
			}
			t.Entries[slot] = e
		}
	}
	return t, nil
}
