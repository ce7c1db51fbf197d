// Package descriptor turns interface declarations into executable method
// descriptors.
//
// Declarations come from the type-library generator, either as Go values or
// as YAML documents (see LoadYAML). A Registry links interfaces by name and
// resolves each method, in order, to:
//
//  1. a Chained descriptor when the method declares a default-property
//     chain,
//  2. a VTable descriptor when it has a vtable slot,
//  3. a Dispatch descriptor when it has a dispatch id,
//
// and fails with a missing-descriptor error otherwise. Resolution is
// deterministic; Cache memoizes it per proxy and is cleared on dispose.
//
// Slot tables are computed most-derived interface first. Slots 0-2 belong
// to the root reference-counting methods and facade methods (default-value
// remaps and chains) never take a slot.
package descriptor
