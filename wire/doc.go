// Package wire provides the conversion table between Go values and the wire
// values handed to the foreign call primitive.
//
// Each Conversion is identified by a Code and declares its wire frame size,
// whether its payload is variable-sized, its by-reference counterpart, and
// how temporary wire resources are released after a call.
//
//	Code       Go value                Wire value        Size
//	────────────────────────────────────────────────────────────
//	Bool       bool                    int16 (-1/0)      2
//	Int8..U64  integer kinds           sized integer     1-8
//	Float      float32                 float32           4
//	Double     float64                 float64           8
//	String     string                  *BSTR (UTF-16LE)  8, variable
//	Date       time.Time               float64 (OLE)     8
//	GUID       uuid.UUID               uuid.UUID         16
//	HRESULT    int32                   int32             4
//	Object     HandleOwner, Handle     comruntime.Handle 8
//	Variant    any                     *Variant          24
//	Enum       registered int types    int32             4
//
// By-reference conversions (code | CodeByRef) wrap the wire value in a *Cell
// the primitive may overwrite. A Ref (such as *Holder[T]) passed to a
// by-reference parameter is refreshed from the cell after the call.
package wire
