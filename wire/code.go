package wire

import (
	comruntime "github.com/wippyai/com-runtime"
)

type Code = comruntime.Code

const (
	CodeDefault Code = iota
	CodeBool
	CodeInt8
	CodeUInt8
	CodeInt16
	CodeUInt16
	CodeInt32
	CodeUInt32
	CodeInt64
	CodeUInt64
	CodeFloat
	CodeDouble
	CodeString
	CodeDate
	CodeGUID
	CodeHRESULT
	CodeObject
	CodeDispatch
	CodeVariant
	CodeEnum

	// CodeByRef marks the by-reference variant of a code.
	CodeByRef Code = 0x80
)

var codeNames = [...]string{
	CodeDefault:  "default",
	CodeBool:     "bool",
	CodeInt8:     "int8",
	CodeUInt8:    "uint8",
	CodeInt16:    "int16",
	CodeUInt16:   "uint16",
	CodeInt32:    "int32",
	CodeUInt32:   "uint32",
	CodeInt64:    "int64",
	CodeUInt64:   "uint64",
	CodeFloat:    "float",
	CodeDouble:   "double",
	CodeString:   "string",
	CodeDate:     "date",
	CodeGUID:     "guid",
	CodeHRESULT:  "hresult",
	CodeObject:   "object",
	CodeDispatch: "dispatch",
	CodeVariant:  "variant",
	CodeEnum:     "enum",
}

// CodeName returns the name of c, with a "*" suffix for by-reference codes.
func CodeName(c Code) string {
	base := c &^ CodeByRef
	name := "unknown"
	if int(base) < len(codeNames) && codeNames[base] != "" {
		name = codeNames[base]
	}
	if c&CodeByRef != 0 {
		return name + "*"
	}
	return name
}

// ParseCode maps a code name (as produced by CodeName) back to its code.
func ParseCode(name string) (Code, bool) {
	byRef := false
	if n := len(name); n > 0 && name[n-1] == '*' {
		byRef = true
		name = name[:n-1]
	}
	for i, n := range codeNames {
		if n == name {
			c := Code(i)
			if byRef {
				c |= CodeByRef
			}
			return c, true
		}
	}
	return 0, false
}

// VarType is the type tag of a Variant.
type VarType uint16

const (
	VTEmpty    VarType = 0
	VTNull     VarType = 1
	VTI2       VarType = 2
	VTI4       VarType = 3
	VTR4       VarType = 4
	VTR8       VarType = 5
	VTDate     VarType = 7
	VTBSTR     VarType = 8
	VTDispatch VarType = 9
	VTError    VarType = 10
	VTBool     VarType = 11
	VTUnknown  VarType = 13
	VTI1       VarType = 16
	VTUI1      VarType = 17
	VTUI2      VarType = 18
	VTUI4      VarType = 19
	VTI8       VarType = 20
	VTUI8      VarType = 21
	VTGUID     VarType = 72 // VT_CLSID
)

var varTypeCodes = map[VarType]Code{
	VTI2:       CodeInt16,
	VTI4:       CodeInt32,
	VTR4:       CodeFloat,
	VTR8:       CodeDouble,
	VTDate:     CodeDate,
	VTBSTR:     CodeString,
	VTDispatch: CodeDispatch,
	VTError:    CodeHRESULT,
	VTBool:     CodeBool,
	VTUnknown:  CodeObject,
	VTI1:       CodeInt8,
	VTUI1:      CodeUInt8,
	VTUI2:      CodeUInt16,
	VTUI4:      CodeUInt32,
	VTI8:       CodeInt64,
	VTUI8:      CodeUInt64,
	VTGUID:     CodeGUID,
}

var codeVarTypes = func() map[Code]VarType {
	m := make(map[Code]VarType, len(varTypeCodes))
	for vt, c := range varTypeCodes {
		m[c] = vt
	}
	m[CodeEnum] = VTI4
	return m
}()
