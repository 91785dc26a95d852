// Package oleaut defines the late-bound automation contract consumed by the proxy layer:
// the Dispatch interface (name lookup, generic invoke, type enumeration), the Variant
// tagged union exchanged through it, and the codec that maps variants to native Go values.
package oleaut

import "fmt"

// DispID identifies a member of a Dispatch object. Values are assigned by the
// object and are stable for its lifetime.
type DispID int32

// Reserved member ids.
const (
	DISPID_VALUE       DispID = 0
	DISPID_UNKNOWN     DispID = -1
	DISPID_PROPERTYPUT DispID = -3
	DISPID_NEWENUM     DispID = -4
)

// InvokeKind is both the flags word of an Invoke call and the invocation kind
// recorded in a FuncDesc. The two share bit values.
type InvokeKind uint16

const (
	DISPATCH_METHOD         InvokeKind = 0x1
	DISPATCH_PROPERTYGET    InvokeKind = 0x2
	DISPATCH_PROPERTYPUT    InvokeKind = 0x4
	DISPATCH_PROPERTYPUTREF InvokeKind = 0x8

	INVOKE_FUNC           = DISPATCH_METHOD
	INVOKE_PROPERTYGET    = DISPATCH_PROPERTYGET
	INVOKE_PROPERTYPUT    = DISPATCH_PROPERTYPUT
	INVOKE_PROPERTYPUTREF = DISPATCH_PROPERTYPUTREF
)

func (k InvokeKind) String() string {
	if k == 0 {
		return "none"
	}
	var s string
	add := func(name string) {
		if s != "" {
			s += "|"
		}
		s += name
	}
	if k&DISPATCH_METHOD != 0 {
		add("method")
	}
	if k&DISPATCH_PROPERTYGET != 0 {
		add("get")
	}
	if k&DISPATCH_PROPERTYPUT != 0 {
		add("put")
	}
	if k&DISPATCH_PROPERTYPUTREF != 0 {
		add("putref")
	}
	if rest := k &^ 0xF; rest != 0 {
		add(fmt.Sprintf("0x%x", uint16(rest)))
	}
	return s
}

// VarType is the tag of a Variant.
type VarType uint16

const (
	VT_EMPTY    VarType = 0
	VT_NULL     VarType = 1
	VT_I2       VarType = 2
	VT_I4       VarType = 3
	VT_R4       VarType = 4
	VT_R8       VarType = 5
	VT_DATE     VarType = 7
	VT_BSTR     VarType = 8
	VT_DISPATCH VarType = 9
	VT_BOOL     VarType = 11
	VT_VARIANT  VarType = 12
	VT_UNKNOWN  VarType = 13
	VT_I1       VarType = 16
	VT_UI1      VarType = 17
	VT_UI2      VarType = 18
	VT_UI4      VarType = 19
	VT_I8       VarType = 20
	VT_UI8      VarType = 21
	VT_INT      VarType = 22
	VT_UINT     VarType = 23

	VT_ARRAY    VarType = 0x2000
	VT_BYREF    VarType = 0x4000
	VT_TYPEMASK VarType = 0x0FFF
)

var varTypeNames = map[VarType]string{
	VT_EMPTY:    "VT_EMPTY",
	VT_NULL:     "VT_NULL",
	VT_I2:       "VT_I2",
	VT_I4:       "VT_I4",
	VT_R4:       "VT_R4",
	VT_R8:       "VT_R8",
	VT_DATE:     "VT_DATE",
	VT_BSTR:     "VT_BSTR",
	VT_DISPATCH: "VT_DISPATCH",
	VT_BOOL:     "VT_BOOL",
	VT_VARIANT:  "VT_VARIANT",
	VT_UNKNOWN:  "VT_UNKNOWN",
	VT_I1:       "VT_I1",
	VT_UI1:      "VT_UI1",
	VT_UI2:      "VT_UI2",
	VT_UI4:      "VT_UI4",
	VT_I8:       "VT_I8",
	VT_UI8:      "VT_UI8",
	VT_INT:      "VT_INT",
	VT_UINT:     "VT_UINT",
}

func (vt VarType) String() string {
	name, ok := varTypeNames[vt&VT_TYPEMASK]
	if !ok {
		name = fmt.Sprintf("VT(%d)", uint16(vt&VT_TYPEMASK))
	}
	if vt&VT_ARRAY != 0 {
		name = "VT_ARRAY|" + name
	}
	if vt&VT_BYREF != 0 {
		name = "VT_BYREF|" + name
	}
	return name
}
