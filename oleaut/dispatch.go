package oleaut

// Unknown is a reference-counted object handle.
type Unknown interface {
	AddRef() int32
	Release() int32
}

// DispatchQuerier is implemented by Unknown values that can be upgraded to a Dispatch.
type DispatchQuerier interface {
	QueryDispatch() (Dispatch, error)
}

// Dispatch is the late-bound calling convention: members are looked up by name,
// then invoked by id with a flags word selecting get, put or call.
type Dispatch interface {
	Unknown

	// GetIDsOfName resolves a member name. An object may report DISPID_UNKNOWN
	// with a nil error; callers treat that as not found.
	GetIDsOfName(name string) (DispID, error)

	// Invoke calls a member. Args are in reverse positional order; NamedArgs
	// name the leading entries of Args.
	Invoke(id DispID, flags InvokeKind, params *DispParams) (Variant, error)

	GetTypeInfoCount() (int, error)
	GetTypeInfo(i int) (TypeInfo, error)
}

// DispParams is the argument block of an Invoke call.
type DispParams struct {
	Args      []Variant
	NamedArgs []DispID
}

// TypeInfo describes one interface exposed by a Dispatch object.
type TypeInfo interface {
	// GetFuncDesc returns the n-th function description, TYPE_E_ELEMENTNOTFOUND past the end.
	GetFuncDesc(n int) (*FuncDesc, error)
	GetNames(id DispID) (string, error)
}

// FuncDesc is a single function description of a TypeInfo.
type FuncDesc struct {
	MemID   DispID
	InvKind InvokeKind
	Params  int
}

// VariantMarshaler is implemented by values that know their own Variant form.
type VariantMarshaler interface {
	MarshalVariant() Variant
}

// Invoke calls id on d. Property puts always pass the value as the single named
// argument DISPID_PROPERTYPUT, so args[0] must be the value being assigned.
func Invoke(d Dispatch, id DispID, flags InvokeKind, args []Variant) (Variant, error) {
	params := &DispParams{Args: args}
	if flags == DISPATCH_PROPERTYPUT {
		params.NamedArgs = []DispID{DISPID_PROPERTYPUT}
	}
	return d.Invoke(id, flags, params)
}

// FindName resolves name on d, mapping a DISPID_UNKNOWN answer to DISP_E_UNKNOWNNAME.
func FindName(d Dispatch, name string) (DispID, error) {
	id, err := d.GetIDsOfName(name)
	if err != nil {
		return DISPID_UNKNOWN, err
	}
	if id == DISPID_UNKNOWN {
		return DISPID_UNKNOWN, DISP_E_UNKNOWNNAME
	}
	return id, nil
}
