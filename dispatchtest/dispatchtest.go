// Package dispatchtest provides a scriptable in-memory automation object for
// tests. It records every name lookup and invocation and keeps a reference
// count, so tests can assert on caching, argument order and balanced releases.
package dispatchtest

import (
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/podhmo/go-activex/oleaut"
)

// TypeInfoMode selects the type metadata an Object exposes.
type TypeInfoMode int

const (
	// NoTypeInfo exposes no type description.
	NoTypeInfo TypeInfoMode = iota
	// BaselineTypeInfo exposes only QueryInterface, AddRef and Release.
	BaselineTypeInfo
	// FullTypeInfo exposes the baseline plus every member. Getters and methods
	// are described by the first type description, setters by a second one.
	FullTypeInfo
)

// Ids of the baseline functions.
const (
	DispIDQueryInterface oleaut.DispID = 0x60000000
	DispIDAddRef         oleaut.DispID = 0x60000001
	DispIDRelease        oleaut.DispID = 0x60000002
)

// Call is one recorded invocation.
type Call struct {
	ID        oleaut.DispID
	Name      string
	Flags     oleaut.InvokeKind
	Args      []oleaut.Variant
	NamedArgs []oleaut.DispID
}

// MethodFunc implements a method; args arrive in call-site order.
type MethodFunc func(args ...any) (any, error)

type member struct {
	id     oleaut.DispID
	name   string
	kind   oleaut.InvokeKind
	value  oleaut.Variant
	items  []oleaut.Variant
	method MethodFunc
	params int
	onPut  func(oleaut.Variant) oleaut.Variant
}

// Object is a fake automation object.
type Object struct {
	name string
	refs atomic.Int32

	mu         sync.Mutex
	mode       TypeInfoMode
	sentinel   bool
	next       oleaut.DispID
	members    []*member
	byName     map[string]*member
	byID       map[oleaut.DispID]*member
	defaultVal *oleaut.Variant
	lookups    map[string]int
	calls      []Call
}

var _ oleaut.Dispatch = (*Object)(nil)

// Option configures an Object.
type Option func(*Object)

// WithTypeInfo sets the exposed type metadata. The default is FullTypeInfo.
func WithTypeInfo(mode TypeInfoMode) Option {
	return func(o *Object) {
		o.mode = mode
	}
}

// WithUnknownSentinel makes failed lookups answer DISPID_UNKNOWN with a nil error.
func WithUnknownSentinel() Option {
	return func(o *Object) {
		o.sentinel = true
	}
}

// New creates an empty Object; name is used in exception sources.
func New(name string, options ...Option) *Object {
	o := &Object{
		name:    name,
		mode:    FullTypeInfo,
		next:    1,
		byName:  make(map[string]*member),
		byID:    make(map[oleaut.DispID]*member),
		lookups: make(map[string]int),
	}
	for _, opt := range options {
		opt(o)
	}
	return o
}

func (o *Object) String() string { return fmt.Sprintf("dispatchtest.Object(%s)", o.name) }

func (o *Object) add(m *member) *Object {
	o.mu.Lock()
	defer o.mu.Unlock()
	m.id = o.next
	o.next++
	o.members = append(o.members, m)
	o.byName[strings.ToLower(m.name)] = m
	o.byID[m.id] = m
	return o
}

// Property adds a readable and writable property.
func (o *Object) Property(name string, v any) *Object {
	return o.add(&member{name: name, kind: oleaut.INVOKE_PROPERTYGET | oleaut.INVOKE_PROPERTYPUT, value: oleaut.Encode(v)})
}

// ReadOnly adds a property without a setter.
func (o *Object) ReadOnly(name string, v any) *Object {
	return o.add(&member{name: name, kind: oleaut.INVOKE_PROPERTYGET, value: oleaut.Encode(v)})
}

// Child adds a read-only property holding another object.
func (o *Object) Child(name string, child *Object) *Object {
	return o.add(&member{name: name, kind: oleaut.INVOKE_PROPERTYGET, value: oleaut.Object(child)})
}

// Indexed adds a property read and written with one index argument.
func (o *Object) Indexed(name string, items ...any) *Object {
	return o.add(&member{name: name, kind: oleaut.INVOKE_PROPERTYGET | oleaut.INVOKE_PROPERTYPUT, items: oleaut.Codec{}.EncodeSlice(items)})
}

// Method adds a method taking params arguments.
func (o *Object) Method(name string, params int, fn MethodFunc) *Object {
	return o.add(&member{name: name, kind: oleaut.INVOKE_FUNC, method: fn, params: params})
}

// Default sets the value read through DISPID_VALUE.
func (o *Object) Default(v any) *Object {
	o.mu.Lock()
	defer o.mu.Unlock()
	dv := oleaut.Encode(v)
	o.defaultVal = &dv
	return o
}

// OnPut makes a put on name return fn's result instead of an empty variant.
func (o *Object) OnPut(name string, fn func(oleaut.Variant) oleaut.Variant) *Object {
	o.mu.Lock()
	defer o.mu.Unlock()
	if m, ok := o.byName[strings.ToLower(name)]; ok {
		m.onPut = fn
	}
	return o
}

// SetTypeInfo changes the exposed type metadata.
func (o *Object) SetTypeInfo(mode TypeInfoMode) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.mode = mode
}

// ID returns the id of a member.
func (o *Object) ID(name string) oleaut.DispID {
	o.mu.Lock()
	defer o.mu.Unlock()
	if m, ok := o.byName[strings.ToLower(name)]; ok {
		return m.id
	}
	return oleaut.DISPID_UNKNOWN
}

// Value returns the current value of a property.
func (o *Object) Value(name string) oleaut.Variant {
	o.mu.Lock()
	defer o.mu.Unlock()
	if m, ok := o.byName[strings.ToLower(name)]; ok {
		return m.value
	}
	return oleaut.Empty()
}

// Refs returns the current reference count.
func (o *Object) Refs() int32 { return o.refs.Load() }

// Lookups returns how often name was resolved.
func (o *Object) Lookups(name string) int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.lookups[name]
}

// Calls returns the recorded invocations.
func (o *Object) Calls() []Call {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]Call(nil), o.calls...)
}

// CallCount returns how many invocations targeted name ("" for DISPID_VALUE).
func (o *Object) CallCount(name string) int {
	o.mu.Lock()
	defer o.mu.Unlock()
	n := 0
	for _, c := range o.calls {
		if strings.EqualFold(c.Name, name) {
			n++
		}
	}
	return n
}

// LastCall returns the most recent invocation.
func (o *Object) LastCall() (Call, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if len(o.calls) == 0 {
		return Call{}, false
	}
	return o.calls[len(o.calls)-1], true
}

// Reset forgets recorded lookups and invocations.
func (o *Object) Reset() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.lookups = make(map[string]int)
	o.calls = nil
}

func (o *Object) AddRef() int32  { return o.refs.Add(1) }
func (o *Object) Release() int32 { return o.refs.Add(-1) }

func (o *Object) GetIDsOfName(name string) (oleaut.DispID, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.lookups[name]++
	if m, ok := o.byName[strings.ToLower(name)]; ok {
		return m.id, nil
	}
	if o.sentinel {
		return oleaut.DISPID_UNKNOWN, nil
	}
	return oleaut.DISPID_UNKNOWN, oleaut.DISP_E_UNKNOWNNAME
}

func (o *Object) Invoke(id oleaut.DispID, flags oleaut.InvokeKind, params *oleaut.DispParams) (oleaut.Variant, error) {
	var call Call
	if params != nil {
		call.Args = append([]oleaut.Variant(nil), params.Args...)
		call.NamedArgs = append([]oleaut.DispID(nil), params.NamedArgs...)
	}
	call.ID, call.Flags = id, flags

	o.mu.Lock()
	m := o.byID[id]
	if m != nil {
		call.Name = m.name
	}
	o.calls = append(o.calls, call)
	o.mu.Unlock()

	if id == oleaut.DISPID_VALUE {
		return o.invokeDefault(flags, call.Args)
	}
	if m == nil {
		return oleaut.Empty(), oleaut.DISP_E_MEMBERNOTFOUND
	}

	switch {
	case flags&oleaut.DISPATCH_PROPERTYPUT != 0:
		return o.put(m, call.Args)
	case m.method != nil:
		if flags&oleaut.DISPATCH_METHOD == 0 {
			return oleaut.Empty(), oleaut.DISP_E_MEMBERNOTFOUND
		}
		if len(call.Args) != m.params {
			return oleaut.Empty(), oleaut.DISP_E_BADPARAMCOUNT
		}
		ret, err := m.method(oleaut.DecodeArgs(call.Args)...)
		if err != nil {
			return oleaut.Empty(), &oleaut.Exception{Code: oleaut.DISP_E_EXCEPTION, Source: o.name, Description: err.Error()}
		}
		return oleaut.Encode(ret), nil
	default:
		return o.get(m, call.Args)
	}
}

func (o *Object) invokeDefault(flags oleaut.InvokeKind, args []oleaut.Variant) (oleaut.Variant, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if flags&oleaut.DISPATCH_PROPERTYPUT != 0 {
		if len(args) == 0 {
			return oleaut.Empty(), oleaut.DISP_E_BADPARAMCOUNT
		}
		v := args[0]
		o.defaultVal = &v
		return oleaut.Empty(), nil
	}
	if o.defaultVal == nil {
		return oleaut.Empty(), oleaut.DISP_E_MEMBERNOTFOUND
	}
	return *o.defaultVal, nil
}

func (o *Object) get(m *member, args []oleaut.Variant) (oleaut.Variant, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if m.items == nil {
		return m.value, nil
	}
	if len(args) == 0 {
		return oleaut.Int(int64(len(m.items))), nil
	}
	i := oleaut.ToInt(args[0], -1)
	if i < 0 || i >= int64(len(m.items)) {
		return oleaut.Empty(), oleaut.DISP_E_BADINDEX
	}
	return m.items[i], nil
}

func (o *Object) put(m *member, args []oleaut.Variant) (oleaut.Variant, error) {
	o.mu.Lock()
	if m.kind&oleaut.INVOKE_PROPERTYPUT == 0 {
		o.mu.Unlock()
		return oleaut.Empty(), oleaut.DISP_E_MEMBERNOTFOUND
	}
	if len(args) == 0 {
		o.mu.Unlock()
		return oleaut.Empty(), oleaut.DISP_E_BADPARAMCOUNT
	}
	v := args[0].Deref()
	if m.items != nil {
		if len(args) < 2 {
			o.mu.Unlock()
			return oleaut.Empty(), oleaut.DISP_E_BADPARAMCOUNT
		}
		i := oleaut.ToInt(args[1], -1)
		if i < 0 || i >= int64(len(m.items)) {
			o.mu.Unlock()
			return oleaut.Empty(), oleaut.DISP_E_BADINDEX
		}
		m.items[i] = v
	} else {
		m.value = v
	}
	onPut := m.onPut
	o.mu.Unlock()

	if onPut != nil {
		return onPut(v), nil
	}
	return oleaut.Empty(), nil
}

func (o *Object) GetTypeInfoCount() (int, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	switch o.mode {
	case NoTypeInfo:
		return 0, nil
	case BaselineTypeInfo:
		return 1, nil
	}
	return 2, nil
}

func (o *Object) GetTypeInfo(i int) (oleaut.TypeInfo, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	baseline := []oleaut.FuncDesc{
		{MemID: DispIDQueryInterface, InvKind: oleaut.INVOKE_FUNC, Params: 2},
		{MemID: DispIDAddRef, InvKind: oleaut.INVOKE_FUNC},
		{MemID: DispIDRelease, InvKind: oleaut.INVOKE_FUNC},
	}
	ti := &typeInfo{owner: o}
	switch {
	case o.mode == BaselineTypeInfo && i == 0:
		ti.funcs = baseline
	case o.mode == FullTypeInfo && i == 0:
		ti.funcs = baseline
		if o.defaultVal != nil {
			ti.funcs = append(ti.funcs, oleaut.FuncDesc{MemID: oleaut.DISPID_VALUE, InvKind: oleaut.INVOKE_PROPERTYGET})
		}
		for _, m := range o.members {
			switch {
			case m.method != nil:
				ti.funcs = append(ti.funcs, oleaut.FuncDesc{MemID: m.id, InvKind: oleaut.INVOKE_FUNC, Params: m.params})
			case m.kind&oleaut.INVOKE_PROPERTYGET != 0:
				params := 0
				if m.items != nil {
					params = 1
				}
				ti.funcs = append(ti.funcs, oleaut.FuncDesc{MemID: m.id, InvKind: oleaut.INVOKE_PROPERTYGET, Params: params})
			}
		}
	case o.mode == FullTypeInfo && i == 1:
		for _, m := range o.members {
			if m.kind&oleaut.INVOKE_PROPERTYPUT != 0 {
				params := 1
				if m.items != nil {
					params = 2
				}
				ti.funcs = append(ti.funcs, oleaut.FuncDesc{MemID: m.id, InvKind: oleaut.INVOKE_PROPERTYPUT, Params: params})
			}
		}
	default:
		return nil, oleaut.TYPE_E_ELEMENTNOTFOUND
	}
	return ti, nil
}

type typeInfo struct {
	owner *Object
	funcs []oleaut.FuncDesc
}

func (t *typeInfo) GetFuncDesc(n int) (*oleaut.FuncDesc, error) {
	if n < 0 || n >= len(t.funcs) {
		return nil, oleaut.TYPE_E_ELEMENTNOTFOUND
	}
	fd := t.funcs[n]
	return &fd, nil
}

func (t *typeInfo) GetNames(id oleaut.DispID) (string, error) {
	switch id {
	case DispIDQueryInterface:
		return "QueryInterface", nil
	case DispIDAddRef:
		return "AddRef", nil
	case DispIDRelease:
		return "Release", nil
	case oleaut.DISPID_VALUE:
		return "Value", nil
	}
	t.owner.mu.Lock()
	defer t.owner.mu.Unlock()
	if m, ok := t.owner.byID[id]; ok {
		return m.name, nil
	}
	return "", oleaut.TYPE_E_ELEMENTNOTFOUND
}
