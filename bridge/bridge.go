// Package bridge exposes native Go values through the oleaut.Dispatch calling
// convention, so that a map, a struct pointer, a slice or a func can be handed
// to code that only knows how to resolve names and invoke ids.
//
// Member ids are minted per Object on first lookup, starting at 1 and never
// reused. The object carries no type metadata: GetTypeInfoCount reports zero.
package bridge

import (
	"fmt"
	"math"
	"reflect"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/podhmo/go-activex/oleaut"
)

// lengthMember is the synthetic member of slices, arrays and maps.
const lengthMember = "length"

type config struct {
	foreign func(oleaut.Dispatch) any
}

// Option configures an Object.
type Option func(*config)

// WithForeign sets the conversion applied to incoming object references that
// are not bridge objects themselves. Without it they are passed to native code
// as plain oleaut.Dispatch values.
func WithForeign(fn func(oleaut.Dispatch) any) Option {
	return func(c *config) {
		c.foreign = fn
	}
}

// Object is a Dispatch over a native Go value.
type Object struct {
	value reflect.Value
	cfg   *config
	refs  atomic.Int32

	mu    sync.Mutex
	next  oleaut.DispID
	names map[string]oleaut.DispID
	index map[oleaut.DispID]string
}

var _ oleaut.Dispatch = (*Object)(nil)

// Wrappable reports whether v can be exposed as an Object.
func Wrappable(v any) bool {
	if v == nil {
		return false
	}
	if _, ok := v.(oleaut.Dispatch); ok {
		return false
	}
	return wrappable(reflect.ValueOf(v))
}

func wrappable(rv reflect.Value) bool {
	switch rv.Kind() {
	case reflect.Map:
		return rv.Type().Key().Kind() == reflect.String && !rv.IsNil()
	case reflect.Pointer:
		return !rv.IsNil() && rv.Elem().Kind() == reflect.Struct
	case reflect.Struct, reflect.Slice, reflect.Array:
		return true
	case reflect.Func:
		return !rv.IsNil()
	}
	return false
}

// New wraps v. It fails with E_INVALIDARG when v is not a map with string keys,
// a struct or struct pointer, a slice, an array or a func.
func New(v any, options ...Option) (*Object, error) {
	if !Wrappable(v) {
		return nil, fmt.Errorf("bridge: cannot wrap %T: %w", v, oleaut.E_INVALIDARG)
	}
	cfg := &config{}
	for _, opt := range options {
		opt(cfg)
	}
	return newObject(reflect.ValueOf(v), cfg), nil
}

func newObject(rv reflect.Value, cfg *config) *Object {
	return &Object{
		value: rv,
		cfg:   cfg,
		next:  1,
		names: make(map[string]oleaut.DispID),
		index: make(map[oleaut.DispID]string),
	}
}

// Value returns the wrapped native value.
func (o *Object) Value() any { return o.value.Interface() }

func (o *Object) String() string { return fmt.Sprintf("bridge.Object(%s)", o.value.Type()) }

func (o *Object) AddRef() int32  { return o.refs.Add(1) }
func (o *Object) Release() int32 { return o.refs.Add(-1) }

func (o *Object) GetTypeInfoCount() (int, error) { return 0, nil }

func (o *Object) GetTypeInfo(int) (oleaut.TypeInfo, error) { return nil, oleaut.E_NOTIMPL }

// GetIDsOfName resolves name against the wrapped value: map keys, exported
// struct fields and methods, or "length" for sequences. An exact match wins over
// a case-insensitive one.
func (o *Object) GetIDsOfName(name string) (oleaut.DispID, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if id, ok := o.names[name]; ok {
		return id, nil
	}
	canonical, ok := o.lookup(name)
	if !ok {
		return oleaut.DISPID_UNKNOWN, oleaut.DISP_E_UNKNOWNNAME
	}
	id := o.next
	o.next++
	o.names[name] = id
	o.index[id] = canonical
	return id, nil
}

// Name returns the member name that id was minted for.
func (o *Object) Name(id oleaut.DispID) (string, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	name, ok := o.index[id]
	return name, ok
}

// Invoke dispatches a property get, a property put or a call, by flags.
func (o *Object) Invoke(id oleaut.DispID, flags oleaut.InvokeKind, params *oleaut.DispParams) (result oleaut.Variant, err error) {
	defer func() {
		if r := recover(); r != nil {
			result = oleaut.Empty()
			err = &oleaut.Exception{Code: oleaut.DISP_E_EXCEPTION, Source: o.value.Type().String(), Description: fmt.Sprint(r)}
		}
	}()

	var args []oleaut.Variant
	if params != nil {
		args = params.Args
	}

	if id == oleaut.DISPID_VALUE {
		return o.invokeValue(flags, args)
	}

	name, ok := o.Name(id)
	if !ok {
		return oleaut.Empty(), oleaut.DISP_E_MEMBERNOTFOUND
	}

	if flags&(oleaut.DISPATCH_PROPERTYPUT|oleaut.DISPATCH_PROPERTYPUTREF) != 0 {
		if len(args) == 0 {
			return oleaut.Empty(), oleaut.DISP_E_BADPARAMCOUNT
		}
		value := o.decode(args[0])
		if len(args) > 1 {
			member, ok := o.get(name)
			if !ok {
				return oleaut.Empty(), oleaut.DISP_E_MEMBERNOTFOUND
			}
			return oleaut.Empty(), setElement(member, oleaut.ToInt(args[1], -1), value)
		}
		return oleaut.Empty(), o.set(name, value)
	}

	member, ok := o.get(name)
	if !ok {
		return oleaut.Empty(), oleaut.DISP_E_MEMBERNOTFOUND
	}
	if flags&oleaut.DISPATCH_METHOD != 0 && member.Kind() == reflect.Func {
		return o.call(member, o.decodeArgs(args))
	}
	if flags&(oleaut.DISPATCH_PROPERTYGET|oleaut.DISPATCH_METHOD) != 0 {
		if len(args) > 0 {
			elem, err := element(member, oleaut.ToInt(args[0], -1))
			if err != nil {
				return oleaut.Empty(), err
			}
			return o.encode(elem), nil
		}
		return o.encode(member), nil
	}
	return oleaut.Empty(), oleaut.DISP_E_MEMBERNOTFOUND
}

// invokeValue handles DISPID_VALUE: calling a func, reading or writing an
// element, or reading the object itself.
func (o *Object) invokeValue(flags oleaut.InvokeKind, args []oleaut.Variant) (oleaut.Variant, error) {
	self := indirect(o.value)
	switch {
	case flags&(oleaut.DISPATCH_PROPERTYPUT|oleaut.DISPATCH_PROPERTYPUTREF) != 0:
		if len(args) < 2 {
			return oleaut.Empty(), oleaut.DISP_E_BADPARAMCOUNT
		}
		return oleaut.Empty(), setElement(self, oleaut.ToInt(args[1], -1), o.decode(args[0]))
	case flags&oleaut.DISPATCH_METHOD != 0 && self.Kind() == reflect.Func:
		return o.call(self, o.decodeArgs(args))
	case flags&oleaut.DISPATCH_PROPERTYGET != 0:
		if len(args) > 0 {
			elem, err := element(self, oleaut.ToInt(args[0], -1))
			if err != nil {
				return oleaut.Empty(), err
			}
			return o.encode(elem), nil
		}
		return oleaut.Object(o), nil
	}
	return oleaut.Empty(), oleaut.DISP_E_MEMBERNOTFOUND
}

// lookup finds the canonical spelling of name on the wrapped value.
func (o *Object) lookup(name string) (string, bool) {
	var candidates []string
	rv := indirect(o.value)
	switch rv.Kind() {
	case reflect.Map:
		for _, k := range rv.MapKeys() {
			candidates = append(candidates, k.String())
		}
		candidates = append(candidates, lengthMember)
	case reflect.Struct:
		t := rv.Type()
		for i := range t.NumField() {
			if f := t.Field(i); f.IsExported() {
				candidates = append(candidates, f.Name)
			}
		}
	case reflect.Slice, reflect.Array:
		candidates = append(candidates, lengthMember)
	}
	for i := range o.value.NumMethod() {
		candidates = append(candidates, o.value.Type().Method(i).Name)
	}

	for _, c := range candidates {
		if c == name {
			return c, true
		}
	}
	for _, c := range candidates {
		if strings.EqualFold(c, name) {
			return c, true
		}
	}
	return "", false
}

// get reads a member by its canonical name.
func (o *Object) get(name string) (reflect.Value, bool) {
	rv := indirect(o.value)
	switch rv.Kind() {
	case reflect.Map:
		v := rv.MapIndex(reflect.ValueOf(name).Convert(rv.Type().Key()))
		if v.IsValid() {
			return unbox(v), true
		}
	case reflect.Struct:
		if f := rv.FieldByName(name); f.IsValid() {
			return unbox(f), true
		}
	}
	if m := o.value.MethodByName(name); m.IsValid() {
		return m, true
	}
	if name == lengthMember {
		switch rv.Kind() {
		case reflect.Map, reflect.Slice, reflect.Array:
			return reflect.ValueOf(rv.Len()), true
		}
	}
	return reflect.Value{}, false
}

// set writes a member by its canonical name.
func (o *Object) set(name string, value any) error {
	rv := indirect(o.value)
	switch rv.Kind() {
	case reflect.Map:
		v, err := convert(value, rv.Type().Elem())
		if err != nil {
			return err
		}
		rv.SetMapIndex(reflect.ValueOf(name).Convert(rv.Type().Key()), v)
		return nil
	case reflect.Struct:
		f := rv.FieldByName(name)
		if !f.IsValid() || !f.CanSet() {
			return oleaut.DISP_E_MEMBERNOTFOUND
		}
		v, err := convert(value, f.Type())
		if err != nil {
			return err
		}
		f.Set(v)
		return nil
	}
	return oleaut.DISP_E_MEMBERNOTFOUND
}

func (o *Object) call(fn reflect.Value, args []any) (oleaut.Variant, error) {
	ft := fn.Type()
	n := ft.NumIn()
	in := make([]reflect.Value, 0, max(n, len(args)))
	for i := range n {
		pt := ft.In(i)
		if ft.IsVariadic() && i == n-1 {
			for _, a := range args[min(i, len(args)):] {
				v, err := convert(a, pt.Elem())
				if err != nil {
					return oleaut.Empty(), err
				}
				in = append(in, v)
			}
			break
		}
		var a any
		if i < len(args) {
			a = args[i]
		}
		v, err := convert(a, pt)
		if err != nil {
			return oleaut.Empty(), err
		}
		in = append(in, v)
	}

	out := fn.Call(in)
	if len(out) > 0 {
		last := out[len(out)-1]
		if last.Type() == errorType {
			if !last.IsNil() {
				err := last.Interface().(error)
				return oleaut.Empty(), &oleaut.Exception{Code: oleaut.DISP_E_EXCEPTION, Source: ft.String(), Description: err.Error()}
			}
			out = out[:len(out)-1]
		}
	}
	if len(out) == 0 {
		return oleaut.Empty(), nil
	}
	return o.encode(out[0]), nil
}

func (o *Object) codec() oleaut.Codec {
	return oleaut.Codec{Wrap: o.wrap}
}

func (o *Object) wrap(v any) (oleaut.Dispatch, bool) {
	if !Wrappable(v) {
		return nil, false
	}
	return newObject(reflect.ValueOf(v), o.cfg), true
}

func (o *Object) encode(rv reflect.Value) oleaut.Variant {
	if !rv.IsValid() {
		return oleaut.Empty()
	}
	if rv.Kind() == reflect.Interface {
		if rv.IsNil() {
			return oleaut.Empty()
		}
		rv = rv.Elem()
	}
	if rv.Kind() == reflect.Pointer && rv.IsNil() {
		return oleaut.Null()
	}
	return o.codec().Encode(rv.Interface())
}

func (o *Object) decode(v oleaut.Variant) any {
	if d, ok := oleaut.DispatchOf(v); ok {
		switch x := d.(type) {
		case nil:
			return nil
		case *Object:
			return x.Value()
		}
		if o.cfg.foreign != nil {
			return o.cfg.foreign(d)
		}
		return d
	}
	if deref := v.Deref(); deref.IsArray() {
		items := deref.Array()
		out := make([]any, len(items))
		for i, item := range items {
			out[i] = o.decode(item)
		}
		return out
	}
	return oleaut.Decode(v)
}

// decodeArgs converts Invoke-ordered arguments to call-site order.
func (o *Object) decodeArgs(args []oleaut.Variant) []any {
	n := len(args)
	out := make([]any, n)
	for i := range n {
		out[i] = o.decode(args[n-i-1])
	}
	return out
}

var errorType = reflect.TypeFor[error]()

func indirect(rv reflect.Value) reflect.Value {
	for rv.Kind() == reflect.Pointer || rv.Kind() == reflect.Interface {
		if rv.IsNil() {
			return rv
		}
		rv = rv.Elem()
	}
	return rv
}

// unbox unwraps a non-nil interface value.
func unbox(rv reflect.Value) reflect.Value {
	if rv.Kind() == reflect.Interface && !rv.IsNil() {
		return rv.Elem()
	}
	return rv
}

func element(rv reflect.Value, i int64) (reflect.Value, error) {
	rv = indirect(rv)
	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		if i < 0 || i >= int64(rv.Len()) {
			return reflect.Value{}, oleaut.DISP_E_BADINDEX
		}
		return rv.Index(int(i)), nil
	}
	return reflect.Value{}, oleaut.DISP_E_MEMBERNOTFOUND
}

func setElement(rv reflect.Value, i int64, value any) error {
	rv = indirect(rv)
	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		if i < 0 || i >= int64(rv.Len()) {
			return oleaut.DISP_E_BADINDEX
		}
		elem := rv.Index(int(i))
		if !elem.CanSet() {
			return oleaut.DISP_E_MEMBERNOTFOUND
		}
		v, err := convert(value, elem.Type())
		if err != nil {
			return err
		}
		elem.Set(v)
		return nil
	}
	return oleaut.DISP_E_MEMBERNOTFOUND
}

// convert adapts a decoded value to a parameter, field or element type.
func convert(value any, t reflect.Type) (reflect.Value, error) {
	if value == nil {
		return reflect.Zero(t), nil
	}
	rv := reflect.ValueOf(value)
	if rv.Type().AssignableTo(t) {
		return rv, nil
	}
	if isNumeric(rv.Kind()) && isNumeric(t.Kind()) {
		out, ok := convertNumber(rv, t)
		if !ok {
			return reflect.Value{}, fmt.Errorf("cannot use %v as %s: %w", value, t, oleaut.DISP_E_OVERFLOW)
		}
		return out, nil
	}
	if rv.Kind() == reflect.String && t.Kind() == reflect.String {
		return rv.Convert(t), nil
	}
	if rv.Kind() == reflect.Bool && t.Kind() == reflect.Bool {
		return rv.Convert(t), nil
	}
	return reflect.Value{}, fmt.Errorf("cannot use %T as %s: %w", value, t, oleaut.DISP_E_TYPEMISMATCH)
}

// convertNumber converts between numeric kinds. Floats truncate toward zero; it
// fails when the target cannot hold the value.
func convertNumber(rv reflect.Value, t reflect.Type) (reflect.Value, bool) {
	out := reflect.New(t).Elem()
	switch {
	case rv.CanInt():
		i := rv.Int()
		switch {
		case out.CanInt():
			if out.OverflowInt(i) {
				return out, false
			}
			out.SetInt(i)
		case out.CanUint():
			if i < 0 || out.OverflowUint(uint64(i)) {
				return out, false
			}
			out.SetUint(uint64(i))
		default:
			out.SetFloat(float64(i))
		}
	case rv.CanUint():
		u := rv.Uint()
		switch {
		case out.CanInt():
			if u > math.MaxInt64 || out.OverflowInt(int64(u)) {
				return out, false
			}
			out.SetInt(int64(u))
		case out.CanUint():
			if out.OverflowUint(u) {
				return out, false
			}
			out.SetUint(u)
		default:
			out.SetFloat(float64(u))
		}
	default:
		f := rv.Float()
		switch {
		case out.CanFloat():
			if !math.IsNaN(f) && out.OverflowFloat(f) {
				return out, false
			}
			out.SetFloat(f)
		case math.IsNaN(f):
			return out, false
		case out.CanInt():
			if f >= 1<<63 || f < -(1<<63) || out.OverflowInt(int64(f)) {
				return out, false
			}
			out.SetInt(int64(f))
		default:
			if f <= -1 || f >= 1<<64 || out.OverflowUint(uint64(f)) {
				return out, false
			}
			out.SetUint(uint64(f))
		}
	}
	return out, true
}

func isNumeric(k reflect.Kind) bool {
	switch k {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return true
	}
	return false
}
