package bridge

import (
	"errors"
	"math"
	"testing"

	"github.com/podhmo/go-activex/oleaut"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type counter struct {
	Count int
	Label string
	note  string
}

func (c *counter) Add(x, y int) int { return x + y }

func (c *counter) Div(x, y int) (int, error) {
	if y == 0 {
		return 0, errors.New("division by zero")
	}
	return x / y, nil
}

func (c *counter) Join(sep string, parts ...string) string {
	out := ""
	for i, p := range parts {
		if i > 0 {
			out += sep
		}
		out += p
	}
	return out
}

func get(t *testing.T, o *Object, name string) oleaut.Variant {
	t.Helper()
	id, err := o.GetIDsOfName(name)
	require.NoError(t, err)
	v, err := oleaut.Invoke(o, id, oleaut.DISPATCH_PROPERTYGET, nil)
	require.NoError(t, err)
	return v
}

func put(t *testing.T, o *Object, name string, value any) {
	t.Helper()
	id, err := o.GetIDsOfName(name)
	require.NoError(t, err)
	_, err = oleaut.Invoke(o, id, oleaut.DISPATCH_PROPERTYPUT, []oleaut.Variant{oleaut.Encode(value)})
	require.NoError(t, err)
}

func call(t *testing.T, o *Object, name string, args ...any) (oleaut.Variant, error) {
	t.Helper()
	id, err := o.GetIDsOfName(name)
	require.NoError(t, err)
	return oleaut.Invoke(o, id, oleaut.DISPATCH_METHOD, oleaut.EncodeArgs(args))
}

func TestNew_RejectsScalars(t *testing.T) {
	for _, v := range []any{nil, 1, "text", true, (*counter)(nil), map[int]string{1: "a"}} {
		_, err := New(v)
		assert.ErrorIs(t, err, oleaut.E_INVALIDARG, "%#v", v)
	}
}

func TestGetIDsOfName_MintsMonotonicIDs(t *testing.T) {
	o, err := New(map[string]any{"a": 1, "b": 2})
	require.NoError(t, err)

	a, err := o.GetIDsOfName("a")
	require.NoError(t, err)
	b, err := o.GetIDsOfName("b")
	require.NoError(t, err)
	again, err := o.GetIDsOfName("a")
	require.NoError(t, err)
	upper, err := o.GetIDsOfName("A")
	require.NoError(t, err)

	assert.Equal(t, oleaut.DispID(1), a)
	assert.Equal(t, oleaut.DispID(2), b)
	assert.Equal(t, a, again)
	assert.Equal(t, oleaut.DispID(3), upper, "a new spelling gets a fresh id")

	name, ok := o.Name(upper)
	require.True(t, ok)
	assert.Equal(t, "a", name)

	id, err := o.GetIDsOfName("missing")
	assert.ErrorIs(t, err, oleaut.DISP_E_UNKNOWNNAME)
	assert.Equal(t, oleaut.DISPID_UNKNOWN, id)

	c, err := o.GetIDsOfName("b")
	require.NoError(t, err)
	assert.Equal(t, b, c)
}

func TestMap_GetPut(t *testing.T) {
	native := map[string]any{
		"text": "value",
		"obj":  map[string]any{"params": "value"},
		"arr":  []any{"value", "value", "value"},
	}
	o, err := New(native)
	require.NoError(t, err)

	assert.Equal(t, "value", oleaut.Decode(get(t, o, "text")))

	put(t, o, "text", "value2")
	assert.Equal(t, "value2", native["text"])
	assert.Equal(t, "value2", oleaut.Decode(get(t, o, "text")))

	objv := get(t, o, "obj")
	require.Equal(t, oleaut.VT_DISPATCH, objv.VT)
	inner := objv.Dispatch().(*Object)
	put(t, inner, "params", "value3")
	assert.Equal(t, "value3", native["obj"].(map[string]any)["params"])

	arrv := get(t, o, "arr")
	require.Equal(t, oleaut.VT_DISPATCH, arrv.VT)
	arr := arrv.Dispatch().(*Object)
	assert.Equal(t, int64(3), oleaut.Decode(get(t, arr, "length")))

	first, err := oleaut.Invoke(arr, oleaut.DISPID_VALUE, oleaut.DISPATCH_PROPERTYGET, []oleaut.Variant{oleaut.Int32(0)})
	require.NoError(t, err)
	assert.Equal(t, "value", oleaut.Decode(first))

	_, err = oleaut.Invoke(arr, oleaut.DISPID_VALUE, oleaut.DISPATCH_PROPERTYPUT, []oleaut.Variant{oleaut.String("changed"), oleaut.Int32(0)})
	require.NoError(t, err)
	assert.Equal(t, "changed", native["arr"].([]any)[0])

	_, err = oleaut.Invoke(arr, oleaut.DISPID_VALUE, oleaut.DISPATCH_PROPERTYGET, []oleaut.Variant{oleaut.Int32(5)})
	assert.ErrorIs(t, err, oleaut.DISP_E_BADINDEX)
}

func TestMap_IndexedMemberPut(t *testing.T) {
	native := map[string]any{"arr": []any{"a", "b"}}
	o, err := New(native)
	require.NoError(t, err)

	id, err := o.GetIDsOfName("arr")
	require.NoError(t, err)
	_, err = oleaut.Invoke(o, id, oleaut.DISPATCH_PROPERTYPUT, []oleaut.Variant{oleaut.String("z"), oleaut.Int32(1)})
	require.NoError(t, err)
	assert.Equal(t, []any{"a", "z"}, native["arr"])

	v, err := oleaut.Invoke(o, id, oleaut.DISPATCH_PROPERTYGET, []oleaut.Variant{oleaut.Int32(1)})
	require.NoError(t, err)
	assert.Equal(t, "z", oleaut.Decode(v))
}

func TestFuncs(t *testing.T) {
	native := map[string]any{
		"func": func(v int) int { return v * 2 },
		"sub":  func(a, b int) int { return a - b },
	}
	o, err := New(native)
	require.NoError(t, err)

	v, err := call(t, o, "func", 10)
	require.NoError(t, err)
	assert.Equal(t, int64(20), oleaut.Decode(v))

	v, err = call(t, o, "sub", 5, 3)
	require.NoError(t, err)
	assert.Equal(t, int64(2), oleaut.Decode(v), "arguments must arrive in call-site order")

	// reading a func as a property yields a callable object
	fv := get(t, o, "func")
	require.Equal(t, oleaut.VT_DISPATCH, fv.VT)
	v, err = oleaut.Invoke(fv.Dispatch(), oleaut.DISPID_VALUE, oleaut.DISPATCH_METHOD, oleaut.EncodeArgs([]any{4}))
	require.NoError(t, err)
	assert.Equal(t, int64(8), oleaut.Decode(v))
}

func TestStructPointer(t *testing.T) {
	c := &counter{Count: 5, note: "hidden"}
	o, err := New(c)
	require.NoError(t, err)

	assert.Equal(t, int64(5), oleaut.Decode(get(t, o, "count")), "case-insensitive fallback")
	put(t, o, "Count", 7)
	assert.Equal(t, 7, c.Count)

	_, err = o.GetIDsOfName("note")
	assert.ErrorIs(t, err, oleaut.DISP_E_UNKNOWNNAME, "unexported fields are invisible")

	v, err := call(t, o, "Add", 2, 3)
	require.NoError(t, err)
	assert.Equal(t, int64(5), oleaut.Decode(v))

	v, err = call(t, o, "Join", "-", "a", "b", "c")
	require.NoError(t, err)
	assert.Equal(t, "a-b-c", oleaut.Decode(v))

	_, err = call(t, o, "Div", 1, 0)
	require.Error(t, err)
	assert.ErrorIs(t, err, oleaut.DISP_E_EXCEPTION)
	assert.Equal(t, "division by zero", oleaut.Description(err))

	_, err = call(t, o, "Add", "x", 1)
	assert.ErrorIs(t, err, oleaut.DISP_E_TYPEMISMATCH)
}

func TestNumericArgumentsMustFit(t *testing.T) {
	o, err := New(map[string]any{
		"small": func(v int8) int8 { return v },
		"count": func(v uint) uint { return v },
		"whole": func(v int) int { return v },
		"ratio": func(v float32) float32 { return v },
	})
	require.NoError(t, err)

	tests := []struct {
		name   string
		member string
		arg    any
		want   any
	}{
		{name: "int fits int8", member: "small", arg: 100, want: int64(100)},
		{name: "uint accepts zero", member: "count", arg: 0, want: uint64(0)},
		{name: "float truncates", member: "whole", arg: 2.9, want: int64(2)},
		{name: "float32 fits", member: "ratio", arg: 1.5, want: 1.5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, err := call(t, o, tt.member, tt.arg)
			require.NoError(t, err)
			assert.Equal(t, tt.want, oleaut.Decode(v))
		})
	}

	overflows := []struct {
		name   string
		member string
		arg    any
	}{
		{name: "int above int8", member: "small", arg: 300},
		{name: "int below int8", member: "small", arg: -129},
		{name: "negative into uint", member: "count", arg: -1},
		{name: "nan into int", member: "whole", arg: math.NaN()},
		{name: "float above int", member: "whole", arg: 1e30},
		{name: "float above float32", member: "ratio", arg: 1e300},
	}
	for _, tt := range overflows {
		t.Run(tt.name, func(t *testing.T) {
			_, err := call(t, o, tt.member, tt.arg)
			assert.ErrorIs(t, err, oleaut.DISP_E_OVERFLOW)
		})
	}
}

func TestPanicBecomesException(t *testing.T) {
	o, err := New(map[string]any{"boom": func() { panic("bad things") }})
	require.NoError(t, err)
	_, err = call(t, o, "boom")
	assert.ErrorIs(t, err, oleaut.DISP_E_EXCEPTION)
	assert.Equal(t, "bad things", oleaut.Description(err))
}

type foreignStub struct{ oleaut.Dispatch }

func TestForeignArgumentsUseHook(t *testing.T) {
	var seen any
	o, err := New(map[string]any{
		"take": func(v any) { seen = v },
	}, WithForeign(func(d oleaut.Dispatch) any { return "wrapped" }))
	require.NoError(t, err)

	_, err = call(t, o, "take", oleaut.Object(&foreignStub{}))
	require.NoError(t, err)
	assert.Equal(t, "wrapped", seen)

	// bridge objects come back as their native value
	inner, err := New(map[string]any{"x": 1})
	require.NoError(t, err)
	_, err = call(t, o, "take", inner)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"x": 1}, seen)
}

func TestRefCount(t *testing.T) {
	o, err := New(map[string]any{})
	require.NoError(t, err)
	assert.Equal(t, int32(1), o.AddRef())
	assert.Equal(t, int32(2), o.AddRef())
	assert.Equal(t, int32(1), o.Release())
	n, err := o.GetTypeInfoCount()
	require.NoError(t, err)
	assert.Zero(t, n)
}
