package oleaut

import (
	"math"
	"strconv"
	"strings"
	"time"
)

// Codec converts native Go values to variants.
type Codec struct {
	// Wrap turns a native object (map, struct pointer, slice, func) into a Dispatch.
	// When nil, or when it declines, such values encode as VT_EMPTY
	// (slices of any still encode as argument arrays).
	Wrap func(v any) (Dispatch, bool)
}

// Encode converts v with a codec that has no object wrapper.
func Encode(v any) Variant { return Codec{}.Encode(v) }

func (c Codec) Encode(v any) Variant {
	switch x := v.(type) {
	case nil:
		return Empty()
	case Variant:
		return x
	case *Variant:
		if x == nil {
			return Null()
		}
		return Ref(x)
	case VariantMarshaler:
		return x.MarshalVariant()
	case Dispatch:
		return Object(x)
	case Unknown:
		return UnknownRef(x)
	case bool:
		return Bool(x)
	case int:
		return Int(int64(x))
	case int8:
		return Int8(x)
	case int16:
		return Int16(x)
	case int32:
		return Int32(x)
	case int64:
		return Int(x)
	case uint:
		return Uint(uint64(x))
	case uint8:
		return Uint8(x)
	case uint16:
		return Uint16(x)
	case uint32:
		return Uint32(x)
	case uint64:
		return Uint(x)
	case float32:
		return Float32(x)
	case float64:
		return Float64(x)
	case string:
		return String(x)
	case time.Time:
		return Date(x)
	case []Variant:
		return Array(x)
	}
	if c.Wrap != nil {
		if d, ok := c.Wrap(v); ok {
			return Object(d)
		}
	}
	if items, ok := v.([]any); ok {
		return Array(c.EncodeSlice(items))
	}
	return Empty()
}

// EncodeSlice encodes items keeping their order.
func (c Codec) EncodeSlice(items []any) []Variant {
	out := make([]Variant, len(items))
	for i, item := range items {
		out[i] = c.Encode(item)
	}
	return out
}

// EncodeArgs encodes a call-site argument list into Invoke order: the last
// native argument lands in the first slot.
func (c Codec) EncodeArgs(args []any) []Variant {
	n := len(args)
	out := make([]Variant, n)
	for i := range n {
		out[i] = c.Encode(args[n-i-1])
	}
	return out
}

// EncodeArgs encodes args with a codec that has no object wrapper.
func EncodeArgs(args []any) []Variant { return Codec{}.EncodeArgs(args) }

// DecodeArgs turns Invoke-ordered arguments back into call-site order.
func DecodeArgs(args []Variant) []any {
	n := len(args)
	out := make([]any, n)
	for i := range n {
		out[i] = Decode(args[n-i-1])
	}
	return out
}

// Decode converts v to a native value. Object references are returned as the
// Dispatch or Unknown they carry; wrapping them is the caller's business.
func Decode(v Variant) any {
	v = v.Deref()
	if v.IsArray() {
		items := v.Array()
		out := make([]any, len(items))
		for i, item := range items {
			out[i] = Decode(item)
		}
		return out
	}
	switch v.Type() {
	case VT_EMPTY, VT_NULL:
		return nil
	case VT_BOOL:
		return v.Bool()
	case VT_I1, VT_I2, VT_I4, VT_I8, VT_INT:
		return v.Int()
	case VT_UI1, VT_UI2, VT_UI4, VT_UI8, VT_UINT:
		return v.Uint()
	case VT_R4, VT_R8:
		return v.Float()
	case VT_DATE:
		return v.Time()
	case VT_BSTR:
		return v.Text()
	case VT_DISPATCH:
		return v.Dispatch()
	case VT_UNKNOWN:
		return v.Unknown()
	}
	return nil
}

// DispatchOf reports whether v holds an object reference (VT_DISPATCH or
// VT_UNKNOWN, after one dereference). For VT_UNKNOWN the reference is upgraded
// when it supports Dispatch; otherwise the returned Dispatch is nil while the
// boolean is still true.
func DispatchOf(v Variant) (Dispatch, bool) {
	v = v.Deref()
	if v.IsArray() {
		return nil, false
	}
	switch v.Type() {
	case VT_DISPATCH:
		return v.Dispatch(), true
	case VT_UNKNOWN:
		u := v.Unknown()
		if u == nil {
			return nil, true
		}
		if d, ok := u.(Dispatch); ok {
			return d, true
		}
		if q, ok := u.(DispatchQuerier); ok {
			if d, err := q.QueryDispatch(); err == nil {
				return d, true
			}
		}
		return nil, true
	}
	return nil, false
}

// ToInt coerces v to an integer. The precedence is fixed: empty and null give def,
// integers, floats and dates truncate, booleans give 1 or 0, a by-reference variant
// is followed once, and anything else goes through a string coercion that falls
// back to def. Values outside the int64 range, and NaN, give def.
func ToInt(v Variant, def int64) int64 {
	if v.IsByRef() {
		return toInt(v.Deref(), def)
	}
	return toInt(v, def)
}

func toInt(v Variant, def int64) int64 {
	if v.IsArray() || v.IsByRef() {
		return def
	}
	switch v.Type() {
	case VT_EMPTY, VT_NULL:
		return def
	case VT_I1, VT_I2, VT_I4, VT_I8, VT_INT:
		return v.Int()
	case VT_UI1, VT_UI2, VT_UI4, VT_UI8, VT_UINT:
		if u := v.Uint(); u <= math.MaxInt64 {
			return int64(u)
		}
	case VT_R4, VT_R8, VT_DATE:
		return truncate(v.Float(), def)
	case VT_BOOL:
		if v.Bool() {
			return 1
		}
		return 0
	case VT_BSTR:
		s := strings.TrimSpace(v.Text())
		if i, err := strconv.ParseInt(s, 10, 64); err == nil {
			return i
		}
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return truncate(math.RoundToEven(f), def)
		}
	}
	return def
}

// truncate converts f toward zero, or gives def when f has no int64 value.
func truncate(f float64, def int64) int64 {
	if math.IsNaN(f) || f >= 1<<63 || f < -(1<<63) {
		return def
	}
	return int64(f)
}
