package oleaut

import (
	"fmt"
	"time"
)

// Variant is the tagged value exchanged with Dispatch objects.
//
// The payload is kept unexported so every Variant is built through one of the
// constructors below and its tag always agrees with the stored Go type:
//
//	VT_BOOL                      bool
//	VT_I1..VT_I8, VT_INT         int64
//	VT_UI1..VT_UI8, VT_UINT      uint64
//	VT_R4, VT_R8, VT_DATE        float64
//	VT_BSTR                      string
//	VT_DISPATCH                  Dispatch
//	VT_UNKNOWN                   Unknown
//	VT_BYREF|VT_VARIANT          *Variant
//	VT_ARRAY|VT_VARIANT          []Variant
type Variant struct {
	VT  VarType
	val any
}

func Empty() Variant            { return Variant{VT: VT_EMPTY} }
func Null() Variant             { return Variant{VT: VT_NULL} }
func Bool(b bool) Variant       { return Variant{VT: VT_BOOL, val: b} }
func Int8(i int8) Variant       { return Variant{VT: VT_I1, val: int64(i)} }
func Int16(i int16) Variant     { return Variant{VT: VT_I2, val: int64(i)} }
func Int32(i int32) Variant     { return Variant{VT: VT_I4, val: int64(i)} }
func Int64(i int64) Variant     { return Variant{VT: VT_I8, val: i} }
func Uint8(i uint8) Variant     { return Variant{VT: VT_UI1, val: uint64(i)} }
func Uint16(i uint16) Variant   { return Variant{VT: VT_UI2, val: uint64(i)} }
func Uint32(i uint32) Variant   { return Variant{VT: VT_UI4, val: uint64(i)} }
func Uint64(i uint64) Variant   { return Variant{VT: VT_UI8, val: i} }
func Float32(f float32) Variant { return Variant{VT: VT_R4, val: float64(f)} }
func Float64(f float64) Variant { return Variant{VT: VT_R8, val: f} }
func String(s string) Variant   { return Variant{VT: VT_BSTR, val: s} }

// Int returns a VT_I4 when i fits in 32 bits and a VT_I8 otherwise.
func Int(i int64) Variant {
	if i >= -1<<31 && i <= 1<<31-1 {
		return Int32(int32(i))
	}
	return Int64(i)
}

// Uint returns a VT_UI4 when i fits in 32 bits and a VT_UI8 otherwise.
func Uint(i uint64) Variant {
	if i <= 1<<32-1 {
		return Uint32(uint32(i))
	}
	return Uint64(i)
}

// Date stores t as an automation date.
func Date(t time.Time) Variant { return Variant{VT: VT_DATE, val: TimeToDate(t)} }

// Object wraps a Dispatch reference. The variant borrows d; it does not AddRef.
func Object(d Dispatch) Variant { return Variant{VT: VT_DISPATCH, val: d} }

// UnknownRef wraps a plain Unknown reference.
func UnknownRef(u Unknown) Variant { return Variant{VT: VT_UNKNOWN, val: u} }

// Ref makes a by-reference cell over p.
func Ref(p *Variant) Variant { return Variant{VT: VT_BYREF | VT_VARIANT, val: p} }

// Array makes an argument array.
func Array(items []Variant) Variant { return Variant{VT: VT_ARRAY | VT_VARIANT, val: items} }

// Type returns the tag without the array and by-reference flags.
func (v Variant) Type() VarType { return v.VT & VT_TYPEMASK }

func (v Variant) IsByRef() bool { return v.VT&VT_BYREF != 0 }
func (v Variant) IsArray() bool { return v.VT&VT_ARRAY != 0 }

// IsEmpty reports whether v is VT_EMPTY or VT_NULL.
func (v Variant) IsEmpty() bool {
	return !v.IsByRef() && (v.VT == VT_EMPTY || v.VT == VT_NULL)
}

// Deref follows a by-reference cell once. Other variants are returned as is.
func (v Variant) Deref() Variant {
	if !v.IsByRef() {
		return v
	}
	p, _ := v.val.(*Variant)
	if p == nil {
		return Empty()
	}
	return *p
}

// Cell returns the target of a by-reference cell, nil otherwise.
func (v Variant) Cell() *Variant {
	if !v.IsByRef() {
		return nil
	}
	p, _ := v.val.(*Variant)
	return p
}

func (v Variant) Bool() bool {
	b, _ := v.val.(bool)
	return b
}

func (v Variant) Int() int64 {
	switch x := v.val.(type) {
	case int64:
		return x
	case uint64:
		return int64(x)
	}
	return 0
}

func (v Variant) Uint() uint64 {
	switch x := v.val.(type) {
	case uint64:
		return x
	case int64:
		return uint64(x)
	}
	return 0
}

func (v Variant) Float() float64 {
	f, _ := v.val.(float64)
	return f
}

// Text returns the payload of a VT_BSTR.
func (v Variant) Text() string {
	s, _ := v.val.(string)
	return s
}

// Time returns the payload of a VT_DATE.
func (v Variant) Time() time.Time { return DateToTime(v.Float()) }

func (v Variant) Dispatch() Dispatch {
	d, _ := v.val.(Dispatch)
	return d
}

func (v Variant) Unknown() Unknown {
	switch x := v.val.(type) {
	case Unknown:
		return x
	}
	return nil
}

func (v Variant) Array() []Variant {
	items, _ := v.val.([]Variant)
	return items
}

func (v Variant) String() string {
	switch {
	case v.IsByRef():
		return fmt.Sprintf("%s(&%s)", v.VT, v.Deref())
	case v.IsArray():
		return fmt.Sprintf("%s%v", v.VT, v.Array())
	}
	switch v.VT {
	case VT_EMPTY, VT_NULL:
		return v.VT.String()
	case VT_BSTR:
		return fmt.Sprintf("%s(%q)", v.VT, v.Text())
	case VT_DATE:
		return fmt.Sprintf("%s(%s)", v.VT, v.Time().Format(time.RFC3339))
	case VT_DISPATCH, VT_UNKNOWN:
		return fmt.Sprintf("%s(%T)", v.VT, v.val)
	}
	return fmt.Sprintf("%s(%v)", v.VT, v.val)
}

// automation dates count days from this instant; the fraction is the time of day.
var dateEpoch = time.Date(1899, time.December, 30, 0, 0, 0, 0, time.UTC)

const day = 24 * time.Hour

// TimeToDate converts t to an automation date.
func TimeToDate(t time.Time) float64 {
	d := t.Sub(dateEpoch)
	return float64(d/day) + float64(d%day)/float64(day)
}

// DateToTime converts an automation date to a UTC time, rounded to the millisecond.
func DateToTime(d float64) time.Time {
	days := int64(d)
	frac := d - float64(days)
	t := dateEpoch.Add(time.Duration(days) * day).Add(time.Duration(frac * float64(day)))
	return t.Round(time.Millisecond)
}
