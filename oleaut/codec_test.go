package oleaut

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

type fakeUnknown struct{ refs int32 }

func (u *fakeUnknown) AddRef() int32  { u.refs++; return u.refs }
func (u *fakeUnknown) Release() int32 { u.refs--; return u.refs }

type fakeDispatch struct{ fakeUnknown }

func (d *fakeDispatch) GetIDsOfName(string) (DispID, error) { return DISPID_UNKNOWN, nil }
func (d *fakeDispatch) Invoke(DispID, InvokeKind, *DispParams) (Variant, error) {
	return Empty(), E_NOTIMPL
}
func (d *fakeDispatch) GetTypeInfoCount() (int, error)     { return 0, nil }
func (d *fakeDispatch) GetTypeInfo(int) (TypeInfo, error) { return nil, E_NOTIMPL }

type querier struct {
	fakeUnknown
	target Dispatch
}

func (q *querier) QueryDispatch() (Dispatch, error) {
	if q.target == nil {
		return nil, E_NOINTERFACE
	}
	return q.target, nil
}

func TestToInt(t *testing.T) {
	cell := Int32(7)
	nested := Ref(&cell)
	tests := []struct {
		name string
		in   Variant
		want int64
	}{
		{"empty", Empty(), -1},
		{"null", Null(), -1},
		{"i1", Int8(-3), -3},
		{"i4", Int32(42), 42},
		{"i8", Int64(1 << 40), 1 << 40},
		{"ui2", Uint16(65535), 65535},
		{"r8 truncates", Float64(3.9), 3},
		{"r4 negative truncates", Float32(-2.5), -2},
		{"date truncates", Variant{VT: VT_DATE, val: 45000.75}, 45000},
		{"bool true", Bool(true), 1},
		{"bool false", Bool(false), 0},
		{"byref", Ref(&cell), 7},
		{"byref followed once", Ref(&nested), -1},
		{"numeric string", String(" 12 "), 12},
		{"float string rounds", String("2.5"), 2},
		{"garbage string", String("abc"), -1},
		{"r8 above int64", Float64(1e19), -1},
		{"r8 below int64", Float64(-1e19), -1},
		{"r8 nan", Float64(math.NaN()), -1},
		{"r4 infinity", Float32(float32(math.Inf(-1))), -1},
		{"ui8 above int64", Uint64(math.MaxUint64), -1},
		{"huge float string", String("1e30"), -1},
		{"int64 min", Float64(-(1 << 63)), -(1 << 63)},
		{"object", Object(&fakeDispatch{}), -1},
		{"array", Array([]Variant{Int32(1)}), -1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ToInt(tt.in, -1); got != tt.want {
				t.Errorf("ToInt(%v) = %d, want %d", tt.in, got, tt.want)
			}
		})
	}
}

func TestEncodeDecode(t *testing.T) {
	when := time.Date(2024, time.March, 9, 13, 45, 30, 0, time.UTC)
	tests := []struct {
		name   string
		in     any
		wantVT VarType
		want   any
	}{
		{"nil", nil, VT_EMPTY, nil},
		{"bool", true, VT_BOOL, true},
		{"small int", 5, VT_I4, int64(5)},
		{"large int", int64(1) << 40, VT_I8, int64(1) << 40},
		{"int16", int16(-7), VT_I2, int64(-7)},
		{"uint", uint(9), VT_UI4, uint64(9)},
		{"float32", float32(1.5), VT_R4, 1.5},
		{"float64", 2.25, VT_R8, 2.25},
		{"string", "hello", VT_BSTR, "hello"},
		{"date", when, VT_DATE, when},
		{"slice", []any{1, "a"}, VT_ARRAY | VT_VARIANT, []any{int64(1), "a"}},
		{"unsupported", struct{}{}, VT_EMPTY, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := Encode(tt.in)
			if v.VT != tt.wantVT {
				t.Errorf("Encode(%#v).VT = %s, want %s", tt.in, v.VT, tt.wantVT)
			}
			if diff := cmp.Diff(tt.want, Decode(v)); diff != "" {
				t.Errorf("Decode mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestEncodeWrap(t *testing.T) {
	target := &fakeDispatch{}
	c := Codec{Wrap: func(v any) (Dispatch, bool) {
		if _, ok := v.(map[string]any); ok {
			return target, true
		}
		return nil, false
	}}

	v := c.Encode(map[string]any{"a": 1})
	if v.VT != VT_DISPATCH || v.Dispatch() != target {
		t.Errorf("map was not wrapped: %v", v)
	}
	if v := c.Encode(struct{}{}); v.VT != VT_EMPTY {
		t.Errorf("declined value should encode as empty, got %v", v)
	}
	if target.refs != 0 {
		t.Errorf("encoding must not AddRef, refs=%d", target.refs)
	}
}

func TestEncodeArgsReversesOrder(t *testing.T) {
	args := EncodeArgs([]any{"a", "b", "c"})
	var got []string
	for _, a := range args {
		got = append(got, a.Text())
	}
	if diff := cmp.Diff([]string{"c", "b", "a"}, got); diff != "" {
		t.Errorf("EncodeArgs order mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]any{"a", "b", "c"}, DecodeArgs(args)); diff != "" {
		t.Errorf("DecodeArgs order mismatch (-want +got):\n%s", diff)
	}
}

func TestDispatchOf(t *testing.T) {
	d := &fakeDispatch{}
	obj := Object(d)

	tests := []struct {
		name   string
		in     Variant
		want   Dispatch
		wantOK bool
	}{
		{"dispatch", obj, d, true},
		{"byref dispatch", Ref(&obj), d, true},
		{"unknown that is a dispatch", UnknownRef(d), d, true},
		{"unknown upgraded", UnknownRef(&querier{target: d}), d, true},
		{"unknown without dispatch", UnknownRef(&querier{}), nil, true},
		{"plain unknown", UnknownRef(&fakeUnknown{}), nil, true},
		{"scalar", Int32(1), nil, false},
		{"empty", Empty(), nil, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := DispatchOf(tt.in)
			if ok != tt.wantOK {
				t.Fatalf("DispatchOf ok = %v, want %v", ok, tt.wantOK)
			}
			if got != tt.want {
				t.Errorf("DispatchOf = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestDateRoundTrip(t *testing.T) {
	when := time.Date(1999, time.December, 31, 23, 59, 59, 0, time.UTC)
	if got := DateToTime(TimeToDate(when)); !got.Equal(when) {
		t.Errorf("round trip = %v, want %v", got, when)
	}
	if got := TimeToDate(time.Date(1900, time.January, 1, 12, 0, 0, 0, time.UTC)); got != 2.5 {
		t.Errorf("TimeToDate(1900-01-01 12:00) = %v, want 2.5", got)
	}
}

func TestErrors(t *testing.T) {
	err := error(&Exception{Code: DISP_E_EXCEPTION, Source: "Calc", Description: "division by zero"})
	if !errors.Is(err, DISP_E_EXCEPTION) {
		t.Errorf("exception should unwrap to its code")
	}
	if got := Description(err); got != "division by zero" {
		t.Errorf("Description = %q", got)
	}
	if got := Code(errors.New("boom")); got != E_FAIL {
		t.Errorf("Code(plain error) = %v, want E_FAIL", got)
	}
	if got := E_INVALIDARG.Error(); got != "the parameter is incorrect (0x80070057)" {
		t.Errorf("E_INVALIDARG.Error() = %q", got)
	}
}
