package oleaut

import (
	"errors"
	"fmt"
)

// HRESULT is a transport status code. Failure codes implement error.
type HRESULT uint32

const (
	S_OK    HRESULT = 0x00000000
	S_FALSE HRESULT = 0x00000001

	E_NOTIMPL     HRESULT = 0x80004001
	E_NOINTERFACE HRESULT = 0x80004002
	E_POINTER     HRESULT = 0x80004003
	E_FAIL        HRESULT = 0x80004005
	E_INVALIDARG  HRESULT = 0x80070057

	DISP_E_UNKNOWNINTERFACE HRESULT = 0x80020001
	DISP_E_MEMBERNOTFOUND   HRESULT = 0x80020003
	DISP_E_PARAMNOTFOUND    HRESULT = 0x80020004
	DISP_E_TYPEMISMATCH     HRESULT = 0x80020005
	DISP_E_UNKNOWNNAME      HRESULT = 0x80020006
	DISP_E_EXCEPTION        HRESULT = 0x80020009
	DISP_E_OVERFLOW         HRESULT = 0x8002000A
	DISP_E_BADINDEX         HRESULT = 0x8002000B
	DISP_E_BADPARAMCOUNT    HRESULT = 0x8002000E

	TYPE_E_ELEMENTNOTFOUND HRESULT = 0x8002802B

	REGDB_E_CLASSNOTREG HRESULT = 0x80040154
	MK_E_UNAVAILABLE    HRESULT = 0x800401E3
	CO_E_CLASSSTRING    HRESULT = 0x800401F3
)

var hresultMessages = map[HRESULT]string{
	E_NOTIMPL:               "not implemented",
	E_NOINTERFACE:           "no such interface supported",
	E_POINTER:               "invalid pointer",
	E_FAIL:                  "unspecified error",
	E_INVALIDARG:            "the parameter is incorrect",
	DISP_E_UNKNOWNINTERFACE: "unknown interface",
	DISP_E_MEMBERNOTFOUND:   "member not found",
	DISP_E_PARAMNOTFOUND:    "parameter not found",
	DISP_E_TYPEMISMATCH:     "type mismatch",
	DISP_E_UNKNOWNNAME:      "unknown name",
	DISP_E_EXCEPTION:        "exception occurred",
	DISP_E_OVERFLOW:         "out of present range",
	DISP_E_BADINDEX:         "invalid index",
	DISP_E_BADPARAMCOUNT:    "invalid number of parameters",
	TYPE_E_ELEMENTNOTFOUND:  "element not found",
	REGDB_E_CLASSNOTREG:     "class not registered",
	MK_E_UNAVAILABLE:        "operation unavailable",
	CO_E_CLASSSTRING:        "invalid class string",
}

// Failed reports whether hr is a failure code.
func (hr HRESULT) Failed() bool { return hr&0x80000000 != 0 }

func (hr HRESULT) Error() string {
	if msg, ok := hresultMessages[hr]; ok {
		return fmt.Sprintf("%s (0x%08X)", msg, uint32(hr))
	}
	return fmt.Sprintf("HRESULT 0x%08X", uint32(hr))
}

// Exception is the extended error information an object may attach to a failed call.
type Exception struct {
	Code        HRESULT
	Source      string
	Description string
}

func (e *Exception) Error() string {
	if e.Description == "" {
		return e.Code.Error()
	}
	if e.Source != "" {
		return e.Source + ": " + e.Description
	}
	return e.Description
}

func (e *Exception) Unwrap() error { return e.Code }

// Description returns the extended description carried by err, if any.
func Description(err error) string {
	var exc *Exception
	if errors.As(err, &exc) {
		return exc.Description
	}
	return ""
}

// Code returns the HRESULT carried by err, E_FAIL for other non-nil errors.
func Code(err error) HRESULT {
	if err == nil {
		return S_OK
	}
	var hr HRESULT
	if errors.As(err, &hr) {
		return hr
	}
	return E_FAIL
}
