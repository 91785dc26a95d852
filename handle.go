package activex

import (
	"sync/atomic"

	"github.com/podhmo/go-activex/oleaut"
)

// handle owns one reference on a Dispatch: AddRef when created, Release once.
type handle struct {
	disp     oleaut.Dispatch
	released atomic.Bool
}

func newHandle(d oleaut.Dispatch) *handle {
	d.AddRef()
	return &handle{disp: d}
}

func (h *handle) get() (oleaut.Dispatch, bool) {
	if h.released.Load() {
		return nil, false
	}
	return h.disp, true
}

func (h *handle) release() bool {
	if !h.released.CompareAndSwap(false, true) {
		return false
	}
	h.disp.Release()
	return true
}
