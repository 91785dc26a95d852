package activex

import (
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"weak"

	"github.com/podhmo/go-activex/cache"
	"github.com/podhmo/go-activex/internal/jobqueue"
	"github.com/podhmo/go-activex/oleaut"
	"golang.org/x/sync/singleflight"
)

// minPreparedFuncs is the number of enumerated functions above which metadata
// counts as present. Three is what the reference-counting baseline alone yields.
const minPreparedFuncs = 4

// ObjectInfo owns one foreign object: its handle, the member cache and the link
// to the object it was reached from. It is shared by every Proxy bound to it and
// releases the handle when the last of them lets go.
type ObjectInfo struct {
	handle *handle
	name   string
	flags  Flags
	parent weak.Pointer[ObjectInfo]

	members     *cache.MemberCache
	lookups     singleflight.Group
	prepareOnce sync.Once
	prepared    atomic.Bool
	refs        atomic.Int32

	processor *jobqueue.Processor
	logger    *slog.Logger
}

// newObjectInfo wraps d. Only the inheritable option bits of flags are kept.
// Type metadata is collected right away when OptionType is set.
func newObjectInfo(d oleaut.Dispatch, name string, flags Flags, parent *ObjectInfo, cfg *Config) *ObjectInfo {
	o := &ObjectInfo{
		handle:    newHandle(d),
		name:      name,
		flags:     flags & optionMask,
		members:   cache.NewMemberCache(),
		processor: cfg.Processor,
		logger:    cfg.Logger,
	}
	if parent != nil {
		o.parent = weak.Make(parent)
	}
	if o.flags&OptionType != 0 {
		o.Prepare()
	}
	return o
}

// Name returns the name the object was reached by.
func (o *ObjectInfo) Name() string { return o.name }

// Flags returns the option bits of the object.
func (o *ObjectInfo) Flags() Flags { return o.flags }

// Parent returns the object this one was reached from, or nil for roots and
// for parents that no longer exist.
func (o *ObjectInfo) Parent() *ObjectInfo { return o.parent.Value() }

// Prepared reports whether type metadata was collected.
func (o *ObjectInfo) Prepared() bool { return o.prepared.Load() }

// Released reports whether the foreign handle has been released.
func (o *ObjectInfo) Released() bool { return o.handle.released.Load() }

// Members returns a copy of the resolved names and classified member ids.
func (o *ObjectInfo) Members() cache.Snapshot { return o.members.Snapshot() }

// Dispatch returns the wrapped object, or ErrInvalidState once released.
func (o *ObjectInfo) Dispatch() (oleaut.Dispatch, error) {
	d, ok := o.handle.get()
	if !ok {
		return nil, ErrInvalidState
	}
	return d, nil
}

func (o *ObjectInfo) acquire() { o.refs.Add(1) }

func (o *ObjectInfo) release() {
	if o.refs.Add(-1) > 0 {
		return
	}
	if o.handle.release() {
		o.logger.Debug("object released", slog.String("name", o.name))
	}
}

// Prepare collects type metadata once, merging the invocation kinds of ids that
// appear under several type descriptions. The outcome is final: an object that
// enumerated fewer than four functions stays unprepared.
func (o *ObjectInfo) Prepare() bool {
	o.prepareOnce.Do(func() {
		o.Enumerate(func(_ oleaut.TypeInfo, fd *oleaut.FuncDesc) {
			o.members.Merge(fd.MemID, fd.InvKind)
		})
		if o.members.Len() >= minPreparedFuncs {
			o.prepared.Store(true)
		}
		o.logger.Debug("type metadata collected",
			slog.String("name", o.name),
			slog.Int("funcs", o.members.Len()),
			slog.Bool("prepared", o.prepared.Load()))
	})
	return o.prepared.Load()
}

// Enumerate calls fn for every function description of every type description.
// It reports whether the object exposes any type description at all.
func (o *ObjectInfo) Enumerate(fn func(ti oleaut.TypeInfo, fd *oleaut.FuncDesc)) bool {
	d, err := o.Dispatch()
	if err != nil {
		return false
	}
	count, err := d.GetTypeInfoCount()
	if err != nil {
		count = 0
	}
	for i := range count {
		ti, err := d.GetTypeInfo(i)
		if err != nil || ti == nil {
			continue
		}
		for n := 0; ; n++ {
			fd, err := ti.GetFuncDesc(n)
			if err != nil || fd == nil {
				break
			}
			fn(ti, fd)
		}
	}
	return count > 0
}

// ItemName returns the display name of id in ti.
func (o *ObjectInfo) ItemName(ti oleaut.TypeInfo, id oleaut.DispID) (string, bool) {
	name, err := ti.GetNames(id)
	if err != nil || name == "" {
		return "", false
	}
	return name, true
}

// IsProperty reports whether id is a plain property. Without metadata nothing is.
func (o *ObjectInfo) IsProperty(id oleaut.DispID) bool {
	if !o.prepared.Load() {
		return false
	}
	f, ok := o.members.Func(id)
	if !ok {
		return false
	}
	return f.Kind&(oleaut.INVOKE_PROPERTYGET|oleaut.INVOKE_FUNC) == oleaut.INVOKE_PROPERTYGET
}

// FindProperty resolves name to a member id. Successful resolutions are cached;
// concurrent lookups of one name share a single call.
func (o *ObjectInfo) FindProperty(name string) (oleaut.DispID, error) {
	if id, ok := o.members.LookupName(name); ok {
		return id, nil
	}
	v, err, _ := o.lookups.Do(name, func() (any, error) {
		if id, ok := o.members.LookupName(name); ok {
			return id, nil
		}
		d, err := o.Dispatch()
		if err != nil {
			return oleaut.DISPID_UNKNOWN, err
		}
		id, err := oleaut.FindName(d, name)
		if err != nil {
			return oleaut.DISPID_UNKNOWN, err
		}
		o.members.StoreName(name, id)
		return id, nil
	})
	return v.(oleaut.DispID), err
}

// GetProperty reads id, passing index as the only argument when it is not negative.
// A failed read yields an empty variant.
func (o *ObjectInfo) GetProperty(id oleaut.DispID, index int64) (oleaut.Variant, error) {
	var args []oleaut.Variant
	if index >= 0 {
		args = []oleaut.Variant{oleaut.Int(index)}
	}
	v, err := o.invoke(id, oleaut.DISPATCH_PROPERTYGET, args)
	if err != nil {
		return oleaut.Empty(), err
	}
	return v, nil
}

// SetProperty writes id. args[0] is the value, any further entries are indexes.
// A failed write yields an empty variant.
func (o *ObjectInfo) SetProperty(id oleaut.DispID, args []oleaut.Variant) (oleaut.Variant, error) {
	v, err := o.invoke(id, oleaut.DISPATCH_PROPERTYPUT, args)
	if err != nil {
		return oleaut.Empty(), err
	}
	return v, nil
}

// ExecuteMethod calls id with args in Invoke order.
func (o *ObjectInfo) ExecuteMethod(id oleaut.DispID, args []oleaut.Variant) (oleaut.Variant, error) {
	return o.invoke(id, oleaut.DISPATCH_METHOD, args)
}

func (o *ObjectInfo) invoke(id oleaut.DispID, flags oleaut.InvokeKind, args []oleaut.Variant) (oleaut.Variant, error) {
	d, err := o.Dispatch()
	if err != nil {
		return oleaut.Empty(), err
	}
	if o.flags&OptionAsync == 0 || o.processor == nil {
		return oleaut.Invoke(d, id, flags, args)
	}

	var result oleaut.Variant
	job := jobqueue.NewJob(fmt.Sprintf("%s[%d] %s", o.name, id, flags), func() error {
		var err error
		result, err = oleaut.Invoke(d, id, flags, args)
		return err
	}, nil)
	if err := o.processor.Do(job); err != nil {
		return oleaut.Empty(), err
	}
	return result, nil
}
