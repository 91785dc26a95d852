package activex

import (
	"fmt"
	"log/slog"
	"runtime"
	"slices"
	"strings"
	"sync"

	"github.com/podhmo/go-activex/bridge"
	"github.com/podhmo/go-activex/cache"
	"github.com/podhmo/go-activex/oleaut"
)

// Reserved member names, matched case-insensitively by Get.
const (
	ReservedValue    = "__value"
	ReservedID       = "__id"
	ReservedType     = "__type"
	ReservedValueOf  = "valueOf"
	ReservedToString = "toString"
)

// TypeEntry is one function description reported by Proxy.TypeInfo.
type TypeEntry struct {
	Name     string            `json:"name,omitempty" yaml:"name,omitempty"`
	DispID   oleaut.DispID     `json:"dispid" yaml:"dispid"`
	InvKind  oleaut.InvokeKind `json:"invkind" yaml:"invkind"`
	ArgCount int               `json:"argcnt" yaml:"argcnt"`
}

// Proxy is the handle a caller works with: an object, or one member of an
// object, optionally narrowed to an element index.
//
// A proxy bound to a member is unprepared until its first use, which reads the
// member and, when the member turns out to hold an object, rebinds the proxy
// onto that object.
type Proxy struct {
	mu    sync.Mutex
	id    oleaut.DispID
	index int64
	name  string
	flags Flags

	b       *binding
	cleanup runtime.Cleanup
	cfg     *Config
}

var _ oleaut.VariantMarshaler = (*Proxy)(nil)

// binding holds the proxy's reference on its ObjectInfo. It is kept apart from
// the Proxy so that the cleanup registered on the proxy can release it.
type binding struct {
	mu       sync.Mutex
	info     *ObjectInfo
	released bool
}

func (b *binding) current() (*ObjectInfo, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.info, !b.released && !b.info.Released()
}

func (b *binding) rebind(info *ObjectInfo) {
	info.acquire()
	b.mu.Lock()
	old := b.info
	b.info = info
	b.mu.Unlock()
	old.release()
}

func (b *binding) release() {
	b.mu.Lock()
	if b.released {
		b.mu.Unlock()
		return
	}
	b.released = true
	info := b.info
	b.mu.Unlock()
	info.release()
}

// newProxy binds a proxy to info. id DISPID_UNKNOWN stands for the object itself;
// such a proxy starts prepared, while one bound to a member starts unprepared.
func newProxy(info *ObjectInfo, name string, id oleaut.DispID, index int64, cfg *Config) *Proxy {
	p := &Proxy{
		id:    id,
		index: index,
		name:  name,
		flags: info.flags,
		b:     &binding{info: info},
		cfg:   cfg,
	}
	if id == oleaut.DISPID_UNKNOWN {
		p.id = oleaut.DISPID_VALUE
		p.flags |= optionPrepared
	} else {
		p.flags |= optionOwned
	}
	info.acquire()
	p.cleanup = runtime.AddCleanup(p, func(b *binding) { b.release() }, p.b)
	cfg.Logger.Debug("proxy created", slog.String("name", name), slog.Int("dispid", int(p.id)), slog.Int64("index", index))
	return p
}

// Name returns the name the proxy was reached by.
func (p *Proxy) Name() string { return p.name }

// Release drops the proxy's reference. Every later operation fails with ErrInvalidState.
func (p *Proxy) Release() {
	p.cleanup.Stop()
	p.b.release()
}

func (p *Proxy) current() (*ObjectInfo, error) {
	info, ok := p.b.current()
	if !ok {
		return nil, newError(OpIsEmpty, p.name, ErrInvalidState, nil)
	}
	return info, nil
}

func (p *Proxy) state() (oleaut.DispID, int64, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.id, p.index, p.flags&optionPrepared != 0
}

// prepare reads the bound member. The first time, a member holding an object
// rebinds the proxy onto that object; later calls only re-read the live value.
func (p *Proxy) prepare() (oleaut.Variant, error) {
	info, err := p.current()
	if err != nil {
		return oleaut.Empty(), err
	}
	id, index, _ := p.state()
	v, err := info.GetProperty(id, index)

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.flags&optionPrepared != 0 {
		return v, err
	}
	p.flags |= optionPrepared
	if d, ok := oleaut.DispatchOf(v); ok && d != nil {
		p.b.rebind(newObjectInfo(d, p.name, p.flags, info, p.cfg))
		p.id = oleaut.DISPID_VALUE
		p.index = -1
		p.cfg.Logger.Debug("proxy rebased", slog.String("name", p.name))
	}
	return v, err
}

// ensure prepares the proxy if needed and returns its current object.
func (p *Proxy) ensure() (*ObjectInfo, error) {
	if _, _, prepared := p.state(); !prepared {
		_, _ = p.prepare()
	}
	return p.current()
}

// Get reads a member. An empty name reads the proxy's own member. Members
// known as plain properties are read at once, with object results wrapped in a
// new Proxy; any other member yields a Proxy bound to it, to be read, indexed,
// assigned or called later. Reserved names are answered without a lookup.
func (p *Proxy) Get(name string) (any, error) {
	switch {
	case strings.EqualFold(name, ReservedValue):
		return p.Value()
	case strings.EqualFold(name, ReservedID):
		return p.ID(), nil
	case strings.EqualFold(name, ReservedType):
		entries, ok := p.TypeInfo()
		if !ok {
			return nil, nil
		}
		return entries, nil
	case strings.EqualFold(name, ReservedValueOf):
		return p.Value, nil
	case strings.EqualFold(name, ReservedToString):
		return func() (any, error) { return p.ToString() }, nil
	}
	if name == "" {
		_, index, _ := p.state()
		return p.get("", true, index)
	}
	return p.get(name, false, -1)
}

// GetIndex reads element i of the proxy's own member.
func (p *Proxy) GetIndex(i int) (any, error) {
	return p.get("", true, int64(i))
}

func (p *Proxy) get(tag string, own bool, index int64) (any, error) {
	info, err := p.ensure()
	if err != nil {
		return nil, err
	}
	id, _, _ := p.state()
	if own {
		tag = p.name
	} else {
		id, err = info.FindProperty(tag)
		if err != nil {
			return nil, newError(OpPropertyFind, tag, ErrMemberNotFound, err)
		}
	}
	p.cfg.Logger.Debug("get", slog.String("object", p.name), slog.String("tag", tag), slog.Int64("index", index))

	if info.IsProperty(id) {
		v, err := info.GetProperty(id, index)
		if err != nil {
			return nil, newError(OpPropertyGet, tag, ErrInvocation, err)
		}
		return p.result(v, info, tag, tag), nil
	}
	return newProxy(info, tag, id, index, p.cfg), nil
}

// Set assigns a member. An empty name assigns the proxy's own member. The
// value echoed by the assignment is returned; an object echo comes back as a
// Proxy named "@" + name.
func (p *Proxy) Set(name string, value any) (any, error) {
	if name == "" {
		_, index, _ := p.state()
		return p.set("", true, index, value)
	}
	return p.set(name, false, -1, value)
}

// SetIndex assigns element i of the proxy's own member.
func (p *Proxy) SetIndex(i int, value any) (any, error) {
	return p.set("", true, int64(i), value)
}

func (p *Proxy) set(tag string, own bool, index int64, value any) (any, error) {
	info, err := p.ensure()
	if err != nil {
		return nil, err
	}
	id, _, _ := p.state()
	if own {
		tag = p.name
	} else {
		id, err = info.FindProperty(tag)
		if err != nil {
			return nil, newError(OpPropertyFind, tag, ErrMemberNotFound, err)
		}
	}
	p.cfg.Logger.Debug("set", slog.String("object", p.name), slog.String("tag", tag), slog.Int64("index", index))

	args := []oleaut.Variant{p.codec().Encode(value)}
	if index >= 0 {
		args = append(args, oleaut.Int(index))
	}
	ret, err := info.SetProperty(id, args)
	if err != nil {
		return nil, newError(OpPropertyPut, tag, ErrInvocation, err)
	}
	return p.result(ret, info, tag, "@"+tag), nil
}

// Call invokes the proxy's own member as a method. An object result comes back
// as a Proxy named "@" + the proxy's name.
func (p *Proxy) Call(args ...any) (any, error) {
	info, err := p.ensure()
	if err != nil {
		return nil, err
	}
	id, _, _ := p.state()
	p.cfg.Logger.Debug("call", slog.String("object", p.name), slog.Int("args", len(args)))

	ret, err := info.ExecuteMethod(id, p.codec().EncodeArgs(args))
	if err != nil {
		return nil, newError(OpInvoke, p.name, ErrInvocation, err)
	}
	tag := "@" + p.name
	return p.result(ret, info, tag, tag), nil
}

// Value reads the live value of the proxy. An object without a value of its
// own yields the proxy itself.
func (p *Proxy) Value() (any, error) {
	v, err := p.prepare()
	if err != nil {
		return nil, p.failure(OpValueOf, err)
	}
	return p.primitive(v), nil
}

// ToString reads the live value of the proxy as text. Empty values give "".
func (p *Proxy) ToString() (string, error) {
	v, err := p.prepare()
	if err != nil {
		return "", p.failure(OpToString, err)
	}
	x := p.primitive(v)
	if x == nil {
		return "", nil
	}
	return fmt.Sprint(x), nil
}

// String returns the qualified name of the proxy.
func (p *Proxy) String() string { return p.ID() }

// ID returns the dotted path of names from the root object to the proxy.
func (p *Proxy) ID() string {
	parts := []string{p.name}
	info, _ := p.b.current()
	if info != nil && info.name == p.name {
		info = info.Parent()
	}
	for ; info != nil; info = info.Parent() {
		parts = append(parts, info.name)
	}
	slices.Reverse(parts)
	return strings.Join(parts, ".")
}

// TypeInfo lists the function descriptions of the proxy's object. It reports
// false when type metadata is disabled.
func (p *Proxy) TypeInfo() ([]TypeEntry, bool) {
	p.mu.Lock()
	flags := p.flags
	p.mu.Unlock()
	if flags&OptionType == 0 {
		return nil, false
	}
	info, err := p.current()
	if err != nil {
		return nil, false
	}
	entries := []TypeEntry{}
	info.Enumerate(func(ti oleaut.TypeInfo, fd *oleaut.FuncDesc) {
		name, _ := info.ItemName(ti, fd.MemID)
		entries = append(entries, TypeEntry{Name: name, DispID: fd.MemID, InvKind: fd.InvKind, ArgCount: fd.Params})
	})
	return entries, true
}

// Members reports what the proxy's object has resolved and classified so far.
func (p *Proxy) Members() (cache.Snapshot, error) {
	info, err := p.current()
	if err != nil {
		return cache.Snapshot{}, err
	}
	return info.Members(), nil
}

// MarshalVariant passes the proxy back to the foreign side: an object proxy as
// its object reference, a member proxy as the member's live value.
func (p *Proxy) MarshalVariant() oleaut.Variant {
	info, err := p.ensure()
	if err != nil {
		return oleaut.Empty()
	}
	id, index, _ := p.state()
	if id == oleaut.DISPID_VALUE && index < 0 {
		d, err := info.Dispatch()
		if err != nil {
			return oleaut.Empty()
		}
		return oleaut.Object(d)
	}
	v, _ := info.GetProperty(id, index)
	return v
}

func (p *Proxy) failure(op string, err error) error {
	if e, ok := err.(*Error); ok {
		return e
	}
	return newError(op, p.name, ErrInvocation, err)
}

// result decodes v, wrapping an object reference in a child of parent.
func (p *Proxy) result(v oleaut.Variant, parent *ObjectInfo, infoName, proxyName string) any {
	if d, ok := oleaut.DispatchOf(v); ok && d != nil {
		child := newObjectInfo(d, infoName, parent.flags, parent, p.cfg)
		return newProxy(child, proxyName, oleaut.DISPID_UNKNOWN, -1, p.cfg)
	}
	return oleaut.Decode(v)
}

// primitive decodes the proxy's own value; the object it is bound to is the proxy itself.
func (p *Proxy) primitive(v oleaut.Variant) any {
	d, ok := oleaut.DispatchOf(v)
	if !ok || d == nil {
		return oleaut.Decode(v)
	}
	info, err := p.current()
	if err != nil {
		return nil
	}
	if self, err := info.Dispatch(); err == nil && self == d {
		return p
	}
	return p.result(v, info, p.name, p.name)
}

func (p *Proxy) codec() oleaut.Codec {
	return oleaut.Codec{Wrap: func(v any) (oleaut.Dispatch, bool) {
		if !bridge.Wrappable(v) {
			return nil, false
		}
		obj, err := p.cfg.newBridge(v)
		if err != nil {
			return nil, false
		}
		return obj, true
	}}
}

// ValueOf resolves a Proxy to its live value; other values are returned as is.
func ValueOf(v any) (any, error) {
	p, ok := v.(*Proxy)
	if !ok {
		return v, nil
	}
	return p.Value()
}
