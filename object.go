package activex

import (
	"log/slog"

	"github.com/podhmo/go-activex/bridge"
	"github.com/podhmo/go-activex/oleaut"
)

// RootName is the name of objects created from a Dispatch or a native value.
const RootName = "#"

// New creates the root proxy of an object tree. source is one of:
//   - a class identifier, activated through the registry; the root is named after it,
//   - an oleaut.Dispatch, used as is,
//   - a map with string keys, a struct or struct pointer, a slice or a func,
//     exposed through the bridge package.
//
// Objects from the last two are named "#".
func New(source any, options ...Option) (*Proxy, error) {
	cfg := newConfig(options)

	var (
		d    oleaut.Dispatch
		name string
	)
	switch src := source.(type) {
	case string:
		if src == "" {
			return nil, newError(OpCreateInstance, "", ErrInvalidArguments, oleaut.E_INVALIDARG)
		}
		obj, err := cfg.Registry.CreateInstance(src, cfg.Flags&OptionActivate != 0)
		if err != nil {
			return nil, newError(OpCreateInstance, src, ErrActivation, err)
		}
		d, name = obj, src
	case oleaut.Dispatch:
		d, name = src, RootName
	default:
		if !bridge.Wrappable(source) {
			return nil, newError(OpCreateInstance, "", ErrInvalidArguments, oleaut.E_INVALIDARG)
		}
		obj, err := cfg.newBridge(source)
		if err != nil {
			return nil, newError(OpCreateInstance, "", ErrInvalidArguments, err)
		}
		d, name = obj, RootName
	}

	info := newObjectInfo(d, name, cfg.Flags, nil, cfg)
	cfg.Logger.Debug("object created", slog.String("name", name), slog.String("flags", info.flags.String()))
	return newProxy(info, name, oleaut.DISPID_UNKNOWN, -1, cfg), nil
}

// newBridge exposes a native value. Foreign objects handed to its methods
// arrive as root proxies sharing this configuration.
func (c *Config) newBridge(v any) (*bridge.Object, error) {
	return bridge.New(v, bridge.WithForeign(func(d oleaut.Dispatch) any {
		info := newObjectInfo(d, RootName, c.Flags, nil, c)
		return newProxy(info, RootName, oleaut.DISPID_UNKNOWN, -1, c)
	}))
}
