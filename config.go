package activex

import (
	"log/slog"
	"os"
	"strings"

	"github.com/podhmo/go-activex/internal/jobqueue"
)

// Flags is the option set carried by an object and inherited by its children.
type Flags uint8

const (
	// OptionAsync routes invocations through the job processor, when one is available.
	OptionAsync Flags = 0x01
	// OptionType collects type metadata when an object is wrapped.
	OptionType Flags = 0x02
	// OptionActivate prefers an already running instance over creating a new one.
	OptionActivate Flags = 0x04

	optionPrepared Flags = 0x10
	optionOwned    Flags = 0x20

	// only these bits are inherited by child objects
	optionMask Flags = 0x0F
)

func (f Flags) String() string {
	var parts []string
	for _, x := range []struct {
		flag Flags
		name string
	}{
		{OptionAsync, "async"},
		{OptionType, "type"},
		{OptionActivate, "activate"},
		{optionPrepared, "prepared"},
		{optionOwned, "owned"},
	} {
		if f&x.flag != 0 {
			parts = append(parts, x.name)
		}
	}
	if len(parts) == 0 {
		return "none"
	}
	return strings.Join(parts, "|")
}

// Processor serializes invocations onto a single worker goroutine.
type Processor = jobqueue.Processor

// NewProcessor creates a stopped Processor; call Start to launch its worker.
func NewProcessor(logger *slog.Logger) *Processor {
	if logger == nil {
		return jobqueue.New()
	}
	return jobqueue.New(jobqueue.WithLogger(logger))
}

// Config holds the settings shared by a root object and every proxy reached from it.
type Config struct {
	// Flags defaults to OptionAsync|OptionType.
	Flags Flags

	// Logger is the shared logger for all components.
	Logger *slog.Logger

	// Registry resolves class identifiers. Defaults to DefaultRegistry.
	Registry *Registry

	// Processor receives invocations when OptionAsync is set. Defaults to the
	// processor started by Initialize; when there is none, calls run inline.
	Processor *Processor
}

// Option configures New.
type Option func(*Config)

// WithAsync enables or disables routing calls through the job processor.
func WithAsync(enabled bool) Option {
	return func(c *Config) {
		c.Flags = setFlag(c.Flags, OptionAsync, enabled)
	}
}

// WithTypeInfo enables or disables collecting type metadata.
func WithTypeInfo(enabled bool) Option {
	return func(c *Config) {
		c.Flags = setFlag(c.Flags, OptionType, enabled)
	}
}

// WithActivate makes class activation attach to a running instance when there is one.
func WithActivate(enabled bool) Option {
	return func(c *Config) {
		c.Flags = setFlag(c.Flags, OptionActivate, enabled)
	}
}

// WithOptions applies a loosely typed option bag with the keys "async", "type"
// and "activate". A value is true when it is a true bool or a non-zero number;
// missing keys and values of other types keep the defaults.
func WithOptions(m map[string]any) Option {
	return func(c *Config) {
		if m == nil {
			return
		}
		if !truthy(m["async"], true) {
			c.Flags &^= OptionAsync
		}
		if !truthy(m["type"], true) {
			c.Flags &^= OptionType
		}
		if truthy(m["activate"], false) {
			c.Flags |= OptionActivate
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Config) {
		c.Logger = logger
	}
}

// WithRegistry sets the registry used for class activation.
func WithRegistry(r *Registry) Option {
	return func(c *Config) {
		c.Registry = r
	}
}

// WithProcessor sets the job processor used when OptionAsync is on.
func WithProcessor(p *Processor) Option {
	return func(c *Config) {
		c.Processor = p
	}
}

func newConfig(options []Option) *Config {
	c := &Config{Flags: OptionAsync | OptionType}
	for _, opt := range options {
		opt(c)
	}
	if c.Logger == nil {
		c.Logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
	}
	if c.Registry == nil {
		c.Registry = DefaultRegistry
	}
	if c.Processor == nil {
		c.Processor = defaultProcessor()
	}
	return c
}

func setFlag(flags, flag Flags, enabled bool) Flags {
	if enabled {
		return flags | flag
	}
	return flags &^ flag
}

func truthy(v any, def bool) bool {
	switch x := v.(type) {
	case bool:
		return x
	case int:
		return x != 0
	case int32:
		return x != 0
	case int64:
		return x != 0
	case uint64:
		return x != 0
	case float64:
		return x != 0
	}
	return def
}
