package activex

import (
	"log/slog"
	"sync"
)

var process struct {
	mu        sync.Mutex
	processor *Processor
	logger    *slog.Logger
}

// Initialize starts the process-wide job processor used by objects created with
// OptionAsync. A second call without Uninitialize in between fails with ErrInitialized.
func Initialize(options ...Option) error {
	cfg := &Config{}
	for _, opt := range options {
		opt(cfg)
	}

	process.mu.Lock()
	defer process.mu.Unlock()
	if process.processor != nil {
		return ErrInitialized
	}
	p := NewProcessor(cfg.Logger)
	p.Start()
	process.processor = p
	process.logger = cfg.Logger
	if process.logger != nil {
		process.logger.Debug("activex initialized")
	}
	return nil
}

// Uninitialize stops the process-wide job processor. Objects created earlier
// keep working with their calls running inline. Calling it again is a no-op.
func Uninitialize() {
	process.mu.Lock()
	p := process.processor
	logger := process.logger
	process.processor = nil
	process.logger = nil
	process.mu.Unlock()

	if p == nil {
		return
	}
	p.Stop()
	if logger != nil {
		logger.Debug("activex uninitialized")
	}
}

func defaultProcessor() *Processor {
	process.mu.Lock()
	defer process.mu.Unlock()
	return process.processor
}
