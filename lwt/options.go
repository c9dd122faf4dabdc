package lwt

import "go.uber.org/zap"

// options configure a Worker at construction time.
type options struct {
	stackSize int
	logger    *zap.SugaredLogger
}

// Option customizes Worker construction.
type Option func(*options)

// WithStackSize sets the diagnostic DEFAULT_STACK_SIZE value recorded on a
// worker. Fibers are backed by goroutines (see DESIGN.md), so this does
// not allocate a real stack; no accessor reports the value back. It
// exists for API fidelity with the spec's one build-time tunable.
func WithStackSize(bytes int) Option {
	return func(o *options) { o.stackSize = bytes }
}

// WithLogger attaches a structured logger for scheduler diagnostics.
func WithLogger(l *zap.SugaredLogger) Option {
	return func(o *options) { o.logger = l }
}

func defaultOptions() options {
	return options{
		stackSize: 16 * 1024,
		logger:    zap.NewNop().Sugar(),
	}
}
