package ethdemo

import (
	"io"

	"github.com/ethereum/go-ethereum/log"

	"github.com/branched-services/go-ethdemo/metrics"
)

// Option configures a Runner.
type Option func(*Runner)

// WithCompiler overrides the compiler selected from Config.Compiler.
func WithCompiler(c Compiler) Option {
	return func(r *Runner) {
		r.compiler = c
	}
}

// WithOutput sets where "Result: <value>" lines are written.
// Default is os.Stdout.
func WithOutput(w io.Writer) Option {
	return func(r *Runner) {
		r.out = w
	}
}

// WithLogger sets the logger for progress messages.
// Default is log.Root().
func WithLogger(l log.Logger) Option {
	return func(r *Runner) {
		r.log = l
	}
}

// WithMetrics records stage timings, run results and mined blocks.
func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Runner) {
		r.metrics = m
	}
}

// WithStageHook registers a function called on every stage transition.
func WithStageHook(fn func(from, to Stage)) Option {
	return func(r *Runner) {
		r.hooks = append(r.hooks, fn)
	}
}
