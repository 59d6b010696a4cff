// Package executor provides the worker-pool implementations a Container
// hands controllers as their Executor: something that runs a scheduled
// start/stop task "eventually, somewhere".
package executor

import (
	"fmt"
	"sync"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker/v2"

	"github.com/nodalcore/container/internal/svcname"
)

// Parallel runs every submitted task on its own goroutine: unbounded
// concurrency, matching the "parallel" scheduling model spec.md §5
// chooses as default.
type Parallel struct {
	logger *zerolog.Logger
}

// NewParallel constructs a Parallel executor. A nil logger is replaced
// with a no-op one.
func NewParallel(logger *zerolog.Logger) *Parallel {
	if logger == nil {
		l := zerolog.Nop()
		logger = &l
	}
	return &Parallel{logger: logger}
}

// Submit runs fn on a new goroutine.
func (p *Parallel) Submit(name svcname.Name, fn func()) {
	go func() {
		defer func() {
			if r := recover(); r != nil {
				p.logger.Error().
					Str("service", name.String()).
					Interface("panic", r).
					Msg("executor task panicked")
			}
		}()
		fn()
	}()
}

// CircuitBreaking wraps another Executor with a per-service, two-step
// gobreaker.TwoStepCircuitBreaker. It gates how promptly a name's tasks
// are resubmitted after a run of panics: once a name's breaker opens,
// further Submit calls for that name still eventually run (a controller
// stuck in STARTING must still resolve, never starve), but are logged as
// degraded and the breaker's own backoff still governs when it reports
// healthy again.
//
// This tracks task panics, not a controller's own business-level start
// failure (START_FAILED is the controller's state, set independently of
// whether its start task panicked) — it protects against a thundering
// herd of runaway goroutine panics against one wedged service, not against
// ordinary, well-behaved start failures.
type CircuitBreaking struct {
	next   Executor
	logger *zerolog.Logger
	cfg    BreakerConfig

	mu       sync.Mutex
	breakers map[svcname.Name]*gobreaker.TwoStepCircuitBreaker[struct{}]
}

// Executor is the same capability controller.Executor names, restated here
// so this package does not need to import internal/controller.
type Executor interface {
	Submit(name svcname.Name, fn func())
}

// ExecutorFunc adapts a plain func to Executor, mirroring http.HandlerFunc.
type ExecutorFunc func(name svcname.Name, fn func())

// Submit calls f.
func (f ExecutorFunc) Submit(name svcname.Name, fn func()) { f(name, fn) }

// BreakerConfig configures every per-service breaker a CircuitBreaking
// executor creates lazily on first use of a given name.
type BreakerConfig struct {
	// FailureThreshold is the number of consecutive panics that opens a
	// name's breaker. Zero disables tripping: the breaker never opens.
	FailureThreshold uint32
	// HalfOpenProbes is MaxRequests allowed through while half-open.
	HalfOpenProbes uint32
}

// NewCircuitBreaking wraps next with per-service panic circuit breaking.
func NewCircuitBreaking(next Executor, cfg BreakerConfig, logger *zerolog.Logger) *CircuitBreaking {
	if logger == nil {
		l := zerolog.Nop()
		logger = &l
	}
	return &CircuitBreaking{
		next:     next,
		logger:   logger,
		cfg:      cfg,
		breakers: make(map[svcname.Name]*gobreaker.TwoStepCircuitBreaker[struct{}]),
	}
}

func (c *CircuitBreaking) breakerFor(name svcname.Name) *gobreaker.TwoStepCircuitBreaker[struct{}] {
	c.mu.Lock()
	defer c.mu.Unlock()
	if cb, ok := c.breakers[name]; ok {
		return cb
	}

	settings := gobreaker.Settings{
		Name:        name.String(),
		MaxRequests: c.cfg.HalfOpenProbes,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return c.cfg.FailureThreshold > 0 && counts.ConsecutiveFailures >= c.cfg.FailureThreshold
		},
		OnStateChange: func(breakerName string, from, to gobreaker.State) {
			event := c.logger.Info()
			if to == gobreaker.StateOpen {
				event = c.logger.Warn()
			}
			event.
				Str("service", breakerName).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("executor circuit breaker state change")
		},
	}
	cb := gobreaker.NewTwoStepCircuitBreaker[struct{}](settings)
	c.breakers[name] = cb
	return cb
}

// Submit runs fn via next, recording a panic as a breaker failure and a
// normal return as a breaker success. An open breaker logs a degraded
// warning but still forwards to next — tasks are never silently dropped.
func (c *CircuitBreaking) Submit(name svcname.Name, fn func()) {
	cb := c.breakerFor(name)
	done, err := cb.Allow()
	if err != nil {
		c.logger.Warn().
			Str("service", name.String()).
			Msg("circuit open for this service's tasks; running degraded")
		c.next.Submit(name, fn)
		return
	}

	c.next.Submit(name, func() {
		var panicked any
		func() {
			defer func() { panicked = recover() }()
			fn()
		}()
		if panicked != nil {
			done(fmt.Errorf("task panic: %v", panicked))
			panic(panicked)
		}
		done(nil)
	})
}
