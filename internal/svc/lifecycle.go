// Package svc defines the Service capability and the lifecycle contexts the
// container passes to Start/Stop so a service can declare asynchronous
// completion.
package svc

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// LifecycleContext is the capability a controller hands to a service's
// Start/Stop. It embeds context.Context so it can be passed anywhere a
// plain context is expected (cancellation/values/deadline come from the
// host-supplied outer context); Completion/Outcome are this package's own
// signal, unrelated to the embedded context's Done/Err, for whether the
// declared action has resolved.
type LifecycleContext interface {
	context.Context

	// ID uniquely identifies this lifecycle action, for log correlation.
	ID() uuid.UUID

	// Asynchronous declares that the action will finish later, via
	// Complete/Failed on an arbitrary goroutine. It must be called before
	// the synchronous Start/Stop return for that return to be treated as
	// pending rather than final.
	Asynchronous()

	// IsAsynchronous reports whether Asynchronous was called.
	IsAsynchronous() bool

	// Completion closes once the action has resolved (synchronously on
	// return, or via Complete/Failed for an asynchronous one).
	Completion() <-chan struct{}

	// Outcome is valid once Completion is closed: nil on success, or a
	// *StartException after Failed on a start context. A stop context's
	// outcome is always nil.
	Outcome() error
}

// StartContext is the LifecycleContext passed to Service.Start.
type StartContext interface {
	LifecycleContext

	// Complete reports normal completion. Fails with ErrIllegalState if
	// the action already resolved.
	Complete() error

	// Failed reports a start failure. Valid only after Asynchronous was
	// called, and only once; otherwise fails with ErrIllegalState.
	Failed(reason error) error
}

// StopContext is the LifecycleContext passed to Service.Stop.
type StopContext interface {
	LifecycleContext

	// Complete reports normal completion. Fails with ErrIllegalState if
	// the action already resolved.
	Complete() error
}

type lifecycleCtx struct {
	context.Context
	id uuid.UUID

	mu           sync.Mutex
	asynchronous bool
	resolved     bool
	outcome      error
	done         chan struct{}
}

func newLifecycleCtx(ctx context.Context) *lifecycleCtx {
	return &lifecycleCtx{
		Context: ctx,
		id:      uuid.New(),
		done:    make(chan struct{}),
	}
}

func (c *lifecycleCtx) ID() uuid.UUID { return c.id }

func (c *lifecycleCtx) Asynchronous() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.asynchronous = true
}

func (c *lifecycleCtx) IsAsynchronous() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.asynchronous
}

func (c *lifecycleCtx) Completion() <-chan struct{} { return c.done }

func (c *lifecycleCtx) Outcome() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.outcome
}

// resolve transitions the context to resolved exactly once. Called through
// Complete/Failed: explicitly by the service, or by the controller calling
// Complete itself after a synchronous, non-asynchronous return (implicit
// completion).
func (c *lifecycleCtx) resolve(outcome error) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.resolved {
		return fmt.Errorf("%w: lifecycle context already completed", ErrIllegalState)
	}
	c.resolved = true
	c.outcome = outcome
	close(c.done)
	return nil
}

// startContext and stopContext are identical aside from Failed's extra
// precondition, so they share lifecycleCtx rather than duplicating state.
type startContext struct{ *lifecycleCtx }

// NewStartContext wraps ctx as a fresh StartContext for one start action.
func NewStartContext(ctx context.Context) StartContext {
	return startContext{newLifecycleCtx(ctx)}
}

func (s startContext) Complete() error { return s.resolve(nil) }

func (s startContext) Failed(reason error) error {
	if !s.IsAsynchronous() {
		return fmt.Errorf("%w: Failed called before Asynchronous", ErrIllegalState)
	}
	if reason == nil {
		reason = fmt.Errorf("start failed for an unspecified reason")
	}
	return s.resolve(&StartException{Cause: reason})
}

type stopContext struct{ *lifecycleCtx }

// NewStopContext wraps ctx as a fresh StopContext for one stop action.
func NewStopContext(ctx context.Context) StopContext {
	return stopContext{newLifecycleCtx(ctx)}
}

func (s stopContext) Complete() error { return s.resolve(nil) }
