// Package value implements the container's Value/Injector model: a closed
// set of tagged variants providing lazy, possibly-fallible reads of a T and,
// for the mutable ones, a write sink accepting a T.
//
// Every variant threads a context.Context through Get/Inject/Uninject. This
// doubles as the "current execution context" the spec's ThreadLocal variant
// and construction translator bind their slot to — Go has no real
// goroutine-locals, but context.Context derivation is immutable, so binding
// a value via context.WithValue and handing the derived context only to the
// nested call gives the same save/restore-on-every-exit-path guarantee a
// thread-local would need explicit bookkeeping for.
package value

import (
	"context"
	"errors"
	"fmt"

	"github.com/samber/mo"
)

// ErrInvalidValue is returned by Get when the value is not yet available:
// an Injected value with nothing injected, or a ThreadLocal value unbound
// in ctx.
var ErrInvalidValue = errors.New("value: invalid (not yet available)")

// ErrInjectionException wraps a destination Injector's rejection of a value.
var ErrInjectionException = errors.New("value: injection rejected")

// TranslationError wraps the cause of a failed Translated.Get, per the
// spec's TranslationException error kind.
type TranslationError struct {
	Cause error
}

func (e *TranslationError) Error() string {
	return fmt.Sprintf("value: translation failed: %v", e.Cause)
}

func (e *TranslationError) Unwrap() error {
	return e.Cause
}

// Value is a lazy, read-only handle to a T.
type Value[T any] interface {
	// Get returns the held value, or fails with ErrInvalidValue when it is
	// unavailable. A Translated value can also fail with a TranslationError,
	// and a Constructed value with whatever its factory returns.
	Get(ctx context.Context) (T, error)
}

// Injector is the write-side dual of Value: it populates and clears the T a
// paired Value reads back.
type Injector[T any] interface {
	// Inject populates v. It must be observable atomically by any
	// subsequent Get on the paired Value.
	Inject(ctx context.Context, v T) error
	// Uninject clears a previously injected value. Subsequent Get calls
	// must fail with ErrInvalidValue until the next Inject.
	Uninject(ctx context.Context)
}

// result adapts samber/mo's Result into this package's (T, error) Get
// contract, keeping the fallible-read plumbing (Ok/Error branches,
// propagation through Map) expressed with mo rather than a hand-rolled
// sum type.
func result[T any](v T, err error) mo.Result[T] {
	if err != nil {
		return mo.Err[T](err)
	}
	return mo.Ok(v)
}
