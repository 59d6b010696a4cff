package value

import (
	"context"
	"fmt"
)

// AnyValue is the type-erased counterpart of Value[T], used wherever the
// controller must hold a heterogeneous list of values whose element type
// varies per entry (e.g. a ServiceController's injection pairs).
type AnyValue interface {
	GetAny(ctx context.Context) (any, error)
}

// AnyInjector is the type-erased counterpart of Injector[T].
type AnyInjector interface {
	InjectAny(ctx context.Context, v any) error
	UninjectAny(ctx context.Context)
}

// Erase wraps a typed Value[T] so it can live in an []AnyValue.
func Erase[T any](v Value[T]) AnyValue {
	return erasedValue[T]{v}
}

type erasedValue[T any] struct{ v Value[T] }

func (e erasedValue[T]) GetAny(ctx context.Context) (any, error) {
	return e.v.Get(ctx)
}

// EraseInjector wraps a typed Injector[T] so it can live behind AnyInjector.
// InjectAny type-asserts the incoming any against T, failing with
// ErrInjectionException (wrapping a description of the mismatch) if the
// destination was declared for a different type than the source produced.
func EraseInjector[T any](inj Injector[T]) AnyInjector {
	return erasedInjector[T]{inj}
}

type erasedInjector[T any] struct{ inj Injector[T] }

func (e erasedInjector[T]) InjectAny(ctx context.Context, v any) error {
	tv, ok := v.(T)
	if !ok {
		return fmt.Errorf("%w: expected %T, got %T", ErrInjectionException, tv, v)
	}
	return e.inj.Inject(ctx, tv)
}

func (e erasedInjector[T]) UninjectAny(ctx context.Context) {
	e.inj.Uninject(ctx)
}
