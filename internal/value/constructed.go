package value

import "context"

// Constructed models the spec's "construction translator": it resolves an
// ordered, frozen snapshot of parameter Values, binds that snapshot onto the
// well-known Constructing() thread-local slot for the duration of the
// factory call, and invokes factory with the resolved parameters.
//
// Binding the snapshot lets a factory call Constructing(ctx) to recover the
// exact parameter list it was invoked with — useful when the factory itself
// delegates to something reflective that only accepts a context.Context,
// mirroring the source's "injectedValue() readable during construction"
// register. Because the binding happens via context.WithValue on a context
// that's only ever passed to factory (never returned to the caller), it is
// released on every exit path — normal return, error return, or panic
// propagating past Get — without any explicit cleanup.
type constructedValue[T any] struct {
	params []AnyValue
	factory func(ctx context.Context, params []any) (T, error)
}

var constructingKey = struct{}{}

// Constructing recovers the frozen parameter snapshot bound by a Constructed
// value's Get while its factory runs. Outside of such a call it fails with
// ErrInvalidValue.
func Constructing(ctx context.Context) ([]any, error) {
	v, ok := ctx.Value(constructingKey).([]any)
	if !ok {
		return nil, ErrInvalidValue
	}
	return v, nil
}

// Constructed returns a Value whose Get resolves params (in order, failing
// fast on the first unavailable one) and hands the resolved snapshot to
// factory.
func Constructed[T any](factory func(ctx context.Context, params []any) (T, error), params ...AnyValue) Value[T] {
	return &constructedValue[T]{params: params, factory: factory}
}

func (cv *constructedValue[T]) Get(ctx context.Context) (T, error) {
	var zero T

	resolved := make([]any, len(cv.params))
	for i, p := range cv.params {
		v, err := p.GetAny(ctx)
		if err != nil {
			return zero, err
		}
		resolved[i] = v
	}

	nested := context.WithValue(ctx, constructingKey, resolved)
	return cv.factory(nested, resolved)
}
