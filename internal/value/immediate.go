package value

import "context"

// immediateValue always returns the same value it was constructed with.
type immediateValue[T any] struct {
	v T
}

// Immediate returns a Value that always yields v.
func Immediate[T any](v T) Value[T] {
	return immediateValue[T]{v: v}
}

func (i immediateValue[T]) Get(_ context.Context) (T, error) {
	return i.v, nil
}
