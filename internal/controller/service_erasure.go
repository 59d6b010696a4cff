package controller

import (
	"github.com/nodalcore/container/internal/svc"
)

// AnyService is the type-erased counterpart of svc.Service[T], used because
// a controller's dependency graph mixes services of unrelated T.
type AnyService interface {
	Start(sc svc.StartContext) error
	Stop(sc svc.StopContext) error
	Value() any
}

// EraseService wraps a typed svc.Service[T] for storage as AnyService.
func EraseService[T any](s svc.Service[T]) AnyService {
	return erasedService[T]{s}
}

type erasedService[T any] struct{ s svc.Service[T] }

func (e erasedService[T]) Start(sc svc.StartContext) error { return e.s.Start(sc) }
func (e erasedService[T]) Stop(sc svc.StopContext) error   { return e.s.Stop(sc) }
func (e erasedService[T]) Value() any                      { return e.s.Value() }
