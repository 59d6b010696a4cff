package svc

// Service is the user-supplied capability a ServiceController drives
// through the lifecycle. It is intentionally opaque to the container: the
// container never constructs one directly (that's the host's Factory
// capability, realized here as a value.Value[Service[T]]) and never
// inspects T beyond handing it to injections.
type Service[T any] interface {
	// Start is invoked on an executor goroutine when the controller's
	// dependencies are satisfied and its mode admits starting. A normal
	// return without Asynchronous completes the transition; a normal
	// return after Asynchronous leaves it pending until Complete/Failed.
	// A non-nil error return is always treated as a synchronous failure,
	// regardless of Asynchronous.
	Start(sc StartContext) error

	// Stop is invoked when the controller is leaving UP. Same completion
	// policy as Start, minus the Failed path — a stop is never expected
	// to fail the controller's own transition to DOWN.
	Stop(sc StopContext) error

	// Value returns the service's exposed value, used as the source side
	// of any injection declared from this controller.
	Value() T
}
