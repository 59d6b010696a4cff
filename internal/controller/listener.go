package controller

// Listener observes lifecycle transitions of a controller. All methods are
// invoked synchronously on whatever goroutine committed the transition
// (the executor goroutine for start/stop completions, the caller's
// goroutine for a direct SetMode/Remove); a panicking listener is
// recovered and logged, never propagated, and never affects the
// controller's own state.
type Listener interface {
	Transition(c *Controller, from, to State)
}

// ListenerFunc adapts a plain function to Listener.
type ListenerFunc func(c *Controller, from, to State)

func (f ListenerFunc) Transition(c *Controller, from, to State) { f(c, from, to) }

// BaseListener is a no-op Listener. For the common "only care about reaching
// UP / leaving UP / failing to start" cases, OnUp, OnLeaveUp and
// OnStartFailed below build a Listener that fires on just that transition.
type BaseListener struct{}

func (BaseListener) Transition(*Controller, State, State) {}

// OnUp returns a Listener that only fires when a controller reaches Up.
func OnUp(f func(c *Controller)) Listener {
	return ListenerFunc(func(c *Controller, from, to State) {
		if to == Up {
			f(c)
		}
	})
}

// OnLeaveUp returns a Listener that only fires when a controller leaves Up.
func OnLeaveUp(f func(c *Controller)) Listener {
	return ListenerFunc(func(c *Controller, from, to State) {
		if from == Up && to != Up {
			f(c)
		}
	})
}

// OnStartFailed returns a Listener that only fires on a transition into
// START_FAILED.
func OnStartFailed(f func(c *Controller, reason error)) Listener {
	return ListenerFunc(func(c *Controller, from, to State) {
		if to == StartFailed {
			f(c, c.StartFailure())
		}
	})
}
