// Package lifecycle broadcasts controller transitions as a reactive stream
// and coordinates container-wide quiesce on an OS shutdown signal, using
// samber/ro the way the teacher's internal/ro package does.
package lifecycle

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/samber/ro"

	"github.com/nodalcore/container/internal/controller"
	"github.com/nodalcore/container/internal/svcname"
)

// Transition is one controller's state change, as broadcast to subscribers.
type Transition struct {
	Name svcname.Name
	From controller.State
	To   controller.State
}

// Broadcast fans out controller transitions to any number of independent
// subscribers, each receiving every transition emitted from the moment it
// subscribes, in emission order, with none dropped regardless of how slowly
// a subscriber drains — spec.md §5 requires every listener to observe every
// transition, and that guarantee has to hold for this stream exactly as it
// already does for the synchronous controller.Listener path. A subscriber
// that falls behind queues unboundedly rather than losing events; only the
// synchronous controller.Listener call in publish is on the critical path
// of a start/stop, and that call is O(1) regardless of subscriber speed.
type Broadcast struct {
	mu   sync.Mutex
	subs map[*subscription]struct{}
}

// subscription is one Observable's unbounded, FIFO-ordered inbox. publish
// appends and pings signal; the Observable's drain goroutine wakes on
// signal and flushes everything queued since its last wake, so a publish
// never blocks on a slow or stalled consumer and never has to discard an
// event to avoid doing so.
type subscription struct {
	mu    sync.Mutex
	queue []Transition

	signal chan struct{}
}

func newSubscription() *subscription {
	return &subscription{signal: make(chan struct{}, 1)}
}

func (s *subscription) push(t Transition) {
	s.mu.Lock()
	s.queue = append(s.queue, t)
	s.mu.Unlock()
	select {
	case s.signal <- struct{}{}:
	default:
	}
}

// drain returns everything queued since the last drain, oldest first, and
// empties the queue.
func (s *subscription) drain() []Transition {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := s.queue
	s.queue = nil
	return out
}

// NewBroadcast constructs an empty Broadcast.
func NewBroadcast() *Broadcast {
	return &Broadcast{subs: make(map[*subscription]struct{})}
}

// Listener returns a controller.Listener that publishes every transition it
// observes. Attach it as a batch-wide listener to see every installed
// controller's transitions on one stream.
func (b *Broadcast) Listener() controller.Listener {
	return controller.ListenerFunc(func(c *controller.Controller, from, to controller.State) {
		b.publish(Transition{Name: c.Name(), From: from, To: to})
	})
}

func (b *Broadcast) publish(t Transition) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for sub := range b.subs {
		sub.push(t)
	}
}

// Observable returns a fresh stream of future transitions. Each call
// registers its own unbounded subscription; unsubscribing (via the
// returned Teardown, triggered when the subscriber's context ends or it
// completes) removes it from the fan-out set after flushing whatever is
// still queued.
func (b *Broadcast) Observable() ro.Observable[Transition] {
	return ro.NewObservable(func(observer ro.Observer[Transition]) ro.Teardown {
		sub := newSubscription()
		b.mu.Lock()
		b.subs[sub] = struct{}{}
		b.mu.Unlock()

		done := make(chan struct{})
		go func() {
			for {
				select {
				case <-sub.signal:
					for _, t := range sub.drain() {
						observer.Next(t)
					}
				case <-done:
					for _, t := range sub.drain() {
						observer.Next(t)
					}
					observer.Complete()
					return
				}
			}
		}()

		return func() {
			close(done)
			b.mu.Lock()
			delete(b.subs, sub)
			b.mu.Unlock()
		}
	})
}

// Lifecycle ties a transition Broadcast to container-wide shutdown
// coordination: subscribing to OS shutdown signals and driving a supplied
// stop function, logging the handoff the way the teacher's GracefulShutdown
// helpers do.
type Lifecycle struct {
	broadcast *Broadcast
	logger    *zerolog.Logger
}

// New constructs a Lifecycle. A nil logger is replaced with a no-op one.
func New(logger *zerolog.Logger) *Lifecycle {
	if logger == nil {
		l := zerolog.Nop()
		logger = &l
	}
	return &Lifecycle{broadcast: NewBroadcast(), logger: logger}
}

// Listener returns the controller.Listener to attach batch-wide so every
// installed controller's transitions reach this Lifecycle's stream.
func (lc *Lifecycle) Listener() controller.Listener {
	return lc.broadcast.Listener()
}

// Transitions returns the reactive stream of controller transitions.
func (lc *Lifecycle) Transitions() ro.Observable[Transition] {
	return lc.broadcast.Observable()
}

// ShutdownSignals are the OS signals QuiesceOn waits for.
var ShutdownSignals = []os.Signal{syscall.SIGINT, syscall.SIGTERM}

// gracefulShutdown creates an Observable that emits the first received
// shutdown signal and then completes.
func gracefulShutdown(ctx context.Context) ro.Observable[os.Signal] {
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, ShutdownSignals...)

	return ro.NewObservableWithContext(func(ctx context.Context, observer ro.Observer[os.Signal]) ro.Teardown {
		go func() {
			select {
			case sig := <-ch:
				observer.NextWithContext(ctx, sig)
				observer.CompleteWithContext(ctx)
			case <-ctx.Done():
				observer.ErrorWithContext(ctx, ctx.Err())
			}
		}()
		return func() {
			signal.Stop(ch)
			close(ch)
		}
	})
}

// WaitForShutdown blocks until a shutdown signal arrives or ctx is canceled.
func WaitForShutdown(ctx context.Context) (os.Signal, error) {
	results, _, err := ro.CollectWithContext(ctx, gracefulShutdown(ctx))
	if err != nil {
		return nil, err
	}
	if len(results) == 0 {
		return nil, ctx.Err()
	}
	return results[0], nil
}

// QuiesceOn blocks until a shutdown signal arrives (or ctx is canceled),
// then calls stop with a fresh context and logs the handoff. It returns
// stop's error, or ctx's error if QuiesceOn was canceled before any signal
// arrived.
func (lc *Lifecycle) QuiesceOn(ctx context.Context, stop func(context.Context) error) error {
	sig, err := WaitForShutdown(ctx)
	if err != nil {
		return err
	}

	lc.logger.Info().Str("signal", sig.String()).Msg("shutdown signal received, quiescing container")
	if err := stop(context.Background()); err != nil {
		lc.logger.Error().Err(err).Msg("container quiesce returned an error")
		return err
	}
	lc.logger.Info().Msg("container quiesced")
	return nil
}
