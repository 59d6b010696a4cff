// Package demo holds the small set of self-contained service kinds
// nodalctl's run command can instantiate from a manifest. A manifest names
// *which of the process's own registered demo factories* to wire together
// and how — reflective construction of arbitrary host types is the
// Factory capability the core container delegates to a real host, which a
// CLI manifest cannot reach into safely.
package demo

import (
	"fmt"
	"time"

	"github.com/nodalcore/container/internal/svc"
)

// Kind names a registered demo factory.
type Kind string

// Supported demo kinds.
const (
	// KindNoop starts and stops instantly, never fails.
	KindNoop Kind = "noop"
	// KindSleeper starts asynchronously, completing after Params.Delay.
	KindSleeper Kind = "sleeper"
	// KindFlaky fails its first Params.FailTimes starts, then succeeds.
	KindFlaky Kind = "flaky"
)

// Params configures a demo service instance. Only the fields relevant to
// the chosen Kind are read.
type Params struct {
	Delay     time.Duration
	FailTimes int
}

// ErrUnknownKind is returned by New for an unregistered Kind.
var ErrUnknownKind = fmt.Errorf("demo: unknown service kind")

// New builds the svc.Service[struct{}] for kind, configured by params.
func New(kind Kind, params Params) (svc.Service[struct{}], error) {
	switch kind {
	case KindNoop:
		return &noopService{}, nil
	case KindSleeper:
		return &sleeperService{delay: params.Delay}, nil
	case KindFlaky:
		return &flakyService{failTimes: params.FailTimes}, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownKind, kind)
	}
}

// noopService starts and stops synchronously, always successfully.
type noopService struct{}

func (noopService) Start(sc svc.StartContext) error { return nil }
func (noopService) Stop(sc svc.StopContext) error   { return nil }
func (noopService) Value() struct{}                 { return struct{}{} }

// sleeperService declares Asynchronous and completes on its own goroutine
// after delay, simulating a service whose start does real I/O.
type sleeperService struct {
	delay time.Duration
}

func (s *sleeperService) Start(sc svc.StartContext) error {
	sc.Asynchronous()
	go func() {
		select {
		case <-time.After(s.delay):
			_ = sc.Complete()
		case <-sc.Done():
			_ = sc.Failed(sc.Err())
		}
	}()
	return nil
}

func (s *sleeperService) Stop(sc svc.StopContext) error { return nil }
func (s *sleeperService) Value() struct{}               { return struct{}{} }

// flakyService fails its first failTimes start attempts, then succeeds —
// useful for exercising START_FAILED handling from a manifest without
// writing Go. Its failures are returned errors, not panics, so they do not
// count against a circuit-breaking executor's breaker.
type flakyService struct {
	failTimes int
	attempts  int
}

func (f *flakyService) Start(sc svc.StartContext) error {
	f.attempts++
	if f.attempts <= f.failTimes {
		return fmt.Errorf("demo: flaky service failing attempt %d of %d", f.attempts, f.failTimes)
	}
	return nil
}

func (f *flakyService) Stop(sc svc.StopContext) error { return nil }
func (f *flakyService) Value() struct{}               { return struct{}{} }
