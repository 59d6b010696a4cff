package controller_test

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nodalcore/container/internal/controller"
	"github.com/nodalcore/container/internal/svc"
	"github.com/nodalcore/container/internal/svcname"
	"github.com/nodalcore/container/internal/value"
)

// syncExecutor runs submitted work inline, making controller transitions
// deterministic for tests.
type syncExecutor struct{}

func (syncExecutor) Submit(_ svcname.Name, fn func()) { fn() }

// fakeService is a minimal synchronous svc.Service[T] for exercising the
// controller state machine without any real dependency.
type fakeService[T any] struct {
	val       T
	startErr  error
	stopErr   error
	startHook func()
	stopHook  func()
}

func (f *fakeService[T]) Start(sc svc.StartContext) error {
	if f.startHook != nil {
		f.startHook()
	}
	return f.startErr
}

func (f *fakeService[T]) Stop(sc svc.StopContext) error {
	if f.stopHook != nil {
		f.stopHook()
	}
	return f.stopErr
}

func (f *fakeService[T]) Value() T { return f.val }

func newController(name string, mode controller.Mode, svcVal *fakeService[int], deps []*controller.Controller) *controller.Controller {
	factory := value.Immediate[controller.AnyService](controller.EraseService[int](svcVal))
	return controller.New(controller.Config{
		Name:     svcname.Parse(name),
		Factory:  factory,
		Mode:     mode,
		Deps:     deps,
		Executor: syncExecutor{},
	})
}

// asyncService declares Asynchronous() on Start and hands its StartContext
// out on a channel, so a test can resolve it from outside the controller
// entirely, exercising the real completion goroutine runStart spawns in
// controller.go rather than the synchronous fakeService path.
type asyncService struct {
	started chan svc.StartContext
}

func (s *asyncService) Start(sc svc.StartContext) error {
	sc.Asynchronous()
	s.started <- sc
	return nil
}

func (s *asyncService) Stop(svc.StopContext) error { return nil }
func (s *asyncService) Value() int                 { return 0 }

// waitForState returns a Listener and a channel that closes the first
// time the observed controller transitions into to.
func waitForState(to controller.State) (controller.Listener, <-chan struct{}) {
	reached := make(chan struct{})
	var once sync.Once
	l := controller.ListenerFunc(func(_ *controller.Controller, _, newState controller.State) {
		if newState == to {
			once.Do(func() { close(reached) })
		}
	})
	return l, reached
}

func newAsyncController(name string, mode controller.Mode, deps []*controller.Controller, listeners ...controller.Listener) (*controller.Controller, *asyncService) {
	svcVal := &asyncService{started: make(chan svc.StartContext, 1)}
	factory := value.Immediate[controller.AnyService](controller.EraseService[int](svcVal))
	c := controller.New(controller.Config{
		Name:      svcname.Parse(name),
		Factory:   factory,
		Mode:      mode,
		Deps:      deps,
		Executor:  syncExecutor{},
		Listeners: listeners,
	})
	return c, svcVal
}

func TestRootControllerStartsImmediatelyWhenActive(t *testing.T) {
	t.Parallel()
	svcA := &fakeService[int]{val: 1}
	c := newController("a", controller.Active, svcA, nil)

	assert.Equal(t, controller.Up, c.State())
}

func TestOnDemandWaitsForDependent(t *testing.T) {
	t.Parallel()
	svcA := &fakeService[int]{val: 1}
	c := newController("a", controller.OnDemand, svcA, nil)
	require.Equal(t, controller.Down, c.State())

	dep := newController("b", controller.Active, &fakeService[int]{val: 2}, []*controller.Controller{c})
	require.Equal(t, controller.Up, dep.State())
	assert.Equal(t, controller.Up, c.State())
}

func TestDependencyOrdering(t *testing.T) {
	t.Parallel()
	base := newController("base", controller.Active, &fakeService[int]{val: 1}, nil)
	require.Equal(t, controller.Up, base.State())

	mid := newController("mid", controller.Active, &fakeService[int]{val: 2}, []*controller.Controller{base})
	assert.Equal(t, controller.Up, mid.State())
	assert.Zero(t, mid.PendingDependencies())
}

func TestStartFailurePropagatesAsStartFailed(t *testing.T) {
	t.Parallel()
	boom := assert.AnError
	svcA := &fakeService[int]{val: 1, startErr: boom}
	c := newController("a", controller.Active, svcA, nil)

	assert.Equal(t, controller.StartFailed, c.State())
	assert.ErrorIs(t, c.StartFailure(), boom)
}

// TestAsynchronousCompleteAdmitsWaitingDependent drives Asynchronous()
// followed by an out-of-band Complete() through a real Controller with a
// dependent that is actually waiting on it: the dependent observes DOWN
// with PendingDependencies()==1 while the dependency is still resolving,
// then transitions STARTING -> UP once Complete() resolves it.
func TestAsynchronousCompleteAdmitsWaitingDependent(t *testing.T) {
	t.Parallel()
	base, asyncSvc := newAsyncController("base", controller.Active, nil)

	dependent := newController("dependent", controller.Active, &fakeService[int]{val: 1}, []*controller.Controller{base})
	require.Equal(t, controller.Down, dependent.State())
	require.Equal(t, 1, dependent.PendingDependencies())

	depListener, depUp := waitForState(controller.Up)
	dependent.AddListener(depListener)

	sc := <-asyncSvc.started
	require.NoError(t, sc.Complete())

	select {
	case <-depUp:
	case <-time.After(time.Second):
		t.Fatal("dependent never reached UP after its dependency completed asynchronously")
	}

	assert.Equal(t, controller.Up, base.State())
	assert.Equal(t, controller.Up, dependent.State())
	assert.Zero(t, dependent.PendingDependencies())
}

// TestAsynchronousFailedLeavesDependentDownForever drives Asynchronous()
// followed by an out-of-band Failed(e): the controller settles in
// START_FAILED with the reason retained, its dependent stays DOWN with
// PendingDependencies()==1 permanently (dependents only advance on an UP
// transition, never on START_FAILED), and a second Complete() call on the
// same context fails with ErrIllegalState.
func TestAsynchronousFailedLeavesDependentDownForever(t *testing.T) {
	t.Parallel()
	base, asyncSvc := newAsyncController("base", controller.Active, nil)

	dependent := newController("dependent", controller.Active, &fakeService[int]{val: 1}, []*controller.Controller{base})
	require.Equal(t, controller.Down, dependent.State())
	require.Equal(t, 1, dependent.PendingDependencies())

	baseListener, baseFailed := waitForState(controller.StartFailed)
	base.AddListener(baseListener)

	sc := <-asyncSvc.started
	boom := assert.AnError
	require.NoError(t, sc.Failed(boom))

	select {
	case <-baseFailed:
	case <-time.After(time.Second):
		t.Fatal("base never reached START_FAILED after its start failed asynchronously")
	}

	assert.Equal(t, controller.StartFailed, base.State())
	assert.ErrorIs(t, base.StartFailure(), boom)

	assert.Equal(t, controller.Down, dependent.State())
	assert.Equal(t, 1, dependent.PendingDependencies())

	err := sc.Complete()
	assert.ErrorIs(t, err, svc.ErrIllegalState)
}

func TestSetModeNeverStopsRunningController(t *testing.T) {
	t.Parallel()
	var stopped bool
	var mu sync.Mutex
	svcA := &fakeService[int]{val: 1, stopHook: func() {
		mu.Lock()
		stopped = true
		mu.Unlock()
	}}
	c := newController("a", controller.Active, svcA, nil)
	require.Equal(t, controller.Up, c.State())

	c.SetMode(controller.Never)

	mu.Lock()
	defer mu.Unlock()
	assert.True(t, stopped)
	assert.Equal(t, controller.Down, c.State())
}

func TestCascadeStopsDependentsBeforeDependency(t *testing.T) {
	t.Parallel()
	var order []string
	var mu sync.Mutex
	record := func(name string) func() {
		return func() {
			mu.Lock()
			order = append(order, name)
			mu.Unlock()
		}
	}

	base := newController("base", controller.Active, &fakeService[int]{val: 1, stopHook: record("base")}, nil)
	dep := newController("dep", controller.Active, &fakeService[int]{val: 2, stopHook: record("dep")}, []*controller.Controller{base})
	require.Equal(t, controller.Up, dep.State())

	base.SetMode(controller.Never)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, order, 2)
	assert.Equal(t, "dep", order[0], "dependent must stop before its dependency")
	assert.Equal(t, "base", order[1])
	assert.Equal(t, controller.Down, base.State())
	assert.Equal(t, controller.Down, dep.State())
}

func TestInjectionRunsBeforeUp(t *testing.T) {
	t.Parallel()
	src := value.Immediate(42)
	dstVal, dstInj := value.Injected[int]()

	factory := value.Immediate[controller.AnyService](controller.EraseService[int](&fakeService[int]{val: 1}))
	c := controller.New(controller.Config{
		Name:     svcname.Parse("a"),
		Factory:  factory,
		Mode:     controller.Active,
		Executor: syncExecutor{},
		Injections: []controller.Injection{
			{Source: value.Erase(src), Destination: value.EraseInjector(dstInj)},
		},
	})

	require.Equal(t, controller.Up, c.State())
	got, err := dstVal.Get(t.Context())
	require.NoError(t, err)
	assert.Equal(t, 42, got)
}

func TestRemoveRejectsControllerWithDependents(t *testing.T) {
	t.Parallel()
	base := newController("base", controller.Never, &fakeService[int]{val: 1}, nil)
	dep := newController("dep", controller.Never, &fakeService[int]{val: 2}, []*controller.Controller{base})
	require.Equal(t, controller.Down, base.State())

	err := base.Remove()
	assert.ErrorIs(t, err, controller.ErrHasDependents)
	_ = dep
}

func TestRemoveRejectsRunningController(t *testing.T) {
	t.Parallel()
	c := newController("a", controller.Active, &fakeService[int]{val: 1}, nil)
	err := c.Remove()
	assert.ErrorIs(t, err, controller.ErrNotRemovable)
}

func TestRemoveSucceedsWhenDownWithNoDependents(t *testing.T) {
	t.Parallel()
	c := newController("a", controller.Never, &fakeService[int]{val: 1}, nil)
	require.Equal(t, controller.Down, c.State())

	var removed svcname.Name
	c2 := controller.New(controller.Config{
		Name:     svcname.Parse("b"),
		Factory:  value.Immediate[controller.AnyService](controller.EraseService[int](&fakeService[int]{val: 1})),
		Mode:     controller.Never,
		Executor: syncExecutor{},
		OnRemove: func(n svcname.Name, _ *controller.Controller) { removed = n },
	})

	require.NoError(t, c2.Remove())
	assert.Equal(t, controller.Removed, c2.State())
	assert.Equal(t, "b", removed.String())
	_ = c
}

func TestListenerObservesTransitions(t *testing.T) {
	t.Parallel()
	var transitions []controller.State
	var mu sync.Mutex

	factory := value.Immediate[controller.AnyService](controller.EraseService[int](&fakeService[int]{val: 1}))
	c := controller.New(controller.Config{
		Name:     svcname.Parse("a"),
		Factory:  factory,
		Mode:     controller.Active,
		Executor: syncExecutor{},
		Listeners: []controller.Listener{
			controller.ListenerFunc(func(_ *controller.Controller, _, to controller.State) {
				mu.Lock()
				transitions = append(transitions, to)
				mu.Unlock()
			}),
		},
	})
	_ = c

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []controller.State{controller.Starting, controller.Up}, transitions)
}

// nonUpDependencies counts how many of c's dependencies are not currently Up,
// the invariant PendingDependencies() must always match once start has
// resolved one way or another.
func nonUpDependencies(c *controller.Controller) int {
	n := 0
	for _, d := range c.Dependencies() {
		if !d.State().IsUp() {
			n++
		}
	}
	return n
}

// TestPendingDependenciesMatchesLiveNonUpCount builds a random-length linear
// dependency chain (c0 <- c1 <- ... <- cK, all Active) with a random index
// picked to fail its start, and asserts PendingDependencies() equals the
// live count of non-Up dependencies for every controller in the chain once
// the cascade has settled.
func TestPendingDependenciesMatchesLiveNonUpCount(t *testing.T) {
	t.Parallel()
	parameters := gopter.DefaultTestParameters()
	properties := gopter.NewProperties(parameters)

	properties.Property("pendingDeps equals live non-Up dependency count after a chain settles", prop.ForAll(
		func(length int, failAt int) bool {
			if length < 1 {
				return true
			}
			failAt = failAt % length

			chain := make([]*controller.Controller, 0, length)
			for i := 0; i < length; i++ {
				var deps []*controller.Controller
				if i > 0 {
					deps = []*controller.Controller{chain[i-1]}
				}
				var startErr error
				if i == failAt {
					startErr = assert.AnError
				}
				svcI := &fakeService[int]{val: i, startErr: startErr}
				c := newController(fmt.Sprintf("c%d", i), controller.Active, svcI, deps)
				chain = append(chain, c)
			}

			for _, c := range chain {
				if c.PendingDependencies() != nonUpDependencies(c) {
					return false
				}
			}
			return true
		},
		gen.IntRange(1, 8),
		gen.IntRange(0, 1000),
	))

	properties.TestingRun(t)
}
