package container_test

import (
	"context"
	"testing"
	"time"

	"github.com/samber/ro"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nodalcore/container/internal/batch"
	"github.com/nodalcore/container/internal/container"
	"github.com/nodalcore/container/internal/controller"
	"github.com/nodalcore/container/internal/lifecycle"
	"github.com/nodalcore/container/internal/svc"
	"github.com/nodalcore/container/internal/svcname"
	"github.com/nodalcore/container/internal/value"
)

type syncExecutor struct{}

func (syncExecutor) Submit(_ svcname.Name, fn func()) { fn() }

func newContainer() *container.Container {
	return container.New(container.Config{Executor: syncExecutor{}})
}

type noopService struct{}

func (noopService) Start(svc.StartContext) error { return nil }
func (noopService) Stop(svc.StopContext) error   { return nil }
func (noopService) Value() int                   { return 0 }

func addNoop(t *testing.T, b *batch.Builder, name string, deps ...string) *batch.ServiceBuilder {
	t.Helper()
	sb, err := batch.AddService(b, svcname.Parse(name), value.Immediate[svc.Service[int]](noopService{}))
	require.NoError(t, err)
	for _, d := range deps {
		sb.AddDependency(svcname.Parse(d))
	}
	return sb
}

func TestBatchBuilderInstallsAndStartsServices(t *testing.T) {
	t.Parallel()
	c := newContainer()

	b := c.BatchBuilder()
	addNoop(t, b, "base")
	addNoop(t, b, "top", "base")
	require.NoError(t, b.Install())

	for _, name := range []string{"base", "top"} {
		ctrl, err := c.Registry().GetRequired(svcname.Parse(name))
		require.NoError(t, err)
		assert.Equal(t, controller.Up, ctrl.State())
	}
}

func TestBatchBuilderIsSingleUsePerCall(t *testing.T) {
	t.Parallel()
	c := newContainer()

	first := c.BatchBuilder()
	addNoop(t, first, "svc-a")
	require.NoError(t, first.Install())

	second := c.BatchBuilder()
	addNoop(t, second, "svc-b")
	require.NoError(t, second.Install())

	assert.Equal(t, 2, c.Registry().Len())
}

func TestTransitionsBroadcastsInstalledServiceStarts(t *testing.T) {
	t.Parallel()
	c := newContainer()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	received := make(chan lifecycle.Transition, 8)
	sub := c.Transitions().SubscribeWithContext(ctx, ro.NewObserverWithContext(
		func(_ context.Context, tr lifecycle.Transition) { received <- tr },
		func(context.Context, error) {}, func(context.Context) {}))
	defer sub.Unsubscribe()
	time.Sleep(10 * time.Millisecond)

	b := c.BatchBuilder()
	addNoop(t, b, "watched")
	require.NoError(t, b.Install())

	sawUp := false
	for !sawUp {
		select {
		case tr := <-received:
			if tr.Name == svcname.Parse("watched") && tr.To == controller.Up {
				sawUp = true
			}
		case <-time.After(time.Second):
			t.Fatal("never observed the installed service reach up")
		}
	}
}

func TestShutdownStopsEveryInstalledService(t *testing.T) {
	t.Parallel()
	c := newContainer()

	b := c.BatchBuilder()
	addNoop(t, b, "base")
	addNoop(t, b, "top", "base")
	require.NoError(t, b.Install())

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, c.Shutdown(ctx))

	for _, name := range []string{"base", "top"} {
		ctrl, err := c.Registry().GetRequired(svcname.Parse(name))
		require.NoError(t, err)
		assert.Equal(t, controller.Down, ctrl.State())
	}
}

func TestShutdownTimesOutIfDeadlineTooShort(t *testing.T) {
	t.Parallel()
	c := newContainer()

	b := c.BatchBuilder()
	addNoop(t, b, "svc")
	require.NoError(t, b.Install())

	ctx, cancel := context.WithTimeout(context.Background(), 0)
	defer cancel()
	// A zero-duration deadline should either already be expired, or expire
	// before the next poll tick; either way Shutdown must not hang forever.
	_ = c.Shutdown(ctx)
}
