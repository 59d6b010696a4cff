package installer_test

import (
	"bytes"
	"fmt"
	"regexp"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nodalcore/container/internal/batch"
	"github.com/nodalcore/container/internal/controller"
	"github.com/nodalcore/container/internal/installer"
	"github.com/nodalcore/container/internal/registry"
	"github.com/nodalcore/container/internal/svc"
	"github.com/nodalcore/container/internal/svcname"
	"github.com/nodalcore/container/internal/value"
)

type syncExecutor struct{}

func (syncExecutor) Submit(_ svcname.Name, fn func()) { fn() }

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

func newBatch(reg *registry.Registry) *batch.Builder {
	return batch.New(func(built *batch.Builder) error {
		return installer.Install(built, installer.Config{Registry: reg, Executor: syncExecutor{}})
	})
}

func TestInstallLinearChainStartsInDependencyOrder(t *testing.T) {
	t.Parallel()
	reg := registry.New()
	b := newBatch(reg)
	addNoop(t, b, "base")
	addNoop(t, b, "mid", "base")
	addNoop(t, b, "top", "mid")

	require.NoError(t, b.Install())

	for _, name := range []string{"base", "mid", "top"} {
		c, err := reg.GetRequired(svcname.Parse(name))
		require.NoError(t, err)
		assert.Equal(t, controller.Up, c.State(), "service %s should be up", name)
	}
}

func TestInstallMissingDependencyFails(t *testing.T) {
	t.Parallel()
	reg := registry.New()
	b := newBatch(reg)
	addNoop(t, b, "top", "ghost")

	err := b.Install()
	assert.ErrorIs(t, err, installer.ErrMissingDependency)
	assert.Equal(t, 0, reg.Len())
}

func TestInstallCircularDependencyFails(t *testing.T) {
	t.Parallel()
	reg := registry.New()
	b := newBatch(reg)
	addNoop(t, b, "a", "b")
	addNoop(t, b, "b", "a")

	err := b.Install()
	assert.ErrorIs(t, err, installer.ErrCircularDependency)
	assert.Equal(t, 0, reg.Len())
}

func TestInstallSelfDependencyFails(t *testing.T) {
	t.Parallel()
	reg := registry.New()
	b := newBatch(reg)
	addNoop(t, b, "a", "a")

	err := b.Install()
	assert.ErrorIs(t, err, installer.ErrCircularDependency)
	assert.Equal(t, 0, reg.Len())
}

func TestInstallDuplicateAgainstLiveRegistryFails(t *testing.T) {
	t.Parallel()
	reg := registry.New()
	first := newBatch(reg)
	addNoop(t, first, "a")
	require.NoError(t, first.Install())

	second := newBatch(reg)
	addNoop(t, second, "a")
	err := second.Install()
	assert.ErrorIs(t, err, installer.ErrDuplicateService)
	assert.Equal(t, 1, reg.Len())
}

func TestInstallRollsBackPartialBatchOnFailure(t *testing.T) {
	t.Parallel()
	reg := registry.New()
	b := newBatch(reg)
	addNoop(t, b, "good")
	addNoop(t, b, "bad", "ghost")

	err := b.Install()
	assert.ErrorIs(t, err, installer.ErrMissingDependency)
	assert.Equal(t, 0, reg.Len(), "a failed batch must leave the registry exactly as it was")
}

func TestInstallResolvesAgainstAlreadyLiveDependency(t *testing.T) {
	t.Parallel()
	reg := registry.New()
	first := newBatch(reg)
	addNoop(t, first, "base")
	require.NoError(t, first.Install())

	second := newBatch(reg)
	addNoop(t, second, "dependent", "base")
	require.NoError(t, second.Install())

	c, err := reg.GetRequired(svcname.Parse("dependent"))
	require.NoError(t, err)
	assert.Equal(t, controller.Up, c.State())
}

// TestInstallLogsUnderSharedTransitionID checks that every controller built
// during one Install() call logs its transitions under the same
// transition_id, so a host grepping logs for one batch install sees a
// single correlated id across every service it touched.
func TestInstallLogsUnderSharedTransitionID(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	logger := zerolog.New(&buf).Level(zerolog.DebugLevel)

	reg := registry.New()
	b := batch.New(func(built *batch.Builder) error {
		return installer.Install(built, installer.Config{Registry: reg, Executor: syncExecutor{}, Logger: &logger})
	})
	addNoop(t, b, "base")
	addNoop(t, b, "mid", "base")

	require.NoError(t, b.Install())

	output := buf.String()
	assert.Contains(t, output, "installer: batch committed")

	matches := regexp.MustCompile(`"transition_id":"([^"]+)"`).FindAllStringSubmatch(output, -1)
	require.NotEmpty(t, matches)
	id := matches[0][1]
	for _, m := range matches {
		assert.Equal(t, id, m[1])
	}
}

// TestInstallTenThousandNodeChainDoesNotOverflowTheStack builds a linear
// chain A0 <- A1 <- ... <- A9999 in one batch and installs it in a single
// call. walk() in installer.go is written as an iterative DFS precisely so
// a chain this deep costs O(1) Go call-stack frames; this pins that at the
// depth where a naive recursive walk would blow the stack.
func TestInstallTenThousandNodeChainDoesNotOverflowTheStack(t *testing.T) {
	t.Parallel()
	const depth = 10_000

	reg := registry.New()
	b := newBatch(reg)

	names := make([]string, depth)
	for i := 0; i < depth; i++ {
		names[i] = fmt.Sprintf("a%d", i)
		if i == 0 {
			addNoop(t, b, names[i])
			continue
		}
		addNoop(t, b, names[i], names[i-1])
	}

	require.NoError(t, b.Install())
	require.Equal(t, depth, reg.Len())

	for _, name := range names {
		c, err := reg.GetRequired(svcname.Parse(name))
		require.NoError(t, err)
		assert.Equal(t, controller.Up, c.State(), "service %s should be up", name)
	}
}

// TestInstallRandomDAGsAlwaysSucceed generates random forward-only edges
// (higher index depends on lower index), which can never contain a cycle,
// and checks every install fully populates the registry with every
// service up.
func TestInstallRandomDAGsAlwaysSucceed(t *testing.T) {
	t.Parallel()
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 50
	properties := gopter.NewProperties(parameters)

	properties.Property("acyclic batches always install and reach up", prop.ForAll(
		func(n, edgeSeed int) bool {
			reg := registry.New()
			b := newBatch(reg)
			names := make([]string, n)
			for i := 0; i < n; i++ {
				names[i] = fmt.Sprintf("svc-%d", i)
				var deps []string
				for j := 0; j < i; j++ {
					if (edgeSeed>>uint((i*n+j)%31))&1 == 1 {
						deps = append(deps, names[j])
					}
				}
				addNoop(t, b, names[i], deps...)
			}

			if err := b.Install(); err != nil {
				return false
			}
			if reg.Len() != n {
				return false
			}
			for _, name := range names {
				c, err := reg.GetRequired(svcname.Parse(name))
				if err != nil || c.State() != controller.Up {
					return false
				}
			}
			return true
		},
		gen.IntRange(1, 12),
		gen.Int(),
	))

	properties.TestingRun(t)
}

// TestInstallRandomCyclesAlwaysFail takes the same random-DAG shape and adds
// one back edge from the first node to the last, guaranteeing a cycle
// whenever n > 1, and checks the registry stays empty after failure.
func TestInstallRandomCyclesAlwaysFail(t *testing.T) {
	t.Parallel()
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 50
	properties := gopter.NewProperties(parameters)

	properties.Property("a batch containing a cycle never installs anything", prop.ForAll(
		func(n, edgeSeed int) bool {
			reg := registry.New()
			b := newBatch(reg)
			names := make([]string, n)
			for i := 0; i < n; i++ {
				names[i] = fmt.Sprintf("svc-%d", i)
			}
			for i := 0; i < n; i++ {
				var deps []string
				for j := 0; j < i; j++ {
					if (edgeSeed>>uint((i*n+j)%31))&1 == 1 {
						deps = append(deps, names[j])
					}
				}
				// Force a chain i -> i-1 for every node, then close it
				// with 0 -> n-1: a guaranteed cycle regardless of which
				// random forward edges above also happened to apply.
				if i > 0 {
					deps = append(deps, names[i-1])
				} else {
					deps = append(deps, names[n-1])
				}
				addNoop(t, b, names[i], deps...)
			}

			err := b.Install()
			return err != nil && reg.Len() == 0
		},
		gen.IntRange(2, 12),
		gen.Int(),
	))

	properties.TestingRun(t)
}
