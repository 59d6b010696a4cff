package demo_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nodalcore/container/cmd/nodalctl/demo"
	"github.com/nodalcore/container/internal/svc"
)

func TestNewRejectsUnknownKind(t *testing.T) {
	t.Parallel()
	_, err := demo.New("sideways", demo.Params{})
	require.ErrorIs(t, err, demo.ErrUnknownKind)
}

func TestNoopStartsAndStopsImmediately(t *testing.T) {
	t.Parallel()
	s, err := demo.New(demo.KindNoop, demo.Params{})
	require.NoError(t, err)

	sc := svc.NewStartContext(context.Background())
	require.NoError(t, s.Start(sc))
	assert.False(t, sc.IsAsynchronous())
}

func TestSleeperCompletesAsynchronouslyAfterDelay(t *testing.T) {
	t.Parallel()
	s, err := demo.New(demo.KindSleeper, demo.Params{Delay: 10 * time.Millisecond})
	require.NoError(t, err)

	sc := svc.NewStartContext(context.Background())
	require.NoError(t, s.Start(sc))
	assert.True(t, sc.IsAsynchronous())

	select {
	case <-sc.Completion():
	case <-time.After(time.Second):
		t.Fatal("sleeper never completed")
	}
	assert.NoError(t, sc.Outcome())
}

func TestFlakyFailsThenSucceeds(t *testing.T) {
	t.Parallel()
	s, err := demo.New(demo.KindFlaky, demo.Params{FailTimes: 2})
	require.NoError(t, err)

	sc1 := svc.NewStartContext(context.Background())
	assert.Error(t, s.Start(sc1))

	sc2 := svc.NewStartContext(context.Background())
	assert.Error(t, s.Start(sc2))

	sc3 := svc.NewStartContext(context.Background())
	assert.NoError(t, s.Start(sc3))
}
