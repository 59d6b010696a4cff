// Package container is the single programmatic entry point: it owns a
// Registry, an Executor, and a Lifecycle broadcast, and hands out
// batch.Builders wired to install against them.
package container

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/samber/ro"

	"github.com/nodalcore/container/internal/batch"
	"github.com/nodalcore/container/internal/controller"
	"github.com/nodalcore/container/internal/executor"
	"github.com/nodalcore/container/internal/installer"
	"github.com/nodalcore/container/internal/lifecycle"
	"github.com/nodalcore/container/internal/registry"
	"github.com/nodalcore/container/internal/svcname"
)

// Config configures a Container. Zero value is valid: it gets a Parallel
// executor and a no-op logger.
type Config struct {
	Executor controller.Executor
	Logger   *zerolog.Logger
}

// Container is this repository's own implementation of the spec's
// Container/Registry/Installer, not layered on any third-party DI
// container: it is the thing a host embeds to host services.
type Container struct {
	registry  *registry.Registry
	executor  controller.Executor
	lifecycle *lifecycle.Lifecycle
	logger    *zerolog.Logger
}

// New constructs a Container.
func New(cfg Config) *Container {
	logger := cfg.Logger
	if logger == nil {
		l := zerolog.Nop()
		logger = &l
	}
	exec := cfg.Executor
	if exec == nil {
		exec = executor.NewParallel(logger)
	}
	return &Container{
		registry:  registry.New(),
		executor:  exec,
		lifecycle: lifecycle.New(logger),
		logger:    logger,
	}
}

// BatchBuilder returns a fresh, single-use batch.Builder wired to install
// against this container's registry and executor, broadcasting every
// transition of every controller it installs.
func (c *Container) BatchBuilder() *batch.Builder {
	b := batch.New(func(built *batch.Builder) error {
		return installer.Install(built, installer.Config{
			Registry: c.registry,
			Executor: c.executor,
			Logger:   c.logger,
		})
	})
	b.AddListener(c.lifecycle.Listener())
	return b
}

// Registry exposes the live registry for read access (listing, lookups by
// an admin surface); the installer remains the only writer.
func (c *Container) Registry() *registry.Registry {
	return c.registry
}

// Transitions returns the reactive stream of every installed controller's
// lifecycle transitions.
func (c *Container) Transitions() ro.Observable[lifecycle.Transition] {
	return c.lifecycle.Transitions()
}

// QuiesceOn blocks until an OS shutdown signal arrives, then calls Shutdown
// bounded by timeout. If ctx is canceled before any signal arrives, it
// returns ctx's error without calling Shutdown.
func (c *Container) QuiesceOn(ctx context.Context, timeout time.Duration) error {
	return c.lifecycle.QuiesceOn(ctx, func(base context.Context) error {
		shutdownCtx, cancel := context.WithTimeout(base, timeout)
		defer cancel()
		return c.Shutdown(shutdownCtx)
	})
}

// Shutdown sets every installed controller's mode to Never, which cascades
// each one's live dependents down before it per the controller's own
// dependent-first stop order, then waits for every controller to settle at
// Down (or the state it fails into) or ctx to expire.
func (c *Container) Shutdown(ctx context.Context) error {
	names := c.registry.Names()
	for _, name := range names {
		if ctrl, ok := c.lookup(name); ok {
			ctrl.SetMode(controller.Never)
		}
	}

	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()
	for {
		if c.allSettled(names) {
			c.logger.Info().Int("count", len(names)).Msg("container quiesced")
			return nil
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("container shutdown: %w", ctx.Err())
		case <-ticker.C:
		}
	}
}

// settled reports whether state is one a controller no longer transitions
// out of on its own once its mode has been set to Never.
func settled(state controller.State) bool {
	switch state {
	case controller.Down, controller.StartFailed, controller.Removed:
		return true
	default:
		return false
	}
}

func (c *Container) allSettled(names []svcname.Name) bool {
	for _, name := range names {
		ctrl, ok := c.lookup(name)
		if !ok {
			continue
		}
		if !settled(ctrl.State()) {
			return false
		}
	}
	return true
}

// lookup fetches a controller regardless of whether it is mid-removal: a
// tombstoned-but-present entry still needs its mode flipped/state checked
// during container-wide shutdown.
func (c *Container) lookup(name svcname.Name) (*controller.Controller, bool) {
	ctrl, err := c.registry.GetRequired(name)
	if err != nil && ctrl == nil {
		return nil, false
	}
	return ctrl, true
}
