// Package installer resolves a batch against the live registry and
// inserts its controllers as one unit: an iterative, stack-safe
// depth-first walk with cycle detection and rollback-on-failure.
package installer

import (
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/nodalcore/container/internal/batch"
	"github.com/nodalcore/container/internal/controller"
	"github.com/nodalcore/container/internal/logging"
	"github.com/nodalcore/container/internal/registry"
	"github.com/nodalcore/container/internal/svcname"
)

var (
	// ErrMissingDependency is returned when a declared dependency name is
	// neither in the live registry nor in the batch being installed.
	ErrMissingDependency = errors.New("installer: missing dependency")
	// ErrCircularDependency is returned when the dependency walk revisits
	// an entry still on its active path.
	ErrCircularDependency = errors.New("installer: circular dependency")
	// ErrDuplicateService is returned when a batch entry's name is already
	// occupied in the live registry.
	ErrDuplicateService = errors.New("installer: duplicate service")
)

// entry is one batch service's walker bookkeeping: the fields named in
// spec.md's resolver algorithm (processed/visited/prev/i), kept separate
// from batch.ServiceBuilder so the batch package stays free of installer
// concerns.
type entry struct {
	sb           *batch.ServiceBuilder
	processed    bool
	visited      bool
	prev         *entry
	i            int
	resolvedDeps []*controller.Controller
	controller   *controller.Controller
}

// Config carries what the installer needs beyond the batch itself.
type Config struct {
	Registry *registry.Registry
	Executor controller.Executor
	Logger   *zerolog.Logger
}

// Install resolves b against cfg.Registry and inserts every controller it
// declares, or fails leaving the registry exactly as it was: any
// controllers this call already inserted are evicted again before
// returning a non-nil error.
//
// Every controller built during this call shares one transition_id-scoped
// logger (internal/logging.Scope), so a host grepping logs for a single
// batch install sees every transition line it produced correlated under the
// same id.
func Install(b *batch.Builder, cfg Config) error {
	base := cfg.Logger
	if base == nil {
		nop := zerolog.Nop()
		base = &nop
	}
	scoped, _ := logging.Scope(*base, "")
	cfg.Logger = &scoped

	sbs := b.Entries()
	entries := make(map[svcname.Name]*entry, len(sbs))
	order := make([]*entry, len(sbs))
	for idx, sb := range sbs {
		e := &entry{sb: sb}
		entries[sb.Name()] = e
		order[idx] = e
	}

	scoped.Debug().Int("services", len(sbs)).Msg("installer: batch resolving")

	var inserted []svcname.Name
	rollback := func() {
		for i := len(inserted) - 1; i >= 0; i-- {
			cfg.Registry.Evict(inserted[i])
		}
	}

	for _, start := range order {
		if start.processed {
			continue
		}
		if err := walk(start, entries, b, cfg, &inserted); err != nil {
			rollback()
			scoped.Error().Err(err).Msg("installer: batch rolled back")
			return err
		}
	}

	scoped.Info().Int("installed", len(inserted)).Msg("installer: batch committed")
	return nil
}

// walk runs the iterative DFS rooted at start. It never recurses: descent
// and unwinding are both expressed as reassignments of cur, so an
// arbitrarily deep dependency chain costs O(1) Go call-stack frames.
func walk(start *entry, entries map[svcname.Name]*entry, b *batch.Builder, cfg Config, inserted *[]svcname.Name) error {
	cur := start

outer:
	for {
		deps := cur.sb.Dependencies()

		for cur.i < len(deps) {
			depName := deps[cur.i]

			if rc, err := cfg.Registry.GetRequired(depName); err == nil || errors.Is(err, registry.ErrServiceRemoving) {
				cur.resolvedDeps = append(cur.resolvedDeps, rc)
				cur.i++
				continue
			}

			depEntry, inBatch := entries[depName]
			if !inBatch {
				return fmt.Errorf("%w: %s depends on %s", ErrMissingDependency, cur.sb.Name(), depName)
			}
			if depEntry.processed {
				cur.resolvedDeps = append(cur.resolvedDeps, depEntry.controller)
				cur.i++
				continue
			}
			if depEntry.visited {
				return fmt.Errorf("%w: %s -> %s", ErrCircularDependency, cur.sb.Name(), depName)
			}

			cur.visited = true
			depEntry.prev = cur
			cur = depEntry
			continue outer
		}

		// Every dependency resolved: build and insert cur's controller.
		if err := commit(cur, b, cfg); err != nil {
			return err
		}
		*inserted = append(*inserted, cur.sb.Name())

		cur.visited = false
		cur.processed = true
		if cur.prev == nil {
			return nil
		}
		cur = cur.prev
	}
}

// commit attaches listeners and injections, constructs the controller, and
// inserts it into the registry under cur's name.
func commit(cur *entry, b *batch.Builder, cfg Config) error {
	reg := cfg.Registry
	name := cur.sb.Name()

	listeners := make([]controller.Listener, 0, 1+len(b.BatchListeners())+len(cur.sb.Listeners()))
	listeners = append(listeners, controller.ListenerFunc(func(c *controller.Controller, _, to controller.State) {
		if to == controller.Removed {
			reg.Evict(c.Name())
		}
	}))
	listeners = append(listeners, b.BatchListeners()...)
	listeners = append(listeners, cur.sb.Listeners()...)

	c := controller.New(controller.Config{
		Name:       name,
		Factory:    cur.sb.Factory(),
		Mode:       cur.sb.Mode(),
		Deps:       cur.resolvedDeps,
		Listeners:  listeners,
		Injections: cur.sb.Injections(),
		Executor:   cfg.Executor,
		Logger:     cfg.Logger,
	})

	if err := reg.PutIfAbsent(name, c); err != nil {
		return fmt.Errorf("%w: %s", ErrDuplicateService, name)
	}
	cur.controller = c
	return nil
}
