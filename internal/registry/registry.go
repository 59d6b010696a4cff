// Package registry provides the concurrent name -> controller directory a
// running container uses to look services up, and coordinates the
// in-flight window between a removal request and the controller actually
// reaching REMOVED.
package registry

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/samber/lo"
	"github.com/samber/mo"

	"github.com/nodalcore/container/internal/controller"
	"github.com/nodalcore/container/internal/svcname"
)

var (
	// ErrDuplicateService is returned by PutIfAbsent when name is already
	// registered, or tombstoned pending removal.
	ErrDuplicateService = errors.New("registry: duplicate service name")
	// ErrServiceNotFound is returned by GetRequired when name is absent.
	ErrServiceNotFound = errors.New("registry: service not found")
	// ErrRemovalInProgress is returned by Remove when name is already being
	// removed by another caller.
	ErrRemovalInProgress = errors.New("registry: removal already in progress")
	// ErrServiceRemoving is returned alongside a still-present controller
	// by Get/GetRequired once its removal has started but has not yet
	// cleared the registry slot.
	ErrServiceRemoving = errors.New("registry: service is being removed")
)

// Registry is the container's directory of installed controllers, safe for
// concurrent use by the installer, hosts resolving dependencies, and the
// admin surface.
type Registry struct {
	mu         sync.RWMutex
	entries    map[svcname.Name]*controller.Controller
	tombstoned map[svcname.Name]struct{}
}

// New returns an empty Registry.
func New() *Registry {
	return &Registry{
		entries:    make(map[svcname.Name]*controller.Controller),
		tombstoned: make(map[svcname.Name]struct{}),
	}
}

// PutIfAbsent registers c under name. It fails with ErrDuplicateService if
// name is already registered or is tombstoned awaiting removal.
func (r *Registry) PutIfAbsent(name svcname.Name, c *controller.Controller) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, tomb := r.tombstoned[name]; tomb {
		return fmt.Errorf("%w: %s is being removed", ErrDuplicateService, name)
	}
	if _, exists := r.entries[name]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateService, name)
	}
	r.entries[name] = c
	return nil
}

// Get returns the controller registered under name, if any, as
// mo.Some(c) — even while name is tombstoned pending removal, since a
// controller mid-removal is still a legitimate dependency target until it
// actually reaches REMOVED. Callers that need to distinguish "present" from
// "present but on its way out" should use GetRequired, which surfaces
// ErrServiceRemoving.
func (r *Registry) Get(name svcname.Name) mo.Option[*controller.Controller] {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.entries[name]
	if !ok {
		return mo.None[*controller.Controller]()
	}
	return mo.Some(c)
}

// GetRequired collapses Get to an error for callers that treat a missing
// service as fatal (e.g. the installer resolving a dependency). If name is
// tombstoned pending removal, it still returns the controller alongside
// ErrServiceRemoving so a caller can decide whether a removing-but-present
// dependency is acceptable.
func (r *Registry) GetRequired(name svcname.Name) (*controller.Controller, error) {
	r.mu.RLock()
	c, ok := r.entries[name]
	_, removing := r.tombstoned[name]
	r.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrServiceNotFound, name)
	}
	if removing {
		return c, fmt.Errorf("%w: %s", ErrServiceRemoving, name)
	}
	return c, nil
}

// Names returns every registered name, sorted, including tombstoned ones
// still mid-removal.
func (r *Registry) Names() []svcname.Name {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := lo.Keys(r.entries)
	sort.Slice(names, func(i, j int) bool { return names[i].Less(names[j]) })
	return names
}

// Len reports the number of registered entries.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// Evict deletes name's entry and clears any tombstone on it, without
// driving the controller through Remove. It exists for the installer's
// auto-removal listener: a controller removed directly via
// ServiceController.Remove (bypassing Registry.Remove) still needs its
// registry slot cleared once it reaches REMOVED. Safe to call for a name
// that is already absent.
func (r *Registry) Evict(name svcname.Name) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.entries, name)
	delete(r.tombstoned, name)
}

// Remove tombstones name, drives its controller through Remove, and on
// success deletes the entry. The tombstone closes the window where a
// concurrent PutIfAbsent could reuse the name before the controller has
// actually vacated it; on failure (ErrHasDependents, ErrNotRemovable) the
// tombstone is lifted and the entry stays put.
func (r *Registry) Remove(name svcname.Name) error {
	r.mu.Lock()
	c, ok := r.entries[name]
	if !ok {
		r.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrServiceNotFound, name)
	}
	if _, tomb := r.tombstoned[name]; tomb {
		r.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrRemovalInProgress, name)
	}
	r.tombstoned[name] = struct{}{}
	r.mu.Unlock()

	err := c.Remove()

	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.tombstoned, name)
	if err != nil {
		return err
	}
	delete(r.entries, name)
	return nil
}
