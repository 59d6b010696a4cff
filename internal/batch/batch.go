// Package batch implements BatchBuilder/ServiceBuilder: the staging area a
// host populates with a group of new service definitions before handing
// them to the installer as one unit.
package batch

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/nodalcore/container/internal/controller"
	"github.com/nodalcore/container/internal/svc"
	"github.com/nodalcore/container/internal/svcname"
	"github.com/nodalcore/container/internal/value"
)

// ErrDuplicateService is returned by AddService when name is already
// present in this batch.
var ErrDuplicateService = errors.New("batch: duplicate service name")

// ErrAlreadyInstalled is returned by Install on a second call; a Builder
// is single-use.
var ErrAlreadyInstalled = errors.New("batch: already installed")

// ServiceBuilder accumulates one service's definition within a Builder:
// its factory, dependency names, listeners, and injection declarations.
// Every setter returns the receiver for chaining and is safe only from the
// goroutine populating the batch — a Builder is not meant to be shared
// across goroutines before Install.
type ServiceBuilder struct {
	name       svcname.Name
	factory    value.Value[controller.AnyService]
	mode       controller.Mode
	deps       []svcname.Name
	depSeen    map[svcname.Name]struct{}
	listeners  []controller.Listener
	injections []controller.Injection
}

// AddDependency appends name to the service's dependency list. Duplicate
// names are permitted but ignored, per the batch contract.
func (sb *ServiceBuilder) AddDependency(name svcname.Name) *ServiceBuilder {
	if _, seen := sb.depSeen[name]; seen {
		return sb
	}
	sb.depSeen[name] = struct{}{}
	sb.deps = append(sb.deps, name)
	return sb
}

// AddListener attaches a per-service listener, invoked after every
// batch-wide listener and before the service is reachable from the
// registry.
func (sb *ServiceBuilder) AddListener(l controller.Listener) *ServiceBuilder {
	sb.listeners = append(sb.listeners, l)
	return sb
}

// AddInjection declares that, once the controller being built reaches UP,
// destination should receive source's current value; and that destination
// should be uninjected, in declaration-reversed order among this service's
// own injections, when the controller leaves UP.
func (sb *ServiceBuilder) AddInjection(source value.AnyValue, destination value.AnyInjector) *ServiceBuilder {
	sb.injections = append(sb.injections, controller.Injection{Source: source, Destination: destination})
	return sb
}

// SetMode overrides the controller's install-time mode. Defaults to
// controller.Active (eager, once dependencies are up) when not called.
func (sb *ServiceBuilder) SetMode(m controller.Mode) *ServiceBuilder {
	sb.mode = m
	return sb
}

// Name returns the service name this builder will install under.
func (sb *ServiceBuilder) Name() svcname.Name { return sb.name }

// Dependencies returns the declared dependency names in declaration order.
func (sb *ServiceBuilder) Dependencies() []svcname.Name {
	return append([]svcname.Name(nil), sb.deps...)
}

// Listeners returns the per-service listeners in declaration order.
func (sb *ServiceBuilder) Listeners() []controller.Listener {
	return append([]controller.Listener(nil), sb.listeners...)
}

// Injections returns the declared injection pairs in declaration order.
func (sb *ServiceBuilder) Injections() []controller.Injection {
	return append([]controller.Injection(nil), sb.injections...)
}

// Mode returns the install-time mode.
func (sb *ServiceBuilder) Mode() controller.Mode { return sb.mode }

// Factory returns the type-erased service factory.
func (sb *ServiceBuilder) Factory() value.Value[controller.AnyService] { return sb.factory }

// Builder is BatchBuilder: a single-use staging area for a group of new
// service definitions, committed to the registry as one unit by Install.
type Builder struct {
	mu        sync.Mutex
	entries   map[svcname.Name]*ServiceBuilder
	order     []svcname.Name
	listeners []controller.Listener
	installed bool
	install   func(*Builder) error
}

// New constructs an empty Builder. installFn performs the actual
// resolve-and-insert work (internal/installer.Install) — passed in rather
// than imported directly, so batch does not depend on installer.
func New(installFn func(*Builder) error) *Builder {
	return &Builder{
		entries: make(map[svcname.Name]*ServiceBuilder),
		install: installFn,
	}
}

// AddListener attaches a batch-wide listener, applied to every service in
// the batch ahead of that service's own per-service listeners.
func (b *Builder) AddListener(l controller.Listener) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.listeners = append(b.listeners, l)
}

// AddService declares a new service in the batch under name, backed by
// factory. Go does not allow type-parameterized methods, so this is a
// free function rather than a method on Builder.
func AddService[T any](b *Builder, name svcname.Name, factory value.Value[svc.Service[T]]) (*ServiceBuilder, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, exists := b.entries[name]; exists {
		return nil, fmt.Errorf("%w: %s", ErrDuplicateService, name)
	}

	sb := &ServiceBuilder{
		name:    name,
		factory: eraseFactory[T]{inner: factory},
		mode:    controller.Active,
		depSeen: make(map[svcname.Name]struct{}),
	}
	b.entries[name] = sb
	b.order = append(b.order, name)
	return sb, nil
}

// Entries returns every declared ServiceBuilder in declaration order.
func (b *Builder) Entries() []*ServiceBuilder {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]*ServiceBuilder, len(b.order))
	for i, n := range b.order {
		out[i] = b.entries[n]
	}
	return out
}

// Lookup returns the ServiceBuilder declared under name within this batch,
// if any — used by the installer while resolving a dependency that is not
// yet in the live registry.
func (b *Builder) Lookup(name svcname.Name) (*ServiceBuilder, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	sb, ok := b.entries[name]
	return sb, ok
}

// BatchListeners returns the batch-wide listeners in declaration order.
func (b *Builder) BatchListeners() []controller.Listener {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]controller.Listener(nil), b.listeners...)
}

// Install commits the batch. A Builder is single-use: a second call fails
// with ErrAlreadyInstalled without re-running installFn.
func (b *Builder) Install() error {
	b.mu.Lock()
	if b.installed {
		b.mu.Unlock()
		return ErrAlreadyInstalled
	}
	b.installed = true
	b.mu.Unlock()

	return b.install(b)
}

// eraseFactory adapts a typed value.Value[svc.Service[T]] to the
// type-erased value.Value[controller.AnyService] a Controller's factory
// field requires, so BatchServiceBuilder[T] instances of differing T can
// live in the same Builder.
type eraseFactory[T any] struct {
	inner value.Value[svc.Service[T]]
}

func (e eraseFactory[T]) Get(ctx context.Context) (controller.AnyService, error) {
	s, err := e.inner.Get(ctx)
	if err != nil {
		var zero controller.AnyService
		return zero, err
	}
	return controller.EraseService[T](s), nil
}
