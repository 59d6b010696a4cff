// Package controller implements ServiceController: the per-service state
// machine that coordinates start/stop with dependency readiness and
// broadcasts transitions to listeners.
package controller

import (
	"context"
	"fmt"
	"sync"
	"weak"

	"github.com/rs/zerolog"

	"github.com/nodalcore/container/internal/svc"
	"github.com/nodalcore/container/internal/svcname"
	"github.com/nodalcore/container/internal/value"
)

// Executor runs start/stop tasks. internal/executor provides the real
// implementations (parallel, rate-limited, circuit-breaker-guarded);
// controller only needs "run this function, eventually, somewhere".
type Executor interface {
	Submit(name svcname.Name, fn func())
}

// Injection is one (source, destination) pair installed when a controller
// reaches UP and torn down (in reverse, across all of a controller's
// injections together with every other leaving-UP bookkeeping) when it
// leaves UP.
type Injection struct {
	Source      value.AnyValue
	Destination value.AnyInjector
}

// Controller is the container's handle to one installed service. It is
// never constructed directly by a host — the installer (internal/installer)
// builds it from a batch entry.
type Controller struct {
	name     svcname.Name
	factory  value.Value[AnyService]
	executor Executor
	logger   *zerolog.Logger
	onRemove func(svcname.Name, *Controller)

	mu          sync.Mutex
	state       State
	mode        Mode
	deps        []*Controller // strong refs; keeps dependencies alive
	dependents  []weak.Pointer[Controller]
	pendingDeps int
	listeners   []Listener
	injections  []Injection
	service     AnyService
	startErr    error
}

// Config collects a Controller's fixed, install-time configuration.
type Config struct {
	Name       svcname.Name
	Factory    value.Value[AnyService]
	Mode       Mode
	Deps       []*Controller
	Listeners  []Listener
	Injections []Injection
	Executor   Executor
	Logger     *zerolog.Logger
	OnRemove   func(svcname.Name, *Controller)
}

// New constructs a Controller in the DOWN state, subscribed to each of
// cfg.Deps (so it is notified of their transitions and each records this
// controller as a weak dependent). The caller (installer) is responsible
// for attaching the controller's own listeners and injections in the
// order spec.md §4.5 requires before the controller is reachable from the
// registry.
func New(cfg Config) *Controller {
	c := &Controller{
		name:       cfg.Name,
		factory:    cfg.Factory,
		executor:   cfg.Executor,
		logger:     cfg.Logger,
		onRemove:   cfg.OnRemove,
		state:      Down,
		mode:       cfg.Mode,
		deps:       cfg.Deps,
		listeners:  append([]Listener(nil), cfg.Listeners...),
		injections: append([]Injection(nil), cfg.Injections...),
	}
	if c.logger == nil {
		l := zerolog.Nop()
		c.logger = &l
	}

	// pendingDeps must be settled before c is registered as anyone's
	// dependent: registration can synchronously start a dependency (e.g.
	// an OnDemand one gaining its first dependent), which in turn calls
	// back into c.onDependencyUp before New returns.
	pending := 0
	for _, d := range c.deps {
		if d.State() != Up {
			pending++
		}
	}
	c.pendingDeps = pending

	for _, d := range c.deps {
		d.addDependent(c)
	}

	if pending == 0 {
		c.tryStart()
	}

	return c
}

// Name returns the controller's ServiceName.
func (c *Controller) Name() svcname.Name { return c.name }

// State returns the current lifecycle state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Mode returns the current mode.
func (c *Controller) Mode() Mode {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.mode
}

// StartFailure returns the retained start failure, if the controller is in
// START_FAILED; nil otherwise.
func (c *Controller) StartFailure() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.startErr
}

// PendingDependencies returns the live count of dependencies not yet UP.
func (c *Controller) PendingDependencies() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pendingDeps
}

// Dependencies returns the controller's dependency list, in declaration
// order. The slice is a defensive copy.
func (c *Controller) Dependencies() []*Controller {
	return append([]*Controller(nil), c.deps...)
}

// AddListener appends l to the controller's listener set. Used by the
// installer before the controller becomes reachable, and available
// afterward for a host that obtained the controller via the registry.
func (c *Controller) AddListener(l Listener) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.listeners = append(c.listeners, l)
}

// addDependent registers d as a dependent of c and re-evaluates whether c
// should now start (relevant for OnDemand, which only admits starting once
// it has at least one dependent).
func (c *Controller) addDependent(d *Controller) {
	c.mu.Lock()
	c.dependents = append(c.dependents, weak.Make(d))
	c.mu.Unlock()
	c.tryStart()
}

func (c *Controller) liveDependents() []*Controller {
	c.mu.Lock()
	refs := append([]weak.Pointer[Controller](nil), c.dependents...)
	c.mu.Unlock()

	out := make([]*Controller, 0, len(refs))
	live := refs[:0]
	for _, r := range refs {
		if d := r.Value(); d != nil {
			out = append(out, d)
			live = append(live, r)
		}
	}

	c.mu.Lock()
	c.dependents = live
	c.mu.Unlock()

	return out
}

func (c *Controller) hasDependents() bool {
	return len(c.liveDependents()) > 0
}

// SetMode changes the controller's mode and re-evaluates whether it should
// start or stop accordingly.
func (c *Controller) SetMode(mode Mode) {
	c.mu.Lock()
	c.mode = mode
	state := c.state
	pending := c.pendingDeps
	c.mu.Unlock()

	hasDeps := c.hasDependents()
	if state == Down && admitsStart(mode, hasDeps) && pending == 0 {
		c.tryStart()
	} else if state == Up && !admitsStart(mode, hasDeps) {
		c.cascadeLeaveUp()
	}
}

func (c *Controller) notify(from, to State) {
	c.mu.Lock()
	listeners := append([]Listener(nil), c.listeners...)
	c.mu.Unlock()

	c.logger.Debug().
		Str("service", c.name.String()).
		Str("from", from.String()).
		Str("to", to.String()).
		Msg("transition")

	for _, l := range listeners {
		c.invokeListener(l, from, to)
	}
}

func (c *Controller) invokeListener(l Listener, from, to State) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error().
				Str("service", c.name.String()).
				Interface("panic", r).
				Msg("listener panicked")
		}
	}()
	l.Transition(c, from, to)
}

// tryStart attempts DOWN -> STARTING. Called whenever a condition that
// could newly admit starting changes: pendingDeps reaching 0, or mode
// changing.
func (c *Controller) tryStart() {
	c.mu.Lock()
	hasDeps := len(c.dependents) > 0
	if c.state != Down || c.pendingDeps != 0 || !admitsStart(c.mode, hasDeps) {
		c.mu.Unlock()
		return
	}
	c.state = Starting
	c.startErr = nil
	c.mu.Unlock()

	c.notify(Down, Starting)
	c.executor.Submit(c.name, c.runStart)
}

func (c *Controller) runStart() {
	if c.service == nil {
		svcAny, err := c.factory.Get(context.Background())
		if err != nil {
			c.resolveStart(fmt.Errorf("resolving service factory: %w", err))
			return
		}
		c.service = svcAny
	}

	sc := svc.NewStartContext(context.Background())
	err := c.service.Start(sc)
	switch {
	case err != nil:
		c.resolveStart(err)
	case !sc.IsAsynchronous():
		_ = sc.Complete()
		c.resolveStart(nil)
	default:
		go func() {
			<-sc.Completion()
			c.resolveStart(sc.Outcome())
		}()
	}
}

// resolveStart finalizes a STARTING controller, performing injection
// before committing UP so an injection failure can still fail the start
// per spec.md §4.3.
func (c *Controller) resolveStart(outcome error) {
	if outcome != nil {
		c.finishStart(outcome)
		return
	}

	if err := c.performInjections(); err != nil {
		if sc := c.newBestEffortStopContext(); sc != nil {
			_ = c.service.Stop(sc)
		}
		c.finishStart(err)
		return
	}

	c.finishStart(nil)
}

func (c *Controller) newBestEffortStopContext() svc.StopContext {
	if c.service == nil {
		return nil
	}
	return svc.NewStopContext(context.Background())
}

func (c *Controller) finishStart(outcome error) {
	c.mu.Lock()
	if c.state != Starting {
		c.mu.Unlock()
		return
	}
	if outcome != nil {
		c.state = StartFailed
		c.startErr = outcome
		c.mu.Unlock()
		c.notify(Starting, StartFailed)
		return
	}
	c.state = Up
	c.mu.Unlock()
	c.notify(Starting, Up)

	for _, d := range c.liveDependents() {
		d.onDependencyUp()
	}
}

func (c *Controller) performInjections() error {
	ctx := context.Background()
	for i, inj := range c.injections {
		v, err := inj.Source.GetAny(ctx)
		if err != nil {
			c.rollbackInjections(ctx, i)
			return fmt.Errorf("injection %d for %s: %w", i, c.name, err)
		}
		if err := inj.Destination.InjectAny(ctx, v); err != nil {
			c.rollbackInjections(ctx, i)
			return fmt.Errorf("injection %d for %s: %w", i, c.name, err)
		}
	}
	return nil
}

func (c *Controller) rollbackInjections(ctx context.Context, upTo int) {
	for i := upTo - 1; i >= 0; i-- {
		c.injections[i].Destination.UninjectAny(ctx)
	}
}

func (c *Controller) uninject() {
	ctx := context.Background()
	for i := len(c.injections) - 1; i >= 0; i-- {
		c.injections[i].Destination.UninjectAny(ctx)
	}
}

// onDependencyUp is called by a dependency when it reaches UP.
func (c *Controller) onDependencyUp() {
	c.mu.Lock()
	c.pendingDeps--
	pending := c.pendingDeps
	c.mu.Unlock()
	if pending == 0 {
		c.tryStart()
	}
}

// onDependencyLeavingUp is called by a dependency as part of its
// cascadeLeaveUp, strictly before the dependency itself commits STOPPING,
// so that by the time a dependency's state becomes visible as STOPPING
// every transitive dependent has already left UP (spec.md §3 invariant).
func (c *Controller) onDependencyLeavingUp() {
	c.mu.Lock()
	c.pendingDeps++
	wasUp := c.state == Up
	c.mu.Unlock()
	if wasUp {
		c.cascadeLeaveUp()
	}
}

// cascadeLeaveUp commits UP -> STOPPING, but only after every live
// dependent has already left UP (recursively). See onDependencyLeavingUp.
func (c *Controller) cascadeLeaveUp() {
	c.mu.Lock()
	if c.state != Up {
		c.mu.Unlock()
		return
	}
	c.mu.Unlock()

	for _, d := range c.liveDependents() {
		d.onDependencyLeavingUp()
	}

	c.mu.Lock()
	if c.state != Up {
		c.mu.Unlock()
		return
	}
	c.state = Stopping
	c.mu.Unlock()

	c.uninject()
	c.notify(Up, Stopping)
	c.executor.Submit(c.name, c.runStop)
}

func (c *Controller) runStop() {
	sc := svc.NewStopContext(context.Background())
	err := c.service.Stop(sc)
	switch {
	case err != nil:
		c.logger.Warn().
			Str("service", c.name.String()).
			Err(err).
			Msg("service stop returned an error")
		c.resolveStop()
	case !sc.IsAsynchronous():
		_ = sc.Complete()
		c.resolveStop()
	default:
		go func() {
			<-sc.Completion()
			c.resolveStop()
		}()
	}
}

func (c *Controller) resolveStop() {
	c.mu.Lock()
	if c.state != Stopping {
		c.mu.Unlock()
		return
	}
	c.state = Down
	hasDeps := len(c.dependents) > 0
	mode := c.mode
	pending := c.pendingDeps
	c.mu.Unlock()

	c.notify(Stopping, Down)

	if pending == 0 && admitsStart(mode, hasDeps) {
		c.tryStart()
	}
}

// Remove requests removal. Valid only from DOWN or START_FAILED with no
// live dependents; otherwise returns ErrHasDependents / ErrNotRemovable.
func (c *Controller) Remove() error {
	c.mu.Lock()
	state := c.state
	c.mu.Unlock()

	if state != Down && state != StartFailed {
		return fmt.Errorf("%w: controller %s is %s", ErrNotRemovable, c.name, state)
	}
	if c.hasDependents() {
		return fmt.Errorf("%w: controller %s still has dependents", ErrHasDependents, c.name)
	}

	c.mu.Lock()
	if c.state != state {
		// Raced with a concurrent transition; let the caller retry.
		c.mu.Unlock()
		return fmt.Errorf("%w: controller %s changed state concurrently", ErrNotRemovable, c.name)
	}
	old := c.state
	c.state = Removed
	c.mu.Unlock()

	c.notify(old, Removed)
	if c.onRemove != nil {
		c.onRemove(c.name, c)
	}
	return nil
}
