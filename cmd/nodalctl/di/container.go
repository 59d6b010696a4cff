// Package di wires nodalctl's own ambient services (bootconfig, logger,
// admin server, container) using samber/do v2, the same outer-wiring
// pattern the teacher uses to assemble cc-relay. It is deliberately
// distinct from internal/container, which is this repository's own
// from-scratch Container/Registry/Installer implementation and is never
// layered on do.
package di

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/samber/do/v2"

	"github.com/nodalcore/container/internal/admin"
	"github.com/nodalcore/container/internal/bootconfig"
	"github.com/nodalcore/container/internal/container"
	"github.com/nodalcore/container/internal/controller"
	"github.com/nodalcore/container/internal/executor"
	"github.com/nodalcore/container/internal/logging"
)

// ConfigPathKey names the bootconfig path value in the injector.
const ConfigPathKey = "bootconfig.path"

// Container wraps the do.Injector with nodalctl's own service set.
type Container struct {
	injector *do.RootScope
}

// New creates and wires the DI container for the given bootconfig path.
func New(configPath string) (*Container, error) {
	injector := do.New()
	do.ProvideNamedValue(injector, ConfigPathKey, configPath)
	RegisterSingletons(injector)
	return &Container{injector: injector}, nil
}

// Invoke resolves a service, returning an error if construction fails.
func Invoke[T any](c *Container) (T, error) {
	return do.Invoke[T](c.injector)
}

// MustInvoke resolves a service or panics. Reserved for paths where a
// resolution failure is already fatal to the caller.
func MustInvoke[T any](c *Container) T {
	return do.MustInvoke[T](c.injector)
}

// Shutdown shuts down every registered service in reverse construction
// order.
func (c *Container) Shutdown() error {
	report := c.injector.Shutdown()
	if report != nil && !report.Succeed {
		return fmt.Errorf("di: shutdown failed: %s", report.Error())
	}
	return nil
}

// ShutdownWithContext is Shutdown bounded by ctx.
func (c *Container) ShutdownWithContext(ctx context.Context) error {
	done := make(chan *do.ShutdownReport, 1)
	go func() {
		done <- c.injector.ShutdownWithContext(ctx)
	}()

	select {
	case report := <-done:
		if report != nil && !report.Succeed {
			return fmt.Errorf("di: shutdown failed: %s", report.Error())
		}
		return nil
	case <-ctx.Done():
		return fmt.Errorf("di: shutdown timed out: %w", ctx.Err())
	}
}

// BootConfigService wraps the loaded bootconfig plus its (optional)
// watcher.
type BootConfigService struct {
	Config  *bootconfig.Config
	watcher *bootconfig.Watcher
}

// Shutdown implements do.Shutdowner.
func (s *BootConfigService) Shutdown() error {
	if s.watcher != nil {
		return s.watcher.Close()
	}
	return nil
}

// LoggerService wraps the ambient zerolog.Logger.
type LoggerService struct {
	Logger *zerolog.Logger
}

// ContainerService wraps the running *container.Container.
type ContainerService struct {
	Container *container.Container
}

// Shutdown implements do.Shutdowner. The actual service quiesce is driven
// explicitly by the run command via QuiesceOn; this only covers a
// container that is still up when the injector itself is torn down.
func (s *ContainerService) Shutdown() error {
	return s.Container.Shutdown(context.Background())
}

// AdminServerService wraps the admin HTTP server, started lazily by the
// run command once the container is populated.
type AdminServerService struct {
	Server *admin.Server
}

// Shutdown implements do.Shutdowner.
func (s *AdminServerService) Shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.Server.Shutdown(ctx)
}

// RegisterSingletons registers every nodalctl service provider, in
// dependency order: bootconfig, logger, container, admin server.
func RegisterSingletons(i do.Injector) {
	do.Provide(i, NewBootConfig)
	do.Provide(i, NewLogger)
	do.Provide(i, NewContainerService)
	do.Provide(i, NewAdminServer)
}

// NewBootConfig loads bootconfig from the path registered under
// ConfigPathKey and, when possible, creates a watcher for that file. The
// watcher's Watch loop is not run here and no reload callback is
// registered, so the loaded Config is not reloaded on change.
func NewBootConfig(i do.Injector) (*BootConfigService, error) {
	path := do.MustInvokeNamed[string](i, ConfigPathKey)

	cfg, err := bootconfig.Load(path)
	if err != nil {
		return nil, fmt.Errorf("di: load bootconfig %s: %w", path, err)
	}

	svc := &BootConfigService{Config: cfg}

	watcher, err := bootconfig.NewWatcher(path)
	if err != nil {
		return svc, nil
	}
	svc.watcher = watcher

	return svc, nil
}

// NewLogger builds the ambient logger from the loaded bootconfig.
func NewLogger(i do.Injector) (*LoggerService, error) {
	cfgSvc := do.MustInvoke[*BootConfigService](i)

	logger, err := logging.New(cfgSvc.Config.Logging)
	if err != nil {
		return nil, fmt.Errorf("di: build logger: %w", err)
	}

	return &LoggerService{Logger: &logger}, nil
}

// NewContainerService builds the executor stack named by bootconfig and
// the Container that uses it.
func NewContainerService(i do.Injector) (*ContainerService, error) {
	cfgSvc := do.MustInvoke[*BootConfigService](i)
	loggerSvc := do.MustInvoke[*LoggerService](i)

	exec := buildExecutor(cfgSvc.Config, loggerSvc.Logger)

	c := container.New(container.Config{
		Executor: exec,
		Logger:   loggerSvc.Logger,
	})

	return &ContainerService{Container: c}, nil
}

// buildExecutor constructs the executor decorator stack named by
// cfg.Executor.Kind, always rooted at a Parallel base executor.
func buildExecutor(cfg *bootconfig.Config, logger *zerolog.Logger) controller.Executor {
	base := executor.NewParallel(logger)

	switch cfg.Executor.Kind {
	case bootconfig.ExecutorRateLimited:
		rate := cfg.Executor.RatePerSecond
		if rate <= 0 {
			rate = 100
		}
		return executor.NewRateLimited(base, rate, cfg.Executor.Burst)
	case bootconfig.ExecutorCircuitBreaker:
		return executor.NewCircuitBreaking(base, executor.BreakerConfig{
			FailureThreshold: cfg.Breaker.FailureThreshold,
			HalfOpenProbes:   cfg.Breaker.HalfOpenProbes,
		}, logger)
	default:
		return base
	}
}

// NewAdminServer builds the admin HTTP server bound to the registry of the
// container built by NewContainerService. It is not started here — the run
// command calls ListenAndServe once it decides to serve.
func NewAdminServer(i do.Injector) (*AdminServerService, error) {
	cfgSvc := do.MustInvoke[*BootConfigService](i)
	containerSvc := do.MustInvoke[*ContainerService](i)
	loggerSvc := do.MustInvoke[*LoggerService](i)

	addr := cfgSvc.Config.Admin.Listen
	if addr == "" {
		addr = "127.0.0.1:9090"
	}

	h := admin.Handler(containerSvc.Container.Registry(), loggerSvc.Logger)
	srv := admin.NewServer(addr, h, false)

	return &AdminServerService{Server: srv}, nil
}
