package main

import (
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/nodalcore/container/cmd/nodalctl/demo"
	"github.com/nodalcore/container/cmd/nodalctl/di"
	"github.com/nodalcore/container/internal/batch"
	"github.com/nodalcore/container/internal/controller"
	"github.com/nodalcore/container/internal/svcname"
	"github.com/nodalcore/container/internal/value"
)

const defaultBootConfigFile = "nodalctl.yaml"

const thirtySeconds = 30 * time.Second

var manifestPath string

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Install a service manifest and serve the admin surface",
	Long: `run loads a bootstrap configuration and a service manifest, installs the
manifest's services, serves the admin HTTP surface, and blocks until an
interrupt or terminate signal is received.`,
	RunE: runRun,
}

func init() {
	rootCmd.AddCommand(runCmd)
	runCmd.Flags().StringVar(&manifestPath, "manifest", "", "path to a service manifest (yaml)")
	_ = runCmd.MarkFlagRequired("manifest")
}

func runRun(cmd *cobra.Command, _ []string) error {
	configPath := cfgFile
	if configPath == "" {
		configPath = findBootConfigFile()
	}

	container, err := di.New(configPath)
	if err != nil {
		return fmt.Errorf("nodalctl: initialize services: %w", err)
	}

	loggerSvc, err := di.Invoke[*di.LoggerService](container)
	if err != nil {
		return fmt.Errorf("nodalctl: build logger: %w", err)
	}
	log.Logger = *loggerSvc.Logger

	runID := uuid.New().String()
	scoped := log.Logger.With().Str("run_id", runID).Logger()
	*loggerSvc.Logger = scoped
	log.Logger = scoped

	entries, err := loadManifest(manifestPath)
	if err != nil {
		log.Error().Err(err).Str("path", manifestPath).Msg("failed to load manifest")
		return err
	}

	containerSvc, err := di.Invoke[*di.ContainerService](container)
	if err != nil {
		log.Error().Err(err).Msg("failed to build container")
		return err
	}

	if err := installManifest(containerSvc, entries); err != nil {
		log.Error().Err(err).Msg("failed to install manifest")
		return err
	}
	log.Info().Int("count", len(entries)).Msg("manifest installed")

	adminSvc, err := di.Invoke[*di.AdminServerService](container)
	if err != nil {
		log.Error().Err(err).Msg("failed to build admin server")
		return err
	}

	serveErrCh := make(chan error, 1)
	go func() {
		log.Info().Str("listen", adminSvc.Server.Addr()).Msg("serving admin surface")
		if err := adminSvc.Server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErrCh <- err
			return
		}
		serveErrCh <- nil
	}()

	ctx := cmd.Context()
	if err := containerSvc.Container.QuiesceOn(ctx, thirtySeconds); err != nil {
		log.Error().Err(err).Msg("container quiesce error")
	}

	if err := container.ShutdownWithContext(ctx); err != nil {
		log.Error().Err(err).Msg("service shutdown error")
	}

	if err := <-serveErrCh; err != nil {
		log.Error().Err(err).Msg("admin server error")
		return err
	}

	log.Info().Msg("nodalctl stopped")
	return nil
}

func installManifest(containerSvc *di.ContainerService, entries []manifestEntry) error {
	b := containerSvc.Container.BatchBuilder()

	for _, e := range entries {
		svcInstance, err := demo.New(demo.Kind(e.Kind), e.params())
		if err != nil {
			return fmt.Errorf("nodalctl: entry %s: %w", e.Name, err)
		}

		sb, err := batch.AddService(b, svcname.Parse(e.Name), value.Immediate(svcInstance))
		if err != nil {
			return fmt.Errorf("nodalctl: entry %s: %w", e.Name, err)
		}

		for _, dep := range e.Dependencies {
			sb.AddDependency(svcname.Parse(dep))
		}

		if e.Mode != "" {
			mode, err := controller.ParseMode(e.Mode)
			if err != nil {
				return fmt.Errorf("nodalctl: entry %s: %w", e.Name, err)
			}
			sb.SetMode(mode)
		}
	}

	return b.Install()
}

// findBootConfigFile searches default locations for a bootconfig file.
func findBootConfigFile() string {
	if _, err := os.Stat(defaultBootConfigFile); err == nil {
		return defaultBootConfigFile
	}
	home, err := os.UserHomeDir()
	if err == nil && home != "" {
		p := filepath.Join(home, ".config", "nodalctl", defaultBootConfigFile)
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return defaultBootConfigFile
}
