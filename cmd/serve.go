package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/alcove-sh/alcove/internal/adapters/in/http/api"
	"github.com/alcove-sh/alcove/internal/adapters/out/docker"
	"github.com/alcove-sh/alcove/internal/adapters/out/sqlite"
	"github.com/alcove-sh/alcove/internal/config"
	"github.com/alcove-sh/alcove/internal/usecase/catalog"
	"github.com/alcove-sh/alcove/internal/usecase/lifecycle"
	"github.com/alcove-sh/alcove/internal/usecase/logs"
	"github.com/alcove-sh/alcove/internal/usecase/proxy"
	"github.com/alcove-sh/alcove/pkg/logger"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the alcove server",
	Long:  `Start the addon orchestration API and the container supervisor.`,
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logg := logger.New(cfg.Log.Level)
	logg.Info("Starting alcove server",
		"version", BuildVersion,
		"port", cfg.Server.Port,
		"addons_enabled", cfg.AddonsEnabled(),
	)

	if err := os.MkdirAll(cfg.Server.DataDir, 0o700); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}

	store, err := sqlite.Open(filepath.Join(cfg.Server.DataDir, "alcove.db"))
	if err != nil {
		return fmt.Errorf("open addon registry: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			logg.Error("Failed to close addon registry", "error", err)
		}
	}()

	setupCtx, setupCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer setupCancel()

	runtime, err := docker.NewRuntime(setupCtx,
		cfg.ContainerEngine.Sock,
		cfg.ContainerEngine.Network,
		cfg.ContainerEngine.StopGraceSeconds,
		logg,
	)
	if err != nil {
		return fmt.Errorf("connect container engine: %w", err)
	}
	defer func() {
		if err := runtime.Close(); err != nil {
			logg.Error("Failed to close container engine client", "error", err)
		}
	}()

	if err := runtime.Ping(setupCtx); err != nil {
		return fmt.Errorf("container engine unreachable at %s: %w", cfg.ContainerEngine.Sock, err)
	}

	catalogSvc := catalog.NewService(cfg.Addons.CatalogDir, logg)

	installer := lifecycle.NewService(store, runtime, catalogSvc, lifecycle.Config{
		InstallTimeout: cfg.InstallTimeout(),
		StopTimeout:    cfg.StopTimeout(),
	}, logg)

	caller := proxy.NewService(store, proxy.Config{
		CallTimeout:  cfg.CallTimeout(),
		MaxBodyBytes: cfg.Addons.MaxProxyBodyBytes,
	}, logg)

	logReader := logs.NewService(store, runtime, logg)

	server := api.NewServer(api.Config{
		Port:          cfg.Server.Port,
		AddonsEnabled: cfg.AddonsEnabled(),
		Tokens:        cfg.Auth.Tokens,
		MaxBodyBytes:  cfg.Addons.MaxProxyBodyBytes,
	}, api.Services{
		Installer: installer,
		Caller:    caller,
		Logs:      logReader,
		Catalog:   catalogSvc,
	}, logg)

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	case sig := <-sigChan:
		logg.Info("Shutting down", "signal", sig.String())
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logg.Error("Forced shutdown after timeout", "error", err)
		return err
	}

	logg.Info("Server stopped gracefully")
	return nil
}
