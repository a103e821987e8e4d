// infimountd serves the file-operation API over HTTP: configured storage
// sources, per-source file operations, and cross-source transfers.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/infimount/infimount/command"
	"github.com/infimount/infimount/configstore"
	"github.com/infimount/infimount/registry"
	"github.com/infimount/infimount/transfer"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		address    string
		configPath string
		debug      bool
	)

	cmd := &cobra.Command{
		Use:          "infimountd",
		Short:        "Uniform file-operation API over heterogeneous storage backends",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context(), address, configPath, debug)
		},
	}

	cmd.Flags().StringVar(&address, "address", "127.0.0.1:8710", "listen address")
	cmd.Flags().StringVar(&configPath, "config", "", "sources config file (defaults to the user config dir, or $INFIMOUNT_CONFIG)")
	cmd.Flags().BoolVar(&debug, "debug", false, "enable debug logging")

	return cmd
}

func run(ctx context.Context, address, configPath string, debug bool) error {
	log, err := newLogger(debug)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer func() { _ = log.Sync() }()

	store := configstore.NewFileStore()
	if configPath != "" {
		store = configstore.NewFileStoreAt(configPath)
	}

	sources, err := store.LoadSources()
	if err != nil {
		return fmt.Errorf("failed to load sources: %w", err)
	}
	log.Info("configuration loaded",
		zap.String("path", store.Path()),
		zap.Int("sources", len(sources)))

	reg := registry.New(sources, registry.WithStore(store), registry.WithLogger(log))
	engine := transfer.NewEngine(transfer.WithLogger(log))
	srv := command.NewServer(reg, engine, log)

	httpSrv := &http.Server{
		Addr:              address,
		Handler:           srv.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		log.Info("listening", zap.String("address", address))
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server failed: %w", err)
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown failed: %w", err)
	}
	return nil
}

func newLogger(debug bool) (*zap.Logger, error) {
	if debug {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}
