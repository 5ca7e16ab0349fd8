package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/allisson/courier/internal/app"
	"github.com/allisson/courier/internal/config"
)

// RunWorker starts the background delivery plane: the outbox processor that
// relays staged events to the bus and the bus router that consumes workflow
// events and step commands. Blocks until receiving SIGINT/SIGTERM.
func RunWorker(ctx context.Context, version string) error {
	cfg := config.Load()

	container := app.NewContainer(cfg)
	logger := container.Logger()
	logger.Info("starting worker", slog.String("version", version))

	defer closeContainer(container, logger)

	processor, err := container.OutboxProcessor()
	if err != nil {
		return fmt.Errorf("failed to initialize outbox processor: %w", err)
	}

	router, err := container.BusRouter()
	if err != nil {
		return fmt.Errorf("failed to initialize bus router: %w", err)
	}

	metricsServer, err := container.MetricsServer()
	if err != nil {
		return fmt.Errorf("failed to initialize metrics server: %w", err)
	}

	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	group, groupCtx := errgroup.WithContext(ctx)

	group.Go(func() error {
		if err := processor.Start(groupCtx); err != nil && err != context.Canceled {
			return fmt.Errorf("outbox processor error: %w", err)
		}
		return nil
	})

	group.Go(func() error {
		if err := router.Run(groupCtx); err != nil {
			return fmt.Errorf("bus router error: %w", err)
		}
		return nil
	})

	if metricsServer != nil {
		group.Go(func() error {
			if err := metricsServer.Start(groupCtx); err != nil {
				return fmt.Errorf("metrics server error: %w", err)
			}
			return nil
		})

		group.Go(func() error {
			<-groupCtx.Done()
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.DBConnMaxLifetime)
			defer shutdownCancel()
			return metricsServer.Shutdown(shutdownCtx)
		})
	}

	if err := group.Wait(); err != nil {
		return err
	}

	logger.Info("worker stopped")
	return nil
}
