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
	"golang.org/x/sync/errgroup"

	"github.com/cloudx-io/boxauction/httpapi"
	"github.com/cloudx-io/boxauction/server"
	"github.com/cloudx-io/boxauction/service"
)

const shutdownTimeout = 10 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the bid engine.",
	Long:  "Run the bid engine on the configured socket and HTTP listeners until SIGINT or SIGTERM.",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := loadConfig()
		if err != nil {
			return err
		}
		defer func() { _ = logger.Sync() }()

		if !cfg.Server.Enabled && !cfg.HTTP.Enabled {
			return errors.New("neither server nor http is enabled")
		}

		svc, err := service.New(cfg, logger)
		if err != nil {
			logger.Error("failed to create bid engine", zap.Error(err))
			return err
		}
		defer func() {
			if err := svc.Close(); err != nil {
				logger.Error("failed to close event store", zap.Error(err))
			}
		}()

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		g, gctx := errgroup.WithContext(ctx)

		if cfg.Server.Enabled {
			srv := server.New(cfg.Server, svc, logger)
			l, err := srv.Listen()
			if err != nil {
				return err
			}
			g.Go(func() error {
				return srv.Serve(gctx, l)
			})
		}

		if cfg.HTTP.Enabled {
			httpSrv := &http.Server{
				Addr:              cfg.HTTP.Address,
				Handler:           httpapi.NewRouter(cfg.HTTP, svc, logger),
				ReadHeaderTimeout: cfg.Server.ReadTimeout,
			}
			g.Go(func() error {
				logger.Info("http server listening", zap.String("address", cfg.HTTP.Address))
				if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					return fmt.Errorf("http server: %w", err)
				}
				return nil
			})
			g.Go(func() error {
				<-gctx.Done()
				shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
				defer cancel()
				return httpSrv.Shutdown(shutdownCtx)
			})
		}

		err = g.Wait()
		if ctx.Err() != nil {
			logger.Info("exit by signal")
		}
		if err != nil {
			logger.Error("exit by error", zap.Error(err))
		}
		return err
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}
