package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/fjod/storefront/internal/checkout"
	"github.com/fjod/storefront/internal/health"
	api "github.com/fjod/storefront/internal/http"
	"github.com/fjod/storefront/internal/identity"
	"github.com/fjod/storefront/internal/orders"
	"github.com/fjod/storefront/internal/profile"
	"github.com/fjod/storefront/internal/session"
	"github.com/fjod/storefront/internal/storefront"
)

const healthInterval = 15 * time.Second

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the gRPC health service",
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(cmd.Context())
		},
	}
}

func serve(ctx context.Context) error {
	rdb, kv, err := connectRedis(ctx)
	if err != nil {
		return err
	}
	defer rdb.Close()

	db, docs, err := connectDocstore(ctx)
	if err != nil {
		return err
	}
	defer db.Client().Disconnect(context.Background())

	products, err := openCatalog()
	if err != nil {
		return err
	}
	defer products.Close()

	publisher := newPublisher()
	defer publisher.Close()

	reconciler := profile.NewReconciler(docs, cfg.Quotas(), logger)
	registry := storefront.NewRegistry(storefront.Deps{
		Store:          kv,
		Platform:       identity.NewPlatform(docs, cfg.IdentitySecrets, logger),
		Reconciler:     reconciler,
		SessionOptions: session.Options{ReconcileTimeout: cfg.RequestTimeout},
		Logger:         logger,
	})
	checkouts := checkout.NewService(orders.NewRepository(docs, logger), publisher, logger)

	healthSrv := health.NewServer(map[string]health.Pinger{
		"redis":   kv,
		"mongodb": health.PingFunc(func(ctx context.Context) error { return db.Client().Ping(ctx, nil) }),
		"catalog": products,
	}, logger)

	srv := &http.Server{
		Addr: ":" + cfg.HTTPPort,
		Handler: api.NewRouter(api.RouterConfig{
			Products:       products,
			Registry:       registry,
			Checkout:       checkouts,
			Health:         healthSrv,
			RequestTimeout: cfg.RequestTimeout,
			Logger:         logger,
		}),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: cfg.RequestTimeout + 10*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	lis, err := net.Listen("tcp", ":"+cfg.GRPCPort)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", cfg.GRPCPort, err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("HTTP server starting", zap.String("port", cfg.HTTPPort))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		logger.Info("gRPC health server starting", zap.String("port", cfg.GRPCPort))
		return healthSrv.Serve(lis)
	})
	g.Go(func() error {
		healthSrv.Run(gctx, healthInterval)
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		err := srv.Shutdown(shutdownCtx)
		healthSrv.Stop()
		registry.Close()
		return err
	})

	if err := g.Wait(); err != nil {
		return err
	}
	logger.Info("server exited")
	return nil
}
