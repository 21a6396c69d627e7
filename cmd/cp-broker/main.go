package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/riandyrn/otelchi"

	"github.com/K-PaaS/cp-portal-service-broker/internal/adapter/catalog"
	"github.com/K-PaaS/cp-portal-service-broker/internal/adapter/fsm"
	"github.com/K-PaaS/cp-portal-service-broker/internal/adapter/keycloak"
	"github.com/K-PaaS/cp-portal-service-broker/internal/adapter/kube"
	"github.com/K-PaaS/cp-portal-service-broker/internal/adapter/otel"
	"github.com/K-PaaS/cp-portal-service-broker/internal/adapter/portal"
	"github.com/K-PaaS/cp-portal-service-broker/internal/adapter/river"
	"github.com/K-PaaS/cp-portal-service-broker/internal/adapter/sqlite"
	"github.com/K-PaaS/cp-portal-service-broker/internal/app"
	"github.com/K-PaaS/cp-portal-service-broker/internal/config"

	handler "github.com/K-PaaS/cp-portal-service-broker/internal/adapter/http"
)

const serviceName = "cp-broker"

func main() {
	if err := run(); err != nil {
		slog.Error("broker failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg := config.Load()
	ctx := context.Background()

	log := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(log)

	plans, err := catalog.Load(cfg.PlansPath)
	if err != nil {
		return fmt.Errorf("plan catalog: %w", err)
	}

	// --- Observability ---
	providers, err := otel.Setup(ctx, otel.ConfigFromEnv())
	if err != nil {
		return fmt.Errorf("otel: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := providers.Shutdown(shutdownCtx); err != nil {
			log.Error("otel shutdown", "error", err)
		}
	}()

	// --- Storage ---
	db, err := otel.OpenDB(cfg.DatabasePath)
	if err != nil {
		return fmt.Errorf("database: %w", err)
	}
	defer db.Close()

	repo, err := sqlite.NewFromDB(db)
	if err != nil {
		return fmt.Errorf("repository: %w", err)
	}

	// --- Async event queue ---
	riverClient, err := river.Setup(ctx, db)
	if err != nil {
		return fmt.Errorf("river: %w", err)
	}
	if err := riverClient.Start(ctx); err != nil {
		return fmt.Errorf("starting river: %w", err)
	}

	// --- Adapters (out) ---
	platform, err := kube.New(
		kube.Config{
			Host:     cfg.KubeHost,
			Token:    cfg.KubeToken,
			Insecure: cfg.KubeInsecure,
		},
		kube.RegistryConfig{
			URL:      cfg.RegistryURL,
			Username: cfg.RegistryUsername,
			Password: cfg.RegistryPassword,
		},
	)
	if err != nil {
		return fmt.Errorf("cluster client: %w", err)
	}

	identity := keycloak.New(keycloak.Config{
		BaseURL:       cfg.KeycloakURL,
		Realm:         cfg.KeycloakRealm,
		AdminRealm:    cfg.KeycloakAdminRealm,
		AdminUser:     cfg.KeycloakAdminUser,
		AdminPassword: cfg.KeycloakAdminPassword,
	})

	portalClient := portal.New(portal.Config{
		BaseURL:   cfg.PortalURL,
		ClusterID: cfg.PortalClusterID,
		Username:  cfg.PortalUsername,
		Password:  cfg.PortalPassword,
		AdminRole: cfg.PortalAdminRole,
	})

	// --- Application ---
	orch := app.NewOrchestrator(
		otel.NewTracingRepository(repo),
		platform,
		identity,
		portalClient,
		plans,
		otel.NewTracingPublisher(river.NewPublisher(riverClient)),
		fsm.New(),
		app.Config{
			AdminOrganization: cfg.AdminOrganization,
			ClusterAdminGroup: cfg.ClusterAdminGroup,
			DashboardURL:      cfg.DashboardURL,
			InitRole:          cfg.InitRole,
			AdminRole:         cfg.AdminRole,
		},
		log,
	)

	// --- Adapters (in) ---
	router := chi.NewMux()
	router.Use(middleware.RequestID)
	router.Use(middleware.Recoverer)
	router.Use(otelchi.Middleware(serviceName, otelchi.WithChiRoutes(router)))

	api := humachi.New(router, huma.DefaultConfig(serviceName, "0.1.0"))
	handler.Register(api, orch, plans)

	// --- Server ---
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGTERM)

	serverErr := make(chan error, 1)
	go func() {
		log.Info("broker listening", "port", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	select {
	case err := <-serverErr:
		return fmt.Errorf("server: %w", err)
	case <-done:
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("http shutdown", "error", err)
	}
	if err := riverClient.Stop(shutdownCtx); err != nil {
		log.Error("river shutdown", "error", err)
	}

	log.Info("stopped")
	return nil
}
