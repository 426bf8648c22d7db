package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"puzzlehunt/internal/app"
	"puzzlehunt/internal/config"
	"puzzlehunt/internal/db"
	"puzzlehunt/internal/handlers"
	"puzzlehunt/internal/metrics"
	mw "puzzlehunt/internal/middleware"
	"puzzlehunt/internal/notify"
	"puzzlehunt/internal/poller"
	"puzzlehunt/internal/services"
	"puzzlehunt/internal/store"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger, err := app.NewLogger(cfg)
	if err != nil {
		return err
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	dbConn, err := app.OpenDB(ctx, cfg)
	if err != nil {
		return err
	}
	defer dbConn.Close()
	if err := db.RunMigrations(ctx, dbConn); err != nil {
		return fmt.Errorf("failed migrations: %w", err)
	}

	m := metrics.New(prometheus.DefaultRegisterer)
	st := store.New(dbConn)

	dispatcher, err := app.NewDispatcher(cfg, logger, m)
	if err != nil {
		return err
	}
	dispatcher.Start()
	notifier := notify.NewNotifier(st, dispatcher)
	announcer := services.NewAnnouncer(st, notifier, logger, m)
	submissions := services.NewSubmissionService(st, logger, m)

	var pollerRunning func() bool
	var p *poller.Poller
	if cfg.PollerEnabled {
		p = poller.New(st, announcer, logger, m, cfg.PollInterval)
		p.Start(context.Background())
		pollerRunning = p.Running
	}

	authMW := mw.NewAuthMiddleware([]byte(cfg.JWTSecret), st)
	authHandler := handlers.NewAuthHandler(st, notifier, []byte(cfg.JWTSecret), cfg.SiteURL, logger)
	userHandler := handlers.NewUserHandler(st)
	huntHandler := handlers.NewHuntHandler(st, submissions, logger)
	dashboardHandler := handlers.NewDashboardHandler(st)
	adminHandler := handlers.NewAdminHandler(st, announcer, logger)
	healthHandler := handlers.NewHealthHandler(dbConn, cfg.MissingRequired, pollerRunning)

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.Recoverer)
	r.Use(mw.ZapRequestLogger(logger))
	r.Use(mw.RequestMetrics(m))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/health", healthHandler.Health)
	r.Get("/health/detailed", healthHandler.Detailed)
	r.Get("/readiness", healthHandler.Readiness)
	r.Get("/liveness", healthHandler.Liveness)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api", func(api chi.Router) {
		api.Post("/auth/register", authHandler.Register)
		api.Post("/auth/login", authHandler.Login)
		api.Post("/auth/password-reset", authHandler.RequestPasswordReset)
		api.Post("/auth/password-reset/confirm", authHandler.ConfirmPasswordReset)

		api.Group(func(pr chi.Router) {
			pr.Use(authMW.RequireAuth)
			pr.Get("/me", userHandler.GetMe)
			pr.Put("/me/preferences", userHandler.UpdatePreferences)

			pr.Get("/issues", huntHandler.ListIssues)
			pr.Get("/issues/{id}", huntHandler.GetIssue)
			pr.Get("/puzzles", huntHandler.ListPuzzles)
			pr.Get("/puzzles/{id}", huntHandler.GetPuzzle)
			pr.Post("/puzzles/{id}/submissions", huntHandler.Submit)
			pr.Get("/submissions", huntHandler.MySubmissions)
			pr.Get("/dashboard", dashboardHandler.Get)

			pr.Route("/admin", func(ad chi.Router) {
				ad.Use(authMW.RequireAdmin)
				ad.Get("/overview", adminHandler.Overview)
				ad.Get("/users", adminHandler.ListUsers)
				ad.Delete("/users/{id}", adminHandler.DeleteUser)

				ad.Get("/issues", adminHandler.ListIssues)
				ad.Post("/issues", adminHandler.CreateIssue)
				ad.Put("/issues/{id}", adminHandler.UpdateIssue)
				ad.Delete("/issues/{id}", adminHandler.DeleteIssue)

				ad.Get("/puzzles", adminHandler.ListPuzzles)
				ad.Post("/puzzles", adminHandler.CreatePuzzle)
				ad.Put("/puzzles/{id}", adminHandler.UpdatePuzzle)
				ad.Delete("/puzzles/{id}", adminHandler.DeletePuzzle)

				ad.Get("/hints", adminHandler.ListHints)
				ad.Post("/hints", adminHandler.CreateHint)
				ad.Put("/hints/{id}", adminHandler.UpdateHint)
				ad.Delete("/hints/{id}", adminHandler.DeleteHint)
			})
		})
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		logger.Info("server starting", zap.String("addr", srv.Addr), zap.String("env", cfg.AppEnv))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutdown initiated")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("server shutdown", zap.Error(err))
	}
	if p != nil {
		p.Stop()
	}
	dispatcher.Close()
	logger.Info("server stopped")
	return nil
}
