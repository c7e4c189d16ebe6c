package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/hashicorp/go-multierror"
	"go.uber.org/zap"

	"neuro-ai/internal/changefeed"
	"neuro-ai/internal/config"
	"neuro-ai/internal/database"
	"neuro-ai/internal/engagement"
	"neuro-ai/internal/intake"
	"neuro-ai/internal/logger"
	"neuro-ai/internal/platform/telegram"
	"neuro-ai/internal/predict"
	"neuro-ai/internal/report"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	if cfg.MQTT.ClientID == "" {
		cfg.MQTT.ClientID = config.DefaultClientID("neuro-ai")
	}

	log, err := logger.New(cfg.Log.Level, cfg.Log.Format, "neuro-ai")
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 1. Infrastructure
	db, err := database.Open(ctx, database.Options{
		URL:      cfg.Database.URL,
		MaxConns: cfg.Database.MaxConns,
		MaxIdle:  cfg.Database.MaxIdle,
		Attempts: cfg.Database.Attempts,
	}, log)
	if err != nil {
		log.Warn("could not connect to database, engagement features are disabled", zap.Error(err))
		db = nil
	} else if err := database.Migrate(cfg.Database.MigrationsURL, cfg.Database.URL, log); err != nil {
		log.Error("migration failed", zap.Error(err))
	}

	var feed changefeed.Feed
	if db != nil {
		if feed, err = changefeed.Open(ctx, cfg, log); err != nil {
			log.Warn("change feed unavailable, widgets poll only", zap.Error(err))
			feed = nil
		}
	}

	// 2. Clients
	predictor := predict.NewClient(cfg.Predict.URL, cfg.Predict.Timeout, log)

	var tg report.TelegramClient
	if cfg.Telegram.Token != "" {
		tg = telegram.NewClient(cfg.Telegram.Token)
	}
	if cfg.Telegram.DoctorChatID == 0 {
		log.Warn("DOCTOR_CHAT_ID is not set or invalid, reports will not be sent")
	}

	// 3. Services
	reportSvc := report.NewService(tg, cfg.Telegram.DoctorChatID, log)
	intakeSvc := intake.NewService(predictor, intake.NewMemoryPreviewStore(), cfg.Intake.StatusInterval, log)
	intakeHandler := intake.NewHandler(intakeSvc, reportSvc, cfg.Intake.MaxUploadBytes, log)
	go intake.RunSweeper(ctx, intakeSvc, time.Minute, cfg.Intake.SessionTTL)

	var (
		dashboard         *engagement.Dashboard
		engagementHandler *engagement.Handler
	)
	if db != nil {
		repo := engagement.NewRepository(db)
		dashboard = engagement.NewDashboard(repo, feed, engagement.DashboardOptions{
			CountInterval:     cfg.Engagement.CountInterval,
			AnalyticsInterval: cfg.Engagement.AnalyticsInterval,
			OfflineAfter:      cfg.Engagement.OfflineAfter,
			TestimonialLimit:  cfg.Engagement.TestimonialLimit,
		}, log)
		if err := dashboard.Start(ctx); err != nil {
			log.Fatal("failed to start dashboard", zap.Error(err))
		}
		engagementHandler = engagement.NewHandler(
			engagement.NewPresence(repo, feed, log),
			engagement.NewFeedbackService(repo, feed, log),
			dashboard,
			log,
		)
	}

	// 4. Router
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(cors(cfg.Server.AllowedOrigins))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	r.Route("/api", func(r chi.Router) {
		intake.RegisterRoutes(r, intakeHandler)
		if engagementHandler != nil {
			engagement.RegisterRoutes(r, engagementHandler)
		}
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errChan := make(chan error, 1)
	go func() {
		log.Info("server starting", zap.String("port", cfg.Server.Port))
		errChan <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		log.Info("shutdown signal received")
	case err := <-errChan:
		if !errors.Is(err, http.ErrServerClosed) {
			log.Error("server failed", zap.Error(err))
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := shutdown(shutdownCtx, srv, dashboard, feed, db); err != nil {
		log.Error("shutdown finished with errors", zap.Error(err))
		os.Exit(1)
	}
	log.Info("server stopped")
}

func shutdown(ctx context.Context, srv *http.Server, dashboard *engagement.Dashboard, feed changefeed.Feed, db *sql.DB) error {
	var result *multierror.Error
	if err := srv.Shutdown(ctx); err != nil {
		result = multierror.Append(result, fmt.Errorf("http server: %w", err))
	}
	if dashboard != nil {
		dashboard.Stop()
	}
	if feed != nil {
		if err := feed.Close(); err != nil {
			result = multierror.Append(result, fmt.Errorf("change feed: %w", err))
		}
	}
	if db != nil {
		if err := db.Close(); err != nil {
			result = multierror.Append(result, fmt.Errorf("database: %w", err))
		}
	}
	return result.ErrorOrNil()
}

// cors allows the configured origins, "*" for any.
func cors(allowed string) func(http.Handler) http.Handler {
	origins := map[string]bool{}
	for _, o := range strings.Split(allowed, ",") {
		if o = strings.TrimSpace(o); o != "" {
			origins[o] = true
		}
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			switch {
			case origins["*"]:
				w.Header().Set("Access-Control-Allow-Origin", "*")
			case origin != "" && origins[origin]:
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Set("Access-Control-Allow-Credentials", "true")
				w.Header().Add("Vary", "Origin")
			}
			w.Header().Set("Access-Control-Allow-Methods", "POST, GET, OPTIONS, PUT, PATCH, DELETE")
			w.Header().Set("Access-Control-Allow-Headers", "Accept, Content-Type, Content-Length, Accept-Encoding, X-CSRF-Token, Authorization")
			if r.Method == http.MethodOptions {
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
