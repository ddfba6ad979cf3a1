package app

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/nominliyanage/camera-shop-back-end/internal/auth"
	"github.com/nominliyanage/camera-shop-back-end/internal/cart"
	"github.com/nominliyanage/camera-shop-back-end/internal/catalog"
	"github.com/nominliyanage/camera-shop-back-end/internal/db"
	"github.com/nominliyanage/camera-shop-back-end/internal/mail"
	"github.com/nominliyanage/camera-shop-back-end/internal/maintenance"
	"github.com/nominliyanage/camera-shop-back-end/internal/observability"
	"github.com/nominliyanage/camera-shop-back-end/internal/payment"
)

type Options struct {
	LoadDotEnv    bool
	RunMigrations bool
}

type Runtime struct {
	Handler http.Handler
	Close   func() error
}

func Build(options Options) (*Runtime, error) {
	if options.LoadDotEnv {
		_ = godotenv.Load()
	}

	logger := observability.NewLogger()

	databaseURL, err := mustEnv("DATABASE_URL")
	if err != nil {
		return nil, err
	}
	jwtSecret, err := mustEnv("JWT_SECRET")
	if err != nil {
		return nil, err
	}
	refreshSecret, err := mustEnv("REFRESH_TOKEN_SECRET")
	if err != nil {
		return nil, err
	}
	stripeSecretKey, err := mustEnv("STRIPE_SECRET_KEY")
	if err != nil {
		return nil, err
	}

	if err := observability.InitSentry(os.Getenv("SENTRY_DSN"), envOrDefault("APP_ENV", "development")); err != nil {
		logger.Error("init_sentry_failed", map[string]any{"error": err.Error()})
	}

	database, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	database.SetMaxOpenConns(envIntOrDefault("DB_MAX_OPEN_CONNS", 10))
	database.SetMaxIdleConns(envIntOrDefault("DB_MAX_IDLE_CONNS", 5))
	database.SetConnMaxLifetime(envMinutesOrDefault("DB_CONN_MAX_LIFETIME_MINUTES", 30))
	database.SetConnMaxIdleTime(envMinutesOrDefault("DB_CONN_MAX_IDLE_TIME_MINUTES", 10))

	if err := database.Ping(); err != nil {
		_ = database.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if options.RunMigrations {
		if err := db.RunMigrations(context.Background(), database); err != nil {
			_ = database.Close()
			return nil, fmt.Errorf("run migrations: %w", err)
		}
	}

	mailer, err := mail.NewMailer(mail.Config{
		Host:     envOrDefault("SMTP_HOST", "smtp.gmail.com"),
		Port:     envOrDefault("SMTP_PORT", "587"),
		Username: os.Getenv("SMTP_USER"),
		Password: os.Getenv("SMTP_PASS"),
		From:     envOrDefault("SMTP_FROM", os.Getenv("SMTP_USER")),
	})
	if err != nil {
		_ = database.Close()
		return nil, fmt.Errorf("init mailer: %w", err)
	}
	dispatcher := mail.NewDispatcher(mailer, logger)

	authRepo := auth.NewRepository(database)
	authService := auth.NewService(authRepo, jwtSecret, refreshSecret)
	authService.WithTokenConfig(
		envMinutesOrDefault("ACCESS_TOKEN_TTL_MINUTES", 30),
		envHoursOrDefault("REFRESH_TOKEN_TTL_HOURS", 168),
		envMinutesOrDefault("OTP_TTL_MINUTES", 5),
	)
	authHandler := auth.NewHandler(authService, dispatcher)

	cartRepo := cart.NewRepository(database)
	cartHandler := cart.NewHandler(cartRepo)

	catalogRepo := catalog.NewRepository(database)
	catalogHandler := catalog.NewHandler(catalogRepo, authRepo, dispatcher)

	stripeClient, err := payment.NewStripe(stripeSecretKey)
	if err != nil {
		_ = database.Close()
		return nil, fmt.Errorf("init stripe: %w", err)
	}
	paymentRepo := payment.NewRepository(database)
	paymentHandler := payment.NewHandler(paymentRepo, stripeClient, dispatcher)

	cleanupHandler := maintenance.NewCleanupHandler(
		authRepo,
		logger,
		os.Getenv("CRON_SECRET"),
		envDaysOrDefault("AUTH_REFRESH_TOKEN_RETENTION_DAYS", 14),
		envIntOrDefault("AUTH_CLEANUP_BATCH_SIZE", 500),
	)

	credentialLimiter := auth.NewRateLimiter(
		envIntOrDefault("AUTH_RATE_LIMIT_MAX", 10),
		envSecondsOrDefault("AUTH_RATE_LIMIT_WINDOW_SECONDS", 60),
	)

	authed := func(h http.HandlerFunc) http.Handler {
		return auth.Middleware(jwtSecret, h)
	}
	adminOnly := func(h http.HandlerFunc) http.Handler {
		return auth.Middleware(jwtSecret, auth.RequireRole(h, auth.RoleAdmin))
	}
	customerOnly := func(h http.HandlerFunc) http.Handler {
		return auth.Middleware(jwtSecret, auth.RequireRole(h, auth.RoleCustomer))
	}

	mux := http.NewServeMux()

	mux.Handle("POST /api/auth/login", credentialLimiter.Middleware(http.HandlerFunc(authHandler.Login)))
	mux.HandleFunc("POST /api/auth/register", authHandler.Register)
	mux.Handle("PUT /api/auth/update/{id}", authed(authHandler.Update))
	mux.Handle("GET /api/auth/all", authed(authHandler.ListAll))
	mux.Handle("POST /api/auth/{id}/toggle-active", authed(authHandler.ToggleStatus))
	mux.Handle("POST /api/auth/send-otp", credentialLimiter.Middleware(http.HandlerFunc(authHandler.SendOTP)))
	mux.HandleFunc("POST /api/auth/reset-password-with-otp", authHandler.ResetPasswordWithOTP)
	mux.HandleFunc("POST /api/auth/refresh", authHandler.Refresh)
	mux.HandleFunc("POST /api/auth/logout", authHandler.Logout)

	mux.Handle("GET /api/cart/{userId}/get", authed(cartHandler.Get))
	mux.Handle("POST /api/cart/{userId}/save", authed(cartHandler.Add))
	mux.Handle("PUT /api/cart/{userId}/update", authed(cartHandler.UpdateQuantity))
	mux.Handle("DELETE /api/cart/{userId}/{productId}/delete", authed(cartHandler.Remove))
	mux.Handle("DELETE /api/cart/{userId}/clear", authed(cartHandler.Clear))

	mux.HandleFunc("GET /api/products/all", catalogHandler.ListProducts)
	mux.HandleFunc("GET /api/products/{id}", catalogHandler.GetProduct)
	mux.Handle("POST /api/products/save", adminOnly(catalogHandler.CreateProduct))
	mux.Handle("PUT /api/products/update/{id}", adminOnly(catalogHandler.UpdateProduct))
	mux.Handle("DELETE /api/products/delete/{id}", adminOnly(catalogHandler.DeleteProduct))

	mux.HandleFunc("GET /api/categories/all", catalogHandler.ListCategories)
	mux.HandleFunc("GET /api/categories/{id}", catalogHandler.GetCategory)
	mux.Handle("POST /api/categories/save", adminOnly(catalogHandler.CreateCategory))
	mux.Handle("PUT /api/categories/update/{id}", adminOnly(catalogHandler.UpdateCategory))
	mux.Handle("DELETE /api/categories/delete/{id}", adminOnly(catalogHandler.DeleteCategory))

	mux.Handle("POST /api/payment/create-payment-intent", customerOnly(paymentHandler.CreateIntent))
	mux.Handle("GET /api/payment/all", adminOnly(paymentHandler.ListAll))

	mux.HandleFunc("GET /internal/maintenance/cleanup", cleanupHandler.Handle)
	mux.HandleFunc("POST /internal/maintenance/cleanup", cleanupHandler.Handle)
	mux.HandleFunc("GET /health", healthHandler(database))

	handler := observability.RecoverMiddleware(logger, observability.RequestLoggingMiddleware(logger, mux))

	return &Runtime{
		Handler: handler,
		Close: func() error {
			dispatcher.Close()
			observability.FlushSentry()
			return database.Close()
		},
	}, nil
}

func healthHandler(database *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		status := http.StatusOK
		body := map[string]any{"status": "ok", "time": time.Now().UTC().Format(time.RFC3339)}
		if err := database.PingContext(ctx); err != nil {
			status = http.StatusServiceUnavailable
			body = map[string]any{"status": "degraded", "time": time.Now().UTC().Format(time.RFC3339)}
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(body)
	}
}

func mustEnv(name string) (string, error) {
	value := strings.TrimSpace(os.Getenv(name))
	if value == "" {
		return "", fmt.Errorf("missing required env: %s", name)
	}
	return value, nil
}

func envOrDefault(name, fallback string) string {
	value := strings.TrimSpace(os.Getenv(name))
	if value == "" {
		return fallback
	}
	return value
}

func envIntOrDefault(name string, fallback int) int {
	value := strings.TrimSpace(os.Getenv(name))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil || parsed <= 0 {
		return fallback
	}
	return parsed
}

func envMinutesOrDefault(name string, fallback int) time.Duration {
	return time.Duration(envIntOrDefault(name, fallback)) * time.Minute
}

func envHoursOrDefault(name string, fallback int) time.Duration {
	return time.Duration(envIntOrDefault(name, fallback)) * time.Hour
}

func envDaysOrDefault(name string, fallback int) time.Duration {
	return time.Duration(envIntOrDefault(name, fallback)) * 24 * time.Hour
}

func envSecondsOrDefault(name string, fallback int) time.Duration {
	return time.Duration(envIntOrDefault(name, fallback)) * time.Second
}
