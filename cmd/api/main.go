package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/redis/go-redis/v9"

	"github.com/diagnosis/tourbook/internal/apperr"
	"github.com/diagnosis/tourbook/internal/crud"
	"github.com/diagnosis/tourbook/internal/http/handlers"
	"github.com/diagnosis/tourbook/internal/http/response"
	"github.com/diagnosis/tourbook/internal/platform/mailer"
	"github.com/diagnosis/tourbook/internal/platform/password"
	"github.com/diagnosis/tourbook/internal/platform/payments"
	"github.com/diagnosis/tourbook/internal/repo/postgres"
	"github.com/diagnosis/tourbook/internal/scheduler"
	"github.com/diagnosis/tourbook/internal/service"
	"github.com/diagnosis/tourbook/pkg/auth"
	"github.com/diagnosis/tourbook/pkg/config"
	"github.com/diagnosis/tourbook/pkg/database"
	"github.com/diagnosis/tourbook/pkg/events"
	"github.com/diagnosis/tourbook/pkg/logger"
	mw "github.com/diagnosis/tourbook/pkg/middleware"
)

// maxBodyBytes is the JSON body cap for every API route except the webhook.
const maxBodyBytes = 10 << 10

func main() {
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		logger.Error("Invalid configuration", "error", err)
		os.Exit(1)
	}
	response.SetDevelopment(cfg.IsDevelopment())
	apperr.SetStackTraces(cfg.IsDevelopment())

	ctx := context.Background()
	pool, err := database.Connect(ctx, cfg.Database)
	if err != nil {
		logger.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	if cfg.Database.Migrate {
		if err := database.Migrate(ctx, pool); err != nil {
			logger.Error("Failed to run migrations", "error", err)
			os.Exit(1)
		}
	}

	var eventBus events.Publisher = events.Nop{}
	if cfg.NATS.URL != "" {
		bus, err := events.NewNATSEventBus(cfg.NATS.URL, "tourbook-api")
		if err != nil {
			logger.Warn("NATS unavailable, events will be dropped", "error", err)
		} else {
			eventBus = bus
		}
	}
	defer eventBus.Close()

	// Repositories
	usersRepo := postgres.NewUsersRepo(pool)
	toursRepo := postgres.NewToursRepo(pool)
	bookingRepo := postgres.NewBookingRepo(pool)
	idempotencyRepo := postgres.NewIdempotencyRepo(pool)

	// Services
	ratings := service.NewRatingAggregator(toursRepo, eventBus)
	reviewEngine := crud.New(service.NewReviewEntity(usersRepo, ratings), postgres.NewReviewsTable(pool))
	reviewService := service.NewReviewService(reviewEngine, bookingRepo)

	tourEngine := crud.New(service.NewTourEntity(usersRepo), postgres.NewToursTable(pool))
	tourService := service.NewTourService(tourEngine, toursRepo, usersRepo, reviewService)

	userEngine := crud.New(service.NewUserEntity(), postgres.NewUsersTable(pool))
	authService := service.NewAuthService(
		usersRepo,
		password.NewHasher(password.Params{
			Memory:      cfg.Auth.HashMemory,
			Iterations:  cfg.Auth.HashIterations,
			Parallelism: cfg.Auth.HashParallelism,
		}),
		auth.NewTokens(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL),
		mailer.New(cfg.Email),
		eventBus,
		cfg,
	)

	bookingEngine := crud.New(service.NewBookingEntity(usersRepo, toursRepo, eventBus), postgres.NewBookingsTable(pool))
	bookingService := service.NewBookingService(
		bookingEngine,
		bookingRepo,
		tourEngine,
		toursRepo,
		usersRepo,
		payments.NewStripe(cfg.Stripe.SecretKey, cfg.Stripe.WebhookSecret),
		eventBus,
		cfg,
	)

	// Handlers
	reviewHandler := handlers.NewReviewHandler(reviewEngine, reviewService, authService)
	tourHandler := handlers.NewTourHandler(tourEngine, tourService, reviewHandler, authService)
	userHandler := handlers.NewUserHandler(authService, userEngine, cfg)
	bookingHandler := handlers.NewBookingHandler(bookingEngine, bookingService, authService, mw.IdempotencyMiddleware(idempotencyRepo))
	viewHandler := handlers.NewViewHandler(tourEngine, tourService, bookingService, authService)

	limiter := newRateLimiter(cfg)

	r := chi.NewRouter()
	r.Use(mw.RequestID)
	r.Use(mw.ServiceName("tourbook"))
	r.Use(mw.Logging)
	r.Use(mw.SecureHeaders(!cfg.IsDevelopment()))
	r.Use(mw.CORS())
	r.Use(mw.Health)
	r.Use(mw.Metrics)
	r.Use(chimw.Compress(5))
	r.NotFound(func(w http.ResponseWriter, req *http.Request) {
		response.Error(w, req, apperr.NotFound("Can't find "+req.URL.Path+" on this server!"))
	})

	// The provider signs the raw body, so the webhook sits outside the body limit.
	r.Post("/api/v1/bookings/webhook-checkout", bookingHandler.Webhook)

	r.Group(func(r chi.Router) {
		r.Use(mw.BodyLimit(maxBodyBytes))

		r.Route("/api", func(r chi.Router) {
			if limiter != nil {
				r.Use(limiter.Middleware())
			}
			r.Route("/v1", func(r chi.Router) {
				r.Mount("/tours", tourHandler.Routes())
				r.Mount("/users", userHandler.Routes())
				r.Mount("/reviews", reviewHandler.Routes())
				r.Mount("/bookings", bookingHandler.Routes())
			})
		})
		r.Mount("/", viewHandler.Routes())
	})

	cleanup := scheduler.NewCleanupScheduler(usersRepo, idempotencyRepo, cfg.Scheduler.CleanupSchedule)
	if err := cleanup.Start(); err != nil {
		logger.Warn("Cleanup scheduler not started", "error", err)
	}
	defer cleanup.Stop()

	port := cfg.Server.Port
	if port == "" {
		port = "3000"
	}
	srv := &http.Server{
		Addr:         ":" + port,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Graceful shutdown
	done := make(chan struct{})
	go func() {
		defer close(done)
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		logger.Info("Shutting down tourbook api...")

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			logger.Error("Server shutdown error", "error", err)
		}
	}()

	logger.Info("Starting tourbook api", "port", port, "env", cfg.Server.Env)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("Server error", "error", err)
		os.Exit(1)
	}
	<-done
}

// newRateLimiter limits /api per client IP in Redis. Without Redis the API
// runs unlimited.
func newRateLimiter(cfg *config.Config) *mw.RateLimiter {
	if cfg.Redis.URL == "" || cfg.RateLimit.Requests <= 0 {
		return nil
	}
	opts, err := redis.ParseURL(cfg.Redis.URL)
	if err != nil {
		logger.Warn("Invalid REDIS_URL, rate limiting disabled", "error", err)
		return nil
	}
	if cfg.Redis.Password != "" {
		opts.Password = cfg.Redis.Password
	}
	if cfg.Redis.DB != 0 {
		opts.DB = cfg.Redis.DB
	}
	client := redis.NewClient(opts)

	return mw.NewRateLimiter(mw.NewRedisCounter(client, "ratelimit:"), mw.RateLimitConfig{
		Requests:    cfg.RateLimit.Requests,
		Window:      cfg.RateLimit.Window,
		TrustedHops: cfg.RateLimit.TrustedHops,
		Deny: func(w http.ResponseWriter, r *http.Request) {
			response.Error(w, r, apperr.RateLimited(mw.RateLimitMessage))
		},
	})
}
