package main

import (
	"context"
	"errors"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/hibiken/asynq"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/hylarucoder/animatediff-webui/internal/auth"
	"github.com/hylarucoder/animatediff-webui/internal/catalog"
	"github.com/hylarucoder/animatediff-webui/internal/client"
	"github.com/hylarucoder/animatediff-webui/internal/config"
	"github.com/hylarucoder/animatediff-webui/internal/handler"
	"github.com/hylarucoder/animatediff-webui/internal/logging"
	"github.com/hylarucoder/animatediff-webui/internal/metrics"
	"github.com/hylarucoder/animatediff-webui/internal/middleware"
	"github.com/hylarucoder/animatediff-webui/internal/service"
	"github.com/hylarucoder/animatediff-webui/internal/telemetry"
	ws "github.com/hylarucoder/animatediff-webui/internal/websocket"
	"github.com/hylarucoder/animatediff-webui/internal/worker"
	"github.com/hylarucoder/animatediff-webui/pkg/response"
)

const serviceName = "animatediff-webui"

func main() {
	// .env is optional
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		base := logging.Base()
		base.Fatal().Err(err).Msg("failed to load config")
	}

	logging.Configure(logging.Config{Level: cfg.Server.LogLevel, Service: serviceName})
	log := logging.WithComponent("server")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Redis backs the job mirror, the rate limiter and asynq
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer redisClient.Close()

	if err := redisClient.Ping(ctx).Err(); err != nil {
		log.Warn().Err(err).Msg("redis not available, jobs will not survive a restart")
	}

	tp, err := telemetry.NewProvider(ctx, cfg.Telemetry, serviceName, cfg.Server.Env)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize telemetry")
	}

	presets, err := catalog.LoadPresets(cfg.Presets.File)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load presets")
	}
	cat := catalog.New(cfg.Paths.Models, cfg.Paths.Projects, presets, logging.WithComponent("catalog"))

	// Sampler falls back to the mock when no worker URL is configured
	var sampler client.Sampler
	samplerClient := client.NewSamplerClient(&cfg.Sampler, logging.WithComponent("sampler"))
	if samplerClient.IsConfigured() {
		sampler = samplerClient
	} else {
		log.Info().Msg("sampler service not configured, using mock sampler")
		sampler = client.NewMockSampler(500*time.Millisecond, logging.WithComponent("sampler"))
	}

	// R2 is optional
	var storage client.StorageClient
	if cfg.R2.AccessKeyID != "" && cfg.R2.SecretAccessKey != "" {
		r2Client, err := client.NewR2Client(&cfg.R2)
		if err != nil {
			log.Warn().Err(err).Msg("R2 client not initialized")
		} else {
			storage = r2Client
		}
	} else {
		log.Info().Msg("R2 storage not configured, renders stay local")
	}

	hub := ws.NewHub(logging.WithComponent("ws"))

	deps := service.Deps{
		Catalog: cat,
		Sampler: sampler,
		Store:   service.NewRedisJobStore(redisClient),
		Storage: storage,
		Observers: []service.Observer{
			metrics.NewRenderObserver(prometheus.DefaultRegisterer),
			telemetry.NewSpanObserver(telemetry.Tracer("render")),
			hub,
		},
		Render: cfg.Render,
		Logger: logging.WithComponent("render"),
	}

	var asynqClient *asynq.Client
	redisOpt := asynq.RedisClientOpt{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	}
	if cfg.Dispatch.Mode == "asynq" {
		asynqClient = asynq.NewClient(redisOpt)
		defer asynqClient.Close()
		deps.Dispatcher = service.NewAsynqDispatcher(asynqClient, cfg.Dispatch.Queue)
	}

	renderService := service.NewRenderService(deps)
	hub.Bind(renderService)
	if err := renderService.Restore(ctx); err != nil {
		log.Warn().Err(err).Msg("failed to restore jobs")
	}

	validate := validator.New()

	pipelineHandler := handler.NewPipelineHandler(renderService, validate, logging.WithComponent("pipeline"))
	optionsHandler := handler.NewOptionsHandler(cat, logging.WithComponent("options"))
	mediaHandler, err := handler.NewMediaHandler(cfg.Paths.Repo, logging.WithComponent("media"))
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize media handler")
	}

	// JWKS verification is optional, the shared secret is the fallback
	var tokenVerifier auth.TokenVerifier
	if cfg.OIDC.Issuer != "" {
		jwksVerifier, err := auth.NewJWKSVerifier(&cfg.OIDC)
		if err != nil {
			log.Warn().Err(err).Msg("JWKS verifier not initialized")
		} else {
			defer jwksVerifier.Close()
			tokenVerifier = jwksVerifier
		}
	}
	authMiddleware := middleware.NewAuthMiddleware(tokenVerifier, cfg.JWT.Secret)
	authHandler := handler.NewAuthHandler(authMiddleware)
	rateLimiter := middleware.NewRateLimiter(redisClient, logging.WithComponent("ratelimit"))

	app := fiber.New(fiber.Config{
		ErrorHandler:          customErrorHandler(logging.WithComponent("http")),
		BodyLimit:             4 * 1024 * 1024,
		DisableStartupMessage: true,
	})

	app.Use(recover.New())
	app.Use(logger.New(logger.Config{
		Format: "${status} - ${latency} ${method} ${path}\n",
		Output: logging.WithComponent("access"),
	}))
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,POST,OPTIONS",
		AllowHeaders: "Origin,Content-Type,Accept,Authorization,Range",
	}))

	app.Get("/", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"timestamp": time.Now().Unix()})
	})
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status": "ok",
			"services": fiber.Map{
				"sampler": samplerClient.IsConfigured(),
				"redis":   redisClient.Ping(c.UserContext()).Err() == nil,
				"r2":      storage != nil,
				"auth":    cfg.Auth.Enabled && authMiddleware.Configured(),
			},
		})
	})
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))
	app.Get("/auth/verify", authHandler.Verify)
	app.Get("/media", mediaHandler.Serve)

	var api fiber.Router
	var streamAuth *middleware.AuthMiddleware
	if cfg.Auth.Enabled {
		if !authMiddleware.Configured() {
			log.Fatal().Msg("auth is enabled but neither OIDC issuer nor JWT secret is set")
		}
		api = app.Group("/api", authMiddleware.Authenticate())
		streamAuth = authMiddleware
	} else {
		log.Warn().Msg("auth disabled, API is open")
		api = app.Group("/api")
	}

	eventsHandler := handler.NewEventsHandler(hub, streamAuth)
	app.Use("/ws", eventsHandler.Upgrade)
	app.Get("/ws/pipeline/:pid", eventsHandler.Stream())

	api.Get("/options", optionsHandler.Options)
	api.Get("/presets", optionsHandler.Presets)

	pipeline := api.Group("/pipeline")
	pipeline.Post("/submit", rateLimiter.SubmitLimit(cfg.RateLimit.SubmitPerHour), pipelineHandler.Submit)
	pipeline.Get("/status/:pid", pipelineHandler.Status)
	pipeline.Post("/interrupt/:pid", pipelineHandler.Interrupt)
	pipeline.Get("/current", pipelineHandler.Current)
	pipeline.Get("/jobs", pipelineHandler.Jobs)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		addr := ":" + cfg.Server.Port
		log.Info().Str("addr", addr).Str("dispatch", cfg.Dispatch.Mode).Msg("server starting")
		return app.Listen(addr)
	})

	g.Go(func() error {
		return hub.Run(gctx)
	})

	g.Go(func() error {
		if err := cat.Watch(gctx); err != nil {
			log.Warn().Err(err).Msg("catalog watcher stopped, option listings will not refresh")
		}
		return nil
	})

	if asynqClient != nil {
		srv := newWorkerServer(cfg, redisOpt)
		g.Go(func() error {
			mux := asynq.NewServeMux()
			mux.HandleFunc(service.TaskTypeRender, worker.NewRenderWorker(renderService, logging.WithComponent("worker")).ProcessTask)
			if err := srv.Start(mux); err != nil {
				return err
			}
			<-gctx.Done()
			srv.Shutdown()
			return nil
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("shutting down server")
		if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
			log.Error().Err(err).Msg("server shutdown error")
		}
		return nil
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		log.Error().Err(err).Msg("server stopped")
	}

	// The render in flight finishes on its own; it is never preempted.
	renderService.Wait()

	if err := tp.Shutdown(context.Background()); err != nil {
		log.Warn().Err(err).Msg("telemetry shutdown failed")
	}
}

// newWorkerServer runs one task at a time; the GPU takes one job.
func newWorkerServer(cfg *config.Config, redisOpt asynq.RedisClientOpt) *asynq.Server {
	return asynq.NewServer(redisOpt, asynq.Config{
		Concurrency: 1,
		Queues: map[string]int{
			cfg.Dispatch.Queue: 1,
		},
		Logger: logging.NewAsynqLogger(logging.WithComponent("asynq")),
	})
}

func customErrorHandler(log zerolog.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		code := fiber.StatusInternalServerError
		message := "Internal Server Error"

		var e *fiber.Error
		if errors.As(err, &e) {
			code = e.Code
			message = e.Message
		} else {
			log.Error().Err(err).Str("path", c.Path()).Msg("unhandled error")
		}

		return response.Error(c, code, response.CodeServiceError, message, nil)
	}
}
