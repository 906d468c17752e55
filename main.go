package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"couple-games/config"
	"couple-games/feed"
	"couple-games/handlers"
	"couple-games/middleware"
	"couple-games/services"
	"couple-games/storage"
	"couple-games/utils"
	"couple-games/workers"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	utils.InitLogger(cfg.LogLevel, cfg.LogFormat)

	g, gctx := errgroup.WithContext(ctx)

	// --- Store + change feed ---
	broker := feed.NewBroker()
	var (
		store     storage.Store
		publisher feed.Publisher = broker
	)
	switch cfg.Store {
	case "memory":
		store = storage.NewMemoryStore()
		log.Warn().Msg("⚠️  STORE=memory: state is lost on restart and not shared between instances")
	default:
		pg, err := storage.OpenPostgres(cfg.DatabaseURL)
		if err != nil {
			return fmt.Errorf("connecting to database: %w", err)
		}
		store = pg
		publisher = feed.NewPGNotifier(pg.DB, cfg.FeedChannel)
		listener := feed.NewPGListener(cfg.DatabaseURL, cfg.FeedChannel, broker)
		g.Go(func() error { return listener.Run(gctx) })
		log.Info().Str("channel", cfg.FeedChannel).Msg("✅ Connected to postgres")
	}

	// --- Side channels ---
	var notifier services.Notifier = services.NopNotifier{}
	if cfg.PushServiceURL != "" {
		notifier = services.NewPushClient(cfg.PushServiceURL, cfg.PushServiceToken, nil)
	} else {
		log.Info().Msg("PUSH_SERVICE_URL not set, partner notifications disabled")
	}

	var archiver services.Archiver = services.NopArchiver{}
	if cfg.R2.Enabled() {
		r2, err := utils.NewR2Client(ctx, cfg.R2.AccountID, cfg.R2.AccessKeyID, cfg.R2.AccessKeySecret, cfg.R2.Bucket)
		if err != nil {
			return fmt.Errorf("initializing R2 client: %w", err)
		}
		archiver = services.NewBucketArchiver(r2)
	}

	sessions := services.NewSessionService(store, publisher, notifier, archiver, cfg.SessionTTL)
	sessions.ShuffleQuestions = cfg.ShuffleQuestions

	// --- HTTP ---
	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			log.Error().Err(err).Str("path", c.Path()).Msg("[HTTP] unhandled error")
			return fiber.DefaultErrorHandler(c, err)
		},
	})
	app.Use(cors.New(cors.Config{
		AllowOrigins:     strings.Join(cfg.AllowOrigins, ","),
		AllowMethods:     "GET,POST,OPTIONS",
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization, Cache-Control, X-User-ID, X-Couple-ID, X-User-Roles",
		AllowCredentials: true,
		MaxAge:           86400,
	}))
	// 🔐 Only Gateway requests allowed
	app.Use(middleware.GatewayAuthMiddleware(cfg.ServiceToken, "/healthz"))
	handlers.SetupRoutes(app, store, sessions, broker)

	g.Go(func() error {
		log.Info().Str("addr", cfg.HTTPAddr).Msg("✅ Server starting")
		return app.Listen(cfg.HTTPAddr)
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("Shutting down server...")
		return app.ShutdownWithTimeout(10 * time.Second)
	})

	// --- Workers ---
	if cfg.SessionTTL > 0 {
		expiry := workers.NewExpiryWorker(sessions, cfg.ExpirySweepInterval)
		g.Go(func() error { return expiry.Run(gctx) })
	}

	return g.Wait()
}
