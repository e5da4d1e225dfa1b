package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"lobby-ledger/config"
	"lobby-ledger/handlers"
	"lobby-ledger/middleware"
	"lobby-ledger/models"
	"lobby-ledger/services"
	"lobby-ledger/utils"
	"lobby-ledger/workers"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/jonboulle/clockwork"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal("invalid configuration: ", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := gorm.Open(postgres.Open(cfg.DatabaseURL), &gorm.Config{})
	if err != nil {
		log.Fatal("failed to connect to database:", err)
	}
	if err := db.AutoMigrate(models.AllModels()...); err != nil {
		log.Fatal("failed to migrate database:", err)
	}

	clock := clockwork.NewRealClock()
	lobbyService := services.NewLobbyService(db, cfg.Lobby, clock)

	if cfg.RedisEnabled() {
		redisClient := services.NewRedisClient(services.RedisOptions{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err := redisClient.Ping(ctx).Err(); err != nil {
			log.Fatal("failed to connect to redis:", err)
		}
		defer redisClient.Close()
		lobbyService.Publisher = services.NewRedisPublisher(redisClient, cfg.Lobby.Slug())
		log.Printf("✅ Publishing lobby events on %s", services.EventChannel(cfg.Lobby.Slug()))
	} else {
		log.Println("⚠️  REDIS_ADDR not set, events are only available over SSE")
	}

	round, err := lobbyService.EnsureFirstRound(ctx)
	if err != nil {
		log.Fatal("failed to open lobby:", err)
	}
	log.Printf("✅ Lobby %q at round %d (max %d players, ticket %d)",
		cfg.Lobby.Name, round.ID, cfg.Lobby.MaxPlayers, cfg.Lobby.TicketPrice)

	relay := workers.NewEventRelayWorker(db, lobbyService.Publisher, clock, cfg.RelayInterval)
	relay.Start(ctx)

	if cfg.ArchiveEnabled() {
		store, err := utils.NewS3Store(ctx, cfg.Archive)
		if err != nil {
			log.Fatal("failed to initialize object store:", err)
		}
		archiver := services.NewRoundArchiver(db, store, cfg.Lobby.Slug(), clock)
		sched, err := archiver.StartArchiveScheduler(ctx, cfg.ArchiveInterval)
		if err != nil {
			log.Fatal("failed to start archive scheduler:", err)
		}
		defer func() {
			if err := sched.Shutdown(); err != nil {
				log.Printf("[ARCHIVE] scheduler shutdown: %v", err)
			}
		}()
		log.Printf("✅ Archiving settled rounds to %s every %s", cfg.Archive.Bucket, cfg.ArchiveInterval)
	}

	app := fiber.New()

	// 🔐 GLOBAL: Only Gateway requests allowed
	app.Use(middleware.GatewayAuthMiddleware(cfg.GameServiceToken))

	origins := strings.Split(cfg.AllowedOrigins, ",")
	for i, origin := range origins {
		origins[i] = strings.TrimSpace(origin)
	}
	app.Use(cors.New(cors.Config{
		AllowOrigins:     strings.Join(origins, ","),
		AllowMethods:     "GET,POST,OPTIONS,HEAD",
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization, X-Requested-With, X-Request-ID, Cache-Control, Last-Event-ID",
		ExposeHeaders:    "Content-Length, Content-Type, X-Request-ID",
		AllowCredentials: true,
		MaxAge:           86400,
	}))

	handlers.SetupLobbyRoutes(app, lobbyService)

	go func() {
		if err := app.Listen(cfg.ListenAddr); err != nil {
			log.Printf("Server error: %v", err)
		}
	}()

	log.Printf("✅ Server running on %s", cfg.ListenAddr)

	<-ctx.Done()
	log.Println("Shutting down server...")
	if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
		log.Printf("Server shutdown: %v", err)
	}
}
