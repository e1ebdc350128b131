package main

import (
	"context"
	"database/sql"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"whisper/internal/app/registry"
	"whisper/internal/app/server"
	"whisper/internal/app/server/handlers"
	"whisper/internal/app/worker"
	"whisper/internal/config"
	"whisper/internal/core/contracts"
	"whisper/internal/core/domain"
	"whisper/internal/core/services"
	"whisper/internal/platform/logger"
	"whisper/internal/platform/telemetry"
	"whisper/internal/plugins/cloudinary"
	"whisper/internal/plugins/memory"
	"whisper/internal/plugins/postgres"
	redisPlugin "whisper/internal/plugins/redis"
	"whisper/pkg/logging"
)

// stores groups the persistence adapters selected by STORE_DRIVER.
type stores struct {
	users   domain.UserRepository
	friends domain.FriendshipRepository
	members domain.GroupMembershipRepository
	private domain.PrivateMessageRepository
	group   domain.GroupMessageRepository
	tx      domain.Transactor
}

func main() {
	// Context
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Config
	cfg := config.Load()

	// Logger
	log := logger.NewLogger(*cfg)
	log.Info("starting application")

	otelShutdown, err := telemetry.InitTelemetry(ctx, *cfg)
	if err != nil {
		log.Error("failed to initialize telemetry", logging.Err(err))
		otelShutdown = func(context.Context) error { return nil }
	}
	defer func() {
		log.Info("flushing telemetry...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := otelShutdown(shutdownCtx); err != nil {
			log.Error("telemetry shutdown failed", logging.Err(err))
		}
	}()

	checks := map[string]handlers.Check{}

	// Infra
	var st stores
	switch cfg.StoreDriver {
	case config.DriverMemory:
		mem := memory.NewStore()
		st = stores{users: mem, friends: mem, members: mem, private: mem.Private(), group: mem.Group(), tx: mem}
		log.Warn("using in-memory store, data is lost on exit")
	default:
		var pdb *sql.DB
		if pdb, err = postgres.New(ctx, *cfg.Postgres); err != nil {
			log.Error("postgres connection failed", logging.Err(err))
			return
		}
		defer pdb.Close()
		log.Info("postgres connected")
		if cfg.Postgres.Migrate {
			if err := postgres.Migrate(ctx, pdb); err != nil {
				log.Error("postgres migration failed", logging.Err(err))
				return
			}
		}
		st = stores{
			users:   postgres.NewUserRepository(pdb),
			friends: postgres.NewFriendshipRepo(pdb),
			members: postgres.NewGroupMemberRepo(pdb),
			private: postgres.NewPrivateMessageRepo(pdb),
			group:   postgres.NewGroupMessageRepo(pdb),
			tx:      postgres.NewTxManager(log, pdb),
		}
		checks["postgres"] = pdb.PingContext
	}

	var (
		rdb      *redis.Client
		presence contracts.PresenceStore = memory.NewPresenceStore()
	)
	if cfg.Redis.URL != "" {
		if rdb, err = redisPlugin.NewRedisClient(ctx, *cfg.Redis); err != nil {
			log.Error("redis connection failed", logging.Err(err))
			return
		}
		defer rdb.Close()
		log.Info("redis connected")
		presence = redisPlugin.NewRedisPresenceStore(rdb)
		checks["redis"] = redisPlugin.Ping(rdb, cfg.Redis.PingTimeout)
	}

	var media contracts.MediaStore
	if cfg.Media.CloudName != "" {
		if media, err = cloudinary.NewCloudinaryClient(*cfg.Media); err != nil {
			log.Error("media store configuration failed", logging.Err(err))
			return
		}
	} else {
		media = memory.NewMediaStore()
		log.Warn("no media store configured, uploads are kept in memory")
	}

	// Core Services
	hub := registry.NewRegistry(log)
	if cfg.Relay.Enabled {
		if rdb == nil {
			log.Error("relay enabled without REDIS_URL")
			return
		}
		instance := uuid.NewString()
		relay := redisPlugin.NewRedisRelay(log, rdb, cfg.Relay.Prefix)
		hub.UseRelay(relay, instance)
		wrkr := worker.NewChannelRelayWorker(log, relay, hub)
		hub.RunWorker(wrkr.Run)
		log.Info("relay enabled", "instance", instance)
	}

	tokenSvc := services.NewTokenService(log, cfg.SecretToken, st.users)
	privateSvc := services.NewPrivateChatService(log, hub, st.tx, st.friends, st.private, media)
	groupSvc := services.NewGroupChatService(log, hub, st.tx, st.members, st.group, media)
	uploadSvc := services.NewUploadService(log, hub, st.tx, media, st.friends, st.members, st.private, st.group, cfg.Media.MaxFileBytes)

	// Server
	srv := server.NewServer(
		log,
		cfg.Service.Name,
		cfg.Service.Add,
		cfg.Service.ShutdownTimeout,
		tokenSvc,
		handlers.NewWSHandler(log, hub, tokenSvc, privateSvc, groupSvc, presence, *cfg.Chat, cfg.Service.AllowedOrigins),
		handlers.NewUploadHandler(log, uploadSvc, cfg.Media.MaxFileBytes),
		handlers.NewOnlineHandler(log, hub, presence, cfg.Chat.PresenceTTL, privateSvc, groupSvc),
		handlers.NewHealthHandler(log, checks),
	)
	if err := srv.Start(ctx); err != nil {
		log.Error("server stopped", logging.Err(err))
	}
}
