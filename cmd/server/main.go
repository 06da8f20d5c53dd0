package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/lalith-99/panelchat/internal/api"
	"github.com/lalith-99/panelchat/internal/auth"
	"github.com/lalith-99/panelchat/internal/chat"
	"github.com/lalith-99/panelchat/internal/config"
	"github.com/lalith-99/panelchat/internal/db"
	"github.com/lalith-99/panelchat/internal/moderation"
	"github.com/lalith-99/panelchat/internal/observ"
	"github.com/lalith-99/panelchat/internal/ratelimit"
	"github.com/lalith-99/panelchat/internal/repository"
	"github.com/lalith-99/panelchat/internal/repository/cache"
	"github.com/lalith-99/panelchat/internal/repository/memory"
	"github.com/lalith-99/panelchat/internal/repository/postgres"
	"github.com/lalith-99/panelchat/internal/ws"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

type stores struct {
	channels repository.ChannelRepository
	members  repository.MembershipRepository
	messages repository.MessageRepository
	users    repository.UserRepository
	health   func(context.Context) error
	close    func()
}

func run() error {
	// ---------------------------------------------------------------
	// 1. Load config
	// ---------------------------------------------------------------
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	// ---------------------------------------------------------------
	// 2. Create logger
	// ---------------------------------------------------------------
	logger, err := observ.NewLogger(cfg.Env, cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("create logger: %w", err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// ---------------------------------------------------------------
	// 3. Storage
	// ---------------------------------------------------------------
	st, err := openStores(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer st.close()

	channelRepo := cache.NewChannelCache(st.channels, cfg.ChannelCacheTTL)

	// ---------------------------------------------------------------
	// 4. Moderation and rate limiting
	// ---------------------------------------------------------------
	words, err := loadWords(cfg)
	if err != nil {
		return err
	}
	filter, err := moderation.NewFilter(words)
	if err != nil {
		return fmt.Errorf("build moderation filter: %w", err)
	}
	logger.Info("moderation filter loaded", zap.Int("terms", len(filter.Words())))

	var limiter ratelimit.Limiter = ratelimit.Unlimited{}
	if cfg.RedisURL != "" && cfg.RateLimitMessages > 0 {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("parse redis url: %w", err)
		}
		rdb := redis.NewClient(opts)
		defer rdb.Close()
		limiter = ratelimit.NewRedisLimiter(rdb, cfg.RateLimitMessages, cfg.RateLimitWindow, logger)
		logger.Info("send rate limit enabled",
			zap.Int("messages", cfg.RateLimitMessages),
			zap.Duration("window", cfg.RateLimitWindow),
		)
	}

	// ---------------------------------------------------------------
	// 5. Chat core
	// ---------------------------------------------------------------
	manager := chat.NewManager(
		auth.NewJWTAuthenticator(cfg.JWTSecret, st.users),
		channelRepo,
		st.members,
		chat.ManagerConfig{AuthTimeout: cfg.AuthTimeout, QueueSize: cfg.SendQueueSize},
		logger,
	)
	pipeline := chat.NewPipeline(manager, channelRepo, st.members, st.messages, filter, limiter, logger)
	directory := chat.NewDirectory(channelRepo, st.members, st.messages, manager, logger)
	router := chat.NewRouter(manager, pipeline, logger)

	global, err := directory.EnsureDefaults(ctx, cfg.GlobalChannelName, cfg.SeedRooms)
	if err != nil {
		return fmt.Errorf("provision channels: %w", err)
	}
	logger.Info("channels ready",
		zap.String("global_channel_id", global.ID.String()),
		zap.Strings("rooms", cfg.SeedRooms),
	)

	// ---------------------------------------------------------------
	// 6. HTTP server
	// ---------------------------------------------------------------
	if cfg.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	engine := gin.New()
	engine.Use(gin.Logger(), gin.Recovery())

	// Health check is public so load balancers can reach it.
	engine.GET("/v1/health", func(c *gin.Context) {
		if err := st.health(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"status":   "ok",
			"sessions": manager.SessionCount(),
		})
	})
	engine.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api.RegisterRoutes(engine, cfg.JWTSecret, api.Handlers{
		Channels: api.NewChannelHandler(directory, logger),
		Members:  api.NewMembershipHandler(directory, logger),
		Messages: api.NewMessageHandler(directory, pipeline, logger),
		Users:    api.NewUserHandler(st.users, manager, logger),
		Socket:   ws.NewHandler(manager, router, cfg.PongWait, logger).Serve,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	logger.Info("starting panelchat",
		zap.String("port", cfg.Port),
		zap.String("storage", cfg.StorageDriver),
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		reloadWordsOnHangup(gctx, cfg, filter, logger)
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		// Hijacked websocket connections are not tracked by Shutdown.
		manager.DisconnectAll()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

func openStores(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*stores, error) {
	if cfg.StorageDriver == "memory" {
		logger.Warn("using in-memory storage, data is lost on restart")
		mem := memory.New()
		if err := seedDevUsers(mem, cfg, logger); err != nil {
			return nil, err
		}
		return &stores{
			channels: mem.Channels(),
			members:  mem.Memberships(),
			messages: mem.Messages(),
			users:    mem.Users(),
			health:   func(context.Context) error { return nil },
			close:    func() {},
		}, nil
	}

	database, err := db.New(ctx, cfg.DatabaseURL, logger)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	if err := database.Migrate(ctx); err != nil {
		database.Close()
		return nil, fmt.Errorf("migrate database: %w", err)
	}

	pool := database.Pool()
	return &stores{
		channels: postgres.NewChannelStore(pool),
		members:  postgres.NewMembershipStore(pool),
		messages: postgres.NewMessageStore(pool),
		users:    postgres.NewUserStore(pool),
		health:   database.Health,
		close:    database.Close,
	}, nil
}

// seedDevUsers gives each DEV_USERS name a stable id, so tokens survive
// restarts, and logs a day-long token for it.
func seedDevUsers(mem *memory.DB, cfg *config.Config, logger *zap.Logger) error {
	for _, name := range cfg.DevUsers {
		id := uuid.NewSHA1(uuid.NameSpaceOID, []byte("panelchat-dev:"+name))
		mem.PutUser(id, name)
		token, err := auth.GenerateToken(id, name, cfg.JWTSecret, 24*time.Hour)
		if err != nil {
			return fmt.Errorf("mint dev token for %s: %w", name, err)
		}
		logger.Info("dev user ready",
			zap.String("name", name),
			zap.String("user_id", id.String()),
			zap.String("token", token),
		)
	}
	return nil
}

// loadWords merges BANNED_WORDS with the optional BANNED_WORDS_FILE.
func loadWords(cfg *config.Config) ([]string, error) {
	words := append([]string(nil), cfg.BannedWords...)
	if cfg.BannedWordsFile == "" {
		return words, nil
	}
	f, err := os.Open(cfg.BannedWordsFile)
	if err != nil {
		return nil, fmt.Errorf("open banned words file: %w", err)
	}
	defer f.Close()

	fromFile, err := moderation.ReadWordList(f)
	if err != nil {
		return nil, err
	}
	return append(words, fromFile...), nil
}

// reloadWordsOnHangup swaps in a fresh deny-list on SIGHUP. A bad file
// keeps the current list.
func reloadWordsOnHangup(ctx context.Context, cfg *config.Config, filter *moderation.Filter, logger *zap.Logger) {
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)

	for {
		select {
		case <-ctx.Done():
			return
		case <-hup:
			words, err := loadWords(cfg)
			if err == nil {
				err = filter.Replace(words)
			}
			if err != nil {
				logger.Error("failed to reload banned words", zap.Error(err))
				continue
			}
			logger.Info("banned words reloaded", zap.Int("terms", len(filter.Words())))
		}
	}
}
