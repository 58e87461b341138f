package app

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"github.com/flagops/flagservice/internal/config"
	"github.com/flagops/flagservice/internal/db"
	"github.com/flagops/flagservice/internal/evalcache"
	"github.com/flagops/flagservice/internal/events"
	"github.com/flagops/flagservice/internal/flags"
	adminapi "github.com/flagops/flagservice/internal/http/api/admin"
	publicapi "github.com/flagops/flagservice/internal/http/api/public"
	"github.com/flagops/flagservice/internal/rollout"
	"github.com/flagops/flagservice/internal/scheduler"
	"github.com/flagops/flagservice/internal/store"
)

// Migrate opens the database and runs migrations.
func Migrate(ctx context.Context, cfg config.AppConfig) error {
	configPath := config.ResolveConfigPath(cfg.ConfigPath)
	dsn, err := config.LoadDatabaseDSN(configPath)
	if err != nil {
		return err
	}
	conn, err := db.Open(dsn)
	if err != nil {
		return err
	}
	return db.Migrate(conn, config.LoadSeedSampleData(configPath))
}

// RunServer boots the flag service with database-backed components.
func RunServer(ctx context.Context, cfg config.AppConfig, addrOverride string) error {
	configPath := config.ResolveConfigPath(cfg.ConfigPath)
	dsn, err := config.LoadDatabaseDSN(configPath)
	if err != nil {
		return err
	}
	conn, err := db.Open(dsn)
	if err != nil {
		return err
	}
	if errMigrate := db.Migrate(conn, config.LoadSeedSampleData(configPath)); errMigrate != nil {
		return errMigrate
	}

	jwtCfg, errJWT := config.LoadJWTConfig(configPath)
	if errJWT != nil {
		log.WithError(errJWT).Warn("jwt secret not configured; admin login is unavailable")
	}
	serverCfg := config.LoadServerConfig(configPath)
	schedCfg := config.LoadSchedulerConfig(configPath)
	redisCfg := config.LoadRedisConfig(configPath)
	cacheCfg := config.LoadCacheConfig(configPath)

	if errBootstrap := BootstrapAdmin(conn, config.LoadAdminBootstrap(configPath)); errBootstrap != nil {
		return errBootstrap
	}

	flagStore := store.NewGormFlagStore(conn)
	evaluator := rollout.NewEvaluator(flagStore)

	cache := evalcache.NewManager(evalcache.Options{
		TTL:           cacheCfg.TTL,
		RedisAddr:     redisCfg.Addr,
		RedisPassword: redisCfg.Password,
		RedisDB:       redisCfg.DB,
		RedisPrefix:   redisCfg.Prefix,
	}, nil, nil)

	var publisher events.Publisher = events.NewLogPublisher()
	if strings.TrimSpace(redisCfg.Addr) != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     redisCfg.Addr,
			Password: redisCfg.Password,
			DB:       redisCfg.DB,
		})
		publisher = events.NewRedisPublisher(client, redisCfg.Channel)
	}

	service := flags.NewService(flagStore, cache, publisher)
	sched := scheduler.New(flagStore, cache, publisher).WithInterval(schedCfg.TickInterval)
	sched.Start(ctx)

	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(requestLogger())

	publicapi.RegisterPublicRoutes(engine, conn, evaluator, cache)
	adminapi.RegisterAdminRoutes(engine, conn, jwtCfg, service, sched, cache)

	addr := serverCfg.Addr
	if strings.TrimSpace(addrOverride) != "" {
		addr = strings.TrimSpace(addrOverride)
	}

	srv := &http.Server{
		Addr:    addr,
		Handler: engine,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if errShutdown := srv.Shutdown(shutdownCtx); errShutdown != nil {
			log.Errorf("server shutdown error: %v", errShutdown)
		}
	}()

	log.Infof("starting flag service on %s with config=%s", addr, configPath)
	if errListen := srv.ListenAndServe(); errListen != nil && errListen != http.ErrServerClosed {
		return errListen
	}
	return nil
}

// requestLogger logs one line per request after completion.
func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.WithFields(log.Fields{
			"method":  c.Request.Method,
			"path":    c.Request.URL.Path,
			"status":  c.Writer.Status(),
			"latency": time.Since(start).String(),
		}).Debug("request")
	}
}
