// Package main API Server 入口
package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"user-admin/internal/api"
	"user-admin/internal/apiserver/account"
	"user-admin/internal/apiserver/auth"
	"user-admin/internal/apiserver/user"
	"user-admin/internal/config"
	"user-admin/internal/shared/cache"
	cacheredis "user-admin/internal/shared/cache/redis"
	"user-admin/internal/shared/objstore"
	"user-admin/internal/shared/storage/dbutil"
	"user-admin/internal/shared/storage/driver/postgres"
	"user-admin/internal/shared/storage/driver/sqlite"
	"user-admin/internal/shared/storage/mongostore"
	"user-admin/internal/shared/storage/repository"
	"user-admin/pkg/logging"
)

func main() {
	// 加载配置（自动加载 .env，根据 APP_ENV 切换数据库和 Redis）
	cfg := config.Load()

	log.Printf("Starting API Server... [env=%s]", cfg.Env)
	log.Printf("Config: %s", cfg.String())

	logger := logging.New(logging.Config{
		Level:     cfg.Log.Level,
		Format:    cfg.Log.Format,
		Component: "api-server",
	})

	// 初始化身份库（关系库：权威数据源）
	db, dialect, err := openIdentityDB(cfg)
	if err != nil {
		log.Fatalf("Failed to connect to identity database: %v", err)
	}
	identities := repository.NewStore(db, dialect)
	defer identities.Close()
	log.Printf("Connected to identity database [driver=%s]", cfg.DatabaseDriver)

	// 初始化资料库（MongoDB：尽力而为的补充数据源）
	profiles, err := mongostore.NewStore(cfg.MongoURI, cfg.MongoDatabase)
	if err != nil {
		log.Fatalf("Failed to connect to MongoDB: %v", err)
	}
	defer profiles.Close()
	log.Println("Connected to MongoDB")

	// 初始化会话缓存（Redis 未启用时退化为进程内缓存）
	var sessions cache.Cache
	if cfg.RedisEnabled {
		store, err := cacheredis.NewStoreFromURL(cfg.RedisURL)
		if err != nil {
			log.Fatalf("Failed to connect to Redis: %v", err)
		}
		sessions = store
		log.Println("Connected to Redis")
	} else {
		sessions = cache.NewMemoryCache()
		log.Println("Redis disabled, using in-memory session cache")
	}
	defer sessions.Close()

	// 服务层
	users := user.NewService(identities, profiles, logger)
	accounts := account.NewService(identities, profiles, logger).
		WithSessionCache(sessions)

	// 启动引导管理员（仅当配置了 ADMIN_EMAIL/ADMIN_PASSWORD）
	if cfg.AdminEmail != "" && cfg.AdminPassword != "" {
		if err := auth.EnsureAdminUser(accounts, identities, cfg.AdminEmail, cfg.AdminPassword); err != nil {
			log.Fatalf("Failed to ensure admin user: %v", err)
		}
	}

	// HTTP 层
	h := api.NewHandler(users, accounts, logger)

	// 对象存储（头像），可选
	if cfg.MinIO.Enabled {
		objects, err := objstore.NewClient(cfg.MinIO)
		if err != nil {
			log.Fatalf("Failed to connect to MinIO: %v", err)
		}
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		if err := objects.EnsureBucket(ctx); err != nil {
			cancel()
			log.Fatalf("Failed to ensure MinIO bucket: %v", err)
		}
		cancel()
		h.SetObjectStore(objects)
		log.Println("Connected to MinIO")
	}

	authCfg := auth.Config{
		JWTSecret:       cfg.Auth.JWTSecret,
		AccessTokenTTL:  cfg.Auth.AccessTokenTTL,
		RefreshTokenTTL: cfg.Auth.RefreshTokenTTL,
	}
	if !authCfg.Enabled() {
		log.Println("WARNING: JWT_SECRET not set, authentication disabled")
	}
	authHandler := auth.NewHandler(accounts, users, identities, sessions, authCfg)

	mux := http.NewServeMux()
	h.RegisterRoutes(mux)
	authHandler.RegisterRoutes(mux)
	mux.Handle("GET /metrics", api.MetricsHandler())

	handler := h.GetMetrics().MetricsMiddleware(auth.Middleware(authCfg)(mux))

	srv := &http.Server{
		Addr:         ":" + cfg.APIPort,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// 优雅关闭
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		log.Println("Shutting down server...")
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			log.Printf("Server shutdown error: %v", err)
		}
	}()

	log.Printf("API Server listening on :%s", cfg.APIPort)
	if err := srv.ListenAndServe(); err != http.ErrServerClosed {
		log.Fatalf("Server error: %v", err)
	}

	fmt.Println("Server stopped")
}

// openIdentityDB 按配置的驱动打开身份库连接
// SQLite 在打开后自动建表，PostgreSQL 依赖外部迁移
func openIdentityDB(cfg *config.Config) (*sql.DB, dbutil.Dialect, error) {
	switch cfg.DatabaseDriver {
	case "sqlite":
		dsn := "file:" + cfg.DatabasePath + "?cache=shared&mode=rwc"
		db, err := sqlite.Open(dsn)
		if err != nil {
			return nil, nil, err
		}
		dialect := sqlite.NewDialect()
		if err := dialect.AutoMigrate(db); err != nil {
			return nil, nil, fmt.Errorf("sqlite migration: %w", err)
		}
		return db, dialect, nil
	default:
		db, err := postgres.Open(cfg.DatabaseURL)
		if err != nil {
			return nil, nil, err
		}
		return db, postgres.NewDialect(), nil
	}
}
