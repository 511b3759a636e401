package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"strings"
	"time"

	"go_maintenance/api/v1"
	"go_maintenance/internal/auth"
	"go_maintenance/internal/cache"
	"go_maintenance/internal/config"
	"go_maintenance/internal/db"
	"go_maintenance/internal/logx"
	"go_maintenance/internal/maintenance/classifier"
	"go_maintenance/internal/maintenance/gate"
	"go_maintenance/internal/maintenance/lifecycle"
	"go_maintenance/internal/maintenance/status"
	"go_maintenance/internal/maintenance/store"
	"go_maintenance/internal/maintenance/wincache"
	"go_maintenance/internal/ws"

	"github.com/gin-gonic/gin"
)

func loadConfig() (*config.Config, error) {
	if path := os.Getenv("CONFIG_FILE"); path != "" {
		return config.LoadFromINI(path)
	}
	return config.Load()
}

func main() {
	// 1. Load configuration
	cfg, err := loadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if err := cfg.RequireJWT(); err != nil {
		log.Fatalf("Invalid config: %v", err)
	}
	logger := logx.Setup(cfg.Log.Level, cfg.Log.Format)
	auth.InitJWT(cfg.JWT.Secret)
	log.Println("✓ Configuration loaded")

	// 2. Initialize MySQL
	if err := db.InitMySQL(cfg.MySQL.DSN); err != nil {
		log.Fatalf("Failed to initialize MySQL: %v", err)
	}
	defer db.Close()
	if cfg.Migrate {
		if err := db.Migrate(db.GetDB()); err != nil {
			log.Fatalf("Failed to migrate: %v", err)
		}
		log.Println("✓ Schema migrated")
	}

	// 3. Initialize Redis
	if err := cache.InitRedis(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB); err != nil {
		log.Fatalf("Failed to initialize Redis: %v", err)
	}
	defer cache.Close()

	// 4. Active-window cache
	windows := store.New(db.GetDB())
	var backend wincache.Backend = wincache.NewMemoryBackend()
	if cache.Enabled() {
		backend = wincache.NewRedisBackend(cache.Client, cfg.Maintenance.CacheKey)
		log.Println("✓ Window cache backed by Redis")
	} else {
		log.Println("✓ Window cache kept in process")
	}
	windowCache := wincache.New(&wincache.Config{
		Backend: backend,
		Loader:  windows,
		TTL:     time.Duration(cfg.Maintenance.CacheTTLSec) * time.Second,
		Logger:  logger,
	})

	resolver, err := classifier.NewResolver(cfg.Maintenance.Backend, windowCache, windows, classifier.Options{
		IgnorePatterns:         cfg.Maintenance.IgnoreURLPatterns,
		AdminPrefix:            cfg.Maintenance.AdminURL,
		StatusPath:             cfg.Maintenance.StatusURL,
		ReadOnlyAllowedMethods: cfg.Maintenance.ReadOnlyAllowedMethods,
	}, logger)
	if err != nil {
		log.Fatalf("Failed to build request classifier: %v", err)
	}

	var statusSource status.Source = windowCache
	if cfg.Maintenance.Backend == classifier.BackendDirect {
		statusSource = classifier.NewStoreSource(windows, logger)
	}
	statusHandler := status.NewHandler(statusSource)

	// 5. Socket.IO push of lifecycle changes
	wsServer := ws.NewServer(func(ctx context.Context) interface{} {
		return statusHandler.Build(ctx)
	}, logger)
	wsServer.Start()
	defer wsServer.Close()

	engine := lifecycle.NewEngine(&lifecycle.Config{
		Store:       windows,
		Invalidator: windowCache,
		Notifier:    ws.NewPublisher(wsServer),
		Logger:      logger,
	})

	// 6. Initialize Gin router
	renderer := gate.NewTemplateRenderer(cfg.Maintenance.Template)
	if err := renderer.Err(); err != nil {
		logger.WithError(err).Warn("maintenance template unavailable, using inline page")
	}

	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Logger(), gin.Recovery())
	r.Use(gate.Middleware(gate.Options{
		Resolver: resolver,
		DB:       db.GetDB(),
		Renderer: renderer,
		Logger:   logger,
	}))

	r.GET("/healthz", func(c *gin.Context) {
		c.String(http.StatusOK, "ok")
	})
	statusURL := "/" + strings.Trim(cfg.Maintenance.StatusURL, "/")
	r.GET(statusURL, statusHandler.Get)
	r.GET(statusURL+"/", statusHandler.Get)

	v1.SetupRouter(r, engine, cfg)

	socket := gin.WrapH(wsServer.Handler())
	r.GET("/socket.io/*any", socket)
	r.POST("/socket.io/*any", socket)

	log.Printf("✓ Server starting on %s", cfg.HTTPAddr)

	// Start server
	if err := r.Run(cfg.HTTPAddr); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}
