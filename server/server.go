package server

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"MuseFM/cache"
	"MuseFM/config"
	"MuseFM/core/auth"
	"MuseFM/db"
	"MuseFM/logger"
	"MuseFM/repository"
	"MuseFM/storage"

	"github.com/gorilla/mux"
)

// Start initializes and starts the HTTP server.
func Start() {
	cfg := config.Load()

	logger.InitLogger(logger.Config{
		Level:      logger.InfoLevel,
		OutputPath: os.Getenv("LOG_FILE"),
	})

	auth.SetSecret(cfg.JWTSecret)

	server := &http.Server{
		Addr:         cfg.ListenAddr,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	if err := storage.InitMinio(cfg); err != nil {
		logger.Fatal("failed to initialize MinIO", logger.ErrorField(err))
	}

	if err := db.ConnectDB(cfg); err != nil {
		logger.Fatal("failed to connect to database", logger.ErrorField(err))
	}
	defer db.CloseDB()

	if err := db.ConnectGormDB(cfg); err != nil {
		logger.Fatal("failed to connect to database via GORM", logger.ErrorField(err))
	}
	defer db.CloseGormDB()

	if err := db.MigrateSchema(); err != nil {
		logger.Fatal("failed to migrate database schema", logger.ErrorField(err))
	}

	if err := db.ConnectRedis(cfg); err != nil {
		logger.Fatal("failed to connect to Redis", logger.ErrorField(err))
	}
	defer db.CloseRedis()
	logger.Info("connected to Redis")

	trackRepo := repository.NewMySQLTrackRepository()
	recentRepo := repository.NewMySQLRecentPlayRepository()
	userRepo := repository.NewMySQLUserRepository()
	objectStore := storage.NewMinioObjectStore(storage.GetMinioClient(), cfg.MinioBucket)
	resolver := storage.NewResolver(objectStore)
	snapshots := cache.NewPlayerStateCache(db.RedisClient, cfg.SnapshotTTL)

	apiHandler := NewAPIHandler(trackRepo, recentRepo, userRepo, resolver, objectStore, snapshots, cfg)

	router := mux.NewRouter()

	// CORS. Content-Length and Content-Range must be exposed or ranged
	// playback breaks in browsers.
	router.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", "*")
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS, HEAD")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, Range")
			w.Header().Set("Access-Control-Expose-Headers", "Content-Length, Content-Range")
			w.Header().Set("Access-Control-Max-Age", "86400")

			if r.Method == "OPTIONS" {
				w.WriteHeader(http.StatusOK)
				return
			}

			next.ServeHTTP(w, r)
		})
	})

	// Accounts
	router.HandleFunc("/api/auth/register", apiHandler.RegisterHandler).Methods(http.MethodPost)
	router.HandleFunc("/api/auth/login", apiHandler.LoginHandler).Methods(http.MethodPost)

	// Catalog
	router.HandleFunc("/api/songs", apiHandler.GetTracksHandler).Methods(http.MethodGet)
	router.HandleFunc("/api/songs/{track_id}", apiHandler.GetTrackHandler).Methods(http.MethodGet)
	router.HandleFunc("/api/search", apiHandler.SearchTracksHandler).Methods(http.MethodGet)

	// Streaming gateway
	router.HandleFunc("/api/songs/{track_id}/stream", apiHandler.StreamTrackHandler).Methods(http.MethodGet, http.MethodHead)
	router.HandleFunc("/api/songs/{track_id}/download", apiHandler.DownloadTrackHandler).Methods(http.MethodGet)

	// Recently played
	router.HandleFunc("/api/recently-played", apiHandler.AuthMiddleware(apiHandler.GetRecentPlaysHandler)).Methods(http.MethodGet)
	router.HandleFunc("/api/recently-played/{track_id}", apiHandler.AuthMiddleware(apiHandler.RecordRecentPlayHandler)).Methods(http.MethodPost)

	// Playback session transport
	router.HandleFunc("/ws/player", apiHandler.PlayerSocketHandler)

	server.Handler = router

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	go func() {
		logger.Info("server starting", logger.String("addr", cfg.ListenAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("failed to start server", logger.ErrorField(err))
		}
	}()

	<-stop
	logger.Info("shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Fatal("server forced to shutdown", logger.ErrorField(err))
	}

	logger.Info("server stopped")
}
