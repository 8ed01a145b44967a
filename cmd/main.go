package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	httpapi "github.com/immxrtalbeast/meetroom/internal/api/http"
	"github.com/immxrtalbeast/meetroom/internal/auth"
	"github.com/immxrtalbeast/meetroom/internal/config"
	"github.com/immxrtalbeast/meetroom/internal/relay"
	"github.com/immxrtalbeast/meetroom/internal/repository"
	"github.com/immxrtalbeast/meetroom/internal/repository/model"
	"github.com/immxrtalbeast/meetroom/internal/service"
	"github.com/immxrtalbeast/meetroom/lib/logger/sl"
	"github.com/immxrtalbeast/meetroom/lib/logger/slogpretty"
	"github.com/joho/godotenv"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

const shutdownTimeout = 10 * time.Second

func main() {
	_ = godotenv.Load(".env")

	cfg := config.MustLoad()
	log := setupLogger(cfg.Env)

	roomRepo, userRepo, closeStorage, err := setupStorage(cfg.Storage)
	if err != nil {
		log.Error("failed to set up storage", slog.String("driver", cfg.Storage.Driver), sl.Err(err))
		os.Exit(1)
	}
	defer closeStorage()

	hub := relay.NewHub(cfg.Relay.SubscriberBuffer, log)
	defer hub.Close()

	sinks := []relay.Sink{{Name: "hub", Publisher: hub}}
	if cfg.Relay.Pusher.Enabled {
		sinks = append(sinks, relay.Sink{
			Name: "pusher",
			Publisher: relay.NewPusherPublisher(relay.PusherOptions{
				AppID:   cfg.Relay.Pusher.AppID,
				Key:     cfg.Relay.Pusher.Key,
				Secret:  cfg.Relay.Pusher.Secret,
				Cluster: cfg.Relay.Pusher.Cluster,
			}),
		})
		log.Info("pusher relay enabled", slog.String("cluster", cfg.Relay.Pusher.Cluster))
	}
	publisher := relay.NewFanout(log, sinks...)

	registry := service.NewRegistry(roomRepo, log)
	if err := registry.SyncMetrics(context.Background()); err != nil {
		log.Warn("failed to sync room metrics", sl.Err(err))
	}

	tokens := auth.NewJWTIssuer(jwtSecret(cfg.Auth.JWTSecret, log), cfg.Auth.TokenTTL)
	roomService := service.NewRoomService(registry, publisher, log)
	userService := service.NewUserService(userRepo, tokens, log)

	upgrader := httpapi.NewUpgrader(cfg.HTTP.AllowOrigins)
	router := httpapi.SetupRouter(httpapi.RouterConfig{
		AllowOrigins: cfg.HTTP.AllowOrigins,
		RequireAuth:  cfg.HTTP.RequireAuth,
	}, tokens, httpapi.Controllers{
		Rooms:     httpapi.NewRoomController(roomService, log),
		Users:     httpapi.NewUserController(userService, log),
		Signaling: httpapi.NewSignalingController(roomService, hub, upgrader, log),
		Sockets:   httpapi.NewSocketController(roomService, hub, upgrader, log),
	})

	srv := &http.Server{
		Addr:              cfg.HTTP.Address,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		log.Info("starting application", slog.String("addr", cfg.HTTP.Address), slog.String("storage", cfg.Storage.Driver))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("http server stopped", sl.Err(err))
			stop()
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("graceful shutdown failed", sl.Err(err))
	}
}

const (
	envLocal = "local"
	envDev   = "dev"
	envProd  = "prod"
)

func setupLogger(env string) *slog.Logger {
	var log *slog.Logger

	switch env {
	case envLocal:
		log = setupPrettySlog()
	case envDev:
		log = slog.New(
			slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}),
		)
	case envProd:
		log = slog.New(
			slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}),
		)
	default:
		log = setupPrettySlog()
	}

	return log
}

func setupPrettySlog() *slog.Logger {
	opts := slogpretty.PrettyHandlerOptions{
		SlogOpts: &slog.HandlerOptions{
			Level: slog.LevelDebug,
		},
	}

	handler := opts.NewPrettyHandler(os.Stdout)

	return slog.New(handler)
}

func setupStorage(cfg config.StorageConfig) (repository.RoomRepository, repository.UserRepository, func(), error) {
	switch cfg.Driver {
	case config.StorageMemory:
		return repository.NewInMemoryRoomRepository(), repository.NewInMemoryUserRepository(), func() {}, nil
	case config.StoragePostgres:
		db, err := connectDatabase(cfg.DSN)
		if err != nil {
			return nil, nil, nil, err
		}
		closeDB := func() {
			if sqlDB, err := db.DB(); err == nil {
				_ = sqlDB.Close()
			}
		}
		return repository.NewPostgresRoomRepository(db), repository.NewPostgresUserRepository(db), closeDB, nil
	default:
		return nil, nil, nil, errors.New("unknown storage driver " + cfg.Driver)
	}
}

func connectDatabase(dsn string) (*gorm.DB, error) {
	if dsn == "" {
		return nil, errors.New("database dsn is empty")
	}

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{TranslateError: true})
	if err != nil {
		return nil, err
	}

	if err := db.AutoMigrate(&model.Room{}, &model.RoomMember{}, &model.User{}); err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}

	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetMaxOpenConns(25)
	sqlDB.SetConnMaxLifetime(30 * time.Minute)

	return db, nil
}

// jwtSecret falls back to a per-process secret, which invalidates every
// token on restart.
func jwtSecret(configured string, log *slog.Logger) string {
	if configured != "" {
		return configured
	}
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		panic("cannot generate jwt secret: " + err.Error())
	}
	log.Warn("JWT_SECRET is not set, using a random secret for this process")
	return hex.EncodeToString(buf)
}
