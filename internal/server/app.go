// Package server initializes and runs the application server. It opens the
// database and runs migrations, connects the conversation cache, wires the
// services, and starts the HTTP server with graceful shutdown.
package server

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/redis/go-redis/v9"

	"github.com/akimychev/converse/internal/logging"
	"github.com/akimychev/converse/internal/server/cache"
	"github.com/akimychev/converse/internal/server/config"
	"github.com/akimychev/converse/internal/server/extractor"
	"github.com/akimychev/converse/internal/server/httpapi"
	"github.com/akimychev/converse/internal/server/repositories/repomanager"
	"github.com/akimychev/converse/internal/server/responder"
	"github.com/akimychev/converse/internal/server/services"
)

type App struct {
	config *config.Config
	logger logging.Logger
	db     *sql.DB
	server *httpapi.Server
}

func NewApp(ctx context.Context, cfg *config.Config) (*App, error) {

	logger := logging.NewJSONLogger(os.Stdout)

	db, err := sql.Open("pgx", cfg.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("db open error: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("db ping error: %w", err)
	}

	rm := repomanager.NewPostgresRepositoryManager()
	if err := rm.RunMigrations(ctx, db); err != nil {
		return nil, fmt.Errorf("db migration error: %w", err)
	}

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	conversationCache := cache.NewRedisCache(redisClient, cfg.ConversationTTL)

	respond := responder.NewHTTPResponder(cfg.ModelEndpoint, cfg.ModelAPIKey, cfg.ModelName)
	extract := extractor.NewHTTPExtractor(cfg.ExtractorEndpoint, cfg.ExtractorAPIKey)
	uploads := services.NewUploadService(cfg)

	userService := services.NewUserService(db, rm, conversationCache, logger, cfg)
	sessionService := services.NewSessionService(db, rm, conversationCache, logger)
	chatService := services.NewChatService(db, rm, conversationCache, respond, extract, uploads, logger, cfg)

	server := httpapi.NewServer(cfg, logger, userService, sessionService, chatService)

	return &App{config: cfg, logger: logger, db: db, server: server}, nil
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

func (app *App) Run(ctx context.Context) {

	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "Starting app...")

	app.initSignalHandler(cancelFunc)

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := app.server.Run(ctx); err != nil {
			app.logger.Error(ctx, err.Error())
			cancelFunc()
		}
	}()

	wg.Wait()

	if err := app.db.Close(); err != nil {
		app.logger.Error(ctx, err.Error())
	}
}
