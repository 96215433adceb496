// server/cmd/api/main.go
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

	"relief-dispatch-api-server/config"
	"relief-dispatch-api-server/internal/api/handlers"
	"relief-dispatch-api-server/internal/api/routes"
	"relief-dispatch-api-server/internal/auth"
	"relief-dispatch-api-server/internal/database"
	"relief-dispatch-api-server/internal/dispatch"
	"relief-dispatch-api-server/internal/geo"
	"relief-dispatch-api-server/internal/location"
	"relief-dispatch-api-server/internal/logger"
	"relief-dispatch-api-server/internal/models"
	"relief-dispatch-api-server/internal/resolver"
	"relief-dispatch-api-server/internal/routing"
	"relief-dispatch-api-server/internal/s3"
	"relief-dispatch-api-server/internal/socket"
	"relief-dispatch-api-server/internal/store"
	"relief-dispatch-api-server/internal/tracking"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
)

// Centres are reloaded from the store so admin edits made on another
// replica reach this one's geo index.
const centreReloadInterval = time.Minute

func main() {
	if err := run(); err != nil {
		logger.L().Error("server_exit", "err", err)
		os.Exit(1)
	}
}

func run() error {
	// 1. Load configuration (.env first, then config.yaml + env)
	_ = godotenv.Load()
	cfg, err := config.LoadConfig("./config")
	if err != nil {
		return fmt.Errorf("could not load config: %w", err)
	}
	logger.Setup(cfg.Log.Level, cfg.Log.Format)
	if cfg.Log.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 2. Durable store
	st, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer st.Close(context.Background())

	if err := database.SeedAdmin(ctx, st, cfg.Seed); err != nil {
		return fmt.Errorf("seed admin: %w", err)
	}
	if _, err := database.SeedCentres(ctx, st, cfg.Seed.CentresFile); err != nil {
		return fmt.Errorf("seed centres: %w", err)
	}

	// 3. Geo index, routing and resolver
	centres, err := st.ListCentres(ctx)
	if err != nil {
		return fmt.Errorf("load centres: %w", err)
	}
	index := geo.NewIndex(centres...)
	go reloadCentres(ctx, st, index)

	gateway := routing.NewOSRMClient(cfg.Routing.OSRMBaseURL, cfg.Routing.Profile, cfg.Routing.TimeoutDuration(), nil)
	res := resolver.New(index, gateway, cfg.Routing.Candidates)

	// 4. Location mailbox
	box, err := openMailbox(ctx, cfg)
	if err != nil {
		return err
	}

	// 5. Core services
	hub := socket.NewHub()
	channel := location.NewChannel(st, box)
	coordinator := dispatch.New(st, res, models.NewSupplyCatalog(cfg.Supplies), channel, hub)
	composer := tracking.NewComposer(st, channel, res, index)
	issuer := auth.NewIssuer(cfg.JWT.Secret, cfg.Device.TokenSecret, cfg.JWT.TTL())

	var uploader handlers.PhotoUploader
	if s3.Enabled(cfg.S3) {
		u, err := s3.NewUploader(ctx, cfg.S3)
		if err != nil {
			return err
		}
		uploader = u
	} else {
		logger.L().Warn("s3_disabled", "reason", "bucket or region not configured")
	}

	router := routes.SetupRouter(routes.Deps{
		Config:      cfg,
		Store:       st,
		Index:       index,
		Resolver:    res,
		Coordinator: coordinator,
		Channel:     channel,
		Composer:    composer,
		Issuer:      issuer,
		Hub:         hub,
		Uploader:    uploader,
	})

	// 6. Start server
	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		logger.L().Info("server_start", "port", cfg.Server.Port, "store", cfg.Store.Backend, "location", cfg.Location.Backend)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	logger.L().Info("server_shutdown")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func openStore(ctx context.Context, cfg config.Config) (store.Store, error) {
	if cfg.Store.Backend != "mongo" {
		logger.L().Warn("store_memory", "reason", "data is lost on restart")
		return store.NewMemory(), nil
	}
	db, err := database.Connect(ctx, cfg.Mongo)
	if err != nil {
		return nil, err
	}
	m := store.NewMongo(db)
	if err := m.EnsureIndexes(ctx); err != nil {
		return nil, err
	}
	return m, nil
}

func openMailbox(ctx context.Context, cfg config.Config) (location.Mailbox, error) {
	if cfg.Location.Backend != "redis" {
		return location.NewMemoryMailbox(), nil
	}
	rdb := location.OpenRedis(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if rdb == nil {
		return nil, errors.New("location.backend is redis but redis.addr is empty")
	}
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return location.NewRedisMailbox(rdb, cfg.Location.TTLDuration()), nil
}

func reloadCentres(ctx context.Context, centres store.CentreStore, index *geo.Index) {
	ticker := time.NewTicker(centreReloadInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			list, err := centres.ListCentres(ctx)
			if err != nil {
				logger.L().Warn("centre_reload_failed", "err", err)
				continue
			}
			index.Replace(list)
		}
	}
}
