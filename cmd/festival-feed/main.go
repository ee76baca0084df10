package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/chorisonobeer/Sado-Matsuri-CalendarMap/internal/api"
	"github.com/chorisonobeer/Sado-Matsuri-CalendarMap/internal/config"
	"github.com/chorisonobeer/Sado-Matsuri-CalendarMap/internal/csvfeed"
	"github.com/chorisonobeer/Sado-Matsuri-CalendarMap/internal/feedclient"
	"github.com/chorisonobeer/Sado-Matsuri-CalendarMap/internal/listing"
	"github.com/chorisonobeer/Sado-Matsuri-CalendarMap/internal/logging"
	"github.com/chorisonobeer/Sado-Matsuri-CalendarMap/internal/service"
	"github.com/chorisonobeer/Sado-Matsuri-CalendarMap/internal/store"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("config")
	}

	logger := logging.New(logging.Config{Level: cfg.Logging.Level, Format: cfg.Logging.Format})
	logging.SetGlobal(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var sessions store.SessionStore
	if cfg.UseRedis() {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer rdb.Close()
		rs := store.NewRedisStore(rdb, cfg.Redis.SessionTTL)
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		if err := rs.Ping(pingCtx); err != nil {
			logger.Warn().Err(err).Str("addr", cfg.Redis.Addr).Msg("redis ping failed")
		}
		cancel()
		sessions = rs
	} else {
		logger.Info().Msg("REDIS_ADDR not set, keeping sessions in memory")
		sessions = store.NewMemoryStore()
	}

	var aliases []csvfeed.Alias
	if len(cfg.Feed.Aliases) > 0 {
		aliases, err = csvfeed.ParseAliases(cfg.Feed.Aliases)
		if err != nil {
			log.Fatal().Err(err).Msg("FEED_ALIASES")
		}
		aliases = append(csvfeed.DefaultFestivalAliases[:len(csvfeed.DefaultFestivalAliases):len(csvfeed.DefaultFestivalAliases)], aliases...)
	}

	hc := &http.Client{Timeout: cfg.Feed.FetchTimeout}
	clientOpts := []feedclient.Option{
		feedclient.WithRetries(cfg.Feed.Retries),
		feedclient.WithFetchTimeout(cfg.Feed.FetchTimeout),
		feedclient.WithLogger(logger),
	}
	festivalClient := feedclient.NewClient(cfg.Feed.URL, hc, clientOpts...)
	feeds := service.Feeds{
		Festivals: festivalClient,
		Schema:    csvfeed.NewFestivalSchema(cfg.Feed.RequiredFields, aliases),
	}
	eventsURL := ""
	if cfg.Feed.EventsURL != "" {
		eventClient := feedclient.NewClient(cfg.Feed.EventsURL, hc, clientOpts...)
		feeds.Events = eventClient
		eventsURL = eventClient.URL()
	}

	mode, err := listing.ParseMode(cfg.Listing.OrderBy, listing.ModeChronological)
	if err != nil {
		log.Fatal().Err(err).Msg("ORDER_BY")
	}

	svc, err := service.New(feeds, sessions, logger, service.Options{
		Mode:                  mode,
		Location:              cfg.Location(),
		ScaleOrder:            cfg.Listing.ScaleOrder,
		PageInitial:           cfg.Listing.PageInitial,
		PageIncrement:         cfg.Listing.PageIncrement,
		ChunkSize:             cfg.Geo.DistanceChunkSize,
		PositionCacheDuration: cfg.Geo.PositionCacheDuration,
		PositionTimeout:       cfg.Geo.PositionTimeout,
		FetchTimeout:          cfg.Feed.FetchTimeout,
		FuzzyDistance:         cfg.Listing.FuzzyDistance,
		SessionIdleTimeout:    cfg.Redis.SessionTTL,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("service")
	}

	if cfg.Logging.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	handler := api.NewHandler(svc, logger, cfg.Location(), mode)
	router := api.NewRouter(handler, logger)

	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info().
			Str("port", cfg.Server.Port).
			Str("feed_url", festivalClient.URL()).
			Str("events_feed_url", eventsURL).
			Bool("redis", cfg.UseRedis()).
			Str("order_by", string(mode)).
			Msg("listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	<-ctx.Done()
	logger.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("server shutdown")
	}
	svc.Close()
}
