package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/altonen7/dexstream/internal/config"
	"github.com/altonen7/dexstream/internal/feed"
	"github.com/altonen7/dexstream/internal/registry"
	"github.com/altonen7/dexstream/internal/server"
	"github.com/altonen7/dexstream/internal/worker"
	"github.com/altonen7/dexstream/pkg/logger"
)

func main() {
	configPath := flag.String("config", "", "path to config.yaml")
	flag.Parse()

	// .env is optional; real deployments pass the environment directly.
	_ = godotenv.Load()

	cfg, err := config.Load(*configPath)
	if err != nil {
		panic("cannot start without valid configuration: " + err.Error())
	}

	log, err := logger.New(cfg.LogLevel)
	if err != nil {
		panic("cannot build logger: " + err.Error())
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	reg := registry.New(cfg.RegistryMarkets())
	log.Info("market registry loaded", zap.Int("markets", reg.Len()))

	var loader registry.Loader
	if cfg.Metadata.URL != "" {
		loader = registry.NewHTTPLoader(cfg.Metadata.URL, cfg.Metadata.Timeout)
	} else {
		loader = registry.NewStaticLoader(reg)
	}

	broadcaster := feed.NewBroadcaster()
	share := worker.NewMarketsShare()

	workers := make([]*worker.Worker, cfg.Workers)
	for i := range workers {
		workers[i] = worker.New(worker.Config{
			ID:                i,
			Registry:          reg,
			Loader:            loader,
			Events:            broadcaster.Subscribe(cfg.Feed.Buffer),
			Markets:           share,
			Logger:            log,
			RateLimit:         cfg.RateLimit.Limit,
			RateLimitInterval: cfg.RateLimit.Interval,
			TradeCapacity:     cfg.TradeCapacity,
			MaxMarkets:        cfg.MaxMarkets,
			SendBuffer:        cfg.SendBuffer,
			IdleTimeout:       cfg.IdleTimeout,
		})
		go workers[i].Run(ctx)
	}
	log.Info("distribution workers started", zap.Int("replicas", cfg.Workers))

	if src := buildSource(cfg, log); src != nil {
		go runSource(ctx, src, broadcaster, cfg.Feed.RetryBackoff, log)
	} else {
		log.Warn("no feed backend configured; serving cached/static data only")
	}

	srv := server.New(cfg.HTTP.Addr, log, workers)
	log.Info("listening", zap.String("addr", cfg.HTTP.Addr))
	if err := srv.Run(ctx); err != nil {
		log.Fatal("http server failed", zap.Error(err))
	}
	log.Info("shutdown complete")
}

func buildSource(cfg *config.Config, log *zap.Logger) feed.Source {
	switch cfg.Feed.Backend {
	case "redis":
		return feed.NewRedisSource(cfg.Feed.RedisAddr, cfg.Feed.RedisChannel, log)
	case "kafka":
		return feed.NewKafkaSource(cfg.Feed.KafkaBrokers, cfg.Feed.KafkaTopic, cfg.Feed.KafkaGroup, log)
	}
	return nil
}

// runSource keeps the upstream connection alive, reconnecting with a fixed
// backoff until shutdown.
func runSource(ctx context.Context, src feed.Source, b *feed.Broadcaster, backoff time.Duration, log *zap.Logger) {
	if backoff <= 0 {
		backoff = 2 * time.Second
	}
	for {
		err := src.Run(ctx, b.Publish)
		if ctx.Err() != nil {
			return
		}
		log.Error("feed source stopped, reconnecting", zap.Error(err), zap.Duration("backoff", backoff))
		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}
	}
}
