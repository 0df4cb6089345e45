package main

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"cardboard/api/internal/cache"
	"cardboard/api/internal/config"
	"cardboard/api/internal/queue"
	"cardboard/api/internal/search"
	"cardboard/api/internal/store"
	"cardboard/api/internal/syncer"
)

func main() {
	cfg := config.Load()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, err := store.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("database connection failed: %v", err)
	}
	defer db.Close()

	if err := store.ApplyMigrations(ctx, db); err != nil {
		log.Fatalf("migrations failed: %v", err)
	}
	dataStore := store.NewPostgresStore(db)

	redisOpts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		log.Fatalf("invalid redis url: %v", err)
	}
	rdb := redis.NewClient(redisOpts)
	defer rdb.Close()
	if err := rdb.Ping(ctx).Err(); err != nil {
		log.Fatalf("redis connection failed: %v", err)
	}

	meiliClient := search.NewMeili(cfg.MeiliURL, cfg.MeiliMasterKey)
	defer meiliClient.Close()

	boardCache := cache.New(rdb, cfg.BoardCacheTTL)
	deleteQueue := queue.NewDelayed(rdb, cache.DeleteQueueName)
	inval := cache.NewInvalidator(boardCache, deleteQueue, cfg.SecondDeleteDelay)

	events := queue.New(rdb, syncer.MutationQueueName, cfg.PartialMaxRetry)
	resyncs := queue.NewDelayed(rdb, syncer.ResyncQueueName)
	debouncer := syncer.NewDebouncer(rdb, resyncs, cfg.DebounceWindow, cfg.ResyncLeaseTTL)
	pipeline := syncer.NewPipeline(dataStore, meiliClient, debouncer, events, resyncs)

	go inval.Run(ctx, cfg.PollInterval)
	go func() {
		if err := pipeline.Run(ctx, cfg.PollInterval); err != nil && !errors.Is(err, context.Canceled) {
			log.Fatalf("sync pipeline failed: %v", err)
		}
	}()
	log.Printf("sync worker consuming %s", syncer.MutationQueueName)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Printf("shutting down")
	cancel()
	// Give in-flight handlers a moment to finish their current message.
	time.Sleep(time.Second)
}
