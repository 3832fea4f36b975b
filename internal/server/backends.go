package server

import (
	"context"
	"fmt"
	"log"

	gcs "cloud.google.com/go/storage"
	"github.com/redis/go-redis/v9"
	"github.com/shinyyama/dispatch-backend/internal/cache"
	"github.com/shinyyama/dispatch-backend/internal/config"
	"github.com/shinyyama/dispatch-backend/internal/events"
	"github.com/shinyyama/dispatch-backend/internal/storage"
)

const memoryMetricsEntries = 4096

// OpenBackends builds the metrics cache, event publisher and proof store
// selected by cfg. The returned func releases whatever was opened.
func OpenBackends(ctx context.Context, cfg *config.Config, dispatch config.Dispatch) (Deps, func(), error) {
	deps := Deps{Dispatch: dispatch}
	var closers []func() error
	closeAll := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			if err := closers[i](); err != nil {
				log.Printf("[server] close backend err=%v", err)
			}
		}
	}

	if cfg.RedisAddr != "" {
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})
		closers = append(closers, client.Close)
		deps.Metrics = cache.NewRedisMetricsCache(client, dispatch.MetricsTTL)
		log.Printf("[server] metrics cache=redis addr=%s", cfg.RedisAddr)
	} else {
		deps.Metrics = cache.NewMemoryMetricsCache(memoryMetricsEntries, dispatch.MetricsTTL)
		log.Printf("[server] metrics cache=memory size=%d", memoryMetricsEntries)
	}

	if len(cfg.KafkaBrokers) > 0 {
		pub, err := events.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopic)
		if err != nil {
			closeAll()
			return Deps{}, nil, err
		}
		closers = append(closers, pub.Close)
		deps.Publisher = pub
	} else {
		deps.Publisher = events.NewNoopPublisher()
	}

	switch cfg.StorageBackend {
	case "gcs":
		if cfg.StorageBucket == "" {
			deps.Proofs = storage.NewDisabledProofStore()
			log.Printf("[server] proof storage disabled: STORAGE_BUCKET is empty")
			break
		}
		client, err := gcs.NewClient(ctx)
		if err != nil {
			closeAll()
			return Deps{}, nil, fmt.Errorf("gcs client: %w", err)
		}
		closers = append(closers, client.Close)
		deps.Proofs = storage.NewGCSProofStore(client, cfg.StorageBucket)
	case "s3":
		store, err := storage.NewS3ProofStore(ctx, cfg.AWSRegion, cfg.StorageBucket)
		if err != nil {
			closeAll()
			return Deps{}, nil, err
		}
		deps.Proofs = store
	case "", "none":
		deps.Proofs = storage.NewDisabledProofStore()
	default:
		closeAll()
		return Deps{}, nil, fmt.Errorf("unsupported STORAGE_BACKEND %q", cfg.StorageBackend)
	}
	log.Printf("[server] proof storage=%q bucket=%s", cfg.StorageBackend, cfg.StorageBucket)

	return deps, closeAll, nil
}
