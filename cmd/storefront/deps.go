package main

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/fjod/storefront/internal/catalog"
	"github.com/fjod/storefront/internal/docstore"
	"github.com/fjod/storefront/internal/events"
	"github.com/fjod/storefront/internal/kvstore"
	"github.com/fjod/storefront/internal/retry"
)

func connectRedis(ctx context.Context) (*redis.Client, *kvstore.RedisStore, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	})
	store := kvstore.NewRedisStore(rdb, cfg.ClientTTL)
	if err := store.Ping(ctx); err != nil {
		rdb.Close()
		return nil, nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return rdb, store, nil
}

// connectDocstore returns the MongoDB database and a store over it that
// retries transient read failures.
func connectDocstore(ctx context.Context) (*mongo.Database, docstore.Store, error) {
	db, err := docstore.ConnectMongoDB(ctx, cfg.MongoOptions())
	if err != nil {
		return nil, nil, err
	}
	policy := retry.Policy{
		Attempts:  cfg.RetryAttempts,
		Delay:     cfg.RetryDelay,
		Retryable: docstore.IsTransient,
	}
	return db, docstore.NewRetrying(docstore.NewMongoStore(db), policy), nil
}

func openCatalog() (*catalog.Repository, error) {
	repo, err := catalog.NewRepository(cfg.CatalogDBPath)
	if err != nil {
		return nil, err
	}
	if err := repo.RunMigrations(); err != nil {
		repo.Close()
		return nil, err
	}
	return repo, nil
}

func newPublisher() events.Publisher {
	if len(cfg.KafkaBrokers) == 0 {
		return events.NewNopPublisher(logger)
	}
	return events.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopic, logger)
}
