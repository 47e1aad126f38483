package docstore

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoOptions configures the MongoDB connection. Zero values fall back to
// the driver settings the service was tuned with.
type MongoOptions struct {
	URI                    string
	Database               string
	ConnectTimeout         time.Duration
	ServerSelectionTimeout time.Duration
	MaxPoolSize            uint64
	MinPoolSize            uint64
}

const (
	defaultConnectTimeout         = 10 * time.Second
	defaultServerSelectionTimeout = 5 * time.Second
	defaultMaxPoolSize            = 100
	defaultMinPoolSize            = 10
)

func (o MongoOptions) clientOptions() *options.ClientOptions {
	connect := o.ConnectTimeout
	if connect <= 0 {
		connect = defaultConnectTimeout
	}
	selection := o.ServerSelectionTimeout
	if selection <= 0 {
		selection = defaultServerSelectionTimeout
	}
	maxPool := o.MaxPoolSize
	if maxPool == 0 {
		maxPool = defaultMaxPoolSize
	}
	minPool := o.MinPoolSize
	if minPool == 0 {
		minPool = min(defaultMinPoolSize, maxPool)
	}

	return options.Client().
		ApplyURI(o.URI).
		SetConnectTimeout(connect).
		SetServerSelectionTimeout(selection).
		SetMaxPoolSize(maxPool).
		SetMinPoolSize(minPool)
}

// ConnectMongoDB connects, pings the deployment and returns o.Database.
func ConnectMongoDB(ctx context.Context, o MongoOptions) (*mongo.Database, error) {
	if o.MinPoolSize > 0 && o.MaxPoolSize > 0 && o.MinPoolSize > o.MaxPoolSize {
		return nil, fmt.Errorf("mongo min pool size %d exceeds max pool size %d", o.MinPoolSize, o.MaxPoolSize)
	}

	client, err := mongo.Connect(ctx, o.clientOptions())
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}

	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.WithoutCancel(ctx))
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	return client.Database(o.Database), nil
}

// IsTransient reports whether a MongoDB error is worth retrying.
func IsTransient(err error) bool {
	return mongo.IsNetworkError(err) || mongo.IsTimeout(err)
}
