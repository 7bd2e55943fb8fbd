// Package mongo stores artifacts in GridFS and records in a MongoDB collection.
package mongo

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

// Config selects the deployment, database and collection names.
type Config struct {
	URI            string        `mapstructure:"uri"`
	Database       string        `mapstructure:"database"`
	Bucket         string        `mapstructure:"bucket"`
	Collection     string        `mapstructure:"collection"`
	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`
}

// Client owns the driver connection shared by the content and record stores.
type Client struct {
	client *mongo.Client
	db     *mongo.Database
	cfg    Config
}

// Connect dials the deployment and pings the primary.
func Connect(ctx context.Context, cfg Config) (*Client, error) {
	if cfg.URI == "" {
		return nil, fmt.Errorf("storage.mongo.uri is required")
	}
	if cfg.Database == "" {
		return nil, fmt.Errorf("storage.mongo.database is required")
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = 10 * time.Second
	}

	connectCtx, cancel := context.WithTimeout(ctx, cfg.ConnectTimeout)
	defer cancel()

	client, err := mongo.Connect(connectCtx, options.Client().ApplyURI(cfg.URI))
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}
	if err := client.Ping(connectCtx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("ping mongo: %w", err)
	}
	return &Client{client: client, db: client.Database(cfg.Database), cfg: cfg}, nil
}

// ContentStore returns the GridFS-backed content store.
func (c *Client) ContentStore() (*ContentStore, error) {
	return NewContentStore(c.db, c.cfg.Bucket)
}

// RecordStore returns the collection-backed record store.
func (c *Client) RecordStore() *RecordStore {
	return NewRecordStore(c.db, c.cfg.Collection)
}

// Close disconnects from the deployment.
func (c *Client) Close(ctx context.Context) error {
	return c.client.Disconnect(ctx)
}
