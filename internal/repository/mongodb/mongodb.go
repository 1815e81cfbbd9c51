// Package mongodb implements repository.UserProfileRepository on MongoDB.
//
// Profiles live in one collection with a unique index on uid. Every mutation
// is a single-document atomic operation: upsert is one FindOneAndUpdate with
// upsert enabled, so the server (not this process) guarantees that concurrent
// upserts for the same uid produce one document.
package mongodb

import (
	"context"
	"errors"
	"fmt"
	"net/url"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/sakif/career-connect/internal/apperror"
)

const DefaultCollection = "users"

// Config describes how to reach the cluster.
type Config struct {
	URI        string
	Database   string
	Collection string
}

// AtlasURI builds the mongodb+srv connection string used for Atlas clusters.
// Credentials are escaped, so passwords containing '@' or ':' survive.
func AtlasURI(user, password, host string) string {
	u := url.URL{
		Scheme:   "mongodb+srv",
		User:     url.UserPassword(user, password),
		Host:     host,
		Path:     "/",
		RawQuery: "retryWrites=true&w=majority",
	}
	return u.String()
}

// Store holds the client and the users collection.
type Store struct {
	client *mongo.Client
	users  *mongo.Collection
}

// Connect dials the cluster, verifies it with a ping and makes sure the
// uid index exists. The caller owns the returned Store and must Close it.
func Connect(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.Collection == "" {
		cfg.Collection = DefaultCollection
	}

	serverAPI := options.ServerAPI(options.ServerAPIVersion1).
		SetStrict(true).
		SetDeprecationErrors(true)

	opts := options.Client().
		ApplyURI(cfg.URI).
		SetServerAPIOptions(serverAPI).
		// Nested attribute objects decode as maps, which encode to JSON objects.
		SetBSONOptions(&options.BSONOptions{DefaultDocumentM: true})

	client, err := mongo.Connect(opts)
	if err != nil {
		return nil, fmt.Errorf("mongo: connecting: %w", err)
	}

	s := &Store{
		client: client,
		users:  client.Database(cfg.Database).Collection(cfg.Collection),
	}

	if err := s.Ping(ctx); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, err
	}

	if err := s.ensureIndexes(ctx); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, err
	}

	return s, nil
}

// Ping runs the admin ping command.
func (s *Store) Ping(ctx context.Context) error {
	err := s.client.Database("admin").RunCommand(ctx, bson.D{{Key: "ping", Value: 1}}).Err()
	if err != nil {
		return classify("ping", err)
	}
	return nil
}

// Close disconnects the client, waiting for in-flight operations up to ctx's deadline.
func (s *Store) Close(ctx context.Context) error {
	if err := s.client.Disconnect(ctx); err != nil {
		return fmt.Errorf("mongo: disconnecting: %w", err)
	}
	return nil
}

// ensureIndexes creates the unique uid index. Creating an identical index
// again is a no-op on the server.
func (s *Store) ensureIndexes(ctx context.Context) error {
	_, err := s.users.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "uid", Value: 1}},
		Options: options.Index().SetUnique(true).SetName("uid_unique"),
	})
	if err != nil {
		return classify("creating uid index", err)
	}
	return nil
}

// classify wraps a driver error, marking connectivity failures as
// apperror.ErrUnavailable so transports can answer 503.
func classify(action string, err error) error {
	wrapped := fmt.Errorf("mongo: %s: %w", action, err)
	if mongo.IsTimeout(err) ||
		mongo.IsNetworkError(err) ||
		errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, mongo.ErrClientDisconnected) {
		return apperror.Unavailable(wrapped)
	}
	return wrapped
}
