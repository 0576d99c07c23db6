// Package mongoflow coordinates document-database operations issued by
// many call sites against one engine client. It serializes all access
// to a logical session, drives incremental cursor retrieval, tracks the
// transaction state bound to a session, and translates every engine
// failure into a closed error taxonomy. Engine round-trips run on the
// shared executor of [github.com/nikmy/mongoflow/pkg/bridge].
//
// Documents cross this boundary as opaque BSON ([bson.Raw]); encoding
// and decoding them is the caller's business.
package mongoflow

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/nikmy/mongoflow/pkg/bridge"
	"github.com/nikmy/mongoflow/pkg/logger"
)

type Config struct {
	URL     string        `yaml:"url"`
	Timeout time.Duration `yaml:"timeout"`

	Auth struct {
		Username string `yaml:"username"`
		Password string `yaml:"password"`
	} `yaml:"auth"`

	Pool struct {
		MinSize uint64 `yaml:"minSize"`
		MaxSize uint64 `yaml:"maxSize"`
	} `yaml:"pool"`
}

// Connect establishes the engine client. Connection pooling is the
// engine's own; this layer adds no pool of its own.
func Connect(ctx context.Context, cfg Config, log logger.Logger) (*Client, error) {
	opts := options.Client().ApplyURI(cfg.URL)

	if cfg.Timeout > 0 {
		opts.SetTimeout(cfg.Timeout)
	}
	if cfg.Auth.Username != "" {
		opts.SetAuth(options.Credential{
			Username: cfg.Auth.Username,
			Password: cfg.Auth.Password,
		})
	}
	if cfg.Pool.MinSize > 0 {
		opts.SetMinPoolSize(cfg.Pool.MinSize)
	}
	if cfg.Pool.MaxSize > 0 {
		opts.SetMaxPoolSize(cfg.Pool.MaxSize)
	}

	client, err := bridge.Run(ctx, func(ctx context.Context) (*mongo.Client, error) {
		return mongo.Connect(ctx, opts)
	})
	if err != nil {
		return nil, Classify(err)
	}

	return &Client{c: client, log: log.With("mongoflow")}, nil
}

// Client is a stateless front-end over the engine client. It is cheap
// to share; the only mutable state lives in sessions and cursors.
type Client struct {
	c   *mongo.Client
	log logger.Logger
}

// StartSession opens a logical conversation with the database. End it
// with [Session.EndSession] when the last holder is done with it.
func (c *Client) StartSession(ctx context.Context, opts *SessionOptions) (*Session, error) {
	s, err := bridge.Run(ctx, func(context.Context) (mongo.Session, error) {
		return c.c.StartSession(opts.engine())
	})
	if err != nil {
		return nil, Classify(err)
	}

	return newSession(s, c.log), nil
}

func (c *Client) Database(name string) *Database {
	return &Database{
		db:  c.c.Database(name),
		log: c.log,
	}
}

func (c *Client) ListDatabaseNames(ctx context.Context, filter bson.Raw, sess *Session) ([]string, error) {
	var names []string
	err := runWith(ctx, sess, func(ctx context.Context) error {
		var err error
		names, err = bridge.Run(ctx, func(ctx context.Context) ([]string, error) {
			return c.c.ListDatabaseNames(ctx, orEmpty(filter))
		})
		return err
	})
	if err != nil {
		return nil, Classify(err)
	}
	return names, nil
}

func (c *Client) Ping(ctx context.Context) error {
	_, err := bridge.Run(ctx, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, c.c.Ping(ctx, nil)
	})
	return Classify(err)
}

// Shutdown disconnects the engine client. Sessions and cursors opened
// from this client become unusable.
func (c *Client) Shutdown(ctx context.Context) error {
	_, err := bridge.Run(ctx, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, c.c.Disconnect(ctx)
	})
	return Classify(err)
}

// runWith executes op under the session's lock when a session is
// given, or directly otherwise.
func runWith(ctx context.Context, sess *Session, op func(ctx context.Context) error) error {
	if sess == nil {
		return op(ctx)
	}
	return sess.WithSession(ctx, op)
}

// orEmpty turns an absent filter into a match-all document.
func orEmpty(filter bson.Raw) any {
	if len(filter) == 0 {
		return bson.D{}
	}
	return filter
}
