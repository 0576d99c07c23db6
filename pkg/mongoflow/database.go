package mongoflow

import (
	"context"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/nikmy/mongoflow/pkg/bridge"
	"github.com/nikmy/mongoflow/pkg/logger"
)

// Database is a stateless front-end over one engine database handle.
type Database struct {
	db  *mongo.Database
	log logger.Logger
}

func (d *Database) Name() string {
	return d.db.Name()
}

func (d *Database) Collection(name string) *Collection {
	return &Collection{
		coll: d.db.Collection(name),
		log:  d.log,
	}
}

// RunCommand issues an arbitrary database command and returns the raw
// server reply.
func (d *Database) RunCommand(ctx context.Context, cmd bson.Raw, opts *RunCommandOptions, sess *Session) (bson.Raw, error) {
	engineOpts, err := opts.engine()
	if err != nil {
		return nil, Classify(err)
	}

	var reply bson.Raw
	err = runWith(ctx, sess, func(ctx context.Context) error {
		var err error
		reply, err = bridge.Run(ctx, func(ctx context.Context) (bson.Raw, error) {
			return d.db.RunCommand(ctx, cmd, engineOpts).Raw()
		})
		return err
	})
	if err != nil {
		return nil, Classify(err)
	}
	return reply, nil
}

func (d *Database) ListCollectionNames(ctx context.Context, filter bson.Raw, sess *Session) ([]string, error) {
	var names []string
	err := runWith(ctx, sess, func(ctx context.Context) error {
		var err error
		names, err = bridge.Run(ctx, func(ctx context.Context) ([]string, error) {
			return d.db.ListCollectionNames(ctx, orEmpty(filter))
		})
		return err
	})
	if err != nil {
		return nil, Classify(err)
	}
	return names, nil
}

// Aggregate runs a database-level pipeline and returns a cursor over
// its result.
func (d *Database) Aggregate(ctx context.Context, pipeline []bson.Raw, opts *AggregateOptions) (*Cursor, error) {
	cur, err := bridge.Run(ctx, func(ctx context.Context) (*mongo.Cursor, error) {
		return d.db.Aggregate(ctx, pipelineArg(pipeline), opts.engine())
	})
	if err != nil {
		return nil, Classify(err)
	}
	return newCursor(cur, d.log), nil
}

func (d *Database) CreateCollection(ctx context.Context, name string, opts *CreateCollectionOptions) error {
	_, err := bridge.Run(ctx, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, d.db.CreateCollection(ctx, name, opts.engine())
	})
	return Classify(err)
}

func (d *Database) Drop(ctx context.Context) error {
	_, err := bridge.Run(ctx, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, d.db.Drop(ctx)
	})
	return Classify(err)
}

// GridFS opens a byte-streaming bucket on this database.
func (d *Database) GridFS(opts *BucketOptions) (*Bucket, error) {
	return newBucket(d.db, opts, d.log)
}

// pipelineArg turns an absent pipeline into an empty one.
func pipelineArg(pipeline []bson.Raw) any {
	if pipeline == nil {
		return mongo.Pipeline{}
	}
	return pipeline
}
