package mongoflow

import (
	"context"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/nikmy/mongoflow/pkg/bridge"
	"github.com/nikmy/mongoflow/pkg/errors"
	"github.com/nikmy/mongoflow/pkg/logger"
)

// Collection is a stateless front-end over one engine collection
// handle. Methods taking a *Session run under that session's lock;
// with a nil session they are independent operations.
type Collection struct {
	coll *mongo.Collection
	log  logger.Logger
}

func (c *Collection) Name() string {
	return c.coll.Name()
}

// scoped derives a collection handle carrying per-operation read
// preference and concerns. Handles are cheap and immutable, deriving
// one per call is fine.
func (c *Collection) scoped(rp ReadPreference, rc ReadConcern, wc *WriteConcern) (*mongo.Collection, error) {
	if rp == "" && rc == "" && wc == nil {
		return c.coll, nil
	}

	opts := options.Collection()

	pref, err := rp.engine()
	if err != nil {
		return nil, err
	}
	if pref != nil {
		opts.SetReadPreference(pref)
	}

	conc, err := rc.engine()
	if err != nil {
		return nil, err
	}
	if conc != nil {
		opts.SetReadConcern(conc)
	}

	if wc != nil {
		opts.SetWriteConcern(wc.engine())
	}

	return c.coll.Clone(opts)
}

// Find runs a query and returns a cursor over its result set.
func (c *Collection) Find(ctx context.Context, filter bson.Raw, opts *FindOptions) (*Cursor, error) {
	var rp ReadPreference
	var rc ReadConcern
	if opts != nil {
		rp, rc = opts.ReadPreference, opts.ReadConcern
	}

	coll, err := c.scoped(rp, rc, nil)
	if err != nil {
		return nil, Classify(err)
	}

	cur, err := bridge.Run(ctx, func(ctx context.Context) (*mongo.Cursor, error) {
		return coll.Find(ctx, orEmpty(filter), opts.engine())
	})
	if err != nil {
		return nil, Classify(err)
	}

	return newCursor(cur, c.log), nil
}

// FindWithSession runs a query under the session and returns a cursor
// that must keep being advanced under the same session.
func (c *Collection) FindWithSession(ctx context.Context, filter bson.Raw, opts *FindOptions, sess *Session) (*SessionCursor, error) {
	if sess == nil {
		return nil, &Error{Kind: KindInvalidArgument, Err: errors.Error("nil session")}
	}

	var rp ReadPreference
	var rc ReadConcern
	if opts != nil {
		rp, rc = opts.ReadPreference, opts.ReadConcern
	}

	coll, err := c.scoped(rp, rc, nil)
	if err != nil {
		return nil, Classify(err)
	}

	var cur *mongo.Cursor
	err = sess.WithSession(ctx, func(ctx context.Context) error {
		var err error
		cur, err = bridge.Run(ctx, func(ctx context.Context) (*mongo.Cursor, error) {
			return coll.Find(ctx, orEmpty(filter), opts.engine())
		})
		return err
	})
	if err != nil {
		return nil, Classify(err)
	}

	return newSessionCursor(cur, sess, c.log), nil
}

// FindOne returns the first matching document, or a nil document when
// nothing matches.
func (c *Collection) FindOne(ctx context.Context, filter bson.Raw, opts *FindOneOptions, sess *Session) (bson.Raw, error) {
	var rp ReadPreference
	var rc ReadConcern
	if opts != nil {
		rp, rc = opts.ReadPreference, opts.ReadConcern
	}

	coll, err := c.scoped(rp, rc, nil)
	if err != nil {
		return nil, Classify(err)
	}

	var doc bson.Raw
	err = runWith(ctx, sess, func(ctx context.Context) error {
		var err error
		doc, err = bridge.Run(ctx, func(ctx context.Context) (bson.Raw, error) {
			return coll.FindOne(ctx, orEmpty(filter), opts.engine()).Raw()
		})
		return err
	})
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, Classify(err)
	}
	return doc, nil
}

func (c *Collection) InsertOne(ctx context.Context, doc bson.Raw, opts *InsertOneOptions, sess *Session) (InsertOneResult, error) {
	var wc *WriteConcern
	if opts != nil {
		wc = opts.WriteConcern
	}

	coll, err := c.scoped("", "", wc)
	if err != nil {
		return InsertOneResult{}, Classify(err)
	}

	var res InsertOneResult
	err = runWith(ctx, sess, func(ctx context.Context) error {
		r, err := bridge.Run(ctx, func(ctx context.Context) (*mongo.InsertOneResult, error) {
			return coll.InsertOne(ctx, doc, opts.engine())
		})
		if err != nil {
			return err
		}
		res = InsertOneResult{InsertedID: r.InsertedID}
		return nil
	})
	if err != nil {
		return InsertOneResult{}, Classify(err)
	}
	return res, nil
}

func (c *Collection) InsertMany(ctx context.Context, docs []bson.Raw, opts *InsertManyOptions, sess *Session) (InsertManyResult, error) {
	var wc *WriteConcern
	if opts != nil {
		wc = opts.WriteConcern
	}

	coll, err := c.scoped("", "", wc)
	if err != nil {
		return InsertManyResult{}, Classify(err)
	}

	anyDocs := make([]any, len(docs))
	for i, d := range docs {
		anyDocs[i] = d
	}

	var res InsertManyResult
	err = runWith(ctx, sess, func(ctx context.Context) error {
		r, err := bridge.Run(ctx, func(ctx context.Context) (*mongo.InsertManyResult, error) {
			return coll.InsertMany(ctx, anyDocs, opts.engine())
		})
		if err != nil {
			return err
		}
		res = InsertManyResult{InsertedIDs: r.InsertedIDs}
		return nil
	})
	if err != nil {
		return InsertManyResult{}, Classify(err)
	}
	return res, nil
}

func (c *Collection) UpdateOne(ctx context.Context, filter, update bson.Raw, opts *UpdateOptions, sess *Session) (UpdateResult, error) {
	return c.update(ctx, filter, update, opts, sess, false)
}

func (c *Collection) UpdateMany(ctx context.Context, filter, update bson.Raw, opts *UpdateOptions, sess *Session) (UpdateResult, error) {
	return c.update(ctx, filter, update, opts, sess, true)
}

func (c *Collection) update(ctx context.Context, filter, update bson.Raw, opts *UpdateOptions, sess *Session, many bool) (UpdateResult, error) {
	var wc *WriteConcern
	if opts != nil {
		wc = opts.WriteConcern
	}

	coll, err := c.scoped("", "", wc)
	if err != nil {
		return UpdateResult{}, Classify(err)
	}

	var res UpdateResult
	err = runWith(ctx, sess, func(ctx context.Context) error {
		r, err := bridge.Run(ctx, func(ctx context.Context) (*mongo.UpdateResult, error) {
			if many {
				return coll.UpdateMany(ctx, orEmpty(filter), update, opts.engine())
			}
			return coll.UpdateOne(ctx, orEmpty(filter), update, opts.engine())
		})
		if err != nil {
			return err
		}
		res = newUpdateResult(r)
		return nil
	})
	if err != nil {
		return UpdateResult{}, Classify(err)
	}
	return res, nil
}

func (c *Collection) ReplaceOne(ctx context.Context, filter, replacement bson.Raw, opts *ReplaceOptions, sess *Session) (UpdateResult, error) {
	var wc *WriteConcern
	if opts != nil {
		wc = opts.WriteConcern
	}

	coll, err := c.scoped("", "", wc)
	if err != nil {
		return UpdateResult{}, Classify(err)
	}

	var res UpdateResult
	err = runWith(ctx, sess, func(ctx context.Context) error {
		r, err := bridge.Run(ctx, func(ctx context.Context) (*mongo.UpdateResult, error) {
			return coll.ReplaceOne(ctx, orEmpty(filter), replacement, opts.engine())
		})
		if err != nil {
			return err
		}
		res = newUpdateResult(r)
		return nil
	})
	if err != nil {
		return UpdateResult{}, Classify(err)
	}
	return res, nil
}

func (c *Collection) DeleteOne(ctx context.Context, filter bson.Raw, opts *DeleteOptions, sess *Session) (DeleteResult, error) {
	return c.delete(ctx, filter, opts, sess, false)
}

func (c *Collection) DeleteMany(ctx context.Context, filter bson.Raw, opts *DeleteOptions, sess *Session) (DeleteResult, error) {
	return c.delete(ctx, filter, opts, sess, true)
}

func (c *Collection) delete(ctx context.Context, filter bson.Raw, opts *DeleteOptions, sess *Session, many bool) (DeleteResult, error) {
	var wc *WriteConcern
	if opts != nil {
		wc = opts.WriteConcern
	}

	coll, err := c.scoped("", "", wc)
	if err != nil {
		return DeleteResult{}, Classify(err)
	}

	var res DeleteResult
	err = runWith(ctx, sess, func(ctx context.Context) error {
		r, err := bridge.Run(ctx, func(ctx context.Context) (*mongo.DeleteResult, error) {
			if many {
				return coll.DeleteMany(ctx, orEmpty(filter), opts.engine())
			}
			return coll.DeleteOne(ctx, orEmpty(filter), opts.engine())
		})
		if err != nil {
			return err
		}
		res = DeleteResult{DeletedCount: r.DeletedCount}
		return nil
	})
	if err != nil {
		return DeleteResult{}, Classify(err)
	}
	return res, nil
}

func (c *Collection) CountDocuments(ctx context.Context, filter bson.Raw, opts *CountOptions, sess *Session) (int64, error) {
	var rp ReadPreference
	if opts != nil {
		rp = opts.ReadPreference
	}

	coll, err := c.scoped(rp, "", nil)
	if err != nil {
		return 0, Classify(err)
	}

	var count int64
	err = runWith(ctx, sess, func(ctx context.Context) error {
		var err error
		count, err = bridge.Run(ctx, func(ctx context.Context) (int64, error) {
			return coll.CountDocuments(ctx, orEmpty(filter), opts.engine())
		})
		return err
	})
	if err != nil {
		return 0, Classify(err)
	}
	return count, nil
}

func (c *Collection) EstimatedDocumentCount(ctx context.Context) (int64, error) {
	count, err := bridge.Run(ctx, func(ctx context.Context) (int64, error) {
		return c.coll.EstimatedDocumentCount(ctx)
	})
	if err != nil {
		return 0, Classify(err)
	}
	return count, nil
}

// Distinct returns the distinct values of a field among the matching
// documents.
func (c *Collection) Distinct(ctx context.Context, field string, filter bson.Raw, opts *DistinctOptions, sess *Session) ([]any, error) {
	var rp ReadPreference
	if opts != nil {
		rp = opts.ReadPreference
	}

	coll, err := c.scoped(rp, "", nil)
	if err != nil {
		return nil, Classify(err)
	}

	var values []any
	err = runWith(ctx, sess, func(ctx context.Context) error {
		var err error
		values, err = bridge.Run(ctx, func(ctx context.Context) ([]any, error) {
			return coll.Distinct(ctx, field, orEmpty(filter), opts.engine())
		})
		return err
	})
	if err != nil {
		return nil, Classify(err)
	}
	return values, nil
}

// Aggregate runs a collection-level pipeline and returns a cursor over
// its result.
func (c *Collection) Aggregate(ctx context.Context, pipeline []bson.Raw, opts *AggregateOptions) (*Cursor, error) {
	var rp ReadPreference
	var rc ReadConcern
	var wc *WriteConcern
	if opts != nil {
		rp, rc, wc = opts.ReadPreference, opts.ReadConcern, opts.WriteConcern
	}

	coll, err := c.scoped(rp, rc, wc)
	if err != nil {
		return nil, Classify(err)
	}

	cur, err := bridge.Run(ctx, func(ctx context.Context) (*mongo.Cursor, error) {
		return coll.Aggregate(ctx, pipelineArg(pipeline), opts.engine())
	})
	if err != nil {
		return nil, Classify(err)
	}

	return newCursor(cur, c.log), nil
}

// AggregateWithSession runs a pipeline under the session and returns a
// session-bound cursor.
func (c *Collection) AggregateWithSession(ctx context.Context, pipeline []bson.Raw, opts *AggregateOptions, sess *Session) (*SessionCursor, error) {
	if sess == nil {
		return nil, &Error{Kind: KindInvalidArgument, Err: errors.Error("nil session")}
	}

	var rp ReadPreference
	var rc ReadConcern
	var wc *WriteConcern
	if opts != nil {
		rp, rc, wc = opts.ReadPreference, opts.ReadConcern, opts.WriteConcern
	}

	coll, err := c.scoped(rp, rc, wc)
	if err != nil {
		return nil, Classify(err)
	}

	var cur *mongo.Cursor
	err = sess.WithSession(ctx, func(ctx context.Context) error {
		var err error
		cur, err = bridge.Run(ctx, func(ctx context.Context) (*mongo.Cursor, error) {
			return coll.Aggregate(ctx, pipelineArg(pipeline), opts.engine())
		})
		return err
	})
	if err != nil {
		return nil, Classify(err)
	}

	return newSessionCursor(cur, sess, c.log), nil
}

func (c *Collection) FindOneAndUpdate(ctx context.Context, filter, update bson.Raw, opts *FindOneAndUpdateOptions, sess *Session) (bson.Raw, error) {
	var wc *WriteConcern
	if opts != nil {
		wc = opts.WriteConcern
	}

	coll, err := c.scoped("", "", wc)
	if err != nil {
		return nil, Classify(err)
	}

	return c.findAndModify(ctx, sess, func(ctx context.Context) *mongo.SingleResult {
		return coll.FindOneAndUpdate(ctx, orEmpty(filter), update, opts.engine())
	})
}

func (c *Collection) FindOneAndReplace(ctx context.Context, filter, replacement bson.Raw, opts *FindOneAndReplaceOptions, sess *Session) (bson.Raw, error) {
	var wc *WriteConcern
	if opts != nil {
		wc = opts.WriteConcern
	}

	coll, err := c.scoped("", "", wc)
	if err != nil {
		return nil, Classify(err)
	}

	return c.findAndModify(ctx, sess, func(ctx context.Context) *mongo.SingleResult {
		return coll.FindOneAndReplace(ctx, orEmpty(filter), replacement, opts.engine())
	})
}

func (c *Collection) FindOneAndDelete(ctx context.Context, filter bson.Raw, opts *FindOneAndDeleteOptions, sess *Session) (bson.Raw, error) {
	var wc *WriteConcern
	if opts != nil {
		wc = opts.WriteConcern
	}

	coll, err := c.scoped("", "", wc)
	if err != nil {
		return nil, Classify(err)
	}

	return c.findAndModify(ctx, sess, func(ctx context.Context) *mongo.SingleResult {
		return coll.FindOneAndDelete(ctx, orEmpty(filter), opts.engine())
	})
}

// findAndModify returns the matched document, or a nil document when
// nothing matched.
func (c *Collection) findAndModify(ctx context.Context, sess *Session, run func(ctx context.Context) *mongo.SingleResult) (bson.Raw, error) {
	var doc bson.Raw
	err := runWith(ctx, sess, func(ctx context.Context) error {
		var err error
		doc, err = bridge.Run(ctx, func(ctx context.Context) (bson.Raw, error) {
			return run(ctx).Raw()
		})
		return err
	})
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, Classify(err)
	}
	return doc, nil
}

// CreateIndex creates a single index and returns its name.
func (c *Collection) CreateIndex(ctx context.Context, model IndexModel, sess *Session) (string, error) {
	var name string
	err := runWith(ctx, sess, func(ctx context.Context) error {
		var err error
		name, err = bridge.Run(ctx, func(ctx context.Context) (string, error) {
			return c.coll.Indexes().CreateOne(ctx, model.engine())
		})
		return err
	})
	if err != nil {
		return "", Classify(err)
	}
	return name, nil
}

func (c *Collection) CreateIndexes(ctx context.Context, models []IndexModel, sess *Session) ([]string, error) {
	engineModels := make([]mongo.IndexModel, len(models))
	for i, m := range models {
		engineModels[i] = m.engine()
	}

	var names []string
	err := runWith(ctx, sess, func(ctx context.Context) error {
		var err error
		names, err = bridge.Run(ctx, func(ctx context.Context) ([]string, error) {
			return c.coll.Indexes().CreateMany(ctx, engineModels)
		})
		return err
	})
	if err != nil {
		return nil, Classify(err)
	}
	return names, nil
}

func (c *Collection) DropIndex(ctx context.Context, name string, sess *Session) error {
	err := runWith(ctx, sess, func(ctx context.Context) error {
		_, err := bridge.Run(ctx, func(ctx context.Context) (bson.Raw, error) {
			return c.coll.Indexes().DropOne(ctx, name)
		})
		return err
	})
	return Classify(err)
}

// DropIndexes removes every index on the collection except the
// mandatory one on _id.
func (c *Collection) DropIndexes(ctx context.Context, sess *Session) error {
	err := runWith(ctx, sess, func(ctx context.Context) error {
		_, err := bridge.Run(ctx, func(ctx context.Context) (bson.Raw, error) {
			return c.coll.Indexes().DropAll(ctx)
		})
		return err
	})
	return Classify(err)
}

// ListIndexes returns a cursor over the collection's index
// specifications.
func (c *Collection) ListIndexes(ctx context.Context) (*Cursor, error) {
	cur, err := bridge.Run(ctx, func(ctx context.Context) (*mongo.Cursor, error) {
		return c.coll.Indexes().List(ctx)
	})
	if err != nil {
		return nil, Classify(err)
	}
	return newCursor(cur, c.log), nil
}

func (c *Collection) Drop(ctx context.Context) error {
	_, err := bridge.Run(ctx, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, c.coll.Drop(ctx)
	})
	return Classify(err)
}
