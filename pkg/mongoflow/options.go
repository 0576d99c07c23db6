package mongoflow

import (
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readconcern"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"go.mongodb.org/mongo-driver/mongo/writeconcern"

	"github.com/nikmy/mongoflow/pkg/errors"
)

// Every option struct here is fully optional: an absent field falls
// back to the engine's own default. Documents inside options (sort
// keys, projections, metadata) are opaque BSON, like everywhere else
// at this boundary.

// ReadPreference selects which replica serves a read.
type ReadPreference string

const (
	ReadPrimary            ReadPreference = "primary"
	ReadPrimaryPreferred   ReadPreference = "primaryPreferred"
	ReadSecondary          ReadPreference = "secondary"
	ReadSecondaryPreferred ReadPreference = "secondaryPreferred"
	ReadNearest            ReadPreference = "nearest"
)

func (p ReadPreference) engine() (*readpref.ReadPref, error) {
	switch p {
	case "":
		return nil, nil
	case ReadPrimary:
		return readpref.Primary(), nil
	case ReadPrimaryPreferred:
		return readpref.PrimaryPreferred(), nil
	case ReadSecondary:
		return readpref.Secondary(), nil
	case ReadSecondaryPreferred:
		return readpref.SecondaryPreferred(), nil
	case ReadNearest:
		return readpref.Nearest(), nil
	default:
		return nil, &Error{Kind: KindInvalidArgument, Err: errors.Error("unknown read preference %q", string(p))}
	}
}

// ReadConcern is the consistency level requested for reads.
type ReadConcern string

const (
	ReadConcernLocal        ReadConcern = "local"
	ReadConcernMajority     ReadConcern = "majority"
	ReadConcernAvailable    ReadConcern = "available"
	ReadConcernLinearizable ReadConcern = "linearizable"
	ReadConcernSnapshot     ReadConcern = "snapshot"
)

func (c ReadConcern) engine() (*readconcern.ReadConcern, error) {
	switch c {
	case "":
		return nil, nil
	case ReadConcernLocal:
		return readconcern.Local(), nil
	case ReadConcernMajority:
		return readconcern.Majority(), nil
	case ReadConcernAvailable:
		return readconcern.Available(), nil
	case ReadConcernLinearizable:
		return readconcern.Linearizable(), nil
	case ReadConcernSnapshot:
		return readconcern.Snapshot(), nil
	default:
		return nil, &Error{Kind: KindInvalidArgument, Err: errors.Error("unknown read concern %q", string(c))}
	}
}

// WriteConcern is the durability level requested for writes.
// W holds a number of nodes or the string "majority".
type WriteConcern struct {
	W        any           `json:"w,omitempty"`
	Journal  *bool         `json:"journal,omitempty"`
	WTimeout time.Duration `json:"wtimeout,omitempty"`
}

func (w *WriteConcern) engine() *writeconcern.WriteConcern {
	if w == nil {
		return nil
	}
	return &writeconcern.WriteConcern{
		W:        w.W,
		Journal:  w.Journal,
		WTimeout: w.WTimeout,
	}
}

type FindOptions struct {
	Sort           bson.Raw
	Projection     bson.Raw
	Skip           *int64
	Limit          *int64
	BatchSize      *int32
	MaxTime        *time.Duration
	ReadPreference ReadPreference
	ReadConcern    ReadConcern
}

func (o *FindOptions) engine() *options.FindOptions {
	opts := options.Find()
	if o == nil {
		return opts
	}
	if o.Sort != nil {
		opts.SetSort(o.Sort)
	}
	if o.Projection != nil {
		opts.SetProjection(o.Projection)
	}
	if o.Skip != nil {
		opts.SetSkip(*o.Skip)
	}
	if o.Limit != nil {
		opts.SetLimit(*o.Limit)
	}
	if o.BatchSize != nil {
		opts.SetBatchSize(*o.BatchSize)
	}
	if o.MaxTime != nil {
		opts.SetMaxTime(*o.MaxTime)
	}
	return opts
}

type FindOneOptions struct {
	Sort           bson.Raw
	Projection     bson.Raw
	Skip           *int64
	MaxTime        *time.Duration
	ReadPreference ReadPreference
	ReadConcern    ReadConcern
}

func (o *FindOneOptions) engine() *options.FindOneOptions {
	opts := options.FindOne()
	if o == nil {
		return opts
	}
	if o.Sort != nil {
		opts.SetSort(o.Sort)
	}
	if o.Projection != nil {
		opts.SetProjection(o.Projection)
	}
	if o.Skip != nil {
		opts.SetSkip(*o.Skip)
	}
	if o.MaxTime != nil {
		opts.SetMaxTime(*o.MaxTime)
	}
	return opts
}

type InsertOneOptions struct {
	BypassDocumentValidation *bool
	WriteConcern             *WriteConcern
}

func (o *InsertOneOptions) engine() *options.InsertOneOptions {
	opts := options.InsertOne()
	if o == nil {
		return opts
	}
	if o.BypassDocumentValidation != nil {
		opts.SetBypassDocumentValidation(*o.BypassDocumentValidation)
	}
	return opts
}

type InsertManyOptions struct {
	Ordered                  *bool
	BypassDocumentValidation *bool
	WriteConcern             *WriteConcern
}

func (o *InsertManyOptions) engine() *options.InsertManyOptions {
	opts := options.InsertMany()
	if o == nil {
		return opts
	}
	if o.Ordered != nil {
		opts.SetOrdered(*o.Ordered)
	}
	if o.BypassDocumentValidation != nil {
		opts.SetBypassDocumentValidation(*o.BypassDocumentValidation)
	}
	return opts
}

type UpdateOptions struct {
	Upsert       *bool
	WriteConcern *WriteConcern
}

func (o *UpdateOptions) engine() *options.UpdateOptions {
	opts := options.Update()
	if o == nil {
		return opts
	}
	if o.Upsert != nil {
		opts.SetUpsert(*o.Upsert)
	}
	return opts
}

type ReplaceOptions struct {
	Upsert       *bool
	WriteConcern *WriteConcern
}

func (o *ReplaceOptions) engine() *options.ReplaceOptions {
	opts := options.Replace()
	if o == nil {
		return opts
	}
	if o.Upsert != nil {
		opts.SetUpsert(*o.Upsert)
	}
	return opts
}

type DeleteOptions struct {
	WriteConcern *WriteConcern
}

func (o *DeleteOptions) engine() *options.DeleteOptions {
	return options.Delete()
}

type CountOptions struct {
	Limit          *int64
	Skip           *int64
	MaxTime        *time.Duration
	ReadPreference ReadPreference
}

func (o *CountOptions) engine() *options.CountOptions {
	opts := options.Count()
	if o == nil {
		return opts
	}
	if o.Limit != nil {
		opts.SetLimit(*o.Limit)
	}
	if o.Skip != nil {
		opts.SetSkip(*o.Skip)
	}
	if o.MaxTime != nil {
		opts.SetMaxTime(*o.MaxTime)
	}
	return opts
}

type DistinctOptions struct {
	MaxTime        *time.Duration
	ReadPreference ReadPreference
}

func (o *DistinctOptions) engine() *options.DistinctOptions {
	opts := options.Distinct()
	if o == nil {
		return opts
	}
	if o.MaxTime != nil {
		opts.SetMaxTime(*o.MaxTime)
	}
	return opts
}

type AggregateOptions struct {
	AllowDiskUse   *bool
	BatchSize      *int32
	MaxTime        *time.Duration
	ReadPreference ReadPreference
	ReadConcern    ReadConcern
	WriteConcern   *WriteConcern
}

func (o *AggregateOptions) engine() *options.AggregateOptions {
	opts := options.Aggregate()
	if o == nil {
		return opts
	}
	if o.AllowDiskUse != nil {
		opts.SetAllowDiskUse(*o.AllowDiskUse)
	}
	if o.BatchSize != nil {
		opts.SetBatchSize(*o.BatchSize)
	}
	if o.MaxTime != nil {
		opts.SetMaxTime(*o.MaxTime)
	}
	return opts
}

type FindOneAndUpdateOptions struct {
	Sort         bson.Raw
	Projection   bson.Raw
	Upsert       *bool
	ReturnAfter  *bool
	MaxTime      *time.Duration
	WriteConcern *WriteConcern
}

func (o *FindOneAndUpdateOptions) engine() *options.FindOneAndUpdateOptions {
	opts := options.FindOneAndUpdate()
	if o == nil {
		return opts
	}
	if o.Sort != nil {
		opts.SetSort(o.Sort)
	}
	if o.Projection != nil {
		opts.SetProjection(o.Projection)
	}
	if o.Upsert != nil {
		opts.SetUpsert(*o.Upsert)
	}
	if o.ReturnAfter != nil && *o.ReturnAfter {
		opts.SetReturnDocument(options.After)
	}
	if o.MaxTime != nil {
		opts.SetMaxTime(*o.MaxTime)
	}
	return opts
}

type FindOneAndReplaceOptions struct {
	Sort         bson.Raw
	Projection   bson.Raw
	Upsert       *bool
	ReturnAfter  *bool
	MaxTime      *time.Duration
	WriteConcern *WriteConcern
}

func (o *FindOneAndReplaceOptions) engine() *options.FindOneAndReplaceOptions {
	opts := options.FindOneAndReplace()
	if o == nil {
		return opts
	}
	if o.Sort != nil {
		opts.SetSort(o.Sort)
	}
	if o.Projection != nil {
		opts.SetProjection(o.Projection)
	}
	if o.Upsert != nil {
		opts.SetUpsert(*o.Upsert)
	}
	if o.ReturnAfter != nil && *o.ReturnAfter {
		opts.SetReturnDocument(options.After)
	}
	if o.MaxTime != nil {
		opts.SetMaxTime(*o.MaxTime)
	}
	return opts
}

type FindOneAndDeleteOptions struct {
	Sort         bson.Raw
	Projection   bson.Raw
	MaxTime      *time.Duration
	WriteConcern *WriteConcern
}

func (o *FindOneAndDeleteOptions) engine() *options.FindOneAndDeleteOptions {
	opts := options.FindOneAndDelete()
	if o == nil {
		return opts
	}
	if o.Sort != nil {
		opts.SetSort(o.Sort)
	}
	if o.Projection != nil {
		opts.SetProjection(o.Projection)
	}
	if o.MaxTime != nil {
		opts.SetMaxTime(*o.MaxTime)
	}
	return opts
}

// IndexModel describes a single index to create.
type IndexModel struct {
	Keys        bson.Raw
	Name        *string
	Unique      *bool
	Sparse      *bool
	ExpireAfter *time.Duration
}

func (m IndexModel) engine() mongo.IndexModel {
	opts := options.Index()
	if m.Name != nil {
		opts.SetName(*m.Name)
	}
	if m.Unique != nil {
		opts.SetUnique(*m.Unique)
	}
	if m.Sparse != nil {
		opts.SetSparse(*m.Sparse)
	}
	if m.ExpireAfter != nil {
		opts.SetExpireAfterSeconds(int32(m.ExpireAfter.Seconds()))
	}
	return mongo.IndexModel{Keys: m.Keys, Options: opts}
}

type CreateCollectionOptions struct {
	Capped       *bool
	SizeInBytes  *int64
	MaxDocuments *int64
}

func (o *CreateCollectionOptions) engine() *options.CreateCollectionOptions {
	opts := options.CreateCollection()
	if o == nil {
		return opts
	}
	if o.Capped != nil {
		opts.SetCapped(*o.Capped)
	}
	if o.SizeInBytes != nil {
		opts.SetSizeInBytes(*o.SizeInBytes)
	}
	if o.MaxDocuments != nil {
		opts.SetMaxDocuments(*o.MaxDocuments)
	}
	return opts
}

type SessionOptions struct {
	CausalConsistency *bool `json:"causal_consistency,omitempty"`
	Snapshot          *bool `json:"snapshot,omitempty"`
}

func (o *SessionOptions) engine() *options.SessionOptions {
	opts := options.Session()
	if o == nil {
		return opts
	}
	if o.CausalConsistency != nil {
		opts.SetCausalConsistency(*o.CausalConsistency)
	}
	if o.Snapshot != nil {
		opts.SetSnapshot(*o.Snapshot)
	}
	return opts
}

type TransactionOptions struct {
	ReadConcern    ReadConcern    `json:"read_concern,omitempty"`
	WriteConcern   *WriteConcern  `json:"write_concern,omitempty"`
	ReadPreference ReadPreference `json:"read_preference,omitempty"`
	MaxCommitTime  *time.Duration `json:"max_commit_time,omitempty"`
}

func (o *TransactionOptions) engine() ([]*options.TransactionOptions, error) {
	if o == nil {
		return nil, nil
	}

	opts := options.Transaction()

	rc, err := o.ReadConcern.engine()
	if err != nil {
		return nil, err
	}
	if rc != nil {
		opts.SetReadConcern(rc)
	}

	if wc := o.WriteConcern.engine(); wc != nil {
		opts.SetWriteConcern(wc)
	}

	rp, err := o.ReadPreference.engine()
	if err != nil {
		return nil, err
	}
	if rp != nil {
		opts.SetReadPreference(rp)
	}

	if o.MaxCommitTime != nil {
		opts.SetMaxCommitTime(o.MaxCommitTime)
	}
	return []*options.TransactionOptions{opts}, nil
}

type RunCommandOptions struct {
	ReadPreference ReadPreference
}

func (o *RunCommandOptions) engine() (*options.RunCmdOptions, error) {
	opts := options.RunCmd()
	if o == nil {
		return opts, nil
	}
	rp, err := o.ReadPreference.engine()
	if err != nil {
		return nil, err
	}
	if rp != nil {
		opts.SetReadPreference(rp)
	}
	return opts, nil
}

type BucketOptions struct {
	Name           string
	ChunkSizeBytes *int32
}

func (o *BucketOptions) engine() *options.BucketOptions {
	opts := options.GridFSBucket()
	if o == nil {
		return opts
	}
	if o.Name != "" {
		opts.SetName(o.Name)
	}
	if o.ChunkSizeBytes != nil {
		opts.SetChunkSizeBytes(*o.ChunkSizeBytes)
	}
	return opts
}

type UploadOptions struct {
	ChunkSizeBytes *int32
	Metadata       bson.Raw
}

func (o *UploadOptions) engine() *options.UploadOptions {
	opts := options.GridFSUpload()
	if o == nil {
		return opts
	}
	if o.ChunkSizeBytes != nil {
		opts.SetChunkSizeBytes(*o.ChunkSizeBytes)
	}
	if o.Metadata != nil {
		opts.SetMetadata(o.Metadata)
	}
	return opts
}
