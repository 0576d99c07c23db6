package mongoflow

import (
	"bytes"
	"context"

	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/gridfs"

	"github.com/nikmy/mongoflow/pkg/bridge"
	"github.com/nikmy/mongoflow/pkg/logger"
)

// Bucket streams whole files in and out of GridFS. It reuses the same
// executor and classifier as the rest of the layer; bucket failures
// classify as KindGridFS, a missing file as KindGridFSNotFound.
type Bucket struct {
	b   *gridfs.Bucket
	log logger.Logger
}

func newBucket(db *mongo.Database, opts *BucketOptions, log logger.Logger) (*Bucket, error) {
	b, err := gridfs.NewBucket(db, opts.engine())
	if err != nil {
		return nil, classifyGridFS(err)
	}
	return &Bucket{b: b, log: log.With("gridfs")}, nil
}

// Upload stores data as a single file and returns its generated id.
func (b *Bucket) Upload(ctx context.Context, filename string, data []byte, opts *UploadOptions) (primitive.ObjectID, error) {
	id, err := bridge.Run(ctx, func(ctx context.Context) (primitive.ObjectID, error) {
		b.applyDeadlines(ctx)
		return b.b.UploadFromStream(filename, bytes.NewReader(data), opts.engine())
	})
	if err != nil {
		return primitive.NilObjectID, classifyGridFS(err)
	}
	return id, nil
}

// Download reads the whole file with the given id.
func (b *Bucket) Download(ctx context.Context, id primitive.ObjectID) ([]byte, error) {
	data, err := bridge.Run(ctx, func(ctx context.Context) ([]byte, error) {
		b.applyDeadlines(ctx)

		var buf bytes.Buffer
		_, err := b.b.DownloadToStream(id, &buf)
		return buf.Bytes(), err
	})
	if err != nil {
		return nil, classifyGridFS(err)
	}
	return data, nil
}

// DownloadByName reads the most recent revision of the named file.
func (b *Bucket) DownloadByName(ctx context.Context, filename string) ([]byte, error) {
	data, err := bridge.Run(ctx, func(ctx context.Context) ([]byte, error) {
		b.applyDeadlines(ctx)

		var buf bytes.Buffer
		_, err := b.b.DownloadToStreamByName(filename, &buf)
		return buf.Bytes(), err
	})
	if err != nil {
		return nil, classifyGridFS(err)
	}
	return data, nil
}

// Delete removes the file with the given id together with its chunks.
func (b *Bucket) Delete(ctx context.Context, id primitive.ObjectID) error {
	_, err := bridge.Run(ctx, func(ctx context.Context) (struct{}, error) {
		b.applyDeadlines(ctx)
		return struct{}{}, b.b.Delete(id)
	})
	return classifyGridFS(err)
}

// Drop removes the bucket's files and chunks collections.
func (b *Bucket) Drop(ctx context.Context) error {
	_, err := bridge.Run(ctx, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, b.b.Drop()
	})
	return classifyGridFS(err)
}

// The bucket API is deadline-based rather than context-based;
// propagate the context deadline when there is one.
func (b *Bucket) applyDeadlines(ctx context.Context) {
	deadline, ok := ctx.Deadline()
	if !ok {
		return
	}

	if err := b.b.SetReadDeadline(deadline); err != nil {
		b.log.Warn(err)
	}
	if err := b.b.SetWriteDeadline(deadline); err != nil {
		b.log.Warn(err)
	}
}
