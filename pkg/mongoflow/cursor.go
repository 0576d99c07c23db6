package mongoflow

import (
	"context"
	"sync"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/nikmy/mongoflow/pkg/bridge"
	"github.com/nikmy/mongoflow/pkg/errors"
	"github.com/nikmy/mongoflow/pkg/logger"
)

// ErrCursorDrained is the end-of-sequence signal of a cursor. It is a
// terminal state, not a failure: once returned, every further Next on
// the same cursor returns it again.
var ErrCursorDrained = errors.Error("cursor is drained")

// Cursor is a lazily fetched, finite, non-restartable sequence of raw
// documents backed by a server-side iterator. Advancement is itself an
// engine round-trip, so every access mode serializes on the cursor's
// own lock.
type Cursor struct {
	mu   sync.Mutex
	cur  *mongo.Cursor
	done bool
	log  logger.Logger
}

func newCursor(cur *mongo.Cursor, log logger.Logger) *Cursor {
	return &Cursor{
		cur: cur,
		log: log.With("cursor"),
	}
}

// Next advances one position and returns the next document, or
// ErrCursorDrained when the server reports no more results.
func (c *Cursor) Next(ctx context.Context) (bson.Raw, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.done {
		return nil, ErrCursorDrained
	}

	doc, err := bridge.Run(ctx, func(ctx context.Context) (bson.Raw, error) {
		return advance(ctx, c.cur)
	})

	switch {
	case err == nil:
		return doc, nil
	case errors.Is(err, ErrCursorDrained):
		c.drain(ctx)
		return nil, ErrCursorDrained
	default:
		return nil, Classify(err)
	}
}

// NextBatch advances up to n positions. It returns fewer than n
// documents, without an error, when the cursor drains early.
func (c *Cursor) NextBatch(ctx context.Context, n int) ([]bson.Raw, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.done || n <= 0 {
		return []bson.Raw{}, nil
	}

	batch, err := bridge.Run(ctx, func(ctx context.Context) ([]bson.Raw, error) {
		return advanceBatch(ctx, c.cur, n)
	})

	return c.finishBatch(ctx, batch, err)
}

// Collect advances until exhaustion and returns every remaining
// document. The caller is responsible for bounding the result set.
func (c *Cursor) Collect(ctx context.Context) ([]bson.Raw, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.done {
		return []bson.Raw{}, nil
	}

	all, err := bridge.Run(ctx, func(ctx context.Context) ([]bson.Raw, error) {
		return advanceBatch(ctx, c.cur, -1)
	})

	return c.finishBatch(ctx, all, err)
}

// Close releases the server-side iterator. It is idempotent.
func (c *Cursor) Close(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.done {
		return nil
	}
	c.done = true

	_, err := bridge.Run(ctx, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, c.cur.Close(ctx)
	})
	return Classify(err)
}

func (c *Cursor) finishBatch(ctx context.Context, batch []bson.Raw, err error) ([]bson.Raw, error) {
	switch {
	case err == nil:
		return batch, nil
	case errors.Is(err, ErrCursorDrained):
		c.drain(ctx)
		return batch, nil
	default:
		return nil, Classify(err)
	}
}

// drain marks the cursor exhausted and releases the engine iterator.
// Callers hold c.mu.
func (c *Cursor) drain(ctx context.Context) {
	c.done = true

	_, err := bridge.Run(ctx, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, c.cur.Close(ctx)
	})
	if err != nil {
		c.log.Warn(errors.WrapFail(err, "close drained cursor"))
	}
}

// advance fetches a single document. An engine failure leaves the
// cursor position wherever the engine left it; no retry here.
func advance(ctx context.Context, cur *mongo.Cursor) (bson.Raw, error) {
	if cur.Next(ctx) {
		doc := make(bson.Raw, len(cur.Current))
		copy(doc, cur.Current)
		return doc, nil
	}

	if err := cur.Err(); err != nil {
		return nil, err
	}

	return nil, ErrCursorDrained
}

// advanceBatch fetches up to n documents, all of them when n < 0.
// On exhaustion it returns the partial batch together with
// ErrCursorDrained so the caller can mark the terminal state.
func advanceBatch(ctx context.Context, cur *mongo.Cursor, n int) ([]bson.Raw, error) {
	size := n
	if n < 0 {
		size = 0
	}

	batch := make([]bson.Raw, 0, size)
	for n < 0 || len(batch) < n {
		doc, err := advance(ctx, cur)
		if err != nil {
			return batch, err
		}
		batch = append(batch, doc)
	}

	return batch, nil
}

// SessionCursor is a Cursor that must be advanced under the same
// session it was created with: the server requires session continuity,
// and a cursor opened inside a transaction has to observe that
// transaction's writes. Every advance therefore takes both the
// cursor's lock and the backing session's lock.
type SessionCursor struct {
	mu   sync.Mutex
	cur  *mongo.Cursor
	sess *Session
	done bool
	log  logger.Logger
}

func newSessionCursor(cur *mongo.Cursor, sess *Session, log logger.Logger) *SessionCursor {
	return &SessionCursor{
		cur:  cur,
		sess: sess,
		log:  log.With("session_cursor"),
	}
}

// Session returns the session this cursor is bound to.
func (c *SessionCursor) Session() *Session {
	return c.sess
}

// Next advances one position under the session's lock.
func (c *SessionCursor) Next(ctx context.Context) (bson.Raw, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.done {
		return nil, ErrCursorDrained
	}

	var doc bson.Raw
	err := c.sess.WithSession(ctx, func(ctx context.Context) error {
		var err error
		doc, err = bridge.Run(ctx, func(ctx context.Context) (bson.Raw, error) {
			return advance(ctx, c.cur)
		})
		return err
	})

	switch {
	case err == nil:
		return doc, nil
	case errors.Is(err, ErrCursorDrained):
		c.drain(ctx)
		return nil, ErrCursorDrained
	default:
		return nil, Classify(err)
	}
}

// NextBatch advances up to n positions, holding the session's lock for
// the whole batch.
func (c *SessionCursor) NextBatch(ctx context.Context, n int) ([]bson.Raw, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.done || n <= 0 {
		return []bson.Raw{}, nil
	}

	var batch []bson.Raw
	err := c.sess.WithSession(ctx, func(ctx context.Context) error {
		var err error
		batch, err = bridge.Run(ctx, func(ctx context.Context) ([]bson.Raw, error) {
			return advanceBatch(ctx, c.cur, n)
		})
		return err
	})

	return c.finishBatch(ctx, batch, err)
}

// Collect drains the cursor under the session's lock.
func (c *SessionCursor) Collect(ctx context.Context) ([]bson.Raw, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.done {
		return []bson.Raw{}, nil
	}

	var all []bson.Raw
	err := c.sess.WithSession(ctx, func(ctx context.Context) error {
		var err error
		all, err = bridge.Run(ctx, func(ctx context.Context) ([]bson.Raw, error) {
			return advanceBatch(ctx, c.cur, -1)
		})
		return err
	})

	return c.finishBatch(ctx, all, err)
}

// Close releases the server-side iterator. It is idempotent.
func (c *SessionCursor) Close(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.done {
		return nil
	}
	c.done = true

	err := c.sess.WithSession(ctx, func(ctx context.Context) error {
		_, err := bridge.Run(ctx, func(ctx context.Context) (struct{}, error) {
			return struct{}{}, c.cur.Close(ctx)
		})
		return err
	})
	return Classify(err)
}

func (c *SessionCursor) finishBatch(ctx context.Context, batch []bson.Raw, err error) ([]bson.Raw, error) {
	switch {
	case err == nil:
		return batch, nil
	case errors.Is(err, ErrCursorDrained):
		c.drain(ctx)
		return batch, nil
	default:
		return nil, Classify(err)
	}
}

func (c *SessionCursor) drain(ctx context.Context) {
	c.done = true

	err := c.sess.WithSession(ctx, func(ctx context.Context) error {
		_, err := bridge.Run(ctx, func(ctx context.Context) (struct{}, error) {
			return struct{}{}, c.cur.Close(ctx)
		})
		return err
	})
	if err != nil {
		c.log.Warn(errors.WrapFail(err, "close drained cursor"))
	}
}
