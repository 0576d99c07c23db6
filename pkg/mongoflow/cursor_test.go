package mongoflow

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/mock/gomock"

	"github.com/nikmy/mongoflow/pkg/logger"
)

func fixedResultSet(t *testing.T, n int) *mongo.Cursor {
	t.Helper()

	docs := make([]any, 0, n)
	for i := 0; i < n; i++ {
		docs = append(docs, bson.D{{Key: "i", Value: int32(i)}})
	}

	cur, err := mongo.NewCursorFromDocuments(docs, nil, nil)
	require.NoError(t, err)
	return cur
}

func TestCursor_NextUntilDrained(t *testing.T) {
	ctx := context.Background()
	c := newCursor(fixedResultSet(t, 3), logger.Nop())

	for i := 0; i < 3; i++ {
		doc, err := c.Next(ctx)
		require.NoError(t, err)

		got, ok := doc.Lookup("i").Int32OK()
		require.True(t, ok)
		assert.EqualValues(t, i, got)
	}

	// the terminal state is idempotent
	for i := 0; i < 3; i++ {
		_, err := c.Next(ctx)
		require.ErrorIs(t, err, ErrCursorDrained)
	}
}

func TestCursor_NextBatchStopsShort(t *testing.T) {
	ctx := context.Background()
	c := newCursor(fixedResultSet(t, 3), logger.Nop())

	batch, err := c.NextBatch(ctx, 2)
	require.NoError(t, err)
	assert.Len(t, batch, 2)

	// only one remaining, no error
	batch, err = c.NextBatch(ctx, 5)
	require.NoError(t, err)
	assert.Len(t, batch, 1)

	// drained cursor keeps returning empty batches
	batch, err = c.NextBatch(ctx, 5)
	require.NoError(t, err)
	assert.Empty(t, batch)
}

func TestCursor_NextBatchNonPositive(t *testing.T) {
	ctx := context.Background()
	c := newCursor(fixedResultSet(t, 3), logger.Nop())

	batch, err := c.NextBatch(ctx, 0)
	require.NoError(t, err)
	assert.Empty(t, batch)
}

func TestCursor_CollectAll(t *testing.T) {
	ctx := context.Background()
	c := newCursor(fixedResultSet(t, 4), logger.Nop())

	all, err := c.Collect(ctx)
	require.NoError(t, err)
	require.Len(t, all, 4)

	for i, doc := range all {
		got, ok := doc.Lookup("i").Int32OK()
		require.True(t, ok)
		assert.EqualValues(t, i, got)
	}

	_, err = c.Next(ctx)
	assert.ErrorIs(t, err, ErrCursorDrained)
}

func TestCursor_CollectEmpty(t *testing.T) {
	ctx := context.Background()
	c := newCursor(fixedResultSet(t, 0), logger.Nop())

	all, err := c.Collect(ctx)
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestCursor_CollectAfterNext(t *testing.T) {
	ctx := context.Background()
	c := newCursor(fixedResultSet(t, 3), logger.Nop())

	_, err := c.Next(ctx)
	require.NoError(t, err)

	rest, err := c.Collect(ctx)
	require.NoError(t, err)
	assert.Len(t, rest, 2)
}

func TestCursor_CloseIsIdempotent(t *testing.T) {
	ctx := context.Background()
	c := newCursor(fixedResultSet(t, 2), logger.Nop())

	require.NoError(t, c.Close(ctx))
	require.NoError(t, c.Close(ctx))

	_, err := c.Next(ctx)
	assert.ErrorIs(t, err, ErrCursorDrained)
}

func newTestSessionCursor(t *testing.T, n int) (*SessionCursor, *MockengineSession) {
	t.Helper()

	ctrl := gomock.NewController(t)
	raw := NewMockengineSession(ctrl)
	sess := newSession(raw, logger.Nop())
	return newSessionCursor(fixedResultSet(t, n), sess, logger.Nop()), raw
}

func TestSessionCursor_NextUntilDrained(t *testing.T) {
	ctx := context.Background()
	c, _ := newTestSessionCursor(t, 3)

	for i := 0; i < 3; i++ {
		doc, err := c.Next(ctx)
		require.NoError(t, err)

		got, ok := doc.Lookup("i").Int32OK()
		require.True(t, ok)
		assert.EqualValues(t, i, got)
	}

	_, err := c.Next(ctx)
	require.ErrorIs(t, err, ErrCursorDrained)
	_, err = c.Next(ctx)
	require.ErrorIs(t, err, ErrCursorDrained)
}

func TestSessionCursor_BatchAndCollect(t *testing.T) {
	ctx := context.Background()
	c, _ := newTestSessionCursor(t, 5)

	batch, err := c.NextBatch(ctx, 2)
	require.NoError(t, err)
	assert.Len(t, batch, 2)

	rest, err := c.Collect(ctx)
	require.NoError(t, err)
	assert.Len(t, rest, 3)

	all, err := c.Collect(ctx)
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestSessionCursor_EndedSession(t *testing.T) {
	ctx := context.Background()
	c, raw := newTestSessionCursor(t, 3)

	raw.EXPECT().EndSession(gomock.Any())
	c.Session().EndSession(ctx)

	// never silently serves documents from a dead session
	_, err := c.Next(ctx)
	require.Error(t, err)
	assert.Equal(t, KindTransaction, KindOf(err))
}

func TestSessionCursor_SerializesWithSessionOps(t *testing.T) {
	ctx := context.Background()
	c, _ := newTestSessionCursor(t, 8)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			_, err := c.Next(ctx)
			if err != nil {
				assert.ErrorIs(t, err, ErrCursorDrained)
				return
			}
		}
	}()

	// concurrent session-bound work while the cursor is advancing
	for i := 0; i < 4; i++ {
		err := c.Session().WithSession(ctx, func(context.Context) error { return nil })
		assert.NoError(t, err)
	}

	<-done
}
