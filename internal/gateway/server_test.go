package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"

	"github.com/nikmy/mongoflow/pkg/errors"
	"github.com/nikmy/mongoflow/pkg/logger"
	"github.com/nikmy/mongoflow/pkg/mongoflow"
)

func newTestServer(t *testing.T) *server {
	t.Helper()

	client, err := mongoflow.Connect(context.Background(), mongoflow.Config{
		URL: "mongodb://localhost:27017",
	}, logger.Nop())
	require.NoError(t, err)

	var cfg Config
	cfg.HTTP.Addr = "localhost:0"

	return NewServer(cfg, client, logger.Nop()).(*server)
}

// fakeCursor feeds a fixed document list through the cursor endpoints.
type fakeCursor struct {
	docs   []bson.Raw
	pos    int
	closed bool
}

func mustRaw(t *testing.T, v any) bson.Raw {
	t.Helper()
	raw, err := bson.Marshal(v)
	require.NoError(t, err)
	return raw
}

func (f *fakeCursor) Next(context.Context) (bson.Raw, error) {
	if f.pos >= len(f.docs) {
		return nil, mongoflow.ErrCursorDrained
	}
	doc := f.docs[f.pos]
	f.pos++
	return doc, nil
}

func (f *fakeCursor) NextBatch(_ context.Context, n int) ([]bson.Raw, error) {
	batch := make([]bson.Raw, 0, n)
	for len(batch) < n && f.pos < len(f.docs) {
		batch = append(batch, f.docs[f.pos])
		f.pos++
	}
	return batch, nil
}

func (f *fakeCursor) Collect(ctx context.Context) ([]bson.Raw, error) {
	return f.NextBatch(ctx, len(f.docs)-f.pos)
}

func (f *fakeCursor) Close(context.Context) error {
	f.closed = true
	return nil
}

func doJSON(t *testing.T, s *server, method, target string, body any) (*http.Response, map[string]json.RawMessage) {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}

	req := httptest.NewRequest(method, target, &buf)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.http.Test(req)
	require.NoError(t, err)

	payload := map[string]json.RawMessage{}
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	if len(data) > 0 {
		require.NoError(t, json.Unmarshal(data, &payload))
	}
	return resp, payload
}

func TestCursorEndpoints_NextUntilDone(t *testing.T) {
	s := newTestServer(t)

	cur := &fakeCursor{docs: []bson.Raw{
		mustRaw(t, bson.M{"i": int32(1)}),
		mustRaw(t, bson.M{"i": int32(2)}),
	}}
	id := s.cursors.Add(cur)

	for i := 0; i < 2; i++ {
		resp, payload := doJSON(t, s, http.MethodPost, "/cursors/"+id+"/next", nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		assert.JSONEq(t, "false", string(payload["done"]))
		assert.NotEmpty(t, payload["document"])
	}

	resp, payload := doJSON(t, s, http.MethodPost, "/cursors/"+id+"/next", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, "true", string(payload["done"]))

	// the drained handle is released
	resp, _ = doJSON(t, s, http.MethodPost, "/cursors/"+id+"/next", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Zero(t, s.cursors.Len())
}

func TestCursorEndpoints_NextBatch(t *testing.T) {
	s := newTestServer(t)

	cur := &fakeCursor{docs: []bson.Raw{
		mustRaw(t, bson.M{"i": int32(1)}),
		mustRaw(t, bson.M{"i": int32(2)}),
		mustRaw(t, bson.M{"i": int32(3)}),
	}}
	id := s.cursors.Add(cur)

	resp, payload := doJSON(t, s, http.MethodPost, "/cursors/"+id+"/next-batch", map[string]int{"n": 2})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, "false", string(payload["done"]))

	var docs []json.RawMessage
	require.NoError(t, json.Unmarshal(payload["documents"], &docs))
	assert.Len(t, docs, 2)

	// short batch drains the handle
	resp, payload = doJSON(t, s, http.MethodPost, "/cursors/"+id+"/next-batch", map[string]int{"n": 2})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, "true", string(payload["done"]))
	require.NoError(t, json.Unmarshal(payload["documents"], &docs))
	assert.Len(t, docs, 1)

	assert.Zero(t, s.cursors.Len())
}

func TestCursorEndpoints_NextBatchRejectsBadSize(t *testing.T) {
	s := newTestServer(t)
	id := s.cursors.Add(&fakeCursor{})

	resp, _ := doJSON(t, s, http.MethodPost, "/cursors/"+id+"/next-batch", map[string]int{"n": 0})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestCursorEndpoints_Collect(t *testing.T) {
	s := newTestServer(t)

	cur := &fakeCursor{docs: []bson.Raw{
		mustRaw(t, bson.M{"i": int32(1)}),
		mustRaw(t, bson.M{"i": int32(2)}),
	}}
	id := s.cursors.Add(cur)

	resp, payload := doJSON(t, s, http.MethodPost, "/cursors/"+id+"/collect", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, "true", string(payload["done"]))

	var docs []json.RawMessage
	require.NoError(t, json.Unmarshal(payload["documents"], &docs))
	assert.Len(t, docs, 2)
	assert.Zero(t, s.cursors.Len())
}

func TestCursorEndpoints_Close(t *testing.T) {
	s := newTestServer(t)

	cur := &fakeCursor{docs: []bson.Raw{mustRaw(t, bson.M{"i": int32(1)})}}
	id := s.cursors.Add(cur)

	resp, _ := doJSON(t, s, http.MethodDelete, "/cursors/"+id, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, cur.closed)

	resp, _ = doJSON(t, s, http.MethodDelete, "/cursors/"+id, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestUnknownHandles(t *testing.T) {
	s := newTestServer(t)

	for _, target := range []string{
		"/sessions/no-such-id/transaction/start",
		"/sessions/no-such-id/transaction/commit",
		"/sessions/no-such-id/transaction/abort",
		"/cursors/no-such-id/next",
		"/cursors/no-such-id/collect",
	} {
		resp, _ := doJSON(t, s, http.MethodPost, target, nil)
		assert.Equal(t, http.StatusNotFound, resp.StatusCode, target)
	}

	resp, _ := doJSON(t, s, http.MethodDelete, "/sessions/no-such-id", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestFind_MalformedFilter(t *testing.T) {
	s := newTestServer(t)

	resp, _ := doJSON(t, s, http.MethodPost, "/collections/db/coll/find", map[string]any{
		"filter": "not a document",
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestMetricsEndpoint(t *testing.T) {
	s := newTestServer(t)
	s.cursors.Add(&fakeCursor{})

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	resp, err := s.http.Test(req)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "mongogw_cursors_current 1")
	assert.Contains(t, string(body), "mongogw_sessions_current 0")
}

func TestServer_ShutdownReleasesHandles(t *testing.T) {
	s := newTestServer(t)

	cur := &fakeCursor{docs: []bson.Raw{mustRaw(t, bson.M{"i": int32(1)})}}
	s.cursors.Add(cur)

	require.NoError(t, s.Shutdown(context.Background()))

	assert.True(t, cur.closed)
	assert.Zero(t, s.cursors.Len())
	assert.Zero(t, s.sessions.Len())
}

func TestStatusOf(t *testing.T) {
	for _, tt := range []struct {
		kind mongoflow.Kind
		want int
	}{
		{mongoflow.KindDuplicateKey, http.StatusConflict},
		{mongoflow.KindTransaction, http.StatusConflict},
		{mongoflow.KindInvalidArgument, http.StatusBadRequest},
		{mongoflow.KindBSONDecode, http.StatusBadRequest},
		{mongoflow.KindServerSelection, http.StatusServiceUnavailable},
		{mongoflow.KindConnection, http.StatusServiceUnavailable},
		{mongoflow.KindGridFSNotFound, http.StatusNotFound},
		{mongoflow.KindDatabase, http.StatusInternalServerError},
		{mongoflow.KindInternal, http.StatusInternalServerError},
	} {
		t.Run(tt.kind.String(), func(t *testing.T) {
			err := &mongoflow.Error{Err: errors.Error("boom"), Kind: tt.kind}
			assert.Equal(t, tt.want, statusOf(err))
		})
	}

	assert.Equal(t, http.StatusInternalServerError, statusOf(errors.Error("unclassified")))
}

func TestCodec_ParseRender(t *testing.T) {
	doc, err := parseDoc(json.RawMessage(`{"n": {"$numberLong": "42"}}`))
	require.NoError(t, err)
	assert.EqualValues(t, 42, doc.Lookup("n").Int64())

	rendered, err := renderDoc(doc)
	require.NoError(t, err)
	assert.JSONEq(t, `{"n": {"$numberLong": "42"}}`, string(rendered))

	empty, err := parseDoc(nil)
	require.NoError(t, err)
	assert.Nil(t, empty)

	null, err := renderDoc(nil)
	require.NoError(t, err)
	assert.JSONEq(t, "null", string(null))

	_, err = parseDoc(json.RawMessage(`{broken`))
	require.Error(t, err)

	var fe *fiber.Error
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, http.StatusBadRequest, fe.Code)
}
