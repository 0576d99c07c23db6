package gateway

import (
	"encoding/json"
	"net/http"

	"github.com/gofiber/fiber/v2"
	"go.mongodb.org/mongo-driver/bson"

	"github.com/nikmy/mongoflow/pkg/errors"
	"github.com/nikmy/mongoflow/pkg/mongoflow"
)

func (s *server) handleHealth(c *fiber.Ctx) error {
	if err := s.client.Ping(c.Context()); err != nil {
		return err
	}
	return c.JSON(fiber.Map{"status": "OK"})
}

func (s *server) handleStartSession(c *fiber.Ctx) error {
	var opts *mongoflow.SessionOptions
	if len(c.Body()) > 0 {
		opts = &mongoflow.SessionOptions{}
		if err := c.BodyParser(opts); err != nil {
			return fiber.NewError(http.StatusBadRequest, "malformed session options")
		}
	}

	sess, err := s.client.StartSession(c.Context(), opts)
	if err != nil {
		return err
	}

	return c.Status(http.StatusCreated).JSON(fiber.Map{"session_id": s.sessions.Add(sess)})
}

func (s *server) handleEndSession(c *fiber.Ctx) error {
	sess, ok := s.sessions.Remove(c.Params("id"))
	if !ok {
		return fiber.NewError(http.StatusNotFound, "unknown session")
	}

	sess.EndSession(c.Context())
	return c.JSON(fiber.Map{"status": "OK"})
}

func (s *server) handleStartTransaction(c *fiber.Ctx) error {
	sess, err := s.sessionOrErr(c.Params("id"))
	if err != nil {
		return err
	}

	var opts *mongoflow.TransactionOptions
	if len(c.Body()) > 0 {
		opts = &mongoflow.TransactionOptions{}
		if err := c.BodyParser(opts); err != nil {
			return fiber.NewError(http.StatusBadRequest, "malformed transaction options")
		}
	}

	if err := sess.StartTransaction(c.Context(), opts); err != nil {
		return err
	}
	return c.JSON(fiber.Map{"state": sess.State().String()})
}

func (s *server) handleCommitTransaction(c *fiber.Ctx) error {
	sess, err := s.sessionOrErr(c.Params("id"))
	if err != nil {
		return err
	}

	if err := sess.CommitTransaction(c.Context()); err != nil {
		return err
	}
	return c.JSON(fiber.Map{"state": sess.State().String()})
}

func (s *server) handleAbortTransaction(c *fiber.Ctx) error {
	sess, err := s.sessionOrErr(c.Params("id"))
	if err != nil {
		return err
	}

	if err := sess.AbortTransaction(c.Context()); err != nil {
		return err
	}
	return c.JSON(fiber.Map{"state": sess.State().String()})
}

type findRequest struct {
	Filter     json.RawMessage `json:"filter"`
	Sort       json.RawMessage `json:"sort"`
	Projection json.RawMessage `json:"projection"`
	Skip       *int64          `json:"skip"`
	Limit      *int64          `json:"limit"`
	BatchSize  *int32          `json:"batch_size"`
	SessionID  string          `json:"session_id"`
}

func (s *server) handleFind(c *fiber.Ctx) error {
	var req findRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}

	filter, err := parseDoc(req.Filter)
	if err != nil {
		return err
	}
	sort, err := parseDoc(req.Sort)
	if err != nil {
		return err
	}
	projection, err := parseDoc(req.Projection)
	if err != nil {
		return err
	}

	opts := &mongoflow.FindOptions{
		Sort:       sort,
		Projection: projection,
		Skip:       req.Skip,
		Limit:      req.Limit,
		BatchSize:  req.BatchSize,
	}

	var cur cursorHandle
	if req.SessionID == "" {
		cur, err = s.collection(c).Find(c.Context(), filter, opts)
	} else {
		var sess *mongoflow.Session
		sess, err = s.sessionOrErr(req.SessionID)
		if err != nil {
			return err
		}
		cur, err = s.collection(c).FindWithSession(c.Context(), filter, opts, sess)
	}
	if err != nil {
		return err
	}

	return c.Status(http.StatusCreated).JSON(fiber.Map{"cursor_id": s.cursors.Add(cur)})
}

func (s *server) handleFindOne(c *fiber.Ctx) error {
	var req findRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}

	filter, err := parseDoc(req.Filter)
	if err != nil {
		return err
	}
	sort, err := parseDoc(req.Sort)
	if err != nil {
		return err
	}
	projection, err := parseDoc(req.Projection)
	if err != nil {
		return err
	}

	sess, err := s.optionalSession(req.SessionID)
	if err != nil {
		return err
	}

	opts := &mongoflow.FindOneOptions{Sort: sort, Projection: projection, Skip: req.Skip}
	doc, err := s.collection(c).FindOne(c.Context(), filter, opts, sess)
	if err != nil {
		return err
	}

	rendered, err := renderDoc(doc)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"document": rendered})
}

type insertOneRequest struct {
	Document  json.RawMessage `json:"document"`
	SessionID string          `json:"session_id"`
}

func (s *server) handleInsertOne(c *fiber.Ctx) error {
	var req insertOneRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}

	doc, err := parseDoc(req.Document)
	if err != nil {
		return err
	}
	sess, err := s.optionalSession(req.SessionID)
	if err != nil {
		return err
	}

	res, err := s.collection(c).InsertOne(c.Context(), doc, nil, sess)
	if err != nil {
		return err
	}

	return respondExt(c, http.StatusCreated, bson.M{"inserted_id": res.InsertedID})
}

type insertManyRequest struct {
	Documents []json.RawMessage `json:"documents"`
	Ordered   *bool             `json:"ordered"`
	SessionID string            `json:"session_id"`
}

func (s *server) handleInsertMany(c *fiber.Ctx) error {
	var req insertManyRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}

	docs, err := parseDocs(req.Documents)
	if err != nil {
		return err
	}
	sess, err := s.optionalSession(req.SessionID)
	if err != nil {
		return err
	}

	res, err := s.collection(c).InsertMany(c.Context(), docs, &mongoflow.InsertManyOptions{Ordered: req.Ordered}, sess)
	if err != nil {
		return err
	}

	return respondExt(c, http.StatusCreated, bson.M{"inserted_ids": res.InsertedIDs})
}

type updateRequest struct {
	Filter    json.RawMessage `json:"filter"`
	Update    json.RawMessage `json:"update"`
	Upsert    *bool           `json:"upsert"`
	SessionID string          `json:"session_id"`
}

func (s *server) handleUpdate(many bool) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var req updateRequest
		if err := parseBody(c, &req); err != nil {
			return err
		}

		filter, err := parseDoc(req.Filter)
		if err != nil {
			return err
		}
		update, err := parseDoc(req.Update)
		if err != nil {
			return err
		}
		sess, err := s.optionalSession(req.SessionID)
		if err != nil {
			return err
		}

		opts := &mongoflow.UpdateOptions{Upsert: req.Upsert}

		var res mongoflow.UpdateResult
		if many {
			res, err = s.collection(c).UpdateMany(c.Context(), filter, update, opts, sess)
		} else {
			res, err = s.collection(c).UpdateOne(c.Context(), filter, update, opts, sess)
		}
		if err != nil {
			return err
		}

		return respondExt(c, http.StatusOK, bson.M{
			"matched_count":  res.MatchedCount,
			"modified_count": res.ModifiedCount,
			"upserted_count": res.UpsertedCount,
			"upserted_id":    res.UpsertedID,
		})
	}
}

type deleteRequest struct {
	Filter    json.RawMessage `json:"filter"`
	SessionID string          `json:"session_id"`
}

func (s *server) handleDelete(many bool) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var req deleteRequest
		if err := parseBody(c, &req); err != nil {
			return err
		}

		filter, err := parseDoc(req.Filter)
		if err != nil {
			return err
		}
		sess, err := s.optionalSession(req.SessionID)
		if err != nil {
			return err
		}

		var res mongoflow.DeleteResult
		if many {
			res, err = s.collection(c).DeleteMany(c.Context(), filter, nil, sess)
		} else {
			res, err = s.collection(c).DeleteOne(c.Context(), filter, nil, sess)
		}
		if err != nil {
			return err
		}

		return c.JSON(fiber.Map{"deleted_count": res.DeletedCount})
	}
}

type countRequest struct {
	Filter    json.RawMessage `json:"filter"`
	Limit     *int64          `json:"limit"`
	Skip      *int64          `json:"skip"`
	SessionID string          `json:"session_id"`
}

func (s *server) handleCount(c *fiber.Ctx) error {
	var req countRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}

	filter, err := parseDoc(req.Filter)
	if err != nil {
		return err
	}
	sess, err := s.optionalSession(req.SessionID)
	if err != nil {
		return err
	}

	opts := &mongoflow.CountOptions{Limit: req.Limit, Skip: req.Skip}
	n, err := s.collection(c).CountDocuments(c.Context(), filter, opts, sess)
	if err != nil {
		return err
	}

	return c.JSON(fiber.Map{"count": n})
}

type distinctRequest struct {
	Field     string          `json:"field"`
	Filter    json.RawMessage `json:"filter"`
	SessionID string          `json:"session_id"`
}

func (s *server) handleDistinct(c *fiber.Ctx) error {
	var req distinctRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	if req.Field == "" {
		return fiber.NewError(http.StatusBadRequest, "missing required parameter \"field\"")
	}

	filter, err := parseDoc(req.Filter)
	if err != nil {
		return err
	}
	sess, err := s.optionalSession(req.SessionID)
	if err != nil {
		return err
	}

	values, err := s.collection(c).Distinct(c.Context(), req.Field, filter, nil, sess)
	if err != nil {
		return err
	}

	return respondExt(c, http.StatusOK, bson.M{"values": values})
}

type aggregateRequest struct {
	Pipeline  []json.RawMessage `json:"pipeline"`
	BatchSize *int32            `json:"batch_size"`
	SessionID string            `json:"session_id"`
}

func (s *server) handleAggregate(c *fiber.Ctx) error {
	var req aggregateRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}

	pipeline, err := parseDocs(req.Pipeline)
	if err != nil {
		return err
	}

	opts := &mongoflow.AggregateOptions{BatchSize: req.BatchSize}

	var cur cursorHandle
	if req.SessionID == "" {
		cur, err = s.collection(c).Aggregate(c.Context(), pipeline, opts)
	} else {
		var sess *mongoflow.Session
		sess, err = s.sessionOrErr(req.SessionID)
		if err != nil {
			return err
		}
		cur, err = s.collection(c).AggregateWithSession(c.Context(), pipeline, opts, sess)
	}
	if err != nil {
		return err
	}

	return c.Status(http.StatusCreated).JSON(fiber.Map{"cursor_id": s.cursors.Add(cur)})
}

func (s *server) handleCursorNext(c *fiber.Ctx) error {
	id := c.Params("id")
	cur, err := s.cursorOrErr(id)
	if err != nil {
		return err
	}

	doc, err := cur.Next(c.Context())
	if errors.Is(err, mongoflow.ErrCursorDrained) {
		s.cursors.Remove(id)
		return c.JSON(fiber.Map{"done": true})
	}
	if err != nil {
		return err
	}

	rendered, err := renderDoc(doc)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"done": false, "document": rendered})
}

type nextBatchRequest struct {
	N int `json:"n"`
}

func (s *server) handleCursorNextBatch(c *fiber.Ctx) error {
	id := c.Params("id")
	cur, err := s.cursorOrErr(id)
	if err != nil {
		return err
	}

	var req nextBatchRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	if req.N <= 0 {
		return fiber.NewError(http.StatusBadRequest, "batch size must be positive")
	}

	batch, err := cur.NextBatch(c.Context(), req.N)
	if err != nil {
		return err
	}

	// A short batch means the cursor drained; there is nothing left
	// to hold the handle for.
	done := len(batch) < req.N
	if done {
		s.cursors.Remove(id)
	}

	rendered, err := renderDocs(batch)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"done": done, "documents": rendered})
}

func (s *server) handleCursorCollect(c *fiber.Ctx) error {
	id := c.Params("id")
	cur, err := s.cursorOrErr(id)
	if err != nil {
		return err
	}

	docs, err := cur.Collect(c.Context())
	if err != nil {
		return err
	}
	s.cursors.Remove(id)

	rendered, err := renderDocs(docs)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"done": true, "documents": rendered})
}

func (s *server) handleCursorClose(c *fiber.Ctx) error {
	cur, ok := s.cursors.Remove(c.Params("id"))
	if !ok {
		return fiber.NewError(http.StatusNotFound, "unknown cursor")
	}

	if err := cur.Close(c.Context()); err != nil {
		return err
	}
	return c.JSON(fiber.Map{"status": "OK"})
}

func (s *server) collection(c *fiber.Ctx) *mongoflow.Collection {
	return s.client.Database(c.Params("db")).Collection(c.Params("coll"))
}

func (s *server) sessionOrErr(id string) (*mongoflow.Session, error) {
	sess, ok := s.sessions.Get(id)
	if !ok {
		return nil, fiber.NewError(http.StatusNotFound, "unknown session")
	}
	return sess, nil
}

func (s *server) optionalSession(id string) (*mongoflow.Session, error) {
	if id == "" {
		return nil, nil
	}
	return s.sessionOrErr(id)
}

func (s *server) cursorOrErr(id string) (cursorHandle, error) {
	cur, ok := s.cursors.Get(id)
	if !ok {
		return nil, fiber.NewError(http.StatusNotFound, "unknown cursor")
	}
	return cur, nil
}

func parseBody(c *fiber.Ctx, dst any) error {
	if len(c.Body()) == 0 {
		return nil
	}
	if err := json.Unmarshal(c.Body(), dst); err != nil {
		return fiber.NewError(http.StatusBadRequest, "malformed request body: "+err.Error())
	}
	return nil
}
