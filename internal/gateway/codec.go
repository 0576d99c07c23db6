package gateway

import (
	"bytes"
	"encoding/json"
	"net/http"

	"github.com/gofiber/fiber/v2"
	"go.mongodb.org/mongo-driver/bson"

	"github.com/nikmy/mongoflow/pkg/errors"
)

var jsonNull = []byte("null")

// parseDoc converts one extended JSON document into raw BSON. Absent
// input is a nil document, which collection operations treat as
// "match everything" or "not set".
func parseDoc(data json.RawMessage) (bson.Raw, error) {
	if len(data) == 0 || bytes.Equal(data, jsonNull) {
		return nil, nil
	}

	var raw bson.Raw
	if err := bson.UnmarshalExtJSON(data, false, &raw); err != nil {
		return nil, fiber.NewError(http.StatusBadRequest, "malformed document: "+err.Error())
	}
	return raw, nil
}

func parseDocs(data []json.RawMessage) ([]bson.Raw, error) {
	docs := make([]bson.Raw, 0, len(data))
	for _, d := range data {
		doc, err := parseDoc(d)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, nil
}

func renderDoc(doc bson.Raw) (json.RawMessage, error) {
	if doc == nil {
		return json.RawMessage(jsonNull), nil
	}

	out, err := bson.MarshalExtJSON(doc, true, false)
	if err != nil {
		return nil, errors.WrapFail(err, "render document")
	}
	return out, nil
}

func renderDocs(docs []bson.Raw) ([]json.RawMessage, error) {
	rendered := make([]json.RawMessage, 0, len(docs))
	for _, doc := range docs {
		out, err := renderDoc(doc)
		if err != nil {
			return nil, err
		}
		rendered = append(rendered, out)
	}
	return rendered, nil
}

// respondExt writes body as canonical extended JSON, so values like
// object ids and int64 counters survive the trip back to the caller.
func respondExt(c *fiber.Ctx, status int, body any) error {
	out, err := bson.MarshalExtJSON(body, true, false)
	if err != nil {
		return errors.WrapFail(err, "encode response")
	}

	c.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	return c.Status(status).Send(out)
}
