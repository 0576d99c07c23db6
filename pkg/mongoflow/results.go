package mongoflow

import "go.mongodb.org/mongo-driver/mongo"

// Operation results are immutable value objects; identifiers keep the
// engine's representation (e.g. ObjectID) and are rendered by callers.

type InsertOneResult struct {
	InsertedID any `json:"inserted_id"`
}

type InsertManyResult struct {
	InsertedIDs []any `json:"inserted_ids"`
}

type UpdateResult struct {
	MatchedCount  int64 `json:"matched_count"`
	ModifiedCount int64 `json:"modified_count"`
	UpsertedCount int64 `json:"upserted_count"`
	UpsertedID    any   `json:"upserted_id,omitempty"`
}

type DeleteResult struct {
	DeletedCount int64 `json:"deleted_count"`
}

func newUpdateResult(r *mongo.UpdateResult) UpdateResult {
	if r == nil {
		return UpdateResult{}
	}
	return UpdateResult{
		MatchedCount:  r.MatchedCount,
		ModifiedCount: r.ModifiedCount,
		UpsertedCount: r.UpsertedCount,
		UpsertedID:    r.UpsertedID,
	}
}
