package mongoflow

import (
	"fmt"

	"go.mongodb.org/mongo-driver/bson/bsoncodec"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/gridfs"
	"go.mongodb.org/mongo-driver/x/mongo/driver/session"
	"go.mongodb.org/mongo-driver/x/mongo/driver/topology"

	"github.com/nikmy/mongoflow/pkg/bridge"
	"github.com/nikmy/mongoflow/pkg/errors"
)

// Kind is a coarse, stable category of a database failure. Callers
// branch on kinds instead of the engine's own error model.
type Kind int

const (
	// KindDatabase is the catch-all for engine failures
	// that fit no other kind.
	KindDatabase Kind = iota

	KindInvalidArgument
	KindConfiguration
	KindBSONEncode
	KindBSONDecode
	KindConnection
	KindServerSelection
	KindWriteConcern
	KindWrite

	// KindDuplicateKey is a write failure with server code 11000.
	// Callers rely on it for upsert and idempotency logic.
	KindDuplicateKey

	KindBulkWrite
	KindOperation
	KindTransaction
	KindGridFSNotFound
	KindGridFS

	// KindInternal reports an executor-level failure (panic inside
	// the work, stopped executor), not a database one.
	KindInternal
)

func (k Kind) String() string {
	switch k {
	case KindInvalidArgument:
		return "invalid argument"
	case KindConfiguration:
		return "configuration"
	case KindBSONEncode:
		return "bson encode"
	case KindBSONDecode:
		return "bson decode"
	case KindConnection:
		return "connection"
	case KindServerSelection:
		return "server selection"
	case KindWriteConcern:
		return "write concern"
	case KindWrite:
		return "write"
	case KindDuplicateKey:
		return "duplicate key"
	case KindBulkWrite:
		return "bulk write"
	case KindOperation:
		return "operation"
	case KindTransaction:
		return "transaction"
	case KindGridFSNotFound:
		return "gridfs file not found"
	case KindGridFS:
		return "gridfs"
	case KindInternal:
		return "internal"
	default:
		return "database"
	}
}

// Error is a classified database failure.
type Error struct {
	Err  error
	Kind Kind
	Code int32
}

func (e *Error) Error() string {
	if e.Code != 0 {
		return fmt.Sprintf("%s error (code %d): %s", e.Kind, e.Code, e.Err)
	}
	return fmt.Sprintf("%s error: %s", e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf extracts the classified kind from err.
// Unclassified errors report KindDatabase.
func KindOf(err error) Kind {
	var ce *Error
	if errors.As(err, &ce) {
		return ce.Kind
	}
	return KindDatabase
}

// Classify maps an engine-level failure to exactly one Kind. It is
// total: every error classifies, falling back to KindDatabase. Already
// classified errors pass through unchanged. Classify(nil) is nil.
func Classify(err error) error {
	if err == nil {
		return nil
	}

	var ce *Error
	if errors.As(err, &ce) {
		return err
	}

	return classify(err)
}

// the server code for duplicate key violations
const codeDuplicateKey = 11000

// server codes reported for failed authentication
const (
	codeUnauthorized         = 13
	codeAuthenticationFailed = 18
)

func classify(err error) *Error {
	if errors.Is(err, bridge.ErrPanicked) || errors.Is(err, bridge.ErrStopped) {
		return &Error{Kind: KindInternal, Err: err}
	}

	if isTransactionState(err) {
		return &Error{Kind: KindTransaction, Err: err}
	}

	var we mongo.WriteException
	if errors.As(err, &we) {
		return classifyWrite(err, we)
	}

	var bwe mongo.BulkWriteException
	if errors.As(err, &bwe) {
		for _, w := range bwe.WriteErrors {
			if w.Code == codeDuplicateKey {
				return &Error{Kind: KindDuplicateKey, Err: err, Code: codeDuplicateKey}
			}
		}
		return &Error{Kind: KindBulkWrite, Err: err}
	}

	var cmd mongo.CommandError
	if errors.As(err, &cmd) {
		switch cmd.Code {
		case codeUnauthorized, codeAuthenticationFailed:
			return &Error{Kind: KindConfiguration, Err: err, Code: cmd.Code}
		default:
			return &Error{Kind: KindOperation, Err: err, Code: cmd.Code}
		}
	}

	var sse topology.ServerSelectionError
	if errors.As(err, &sse) || errors.Is(err, topology.ErrServerSelectionTimeout) {
		return &Error{Kind: KindServerSelection, Err: err}
	}

	if errors.Is(err, mongo.ErrClientDisconnected) {
		return &Error{Kind: KindConnection, Err: err}
	}

	var me mongo.MarshalError
	if errors.As(err, &me) {
		return &Error{Kind: KindBSONEncode, Err: err}
	}

	var de *bsoncodec.DecodeError
	if errors.As(err, &de) {
		return &Error{Kind: KindBSONDecode, Err: err}
	}

	if isInvalidArgument(err) {
		return &Error{Kind: KindInvalidArgument, Err: err}
	}

	if errors.Is(err, gridfs.ErrFileNotFound) {
		return &Error{Kind: KindGridFSNotFound, Err: err}
	}
	if isGridFSStream(err) {
		return &Error{Kind: KindGridFS, Err: err}
	}

	return &Error{Kind: KindDatabase, Err: err}
}

// A write failure with server code 11000 is a duplicate key error
// regardless of its outer shape; otherwise write concern failures win
// over plain write errors.
func classifyWrite(err error, we mongo.WriteException) *Error {
	for _, w := range we.WriteErrors {
		if w.Code == codeDuplicateKey {
			return &Error{Kind: KindDuplicateKey, Err: err, Code: codeDuplicateKey}
		}
	}

	if we.WriteConcernError != nil {
		return &Error{Kind: KindWriteConcern, Err: err, Code: int32(we.WriteConcernError.Code)}
	}

	var code int32
	if len(we.WriteErrors) > 0 {
		code = int32(we.WriteErrors[0].Code)
	}
	return &Error{Kind: KindWrite, Err: err, Code: code}
}

func isTransactionState(err error) bool {
	for _, target := range []error{
		session.ErrSessionEnded,
		session.ErrNoTransactStarted,
		session.ErrTransactInProgress,
		session.ErrAbortAfterCommit,
		session.ErrAbortTwice,
		session.ErrCommitAfterAbort,
		session.ErrSnapshotTransaction,
		session.ErrUnackWCUnsupported,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

func isInvalidArgument(err error) bool {
	for _, target := range []error{
		mongo.ErrNilDocument,
		mongo.ErrNilCursor,
		mongo.ErrEmptySlice,
		mongo.ErrInvalidIndexValue,
		mongo.ErrMultipleIndexDrop,
		mongo.ErrNonStringIndexName,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

func isGridFSStream(err error) bool {
	for _, target := range []error{
		gridfs.ErrStreamClosed,
		gridfs.ErrWrongIndex,
		gridfs.ErrWrongSize,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// transactionError builds a classified transaction state violation
// detected by this layer before reaching the engine.
func transactionError(format string, args ...any) *Error {
	return &Error{Kind: KindTransaction, Err: errors.Error(format, args...)}
}

// classifyGridFS downgrades the catch-all kind to KindGridFS for
// failures coming out of bucket operations.
func classifyGridFS(err error) error {
	classified := Classify(err)
	if classified == nil {
		return nil
	}

	var ce *Error
	if errors.As(classified, &ce) && ce.Kind == KindDatabase {
		return &Error{Kind: KindGridFS, Err: ce.Err}
	}
	return classified
}
