package mongoflow

import (
	"context"
	"sync"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/x/mongo/driver/session"

	"github.com/nikmy/mongoflow/pkg/bridge"
	"github.com/nikmy/mongoflow/pkg/logger"
)

// TxnState is the transaction state bound to a session.
//
// Legal transitions are TxnNone -> TxnActive -> TxnCommitted or
// TxnAborted. A session that finished a transaction cannot start
// another one; start a new session instead.
type TxnState int32

const (
	TxnNone TxnState = iota
	TxnActive
	TxnCommitted
	TxnAborted
)

func (s TxnState) String() string {
	switch s {
	case TxnActive:
		return "active"
	case TxnCommitted:
		return "committed"
	case TxnAborted:
		return "aborted"
	default:
		return "none"
	}
}

// engineSession is the part of the driver session this layer drives.
// mongo.Session satisfies it.
type engineSession interface {
	StartTransaction(...*options.TransactionOptions) error
	CommitTransaction(context.Context) error
	AbortTransaction(context.Context) error
	EndSession(context.Context)
	ID() bson.Raw
}

// Session owns one driver session and serializes every use of it.
//
// The database protocol is not safe for concurrent multiplexed use on
// one session, so every operation bound to a Session runs under its
// lock: two racing operations are totally ordered by lock acquisition.
// A Session is shared by all call sites and every SessionCursor opened
// under it; whoever uses it last should call EndSession.
type Session struct {
	mu    sync.Mutex
	raw   engineSession
	state TxnState
	ended bool
	log   logger.Logger
}

func newSession(raw engineSession, log logger.Logger) *Session {
	return &Session{
		raw: raw,
		log: log.With("session"),
	}
}

// WithSession acquires the session's lock, runs op with the session
// bound to its context, and releases the lock on every exit path.
// There is no timeout at this layer: a stuck op holds the lock until
// the engine call resolves.
func (s *Session) WithSession(ctx context.Context, op func(ctx context.Context) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ended {
		return Classify(session.ErrSessionEnded)
	}

	return op(s.bind(ctx))
}

// bind associates the engine session with ctx so that driver calls
// made by op join this session's causal chain.
func (s *Session) bind(ctx context.Context) context.Context {
	if ms, ok := s.raw.(mongo.Session); ok {
		return mongo.NewSessionContext(ctx, ms)
	}
	return ctx
}

// State reports the current transaction state.
func (s *Session) State() TxnState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// StartTransaction begins a transaction on this session.
// It is legal only when no transaction was ever started on it.
func (s *Session) StartTransaction(ctx context.Context, opts *TransactionOptions) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ended {
		return Classify(session.ErrSessionEnded)
	}

	switch s.state {
	case TxnNone:
	case TxnActive:
		return transactionError("transaction is already active")
	default:
		return transactionError("session already ran a %s transaction, start a new session", s.state)
	}

	engineOpts, err := opts.engine()
	if err != nil {
		return Classify(err)
	}

	_, err = bridge.Run(ctx, func(context.Context) (struct{}, error) {
		return struct{}{}, s.raw.StartTransaction(engineOpts...)
	})
	if err != nil {
		return Classify(err)
	}

	s.state = TxnActive
	s.log.Debugf("transaction started")
	return nil
}

// CommitTransaction commits the active transaction. On a classified
// engine failure the state stays active, the engine supports retrying
// the commit.
func (s *Session) CommitTransaction(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ended {
		return Classify(session.ErrSessionEnded)
	}

	if s.state != TxnActive {
		return transactionError("commit without active transaction (state is %s)", s.state)
	}

	_, err := bridge.Run(ctx, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, s.raw.CommitTransaction(ctx)
	})
	if err != nil {
		return Classify(err)
	}

	s.state = TxnCommitted
	s.log.Debugf("transaction committed")
	return nil
}

// AbortTransaction aborts the active transaction. The state becomes
// aborted even when the engine abort fails; abort is best-effort.
func (s *Session) AbortTransaction(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ended {
		return Classify(session.ErrSessionEnded)
	}

	if s.state != TxnActive {
		return transactionError("abort without active transaction (state is %s)", s.state)
	}

	_, err := bridge.Run(ctx, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, s.raw.AbortTransaction(ctx)
	})

	s.state = TxnAborted
	s.log.Debugf("transaction aborted")
	return Classify(err)
}

// EndSession aborts a still-active transaction and releases the
// engine session. It is idempotent; any use of the session afterwards
// fails with a classified transaction error.
func (s *Session) EndSession(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ended {
		return
	}

	if s.state == TxnActive {
		_, err := bridge.Run(ctx, func(ctx context.Context) (struct{}, error) {
			return struct{}{}, s.raw.AbortTransaction(ctx)
		})
		if err != nil {
			s.log.Warn(Classify(err))
		}
		s.state = TxnAborted
	}

	_, _ = bridge.Run(ctx, func(ctx context.Context) (struct{}, error) {
		s.raw.EndSession(ctx)
		return struct{}{}, nil
	})

	s.ended = true
	s.log.Debugf("session ended")
}
