package firestore

import (
	"context"

	"cloud.google.com/go/firestore"

	pfirestore "github.com/marketstall/api/internal/platform/firestore"
)

type txContextKey struct{}

// txState carries an open Firestore transaction through the context. Reads
// execute immediately; writes are queued and flushed after the transactional
// function returns, because the Firestore client requires every read to happen
// before the first write.
type txState struct {
	tx     *firestore.Transaction
	writes []func(tx *firestore.Transaction) error
}

func (s *txState) enqueue(write func(tx *firestore.Transaction) error) {
	s.writes = append(s.writes, write)
}

func (s *txState) flush() error {
	for _, write := range s.writes {
		if err := write(s.tx); err != nil {
			return err
		}
	}
	s.writes = nil
	return nil
}

func withTxState(ctx context.Context, state *txState) context.Context {
	return context.WithValue(ctx, txContextKey{}, state)
}

func txStateFrom(ctx context.Context) (*txState, bool) {
	state, ok := ctx.Value(txContextKey{}).(*txState)
	return state, ok && state != nil
}

// runWrite executes fn against the ambient transaction when one is present,
// otherwise inside a fresh single-operation transaction.
func runWrite(ctx context.Context, provider *pfirestore.Provider, fn func(ctx context.Context, state *txState) error) error {
	if state, ok := txStateFrom(ctx); ok {
		return fn(ctx, state)
	}
	return provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		state := &txState{tx: tx}
		if err := fn(ctx, state); err != nil {
			return err
		}
		return state.flush()
	})
}
