package memory

import (
	"context"
	"sync"
)

// TxStore is implemented by the in-memory stores that participate in a unit
// of work: they capture their state up front and roll back to it on failure.
type TxStore interface {
	Snapshot() any
	Restore(snapshot any)
}

// UnitOfWork gives the in-memory wiring the same all-or-nothing guarantee the
// database transaction gives the postgres wiring. Units of work are
// serialized by a mutex; on an error from fn every participating store is
// restored to its pre-fn state.
type UnitOfWork struct {
	mu     sync.Mutex
	stores []TxStore
}

func NewUnitOfWork(stores ...TxStore) *UnitOfWork {
	return &UnitOfWork{stores: stores}
}

func (u *UnitOfWork) InTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	u.mu.Lock()
	defer u.mu.Unlock()
	snapshots := make([]any, len(u.stores))
	for i, store := range u.stores {
		snapshots[i] = store.Snapshot()
	}
	if err := fn(ctx); err != nil {
		for i, store := range u.stores {
			store.Restore(snapshots[i])
		}
		return err
	}
	return nil
}
