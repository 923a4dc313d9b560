package persistence

import (
	"context"
	"sync"
	"sync/atomic"

	"gorm.io/gorm"
)

type txKey struct{}

// unitOfWork is the transaction carried through ctx. Contexts derived inside
// a transaction outlive it in commit hooks, so a finished unit is ignored.
type unitOfWork struct {
	tx   *gorm.DB
	done atomic.Bool

	mu          sync.Mutex
	afterCommit []func()
}

// GormTransactionManager implements shared.TransactionManager. The active
// *gorm.DB travels in the context so repositories join it without extra
// parameters.
type GormTransactionManager struct {
	db *gorm.DB
}

// NewGormTransactionManager creates a new GormTransactionManager
func NewGormTransactionManager(db *gorm.DB) *GormTransactionManager {
	return &GormTransactionManager{db: db}
}

// WithinTransaction runs fn in a transaction. A nested call joins the outer
// one and commit hooks wait for the outermost commit.
func (m *GormTransactionManager) WithinTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := activeUnit(ctx); ok {
		return fn(ctx)
	}

	uow := &unitOfWork{}
	err := m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		uow.tx = tx
		return fn(context.WithValue(ctx, txKey{}, uow))
	})
	uow.done.Store(true)
	if err != nil {
		return err
	}

	uow.mu.Lock()
	hooks := uow.afterCommit
	uow.afterCommit = nil
	uow.mu.Unlock()
	for _, hook := range hooks {
		hook()
	}
	return nil
}

// AfterCommit queues fn for after the outermost commit, or runs it now when
// ctx carries no transaction.
func (m *GormTransactionManager) AfterCommit(ctx context.Context, fn func()) {
	uow, ok := activeUnit(ctx)
	if !ok {
		fn()
		return
	}
	uow.mu.Lock()
	uow.afterCommit = append(uow.afterCommit, fn)
	uow.mu.Unlock()
}

// conn returns the transaction in ctx, or db when there is none
func conn(ctx context.Context, db *gorm.DB) *gorm.DB {
	if uow, ok := activeUnit(ctx); ok {
		return uow.tx.WithContext(ctx)
	}
	return db.WithContext(ctx)
}

func activeUnit(ctx context.Context) (*unitOfWork, bool) {
	uow, ok := ctx.Value(txKey{}).(*unitOfWork)
	if !ok || uow.done.Load() {
		return nil, false
	}
	return uow, true
}

// InTransaction reports whether ctx carries an open transaction
func InTransaction(ctx context.Context) bool {
	_, ok := activeUnit(ctx)
	return ok
}
