package store

import (
	"context"
	"errors"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

type contextKey int

const transactionKey contextKey = iota

// Tx is an open database transaction carried through a context so that a
// multi-write operation, bulk fan-out being the main one, lands atomically.
// Store methods pick it up via FromContext; callers close it with Commit
// or Rollback.
type Tx struct {
	tx *gorm.DB
}

// Commit commits the transaction held by ctx, if any, and returns a context
// without it. A context with no open transaction is a no-op.
func Commit(ctx context.Context) (context.Context, error) {
	tx, ok := ctx.Value(transactionKey).(*Tx)
	if !ok {
		return ctx, nil
	}
	return context.WithValue(ctx, transactionKey, nil), tx.commit()
}

// Rollback rolls back the transaction held by ctx, if any, and returns a
// context without it.
func Rollback(ctx context.Context) (context.Context, error) {
	tx, ok := ctx.Value(transactionKey).(*Tx)
	if !ok {
		return ctx, nil
	}
	return context.WithValue(ctx, transactionKey, nil), tx.rollback()
}

// FromContext returns the open transaction carried by ctx, or nil when there
// is none and the caller should use its plain connection.
func FromContext(ctx context.Context) *gorm.DB {
	if tx, ok := ctx.Value(transactionKey).(*Tx); ok && tx != nil && tx.tx != nil {
		return tx.tx
	}
	return nil
}

func newTransactionContext(ctx context.Context, db *gorm.DB) (context.Context, error) {
	// An already-open transaction is reused, not nested.
	if _, ok := ctx.Value(transactionKey).(*Tx); ok {
		return ctx, nil
	}

	tx := db.Session(&gorm.Session{Context: ctx}).Begin()
	if tx.Error != nil {
		return ctx, tx.Error
	}
	return context.WithValue(ctx, transactionKey, &Tx{tx: tx}), nil
}

func (t *Tx) commit() error {
	if t.tx == nil {
		return errors.New("transaction already closed")
	}
	if err := t.tx.Commit().Error; err != nil {
		zap.S().Named("store").Errorw("transaction commit failed", "error", err)
		return err
	}
	t.tx = nil // guard against a second close
	return nil
}

func (t *Tx) rollback() error {
	if t.tx == nil {
		return errors.New("transaction already closed")
	}
	if err := t.tx.Rollback().Error; err != nil {
		zap.S().Named("store").Errorw("transaction rollback failed", "error", err)
		return err
	}
	t.tx = nil
	return nil
}
