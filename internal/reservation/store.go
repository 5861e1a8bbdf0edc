package reservation

import (
	"context"
	"errors"
	"fmt"

	"github.com/ariefcatur/go-rescue-bags/internal/catalog"
	"github.com/ariefcatur/go-rescue-bags/internal/orders"
	"github.com/ariefcatur/go-rescue-bags/internal/postgres"
	"github.com/jackc/pgx/v5"
)

// Store is the data the flow touches. DecrementBag must only take a unit
// when one is left and report false otherwise.
type Store interface {
	Bag(ctx context.Context, id string) (catalog.Bag, error)
	CreateOrder(ctx context.Context, o orders.Order) (string, error)
	DecrementBag(ctx context.Context, id string) (bool, error)
}

// PGStore runs the flow against Postgres. Each call is its own statement;
// ordering and exclusion come from the flow and its Locker.
type PGStore struct {
	Bags   *catalog.Repo
	Orders *orders.Repo
}

func (s *PGStore) Bag(ctx context.Context, id string) (catalog.Bag, error) {
	b, err := s.Bags.Bag(ctx, id)
	if errors.Is(err, pgx.ErrNoRows) {
		return b, ErrBagNotFound
	}
	return b, err
}

func (s *PGStore) CreateOrder(ctx context.Context, o orders.Order) (string, error) {
	return s.Orders.CreateOrder(ctx, o)
}

func (s *PGStore) DecrementBag(ctx context.Context, id string) (bool, error) {
	return s.Bags.DecrementBag(ctx, id)
}

// TxRunner runs fn with a Store whose reads and writes for bagID are
// serialized against other reservations of the same bag.
type TxRunner interface {
	InBagTx(ctx context.Context, bagID string, fn func(Store) error) error
}

// LockedStore serializes on Locker and runs each step as its own statement.
type LockedStore struct {
	Store  Store
	Locker Locker
}

func (l *LockedStore) InBagTx(ctx context.Context, bagID string, fn func(Store) error) error {
	unlock, err := l.Locker.Lock(ctx, bagID)
	if err != nil {
		return fmt.Errorf("lock bag: %w", err)
	}
	defer unlock()
	return fn(l.Store)
}

// PGTx runs the whole reservation on one transaction. The bag row is read
// FOR UPDATE, so the row lock does the serializing and only one pooled
// connection is held per reservation.
type PGTx struct{ DB postgres.DB }

func (p *PGTx) InBagTx(ctx context.Context, _ string, fn func(Store) error) error {
	tx, err := p.DB.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := fn(&txStore{tx: tx}); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

type txStore struct{ tx pgx.Tx }

func (s *txStore) Bag(ctx context.Context, id string) (catalog.Bag, error) {
	b, err := (&catalog.Repo{DB: s.tx}).LockBag(ctx, id)
	if errors.Is(err, pgx.ErrNoRows) {
		return b, ErrBagNotFound
	}
	return b, err
}

func (s *txStore) CreateOrder(ctx context.Context, o orders.Order) (string, error) {
	return (&orders.Repo{DB: s.tx}).CreateOrder(ctx, o)
}

// DecrementBag runs under a savepoint so a failed decrement leaves the
// order insert committable.
func (s *txStore) DecrementBag(ctx context.Context, id string) (bool, error) {
	sp, err := s.tx.Begin(ctx)
	if err != nil {
		return false, err
	}
	ok, err := (&catalog.Repo{DB: sp}).DecrementBag(ctx, id)
	if err != nil {
		_ = sp.Rollback(ctx)
		return false, err
	}
	return ok, sp.Commit(ctx)
}
