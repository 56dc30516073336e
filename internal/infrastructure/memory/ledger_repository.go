package memory

import (
	"context"
	"sort"

	"github.com/sanosuguru/go-event-seat-booking/internal/domain/ledger"
	"github.com/sanosuguru/go-event-seat-booking/internal/domain/transaction"
)

// LedgerRepository は座席台帳リポジトリのインメモリ実装
type LedgerRepository struct {
	store *Store
}

// NewLedgerRepository はLedgerRepositoryを作成する
func NewLedgerRepository(store *Store) *LedgerRepository {
	return &LedgerRepository{store: store}
}

// Create は座席台帳の作成をトランザクションにステージする
func (r *LedgerRepository) Create(ctx context.Context, tx transaction.Tx, l *ledger.Ledger) error {
	mtx, err := unwrapTx(r.store, tx)
	if err != nil {
		return err
	}
	if err := l.Validate(); err != nil {
		return err
	}
	return mtx.stage(op{kind: opCreateLedger, eventID: l.EventID, ledger: copyLedger(l)})
}

// Get はコミット済みの座席台帳を取得する
func (r *LedgerRepository) Get(ctx context.Context, eventID string) (*ledger.Ledger, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	sh := r.store.shardFor(eventID)
	sh.mu.RLock()
	defer sh.mu.RUnlock()

	l, ok := sh.ledgers[eventID]
	if !ok {
		return nil, ledger.ErrLedgerNotFound
	}
	return copyLedger(l), nil
}

// List はイベントID順に座席台帳一覧を取得する
func (r *LedgerRepository) List(ctx context.Context, limit, offset int) ([]*ledger.Ledger, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var all []*ledger.Ledger
	for _, sh := range r.store.shards {
		sh.mu.RLock()
		for _, l := range sh.ledgers {
			all = append(all, copyLedger(l))
		}
		sh.mu.RUnlock()
	}
	sort.Slice(all, func(i, j int) bool { return all[i].EventID < all[j].EventID })
	return paginate(all, limit, offset), nil
}

// TryDecrement は空席の減算をトランザクションにステージし、コミット後のバージョンを返す
// 現時点の値で事前判定し、コミット時に同じ条件を再検証する
func (r *LedgerRepository) TryDecrement(ctx context.Context, tx transaction.Tx, eventID string, expectedVersion int64) (int64, error) {
	mtx, err := unwrapTx(r.store, tx)
	if err != nil {
		return 0, err
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	sh := r.store.shardFor(eventID)
	sh.mu.RLock()
	l, ok := sh.ledgers[eventID]
	var soldOut, moved bool
	if ok {
		soldOut = l.IsSoldOut()
		moved = l.Version != expectedVersion
	}
	sh.mu.RUnlock()

	switch {
	case !ok:
		return 0, ledger.ErrLedgerNotFound
	case soldOut:
		return 0, ledger.ErrSoldOut
	case moved:
		return 0, ledger.ErrVersionConflict
	}

	if err := mtx.stage(op{kind: opDecrement, eventID: eventID, expectedVersion: expectedVersion}); err != nil {
		return 0, err
	}
	return expectedVersion + 1, nil
}

var _ ledger.Repository = (*LedgerRepository)(nil)
