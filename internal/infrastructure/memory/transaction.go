package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/sanosuguru/go-event-seat-booking/internal/domain/booking"
	"github.com/sanosuguru/go-event-seat-booking/internal/domain/event"
	"github.com/sanosuguru/go-event-seat-booking/internal/domain/ledger"
	"github.com/sanosuguru/go-event-seat-booking/internal/domain/transaction"
)

var (
	errForeignTx     = errors.New("memory: 別ストアのトランザクションです")
	errDuplicateKey  = errors.New("memory: 同じIDのレコードが既に存在します")
	errUnknownOpKind = errors.New("memory: 不明な操作です")
)

type opKind int

const (
	opCreateEvent opKind = iota + 1
	opCreateLedger
	opDecrement
	opInsertBooking
)

type op struct {
	kind            opKind
	eventID         string
	expectedVersion int64
	event           *event.Event
	ledger          *ledger.Ledger
	booking         *booking.Booking
}

// Tx はコミット時にまとめて検証・適用されるトランザクション
// 操作はステージングされるだけで、コミットまで他のトランザクションから見えない
// コミットは対象シャードをすべてロックした上で全操作を再検証するため SERIALIZABLE 相当になる
type Tx struct {
	ctx   context.Context
	store *Store

	mu   sync.Mutex
	ops  []op
	done bool
}

func (t *Tx) stage(o op) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.done {
		return transaction.ErrTxClosed
	}
	t.ops = append(t.ops, o)
	return nil
}

// Commit はステージした操作を検証し、すべて成功した場合のみ適用する
func (t *Tx) Commit() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.done {
		return transaction.ErrTxClosed
	}
	t.done = true

	if err := t.ctx.Err(); err != nil {
		return err
	}
	if len(t.ops) == 0 {
		return nil
	}

	indexes := make([]int, len(t.ops))
	for i, o := range t.ops {
		indexes[i] = t.store.shardIndex(o.eventID)
	}
	unlock := t.store.lockShards(indexes)
	defer unlock()

	return t.apply()
}

// apply はシャードロック保持中に呼ばれる
// 作業用コピーに対して全操作を検証してから、まとめて書き戻す
func (t *Tx) apply() error {
	events := make(map[string]*event.Event)
	ledgers := make(map[string]*ledger.Ledger)
	bookings := make(map[booking.Key]*booking.Booking)

	currentLedger := func(eventID string) *ledger.Ledger {
		if l, ok := ledgers[eventID]; ok {
			return l
		}
		if l, ok := t.store.shardFor(eventID).ledgers[eventID]; ok {
			c := copyLedger(l)
			ledgers[eventID] = c
			return c
		}
		return nil
	}

	for _, o := range t.ops {
		sh := t.store.shardFor(o.eventID)
		switch o.kind {
		case opCreateEvent:
			if _, ok := sh.events[o.eventID]; ok {
				return fmt.Errorf("イベント %s: %w", o.eventID, errDuplicateKey)
			}
			if _, ok := events[o.eventID]; ok {
				return fmt.Errorf("イベント %s: %w", o.eventID, errDuplicateKey)
			}
			events[o.eventID] = copyEvent(o.event)
		case opCreateLedger:
			if currentLedger(o.eventID) != nil {
				return fmt.Errorf("座席台帳 %s: %w", o.eventID, errDuplicateKey)
			}
			ledgers[o.eventID] = copyLedger(o.ledger)
		case opDecrement:
			l := currentLedger(o.eventID)
			if l == nil {
				return ledger.ErrLedgerNotFound
			}
			if err := l.Decrement(o.expectedVersion); err != nil {
				return err
			}
		case opInsertBooking:
			key := o.booking.Key()
			if _, ok := sh.bookings[key]; ok {
				return booking.ErrDuplicateBooking
			}
			if _, ok := bookings[key]; ok {
				return booking.ErrDuplicateBooking
			}
			bookings[key] = copyBooking(o.booking)
		default:
			return errUnknownOpKind
		}
	}

	for id, e := range events {
		t.store.shardFor(id).events[id] = e
	}
	for id, l := range ledgers {
		t.store.shardFor(id).ledgers[id] = l
	}
	for key, b := range bookings {
		sh := t.store.shardFor(key.EventID)
		sh.bookings[key] = b
		sh.byID[b.ID] = b
	}
	return nil
}

// Rollback はステージした操作を破棄する
func (t *Tx) Rollback() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.done {
		return transaction.ErrTxClosed
	}
	t.done = true
	t.ops = nil
	return nil
}

// TxManager はインメモリストアのトランザクションマネージャー
type TxManager struct {
	store *Store
}

// NewTxManager は新しい TxManager を作成する
func NewTxManager(store *Store) *TxManager {
	return &TxManager{store: store}
}

// Begin は新しいトランザクションを開始する
func (m *TxManager) Begin(ctx context.Context) (transaction.Tx, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return &Tx{ctx: ctx, store: m.store}, nil
}

func unwrapTx(store *Store, tx transaction.Tx) (*Tx, error) {
	mtx, ok := tx.(*Tx)
	if !ok || mtx.store != store {
		return nil, errForeignTx
	}
	return mtx, nil
}

var _ transaction.Manager = (*TxManager)(nil)
