package memory

import (
	"context"
	"sort"

	"github.com/sanosuguru/go-event-seat-booking/internal/domain/booking"
	"github.com/sanosuguru/go-event-seat-booking/internal/domain/transaction"
)

// BookingRepository は予約レコードリポジトリのインメモリ実装
type BookingRepository struct {
	store *Store
}

// NewBookingRepository はBookingRepositoryを作成する
func NewBookingRepository(store *Store) *BookingRepository {
	return &BookingRepository{store: store}
}

// Exists はコミット済みの (userID, eventID) の予約があるかを返す
func (r *BookingRepository) Exists(ctx context.Context, userID, eventID string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	sh := r.store.shardFor(eventID)
	sh.mu.RLock()
	defer sh.mu.RUnlock()

	_, ok := sh.bookings[booking.Key{UserID: userID, EventID: eventID}]
	return ok, nil
}

// Insert は予約の追加をトランザクションにステージする
// 一意性はコミット時に再検証される
func (r *BookingRepository) Insert(ctx context.Context, tx transaction.Tx, b *booking.Booking) error {
	mtx, err := unwrapTx(r.store, tx)
	if err != nil {
		return err
	}
	if err := b.Validate(); err != nil {
		return err
	}
	exists, err := r.Exists(ctx, b.UserID, b.EventID)
	if err != nil {
		return err
	}
	if exists {
		return booking.ErrDuplicateBooking
	}
	return mtx.stage(op{kind: opInsertBooking, eventID: b.EventID, booking: copyBooking(b)})
}

// GetByID はIDから予約を取得する
func (r *BookingRepository) GetByID(ctx context.Context, id string) (*booking.Booking, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	for _, sh := range r.store.shards {
		sh.mu.RLock()
		b, ok := sh.byID[id]
		sh.mu.RUnlock()
		if ok {
			return copyBooking(b), nil
		}
	}
	return nil, booking.ErrBookingNotFound
}

// ListByUser はユーザーの予約を新しい順に取得する
func (r *BookingRepository) ListByUser(ctx context.Context, userID string, limit, offset int) ([]*booking.Booking, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var out []*booking.Booking
	for _, sh := range r.store.shards {
		sh.mu.RLock()
		for key, b := range sh.bookings {
			if key.UserID == userID {
				out = append(out, copyBooking(b))
			}
		}
		sh.mu.RUnlock()
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return paginate(out, limit, offset), nil
}

// CountByEvent はイベントの予約数を取得する
func (r *BookingRepository) CountByEvent(ctx context.Context, eventID string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	sh := r.store.shardFor(eventID)
	sh.mu.RLock()
	defer sh.mu.RUnlock()

	n := 0
	for key := range sh.bookings {
		if key.EventID == eventID {
			n++
		}
	}
	return n, nil
}

var _ booking.Repository = (*BookingRepository)(nil)
