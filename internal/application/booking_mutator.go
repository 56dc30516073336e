package application

import (
	"context"
	"errors"
	"fmt"

	"github.com/sanosuguru/go-event-seat-booking/internal/domain/booking"
	"github.com/sanosuguru/go-event-seat-booking/internal/domain/ledger"
	"github.com/sanosuguru/go-event-seat-booking/internal/domain/transaction"
)

// MutationResult は1回の予約試行の結果
// Outcome が OutcomeBooked のときだけ Booking が設定される
type MutationResult struct {
	Outcome booking.Outcome
	Booking *booking.Booking
}

// BookingMutator は座席台帳の減算と予約レコードの追加を1つのトランザクションで行う
// 事前の読み取りによる判定は早期リターン用で、正否はトランザクション内の条件付き更新と一意制約で決まる
type BookingMutator struct {
	txManager   transaction.Manager
	ledgerRepo  ledger.Repository
	bookingRepo booking.Repository
}

func NewBookingMutator(tm transaction.Manager, lr ledger.Repository, br booking.Repository) *BookingMutator {
	return &BookingMutator{txManager: tm, ledgerRepo: lr, bookingRepo: br}
}

// TryBook は予約を1回だけ試みる
// 業務上の結果は MutationResult で返し、ストレージ障害だけを error で返す
func (m *BookingMutator) TryBook(ctx context.Context, userID, eventID string) (*MutationResult, error) {
	l, err := m.ledgerRepo.Get(ctx, eventID)
	if err != nil {
		if errors.Is(err, ledger.ErrLedgerNotFound) {
			return &MutationResult{Outcome: booking.OutcomeNotFound}, nil
		}
		return nil, fmt.Errorf("座席台帳の取得に失敗: %w", err)
	}
	if l.IsSoldOut() {
		return &MutationResult{Outcome: booking.OutcomeSoldOut}, nil
	}

	exists, err := m.bookingRepo.Exists(ctx, userID, eventID)
	if err != nil {
		return nil, fmt.Errorf("予約の存在確認に失敗: %w", err)
	}
	if exists {
		return &MutationResult{Outcome: booking.OutcomeAlreadyBooked}, nil
	}

	b, err := m.commit(ctx, userID, eventID, l.Version)
	if err != nil {
		if outcome, ok := outcomeOf(err); ok {
			return &MutationResult{Outcome: outcome}, nil
		}
		return nil, err
	}
	return &MutationResult{Outcome: booking.OutcomeBooked, Booking: b}, nil
}

func (m *BookingMutator) commit(ctx context.Context, userID, eventID string, expectedVersion int64) (*booking.Booking, error) {
	tx, err := m.txManager.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("トランザクション開始に失敗: %w", err)
	}
	defer transaction.RollbackQuietly(tx)

	newVersion, err := m.ledgerRepo.TryDecrement(ctx, tx, eventID, expectedVersion)
	if err != nil {
		return nil, err
	}

	b := booking.NewBooking(userID, eventID)
	b.LedgerVersion = newVersion
	if err := m.bookingRepo.Insert(ctx, tx, b); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return b, nil
}

// outcomeOf はトランザクション中のドメインエラーを試行結果に変換する
// 並行する別ユーザーの予約による一意制約違反やバージョン不一致は、どちらも再試行対象の競合として扱う
func outcomeOf(err error) (booking.Outcome, bool) {
	switch {
	case errors.Is(err, ledger.ErrVersionConflict), errors.Is(err, booking.ErrDuplicateBooking):
		return booking.OutcomeConflict, true
	case errors.Is(err, ledger.ErrSoldOut):
		return booking.OutcomeSoldOut, true
	case errors.Is(err, ledger.ErrLedgerNotFound):
		return booking.OutcomeNotFound, true
	default:
		return 0, false
	}
}
