package booking

import (
	"context"

	"github.com/sanosuguru/go-event-seat-booking/internal/domain/transaction"
)

// Repository は予約レコードリポジトリのインターフェース
type Repository interface {
	// Exists は (userID, eventID) の予約が存在するかを返す
	Exists(ctx context.Context, userID, eventID string) (bool, error)

	// Insert は予約を追加する（トランザクション必須）
	// 同じ (userID, eventID) が既にあれば ErrDuplicateBooking
	Insert(ctx context.Context, tx transaction.Tx, booking *Booking) error

	// GetByID はIDから予約を取得する
	GetByID(ctx context.Context, id string) (*Booking, error)

	// ListByUser はユーザーの予約一覧を取得する
	ListByUser(ctx context.Context, userID string, limit, offset int) ([]*Booking, error)

	// CountByEvent はイベントの予約数を取得する
	CountByEvent(ctx context.Context, eventID string) (int, error)
}
