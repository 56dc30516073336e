package ledger

import (
	"context"

	"github.com/sanosuguru/go-event-seat-booking/internal/domain/transaction"
)

// Repository は座席台帳リポジトリのインターフェース
type Repository interface {
	// Create は座席台帳を作成する（トランザクション必須）
	Create(ctx context.Context, tx transaction.Tx, ledger *Ledger) error

	// Get はイベントIDから座席台帳の現在値を取得する
	Get(ctx context.Context, eventID string) (*Ledger, error)

	// List は座席台帳一覧を取得する
	List(ctx context.Context, limit, offset int) ([]*Ledger, error)

	// TryDecrement は expectedVersion が一致する場合に限り空席を1つ減らし、新しいバージョンを返す
	// 空席なしは ErrSoldOut、バージョン不一致は ErrVersionConflict（トランザクション必須）
	TryDecrement(ctx context.Context, tx transaction.Tx, eventID string, expectedVersion int64) (int64, error)
}
