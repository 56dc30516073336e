package booking

import (
	"context"
	"time"
)

// ConfirmedMessage は予約確定時に外部へ通知するメッセージ
type ConfirmedMessage struct {
	BookingID     string    `json:"booking_id"`
	UserID        string    `json:"user_id"`
	EventID       string    `json:"event_id"`
	LedgerVersion int64     `json:"ledger_version"`
	BookedAt      time.Time `json:"booked_at"`
}

// NewConfirmedMessage は予約レコードから通知メッセージを作成する
func NewConfirmedMessage(b *Booking) *ConfirmedMessage {
	return &ConfirmedMessage{
		BookingID:     b.ID,
		UserID:        b.UserID,
		EventID:       b.EventID,
		LedgerVersion: b.LedgerVersion,
		BookedAt:      b.CreatedAt,
	}
}

// Publisher は予約確定メッセージの送信先
// 送信はベストエフォートで、失敗しても予約結果は変わらない
type Publisher interface {
	PublishConfirmed(ctx context.Context, msg *ConfirmedMessage) error
	Close() error
}
