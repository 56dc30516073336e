package booking

import (
	"time"

	"github.com/google/uuid"
)

// Booking は確定済みの予約レコードを表す
// 作成後に変更されることはない
type Booking struct {
	ID            string
	UserID        string
	EventID       string
	LedgerVersion int64 // この予約を確定したコミット後の台帳バージョン
	CreatedAt     time.Time
}

// NewBooking は新しい予約レコードを作成する
func NewBooking(userID, eventID string) *Booking {
	return &Booking{
		ID:        uuid.NewString(),
		UserID:    userID,
		EventID:   eventID,
		CreatedAt: time.Now(),
	}
}

// Key はユーザーとイベントの組を返す
func (b *Booking) Key() Key {
	return Key{UserID: b.UserID, EventID: b.EventID}
}

// Validate は予約レコードの検証を行う
func (b *Booking) Validate() error {
	if b.UserID == "" {
		return ErrUserIDRequired
	}
	if b.EventID == "" {
		return ErrEventIDRequired
	}
	return nil
}

// Key は (ユーザーID, イベントID) の一意キー
type Key struct {
	UserID  string
	EventID string
}
