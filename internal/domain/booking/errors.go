package booking

import "errors"

// Booking ドメインのエラー定義
var (
	ErrBookingNotFound  = errors.New("予約が見つかりません")
	ErrDuplicateBooking = errors.New("同じユーザーの予約が既に存在します")
	ErrUserIDRequired   = errors.New("ユーザーIDは必須です")
	ErrEventIDRequired  = errors.New("イベントIDは必須です")
)
