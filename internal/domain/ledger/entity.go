package ledger

import "time"

// Ledger はイベント1件分の座席台帳を表す
// AvailableSeats が変化したときに限り Version が1増える（楽観的ロック用）
type Ledger struct {
	EventID        string
	Capacity       int
	AvailableSeats int
	Version        int64
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// NewLedger はイベント作成時の座席台帳を作成する
func NewLedger(eventID string, capacity int) *Ledger {
	now := time.Now()
	return &Ledger{
		EventID:        eventID,
		Capacity:       capacity,
		AvailableSeats: capacity,
		Version:        0,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

// IsSoldOut は空席が残っていないかを返す
func (l *Ledger) IsSoldOut() bool {
	return l.AvailableSeats <= 0
}

// Booked は確定済みの予約数を返す
func (l *Ledger) Booked() int {
	return l.Capacity - l.AvailableSeats
}

// Decrement は空席を1つ減らしてバージョンを進める
// 呼び出し側は事前に expectedVersion を読み取っている必要がある
func (l *Ledger) Decrement(expectedVersion int64) error {
	if l.IsSoldOut() {
		return ErrSoldOut
	}
	if l.Version != expectedVersion {
		return ErrVersionConflict
	}
	l.AvailableSeats--
	l.Version++
	l.UpdatedAt = time.Now()
	return nil
}

// Validate は座席台帳の検証を行う
func (l *Ledger) Validate() error {
	if l.EventID == "" {
		return ErrEventIDRequired
	}
	if l.Capacity < 0 {
		return ErrInvalidCapacity
	}
	if l.AvailableSeats < 0 || l.AvailableSeats > l.Capacity {
		return ErrInvalidAvailableSeats
	}
	return nil
}
