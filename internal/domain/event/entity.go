package event

import (
	"time"

	"github.com/google/uuid"
)

// Event はイベントカタログのエンティティを表す
// Capacity は作成時に座席台帳へ引き継がれ、以後変更されない
type Event struct {
	ID          string
	Name        string
	Description string
	Venue       string
	StartAt     time.Time
	EndAt       time.Time
	Capacity    int
	CreatedAt   time.Time
	UpdatedAt   time.Time
	Version     int // 楽観的ロック用
}

// NewEvent は新しいイベントを作成する
func NewEvent(name, description, venue string, startAt, endAt time.Time, capacity int) *Event {
	now := time.Now()
	return &Event{
		ID:          uuid.NewString(),
		Name:        name,
		Description: description,
		Venue:       venue,
		StartAt:     startAt,
		EndAt:       endAt,
		Capacity:    capacity,
		CreatedAt:   now,
		UpdatedAt:   now,
		Version:     0,
	}
}

// UpdateDetails は名称・会場・日程を更新する（定員は更新しない）
func (e *Event) UpdateDetails(name, description, venue string, startAt, endAt time.Time) error {
	next := *e
	next.Name = name
	next.Description = description
	next.Venue = venue
	next.StartAt = startAt
	next.EndAt = endAt
	if err := next.Validate(); err != nil {
		return err
	}
	next.UpdatedAt = time.Now()
	*e = next
	return nil
}

// Validate はイベントの検証を行う
func (e *Event) Validate() error {
	if e.Name == "" {
		return ErrEventNameRequired
	}
	if e.Capacity < 0 {
		return ErrInvalidCapacity
	}
	if e.EndAt.Before(e.StartAt) {
		return ErrInvalidEventTime
	}
	return nil
}
