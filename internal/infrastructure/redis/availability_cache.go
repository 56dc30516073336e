package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/sanosuguru/go-event-seat-booking/internal/domain/ledger"
)

var (
	ErrCacheMiss = errors.New("キャッシュが見つかりません")
)

// availabilitySnapshot はキャッシュに保存する座席台帳のスナップショット
type availabilitySnapshot struct {
	Capacity       int       `json:"capacity"`
	AvailableSeats int       `json:"available_seats"`
	Version        int64     `json:"version"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// AvailabilityCache は空席状況の読み取りキャッシュ
// 予約の正否判定には使わず、表示用の読み取りだけを肩代わりする
type AvailabilityCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewAvailabilityCache は新しいAvailabilityCacheを作成する
func NewAvailabilityCache(client *redis.Client, ttl time.Duration) *AvailabilityCache {
	return &AvailabilityCache{client: client, ttl: ttl}
}

// Get はキャッシュ済みの座席台帳を取得する
func (c *AvailabilityCache) Get(ctx context.Context, eventID string) (*ledger.Ledger, error) {
	raw, err := c.client.Get(ctx, availabilityKey(eventID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrCacheMiss
		}
		return nil, fmt.Errorf("キャッシュ取得に失敗: %w", err)
	}

	var snap availabilitySnapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		// 壊れたエントリはミス扱いにして読み直させる
		return nil, ErrCacheMiss
	}
	return &ledger.Ledger{
		EventID:        eventID,
		Capacity:       snap.Capacity,
		AvailableSeats: snap.AvailableSeats,
		Version:        snap.Version,
		UpdatedAt:      snap.UpdatedAt,
	}, nil
}

// Set は座席台帳をキャッシュに保存する
func (c *AvailabilityCache) Set(ctx context.Context, l *ledger.Ledger) error {
	raw, err := json.Marshal(availabilitySnapshot{
		Capacity:       l.Capacity,
		AvailableSeats: l.AvailableSeats,
		Version:        l.Version,
		UpdatedAt:      l.UpdatedAt,
	})
	if err != nil {
		return fmt.Errorf("キャッシュのエンコードに失敗: %w", err)
	}
	if err := c.client.Set(ctx, availabilityKey(l.EventID), raw, c.ttl).Err(); err != nil {
		return fmt.Errorf("キャッシュ保存に失敗: %w", err)
	}
	return nil
}

// Invalidate はイベントのキャッシュを無効化する
func (c *AvailabilityCache) Invalidate(ctx context.Context, eventID string) error {
	if err := c.client.Del(ctx, availabilityKey(eventID)).Err(); err != nil {
		return fmt.Errorf("キャッシュ無効化に失敗: %w", err)
	}
	return nil
}

func availabilityKey(eventID string) string {
	return fmt.Sprintf("seat-booking:availability:%s", eventID)
}
