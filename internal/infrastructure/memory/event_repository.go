package memory

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/sanosuguru/go-event-seat-booking/internal/domain/event"
	"github.com/sanosuguru/go-event-seat-booking/internal/domain/transaction"
)

// EventRepository はイベントリポジトリのインメモリ実装
type EventRepository struct {
	store *Store
}

// NewEventRepository はEventRepositoryを作成する
func NewEventRepository(store *Store) *EventRepository {
	return &EventRepository{store: store}
}

// Create はイベントの作成をトランザクションにステージする
func (r *EventRepository) Create(ctx context.Context, tx transaction.Tx, e *event.Event) error {
	mtx, err := unwrapTx(r.store, tx)
	if err != nil {
		return err
	}
	return mtx.stage(op{kind: opCreateEvent, eventID: e.ID, event: copyEvent(e)})
}

// GetByID はIDからイベントを取得する
func (r *EventRepository) GetByID(ctx context.Context, id string) (*event.Event, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	sh := r.store.shardFor(id)
	sh.mu.RLock()
	defer sh.mu.RUnlock()

	e, ok := sh.events[id]
	if !ok {
		return nil, event.ErrEventNotFound
	}
	return copyEvent(e), nil
}

// List は開始日時の新しい順にイベント一覧を取得する
func (r *EventRepository) List(ctx context.Context, limit, offset int) ([]*event.Event, error) {
	return r.filter(ctx, func(*event.Event) bool { return true }, limit, offset)
}

// Search は名称・説明・会場にキーワードを含むイベントを取得する（大文字小文字は区別しない）
func (r *EventRepository) Search(ctx context.Context, keyword string, limit, offset int) ([]*event.Event, error) {
	kw := strings.ToLower(strings.TrimSpace(keyword))
	return r.filter(ctx, func(e *event.Event) bool {
		return strings.Contains(strings.ToLower(e.Name), kw) ||
			strings.Contains(strings.ToLower(e.Description), kw) ||
			strings.Contains(strings.ToLower(e.Venue), kw)
	}, limit, offset)
}

func (r *EventRepository) filter(ctx context.Context, match func(*event.Event) bool, limit, offset int) ([]*event.Event, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var out []*event.Event
	for _, sh := range r.store.shards {
		sh.mu.RLock()
		for _, e := range sh.events {
			if match(e) {
				out = append(out, copyEvent(e))
			}
		}
		sh.mu.RUnlock()
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].StartAt.Equal(out[j].StartAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].StartAt.After(out[j].StartAt)
	})
	return paginate(out, limit, offset), nil
}

// Update はイベントを更新する（楽観的ロック）
// 成功すると e.Version が1進む
func (r *EventRepository) Update(ctx context.Context, e *event.Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	sh := r.store.shardFor(e.ID)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	current, ok := sh.events[e.ID]
	if !ok {
		return event.ErrEventNotFound
	}
	if current.Version != e.Version {
		return event.ErrOptimisticLockConflict
	}

	next := copyEvent(e)
	next.Capacity = current.Capacity
	next.CreatedAt = current.CreatedAt
	next.UpdatedAt = time.Now()
	next.Version = current.Version + 1
	sh.events[e.ID] = next

	e.Version = next.Version
	e.UpdatedAt = next.UpdatedAt
	return nil
}

var _ event.Repository = (*EventRepository)(nil)
