// Package memory はプロセス内で完結する座席台帳・予約レコードのストアを提供する
// 開発環境、シミュレーター、並行性テストで PostgreSQL の代わりに使用する
package memory

import (
	"sort"
	"sync"

	"github.com/cespare/xxhash/v2"

	"github.com/sanosuguru/go-event-seat-booking/internal/domain/booking"
	"github.com/sanosuguru/go-event-seat-booking/internal/domain/event"
	"github.com/sanosuguru/go-event-seat-booking/internal/domain/ledger"
)

const defaultShards = 64

// Store はイベントIDのハッシュでシャード分割されたインメモリストア
// イベント・座席台帳・予約レコードは同じイベントIDのシャードに置かれる
type Store struct {
	shards []*shard
}

type shard struct {
	mu       sync.RWMutex
	events   map[string]*event.Event
	ledgers  map[string]*ledger.Ledger
	bookings map[booking.Key]*booking.Booking
	byID     map[string]*booking.Booking
}

// NewStore は指定したシャード数でストアを作成する（0以下はデフォルト値）
func NewStore(shards int) *Store {
	if shards <= 0 {
		shards = defaultShards
	}
	s := &Store{shards: make([]*shard, shards)}
	for i := range s.shards {
		s.shards[i] = &shard{
			events:   make(map[string]*event.Event),
			ledgers:  make(map[string]*ledger.Ledger),
			bookings: make(map[booking.Key]*booking.Booking),
			byID:     make(map[string]*booking.Booking),
		}
	}
	return s
}

func (s *Store) shardIndex(eventID string) int {
	return int(xxhash.Sum64String(eventID) % uint64(len(s.shards)))
}

func (s *Store) shardFor(eventID string) *shard {
	return s.shards[s.shardIndex(eventID)]
}

// lockShards は重複を除いたシャードを昇順にロックし、解放関数を返す
func (s *Store) lockShards(indexes []int) func() {
	uniq := make([]int, 0, len(indexes))
	seen := make(map[int]struct{}, len(indexes))
	for _, i := range indexes {
		if _, ok := seen[i]; ok {
			continue
		}
		seen[i] = struct{}{}
		uniq = append(uniq, i)
	}
	sort.Ints(uniq)

	for _, i := range uniq {
		s.shards[i].mu.Lock()
	}
	return func() {
		for j := len(uniq) - 1; j >= 0; j-- {
			s.shards[uniq[j]].mu.Unlock()
		}
	}
}

func paginate[T any](items []T, limit, offset int) []T {
	if offset < 0 {
		offset = 0
	}
	if offset >= len(items) {
		return []T{}
	}
	items = items[offset:]
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}

func copyLedger(l *ledger.Ledger) *ledger.Ledger {
	c := *l
	return &c
}

func copyBooking(b *booking.Booking) *booking.Booking {
	c := *b
	return &c
}

func copyEvent(e *event.Event) *event.Event {
	c := *e
	return &c
}
