package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/sanosuguru/go-event-seat-booking/internal/domain/event"
	"github.com/sanosuguru/go-event-seat-booking/internal/domain/transaction"
)

// eventRow はDBの行を表す構造体
type eventRow struct {
	ID          string    `db:"id"`
	Name        string    `db:"name"`
	Description *string   `db:"description"`
	Venue       *string   `db:"venue"`
	StartAt     time.Time `db:"start_at"`
	EndAt       time.Time `db:"end_at"`
	Capacity    int       `db:"capacity"`
	CreatedAt   time.Time `db:"created_at"`
	UpdatedAt   time.Time `db:"updated_at"`
	Version     int       `db:"version"`
}

// toEntity はeventRowをEventエンティティに変換する
func (r *eventRow) toEntity() *event.Event {
	var desc, venue string
	if r.Description != nil {
		desc = *r.Description
	}
	if r.Venue != nil {
		venue = *r.Venue
	}
	return &event.Event{
		ID:          r.ID,
		Name:        r.Name,
		Description: desc,
		Venue:       venue,
		StartAt:     r.StartAt,
		EndAt:       r.EndAt,
		Capacity:    r.Capacity,
		CreatedAt:   r.CreatedAt,
		UpdatedAt:   r.UpdatedAt,
		Version:     r.Version,
	}
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

const eventColumns = `id, name, description, venue, start_at, end_at, capacity, created_at, updated_at, version`

// EventRepository はイベントリポジトリのPostgreSQL実装
type EventRepository struct {
	db *sqlx.DB
}

// NewEventRepository はEventRepositoryを作成する
func NewEventRepository(db *sqlx.DB) *EventRepository {
	return &EventRepository{db: db}
}

// Create は新しいイベントを作成する
// 座席台帳と同じトランザクションで作成する
func (r *EventRepository) Create(ctx context.Context, tx transaction.Tx, e *event.Event) error {
	sqlTx, err := mustUnwrap(tx)
	if err != nil {
		return err
	}
	query := `INSERT INTO events (` + eventColumns + `) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`
	_, err = sqlTx.ExecContext(ctx, query,
		e.ID, e.Name, nullable(e.Description), nullable(e.Venue), e.StartAt, e.EndAt, e.Capacity, e.CreatedAt, e.UpdatedAt, e.Version,
	)
	if err != nil {
		return fmt.Errorf("イベント作成に失敗しました: %w", err)
	}
	return nil
}

// GetByID はIDからイベントを取得する
func (r *EventRepository) GetByID(ctx context.Context, id string) (*event.Event, error) {
	var row eventRow
	err := r.db.GetContext(ctx, &row, `SELECT `+eventColumns+` FROM events WHERE id = $1`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, event.ErrEventNotFound
		}
		return nil, fmt.Errorf("イベント取得に失敗しました: %w", err)
	}
	return row.toEntity(), nil
}

// List はイベント一覧を取得する
func (r *EventRepository) List(ctx context.Context, limit, offset int) ([]*event.Event, error) {
	query := `SELECT ` + eventColumns + ` FROM events ORDER BY start_at DESC, id LIMIT $1 OFFSET $2`
	return r.selectEvents(ctx, "イベント一覧取得に失敗しました", query, limit, offset)
}

// Search は名称・説明・会場にキーワードを含むイベントを取得する
func (r *EventRepository) Search(ctx context.Context, keyword string, limit, offset int) ([]*event.Event, error) {
	pattern := "%" + escapeLike(strings.TrimSpace(keyword)) + "%"
	query := `
		SELECT ` + eventColumns + `
		FROM events
		WHERE name ILIKE $1 OR description ILIKE $1 OR venue ILIKE $1
		ORDER BY start_at DESC, id
		LIMIT $2 OFFSET $3
	`
	return r.selectEvents(ctx, "イベント検索に失敗しました", query, pattern, limit, offset)
}

func (r *EventRepository) selectEvents(ctx context.Context, errMsg, query string, args ...interface{}) ([]*event.Event, error) {
	var rows []eventRow
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("%s: %w", errMsg, err)
	}
	events := make([]*event.Event, len(rows))
	for i, row := range rows {
		events[i] = row.toEntity()
	}
	return events, nil
}

// Update はイベントを更新する（楽観的ロック）
// 定員は座席台帳と整合させるため更新対象に含めない
func (r *EventRepository) Update(ctx context.Context, e *event.Event) error {
	query := `
		UPDATE events
		SET name = $1, description = $2, venue = $3, start_at = $4, end_at = $5,
		    updated_at = $6, version = version + 1
		WHERE id = $7 AND version = $8
	`
	now := time.Now()
	result, err := r.db.ExecContext(ctx, query,
		e.Name, nullable(e.Description), nullable(e.Venue), e.StartAt, e.EndAt, now, e.ID, e.Version,
	)
	if err != nil {
		return fmt.Errorf("イベント更新に失敗しました: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("更新結果の確認に失敗しました: %w", err)
	}
	if rowsAffected == 0 {
		// 存在しないのか、バージョンが進んでいるのかを判別する
		if _, err := r.GetByID(ctx, e.ID); err != nil {
			return err
		}
		return event.ErrOptimisticLockConflict
	}

	e.Version++
	e.UpdatedAt = now
	return nil
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

// インターフェースを満たしているか確認
var _ event.Repository = (*EventRepository)(nil)
