package application

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/sanosuguru/go-event-seat-booking/internal/domain/event"
	"github.com/sanosuguru/go-event-seat-booking/internal/domain/ledger"
	"github.com/sanosuguru/go-event-seat-booking/internal/domain/transaction"
	"github.com/sanosuguru/go-event-seat-booking/internal/pkg/logger"
)

// EventService はイベントカタログを管理する
// イベント作成時に同じトランザクションで座席台帳を作成する
type EventService struct {
	txManager  transaction.Manager
	eventRepo  event.Repository
	ledgerRepo ledger.Repository
}

func NewEventService(tm transaction.Manager, er event.Repository, lr ledger.Repository) *EventService {
	return &EventService{txManager: tm, eventRepo: er, ledgerRepo: lr}
}

type CreateEventInput struct {
	Name        string
	Description string
	Venue       string
	StartAt     time.Time
	EndAt       time.Time
	Capacity    int
}

func (s *EventService) CreateEvent(ctx context.Context, input CreateEventInput) (*event.Event, error) {
	e := event.NewEvent(input.Name, input.Description, input.Venue, input.StartAt, input.EndAt, input.Capacity)
	if err := e.Validate(); err != nil {
		return nil, fmt.Errorf("バリデーションエラー: %w", err)
	}

	tx, err := s.txManager.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("トランザクション開始に失敗: %w", err)
	}
	defer transaction.RollbackQuietly(tx)

	if err := s.eventRepo.Create(ctx, tx, e); err != nil {
		return nil, fmt.Errorf("イベント作成に失敗しました: %w", err)
	}
	if err := s.ledgerRepo.Create(ctx, tx, ledger.NewLedger(e.ID, e.Capacity)); err != nil {
		return nil, fmt.Errorf("座席台帳の作成に失敗しました: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("コミットに失敗: %w", err)
	}

	logger.Info("イベントを作成しました", zap.String("event_id", e.ID), zap.Int("capacity", e.Capacity))
	return e, nil
}

func (s *EventService) GetEvent(ctx context.Context, id string) (*event.Event, error) {
	return s.eventRepo.GetByID(ctx, id)
}

func (s *EventService) ListEvents(ctx context.Context, limit, offset int) ([]*event.Event, error) {
	limit, offset = normalizePage(limit, offset)
	return s.eventRepo.List(ctx, limit, offset)
}

// SearchEvents はキーワードでイベントを検索する（空のキーワードは一覧と同じ）
func (s *EventService) SearchEvents(ctx context.Context, keyword string, limit, offset int) ([]*event.Event, error) {
	keyword = strings.TrimSpace(keyword)
	if keyword == "" {
		return s.ListEvents(ctx, limit, offset)
	}
	limit, offset = normalizePage(limit, offset)
	return s.eventRepo.Search(ctx, keyword, limit, offset)
}

// UpdateEventInput はイベントの更新内容
// Version を指定した場合は、現在のバージョンと一致するときだけ更新する
type UpdateEventInput struct {
	ID          string
	Name        string
	Description string
	Venue       string
	StartAt     time.Time
	EndAt       time.Time
	Version     *int
}

func (s *EventService) UpdateEvent(ctx context.Context, input UpdateEventInput) (*event.Event, error) {
	e, err := s.eventRepo.GetByID(ctx, input.ID)
	if err != nil {
		return nil, err
	}
	if input.Version != nil && *input.Version != e.Version {
		return nil, event.ErrOptimisticLockConflict
	}
	if err := e.UpdateDetails(input.Name, input.Description, input.Venue, input.StartAt, input.EndAt); err != nil {
		return nil, fmt.Errorf("バリデーションエラー: %w", err)
	}
	if err := s.eventRepo.Update(ctx, e); err != nil {
		return nil, err
	}
	return e, nil
}
