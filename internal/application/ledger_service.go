package application

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/sanosuguru/go-event-seat-booking/internal/domain/booking"
	"github.com/sanosuguru/go-event-seat-booking/internal/domain/ledger"
	redisinfra "github.com/sanosuguru/go-event-seat-booking/internal/infrastructure/redis"
	"github.com/sanosuguru/go-event-seat-booking/internal/pkg/logger"
)

// AvailabilityCache は空席状況の読み取りキャッシュ
type AvailabilityCache interface {
	Get(ctx context.Context, eventID string) (*ledger.Ledger, error)
	Set(ctx context.Context, l *ledger.Ledger) error
	Invalidate(ctx context.Context, eventID string) error
}

// Availability はイベントの空席状況
type Availability struct {
	EventID   string
	Capacity  int
	Available int
	Booked    int
	Version   int64
	SoldOut   bool
}

func newAvailability(l *ledger.Ledger) *Availability {
	return &Availability{
		EventID:   l.EventID,
		Capacity:  l.Capacity,
		Available: l.AvailableSeats,
		Booked:    l.Booked(),
		Version:   l.Version,
		SoldOut:   l.IsSoldOut(),
	}
}

// LedgerViolation は座席台帳と予約レコード数の不整合
type LedgerViolation struct {
	EventID   string
	Capacity  int
	Available int
	Bookings  int
}

// AuditReport は台帳監査の結果
type AuditReport struct {
	Checked    int
	Violations []LedgerViolation
}

// auditRechecks は版が動き続ける台帳を読み直す上限
const auditRechecks = 3

// LedgerService は座席台帳の読み取りと監査を行う
type LedgerService struct {
	ledgerRepo  ledger.Repository
	bookingRepo booking.Repository
	cache       AvailabilityCache
}

// NewLedgerService は LedgerService を作成する（cache は nil 可）
func NewLedgerService(lr ledger.Repository, br booking.Repository, cache AvailabilityCache) *LedgerService {
	return &LedgerService{ledgerRepo: lr, bookingRepo: br, cache: cache}
}

// GetAvailability はイベントの空席状況を返す
// 表示用の値であり、予約の可否はこの値では決まらない
func (s *LedgerService) GetAvailability(ctx context.Context, eventID string) (*Availability, error) {
	if s.cache != nil {
		l, err := s.cache.Get(ctx, eventID)
		if err == nil {
			logger.Debug("キャッシュヒット", zap.String("event_id", eventID), zap.Int("available", l.AvailableSeats))
			return newAvailability(l), nil
		}
		if !errors.Is(err, redisinfra.ErrCacheMiss) {
			logger.Warn("キャッシュ取得エラー", zap.Error(err))
		}
	}

	l, err := s.ledgerRepo.Get(ctx, eventID)
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		s.fillCache(ctx, l)
	}
	return newAvailability(l), nil
}

// fillCache は読み取った台帳をキャッシュに保存する
// 読み取りから保存までの間に予約が確定すると、その無効化より後に古い値が書かれうる。
// 保存後に台帳を読み直し、版が進んでいれば保存した値を捨てる
func (s *LedgerService) fillCache(ctx context.Context, l *ledger.Ledger) {
	if err := s.cache.Set(ctx, l); err != nil {
		logger.Warn("キャッシュ保存エラー", zap.Error(err))
		return
	}
	latest, err := s.ledgerRepo.Get(ctx, l.EventID)
	if err == nil && latest.Version == l.Version {
		return
	}
	if err := s.cache.Invalidate(ctx, l.EventID); err != nil {
		logger.Warn("キャッシュ無効化エラー", zap.String("event_id", l.EventID), zap.Error(err))
	}
}

// Audit はすべての座席台帳について 予約数 == 定員 - 空席数 を検証する
// batch 件ずつ台帳を読み、各イベントの予約数と突き合わせる
func (s *LedgerService) Audit(ctx context.Context, batch int) (*AuditReport, error) {
	if batch <= 0 {
		batch = 100
	}
	report := &AuditReport{}
	for offset := 0; ; offset += batch {
		ledgers, err := s.ledgerRepo.List(ctx, batch, offset)
		if err != nil {
			return report, fmt.Errorf("座席台帳一覧の取得に失敗: %w", err)
		}
		for _, l := range ledgers {
			v, err := s.verify(ctx, l)
			if err != nil {
				return report, err
			}
			report.Checked++
			if v != nil {
				report.Violations = append(report.Violations, *v)
			}
		}
		if len(ledgers) < batch {
			return report, nil
		}
	}
}

// verify は1件の台帳を予約数と突き合わせる
// 台帳の読み取りと件数取得の間に予約が確定すると不一致に見えるため、
// 件数取得の前後で台帳の版が変わっていない場合だけ違反とする
func (s *LedgerService) verify(ctx context.Context, l *ledger.Ledger) (*LedgerViolation, error) {
	count, err := s.bookingRepo.CountByEvent(ctx, l.EventID)
	if err != nil {
		return nil, fmt.Errorf("予約数の取得に失敗: %w", err)
	}
	for recheck := 0; count != l.Booked() && l.Validate() == nil; recheck++ {
		latest, err := s.ledgerRepo.Get(ctx, l.EventID)
		if err != nil {
			return nil, fmt.Errorf("座席台帳の再取得に失敗: %w", err)
		}
		if latest.Version == l.Version {
			break
		}
		if recheck == auditRechecks {
			logger.Debug("予約が続いているため台帳の監査を見送ります",
				zap.String("event_id", l.EventID),
				zap.Int64("version", latest.Version),
			)
			return nil, nil
		}
		l = latest
		if count, err = s.bookingRepo.CountByEvent(ctx, l.EventID); err != nil {
			return nil, fmt.Errorf("予約数の取得に失敗: %w", err)
		}
	}
	if count == l.Booked() && l.Validate() == nil {
		return nil, nil
	}
	return &LedgerViolation{
		EventID:   l.EventID,
		Capacity:  l.Capacity,
		Available: l.AvailableSeats,
		Bookings:  count,
	}, nil
}
