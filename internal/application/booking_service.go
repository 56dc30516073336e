package application

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/sanosuguru/go-event-seat-booking/internal/config"
	"github.com/sanosuguru/go-event-seat-booking/internal/domain/booking"
	"github.com/sanosuguru/go-event-seat-booking/internal/pkg/logger"
	"github.com/sanosuguru/go-event-seat-booking/internal/pkg/metrics"
)

const publishTimeout = 2 * time.Second

// ErrStorageTimeout は試行の期限内にストレージが応答しなかったことを表す
var ErrStorageTimeout = errors.New("ストレージが期限内に応答しませんでした")

// BookingPolicy は競合時の再試行ポリシー
type BookingPolicy struct {
	MaxAttempts    int
	RetryDelay     time.Duration // n回目の再試行前に RetryDelay*n 待つ
	AttemptTimeout time.Duration // 0 以下なら試行ごとの期限を設けない
}

// DefaultBookingPolicy はデフォルトの再試行ポリシーを返す
func DefaultBookingPolicy() BookingPolicy {
	return BookingPolicy{MaxAttempts: 3, RetryDelay: 20 * time.Millisecond, AttemptTimeout: 3 * time.Second}
}

// PolicyFromConfig は設定から再試行ポリシーを作成する
func PolicyFromConfig(cfg config.BookingConfig) BookingPolicy {
	return BookingPolicy{MaxAttempts: cfg.MaxAttempts, RetryDelay: cfg.RetryDelay, AttemptTimeout: cfg.AttemptTimeout}
}

// AvailabilityInvalidator は予約確定後に空席キャッシュを無効化する
type AvailabilityInvalidator interface {
	Invalidate(ctx context.Context, eventID string) error
}

// BookingOption は BookingService の任意設定
type BookingOption func(*BookingService)

// WithAvailabilityInvalidator は予約確定時に無効化するキャッシュを設定する
func WithAvailabilityInvalidator(c AvailabilityInvalidator) BookingOption {
	return func(s *BookingService) { s.cache = c }
}

// WithPublisher は予約確定メッセージの送信先を設定する
func WithPublisher(p booking.Publisher) BookingOption {
	return func(s *BookingService) { s.publisher = p }
}

// WithMetrics はメトリクスの記録先を設定する
func WithMetrics(m *metrics.Metrics) BookingOption {
	return func(s *BookingService) { s.metrics = m }
}

// BookingService は予約の公開窓口
// 競合のみを有限回再試行し、それ以外の結果はそのまま呼び出し側へ返す
type BookingService struct {
	mutator     *BookingMutator
	bookingRepo booking.Repository
	policy      BookingPolicy
	cache       AvailabilityInvalidator
	publisher   booking.Publisher
	metrics     *metrics.Metrics
}

func NewBookingService(mutator *BookingMutator, br booking.Repository, policy BookingPolicy, opts ...BookingOption) *BookingService {
	if policy.MaxAttempts < 1 {
		policy.MaxAttempts = 1
	}
	s := &BookingService{mutator: mutator, bookingRepo: br, policy: policy}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type BookInput struct {
	UserID  string
	EventID string
}

// BookingResult は予約要求の最終結果
type BookingResult struct {
	Outcome  booking.Outcome
	Booking  *booking.Booking
	Attempts int
}

// Book は (UserID, EventID) の予約を行う
// 返る Outcome は Booked / SoldOut / AlreadyBooked / NotFound / ConflictExhausted のいずれか
// ストレージ障害は再試行せず error で返す
func (s *BookingService) Book(ctx context.Context, input BookInput) (*BookingResult, error) {
	if input.UserID == "" {
		return nil, booking.ErrUserIDRequired
	}
	if input.EventID == "" {
		return nil, booking.ErrEventIDRequired
	}

	for attempt := 1; attempt <= s.policy.MaxAttempts; attempt++ {
		if attempt > 1 {
			if err := s.backoff(ctx, attempt-1); err != nil {
				s.metrics.RecordBooking("error", attempt-1)
				return nil, err
			}
		}

		res, err := s.attempt(ctx, input)
		if err != nil {
			s.metrics.RecordBooking("error", attempt)
			logger.Error("予約処理でストレージエラーが発生しました",
				zap.String("user_id", input.UserID),
				zap.String("event_id", input.EventID),
				zap.Int("attempt", attempt),
				zap.Error(err),
			)
			return nil, err
		}

		if res.Outcome == booking.OutcomeConflict {
			s.metrics.RecordConflict()
			logger.Debug("座席台帳の競合を検出しました",
				zap.String("event_id", input.EventID),
				zap.Int("attempt", attempt),
			)
			continue
		}

		result := &BookingResult{Outcome: res.Outcome, Booking: res.Booking, Attempts: attempt}
		s.metrics.RecordBooking(res.Outcome.String(), attempt)
		if res.Outcome == booking.OutcomeBooked {
			s.afterBooked(ctx, res.Booking)
		}
		return result, nil
	}

	logger.Warn("競合が解消せず再試行上限に達しました",
		zap.String("user_id", input.UserID),
		zap.String("event_id", input.EventID),
		zap.Int("attempts", s.policy.MaxAttempts),
	)
	s.metrics.RecordBooking(booking.OutcomeConflictExhausted.String(), s.policy.MaxAttempts)
	return &BookingResult{Outcome: booking.OutcomeConflictExhausted, Attempts: s.policy.MaxAttempts}, nil
}

// attempt は試行ごとの期限付きで1回だけ予約を試みる
// 試行の期限切れはストレージ障害として ErrStorageTimeout を返し、再試行しない
func (s *BookingService) attempt(ctx context.Context, input BookInput) (*MutationResult, error) {
	actx := ctx
	if s.policy.AttemptTimeout > 0 {
		var cancel context.CancelFunc
		actx, cancel = context.WithTimeout(ctx, s.policy.AttemptTimeout)
		defer cancel()
	}

	res, err := s.mutator.TryBook(actx, input.UserID, input.EventID)
	if err != nil && errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
		return nil, fmt.Errorf("%w (%s): %w", ErrStorageTimeout, s.policy.AttemptTimeout, err)
	}
	return res, err
}

func (s *BookingService) backoff(ctx context.Context, retry int) error {
	delay := s.policy.RetryDelay * time.Duration(retry)
	if delay <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// afterBooked は予約確定後の付随処理（キャッシュ無効化と通知）を行う
// どちらも失敗してもログのみで、予約結果は変えない
func (s *BookingService) afterBooked(ctx context.Context, b *booking.Booking) {
	logger.Info("予約が確定しました",
		zap.String("booking_id", b.ID),
		zap.String("user_id", b.UserID),
		zap.String("event_id", b.EventID),
		zap.Int64("ledger_version", b.LedgerVersion),
	)

	detached, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()

	if s.cache != nil {
		if err := s.cache.Invalidate(detached, b.EventID); err != nil {
			logger.Warn("空席キャッシュの無効化に失敗しました", zap.String("event_id", b.EventID), zap.Error(err))
		}
	}
	if s.publisher != nil {
		if err := s.publisher.PublishConfirmed(detached, booking.NewConfirmedMessage(b)); err != nil {
			logger.Warn("予約確定メッセージの送信に失敗しました", zap.String("booking_id", b.ID), zap.Error(err))
		}
	}
}

// GetBooking はIDから予約を取得する
func (s *BookingService) GetBooking(ctx context.Context, id string) (*booking.Booking, error) {
	return s.bookingRepo.GetByID(ctx, id)
}

// ListUserBookings はユーザーの予約一覧を取得する
func (s *BookingService) ListUserBookings(ctx context.Context, userID string, limit, offset int) ([]*booking.Booking, error) {
	if userID == "" {
		return nil, booking.ErrUserIDRequired
	}
	limit, offset = normalizePage(limit, offset)
	bookings, err := s.bookingRepo.ListByUser(ctx, userID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("予約一覧の取得に失敗: %w", err)
	}
	return bookings, nil
}

// normalizePage はページング指定を 1〜100 件の範囲に丸める
func normalizePage(limit, offset int) (int, int) {
	if limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}
