package worker

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/sanosuguru/go-event-seat-booking/internal/application"
	redisinfra "github.com/sanosuguru/go-event-seat-booking/internal/infrastructure/redis"
	"github.com/sanosuguru/go-event-seat-booking/internal/pkg/logger"
	"github.com/sanosuguru/go-event-seat-booking/internal/pkg/metrics"
)

const auditLockKey = "ledger-audit"

// LedgerAuditor は座席台帳と予約レコードの整合性を検証するインターフェース
type LedgerAuditor interface {
	Audit(ctx context.Context, batch int) (*application.AuditReport, error)
}

// Lock は取得済みの分散ロック
type Lock interface {
	Release(ctx context.Context) error
}

// Locker は複数レプリカ間で監査を1つに絞るためのロック
type Locker interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (Lock, error)
}

type redisLocker struct {
	manager *redisinfra.LockManager
}

// NewRedisLocker は Redis の LockManager を Locker として使う
func NewRedisLocker(m *redisinfra.LockManager) Locker {
	return &redisLocker{manager: m}
}

func (l *redisLocker) Acquire(ctx context.Context, key string, ttl time.Duration) (Lock, error) {
	lock, err := l.manager.AcquireLock(ctx, key, ttl)
	if err != nil {
		return nil, err
	}
	return lock, nil
}

// LedgerAuditWorker は定期的に座席台帳を監査するワーカー
type LedgerAuditWorker struct {
	auditor  LedgerAuditor
	locker   Locker
	metrics  *metrics.Metrics
	interval time.Duration
	batch    int
	stopCh   chan struct{}
	doneCh   chan struct{}
}

// NewLedgerAuditWorker は新しい監査ワーカーを作成
// locker が nil の場合はロックを取らずに監査する（単一レプリカ・インメモリ構成）
func NewLedgerAuditWorker(
	auditor LedgerAuditor,
	locker Locker,
	m *metrics.Metrics,
	interval time.Duration,
	batch int,
) *LedgerAuditWorker {
	return &LedgerAuditWorker{
		auditor:  auditor,
		locker:   locker,
		metrics:  m,
		interval: interval,
		batch:    batch,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

// Start は監査ワーカーを開始
func (w *LedgerAuditWorker) Start(ctx context.Context) {
	logger.Info("台帳監査ワーカー開始",
		zap.Duration("interval", w.interval),
		zap.Int("batch", w.batch),
		zap.Bool("distributed_lock", w.locker != nil),
	)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	defer close(w.doneCh)

	for {
		select {
		case <-ctx.Done():
			logger.Info("台帳監査ワーカー停止（コンテキストキャンセル）")
			return
		case <-w.stopCh:
			logger.Info("台帳監査ワーカー停止（シグナル受信）")
			return
		case <-ticker.C:
			w.runOnce(ctx)
		}
	}
}

// Stop は監査ワーカーを停止
func (w *LedgerAuditWorker) Stop() {
	close(w.stopCh)
	<-w.doneCh
}

// runOnce は1回分の監査を行い、実行した場合は true を返す
func (w *LedgerAuditWorker) runOnce(ctx context.Context) bool {
	log := logger.Get()

	if w.locker != nil {
		lock, err := w.locker.Acquire(ctx, auditLockKey, w.interval)
		if err != nil {
			if errors.Is(err, redisinfra.ErrLockNotAcquired) {
				log.Debug("他のレプリカが監査中のためスキップ")
			} else {
				log.Warn("監査ロックの取得に失敗", zap.Error(err))
			}
			return false
		}
		defer func() {
			if err := lock.Release(context.WithoutCancel(ctx)); err != nil {
				log.Warn("監査ロックの解放に失敗", zap.Error(err))
			}
		}()
	}

	log.Debug("台帳監査開始")
	report, err := w.auditor.Audit(ctx, w.batch)
	if err != nil {
		log.Error("台帳監査に失敗", zap.Error(err))
		return true
	}

	w.metrics.RecordAuditViolations(len(report.Violations))
	for _, v := range report.Violations {
		log.Error("座席台帳の不整合を検出",
			zap.String("event_id", v.EventID),
			zap.Int("capacity", v.Capacity),
			zap.Int("available", v.Available),
			zap.Int("bookings", v.Bookings),
		)
	}
	if len(report.Violations) == 0 {
		log.Debug("台帳監査完了", zap.Int("checked", report.Checked))
	}
	return true
}
