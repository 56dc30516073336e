package server

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/sanosuguru/go-event-seat-booking/internal/api/handler"
	"github.com/sanosuguru/go-event-seat-booking/internal/application"
	"github.com/sanosuguru/go-event-seat-booking/internal/config"
	"github.com/sanosuguru/go-event-seat-booking/internal/domain/booking"
	"github.com/sanosuguru/go-event-seat-booking/internal/domain/event"
	"github.com/sanosuguru/go-event-seat-booking/internal/domain/ledger"
	"github.com/sanosuguru/go-event-seat-booking/internal/domain/transaction"
	"github.com/sanosuguru/go-event-seat-booking/internal/infrastructure/kafka"
	"github.com/sanosuguru/go-event-seat-booking/internal/infrastructure/memory"
	"github.com/sanosuguru/go-event-seat-booking/internal/infrastructure/postgres"
	"github.com/sanosuguru/go-event-seat-booking/internal/infrastructure/rabbitmq"
	redisinfra "github.com/sanosuguru/go-event-seat-booking/internal/infrastructure/redis"
	"github.com/sanosuguru/go-event-seat-booking/internal/pkg/logger"
	"github.com/sanosuguru/go-event-seat-booking/internal/pkg/metrics"
	"github.com/sanosuguru/go-event-seat-booking/internal/worker"
)

const pingTimeout = 3 * time.Second

var (
	ErrUnknownStorageDriver = errors.New("未対応のストレージドライバです")
	ErrUnknownBroker        = errors.New("未対応のメッセージブローカーです")
)

// App は起動に必要な依存関係一式
type App struct {
	Echo    *echo.Echo
	Auditor *worker.LedgerAuditWorker // 監査無効時は nil

	EventService   *application.EventService
	BookingService *application.BookingService
	LedgerService  *application.LedgerService

	closers []func() error
}

// Close は開いた接続を逆順に閉じる
func (app *App) Close() error {
	var errs []error
	for i := len(app.closers) - 1; i >= 0; i-- {
		if err := app.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

type storage struct {
	txManager transaction.Manager
	events    event.Repository
	ledgers   ledger.Repository
	bookings  booking.Repository
}

// New は設定に従ってストレージ・キャッシュ・ブローカーを接続し、HTTPサーバーを組み立てる
func New(ctx context.Context, cfg *config.Config, m *metrics.Metrics) (*App, error) {
	app := &App{}
	if err := app.build(ctx, cfg, m); err != nil {
		if closeErr := app.Close(); closeErr != nil {
			logger.Warn("初期化失敗後のクローズでエラー", zap.Error(closeErr))
		}
		return nil, err
	}
	return app, nil
}

func (app *App) build(ctx context.Context, cfg *config.Config, m *metrics.Metrics) error {
	checks := make(map[string]handler.HealthCheck)

	store, err := app.openStorage(cfg, checks)
	if err != nil {
		return err
	}

	var (
		cache       application.AvailabilityCache
		lockManager *redisinfra.LockManager
	)
	if cfg.Redis.Enabled {
		client := redisinfra.NewClient(&cfg.Redis)
		pctx, cancel := context.WithTimeout(ctx, pingTimeout)
		pingErr := redisinfra.Ping(pctx, client)
		cancel()
		if pingErr != nil {
			// キャッシュと分散ロックは任意機能なので、Redis なしで起動を続ける
			logger.Warn("Redisに接続できないためキャッシュと分散ロックを無効化します",
				zap.String("addr", cfg.Redis.Addr()),
				zap.Error(pingErr),
			)
			_ = client.Close()
		} else {
			app.closers = append(app.closers, client.Close)
			cache = redisinfra.NewAvailabilityCache(client, cfg.Redis.CacheTTL)
			lockManager = redisinfra.NewLockManager(client, m)
			checks["redis"] = func(ctx context.Context) error { return redisinfra.Ping(ctx, client) }
		}
	}

	publisher, err := openPublisher(cfg.Broker)
	if err != nil {
		return err
	}

	opts := []application.BookingOption{application.WithMetrics(m)}
	if cache != nil {
		opts = append(opts, application.WithAvailabilityInvalidator(cache))
	}
	if publisher != nil {
		app.closers = append(app.closers, publisher.Close)
		opts = append(opts, application.WithPublisher(publisher))
	}

	mutator := application.NewBookingMutator(store.txManager, store.ledgers, store.bookings)
	app.BookingService = application.NewBookingService(mutator, store.bookings, application.PolicyFromConfig(cfg.Booking), opts...)
	app.EventService = application.NewEventService(store.txManager, store.events, store.ledgers)
	app.LedgerService = application.NewLedgerService(store.ledgers, store.bookings, cache)

	if cfg.Worker.AuditEnabled {
		var locker worker.Locker
		if lockManager != nil {
			locker = worker.NewRedisLocker(lockManager)
		}
		app.Auditor = worker.NewLedgerAuditWorker(app.LedgerService, locker, m, cfg.Worker.AuditInterval, cfg.Worker.AuditBatch)
	}

	app.Echo = NewRouter(Services{
		Events:   app.EventService,
		Bookings: app.BookingService,
		Ledger:   app.LedgerService,
	}, cfg.Server, m, checks)

	logger.Info("アプリケーションを初期化しました",
		zap.String("storage", cfg.Storage.Driver),
		zap.Bool("cache", cache != nil),
		zap.String("broker", cfg.Broker.Kind),
		zap.Bool("audit", app.Auditor != nil),
	)
	return nil
}

func (app *App) openStorage(cfg *config.Config, checks map[string]handler.HealthCheck) (*storage, error) {
	switch cfg.Storage.Driver {
	case "memory":
		store := memory.NewStore(cfg.Storage.MemoryShards)
		return &storage{
			txManager: memory.NewTxManager(store),
			events:    memory.NewEventRepository(store),
			ledgers:   memory.NewLedgerRepository(store),
			bookings:  memory.NewBookingRepository(store),
		}, nil
	case "postgres":
		db, err := postgres.NewConnection(&cfg.Database)
		if err != nil {
			return nil, err
		}
		app.closers = append(app.closers, db.Close)
		if err := postgres.RunMigrations(db.DB, cfg.Storage.MigrationsPath); err != nil {
			return nil, err
		}
		checks["postgres"] = func(ctx context.Context) error { return postgres.Ping(ctx, db) }
		return &storage{
			txManager: postgres.NewTxManager(db, cfg.Database.LockTimeout),
			events:    postgres.NewEventRepository(db),
			ledgers:   postgres.NewLedgerRepository(db),
			bookings:  postgres.NewBookingRepository(db),
		}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownStorageDriver, cfg.Storage.Driver)
	}
}

// openPublisher は予約確定メッセージの送信先を開く（none の場合は nil）
func openPublisher(cfg config.BrokerConfig) (booking.Publisher, error) {
	switch cfg.Kind {
	case "", "none":
		return nil, nil
	case "rabbitmq":
		p, err := rabbitmq.NewPublisher(cfg.RabbitMQURL, cfg.Queue)
		if err != nil {
			return nil, err
		}
		return p, nil
	case "kafka":
		p, err := kafka.NewPublisher(cfg.KafkaBrokers, cfg.KafkaTopic)
		if err != nil {
			return nil, err
		}
		return p, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownBroker, cfg.Kind)
	}
}
