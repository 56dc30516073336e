package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/sanosuguru/go-event-seat-booking/internal/domain/ledger"
	"github.com/sanosuguru/go-event-seat-booking/internal/domain/transaction"
)

type ledgerRow struct {
	EventID        string    `db:"event_id"`
	Capacity       int       `db:"capacity"`
	AvailableSeats int       `db:"available_seats"`
	Version        int64     `db:"version"`
	CreatedAt      time.Time `db:"created_at"`
	UpdatedAt      time.Time `db:"updated_at"`
}

func (r *ledgerRow) toEntity() *ledger.Ledger {
	return &ledger.Ledger{
		EventID:        r.EventID,
		Capacity:       r.Capacity,
		AvailableSeats: r.AvailableSeats,
		Version:        r.Version,
		CreatedAt:      r.CreatedAt,
		UpdatedAt:      r.UpdatedAt,
	}
}

const ledgerColumns = `event_id, capacity, available_seats, version, created_at, updated_at`

// LedgerRepository は座席台帳リポジトリのPostgreSQL実装
type LedgerRepository struct {
	db *sqlx.DB
}

// NewLedgerRepository はLedgerRepositoryを作成する
func NewLedgerRepository(db *sqlx.DB) *LedgerRepository {
	return &LedgerRepository{db: db}
}

// Create は座席台帳を作成する
func (r *LedgerRepository) Create(ctx context.Context, tx transaction.Tx, l *ledger.Ledger) error {
	sqlTx, err := mustUnwrap(tx)
	if err != nil {
		return err
	}
	if err := l.Validate(); err != nil {
		return err
	}
	query := `INSERT INTO seat_ledgers (` + ledgerColumns + `) VALUES ($1, $2, $3, $4, $5, $6)`
	if _, err := sqlTx.ExecContext(ctx, query, l.EventID, l.Capacity, l.AvailableSeats, l.Version, l.CreatedAt, l.UpdatedAt); err != nil {
		return fmt.Errorf("座席台帳作成に失敗: %w", err)
	}
	return nil
}

// Get はイベントIDから座席台帳を取得する
func (r *LedgerRepository) Get(ctx context.Context, eventID string) (*ledger.Ledger, error) {
	var row ledgerRow
	query := `SELECT ` + ledgerColumns + ` FROM seat_ledgers WHERE event_id = $1`
	if err := r.db.GetContext(ctx, &row, query, eventID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ledger.ErrLedgerNotFound
		}
		return nil, fmt.Errorf("座席台帳取得に失敗: %w", err)
	}
	return row.toEntity(), nil
}

// List は座席台帳一覧を取得する
func (r *LedgerRepository) List(ctx context.Context, limit, offset int) ([]*ledger.Ledger, error) {
	var rows []ledgerRow
	query := `SELECT ` + ledgerColumns + ` FROM seat_ledgers ORDER BY event_id LIMIT $1 OFFSET $2`
	if err := r.db.SelectContext(ctx, &rows, query, limit, offset); err != nil {
		return nil, fmt.Errorf("座席台帳一覧取得に失敗: %w", err)
	}
	ledgers := make([]*ledger.Ledger, len(rows))
	for i, row := range rows {
		ledgers[i] = row.toEntity()
	}
	return ledgers, nil
}

// TryDecrement はバージョンの比較と空席の減算を1文で行う
// 更新行がなければ同じトランザクション内で再読込して原因を判定する
func (r *LedgerRepository) TryDecrement(ctx context.Context, tx transaction.Tx, eventID string, expectedVersion int64) (int64, error) {
	sqlTx, err := mustUnwrap(tx)
	if err != nil {
		return 0, err
	}

	query := `
		UPDATE seat_ledgers
		SET available_seats = available_seats - 1, version = version + 1, updated_at = NOW()
		WHERE event_id = $1 AND version = $2 AND available_seats > 0
		RETURNING version
	`
	var newVersion int64
	err = sqlTx.QueryRowxContext(ctx, query, eventID, expectedVersion).Scan(&newVersion)
	switch {
	case err == nil:
		return newVersion, nil
	case isConcurrencyFailure(err):
		return 0, fmt.Errorf("%w: %v", ledger.ErrVersionConflict, err)
	case !errors.Is(err, sql.ErrNoRows):
		return 0, fmt.Errorf("座席台帳の更新に失敗: %w", err)
	}

	var row ledgerRow
	if err := sqlTx.GetContext(ctx, &row, `SELECT `+ledgerColumns+` FROM seat_ledgers WHERE event_id = $1`, eventID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, ledger.ErrLedgerNotFound
		}
		if isConcurrencyFailure(err) {
			return 0, fmt.Errorf("%w: %v", ledger.ErrVersionConflict, err)
		}
		return 0, fmt.Errorf("座席台帳取得に失敗: %w", err)
	}
	if row.AvailableSeats <= 0 {
		return 0, ledger.ErrSoldOut
	}
	return 0, ledger.ErrVersionConflict
}

var _ ledger.Repository = (*LedgerRepository)(nil)
