package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/sanosuguru/go-event-seat-booking/internal/domain/booking"
	"github.com/sanosuguru/go-event-seat-booking/internal/domain/ledger"
	"github.com/sanosuguru/go-event-seat-booking/internal/domain/transaction"
)

type bookingRow struct {
	ID            string    `db:"id"`
	UserID        string    `db:"user_id"`
	EventID       string    `db:"event_id"`
	LedgerVersion int64     `db:"ledger_version"`
	CreatedAt     time.Time `db:"created_at"`
}

func (r *bookingRow) toEntity() *booking.Booking {
	return &booking.Booking{
		ID:            r.ID,
		UserID:        r.UserID,
		EventID:       r.EventID,
		LedgerVersion: r.LedgerVersion,
		CreatedAt:     r.CreatedAt,
	}
}

const bookingColumns = `id, user_id, event_id, ledger_version, created_at`

// BookingRepository は予約レコードリポジトリのPostgreSQL実装
type BookingRepository struct {
	db *sqlx.DB
}

// NewBookingRepository はBookingRepositoryを作成する
func NewBookingRepository(db *sqlx.DB) *BookingRepository {
	return &BookingRepository{db: db}
}

// Exists は (userID, eventID) の予約が存在するかを返す
func (r *BookingRepository) Exists(ctx context.Context, userID, eventID string) (bool, error) {
	var exists bool
	query := `SELECT EXISTS (SELECT 1 FROM bookings WHERE user_id = $1 AND event_id = $2)`
	if err := r.db.GetContext(ctx, &exists, query, userID, eventID); err != nil {
		return false, fmt.Errorf("予約の存在確認に失敗: %w", err)
	}
	return exists, nil
}

// Insert は予約を追加する
// 一意制約 (user_id, event_id) の違反は ErrDuplicateBooking を返す
func (r *BookingRepository) Insert(ctx context.Context, tx transaction.Tx, b *booking.Booking) error {
	sqlTx, err := mustUnwrap(tx)
	if err != nil {
		return err
	}
	if err := b.Validate(); err != nil {
		return err
	}
	query := `INSERT INTO bookings (` + bookingColumns + `) VALUES ($1, $2, $3, $4, $5)`
	if _, err := sqlTx.ExecContext(ctx, query, b.ID, b.UserID, b.EventID, b.LedgerVersion, b.CreatedAt); err != nil {
		switch {
		case isUniqueViolation(err):
			return booking.ErrDuplicateBooking
		case isConcurrencyFailure(err):
			return fmt.Errorf("%w: %v", ledger.ErrVersionConflict, err)
		}
		return fmt.Errorf("予約作成に失敗: %w", err)
	}
	return nil
}

// GetByID はIDから予約を取得する
func (r *BookingRepository) GetByID(ctx context.Context, id string) (*booking.Booking, error) {
	var row bookingRow
	if err := r.db.GetContext(ctx, &row, `SELECT `+bookingColumns+` FROM bookings WHERE id = $1`, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, booking.ErrBookingNotFound
		}
		return nil, fmt.Errorf("予約取得に失敗: %w", err)
	}
	return row.toEntity(), nil
}

// ListByUser はユーザーの予約を新しい順に取得する
func (r *BookingRepository) ListByUser(ctx context.Context, userID string, limit, offset int) ([]*booking.Booking, error) {
	var rows []bookingRow
	query := `SELECT ` + bookingColumns + ` FROM bookings WHERE user_id = $1 ORDER BY created_at DESC, id LIMIT $2 OFFSET $3`
	if err := r.db.SelectContext(ctx, &rows, query, userID, limit, offset); err != nil {
		return nil, fmt.Errorf("予約一覧取得に失敗: %w", err)
	}
	bookings := make([]*booking.Booking, len(rows))
	for i, row := range rows {
		bookings[i] = row.toEntity()
	}
	return bookings, nil
}

// CountByEvent はイベントの予約数を取得する
func (r *BookingRepository) CountByEvent(ctx context.Context, eventID string) (int, error) {
	var count int
	if err := r.db.GetContext(ctx, &count, `SELECT COUNT(*) FROM bookings WHERE event_id = $1`, eventID); err != nil {
		return 0, fmt.Errorf("予約数の取得に失敗: %w", err)
	}
	return count, nil
}

var _ booking.Repository = (*BookingRepository)(nil)
