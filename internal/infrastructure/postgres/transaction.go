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

var errForeignTx = errors.New("postgres: トランザクションが sqlx.Tx ではありません")

// TxWrapper は sqlx.Tx を transaction.Tx インターフェースでラップする
type TxWrapper struct {
	*sqlx.Tx
}

// Commit はトランザクションをコミットする
// コミット時の直列化失敗は座席台帳のバージョン競合として返す
func (t *TxWrapper) Commit() error {
	err := t.Tx.Commit()
	switch {
	case err == nil:
		return nil
	case errors.Is(err, sql.ErrTxDone):
		return transaction.ErrTxClosed
	case isConcurrencyFailure(err):
		return fmt.Errorf("%w: %v", ledger.ErrVersionConflict, err)
	default:
		return fmt.Errorf("コミットに失敗しました: %w", err)
	}
}

// Rollback はトランザクションをロールバックする
func (t *TxWrapper) Rollback() error {
	if err := t.Tx.Rollback(); err != nil {
		if errors.Is(err, sql.ErrTxDone) {
			return transaction.ErrTxClosed
		}
		return err
	}
	return nil
}

// TxManager は sqlx.DB を使用したトランザクションマネージャー
// すべてのトランザクションを SERIALIZABLE で開始し、ロック待ちには lock_timeout を設定する
type TxManager struct {
	db          *sqlx.DB
	lockTimeout time.Duration
}

// NewTxManager は新しい TxManager を作成する
func NewTxManager(db *sqlx.DB, lockTimeout time.Duration) *TxManager {
	return &TxManager{db: db, lockTimeout: lockTimeout}
}

// Begin は新しいトランザクションを開始する
func (m *TxManager) Begin(ctx context.Context) (transaction.Tx, error) {
	tx, err := m.db.BeginTxx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, fmt.Errorf("トランザクション開始に失敗しました: %w", err)
	}
	if m.lockTimeout > 0 {
		// SET はプレースホルダを受け付けないため整数値を埋め込む
		stmt := fmt.Sprintf("SET LOCAL lock_timeout = '%dms'", m.lockTimeout.Milliseconds())
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			_ = tx.Rollback()
			return nil, fmt.Errorf("lock_timeout の設定に失敗しました: %w", err)
		}
	}
	return &TxWrapper{Tx: tx}, nil
}

// UnwrapTx は transaction.Tx から sqlx.Tx を取り出す
// リポジトリ実装で使用する
func UnwrapTx(tx transaction.Tx) *sqlx.Tx {
	if wrapper, ok := tx.(*TxWrapper); ok {
		return wrapper.Tx
	}
	return nil
}

func mustUnwrap(tx transaction.Tx) (*sqlx.Tx, error) {
	if sqlTx := UnwrapTx(tx); sqlTx != nil {
		return sqlTx, nil
	}
	return nil, errForeignTx
}

var _ transaction.Manager = (*TxManager)(nil)
