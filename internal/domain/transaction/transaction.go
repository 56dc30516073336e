package transaction

import (
	"context"
	"errors"
)

// ErrTxClosed はコミットまたはロールバック済みのトランザクションを操作した場合のエラー
var ErrTxClosed = errors.New("トランザクションは既に終了しています")

// Tx はトランザクションを表すインターフェース
// ドメイン層がインフラ層（sqlx等）に依存しないようにするための抽象化
type Tx interface {
	// Commit はトランザクションをコミットする
	// 他の書き込みとの競合を検出した場合はドメインの競合エラーを返す
	Commit() error
	// Rollback はトランザクションをロールバックする
	Rollback() error
}

// Manager はトランザクションを管理するインターフェース
type Manager interface {
	// Begin は新しいトランザクションを開始する
	// 分離レベルはストレージが提供する最も厳しいもの（SERIALIZABLE相当）
	Begin(ctx context.Context) (Tx, error)
}

// RollbackQuietly は終了済みを無視してロールバックする（defer 用）
func RollbackQuietly(tx Tx) {
	if tx == nil {
		return
	}
	_ = tx.Rollback()
}
