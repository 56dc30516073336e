package ledger

import "errors"

// Ledger ドメインのエラー定義
var (
	ErrLedgerNotFound        = errors.New("座席台帳が見つかりません")
	ErrSoldOut               = errors.New("空席がありません")
	ErrVersionConflict       = errors.New("座席台帳のバージョンが競合しました")
	ErrEventIDRequired       = errors.New("イベントIDは必須です")
	ErrInvalidCapacity       = errors.New("定員は0以上である必要があります")
	ErrInvalidAvailableSeats = errors.New("空席数は0以上かつ定員以下である必要があります")
)
