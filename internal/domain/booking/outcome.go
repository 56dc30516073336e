package booking

// Outcome は予約処理の結果を表す
// 業務上想定される結果はエラーではなく値として返す
type Outcome int

const (
	OutcomeBooked Outcome = iota + 1
	OutcomeSoldOut
	OutcomeAlreadyBooked
	OutcomeNotFound
	OutcomeConflict
	OutcomeConflictExhausted
)

func (o Outcome) String() string {
	switch o {
	case OutcomeBooked:
		return "booked"
	case OutcomeSoldOut:
		return "sold_out"
	case OutcomeAlreadyBooked:
		return "already_booked"
	case OutcomeNotFound:
		return "not_found"
	case OutcomeConflict:
		return "conflict"
	case OutcomeConflictExhausted:
		return "conflict_exhausted"
	default:
		return "unknown"
	}
}

// IsRetryable は呼び出し側が後で再試行してよい結果かを返す
func (o Outcome) IsRetryable() bool {
	return o == OutcomeConflict || o == OutcomeConflictExhausted
}
