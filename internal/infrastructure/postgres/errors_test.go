package postgres

import (
	"errors"
	"fmt"
	"testing"

	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
)

func TestErrorClassification(t *testing.T) {
	tests := []struct {
		name        string
		err         error
		concurrency bool
		unique      bool
	}{
		{"直列化失敗", &pq.Error{Code: "40001"}, true, false},
		{"デッドロック", &pq.Error{Code: "40P01"}, true, false},
		{"lock_timeout", &pq.Error{Code: "55P03"}, true, false},
		{"一意制約違反", &pq.Error{Code: "23505"}, false, true},
		{"ラップされた一意制約違反", fmt.Errorf("insert: %w", &pq.Error{Code: "23505"}), false, true},
		{"その他のpqエラー", &pq.Error{Code: "42P01"}, false, false},
		{"pq以外のエラー", errors.New("boom"), false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.concurrency, isConcurrencyFailure(tt.err))
			assert.Equal(t, tt.unique, isUniqueViolation(tt.err))
		})
	}
}

func TestEscapeLike(t *testing.T) {
	assert.Equal(t, `100\%`, escapeLike("100%"))
	assert.Equal(t, `a\_b`, escapeLike("a_b"))
	assert.Equal(t, `c:\\d`, escapeLike(`c:\d`))
}

func TestUnwrapTx_Foreign(t *testing.T) {
	assert.Nil(t, UnwrapTx(nil))
	_, err := mustUnwrap(nil)
	assert.ErrorIs(t, err, errForeignTx)
}
