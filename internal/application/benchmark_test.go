package application

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/sanosuguru/go-event-seat-booking/internal/domain/booking"
)

// TestBenchmark_HighContention は多数イベント・多数ユーザーでの予約スループットを計測する
func TestBenchmark_HighContention(t *testing.T) {
	if testing.Short() {
		t.Skip("ベンチマークテストはshortモードではスキップ")
	}

	const (
		events        = 50
		seatsPerEvent = 200
		users         = 20000
		workers       = 64
	)
	env := setupTestEnv(t, BookingPolicy{MaxAttempts: seatsPerEvent + 1})
	ctx := context.Background()

	eventIDs := make([]string, events)
	for i := range eventIDs {
		eventIDs[i] = env.createEvent(t, fmt.Sprintf("ベンチマーク %d", i), seatsPerEvent).ID
	}

	var booked, soldOut, other atomic.Int64
	jobs := make(chan int)
	var wg sync.WaitGroup
	start := time.Now()
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				res, err := env.bookingService.Book(ctx, BookInput{
					UserID:  fmt.Sprintf("user-%d", i),
					EventID: eventIDs[i%events],
				})
				switch {
				case err != nil:
					other.Add(1)
				case res.Outcome == booking.OutcomeBooked:
					booked.Add(1)
				case res.Outcome == booking.OutcomeSoldOut:
					soldOut.Add(1)
				default:
					other.Add(1)
				}
			}
		}()
	}
	for i := 0; i < users; i++ {
		jobs <- i
	}
	close(jobs)
	wg.Wait()
	elapsed := time.Since(start)

	t.Logf("予約リクエスト: %d件 / 所要時間: %v / %.0f req/s", users, elapsed, float64(users)/elapsed.Seconds())
	t.Logf("Booked: %d, SoldOut: %d, その他: %d", booked.Load(), soldOut.Load(), other.Load())

	require.Equal(t, int64(events*seatsPerEvent), booked.Load())
	require.Equal(t, int64(users-events*seatsPerEvent), soldOut.Load())
	require.Zero(t, other.Load())

	report, err := env.ledgerService.Audit(ctx, 0)
	require.NoError(t, err)
	require.Empty(t, report.Violations)
}

func BenchmarkBookingService_Book_Uncontended(b *testing.B) {
	env := setupTestEnv(b, DefaultBookingPolicy())
	ctx := context.Background()
	e := env.createEvent(b, "bench", b.N)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := env.bookingService.Book(ctx, BookInput{UserID: fmt.Sprintf("user-%d", i), EventID: e.ID}); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkBookingService_Book_Parallel(b *testing.B) {
	env := setupTestEnv(b, BookingPolicy{MaxAttempts: 1000})
	ctx := context.Background()
	e := env.createEvent(b, "bench", 1<<30)

	var seq atomic.Int64
	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			userID := fmt.Sprintf("user-%d", seq.Add(1))
			if _, err := env.bookingService.Book(ctx, BookInput{UserID: userID, EventID: e.ID}); err != nil {
				b.Error(err)
				return
			}
		}
	})
}
