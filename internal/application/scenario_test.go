package application

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sanosuguru/go-event-seat-booking/internal/domain/booking"
	"github.com/sanosuguru/go-event-seat-booking/internal/domain/event"
	"github.com/sanosuguru/go-event-seat-booking/internal/infrastructure/memory"
)

// testEnv はインメモリストアで組み立てたサービス一式
type testEnv struct {
	ledgerRepo     *memory.LedgerRepository
	bookingRepo    *memory.BookingRepository
	eventService   *EventService
	ledgerService  *LedgerService
	bookingService *BookingService
}

func setupTestEnv(t testing.TB, policy BookingPolicy, opts ...BookingOption) *testEnv {
	t.Helper()
	store := memory.NewStore(16)
	txManager := memory.NewTxManager(store)
	eventRepo := memory.NewEventRepository(store)
	ledgerRepo := memory.NewLedgerRepository(store)
	bookingRepo := memory.NewBookingRepository(store)

	mutator := NewBookingMutator(txManager, ledgerRepo, bookingRepo)
	return &testEnv{
		ledgerRepo:     ledgerRepo,
		bookingRepo:    bookingRepo,
		eventService:   NewEventService(txManager, eventRepo, ledgerRepo),
		ledgerService:  NewLedgerService(ledgerRepo, bookingRepo, nil),
		bookingService: NewBookingService(mutator, bookingRepo, policy, opts...),
	}
}

func (env *testEnv) createEvent(t testing.TB, name string, capacity int) *event.Event {
	t.Helper()
	start := time.Now().Add(14 * 24 * time.Hour)
	e, err := env.eventService.CreateEvent(context.Background(), CreateEventInput{
		Name:     name,
		Venue:    "武道館",
		StartAt:  start,
		EndAt:    start.Add(2 * time.Hour),
		Capacity: capacity,
	})
	require.NoError(t, err)
	return e
}

// bookConcurrently は userIDs[i] ごとに1ゴルーチンで同時に Book を呼ぶ
func (env *testEnv) bookConcurrently(t *testing.T, eventID string, userIDs []string) []*BookingResult {
	t.Helper()
	ctx := context.Background()
	results := make([]*BookingResult, len(userIDs))
	start := make(chan struct{})
	var wg sync.WaitGroup
	for i, userID := range userIDs {
		wg.Add(1)
		go func(i int, userID string) {
			defer wg.Done()
			<-start
			res, err := env.bookingService.Book(ctx, BookInput{UserID: userID, EventID: eventID})
			if err != nil {
				t.Errorf("予約でエラーが発生: %v", err)
				return
			}
			results[i] = res
		}(i, userID)
	}
	close(start)
	wg.Wait()
	return results
}

func countOutcomes(results []*BookingResult) map[booking.Outcome]int {
	counts := make(map[booking.Outcome]int)
	for _, r := range results {
		if r != nil {
			counts[r.Outcome]++
		}
	}
	return counts
}

func distinctUsers(n int) []string {
	users := make([]string, n)
	for i := range users {
		users[i] = fmt.Sprintf("user-%03d", i)
	}
	return users
}

// ampleRetries は1リクエストあたりの競合回数（最大で定員回）を上回る再試行予算
func ampleRetries(capacity int) BookingPolicy {
	return BookingPolicy{MaxAttempts: capacity + 1, RetryDelay: 0, AttemptTimeout: 5 * time.Second}
}

// TestScenario_FullBookingFlow はイベント作成から予約確認までの一連の流れ
func TestScenario_FullBookingFlow(t *testing.T) {
	env := setupTestEnv(t, DefaultBookingPolicy())
	ctx := context.Background()

	e := env.createEvent(t, "東京ドームコンサート 2026", 3)

	avail, err := env.ledgerService.GetAvailability(ctx, e.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, avail.Available)
	assert.Equal(t, int64(0), avail.Version)

	res, err := env.bookingService.Book(ctx, BookInput{UserID: "user-tanaka", EventID: e.ID})
	require.NoError(t, err)
	assert.Equal(t, booking.OutcomeBooked, res.Outcome)
	assert.Equal(t, 1, res.Attempts)
	require.NotNil(t, res.Booking)
	assert.Equal(t, int64(1), res.Booking.LedgerVersion)

	got, err := env.bookingService.GetBooking(ctx, res.Booking.ID)
	require.NoError(t, err)
	assert.Equal(t, "user-tanaka", got.UserID)

	mine, err := env.bookingService.ListUserBookings(ctx, "user-tanaka", 0, 0)
	require.NoError(t, err)
	assert.Len(t, mine, 1)

	// 同じユーザーの2回目はAlreadyBooked
	again, err := env.bookingService.Book(ctx, BookInput{UserID: "user-tanaka", EventID: e.ID})
	require.NoError(t, err)
	assert.Equal(t, booking.OutcomeAlreadyBooked, again.Outcome)

	avail, err = env.ledgerService.GetAvailability(ctx, e.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, avail.Available)
	assert.Equal(t, 1, avail.Booked)
	assert.Equal(t, int64(1), avail.Version)

	report, err := env.ledgerService.Audit(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Checked)
	assert.Empty(t, report.Violations)
}

// TestScenario_LastSeatRace は定員1のイベントに2人が同時に予約する
func TestScenario_LastSeatRace(t *testing.T) {
	for i := 0; i < 20; i++ {
		env := setupTestEnv(t, BookingPolicy{MaxAttempts: 3})
		e := env.createEvent(t, "最後の1席", 1)

		results := env.bookConcurrently(t, e.ID, []string{"user-a", "user-b"})
		counts := countOutcomes(results)

		require.Equal(t, 1, counts[booking.OutcomeBooked], "1人だけが予約できる")
		require.Equal(t, 1, counts[booking.OutcomeSoldOut], "もう1人は満席")

		l, err := env.ledgerRepo.Get(context.Background(), e.ID)
		require.NoError(t, err)
		assert.Equal(t, 0, l.AvailableSeats)
		assert.Equal(t, int64(1), l.Version)
	}
}

// TestScenario_SameUserConcurrent は同じユーザーが同時に何度も予約する
func TestScenario_SameUserConcurrent(t *testing.T) {
	env := setupTestEnv(t, BookingPolicy{MaxAttempts: 3})
	ctx := context.Background()
	e := env.createEvent(t, "二重予約防止", 10)

	users := make([]string, 20)
	for i := range users {
		users[i] = "user-same"
	}
	results := env.bookConcurrently(t, e.ID, users)
	counts := countOutcomes(results)

	assert.Equal(t, 1, counts[booking.OutcomeBooked])
	assert.Equal(t, len(users)-1, counts[booking.OutcomeAlreadyBooked])

	count, err := env.bookingRepo.CountByEvent(ctx, e.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	l, err := env.ledgerRepo.Get(ctx, e.ID)
	require.NoError(t, err)
	assert.Equal(t, 9, l.AvailableSeats)
	assert.Equal(t, int64(1), l.Version)
}

// TestScenario_UnknownEvent は存在しないイベントへの予約
func TestScenario_UnknownEvent(t *testing.T) {
	env := setupTestEnv(t, DefaultBookingPolicy())
	ctx := context.Background()
	e := env.createEvent(t, "既存イベント", 5)

	res, err := env.bookingService.Book(ctx, BookInput{UserID: "user-1", EventID: "no-such-event"})
	require.NoError(t, err)
	assert.Equal(t, booking.OutcomeNotFound, res.Outcome)
	assert.Nil(t, res.Booking)

	// 他の台帳は変化しない
	l, err := env.ledgerRepo.Get(ctx, e.ID)
	require.NoError(t, err)
	assert.Equal(t, 5, l.AvailableSeats)
	assert.Equal(t, int64(0), l.Version)

	mine, err := env.bookingService.ListUserBookings(ctx, "user-1", 10, 0)
	require.NoError(t, err)
	assert.Empty(t, mine)
}

// TestScenario_HundredSeatsHundredFiftyUsers は定員100に150人が同時に予約する
func TestScenario_HundredSeatsHundredFiftyUsers(t *testing.T) {
	const capacity = 100
	const users = 150
	env := setupTestEnv(t, ampleRetries(capacity))
	ctx := context.Background()
	e := env.createEvent(t, "人気アーティストライブ", capacity)

	results := env.bookConcurrently(t, e.ID, distinctUsers(users))
	counts := countOutcomes(results)

	assert.Equal(t, capacity, counts[booking.OutcomeBooked])
	assert.Equal(t, users-capacity, counts[booking.OutcomeSoldOut])
	assert.Zero(t, counts[booking.OutcomeConflictExhausted])

	l, err := env.ledgerRepo.Get(ctx, e.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, l.AvailableSeats)
	assert.Equal(t, int64(capacity), l.Version)

	// k番目に確定した予約は台帳バージョン k を持つ
	versions := make([]int64, 0, capacity)
	for _, r := range results {
		if r != nil && r.Outcome == booking.OutcomeBooked {
			versions = append(versions, r.Booking.LedgerVersion)
		}
	}
	sort.Slice(versions, func(i, j int) bool { return versions[i] < versions[j] })
	for i, v := range versions {
		assert.Equal(t, int64(i+1), v)
	}

	report, err := env.ledgerService.Audit(ctx, 0)
	require.NoError(t, err)
	assert.Empty(t, report.Violations)
}

// TestScenario_RetryConvergence は定員ちょうどの人数なら全員が予約できることを確認する
func TestScenario_RetryConvergence(t *testing.T) {
	const capacity = 40
	env := setupTestEnv(t, ampleRetries(capacity))
	e := env.createEvent(t, "ちょうど満席", capacity)

	results := env.bookConcurrently(t, e.ID, distinctUsers(capacity))
	counts := countOutcomes(results)
	assert.Equal(t, capacity, counts[booking.OutcomeBooked])

	// 定員+1人目は満席
	res, err := env.bookingService.Book(context.Background(), BookInput{UserID: "user-late", EventID: e.ID})
	require.NoError(t, err)
	assert.Equal(t, booking.OutcomeSoldOut, res.Outcome)
}

// TestScenario_SmallRetryBudgetNeverOversells は再試行が少なくても超過予約しないことを確認する
func TestScenario_SmallRetryBudgetNeverOversells(t *testing.T) {
	const capacity = 30
	const users = 120
	env := setupTestEnv(t, BookingPolicy{MaxAttempts: 1})
	ctx := context.Background()
	e := env.createEvent(t, "再試行なし", capacity)

	results := env.bookConcurrently(t, e.ID, distinctUsers(users))
	counts := countOutcomes(results)

	assert.LessOrEqual(t, counts[booking.OutcomeBooked], capacity)
	assert.Equal(t, users, counts[booking.OutcomeBooked]+counts[booking.OutcomeSoldOut]+counts[booking.OutcomeConflictExhausted])

	l, err := env.ledgerRepo.Get(ctx, e.ID)
	require.NoError(t, err)
	count, err := env.bookingRepo.CountByEvent(ctx, e.ID)
	require.NoError(t, err)
	assert.Equal(t, counts[booking.OutcomeBooked], count)
	assert.Equal(t, capacity-count, l.AvailableSeats)
	assert.Equal(t, int64(count), l.Version)
}

// TestScenario_MixedEventsAndDuplicates は複数イベント・重複ユーザー混在時の不変条件を確認する
func TestScenario_MixedEventsAndDuplicates(t *testing.T) {
	env := setupTestEnv(t, ampleRetries(20))
	ctx := context.Background()
	events := []*event.Event{
		env.createEvent(t, "A", 5),
		env.createEvent(t, "B", 20),
		env.createEvent(t, "C", 0),
	}

	type key struct{ user, event string }
	var mu sync.Mutex
	booked := make(map[key]int)

	var wg sync.WaitGroup
	for i := 0; i < 200; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			e := events[i%len(events)]
			userID := fmt.Sprintf("user-%d", i%30) // 同じユーザーが同じイベントに複数回来る
			res, err := env.bookingService.Book(ctx, BookInput{UserID: userID, EventID: e.ID})
			if err != nil {
				t.Errorf("予約でエラーが発生: %v", err)
				return
			}
			if res.Outcome == booking.OutcomeBooked {
				mu.Lock()
				booked[key{userID, e.ID}]++
				mu.Unlock()
			}
		}(i)
	}
	wg.Wait()

	for k, n := range booked {
		assert.Equal(t, 1, n, "ユーザー %s はイベント %s を1回だけ予約できる", k.user, k.event)
	}
	for _, e := range events {
		l, err := env.ledgerRepo.Get(ctx, e.ID)
		require.NoError(t, err)
		count, err := env.bookingRepo.CountByEvent(ctx, e.ID)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, l.AvailableSeats, 0)
		assert.Equal(t, e.Capacity-l.AvailableSeats, count)
		assert.Equal(t, int64(count), l.Version)
	}
}
