// simulate はインメモリストアに対して同時予約を流し、結果の分布と台帳の整合性を表示する
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/fatih/color"
	"go.uber.org/zap"

	"github.com/sanosuguru/go-event-seat-booking/internal/application"
	"github.com/sanosuguru/go-event-seat-booking/internal/domain/booking"
	"github.com/sanosuguru/go-event-seat-booking/internal/infrastructure/memory"
	"github.com/sanosuguru/go-event-seat-booking/internal/pkg/logger"
)

type options struct {
	capacity   int
	users      int
	events     int
	duplicates int
	attempts   int
	delay      time.Duration
	shards     int
	workers    int
	noColor    bool
}

func parseFlags() options {
	var o options
	flag.IntVar(&o.capacity, "capacity", 100, "イベントごとの定員")
	flag.IntVar(&o.users, "users", 150, "イベントごとの予約ユーザー数")
	flag.IntVar(&o.events, "events", 1, "イベント数")
	flag.IntVar(&o.duplicates, "duplicates", 0, "ユーザーごとの重複リクエスト数")
	flag.IntVar(&o.attempts, "attempts", 3, "競合時の最大試行回数")
	flag.DurationVar(&o.delay, "delay", 5*time.Millisecond, "再試行の基本待機時間")
	flag.IntVar(&o.shards, "shards", 16, "インメモリストアのシャード数")
	flag.IntVar(&o.workers, "workers", 64, "同時実行数")
	flag.BoolVar(&o.noColor, "no-color", false, "色付き出力を無効にする")
	flag.Parse()
	return o
}

type simulation struct {
	events   *application.EventService
	bookings *application.BookingService
	ledger   *application.LedgerService
}

func newSimulation(o options) *simulation {
	store := memory.NewStore(o.shards)
	txManager := memory.NewTxManager(store)
	eventRepo := memory.NewEventRepository(store)
	ledgerRepo := memory.NewLedgerRepository(store)
	bookingRepo := memory.NewBookingRepository(store)

	policy := application.BookingPolicy{MaxAttempts: o.attempts, RetryDelay: o.delay, AttemptTimeout: 3 * time.Second}
	mutator := application.NewBookingMutator(txManager, ledgerRepo, bookingRepo)
	return &simulation{
		events:   application.NewEventService(txManager, eventRepo, ledgerRepo),
		bookings: application.NewBookingService(mutator, bookingRepo, policy),
		ledger:   application.NewLedgerService(ledgerRepo, bookingRepo, nil),
	}
}

type tally struct {
	mu       sync.Mutex
	outcomes map[booking.Outcome]int
	attempts int
	errors   int
}

func (t *tally) add(res *application.BookingResult, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err != nil {
		t.errors++
		return
	}
	t.outcomes[res.Outcome]++
	t.attempts += res.Attempts
}

func (s *simulation) run(ctx context.Context, o options) (*tally, time.Duration, error) {
	eventIDs := make([]string, 0, o.events)
	start := time.Now().Add(7 * 24 * time.Hour)
	for i := 0; i < o.events; i++ {
		e, err := s.events.CreateEvent(ctx, application.CreateEventInput{
			Name:     fmt.Sprintf("simulation-%d", i+1),
			Venue:    "simulation",
			StartAt:  start,
			EndAt:    start.Add(2 * time.Hour),
			Capacity: o.capacity,
		})
		if err != nil {
			return nil, 0, err
		}
		eventIDs = append(eventIDs, e.ID)
	}

	requests := make(chan application.BookInput)
	go func() {
		defer close(requests)
		for u := 0; u < o.users; u++ {
			for _, eventID := range eventIDs {
				userID := fmt.Sprintf("user-%05d", u+1)
				for d := 0; d <= o.duplicates; d++ {
					requests <- application.BookInput{UserID: userID, EventID: eventID}
				}
			}
		}
	}()

	t := &tally{outcomes: make(map[booking.Outcome]int)}
	began := time.Now()
	var wg sync.WaitGroup
	for w := 0; w < o.workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for in := range requests {
				res, err := s.bookings.Book(ctx, in)
				if err != nil {
					logger.Error("予約に失敗", zap.String("event_id", in.EventID), zap.Error(err))
				}
				t.add(res, err)
			}
		}()
	}
	wg.Wait()
	return t, time.Since(began), nil
}

func printReport(o options, t *tally, elapsed time.Duration, report *application.AuditReport) {
	bold := color.New(color.Bold)
	palette := map[booking.Outcome]*color.Color{
		booking.OutcomeBooked:            color.New(color.FgGreen),
		booking.OutcomeSoldOut:           color.New(color.FgYellow),
		booking.OutcomeAlreadyBooked:     color.New(color.FgCyan),
		booking.OutcomeNotFound:          color.New(color.FgMagenta),
		booking.OutcomeConflictExhausted: color.New(color.FgRed),
	}

	total := 0
	outcomes := make([]booking.Outcome, 0, len(t.outcomes))
	for outcome, n := range t.outcomes {
		outcomes = append(outcomes, outcome)
		total += n
	}
	sort.Slice(outcomes, func(i, j int) bool { return outcomes[i] < outcomes[j] })

	bold.Printf("events=%d capacity=%d users=%d duplicates=%d attempts=%d\n",
		o.events, o.capacity, o.users, o.duplicates, o.attempts)
	for _, outcome := range outcomes {
		c, ok := palette[outcome]
		if !ok {
			c = color.New(color.Reset)
		}
		c.Printf("  %-20s %8d\n", outcome, t.outcomes[outcome])
	}
	if t.errors > 0 {
		color.New(color.FgRed, color.Bold).Printf("  %-20s %8d\n", "error", t.errors)
	}
	if total > 0 {
		fmt.Printf("  平均試行回数 %.2f\n", float64(t.attempts)/float64(total))
		fmt.Printf("  所要時間 %s (%.0f req/s)\n", elapsed.Round(time.Millisecond), float64(total)/elapsed.Seconds())
	}

	if len(report.Violations) == 0 {
		color.Green("台帳監査: %d 件すべて整合\n", report.Checked)
		return
	}
	color.Red("台帳監査: %d 件中 %d 件で不整合\n", report.Checked, len(report.Violations))
	for _, v := range report.Violations {
		color.Red("  event=%s capacity=%d available=%d bookings=%d\n", v.EventID, v.Capacity, v.Available, v.Bookings)
	}
}

func main() {
	o := parseFlags()
	if o.noColor {
		color.NoColor = true
	}
	logger.Init("production")
	defer func() { _ = logger.Sync() }()

	ctx := context.Background()
	sim := newSimulation(o)
	t, elapsed, err := sim.run(ctx, o)
	if err != nil {
		logger.Fatal("シミュレーションの準備に失敗", zap.Error(err))
	}
	report, err := sim.ledger.Audit(ctx, 100)
	if err != nil {
		logger.Fatal("台帳監査に失敗", zap.Error(err))
	}

	printReport(o, t, elapsed, report)
	if len(report.Violations) > 0 || t.errors > 0 {
		os.Exit(1)
	}
}
