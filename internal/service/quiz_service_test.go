package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"quizo/internal/model"
	"quizo/internal/quiz"
	"quizo/internal/repository"
	"quizo/pkg/monitoring"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"go.uber.org/zap"
)

const waitTimeout = 2 * time.Second

type fakeTicker struct {
	ch      chan time.Time
	stopped chan struct{}
	once    sync.Once
}

func (f *fakeTicker) C() <-chan time.Time { return f.ch }

func (f *fakeTicker) Stop() {
	f.once.Do(func() { close(f.stopped) })
}

type tickerFactory struct {
	created chan *fakeTicker
}

func (f *tickerFactory) newTicker(time.Duration) Ticker {
	t := &fakeTicker{ch: make(chan time.Time), stopped: make(chan struct{})}
	f.created <- t
	return t
}

func (f *tickerFactory) next(t *testing.T) *fakeTicker {
	t.Helper()

	select {
	case tk := <-f.created:
		return tk
	case <-time.After(waitTimeout):
		t.Fatal("timed out waiting for countdown ticker")
		return nil
	}
}

func fire(t *testing.T, tk *fakeTicker, n int) {
	t.Helper()

	for i := 0; i < n; i++ {
		select {
		case tk.ch <- time.Now():
		case <-time.After(waitTimeout):
			t.Fatalf("tick %d was not consumed", i+1)
		}
	}
}

func eventually(t *testing.T, cond func() bool) {
	t.Helper()

	deadline := time.Now().Add(waitTimeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before timeout")
}

type failingStore struct {
	repository.AttemptStore
	calls int
	mu    sync.Mutex
}

func (f *failingStore) Append(context.Context, *model.Attempt) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return errors.New("disk full")
}

func newTestService(t *testing.T, store repository.AttemptStore, opts QuizOptions) (*QuizService, *tickerFactory) {
	t.Helper()

	session, err := quiz.NewSession(quiz.DefaultQuestions(), quiz.DefaultCountdown)
	if err != nil {
		t.Fatalf("new session: %v", err)
	}
	svc := NewQuizService(session, store, zap.NewNop(), opts)
	factory := &tickerFactory{created: make(chan *fakeTicker, 64)}
	svc.newTicker = factory.newTicker
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), waitTimeout)
		defer cancel()
		_ = svc.Stop(ctx)
	})
	return svc, factory
}

func flush(t *testing.T, svc *QuizService) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), waitTimeout)
	defer cancel()
	if err := svc.Flush(ctx); err != nil {
		t.Fatalf("flush: %v", err)
	}
}

func TestSelectAndAdvancePersistsAttempt(t *testing.T) {
	t.Parallel()

	store := repository.NewMemoryAttemptRepository()
	svc, _ := newTestService(t, store, QuizOptions{})
	svc.Start()

	view, err := svc.SelectChoice("Mercury")
	if err != nil {
		t.Fatalf("select choice: %v", err)
	}
	if view.Feedback != quiz.FeedbackCorrect || view.Score != 1 {
		t.Fatalf("feedback = %q score = %d, want correct and 1", view.Feedback, view.Score)
	}

	res, err := svc.Advance()
	if err != nil {
		t.Fatalf("advance: %v", err)
	}
	if res.Completion != nil {
		t.Fatal("unexpected completion")
	}
	if res.View.Index != 1 || res.View.Remaining != quiz.DefaultCountdown {
		t.Fatalf("index = %d remaining = %d, want 1 and %d", res.View.Index, res.View.Remaining, quiz.DefaultCountdown)
	}
	if res.View.SelectedAnswer != nil || res.View.Feedback != quiz.FeedbackNone {
		t.Fatal("expected cleared selection and feedback")
	}

	flush(t, svc)
	got, err := store.Recent(context.Background(), 10)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("persisted attempts = %d, want 1", len(got))
	}
	if got[0].Question != "Which planet is closest to the Sun?" || !got[0].Correct {
		t.Fatalf("persisted = %+v", got[0])
	}
	if got[0].SelectedAnswer == nil || *got[0].SelectedAnswer != "Mercury" {
		t.Fatalf("selected answer = %v, want Mercury", got[0].SelectedAnswer)
	}
	if got[0].SessionID != view.SessionID {
		t.Fatalf("session id = %q, want %q", got[0].SessionID, view.SessionID)
	}
}

func TestCountdownExpiryAdvancesAndPersists(t *testing.T) {
	t.Parallel()

	store := repository.NewMemoryAttemptRepository()
	svc, factory := newTestService(t, store, QuizOptions{})

	var (
		mu            sync.Mutex
		notifications []Notification
	)
	svc.Subscribe(func(n Notification) {
		mu.Lock()
		defer mu.Unlock()
		notifications = append(notifications, n)
	})
	svc.Start()

	first := factory.next(t)
	fire(t, first, quiz.DefaultCountdown)
	factory.next(t)

	select {
	case <-first.stopped:
	case <-time.After(waitTimeout):
		t.Fatal("expired countdown ticker was not stopped")
	}

	view := svc.View()
	if view.Index != 1 || view.Remaining != quiz.DefaultCountdown {
		t.Fatalf("index = %d remaining = %d, want 1 and %d", view.Index, view.Remaining, quiz.DefaultCountdown)
	}

	flush(t, svc)
	got, err := store.Recent(context.Background(), 10)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(got) != 1 || got[0].SelectedAnswer != nil || got[0].Correct {
		t.Fatalf("persisted = %+v, want one unanswered incorrect attempt", got)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(notifications) != 1 || !notifications[0].Expired {
		t.Fatalf("notifications = %+v, want one expired notification", notifications)
	}
}

func TestStaleCountdownIsIgnored(t *testing.T) {
	t.Parallel()

	svc, factory := newTestService(t, repository.NewMemoryAttemptRepository(), QuizOptions{})
	svc.Start()
	factory.next(t)

	svc.mu.Lock()
	stale := svc.generation
	svc.mu.Unlock()

	if _, err := svc.Advance(); err != nil {
		t.Fatalf("advance: %v", err)
	}
	factory.next(t)

	for i := 0; i < quiz.DefaultCountdown; i++ {
		svc.onTick(stale)
	}
	view := svc.View()
	if view.Index != 1 || view.Remaining != quiz.DefaultCountdown {
		t.Fatalf("stale ticks changed state: index = %d remaining = %d", view.Index, view.Remaining)
	}
}

func TestTicksDecrementRemaining(t *testing.T) {
	t.Parallel()

	svc, factory := newTestService(t, repository.NewMemoryAttemptRepository(), QuizOptions{})
	svc.Start()

	tk := factory.next(t)
	fire(t, tk, 5)
	eventually(t, func() bool {
		return svc.View().Remaining == quiz.DefaultCountdown-5
	})
}

func TestPersistFailureDoesNotBlockQuiz(t *testing.T) {
	t.Parallel()

	const driver = "failing-test"
	store := &failingStore{}
	svc, _ := newTestService(t, store, QuizOptions{StoreDriver: driver})
	svc.Start()

	before := testutil.ToFloat64(monitoring.PersistFailures.WithLabelValues(driver))
	res, err := svc.Advance()
	if err != nil {
		t.Fatalf("advance: %v", err)
	}
	if res.View.Index != 1 {
		t.Fatalf("index = %d, want 1", res.View.Index)
	}

	flush(t, svc)
	if got := testutil.ToFloat64(monitoring.PersistFailures.WithLabelValues(driver)); got != before+1 {
		t.Fatalf("persist failures = %v, want %v", got, before+1)
	}
	store.mu.Lock()
	defer store.mu.Unlock()
	if store.calls != 1 {
		t.Fatalf("append calls = %d, want exactly one write per attempt", store.calls)
	}
}

func TestCompletionWaitsForAcknowledgement(t *testing.T) {
	t.Parallel()

	store := repository.NewMemoryAttemptRepository()
	svc, factory := newTestService(t, store, QuizOptions{PauseOnComplete: true})
	svc.Start()

	total := quiz.DefaultQuestions()
	for i := 0; i < len(total)-1; i++ {
		if _, err := svc.Advance(); err != nil {
			t.Fatalf("advance %d: %v", i, err)
		}
	}
	if _, err := svc.SubmitNumeric("120"); err != nil {
		t.Fatalf("submit numeric: %v", err)
	}

	res, err := svc.Advance()
	if err != nil {
		t.Fatalf("final advance: %v", err)
	}
	if res.Completion == nil {
		t.Fatal("expected completion")
	}
	if res.Completion.Score != 1 || res.Completion.Total != len(total) {
		t.Fatalf("completion = %d/%d, want 1/%d", res.Completion.Score, res.Completion.Total, len(total))
	}
	if !res.View.AwaitingAck || res.View.LastCompletion == nil {
		t.Fatalf("view = %+v, want awaiting acknowledgement", res.View)
	}
	if res.View.Index != 0 || res.View.Score != 0 || res.View.Answered != 0 {
		t.Fatalf("view after completion = %+v, want reset session", res.View)
	}

	// Start 一个加 9 次切题各创建一个 ticker，完成后不再创建
	if got := len(factory.created); got != len(total) {
		t.Fatalf("tickers created = %d, want %d", got, len(total))
	}

	if _, err := svc.SelectChoice("Mercury"); !errors.Is(err, ErrAwaitingAcknowledgement) {
		t.Fatalf("select err = %v, want %v", err, ErrAwaitingAcknowledgement)
	}
	if _, err := svc.Advance(); !errors.Is(err, ErrAwaitingAcknowledgement) {
		t.Fatalf("advance err = %v, want %v", err, ErrAwaitingAcknowledgement)
	}

	view := svc.Acknowledge()
	if view.AwaitingAck {
		t.Fatal("expected acknowledgement to clear the pause")
	}
	if got := len(factory.created); got != len(total)+1 {
		t.Fatalf("tickers created after acknowledge = %d, want %d", got, len(total)+1)
	}

	flush(t, svc)
	got, err := store.Recent(context.Background(), 100)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(got) != len(total) {
		t.Fatalf("persisted attempts = %d, want %d", len(got), len(total))
	}
}

func TestCompletionWithoutPauseRestartsCountdown(t *testing.T) {
	t.Parallel()

	svc, factory := newTestService(t, repository.NewMemoryAttemptRepository(), QuizOptions{PauseOnComplete: false})
	svc.Start()

	n := len(quiz.DefaultQuestions())
	var res AdvanceResult
	for i := 0; i < n; i++ {
		var err error
		if res, err = svc.Advance(); err != nil {
			t.Fatalf("advance %d: %v", i, err)
		}
	}
	if res.Completion == nil || res.View.AwaitingAck {
		t.Fatalf("result = %+v, want completion without pause", res)
	}
	if got := len(factory.created); got != n+1 {
		t.Fatalf("tickers created = %d, want %d", got, n+1)
	}
}

func TestSelectLabel(t *testing.T) {
	t.Parallel()

	svc, _ := newTestService(t, repository.NewMemoryAttemptRepository(), QuizOptions{})

	view, err := svc.SelectLabel("b")
	if err != nil {
		t.Fatalf("select label: %v", err)
	}
	if view.SelectedAnswer == nil || *view.SelectedAnswer != "Mercury" || view.Feedback != quiz.FeedbackCorrect {
		t.Fatalf("view = %+v", view)
	}
	if _, err := svc.SelectLabel("z"); !errors.Is(err, quiz.ErrUnknownOption) {
		t.Fatalf("err = %v, want %v", err, quiz.ErrUnknownOption)
	}
}

func TestStopCancelsCountdown(t *testing.T) {
	t.Parallel()

	svc, factory := newTestService(t, repository.NewMemoryAttemptRepository(), QuizOptions{})
	svc.Start()
	tk := factory.next(t)

	ctx, cancel := context.WithTimeout(context.Background(), waitTimeout)
	defer cancel()
	if err := svc.Stop(ctx); err != nil {
		t.Fatalf("stop: %v", err)
	}

	select {
	case <-tk.stopped:
	case <-time.After(waitTimeout):
		t.Fatal("ticker not stopped")
	}
	if svc.View().Remaining != quiz.DefaultCountdown {
		t.Fatal("countdown changed after stop")
	}
}

func TestRealTickerExpiresQuestion(t *testing.T) {
	t.Parallel()

	session, err := quiz.NewSession(quiz.DefaultQuestions(), 2)
	if err != nil {
		t.Fatalf("new session: %v", err)
	}
	svc := NewQuizService(session, repository.NewMemoryAttemptRepository(), zap.NewNop(), QuizOptions{
		TickInterval: 5 * time.Millisecond,
	})
	svc.Start()
	defer svc.Stop(context.Background())

	eventually(t, func() bool {
		return svc.View().Index >= 1
	})
}
