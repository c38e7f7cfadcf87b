package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"quizo/internal/model"
	"quizo/internal/quiz"
	"quizo/internal/repository"
	"quizo/pkg/monitoring"
	"quizo/pkg/tracing"

	"go.uber.org/zap"
)

var ErrAwaitingAcknowledgement = errors.New("quiz completed, awaiting acknowledgement")

type QuizOptions struct {
	TickInterval    time.Duration
	WriteTimeout    time.Duration
	PauseOnComplete bool
	StoreDriver     string // 仅用于指标标签
}

// QuizView 会话快照加上服务层状态
type QuizView struct {
	quiz.View
	AwaitingAck    bool             `json:"awaitingAck"`
	LastCompletion *quiz.Completion `json:"lastCompletion,omitempty"`
}

type AdvanceResult struct {
	View       QuizView         `json:"view"`
	Attempt    quiz.Attempt     `json:"attempt"`
	Completion *quiz.Completion `json:"completion,omitempty"`
}

// Notification 每次题目结束（手动或倒计时）后发给订阅者
type Notification struct {
	Attempt    quiz.Attempt
	Expired    bool
	Completion *quiz.Completion
	View       QuizView
}

// QuizService 持有唯一的答题会话。所有事件在同一把锁下串行处理，
// 作答记录异步写入 AttemptStore，写入失败只记录日志。
type QuizService struct {
	mu      sync.Mutex
	session *quiz.Session
	store   repository.AttemptStore
	log     *zap.Logger
	opts    QuizOptions

	newTicker  func(time.Duration) Ticker
	countdown  *countdown
	generation uint64
	running    bool

	awaitingAck    bool
	lastCompletion *quiz.Completion

	listeners []func(Notification)
	writes    sync.WaitGroup
}

func NewQuizService(session *quiz.Session, store repository.AttemptStore, log *zap.Logger, opts QuizOptions) *QuizService {
	if opts.TickInterval <= 0 {
		opts.TickInterval = time.Second
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = 5 * time.Second
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &QuizService{
		session:   session,
		store:     store,
		log:       log,
		opts:      opts,
		newTicker: newRealTicker,
	}
}

// Subscribe 注册题目结束回调；回调在锁外同步执行，须在 Start 之前注册
func (s *QuizService) Subscribe(fn func(Notification)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, fn)
}

func (s *QuizService) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return
	}
	s.running = true
	if !s.awaitingAck {
		s.startCountdownLocked()
	}
	s.log.Info("Quiz session started",
		zap.String("sessionId", s.session.ID()),
		zap.Int("questions", s.session.Total()))
}

// Stop 取消倒计时并等待未完成的写入，直到 ctx 结束
func (s *QuizService) Stop(ctx context.Context) error {
	s.mu.Lock()
	s.running = false
	s.cancelCountdownLocked()
	s.mu.Unlock()

	return s.Flush(ctx)
}

// Flush 等待已发出的写入完成
func (s *QuizService) Flush(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.writes.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *QuizService) View() QuizView {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.viewLocked()
}

func (s *QuizService) viewLocked() QuizView {
	v := QuizView{
		View:        s.session.View(),
		AwaitingAck: s.awaitingAck,
	}
	if s.lastCompletion != nil {
		c := *s.lastCompletion
		v.LastCompletion = &c
	}
	return v
}

func (s *QuizService) SelectChoice(option string) (QuizView, error) {
	return s.answer(quiz.SelectChoice{Option: option})
}

// SelectLabel 按 A-D 标签选择选项
func (s *QuizService) SelectLabel(label string) (QuizView, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.awaitingAck {
		return s.viewLocked(), ErrAwaitingAcknowledgement
	}
	if s.session.Current().Kind != quiz.KindChoice {
		return s.viewLocked(), quiz.ErrWrongKind
	}
	option, ok := s.session.OptionByLabel(label)
	if !ok {
		return s.viewLocked(), fmt.Errorf("label %q: %w", label, quiz.ErrUnknownOption)
	}
	_, err := s.session.Apply(quiz.SelectChoice{Option: option})
	return s.viewLocked(), err
}

func (s *QuizService) SubmitNumeric(text string) (QuizView, error) {
	return s.answer(quiz.SubmitNumeric{Text: text})
}

func (s *QuizService) answer(ev quiz.Event) (QuizView, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.awaitingAck {
		return s.viewLocked(), ErrAwaitingAcknowledgement
	}
	if _, err := s.session.Apply(ev); err != nil {
		return s.viewLocked(), err
	}
	return s.viewLocked(), nil
}

func (s *QuizService) Advance() (AdvanceResult, error) {
	s.mu.Lock()
	if s.awaitingAck {
		v := s.viewLocked()
		s.mu.Unlock()
		return AdvanceResult{View: v}, ErrAwaitingAcknowledgement
	}

	out, err := s.session.Apply(quiz.Advance{})
	if err != nil {
		v := s.viewLocked()
		s.mu.Unlock()
		return AdvanceResult{View: v}, err
	}
	n := s.finalizeLocked(out)
	listeners := s.listeners
	s.mu.Unlock()

	notify(listeners, n)
	return AdvanceResult{View: n.View, Attempt: n.Attempt, Completion: n.Completion}, nil
}

// Acknowledge 确认完成通知后恢复倒计时
func (s *QuizService) Acknowledge() QuizView {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.awaitingAck {
		s.awaitingAck = false
		if s.running {
			s.startCountdownLocked()
		}
	}
	return s.viewLocked()
}

// SetCountdown 修改每题倒计时，从下一题开始生效
func (s *QuizService) SetCountdown(seconds int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.session.SetCountdown(seconds)
	s.log.Info("Countdown updated", zap.Int("seconds", seconds))
}

func (s *QuizService) History(ctx context.Context, limit int) ([]model.Attempt, error) {
	return s.store.Recent(ctx, limit)
}

func (s *QuizService) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

// onTick 过期句柄的触发直接丢弃，避免作用到后续题目
func (s *QuizService) onTick(generation uint64) {
	s.mu.Lock()
	if s.countdown == nil || s.countdown.generation != generation {
		s.mu.Unlock()
		return
	}

	out, err := s.session.Apply(quiz.Tick{})
	if err != nil || out.Attempt == nil {
		s.mu.Unlock()
		return
	}
	n := s.finalizeLocked(out)
	listeners := s.listeners
	s.mu.Unlock()

	notify(listeners, n)
}

func (s *QuizService) finalizeLocked(out quiz.Outcome) Notification {
	attempt := *out.Attempt

	monitoring.AttemptCounter.WithLabelValues(
		monitoring.AttemptResult(attempt.SelectedAnswer != nil, attempt.Correct),
	).Inc()
	if out.Expired {
		monitoring.CountdownExpirations.Inc()
	}

	s.persist(model.NewAttempt(out.SessionID, attempt))
	s.cancelCountdownLocked()

	if out.Completion != nil {
		monitoring.CompletionCounter.Inc()
		c := *out.Completion
		s.lastCompletion = &c
		s.awaitingAck = s.opts.PauseOnComplete
		s.log.Info("Quiz completed",
			zap.String("sessionId", c.SessionID),
			zap.Int("score", c.Score),
			zap.Int("total", c.Total))
	}

	if s.running && !s.awaitingAck {
		s.startCountdownLocked()
	}

	return Notification{
		Attempt:    attempt,
		Expired:    out.Expired,
		Completion: out.Completion,
		View:       s.viewLocked(),
	}
}

// persist 异步写入，不阻塞也不回滚状态迁移；每条记录只写一次
func (s *QuizService) persist(record *model.Attempt) {
	s.writes.Add(1)
	go func() {
		defer s.writes.Done()

		ctx, cancel := context.WithTimeout(context.Background(), s.opts.WriteTimeout)
		defer cancel()

		ctx, span := tracing.StartSessionSpan(ctx, "attempt.persist", record.SessionID,
			tracing.CorrectKey.Bool(record.Correct),
			tracing.DriverKey.String(s.opts.StoreDriver),
		)
		defer span.End()

		if err := s.store.Append(ctx, record); err != nil {
			tracing.Fail(span, err, "append attempt")
			monitoring.PersistFailures.WithLabelValues(s.opts.StoreDriver).Inc()
			s.log.Error("Failed to persist attempt",
				zap.String("sessionId", record.SessionID),
				zap.String("question", record.Question),
				zap.Error(err))
			return
		}
		s.log.Debug("Attempt persisted",
			zap.Uint("id", record.ID),
			zap.String("sessionId", record.SessionID),
			zap.Bool("correct", record.Correct))
	}()
}

func notify(listeners []func(Notification), n Notification) {
	for _, fn := range listeners {
		fn(n)
	}
}
