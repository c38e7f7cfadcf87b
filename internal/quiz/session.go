package quiz

import (
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// DefaultCountdown 每道题的默认倒计时（秒）
const DefaultCountdown = 30

var (
	ErrWrongKind     = errors.New("operation does not match question kind")
	ErrUnknownOption = errors.New("option is not offered by the current question")
)

type Feedback string

const (
	FeedbackNone      Feedback = ""
	FeedbackCorrect   Feedback = "correct"
	FeedbackIncorrect Feedback = "incorrect"
)

// Attempt 一道题的作答结果，生成后不可修改
type Attempt struct {
	Question       string  `json:"question"`
	SelectedAnswer *string `json:"selectedAnswer"`
	Correct        bool    `json:"correct"`
}

// Completion 最后一题结束时产生的完成通知
type Completion struct {
	SessionID string    `json:"sessionId"`
	Score     int       `json:"score"`
	Total     int       `json:"total"`
	Attempts  []Attempt `json:"attempts"`
}

type Event interface {
	event()
}

type SelectChoice struct{ Option string }
type SubmitNumeric struct{ Text string }
type Advance struct{}
type Tick struct{}

func (SelectChoice) event()  {}
func (SubmitNumeric) event() {}
func (Advance) event()       {}
func (Tick) event()          {}

// Outcome 事件处理结果。Attempt 非空时调用方负责持久化
type Outcome struct {
	SessionID  string
	Attempt    *Attempt
	Expired    bool
	Completion *Completion
}

// Session 单次答题会话的状态机，不持有计时器，也不做任何 I/O
type Session struct {
	id        string
	questions []Question
	index     int
	selection *string
	feedback  Feedback
	scored    bool // 当前题目是否已计分，每道题最多贡献一分
	score     int
	countdown int
	resetTo   int
	log       []Attempt
	newID     func() string
}

func NewSession(questions []Question, countdown int) (*Session, error) {
	if err := Validate(questions); err != nil {
		return nil, err
	}
	if countdown <= 0 {
		countdown = DefaultCountdown
	}

	qs := make([]Question, len(questions))
	copy(qs, questions)

	s := &Session{
		questions: qs,
		resetTo:   countdown,
		newID:     uuid.NewString,
	}
	s.restart()
	return s, nil
}

func (s *Session) restart() {
	s.id = s.newID()
	s.index = 0
	s.selection = nil
	s.feedback = FeedbackNone
	s.scored = false
	s.score = 0
	s.countdown = s.resetTo
	s.log = nil
}

func (s *Session) Apply(ev Event) (Outcome, error) {
	switch e := ev.(type) {
	case SelectChoice:
		return Outcome{SessionID: s.id}, s.selectChoice(e.Option)
	case SubmitNumeric:
		return Outcome{SessionID: s.id}, s.submitNumeric(e.Text)
	case Advance:
		return s.advance(false), nil
	case Tick:
		return s.tick(), nil
	default:
		return Outcome{SessionID: s.id}, fmt.Errorf("unknown event %T", ev)
	}
}

func (s *Session) selectChoice(option string) error {
	q := s.questions[s.index]
	if q.Kind != KindChoice {
		return ErrWrongKind
	}
	if q.optionIndex(option) < 0 {
		return fmt.Errorf("%q: %w", option, ErrUnknownOption)
	}
	s.resolve(option, option == q.Answer)
	return nil
}

func (s *Session) submitNumeric(text string) error {
	q := s.questions[s.index]
	if q.Kind != KindNumeric {
		return ErrWrongKind
	}
	// 按字符串比较，不做数值解析："40.0" 不等于 "40"
	s.resolve(text, strings.TrimSpace(text) == q.Answer)
	return nil
}

func (s *Session) resolve(selection string, correct bool) {
	s.selection = &selection
	if correct {
		s.feedback = FeedbackCorrect
		if !s.scored {
			s.score++
			s.scored = true
		}
		return
	}
	s.feedback = FeedbackIncorrect
	if s.scored {
		s.score--
		s.scored = false
	}
}

func (s *Session) advance(expired bool) Outcome {
	q := s.questions[s.index]
	attempt := Attempt{
		Question:       q.Prompt,
		SelectedAnswer: s.selection,
		Correct:        s.feedback == FeedbackCorrect,
	}
	s.log = append(s.log, attempt)

	out := Outcome{SessionID: s.id, Attempt: &attempt, Expired: expired}

	s.selection = nil
	s.feedback = FeedbackNone
	s.scored = false
	s.countdown = s.resetTo

	if s.index+1 < len(s.questions) {
		s.index++
		return out
	}

	out.Completion = &Completion{
		SessionID: s.id,
		Score:     s.score,
		Total:     len(s.questions),
		Attempts:  s.Log(),
	}
	s.restart()
	return out
}

func (s *Session) tick() Outcome {
	if s.countdown > 0 {
		s.countdown--
	}
	if s.countdown == 0 {
		return s.advance(true)
	}
	return Outcome{SessionID: s.id}
}

// SetCountdown 修改倒计时常量，从下一道题开始生效
func (s *Session) SetCountdown(seconds int) {
	if seconds <= 0 {
		return
	}
	s.resetTo = seconds
}

func (s *Session) ID() string { return s.id }
func (s *Session) Index() int { return s.index }
func (s *Session) Total() int { return len(s.questions) }
func (s *Session) Score() int { return s.score }
func (s *Session) Remaining() int { return s.countdown }
func (s *Session) Feedback() Feedback { return s.feedback }
func (s *Session) Current() Question { return s.questions[s.index] }

func (s *Session) Selection() *string {
	if s.selection == nil {
		return nil
	}
	v := *s.selection
	return &v
}

// Log 返回本轮已完成作答记录的副本
func (s *Session) Log() []Attempt {
	out := make([]Attempt, len(s.log))
	copy(out, s.log)
	return out
}

type Option struct {
	Label string `json:"label"`
	Text  string `json:"text"`
}

// View 提供给前端渲染的只读快照
type View struct {
	SessionID      string   `json:"sessionId"`
	Index          int      `json:"index"`
	Total          int      `json:"total"`
	QuestionID     int      `json:"questionId"`
	Kind           Kind     `json:"kind"`
	Prompt         string   `json:"prompt"`
	Options        []Option `json:"options,omitempty"`
	SelectedAnswer *string  `json:"selectedAnswer"`
	Feedback       Feedback `json:"feedback"`
	Score          int      `json:"score"`
	Remaining      int      `json:"remaining"`
	Answered       int      `json:"answered"`
}

func (s *Session) View() View {
	q := s.Current()
	v := View{
		SessionID:      s.id,
		Index:          s.index,
		Total:          len(s.questions),
		QuestionID:     q.ID,
		Kind:           q.Kind,
		Prompt:         q.Prompt,
		SelectedAnswer: s.Selection(),
		Feedback:       s.feedback,
		Score:          s.score,
		Remaining:      s.countdown,
		Answered:       len(s.log),
	}
	for i, o := range q.Options {
		v.Options = append(v.Options, Option{Label: optionLabels[i], Text: o})
	}
	return v
}

// OptionByLabel 将 A-D 标签映射到当前题目的选项文本
func (s *Session) OptionByLabel(label string) (string, bool) {
	q := s.Current()
	label = strings.ToUpper(strings.TrimSpace(label))
	for i, o := range q.Options {
		if optionLabels[i] == label {
			return o, true
		}
	}
	return "", false
}
