package quiz

import (
	"errors"
	"fmt"
)

type Kind string

const (
	KindChoice  Kind = "choice"
	KindNumeric Kind = "numeric"
)

// MaxOptions 选择题最多四个选项 (A-D)
const MaxOptions = 4

var optionLabels = [MaxOptions]string{"A", "B", "C", "D"}

var (
	ErrNoQuestions     = errors.New("no questions")
	ErrInvalidQuestion = errors.New("invalid question")
)

// Question 静态定义的题目，创建后不可修改
type Question struct {
	ID      int      `yaml:"id" json:"id"`
	Kind    Kind     `yaml:"kind" json:"kind"`
	Prompt  string   `yaml:"prompt" json:"prompt"`
	Options []string `yaml:"options,omitempty" json:"options,omitempty"`
	Answer  string   `yaml:"answer" json:"-"`
}

func (q Question) Validate() error {
	if q.Prompt == "" {
		return fmt.Errorf("question %d: empty prompt: %w", q.ID, ErrInvalidQuestion)
	}
	if q.Answer == "" {
		return fmt.Errorf("question %d: empty answer: %w", q.ID, ErrInvalidQuestion)
	}

	switch q.Kind {
	case KindChoice:
		if len(q.Options) == 0 {
			return fmt.Errorf("question %d: choice question without options: %w", q.ID, ErrInvalidQuestion)
		}
		if len(q.Options) > MaxOptions {
			return fmt.Errorf("question %d: %d options, at most %d allowed: %w", q.ID, len(q.Options), MaxOptions, ErrInvalidQuestion)
		}
		if q.optionIndex(q.Answer) < 0 {
			return fmt.Errorf("question %d: answer %q is not one of the options: %w", q.ID, q.Answer, ErrInvalidQuestion)
		}
	case KindNumeric:
		if len(q.Options) != 0 {
			return fmt.Errorf("question %d: numeric question must not carry options: %w", q.ID, ErrInvalidQuestion)
		}
	default:
		return fmt.Errorf("question %d: unknown kind %q: %w", q.ID, q.Kind, ErrInvalidQuestion)
	}
	return nil
}

func (q Question) optionIndex(option string) int {
	for i, o := range q.Options {
		if o == option {
			return i
		}
	}
	return -1
}

// Validate 校验整套题目：非空、ID 唯一且恰好覆盖 1..n、每道题满足自身约束。
// 只要求 ID 连续，不要求顺序，打乱后的题库同样合法
func Validate(questions []Question) error {
	if len(questions) == 0 {
		return ErrNoQuestions
	}
	seen := make(map[int]bool, len(questions))
	for _, q := range questions {
		if seen[q.ID] {
			return fmt.Errorf("question %d: duplicate id: %w", q.ID, ErrInvalidQuestion)
		}
		if q.ID < 1 || q.ID > len(questions) {
			return fmt.Errorf("question %d: ids must be sequential from 1 to %d: %w", q.ID, len(questions), ErrInvalidQuestion)
		}
		seen[q.ID] = true
		if err := q.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// DefaultQuestions 内置题库
func DefaultQuestions() []Question {
	return []Question{
		{ID: 1, Kind: KindChoice, Prompt: "Which planet is closest to the Sun?", Options: []string{"Venus", "Mercury", " Earth", " Mars"}, Answer: "Mercury"},
		{ID: 2, Kind: KindChoice, Prompt: "Which data structure organizes items in a First-In, First-Out (FIFO) manner", Options: []string{"Stack", "Queue", "Tree", "Graph"}, Answer: "Queue"},
		{ID: 3, Kind: KindChoice, Prompt: "Which of the following is primarily used for structuring web pages?", Options: []string{"Python", "Java", "HTML", "C++"}, Answer: "HTML"},
		{ID: 4, Kind: KindChoice, Prompt: "Which chemical symbol stands for Gold?", Options: []string{"Au", "Gd", "Ag", "Pt"}, Answer: "Au"},
		{ID: 5, Kind: KindChoice, Prompt: "Which of these processes is not typically involved in refining petroleum", Options: []string{"Fractional distillation", "Cracking", "Polymerization", "Filtration"}, Answer: "Fractional distillation"},
		{ID: 6, Kind: KindNumeric, Prompt: " What is the value of 12 + 28?", Answer: "40"},
		{ID: 7, Kind: KindNumeric, Prompt: " How many states are there in the United States?", Answer: "50"},
		{ID: 8, Kind: KindNumeric, Prompt: " In which year was the Declaration of Independence signed ", Answer: "1776"},
		{ID: 9, Kind: KindNumeric, Prompt: "What is the value of pi rounded to the nearest integer ", Answer: "3"},
		{ID: 10, Kind: KindNumeric, Prompt: "  If a car travels at 60 mph for 2 hours, how many miles does it travel", Answer: "120"},
	}
}
