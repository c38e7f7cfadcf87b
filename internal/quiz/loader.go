package quiz

import (
	"fmt"
	"math/rand"
	"os"
	"time"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

type questionFile struct {
	Questions []Question `yaml:"questions"`
}

// ParseQuestions 从 YAML 文件读取题目并校验
func ParseQuestions(filename string) ([]Question, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}

	var file questionFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", filename, err)
	}

	if err := Validate(file.Questions); err != nil {
		return nil, err
	}
	return file.Questions, nil
}

// LoadQuestions 加载题目文件，失败时退回内置题库
func LoadQuestions(filename string, log *zap.Logger) []Question {
	if filename == "" {
		return DefaultQuestions()
	}

	questions, err := ParseQuestions(filename)
	if err != nil {
		log.Warn("Failed to load questions, using built-in set",
			zap.String("file", filename), zap.Error(err))
		return DefaultQuestions()
	}

	log.Info("Questions loaded", zap.String("file", filename), zap.Int("count", len(questions)))
	return questions
}

// Shuffle 返回打乱顺序后的副本，不修改原切片
func Shuffle(questions []Question, r *rand.Rand) []Question {
	shuffled := make([]Question, len(questions))
	copy(shuffled, questions)

	if r == nil {
		r = rand.New(rand.NewSource(time.Now().UnixNano()))
	}

	for i := len(shuffled) - 1; i > 0; i-- {
		j := r.Intn(i + 1)
		shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
	}
	return shuffled
}
