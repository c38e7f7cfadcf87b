package model

import (
	"time"

	"quizo/internal/quiz"
)

// Attempt 持久化的作答记录，只追加不修改
type Attempt struct {
	ID             uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	SessionID      string    `gorm:"index;type:varchar(36)" json:"sessionId"`
	Question       string    `gorm:"type:text;not null" json:"question"`
	SelectedAnswer *string   `gorm:"type:text" json:"selectedAnswer"`
	Correct        bool      `gorm:"not null;default:false" json:"correct"`
	CreatedAt      time.Time `json:"createdAt"`
}

func (Attempt) TableName() string {
	return "attempts"
}

func NewAttempt(sessionID string, a quiz.Attempt) *Attempt {
	var selected *string
	if a.SelectedAnswer != nil {
		v := *a.SelectedAnswer
		selected = &v
	}
	return &Attempt{
		SessionID:      sessionID,
		Question:       a.Question,
		SelectedAnswer: selected,
		Correct:        a.Correct,
		CreatedAt:      time.Now().UTC(),
	}
}
