package models

import (
	"encoding/json"
	"time"

	"gorm.io/datatypes"
)

// AnswerRecord pairs a question (by authoring-order index) with the answer the
// learner submitted for it. A null Answer means the question was left blank.
type AnswerRecord struct {
	QuestionIndex int             `json:"question_index"`
	Answer        json.RawMessage `json:"answer"`
}

// QuizAttempt is the immutable record of one learner's single submission.
// It is created exactly once per successful submission and never updated or
// deleted by normal flow.
type QuizAttempt struct {
	ID        uint   `json:"id" gorm:"primaryKey"`
	QuizID    uint   `json:"quiz_id" gorm:"not null;index:idx_attempts_student_quiz,priority:2"`
	LessonID  uint   `json:"lesson_id" gorm:"not null;index:idx_attempts_student_lesson,priority:2"`
	StudentID string `json:"student_id" gorm:"not null;size:255;index:idx_attempts_student_quiz,priority:1;index:idx_attempts_student_lesson,priority:1"`

	// IdempotencyKey is the optional client-generated submission id. A retry
	// carrying the same key returns the already-persisted record instead of
	// consuming another attempt slot.
	IdempotencyKey *string `json:"idempotency_key,omitempty" gorm:"size:64;uniqueIndex"`

	// Answers is the ordered []AnswerRecord list, in authoring order.
	Answers datatypes.JSON `json:"answers" gorm:"type:jsonb"`

	CorrectAnswers   int  `json:"correct_answers" gorm:"not null"`
	IncorrectAnswers int  `json:"incorrect_answers" gorm:"not null"`
	TotalQuestions   int  `json:"total_questions" gorm:"not null"`
	Score            int  `json:"score" gorm:"not null"`
	Percentage       int  `json:"percentage" gorm:"not null"` // rounded, display only
	Passed           bool `json:"passed" gorm:"not null;index"`

	// AttemptNumber is 1-based and strictly increasing per (student, quiz).
	AttemptNumber int `json:"attempt_number" gorm:"not null"`

	CreatedAt time.Time `json:"created_at" gorm:"index"`

	// Relations
	Quiz    *Quiz `json:"quiz,omitempty" gorm:"foreignKey:QuizID"`
	Student *User `json:"student,omitempty" gorm:"foreignKey:StudentID"`
}

func (QuizAttempt) TableName() string {
	return "quiz_attempts"
}

// DecodeAnswers unmarshals the stored answer list.
func (a *QuizAttempt) DecodeAnswers() ([]AnswerRecord, error) {
	if len(a.Answers) == 0 {
		return nil, nil
	}
	var records []AnswerRecord
	if err := json.Unmarshal(a.Answers, &records); err != nil {
		return nil, err
	}
	return records, nil
}
