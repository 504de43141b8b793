package models

import (
	"encoding/json"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type QuestionType string

const (
	SingleChoice QuestionType = "single_choice"
	TrueFalse    QuestionType = "true_false"
	MultiSelect  QuestionType = "multi_select"
)

// Quiz is the authored assessment attached to a lesson. Attempts reference it
// but never mutate it.
type Quiz struct {
	ID          uint    `json:"id" gorm:"primaryKey"`
	LessonID    uint    `json:"lesson_id" gorm:"not null;index"`
	Title       string  `json:"title" gorm:"not null;size:200" validate:"required,min=1,max=200"`
	Description *string `json:"description" gorm:"type:text" validate:"omitempty,max=1000"`

	PassingScore     int  `json:"passing_score" gorm:"not null" validate:"min=0,max=100"`
	TimeLimit        *int `json:"time_limit" validate:"omitempty,min=1,max=300"` // minutes
	MaxAttempts      int  `json:"max_attempts" gorm:"default:1" validate:"min=1,max=10"`
	IsActive         bool `json:"is_active" gorm:"default:false;index"`
	ShuffleQuestions bool `json:"shuffle_questions" gorm:"default:false"`
	ShowResults      bool `json:"show_results" gorm:"default:true"`

	// Metadata
	CreatedBy string         `json:"created_by" gorm:"not null;size:255;index"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `json:"-" gorm:"index"`

	// Relations
	Questions []Question    `json:"questions" gorm:"foreignKey:QuizID"`
	Attempts  []QuizAttempt `json:"-" gorm:"foreignKey:QuizID"`
	Creator   User          `json:"-" gorm:"foreignKey:CreatedBy"`

	// Computed fields (not stored)
	QuestionsCount int `json:"questions_count" gorm:"-"`
	TotalPoints    int `json:"total_points" gorm:"-"`
}

// Question is one entry of a quiz. Position reflects authoring order; attempt
// records always refer to this order regardless of ShuffleQuestions.
type Question struct {
	ID       uint         `json:"id" gorm:"primaryKey"`
	QuizID   uint         `json:"quiz_id" gorm:"not null;index:idx_questions_quiz_position,priority:1"`
	Position int          `json:"position" gorm:"not null;index:idx_questions_quiz_position,priority:2"`
	Text     string       `json:"question_text" gorm:"not null;type:text" validate:"required,min=1"`
	Type     QuestionType `json:"type" gorm:"not null;size:20" validate:"required,question_type"`

	// Options is a JSON array of option strings. CorrectAnswer holds the answer
	// key in a type-dependent shape: an option index for single_choice, a bool
	// for true_false, an index array for multi_select.
	Options       datatypes.JSON `json:"options" gorm:"type:jsonb"`
	CorrectAnswer datatypes.JSON `json:"correct_answer" gorm:"type:jsonb"`

	Points      int     `json:"points" gorm:"not null;default:1" validate:"min=1"`
	Explanation *string `json:"explanation" gorm:"type:text" validate:"omitempty,max=1000"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (Quiz) TableName() string {
	return "quizzes"
}

func (Question) TableName() string {
	return "questions"
}

// DecodeOptions unmarshals the stored option list.
func (q *Question) DecodeOptions() ([]string, error) {
	if len(q.Options) == 0 {
		return nil, nil
	}
	var opts []string
	if err := json.Unmarshal(q.Options, &opts); err != nil {
		return nil, err
	}
	return opts, nil
}

// MaxScore is the sum of all question points.
func (q *Quiz) MaxScore() int {
	total := 0
	for _, question := range q.Questions {
		total += question.Points
	}
	return total
}
