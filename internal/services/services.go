package services

import (
	"context"
	"encoding/json"

	"github.com/eduflow-lms/quiz-service/internal/models"
	"github.com/eduflow-lms/quiz-service/internal/repositories"
	"github.com/xuri/excelize/v2"
)

// AttemptService is the submission core: admission control, scoring,
// persistence of the immutable attempt record, and the read paths over it.
type AttemptService interface {
	Submit(ctx context.Context, req *SubmitAttemptRequest, studentID string) (*SubmitAttemptResponse, error)
	GetLatestByLesson(ctx context.Context, lessonID uint, studentID string) (*models.QuizAttempt, error)
	GetByQuiz(ctx context.Context, quizID uint, filters repositories.AttemptFilters, userID string) ([]*models.QuizAttempt, int64, error)
	GetAttemptCount(ctx context.Context, quizID uint, studentID string) (int, error)
	GetStats(ctx context.Context, quizID uint, userID string) (*repositories.AttemptStats, error)
}

// QuizService covers instructor-side authoring of quiz definitions.
type QuizService interface {
	Create(ctx context.Context, req *CreateQuizRequest, creatorID string) (*models.Quiz, error)
	GetByID(ctx context.Context, id uint) (*models.Quiz, error)
	GetByLesson(ctx context.Context, lessonID uint) ([]*models.Quiz, error)
	List(ctx context.Context, filters repositories.QuizFilters) ([]*models.Quiz, int64, error)
	Update(ctx context.Context, id uint, req *UpdateQuizRequest, userID string) (*models.Quiz, error)
	SetActive(ctx context.Context, id uint, active bool, userID string) error
	Delete(ctx context.Context, id uint, userID string) error
}

// ExportService produces spreadsheet exports of a quiz's attempts.
type ExportService interface {
	ExportAttempts(ctx context.Context, quizID uint, userID string) (*excelize.File, error)
}

// ServiceManager wires all services behind one dependency for the handlers.
type ServiceManager interface {
	Attempt() AttemptService
	Quiz() QuizService
	Export() ExportService
}

// ===== REQUEST / RESPONSE TYPES =====

type SubmitAttemptRequest struct {
	QuizID   uint `json:"quiz_id" validate:"required"`
	LessonID uint `json:"lesson_id" validate:"required"`

	// Answers has one slot per question in authoring order. A slot may be a
	// JSON null (question skipped); its shape otherwise depends on the
	// question type: option index, bool, or index array.
	Answers []json.RawMessage `json:"answers"`

	IdempotencyKey *string `json:"idempotency_key" validate:"omitempty,min=8,max=64"`
}

type SubmitAttemptResponse struct {
	Attempt       *models.QuizAttempt `json:"attempt"`
	AttemptNumber int                 `json:"attempt_number"`
	MaxAttempts   int                 `json:"max_attempts"`
	Passed        bool                `json:"passed"`
}

type QuestionInput struct {
	Text          string              `json:"question_text" validate:"required,min=1"`
	Type          models.QuestionType `json:"type" validate:"required,question_type"`
	Options       []string            `json:"options" validate:"omitempty,max=10,dive,required"`
	CorrectAnswer json.RawMessage     `json:"correct_answer" validate:"required"`
	Points        int                 `json:"points" validate:"required,min=1,max=100"`
	Explanation   *string             `json:"explanation" validate:"omitempty,max=1000"`
}

type CreateQuizRequest struct {
	LessonID         uint            `json:"lesson_id" validate:"required"`
	Title            string          `json:"title" validate:"required,min=1,max=200"`
	Description      *string         `json:"description" validate:"omitempty,max=1000"`
	PassingScore     int             `json:"passing_score" validate:"min=0,max=100"`
	TimeLimit        *int            `json:"time_limit" validate:"omitempty,min=1,max=300"`
	MaxAttempts      int             `json:"max_attempts" validate:"min=1,max=10"`
	ShuffleQuestions bool            `json:"shuffle_questions"`
	ShowResults      bool            `json:"show_results"`
	Questions        []QuestionInput `json:"questions" validate:"required,min=1,dive"`
}

type UpdateQuizRequest struct {
	Title            *string          `json:"title" validate:"omitempty,min=1,max=200"`
	Description      *string          `json:"description" validate:"omitempty,max=1000"`
	PassingScore     *int             `json:"passing_score" validate:"omitempty,min=0,max=100"`
	TimeLimit        *int             `json:"time_limit" validate:"omitempty,min=1,max=300"`
	MaxAttempts      *int             `json:"max_attempts" validate:"omitempty,min=1,max=10"`
	ShuffleQuestions *bool            `json:"shuffle_questions"`
	ShowResults      *bool            `json:"show_results"`
	Questions        *[]QuestionInput `json:"questions" validate:"omitempty,min=1,dive"`
}

// ===== MANAGER =====

type serviceManager struct {
	attempt AttemptService
	quiz    QuizService
	export  ExportService
}

func NewServiceManager(attempt AttemptService, quiz QuizService, export ExportService) ServiceManager {
	return &serviceManager{
		attempt: attempt,
		quiz:    quiz,
		export:  export,
	}
}

func (m *serviceManager) Attempt() AttemptService { return m.attempt }
func (m *serviceManager) Quiz() QuizService       { return m.quiz }
func (m *serviceManager) Export() ExportService   { return m.export }
