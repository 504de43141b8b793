package repositories

import (
	"context"
	"errors"

	"github.com/eduflow-lms/quiz-service/internal/models"
	"gorm.io/gorm"
)

// ErrAttemptLimitReached is returned by CreateWithAdmission when the learner
// already holds max_attempts records for the quiz at insert time.
var ErrAttemptLimitReached = errors.New("attempt limit reached")

// Repository aggregates all repositories behind a single dependency.
type Repository interface {
	Quiz() QuizRepository
	Attempt() AttemptRepository
	User() UserRepository
}

// QuizRepository persists quiz definitions and their questions.
type QuizRepository interface {
	Create(ctx context.Context, quiz *models.Quiz) error
	GetByID(ctx context.Context, id uint) (*models.Quiz, error)
	GetByIDWithQuestions(ctx context.Context, id uint) (*models.Quiz, error)
	GetByLesson(ctx context.Context, lessonID uint) ([]*models.Quiz, error)
	Update(ctx context.Context, quiz *models.Quiz) error
	ReplaceQuestions(ctx context.Context, quizID uint, questions []models.Question) error
	Delete(ctx context.Context, id uint) error
	List(ctx context.Context, filters QuizFilters) ([]*models.Quiz, int64, error)
	SetActive(ctx context.Context, id uint, active bool) error
	HasAttempts(ctx context.Context, id uint) (bool, error)
}

// AttemptRepository persists immutable attempt records.
type AttemptRepository interface {
	// CreateWithAdmission performs the admission check and the insert as one
	// atomic unit: inside a transaction it locks the quiz row, counts the
	// learner's prior attempts, and either returns ErrAttemptLimitReached or
	// inserts the record with AttemptNumber = count + 1. Concurrent
	// submissions for the same quiz serialize on the row lock, so the
	// per-learner ceiling cannot be overrun and attempt numbers stay unique.
	CreateWithAdmission(ctx context.Context, attempt *models.QuizAttempt, maxAttempts int) error

	GetByID(ctx context.Context, id uint) (*models.QuizAttempt, error)
	GetByIdempotencyKey(ctx context.Context, studentID, key string) (*models.QuizAttempt, error)
	GetLatestByLesson(ctx context.Context, studentID string, lessonID uint) (*models.QuizAttempt, error)
	GetByStudentAndQuiz(ctx context.Context, studentID string, quizID uint) ([]*models.QuizAttempt, error)
	GetByQuiz(ctx context.Context, quizID uint, filters AttemptFilters) ([]*models.QuizAttempt, int64, error)
	CountByStudentAndQuiz(ctx context.Context, studentID string, quizID uint) (int, error)
	GetStats(ctx context.Context, quizID uint) (*AttemptStats, error)
}

// UserRepository reads identity records synced from the auth provider.
type UserRepository interface {
	GetByID(ctx context.Context, id string) (*models.User, error)
	Upsert(ctx context.Context, user *models.User) error
}

// ===== FILTERS AND AGGREGATES =====

type QuizFilters struct {
	LessonID  *uint
	CreatedBy *string
	IsActive  *bool
	Search    string
	Limit     int
	Offset    int
	SortBy    string
	SortOrder string
}

type AttemptFilters struct {
	StudentID *string
	Passed    *bool
	Limit     int
	Offset    int
}

type AttemptStats struct {
	QuizID            uint    `json:"quiz_id"`
	TotalAttempts     int     `json:"total_attempts"`
	PassedCount       int     `json:"passed_count"`
	PassRate          float64 `json:"pass_rate"`
	AverageScore      float64 `json:"average_score"`
	AveragePercentage float64 `json:"average_percentage"`
}

// IsNotFoundError reports whether err is the store's missing-record error.
func IsNotFoundError(err error) bool {
	return errors.Is(err, gorm.ErrRecordNotFound)
}
