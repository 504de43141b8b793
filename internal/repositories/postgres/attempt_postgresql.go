package postgres

import (
	"context"

	"github.com/eduflow-lms/quiz-service/internal/models"
	"github.com/eduflow-lms/quiz-service/internal/repositories"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type AttemptPostgreSQL struct {
	db *gorm.DB
}

func NewAttemptPostgreSQL(db *gorm.DB) repositories.AttemptRepository {
	return &AttemptPostgreSQL{db: db}
}

// CreateWithAdmission counts prior attempts and inserts the new record inside
// one transaction. The SELECT ... FOR UPDATE on the quiz row serializes
// concurrent submissions for the same quiz, so two requests cannot both read
// the same count and both insert.
func (a AttemptPostgreSQL) CreateWithAdmission(ctx context.Context, attempt *models.QuizAttempt, maxAttempts int) error {
	return a.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var quiz models.Quiz
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Select("id").
			First(&quiz, attempt.QuizID).Error; err != nil {
			return err
		}

		var count int64
		if err := tx.Model(&models.QuizAttempt{}).
			Where("student_id = ? AND quiz_id = ?", attempt.StudentID, attempt.QuizID).
			Count(&count).Error; err != nil {
			return err
		}

		if int(count) >= maxAttempts {
			return repositories.ErrAttemptLimitReached
		}

		attempt.AttemptNumber = int(count) + 1
		return tx.Create(attempt).Error
	})
}

func (a AttemptPostgreSQL) GetByID(ctx context.Context, id uint) (*models.QuizAttempt, error) {
	var attempt models.QuizAttempt
	if err := a.db.WithContext(ctx).First(&attempt, id).Error; err != nil {
		return nil, err
	}
	return &attempt, nil
}

func (a AttemptPostgreSQL) GetByIdempotencyKey(ctx context.Context, studentID, key string) (*models.QuizAttempt, error) {
	var attempt models.QuizAttempt
	if err := a.db.WithContext(ctx).
		Where("student_id = ? AND idempotency_key = ?", studentID, key).
		First(&attempt).Error; err != nil {
		return nil, err
	}
	return &attempt, nil
}

func (a AttemptPostgreSQL) GetLatestByLesson(ctx context.Context, studentID string, lessonID uint) (*models.QuizAttempt, error) {
	var attempt models.QuizAttempt
	if err := a.db.WithContext(ctx).
		Where("student_id = ? AND lesson_id = ?", studentID, lessonID).
		Order("created_at DESC").
		First(&attempt).Error; err != nil {
		return nil, err
	}
	return &attempt, nil
}

func (a AttemptPostgreSQL) GetByStudentAndQuiz(ctx context.Context, studentID string, quizID uint) ([]*models.QuizAttempt, error) {
	var attempts []*models.QuizAttempt
	if err := a.db.WithContext(ctx).
		Where("student_id = ? AND quiz_id = ?", studentID, quizID).
		Order("attempt_number ASC").
		Find(&attempts).Error; err != nil {
		return nil, err
	}
	return attempts, nil
}

func (a AttemptPostgreSQL) GetByQuiz(ctx context.Context, quizID uint, filters repositories.AttemptFilters) ([]*models.QuizAttempt, int64, error) {
	var attempts []*models.QuizAttempt
	var total int64

	query := a.db.WithContext(ctx).Model(&models.QuizAttempt{}).Where("quiz_id = ?", quizID)
	if filters.StudentID != nil {
		query = query.Where("student_id = ?", *filters.StudentID)
	}
	if filters.Passed != nil {
		query = query.Where("passed = ?", *filters.Passed)
	}

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	query = query.Order("created_at DESC")
	if filters.Limit > 0 {
		query = query.Limit(filters.Limit)
	}
	if filters.Offset > 0 {
		query = query.Offset(filters.Offset)
	}

	if err := query.Preload("Student").Find(&attempts).Error; err != nil {
		return nil, 0, err
	}

	return attempts, total, nil
}

func (a AttemptPostgreSQL) CountByStudentAndQuiz(ctx context.Context, studentID string, quizID uint) (int, error) {
	var count int64
	if err := a.db.WithContext(ctx).
		Model(&models.QuizAttempt{}).
		Where("student_id = ? AND quiz_id = ?", studentID, quizID).
		Count(&count).Error; err != nil {
		return 0, err
	}
	return int(count), nil
}

func (a AttemptPostgreSQL) GetStats(ctx context.Context, quizID uint) (*repositories.AttemptStats, error) {
	stats := &repositories.AttemptStats{QuizID: quizID}

	row := a.db.WithContext(ctx).
		Model(&models.QuizAttempt{}).
		Select("COUNT(*)", "COUNT(*) FILTER (WHERE passed)", "COALESCE(AVG(score), 0)", "COALESCE(AVG(percentage), 0)").
		Where("quiz_id = ?", quizID).
		Row()
	if err := row.Scan(&stats.TotalAttempts, &stats.PassedCount, &stats.AverageScore, &stats.AveragePercentage); err != nil {
		return nil, err
	}

	if stats.TotalAttempts > 0 {
		stats.PassRate = float64(stats.PassedCount) / float64(stats.TotalAttempts) * 100
	}
	return stats, nil
}
