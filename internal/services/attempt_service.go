package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"gorm.io/datatypes"

	"github.com/eduflow-lms/quiz-service/internal/events"
	"github.com/eduflow-lms/quiz-service/internal/models"
	"github.com/eduflow-lms/quiz-service/internal/repositories"
	"github.com/eduflow-lms/quiz-service/internal/validator"
)

type attemptService struct {
	repo      repositories.Repository
	publisher events.EventPublisher
	logger    *slog.Logger
	validator *validator.Validator
}

func NewAttemptService(repo repositories.Repository, publisher events.EventPublisher, logger *slog.Logger, validator *validator.Validator) AttemptService {
	return &attemptService{
		repo:      repo,
		publisher: publisher,
		logger:    logger,
		validator: validator,
	}
}

// ===== SUBMISSION =====

// Submit runs the full submission flow: admission control, scoring, and the
// single write of the immutable attempt record. Any failure before the write
// leaves no state behind.
func (s *attemptService) Submit(ctx context.Context, req *SubmitAttemptRequest, studentID string) (*SubmitAttemptResponse, error) {
	s.logger.Info("Submitting quiz attempt",
		"quiz_id", req.QuizID,
		"student_id", studentID,
		"answers_count", len(req.Answers))

	if err := s.validator.Validate(req); err != nil {
		return nil, fmt.Errorf("validation failed: %w", err)
	}

	// A retry carrying a known idempotency key replays the stored result
	// instead of consuming another attempt slot.
	if req.IdempotencyKey != nil {
		existing, err := s.repo.Attempt().GetByIdempotencyKey(ctx, studentID, *req.IdempotencyKey)
		if err == nil {
			s.logger.Info("Replaying attempt for idempotency key",
				"attempt_id", existing.ID,
				"student_id", studentID)
			return s.buildSubmitResponse(ctx, existing)
		}
		if !repositories.IsNotFoundError(err) {
			return nil, fmt.Errorf("failed to check idempotency key: %w", err)
		}
	}

	quiz, err := s.repo.Quiz().GetByIDWithQuestions(ctx, req.QuizID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrQuizNotFound
		}
		return nil, fmt.Errorf("failed to get quiz: %w", err)
	}
	if !quiz.IsActive {
		return nil, ErrQuizInactive
	}

	// Fast-path admission check. The repository re-runs it under a row lock,
	// so this one only exists to reject obviously exhausted learners before
	// scoring work is done.
	count, err := s.repo.Attempt().CountByStudentAndQuiz(ctx, studentID, quiz.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to count attempts: %w", err)
	}
	if count >= quiz.MaxAttempts {
		return nil, ErrAttemptLimitExceeded
	}

	score, err := CalculateScore(quiz.Questions, req.Answers)
	if err != nil {
		return nil, err
	}
	passed := CheckPassed(score, quiz.PassingScore)

	answersJSON, err := encodeAnswerRecords(len(quiz.Questions), req.Answers)
	if err != nil {
		return nil, fmt.Errorf("failed to encode answers: %w", err)
	}

	attempt := &models.QuizAttempt{
		QuizID:           quiz.ID,
		LessonID:         req.LessonID,
		StudentID:        studentID,
		IdempotencyKey:   req.IdempotencyKey,
		Answers:          datatypes.JSON(answersJSON),
		CorrectAnswers:   score.CorrectCount,
		IncorrectAnswers: score.IncorrectCount,
		TotalQuestions:   len(quiz.Questions),
		Score:            score.Score,
		Percentage:       score.Percentage,
		Passed:           passed,
	}

	if err := s.repo.Attempt().CreateWithAdmission(ctx, attempt, quiz.MaxAttempts); err != nil {
		if errors.Is(err, repositories.ErrAttemptLimitReached) {
			return nil, ErrAttemptLimitExceeded
		}
		return nil, fmt.Errorf("failed to create attempt: %w", err)
	}

	s.logger.Info("Quiz attempt submitted successfully",
		"attempt_id", attempt.ID,
		"quiz_id", quiz.ID,
		"student_id", studentID,
		"attempt_number", attempt.AttemptNumber,
		"passed", passed)

	s.publishSubmitted(attempt, quiz, score)

	return &SubmitAttemptResponse{
		Attempt:       attempt,
		AttemptNumber: attempt.AttemptNumber,
		MaxAttempts:   quiz.MaxAttempts,
		Passed:        passed,
	}, nil
}

// ===== READ PATHS =====

// GetLatestByLesson returns the single most recent attempt for the learner on
// the lesson, not an aggregate of all attempts.
func (s *attemptService) GetLatestByLesson(ctx context.Context, lessonID uint, studentID string) (*models.QuizAttempt, error) {
	attempt, err := s.repo.Attempt().GetLatestByLesson(ctx, studentID, lessonID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrAttemptNotFound
		}
		return nil, fmt.Errorf("failed to get latest attempt: %w", err)
	}
	return attempt, nil
}

func (s *attemptService) GetByQuiz(ctx context.Context, quizID uint, filters repositories.AttemptFilters, userID string) ([]*models.QuizAttempt, int64, error) {
	if err := s.requireQuizManager(ctx, quizID, userID, "view_attempts"); err != nil {
		return nil, 0, err
	}

	attempts, total, err := s.repo.Attempt().GetByQuiz(ctx, quizID, filters)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to get attempts by quiz: %w", err)
	}
	return attempts, total, nil
}

func (s *attemptService) GetAttemptCount(ctx context.Context, quizID uint, studentID string) (int, error) {
	count, err := s.repo.Attempt().CountByStudentAndQuiz(ctx, studentID, quizID)
	if err != nil {
		return 0, fmt.Errorf("failed to get attempt count: %w", err)
	}
	return count, nil
}

func (s *attemptService) GetStats(ctx context.Context, quizID uint, userID string) (*repositories.AttemptStats, error) {
	if err := s.requireQuizManager(ctx, quizID, userID, "view_stats"); err != nil {
		return nil, err
	}

	stats, err := s.repo.Attempt().GetStats(ctx, quizID)
	if err != nil {
		return nil, fmt.Errorf("failed to get attempt stats: %w", err)
	}
	return stats, nil
}

// ===== HELPERS =====

func (s *attemptService) buildSubmitResponse(ctx context.Context, attempt *models.QuizAttempt) (*SubmitAttemptResponse, error) {
	quiz, err := s.repo.Quiz().GetByID(ctx, attempt.QuizID)
	if err != nil {
		return nil, fmt.Errorf("failed to get quiz: %w", err)
	}
	return &SubmitAttemptResponse{
		Attempt:       attempt,
		AttemptNumber: attempt.AttemptNumber,
		MaxAttempts:   quiz.MaxAttempts,
		Passed:        attempt.Passed,
	}, nil
}

func (s *attemptService) requireQuizManager(ctx context.Context, quizID uint, userID, action string) error {
	quiz, err := s.repo.Quiz().GetByID(ctx, quizID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return ErrQuizNotFound
		}
		return fmt.Errorf("failed to get quiz: %w", err)
	}

	user, err := s.repo.User().GetByID(ctx, userID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return ErrUserNotFound
		}
		return fmt.Errorf("failed to get user: %w", err)
	}

	if user.Role == models.RoleAdmin {
		return nil
	}
	if user.Role == models.RoleInstructor && quiz.CreatedBy == userID {
		return nil
	}
	return NewPermissionError(userID, quizID, "quiz", action, "not owner or insufficient permissions")
}

func (s *attemptService) publishSubmitted(attempt *models.QuizAttempt, quiz *models.Quiz, score *ScoreResult) {
	event := events.NewAttemptSubmittedEvent(events.AttemptSubmittedEvent{
		AttemptID:     attempt.ID,
		QuizID:        quiz.ID,
		LessonID:      attempt.LessonID,
		QuizTitle:     quiz.Title,
		StudentID:     attempt.StudentID,
		AttemptNumber: attempt.AttemptNumber,
		Score:         score.Score,
		MaxScore:      score.MaxScore,
		Percentage:    score.Percentage,
		Passed:        attempt.Passed,
		SubmittedAt:   attempt.CreatedAt,
	})

	// The submission result does not depend on event delivery.
	go func() {
		if err := s.publisher.PublishQuizEvent(context.Background(), event); err != nil {
			s.logger.Error("Failed to publish attempt event",
				"attempt_id", attempt.ID,
				"error", err)
		}
	}()
}

// encodeAnswerRecords normalizes the raw answer slots into one record per
// question, in authoring order. Missing trailing slots become null answers;
// slots beyond the question count are dropped.
func encodeAnswerRecords(questionCount int, answers []json.RawMessage) (json.RawMessage, error) {
	records := make([]models.AnswerRecord, questionCount)
	for i := 0; i < questionCount; i++ {
		records[i] = models.AnswerRecord{QuestionIndex: i}
		if i < len(answers) && len(answers[i]) > 0 {
			records[i].Answer = answers[i]
		}
	}
	return json.Marshal(records)
}
