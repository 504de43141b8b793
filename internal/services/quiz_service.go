package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/eduflow-lms/quiz-service/internal/cache"
	"github.com/eduflow-lms/quiz-service/internal/events"
	"github.com/eduflow-lms/quiz-service/internal/models"
	"github.com/eduflow-lms/quiz-service/internal/repositories"
	"github.com/eduflow-lms/quiz-service/internal/validator"
	"gorm.io/datatypes"
)

const quizCacheTTL = 10 * time.Minute

type quizService struct {
	repo      repositories.Repository
	cache     cache.CacheService
	publisher events.EventPublisher
	logger    *slog.Logger
	validator *validator.Validator
}

func NewQuizService(repo repositories.Repository, cacheService cache.CacheService, publisher events.EventPublisher, logger *slog.Logger, validator *validator.Validator) QuizService {
	return &quizService{
		repo:      repo,
		cache:     cacheService,
		publisher: publisher,
		logger:    logger,
		validator: validator,
	}
}

// ===== AUTHORING =====

func (s *quizService) Create(ctx context.Context, req *CreateQuizRequest, creatorID string) (*models.Quiz, error) {
	s.logger.Info("Creating quiz",
		"lesson_id", req.LessonID,
		"creator_id", creatorID,
		"questions_count", len(req.Questions))

	if err := s.requireAuthorRole(ctx, creatorID); err != nil {
		return nil, err
	}
	if err := s.validator.Validate(req); err != nil {
		return nil, fmt.Errorf("validation failed: %w", err)
	}

	questions, err := buildQuestions(req.Questions)
	if err != nil {
		return nil, err
	}
	if verrs := s.validator.Question().ValidateQuestions(questions); len(verrs) > 0 {
		return nil, verrs
	}

	quiz := &models.Quiz{
		LessonID:         req.LessonID,
		Title:            req.Title,
		Description:      req.Description,
		PassingScore:     req.PassingScore,
		TimeLimit:        req.TimeLimit,
		MaxAttempts:      req.MaxAttempts,
		ShuffleQuestions: req.ShuffleQuestions,
		ShowResults:      req.ShowResults,
		CreatedBy:        creatorID,
		Questions:        questions,
	}

	if err := s.repo.Quiz().Create(ctx, quiz); err != nil {
		return nil, fmt.Errorf("failed to create quiz: %w", err)
	}

	s.logger.Info("Quiz created successfully", "quiz_id", quiz.ID, "lesson_id", quiz.LessonID)
	return quiz, nil
}

func (s *quizService) GetByID(ctx context.Context, id uint) (*models.Quiz, error) {
	key := quizCacheKey(id)

	var cached models.Quiz
	if err := s.cache.Get(ctx, key, &cached); err == nil {
		return &cached, nil
	} else if !errors.Is(err, cache.ErrCacheMiss) {
		s.logger.Warn("Quiz cache read failed", "quiz_id", id, "error", err)
	}

	quiz, err := s.repo.Quiz().GetByIDWithQuestions(ctx, id)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrQuizNotFound
		}
		return nil, fmt.Errorf("failed to get quiz: %w", err)
	}
	decorateQuiz(quiz)

	if err := s.cache.Set(ctx, key, quiz, quizCacheTTL); err != nil {
		s.logger.Warn("Quiz cache write failed", "quiz_id", id, "error", err)
	}
	return quiz, nil
}

func (s *quizService) GetByLesson(ctx context.Context, lessonID uint) ([]*models.Quiz, error) {
	quizzes, err := s.repo.Quiz().GetByLesson(ctx, lessonID)
	if err != nil {
		return nil, fmt.Errorf("failed to get quizzes by lesson: %w", err)
	}
	for _, quiz := range quizzes {
		decorateQuiz(quiz)
	}
	return quizzes, nil
}

func (s *quizService) List(ctx context.Context, filters repositories.QuizFilters) ([]*models.Quiz, int64, error) {
	quizzes, total, err := s.repo.Quiz().List(ctx, filters)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list quizzes: %w", err)
	}
	for _, quiz := range quizzes {
		decorateQuiz(quiz)
	}
	return quizzes, total, nil
}

func (s *quizService) Update(ctx context.Context, id uint, req *UpdateQuizRequest, userID string) (*models.Quiz, error) {
	if err := s.validator.Validate(req); err != nil {
		return nil, fmt.Errorf("validation failed: %w", err)
	}

	quiz, err := s.getOwnedQuiz(ctx, id, userID, "update")
	if err != nil {
		return nil, err
	}

	// Once learners hold attempt records, editing the quiz would corrupt the
	// meaning of already-stored scores.
	hasAttempts, err := s.repo.Quiz().HasAttempts(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to check attempts: %w", err)
	}
	if hasAttempts {
		return nil, ErrQuizNotEditable
	}

	applyQuizUpdate(quiz, req)
	if err := s.repo.Quiz().Update(ctx, quiz); err != nil {
		return nil, fmt.Errorf("failed to update quiz: %w", err)
	}

	if req.Questions != nil {
		questions, err := buildQuestions(*req.Questions)
		if err != nil {
			return nil, err
		}
		if verrs := s.validator.Question().ValidateQuestions(questions); len(verrs) > 0 {
			return nil, verrs
		}
		if err := s.repo.Quiz().ReplaceQuestions(ctx, id, questions); err != nil {
			return nil, fmt.Errorf("failed to replace questions: %w", err)
		}
	}

	s.invalidate(ctx, id)
	s.logger.Info("Quiz updated successfully", "quiz_id", id, "user_id", userID)
	return s.GetByID(ctx, id)
}

// SetActive publishes or deactivates the quiz. Activation requires at least
// one question worth points, otherwise every submission against it would be
// unscorable.
func (s *quizService) SetActive(ctx context.Context, id uint, active bool, userID string) error {
	quiz, err := s.getOwnedQuiz(ctx, id, userID, "publish")
	if err != nil {
		return err
	}

	if active {
		if len(quiz.Questions) == 0 {
			return NewBusinessRuleError("quiz_publishable", "quiz must have at least one question to be published",
				map[string]interface{}{"quiz_id": id})
		}
		if quiz.MaxScore() == 0 {
			return NewBusinessRuleError("quiz_publishable", "quiz must have a positive total point value to be published",
				map[string]interface{}{"quiz_id": id})
		}
	}

	if err := s.repo.Quiz().SetActive(ctx, id, active); err != nil {
		return fmt.Errorf("failed to set quiz active state: %w", err)
	}
	s.invalidate(ctx, id)

	event := events.NewQuizDeactivatedEvent(quiz.ID, quiz.LessonID, quiz.Title, quiz.CreatedBy)
	if active {
		event = events.NewQuizPublishedEvent(quiz.ID, quiz.LessonID, quiz.Title, quiz.CreatedBy)
	}
	go func() {
		if err := s.publisher.PublishQuizEvent(context.Background(), event); err != nil {
			s.logger.Error("Failed to publish quiz event", "quiz_id", quiz.ID, "error", err)
		}
	}()

	s.logger.Info("Quiz active state changed", "quiz_id", id, "active", active, "user_id", userID)
	return nil
}

func (s *quizService) Delete(ctx context.Context, id uint, userID string) error {
	if _, err := s.getOwnedQuiz(ctx, id, userID, "delete"); err != nil {
		return err
	}

	hasAttempts, err := s.repo.Quiz().HasAttempts(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to check attempts: %w", err)
	}
	if hasAttempts {
		return ErrQuizNotDeletable
	}

	if err := s.repo.Quiz().Delete(ctx, id); err != nil {
		return fmt.Errorf("failed to delete quiz: %w", err)
	}
	s.invalidate(ctx, id)

	s.logger.Info("Quiz deleted successfully", "quiz_id", id, "user_id", userID)
	return nil
}

// ===== HELPERS =====

func (s *quizService) requireAuthorRole(ctx context.Context, userID string) error {
	user, err := s.repo.User().GetByID(ctx, userID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return ErrUserNotFound
		}
		return fmt.Errorf("failed to get user: %w", err)
	}
	if user.Role != models.RoleInstructor && user.Role != models.RoleAdmin {
		return NewPermissionError(userID, 0, "quiz", "create", "only instructors can author quizzes")
	}
	return nil
}

func (s *quizService) getOwnedQuiz(ctx context.Context, id uint, userID, action string) (*models.Quiz, error) {
	quiz, err := s.repo.Quiz().GetByIDWithQuestions(ctx, id)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrQuizNotFound
		}
		return nil, fmt.Errorf("failed to get quiz: %w", err)
	}

	user, err := s.repo.User().GetByID(ctx, userID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	if user.Role != models.RoleAdmin && quiz.CreatedBy != userID {
		return nil, NewPermissionError(userID, id, "quiz", action, "not owner or insufficient permissions")
	}
	return quiz, nil
}

func (s *quizService) invalidate(ctx context.Context, id uint) {
	if err := s.cache.Delete(ctx, quizCacheKey(id)); err != nil {
		s.logger.Warn("Quiz cache invalidation failed", "quiz_id", id, "error", err)
	}
}

func quizCacheKey(id uint) string {
	return fmt.Sprintf("quiz:%d", id)
}

func decorateQuiz(quiz *models.Quiz) {
	quiz.QuestionsCount = len(quiz.Questions)
	quiz.TotalPoints = quiz.MaxScore()
}

func applyQuizUpdate(quiz *models.Quiz, req *UpdateQuizRequest) {
	if req.Title != nil {
		quiz.Title = *req.Title
	}
	if req.Description != nil {
		quiz.Description = req.Description
	}
	if req.PassingScore != nil {
		quiz.PassingScore = *req.PassingScore
	}
	if req.TimeLimit != nil {
		quiz.TimeLimit = req.TimeLimit
	}
	if req.MaxAttempts != nil {
		quiz.MaxAttempts = *req.MaxAttempts
	}
	if req.ShuffleQuestions != nil {
		quiz.ShuffleQuestions = *req.ShuffleQuestions
	}
	if req.ShowResults != nil {
		quiz.ShowResults = *req.ShowResults
	}
}

// buildQuestions converts authoring inputs into persisted question rows,
// assigning positions from input order.
func buildQuestions(inputs []QuestionInput) ([]models.Question, error) {
	questions := make([]models.Question, 0, len(inputs))
	for i, input := range inputs {
		optionsJSON, err := json.Marshal(input.Options)
		if err != nil {
			return nil, fmt.Errorf("failed to encode options for question %d: %w", i, err)
		}
		questions = append(questions, models.Question{
			Position:      i,
			Text:          input.Text,
			Type:          input.Type,
			Options:       datatypes.JSON(optionsJSON),
			CorrectAnswer: datatypes.JSON(input.CorrectAnswer),
			Points:        input.Points,
			Explanation:   input.Explanation,
		})
	}
	return questions, nil
}
