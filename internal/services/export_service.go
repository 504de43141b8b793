package services

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/eduflow-lms/quiz-service/internal/models"
	"github.com/eduflow-lms/quiz-service/internal/repositories"
	"github.com/xuri/excelize/v2"
)

type exportService struct {
	repo   repositories.Repository
	logger *slog.Logger
}

func NewExportService(repo repositories.Repository, logger *slog.Logger) ExportService {
	return &exportService{
		repo:   repo,
		logger: logger,
	}
}

// ExportAttempts builds an xlsx workbook with one row per attempt on the quiz,
// newest first. Only the quiz owner or an admin may export.
func (s *exportService) ExportAttempts(ctx context.Context, quizID uint, userID string) (*excelize.File, error) {
	quiz, err := s.repo.Quiz().GetByID(ctx, quizID)
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
		return nil, NewPermissionError(userID, quizID, "quiz", "export_attempts", "not owner or insufficient permissions")
	}

	attempts, _, err := s.repo.Attempt().GetByQuiz(ctx, quizID, repositories.AttemptFilters{})
	if err != nil {
		return nil, fmt.Errorf("failed to get attempts: %w", err)
	}

	file := excelize.NewFile()
	const sheet = "Attempts"
	index, err := file.NewSheet(sheet)
	if err != nil {
		return nil, fmt.Errorf("failed to create sheet: %w", err)
	}
	file.SetActiveSheet(index)
	if err := file.DeleteSheet("Sheet1"); err != nil {
		s.logger.Warn("Failed to remove default sheet", "error", err)
	}

	headers := []string{"Attempt ID", "Student ID", "Student Name", "Attempt #", "Score", "Percentage", "Correct", "Incorrect", "Passed", "Submitted At"}
	for col, header := range headers {
		cell, _ := excelize.CoordinatesToCellName(col+1, 1)
		if err := file.SetCellValue(sheet, cell, header); err != nil {
			return nil, fmt.Errorf("failed to write header: %w", err)
		}
	}

	for row, attempt := range attempts {
		studentName := ""
		if attempt.Student != nil {
			studentName = attempt.Student.FullName
		}
		values := []interface{}{
			attempt.ID,
			attempt.StudentID,
			studentName,
			attempt.AttemptNumber,
			attempt.Score,
			attempt.Percentage,
			attempt.CorrectAnswers,
			attempt.IncorrectAnswers,
			attempt.Passed,
			attempt.CreatedAt.Format("2006-01-02 15:04:05"),
		}
		for col, value := range values {
			cell, _ := excelize.CoordinatesToCellName(col+1, row+2)
			if err := file.SetCellValue(sheet, cell, value); err != nil {
				return nil, fmt.Errorf("failed to write attempt row: %w", err)
			}
		}
	}

	s.logger.Info("Exported quiz attempts",
		"quiz_id", quizID,
		"quiz_title", quiz.Title,
		"attempts_count", len(attempts))
	return file, nil
}
