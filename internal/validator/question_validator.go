package validator

import (
	"encoding/json"
	"fmt"

	apperrors "github.com/eduflow-lms/quiz-service/internal/errors"
	"github.com/eduflow-lms/quiz-service/internal/models"
)

// QuestionValidator checks the shape of authored questions: option counts and
// that every answer-key index points into the question's own option list.
type QuestionValidator struct{}

func NewQuestionValidator() *QuestionValidator {
	return &QuestionValidator{}
}

// ValidateQuestions validates every question of a quiz. The returned slice is
// nil when all questions are well-formed.
func (qv *QuestionValidator) ValidateQuestions(questions []models.Question) apperrors.ValidationErrors {
	var errs apperrors.ValidationErrors
	for i := range questions {
		errs = append(errs, qv.validateQuestion(i, &questions[i])...)
	}
	return errs
}

func (qv *QuestionValidator) validateQuestion(index int, question *models.Question) apperrors.ValidationErrors {
	var errs apperrors.ValidationErrors
	field := func(name string) string {
		return fmt.Sprintf("questions[%d].%s", index, name)
	}

	options, err := question.DecodeOptions()
	if err != nil {
		errs = append(errs, *apperrors.NewValidationError(field("options"), "must be an array of option strings", nil))
		return errs
	}

	switch question.Type {
	case models.SingleChoice:
		if len(options) < 2 {
			errs = append(errs, *apperrors.NewValidationError(field("options"), "must contain at least 2 options", len(options)))
		}
		var key int
		if jsonErr := json.Unmarshal(question.CorrectAnswer, &key); jsonErr != nil {
			errs = append(errs, *apperrors.NewValidationError(field("correct_answer"), "must be an option index", nil))
		} else if key < 0 || key >= len(options) {
			errs = append(errs, *apperrors.NewValidationError(field("correct_answer"), "index out of range for options", key))
		}

	case models.TrueFalse:
		var key bool
		if jsonErr := json.Unmarshal(question.CorrectAnswer, &key); jsonErr != nil {
			errs = append(errs, *apperrors.NewValidationError(field("correct_answer"), "must be a boolean", nil))
		}

	case models.MultiSelect:
		if len(options) < 2 {
			errs = append(errs, *apperrors.NewValidationError(field("options"), "must contain at least 2 options", len(options)))
		}
		var key []int
		if jsonErr := json.Unmarshal(question.CorrectAnswer, &key); jsonErr != nil {
			errs = append(errs, *apperrors.NewValidationError(field("correct_answer"), "must be an array of option indexes", nil))
			break
		}
		if len(key) == 0 {
			errs = append(errs, *apperrors.NewValidationError(field("correct_answer"), "must select at least one option", nil))
		}
		seen := make(map[int]bool, len(key))
		for _, idx := range key {
			if idx < 0 || idx >= len(options) {
				errs = append(errs, *apperrors.NewValidationError(field("correct_answer"), "index out of range for options", idx))
			}
			if seen[idx] {
				errs = append(errs, *apperrors.NewValidationError(field("correct_answer"), "duplicate option index", idx))
			}
			seen[idx] = true
		}

	default:
		errs = append(errs, *apperrors.NewValidationErrorWithRule(field("type"),
			"must be a valid question type (single_choice, true_false, multi_select)",
			"question_type", string(question.Type)))
	}

	if question.Points < 1 {
		errs = append(errs, *apperrors.NewValidationErrorWithRule(field("points"),
			"must be between 1 and 100", "points_range", question.Points))
	}

	return errs
}
