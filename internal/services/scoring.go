package services

import (
	"bytes"
	"encoding/json"
	"math"

	"github.com/eduflow-lms/quiz-service/internal/models"
)

// ScoreResult is the outcome of scoring one answer set against a question list.
// Percentage is rounded for display; RawPercent carries the unrounded ratio and
// is the only value the pass check may use, so rounding can never flip a
// result across the threshold.
type ScoreResult struct {
	Score          int     `json:"score"`
	MaxScore       int     `json:"max_score"`
	CorrectCount   int     `json:"correct_count"`
	IncorrectCount int     `json:"incorrect_count"`
	Percentage     int     `json:"percentage"`
	RawPercent     float64 `json:"-"`
}

// CalculateScore scores submitted answers against the quiz questions in
// authoring order. Answer slots beyond len(answers), null slots, and slots
// that do not decode to the question's answer shape all count as incorrect.
// The function is pure: same inputs, same output, no side effects.
//
// A quiz whose questions sum to zero points cannot produce a percentage and is
// rejected with ErrDegenerateQuiz.
func CalculateScore(questions []models.Question, answers []json.RawMessage) (*ScoreResult, error) {
	result := &ScoreResult{}

	for i := range questions {
		question := &questions[i]
		result.MaxScore += question.Points

		var submitted json.RawMessage
		if i < len(answers) {
			submitted = answers[i]
		}

		if isCorrectAnswer(question, submitted) {
			result.CorrectCount++
			result.Score += question.Points
		} else {
			result.IncorrectCount++
		}
	}

	if result.MaxScore == 0 {
		return nil, ErrDegenerateQuiz
	}

	result.RawPercent = float64(result.Score) / float64(result.MaxScore) * 100
	result.Percentage = int(math.Round(result.RawPercent))
	return result, nil
}

// CheckPassed evaluates the passing threshold against the raw ratio, not the
// rounded display percentage.
func CheckPassed(result *ScoreResult, passingScore int) bool {
	return result.RawPercent >= float64(passingScore)
}

func isCorrectAnswer(question *models.Question, submitted json.RawMessage) bool {
	if isBlank(submitted) {
		return false
	}

	switch question.Type {
	case models.MultiSelect:
		var key, given []int
		if json.Unmarshal(question.CorrectAnswer, &key) != nil {
			return false
		}
		if json.Unmarshal(submitted, &given) != nil {
			return false
		}
		return sameIndexSet(key, given)

	case models.TrueFalse:
		var key, given bool
		if json.Unmarshal(question.CorrectAnswer, &key) != nil {
			return false
		}
		if json.Unmarshal(submitted, &given) != nil {
			return false
		}
		return key == given

	case models.SingleChoice:
		var key, given int
		if json.Unmarshal(question.CorrectAnswer, &key) != nil {
			return false
		}
		if json.Unmarshal(submitted, &given) != nil {
			return false
		}
		return key == given
	}

	return false
}

func isBlank(raw json.RawMessage) bool {
	return len(bytes.TrimSpace(raw)) == 0 || string(bytes.TrimSpace(raw)) == "null"
}

// sameIndexSet reports order-independent set equality. A subset, superset, or
// any stray index is a full miss; there is no partial credit.
func sameIndexSet(key, given []int) bool {
	if len(key) != len(given) {
		return false
	}
	remaining := make(map[int]int, len(key))
	for _, idx := range key {
		remaining[idx]++
	}
	for _, idx := range given {
		if remaining[idx] == 0 {
			return false
		}
		remaining[idx]--
	}
	return true
}
