package services

import (
	"encoding/json"
	"testing"

	"github.com/eduflow-lms/quiz-service/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
)

func question(qType models.QuestionType, correctAnswer string, points int) models.Question {
	return models.Question{
		Type:          qType,
		CorrectAnswer: datatypes.JSON(correctAnswer),
		Points:        points,
	}
}

func rawAnswers(answers ...string) []json.RawMessage {
	out := make([]json.RawMessage, len(answers))
	for i, a := range answers {
		if a != "" {
			out[i] = json.RawMessage(a)
		}
	}
	return out
}

func TestCalculateScore_AllCorrect(t *testing.T) {
	questions := []models.Question{
		question(models.SingleChoice, `1`, 2),
		question(models.MultiSelect, `[0,1]`, 2),
	}

	result, err := CalculateScore(questions, rawAnswers(`1`, `[0,1]`))
	require.NoError(t, err)

	assert.Equal(t, 4, result.Score)
	assert.Equal(t, 4, result.MaxScore)
	assert.Equal(t, 2, result.CorrectCount)
	assert.Equal(t, 0, result.IncorrectCount)
	assert.Equal(t, 100, result.Percentage)
}

func TestCalculateScore_PartiallyCorrect(t *testing.T) {
	questions := []models.Question{
		question(models.SingleChoice, `1`, 2),
		question(models.MultiSelect, `[0,1]`, 2),
	}

	// [0,0] must not satisfy the key [0,1]
	result, err := CalculateScore(questions, rawAnswers(`1`, `[0,0]`))
	require.NoError(t, err)

	assert.Equal(t, 2, result.Score)
	assert.Equal(t, 1, result.CorrectCount)
	assert.Equal(t, 1, result.IncorrectCount)
	assert.Equal(t, 50, result.Percentage)
}

func TestCalculateScore_AllIncorrect(t *testing.T) {
	questions := make([]models.Question, 10)
	for i := range questions {
		questions[i] = question(models.TrueFalse, `true`, 1)
	}
	answers := make([]json.RawMessage, 10)
	for i := range answers {
		answers[i] = json.RawMessage(`false`)
	}

	result, err := CalculateScore(questions, answers)
	require.NoError(t, err)

	assert.Equal(t, 0, result.Score)
	assert.Equal(t, 0, result.Percentage)
	assert.Equal(t, 10, result.IncorrectCount)
	assert.False(t, CheckPassed(result, 50))
}

func TestCalculateScore_MultiSelectExactMatch(t *testing.T) {
	q := []models.Question{question(models.MultiSelect, `[0,1,2]`, 3)}

	cases := []struct {
		name    string
		answer  string
		correct bool
	}{
		{"exact match", `[0,1,2]`, true},
		{"order independent", `[2,0,1]`, true},
		{"subset", `[0,1]`, false},
		{"superset", `[0,1,2,3]`, false},
		{"stray index", `[0,1,3]`, false},
		{"duplicates do not substitute", `[0,0,1]`, false},
		{"empty selection", `[]`, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			result, err := CalculateScore(q, rawAnswers(tc.answer))
			require.NoError(t, err)
			if tc.correct {
				assert.Equal(t, 3, result.Score)
			} else {
				assert.Equal(t, 0, result.Score, "no partial credit")
			}
		})
	}
}

func TestCalculateScore_BlankAndMissingAnswers(t *testing.T) {
	questions := []models.Question{
		question(models.SingleChoice, `0`, 1),
		question(models.SingleChoice, `0`, 1),
		question(models.SingleChoice, `0`, 1),
	}

	// First slot null, second correct, third slot missing entirely.
	result, err := CalculateScore(questions, rawAnswers(`null`, `0`))
	require.NoError(t, err)

	assert.Equal(t, 1, result.Score)
	assert.Equal(t, 1, result.CorrectCount)
	assert.Equal(t, 2, result.IncorrectCount)
}

func TestCalculateScore_MalformedAnswerIsIncorrect(t *testing.T) {
	questions := []models.Question{
		question(models.SingleChoice, `0`, 1),
		question(models.TrueFalse, `true`, 1),
		question(models.MultiSelect, `[0]`, 1),
	}

	// Wrong shapes for every type: string where an index is expected, number
	// where a bool is expected, scalar where an array is expected.
	result, err := CalculateScore(questions, rawAnswers(`"zero"`, `1`, `0`))
	require.NoError(t, err)

	assert.Equal(t, 0, result.Score)
	assert.Equal(t, 3, result.IncorrectCount)
}

func TestCalculateScore_DegenerateQuiz(t *testing.T) {
	_, err := CalculateScore(nil, nil)
	assert.ErrorIs(t, err, ErrDegenerateQuiz)

	// Questions exist but carry zero points
	zero := []models.Question{question(models.TrueFalse, `true`, 0)}
	_, err = CalculateScore(zero, rawAnswers(`true`))
	assert.ErrorIs(t, err, ErrDegenerateQuiz)
}

func TestCalculateScore_Deterministic(t *testing.T) {
	questions := []models.Question{
		question(models.SingleChoice, `2`, 3),
		question(models.MultiSelect, `[1,3]`, 5),
		question(models.TrueFalse, `false`, 2),
	}
	answers := rawAnswers(`2`, `[3,1]`, `true`)

	first, err := CalculateScore(questions, answers)
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		again, err := CalculateScore(questions, answers)
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
}

func TestCalculateScore_ScoreNeverExceedsMaxScore(t *testing.T) {
	questions := []models.Question{
		question(models.SingleChoice, `0`, 7),
		question(models.TrueFalse, `true`, 16),
		question(models.MultiSelect, `[0,2]`, 4),
	}

	result, err := CalculateScore(questions, rawAnswers(`0`, `true`, `[0,2]`))
	require.NoError(t, err)

	assert.LessOrEqual(t, result.Score, result.MaxScore)
	assert.Equal(t, 27, result.MaxScore, "max score is the sum of all points")
}

// A display percentage that rounds up across the threshold must not turn a
// failing attempt into a passing one.
func TestCheckPassed_RoundingDoesNotFlipResult(t *testing.T) {
	questions := []models.Question{
		question(models.TrueFalse, `true`, 16),
		question(models.TrueFalse, `true`, 7),
	}

	// 16/23 = 69.565...%, displays as 70 after rounding.
	result, err := CalculateScore(questions, rawAnswers(`true`, `false`))
	require.NoError(t, err)

	assert.Equal(t, 70, result.Percentage)
	assert.False(t, CheckPassed(result, 70), "pass check must use the raw ratio")
}

func TestCheckPassed_ExactThreshold(t *testing.T) {
	questions := []models.Question{
		question(models.TrueFalse, `true`, 1),
		question(models.TrueFalse, `true`, 1),
	}

	result, err := CalculateScore(questions, rawAnswers(`true`, `false`))
	require.NoError(t, err)

	assert.True(t, CheckPassed(result, 50), "meeting the threshold exactly passes")
	assert.False(t, CheckPassed(result, 51))
}

func TestCheckPassed_ZeroThresholdAlwaysPasses(t *testing.T) {
	questions := []models.Question{question(models.TrueFalse, `true`, 5)}

	result, err := CalculateScore(questions, rawAnswers(`false`))
	require.NoError(t, err)

	assert.True(t, CheckPassed(result, 0))
}
