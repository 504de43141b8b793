package services

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/eduflow-lms/quiz-service/internal/cache"
	"github.com/eduflow-lms/quiz-service/internal/events"
	"github.com/eduflow-lms/quiz-service/internal/models"
	"github.com/eduflow-lms/quiz-service/internal/utils"
	"github.com/eduflow-lms/quiz-service/internal/validator"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestQuizService(t *testing.T) (QuizService, *fakeRepository, *events.MockEventPublisher) {
	t.Helper()
	repo := newFakeRepository()
	logger := utils.NewLogger("test")
	publisher := events.NewMockEventPublisher(logger)
	service := NewQuizService(repo, cache.NewNoopCache(), publisher, logger, validator.New())
	require.NoError(t, repo.User().Upsert(context.Background(), &models.User{ID: "instructor-1", Role: models.RoleInstructor}))
	require.NoError(t, repo.User().Upsert(context.Background(), &models.User{ID: "student-1", Role: models.RoleStudent}))
	return service, repo, publisher
}

func validCreateRequest() *CreateQuizRequest {
	return &CreateQuizRequest{
		LessonID:     10,
		Title:        "Go Basics",
		PassingScore: 70,
		MaxAttempts:  3,
		Questions: []QuestionInput{
			{
				Text:          "Which keyword declares a constant?",
				Type:          models.SingleChoice,
				Options:       []string{"var", "const", "let"},
				CorrectAnswer: json.RawMessage(`1`),
				Points:        2,
			},
			{
				Text:          "Select the built-in types",
				Type:          models.MultiSelect,
				Options:       []string{"int", "string", "list"},
				CorrectAnswer: json.RawMessage(`[0,1]`),
				Points:        3,
			},
		},
	}
}

func TestCreateQuiz(t *testing.T) {
	service, _, _ := newTestQuizService(t)

	quiz, err := service.Create(context.Background(), validCreateRequest(), "instructor-1")
	require.NoError(t, err)

	assert.NotZero(t, quiz.ID)
	assert.False(t, quiz.IsActive, "new quizzes start inactive")
	assert.Len(t, quiz.Questions, 2)
	assert.Equal(t, 0, quiz.Questions[0].Position)
	assert.Equal(t, 1, quiz.Questions[1].Position)
}

func TestCreateQuiz_StudentForbidden(t *testing.T) {
	service, _, _ := newTestQuizService(t)

	_, err := service.Create(context.Background(), validCreateRequest(), "student-1")
	assert.True(t, IsUnauthorized(err))
}

func TestCreateQuiz_AnswerKeyOutOfRange(t *testing.T) {
	service, _, _ := newTestQuizService(t)

	req := validCreateRequest()
	req.Questions[0].CorrectAnswer = json.RawMessage(`5`)

	_, err := service.Create(context.Background(), req, "instructor-1")
	assert.True(t, IsValidation(err))
}

func TestCreateQuiz_MultiSelectDuplicateKeyRejected(t *testing.T) {
	service, _, _ := newTestQuizService(t)

	req := validCreateRequest()
	req.Questions[1].CorrectAnswer = json.RawMessage(`[0,0]`)

	_, err := service.Create(context.Background(), req, "instructor-1")
	assert.True(t, IsValidation(err))
}

func TestSetActive_RequiresScorableQuestions(t *testing.T) {
	service, repo, _ := newTestQuizService(t)
	ctx := context.Background()

	empty := &models.Quiz{LessonID: 10, Title: "Empty", MaxAttempts: 1, CreatedBy: "instructor-1"}
	require.NoError(t, repo.Quiz().Create(ctx, empty))

	err := service.SetActive(ctx, empty.ID, true, "instructor-1")
	assert.True(t, IsBusinessRule(err))

	zeroPoints := &models.Quiz{
		LessonID: 10, Title: "Zero", MaxAttempts: 1, CreatedBy: "instructor-1",
		Questions: []models.Question{{Type: models.TrueFalse, Points: 0}},
	}
	require.NoError(t, repo.Quiz().Create(ctx, zeroPoints))

	err = service.SetActive(ctx, zeroPoints.ID, true, "instructor-1")
	assert.True(t, IsBusinessRule(err))
}

func TestSetActive_PublishesEvent(t *testing.T) {
	service, _, publisher := newTestQuizService(t)
	ctx := context.Background()

	quiz, err := service.Create(ctx, validCreateRequest(), "instructor-1")
	require.NoError(t, err)

	require.NoError(t, service.SetActive(ctx, quiz.ID, true, "instructor-1"))

	require.Eventually(t, func() bool {
		return len(publisher.GetPublishedEvents()) == 1
	}, time.Second, 10*time.Millisecond)
	assert.Equal(t, events.EventQuizPublished, publisher.GetPublishedEvents()[0].Type)
}

func TestUpdateQuiz_BlockedOnceAttempted(t *testing.T) {
	service, repo, _ := newTestQuizService(t)
	ctx := context.Background()

	quiz, err := service.Create(ctx, validCreateRequest(), "instructor-1")
	require.NoError(t, err)

	attempt := &models.QuizAttempt{QuizID: quiz.ID, LessonID: quiz.LessonID, StudentID: "student-1"}
	require.NoError(t, repo.Attempt().CreateWithAdmission(ctx, attempt, 10))

	title := "Renamed"
	_, err = service.Update(ctx, quiz.ID, &UpdateQuizRequest{Title: &title}, "instructor-1")
	assert.ErrorIs(t, err, ErrQuizNotEditable)
	assert.True(t, IsConflict(err))

	err = service.Delete(ctx, quiz.ID, "instructor-1")
	assert.ErrorIs(t, err, ErrQuizNotDeletable)
}

func TestUpdateQuiz_OwnershipEnforced(t *testing.T) {
	service, repo, _ := newTestQuizService(t)
	ctx := context.Background()

	require.NoError(t, repo.User().Upsert(ctx, &models.User{ID: "instructor-2", Role: models.RoleInstructor}))

	quiz, err := service.Create(ctx, validCreateRequest(), "instructor-1")
	require.NoError(t, err)

	title := "Hijacked"
	_, err = service.Update(ctx, quiz.ID, &UpdateQuizRequest{Title: &title}, "instructor-2")
	assert.True(t, IsUnauthorized(err))
}
