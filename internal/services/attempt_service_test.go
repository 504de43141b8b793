package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/eduflow-lms/quiz-service/internal/events"
	"github.com/eduflow-lms/quiz-service/internal/models"
	"github.com/eduflow-lms/quiz-service/internal/repositories"
	"github.com/eduflow-lms/quiz-service/internal/utils"
	"github.com/eduflow-lms/quiz-service/internal/validator"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// fakeRepository is an in-memory Repository. The admission path mirrors the
// store's contract: count and insert happen under one lock, so the tests
// exercise the same attempt-number and limit semantics as the real store.
type fakeRepository struct {
	mu       sync.Mutex
	quizzes  map[uint]*models.Quiz
	attempts map[uint]*models.QuizAttempt
	users    map[string]*models.User
	nextID   uint
}

func newFakeRepository() *fakeRepository {
	return &fakeRepository{
		quizzes:  make(map[uint]*models.Quiz),
		attempts: make(map[uint]*models.QuizAttempt),
		users:    make(map[string]*models.User),
		nextID:   1,
	}
}

func (f *fakeRepository) Quiz() repositories.QuizRepository       { return (*fakeQuizRepo)(f) }
func (f *fakeRepository) Attempt() repositories.AttemptRepository { return (*fakeAttemptRepo)(f) }
func (f *fakeRepository) User() repositories.UserRepository       { return (*fakeUserRepo)(f) }

type fakeQuizRepo fakeRepository

func (f *fakeQuizRepo) Create(ctx context.Context, quiz *models.Quiz) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	quiz.ID = f.nextID
	f.nextID++
	f.quizzes[quiz.ID] = quiz
	return nil
}

func (f *fakeQuizRepo) GetByID(ctx context.Context, id uint) (*models.Quiz, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	quiz, ok := f.quizzes[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return quiz, nil
}

func (f *fakeQuizRepo) GetByIDWithQuestions(ctx context.Context, id uint) (*models.Quiz, error) {
	return f.GetByID(ctx, id)
}

func (f *fakeQuizRepo) GetByLesson(ctx context.Context, lessonID uint) ([]*models.Quiz, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.Quiz
	for _, quiz := range f.quizzes {
		if quiz.LessonID == lessonID {
			out = append(out, quiz)
		}
	}
	return out, nil
}

func (f *fakeQuizRepo) Update(ctx context.Context, quiz *models.Quiz) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.quizzes[quiz.ID] = quiz
	return nil
}

func (f *fakeQuizRepo) ReplaceQuestions(ctx context.Context, quizID uint, questions []models.Question) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if quiz, ok := f.quizzes[quizID]; ok {
		quiz.Questions = questions
	}
	return nil
}

func (f *fakeQuizRepo) Delete(ctx context.Context, id uint) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.quizzes, id)
	return nil
}

func (f *fakeQuizRepo) List(ctx context.Context, filters repositories.QuizFilters) ([]*models.Quiz, int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.Quiz
	for _, quiz := range f.quizzes {
		out = append(out, quiz)
	}
	return out, int64(len(out)), nil
}

func (f *fakeQuizRepo) SetActive(ctx context.Context, id uint, active bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	quiz, ok := f.quizzes[id]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	quiz.IsActive = active
	return nil
}

func (f *fakeQuizRepo) HasAttempts(ctx context.Context, id uint) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, attempt := range f.attempts {
		if attempt.QuizID == id {
			return true, nil
		}
	}
	return false, nil
}

type fakeAttemptRepo fakeRepository

func (f *fakeAttemptRepo) CreateWithAdmission(ctx context.Context, attempt *models.QuizAttempt, maxAttempts int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	count := 0
	for _, existing := range f.attempts {
		if existing.StudentID == attempt.StudentID && existing.QuizID == attempt.QuizID {
			count++
		}
	}
	if count >= maxAttempts {
		return repositories.ErrAttemptLimitReached
	}
	attempt.AttemptNumber = count + 1
	attempt.ID = f.nextID
	f.nextID++
	if attempt.CreatedAt.IsZero() {
		attempt.CreatedAt = time.Now()
	}
	f.attempts[attempt.ID] = attempt
	return nil
}

func (f *fakeAttemptRepo) GetByID(ctx context.Context, id uint) (*models.QuizAttempt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	attempt, ok := f.attempts[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return attempt, nil
}

func (f *fakeAttemptRepo) GetByIdempotencyKey(ctx context.Context, studentID, key string) (*models.QuizAttempt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, attempt := range f.attempts {
		if attempt.StudentID == studentID && attempt.IdempotencyKey != nil && *attempt.IdempotencyKey == key {
			return attempt, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (f *fakeAttemptRepo) GetLatestByLesson(ctx context.Context, studentID string, lessonID uint) (*models.QuizAttempt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var latest *models.QuizAttempt
	for _, attempt := range f.attempts {
		if attempt.StudentID != studentID || attempt.LessonID != lessonID {
			continue
		}
		if latest == nil || attempt.CreatedAt.After(latest.CreatedAt) {
			latest = attempt
		}
	}
	if latest == nil {
		return nil, gorm.ErrRecordNotFound
	}
	return latest, nil
}

func (f *fakeAttemptRepo) GetByStudentAndQuiz(ctx context.Context, studentID string, quizID uint) ([]*models.QuizAttempt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.QuizAttempt
	for _, attempt := range f.attempts {
		if attempt.StudentID == studentID && attempt.QuizID == quizID {
			out = append(out, attempt)
		}
	}
	return out, nil
}

func (f *fakeAttemptRepo) GetByQuiz(ctx context.Context, quizID uint, filters repositories.AttemptFilters) ([]*models.QuizAttempt, int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.QuizAttempt
	for _, attempt := range f.attempts {
		if attempt.QuizID == quizID {
			out = append(out, attempt)
		}
	}
	return out, int64(len(out)), nil
}

func (f *fakeAttemptRepo) CountByStudentAndQuiz(ctx context.Context, studentID string, quizID uint) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	count := 0
	for _, attempt := range f.attempts {
		if attempt.StudentID == studentID && attempt.QuizID == quizID {
			count++
		}
	}
	return count, nil
}

func (f *fakeAttemptRepo) GetStats(ctx context.Context, quizID uint) (*repositories.AttemptStats, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	stats := &repositories.AttemptStats{QuizID: quizID}
	for _, attempt := range f.attempts {
		if attempt.QuizID != quizID {
			continue
		}
		stats.TotalAttempts++
		if attempt.Passed {
			stats.PassedCount++
		}
	}
	if stats.TotalAttempts > 0 {
		stats.PassRate = float64(stats.PassedCount) / float64(stats.TotalAttempts) * 100
	}
	return stats, nil
}

type fakeUserRepo fakeRepository

func (f *fakeUserRepo) GetByID(ctx context.Context, id string) (*models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	user, ok := f.users[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return user, nil
}

func (f *fakeUserRepo) Upsert(ctx context.Context, user *models.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.users[user.ID] = user
	return nil
}

// ===== TEST SETUP =====

func newTestAttemptService(t *testing.T) (AttemptService, *fakeRepository, *events.MockEventPublisher) {
	t.Helper()
	repo := newFakeRepository()
	logger := utils.NewLogger("test")
	publisher := events.NewMockEventPublisher(logger)
	service := NewAttemptService(repo, publisher, logger, validator.New())
	return service, repo, publisher
}

func seedQuiz(t *testing.T, repo *fakeRepository, maxAttempts int, active bool) *models.Quiz {
	t.Helper()
	quiz := &models.Quiz{
		LessonID:     10,
		Title:        "Go Basics",
		PassingScore: 70,
		MaxAttempts:  maxAttempts,
		IsActive:     active,
		CreatedBy:    "instructor-1",
		Questions: []models.Question{
			{Position: 0, Type: models.SingleChoice, CorrectAnswer: datatypes.JSON(`1`), Points: 2},
			{Position: 1, Type: models.MultiSelect, CorrectAnswer: datatypes.JSON(`[0,1]`), Points: 2},
		},
	}
	require.NoError(t, repo.Quiz().Create(context.Background(), quiz))
	return quiz
}

func submitReq(quiz *models.Quiz, answers ...string) *SubmitAttemptRequest {
	return &SubmitAttemptRequest{
		QuizID:   quiz.ID,
		LessonID: quiz.LessonID,
		Answers:  rawAnswers(answers...),
	}
}

// ===== TESTS =====

func TestSubmit_AssignsSequentialAttemptNumbers(t *testing.T) {
	service, repo, _ := newTestAttemptService(t)
	ctx := context.Background()

	quiz := seedQuiz(t, repo, 3, true)

	first, err := service.Submit(ctx, submitReq(quiz, `1`, `[0,1]`), "student-1")
	require.NoError(t, err)
	assert.Equal(t, 1, first.AttemptNumber)
	assert.True(t, first.Passed)
	assert.Equal(t, 100, first.Attempt.Percentage)

	second, err := service.Submit(ctx, submitReq(quiz, `0`, `[0]`), "student-1")
	require.NoError(t, err)
	assert.Equal(t, 2, second.AttemptNumber)
	assert.False(t, second.Passed)

	// Another learner starts back at 1.
	other, err := service.Submit(ctx, submitReq(quiz, `1`, `[0,1]`), "student-2")
	require.NoError(t, err)
	assert.Equal(t, 1, other.AttemptNumber)
}

func TestSubmit_AttemptLimitExceeded(t *testing.T) {
	service, repo, _ := newTestAttemptService(t)
	ctx := context.Background()

	quiz := seedQuiz(t, repo, 2, true)
	for i := 0; i < 2; i++ {
		_, err := service.Submit(ctx, submitReq(quiz, `1`, `[0,1]`), "student-1")
		require.NoError(t, err)
	}

	_, err := service.Submit(ctx, submitReq(quiz, `1`, `[0,1]`), "student-1")
	assert.ErrorIs(t, err, ErrAttemptLimitExceeded)
	assert.True(t, IsConflict(err))

	// No record was written for the rejected submission.
	count, err := repo.Attempt().CountByStudentAndQuiz(ctx, "student-1", quiz.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestSubmit_QuizNotFound(t *testing.T) {
	service, _, _ := newTestAttemptService(t)

	_, err := service.Submit(context.Background(), &SubmitAttemptRequest{QuizID: 999, LessonID: 1}, "student-1")
	assert.ErrorIs(t, err, ErrQuizNotFound)
	assert.True(t, IsNotFound(err))
}

func TestSubmit_InactiveQuizLeavesNoRecord(t *testing.T) {
	service, repo, _ := newTestAttemptService(t)
	ctx := context.Background()

	quiz := seedQuiz(t, repo, 3, false)

	_, err := service.Submit(ctx, submitReq(quiz, `1`, `[0,1]`), "student-1")
	assert.ErrorIs(t, err, ErrQuizInactive)
	assert.True(t, IsNotFound(err), "inactive quizzes surface as not found")

	count, err := repo.Attempt().CountByStudentAndQuiz(ctx, "student-1", quiz.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}

func TestSubmit_DegenerateQuizRejected(t *testing.T) {
	service, repo, _ := newTestAttemptService(t)
	ctx := context.Background()

	quiz := &models.Quiz{
		LessonID:    10,
		Title:       "Empty",
		MaxAttempts: 3,
		IsActive:    true,
		CreatedBy:   "instructor-1",
		Questions: []models.Question{
			{Position: 0, Type: models.TrueFalse, CorrectAnswer: datatypes.JSON(`true`), Points: 0},
		},
	}
	require.NoError(t, repo.Quiz().Create(ctx, quiz))

	_, err := service.Submit(ctx, submitReq(quiz, `true`), "student-1")
	assert.ErrorIs(t, err, ErrDegenerateQuiz)
	assert.True(t, IsBusinessRule(err))

	count, err := repo.Attempt().CountByStudentAndQuiz(ctx, "student-1", quiz.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}

func TestSubmit_IdempotencyKeyReplays(t *testing.T) {
	service, repo, _ := newTestAttemptService(t)
	ctx := context.Background()

	quiz := seedQuiz(t, repo, 3, true)
	key := "client-submit-0001"

	req := submitReq(quiz, `1`, `[0,1]`)
	req.IdempotencyKey = &key

	first, err := service.Submit(ctx, req, "student-1")
	require.NoError(t, err)

	// Retry with the same key: same record, no new attempt consumed.
	retry := submitReq(quiz, `0`, `[0]`)
	retry.IdempotencyKey = &key
	replayed, err := service.Submit(ctx, retry, "student-1")
	require.NoError(t, err)

	assert.Equal(t, first.Attempt.ID, replayed.Attempt.ID)
	assert.Equal(t, first.AttemptNumber, replayed.AttemptNumber)
	assert.True(t, replayed.Passed, "replay returns the original result, not a rescoring")

	count, err := repo.Attempt().CountByStudentAndQuiz(ctx, "student-1", quiz.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestSubmit_PublishesAttemptEvent(t *testing.T) {
	service, repo, publisher := newTestAttemptService(t)
	ctx := context.Background()

	quiz := seedQuiz(t, repo, 3, true)
	_, err := service.Submit(ctx, submitReq(quiz, `1`, `[0,1]`), "student-1")
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return len(publisher.GetPublishedEvents()) == 1
	}, time.Second, 10*time.Millisecond)

	event := publisher.GetPublishedEvents()[0]
	assert.Equal(t, events.EventAttemptPassed, event.Type)
}

func TestGetLatestByLesson(t *testing.T) {
	service, repo, _ := newTestAttemptService(t)
	ctx := context.Background()

	_, err := service.GetLatestByLesson(ctx, 10, "student-1")
	assert.ErrorIs(t, err, ErrAttemptNotFound)

	base := time.Now()
	for i, pct := range []int{40, 90, 60} {
		attempt := &models.QuizAttempt{
			QuizID:     1,
			LessonID:   10,
			StudentID:  "student-1",
			Percentage: pct,
			CreatedAt:  base.Add(time.Duration(i) * time.Minute),
		}
		require.NoError(t, repo.Attempt().CreateWithAdmission(ctx, attempt, 10))
	}

	latest, err := service.GetLatestByLesson(ctx, 10, "student-1")
	require.NoError(t, err)
	assert.Equal(t, 60, latest.Percentage, "latest by submission time, not best score")
	assert.Equal(t, 3, latest.AttemptNumber)
}

func TestGetStats_RequiresOwnership(t *testing.T) {
	service, repo, _ := newTestAttemptService(t)
	ctx := context.Background()

	quiz := seedQuiz(t, repo, 3, true)
	require.NoError(t, repo.User().Upsert(ctx, &models.User{ID: "instructor-1", Role: models.RoleInstructor}))
	require.NoError(t, repo.User().Upsert(ctx, &models.User{ID: "instructor-2", Role: models.RoleInstructor}))
	require.NoError(t, repo.User().Upsert(ctx, &models.User{ID: "admin-1", Role: models.RoleAdmin}))

	_, err := service.GetStats(ctx, quiz.ID, "instructor-2")
	assert.True(t, IsUnauthorized(err))

	_, err = service.GetStats(ctx, quiz.ID, "instructor-1")
	assert.NoError(t, err)

	_, err = service.GetStats(ctx, quiz.ID, "admin-1")
	assert.NoError(t, err)
}
