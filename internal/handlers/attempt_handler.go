package handlers

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/eduflow-lms/quiz-service/internal/repositories"
	"github.com/eduflow-lms/quiz-service/internal/services"
)

type AttemptHandler struct {
	BaseHandler
	attemptService services.AttemptService
}

func NewAttemptHandler(attemptService services.AttemptService, logger *slog.Logger) *AttemptHandler {
	return &AttemptHandler{
		BaseHandler:    NewBaseHandler(logger),
		attemptService: attemptService,
	}
}

// SubmitAttempt submits a completed quiz attempt
// @Summary Submit quiz attempt
// @Description Scores the submitted answers and records the attempt if the learner has attempts remaining
// @Tags attempts
// @Accept json
// @Produce json
// @Param attempt body services.SubmitAttemptRequest true "Attempt data"
// @Success 201 {object} services.SubmitAttemptResponse
// @Failure 400 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse
// @Failure 422 {object} ErrorResponse
// @Router /attempts [post]
func (h *AttemptHandler) SubmitAttempt(c *gin.Context) {
	var req services.SubmitAttemptRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Message: "Invalid request payload",
			Details: err.Error(),
		})
		return
	}

	studentID, ok := h.currentUserID(c)
	if !ok {
		return
	}

	h.LogRequest(c, "Submitting attempt", "quiz_id", req.QuizID)

	result, err := h.attemptService.Submit(c.Request.Context(), &req, studentID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusCreated, result)
}

// GetLatestAttempt retrieves the learner's most recent attempt on a lesson
// @Summary Get latest attempt for lesson
// @Description Returns the authenticated learner's most recent attempt across all quizzes of the lesson
// @Tags attempts
// @Produce json
// @Param lesson_id path uint true "Lesson ID"
// @Success 200 {object} models.QuizAttempt
// @Failure 404 {object} ErrorResponse
// @Router /attempts/lesson/{lesson_id}/latest [get]
func (h *AttemptHandler) GetLatestAttempt(c *gin.Context) {
	lessonID := h.parseIDParam(c, "lesson_id")
	if lessonID == 0 {
		return
	}

	studentID, ok := h.currentUserID(c)
	if !ok {
		return
	}

	attempt, err := h.attemptService.GetLatestByLesson(c.Request.Context(), lessonID, studentID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, attempt)
}

// GetAttemptsByQuiz lists attempts on a quiz for its owner
// @Summary List attempts by quiz
// @Description Returns all attempts on the quiz. Restricted to the quiz owner or admins
// @Tags attempts
// @Produce json
// @Param quiz_id path uint true "Quiz ID"
// @Param student_id query string false "Filter by student"
// @Param passed query bool false "Filter by pass state"
// @Param limit query int false "Page size"
// @Param offset query int false "Page offset"
// @Success 200 {object} ListResponse
// @Failure 403 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Router /attempts/quiz/{quiz_id} [get]
func (h *AttemptHandler) GetAttemptsByQuiz(c *gin.Context) {
	quizID := h.parseIDParam(c, "quiz_id")
	if quizID == 0 {
		return
	}

	userID, ok := h.currentUserID(c)
	if !ok {
		return
	}

	filters := repositories.AttemptFilters{
		Passed: h.parseBoolQuery(c, "passed"),
		Limit:  h.parseIntQuery(c, "limit", 20),
		Offset: h.parseIntQuery(c, "offset", 0),
	}
	if studentID := c.Query("student_id"); studentID != "" {
		filters.StudentID = &studentID
	}

	attempts, total, err := h.attemptService.GetByQuiz(c.Request.Context(), quizID, filters, userID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, ListResponse{Data: attempts, Total: total})
}

// GetAttemptCount returns how many attempts the learner has used on a quiz
// @Summary Get attempt count
// @Description Returns the number of attempts the authenticated learner has consumed on the quiz
// @Tags attempts
// @Produce json
// @Param quiz_id path uint true "Quiz ID"
// @Success 200 {object} map[string]int
// @Router /attempts/count/{quiz_id} [get]
func (h *AttemptHandler) GetAttemptCount(c *gin.Context) {
	quizID := h.parseIDParam(c, "quiz_id")
	if quizID == 0 {
		return
	}

	studentID, ok := h.currentUserID(c)
	if !ok {
		return
	}

	count, err := h.attemptService.GetAttemptCount(c.Request.Context(), quizID, studentID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"quiz_id": quizID, "count": count})
}

// GetAttemptStats returns aggregate statistics for a quiz
// @Summary Get attempt statistics
// @Description Returns attempt counts, pass rate and score averages for the quiz. Restricted to the quiz owner or admins
// @Tags attempts
// @Produce json
// @Param quiz_id path uint true "Quiz ID"
// @Success 200 {object} repositories.AttemptStats
// @Failure 403 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Router /attempts/stats/{quiz_id} [get]
func (h *AttemptHandler) GetAttemptStats(c *gin.Context) {
	quizID := h.parseIDParam(c, "quiz_id")
	if quizID == 0 {
		return
	}

	userID, ok := h.currentUserID(c)
	if !ok {
		return
	}

	stats, err := h.attemptService.GetStats(c.Request.Context(), quizID, userID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, stats)
}
