package handlers

import (
	"log/slog"
	"net/http"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/eduflow-lms/quiz-service/internal/middleware"
	"github.com/eduflow-lms/quiz-service/internal/models"
	"github.com/eduflow-lms/quiz-service/internal/repositories"
	"github.com/eduflow-lms/quiz-service/internal/services"
	"github.com/eduflow-lms/quiz-service/internal/utils"
)

type HandlerManager struct {
	quizHandler    *QuizHandler
	attemptHandler *AttemptHandler
}

func NewHandlerManager(serviceManager services.ServiceManager, logger *slog.Logger) *HandlerManager {
	return &HandlerManager{
		quizHandler:    NewQuizHandler(serviceManager.Quiz(), serviceManager.Export(), logger),
		attemptHandler: NewAttemptHandler(serviceManager.Attempt(), logger),
	}
}

// SetupRoutes sets up all API routes
func (hm *HandlerManager) SetupRoutes(router *gin.Engine, repo repositories.Repository, logger *slog.Logger, allowedOrigins []string) {
	router.Use(utils.RequestLogger(logger))
	router.Use(gin.Recovery())
	router.Use(cors.New(cors.Config{
		AllowOrigins:     allowedOrigins,
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", "X-Request-ID"},
		AllowCredentials: true,
	}))

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "healthy",
			"service": "quiz-service",
		})
	})

	v1 := router.Group("/api/v1")
	v1.Use(middleware.Auth(repo, logger))
	{
		quizzes := v1.Group("/quizzes")
		{
			quizzes.GET("", hm.quizHandler.ListQuizzes)
			quizzes.GET("/:id", hm.quizHandler.GetQuiz)
			quizzes.GET("/lesson/:lesson_id", hm.quizHandler.GetQuizzesByLesson)

			authoring := quizzes.Group("")
			authoring.Use(middleware.RequireRoles(models.RoleInstructor, models.RoleAdmin))
			{
				authoring.POST("", hm.quizHandler.CreateQuiz)
				authoring.PUT("/:id", hm.quizHandler.UpdateQuiz)
				authoring.DELETE("/:id", hm.quizHandler.DeleteQuiz)
				authoring.POST("/:id/publish", hm.quizHandler.PublishQuiz)
				authoring.POST("/:id/deactivate", hm.quizHandler.DeactivateQuiz)
				authoring.GET("/:id/attempts/export", hm.quizHandler.ExportAttempts)
			}
		}

		attempts := v1.Group("/attempts")
		{
			attempts.POST("", hm.attemptHandler.SubmitAttempt)
			attempts.GET("/lesson/:lesson_id/latest", hm.attemptHandler.GetLatestAttempt)
			attempts.GET("/count/:quiz_id", hm.attemptHandler.GetAttemptCount)
			attempts.GET("/quiz/:quiz_id", hm.attemptHandler.GetAttemptsByQuiz)
			attempts.GET("/stats/:quiz_id", hm.attemptHandler.GetAttemptStats)
		}
	}
}
