package postgres

import (
	"github.com/eduflow-lms/quiz-service/internal/repositories"
	"gorm.io/gorm"
)

type postgresRepository struct {
	quiz    repositories.QuizRepository
	attempt repositories.AttemptRepository
	user    repositories.UserRepository
}

// New builds the Postgres-backed repository aggregate.
func New(db *gorm.DB) repositories.Repository {
	return &postgresRepository{
		quiz:    NewQuizPostgreSQL(db),
		attempt: NewAttemptPostgreSQL(db),
		user:    NewUserPostgreSQL(db),
	}
}

func (r *postgresRepository) Quiz() repositories.QuizRepository {
	return r.quiz
}

func (r *postgresRepository) Attempt() repositories.AttemptRepository {
	return r.attempt
}

func (r *postgresRepository) User() repositories.UserRepository {
	return r.user
}
