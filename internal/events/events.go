package events

import (
	"time"

	"github.com/google/uuid"
)

// EventType represents the notification events this service emits.
type EventType string

const (
	// Quiz events
	EventQuizPublished   EventType = "quiz.published"
	EventQuizDeactivated EventType = "quiz.deactivated"

	// Attempt events
	EventAttemptSubmitted EventType = "attempt.submitted"
	EventAttemptPassed    EventType = "attempt.passed"
	EventAttemptFailed    EventType = "attempt.failed"
)

// QuizEvent is the envelope for every event published to the notification
// topic.
type QuizEvent struct {
	ID        string                 `json:"id"`
	Type      EventType              `json:"type"`
	Timestamp time.Time              `json:"timestamp"`
	Source    string                 `json:"source"`
	Version   string                 `json:"version"`
	Data      interface{}            `json:"data"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
}

// Event payloads

type QuizPublishedEvent struct {
	QuizID    uint   `json:"quiz_id"`
	LessonID  uint   `json:"lesson_id"`
	QuizTitle string `json:"quiz_title"`
	CreatorID string `json:"creator_id"`
}

type AttemptSubmittedEvent struct {
	AttemptID     uint      `json:"attempt_id"`
	QuizID        uint      `json:"quiz_id"`
	LessonID      uint      `json:"lesson_id"`
	QuizTitle     string    `json:"quiz_title"`
	StudentID     string    `json:"student_id"`
	AttemptNumber int       `json:"attempt_number"`
	Score         int       `json:"score"`
	MaxScore      int       `json:"max_score"`
	Percentage    int       `json:"percentage"`
	Passed        bool      `json:"passed"`
	SubmittedAt   time.Time `json:"submitted_at"`
}

// Event factory functions

func NewQuizPublishedEvent(quizID, lessonID uint, title, creatorID string) *QuizEvent {
	return newEvent(EventQuizPublished, QuizPublishedEvent{
		QuizID:    quizID,
		LessonID:  lessonID,
		QuizTitle: title,
		CreatorID: creatorID,
	})
}

func NewQuizDeactivatedEvent(quizID, lessonID uint, title, creatorID string) *QuizEvent {
	return newEvent(EventQuizDeactivated, QuizPublishedEvent{
		QuizID:    quizID,
		LessonID:  lessonID,
		QuizTitle: title,
		CreatorID: creatorID,
	})
}

// NewAttemptSubmittedEvent reports a finished submission. The event type
// distinguishes passed from failed attempts so the notification service can
// route certificate issuance on passes without decoding the payload.
func NewAttemptSubmittedEvent(data AttemptSubmittedEvent) *QuizEvent {
	eventType := EventAttemptFailed
	if data.Passed {
		eventType = EventAttemptPassed
	}
	return newEvent(eventType, data)
}

func newEvent(eventType EventType, data interface{}) *QuizEvent {
	return &QuizEvent{
		ID:        uuid.NewString(),
		Type:      eventType,
		Timestamp: time.Now(),
		Source:    "quiz-service",
		Version:   "1.0",
		Data:      data,
	}
}
