package models

import (
	"time"

	"github.com/google/uuid"
)

// Role of a conversation turn
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Turn is one message of the conversation history
type Turn struct {
	Role    Role   `json:"role" binding:"required,oneof=user assistant"`
	Content string `json:"content" binding:"required"`
}

// AnswerLog is the telemetry record written after every question-answer cycle
type AnswerLog struct {
	ID              uuid.UUID `json:"id"`
	UserID          string    `json:"user_id"`
	Question        string    `json:"question"`
	Answer          string    `json:"answer"`
	Stage           string    `json:"stage"`
	Accepted        bool      `json:"accepted"`
	RejectionCode   string    `json:"rejection_code,omitempty"`
	RiskLevel       string    `json:"risk_level,omitempty"`
	Confidence      float64   `json:"confidence"`
	SourceCoverage  float64   `json:"source_coverage"`
	ChunksUsed      int       `json:"chunks_used"`
	OverrideListHit bool      `json:"override_list_hit"`
	Conflicts       []string  `json:"conflicts,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
}

// Rating is a user's thumbs-up/down on an answer
type Rating string

const (
	RatingLike    Rating = "like"
	RatingDislike Rating = "dislike"
)

// Feedback is a user rating of a delivered answer
type Feedback struct {
	ID        uuid.UUID `json:"id"`
	UserID    string    `json:"user_id"`
	MessageID string    `json:"message_id,omitempty"`
	Question  string    `json:"question"`
	Answer    string    `json:"answer"`
	Rating    Rating    `json:"rating"`
	Comment   *string   `json:"comment,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}
