package handlers

import (
	"context"
	"net/http"
	"strings"
	"unicode/utf8"

	"procurement-assistant/logger"
	"procurement-assistant/models"

	"github.com/gin-gonic/gin"
)

const (
	maxFeedbackQuestionRunes = 2000
	maxFeedbackAnswerRunes   = 4000
	maxFeedbackCommentRunes  = 1000
)

// FeedbackStore persists answer ratings
type FeedbackStore interface {
	Create(ctx context.Context, fb *models.Feedback) error
}

// FeedbackHandler handles HTTP requests for answer ratings
type FeedbackHandler struct {
	store FeedbackStore
	log   *logger.Logger
}

// NewFeedbackHandler creates a new feedback handler
func NewFeedbackHandler(store FeedbackStore, log *logger.Logger) *FeedbackHandler {
	if log == nil {
		log = logger.Nop()
	}
	return &FeedbackHandler{store: store, log: log}
}

// FeedbackRequest represents the request body for rating an answer
type FeedbackRequest struct {
	UserID    string  `json:"user_id" binding:"required"`
	MessageID string  `json:"message_id"`
	Question  string  `json:"question" binding:"required"`
	Answer    string  `json:"answer" binding:"required"`
	Rating    string  `json:"rating" binding:"required,oneof=like dislike"`
	Comment   *string `json:"comment"`
}

// CreateFeedback handles POST /api/feedback
func (h *FeedbackHandler) CreateFeedback(c *gin.Context) {
	var req FeedbackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "INVALID_REQUEST",
				"message": err.Error(),
			},
		})
		return
	}

	fb := &models.Feedback{
		UserID:    req.UserID,
		MessageID: req.MessageID,
		Question:  truncate(req.Question, maxFeedbackQuestionRunes),
		Answer:    truncate(req.Answer, maxFeedbackAnswerRunes),
		Rating:    models.Rating(req.Rating),
	}
	if req.Comment != nil {
		if comment := strings.TrimSpace(*req.Comment); comment != "" {
			comment = truncate(comment, maxFeedbackCommentRunes)
			fb.Comment = &comment
		}
	}

	if err := h.store.Create(c.Request.Context(), fb); err != nil {
		h.log.Error("Failed to save feedback", "user_id", req.UserID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "FEEDBACK_FAILED",
				"message": "Failed to save feedback",
			},
		})
		return
	}

	h.log.Info("Feedback saved", "user_id", req.UserID, "rating", req.Rating)
	c.JSON(http.StatusCreated, gin.H{
		"success": true,
		"data":    fb,
	})
}

// truncate cuts s to at most n runes
func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}
