package handlers

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"time"
	"unicode/utf8"

	"procurement-assistant/logger"
	"procurement-assistant/models"
	"procurement-assistant/service"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	maxQuestionRunes = 4000
	answerApology    = "Извините, не удалось подготовить ответ. Попробуйте повторить вопрос позже."
)

// Answerer runs the answer pipeline
type Answerer interface {
	Answer(ctx context.Context, req service.AnswerRequest) (*service.AnswerResult, error)
}

// AccessChecker decides whether a user may ask right now
type AccessChecker interface {
	IsBanned(ctx context.Context, userID string) (bool, error)
	CheckRateLimit(userID string) (bool, time.Duration)
}

// AnswerHandler handles HTTP requests for questions
type AnswerHandler struct {
	answers Answerer
	guard   AccessChecker
	log     *logger.Logger
}

// NewAnswerHandler creates a new answer handler
func NewAnswerHandler(answers Answerer, guard AccessChecker, log *logger.Logger) *AnswerHandler {
	if log == nil {
		log = logger.Nop()
	}
	return &AnswerHandler{answers: answers, guard: guard, log: log}
}

// AnswerRequest represents the request body for asking a question
type AnswerRequest struct {
	UserID   string        `json:"user_id" binding:"required"`
	Question string        `json:"question" binding:"required"`
	History  []models.Turn `json:"history" binding:"omitempty,dive"`
}

// Answer handles POST /api/answer
func (h *AnswerHandler) Answer(c *gin.Context) {
	var req AnswerRequest
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
	if utf8.RuneCountInString(req.Question) > maxQuestionRunes {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "QUESTION_TOO_LONG",
				"message": fmt.Sprintf("Question must be at most %d characters", maxQuestionRunes),
			},
		})
		return
	}

	requestID := uuid.New().String()
	c.Header("X-Request-ID", requestID)
	log := h.log.With("request_id", requestID, "user_id", req.UserID)
	ctx := c.Request.Context()

	if h.guard != nil {
		banned, err := h.guard.IsBanned(ctx, req.UserID)
		if err != nil {
			log.Warn("Ban check failed, letting the request through", "error", err)
		}
		if banned {
			c.JSON(http.StatusForbidden, gin.H{
				"success": false,
				"error": gin.H{
					"code":    "USER_BANNED",
					"message": "Доступ к сервису ограничен",
				},
			})
			return
		}

		if ok, wait := h.guard.CheckRateLimit(req.UserID); !ok {
			seconds := int(math.Ceil(wait.Seconds()))
			c.Header("Retry-After", strconv.Itoa(seconds))
			c.JSON(http.StatusTooManyRequests, gin.H{
				"success": false,
				"error": gin.H{
					"code":    "RATE_LIMITED",
					"message": fmt.Sprintf("Слишком много запросов. Подождите %d сек.", seconds),
				},
			})
			return
		}
	}

	result, err := h.answers.Answer(ctx, service.AnswerRequest{
		UserID:   req.UserID,
		Question: req.Question,
		History:  req.History,
	})
	if err != nil {
		if errors.Is(err, service.ErrEmptyQuestion) {
			c.JSON(http.StatusBadRequest, gin.H{
				"success": false,
				"error": gin.H{
					"code":    "EMPTY_QUESTION",
					"message": "Question is empty",
				},
			})
			return
		}
		log.Error("Failed to answer question", "error", err)
		c.JSON(http.StatusBadGateway, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "ANSWER_FAILED",
				"message": answerApology,
			},
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":    true,
		"request_id": requestID,
		"data":       result,
	})
}
