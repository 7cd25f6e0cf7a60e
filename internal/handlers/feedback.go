package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"

	"github.com/cratedig/spindle/internal/services"
	"github.com/cratedig/spindle/pkg/models"
)

type FeedbackHandler struct {
	engine   services.RecommendationEngineInterface
	validate *validator.Validate
	logger   *logrus.Logger
}

func NewFeedbackHandler(
	engine services.RecommendationEngineInterface,
	logger *logrus.Logger,
) *FeedbackHandler {
	return &FeedbackHandler{
		engine:   engine,
		validate: validator.New(),
		logger:   logger,
	}
}

// Record serves POST /api/v1/feedback.
func (h *FeedbackHandler) Record(c *gin.Context) {
	var req models.FeedbackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": gin.H{
				"code":    "INVALID_REQUEST_BODY",
				"message": "Invalid request body format",
			},
		})
		return
	}

	if err := h.validate.Struct(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": gin.H{
				"code":    "VALIDATION_FAILED",
				"message": err.Error(),
			},
		})
		return
	}

	err := h.engine.SubmitFeedback(
		c.Request.Context(),
		req.UserID,
		req.Fingerprint,
		models.FeedbackKind(req.Kind),
		req.Context,
	)
	if err != nil {
		if errors.Is(err, services.ErrInvalidFeedbackKind) {
			c.JSON(http.StatusBadRequest, gin.H{
				"error": gin.H{
					"code":    "INVALID_FEEDBACK_KIND",
					"message": err.Error(),
				},
			})
			return
		}
		h.logger.WithError(err).WithField("user_id", req.UserID).
			Error("Failed to record feedback")
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": gin.H{
				"code":    "FEEDBACK_RECORDING_FAILED",
				"message": "Failed to record feedback",
			},
		})
		return
	}

	c.JSON(http.StatusAccepted, gin.H{"status": "accepted"})
}
