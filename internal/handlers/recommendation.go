package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/cratedig/spindle/internal/services"
	"github.com/cratedig/spindle/pkg/models"
)

type RecommendationHandler struct {
	engine services.RecommendationEngineInterface
	logger *logrus.Logger
}

func NewRecommendationHandler(
	engine services.RecommendationEngineInterface,
	logger *logrus.Logger,
) *RecommendationHandler {
	return &RecommendationHandler{
		engine: engine,
		logger: logger,
	}
}

// Get serves GET /api/v1/recommendations/:userId. Query parameters:
// list_type (default top_picks), artist, genre, count.
func (h *RecommendationHandler) Get(c *gin.Context) {
	userID, err := uuid.Parse(c.Param("userId"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": gin.H{
				"code":    "INVALID_USER_ID",
				"message": "Invalid user ID format",
			},
		})
		return
	}

	listType := models.ListType(c.DefaultQuery("list_type", string(models.ListTopPicks)))

	count := 0
	if countStr := c.Query("count"); countStr != "" {
		if parsed, err := strconv.Atoi(countStr); err == nil && parsed > 0 && parsed <= 100 {
			count = parsed
		}
	}

	params := models.ListParams{
		Artist: c.Query("artist"),
		Genre:  c.Query("genre"),
		Count:  count,
	}

	list, err := h.engine.Recommend(c.Request.Context(), userID, listType, params)
	if err != nil {
		if errors.Is(err, services.ErrInvalidListType) {
			c.JSON(http.StatusBadRequest, gin.H{
				"error": gin.H{
					"code":    "INVALID_LIST_TYPE",
					"message": err.Error(),
				},
			})
			return
		}
		h.logger.WithError(err).WithField("user_id", userID).
			Error("Failed to generate recommendations")
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": gin.H{
				"code":    "RECOMMENDATION_GENERATION_FAILED",
				"message": "Failed to generate recommendations",
			},
		})
		return
	}

	c.JSON(http.StatusOK, list)
}
