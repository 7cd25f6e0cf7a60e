package middleware

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/cratedig/spindle/internal/services"
)

// feedbackKey extracts the rate-limit key for a feedback submission: the
// user_id from the JSON body when one is present, otherwise the client
// IP. The body is restored so the handler can still bind it.
func feedbackKey(c *gin.Context) string {
	key := c.ClientIP()
	if c.Request.Body == nil {
		return key
	}
	raw, err := io.ReadAll(c.Request.Body)
	if err != nil {
		return key
	}
	c.Request.Body = io.NopCloser(bytes.NewReader(raw))

	var body struct {
		UserID string `json:"user_id"`
	}
	if json.Unmarshal(raw, &body) == nil && body.UserID != "" {
		key = body.UserID
	}
	return key
}

// FeedbackRateLimit throttles feedback submissions per user, falling back
// to per-IP when the body carries no user id.
func FeedbackRateLimit(rateLimitService *services.RateLimitService, logger *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := feedbackKey(c)

		allowed, info, err := rateLimitService.IsAllowed(key)
		if err != nil {
			logger.WithError(err).Error("Failed to check rate limit")
			// Fail open so a Redis outage does not block feedback
			c.Next()
			return
		}

		c.Header("X-RateLimit-Limit", strconv.Itoa(info.Limit))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(info.Remaining))
		c.Header("X-RateLimit-Reset", strconv.FormatInt(info.ResetTime, 10))

		if !allowed {
			logger.WithFields(logrus.Fields{
				"key":   key,
				"limit": info.Limit,
			}).Warn("Feedback rate limit exceeded")

			c.JSON(http.StatusTooManyRequests, gin.H{
				"error": gin.H{
					"code":    "RATE_LIMIT_EXCEEDED",
					"message": "Rate limit exceeded. Please try again later.",
				},
				"rate_limit": info,
			})
			c.Abort()
			return
		}

		c.Next()
	}
}
