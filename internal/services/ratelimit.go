package services

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/cratedig/spindle/internal/config"
)

// RateLimitInfo describes a caller's remaining feedback budget.
type RateLimitInfo struct {
	Limit     int   `json:"limit"`
	Remaining int   `json:"remaining"`
	ResetTime int64 `json:"reset_time"`
}

// RateLimitService enforces a per-user sliding window on feedback writes
// using a Redis sorted set of request timestamps.
type RateLimitService struct {
	config      *config.RateLimitConfig
	logger      *logrus.Logger
	redisClient *redis.Client
}

func NewRateLimitService(cfg *config.RateLimitConfig, logger *logrus.Logger, redisClient *redis.Client) *RateLimitService {
	return &RateLimitService{
		config:      cfg,
		logger:      logger,
		redisClient: redisClient,
	}
}

func (s *RateLimitService) CheckLimit(userID string) (*RateLimitInfo, error) {
	limit := s.config.FeedbackPerWindow
	window := s.config.Window

	key := fmt.Sprintf("rate_limit:feedback:%s", userID)

	now := time.Now()
	windowStart := now.Add(-window)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	pipe := s.redisClient.Pipeline()
	pipe.ZRemRangeByScore(ctx, key, "0", strconv.FormatInt(windowStart.Unix(), 10))
	countCmd := pipe.ZCard(ctx, key)
	pipe.ZAdd(ctx, key, redis.Z{
		Score:  float64(now.Unix()),
		Member: fmt.Sprintf("%d", now.UnixNano()),
	})
	pipe.Expire(ctx, key, window)

	_, err := pipe.Exec(ctx)
	if err != nil {
		s.logger.WithError(err).Error("Failed to execute rate limit pipeline")
		// Permissive when Redis is down; feedback writes are not worth a
		// hard dependency on the hot tier.
		return &RateLimitInfo{
			Limit:     limit,
			Remaining: limit - 1,
			ResetTime: now.Add(window).Unix(),
		}, nil
	}

	remaining := limit - int(countCmd.Val())
	if remaining < 0 {
		remaining = 0
	}

	return &RateLimitInfo{
		Limit:     limit,
		Remaining: remaining,
		ResetTime: now.Add(window).Unix(),
	}, nil
}

func (s *RateLimitService) IsAllowed(userID string) (bool, *RateLimitInfo, error) {
	info, err := s.CheckLimit(userID)
	if err != nil {
		return false, nil, err
	}
	return info.Remaining > 0, info, nil
}
