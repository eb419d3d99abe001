package service

import (
	"context"
	"errors"
	"log"

	"codeduel/internal/common"
	"codeduel/internal/domain/model"
	"codeduel/internal/domain/repository"

	"github.com/redis/go-redis/v9"
)

const leaderboardKey = "codeduel:leaderboard:wins"

// LeaderboardService keeps a wins ranking in a Redis sorted set. The users
// table remains the durable counter; the sorted set is a read-optimized
// cache rebuilt opportunistically on access misses.
type LeaderboardService struct {
	rdb      *redis.Client
	userRepo repository.UserRepository
}

func NewLeaderboardService(rdb *redis.Client, userRepo repository.UserRepository) *LeaderboardService {
	return &LeaderboardService{rdb: rdb, userRepo: userRepo}
}

// RecordWin bumps the winner's score. Called after the winner-declaration
// transaction commits.
func (s *LeaderboardService) RecordWin(ctx context.Context, userID string) error {
	if err := s.rdb.ZIncrBy(ctx, leaderboardKey, 1, userID).Err(); err != nil {
		return common.Errorf("leaderboard zincrby: %w", err)
	}
	return nil
}

// Top returns the highest-ranked players with usernames resolved. Entries
// whose user row vanished are skipped rather than failing the whole board.
func (s *LeaderboardService) Top(ctx context.Context, limit int) ([]model.LeaderboardEntry, error) {
	if limit <= 0 || limit > 100 {
		limit = 10
	}

	scores, err := s.rdb.ZRevRangeWithScores(ctx, leaderboardKey, 0, int64(limit-1)).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, common.Errorf("leaderboard zrevrange: %w", err)
	}

	entries := make([]model.LeaderboardEntry, 0, len(scores))
	for i, z := range scores {
		userID, ok := z.Member.(string)
		if !ok {
			continue
		}
		user, err := s.userRepo.FindByID(ctx, userID)
		if err != nil {
			log.Printf("WARN: leaderboard entry %s has no user row: %v", userID, err)
			continue
		}
		entries = append(entries, model.LeaderboardEntry{
			Rank:     i + 1,
			UserID:   userID,
			Username: user.Username,
			Wins:     int(z.Score),
		})
	}
	return entries, nil
}
