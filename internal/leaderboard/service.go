package leaderboard

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/vinhdn/quizio/internal/domain"
	"github.com/vinhdn/quizio/internal/errors"
	"github.com/vinhdn/quizio/internal/event"
)

type Config struct {
	EventBus *event.Bus
	Redis    redis.UniversalClient
	Prefix   string
}

// Service mirrors live session scores into a redis sorted set so standings
// can be queried without touching the game engine. Players are seeded on
// player.joined, scores written on score.updated, and the whole set dropped
// when the session ends.
type Service struct {
	eb     *event.Bus
	redis  redis.UniversalClient
	prefix string
}

func NewService(c Config) *Service {
	s := &Service{
		eb:     c.EventBus,
		redis:  c.Redis,
		prefix: c.Prefix,
	}

	s.eb.Subscribe(domain.EventNamePlayerJoined, func(ctx context.Context, e event.Event) error {
		return s.AddPlayer(ctx, e.(domain.EventPlayerJoined))
	})
	s.eb.Subscribe(domain.EventNameScoreUpdated, func(ctx context.Context, e event.Event) error {
		return s.UpdateLeaderboard(ctx, e.(domain.EventScoreUpdated))
	})
	s.eb.Subscribe(domain.EventNameGameEnded, func(ctx context.Context, e event.Event) error {
		return s.Clear(ctx, e.(domain.EventGameEnded).Result.Code)
	})

	return s
}

type GetLeaderboardRequest struct {
	Code string
}

// GetLeaderboard returns the standings for a session, all players sorted by
// score in descending order.
func (s *Service) GetLeaderboard(ctx context.Context, req GetLeaderboardRequest) (*domain.Leaderboard, error) {
	res, err := s.redis.ZRevRangeWithScores(ctx, s.getLeaderboardKey(req.Code), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("get leaderboard: %w", err)
	}

	if len(res) == 0 {
		return nil, errors.New(errors.CodeNotFound, errors.WithMessagef("leaderboard not found: code=%s", req.Code))
	}

	entries := make([]domain.LeaderboardEntry, 0, len(res))
	for _, z := range res {
		entries = append(entries, domain.LeaderboardEntry{
			PlayerName: z.Member.(string),
			Score:      z.Score,
		})
	}

	return &domain.Leaderboard{
		Code:    req.Code,
		Entries: entries,
	}, nil
}

// AddPlayer seeds a joining player into the standings at zero, so players
// who never score still appear. NX keeps a late join event from clobbering
// a score already on the board.
func (s *Service) AddPlayer(ctx context.Context, e domain.EventPlayerJoined) error {
	if err := s.redis.ZAddNX(ctx, s.getLeaderboardKey(e.Code), redis.Z{
		Score:  0,
		Member: e.Player.DisplayName,
	}).Err(); err != nil {
		return fmt.Errorf("add player: %w", err)
	}

	return nil
}

// UpdateLeaderboard overwrites the player's score in the session's standings.
func (s *Service) UpdateLeaderboard(ctx context.Context, e domain.EventScoreUpdated) error {
	if err := s.redis.ZAdd(ctx, s.getLeaderboardKey(e.Code), redis.Z{
		Score:  float64(e.Player.Score),
		Member: e.Player.DisplayName,
	}).Err(); err != nil {
		return fmt.Errorf("update leaderboard: %w", err)
	}

	return nil
}

// Clear drops a session's standings once the game is over.
func (s *Service) Clear(ctx context.Context, code string) error {
	if err := s.redis.Del(ctx, s.getLeaderboardKey(code)).Err(); err != nil {
		return fmt.Errorf("clear leaderboard: %w", err)
	}

	return nil
}

func (s *Service) getLeaderboardKey(code string) string {
	return fmt.Sprintf("%s:%s:leaderboard", s.prefix, code)
}
