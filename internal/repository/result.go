package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"

	"github.com/qin-andy/ultimate-santorini-sub000/internal/entity"
)

const recentResults = 20

// ResultRepository keeps per-kind outcome counters and the latest finished rounds.
type ResultRepository struct {
	client *redis.Client
}

func NewResultRepository(client *redis.Client) *ResultRepository {
	return &ResultRepository{
		client: client,
	}
}

func countersKey(kind entity.GameKind) string {
	return "results:" + string(kind)
}

func recentKey(kind entity.GameKind) string {
	return "results:" + string(kind) + ":recent"
}

// Record counts the outcome and pushes the result onto the capped recent list.
func (that *ResultRepository) Record(ctx context.Context, result entity.RoundResult) error {
	resultJSON, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("failed to marshal result: %w", err)
	}

	_, err = that.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HIncrBy(ctx, countersKey(result.Kind), string(result.Outcome), 1)
		pipe.LPush(ctx, recentKey(result.Kind), resultJSON)
		pipe.LTrim(ctx, recentKey(result.Kind), 0, recentResults-1)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to record result: %w", err)
	}

	return nil
}

// Stats reads the counters and the recent results of kind, newest first.
func (that *ResultRepository) Stats(ctx context.Context, kind entity.GameKind) (*entity.Stats, error) {
	counters, err := that.client.HGetAll(ctx, countersKey(kind)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get counters: %w", err)
	}

	stats := &entity.Stats{
		Kind:     kind,
		Outcomes: make(map[entity.Outcome]int, len(counters)),
		Recent:   []entity.RoundResult{},
	}

	for outcome, value := range counters {
		count, err := strconv.Atoi(value)
		if err != nil {
			return nil, fmt.Errorf("failed to parse counter %s: %w", outcome, err)
		}
		stats.Outcomes[entity.Outcome(outcome)] = count
	}

	recent, err := that.client.LRange(ctx, recentKey(kind), 0, recentResults-1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get recent results: %w", err)
	}

	for _, raw := range recent {
		var result entity.RoundResult
		if err = json.Unmarshal([]byte(raw), &result); err != nil {
			return nil, fmt.Errorf("failed to unmarshal result: %w", err)
		}
		stats.Recent = append(stats.Recent, result)
	}

	return stats, nil
}
