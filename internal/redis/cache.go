package redisclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// DatesCache stores each doctor's available calendar dates as a JSON list.
type DatesCache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewDatesCache(client *redis.Client, ttl time.Duration) *DatesCache {
	return &DatesCache{client: client, ttl: ttl}
}

func datesKey(doctorID uuid.UUID) string {
	return fmt.Sprintf("avail:dates:%s", doctorID)
}

func (c *DatesCache) GetDates(ctx context.Context, doctorID uuid.UUID) ([]time.Time, bool, error) {
	raw, err := c.client.Get(ctx, datesKey(doctorID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("get cached dates: %w", err)
	}

	var dates []time.Time
	if err := json.Unmarshal(raw, &dates); err != nil {
		return nil, false, fmt.Errorf("decode cached dates: %w", err)
	}
	return dates, true, nil
}

func (c *DatesCache) SetDates(ctx context.Context, doctorID uuid.UUID, dates []time.Time) error {
	raw, err := json.Marshal(dates)
	if err != nil {
		return fmt.Errorf("encode dates: %w", err)
	}
	if err := c.client.Set(ctx, datesKey(doctorID), raw, c.ttl).Err(); err != nil {
		return fmt.Errorf("set cached dates: %w", err)
	}
	return nil
}

func (c *DatesCache) Invalidate(ctx context.Context, doctorID uuid.UUID) error {
	if err := c.client.Del(ctx, datesKey(doctorID)).Err(); err != nil {
		return fmt.Errorf("invalidate cached dates: %w", err)
	}
	return nil
}
