package journal

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// RedisSink appends each entry to a Redis stream.
type RedisSink struct {
	client *redis.Client
	stream string
	maxLen int64
}

func NewRedisSink(addr, stream string) *RedisSink {
	return &RedisSink{
		client: redis.NewClient(&redis.Options{Addr: addr}),
		stream: stream,
		maxLen: 10000,
	}
}

func (s *RedisSink) Publish(ctx context.Context, e Entry) error {
	err := s.client.XAdd(ctx, &redis.XAddArgs{
		Stream: s.stream,
		MaxLen: s.maxLen,
		Approx: true,
		Values: e.Values(),
	}).Err()
	if err != nil {
		return fmt.Errorf("journal: xadd %s: %w", s.stream, err)
	}
	return nil
}

func (s *RedisSink) Close() error {
	return s.client.Close()
}
