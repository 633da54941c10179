package logger

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// Sink receives every completed row of the log
type Sink interface {
	Publish(ctx context.Context, iteration int, row map[string]float64) error
	Close() error
}

// RedisSink appends rows to a redis stream
type RedisSink struct {
	Stream string
	client *redis.Client
}

var _ Sink = &RedisSink{}

func NewRedisSink(addr, stream string) *RedisSink {
	return &RedisSink{
		Stream: stream,
		client: redis.NewClient(&redis.Options{
			Addr: addr,
		}),
	}
}

// Ping checks that the server is reachable
func (r *RedisSink) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func (r *RedisSink) Publish(ctx context.Context, iteration int, row map[string]float64) error {
	values := make(map[string]interface{}, len(row)+1)
	values["iteration"] = iteration
	for k, v := range row {
		values[k] = v
	}
	err := r.client.XAdd(ctx, &redis.XAddArgs{
		Stream: r.Stream,
		Values: values,
	}).Err()
	if err != nil {
		return fmt.Errorf("publish to %s: %w", r.Stream, err)
	}
	return nil
}

func (r *RedisSink) Close() error {
	return r.client.Close()
}
