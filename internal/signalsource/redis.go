package signalsource

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/predictdesk/polyrisk/internal/logger"
	"github.com/predictdesk/polyrisk/pkg/types"
)

// Submitter is the piece of the coordinator the source needs: take one
// signal to a terminal result.
type Submitter interface {
	Submit(ctx context.Context, signal types.Signal) types.ExecutionResult
}

// ResultRecorder persists a signal with its terminal result. Optional.
type ResultRecorder interface {
	RecordSignal(sig types.Signal, result types.ExecutionResult)
}

// RedisSource consumes signals strategy processes publish on a Redis
// stream and submits them to the coordinator. Each message is handled in
// its own goroutine: Submit blocks until the terminal result, and one slow
// settlement must not stall the stream behind it. The admission queue
// serializes the risky part.
type RedisSource struct {
	client    *redis.Client
	stream    string
	submitter Submitter
	recorder  ResultRecorder
	journal   *logger.Journal
}

// NewRedisSource connects to Redis and verifies the connection.
func NewRedisSource(addr, stream string, submitter Submitter, recorder ResultRecorder,
	journal *logger.Journal) (*RedisSource, error) {

	client := redis.NewClient(&redis.Options{Addr: addr})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &RedisSource{
		client:    client,
		stream:    stream,
		submitter: submitter,
		recorder:  recorder,
		journal:   journal,
	}, nil
}

// Run consumes the stream until ctx is cancelled. Only messages published
// after startup are read; signals from before a restart are stale by
// definition.
func (r *RedisSource) Run(ctx context.Context) error {
	r.journal.Info("Signal source consuming stream %q", r.stream)

	lastID := "$"
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		result, err := r.client.XRead(ctx, &redis.XReadArgs{
			Streams: []string{r.stream, lastID},
			Block:   5 * time.Second,
			Count:   10,
		}).Result()
		if err != nil {
			if err == redis.Nil {
				continue
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			r.journal.Warning("Signal stream read failed: %v", err)
			time.Sleep(time.Second)
			continue
		}

		for _, stream := range result {
			for _, message := range stream.Messages {
				lastID = message.ID
				signal, err := parseSignal(message)
				if err != nil {
					r.journal.Warning("Dropping unparseable signal %s: %v", message.ID, err)
					continue
				}
				go r.handle(ctx, signal)
			}
		}
	}
}

func (r *RedisSource) handle(ctx context.Context, signal types.Signal) {
	result := r.submitter.Submit(ctx, signal)
	if r.recorder != nil {
		r.recorder.RecordSignal(signal, result)
	}
}

// parseSignal decodes one stream entry. Strategies publish the signal as a
// JSON payload under "data", with the id duplicated as a top-level field
// for stream-side dedup.
func parseSignal(msg redis.XMessage) (types.Signal, error) {
	payload, ok := msg.Values["data"].(string)
	if !ok {
		return types.Signal{}, fmt.Errorf("message %s has no data field", msg.ID)
	}

	var signal types.Signal
	if err := json.Unmarshal([]byte(payload), &signal); err != nil {
		return types.Signal{}, fmt.Errorf("failed to unmarshal signal: %w", err)
	}
	if err := signal.Validate(); err != nil {
		return types.Signal{}, err
	}
	return signal, nil
}

// Close releases the Redis connection.
func (r *RedisSource) Close() error {
	return r.client.Close()
}
