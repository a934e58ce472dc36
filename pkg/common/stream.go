package common

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

const streamMaxLen = 10000

// StreamHandler processes one stream message. A nil return acknowledges the
// message; an error leaves it pending so it is redelivered on the next
// consumer start.
type StreamHandler func(ctx context.Context, id string, data map[string]any) error

// EventStream is an at-least-once work queue on a Redis Stream consumer
// group. Each message is delivered to exactly one consumer in the group.
type EventStream struct {
	rdb      *RedisClient
	stream   string
	group    string
	consumer string // unique per gateway replica
}

// NewEventStream creates a stream producer/consumer.
// stream: the Redis Stream key (e.g., common.Keys.IndexOutbox())
// group: consumer group name (same across all replicas)
// consumer: unique per replica (e.g., hostname)
func NewEventStream(rdb *RedisClient, stream, group, consumer string) *EventStream {
	return &EventStream{
		rdb:      rdb,
		stream:   stream,
		group:    group,
		consumer: consumer,
	}
}

// Emit appends a message to the stream and returns its id
func (s *EventStream) Emit(ctx context.Context, data map[string]any) (string, error) {
	return s.rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: s.stream,
		MaxLen: streamMaxLen,
		Approx: true,
		Values: data,
	}).Result()
}

// EnsureGroup creates the consumer group if it does not exist yet
func (s *EventStream) EnsureGroup(ctx context.Context) error {
	err := s.rdb.XGroupCreateMkStream(ctx, s.stream, s.group, "0").Err()
	if err != nil && !strings.HasPrefix(err.Error(), "BUSYGROUP") {
		return err
	}
	return nil
}

// Read fetches up to count messages. With pending set it returns messages
// already delivered to this consumer but never acknowledged. A negative
// block returns immediately when nothing is available.
func (s *EventStream) Read(ctx context.Context, pending bool, count int64, block time.Duration) ([]redis.XMessage, error) {
	start := ">"
	if pending {
		start = "0"
	}

	entries, err := s.rdb.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    s.group,
		Consumer: s.consumer,
		Streams:  []string{s.stream, start},
		Count:    count,
		Block:    block,
	}).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	if len(entries) == 0 {
		return nil, nil
	}
	return entries[0].Messages, nil
}

// Process runs handler over msgs and acknowledges the ones it accepted.
// It returns the number of acknowledged messages.
func (s *EventStream) Process(ctx context.Context, msgs []redis.XMessage, handler StreamHandler) int {
	acked := 0
	for _, msg := range msgs {
		data := make(map[string]any, len(msg.Values))
		for k, v := range msg.Values {
			data[k] = v
		}

		if err := handler(ctx, msg.ID, data); err != nil {
			log.Warn().Err(err).Str("stream", s.stream).Str("id", msg.ID).Msg("stream: handler failed, leaving message pending")
			continue
		}

		if err := s.rdb.XAck(ctx, s.stream, s.group, msg.ID).Err(); err != nil {
			log.Warn().Err(err).Str("stream", s.stream).Str("id", msg.ID).Msg("stream: ack failed")
			continue
		}
		acked++
	}
	return acked
}

// Consume reads messages until ctx is cancelled. Messages left pending by a
// previous run of this consumer are replayed once before new ones are read.
func (s *EventStream) Consume(ctx context.Context, block time.Duration, handler StreamHandler) {
	if err := s.EnsureGroup(ctx); err != nil {
		log.Warn().Err(err).Str("stream", s.stream).Str("group", s.group).Msg("stream: group create")
	}

	log.Info().
		Str("stream", s.stream).
		Str("group", s.group).
		Str("consumer", s.consumer).
		Msg("stream consumer started")

	if pending, err := s.Read(ctx, true, 100, -1); err != nil {
		log.Warn().Err(err).Str("stream", s.stream).Msg("stream: pending read error")
	} else if len(pending) > 0 {
		log.Info().Int("count", len(pending)).Str("stream", s.stream).Msg("stream: replaying pending messages")
		s.Process(ctx, pending, handler)
	}

	for {
		if ctx.Err() != nil {
			return
		}

		msgs, err := s.Read(ctx, false, 10, block)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Warn().Err(err).Str("stream", s.stream).Msg("stream: read error")
			time.Sleep(time.Second)
			continue
		}

		s.Process(ctx, msgs, handler)
	}
}

// Len returns the number of messages currently in the stream
func (s *EventStream) Len(ctx context.Context) (int64, error) {
	return s.rdb.XLen(ctx, s.stream).Result()
}
