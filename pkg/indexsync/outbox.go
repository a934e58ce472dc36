package indexsync

import (
	"context"
	"fmt"
	"strconv"

	"github.com/volunteermatching/volops/pkg/common"
)

// RedisOutbox queues index operations on a Redis Stream consumed by the
// Replayer. Each operation is delivered to one gateway replica.
type RedisOutbox struct {
	stream *common.EventStream
}

// NewRedisOutbox creates an outbox on common.Keys.IndexOutbox()
func NewRedisOutbox(rdb *common.RedisClient, group, consumer string) *RedisOutbox {
	return &RedisOutbox{
		stream: common.NewEventStream(rdb, common.Keys.IndexOutbox(), group, consumer),
	}
}

// Enqueue appends op to the outbox
func (o *RedisOutbox) Enqueue(ctx context.Context, op Operation) error {
	_, err := o.stream.Emit(ctx, encodeOperation(op))
	if err != nil {
		return fmt.Errorf("failed to enqueue index operation: %w", err)
	}
	return nil
}

// Len returns the number of operations in the outbox stream
func (o *RedisOutbox) Len(ctx context.Context) (int64, error) {
	return o.stream.Len(ctx)
}

func encodeOperation(op Operation) map[string]any {
	return map[string]any{
		"action":         string(op.Action),
		"opportunity_id": strconv.FormatUint(uint64(op.OpportunityID), 10),
		"attempt":        strconv.Itoa(op.Attempt),
	}
}

func decodeOperation(data map[string]any) (Operation, error) {
	action, _ := data["action"].(string)
	switch Action(action) {
	case ActionUpsert, ActionDelete:
	default:
		return Operation{}, fmt.Errorf("unknown action %q", action)
	}

	idStr, _ := data["opportunity_id"].(string)
	id, err := strconv.ParseUint(idStr, 10, 64)
	if err != nil || id == 0 {
		return Operation{}, fmt.Errorf("invalid opportunity_id %q", idStr)
	}

	attempt := 1
	if attemptStr, ok := data["attempt"].(string); ok {
		if n, err := strconv.Atoi(attemptStr); err == nil && n > 0 {
			attempt = n
		}
	}

	return Operation{Action: Action(action), OpportunityID: uint(id), Attempt: attempt}, nil
}
