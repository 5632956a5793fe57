package events

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// Handler processes one delivered message. Returning nil acknowledges the
// message; returning an error leaves it pending for redelivery. Wrap the
// error with Permanent to forward the message to the dead-letter stream
// instead of retrying.
type Handler func(ctx context.Context, messageID string, eventType Type, payload map[string]any) error

// Bus is a durable append-only log with consumer-group fan-out.
//
// Delivery is at-least-once: a message leaves the pending set only after
// explicit acknowledgment. Multiple processes may subscribe under the same
// group name; each message goes to exactly one consumer in the group.
type Bus interface {
	// Publish appends one event to the stream and returns the log-assigned
	// message id.
	Publish(ctx context.Context, stream string, eventType Type, payload map[string]any) (string, error)

	// Subscribe reads messages for (stream, group, consumer) until ctx is
	// cancelled, invoking h for each delivery. Group creation is idempotent
	// and lazily self-heals if the group or stream is missing.
	Subscribe(ctx context.Context, stream, group, consumer string, h Handler) error

	// Reclaim would re-deliver messages stuck in another consumer's pending
	// set. It is a declared-but-unimplemented path; see ErrReclaimUnsupported.
	Reclaim(ctx context.Context, stream, group string) error
}

// ErrReclaimUnsupported marks the pending-reclaim path as not implemented.
// Stuck pending entries must be inspected and re-driven manually (XAUTOCLAIM).
var ErrReclaimUnsupported = errors.New("events: pending reclaim not implemented")

// DLQStream names the dead-letter stream for a source stream.
func DLQStream(stream string) string { return stream + ":dlq" }

type permanentError struct{ err error }

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks a handler error as non-retryable. The bus forwards the
// message to the dead-letter stream and acknowledges it.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsPermanent reports whether err was wrapped with Permanent.
func IsPermanent(err error) bool {
	var pe *permanentError
	return errors.As(err, &pe)
}

const envelopeField = "envelope"

// RedisBus implements Bus on Redis Streams.
type RedisBus struct {
	rdb *redis.Client
	log *slog.Logger

	// blockWait bounds one blocking XREADGROUP call so cancellation is
	// observed between reads.
	blockWait time.Duration
}

func NewRedisBus(rdb *redis.Client, log *slog.Logger, blockWait time.Duration) *RedisBus {
	if blockWait <= 0 {
		blockWait = 5 * time.Second
	}
	if log == nil {
		log = slog.Default()
	}
	return &RedisBus{rdb: rdb, log: log, blockWait: blockWait}
}

func (b *RedisBus) Publish(ctx context.Context, stream string, eventType Type, payload map[string]any) (string, error) {
	if stream == "" {
		return "", errors.New("events: stream is required")
	}
	if eventType == "" {
		return "", errors.New("events: event type is required")
	}

	raw, err := EncodeEnvelope(eventType, time.Now(), payload)
	if err != nil {
		return "", err
	}

	id, err := b.rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: stream,
		Values: map[string]any{envelopeField: string(raw)},
	}).Result()
	if err != nil {
		return "", fmt.Errorf("events: publish to %s: %w", stream, err)
	}
	return id, nil
}

func (b *RedisBus) Subscribe(ctx context.Context, stream, group, consumer string, h Handler) error {
	if stream == "" || group == "" || consumer == "" {
		return errors.New("events: stream, group and consumer are required")
	}
	if h == nil {
		return errors.New("events: handler is required")
	}

	if err := b.ensureGroup(ctx, stream, group); err != nil {
		return err
	}

	// First drain this consumer's own pending backlog ("0"), then follow the
	// live cursor (">"). A consumer that crashed before acknowledging picks
	// its messages back up here on restart.
	cursor := "0"
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		streams, err := b.rdb.XReadGroup(ctx, &redis.XReadGroupArgs{
			Group:    group,
			Consumer: consumer,
			Streams:  []string{stream, cursor},
			Count:    1,
			Block:    b.blockWait,
		}).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				// No messages within the block window.
				continue
			}
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return err
			}
			if isNoGroupErr(err) {
				// Stream or group vanished (flushed redis, first boot).
				if err := b.ensureGroup(ctx, stream, group); err != nil {
					return err
				}
				continue
			}
			return fmt.Errorf("events: read %s/%s: %w", stream, group, err)
		}

		delivered, settled := 0, 0
		for _, s := range streams {
			for _, msg := range s.Messages {
				delivered++
				if b.dispatch(ctx, stream, group, msg, h) {
					settled++
				}
			}
		}
		if cursor == "0" {
			if delivered == 0 {
				// Backlog drained; switch to new messages.
				cursor = ">"
			} else if settled < delivered {
				// Backlog reads return without blocking, so an entry that
				// keeps failing would be re-read in a tight loop. Pace it.
				select {
				case <-ctx.Done():
					return ctx.Err()
				case <-time.After(b.blockWait):
				}
			}
		}
	}
}

// dispatch runs the handler for one message and settles it: ack on success,
// dead-letter on permanent failure, leave pending otherwise. It reports
// whether the message was settled (acked or dead-lettered).
func (b *RedisBus) dispatch(ctx context.Context, stream, group string, msg redis.XMessage, h Handler) bool {
	raw, ok := msg.Values[envelopeField].(string)
	if !ok {
		return b.deadLetter(ctx, stream, group, msg.ID, "", "missing envelope field")
	}

	eventType, payload, err := DecodeEnvelope([]byte(raw))
	if err != nil {
		// Malformed entries can never succeed on redelivery.
		return b.deadLetter(ctx, stream, group, msg.ID, raw, err.Error())
	}

	if err := h(ctx, msg.ID, eventType, payload); err != nil {
		if IsPermanent(err) {
			return b.deadLetter(ctx, stream, group, msg.ID, raw, err.Error())
		}
		// Transient: stay pending for redelivery.
		b.log.Warn("message handling failed, left pending",
			"stream", stream, "group", group, "message_id", msg.ID, "err", err)
		return false
	}

	if err := b.rdb.XAck(ctx, stream, group, msg.ID).Err(); err != nil {
		b.log.Error("ack failed", "stream", stream, "group", group, "message_id", msg.ID, "err", err)
	}
	return true
}

// deadLetter forwards a message to <stream>:dlq with the failure reason and
// acknowledges the original so it stops being redelivered. Returns false if
// the forward failed and the original stays pending.
func (b *RedisBus) deadLetter(ctx context.Context, stream, group, messageID, envelope, reason string) bool {
	_, err := b.rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: DLQStream(stream),
		Values: map[string]any{
			envelopeField: envelope,
			"origin_id":   messageID,
			"group":       group,
			"reason":      reason,
		},
	}).Result()
	if err != nil {
		// Keep the original pending rather than losing it.
		b.log.Error("dead-letter forward failed", "stream", stream, "message_id", messageID, "err", err)
		return false
	}
	b.log.Warn("message dead-lettered", "stream", stream, "group", group, "message_id", messageID, "reason", reason)
	if err := b.rdb.XAck(ctx, stream, group, messageID).Err(); err != nil {
		b.log.Error("ack after dead-letter failed", "stream", stream, "message_id", messageID, "err", err)
	}
	return true
}

func (b *RedisBus) Reclaim(ctx context.Context, stream, group string) error {
	return ErrReclaimUnsupported
}

// ensureGroup creates the consumer group (and the stream, via MKSTREAM) if
// either does not exist yet. Creation is idempotent.
func (b *RedisBus) ensureGroup(ctx context.Context, stream, group string) error {
	err := b.rdb.XGroupCreateMkStream(ctx, stream, group, "0").Err()
	if err != nil && !isBusyGroupErr(err) {
		return fmt.Errorf("events: create group %s/%s: %w", stream, group, err)
	}
	return nil
}

func isBusyGroupErr(err error) bool {
	return err != nil && strings.HasPrefix(err.Error(), "BUSYGROUP")
}

func isNoGroupErr(err error) bool {
	return err != nil && strings.HasPrefix(err.Error(), "NOGROUP")
}
