package events

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"
)

// MemoryBus is an in-process Bus for tests and early development. It keeps
// the same semantics as the redis-backed bus: append-only streams, per-group
// cursors, explicit acknowledgment, pending redelivery and a dead-letter
// stream. It is not intended for production use.
type MemoryBus struct {
	mu      sync.Mutex
	seq     int64
	streams map[string][]MemoryMessage
	groups  map[string]*memoryGroup
}

// MemoryMessage is one logged entry, exposed for test assertions.
type MemoryMessage struct {
	ID      string
	Type    Type
	Payload map[string]any
	Reason  string // set only on dead-letter entries
}

type memoryGroup struct {
	cursor  int
	pending map[string]int // message id -> index into the stream slice
}

func NewMemoryBus() *MemoryBus {
	return &MemoryBus{
		streams: map[string][]MemoryMessage{},
		groups:  map[string]*memoryGroup{},
	}
}

func (b *MemoryBus) Publish(ctx context.Context, stream string, eventType Type, payload map[string]any) (string, error) {
	if stream == "" {
		return "", errors.New("events: stream is required")
	}
	if eventType == "" {
		return "", errors.New("events: event type is required")
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.seq++
	id := fmt.Sprintf("%d-0", b.seq)
	b.streams[stream] = append(b.streams[stream], MemoryMessage{ID: id, Type: eventType, Payload: payload})
	return id, nil
}

func (b *MemoryBus) Subscribe(ctx context.Context, stream, group, consumer string, h Handler) error {
	if stream == "" || group == "" || consumer == "" {
		return errors.New("events: stream, group and consumer are required")
	}
	if h == nil {
		return errors.New("events: handler is required")
	}

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		msg, ok := b.next(stream, group)
		if !ok {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(2 * time.Millisecond):
			}
			continue
		}

		err := h(ctx, msg.ID, msg.Type, msg.Payload)
		switch {
		case err == nil:
			b.ack(stream, group, msg.ID)
		case IsPermanent(err):
			b.deadLetter(stream, group, msg, err.Error())
		default:
			// Transient: stays pending; back off briefly so a failing
			// handler does not spin the test.
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(2 * time.Millisecond):
			}
		}
	}
}

func (b *MemoryBus) Reclaim(ctx context.Context, stream, group string) error {
	return ErrReclaimUnsupported
}

// next returns the oldest deliverable message: pending entries first (in log
// order), then the next unread entry, which becomes pending.
func (b *MemoryBus) next(stream, group string) (MemoryMessage, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	g := b.group(stream, group)
	log := b.streams[stream]

	if len(g.pending) > 0 {
		idxs := make([]int, 0, len(g.pending))
		for _, i := range g.pending {
			idxs = append(idxs, i)
		}
		sort.Ints(idxs)
		return log[idxs[0]], true
	}

	if g.cursor < len(log) {
		msg := log[g.cursor]
		g.pending[msg.ID] = g.cursor
		g.cursor++
		return msg, true
	}
	return MemoryMessage{}, false
}

func (b *MemoryBus) ack(stream, group, id string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.group(stream, group).pending, id)
}

func (b *MemoryBus) deadLetter(stream, group string, msg MemoryMessage, reason string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.seq++
	dlq := DLQStream(stream)
	b.streams[dlq] = append(b.streams[dlq], MemoryMessage{
		ID:      fmt.Sprintf("%d-0", b.seq),
		Type:    msg.Type,
		Payload: msg.Payload,
		Reason:  reason,
	})
	delete(b.group(stream, group).pending, msg.ID)
}

// group must be called with b.mu held.
func (b *MemoryBus) group(stream, group string) *memoryGroup {
	key := stream + "|" + group
	g, ok := b.groups[key]
	if !ok {
		g = &memoryGroup{pending: map[string]int{}}
		b.groups[key] = g
	}
	return g
}

// Messages returns a copy of a stream's log for assertions.
func (b *MemoryBus) Messages(stream string) []MemoryMessage {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]MemoryMessage, len(b.streams[stream]))
	copy(out, b.streams[stream])
	return out
}

// PendingCount reports unacknowledged deliveries for one group.
func (b *MemoryBus) PendingCount(stream, group string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.group(stream, group).pending)
}
