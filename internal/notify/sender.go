package notify

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/google/uuid"
)

var ErrInvalidMessage = errors.New("notify: invalid message")

// Message is one outbound email.
type Message struct {
	To         string
	Subject    string
	Body       string
	TemplateID string
	Variables  map[string]any
}

// SendResult reports the collaborator's outcome.
type SendResult struct {
	Success   bool
	MessageID string
}

// Sender is the mail collaborator boundary. Implementations must not retry
// internally unless they are idempotent; delivery upstream is at-least-once.
type Sender interface {
	Send(ctx context.Context, msg Message) (SendResult, error)
}

// LogSender logs outbound mail instead of sending it. Used when SMTP is not
// configured (local/dev environments).
type LogSender struct {
	Log *slog.Logger
}

func (s LogSender) Send(ctx context.Context, msg Message) (SendResult, error) {
	if msg.To == "" {
		return SendResult{}, ErrInvalidMessage
	}
	log := s.Log
	if log == nil {
		log = slog.Default()
	}
	id := uuid.NewString()
	log.Info("email suppressed (no smtp configured)",
		"to", msg.To, "subject", msg.Subject, "message_id", id)
	return SendResult{Success: true, MessageID: id}, nil
}

// MemorySender records messages for tests.
type MemorySender struct {
	mu       sync.Mutex
	messages []Message

	// Err, when set, is returned from every Send.
	Err error
}

func NewMemorySender() *MemorySender { return &MemorySender{} }

func (s *MemorySender) Send(ctx context.Context, msg Message) (SendResult, error) {
	if msg.To == "" {
		return SendResult{}, ErrInvalidMessage
	}
	if s.Err != nil {
		return SendResult{}, s.Err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = append(s.messages, msg)
	return SendResult{Success: true, MessageID: uuid.NewString()}, nil
}

func (s *MemorySender) Messages() []Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Message, len(s.messages))
	copy(out, s.messages)
	return out
}
