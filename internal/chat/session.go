package chat

import (
	"context"
	"fmt"
	"log"

	"github.com/xiaot623/dalia/internal/domain"
)

// Session wraps one conversation's use of the agent. It holds no
// transcript; the agent is the source of truth for history. Turns on the
// same session run one at a time.
type Session struct {
	id     string
	agent  Agent
	buffer int
	turn   chan struct{}
}

func newSession(id string, agent Agent, buffer int) *Session {
	return &Session{
		id:     id,
		agent:  agent,
		buffer: buffer,
		turn:   make(chan struct{}, 1),
	}
}

// ID returns the conversation id.
func (s *Session) ID() string { return s.id }

func (s *Session) acquire(ctx context.Context) error {
	select {
	case s.turn <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Session) release() { <-s.turn }

// Send runs one turn to completion and returns the assistant reply.
// Agent errors are returned unchanged.
func (s *Session) Send(ctx context.Context, text string) (Message, error) {
	if text == "" {
		return Message{}, ErrEmptyMessage
	}
	if err := s.acquire(ctx); err != nil {
		return Message{}, err
	}
	defer s.release()

	reply, err := s.agent.Run(ctx, s.id, text)
	if err != nil {
		return Message{}, err
	}
	return Message{Role: string(domain.RoleAssistant), Content: reply}, nil
}

// Stream starts one streamed turn and returns its event feed. A single
// producer goroutine fills the channel and closes it when the agent
// returns; the close is the end-of-stream signal. Agent failures arrive as
// one EventError, success as one EventCompleted. Cancelling ctx stops the
// producer.
func (s *Session) Stream(ctx context.Context, text string) (<-chan Event, error) {
	if text == "" {
		return nil, ErrEmptyMessage
	}

	ch := make(chan Event, s.buffer)
	emit := func(ev Event) error {
		select {
		case ch <- ev:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	go func() {
		defer close(ch)

		if err := s.acquire(ctx); err != nil {
			return
		}
		defer s.release()

		defer func() {
			if r := recover(); r != nil {
				log.Printf("ERROR: agent stream panicked for session %s: %v", s.id, r)
				_ = emit(Event{Kind: EventError, Error: fmt.Sprintf("internal error: %v", r)})
			}
		}()

		if err := s.agent.RunStream(ctx, s.id, text, emit); err != nil {
			if ctx.Err() != nil {
				return
			}
			_ = emit(Event{Kind: EventError, Error: err.Error()})
			return
		}
		_ = emit(Event{Kind: EventCompleted})
	}()

	return ch, nil
}

// Messages returns the user and assistant messages of the conversation.
// History is best-effort: any failure yields an empty list.
func (s *Session) Messages(ctx context.Context) []Message {
	stored, err := s.agent.MessagesForSession(ctx, s.id)
	if err != nil {
		log.Printf("WARN: failed to load messages for session %s: %v", s.id, err)
		return []Message{}
	}

	messages := make([]Message, 0, len(stored))
	for _, m := range stored {
		if m.Role != domain.RoleUser && m.Role != domain.RoleAssistant {
			continue
		}
		messages = append(messages, Message{Role: string(m.Role), Content: m.Content})
	}
	return messages
}
