// Package chat holds the conversation registry, the per-conversation
// session wrapper and the relay that turns a streamed agent run into
// client frames.
package chat

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/xiaot623/dalia/internal/domain"
)

// ErrEmptyMessage is returned when a turn is started without text.
var ErrEmptyMessage = errors.New("message must not be empty")

// Message is one user or assistant transcript entry as shown to clients.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// EventKind tags an Event.
type EventKind string

const (
	EventContent   EventKind = "content"
	EventError     EventKind = "error"
	EventCompleted EventKind = "completed"
)

// Event is one unit of streamed agent output.
type Event struct {
	Kind    EventKind
	Content string
	Error   string
}

// Agent is the capability a Session drives. Implementations key all
// transcript state by session id.
type Agent interface {
	// Run produces the full reply for text.
	Run(ctx context.Context, sessionID, text string) (string, error)
	// RunStream emits content events in order and returns when generation
	// ends. A returned error ends the stream with an error event.
	RunStream(ctx context.Context, sessionID, text string, emit func(Event) error) error
	// MessagesForSession returns the stored transcript, oldest first.
	MessagesForSession(ctx context.Context, sessionID string) ([]domain.Message, error)
}

// FrameType is the "type" discriminator of a client frame.
type FrameType string

const (
	FrameStart    FrameType = "start"
	FrameContent  FrameType = "content"
	FrameError    FrameType = "error"
	FrameComplete FrameType = "complete"
)

// Frame is one message sent to a streaming client.
type Frame struct {
	Type           FrameType
	ConversationID string
	Chunk          string
	Error          string
	Messages       []Message
}

// FrameWriter delivers frames to a client, in call order.
type FrameWriter interface {
	WriteFrame(Frame) error
}

func StartFrame(conversationID string) Frame {
	return Frame{Type: FrameStart, ConversationID: conversationID}
}

func ContentFrame(chunk string) Frame {
	return Frame{Type: FrameContent, Chunk: chunk}
}

func ErrorFrame(message string) Frame {
	return Frame{Type: FrameError, Error: message}
}

func CompleteFrame(conversationID string, messages []Message) Frame {
	if messages == nil {
		messages = []Message{}
	}
	return Frame{Type: FrameComplete, ConversationID: conversationID, Messages: messages}
}

type startJSON struct {
	Type           FrameType `json:"type"`
	ConversationID string    `json:"conversation_id"`
}

type contentJSON struct {
	Type  FrameType `json:"type"`
	Chunk string    `json:"chunk"`
}

type errorJSON struct {
	Type  FrameType `json:"type"`
	Error string    `json:"error"`
}

type completeJSON struct {
	Type           FrameType `json:"type"`
	ConversationID string    `json:"conversation_id"`
	Messages       []Message `json:"messages"`
}

// MarshalJSON renders exactly the fields of the frame's type.
func (f Frame) MarshalJSON() ([]byte, error) {
	switch f.Type {
	case FrameStart:
		return json.Marshal(startJSON{f.Type, f.ConversationID})
	case FrameContent:
		return json.Marshal(contentJSON{f.Type, f.Chunk})
	case FrameError:
		return json.Marshal(errorJSON{f.Type, f.Error})
	case FrameComplete:
		msgs := f.Messages
		if msgs == nil {
			msgs = []Message{}
		}
		return json.Marshal(completeJSON{f.Type, f.ConversationID, msgs})
	default:
		return nil, errors.New("chat: unknown frame type " + string(f.Type))
	}
}

// UnmarshalJSON accepts any frame shape.
func (f *Frame) UnmarshalJSON(data []byte) error {
	var raw struct {
		Type           FrameType `json:"type"`
		ConversationID string    `json:"conversation_id"`
		Chunk          string    `json:"chunk"`
		Error          string    `json:"error"`
		Messages       []Message `json:"messages"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*f = Frame{
		Type:           raw.Type,
		ConversationID: raw.ConversationID,
		Chunk:          raw.Chunk,
		Error:          raw.Error,
		Messages:       raw.Messages,
	}
	return nil
}
