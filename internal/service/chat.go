package service

import (
	"context"

	"github.com/xiaot623/dalia/internal/chat"
)

// ChatResult is the body returned by the chat endpoints.
type ChatResult struct {
	ConversationID string         `json:"conversation_id"`
	Messages       []chat.Message `json:"messages"`
	LatestMessage  *chat.Message  `json:"latest_message,omitempty"`
}

// Chat runs one synchronous turn. An empty conversationID starts a new
// conversation.
func (s *Service) Chat(ctx context.Context, conversationID, text string) (*ChatResult, error) {
	id, session := s.sessions.GetOrCreate(conversationID)

	reply, err := session.Send(ctx, text)
	if err != nil {
		s.metrics.ChatTurn("sync", "error")
		return nil, err
	}
	s.metrics.ChatTurn("sync", "ok")

	return &ChatResult{
		ConversationID: id,
		Messages:       session.Messages(ctx),
		LatestMessage:  &reply,
	}, nil
}

// History returns the transcript of a conversation. Unknown ids yield an
// empty transcript.
func (s *Service) History(ctx context.Context, conversationID string) *ChatResult {
	messages := s.sessions.Get(conversationID).Messages(ctx)
	result := &ChatResult{
		ConversationID: conversationID,
		Messages:       messages,
	}
	if len(messages) > 0 {
		latest := messages[len(messages)-1]
		result.LatestMessage = &latest
	}
	return result
}

// Session resolves a conversation for a streamed turn, minting an id when
// conversationID is empty.
func (s *Service) Session(conversationID string) (string, *chat.Session) {
	return s.sessions.GetOrCreate(conversationID)
}

// SessionCount returns the number of conversations held in memory.
func (s *Service) SessionCount() int {
	return s.sessions.Len()
}
