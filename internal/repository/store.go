// Package store defines the storage interface and its SQLite implementation.
package store

import (
	"context"

	"github.com/xiaot623/dalia/internal/domain"
)

// Store defines the interface for data persistence.
type Store interface {
	// Session operations
	CreateSession(ctx context.Context, session *domain.Session) error
	GetSession(ctx context.Context, sessionID string) (*domain.Session, error)
	GetOrCreateSession(ctx context.Context, sessionID, userID string) (*domain.Session, error)

	// Message operations
	CreateMessage(ctx context.Context, message *domain.Message) error
	GetMessages(ctx context.Context, sessionID string, limit int, before string) ([]domain.Message, error)
	GetRecentMessages(ctx context.Context, sessionID string, limit int) ([]domain.Message, error)

	// Run operations
	CreateRun(ctx context.Context, run *domain.Run) error
	GetRun(ctx context.Context, runID string) (*domain.Run, error)
	UpdateRunCompleted(ctx context.Context, runID string, status domain.RunStatus, errData []byte) error

	// Event operations
	CreateEvent(ctx context.Context, event *domain.Event) error
	GetEvents(ctx context.Context, runID string, afterTs int64, types []string, limit int) ([]domain.Event, error)

	// ToolCall operations
	CreateToolCall(ctx context.Context, toolCall *domain.ToolCall) error
	GetToolCall(ctx context.Context, toolCallID string) (*domain.ToolCall, error)
	UpdateToolCallResult(ctx context.Context, toolCallID string, status domain.ToolCallStatus, result []byte, errData []byte) (bool, error)

	// Lifecycle
	Close() error
}

var _ Store = (*SQLiteStore)(nil)
