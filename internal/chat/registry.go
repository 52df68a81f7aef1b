package chat

import (
	"sync"

	"github.com/google/uuid"
)

// Registry maps conversation ids to sessions. Entries live for the life of
// the process.
type Registry struct {
	mu       sync.Mutex
	sessions map[string]*Session
	agent    Agent
	buffer   int
}

// NewRegistry creates a registry whose sessions drive agent. streamBuffer
// bounds the event queue of each stream.
func NewRegistry(agent Agent, streamBuffer int) *Registry {
	if streamBuffer < 0 {
		streamBuffer = 0
	}
	return &Registry{
		sessions: make(map[string]*Session),
		agent:    agent,
		buffer:   streamBuffer,
	}
}

// GetOrCreate resolves id to a session. An empty id mints a new
// conversation id. An id not seen by this process is bound to a fresh
// session, since a session holds nothing but its id.
func (r *Registry) GetOrCreate(id string) (string, *Session) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if id == "" {
		id = uuid.New().String()
		for r.sessions[id] != nil {
			id = uuid.New().String()
		}
	}
	return id, r.lookupLocked(id)
}

// Get resolves a known id, binding a fresh session when it is unknown.
func (r *Registry) Get(id string) *Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lookupLocked(id)
}

// Len returns the number of sessions held.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

func (r *Registry) lookupLocked(id string) *Session {
	if s, ok := r.sessions[id]; ok {
		return s
	}
	s := newSession(id, r.agent, r.buffer)
	r.sessions[id] = s
	return s
}
