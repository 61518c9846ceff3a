package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

type Status string

const (
	StatusActive Status = "active"
	StatusEnded  Status = "ended"
)

var ErrNotFound = errors.New("call not found")

// Call is the registry view of one bridged call.
type Call struct {
	ID              string    `json:"call_id"`
	RemoteAddr      string    `json:"remote_addr"`
	ClientSessionID string    `json:"client_session_id,omitempty"`
	ConversationID  string    `json:"conversation_id,omitempty"`
	Target          string    `json:"target,omitempty"`
	Status          Status    `json:"status"`
	StartedAt       time.Time `json:"started_at"`
	LastActivityAt  time.Time `json:"last_activity_at"`
}

type entry struct {
	call   *Call
	closer func()
}

// Manager tracks live calls so idle ones can be reaped and all of them
// closed at shutdown.
type Manager struct {
	mu                sync.RWMutex
	calls             map[string]*entry
	inactivityTimeout time.Duration
	onExpire          func(*Call)
}

func NewManager(inactivityTimeout time.Duration) *Manager {
	if inactivityTimeout <= 0 {
		inactivityTimeout = 5 * time.Minute
	}
	return &Manager{
		calls:             make(map[string]*entry),
		inactivityTimeout: inactivityTimeout,
	}
}

func (m *Manager) SetExpireHook(hook func(*Call)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onExpire = hook
}

// Create registers a call. closer is invoked if the call expires or the
// process shuts down while it is still registered.
func (m *Manager) Create(remoteAddr string, closer func()) *Call {
	now := time.Now().UTC()
	c := &Call{
		ID:             uuid.NewString(),
		RemoteAddr:     remoteAddr,
		Status:         StatusActive,
		StartedAt:      now,
		LastActivityAt: now,
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls[c.ID] = &entry{call: c, closer: closer}
	return clone(c)
}

func (m *Manager) Get(callID string) (*Call, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.calls[callID]
	if !ok {
		return nil, ErrNotFound
	}
	return clone(e.call), nil
}

func (m *Manager) Touch(callID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.calls[callID]
	if !ok {
		return ErrNotFound
	}
	e.call.LastActivityAt = time.Now().UTC()
	return nil
}

// Identify records the identifiers learned from the open handshake.
func (m *Manager) Identify(callID, clientSessionID, conversationID, target string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.calls[callID]
	if !ok {
		return ErrNotFound
	}
	e.call.ClientSessionID = clientSessionID
	e.call.ConversationID = conversationID
	e.call.Target = target
	e.call.LastActivityAt = time.Now().UTC()
	return nil
}

// End removes the call from the registry and returns its final state.
func (m *Manager) End(callID string) (*Call, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.calls[callID]
	if !ok {
		return nil, ErrNotFound
	}
	delete(m.calls, callID)
	e.call.Status = StatusEnded
	e.call.LastActivityAt = time.Now().UTC()
	return clone(e.call), nil
}

func (m *Manager) StartJanitor(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				m.expireInactive()
			}
		}
	}()
}

func (m *Manager) ActiveCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.calls)
}

// CloseAll invokes the closer of every registered call.
func (m *Manager) CloseAll() int {
	m.mu.RLock()
	closers := make([]func(), 0, len(m.calls))
	for _, e := range m.calls {
		if e.closer != nil {
			closers = append(closers, e.closer)
		}
	}
	m.mu.RUnlock()

	for _, c := range closers {
		c()
	}
	return len(closers)
}

func (m *Manager) expireInactive() {
	now := time.Now().UTC()
	var expired []*entry

	m.mu.Lock()
	for id, e := range m.calls {
		if now.Sub(e.call.LastActivityAt) < m.inactivityTimeout {
			continue
		}
		e.call.Status = StatusEnded
		e.call.LastActivityAt = now
		expired = append(expired, e)
		delete(m.calls, id)
	}
	hook := m.onExpire
	m.mu.Unlock()

	for _, e := range expired {
		if hook != nil {
			hook(clone(e.call))
		}
		if e.closer != nil {
			e.closer()
		}
	}
}

func clone(c *Call) *Call {
	cp := *c
	return &cp
}
