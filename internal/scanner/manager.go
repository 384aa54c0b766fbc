package scanner

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Manager hands out camera devices to scanning sessions, at most one per device.
type Manager struct {
	decoder Decoder
	opts    Options
	logger  *zap.Logger

	mu       sync.Mutex
	sessions map[string]*Session
}

// NewManager constructs a Manager whose sessions share decoder and opts.
func NewManager(decoder Decoder, opts Options, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.Logger == nil {
		opts.Logger = logger
	}
	return &Manager{decoder: decoder, opts: opts, logger: logger, sessions: make(map[string]*Session)}
}

// Start registers a new session for deviceID. A session already holding the device
// is cancelled and Start returns only after it has released the camera or ctx ends.
func (m *Manager) Start(ctx context.Context, deviceID string, camera Camera) (*Session, error) {
	session := NewSession(uuid.NewString(), camera, m.decoder, m.opts)

	m.mu.Lock()
	previous := m.sessions[deviceID]
	m.sessions[deviceID] = session
	m.mu.Unlock()

	if previous != nil {
		m.logger.Info("releasing previous scan session", zap.String("device_id", deviceID), zap.String("previous_session", previous.ID()))
		previous.Cancel()
		select {
		case <-previous.Done():
		case <-ctx.Done():
			m.release(deviceID, session)
			return nil, ErrCancelled
		}
	}
	return session, nil
}

// Scan starts a session on deviceID, runs it to completion and releases the device.
func (m *Manager) Scan(ctx context.Context, deviceID string, camera Camera) (string, error) {
	session, err := m.Start(ctx, deviceID, camera)
	if err != nil {
		return "", err
	}
	defer m.release(deviceID, session)
	return session.Run(ctx)
}

// Cancel stops the session holding deviceID, if any.
func (m *Manager) Cancel(deviceID string) bool {
	m.mu.Lock()
	session := m.sessions[deviceID]
	m.mu.Unlock()
	if session == nil {
		return false
	}
	session.Cancel()
	return true
}

// Active returns the session currently holding deviceID.
func (m *Manager) Active(deviceID string) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	session, ok := m.sessions[deviceID]
	return session, ok
}

// Shutdown cancels every session and waits for their cameras to be released.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	sessions := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		sessions = append(sessions, s)
	}
	m.sessions = make(map[string]*Session)
	m.mu.Unlock()

	for _, s := range sessions {
		s.Cancel()
		<-s.Done()
	}
}

func (m *Manager) release(deviceID string, session *Session) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sessions[deviceID] == session {
		delete(m.sessions, deviceID)
	}
}
