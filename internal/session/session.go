// Package session holds the per-browser UI state: which screen is showing,
// whether the admin passcode was accepted, and the observer's draft. None of
// it is persisted.
package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"examattendance/internal/attendance"
)

// View selects between the two screens.
type View int

const (
	Observer View = iota
	Admin
)

func (v View) String() string {
	if v == Admin {
		return "admin"
	}
	return "observer"
}

func (v View) MarshalText() ([]byte, error) { return []byte(v.String()), nil }

func (v *View) UnmarshalText(b []byte) error {
	parsed, err := ParseView(string(b))
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}

// ParseView accepts "observer" or "admin".
func ParseView(s string) (View, error) {
	switch s {
	case "observer":
		return Observer, nil
	case "admin":
		return Admin, nil
	}
	return Observer, fmt.Errorf("unknown view %q", s)
}

// Screens rendered for a given state.
const (
	ScreenForm      = "form"
	ScreenLogin     = "login"
	ScreenDashboard = "dashboard"
)

// State is the UI state shared by the header and both screens.
type State struct {
	View          View `json:"view"`
	Authenticated bool `json:"authenticated"`
}

// Screen reports what the current view shows.
func (s State) Screen() string {
	switch {
	case s.View == Observer:
		return ScreenForm
	case s.Authenticated:
		return ScreenDashboard
	default:
		return ScreenLogin
	}
}

// Session is one browser's state.
type Session struct {
	ID       string
	Workflow *attendance.Workflow

	mu       sync.Mutex
	state    State
	lastSeen time.Time
	resumed  bool
}

// State returns a copy of the UI state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// SetView switches screens.
func (s *Session) SetView(v View) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.View = v
}

// Authenticate marks the admin passcode as accepted for this session.
func (s *Session) Authenticate() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.Authenticated = true
}

// Logout drops admin access and returns to the observer form.
func (s *Session) Logout() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = State{View: Observer}
}

func (s *Session) touch(now time.Time) {
	s.mu.Lock()
	s.lastSeen = now
	s.resumed = true
	s.mu.Unlock()
}

func (s *Session) expired(now time.Time, idle, unused time.Duration) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	limit := idle
	if !s.resumed && unused > 0 && unused < idle {
		limit = unused
	}
	return now.Sub(s.lastSeen) > limit
}

// Manager keeps live sessions in memory.
type Manager struct {
	// UnusedTTL expires sessions that were created but never used again,
	// such as those started by clients that drop the cookie. Zero leaves
	// them to the regular idle timeout.
	UnusedTTL time.Duration


	mu          sync.Mutex
	sessions    map[string]*Session
	newWorkflow func() *attendance.Workflow
	now         func() time.Time
}

// NewManager creates a manager; newWorkflow builds each session's draft flow.
func NewManager(newWorkflow func() *attendance.Workflow) *Manager {
	return &Manager{
		sessions:    make(map[string]*Session),
		newWorkflow: newWorkflow,
		now:         time.Now,
	}
}

// Create starts a fresh session on the observer form.
func (m *Manager) Create() *Session {
	s := &Session{
		ID:       uuid.NewString(),
		Workflow: m.newWorkflow(),
		lastSeen: m.now(),
	}
	m.mu.Lock()
	m.sessions[s.ID] = s
	m.mu.Unlock()
	return s
}

// Get looks up a live session and marks it as used.
func (m *Manager) Get(id string) (*Session, bool) {
	m.mu.Lock()
	s, ok := m.sessions[id]
	m.mu.Unlock()
	if ok {
		s.touch(m.now())
	}
	return s, ok
}

// Len returns the number of live sessions.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// Sweep drops sessions unused for longer than idle, or never resumed
// within UnusedTTL, and closes their workflows, so a submission still in
// its delay is discarded.
func (m *Manager) Sweep(idle time.Duration) int {
	now := m.now()
	var expired []*Session
	m.mu.Lock()
	for id, s := range m.sessions {
		if s.expired(now, idle, m.UnusedTTL) {
			expired = append(expired, s)
			delete(m.sessions, id)
		}
	}
	m.mu.Unlock()

	for _, s := range expired {
		s.Workflow.Close()
	}
	return len(expired)
}

// Run sweeps every interval until ctx is done.
func (m *Manager) Run(ctx context.Context, interval, idle time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Sweep(idle)
		}
	}
}
