// Package session holds the process-wide authentication state shared by the
// API client and the access gate.
package session

import (
	"sync"
	"sync/atomic"

	"github.com/wolfeidau/internportal/internal/models"
)

// Snapshot is an immutable view of the authentication state.
//
// Session and User are both nil when unauthenticated. A present Session with a
// nil User is the transitional state while the profile is being resolved, or
// after resolution failed.
type Snapshot struct {
	Session *models.Session
	User    *models.CurrentUser
	Loading bool
}

// Authenticated returns true when both the session and the profile are present.
func (s Snapshot) Authenticated() bool {
	return s.Session != nil && s.User != nil
}

// Reason describes why the state changed.
type Reason string

const (
	ReasonLogin      Reason = "login"
	ReasonProfile    Reason = "profile"
	ReasonLoading    Reason = "loading"
	ReasonLogout     Reason = "logout"
	ReasonExpired    Reason = "expired"
	ReasonInvalidate Reason = "unauthorized"
	ReasonRestore    Reason = "restore"
)

// Listener is notified after every state change, in the order changes happen.
type Listener func(reason Reason, snap Snapshot)

// State is the shared authentication state.
//
// Readers load the current snapshot without locking. Writers are serialized
// and replace the snapshot as a whole, so a reader never observes a session
// from one login paired with a profile from another.
type State struct {
	current atomic.Pointer[Snapshot]

	mu        sync.Mutex
	listeners []Listener
}

// NewState creates an unauthenticated state.
func NewState() *State {
	s := &State{}
	s.current.Store(&Snapshot{})
	return s
}

// NewStateFrom creates a state that already holds a session and profile.
func NewStateFrom(sess *models.Session, user *models.CurrentUser) *State {
	s := &State{}
	if sess == nil {
		user = nil
	}
	s.current.Store(&Snapshot{Session: sess, User: user})
	return s
}

// OnChange registers a listener for state changes.
// Listeners run while the state is locked and must not modify it.
func (s *State) OnChange(fn Listener) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, fn)
}

// Current returns the current snapshot. An expired session is destroyed on read.
func (s *State) Current() Snapshot {
	snap := s.current.Load()
	if snap.Session != nil && snap.Session.IsExpired() {
		s.clearIf(snap.Session, ReasonExpired)
		return Snapshot{}
	}
	return *snap
}

// Session returns the current session or nil.
func (s *State) Session() *models.Session {
	return s.Current().Session
}

// Login replaces the state with a new session. user may be nil when the
// profile has not been fetched yet.
func (s *State) Login(sess *models.Session, user *models.CurrentUser) {
	if sess == nil {
		s.Logout()
		return
	}
	s.replace(&Snapshot{Session: sess, User: user}, ReasonLogin)
}

// Restore loads a previously persisted session without treating it as a fresh login.
func (s *State) Restore(sess *models.Session, user *models.CurrentUser) {
	if sess == nil || sess.IsExpired() {
		return
	}
	s.replace(&Snapshot{Session: sess, User: user}, ReasonRestore)
}

// BeginLoading marks profile resolution as in flight for sess.
// It is a no-op if sess is no longer the current session.
func (s *State) BeginLoading(sess *models.Session) bool {
	return s.update(sess, ReasonLoading, func(snap *Snapshot) {
		snap.Loading = true
	})
}

// SetUser stores the resolved profile for sess and clears the loading flag.
func (s *State) SetUser(sess *models.Session, user *models.CurrentUser) bool {
	return s.update(sess, ReasonProfile, func(snap *Snapshot) {
		snap.User = user
		snap.Loading = false
	})
}

// EndLoading clears the loading flag for sess without setting a profile.
func (s *State) EndLoading(sess *models.Session) bool {
	return s.update(sess, ReasonLoading, func(snap *Snapshot) {
		snap.Loading = false
	})
}

// Logout destroys the session.
func (s *State) Logout() {
	s.replace(&Snapshot{}, ReasonLogout)
}

// Invalidate destroys sess after the server rejected it. A newer session that
// replaced sess in the meantime is left alone.
func (s *State) Invalidate(sess *models.Session) bool {
	return s.clearIf(sess, ReasonInvalidate)
}

func (s *State) clearIf(sess *models.Session, reason Reason) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur := s.current.Load()
	if cur.Session == nil || cur.Session != sess {
		return false
	}

	next := &Snapshot{}
	s.current.Store(next)
	s.notify(reason, *next)
	return true
}

func (s *State) update(sess *models.Session, reason Reason, fn func(*Snapshot)) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur := s.current.Load()
	if cur.Session == nil || cur.Session != sess {
		return false
	}

	next := *cur
	fn(&next)
	s.current.Store(&next)
	s.notify(reason, next)
	return true
}

func (s *State) replace(next *Snapshot, reason Reason) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.current.Store(next)
	s.notify(reason, *next)
}

// notify must be called with mu held.
func (s *State) notify(reason Reason, snap Snapshot) {
	for _, fn := range s.listeners {
		fn(reason, snap)
	}
}
