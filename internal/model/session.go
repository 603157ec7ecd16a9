package model

import "time"

// Flash kinds understood by the templates.
const (
	FlashError = "error"
	FlashInfo  = "info"
)

// Session is the server-side state behind the session cookie. It is owned by
// the session store; handlers change it only through the methods below so
// the middleware knows when it has to be written back.
type Session struct {
	ID        string              `json:"-"`
	LoggedIn  bool                `json:"logged_in"`
	UserID    string              `json:"user_id,omitempty"`
	CSRFToken string              `json:"csrf_token,omitempty"`
	Flash     map[string][]string `json:"flash,omitempty"`
	CreatedAt time.Time           `json:"created_at"`

	dirty bool
}

// NewSession returns an empty, unsaved session with the given id.
func NewSession(id string, now time.Time) *Session {
	return &Session{ID: id, CreatedAt: now.UTC(), dirty: true}
}

// Dirty reports whether the session changed since it was loaded.
func (s *Session) Dirty() bool { return s.dirty }

// MarkClean is called by the store after a successful save.
func (s *Session) MarkClean() { s.dirty = false }

// Rotate moves the session to a new id. The caller is responsible for
// destroying the record stored under the old one.
func (s *Session) Rotate(id string) {
	s.ID = id
	s.dirty = true
}

// SignIn marks the session as authenticated for userID.
func (s *Session) SignIn(userID string) {
	s.LoggedIn = true
	s.UserID = userID
	s.dirty = true
}

// SignOut drops the identity but keeps the session itself.
func (s *Session) SignOut() {
	if !s.LoggedIn && s.UserID == "" {
		return
	}
	s.LoggedIn = false
	s.UserID = ""
	s.dirty = true
}

// SetCSRFToken stores the token issued for this session.
func (s *Session) SetCSRFToken(token string) {
	s.CSRFToken = token
	s.dirty = true
}

// AddFlash queues a one-shot message for the next rendered page.
func (s *Session) AddFlash(kind, msg string) {
	if s.Flash == nil {
		s.Flash = make(map[string][]string)
	}
	s.Flash[kind] = append(s.Flash[kind], msg)
	s.dirty = true
}

// PopFlashes returns and removes all messages of the given kind.
func (s *Session) PopFlashes(kind string) []string {
	msgs, ok := s.Flash[kind]
	if !ok {
		return nil
	}
	delete(s.Flash, kind)
	s.dirty = true
	return msgs
}
