package model

import "time"

// Session is a persisted conversation thread. It is owned by the session
// store; the Engine mutates it only by appending messages, and every
// mutation is followed by a save (spec §3, §4.5).
type Session struct {
	ID               string    `json:"id"`
	Title            string    `json:"title,omitempty"`
	WorkingDirectory string    `json:"workingDirectory"`
	CreatedAt        time.Time `json:"created"`
	UpdatedAt        time.Time `json:"updated"`
	Messages         []Message `json:"messages"`
}

// Append adds a message to the session and bumps UpdatedAt. Callers are
// responsible for persisting the session afterward.
func (s *Session) Append(msg Message) {
	s.Messages = append(s.Messages, msg)
	s.UpdatedAt = time.Now()
}
