package store

import "time"

// Session is a brainstorm session with its ideas
type Session struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	Name        string    `gorm:"size:200;not null" json:"name"`
	DateCreated time.Time `json:"date_created"`
	Ideas       []Idea    `gorm:"constraint:OnDelete:CASCADE" json:"ideas,omitempty"`
}

// AddIdea appends an idea to the session
func (s *Session) AddIdea(idea Idea) {
	idea.SessionID = s.ID
	s.Ideas = append(s.Ideas, idea)
}

// Idea belongs to one session
type Idea struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	SessionID   uint      `gorm:"index;not null" json:"session_id"`
	Name        string    `gorm:"size:200;not null" json:"name"`
	Description string    `json:"description"`
	DateCreated time.Time `json:"date_created"`
}
