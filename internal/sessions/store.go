package sessions

import (
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
)

// SessionNotFoundError is returned when no session matches an identifier.
type SessionNotFoundError struct {
	SessionID string
}

func (e *SessionNotFoundError) Error() string {
	return fmt.Sprintf("session not found: %s", e.SessionID)
}

// GetBySessionID loads a session by its client identifier.
func GetBySessionID(db *gorm.DB, sessionID string) (*Session, error) {
	var session Session
	err := db.Where("session_id = ?", sessionID).First(&session).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, &SessionNotFoundError{SessionID: sessionID}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load session: %w", err)
	}
	return &session, nil
}

// FindOrNew loads the session or starts a new one when none exists yet.
func FindOrNew(db *gorm.DB, sessionID string, ctx Context) (*Session, error) {
	session, err := GetBySessionID(db, sessionID)
	if err == nil {
		return session, nil
	}

	var notFound *SessionNotFoundError
	if errors.As(err, &notFound) {
		return New(sessionID, ctx), nil
	}
	return nil, err
}

// Save writes the session back. Concurrent writers are last-write-wins.
func Save(db *gorm.DB, session *Session) error {
	if err := db.Save(session).Error; err != nil {
		return fmt.Errorf("failed to save session %s: %w", session.SessionID, err)
	}
	return nil
}

// ListFilter narrows session listings for reports.
type ListFilter struct {
	From          time.Time
	To            time.Time
	ExcludePrefix string
	OnlyConverted bool
}

// ListInRange returns sessions started in [From, To], oldest first. Sessions
// whose entry page falls under ExcludePrefix are left out.
func ListInRange(db *gorm.DB, filter ListFilter) ([]Session, error) {
	query := db.Model(&Session{}).
		Where("started_at BETWEEN ? AND ?", filter.From, filter.To)

	if filter.ExcludePrefix != "" {
		query = query.Where("entry_page NOT LIKE ?", filter.ExcludePrefix+"%")
	}
	if filter.OnlyConverted {
		query = query.Where("converted = ?", true)
	}

	var sessions []Session
	if err := query.Order("started_at ASC").Find(&sessions).Error; err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	return sessions, nil
}
