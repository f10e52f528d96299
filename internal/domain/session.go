package domain

import "time"

// Session is the durable proof of a live login. At most one exists per subject.
type Session struct {
	ID                 string
	SubjectID          string
	RefreshTokenDigest string
	DeviceID           *string
	UserAgent          *string
	ExpiresAt          time.Time
	CreatedAt          time.Time
}

// Expired reports whether the session is no longer usable at now.
func (s *Session) Expired(now time.Time) bool {
	return !s.ExpiresAt.After(now)
}

// RevokeFilter selects which sessions of a subject a logout removes.
type RevokeFilter struct {
	RefreshToken string
	DeviceID     string
	AllDevices   bool
}

// Empty reports whether no selector was given.
func (f RevokeFilter) Empty() bool {
	return f.RefreshToken == "" && f.DeviceID == "" && !f.AllDevices
}
