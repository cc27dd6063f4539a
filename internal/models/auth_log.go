package models

import (
	"net/url"
	"time"

	"github.com/google/uuid"
)

// Subject is a polymorphic reference to the authenticated principal.
// The zero value means "no principal" (e.g. a failed login that never
// resolved an account).
type Subject struct {
	Type string `json:"type"`
	ID   string `json:"id"`
}

func (s Subject) IsZero() bool {
	return s.Type == "" && s.ID == ""
}

func (s Subject) String() string {
	if s.IsZero() {
		return "anonymous"
	}
	return s.Type + ":" + s.ID
}

// AuthLog is one persisted authentication-related event. Records are
// immutable after creation except for the single logout-at update and
// soft deletion.
type AuthLog struct {
	ID            uuid.UUID `json:"id" db:"id"`
	SubjectType   string    `json:"subject_type,omitempty" db:"subject_type"`
	SubjectID     string    `json:"subject_id,omitempty" db:"subject_id"`
	SubjectBucket int       `json:"-" db:"subject_bucket"`

	IPAddress string `json:"ip_address,omitempty" db:"ip_address"`
	Country   string `json:"country,omitempty" db:"country"`
	City      string `json:"city,omitempty" db:"city"`
	Location  string `json:"location,omitempty" db:"location"`

	Browser  string `json:"browser,omitempty" db:"browser"`
	Platform string `json:"platform,omitempty" db:"platform"`
	Device   string `json:"device,omitempty" db:"device"`
	IsMobile bool   `json:"is_mobile" db:"is_mobile"`

	UserAgent string            `json:"user_agent,omitempty" db:"user_agent"`
	Referrer  string            `json:"referrer,omitempty" db:"referrer"`
	Metadata  map[string]string `json:"metadata,omitempty" db:"metadata"`

	IsNewDevice   bool `json:"is_new_device" db:"is_new_device"`
	IsNewLocation bool `json:"is_new_location" db:"is_new_location"`

	EventLevel EventLevel `json:"event_level" db:"event_level"`

	LoginAt  *time.Time `json:"login_at,omitempty" db:"login_at"`
	LogoutAt *time.Time `json:"logout_at,omitempty" db:"logout_at"`

	SessionID string `json:"session_id,omitempty" db:"session_id"`

	CreatedAt time.Time  `json:"created_at" db:"created_at"`
	DeletedAt *time.Time `json:"deleted_at,omitempty" db:"deleted_at"`
}

// Subject returns the polymorphic subject reference for the record.
func (l *AuthLog) Subject() Subject {
	return Subject{Type: l.SubjectType, ID: l.SubjectID}
}

// IsActive reports whether the session behind this record is still open.
func (l *AuthLog) IsActive() bool {
	return l.EventLevel == EventLogin && l.LogoutAt == nil
}

func (l *AuthLog) IsFailed() bool {
	return l.EventLevel == EventFailed
}

func (l *AuthLog) IsDeleted() bool {
	return l.DeletedAt != nil
}

// FormattedLocation returns a display string for the record's origin,
// preferring "City, Country", then the fallback location summary, then the
// raw IP, then "Unknown".
func (l *AuthLog) FormattedLocation() string {
	if l.Country != "" && l.City != "" {
		return l.City + ", " + l.Country
	}
	if l.Location != "" {
		return l.Location
	}
	if l.IPAddress != "" {
		return l.IPAddress
	}
	return "Unknown"
}

// DeviceSummary returns "Platform / Browser (Device)" with sentinel
// fallbacks so the summary is always renderable.
func (l *AuthLog) DeviceSummary() string {
	platform := l.Platform
	if platform == "" {
		platform = "Unknown OS"
	}
	browser := l.Browser
	if browser == "" {
		browser = "Unknown Browser"
	}
	device := l.Device
	if device == "" {
		device = "Unknown Device"
	}
	return platform + " / " + browser + " (" + device + ")"
}

// ReferrerDomain returns just the host portion of the referrer, if any.
func (l *AuthLog) ReferrerDomain() string {
	if l.Referrer == "" {
		return ""
	}
	parsed, err := url.Parse(l.Referrer)
	if err != nil {
		return ""
	}
	return parsed.Host
}

// UserAgentFragment returns the first 80 characters of the user agent.
func (l *AuthLog) UserAgentFragment() string {
	if l.UserAgent == "" {
		return ""
	}
	if len(l.UserAgent) <= 80 {
		return l.UserAgent
	}
	return l.UserAgent[:80] + "..."
}
