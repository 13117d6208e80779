package models

import (
	"errors"
	"net/mail"
	"strings"
	"time"
)

// EmergencyContact is someone who is emailed about out-of-range readings
type EmergencyContact struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

// UserSettings is the per-user settings record
type UserSettings struct {
	UserID      string             `json:"user_id"`
	DisplayName string             `json:"display_name"`
	Thresholds  ThresholdRules     `json:"thresholds"`
	Contacts    []EmergencyContact `json:"emergency_contacts"`
	UpdatedAt   time.Time          `json:"updated_at"`
}

var (
	ErrSettingsNoUser    = errors.New("settings user id cannot be empty")
	ErrEmptyContactEmail = errors.New("emergency contact email cannot be empty")
	ErrBadContactEmail   = errors.New("emergency contact email is malformed")
)

// DefaultSettings is what a user gets on first access
func DefaultSettings(userID string) *UserSettings {
	return &UserSettings{
		UserID:     userID,
		Thresholds: DefaultThresholdRules(),
		Contacts:   []EmergencyContact{},
		UpdatedAt:  time.Now().UTC(),
	}
}

// Name returns the display name, falling back to the user ID
func (s *UserSettings) Name() string {
	if s.DisplayName != "" {
		return s.DisplayName
	}
	return s.UserID
}

// Recipients returns the contact addresses in their configured order
func (s *UserSettings) Recipients() []string {
	out := make([]string, 0, len(s.Contacts))
	for _, c := range s.Contacts {
		out = append(out, c.Email)
	}
	return out
}

// HasContacts reports whether anyone can be notified
func (s *UserSettings) HasContacts() bool {
	return len(s.Contacts) > 0
}

// Validate checks thresholds and contact addresses
func (s *UserSettings) Validate() error {
	if s.UserID == "" {
		return ErrSettingsNoUser
	}
	for _, c := range s.Contacts {
		if strings.TrimSpace(c.Email) == "" {
			return ErrEmptyContactEmail
		}
		if _, err := mail.ParseAddress(c.Email); err != nil {
			return ErrBadContactEmail
		}
	}
	return s.Thresholds.Validate()
}
