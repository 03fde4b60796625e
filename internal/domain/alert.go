package domain

import (
	"fmt"
	"time"

	apperrors "homeguard-backend/pkg/errors"
)

type AlertStatus string

const (
	AlertActive       AlertStatus = "active"
	AlertAcknowledged AlertStatus = "acknowledged"
)

// Alert asks a household member to look at an event.
type Alert struct {
	HouseholdID    string      `json:"household_id"`
	ID             string      `json:"id"`
	EventID        string      `json:"event_id"`
	CameraID       string      `json:"camera_id"`
	Severity       Severity    `json:"severity"`
	Message        string      `json:"message"`
	Status         AlertStatus `json:"status"`
	CreatedAt      time.Time   `json:"created_at"`
	AcknowledgedAt *time.Time  `json:"acknowledged_at,omitempty"`
	AcknowledgedBy string      `json:"acknowledged_by,omitempty"`
}

// NewAlertForEvent builds the active alert raised by e.
func NewAlertForEvent(id string, e *Event) *Alert {
	return &Alert{
		HouseholdID: e.HouseholdID,
		ID:          id,
		EventID:     e.ID,
		CameraID:    e.CameraID,
		Severity:    e.Severity,
		Message:     fmt.Sprintf("%s detected (%s)", e.Type, e.Severity),
		Status:      AlertActive,
		CreatedAt:   e.OccurredAt,
	}
}

// Acknowledge marks the alert as handled by user.
func (a *Alert) Acknowledge(user string, now time.Time) error {
	if user == "" {
		return apperrors.NewValidation("acknowledged_by is required")
	}
	if a.Status == AlertAcknowledged {
		return apperrors.NewConflict("alert %s already acknowledged", a.ID)
	}
	a.Status = AlertAcknowledged
	a.AcknowledgedAt = &now
	a.AcknowledgedBy = user
	return nil
}
