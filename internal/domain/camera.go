package domain

import (
	"strings"
	"time"

	apperrors "homeguard-backend/pkg/errors"
)

type CameraStatus string

const (
	CameraOnline  CameraStatus = "online"
	CameraOffline CameraStatus = "offline"
)

type Camera struct {
	HouseholdID     string       `json:"household_id"`
	ID              string       `json:"id"`
	Name            string       `json:"name"`
	Location        string       `json:"location"`
	Status          CameraStatus `json:"status"`
	FirmwareVersion string       `json:"firmware_version,omitempty"`
	LastSeenAt      time.Time    `json:"last_seen_at"`
	UpdatedAt       time.Time    `json:"updated_at"`
}

// CameraUpdate is a partial update; nil fields are left unchanged.
type CameraUpdate struct {
	Name     *string
	Location *string
	Status   *CameraStatus
}

// Apply validates u and applies it to c.
func (c *Camera) Apply(u CameraUpdate, now time.Time) error {
	if u.Name != nil {
		name := strings.TrimSpace(*u.Name)
		if name == "" {
			return apperrors.NewValidation("camera name must not be empty")
		}
		c.Name = name
	}
	if u.Location != nil {
		c.Location = strings.TrimSpace(*u.Location)
	}
	if u.Status != nil {
		if !u.Status.Valid() {
			return apperrors.NewValidation("unknown camera status %q", *u.Status)
		}
		c.Status = *u.Status
	}
	c.UpdatedAt = now
	return nil
}

func (s CameraStatus) Valid() bool {
	return s == CameraOnline || s == CameraOffline
}
