package domain

import (
	"time"

	apperrors "homeguard-backend/pkg/errors"
)

type EventType string

const (
	EventMotion  EventType = "motion"
	EventPerson  EventType = "person"
	EventVehicle EventType = "vehicle"
	EventPackage EventType = "package"
	EventAnimal  EventType = "animal"
)

type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Detection is one object recognised in an event's footage.
type Detection struct {
	Label      string  `json:"label"`
	Confidence float64 `json:"confidence"`
}

// Event is something a camera saw.
type Event struct {
	HouseholdID string      `json:"household_id"`
	ID          string      `json:"id"`
	CameraID    string      `json:"camera_id"`
	Type        EventType   `json:"type"`
	Severity    Severity    `json:"severity"`
	Confidence  float64     `json:"confidence"`
	Detections  []Detection `json:"detections,omitempty"`
	Summary     string      `json:"summary,omitempty"`
	OccurredAt  time.Time   `json:"occurred_at"`
}

func (e *Event) Validate() error {
	switch {
	case e.HouseholdID == "":
		return apperrors.NewValidation("household_id is required")
	case e.CameraID == "":
		return apperrors.NewValidation("camera_id is required")
	case !e.Type.Valid():
		return apperrors.NewValidation("unknown event type %q", e.Type)
	case !e.Severity.Valid():
		return apperrors.NewValidation("unknown severity %q", e.Severity)
	case e.Confidence < 0 || e.Confidence > 1:
		return apperrors.NewValidation("confidence must be between 0 and 1")
	}
	return nil
}

// NeedsAlert reports whether the event should raise an alert.
func (e *Event) NeedsAlert() bool {
	return e.Severity == SeverityHigh || e.Severity == SeverityCritical
}

func (t EventType) Valid() bool {
	switch t {
	case EventMotion, EventPerson, EventVehicle, EventPackage, EventAnimal:
		return true
	}
	return false
}

func (s Severity) Valid() bool {
	switch s {
	case SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical:
		return true
	}
	return false
}

// EventStats aggregates a household's recent events.
type EventStats struct {
	HouseholdID string            `json:"household_id"`
	Since       time.Time         `json:"since"`
	Total       int               `json:"total"`
	ByType      map[EventType]int `json:"by_type"`
	BySeverity  map[Severity]int  `json:"by_severity"`
	GeneratedAt time.Time         `json:"generated_at"`
}

// ComputeEventStats aggregates events that occurred at or after since.
func ComputeEventStats(householdID string, events []Event, since, now time.Time) *EventStats {
	stats := &EventStats{
		HouseholdID: householdID,
		Since:       since,
		ByType:      make(map[EventType]int),
		BySeverity:  make(map[Severity]int),
		GeneratedAt: now,
	}
	for _, e := range events {
		if e.OccurredAt.Before(since) {
			continue
		}
		stats.Total++
		stats.ByType[e.Type]++
		stats.BySeverity[e.Severity]++
	}
	return stats
}
