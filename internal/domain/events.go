package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

// Domain event types, also used as the EventBridge detail type.
const (
	TypeEventCreated     = "EventCreated"
	TypeCameraUpdated    = "CameraUpdated"
	TypeAlertChanged     = "AlertChanged"
	TypeDetectionAdded   = "DetectionAdded"
	TypeSummaryGenerated = "SummaryGenerated"
)

// DomainEvent is published after a state change has been persisted.
type DomainEvent interface {
	EventType() string
	AggregateID() string
	Household() string
	Timestamp() time.Time
}

// BaseEvent carries the fields every domain event shares.
type BaseEvent struct {
	Type        string    `json:"event_type"`
	HouseholdID string    `json:"household_id"`
	OccurredAt  time.Time `json:"occurred_at"`
	Version     int       `json:"version"`
}

func newBase(eventType, householdID string, at time.Time) BaseEvent {
	return BaseEvent{Type: eventType, HouseholdID: householdID, OccurredAt: at, Version: 1}
}

func (b BaseEvent) EventType() string    { return b.Type }
func (b BaseEvent) Household() string    { return b.HouseholdID }
func (b BaseEvent) Timestamp() time.Time { return b.OccurredAt }

type EventCreated struct {
	BaseEvent
	EventID  string    `json:"event_id"`
	CameraID string    `json:"camera_id"`
	Kind     EventType `json:"kind"`
	Severity Severity  `json:"severity"`
}

func NewEventCreated(e *Event) *EventCreated {
	return &EventCreated{
		BaseEvent: newBase(TypeEventCreated, e.HouseholdID, e.OccurredAt),
		EventID:   e.ID,
		CameraID:  e.CameraID,
		Kind:      e.Type,
		Severity:  e.Severity,
	}
}

func (e *EventCreated) AggregateID() string { return e.EventID }

type CameraUpdated struct {
	BaseEvent
	CameraID string       `json:"camera_id"`
	Status   CameraStatus `json:"status"`
}

func NewCameraUpdated(c *Camera) *CameraUpdated {
	return &CameraUpdated{
		BaseEvent: newBase(TypeCameraUpdated, c.HouseholdID, c.UpdatedAt),
		CameraID:  c.ID,
		Status:    c.Status,
	}
}

func (e *CameraUpdated) AggregateID() string { return e.CameraID }

type AlertChanged struct {
	BaseEvent
	AlertID string      `json:"alert_id"`
	Status  AlertStatus `json:"status"`
}

func NewAlertChanged(a *Alert, at time.Time) *AlertChanged {
	return &AlertChanged{
		BaseEvent: newBase(TypeAlertChanged, a.HouseholdID, at),
		AlertID:   a.ID,
		Status:    a.Status,
	}
}

func (e *AlertChanged) AggregateID() string { return e.AlertID }

type DetectionAdded struct {
	BaseEvent
	EventID   string    `json:"event_id"`
	Detection Detection `json:"detection"`
}

func NewDetectionAdded(householdID, eventID string, d Detection, at time.Time) *DetectionAdded {
	return &DetectionAdded{
		BaseEvent: newBase(TypeDetectionAdded, householdID, at),
		EventID:   eventID,
		Detection: d,
	}
}

func (e *DetectionAdded) AggregateID() string { return e.EventID }

type SummaryGenerated struct {
	BaseEvent
	Day string `json:"day"`
}

func NewSummaryGenerated(householdID, day string, at time.Time) *SummaryGenerated {
	return &SummaryGenerated{
		BaseEvent: newBase(TypeSummaryGenerated, householdID, at),
		Day:       day,
	}
}

func (e *SummaryGenerated) AggregateID() string { return e.HouseholdID + ":" + e.Day }

// DecodeEvent rebuilds a domain event from its detail type and JSON body,
// as delivered by the event bus.
func DecodeEvent(detailType string, detail []byte) (DomainEvent, error) {
	var event DomainEvent
	switch detailType {
	case TypeEventCreated:
		event = &EventCreated{}
	case TypeCameraUpdated:
		event = &CameraUpdated{}
	case TypeAlertChanged:
		event = &AlertChanged{}
	case TypeDetectionAdded:
		event = &DetectionAdded{}
	case TypeSummaryGenerated:
		event = &SummaryGenerated{}
	default:
		return nil, fmt.Errorf("unknown event type %q", detailType)
	}
	if err := json.Unmarshal(detail, event); err != nil {
		return nil, fmt.Errorf("decode %s: %w", detailType, err)
	}
	return event, nil
}
