package rest

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"homeguard-backend/internal/domain"
	apperrors "homeguard-backend/pkg/errors"
)

const maxBodyBytes = 1 << 20

var validate = validator.New()

type updateCameraRequest struct {
	Name     *string `json:"name" validate:"omitempty,min=1,max=100"`
	Location *string `json:"location" validate:"omitempty,max=100"`
	Status   *string `json:"status" validate:"omitempty,oneof=online offline"`
}

func (r updateCameraRequest) toDomain() domain.CameraUpdate {
	u := domain.CameraUpdate{Name: r.Name, Location: r.Location}
	if r.Status != nil {
		status := domain.CameraStatus(*r.Status)
		u.Status = &status
	}
	return u
}

type detectionRequest struct {
	Label      string  `json:"label" validate:"required,max=64"`
	Confidence float64 `json:"confidence" validate:"gte=0,lte=1"`
}

type createEventRequest struct {
	CameraID   string             `json:"camera_id" validate:"required"`
	Type       string             `json:"type" validate:"required,oneof=motion person vehicle package animal"`
	Severity   string             `json:"severity" validate:"required,oneof=low medium high critical"`
	Confidence float64            `json:"confidence" validate:"gte=0,lte=1"`
	Detections []detectionRequest `json:"detections" validate:"max=50,dive"`
	Summary    string             `json:"summary" validate:"max=2000"`
	OccurredAt *time.Time         `json:"occurred_at"`
}

func (r createEventRequest) toDomain(householdID string) domain.Event {
	e := domain.Event{
		HouseholdID: householdID,
		CameraID:    r.CameraID,
		Type:        domain.EventType(r.Type),
		Severity:    domain.Severity(r.Severity),
		Confidence:  r.Confidence,
		Summary:     r.Summary,
	}
	for _, d := range r.Detections {
		e.Detections = append(e.Detections, domain.Detection{Label: d.Label, Confidence: d.Confidence})
	}
	if r.OccurredAt != nil {
		e.OccurredAt = *r.OccurredAt
	}
	return e
}

type acknowledgeRequest struct {
	AcknowledgedBy string `json:"acknowledged_by" validate:"required,max=100"`
}

type createEventResponse struct {
	Event *domain.Event `json:"event"`
	Alert *domain.Alert `json:"alert,omitempty"`
}

// decode reads a JSON body into dst and validates it.
func decode(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return apperrors.NewValidation("invalid request body: %v", err)
	}
	if err := validate.Struct(dst); err != nil {
		return validationError(err)
	}
	return nil
}

func validationError(err error) error {
	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return apperrors.NewValidation("%v", err)
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fmt.Sprintf("%s failed %s", fe.Field(), fe.Tag()))
	}
	return apperrors.NewValidation("%s", strings.Join(msgs, "; "))
}
