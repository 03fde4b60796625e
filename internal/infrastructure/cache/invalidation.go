package cache

import "context"

// Invalidation reasons, used as the "reason" metrics label.
const (
	ReasonManual           = "manual"
	ReasonEventCreated     = "event_created"
	ReasonCameraUpdated    = "camera_updated"
	ReasonAlertChanged     = "alert_changed"
	ReasonDetectionAdded   = "detection_added"
	ReasonSummaryGenerated = "summary_generated"
	ReasonStatusChanged    = "status_changed"
)

// The wrappers below only pin a pattern to a reason so that every caller
// tags the same mutation the same way.

// InvalidateEvents drops event lists and event statistics.
func (s *Service) InvalidateEvents(ctx context.Context) int {
	return s.InvalidatePattern(ctx, "events:*", ReasonEventCreated) +
		s.InvalidatePattern(ctx, "stats:events:*", ReasonEventCreated)
}

func (s *Service) InvalidateCameras(ctx context.Context) int {
	return s.InvalidatePattern(ctx, "cameras:*", ReasonCameraUpdated)
}

func (s *Service) InvalidateAlerts(ctx context.Context) int {
	return s.InvalidatePattern(ctx, "alerts:*", ReasonAlertChanged)
}

func (s *Service) InvalidateDetections(ctx context.Context) int {
	return s.InvalidatePattern(ctx, "detections:*", ReasonDetectionAdded)
}

func (s *Service) InvalidateSummaries(ctx context.Context) int {
	return s.InvalidatePattern(ctx, "summaries:*", ReasonSummaryGenerated)
}

func (s *Service) InvalidateSystemStatus(ctx context.Context) int {
	return s.InvalidatePattern(ctx, "system:*", ReasonStatusChanged)
}
