package cache

import (
	"fmt"
	"strings"
)

// Suffixes appended to a full cache key for companion keys. Pattern
// invalidation relies on these sharing the base key as prefix.
const (
	suffixLoading    = ":loading"
	suffixRefreshing = ":refreshing"
	suffixFreshUntil = ":fresh_until"
)

// Keyspace namespaces logical keys as {prefix}:cache:{logical}.
type Keyspace struct {
	prefix string
}

// NewKeyspace returns a keyspace for the given global prefix.
func NewKeyspace(prefix string) Keyspace {
	return Keyspace{prefix: strings.TrimSuffix(prefix, ":")}
}

// Key returns the full backend key for a logical key.
func (k Keyspace) Key(logical string) string {
	if k.prefix == "" {
		return "cache:" + logical
	}
	return k.prefix + ":cache:" + logical
}

// Logical strips the namespace from a full key.
func (k Keyspace) Logical(full string) string {
	return strings.TrimPrefix(full, k.Key(""))
}

func loadingKey(full string) string    { return full + suffixLoading }
func refreshingKey(full string) string { return full + suffixRefreshing }
func freshUntilKey(full string) string { return full + suffixFreshUntil }

func isLockKey(full string) bool {
	return strings.HasSuffix(full, suffixLoading) || strings.HasSuffix(full, suffixRefreshing)
}

// CacheType derives the dashboard label from the first segment of a logical
// key or pattern: "stats:events:42" and "stats:*" both yield "stats".
func CacheType(logical string) string {
	segment := logical
	if i := strings.IndexByte(logical, ':'); i >= 0 {
		segment = logical[:i]
	}
	segment = strings.TrimRight(segment, "*?[")
	if segment == "" {
		return "unknown"
	}
	return segment
}

// Domain key builders. Each first segment doubles as the metrics cache type
// and as the prefix the matching invalidation wrapper deletes.

func CameraKey(householdID, cameraID string) string {
	return fmt.Sprintf("cameras:%s:%s", householdID, cameraID)
}

func CameraListKey(householdID string) string {
	return "cameras:list:" + householdID
}

func RecentEventsKey(householdID string, limit int) string {
	return fmt.Sprintf("events:recent:%s:%d", householdID, limit)
}

func EventStatsKey(householdID string) string {
	return "stats:events:" + householdID
}

func ActiveAlertsKey(householdID string) string {
	return "alerts:active:" + householdID
}

func DetectionsKey(householdID, eventID string) string {
	return fmt.Sprintf("detections:%s:%s", householdID, eventID)
}

func SummaryKey(householdID, day string) string {
	return fmt.Sprintf("summaries:%s:%s", householdID, day)
}

const SystemStatusKey = "system:status"
