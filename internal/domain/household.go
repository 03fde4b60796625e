// Package domain holds the home-security entities served by the API and
// the events emitted when they change.
package domain

import "time"

// Household groups the cameras, events and alerts of one home.
type Household struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Timezone  string    `json:"timezone"`
	CreatedAt time.Time `json:"created_at"`
}
