package service

import "storefront/internal/domain/entity"

// AlertState is what the presentation layer reads to render the
// notification side effects.
type AlertState struct {
	// Shaking is the bounded visual flag; it auto-clears shortly after a
	// new unread notification arrives.
	Shaking bool `json:"shaking"`

	// Sound is the variant the UI should play, "" when audio is disabled
	// or nothing is pending.
	Sound string `json:"sound,omitempty"`

	// Tag is the platform notification tag; equal tags collapse into one
	// platform notification instead of stacking.
	Tag string `json:"tag,omitempty"`
}

// Alerter receives every new, non-duplicate, unread notification and
// maintains the derived side-effect state.
type Alerter interface {
	Notify(n entity.Notification)
	State() AlertState
	Close()
}
