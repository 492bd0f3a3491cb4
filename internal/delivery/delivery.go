// Package delivery defines the contract every outward-facing surface of
// the process implements.
package delivery

import "context"

// Delivery is a serving surface with its own lifecycle. Serve blocks
// until the surface stops; shutdown is wired through fx hooks.
type Delivery interface {
	Serve(ctx context.Context) error
}
