// Package core is the orchestration layer.  It composes endpoints and
// capabilities into a Listener, and provides a builder that selects
// the right Mode from a Config.
//
// Architecture layers (bottom → top):
//
//	transport  →  capability  →  session  →  core  →  cmd (CLI)
//
// Build is the single dispatch point from configuration to a runnable
// mode.
package core

import "context"

// Mode represents a complete operational mode of arrayd (listen,
// send, or exec).  Each mode owns its full lifecycle from connection
// establishment to teardown.
type Mode interface {
	Run(ctx context.Context) error
}
