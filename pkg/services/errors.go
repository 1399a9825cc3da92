// Package services wraps the embedded store with typed persistence
// operations for plans, actions, triggers, and the event audit trail.
package services

import "errors"

var (
	// ErrNotFound is returned when an entity is not found.
	ErrNotFound = errors.New("entity not found")

	// ErrAlreadyExists is returned when attempting to create a duplicate entity.
	ErrAlreadyExists = errors.New("entity already exists")
)
