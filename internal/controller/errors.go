package controller

import "errors"

var (
	// ErrNotRemovable is returned by Remove when the controller is not in
	// DOWN or START_FAILED.
	ErrNotRemovable = errors.New("controller: not removable in current state")
	// ErrHasDependents is returned by Remove when the controller still has
	// live dependents.
	ErrHasDependents = errors.New("controller: has live dependents")
)
