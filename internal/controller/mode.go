package controller

import (
	"fmt"
	"strings"
)

// Mode governs whether and when a controller attempts to start.
type Mode int

const (
	// Never: the controller never attempts to start. If currently UP when
	// switched to Never, it stops.
	Never Mode = iota
	// OnDemand: starts only while at least one dependent is installed.
	OnDemand
	// Passive: starts opportunistically whenever its dependencies are UP,
	// whether or not anything currently depends on it.
	Passive
	// Active: starts eagerly once dependencies are UP.
	Active
	// Automatic: starts eagerly once dependencies are UP.
	//
	// The source distinguishes Active/Automatic by start priority;
	// priority scheduling beyond dependency order is an explicit
	// non-goal here, so both are treated identically.
	Automatic
)

func (m Mode) String() string {
	switch m {
	case Never:
		return "NEVER"
	case OnDemand:
		return "ON_DEMAND"
	case Passive:
		return "PASSIVE"
	case Active:
		return "ACTIVE"
	case Automatic:
		return "AUTOMATIC"
	default:
		return "UNKNOWN"
	}
}

// ParseMode parses a mode's String() form, case-insensitively.
func ParseMode(s string) (Mode, error) {
	switch strings.ToUpper(s) {
	case "NEVER":
		return Never, nil
	case "ON_DEMAND", "ONDEMAND":
		return OnDemand, nil
	case "PASSIVE":
		return Passive, nil
	case "ACTIVE":
		return Active, nil
	case "AUTOMATIC":
		return Automatic, nil
	default:
		return 0, fmt.Errorf("controller: unknown mode %q", s)
	}
}

// admitsStart reports whether mode allows starting given whether the
// controller currently has any installed dependents.
func admitsStart(mode Mode, hasDependents bool) bool {
	switch mode {
	case Never:
		return false
	case OnDemand:
		return hasDependents
	case Passive, Active, Automatic:
		return true
	default:
		return false
	}
}
