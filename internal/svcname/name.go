// Package svcname implements ServiceName, the canonical dotted-path identity
// used throughout the container to name services.
package svcname

import "strings"

// Name is an immutable, comparable, hashable identifier for a service.
// Two Names are equal iff their segment vectors are equal; Names are
// totally ordered lexicographically by segment.
//
// Name is a value type (backed by a string) so it can be used directly as
// a map key without wrapping.
type Name struct {
	dotted string
}

// Of builds a Name from one or more dotted-path segments. Each argument may
// itself contain dots ("a.b", "c") is equivalent to ("a", "b", "c").
func Of(segments ...string) Name {
	var parts []string
	for _, s := range segments {
		parts = append(parts, strings.Split(s, ".")...)
	}
	return Name{dotted: strings.Join(parts, ".")}
}

// Parse builds a Name from an already-dotted string.
func Parse(dotted string) Name {
	return Name{dotted: dotted}
}

// String returns the canonical dotted representation.
func (n Name) String() string {
	return n.dotted
}

// IsZero reports whether n is the zero Name (no segments).
func (n Name) IsZero() bool {
	return n.dotted == ""
}

// Segments returns the name's path segments.
func (n Name) Segments() []string {
	if n.dotted == "" {
		return nil
	}
	return strings.Split(n.dotted, ".")
}

// Less reports whether n sorts before other, comparing segment by segment.
func (n Name) Less(other Name) bool {
	a, b := n.Segments(), other.Segments()
	for i := 0; i < len(a) && i < len(b); i++ {
		if a[i] != b[i] {
			return a[i] < b[i]
		}
	}
	return len(a) < len(b)
}
