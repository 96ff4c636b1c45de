// Package svcname validates service names as RFC-1123 labels, the same
// character set the container runtime accepts for a network alias.
package svcname

import (
	"fmt"
	"regexp"
)

var labelPattern = regexp.MustCompile(`^[a-z0-9]([a-z0-9-]*[a-z0-9])?$`)

// Name is a validated RFC-1123 label: lowercase ASCII letters, digits, and
// hyphens, 1..=63 octets, never starting or ending with a hyphen. Because
// the character set is a subset of what the runtime accepts for a network
// alias, every Name is trivially a valid alias.
type Name struct {
	value string
}

// Parse validates s as a service name.
func Parse(s string) (Name, error) {
	if len(s) == 0 || len(s) > 63 {
		return Name{}, fmt.Errorf("service name %q: must be 1..63 octets", s)
	}
	if !labelPattern.MatchString(s) {
		return Name{}, fmt.Errorf("service name %q: must be lowercase alphanumeric with internal hyphens only", s)
	}
	return Name{value: s}, nil
}

// MustParse panics if s is not a valid service name. Intended for tests and
// compile-time constants, not for parsing caller input.
func MustParse(s string) Name {
	n, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return n
}

// String returns the validated name.
func (n Name) String() string {
	return n.value
}

// Alias returns n coerced to a network alias. The conversion cannot fail:
// Name's character set is a subset of what the runtime accepts as an alias.
func (n Name) Alias() string {
	return n.value
}
