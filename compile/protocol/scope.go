package protocol

import (
	"fmt"
)

// Scope determines the shape of the wrapper function generated around the
// user's code.
type Scope int

const (
	// The user's statements run inside the wrapper, which takes the register
	// struct pointer.
	SimpleScope = Scope(iota)

	// The user's code is emitted verbatim with no wrapper prelude.  The user
	// is responsible for defining the wrapper function.
	RawScope

	// The expression's value is copied through the out parameter.  Array
	// and function expressions decay, and are retried as PrintValueScope.
	PrintAddressScope

	// The memory the (decayed) expression points to is copied through the
	// out parameter.
	PrintValueScope
)

func (scope Scope) String() string {
	switch scope {
	case SimpleScope:
		return "simple"
	case RawScope:
		return "raw"
	case PrintAddressScope:
		return "print address"
	case PrintValueScope:
		return "print value"
	default:
		return fmt.Sprintf("Scope(%d)", int(scope))
	}
}

func (scope Scope) IsPrint() bool {
	return scope == PrintAddressScope || scope == PrintValueScope
}

// NumParameters returns the number of parameters the wrapper function must
// take in this scope.
func (scope Scope) NumParameters() int {
	switch scope {
	case SimpleScope:
		return 1
	case RawScope:
		return 0
	case PrintAddressScope, PrintValueScope:
		return 2
	default:
		panic(fmt.Sprintf("invalid scope %d", int(scope)))
	}
}
