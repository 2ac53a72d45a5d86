// Package assert panics when an internal invariant is broken.
package assert

import (
	"fmt"
)

// Length panics unless value has exactly expected bytes.
func Length(name, value string, expected int) {
	if len(value) != expected {
		panic(fmt.Sprintf("assert.Length %s: expected %d actual %d", name, expected, len(value)))
	}
}
