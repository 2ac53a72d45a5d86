package assert

import (
	"testing"

	testify "github.com/stretchr/testify/assert"
)

func TestLength(t *testing.T) {
	testify.NotPanics(t, func() { Length("id", "abcd", 4) })
	testify.PanicsWithValue(t, "assert.Length id: expected 5 actual 4", func() { Length("id", "abcd", 5) })
}
