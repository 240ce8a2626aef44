// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package sets

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSet(t *testing.T) {
	s := MakeWith("W", "b")
	assert.True(t, s.Has("W"))
	assert.False(t, s.Has("Wh"))

	s2 := MakeWith("W", "b", "Wh")
	assert.False(t, s.Equal(s2))
	assert.Equal(t, []string{"Wh"}, Sorted(s2.Sub(s)))
	assert.Empty(t, s.Sub(s2))

	s.Insert("Wh")
	assert.True(t, s.Equal(s2))
	assert.Equal(t, []string{"W", "Wh", "b"}, Sorted(s))
}
