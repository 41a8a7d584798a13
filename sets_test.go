package rolesbot

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWithout(t *testing.T) {
	s1 := NewRoleSet("red", "green", "pink")
	s2 := NewRoleSet("green", "blue")

	assert.Equal(t, []string{"pink", "red"}, s1.Without(s2))
	assert.Equal(t, []string{"blue"}, s2.Without(s1))
	assert.Empty(t, s1.Without(s1))
}

func TestRoleSet(t *testing.T) {
	s := NewRoleSet("b", "a")
	s.Add("c", "a")
	s.Remove("b", "missing")

	assert.Equal(t, []string{"a", "c"}, s.Slice())
	assert.True(t, s.Has("c"))
	assert.False(t, s.Has("b"))

	c := s.Clone()
	c.Add("d")
	assert.False(t, s.Has("d"))
	assert.False(t, s.Equal(c))

	c.Remove("d")
	assert.True(t, s.Equal(c))
	assert.True(t, NewRoleSet().Equal(nil))
}
