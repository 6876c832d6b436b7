package id

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewIsSortedAndUnique(t *testing.T) {
	seen := make(map[string]bool)
	prev := ""
	for i := 0; i < 1000; i++ {
		s := New()
		assert.Len(t, s, 26)
		assert.False(t, seen[s], "duplicate id %s", s)
		seen[s] = true
		if prev != "" {
			assert.Less(t, prev, s)
		}
		prev = s
	}
}

func TestWithPrefix(t *testing.T) {
	s := WithPrefix("ord")
	assert.Len(t, s, 30)
	assert.Equal(t, "ord-", s[:4])
}
