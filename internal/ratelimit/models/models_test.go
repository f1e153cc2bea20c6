package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNewIPKeyEscapesDelimiters(t *testing.T) {
	assert.Equal(t, "rl:session_start:ip:10.0.0.1", NewIPKey("session_start", "10.0.0.1"))
	assert.Equal(t, "rl:session_start:ip:__1", NewIPKey("session_start", "::1"))
}

func TestDenied(t *testing.T) {
	now := time.Date(2024, 3, 20, 9, 0, 0, 0, time.UTC)

	result := Denied(5, now, now.Add(1500*time.Millisecond))
	assert.False(t, result.Allowed)
	assert.Equal(t, 5, result.Limit)
	assert.Equal(t, 2, result.RetryAfter)

	assert.Equal(t, 1, Denied(5, now, now).RetryAfter)
}
