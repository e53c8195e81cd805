package jobs

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBackoff_Doubles(t *testing.T) {
	b := NewBackoff(DefaultBackoffConfig())

	expected := []time.Duration{
		3 * time.Second,
		6 * time.Second,
		12 * time.Second,
		24 * time.Second,
		48 * time.Second,
		96 * time.Second,
	}
	for i, want := range expected {
		assert.Equal(t, want, b.Next(), "failure %d", i+1)
	}
	assert.Equal(t, len(expected), b.Failures())
}

func TestBackoff_Capped(t *testing.T) {
	b := NewBackoff(DefaultBackoffConfig())

	var last time.Duration
	for i := 0; i < 100; i++ {
		last = b.Next()
		assert.LessOrEqual(t, last, time.Hour)
	}
	assert.Equal(t, time.Hour, last)
}

func TestBackoff_Reset(t *testing.T) {
	b := NewBackoff(DefaultBackoffConfig())
	b.Next()
	b.Next()

	b.Reset()
	assert.Equal(t, 0, b.Failures())
	assert.Equal(t, 3*time.Second, b.Next())
}

func TestBackoff_Alarming(t *testing.T) {
	b := NewBackoff(DefaultBackoffConfig())
	assert.False(t, b.Alarming(29*time.Minute))
	assert.True(t, b.Alarming(30*time.Minute))
}

func TestNewBackoff_Defaults(t *testing.T) {
	b := NewBackoff(BackoffConfig{})
	assert.Equal(t, DefaultBackoffBase, b.Next())

	b = NewBackoff(BackoffConfig{Base: time.Minute, Max: time.Second})
	assert.Equal(t, time.Minute, b.Next())
	assert.True(t, b.Alarming(DefaultBackoffMax))
}
