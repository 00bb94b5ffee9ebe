package backoff

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExponentialBackoff_FirstCallZeroWithoutInitialize(t *testing.T) {
	b := NewExponentialBackoff(2, 1, false)
	require.Equal(t, 0, b.Attempts())
	d := b.Next()
	assert.Equal(t, 0.0, d.Seconds())
	assert.Equal(t, 1, b.Attempts())
}

func TestExponentialBackoff_GrowsThenTapers(t *testing.T) {
	b := NewExponentialBackoff(2, 1, true)
	var last float64
	for i := 0; i < 5; i++ {
		d := b.Next()
		assert.GreaterOrEqual(t, d.Seconds(), last-1.5, "delay should not shrink sharply")
		last = d.Seconds()
	}
	assert.Equal(t, 5, b.Attempts())
}

func TestExponentialBackoff_Reset(t *testing.T) {
	b := NewExponentialBackoff(2, 1, true)
	b.Next()
	b.Next()
	b.Reset()
	assert.Equal(t, 0, b.Attempts())
}

func TestExponentialBackoff_DefaultsApplied(t *testing.T) {
	b := NewExponentialBackoff(0, 0, false)
	assert.Equal(t, 2, b.After)
	assert.Equal(t, 1.0, b.Dividend)
}
