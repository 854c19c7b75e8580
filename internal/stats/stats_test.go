package stats

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func Test_Percentile(t *testing.T) {
	sample := []time.Duration{
		5 * time.Millisecond,
		1 * time.Millisecond,
		3 * time.Millisecond,
		2 * time.Millisecond,
		4 * time.Millisecond,
	}

	assert.Equal(t, 3*time.Millisecond, Percentile(sample, 0.5))
	assert.Equal(t, 5*time.Millisecond, Percentile(sample, 1.0))
	assert.Equal(t, 1*time.Millisecond, Percentile(sample, 0.1))
}

func Test_PercentileEmpty(t *testing.T) {
	assert.Equal(t, time.Duration(0), Percentile(nil, 0.5))
}

func Test_Compute(t *testing.T) {
	sample := []time.Duration{
		1 * time.Millisecond,
		2 * time.Millisecond,
		3 * time.Millisecond,
	}

	p := Compute(sample)
	assert.Equal(t, 2*time.Millisecond, p.Avg)
	assert.Equal(t, 2*time.Millisecond, p.P50)
	assert.Equal(t, 3*time.Millisecond, p.Max)
}

func Test_FormatNanos(t *testing.T) {
	assert.Equal(t, "500ns", FormatNanos(500*time.Nanosecond))
	assert.Equal(t, "1.50µs", FormatNanos(1500*time.Nanosecond))
	assert.Equal(t, "2.00ms", FormatNanos(2*time.Millisecond))
	assert.Equal(t, "1.25s", FormatNanos(1250*time.Millisecond))
}
