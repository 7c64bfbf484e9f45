package clock_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/FerociousFuture/Proyecto-NFC-List/internal/clock"
)

func TestFakeClock_AdvanceAndSet(t *testing.T) {
	start := time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)
	c := clock.Fake(start)

	assert.Equal(t, start, c.Now())
	assert.Equal(t, start.Add(3*time.Second), c.Advance(3*time.Second))
	assert.Equal(t, start.Add(3*time.Second), c.Now())

	later := start.Add(time.Hour)
	c.Set(later)
	assert.Equal(t, later, c.Now())
}

func TestReal_IsCloseToTimeNow(t *testing.T) {
	got := clock.Real().Now()
	assert.WithinDuration(t, time.Now(), got, time.Second)
}
