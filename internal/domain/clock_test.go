package domain

import (
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
)

func TestSetClock(t *testing.T) {
	t.Run("set custom clock", func(t *testing.T) {
		fixedTime := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
		SetClock(clockwork.NewFakeClockAt(fixedTime))
		defer SetClock(nil)

		assert.Equal(t, fixedTime, Now())
	})

	t.Run("now is UTC", func(t *testing.T) {
		loc := time.FixedZone("COT", -5*60*60)
		SetClock(clockwork.NewFakeClockAt(time.Date(2024, 1, 1, 7, 0, 0, 0, loc)))
		defer SetClock(nil)

		assert.Equal(t, time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC), Now())
	})

	t.Run("reset to real clock", func(t *testing.T) {
		SetClock(clockwork.NewFakeClockAt(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)))
		SetClock(nil)

		assert.True(t, time.Since(Now()) < time.Second)
	})
}
