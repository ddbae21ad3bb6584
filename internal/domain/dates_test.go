package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestParseTimestamp(t *testing.T) {
	tests := []struct {
		name     string
		raw      string
		dayFirst bool
		want     time.Time
		ok       bool
	}{
		{"iso date", "2024-03-05", false, time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC), true},
		{"iso datetime", "2024-03-05 07:30:00", false, time.Date(2024, 3, 5, 7, 30, 0, 0, time.UTC), true},
		{"iso with T", "2024-03-05T07:30", false, time.Date(2024, 3, 5, 7, 30, 0, 0, time.UTC), true},
		{"offset keeps wall clock", "2024-03-05T07:30:00-05:00", false, time.Date(2024, 3, 5, 7, 30, 0, 0, time.UTC), true},
		{"slashes year first", "2024/03/05", false, time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC), true},
		{"ambiguous month first", "03/05/2024", false, time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC), true},
		{"ambiguous day first", "03/05/2024", true, time.Date(2024, 5, 3, 0, 0, 0, 0, time.UTC), true},
		{"falls back to day first", "25/12/2024", false, time.Date(2024, 12, 25, 0, 0, 0, 0, time.UTC), true},
		{"falls back to month first", "12/25/2024", true, time.Date(2024, 12, 25, 0, 0, 0, 0, time.UTC), true},
		{"surrounding whitespace", "  2024-03-05 ", false, time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC), true},
		{"empty", "", false, time.Time{}, false},
		{"garbage", "not a date", false, time.Time{}, false},
		{"invalid day", "2024-02-30", false, time.Time{}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ParseTimestamp(tt.raw, tt.dayFirst)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseDate_Truncates(t *testing.T) {
	got, ok := ParseDate("2024-03-05 23:59:59", false)
	assert.True(t, ok)
	assert.Equal(t, time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC), got)
	assert.False(t, HasTimeOfDay(got))
}

func TestHasTimeOfDay(t *testing.T) {
	assert.False(t, HasTimeOfDay(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)))
	assert.True(t, HasTimeOfDay(time.Date(2024, 1, 1, 0, 0, 1, 0, time.UTC)))
	assert.True(t, HasTimeOfDay(time.Date(2024, 1, 1, 6, 0, 0, 0, time.UTC)))
}
