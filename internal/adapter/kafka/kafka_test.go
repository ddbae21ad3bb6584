package kafka

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/station-pivot-etl/internal/domain"
)

func TestSerializeToMessage(t *testing.T) {
	now := time.Date(2024, 4, 26, 15, 10, 0, 0, time.UTC)
	threshold := 50
	summary := domain.RunSummary{
		RunID:            "run-1",
		Outcome:          "ok",
		Files:            2,
		Rows:             6,
		Dates:            3,
		StationsBefore:   2,
		StationsRetained: 1,
		StationsRemoved:  1,
		Threshold:        &threshold,
		ProcessedAt:      now,
	}

	msg, err := serializeToMessage(summary)
	require.NoError(t, err)

	assert.Equal(t, []byte("run-1"), msg.Key)
	assert.Contains(t, string(msg.Value), `"stations_removed":1`)
	assert.Contains(t, string(msg.Value), `"threshold":50`)
	require.Len(t, msg.Headers, 2)
	assert.Equal(t, "outcome", msg.Headers[0].Key)
	assert.Equal(t, []byte("ok"), msg.Headers[0].Value)
	assert.Equal(t, "processed_at", msg.Headers[1].Key)
	assert.Equal(t, []byte(now.Format(time.RFC3339)), msg.Headers[1].Value)

	var decoded domain.RunSummary
	require.NoError(t, json.Unmarshal(msg.Value, &decoded))
	assert.Equal(t, 6, decoded.Rows)
	assert.True(t, now.Equal(decoded.ProcessedAt))
}

func TestSerializeToMessage_EmptyRunOmitsThreshold(t *testing.T) {
	msg, err := serializeToMessage(domain.RunSummary{RunID: "run-2", Outcome: "empty"})
	require.NoError(t, err)

	assert.NotContains(t, string(msg.Value), "threshold")
	assert.Equal(t, []byte("empty"), msg.Headers[0].Value)
}
