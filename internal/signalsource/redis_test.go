package signalsource

import (
	"testing"

	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/predictdesk/polyrisk/pkg/types"
)

func message(values map[string]interface{}) redis.XMessage {
	return redis.XMessage{ID: "1700000000000-0", Values: values}
}

func TestParseSignal_WellFormed(t *testing.T) {
	msg := message(map[string]interface{}{
		"id": "sig-1",
		"data": `{
			"signal_id": "sig-1",
			"strategy": "poisson_ev",
			"market_id": "0xmkt1",
			"side": "yes",
			"confidence": 0.62,
			"edge": 0.08,
			"generated_at": "2026-03-10T12:00:00Z"
		}`,
	})

	signal, err := parseSignal(msg)
	require.NoError(t, err)

	assert.Equal(t, "sig-1", signal.ID)
	assert.Equal(t, types.SideYes, signal.Side)
	assert.InDelta(t, 0.62, signal.Confidence, 1e-12)
	assert.InDelta(t, 0.08, signal.Edge, 1e-12)
}

func TestParseSignal_MissingData(t *testing.T) {
	_, err := parseSignal(message(map[string]interface{}{"id": "sig-1"}))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no data field")
}

func TestParseSignal_MalformedJSON(t *testing.T) {
	_, err := parseSignal(message(map[string]interface{}{"data": "{not json"}))
	assert.Error(t, err)
}

func TestParseSignal_StructurallyInvalid(t *testing.T) {
	tests := []struct {
		name    string
		payload string
	}{
		{"missing market", `{"signal_id": "s1", "side": "yes", "confidence": 0.5}`},
		{"bad side", `{"signal_id": "s1", "market_id": "m1", "side": "maybe", "confidence": 0.5}`},
		{"confidence out of range", `{"signal_id": "s1", "market_id": "m1", "side": "no", "confidence": 1.4}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := parseSignal(message(map[string]interface{}{"data": tt.payload}))
			assert.Error(t, err)
		})
	}
}
