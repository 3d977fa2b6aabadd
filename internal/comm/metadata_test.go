package comm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeMetadata(t *testing.T) {
	raw := map[string]string{
		"mosaico:context":       "sequence",
		"mosaico:user_metadata": `{"vehicle":"demo-01","runs":3}`,
		"plain":                 "not-json",
	}
	got := DecodeMetadata(raw)

	assert.Equal(t, "sequence", got["mosaico:context"])
	assert.Equal(t, "not-json", got["plain"])
	meta, ok := got["mosaico:user_metadata"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "demo-01", meta["vehicle"])
	assert.Equal(t, float64(3), meta["runs"])
}

func TestDecodeSequenceMetadata(t *testing.T) {
	m := DecodeMetadata(map[string]string{
		"mosaico:context":       "sequence",
		"mosaico:user_metadata": `{"vehicle":"demo-01","ros:internal":"x"}`,
	})
	got, err := DecodeSequenceMetadata(m)
	require.NoError(t, err)
	assert.Equal(t, "sequence", got.Context)
	assert.Equal(t, "demo-01", got.UserMetadata["vehicle"])

	// Internal ros:-prefixed keys are filtered before reaching the caller.
	_, present := got.UserMetadata["ros:internal"]
	assert.False(t, present)
}

func TestDecodeSequenceMetadataWrongContext(t *testing.T) {
	m := DecodeMetadata(map[string]string{"mosaico:context": "topic"})
	_, err := DecodeSequenceMetadata(m)
	require.ErrorIs(t, err, ErrProtocol)
}

func TestDecodeTopicMetadata(t *testing.T) {
	m := DecodeMetadata(map[string]string{
		"mosaico:context":       "topic",
		"mosaico:properties":    `{"ontology_tag":"imu","serialization_format":"default"}`,
		"mosaico:user_metadata": `{"serial":"X100"}`,
	})
	got, err := DecodeTopicMetadata(m)
	require.NoError(t, err)
	assert.Equal(t, "imu", got.Properties.OntologyTag)
	assert.Equal(t, "default", got.Properties.SerializationFormat)
	assert.Equal(t, "X100", got.UserMetadata["serial"])
}

func TestDecodeTopicMetadataWrongContext(t *testing.T) {
	m := DecodeMetadata(map[string]string{"mosaico:context": "sequence"})
	_, err := DecodeTopicMetadata(m)
	require.ErrorIs(t, err, ErrProtocol)
}
