package coldstate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	r := Record{
		Namespace: "fleet",
		ObjectID:  "truck-1",
		X:         12.34, Y: -56.78, Z: 9.1,
		Metadata:  []byte(`{"speed":42}`),
		Timestamp: 1700000000000000000,
	}

	payload := r.encode()
	got, err := decodeRecord(payload)
	require.NoError(t, err)
	assert.Equal(t, r, got)
}

func TestDecodeRecordRejectsUnknownVersion(t *testing.T) {
	payload := Record{Namespace: "a", ObjectID: "b"}.encode()
	payload[0] = formatVersion + 1
	_, err := decodeRecord(payload)
	assert.Error(t, err)
}

func TestDecodeRecordRejectsTruncatedPayload(t *testing.T) {
	payload := Record{Namespace: "a", ObjectID: "b", Timestamp: 1}.encode()
	_, err := decodeRecord(payload[:len(payload)-2])
	assert.Error(t, err)
}

func TestFrameRoundTripsThroughCRC(t *testing.T) {
	payload := Record{Namespace: "a", ObjectID: "b"}.encode()
	framed := frame(payload)
	assert.Greater(t, len(framed), len(payload))
}
