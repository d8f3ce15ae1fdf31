package telephony

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStreamTwiMLShape(t *testing.T) {
	out, err := StreamTwiML("https://calls.example.com", "CA123", "camp1", "prov1")
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(out, "<?xml"))
	assert.Contains(t, out, "<Say voice=\"alice\">")
	assert.Contains(t, out, Disclosure)
	assert.Contains(t, out, `url="wss://calls.example.com/twilio/stream/CA123"`)
	assert.Contains(t, out, `<Parameter name="campaign_id" value="camp1">`)
	assert.Contains(t, out, `<Parameter name="provider_id" value="prov1">`)
}

func TestStreamTwiMLDowngradesHTTPToWS(t *testing.T) {
	out, err := StreamTwiML("http://localhost:8000", "CA9", "c", "p")
	require.NoError(t, err)
	assert.Contains(t, out, `url="ws://localhost:8000/twilio/stream/CA9"`)
}

func TestMediaStreamURLEscapesCallID(t *testing.T) {
	u, err := mediaStreamURL("https://host", "CA 1/2")
	require.NoError(t, err)
	assert.Equal(t, "wss://host/twilio/stream/CA%201%2F2", u)
}
