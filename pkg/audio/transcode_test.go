package audio

import (
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zaf/g711"
)

func TestUpsampleDoublesLength(t *testing.T) {
	in := []int16{0, 100, -100, 32000}
	out := Upsample2x(in)
	require.Len(t, out, 8)
	// Interpolated samples sit between their neighbours.
	assert.Equal(t, int16(50), out[1])
	assert.Equal(t, int16(0), out[3])
	// Last sample is repeated.
	assert.Equal(t, int16(32000), out[7])
}

func TestDownsampleHalvesLength(t *testing.T) {
	in := []int16{0, 100, 200, 300, 400}
	out := Downsample2x(in)
	require.Len(t, out, 3)
	assert.Equal(t, int16(50), out[0])
	assert.Equal(t, int16(250), out[1])
	assert.Equal(t, int16(400), out[2])
}

func TestUpDownRoundTripPreservesLength(t *testing.T) {
	in := make([]int16, 160) // one 20ms frame at 8kHz
	for i := range in {
		in[i] = int16(i * 100)
	}
	out := Downsample2x(Upsample2x(in))
	assert.Len(t, out, len(in))
}

func TestMulawToAgentPCMRoundTrip(t *testing.T) {
	// One frame of silence through the full phone -> agent -> phone path.
	// EncodeUlaw consumes 16-bit LPCM bytes, so 160 samples take 320 bytes.
	silence := make([]byte, 320)
	ulaw := g711.EncodeUlaw(silence)
	require.Len(t, ulaw, 160)
	payload := base64.StdEncoding.EncodeToString(ulaw)

	pcm, err := MulawToAgentPCM(payload)
	require.NoError(t, err)

	raw, err := base64.StdEncoding.DecodeString(pcm)
	require.NoError(t, err)
	assert.Len(t, raw, 160*2*2) // 16-bit samples at double the rate

	back, err := AgentPCMToMulaw(pcm)
	require.NoError(t, err)
	rawBack, err := base64.StdEncoding.DecodeString(back)
	require.NoError(t, err)
	assert.Len(t, rawBack, 160)
}

func TestMulawToAgentPCMRejectsBadBase64(t *testing.T) {
	_, err := MulawToAgentPCM("not base64!!")
	assert.Error(t, err)
}

func TestAgentPCMToMulawRejectsOddLength(t *testing.T) {
	_, err := AgentPCMToMulaw(base64.StdEncoding.EncodeToString([]byte{1, 2, 3}))
	assert.Error(t, err)
}

func TestEmptyPayloads(t *testing.T) {
	out, err := MulawToAgentPCM("")
	require.NoError(t, err)
	assert.Empty(t, out)

	out, err = AgentPCMToMulaw("")
	require.NoError(t, err)
	assert.Empty(t, out)
}
