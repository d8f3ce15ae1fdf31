// Package audio converts between the two wire formats of a bridged call:
// Twilio media streams carry 8 kHz mu-law, the conversational agent speaks
// 16 kHz PCM16. Both sides base64-encode their payloads.
package audio

import (
	"encoding/base64"
	"encoding/binary"
	"fmt"

	"github.com/zaf/g711"
)

// MulawToAgentPCM converts one base64 Twilio media payload (mu-law, 8 kHz)
// into a base64 PCM16 16 kHz chunk for the agent session.
func MulawToAgentPCM(payload string) (string, error) {
	ulaw, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return "", fmt.Errorf("decode mu-law payload: %w", err)
	}
	pcm8k := bytesToSamples(g711.DecodeUlaw(ulaw))
	pcm16k := Upsample2x(pcm8k)
	return base64.StdEncoding.EncodeToString(samplesToBytes(pcm16k)), nil
}

// AgentPCMToMulaw converts one base64 agent audio chunk (PCM16, 16 kHz) into
// a base64 mu-law 8 kHz payload for a Twilio media frame.
func AgentPCMToMulaw(payload string) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return "", fmt.Errorf("decode pcm payload: %w", err)
	}
	if len(raw)%2 != 0 {
		return "", fmt.Errorf("pcm payload has odd length %d", len(raw))
	}
	pcm8k := Downsample2x(bytesToSamples(raw))
	ulaw := g711.EncodeUlaw(samplesToBytes(pcm8k))
	return base64.StdEncoding.EncodeToString(ulaw), nil
}

// Upsample2x doubles the sample rate by linear interpolation between
// neighbouring samples.
func Upsample2x(in []int16) []int16 {
	if len(in) == 0 {
		return nil
	}
	out := make([]int16, 0, len(in)*2)
	for i, s := range in {
		out = append(out, s)
		if i+1 < len(in) {
			out = append(out, int16((int32(s)+int32(in[i+1]))/2))
		} else {
			out = append(out, s)
		}
	}
	return out
}

// Downsample2x halves the sample rate by averaging sample pairs.
func Downsample2x(in []int16) []int16 {
	out := make([]int16, 0, (len(in)+1)/2)
	for i := 0; i < len(in); i += 2 {
		if i+1 < len(in) {
			out = append(out, int16((int32(in[i])+int32(in[i+1]))/2))
		} else {
			out = append(out, in[i])
		}
	}
	return out
}

func bytesToSamples(b []byte) []int16 {
	out := make([]int16, len(b)/2)
	for i := range out {
		out[i] = int16(binary.LittleEndian.Uint16(b[i*2:]))
	}
	return out
}

func samplesToBytes(s []int16) []byte {
	out := make([]byte, len(s)*2)
	for i, v := range s {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(v))
	}
	return out
}
