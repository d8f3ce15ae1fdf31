package bridge

// Twilio media-stream wire frames. Only the fields the bridge reads are
// declared; unknown fields are ignored by the decoder.

type phoneMessage struct {
	Event string      `json:"event"`
	Start *startFrame `json:"start,omitempty"`
	Media *mediaFrame `json:"media,omitempty"`
}

type startFrame struct {
	StreamSid        string            `json:"streamSid"`
	CallSid          string            `json:"callSid"`
	CustomParameters map[string]string `json:"customParameters,omitempty"`
}

type mediaFrame struct {
	Payload string `json:"payload"`
}

// outboundMedia is an agent audio chunk sent back to the phone leg.
type outboundMedia struct {
	Event     string     `json:"event"`
	StreamSid string     `json:"streamSid"`
	Media     mediaFrame `json:"media"`
}

// outboundClear flushes Twilio's buffered audio after an interruption.
type outboundClear struct {
	Event     string `json:"event"`
	StreamSid string `json:"streamSid"`
}

func newMediaMessage(streamSid, payload string) outboundMedia {
	return outboundMedia{Event: "media", StreamSid: streamSid, Media: mediaFrame{Payload: payload}}
}

func newClearMessage(streamSid string) outboundClear {
	return outboundClear{Event: "clear", StreamSid: streamSid}
}
