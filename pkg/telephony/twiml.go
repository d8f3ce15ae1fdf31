package telephony

import (
	"encoding/xml"
	"fmt"
	"net/url"
	"strings"
)

// Disclosure is spoken before the agent is connected. Several jurisdictions
// require announcing an automated caller.
const Disclosure = "Hello, this is an automated scheduling assistant calling on behalf of a client. This call may be recorded."

type twimlResponse struct {
	XMLName xml.Name      `xml:"Response"`
	Say     *twimlSay     `xml:"Say,omitempty"`
	Connect *twimlConnect `xml:"Connect,omitempty"`
}

type twimlSay struct {
	Voice string `xml:"voice,attr,omitempty"`
	Text  string `xml:",chardata"`
}

type twimlConnect struct {
	Stream twimlStream `xml:"Stream"`
}

type twimlStream struct {
	URL        string       `xml:"url,attr"`
	Parameters []twimlParam `xml:"Parameter"`
}

type twimlParam struct {
	Name  string `xml:"name,attr"`
	Value string `xml:"value,attr"`
}

// StreamTwiML renders the voice-webhook response: the disclosure followed by
// a Connect/Stream that hands the audio to our media-stream endpoint.
func StreamTwiML(publicBaseURL, callID, campaignID, providerID string) (string, error) {
	streamURL, err := mediaStreamURL(publicBaseURL, callID)
	if err != nil {
		return "", err
	}
	doc := twimlResponse{
		Say: &twimlSay{Voice: "alice", Text: Disclosure},
		Connect: &twimlConnect{Stream: twimlStream{
			URL: streamURL,
			Parameters: []twimlParam{
				{Name: "campaign_id", Value: campaignID},
				{Name: "provider_id", Value: providerID},
			},
		}},
	}
	out, err := xml.MarshalIndent(doc, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal twiml: %w", err)
	}
	return xml.Header + string(out), nil
}

// mediaStreamURL derives the wss:// media-stream URL from the public base URL.
func mediaStreamURL(publicBaseURL, callID string) (string, error) {
	u, err := url.Parse(publicBaseURL)
	if err != nil {
		return "", fmt.Errorf("parse public base url: %w", err)
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	case "http":
		u.Scheme = "ws"
	}
	// Set RawPath alongside Path so String() keeps the escaped call id as one
	// segment instead of re-escaping it.
	u.RawPath = strings.TrimRight(u.EscapedPath(), "/") + "/twilio/stream/" + url.PathEscape(callID)
	u.Path = strings.TrimRight(u.Path, "/") + "/twilio/stream/" + callID
	return u.String(), nil
}
