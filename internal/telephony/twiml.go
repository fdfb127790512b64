package telephony

import (
	"bytes"
	"encoding/xml"
	"errors"
	"strings"
)

// Minimal TwiML builder. Only the verbs the webhooks answer with.

type twimlResponse struct {
	XMLName xml.Name `xml:"Response"`
	Verbs   []any    `xml:",any"`
}

type twimlReject struct {
	XMLName xml.Name `xml:"Reject"`
	Reason  string   `xml:"reason,attr,omitempty"`
}

type twimlSay struct {
	XMLName xml.Name `xml:"Say"`
	Text    string   `xml:",chardata"`
}

type twimlHangup struct {
	XMLName xml.Name `xml:"Hangup"`
}

type twimlDial struct {
	XMLName   xml.Name     `xml:"Dial"`
	CallerID  string       `xml:"callerId,attr,omitempty"`
	TimeLimit int64        `xml:"timeLimit,attr,omitempty"`
	Number    *twimlNumber `xml:"Number,omitempty"`
	Client    *twimlClient `xml:"Client,omitempty"`
}

type twimlNumber struct {
	Value string `xml:",chardata"`
}

type twimlClient struct {
	Identity string `xml:",chardata"`
}

// RenderDial connects the caller to a PSTN number. A timeLimit of zero leaves
// the provider default in place.
func RenderDial(callerID, number string, timeLimitSeconds int64) (string, error) {
	if strings.TrimSpace(number) == "" {
		return "", errors.New("telephony: dial number required")
	}
	return render(twimlDial{CallerID: callerID, TimeLimit: max(timeLimitSeconds, 0), Number: &twimlNumber{Value: number}})
}

// RenderDialClient bridges an answered outbound call to a browser client.
func RenderDialClient(identity string, timeLimitSeconds int64) (string, error) {
	if strings.TrimSpace(identity) == "" {
		return "", errors.New("telephony: client identity required")
	}
	return render(twimlDial{TimeLimit: max(timeLimitSeconds, 0), Client: &twimlClient{Identity: identity}})
}

// RenderReject refuses the call. With a message it is spoken before hanging up.
func RenderReject(message string) (string, error) {
	if message == "" {
		return render(twimlReject{Reason: "rejected"})
	}
	return render(twimlSay{Text: message}, twimlHangup{})
}

func render(verbs ...any) (string, error) {
	r := twimlResponse{Verbs: verbs}
	var buf bytes.Buffer
	buf.WriteString(xml.Header)
	enc := xml.NewEncoder(&buf)
	enc.Indent("", "  ")
	if err := enc.Encode(r); err != nil {
		return "", err
	}
	if err := enc.Flush(); err != nil {
		return "", err
	}
	return buf.String(), nil
}
