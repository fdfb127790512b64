package telephony

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"zkypee/internal/calls"
)

// Twilio sends application/x-www-form-urlencoded webhooks.
// Ref: https://www.twilio.com/docs/voice/api/call-resource#statuscallback

// ParseVoiceRequest reads a voice webhook. Fingerprint and IP are custom
// parameters set by the browser client for trial calls.
func ParseVoiceRequest(r *http.Request) (VoiceRequest, error) {
	if err := r.ParseForm(); err != nil {
		return VoiceRequest{}, err
	}
	v := VoiceRequest{
		CallID:      strings.TrimSpace(r.PostFormValue("CallSid")),
		From:        strings.TrimSpace(r.PostFormValue("From")),
		To:          strings.TrimSpace(r.PostFormValue("To")),
		Direction:   strings.TrimSpace(r.PostFormValue("Direction")),
		Fingerprint: strings.TrimSpace(r.PostFormValue("Fingerprint")),
		IP:          strings.TrimSpace(r.PostFormValue("IP")),
	}
	if v.CallID == "" {
		return VoiceRequest{}, fmt.Errorf("%w: CallSid required", ErrInvalidCallback)
	}
	return v, nil
}

// ParseStatusCallback maps a status callback to a StatusEvent.
// busy, no-answer and canceled are failures; queued is initiated.
func ParseStatusCallback(r *http.Request) (StatusEvent, error) {
	if err := r.ParseForm(); err != nil {
		return StatusEvent{}, err
	}
	ev := StatusEvent{
		CallID:         strings.TrimSpace(r.PostFormValue("CallSid")),
		ProviderStatus: strings.TrimSpace(r.PostFormValue("CallStatus")),
	}
	if ev.CallID == "" {
		return StatusEvent{}, fmt.Errorf("%w: CallSid required", ErrInvalidCallback)
	}

	st, ok := mapTwilioStatus(ev.ProviderStatus)
	if !ok {
		return StatusEvent{}, fmt.Errorf("%w: unknown CallStatus %q", ErrInvalidCallback, ev.ProviderStatus)
	}
	ev.Status = st

	if raw := strings.TrimSpace(r.PostFormValue("CallDuration")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			return StatusEvent{}, fmt.Errorf("%w: CallDuration %q", ErrInvalidCallback, raw)
		}
		ev.DurationSeconds = n
	}
	return ev, nil
}

func mapTwilioStatus(s string) (calls.Status, bool) {
	switch strings.ToLower(s) {
	case "queued", "initiated":
		return calls.StatusInitiated, true
	case "ringing":
		return calls.StatusRinging, true
	case "in-progress", "answered":
		return calls.StatusAnswered, true
	case "completed":
		return calls.StatusCompleted, true
	case "busy", "no-answer", "canceled", "failed":
		return calls.StatusFailed, true
	default:
		return "", false
	}
}
