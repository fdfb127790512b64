package telephony

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"zkypee/internal/calls"
)

func formRequest(path string, v url.Values) *http.Request {
	r := httptest.NewRequest(http.MethodPost, path, strings.NewReader(v.Encode()))
	r.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return r
}

func TestParseStatusCallback(t *testing.T) {
	cases := []struct {
		status string
		want   calls.Status
	}{
		{"queued", calls.StatusInitiated},
		{"initiated", calls.StatusInitiated},
		{"ringing", calls.StatusRinging},
		{"in-progress", calls.StatusAnswered},
		{"completed", calls.StatusCompleted},
		{"busy", calls.StatusFailed},
		{"no-answer", calls.StatusFailed},
		{"canceled", calls.StatusFailed},
		{"failed", calls.StatusFailed},
	}
	for _, tc := range cases {
		ev, err := ParseStatusCallback(formRequest(StatusWebhookPath, url.Values{"CallSid": {"CA1"}, "CallStatus": {tc.status}}))
		if err != nil {
			t.Fatalf("%s: expected no error, got %v", tc.status, err)
		}
		if ev.Status != tc.want || ev.CallID != "CA1" {
			t.Fatalf("%s: expected %s, got %+v", tc.status, tc.want, ev)
		}
	}
}

func TestParseStatusCallbackDuration(t *testing.T) {
	ev, err := ParseStatusCallback(formRequest(StatusWebhookPath, url.Values{
		"CallSid": {"CA1"}, "CallStatus": {"completed"}, "CallDuration": {"61"},
	}))
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if ev.DurationSeconds != 61 {
		t.Fatalf("expected 61, got %d", ev.DurationSeconds)
	}

	for _, bad := range []url.Values{
		{"CallStatus": {"completed"}},
		{"CallSid": {"CA1"}, "CallStatus": {"teleported"}},
		{"CallSid": {"CA1"}, "CallStatus": {"completed"}, "CallDuration": {"-4"}},
	} {
		if _, err := ParseStatusCallback(formRequest(StatusWebhookPath, bad)); !errors.Is(err, ErrInvalidCallback) {
			t.Fatalf("expected ErrInvalidCallback for %v, got %v", bad, err)
		}
	}
}

func TestParseVoiceRequest(t *testing.T) {
	v, err := ParseVoiceRequest(formRequest(VoiceWebhookPath, url.Values{
		"CallSid": {"CA9"}, "From": {"client:u1"}, "To": {"+44 20 7946 0958"}, "Fingerprint": {" fp "},
	}))
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	id, ok := v.ClientIdentity()
	if !ok || id != "u1" {
		t.Fatalf("expected client identity u1, got %q %v", id, ok)
	}
	if v.Fingerprint != "fp" {
		t.Fatalf("expected trimmed fingerprint, got %q", v.Fingerprint)
	}

	if _, ok := (VoiceRequest{From: "+15551234567"}).ClientIdentity(); ok {
		t.Fatalf("PSTN caller must not be a client identity")
	}
	if _, ok := (VoiceRequest{From: "client:"}).ClientIdentity(); ok {
		t.Fatalf("empty identity must be rejected")
	}
}
