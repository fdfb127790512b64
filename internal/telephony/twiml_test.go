package telephony

import (
	"strings"
	"testing"
)

func TestRenderDial(t *testing.T) {
	xml, err := RenderDial("+15550000000", "+442079460958", 600)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	for _, want := range []string{`<Dial callerId="+15550000000" timeLimit="600">`, `<Number>+442079460958</Number>`} {
		if !strings.Contains(xml, want) {
			t.Fatalf("expected %q in xml: %s", want, xml)
		}
	}
}

func TestRenderDialOmitsZeroTimeLimit(t *testing.T) {
	xml, err := RenderDial("", "+442079460958", 0)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if strings.Contains(xml, "timeLimit") || strings.Contains(xml, "callerId") {
		t.Fatalf("expected bare dial: %s", xml)
	}
}

func TestRenderDialRequiresNumber(t *testing.T) {
	if _, err := RenderDial("+1555", " ", 60); err == nil {
		t.Fatalf("expected error")
	}
}

func TestRenderReject(t *testing.T) {
	xml, err := RenderReject("")
	if err != nil || !strings.Contains(xml, "<Reject") {
		t.Fatalf("expected reject, got %q %v", xml, err)
	}
	xml, err = RenderReject("No credit & no luck")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if !strings.Contains(xml, "<Say>No credit &amp; no luck</Say>") || !strings.Contains(xml, "<Hangup>") {
		t.Fatalf("unexpected xml: %s", xml)
	}
}

func TestRenderDialClient(t *testing.T) {
	xml, err := RenderDialClient("u1", 0)
	if err != nil || !strings.Contains(xml, "<Client>u1</Client>") {
		t.Fatalf("unexpected: %q %v", xml, err)
	}
}
