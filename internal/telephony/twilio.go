package telephony

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/twilio/twilio-go"
	openapi "github.com/twilio/twilio-go/rest/api/v2010"
)

// twilioCalls is the slice of the Twilio REST API the provider uses.
type twilioCalls interface {
	CreateCall(params *openapi.CreateCallParams) (*openapi.ApiV2010Call, error)
	FetchAccount(sid string) (*openapi.ApiV2010Account, error)
}

// TwilioProvider places calls through the Twilio REST API. Answered calls
// fetch instructions from the voice webhook and report progress to the
// status webhook, both under PublicBaseURL.
type TwilioProvider struct {
	api        twilioCalls
	accountSID string
	baseURL    string
}

func NewTwilioProvider(accountSID, authToken, publicBaseURL string) (*TwilioProvider, error) {
	if accountSID == "" || authToken == "" {
		return nil, ErrNotConfigured
	}
	c := twilio.NewRestClientWithParams(twilio.ClientParams{
		Username: accountSID,
		Password: authToken,
	})
	return newTwilioProvider(c.Api, accountSID, publicBaseURL), nil
}

func newTwilioProvider(api twilioCalls, accountSID, publicBaseURL string) *TwilioProvider {
	return &TwilioProvider{
		api:        api,
		accountSID: accountSID,
		baseURL:    strings.TrimRight(publicBaseURL, "/"),
	}
}

func (p *TwilioProvider) Name() string { return "twilio" }

func (p *TwilioProvider) HealthCheck(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := p.api.FetchAccount(p.accountSID)
	return err
}

// InitiateCall dials destination from callerID and returns the call SID.
func (p *TwilioProvider) InitiateCall(ctx context.Context, destination, callerID string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if destination == "" || callerID == "" {
		return "", errors.New("telephony: destination and caller id required")
	}

	params := &openapi.CreateCallParams{}
	params.SetTo(destination)
	params.SetFrom(callerID)
	params.SetUrl(p.baseURL + VoiceWebhookPath)
	params.SetMethod("POST")
	params.SetStatusCallback(p.baseURL + StatusWebhookPath)
	params.SetStatusCallbackMethod("POST")
	params.SetStatusCallbackEvent([]string{"initiated", "ringing", "answered", "completed"})

	resp, err := p.api.CreateCall(params)
	if err != nil {
		return "", fmt.Errorf("twilio create call: %w", err)
	}
	if resp == nil || resp.Sid == nil || *resp.Sid == "" {
		return "", errors.New("twilio create call: empty call sid")
	}
	return *resp.Sid, nil
}

const (
	VoiceWebhookPath  = "/webhooks/twilio/voice"
	StatusWebhookPath = "/webhooks/twilio/status"
)
