package telephony

import (
	"context"
	"errors"
	"net/http"

	"zkypee/internal/billing"
	"zkypee/internal/calls"
	"zkypee/pkg/logger"

	"github.com/gin-gonic/gin"
)

// CallBilling is what the webhooks need from the billing coordinator.
type CallBilling interface {
	StartCall(ctx context.Context, callID, userID, destination string) (billing.Quote, error)
	StartTrialCall(ctx context.Context, callID, fingerprint, ip, destination string) (billing.TrialQuote, error)
	Lookup(ctx context.Context, callID string) (calls.Record, error)
	OnStatusChanged(ctx context.Context, callID string, status calls.Status, durationSeconds int) (calls.Record, error)
}

// WebhookHandler turns Twilio webhooks into coordinator calls and writes TwiML.
// No billing decisions are made here.
type WebhookHandler struct {
	Billing  CallBilling
	CallerID string
}

const (
	msgInsufficientCredits = "You do not have enough credit for this call. Please top up and try again."
	msgTrialExhausted      = "Your free trial calls have been used. Please sign up to keep calling."
	msgTooManyCalls        = "You already have a call in progress. Please hang up and try again."
	msgUnavailable         = "We cannot place your call right now. Please try again later."
)

// HandleVoice answers a voice webhook.
//
// Browser clients connect as "client:<user id>" with the destination in To;
// trial clients also send a Fingerprint. Calls placed through the REST API
// are bridged to the owner's browser client under the time limit quoted when
// they were placed. Trial calls are never placed that way, so a trial record
// reaching the bridge is rejected.
func (h WebhookHandler) HandleVoice(c *gin.Context) {
	log := logger.FromGin(c)
	ctx := c.Request.Context()

	v, err := ParseVoiceRequest(c.Request)
	if err != nil {
		log.Warn("twilio voice parse failed", "err", err)
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid form"})
		return
	}
	log = log.With("call_id", v.CallID)

	identity, fromClient := v.ClientIdentity()
	switch {
	case fromClient && v.Fingerprint != "":
		q, err := h.Billing.StartTrialCall(ctx, v.CallID, v.Fingerprint, v.IP, v.To)
		if err != nil {
			log.Info("trial call refused", "reason", q.Reason, "err", err)
			h.writeRefusal(c, err)
			return
		}
		h.writeTwiML(c, func() (string, error) { return RenderDial(h.CallerID, q.NormalizedNumber, q.MaxCallSeconds) })

	case fromClient:
		q, err := h.Billing.StartCall(ctx, v.CallID, identity, v.To)
		if err != nil {
			log.Info("call refused", "user_id", identity, "reason", q.Reason, "err", err)
			h.writeRefusal(c, err)
			return
		}
		h.writeTwiML(c, func() (string, error) { return RenderDial(h.CallerID, q.NormalizedNumber, q.MaxCallSeconds()) })

	default:
		rec, err := h.Billing.Lookup(ctx, v.CallID)
		if err != nil || rec.IsTrial() {
			log.Warn("voice webhook for unknown call", "from", v.From, "err", err)
			h.writeTwiML(c, func() (string, error) { return RenderReject("") })
			return
		}
		h.writeTwiML(c, func() (string, error) { return RenderDialClient(rec.UserID, rec.MaxCallSeconds) })
	}
}

// HandleStatus applies a status callback. A billing failure answers 503 so
// the delivery shows up as failed on the provider side too.
func (h WebhookHandler) HandleStatus(c *gin.Context) {
	log := logger.FromGin(c)

	ev, err := ParseStatusCallback(c.Request)
	if err != nil {
		log.Warn("twilio status parse failed", "err", err)
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid form"})
		return
	}

	rec, err := h.Billing.OnStatusChanged(c.Request.Context(), ev.CallID, ev.Status, ev.DurationSeconds)
	switch {
	case err == nil:
		c.JSON(http.StatusOK, gin.H{"call_id": rec.CallID, "status": rec.Status})
	case errors.Is(err, billing.ErrCallNotFound):
		log.Warn("status for unknown call", "call_id", ev.CallID, "status", ev.ProviderStatus)
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "unknown call"})
	case errors.Is(err, billing.ErrInvalidInput):
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		log.Error("status callback failed", "call_id", ev.CallID, "status", ev.ProviderStatus, "err", err)
		c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": "billing unavailable"})
	}
}

func (h WebhookHandler) writeRefusal(c *gin.Context, err error) {
	msg := msgUnavailable
	switch {
	case errors.Is(err, billing.ErrInsufficientCredits):
		msg = msgInsufficientCredits
	case errors.Is(err, billing.ErrTrialExhausted):
		msg = msgTrialExhausted
	case errors.Is(err, billing.ErrTooManyCalls):
		msg = msgTooManyCalls
	}
	h.writeTwiML(c, func() (string, error) { return RenderReject(msg) })
}

func (h WebhookHandler) writeTwiML(c *gin.Context, build func() (string, error)) {
	twiml, err := build()
	if err != nil {
		logger.FromGin(c).Error("twiml render failed", "err", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "twiml failed"})
		return
	}
	c.Header("Content-Type", "application/xml")
	c.String(http.StatusOK, twiml)
}
