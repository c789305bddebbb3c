package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/prudhvinik1/ledgersync/internal/models"
	"github.com/prudhvinik1/ledgersync/internal/queue"
	"github.com/prudhvinik1/ledgersync/internal/syncerr"
	"go.uber.org/zap"
)

// AccountSource resolves the single configured Stripe account.
type AccountSource interface {
	ProviderAccount(ctx context.Context) (*models.ProviderAccount, error)
}

type WebhookHandler struct {
	accounts  AccountSource
	sink      queue.Sink
	secret    string
	tolerance time.Duration
	now       func() time.Time
	log       *zap.Logger
}

// NewWebhookHandler builds the Stripe receiver. An empty secret turns
// signature verification off.
func NewWebhookHandler(accounts AccountSource, sink queue.Sink, secret string, log *zap.Logger) *WebhookHandler {
	return &WebhookHandler{
		accounts:  accounts,
		sink:      sink,
		secret:    secret,
		tolerance: DefaultSignatureTolerance,
		now:       time.Now,
		log:       log.Named("webhook"),
	}
}

func (h *WebhookHandler) HandleStripe(w http.ResponseWriter, r *http.Request) {
	body, ok := readRequestBody(w, r)
	if !ok {
		return
	}

	if h.secret != "" {
		if err := VerifyStripeSignature(body, r.Header.Get("Stripe-Signature"), h.secret, h.tolerance); err != nil {
			h.log.Warn("rejected webhook signature", zap.Error(err))
			writeError(w, r, http.StatusBadRequest, "invalid_signature", err.Error())
			return
		}
	}

	event, err := models.ParseEvent(body, h.now().UTC())
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid_event", err.Error())
		return
	}

	account, err := h.accounts.ProviderAccount(r.Context())
	if err != nil {
		h.log.Error("no provider account for webhook", zap.String("event_id", event.ID), zap.Error(err))
		if syncerr.KindOf(err) == syncerr.KindConfiguration {
			writeError(w, r, http.StatusInternalServerError, "configuration", "Stripe account not configured")
			return
		}
		writeError(w, r, http.StatusInternalServerError, "internal", "failed to load Stripe account")
		return
	}

	if !event.Handled() {
		h.log.Debug("ignoring event", zap.String("event_id", event.ID), zap.String("event_type", string(event.Type)))
		writeJSON(w, http.StatusOK, map[string]string{"status": "ignored", "message": "Event type not handled"})
		return
	}

	if err := h.sink.Submit(r.Context(), account.TenantID, event); err != nil {
		h.log.Error("failed to submit event",
			zap.String("event_id", event.ID),
			zap.String("event_type", string(event.Type)),
			zap.Error(err))
		writeError(w, r, http.StatusServiceUnavailable, "unavailable", "event could not be accepted")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "accepted"})
}
