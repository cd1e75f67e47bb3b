package billing

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/webhook"
)

// ErrInvalidSignature is returned when a webhook payload fails verification.
var ErrInvalidSignature = errors.New("invalid webhook signature")

// EventType is the provider-neutral kind of a webhook event.
type EventType string

const (
	EventSubscriptionUpdated EventType = "subscription.updated"
	EventSubscriptionDeleted EventType = "subscription.deleted"
	EventPaymentFailed       EventType = "payment.failed"
	EventPaymentSucceeded    EventType = "payment.succeeded"
	EventIgnored             EventType = "ignored"
)

// Event is a verified webhook push.
type Event struct {
	ID             string
	Type           EventType
	RemoteType     string
	SubscriptionID string
	Subscription   *RemoteSubscription
}

// WebhookParser verifies and decodes Stripe webhook payloads.
type WebhookParser struct {
	secret string
}

// NewWebhookParser creates a parser for the given endpoint signing secret.
func NewWebhookParser(secret string) *WebhookParser {
	return &WebhookParser{secret: secret}
}

// Parse verifies the Stripe-Signature header against payload and maps the
// event. Unhandled event types come back as EventIgnored.
func (w *WebhookParser) Parse(payload []byte, signature string) (*Event, error) {
	if w == nil || w.secret == "" {
		return nil, ErrNotConfigured
	}

	evt, err := webhook.ConstructEventWithOptions(payload, signature, w.secret,
		webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}

	out := &Event{ID: evt.ID, Type: EventIgnored, RemoteType: string(evt.Type)}
	if evt.Data == nil {
		return out, nil
	}

	switch evt.Type {
	case "customer.subscription.updated", "customer.subscription.deleted":
		var sub stripe.Subscription
		if err := json.Unmarshal(evt.Data.Raw, &sub); err != nil {
			return nil, fmt.Errorf("decoding subscription: %w", err)
		}
		out.Subscription = FromStripeSubscription(&sub)
		out.SubscriptionID = sub.ID
		out.Type = EventSubscriptionUpdated
		if evt.Type == "customer.subscription.deleted" {
			out.Type = EventSubscriptionDeleted
		}

	case "invoice.payment_failed", "invoice.payment_succeeded":
		var inv stripe.Invoice
		if err := json.Unmarshal(evt.Data.Raw, &inv); err != nil {
			return nil, fmt.Errorf("decoding invoice: %w", err)
		}
		if inv.Subscription == nil || inv.Subscription.ID == "" {
			return out, nil
		}
		out.SubscriptionID = inv.Subscription.ID
		out.Type = EventPaymentSucceeded
		if evt.Type == "invoice.payment_failed" {
			out.Type = EventPaymentFailed
		}
	}
	return out, nil
}
