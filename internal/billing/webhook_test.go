package billing_test

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/alecgard/planboard/internal/billing"
)

const testWebhookSecret = "whsec_test"

func sign(payload []byte, secret string) string {
	ts := time.Now().Unix()
	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = fmt.Fprintf(mac, "%d.%s", ts, payload)
	return fmt.Sprintf("t=%d,v1=%s", ts, hex.EncodeToString(mac.Sum(nil)))
}

func TestWebhookParser_SubscriptionDeleted(t *testing.T) {
	payload := []byte(`{
		"id": "evt_1",
		"object": "event",
		"type": "customer.subscription.deleted",
		"data": {"object": {"id": "sub_9", "object": "subscription", "status": "canceled", "ended_at": 1700000000}}
	}`)

	evt, err := billing.NewWebhookParser(testWebhookSecret).Parse(payload, sign(payload, testWebhookSecret))
	require.NoError(t, err)
	require.Equal(t, "evt_1", evt.ID)
	require.Equal(t, billing.EventSubscriptionDeleted, evt.Type)
	require.Equal(t, "sub_9", evt.SubscriptionID)
	require.Equal(t, billing.StatusCanceled, evt.Subscription.Status)
	require.NotNil(t, evt.Subscription.EndedAt)
}

func TestWebhookParser_InvoicePaymentFailed(t *testing.T) {
	payload := []byte(`{
		"id": "evt_2",
		"object": "event",
		"type": "invoice.payment_failed",
		"data": {"object": {"id": "in_1", "object": "invoice", "subscription": "sub_9"}}
	}`)

	evt, err := billing.NewWebhookParser(testWebhookSecret).Parse(payload, sign(payload, testWebhookSecret))
	require.NoError(t, err)
	require.Equal(t, billing.EventPaymentFailed, evt.Type)
	require.Equal(t, "sub_9", evt.SubscriptionID)
}

func TestWebhookParser_IgnoresOtherEvents(t *testing.T) {
	payload := []byte(`{"id":"evt_3","object":"event","type":"customer.created","data":{"object":{"id":"cus_1","object":"customer"}}}`)

	evt, err := billing.NewWebhookParser(testWebhookSecret).Parse(payload, sign(payload, testWebhookSecret))
	require.NoError(t, err)
	require.Equal(t, billing.EventIgnored, evt.Type)
	require.Equal(t, "customer.created", evt.RemoteType)
}

func TestWebhookParser_RejectsBadSignature(t *testing.T) {
	payload := []byte(`{"id":"evt_4","object":"event","type":"customer.subscription.updated","data":{"object":{}}}`)

	_, err := billing.NewWebhookParser(testWebhookSecret).Parse(payload, sign(payload, "whsec_other"))
	require.ErrorIs(t, err, billing.ErrInvalidSignature)

	_, err = billing.NewWebhookParser(testWebhookSecret).Parse(payload, "")
	require.ErrorIs(t, err, billing.ErrInvalidSignature)
}

func TestWebhookParser_NotConfigured(t *testing.T) {
	_, err := billing.NewWebhookParser("").Parse([]byte(`{}`), "t=1,v1=00")
	require.ErrorIs(t, err, billing.ErrNotConfigured)
}
