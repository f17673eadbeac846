// Package webhook delivers dispatch intents to an operator HTTP endpoint.
//
// Each intent is posted as the JSON encoding of dispatch.Intent and signed with
// HMAC-SHA256 over "<unix timestamp>.<body>". Receivers check the
// X-Billingkit-Signature, X-Billingkit-Timestamp and X-Billingkit-Delivery
// headers with ParseSignature and Verify:
//
//	sig, err := webhook.ParseSignature(r.Header)
//	if err != nil {
//		return err
//	}
//	err = webhook.Verify(secret, body, sig, 5*time.Minute, time.Now())
//
// A CircuitBreaker stops posting after consecutive transport or 5xx failures and
// tries the endpoint again after the recovery timeout. 4xx answers other than
// 408, 425 and 429 are treated as a final rejection and do not trip the breaker.
package webhook
