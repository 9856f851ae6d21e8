package billing

// ProviderEvent is the provider-agnostic shape every external signal is
// normalized into before it touches local state. Webhook ingestion and
// polling both produce this and go through the same apply path.
type ProviderEvent struct {
	Provider      string
	EventID       string
	EventType     string
	PaymentID     string
	PaymentStatus string
	AmountCents   int64
	CustomerEmail string
	UserID        uint
	PlanName      string
	RawJSON       string
}

// Outcome is the local meaning of a provider event.
type Outcome string

const (
	OutcomePaid     Outcome = "paid"
	OutcomeFailed   Outcome = "failed"
	OutcomeCanceled Outcome = "canceled"
	// OutcomeIgnored marks benign events that must be acknowledged without
	// any state change so the provider never retries them.
	OutcomeIgnored Outcome = "ignored"
)

// eventOutcome maps a provider event to its local meaning. Only
// payment.completed (or an explicit paid status) provisions; everything
// unrecognized is benign.
func eventOutcome(eventType, paymentStatus string) Outcome {
	switch eventType {
	case "payment.completed":
		return OutcomePaid
	case "payment.failed":
		return OutcomeFailed
	case "subscription.canceled", "payment.canceled", "payment.refunded":
		return OutcomeCanceled
	}
	switch paymentStatus {
	case "paid", "succeeded", "completed":
		return OutcomePaid
	case "failed", "declined":
		return OutcomeFailed
	case "canceled", "cancelled":
		return OutcomeCanceled
	}
	return OutcomeIgnored
}
