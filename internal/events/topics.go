package events

// Topic constants for domain events emitted by the platform.
const (
	TopicOrderCreated = "order.created"
	TopicPromoApplied = "promo.applied"
	TopicPromoSettled = "promo.settled"
	TopicOfferRevoked = "offer.revoked"
)

// DefaultTopics returns the canonical list of topics that support notifications.
func DefaultTopics() []string {
	return []string{
		TopicOrderCreated,
		TopicPromoApplied,
		TopicPromoSettled,
		TopicOfferRevoked,
	}
}
