package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/amberfork/backend-resto/internal/common"
	"github.com/amberfork/backend-resto/internal/events"
)

// EmailNotifier sends transactional emails for selected topics.
type EmailNotifier struct {
	Mail         common.EmailSender
	Enabled      bool
	From         string
	TopicToggles map[string]bool
}

// Notify implements the events.Notifier interface.
func (n EmailNotifier) Notify(_ context.Context, event events.DomainEvent) error {
	if !n.Enabled || n.Mail == nil {
		return nil
	}
	if n.TopicToggles != nil {
		if enabled, ok := n.TopicToggles[event.Topic]; ok && !enabled {
			return nil
		}
	}
	payload := map[string]any{}
	if len(event.Payload) > 0 {
		if err := json.Unmarshal(event.Payload, &payload); err != nil {
			return fmt.Errorf("email notify: decode payload: %w", err)
		}
	}
	to := extractRecipient(payload)
	if to == "" {
		return nil
	}
	subject := subjectFor(event.Topic)
	body := bodyFor(event.Topic, payload, event.OccurredAt)
	return n.Mail.Send(to, subject, body)
}

func extractRecipient(payload map[string]any) string {
	keys := []string{"email", "recipient", "customerEmail"}
	for _, key := range keys {
		if val, ok := payload[key]; ok {
			if s, ok := val.(string); ok {
				s = strings.TrimSpace(s)
				if s != "" {
					return s
				}
			}
		}
	}
	return ""
}

func subjectFor(topic string) string {
	switch topic {
	case events.TopicOrderCreated:
		return "Your order is confirmed"
	case events.TopicPromoSettled:
		return "Your promo code was applied"
	default:
		return fmt.Sprintf("Notification: %s", topic)
	}
}

func bodyFor(topic string, payload map[string]any, occurred time.Time) string {
	var b strings.Builder
	switch topic {
	case events.TopicOrderCreated:
		b.WriteString("<p>Thanks for your order.</p>")
		if id, ok := payload["orderId"].(string); ok && id != "" {
			fmt.Fprintf(&b, "<p>Order reference: %s</p>", id)
		}
		if total, ok := payload["total"]; ok {
			fmt.Fprintf(&b, "<p>Total charged: %v</p>", total)
		}
	default:
		fmt.Fprintf(&b, "<p>Event %s occurred.</p>", topic)
	}
	if !occurred.IsZero() {
		fmt.Fprintf(&b, "<p>%s</p>", occurred.Format(time.RFC1123))
	}
	return b.String()
}
