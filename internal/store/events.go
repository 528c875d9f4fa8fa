package store

import (
	"context"

	"github.com/amberfork/backend-resto/internal/events"
)

const insertDomainEvent = `
INSERT INTO domain_events (id, topic, aggregate_id, payload, occurred_at)
VALUES (gen_random_uuid(), $1, $2, $3, now())
RETURNING id, topic, aggregate_id, payload, occurred_at
`

// InsertDomainEvent appends one event to the audit stream.
func (q *Queries) InsertDomainEvent(ctx context.Context, arg events.InsertEventParams) (events.DomainEvent, error) {
	var ev events.DomainEvent
	err := q.db.QueryRow(ctx, insertDomainEvent, arg.Topic, arg.AggregateID, arg.Payload).
		Scan(&ev.ID, &ev.Topic, &ev.AggregateID, &ev.Payload, &ev.OccurredAt)
	return ev, err
}
