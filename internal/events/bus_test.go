package events_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/backend-clinica/internal/events"
)

type stubStore struct {
	inserted []events.DomainEvent
}

func (s *stubStore) InsertDomainEvent(_ context.Context, topic string, aggregateID uuid.UUID, payload []byte) (events.DomainEvent, error) {
	ev := events.DomainEvent{
		ID:          uuid.New(),
		Topic:       topic,
		AggregateID: aggregateID,
		Payload:     payload,
		OccurredAt:  time.Now(),
	}
	s.inserted = append(s.inserted, ev)
	return ev, nil
}

type captureScheduler struct {
	events []events.DomainEvent
}

func (c *captureScheduler) Schedule(_ context.Context, ev events.DomainEvent) error {
	c.events = append(c.events, ev)
	return nil
}

type captureNotifier struct {
	events []events.DomainEvent
}

func (c *captureNotifier) Notify(_ context.Context, ev events.DomainEvent) error {
	c.events = append(c.events, ev)
	return nil
}

func TestEmitPersistsAndFansOut(t *testing.T) {
	store := &stubStore{}
	scheduler := &captureScheduler{}
	notifier := &captureNotifier{}
	bus := events.Bus{Store: store, Scheduler: scheduler, Notifiers: []events.Notifier{notifier}}

	aggregate := uuid.New()
	ev, err := bus.Emit(context.Background(), events.TopicBudgetSaved, aggregate, map[string]any{"budgetId": aggregate.String()})
	require.NoError(t, err)
	require.Equal(t, events.TopicBudgetSaved, ev.Topic)
	require.Len(t, store.inserted, 1)
	require.Len(t, scheduler.events, 1)
	require.Len(t, notifier.events, 1)

	var payload map[string]any
	require.NoError(t, json.Unmarshal(ev.Payload, &payload))
	require.Equal(t, aggregate.String(), payload["budgetId"])
}

func TestEmitRejectsMissingTopicOrAggregate(t *testing.T) {
	bus := events.Bus{Store: &stubStore{}}
	_, err := bus.Emit(context.Background(), " ", uuid.New(), nil)
	require.Error(t, err)
	_, err = bus.Emit(context.Background(), events.TopicBudgetSaved, uuid.Nil, nil)
	require.Error(t, err)
}

func TestEmitRejectsInvalidJSONPayload(t *testing.T) {
	bus := events.Bus{Store: &stubStore{}}
	_, err := bus.Emit(context.Background(), events.TopicBudgetSaved, uuid.New(), []byte("{not json"))
	require.Error(t, err)
}
