package notify_test

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/backend-clinica/internal/events"
	"github.com/noah-isme/backend-clinica/internal/notify"
	"github.com/noah-isme/backend-clinica/internal/resilience"
)

type memStore struct {
	mu        sync.Mutex
	endpoints map[uuid.UUID]notify.Endpoint
	events    map[uuid.UUID]events.DomainEvent
	due       []notify.Delivery
	delivered []uuid.UUID
	failed    []uuid.UUID
	dlq       []uuid.UUID
	enqueued  []notify.Delivery
}

func newMemStore() *memStore {
	return &memStore{
		endpoints: map[uuid.UUID]notify.Endpoint{},
		events:    map[uuid.UUID]events.DomainEvent{},
	}
}

func (m *memStore) CreateEndpoint(_ context.Context, ep notify.Endpoint) (notify.Endpoint, error) {
	if ep.ID == uuid.Nil {
		ep.ID = uuid.New()
	}
	m.endpoints[ep.ID] = ep
	return ep, nil
}

func (m *memStore) UpdateEndpoint(_ context.Context, ep notify.Endpoint) (notify.Endpoint, error) {
	if _, ok := m.endpoints[ep.ID]; !ok {
		return notify.Endpoint{}, notify.ErrNotFound
	}
	m.endpoints[ep.ID] = ep
	return ep, nil
}

func (m *memStore) GetEndpoint(_ context.Context, id uuid.UUID) (notify.Endpoint, error) {
	ep, ok := m.endpoints[id]
	if !ok {
		return notify.Endpoint{}, notify.ErrNotFound
	}
	return ep, nil
}

func (m *memStore) ListEndpoints(context.Context, string, int, int) ([]notify.Endpoint, error) {
	return nil, nil
}

func (m *memStore) DeleteEndpoint(_ context.Context, id uuid.UUID) error {
	delete(m.endpoints, id)
	return nil
}

func (m *memStore) ListActiveEndpointsForTopic(_ context.Context, topic string) ([]notify.Endpoint, error) {
	var out []notify.Endpoint
	for _, ep := range m.endpoints {
		if !ep.Active {
			continue
		}
		if len(ep.Topics) == 0 {
			out = append(out, ep)
			continue
		}
		for _, t := range ep.Topics {
			if t == topic {
				out = append(out, ep)
				break
			}
		}
	}
	return out, nil
}

func (m *memStore) EnqueueDelivery(_ context.Context, endpointID, eventID uuid.UUID, maxAttempt int) (notify.Delivery, error) {
	d := notify.Delivery{ID: uuid.New(), EndpointID: endpointID, EventID: eventID, Status: notify.StatusPending, MaxAttempt: maxAttempt}
	m.enqueued = append(m.enqueued, d)
	return d, nil
}

func (m *memStore) DequeueDueDeliveries(context.Context, int) ([]notify.Delivery, error) {
	due := m.due
	m.due = nil
	return due, nil
}

func (m *memStore) MarkDelivering(context.Context, uuid.UUID) error { return nil }

func (m *memStore) MarkDelivered(_ context.Context, id uuid.UUID, _ int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.delivered = append(m.delivered, id)
	return nil
}

func (m *memStore) MarkFailedWithBackoff(_ context.Context, id uuid.UUID, _ time.Duration, _ string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failed = append(m.failed, id)
	return nil
}

func (m *memStore) MoveToDLQ(_ context.Context, id uuid.UUID, _ string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.dlq = append(m.dlq, id)
	return nil
}

func (m *memStore) ResetDeliveryForReplay(context.Context, uuid.UUID) (notify.Delivery, error) {
	return notify.Delivery{}, notify.ErrNotFound
}

func (m *memStore) ListDeliveries(context.Context, uuid.UUID, string, int, int) ([]notify.Delivery, error) {
	return nil, nil
}

func (m *memStore) GetDomainEvent(_ context.Context, id uuid.UUID) (events.DomainEvent, error) {
	ev, ok := m.events[id]
	if !ok {
		return events.DomainEvent{}, notify.ErrNotFound
	}
	return ev, nil
}

func testClient(srv *httptest.Server) *resilience.HTTPClient {
	return &resilience.HTTPClient{
		Client:      srv.Client(),
		Breaker:     resilience.NewBreaker(3, 1, time.Second),
		MaxAttempts: 1,
		Timeout:     time.Second,
	}
}

func TestDeliverSignsPayload(t *testing.T) {
	type recorded struct {
		req  *http.Request
		body []byte
	}
	received := make(chan recorded, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		received <- recorded{req: r, body: body}
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(srv.Close)

	dispatcher := &notify.Dispatcher{HTTP: testClient(srv), Enabled: true}
	endpoint := notify.Endpoint{ID: uuid.New(), URL: srv.URL, Secret: "segredo"}
	event := events.DomainEvent{
		ID:         uuid.New(),
		Topic:      events.TopicCheckoutCompleted,
		Payload:    []byte(`{"saleId":"abc"}`),
		OccurredAt: time.Now(),
	}
	delivery := notify.Delivery{ID: uuid.New()}

	status, _, err := dispatcher.Deliver(context.Background(), endpoint, event, delivery)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, status)

	record := <-received
	req := record.req
	require.Equal(t, "application/json", req.Header.Get("Content-Type"))
	require.Equal(t, event.ID.String(), req.Header.Get("X-Event-ID"))
	require.Equal(t, delivery.ID.String(), req.Header.Get("X-Idempotency-Key"))
	ts, err := strconv.ParseInt(req.Header.Get("X-Timestamp"), 10, 64)
	require.NoError(t, err)
	require.Equal(t,
		notify.ComputeSignature(endpoint.Secret, ts, event.ID.String(), record.body),
		req.Header.Get("X-Signature"))
}

func TestScheduleEnqueuesMatchingEndpoints(t *testing.T) {
	store := newMemStore()
	subscribed, _ := store.CreateEndpoint(context.Background(), notify.Endpoint{
		Active: true, URL: "https://example.com/hook", Topics: []string{events.TopicBudgetSaved},
	})
	_, _ = store.CreateEndpoint(context.Background(), notify.Endpoint{
		Active: true, URL: "https://example.com/other", Topics: []string{events.TopicCheckoutCompleted},
	})
	_, _ = store.CreateEndpoint(context.Background(), notify.Endpoint{
		Active: false, URL: "https://example.com/off", Topics: []string{events.TopicBudgetSaved},
	})

	dispatcher := &notify.Dispatcher{Store: store, Enabled: true, DefaultMaxAttempts: 4}
	err := dispatcher.Schedule(context.Background(), events.DomainEvent{
		ID: uuid.New(), Topic: events.TopicBudgetSaved,
	})

	require.NoError(t, err)
	require.Len(t, store.enqueued, 1)
	assert.Equal(t, subscribed.ID, store.enqueued[0].EndpointID)
	assert.Equal(t, 4, store.enqueued[0].MaxAttempt)
}

func TestScheduleDisabledIsNoOp(t *testing.T) {
	store := newMemStore()
	dispatcher := &notify.Dispatcher{Store: store, Enabled: false}

	require.NoError(t, dispatcher.Schedule(context.Background(), events.DomainEvent{
		ID: uuid.New(), Topic: events.TopicBudgetSaved,
	}))
	assert.Empty(t, store.enqueued)
}

func TestWorkOnceDeliversAndRetries(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(srv.Close)

	store := newMemStore()
	ep, _ := store.CreateEndpoint(context.Background(), notify.Endpoint{Active: true, URL: srv.URL, Secret: "s"})
	ev := events.DomainEvent{ID: uuid.New(), Topic: events.TopicBudgetSaved, Payload: []byte(`{}`), OccurredAt: time.Now()}
	store.events[ev.ID] = ev

	dispatcher := &notify.Dispatcher{
		Store:   store,
		HTTP:    testClient(srv),
		Enabled: true,
	}

	first := notify.Delivery{ID: uuid.New(), EndpointID: ep.ID, EventID: ev.ID, Attempt: 0, MaxAttempt: 3}
	store.due = []notify.Delivery{first}
	require.NoError(t, dispatcher.WorkOnce(context.Background(), 10))
	require.Equal(t, []uuid.UUID{first.ID}, store.failed)
	assert.Empty(t, store.delivered)

	// Retry succeeds.
	first.Attempt = 1
	store.due = []notify.Delivery{first}
	require.NoError(t, dispatcher.WorkOnce(context.Background(), 10))
	assert.Equal(t, []uuid.UUID{first.ID}, store.delivered)
}

func TestWorkOnceMovesExhaustedDeliveryToDLQ(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	t.Cleanup(srv.Close)

	store := newMemStore()
	ep, _ := store.CreateEndpoint(context.Background(), notify.Endpoint{Active: true, URL: srv.URL, Secret: "s"})
	ev := events.DomainEvent{ID: uuid.New(), Topic: events.TopicBudgetSaved, Payload: []byte(`{}`), OccurredAt: time.Now()}
	store.events[ev.ID] = ev

	dispatcher := &notify.Dispatcher{Store: store, HTTP: testClient(srv), Enabled: true}

	last := notify.Delivery{ID: uuid.New(), EndpointID: ep.ID, EventID: ev.ID, Attempt: 2, MaxAttempt: 3}
	store.due = []notify.Delivery{last}
	require.NoError(t, dispatcher.WorkOnce(context.Background(), 10))
	assert.Equal(t, []uuid.UUID{last.ID}, store.dlq)
	assert.Empty(t, store.failed)
}

type fakeReplay struct {
	acquired map[string]bool
}

func (f *fakeReplay) Acquire(_ context.Context, key string, _ time.Duration) (bool, error) {
	if f.acquired[key] {
		return false, nil
	}
	if f.acquired == nil {
		f.acquired = map[string]bool{}
	}
	f.acquired[key] = true
	return true, nil
}

func (f *fakeReplay) Release(_ context.Context, key string) error {
	delete(f.acquired, key)
	return nil
}

func TestDeliverSuppressesReplays(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(srv.Close)

	dispatcher := &notify.Dispatcher{
		HTTP:      testClient(srv),
		Enabled:   true,
		Replay:    &fakeReplay{},
		ReplayTTL: time.Minute,
	}
	endpoint := notify.Endpoint{ID: uuid.New(), URL: srv.URL, Secret: "s"}
	event := events.DomainEvent{ID: uuid.New(), Topic: events.TopicBudgetSaved, Payload: []byte(`{}`), OccurredAt: time.Now()}
	delivery := notify.Delivery{ID: uuid.New()}

	status, _, err := dispatcher.Deliver(context.Background(), endpoint, event, delivery)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, status)

	status, body, err := dispatcher.Deliver(context.Background(), endpoint, event, delivery)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "replay-suppressed", body)
	assert.Equal(t, 1, calls)
}

func TestValidateEndpointURL(t *testing.T) {
	store := newMemStore()
	h := &notify.AdminHandler{Store: store}

	cases := []struct {
		url string
		ok  bool
	}{
		{"https://example.com/hook", true},
		{"http://localhost:9999/hook", true},
		{"http://example.com/hook", false},
		{"ftp://example.com", false},
		{"https://", false},
	}
	for _, tc := range cases {
		rec := httptest.NewRecorder()
		body := `{"name":"n","url":"` + tc.url + `","secret":"s"}`
		r := httptest.NewRequest(http.MethodPost, "/admin/webhooks", strings.NewReader(body))
		h.CreateEndpoint(rec, r)
		if tc.ok {
			assert.Equal(t, http.StatusCreated, rec.Code, tc.url)
		} else {
			assert.Equal(t, http.StatusBadRequest, rec.Code, tc.url)
		}
	}
}
