package notify

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/noah-isme/backend-clinica/internal/events"
)

// ErrNotFound indicates the endpoint or delivery does not exist.
var ErrNotFound = errors.New("webhook record not found")

// Store defines the persistence operations the dispatcher and the admin
// handlers depend on.
type Store interface {
	CreateEndpoint(ctx context.Context, ep Endpoint) (Endpoint, error)
	UpdateEndpoint(ctx context.Context, ep Endpoint) (Endpoint, error)
	GetEndpoint(ctx context.Context, id uuid.UUID) (Endpoint, error)
	ListEndpoints(ctx context.Context, clinicID string, limit, offset int) ([]Endpoint, error)
	DeleteEndpoint(ctx context.Context, id uuid.UUID) error
	ListActiveEndpointsForTopic(ctx context.Context, topic string) ([]Endpoint, error)

	EnqueueDelivery(ctx context.Context, endpointID, eventID uuid.UUID, maxAttempt int) (Delivery, error)
	DequeueDueDeliveries(ctx context.Context, limit int) ([]Delivery, error)
	MarkDelivering(ctx context.Context, id uuid.UUID) error
	MarkDelivered(ctx context.Context, id uuid.UUID, responseStatus int) error
	MarkFailedWithBackoff(ctx context.Context, id uuid.UUID, delay time.Duration, lastError string) error
	MoveToDLQ(ctx context.Context, id uuid.UUID, reason string) error
	ResetDeliveryForReplay(ctx context.Context, id uuid.UUID) (Delivery, error)
	ListDeliveries(ctx context.Context, endpointID uuid.UUID, status string, limit, offset int) ([]Delivery, error)

	GetDomainEvent(ctx context.Context, id uuid.UUID) (events.DomainEvent, error)
}

// PGStore implements Store over pgx.
type PGStore struct {
	Pool *pgxpool.Pool
}

func NewPGStore(pool *pgxpool.Pool) *PGStore {
	return &PGStore{Pool: pool}
}

func (s *PGStore) CreateEndpoint(ctx context.Context, ep Endpoint) (Endpoint, error) {
	if ep.ID == uuid.Nil {
		ep.ID = uuid.New()
	}
	err := s.Pool.QueryRow(ctx, `
		INSERT INTO webhook_endpoints (id, clinic_id, name, url, secret, active, topics)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
		RETURNING created_at`,
		ep.ID, ep.ClinicID, ep.Name, ep.URL, ep.Secret, ep.Active, ep.Topics,
	).Scan(&ep.CreatedAt)
	if err != nil {
		return Endpoint{}, fmt.Errorf("create webhook endpoint: %w", err)
	}
	return ep, nil
}

func (s *PGStore) UpdateEndpoint(ctx context.Context, ep Endpoint) (Endpoint, error) {
	err := s.Pool.QueryRow(ctx, `
		UPDATE webhook_endpoints
		SET name = $2, url = $3, secret = $4, active = $5, topics = $6
		WHERE id = $1
		RETURNING clinic_id, created_at`,
		ep.ID, ep.Name, ep.URL, ep.Secret, ep.Active, ep.Topics,
	).Scan(&ep.ClinicID, &ep.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Endpoint{}, ErrNotFound
	}
	if err != nil {
		return Endpoint{}, fmt.Errorf("update webhook endpoint: %w", err)
	}
	return ep, nil
}

func (s *PGStore) GetEndpoint(ctx context.Context, id uuid.UUID) (Endpoint, error) {
	var ep Endpoint
	err := s.Pool.QueryRow(ctx, `
		SELECT id, clinic_id, name, url, secret, active, topics, created_at
		FROM webhook_endpoints WHERE id = $1`, id,
	).Scan(&ep.ID, &ep.ClinicID, &ep.Name, &ep.URL, &ep.Secret, &ep.Active, &ep.Topics, &ep.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Endpoint{}, ErrNotFound
	}
	if err != nil {
		return Endpoint{}, fmt.Errorf("get webhook endpoint: %w", err)
	}
	return ep, nil
}

func (s *PGStore) ListEndpoints(ctx context.Context, clinicID string, limit, offset int) ([]Endpoint, error) {
	rows, err := s.Pool.Query(ctx, `
		SELECT id, clinic_id, name, url, secret, active, topics, created_at
		FROM webhook_endpoints
		WHERE clinic_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3`,
		clinicID, limit, offset,
	)
	if err != nil {
		return nil, fmt.Errorf("list webhook endpoints: %w", err)
	}
	defer rows.Close()
	return scanEndpoints(rows)
}

func (s *PGStore) DeleteEndpoint(ctx context.Context, id uuid.UUID) error {
	tag, err := s.Pool.Exec(ctx, `DELETE FROM webhook_endpoints WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete webhook endpoint: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PGStore) ListActiveEndpointsForTopic(ctx context.Context, topic string) ([]Endpoint, error) {
	rows, err := s.Pool.Query(ctx, `
		SELECT id, clinic_id, name, url, secret, active, topics, created_at
		FROM webhook_endpoints
		WHERE active AND (topics = '{}' OR $1 = ANY(topics))`,
		topic,
	)
	if err != nil {
		return nil, fmt.Errorf("list endpoints for topic %s: %w", topic, err)
	}
	defer rows.Close()
	return scanEndpoints(rows)
}

func (s *PGStore) EnqueueDelivery(ctx context.Context, endpointID, eventID uuid.UUID, maxAttempt int) (Delivery, error) {
	d := Delivery{ID: uuid.New(), EndpointID: endpointID, EventID: eventID, Status: StatusPending, MaxAttempt: maxAttempt}
	err := s.Pool.QueryRow(ctx, `
		INSERT INTO webhook_deliveries (id, endpoint_id, event_id, status, attempt, max_attempt, next_attempt_at)
		VALUES ($1,$2,$3,$4,0,$5,now())
		ON CONFLICT (endpoint_id, event_id) DO NOTHING
		RETURNING created_at, next_attempt_at`,
		d.ID, endpointID, eventID, d.Status, maxAttempt,
	).Scan(&d.CreatedAt, &d.NextAttemptAt)
	if errors.Is(err, pgx.ErrNoRows) {
		// Already enqueued for this endpoint+event pair.
		return Delivery{}, nil
	}
	if err != nil {
		return Delivery{}, fmt.Errorf("enqueue delivery: %w", err)
	}
	return d, nil
}

func (s *PGStore) DequeueDueDeliveries(ctx context.Context, limit int) ([]Delivery, error) {
	rows, err := s.Pool.Query(ctx, `
		SELECT id, endpoint_id, event_id, status, attempt, max_attempt,
		       next_attempt_at, COALESCE(last_error, ''), COALESCE(response_status, 0), created_at
		FROM webhook_deliveries
		WHERE status IN ($1, $2) AND next_attempt_at <= now()
		ORDER BY next_attempt_at
		LIMIT $3
		FOR UPDATE SKIP LOCKED`,
		StatusPending, StatusFailed, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("dequeue deliveries: %w", err)
	}
	defer rows.Close()

	var out []Delivery
	for rows.Next() {
		var d Delivery
		if err := rows.Scan(&d.ID, &d.EndpointID, &d.EventID, &d.Status,
			&d.Attempt, &d.MaxAttempt, &d.NextAttemptAt, &d.LastError,
			&d.ResponseStatus, &d.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan delivery: %w", err)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (s *PGStore) MarkDelivering(ctx context.Context, id uuid.UUID) error {
	_, err := s.Pool.Exec(ctx, `
		UPDATE webhook_deliveries SET status = $2, attempt = attempt + 1
		WHERE id = $1`, id, StatusDelivering)
	return err
}

func (s *PGStore) MarkDelivered(ctx context.Context, id uuid.UUID, responseStatus int) error {
	_, err := s.Pool.Exec(ctx, `
		UPDATE webhook_deliveries SET status = $2, response_status = $3, last_error = NULL
		WHERE id = $1`, id, StatusDelivered, responseStatus)
	return err
}

func (s *PGStore) MarkFailedWithBackoff(ctx context.Context, id uuid.UUID, delay time.Duration, lastError string) error {
	_, err := s.Pool.Exec(ctx, `
		UPDATE webhook_deliveries
		SET status = $2, last_error = $3, next_attempt_at = now() + $4::interval
		WHERE id = $1`,
		id, StatusFailed, lastError, fmt.Sprintf("%d seconds", int(delay.Seconds())))
	return err
}

func (s *PGStore) MoveToDLQ(ctx context.Context, id uuid.UUID, reason string) error {
	tx, err := s.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin dlq move: %w", err)
	}
	defer tx.Rollback(ctx)
	if _, err := tx.Exec(ctx, `
		UPDATE webhook_deliveries SET status = $2, last_error = $3 WHERE id = $1`,
		id, StatusDLQ, reason); err != nil {
		return fmt.Errorf("mark delivery dlq: %w", err)
	}
	if _, err := tx.Exec(ctx, `
		INSERT INTO webhook_dlq (delivery_id, reason) VALUES ($1, $2)
		ON CONFLICT (delivery_id) DO UPDATE SET reason = EXCLUDED.reason`,
		id, reason); err != nil {
		return fmt.Errorf("insert dlq entry: %w", err)
	}
	return tx.Commit(ctx)
}

func (s *PGStore) ResetDeliveryForReplay(ctx context.Context, id uuid.UUID) (Delivery, error) {
	tx, err := s.Pool.Begin(ctx)
	if err != nil {
		return Delivery{}, fmt.Errorf("begin replay reset: %w", err)
	}
	defer tx.Rollback(ctx)

	var d Delivery
	err = tx.QueryRow(ctx, `
		UPDATE webhook_deliveries
		SET status = $2, attempt = 0, last_error = NULL, next_attempt_at = now()
		WHERE id = $1
		RETURNING id, endpoint_id, event_id, status, attempt, max_attempt, next_attempt_at, created_at`,
		id, StatusPending,
	).Scan(&d.ID, &d.EndpointID, &d.EventID, &d.Status, &d.Attempt,
		&d.MaxAttempt, &d.NextAttemptAt, &d.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Delivery{}, ErrNotFound
	}
	if err != nil {
		return Delivery{}, fmt.Errorf("reset delivery: %w", err)
	}
	if _, err := tx.Exec(ctx, `DELETE FROM webhook_dlq WHERE delivery_id = $1`, id); err != nil {
		return Delivery{}, fmt.Errorf("clear dlq entry: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return Delivery{}, err
	}
	return d, nil
}

func (s *PGStore) ListDeliveries(ctx context.Context, endpointID uuid.UUID, status string, limit, offset int) ([]Delivery, error) {
	rows, err := s.Pool.Query(ctx, `
		SELECT id, endpoint_id, event_id, status, attempt, max_attempt,
		       next_attempt_at, COALESCE(last_error, ''), COALESCE(response_status, 0), created_at
		FROM webhook_deliveries
		WHERE ($1 = '00000000-0000-0000-0000-000000000000'::uuid OR endpoint_id = $1)
		  AND ($2 = '' OR status = $2)
		ORDER BY created_at DESC
		LIMIT $3 OFFSET $4`,
		endpointID, status, limit, offset,
	)
	if err != nil {
		return nil, fmt.Errorf("list deliveries: %w", err)
	}
	defer rows.Close()

	var out []Delivery
	for rows.Next() {
		var d Delivery
		if err := rows.Scan(&d.ID, &d.EndpointID, &d.EventID, &d.Status,
			&d.Attempt, &d.MaxAttempt, &d.NextAttemptAt, &d.LastError,
			&d.ResponseStatus, &d.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan delivery: %w", err)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (s *PGStore) GetDomainEvent(ctx context.Context, id uuid.UUID) (events.DomainEvent, error) {
	return events.PGStore{Pool: s.Pool}.GetDomainEvent(ctx, id)
}

func scanEndpoints(rows pgx.Rows) ([]Endpoint, error) {
	var out []Endpoint
	for rows.Next() {
		var ep Endpoint
		if err := rows.Scan(&ep.ID, &ep.ClinicID, &ep.Name, &ep.URL,
			&ep.Secret, &ep.Active, &ep.Topics, &ep.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan endpoint: %w", err)
		}
		out = append(out, ep)
	}
	return out, rows.Err()
}
