package notify

import (
	"time"

	"github.com/google/uuid"
)

// Delivery statuses.
const (
	StatusPending    = "pending"
	StatusDelivering = "delivering"
	StatusDelivered  = "delivered"
	StatusFailed     = "failed"
	StatusDLQ        = "dlq"
)

// Endpoint is a registered webhook receiver. Topics filters which domain
// events reach it; an empty list subscribes to everything.
type Endpoint struct {
	ID        uuid.UUID `json:"id"`
	ClinicID  string    `json:"clinicId"`
	Name      string    `json:"name"`
	URL       string    `json:"url"`
	Secret    string    `json:"-"`
	Active    bool      `json:"active"`
	Topics    []string  `json:"topics"`
	CreatedAt time.Time `json:"createdAt"`
}

// Delivery is one attempt series of an event against an endpoint.
type Delivery struct {
	ID             uuid.UUID `json:"id"`
	EndpointID     uuid.UUID `json:"endpointId"`
	EventID        uuid.UUID `json:"eventId"`
	Status         string    `json:"status"`
	Attempt        int       `json:"attempt"`
	MaxAttempt     int       `json:"maxAttempt"`
	NextAttemptAt  time.Time `json:"nextAttemptAt"`
	LastError      string    `json:"lastError,omitempty"`
	ResponseStatus int       `json:"responseStatus,omitempty"`
	CreatedAt      time.Time `json:"createdAt"`
}
