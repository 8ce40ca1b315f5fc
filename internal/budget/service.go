package budget

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/noah-isme/backend-clinica/internal/events"
	"github.com/noah-isme/backend-clinica/internal/negotiation"
	"github.com/noah-isme/backend-clinica/internal/pricing"
)

var (
	// ErrEmptyCart is returned when saving a budget without line items.
	ErrEmptyCart = errors.New("budget has no line items")
	// ErrMissingSession is returned when the session identity is incomplete.
	ErrMissingSession = errors.New("session identity incomplete")
	// ErrNotFound indicates the requested budget could not be located.
	ErrNotFound = errors.New("budget not found")
	// ErrStatusTransition is returned for a non-monotonic status change.
	ErrStatusTransition = errors.New("invalid budget status transition")
)

// Status is the persisted lifecycle stage of a budget. Transitions only
// move forward; APPROVED is reachable through the checkout flow alone.
type Status string

const (
	StatusDraft    Status = "DRAFT"
	StatusPending  Status = "PENDING"
	StatusApproved Status = "APPROVED"
)

func statusRank(s Status) int {
	switch s {
	case StatusDraft:
		return 0
	case StatusPending:
		return 1
	case StatusApproved:
		return 2
	default:
		return -1
	}
}

// Header is the persisted budget record. Only derived final values are
// stored; the in-flight negotiation state dies with the session.
type Header struct {
	ID            string                    `json:"id"`
	ClinicID      string                    `json:"clinicId"`
	PatientID     string                    `json:"patientId"`
	Status        Status                    `json:"status"`
	TotalValue    pricing.Money             `json:"totalValue"`
	FinalValue    pricing.Money             `json:"finalValue"`
	DiscountMode  negotiation.DiscountMode  `json:"discountMode"`
	Discount      int64                     `json:"discount"`
	SalesRepID    string                    `json:"salesRepId"`
	PriceTableID  string                    `json:"priceTableId"`
	PaymentMethod negotiation.PaymentMethod `json:"paymentMethod"`
	Installments  int                       `json:"installments"`
	DownPayment   pricing.Money             `json:"downPayment"`
	CreatedAt     time.Time                 `json:"createdAt"`
	UpdatedAt     time.Time                 `json:"updatedAt"`
}

// Session identifies who is composing the budget and for whom. The ids are
// explicit arguments on every operation; nothing is read from ambient
// state.
type Session struct {
	ClinicID string
	ActorID  string
}

// Store defines the persistence operations the service depends on.
type Store interface {
	// SaveBudget upserts the header and replaces all line items with the
	// provided set in one transaction.
	SaveBudget(ctx context.Context, header Header, items []Item) (Header, error)
	GetBudget(ctx context.Context, clinicID, id string) (Header, []Item, error)
	ListBudgets(ctx context.Context, clinicID, patientID string, limit, offset int) ([]Header, error)
}

// Service persists composed budgets.
type Service struct {
	Store  Store
	Events *events.Bus
	Now    func() time.Time

	mu       sync.Mutex
	emitters map[string]*negotiation.Emitter
}

// quoteEmitter returns the per-budget emitter guarding quote events. Its
// sink publishes to the event bus, so re-saving a budget with an unchanged
// quote produces no budget.quoted event.
func (s *Service) quoteEmitter(budgetID string, aggregate uuid.UUID) *negotiation.Emitter {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.emitters == nil {
		s.emitters = make(map[string]*negotiation.Emitter)
	}
	em, ok := s.emitters[budgetID]
	if !ok {
		em = &negotiation.Emitter{Sink: negotiation.SinkFunc(func(ctx context.Context, q negotiation.Quote) error {
			_, err := s.Events.Emit(ctx, events.TopicBudgetQuoted, aggregate, map[string]any{
				"budgetId":        budgetID,
				"totalValue":      q.TotalValue,
				"discountAmount":  q.DiscountAmount,
				"finalTotal":      q.FinalTotal,
				"installments":    q.Installments,
				"monthlyValue":    q.MonthlyValue,
				"amountToFinance": q.AmountToFinance,
			})
			return err
		})}
		s.emitters[budgetID] = em
	}
	return em
}

func (s *Service) now() time.Time {
	if s != nil && s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

// SaveInput carries everything needed to persist one budget.
type SaveInput struct {
	BudgetID  string // empty mints a new budget
	PatientID string
	Status    Status
	Items     []Item
	State     negotiation.State
}

// Save validates the cart and session, derives the final values from the
// negotiation state, and writes header plus line items. The previously
// persisted item set is fully replaced; the stored budget always matches
// the in-memory one exactly.
func (s *Service) Save(ctx context.Context, session Session, in SaveInput) (Header, error) {
	if s == nil || s.Store == nil {
		return Header{}, errors.New("budget service not configured")
	}
	if len(in.Items) == 0 {
		return Header{}, ErrEmptyCart
	}
	if session.ClinicID == "" || session.ActorID == "" || in.PatientID == "" {
		return Header{}, ErrMissingSession
	}
	status := in.Status
	if status == "" {
		status = StatusDraft
	}
	if statusRank(status) < 0 {
		return Header{}, fmt.Errorf("unknown status %q: %w", in.Status, ErrStatusTransition)
	}
	if status == StatusApproved {
		// Approval only happens through checkout authorization.
		return Header{}, fmt.Errorf("approval requires checkout: %w", ErrStatusTransition)
	}

	if in.BudgetID != "" {
		existing, _, err := s.Store.GetBudget(ctx, session.ClinicID, in.BudgetID)
		if err != nil && !errors.Is(err, ErrNotFound) {
			return Header{}, err
		}
		if err == nil && statusRank(status) < statusRank(existing.Status) {
			return Header{}, fmt.Errorf("%s -> %s: %w", existing.Status, status, ErrStatusTransition)
		}
	}

	financials := ComputeFinancials(in.Items)
	quote := negotiation.Derive(financials.Revenue, in.State)
	st := negotiation.Normalize(in.State)

	header := Header{
		ID:            in.BudgetID,
		ClinicID:      session.ClinicID,
		PatientID:     in.PatientID,
		Status:        status,
		TotalValue:    quote.TotalValue,
		FinalValue:    quote.FinalTotal,
		DiscountMode:  st.DiscountMode,
		Discount:      st.Discount,
		SalesRepID:    st.SalesRepID,
		PriceTableID:  st.PriceTableID,
		PaymentMethod: st.Method,
		Installments:  quote.Installments,
		DownPayment:   quote.DownPayment,
		UpdatedAt:     s.now(),
	}
	if header.ID == "" {
		header.ID = uuid.NewString()
		header.CreatedAt = header.UpdatedAt
	}

	saved, err := s.Store.SaveBudget(ctx, header, in.Items)
	if err != nil {
		return Header{}, err
	}

	if s.Events != nil {
		if aggr, parseErr := uuid.Parse(saved.ID); parseErr == nil {
			_, _ = s.Events.Emit(ctx, events.TopicBudgetSaved, aggr, map[string]any{
				"budgetId":   saved.ID,
				"clinicId":   saved.ClinicID,
				"patientId":  saved.PatientID,
				"status":     saved.Status,
				"finalValue": saved.FinalValue,
			})
			_, _ = s.quoteEmitter(saved.ID, aggr).Emit(ctx, quote)
		}
	}
	return saved, nil
}

// Get loads one budget with its items.
func (s *Service) Get(ctx context.Context, session Session, id string) (Header, []Item, error) {
	if s == nil || s.Store == nil {
		return Header{}, nil, errors.New("budget service not configured")
	}
	if session.ClinicID == "" {
		return Header{}, nil, ErrMissingSession
	}
	return s.Store.GetBudget(ctx, session.ClinicID, id)
}

// List returns budget headers, optionally narrowed to one patient.
func (s *Service) List(ctx context.Context, session Session, patientID string, limit, offset int) ([]Header, error) {
	if s == nil || s.Store == nil {
		return nil, errors.New("budget service not configured")
	}
	if session.ClinicID == "" {
		return nil, ErrMissingSession
	}
	if limit <= 0 {
		limit = 20
	}
	return s.Store.ListBudgets(ctx, session.ClinicID, patientID, limit, offset)
}
