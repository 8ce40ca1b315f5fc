package checkout

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/noah-isme/backend-clinica/internal/budget"
	"github.com/noah-isme/backend-clinica/internal/events"
	"github.com/noah-isme/backend-clinica/internal/negotiation"
	"github.com/noah-isme/backend-clinica/internal/pricing"
)

var (
	// ErrEmptySelection is returned when no unsold item matches the charge
	// request.
	ErrEmptySelection = errors.New("no billable items selected")
	// ErrBadMethod is returned for unknown payment methods.
	ErrBadMethod = errors.New("invalid payment method")
)

// Sale is the persisted record of one completed charge.
type Sale struct {
	ID             string                    `json:"id"`
	ClinicID       string                    `json:"clinicId"`
	BudgetID       string                    `json:"budgetId"`
	PatientID      string                    `json:"patientId"`
	ProfessionalID string                    `json:"professionalId"`
	Amount         pricing.Money             `json:"amount"`
	Method         negotiation.PaymentMethod `json:"method"`
	Installments   int                       `json:"installments"`
	CreatedAt      time.Time                 `json:"createdAt"`
}

// Transaction is the financial movement backing a sale.
type Transaction struct {
	ID           string                    `json:"id"`
	SaleID       string                    `json:"saleId"`
	Amount       pricing.Money             `json:"amount"`
	Method       negotiation.PaymentMethod `json:"method"`
	Installments int                       `json:"installments"`
	Status       string                    `json:"status"`
	CreatedAt    time.Time                 `json:"createdAt"`
}

// Store persists sales and their transactions.
type Store interface {
	InsertSale(ctx context.Context, sale Sale) error
	InsertTransaction(ctx context.Context, tx Transaction) error
}

// BudgetGateway is the slice of budget persistence checkout drives.
// *budget.PGStore satisfies it.
type BudgetGateway interface {
	GetBudget(ctx context.Context, clinicID, id string) (budget.Header, []budget.Item, error)
	UpdateStatus(ctx context.Context, clinicID, id string, status budget.Status) error
	MarkItemsSold(ctx context.Context, budgetID string, settlements []budget.Settlement) error
}

// ChargeMetrics records charge outcomes; implemented by the domain metrics
// in internal/obs.
type ChargeMetrics interface {
	ChargeCompleted(method string, amount int64)
	ChargeFailed(method, stage string)
}

// Service runs the checkout commit sequence.
type Service struct {
	Authorizer Authorizer
	Budgets    BudgetGateway
	Store      Store
	Events     *events.Bus
	Metrics    ChargeMetrics
	Now        func() time.Time
}

func (s *Service) now() time.Time {
	if s != nil && s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

// ChargeInput identifies what to charge and who authorized it.
type ChargeInput struct {
	BudgetID       string
	ProfessionalID string
	Pin            string
	Method         negotiation.PaymentMethod
	Installments   int
	InstanceIDs    []string // empty selects every unsold item
}

// ChargeResult is returned on success.
type ChargeResult struct {
	SaleID  string        `json:"saleId"`
	Payment PaymentData   `json:"payment"`
	Status  budget.Status `json:"status"`
}

// Preview computes the charge breakdown without committing anything.
func (s *Service) Preview(ctx context.Context, clinicID string, in ChargeInput) (PaymentData, error) {
	if s == nil || s.Budgets == nil {
		return PaymentData{}, errors.New("checkout service not configured")
	}
	if !in.Method.Valid() {
		return PaymentData{}, ErrBadMethod
	}
	_, items, err := s.Budgets.GetBudget(ctx, clinicID, in.BudgetID)
	if err != nil {
		return PaymentData{}, err
	}
	billable := selectBillable(items, in.InstanceIDs)
	if len(billable) == 0 {
		return PaymentData{}, ErrEmptySelection
	}
	return Split(billable, in.Method, in.Installments), nil
}

// Charge runs the commit sequence in strict order: PIN, approval, sale,
// transaction, item settlement. A failure stops the sequence where it
// happened; already committed steps are not compensated.
func (s *Service) Charge(ctx context.Context, clinicID string, in ChargeInput) (ChargeResult, error) {
	if s == nil || s.Authorizer == nil || s.Budgets == nil || s.Store == nil {
		return ChargeResult{}, errors.New("checkout service not configured")
	}
	if !in.Method.Valid() {
		return ChargeResult{}, ErrBadMethod
	}

	header, items, err := s.Budgets.GetBudget(ctx, clinicID, in.BudgetID)
	if err != nil {
		return ChargeResult{}, err
	}
	billable := selectBillable(items, in.InstanceIDs)
	if len(billable) == 0 {
		return ChargeResult{}, ErrEmptySelection
	}
	payment := Split(billable, in.Method, in.Installments)

	if err := s.Authorizer.Verify(ctx, clinicID, in.ProfessionalID, in.Pin); err != nil {
		s.failed(ctx, in, header, "pin")
		return ChargeResult{}, err
	}
	if err := s.Budgets.UpdateStatus(ctx, clinicID, in.BudgetID, budget.StatusApproved); err != nil {
		s.failed(ctx, in, header, "approve")
		return ChargeResult{}, fmt.Errorf("approve budget: %w", err)
	}
	if s.Events != nil {
		if aggr, parseErr := uuid.Parse(in.BudgetID); parseErr == nil {
			_, _ = s.Events.Emit(ctx, events.TopicBudgetApproved, aggr, map[string]any{
				"budgetId": in.BudgetID,
				"clinicId": clinicID,
			})
		}
	}

	now := s.now()
	sale := Sale{
		ID:             uuid.NewString(),
		ClinicID:       clinicID,
		BudgetID:       in.BudgetID,
		PatientID:      header.PatientID,
		ProfessionalID: in.ProfessionalID,
		Amount:         payment.FinalValue,
		Method:         in.Method,
		Installments:   payment.Installments,
		CreatedAt:      now,
	}
	if err := s.Store.InsertSale(ctx, sale); err != nil {
		s.failed(ctx, in, header, "sale")
		return ChargeResult{}, fmt.Errorf("insert sale: %w", err)
	}
	if err := s.Store.InsertTransaction(ctx, Transaction{
		ID:           uuid.NewString(),
		SaleID:       sale.ID,
		Amount:       payment.FinalValue,
		Method:       in.Method,
		Installments: payment.Installments,
		Status:       "SETTLED",
		CreatedAt:    now,
	}); err != nil {
		s.failed(ctx, in, header, "transaction")
		return ChargeResult{}, fmt.Errorf("insert transaction: %w", err)
	}

	if err := s.Budgets.MarkItemsSold(ctx, in.BudgetID, settleItems(billable, payment.FinalValue)); err != nil {
		s.failed(ctx, in, header, "settle")
		return ChargeResult{}, fmt.Errorf("mark items sold: %w", err)
	}

	if s.Metrics != nil {
		s.Metrics.ChargeCompleted(string(in.Method), int64(payment.FinalValue))
	}
	if s.Events != nil {
		if aggr, parseErr := uuid.Parse(in.BudgetID); parseErr == nil {
			_, _ = s.Events.Emit(ctx, events.TopicCheckoutCompleted, aggr, map[string]any{
				"saleId":       sale.ID,
				"budgetId":     in.BudgetID,
				"clinicId":     clinicID,
				"method":       in.Method,
				"finalValue":   payment.FinalValue,
				"installments": payment.Installments,
			})
		}
	}
	return ChargeResult{SaleID: sale.ID, Payment: payment, Status: budget.StatusApproved}, nil
}

func (s *Service) failed(ctx context.Context, in ChargeInput, header budget.Header, stage string) {
	if s.Metrics != nil {
		s.Metrics.ChargeFailed(string(in.Method), stage)
	}
	if s.Events == nil {
		return
	}
	if aggr, err := uuid.Parse(in.BudgetID); err == nil {
		_, _ = s.Events.Emit(ctx, events.TopicCheckoutFailed, aggr, map[string]any{
			"budgetId": in.BudgetID,
			"clinicId": header.ClinicID,
			"method":   in.Method,
			"stage":    stage,
		})
	}
}

// settleItems prorates the charged final value across the selection in
// proportion to each item's negotiated value, so the persisted per-item
// values sum exactly to what was collected. Rounding leftovers land on
// the first item, same policy as installment schedules.
func settleItems(billable []BillableItem, final pricing.Money) []budget.Settlement {
	out := make([]budget.Settlement, len(billable))
	var subtotal pricing.Money
	for _, b := range billable {
		subtotal += b.Value
	}
	var allocated pricing.Money
	for i, b := range billable {
		var share pricing.Money
		if subtotal > 0 {
			share = final * b.Value / subtotal
		}
		out[i] = budget.Settlement{InstanceID: b.InstanceID, FinalValue: share}
		allocated += share
	}
	if len(out) > 0 {
		out[0].FinalValue += final - allocated
	}
	return out
}

// selectBillable filters the budget items down to the charge selection.
// Sold items never qualify. An empty id list selects all unsold items.
func selectBillable(items []budget.Item, instanceIDs []string) []BillableItem {
	wanted := make(map[string]bool, len(instanceIDs))
	for _, id := range instanceIDs {
		wanted[id] = true
	}
	var out []BillableItem
	for _, it := range items {
		if it.Sold {
			continue
		}
		if len(wanted) > 0 && !wanted[it.InstanceID] {
			continue
		}
		value := it.FinalValue
		if value <= 0 {
			value = it.Subtotal()
		}
		out = append(out, BillableItem{
			InstanceID:  it.InstanceID,
			Description: it.Name,
			Value:       value,
		})
	}
	return out
}
