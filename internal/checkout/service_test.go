package checkout

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/backend-clinica/internal/budget"
	"github.com/noah-isme/backend-clinica/internal/events"
	"github.com/noah-isme/backend-clinica/internal/negotiation"
)

type fakeGateway struct {
	header     budget.Header
	items      []budget.Item
	getErr     error
	status     budget.Status
	statusErr  error
	soldIDs    []string
	settled    []budget.Settlement
	soldErr    error
	statusSets int
}

func (f *fakeGateway) GetBudget(context.Context, string, string) (budget.Header, []budget.Item, error) {
	return f.header, f.items, f.getErr
}

func (f *fakeGateway) UpdateStatus(_ context.Context, _, _ string, status budget.Status) error {
	if f.statusErr != nil {
		return f.statusErr
	}
	f.status = status
	f.statusSets++
	return nil
}

func (f *fakeGateway) MarkItemsSold(_ context.Context, _ string, settlements []budget.Settlement) error {
	if f.soldErr != nil {
		return f.soldErr
	}
	f.settled = settlements
	f.soldIDs = nil
	for _, st := range settlements {
		f.soldIDs = append(f.soldIDs, st.InstanceID)
	}
	return nil
}

type fakeSaleStore struct {
	sales  []Sale
	txs    []Transaction
	txErr  error
	sErr   error
}

func (f *fakeSaleStore) InsertSale(_ context.Context, s Sale) error {
	if f.sErr != nil {
		return f.sErr
	}
	f.sales = append(f.sales, s)
	return nil
}

func (f *fakeSaleStore) InsertTransaction(_ context.Context, tx Transaction) error {
	if f.txErr != nil {
		return f.txErr
	}
	f.txs = append(f.txs, tx)
	return nil
}

type pinOK struct{}

func (pinOK) Verify(context.Context, string, string, string) error { return nil }

type pinFail struct{}

func (pinFail) Verify(context.Context, string, string, string) error { return ErrPinRejected }

type memEventStore struct {
	topics []string
}

func (m *memEventStore) InsertDomainEvent(_ context.Context, topic string, aggregateID uuid.UUID, payload []byte) (events.DomainEvent, error) {
	m.topics = append(m.topics, topic)
	return events.DomainEvent{ID: uuid.New(), Topic: topic, AggregateID: aggregateID, Payload: payload, OccurredAt: time.Now()}, nil
}

func chargeFixture() (*fakeGateway, *fakeSaleStore, ChargeInput) {
	budgetID := uuid.NewString()
	gw := &fakeGateway{
		header: budget.Header{ID: budgetID, ClinicID: "clinic-1", PatientID: "patient-1", Status: budget.StatusPending},
		items: []budget.Item{
			{InstanceID: "i1", Name: "Limpeza", UnitPrice: 40000, Qty: 1},
			{InstanceID: "i2", Name: "Clareamento", UnitPrice: 60000, Qty: 1},
		},
	}
	return gw, &fakeSaleStore{}, ChargeInput{
		BudgetID:       budgetID,
		ProfessionalID: "prof-1",
		Pin:            "4321",
		Method:         negotiation.MethodCash,
		Installments:   1,
	}
}

func TestChargeHappyPathCommitsInOrder(t *testing.T) {
	gw, store, in := chargeFixture()
	evStore := &memEventStore{}
	svc := &Service{
		Authorizer: pinOK{},
		Budgets:    gw,
		Store:      store,
		Events:     &events.Bus{Store: evStore},
		Now:        func() time.Time { return time.Date(2026, 3, 10, 14, 0, 0, 0, time.UTC) },
	}

	res, err := svc.Charge(context.Background(), "clinic-1", in)

	require.NoError(t, err)
	assert.Equal(t, budget.StatusApproved, gw.status)
	require.Len(t, store.sales, 1)
	require.Len(t, store.txs, 1)
	// R$1000.00 cash: settle-now discount applies.
	assert.EqualValues(t, 95000, store.sales[0].Amount)
	assert.Equal(t, store.sales[0].ID, store.txs[0].SaleID)
	assert.Equal(t, []string{"i1", "i2"}, gw.soldIDs)
	assert.Equal(t, res.SaleID, store.sales[0].ID)
	assert.Equal(t, []string{events.TopicBudgetApproved, events.TopicCheckoutCompleted}, evStore.topics)
}

func TestChargePersistsSettledItemValues(t *testing.T) {
	gw, store, in := chargeFixture()
	svc := &Service{Authorizer: pinOK{}, Budgets: gw, Store: store}

	res, err := svc.Charge(context.Background(), "clinic-1", in)

	require.NoError(t, err)
	// The R$950.00 collected is prorated across the two items.
	require.Len(t, gw.settled, 2)
	assert.Equal(t, budget.Settlement{InstanceID: "i1", FinalValue: 38000}, gw.settled[0])
	assert.Equal(t, budget.Settlement{InstanceID: "i2", FinalValue: 57000}, gw.settled[1])
	assert.EqualValues(t, 95000, res.Payment.FinalValue)
}

func TestSettleItemsRemainderGoesFirst(t *testing.T) {
	settled := settleItems([]BillableItem{
		{InstanceID: "a", Value: 100},
		{InstanceID: "b", Value: 200},
	}, 101)

	require.Len(t, settled, 2)
	assert.EqualValues(t, 34, settled[0].FinalValue)
	assert.EqualValues(t, 67, settled[1].FinalValue)
	assert.EqualValues(t, 101, settled[0].FinalValue+settled[1].FinalValue)
}

func TestChargePinFailureTouchesNothing(t *testing.T) {
	gw, store, in := chargeFixture()
	evStore := &memEventStore{}
	svc := &Service{Authorizer: pinFail{}, Budgets: gw, Store: store, Events: &events.Bus{Store: evStore}}

	_, err := svc.Charge(context.Background(), "clinic-1", in)

	require.ErrorIs(t, err, ErrPinRejected)
	assert.Zero(t, gw.statusSets)
	assert.Empty(t, store.sales)
	assert.Empty(t, gw.soldIDs)
	assert.Equal(t, []string{events.TopicCheckoutFailed}, evStore.topics)
}

func TestChargeStopsWhereItFails(t *testing.T) {
	gw, store, in := chargeFixture()
	store.txErr = errors.New("connection reset")
	svc := &Service{Authorizer: pinOK{}, Budgets: gw, Store: store}

	_, err := svc.Charge(context.Background(), "clinic-1", in)

	require.Error(t, err)
	// Sale landed before the transaction failed; items were never settled.
	assert.Len(t, store.sales, 1)
	assert.Empty(t, store.txs)
	assert.Empty(t, gw.soldIDs)
}

func TestChargeSelectsOnlyRequestedUnsoldItems(t *testing.T) {
	gw, store, in := chargeFixture()
	gw.items = append(gw.items, budget.Item{InstanceID: "i3", Name: "Implante", UnitPrice: 500000, Qty: 1, Sold: true})
	in.InstanceIDs = []string{"i1", "i3"}
	in.Method = negotiation.MethodCreditCard
	in.Installments = 4
	svc := &Service{Authorizer: pinOK{}, Budgets: gw, Store: store}

	res, err := svc.Charge(context.Background(), "clinic-1", in)

	require.NoError(t, err)
	assert.Equal(t, []string{"i1"}, gw.soldIDs)
	assert.EqualValues(t, 40000, res.Payment.FinalValue)
	assert.Equal(t, 4, res.Payment.Installments)
}

func TestChargeEmptySelection(t *testing.T) {
	gw, store, in := chargeFixture()
	for i := range gw.items {
		gw.items[i].Sold = true
	}
	svc := &Service{Authorizer: pinOK{}, Budgets: gw, Store: store}

	_, err := svc.Charge(context.Background(), "clinic-1", in)
	require.ErrorIs(t, err, ErrEmptySelection)
}

func TestChargeRejectsUnknownMethod(t *testing.T) {
	gw, store, in := chargeFixture()
	in.Method = "CHECK"
	svc := &Service{Authorizer: pinOK{}, Budgets: gw, Store: store}

	_, err := svc.Charge(context.Background(), "clinic-1", in)
	require.ErrorIs(t, err, ErrBadMethod)
}

func TestPreviewDoesNotCommit(t *testing.T) {
	gw, store, in := chargeFixture()
	svc := &Service{Authorizer: pinOK{}, Budgets: gw, Store: store}

	data, err := svc.Preview(context.Background(), "clinic-1", in)

	require.NoError(t, err)
	assert.EqualValues(t, 95000, data.FinalValue)
	assert.Zero(t, gw.statusSets)
	assert.Empty(t, store.sales)
}

func TestValidatePinShape(t *testing.T) {
	assert.NoError(t, ValidatePinShape("1234"))
	assert.NoError(t, ValidatePinShape("123456"))
	assert.ErrorIs(t, ValidatePinShape("123"), ErrPinMalformed)
	assert.ErrorIs(t, ValidatePinShape("12a4"), ErrPinMalformed)
	assert.ErrorIs(t, ValidatePinShape(""), ErrPinMalformed)
}
