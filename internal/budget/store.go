package budget

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/noah-isme/backend-clinica/internal/pricing"
)

// PGStore persists budgets in Postgres.
type PGStore struct {
	Pool *pgxpool.Pool
}

func NewPGStore(pool *pgxpool.Pool) *PGStore {
	return &PGStore{Pool: pool}
}

// SaveBudget upserts the header and replaces the full line-item set inside
// one transaction, so readers never observe a partially written budget.
func (s *PGStore) SaveBudget(ctx context.Context, header Header, items []Item) (Header, error) {
	if s == nil || s.Pool == nil {
		return Header{}, errors.New("budget store not configured")
	}
	tx, err := s.Pool.Begin(ctx)
	if err != nil {
		return Header{}, fmt.Errorf("begin save budget: %w", err)
	}
	defer tx.Rollback(ctx)

	err = tx.QueryRow(ctx, `
		INSERT INTO budgets (
			id, clinic_id, patient_id, status, total_value, final_value,
			discount_mode, discount, sales_rep_id, price_table_id,
			payment_method, installments, down_payment, created_at, updated_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$14)
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status,
			total_value = EXCLUDED.total_value,
			final_value = EXCLUDED.final_value,
			discount_mode = EXCLUDED.discount_mode,
			discount = EXCLUDED.discount,
			sales_rep_id = EXCLUDED.sales_rep_id,
			price_table_id = EXCLUDED.price_table_id,
			payment_method = EXCLUDED.payment_method,
			installments = EXCLUDED.installments,
			down_payment = EXCLUDED.down_payment,
			updated_at = EXCLUDED.updated_at
		RETURNING created_at, updated_at`,
		header.ID, header.ClinicID, header.PatientID, header.Status,
		header.TotalValue, header.FinalValue, header.DiscountMode,
		header.Discount, nullable(header.SalesRepID), nullable(header.PriceTableID),
		header.PaymentMethod, header.Installments, header.DownPayment,
		header.UpdatedAt,
	).Scan(&header.CreatedAt, &header.UpdatedAt)
	if err != nil {
		return Header{}, fmt.Errorf("upsert budget %s: %w", header.ID, err)
	}

	if _, err := tx.Exec(ctx, `DELETE FROM budget_items WHERE budget_id = $1`, header.ID); err != nil {
		return Header{}, fmt.Errorf("clear budget items: %w", err)
	}
	for _, it := range items {
		_, err := tx.Exec(ctx, `
			INSERT INTO budget_items (
				instance_id, budget_id, procedure_id, name, category,
				unit_price, qty, unit_cost, region, tooth, sold, final_value
			) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)`,
			it.InstanceID, header.ID, it.ProcedureID, it.Name, it.Category,
			it.UnitPrice, it.Qty, it.UnitCost, nullable(it.Region),
			it.Tooth, it.Sold, it.FinalValue,
		)
		if err != nil {
			return Header{}, fmt.Errorf("insert budget item %s: %w", it.InstanceID, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return Header{}, fmt.Errorf("commit save budget: %w", err)
	}
	return header, nil
}

func (s *PGStore) GetBudget(ctx context.Context, clinicID, id string) (Header, []Item, error) {
	if s == nil || s.Pool == nil {
		return Header{}, nil, errors.New("budget store not configured")
	}
	var h Header
	var salesRep, priceTable *string
	err := s.Pool.QueryRow(ctx, `
		SELECT id, clinic_id, patient_id, status, total_value, final_value,
		       discount_mode, discount, sales_rep_id, price_table_id,
		       payment_method, installments, down_payment, created_at, updated_at
		FROM budgets
		WHERE id = $1 AND clinic_id = $2`,
		id, clinicID,
	).Scan(&h.ID, &h.ClinicID, &h.PatientID, &h.Status, &h.TotalValue,
		&h.FinalValue, &h.DiscountMode, &h.Discount, &salesRep, &priceTable,
		&h.PaymentMethod, &h.Installments, &h.DownPayment, &h.CreatedAt, &h.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Header{}, nil, ErrNotFound
	}
	if err != nil {
		return Header{}, nil, fmt.Errorf("get budget %s: %w", id, err)
	}
	h.SalesRepID = deref(salesRep)
	h.PriceTableID = deref(priceTable)

	rows, err := s.Pool.Query(ctx, `
		SELECT instance_id, procedure_id, name, category, unit_price, qty,
		       unit_cost, region, tooth, sold, final_value
		FROM budget_items
		WHERE budget_id = $1
		ORDER BY instance_id`,
		id,
	)
	if err != nil {
		return Header{}, nil, fmt.Errorf("list budget items: %w", err)
	}
	defer rows.Close()

	var items []Item
	for rows.Next() {
		var it Item
		var region *string
		if err := rows.Scan(&it.InstanceID, &it.ProcedureID, &it.Name,
			&it.Category, &it.UnitPrice, &it.Qty, &it.UnitCost,
			&region, &it.Tooth, &it.Sold, &it.FinalValue); err != nil {
			return Header{}, nil, fmt.Errorf("scan budget item: %w", err)
		}
		it.Region = deref(region)
		items = append(items, it)
	}
	if err := rows.Err(); err != nil {
		return Header{}, nil, err
	}
	return h, items, nil
}

func (s *PGStore) ListBudgets(ctx context.Context, clinicID, patientID string, limit, offset int) ([]Header, error) {
	if s == nil || s.Pool == nil {
		return nil, errors.New("budget store not configured")
	}
	rows, err := s.Pool.Query(ctx, `
		SELECT id, clinic_id, patient_id, status, total_value, final_value,
		       discount_mode, discount, sales_rep_id, price_table_id,
		       payment_method, installments, down_payment, created_at, updated_at
		FROM budgets
		WHERE clinic_id = $1
		  AND ($2 = '' OR patient_id = $2)
		ORDER BY updated_at DESC
		LIMIT $3 OFFSET $4`,
		clinicID, patientID, limit, offset,
	)
	if err != nil {
		return nil, fmt.Errorf("list budgets: %w", err)
	}
	defer rows.Close()

	var out []Header
	for rows.Next() {
		var h Header
		var salesRep, priceTable *string
		if err := rows.Scan(&h.ID, &h.ClinicID, &h.PatientID, &h.Status,
			&h.TotalValue, &h.FinalValue, &h.DiscountMode, &h.Discount,
			&salesRep, &priceTable, &h.PaymentMethod, &h.Installments,
			&h.DownPayment, &h.CreatedAt, &h.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan budget: %w", err)
		}
		h.SalesRepID = deref(salesRep)
		h.PriceTableID = deref(priceTable)
		out = append(out, h)
	}
	return out, rows.Err()
}

// UpdateStatus moves one budget forward; used by checkout approval.
func (s *PGStore) UpdateStatus(ctx context.Context, clinicID, id string, status Status) error {
	if s == nil || s.Pool == nil {
		return errors.New("budget store not configured")
	}
	tag, err := s.Pool.Exec(ctx, `
		UPDATE budgets SET status = $3, updated_at = now()
		WHERE id = $1 AND clinic_id = $2`,
		id, clinicID, status,
	)
	if err != nil {
		return fmt.Errorf("update budget status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Settlement carries the authoritative post-discount value an item was
// sold for.
type Settlement struct {
	InstanceID string
	FinalValue pricing.Money
}

// MarkItemsSold flags the given line items as converted to treatment and
// records the settled value each one closed at.
func (s *PGStore) MarkItemsSold(ctx context.Context, budgetID string, settlements []Settlement) error {
	if s == nil || s.Pool == nil {
		return errors.New("budget store not configured")
	}
	ids := make([]string, len(settlements))
	values := make([]int64, len(settlements))
	for i, st := range settlements {
		ids[i] = st.InstanceID
		values[i] = int64(st.FinalValue)
	}
	tag, err := s.Pool.Exec(ctx, `
		UPDATE budget_items AS bi
		SET sold = TRUE, final_value = s.final_value
		FROM (SELECT unnest($2::text[]) AS instance_id, unnest($3::bigint[]) AS final_value) AS s
		WHERE bi.budget_id = $1 AND bi.instance_id = s.instance_id`,
		budgetID, ids, values,
	)
	if err != nil {
		return fmt.Errorf("mark items sold: %w", err)
	}
	if tag.RowsAffected() != int64(len(settlements)) {
		return fmt.Errorf("mark items sold: expected %d rows, updated %d", len(settlements), tag.RowsAffected())
	}
	return nil
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
