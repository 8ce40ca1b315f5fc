package checkout

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// PGStore persists sales and transactions in Postgres.
type PGStore struct {
	Pool *pgxpool.Pool
}

func NewPGStore(pool *pgxpool.Pool) *PGStore {
	return &PGStore{Pool: pool}
}

func (s *PGStore) InsertSale(ctx context.Context, sale Sale) error {
	if s == nil || s.Pool == nil {
		return errors.New("checkout store not configured")
	}
	_, err := s.Pool.Exec(ctx, `
		INSERT INTO sales (
			id, clinic_id, budget_id, patient_id, professional_id,
			amount, method, installments, created_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
		sale.ID, sale.ClinicID, sale.BudgetID, sale.PatientID,
		sale.ProfessionalID, sale.Amount, sale.Method, sale.Installments,
		sale.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert sale %s: %w", sale.ID, err)
	}
	return nil
}

func (s *PGStore) InsertTransaction(ctx context.Context, tx Transaction) error {
	if s == nil || s.Pool == nil {
		return errors.New("checkout store not configured")
	}
	_, err := s.Pool.Exec(ctx, `
		INSERT INTO transactions (
			id, sale_id, amount, method, installments, status, created_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		tx.ID, tx.SaleID, tx.Amount, tx.Method, tx.Installments, tx.Status,
		tx.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert transaction %s: %w", tx.ID, err)
	}
	return nil
}
