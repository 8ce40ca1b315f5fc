package catalog

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrNotFound indicates the requested catalog record could not be located.
var ErrNotFound = errors.New("catalog record not found")

// Store reads and seeds catalog data for one clinic.
type Store struct {
	Pool *pgxpool.Pool
}

// ListProcedures returns the active procedures of the clinic.
func (s *Store) ListProcedures(ctx context.Context, clinicID string) ([]Procedure, error) {
	if s == nil || s.Pool == nil {
		return nil, errors.New("catalog store not configured")
	}
	rows, err := s.Pool.Query(ctx, `
		SELECT id, name, category, base_price, estimated_cost, active
		FROM procedures
		WHERE clinic_id = $1 AND active
		ORDER BY category, name`, clinicID)
	if err != nil {
		return nil, fmt.Errorf("list procedures: %w", err)
	}
	defer rows.Close()
	var out []Procedure
	for rows.Next() {
		var p Procedure
		if err := rows.Scan(&p.ID, &p.Name, &p.Category, &p.BasePrice, &p.EstimatedCost, &p.Active); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// GetProcedure loads one procedure by id within the clinic.
func (s *Store) GetProcedure(ctx context.Context, clinicID, id string) (Procedure, error) {
	if s == nil || s.Pool == nil {
		return Procedure{}, errors.New("catalog store not configured")
	}
	var p Procedure
	err := s.Pool.QueryRow(ctx, `
		SELECT id, name, category, base_price, estimated_cost, active
		FROM procedures
		WHERE clinic_id = $1 AND id = $2`, clinicID, id).
		Scan(&p.ID, &p.Name, &p.Category, &p.BasePrice, &p.EstimatedCost, &p.Active)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Procedure{}, ErrNotFound
		}
		return Procedure{}, err
	}
	return p, nil
}

// ListPriceTables returns the configured price tables for the clinic.
func (s *Store) ListPriceTables(ctx context.Context, clinicID string) ([]PriceTable, error) {
	if s == nil || s.Pool == nil {
		return nil, errors.New("catalog store not configured")
	}
	rows, err := s.Pool.Query(ctx, `
		SELECT id, name, is_default
		FROM price_tables
		WHERE clinic_id = $1
		ORDER BY is_default DESC, name`, clinicID)
	if err != nil {
		return nil, fmt.Errorf("list price tables: %w", err)
	}
	defer rows.Close()
	var out []PriceTable
	for rows.Next() {
		var t PriceTable
		if err := rows.Scan(&t.ID, &t.Name, &t.Default); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// ListProfessionals returns the active professionals of the clinic.
func (s *Store) ListProfessionals(ctx context.Context, clinicID string) ([]Professional, error) {
	if s == nil || s.Pool == nil {
		return nil, errors.New("catalog store not configured")
	}
	rows, err := s.Pool.Query(ctx, `
		SELECT id, name, role, active
		FROM professionals
		WHERE clinic_id = $1 AND active
		ORDER BY name`, clinicID)
	if err != nil {
		return nil, fmt.Errorf("list professionals: %w", err)
	}
	defer rows.Close()
	var out []Professional
	for rows.Next() {
		var p Professional
		if err := rows.Scan(&p.ID, &p.Name, &p.Role, &p.Active); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// SeedProcedure inserts or updates a procedure. Used by the seeding tool.
func (s *Store) SeedProcedure(ctx context.Context, clinicID string, p Procedure) error {
	if s == nil || s.Pool == nil {
		return errors.New("catalog store not configured")
	}
	_, err := s.Pool.Exec(ctx, `
		INSERT INTO procedures (id, clinic_id, name, category, base_price, estimated_cost, active)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			category = EXCLUDED.category,
			base_price = EXCLUDED.base_price,
			estimated_cost = EXCLUDED.estimated_cost,
			active = EXCLUDED.active`,
		p.ID, clinicID, p.Name, p.Category, p.BasePrice, p.EstimatedCost, p.Active)
	return err
}
