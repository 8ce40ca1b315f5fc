package catalog

import (
	"context"
	"errors"
	"fmt"
)

// Reader abstracts the persistence operations the service needs, letting
// tests supply an in-memory implementation.
type Reader interface {
	ListProcedures(ctx context.Context, clinicID string) ([]Procedure, error)
	GetProcedure(ctx context.Context, clinicID, id string) (Procedure, error)
	ListPriceTables(ctx context.Context, clinicID string) ([]PriceTable, error)
	ListProfessionals(ctx context.Context, clinicID string) ([]Professional, error)
}

// Service orchestrates catalog reads with caching.
type Service struct {
	Store Reader
	Cache *Cache
}

func proceduresKey(clinicID string) string    { return fmt.Sprintf("catalog:%s:procedures", clinicID) }
func priceTablesKey(clinicID string) string   { return fmt.Sprintf("catalog:%s:pricetables", clinicID) }
func professionalsKey(clinicID string) string { return fmt.Sprintf("catalog:%s:professionals", clinicID) }

// Procedures returns active procedures for the clinic, cache first.
func (s *Service) Procedures(ctx context.Context, clinicID string) ([]Procedure, error) {
	if s == nil || s.Store == nil {
		return nil, errors.New("catalog service not configured")
	}
	key := proceduresKey(clinicID)
	var cached []Procedure
	if hit, err := s.Cache.GetJSON(ctx, key, &cached); err == nil && hit {
		return cached, nil
	}
	procedures, err := s.Store.ListProcedures(ctx, clinicID)
	if err != nil {
		return nil, err
	}
	_ = s.Cache.SetJSON(ctx, key, procedures)
	return procedures, nil
}

// Procedure loads a single catalog entry. Single lookups bypass the cache;
// they back the add-to-budget flow where staleness would misprice an item.
func (s *Service) Procedure(ctx context.Context, clinicID, id string) (Procedure, error) {
	if s == nil || s.Store == nil {
		return Procedure{}, errors.New("catalog service not configured")
	}
	return s.Store.GetProcedure(ctx, clinicID, id)
}

// PriceTables returns the clinic's price tables, cache first.
func (s *Service) PriceTables(ctx context.Context, clinicID string) ([]PriceTable, error) {
	if s == nil || s.Store == nil {
		return nil, errors.New("catalog service not configured")
	}
	key := priceTablesKey(clinicID)
	var cached []PriceTable
	if hit, err := s.Cache.GetJSON(ctx, key, &cached); err == nil && hit {
		return cached, nil
	}
	tables, err := s.Store.ListPriceTables(ctx, clinicID)
	if err != nil {
		return nil, err
	}
	_ = s.Cache.SetJSON(ctx, key, tables)
	return tables, nil
}

// Professionals returns the clinic's active professionals, cache first.
func (s *Service) Professionals(ctx context.Context, clinicID string) ([]Professional, error) {
	if s == nil || s.Store == nil {
		return nil, errors.New("catalog service not configured")
	}
	key := professionalsKey(clinicID)
	var cached []Professional
	if hit, err := s.Cache.GetJSON(ctx, key, &cached); err == nil && hit {
		return cached, nil
	}
	pros, err := s.Store.ListProfessionals(ctx, clinicID)
	if err != nil {
		return nil, err
	}
	_ = s.Cache.SetJSON(ctx, key, pros)
	return pros, nil
}

// InvalidateClinic drops all cached catalog payloads for the clinic.
func (s *Service) InvalidateClinic(ctx context.Context, clinicID string) error {
	if s == nil {
		return nil
	}
	return s.Cache.Invalidate(ctx, proceduresKey(clinicID), priceTablesKey(clinicID), professionalsKey(clinicID))
}
