package checkout

import (
	"context"
	"errors"
	"fmt"

	"github.com/alexedwards/argon2id"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	// ErrPinRejected covers both unknown professionals and wrong PINs, so
	// the response never reveals which one it was.
	ErrPinRejected = errors.New("pin rejected")
	// ErrPinMalformed is returned before any lookup for PINs that fail the
	// local shape check.
	ErrPinMalformed = errors.New("pin must be at least 4 digits")
)

// Authorizer verifies that the acting professional approved the charge.
type Authorizer interface {
	Verify(ctx context.Context, clinicID, professionalID, pin string) error
}

// ValidatePinShape runs the local check applied before any store lookup:
// at least four characters, digits only.
func ValidatePinShape(pin string) error {
	if len(pin) < 4 {
		return ErrPinMalformed
	}
	for _, r := range pin {
		if r < '0' || r > '9' {
			return ErrPinMalformed
		}
	}
	return nil
}

// PGAuthorizer checks PINs against the argon2id hash stored per
// professional.
type PGAuthorizer struct {
	Pool *pgxpool.Pool
}

func (a *PGAuthorizer) Verify(ctx context.Context, clinicID, professionalID, pin string) error {
	if a == nil || a.Pool == nil {
		return errors.New("checkout authorizer not configured")
	}
	if err := ValidatePinShape(pin); err != nil {
		return err
	}
	var hash string
	err := a.Pool.QueryRow(ctx, `
		SELECT pin_hash FROM professionals
		WHERE id = $1 AND clinic_id = $2 AND active`,
		professionalID, clinicID,
	).Scan(&hash)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrPinRejected
	}
	if err != nil {
		return fmt.Errorf("load professional pin: %w", err)
	}
	ok, err := argon2id.ComparePasswordAndHash(pin, hash)
	if err != nil || !ok {
		return ErrPinRejected
	}
	return nil
}

// HashPin produces the stored form of a PIN; used by the seeding tool.
func HashPin(pin string) (string, error) {
	if err := ValidatePinShape(pin); err != nil {
		return "", err
	}
	return argon2id.CreateHash(pin, argon2id.DefaultParams)
}
