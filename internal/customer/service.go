package customer

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// Customer is the profile record used for promo eligibility checks.
type Customer struct {
	ID    uuid.UUID
	Email string
	Tier  Tier
}

// Identity is the resolved view of whoever owns the current cart. A guest
// without a stored email resolves to a zero Identity; promo checks that need
// an identity are skipped at preview time and enforced at checkout.
type Identity struct {
	CustomerID  *uuid.UUID
	Email       string
	Tier        Tier
	PriorOrders int
}

// Known reports whether the identity can be matched against order history.
func (i Identity) Known() bool {
	return i.CustomerID != nil || strings.TrimSpace(i.Email) != ""
}

// Querier captures the database methods required to resolve identities.
type Querier interface {
	GetCustomerByID(ctx context.Context, id uuid.UUID) (Customer, error)
	GetCustomerByEmail(ctx context.Context, email string) (Customer, error)
	CountOrdersByCustomer(ctx context.Context, customerID *uuid.UUID, email string) (int64, error)
}

// Service resolves customer identities across registered and guest orders.
type Service struct {
	Q Querier
}

// Resolve builds an Identity from an optional customer id and email. A known
// email ties guest orders and a registered account together, so prior-order
// counts span both.
func (s *Service) Resolve(ctx context.Context, customerID *uuid.UUID, email string) (Identity, error) {
	if s == nil || s.Q == nil {
		return Identity{}, errors.New("customer service not configured")
	}
	email = strings.ToLower(strings.TrimSpace(email))
	ident := Identity{Email: email}

	if customerID != nil {
		cust, err := s.Q.GetCustomerByID(ctx, *customerID)
		if err != nil {
			if !errors.Is(err, pgx.ErrNoRows) {
				return Identity{}, err
			}
		} else {
			ident.CustomerID = &cust.ID
			ident.Tier = cust.Tier
			if ident.Email == "" {
				ident.Email = strings.ToLower(cust.Email)
			}
		}
	} else if email != "" {
		cust, err := s.Q.GetCustomerByEmail(ctx, email)
		if err != nil {
			if !errors.Is(err, pgx.ErrNoRows) {
				return Identity{}, err
			}
		} else {
			ident.CustomerID = &cust.ID
			ident.Tier = cust.Tier
		}
	}

	if !ident.Known() {
		return ident, nil
	}
	count, err := s.Q.CountOrdersByCustomer(ctx, ident.CustomerID, ident.Email)
	if err != nil {
		return Identity{}, err
	}
	ident.PriorOrders = int(count)
	return ident, nil
}
