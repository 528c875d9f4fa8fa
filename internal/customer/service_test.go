package customer

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

type stubCustomers struct {
	byID    map[uuid.UUID]Customer
	byEmail map[string]Customer
	orders  int64
}

func (s *stubCustomers) GetCustomerByID(_ context.Context, id uuid.UUID) (Customer, error) {
	c, ok := s.byID[id]
	if !ok {
		return Customer{}, pgx.ErrNoRows
	}
	return c, nil
}

func (s *stubCustomers) GetCustomerByEmail(_ context.Context, email string) (Customer, error) {
	c, ok := s.byEmail[email]
	if !ok {
		return Customer{}, pgx.ErrNoRows
	}
	return c, nil
}

func (s *stubCustomers) CountOrdersByCustomer(context.Context, *uuid.UUID, string) (int64, error) {
	return s.orders, nil
}

func TestResolveRegisteredCustomer(t *testing.T) {
	cust := Customer{ID: uuid.New(), Email: "Jo@Example.com", Tier: TierGold}
	svc := &Service{Q: &stubCustomers{byID: map[uuid.UUID]Customer{cust.ID: cust}, orders: 4}}

	ident, err := svc.Resolve(context.Background(), &cust.ID, "")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if ident.CustomerID == nil || *ident.CustomerID != cust.ID {
		t.Fatalf("customer id not resolved")
	}
	if ident.Email != "jo@example.com" {
		t.Fatalf("email = %q, want lowercased account email", ident.Email)
	}
	if ident.Tier != TierGold || ident.PriorOrders != 4 {
		t.Fatalf("ident = %+v", ident)
	}
}

func TestResolveGuestEmailMatchesAccount(t *testing.T) {
	cust := Customer{ID: uuid.New(), Email: "jo@example.com", Tier: TierSilver}
	svc := &Service{Q: &stubCustomers{byEmail: map[string]Customer{"jo@example.com": cust}, orders: 1}}

	ident, err := svc.Resolve(context.Background(), nil, " Jo@Example.com ")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if ident.CustomerID == nil || *ident.CustomerID != cust.ID {
		t.Fatalf("email lookup did not attach the account")
	}
	if ident.Tier != TierSilver || ident.PriorOrders != 1 {
		t.Fatalf("ident = %+v", ident)
	}
}

func TestResolveUnknownGuest(t *testing.T) {
	svc := &Service{Q: &stubCustomers{orders: 99}}
	ident, err := svc.Resolve(context.Background(), nil, "")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if ident.Known() || ident.PriorOrders != 0 {
		t.Fatalf("anonymous guest should resolve empty: %+v", ident)
	}
}

func TestResolveUnknownEmailStillCountsGuestOrders(t *testing.T) {
	svc := &Service{Q: &stubCustomers{orders: 2}}
	ident, err := svc.Resolve(context.Background(), nil, "new@example.com")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if ident.CustomerID != nil {
		t.Fatalf("no account should match")
	}
	if ident.PriorOrders != 2 {
		t.Fatalf("prior guest orders = %d, want 2", ident.PriorOrders)
	}
}
