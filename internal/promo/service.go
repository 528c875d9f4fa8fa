package promo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/amberfork/backend-resto/internal/customer"
	"github.com/amberfork/backend-resto/internal/obs"
)

// Querier captures the database methods required by the promo service.
type Querier interface {
	GetPromoByCode(ctx context.Context, code string) (Code, error)
	GetPromoByCodeForUpdate(ctx context.Context, code string) (Code, error)
	ListAutoApplyPromos(ctx context.Context) ([]Code, error)
	CountPromoUsageByCustomer(ctx context.Context, code string, customerID *uuid.UUID, email string) (int64, error)
	GetPromoUsageByOrder(ctx context.Context, code string, orderID uuid.UUID) (bool, error)
	InsertPromoUsage(ctx context.Context, arg InsertUsageParams) error
	IncrementPromoUsedCount(ctx context.Context, code string) error
}

// InsertUsageParams records one redemption of a code against an order.
type InsertUsageParams struct {
	Code       string
	OrderID    uuid.UUID
	CustomerID *uuid.UUID
	Email      string
	Amount     decimal.Decimal
}

// CustomerDirectory resolves the ordering customer across guest and
// registered identities.
type CustomerDirectory interface {
	Resolve(ctx context.Context, customerID *uuid.UUID, email string) (customer.Identity, error)
}

// Context carries the request-scoped facts a resolution runs against.
type Context struct {
	CustomerID     *uuid.UUID
	Email          string
	DeliveryMethod string
}

// ApplyResult is the outcome of the interactive single-code apply path.
type ApplyResult struct {
	Success      bool       `json:"success"`
	Resolution   Resolution `json:"resolution"`
	AppliedCodes []string   `json:"appliedCodes"`
	// Message carries advisory text for accepted codes, e.g. one kept in the
	// applied set while a bigger exclusive discount wins.
	Message      string `json:"message,omitempty"`
	ErrorMessage string `json:"errorMessage,omitempty"`
}

// Service evaluates promo codes against the catalog and usage history.
type Service struct {
	Q         Querier
	Customers CustomerDirectory
	Now       func() time.Time
}

func (s *Service) now() time.Time {
	if s != nil && s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

// WithQuerier returns a copy of the service bound to a different querier,
// used by checkout to run resolution inside a transaction with row locks.
func (s *Service) WithQuerier(q Querier) *Service {
	if s == nil {
		return &Service{Q: q}
	}
	return &Service{Q: q, Customers: s.Customers, Now: s.Now}
}

// Resolve loads definitions for the candidate codes plus every active
// auto-apply code, then runs stacking resolution. Candidates keep their
// submitted order and precede auto-applied codes, which decides
// equal-discount ties.
func (s *Service) Resolve(ctx context.Context, candidates []string, discountable, deliveryFee decimal.Decimal, pctx Context) (Resolution, error) {
	return s.resolve(ctx, candidates, discountable, deliveryFee, pctx, false)
}

// ResolveLocked behaves like Resolve but reads each candidate definition with
// a row lock so two concurrent checkouts cannot both pass a usage-limit
// boundary. It must run inside a transaction.
func (s *Service) ResolveLocked(ctx context.Context, candidates []string, discountable, deliveryFee decimal.Decimal, pctx Context) (Resolution, error) {
	return s.resolve(ctx, candidates, discountable, deliveryFee, pctx, true)
}

func (s *Service) resolve(ctx context.Context, candidates []string, discountable, deliveryFee decimal.Decimal, pctx Context, locked bool) (Resolution, error) {
	if s == nil || s.Q == nil {
		return Resolution{}, errors.New("promo service not configured")
	}
	merged, err := s.mergeAutoApply(ctx, candidates)
	if err != nil {
		return Resolution{}, err
	}
	defs, err := s.loadDefs(ctx, merged, locked)
	if err != nil {
		return Resolution{}, err
	}
	facts, err := s.buildFacts(ctx, merged, pctx)
	if err != nil {
		return Resolution{}, err
	}
	res := Resolve(defs, merged, discountable, deliveryFee, facts)
	if obs.PromoResolutionTotal != nil {
		for range res.Applied {
			obs.PromoResolutionTotal.WithLabelValues("applied").Inc()
		}
		for range res.Removed {
			obs.PromoResolutionTotal.WithLabelValues("removed").Inc()
		}
	}
	return res, nil
}

// Apply runs the interactive single-code path: reject duplicates up front,
// then resolve the union of the current applied set and the new code. When
// the new code does not survive, the specific validation failure is surfaced
// instead of a generic error.
func (s *Service) Apply(ctx context.Context, code string, applied []string, discountable, deliveryFee decimal.Decimal, pctx Context) (ApplyResult, error) {
	if s == nil || s.Q == nil {
		return ApplyResult{}, errors.New("promo service not configured")
	}
	key := Normalize(code)
	if key == "" {
		return ApplyResult{Success: false, ErrorMessage: Message(ErrUnknownCode)}, nil
	}
	for _, existing := range applied {
		if Normalize(existing) == key {
			return ApplyResult{Success: false, ErrorMessage: Message(ErrAlreadyApplied)}, nil
		}
	}

	candidates := append(append([]string{}, applied...), key)
	res, err := s.Resolve(ctx, candidates, discountable, deliveryFee, pctx)
	if err != nil {
		return ApplyResult{}, err
	}
	for _, a := range res.Applied {
		if Normalize(a.Code) == key {
			return ApplyResult{
				Success:      true,
				Resolution:   res,
				AppliedCodes: candidates,
			}, nil
		}
	}
	// Bumped by stacking rather than validation: the code is kept in the
	// applied set so it can win again if the cart changes.
	for _, r := range res.Removed {
		if Normalize(r.Code) == key {
			return ApplyResult{
				Success:      true,
				Resolution:   res,
				AppliedCodes: candidates,
				Message:      fmt.Sprintf("Code saved but not applied: %s", r.Reason),
			}, nil
		}
	}
	reason, err := s.validateSingle(ctx, key, discountable, deliveryFee, pctx)
	if err != nil {
		return ApplyResult{}, err
	}
	return ApplyResult{Success: false, Resolution: res, AppliedCodes: applied, ErrorMessage: reason}, nil
}

// validateSingle re-runs validation for one code to name the failing rule.
func (s *Service) validateSingle(ctx context.Context, key string, discountable, deliveryFee decimal.Decimal, pctx Context) (string, error) {
	def, err := s.Q.GetPromoByCode(ctx, key)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Message(ErrUnknownCode), nil
		}
		return "", err
	}
	facts, err := s.buildFacts(ctx, []string{key}, pctx)
	if err != nil {
		return "", err
	}
	if err := def.Validate(discountable, facts); err != nil {
		return Message(err), nil
	}
	if !def.Discount(discountable, deliveryFee).IsPositive() {
		return Message(ErrNoDiscount), nil
	}
	return Message(nil), nil
}

// Settle records usage for an applied code once an order is finalised. It is
// idempotent per order. The caller is expected to hold the code's row lock
// (ResolveLocked inside the same transaction) so the final usage-count check
// and the usage insert are serialised.
func (s *Service) Settle(ctx context.Context, code string, orderID uuid.UUID, ident customer.Identity, amount decimal.Decimal) error {
	if s == nil || s.Q == nil {
		return errors.New("promo service not configured")
	}
	key := Normalize(code)
	if key == "" || orderID == uuid.Nil {
		return nil
	}
	exists, err := s.Q.GetPromoUsageByOrder(ctx, key, orderID)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}
	if amount.IsNegative() {
		amount = decimal.Zero
	}
	if err := s.Q.InsertPromoUsage(ctx, InsertUsageParams{
		Code:       key,
		OrderID:    orderID,
		CustomerID: ident.CustomerID,
		Email:      ident.Email,
		Amount:     amount,
	}); err != nil {
		return fmt.Errorf("insert promo usage: %w", err)
	}
	if err := s.Q.IncrementPromoUsedCount(ctx, key); err != nil {
		return fmt.Errorf("increment promo used count: %w", err)
	}
	return nil
}

func (s *Service) mergeAutoApply(ctx context.Context, candidates []string) ([]string, error) {
	merged := make([]string, 0, len(candidates)+2)
	for _, c := range candidates {
		if key := Normalize(c); key != "" {
			merged = append(merged, key)
		}
	}
	auto, err := s.Q.ListAutoApplyPromos(ctx)
	if err != nil {
		return nil, fmt.Errorf("list auto-apply promos: %w", err)
	}
	for _, def := range auto {
		merged = append(merged, Normalize(def.Code))
	}
	return merged, nil
}

func (s *Service) loadDefs(ctx context.Context, candidates []string, locked bool) (map[string]Code, error) {
	defs := make(map[string]Code, len(candidates))
	for _, c := range candidates {
		key := Normalize(c)
		if key == "" {
			continue
		}
		if _, ok := defs[key]; ok {
			continue
		}
		var (
			def Code
			err error
		)
		if locked {
			def, err = s.Q.GetPromoByCodeForUpdate(ctx, key)
		} else {
			def, err = s.Q.GetPromoByCode(ctx, key)
		}
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				continue
			}
			return nil, fmt.Errorf("load promo %s: %w", key, err)
		}
		defs[key] = def
	}
	return defs, nil
}

func (s *Service) buildFacts(ctx context.Context, candidates []string, pctx Context) (Facts, error) {
	facts := Facts{
		Now:            s.now(),
		DeliveryMethod: pctx.DeliveryMethod,
		CustomerUses:   map[string]int64{},
	}
	if s.Customers != nil && (pctx.CustomerID != nil || pctx.Email != "") {
		ident, err := s.Customers.Resolve(ctx, pctx.CustomerID, pctx.Email)
		if err != nil {
			return Facts{}, fmt.Errorf("resolve customer: %w", err)
		}
		facts.Identity = ident
	}
	if !facts.Identity.Known() {
		return facts, nil
	}
	for _, c := range candidates {
		key := Normalize(c)
		if key == "" {
			continue
		}
		if _, ok := facts.CustomerUses[key]; ok {
			continue
		}
		used, err := s.Q.CountPromoUsageByCustomer(ctx, key, facts.Identity.CustomerID, facts.Identity.Email)
		if err != nil {
			return Facts{}, fmt.Errorf("count promo usage for %s: %w", key, err)
		}
		facts.CustomerUses[key] = used
	}
	return facts, nil
}
