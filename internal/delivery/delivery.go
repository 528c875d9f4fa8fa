package delivery

import (
	"context"
	"errors"
	"strings"

	"github.com/shopspring/decimal"
)

// Method is how the customer receives the order.
type Method string

const (
	MethodCollection Method = "collection"
	MethodDelivery   Method = "delivery"
)

var (
	ErrUnknownMethod  = errors.New("delivery: unknown method")
	ErrOutsideZone    = errors.New("delivery: postcode outside delivery zones")
	ErrMissingAddress = errors.New("delivery: postcode required")
)

// ParseMethod validates a client-supplied method string.
func ParseMethod(s string) (Method, error) {
	switch Method(strings.ToLower(strings.TrimSpace(s))) {
	case MethodCollection:
		return MethodCollection, nil
	case MethodDelivery:
		return MethodDelivery, nil
	default:
		return "", ErrUnknownMethod
	}
}

// Provider quotes the delivery fee for a destination postcode.
type Provider interface {
	Quote(ctx context.Context, postcode string) (decimal.Decimal, error)
}

// Zone maps a postcode prefix to a flat fee.
type Zone struct {
	Prefix string
	Fee    decimal.Decimal
}

// ZoneTable is a prefix-match fee table. Longer prefixes win over shorter
// ones so "SW1A" can override "SW1".
type ZoneTable struct {
	Zones []Zone
}

func (t *ZoneTable) Quote(_ context.Context, postcode string) (decimal.Decimal, error) {
	pc := normalizePostcode(postcode)
	if pc == "" {
		return decimal.Zero, ErrMissingAddress
	}
	best := -1
	fee := decimal.Zero
	for _, z := range t.Zones {
		p := normalizePostcode(z.Prefix)
		if strings.HasPrefix(pc, p) && len(p) > best {
			best = len(p)
			fee = z.Fee
		}
	}
	if best < 0 {
		return decimal.Zero, ErrOutsideZone
	}
	return fee.Round(2), nil
}

func normalizePostcode(s string) string {
	return strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(s), " ", ""))
}
