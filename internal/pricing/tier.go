package pricing

import (
	"fmt"
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/leduxro-prog/erp-dashboard-sub000/internal/domain"
)

// TierPolicy maps customer tiers to a discount fraction of the subtotal. It is
// built from configuration and passed to whoever prices an order.
type TierPolicy struct {
	rates map[string]decimal.Decimal
}

// NewTierPolicy copies rates after checking every fraction is in [0, 1].
func NewTierPolicy(rates map[string]decimal.Decimal) (TierPolicy, error) {
	out := make(map[string]decimal.Decimal, len(rates))
	one := decimal.NewFromInt(1)
	for tier, rate := range rates {
		tier = strings.ToLower(strings.TrimSpace(tier))
		if tier == "" {
			return TierPolicy{}, fmt.Errorf("tier name is empty")
		}
		if rate.IsNegative() || rate.GreaterThan(one) {
			return TierPolicy{}, fmt.Errorf("tier %q: discount %s out of range [0, 1]", tier, rate)
		}
		out[tier] = rate
	}
	return TierPolicy{rates: out}, nil
}

// ParseTierPolicy parses "tier:fraction,tier:fraction", e.g. "gold:0.10,silver:0.05".
// An empty string yields a policy with no tiers.
func ParseTierPolicy(s string) (TierPolicy, error) {
	rates := make(map[string]decimal.Decimal)
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		name, value, ok := strings.Cut(part, ":")
		if !ok {
			return TierPolicy{}, fmt.Errorf("tier entry %q: expected tier:fraction", part)
		}
		rate, err := decimal.NewFromString(strings.TrimSpace(value))
		if err != nil {
			return TierPolicy{}, fmt.Errorf("tier entry %q: %w", part, err)
		}
		rates[name] = rate
	}
	return NewTierPolicy(rates)
}

// Tiers returns the configured tier names in sorted order.
func (p TierPolicy) Tiers() []string {
	names := make([]string, 0, len(p.rates))
	for name := range p.rates {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Discount returns the flat discount for tier on subtotal. An empty tier means
// no discount; an unknown tier is an input error.
func (p TierPolicy) Discount(tier string, subtotal int64) (int64, error) {
	tier = strings.ToLower(strings.TrimSpace(tier))
	if tier == "" {
		return 0, nil
	}
	rate, ok := p.rates[tier]
	if !ok {
		return 0, domain.NewInvalidOrderInput("customer_tier", fmt.Sprintf("unknown tier %q", tier))
	}
	return RoundMinor(decimal.NewFromInt(subtotal).Mul(rate)), nil
}
