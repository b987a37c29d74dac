package promotion

// ComputeDiscount returns the discount amount for applying rule to subtotal.
// Pure and deterministic: safe to call both at order creation and for
// re-display without side effects.
//
// PERCENT discounts floor the division; a max-discount cap is applied after
// the percent calculation; the result never exceeds the subtotal.
func ComputeDiscount(rule *Rule, subtotal int64) int64 {
	if rule == nil || subtotal <= 0 {
		return 0
	}

	var amount int64
	switch rule.Type {
	case DiscountPercent:
		amount = subtotal * rule.Value / 100
	case DiscountFixed:
		amount = rule.Value
	default:
		return 0
	}

	if rule.MaxDiscount != nil && amount > *rule.MaxDiscount {
		amount = *rule.MaxDiscount
	}
	if amount > subtotal {
		amount = subtotal
	}
	if amount < 0 {
		amount = 0
	}
	return amount
}

// CheckEligibility reports whether rule may be applied to subtotal.
func CheckEligibility(rule *Rule, subtotal int64) error {
	if rule == nil {
		return nil
	}
	if rule.MinSubtotal != nil && subtotal < *rule.MinSubtotal {
		return ErrPromotionNotEligible
	}
	return nil
}
