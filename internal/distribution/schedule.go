package distribution

import (
	"github.com/shopspring/decimal"
)

// DefaultAmountScale is the number of decimals an amount is rounded to (0.0001).
const DefaultAmountScale int32 = 4

// rateScale matches the precision of incomes.rate.
const rateScale int32 = 10

var half = decimal.RequireFromString("0.5")

// Schedule is the payout curve of one distribution rule.
type Schedule struct {
	Base  decimal.Decimal
	Decay bool
	Scale int32
}

// Payout is the amount owed to the ancestor at Level for a given BV.
type Payout struct {
	Level  int
	Rate   decimal.Decimal
	Amount decimal.Decimal
}

// Rate returns the rate for level n (1-based): Base*0.5^(n-1) with decay, and
// Base at level 1 only without it.
func (s Schedule) Rate(level int) decimal.Decimal {
	if level < 1 {
		return decimal.Zero
	}
	if !s.Decay {
		if level == 1 {
			return s.Base
		}
		return decimal.Zero
	}
	rate := s.Base
	for n := 1; n < level; n++ {
		rate = rate.Mul(half)
	}
	return rate
}

// Amount is bv*rate rounded half-up to the schedule's scale.
func (s Schedule) Amount(bv decimal.Decimal, level int) decimal.Decimal {
	return bv.Mul(s.Rate(level)).Round(s.Scale)
}

// Plan computes payouts for levels 1..levels, stopping at the first level whose
// amount rounds to zero. Deeper levels can only be smaller.
func (s Schedule) Plan(bv decimal.Decimal, levels int) []Payout {
	payouts := make([]Payout, 0, levels)
	for level := 1; level <= levels; level++ {
		amount := s.Amount(bv, level)
		if !amount.IsPositive() {
			break
		}
		payouts = append(payouts, Payout{
			Level:  level,
			Rate:   s.Rate(level).Round(rateScale),
			Amount: amount,
		})
	}
	return payouts
}
