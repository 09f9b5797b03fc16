package cadre

import "github.com/shopspring/decimal"

// Well-known billing purposes. Billing categories may carry additional
// free-form purposes; those fall through to the standard tier.
const (
	PurposeJoiningFee   = "Joining Fee"
	PurposePromotionFee = "Promotion Fee"
)

// FeeSchedule computes the fee owed for an approval request. Amounts are
// derived exclusively from the purpose and the cadre level; caller-supplied
// amounts are never consulted.
type FeeSchedule struct {
	catalog  *Catalog
	standard decimal.Decimal
	reduced  decimal.Decimal
}

func NewFeeSchedule(catalog *Catalog, standard, reduced decimal.Decimal) *FeeSchedule {
	return &FeeSchedule{catalog: catalog, standard: standard, reduced: reduced}
}

// DefaultFeeSchedule uses the network's published tiers: 500 standard, 250
// reduced for entry-level joiners.
func DefaultFeeSchedule(catalog *Catalog) *FeeSchedule {
	return NewFeeSchedule(catalog, decimal.NewFromInt(500), decimal.NewFromInt(250))
}

// Amount applies the fee rules in order, first match wins:
//
//  1. Joining Fee at the entry-level cadre pays the reduced tier; any other
//     joining level pays the standard tier.
//  2. Promotion Fee always pays the standard tier.
//  3. Anything else falls back to the standard tier.
//
// Pure and deterministic; unknown purposes do not error.
func (f *FeeSchedule) Amount(purpose, joiningLevel, promotionLevel string) decimal.Decimal {
	switch purpose {
	case PurposeJoiningFee:
		if joiningLevel == f.catalog.EntryLevel().Code {
			return f.reduced
		}
		return f.standard
	case PurposePromotionFee:
		return f.standard
	default:
		return f.standard
	}
}

// StandardTier exposes the fallback amount for display purposes.
func (f *FeeSchedule) StandardTier() decimal.Decimal {
	return f.standard
}
