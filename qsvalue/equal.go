package qsvalue

import "regexp"

// leadingZeroYear strips leading zeros from the sign-prefixed year portion
// of a rendered time string, e.g. "+00001621-01-01T00:00:00Z" and
// "+1621-01-01T00:00:00Z" both normalize to "+1621-01-01T00:00:00Z".
var leadingZeroYear = regexp.MustCompile(`^([+-]?)0*(.+)$`)

func normalizeTimeString(s string) string {
	return leadingZeroYear.ReplaceAllString(s, "$1$2")
}

// Equal reports whether two datavalues are equivalent under the §4.1
// equality rules used for idempotency checks: structural equality per
// variant, except Time strings are compared after stripping leading zeros
// from the year. Entity values compare by normalized id alone, since a
// parsed reference carries no entity type while a wiki-loaded one does.
func Equal(a, b Value) bool {
	switch av := a.(type) {
	case Entity:
		bv, ok := b.(Entity)
		return ok && av.Ref.Normalize().ID == bv.Ref.Normalize().ID
	case String:
		bv, ok := b.(String)
		return ok && av.Text == bv.Text
	case Monolingual:
		bv, ok := b.(Monolingual)
		return ok && av.Text == bv.Text && av.Language == bv.Language
	case Quantity:
		bv, ok := b.(Quantity)
		if !ok {
			return false
		}
		unitA, unitB := av.Unit, bv.Unit
		if unitA == "" {
			unitA = UnitDimensionless
		}
		if unitB == "" {
			unitB = UnitDimensionless
		}
		return av.Amount == bv.Amount && unitA == unitB
	case Time:
		bv, ok := b.(Time)
		if !ok {
			return false
		}
		return normalizeTimeString(RenderISO8601(av)) == normalizeTimeString(RenderISO8601(bv)) &&
			av.Precision == bv.Precision && av.Calendar == bv.Calendar
	case GlobeCoordinate:
		bv, ok := b.(GlobeCoordinate)
		return ok && av.Lat == bv.Lat && av.Lon == bv.Lon && av.Globe == bv.Globe
	default:
		return false
	}
}
