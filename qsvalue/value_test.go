package qsvalue

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCanonicalEntity(t *testing.T) {
	raw, err := ToCanonical(Entity{Ref: EntityRef{Type: "item", ID: "Q5"}})
	require.NoError(t, err)
	require.JSONEq(t, `{"type":"wikibase-entityid","value":{"entity-type":"item","id":"Q5"}}`, string(raw))
}

func TestCanonicalEntityDefaultsToItem(t *testing.T) {
	raw, err := ToCanonical(Entity{Ref: EntityRef{ID: "Q5"}})
	require.NoError(t, err)
	require.JSONEq(t, `{"type":"wikibase-entityid","value":{"entity-type":"item","id":"Q5"}}`, string(raw))
}

func TestCanonicalEntityPreservesPropertyType(t *testing.T) {
	raw, err := ToCanonical(Entity{Ref: EntityRef{Type: "property", ID: "P31"}})
	require.NoError(t, err)
	require.JSONEq(t, `{"type":"wikibase-entityid","value":{"entity-type":"property","id":"P31"}}`, string(raw))
}

func TestCanonicalString(t *testing.T) {
	raw, err := ToCanonical(String{Text: "hello"})
	require.NoError(t, err)
	require.JSONEq(t, `{"type":"string","value":"hello"}`, string(raw))
}

func TestCanonicalQuantityDefaultUnit(t *testing.T) {
	raw, err := ToCanonical(Quantity{Amount: 12})
	require.NoError(t, err)
	require.JSONEq(t, `{"type":"quantity","value":{"amount":"+12","unit":"1"}}`, string(raw))
}

func TestTimeEqualityIgnoresLeadingYearZeros(t *testing.T) {
	a := Time{Sign: "+", YearDigits: "1621", Precision: 9, Calendar: GregorianCalendar}
	b := Time{Sign: "+", YearDigits: "00001621", Precision: 9, Calendar: GregorianCalendar}
	require.True(t, Equal(a, b))
}

func TestTimeEqualityDetectsDifferentYears(t *testing.T) {
	a := Time{Sign: "+", YearDigits: "1621", Precision: 9, Calendar: GregorianCalendar}
	b := Time{Sign: "+", YearDigits: "1622", Precision: 9, Calendar: GregorianCalendar}
	require.False(t, Equal(a, b))
}

func TestClampTimePrecision(t *testing.T) {
	require.Equal(t, 10, ClampTimePrecision(14, 5, 0))
	require.Equal(t, 9, ClampTimePrecision(14, 0, 0))
	require.Equal(t, 11, ClampTimePrecision(11, 5, 5))
}

func TestEntityRefIsLast(t *testing.T) {
	require.True(t, EntityRef{ID: "  last "}.IsLast())
	require.False(t, EntityRef{ID: "Q5"}.IsLast())
}
