package qsvalue

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// datavalue is the envelope every Wikibase datavalue is wrapped in on the
// wire: {"type": ..., "value": ...}.
type datavalue struct {
	Type  string          `json:"type"`
	Value json.RawMessage `json:"value"`
}

// ToCanonical renders a Value as the exact Wikibase datavalue JSON envelope
// described in §4.1. Field ordering within the envelope's value object is
// not significant to the wiki API; this implementation produces a stable
// ordering by construction via typed structs rather than map[string]any.
func ToCanonical(v Value) (json.RawMessage, error) {
	switch t := v.(type) {
	case Entity:
		return canonicalEntity(t)
	case String:
		return canonicalString(t)
	case Monolingual:
		return canonicalMonolingual(t)
	case Quantity:
		return canonicalQuantity(t)
	case Time:
		return canonicalTime(t)
	case GlobeCoordinate:
		return canonicalCoordinate(t)
	default:
		return nil, fmt.Errorf("qsvalue: unknown value type %T", v)
	}
}

type entityIDValue struct {
	EntityType string `json:"entity-type"`
	ID         string `json:"id"`
}

// canonicalEntity emits the referenced entity's own type rather than
// hard-coding "item" the way the legacy implementation does (see the
// open question in the specification's design notes); "item" remains the
// default when the reference carries no explicit type.
func canonicalEntity(e Entity) (json.RawMessage, error) {
	entityType := e.Ref.Type
	if entityType == "" {
		entityType = "item"
	}
	inner, err := json.Marshal(entityIDValue{EntityType: entityType, ID: e.Ref.ID})
	if err != nil {
		return nil, err
	}
	return marshalEnvelope("wikibase-entityid", inner)
}

func canonicalString(s String) (json.RawMessage, error) {
	inner, err := json.Marshal(s.Text)
	if err != nil {
		return nil, err
	}
	return marshalEnvelope("string", inner)
}

type monolingualValue struct {
	Text     string `json:"text"`
	Language string `json:"language"`
}

func canonicalMonolingual(m Monolingual) (json.RawMessage, error) {
	inner, err := json.Marshal(monolingualValue{Text: m.Text, Language: m.Language})
	if err != nil {
		return nil, err
	}
	return marshalEnvelope("monolingualtext", inner)
}

type quantityValue struct {
	Amount string `json:"amount"`
	Unit   string `json:"unit"`
}

// canonicalQuantity renders amount as a signed decimal string; the
// lower/upper tolerance bounds are carried in the structured Quantity value
// for idempotency comparisons but are not part of the serialized amount,
// per §4.1.
func canonicalQuantity(q Quantity) (json.RawMessage, error) {
	unit := q.Unit
	if unit == "" {
		unit = UnitDimensionless
	}
	inner, err := json.Marshal(quantityValue{Amount: formatSignedDecimal(q.Amount), Unit: unit})
	if err != nil {
		return nil, err
	}
	return marshalEnvelope("quantity", inner)
}

func formatSignedDecimal(f float64) string {
	s := strconv.FormatFloat(f, 'f', -1, 64)
	if f >= 0 {
		return "+" + s
	}
	return s
}

type timeValue struct {
	Time          string `json:"time"`
	Precision     int    `json:"precision"`
	CalendarModel string `json:"calendarmodel"`
	Timezone      int    `json:"timezone"`
	Before        int    `json:"before"`
	After         int    `json:"after"`
}

func canonicalTime(t Time) (json.RawMessage, error) {
	inner, err := json.Marshal(timeValue{
		Time:          RenderISO8601(t),
		Precision:     t.Precision,
		CalendarModel: t.Calendar,
		Timezone:      0,
		Before:        0,
		After:         0,
	})
	if err != nil {
		return nil, err
	}
	return marshalEnvelope("time", inner)
}

// RenderISO8601 renders a Time's ISO 8601-ish Wikibase time string, honoring
// PHPCompatibility for whether coarse-precision values still carry their
// (normally zero) hour/minute/second fields.
func RenderISO8601(t Time) string {
	hour, minute, second := t.Hour, t.Minute, t.Second
	if !PHPCompatibility && t.Precision < 12 {
		hour, minute, second = 0, 0, 0
	}
	sign := t.Sign
	if sign == "" {
		sign = "+"
	}
	return fmt.Sprintf("%s%s-%02d-%02dT%02d:%02d:%02dZ", sign, t.YearDigits, t.Month, t.Day, hour, minute, second)
}

type coordinateValue struct {
	Globe     string  `json:"globe"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Precision float64 `json:"precision"`
}

func canonicalCoordinate(c GlobeCoordinate) (json.RawMessage, error) {
	inner, err := json.Marshal(coordinateValue{Globe: c.Globe, Latitude: c.Lat, Longitude: c.Lon, Precision: 1e-6})
	if err != nil {
		return nil, err
	}
	return marshalEnvelope("globecoordinate", inner)
}

func marshalEnvelope(typ string, value json.RawMessage) (json.RawMessage, error) {
	return json.Marshal(datavalue{Type: typ, Value: value})
}

// InnerValue renders just the "value" portion of the datavalue envelope
// ToCanonical produces, without the surrounding {"type":...,"value":...}
// wrapper. wbcreateclaim and wbsetqualifier want their "value" parameter in
// this unwrapped shape (the action name itself already fixes the
// datavalue's type); wbsetreference's snaks, by contrast, embed the full
// envelope under "datavalue" and should keep using ToCanonical.
func InnerValue(v Value) (json.RawMessage, error) {
	envelope, err := ToCanonical(v)
	if err != nil {
		return nil, err
	}
	var dv datavalue
	if err := json.Unmarshal(envelope, &dv); err != nil {
		return nil, err
	}
	return dv.Value, nil
}
