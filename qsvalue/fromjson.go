package qsvalue

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
)

// FromCanonical parses a Wikibase datavalue envelope, as returned by
// wbgetentities, back into a Value. It is the inverse of ToCanonical and is
// used only to reconstruct the current state of an entity for idempotency
// comparisons; it is never applied to anything this package itself wrote in
// the same process.
func FromCanonical(raw json.RawMessage) (Value, error) {
	var env datavalue
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("qsvalue: bad datavalue envelope: %w", err)
	}
	switch env.Type {
	case "wikibase-entityid":
		var v entityIDValue
		if err := json.Unmarshal(env.Value, &v); err != nil {
			return nil, err
		}
		return Entity{Ref: EntityRef{Type: v.EntityType, ID: v.ID}}, nil
	case "string":
		var s string
		if err := json.Unmarshal(env.Value, &s); err != nil {
			return nil, err
		}
		return String{Text: s}, nil
	case "monolingualtext":
		var v monolingualValue
		if err := json.Unmarshal(env.Value, &v); err != nil {
			return nil, err
		}
		return Monolingual{Text: v.Text, Language: v.Language}, nil
	case "quantity":
		var v quantityValue
		if err := json.Unmarshal(env.Value, &v); err != nil {
			return nil, err
		}
		amount, err := strconv.ParseFloat(v.Amount, 64)
		if err != nil {
			return nil, fmt.Errorf("qsvalue: bad quantity amount %q: %w", v.Amount, err)
		}
		return Quantity{Amount: amount, Unit: v.Unit}, nil
	case "time":
		var v timeValue
		if err := json.Unmarshal(env.Value, &v); err != nil {
			return nil, err
		}
		return parseRenderedTime(v)
	case "globecoordinate":
		var v coordinateValue
		if err := json.Unmarshal(env.Value, &v); err != nil {
			return nil, err
		}
		return GlobeCoordinate{Lat: v.Latitude, Lon: v.Longitude, Globe: v.Globe}, nil
	default:
		return nil, fmt.Errorf("qsvalue: unknown datavalue type %q", env.Type)
	}
}

var reRenderedTime = regexp.MustCompile(`^([+-])(\d+)-(\d{2})-(\d{2})T(\d{2}):(\d{2}):(\d{2})Z$`)

func parseRenderedTime(v timeValue) (Value, error) {
	m := reRenderedTime.FindStringSubmatch(v.Time)
	if m == nil {
		return nil, fmt.Errorf("qsvalue: unparsable time string %q", v.Time)
	}
	month, _ := strconv.Atoi(m[3])
	day, _ := strconv.Atoi(m[4])
	hour, _ := strconv.Atoi(m[5])
	minute, _ := strconv.Atoi(m[6])
	second, _ := strconv.Atoi(m[7])
	return Time{
		Sign:       m[1],
		YearDigits: m[2],
		Month:      month,
		Day:        day,
		Hour:       hour,
		Minute:     minute,
		Second:     second,
		Precision:  v.Precision,
		Calendar:   v.CalendarModel,
	}, nil
}
