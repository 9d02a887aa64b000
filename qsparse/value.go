package qsparse

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/wmde/qsbot/qsvalue"
)

var (
	reCoordinate    = regexp.MustCompile(`^@(-?[0-9.]+)/(-?[0-9.]+)$`)
	reQuantityRange = regexp.MustCompile(`^([+-]?\d+(?:\.\d+)?)\[(-?\d+(?:\.\d+)?),(-?\d+(?:\.\d+)?)\](?:U(\d+))?$`)
	reQuantityTol   = regexp.MustCompile(`^([+-]?\d+(?:\.\d+)?)~(\d+(?:\.\d+)?)(?:U(\d+))?$`)
	reQuantityPlain = regexp.MustCompile(`^([+-]?\d+(?:\.\d+)?)(?:U(\d+))?$`)
	reTime          = regexp.MustCompile(`^([+-]?)(\d+)(?:-(\d{2})(?:-(\d{2})(?:T(\d{2})(?::(\d{2})(?::(\d{2}))?)?)?)?)?Z?(?:/(\d{1,2}))?$`)
	reMonolingual   = regexp.MustCompile(`^([a-z][a-z-]*):"(.*)"$`)
	reString        = regexp.MustCompile(`^"(.*)"$`)
	reEntityID      = regexp.MustCompile(`^[A-Za-z]\d+$`)
)

// ParseValue parses a single QuickStatements value token into a qsvalue.Value,
// trying each datavalue kind in the §4.2 priority order: globe coordinate,
// quantity, time, monolingual text, plain string, entity reference.
func ParseValue(token string) (qsvalue.Value, error) {
	token = strings.TrimSpace(token)

	if m := reCoordinate.FindStringSubmatch(token); m != nil {
		lat, err := strconv.ParseFloat(m[1], 64)
		if err != nil {
			return nil, fmt.Errorf("qsparse: bad coordinate latitude %q: %w", m[1], err)
		}
		lon, err := strconv.ParseFloat(m[2], 64)
		if err != nil {
			return nil, fmt.Errorf("qsparse: bad coordinate longitude %q: %w", m[2], err)
		}
		return qsvalue.GlobeCoordinate{Lat: lat, Lon: lon, Globe: qsvalue.GlobeEarth}, nil
	}

	if v, ok, err := parseQuantity(token); ok || err != nil {
		return v, err
	}

	if v, ok, err := parseTime(token); ok || err != nil {
		return v, err
	}

	if m := reMonolingual.FindStringSubmatch(token); m != nil {
		return qsvalue.Monolingual{Language: m[1], Text: m[2]}, nil
	}

	if m := reString.FindStringSubmatch(token); m != nil {
		return qsvalue.String{Text: m[1]}, nil
	}

	if strings.EqualFold(token, qsvalue.LastSentinel) || reEntityID.MatchString(token) {
		return qsvalue.Entity{Ref: qsvalue.EntityRef{ID: token}}, nil
	}

	return nil, fmt.Errorf("qsparse: value %q did not match any known datavalue form", token)
}

func parseQuantity(token string) (qsvalue.Value, bool, error) {
	if m := reQuantityRange.FindStringSubmatch(token); m != nil {
		amount, err := strconv.ParseFloat(m[1], 64)
		if err != nil {
			return nil, true, err
		}
		lower, err := strconv.ParseFloat(m[2], 64)
		if err != nil {
			return nil, true, err
		}
		upper, err := strconv.ParseFloat(m[3], 64)
		if err != nil {
			return nil, true, err
		}
		return qsvalue.Quantity{Amount: amount, Lower: &lower, Upper: &upper, Unit: unitIRI(m[4])}, true, nil
	}
	if m := reQuantityTol.FindStringSubmatch(token); m != nil {
		amount, err := strconv.ParseFloat(m[1], 64)
		if err != nil {
			return nil, true, err
		}
		tol, err := strconv.ParseFloat(m[2], 64)
		if err != nil {
			return nil, true, err
		}
		lower, upper := amount-tol, amount+tol
		return qsvalue.Quantity{Amount: amount, Lower: &lower, Upper: &upper, Unit: unitIRI(m[3])}, true, nil
	}
	if m := reQuantityPlain.FindStringSubmatch(token); m != nil {
		amount, err := strconv.ParseFloat(m[1], 64)
		if err != nil {
			return nil, true, err
		}
		return qsvalue.Quantity{Amount: amount, Unit: unitIRI(m[2])}, true, nil
	}
	return nil, false, nil
}

func unitIRI(propertyDigits string) string {
	if propertyDigits == "" {
		return qsvalue.UnitDimensionless
	}
	return "http://www.wikidata.org/entity/Q" + propertyDigits
}

func parseTime(token string) (qsvalue.Value, bool, error) {
	m := reTime.FindStringSubmatch(token)
	if m == nil {
		return nil, false, nil
	}
	sign := m[1]
	if sign == "" {
		sign = "+"
	}
	yearDigits := m[2]
	month := atoiOr(m[3], 1)
	day := atoiOr(m[4], 1)
	hour := atoiOr(m[5], 0)
	minute := atoiOr(m[6], 0)
	second := atoiOr(m[7], 0)

	monthGiven, dayGiven := m[3] != "", m[4] != ""

	// §4.2's default precision is a flat 9 (year) regardless of how much
	// of the date was actually written out; only an explicit /precision
	// suffix overrides it, and the clamp below may still lower it.
	precision := 9
	if m[8] != "" {
		p, err := strconv.Atoi(m[8])
		if err != nil {
			return nil, true, fmt.Errorf("qsparse: bad time precision %q: %w", m[8], err)
		}
		precision = p
	}

	monthForClamp, dayForClamp := month, day
	if !monthGiven {
		monthForClamp = 0
	}
	if !dayGiven {
		dayForClamp = 0
	}
	precision = qsvalue.ClampTimePrecision(precision, monthForClamp, dayForClamp)

	return qsvalue.Time{
		Sign:       sign,
		YearDigits: yearDigits,
		Month:      month,
		Day:        day,
		Hour:       hour,
		Minute:     minute,
		Second:     second,
		Precision:  precision,
		Calendar:   qsvalue.GregorianCalendar,
	}, true, nil
}

func atoiOr(s string, fallback int) int {
	if s == "" {
		return fallback
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return fallback
	}
	return n
}
