package types

import (
	"fmt"
	"strconv"
	"strings"
)

// PeriodUnit is the unit of a billing or offer period.
type PeriodUnit string

const (
	PeriodWeek  PeriodUnit = "week"
	PeriodMonth PeriodUnit = "month"
	PeriodYear  PeriodUnit = "year"
)

// Period is a count of PeriodUnit, e.g. 3 months.
type Period struct {
	Count int        `json:"count"`
	Unit  PeriodUnit `json:"unit"`
}

// IsZero reports whether the period is unset.
func (p Period) IsZero() bool { return p.Count == 0 && p.Unit == "" }

// ISO renders the period as an ISO 8601 duration such as "P1M".
func (p Period) ISO() string {
	var u string
	switch p.Unit {
	case PeriodWeek:
		u = "W"
	case PeriodMonth:
		u = "M"
	case PeriodYear:
		u = "Y"
	default:
		return ""
	}
	return fmt.Sprintf("P%d%s", p.Count, u)
}

// ParsePeriodUnit validates a catalog unit string.
func ParsePeriodUnit(s string) (PeriodUnit, error) {
	switch u := PeriodUnit(strings.ToLower(s)); u {
	case PeriodWeek, PeriodMonth, PeriodYear:
		return u, nil
	default:
		return "", fmt.Errorf("types: unknown period unit %q", s)
	}
}

// ParseISOPeriod parses the ISO 8601 billing periods the store reports,
// limited to a single week, month or year component ("P1W", "P3M", "P1Y").
// Day periods are expressed in weeks when they divide evenly.
func ParseISOPeriod(s string) (Period, error) {
	if len(s) < 3 || s[0] != 'P' {
		return Period{}, fmt.Errorf("types: invalid ISO period %q", s)
	}
	n, err := strconv.Atoi(s[1 : len(s)-1])
	if err != nil || n <= 0 {
		return Period{}, fmt.Errorf("types: invalid ISO period %q", s)
	}
	switch s[len(s)-1] {
	case 'W':
		return Period{Count: n, Unit: PeriodWeek}, nil
	case 'M':
		return Period{Count: n, Unit: PeriodMonth}, nil
	case 'Y':
		return Period{Count: n, Unit: PeriodYear}, nil
	case 'D':
		if n%7 == 0 {
			return Period{Count: n / 7, Unit: PeriodWeek}, nil
		}
	}
	return Period{}, fmt.Errorf("types: unsupported ISO period %q", s)
}
