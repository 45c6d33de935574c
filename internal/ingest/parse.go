package ingest

import (
	"math"
	"strings"
	"time"

	"github.com/spf13/cast"
)

// parseFloat coerces a cell to a number; empty or unparseable cells are NaN
func parseFloat(s string) float64 {
	if s == "" || strings.EqualFold(s, "na") || strings.EqualFold(s, "null") {
		return math.NaN()
	}
	v, err := cast.ToFloat64E(s)
	if err != nil {
		return math.NaN()
	}
	return v
}

// parseOptional is parseFloat returning nil for missing values
func parseOptional(s string) *float64 {
	v := parseFloat(s)
	if math.IsNaN(v) {
		return nil
	}
	return &v
}

// Timestamp layouts tried before falling back to cast's date parser
var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.000",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
}

// parseTime reads a timestamp as UTC; unparseable cells are the zero time
func parseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	for _, layout := range timeLayouts {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t.UTC()
		}
	}
	t, err := cast.ToTimeInDefaultLocationE(s, time.UTC)
	if err != nil {
		return time.Time{}
	}
	return t.UTC()
}
