// Package ingest reads trajectory and climate tables from CSV, resolving
// the column aliases used by Movebank exports and ERA5 conversions.
package ingest

import (
	"fmt"
	"strings"

	"github.com/jengzang/refugia-backend-go/internal/analysis"
)

// Canonical column names
const (
	ColTimestamp    = "timestamp"
	ColLat          = "lat"
	ColLon          = "lon"
	ColIndividualID = "individual_id"
	ColSpecies      = "species"
	ColSpeedMPS     = "speed_mps"
	ColTempC        = "temp_c"
	ColHumidity     = "humidity"
	ColPrecipMM     = "precip_mm"
)

// UnknownSpecies labels fixes of a table without a species column
const UnknownSpecies = "Unknown"

// trajectoryAliases maps each canonical column to accepted header names, in order of preference
var trajectoryAliases = map[string][]string{
	ColTimestamp:    {"timestamp"},
	ColLat:          {"lat", "location_lat", "latitude"},
	ColLon:          {"lon", "location_long", "longitude"},
	ColIndividualID: {"individual_id", "individual_local_identifier"},
	ColSpecies:      {"species", "taxon_canonical_name"},
	ColSpeedMPS:     {"speed_mps"},
}

var climateAliases = map[string][]string{
	ColTimestamp: {"timestamp", "time", "valid_time"},
	ColLat:       {"lat", "latitude"},
	ColLon:       {"lon", "longitude"},
	ColTempC:     {"temp_c", "temperature", "t2m_c"},
	ColHumidity:  {"humidity", "relative_humidity"},
	ColPrecipMM:  {"precip_mm", "tp_mm", "precipitation"},
}

// columns maps canonical names to header positions
type columns map[string]int

func resolve(header []string, aliases map[string][]string) columns {
	pos := make(map[string]int, len(header))
	for i, h := range header {
		h = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))
		if _, dup := pos[h]; !dup {
			pos[h] = i
		}
	}

	cols := make(columns)
	for canonical, names := range aliases {
		for _, name := range names {
			if i, ok := pos[name]; ok {
				cols[canonical] = i
				break
			}
		}
	}
	return cols
}

func (c columns) has(name string) bool {
	_, ok := c[name]
	return ok
}

// require fails with ErrSchema naming every missing column
func (c columns) require(table string, names ...string) error {
	var missing []string
	for _, n := range names {
		if !c.has(n) {
			missing = append(missing, n)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %s table lacks %s", analysis.ErrSchema, table, strings.Join(missing, ", "))
	}
	return nil
}

// cell returns the trimmed value of a column, empty when absent
func (c columns) cell(record []string, name string) string {
	i, ok := c[name]
	if !ok || i >= len(record) {
		return ""
	}
	return strings.TrimSpace(record[i])
}
