package ingest

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/jengzang/refugia-backend-go/internal/analysis"
	"github.com/jengzang/refugia-backend-go/internal/models"
)

// TrajectoryOptions controls trajectory ingestion
type TrajectoryOptions struct {
	// RequireSpecies fails tables without a species column unless
	// SpeciesFallback is set
	RequireSpecies  bool
	SpeciesFallback string
}

// ReadTrajectory reads telemetry fixes. timestamp, lat and lon columns are
// required, and either individual_id or individual_local_identifier.
// Unparseable cells become missing values for the cleaner to drop.
func ReadTrajectory(r io.Reader, opts TrajectoryOptions) ([]models.TrajectoryPoint, error) {
	cr := newReader(r)
	header, err := cr.Read()
	if err != nil {
		return nil, headerError("trajectory", err)
	}

	cols := resolve(header, trajectoryAliases)
	if err := cols.require("trajectory", ColTimestamp, ColLat, ColLon, ColIndividualID); err != nil {
		return nil, err
	}

	species := opts.SpeciesFallback
	if !cols.has(ColSpecies) {
		if opts.RequireSpecies && species == "" {
			return nil, fmt.Errorf("%w: trajectory table lacks species and no fallback is set", analysis.ErrSchema)
		}
		if species == "" {
			species = UnknownSpecies
		}
	}

	var points []models.TrajectoryPoint
	for line := 2; ; line++ {
		record, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read trajectory line %d: %w", line, err)
		}

		p := models.TrajectoryPoint{
			IndividualID: cols.cell(record, ColIndividualID),
			Species:      species,
			Timestamp:    parseTime(cols.cell(record, ColTimestamp)),
			Lat:          parseFloat(cols.cell(record, ColLat)),
			Lon:          parseFloat(cols.cell(record, ColLon)),
			SpeedMPS:     parseOptional(cols.cell(record, ColSpeedMPS)),
		}
		if cols.has(ColSpecies) {
			p.Species = cols.cell(record, ColSpecies)
		}
		points = append(points, p)
	}
	return points, nil
}

// ReadClimate reads gridded climate samples. timestamp, lat, lon and a
// temperature column are required; humidity and precipitation are optional.
func ReadClimate(r io.Reader) ([]models.ClimateSample, error) {
	cr := newReader(r)
	header, err := cr.Read()
	if err != nil {
		return nil, headerError("climate", err)
	}

	cols := resolve(header, climateAliases)
	if err := cols.require("climate", ColTimestamp, ColLat, ColLon, ColTempC); err != nil {
		return nil, err
	}

	var samples []models.ClimateSample
	for line := 2; ; line++ {
		record, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read climate line %d: %w", line, err)
		}

		samples = append(samples, models.ClimateSample{
			Timestamp: parseTime(cols.cell(record, ColTimestamp)),
			Lat:       parseFloat(cols.cell(record, ColLat)),
			Lon:       parseFloat(cols.cell(record, ColLon)),
			TempC:     parseFloat(cols.cell(record, ColTempC)),
			Humidity:  parseOptional(cols.cell(record, ColHumidity)),
			PrecipMM:  parseOptional(cols.cell(record, ColPrecipMM)),
		})
	}
	return samples, nil
}

// ReadTrajectoryFile opens path and reads it with ReadTrajectory
func ReadTrajectoryFile(path string, opts TrajectoryOptions) ([]models.TrajectoryPoint, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open trajectory file: %w", err)
	}
	defer f.Close()
	return ReadTrajectory(f, opts)
}

// ReadClimateFile opens path and reads it with ReadClimate
func ReadClimateFile(path string) ([]models.ClimateSample, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open climate file: %w", err)
	}
	defer f.Close()
	return ReadClimate(f)
}

func newReader(r io.Reader) *csv.Reader {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.ReuseRecord = true
	cr.TrimLeadingSpace = true
	return cr
}

func headerError(table string, err error) error {
	if errors.Is(err, io.EOF) {
		return fmt.Errorf("%w: %s table is empty", analysis.ErrSchema, table)
	}
	return fmt.Errorf("failed to read %s header: %w", table, err)
}
