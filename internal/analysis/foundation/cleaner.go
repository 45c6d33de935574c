package foundation

import (
	"math"
	"sort"

	"github.com/jengzang/refugia-backend-go/internal/models"
	"github.com/jengzang/refugia-backend-go/internal/spatial"
)

// CleanThresholds defines the GPS noise rejection limits
type CleanThresholds struct {
	MaxSpeedMPS     float64 // 35 m/s
	MinFixIntervalS float64 // 30 s
}

// DefaultCleanThresholds provides default trajectory cleaning thresholds
var DefaultCleanThresholds = CleanThresholds{
	MaxSpeedMPS:     35.0, // faster than any tracked terrestrial animal sustains between fixes
	MinFixIntervalS: 30.0, // closer fixes are duplicates of the previous one
}

// Clean drops fixes without a usable position, sorts by (individual, time)
// and rejects near-duplicate fixes and speed-implausible jumps per individual.
// Malformed rows are dropped silently. The input slice is not modified.
func Clean(points []models.TrajectoryPoint, th CleanThresholds) []models.TrajectoryPoint {
	valid := make([]models.TrajectoryPoint, 0, len(points))
	for _, p := range points {
		if !p.HasPosition() || !spatial.ValidCoordinate(p.Lat, p.Lon) {
			continue
		}
		valid = append(valid, p)
	}

	SortTrajectory(valid)

	out := make([]models.TrajectoryPoint, 0, len(valid))
	for start := 0; start < len(valid); {
		end := start + 1
		for end < len(valid) && valid[end].IndividualID == valid[start].IndividualID {
			end++
		}
		out = append(out, cleanIndividual(valid[start:end], th)...)
		start = end
	}
	return out
}

// SortTrajectory sorts fixes by (individual_id, timestamp), keeping the
// input order of duplicate timestamps.
func SortTrajectory(points []models.TrajectoryPoint) {
	sort.SliceStable(points, func(i, j int) bool {
		if points[i].IndividualID != points[j].IndividualID {
			return points[i].IndividualID < points[j].IndividualID
		}
		return points[i].Timestamp.Before(points[j].Timestamp)
	})
}

type cleanCandidate struct {
	point    models.TrajectoryPoint
	supplied *float64
	speed    *float64
}

// cleanIndividual filters one individual's time-ordered track. Removing a fix
// changes its successor's elapsed time and derived speed, so the filter is
// repeated until nothing more is removed; this makes Clean idempotent.
func cleanIndividual(track []models.TrajectoryPoint, th CleanThresholds) []models.TrajectoryPoint {
	kept := make([]cleanCandidate, len(track))
	for i, p := range track {
		kept[i] = cleanCandidate{point: p, supplied: p.SpeedMPS}
		if p.SpeedMPS != nil && math.IsNaN(*p.SpeedMPS) {
			kept[i].supplied = nil
		}
	}

	for {
		next := make([]cleanCandidate, 0, len(kept))
		for i := range kept {
			c := kept[i]
			c.speed = c.supplied
			tooClose := false

			if i > 0 {
				prev := kept[i-1].point
				// Elapsed time <= 0 is indeterminate: no distance or speed for the pair
				if dt := c.point.Timestamp.Sub(prev.Timestamp).Seconds(); dt > 0 {
					if c.speed == nil {
						distKm := spatial.HaversineKm(prev.Lat, prev.Lon, c.point.Lat, c.point.Lon)
						speed := distKm * 1000 / dt
						c.speed = &speed
					}
					tooClose = dt < th.MinFixIntervalS
				}
			}

			if tooClose {
				continue
			}
			if c.speed != nil && *c.speed > th.MaxSpeedMPS {
				continue
			}
			next = append(next, c)
		}

		if len(next) == len(kept) {
			kept = next
			break
		}
		kept = next
	}

	out := make([]models.TrajectoryPoint, len(kept))
	for i, c := range kept {
		p := c.point
		p.SpeedMPS = nil
		if c.speed != nil {
			speed := *c.speed
			p.SpeedMPS = &speed
		}
		out[i] = p
	}
	return out
}

// CleanClimate drops samples without a timestamp, temperature or valid grid coordinates
func CleanClimate(samples []models.ClimateSample) []models.ClimateSample {
	out := make([]models.ClimateSample, 0, len(samples))
	for _, s := range samples {
		if s.Timestamp.IsZero() || math.IsNaN(s.TempC) || math.IsInf(s.TempC, 0) {
			continue
		}
		if !spatial.ValidCoordinate(s.Lat, s.Lon) {
			continue
		}
		out = append(out, s)
	}
	return out
}
