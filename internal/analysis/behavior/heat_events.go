package behavior

import (
	"context"
	"fmt"
	"math"
	"runtime"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/jengzang/refugia-backend-go/internal/analysis"
	"github.com/jengzang/refugia-backend-go/internal/models"
	"github.com/jengzang/refugia-backend-go/internal/stats"
)

// EventParams configures heat-event segmentation
type EventParams struct {
	Thresholds        map[string]float64 // per-species heat threshold, °C
	DefaultThresholdC float64            // used when a species has no entry
	WindowHours       int                // minimum event duration
	Workers           int                // concurrent individuals, <= 0 means NumCPU
}

// HeatDetection holds the segmentation output
type HeatDetection struct {
	Records []models.TaggedRecord // every aligned record, tagged
	Events  []models.HeatEvent    // one row per qualifying event, ordered by ID
}

// run is a qualifying exposure run inside one individual's partition
type run struct {
	start, end int // half-open range into the sorted records
}

// DetectEvents tags every record with its heat threshold and exposure, and
// extracts maximal exposure runs that are long enough to count as events.
// The minimum run length adapts to each individual's median sampling gap.
func DetectEvents(ctx context.Context, aligned []models.AlignedRecord, params EventParams) (HeatDetection, error) {
	if params.WindowHours <= 0 {
		return HeatDetection{}, fmt.Errorf("%w: heat window must be positive, got %d hours", analysis.ErrInvalidParams, params.WindowHours)
	}

	records := make([]models.TaggedRecord, len(aligned))
	for i, r := range aligned {
		threshold := ThresholdFor(r.Species, params.Thresholds, params.DefaultThresholdC)
		records[i] = models.TaggedRecord{
			AlignedRecord:  r,
			HeatThresholdC: threshold,
			HeatExposure:   r.TempC >= threshold,
		}
	}
	sort.SliceStable(records, func(i, j int) bool {
		if records[i].IndividualID != records[j].IndividualID {
			return records[i].IndividualID < records[j].IndividualID
		}
		return records[i].Timestamp.Before(records[j].Timestamp)
	})

	// Partition by individual
	var bounds [][2]int
	for start := 0; start < len(records); {
		end := start + 1
		for end < len(records) && records[end].IndividualID == records[start].IndividualID {
			end++
		}
		bounds = append(bounds, [2]int{start, end})
		start = end
	}

	workers := params.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	runs := make([][]run, len(bounds))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for k, b := range bounds {
		k, b := k, b
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			runs[k] = segmentIndividual(records, b[0], b[1], params.WindowHours)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return HeatDetection{}, err
	}

	// Event IDs come from a post-pass ordered by (individual_id, start_time)
	var all []run
	for _, rs := range runs {
		all = append(all, rs...)
	}
	sort.SliceStable(all, func(i, j int) bool {
		a, b := records[all[i].start], records[all[j].start]
		if a.IndividualID != b.IndividualID {
			return a.IndividualID < b.IndividualID
		}
		return a.Timestamp.Before(b.Timestamp)
	})

	events := make([]models.HeatEvent, 0, len(all))
	for n, r := range all {
		id := int64(n + 1)
		for i := r.start; i < r.end; i++ {
			eventID := id
			records[i].HeatEventID = &eventID
		}
		events = append(events, summarizeEvent(id, records[r.start:r.end]))
	}

	return HeatDetection{Records: records, Events: events}, nil
}

// ThresholdFor returns the species threshold, or the default when absent
func ThresholdFor(species string, thresholds map[string]float64, defaultThreshold float64) float64 {
	if t, ok := thresholds[species]; ok {
		return t
	}
	return defaultThreshold
}

// MinPoints returns the number of consecutive fixes that cover windowHours
// at the track's median sampling gap. Tracks with fewer than two fixes or a
// non-positive median gap fall back to a gap of windowHours.
func MinPoints(timestamps []time.Time, windowHours int) int {
	window := float64(windowHours) * 3600
	median := window
	if len(timestamps) >= 2 {
		gaps := make([]float64, 0, len(timestamps)-1)
		for i := 1; i < len(timestamps); i++ {
			gaps = append(gaps, timestamps[i].Sub(timestamps[i-1]).Seconds())
		}
		if m := stats.Median(gaps); m > 0 {
			median = m
		}
	}

	minPoints := int(math.Ceil(window / median))
	if minPoints < 1 {
		minPoints = 1
	}
	return minPoints
}

// segmentIndividual run-length partitions records[start:end] by exposure and
// returns the true-runs of at least MinPoints fixes.
func segmentIndividual(records []models.TaggedRecord, start, end, windowHours int) []run {
	timestamps := make([]time.Time, 0, end-start)
	for i := start; i < end; i++ {
		timestamps = append(timestamps, records[i].Timestamp)
	}
	minPoints := MinPoints(timestamps, windowHours)

	var out []run
	for i := start; i < end; {
		j := i + 1
		for j < end && records[j].HeatExposure == records[i].HeatExposure {
			j++
		}
		if records[i].HeatExposure && j-i >= minPoints {
			out = append(out, run{start: i, end: j})
		}
		i = j
	}
	return out
}

func summarizeEvent(id int64, block []models.TaggedRecord) models.HeatEvent {
	temps := make([]float64, len(block))
	start, end := block[0].Timestamp, block[0].Timestamp
	for i, r := range block {
		temps[i] = r.TempC
		if r.Timestamp.Before(start) {
			start = r.Timestamp
		}
		if r.Timestamp.After(end) {
			end = r.Timestamp
		}
	}

	return models.HeatEvent{
		ID:            id,
		IndividualID:  block[0].IndividualID,
		Species:       block[0].Species,
		StartTime:     start,
		EndTime:       end,
		DurationHours: end.Sub(start).Hours(),
		NumPoints:     len(block),
		MeanTempC:     stats.Mean(temps),
		MaxTempC:      stats.Max(temps),
	}
}
