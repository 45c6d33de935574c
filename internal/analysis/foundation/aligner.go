package foundation

import (
	"context"
	"math"
	"runtime"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/jengzang/refugia-backend-go/internal/models"
	"github.com/jengzang/refugia-backend-go/internal/spatial"
)

// AlignParams configures the spatiotemporal join
type AlignParams struct {
	TimeTolerance time.Duration // maximum |fix time - climate time|
	Workers       int           // concurrent grid cells, <= 0 means NumCPU
}

type snappedPoint struct {
	index  int // position in the trajectory slice
	distKm float64
}

// Align snaps every fix to its nearest climate grid cell and joins it with
// the cell's sample closest in time. Fixes without a sample inside the
// tolerance are dropped, as are matches without a temperature. The result
// is ordered by (individual_id, timestamp).
func Align(ctx context.Context, traj []models.TrajectoryPoint, climate []models.ClimateSample, params AlignParams) ([]models.AlignedRecord, error) {
	if len(traj) == 0 || len(climate) == 0 {
		return []models.AlignedRecord{}, nil
	}

	// Distinct grid cells with their samples in time order
	cellIndex := make(map[models.GridKey]int)
	var cells []spatial.Point
	var samples [][]models.ClimateSample
	for _, s := range climate {
		if s.Timestamp.IsZero() || !spatial.ValidCoordinate(s.Lat, s.Lon) {
			continue
		}
		k := s.Key()
		ci, ok := cellIndex[k]
		if !ok {
			ci = len(cells)
			cellIndex[k] = ci
			cells = append(cells, spatial.Point{Lat: k.Lat, Lon: k.Lon})
			samples = append(samples, nil)
		}
		samples[ci] = append(samples[ci], s)
	}
	if len(cells) == 0 {
		return []models.AlignedRecord{}, nil
	}
	for _, cs := range samples {
		sort.SliceStable(cs, func(i, j int) bool {
			return cs[i].Timestamp.Before(cs[j].Timestamp)
		})
	}

	index := spatial.NewPointIndex(cells)

	snapped := make([][]snappedPoint, len(cells))
	for i, p := range traj {
		if !p.HasPosition() {
			continue
		}
		ci, distKm := index.Nearest(p.Lat, p.Lon)
		snapped[ci] = append(snapped[ci], snappedPoint{index: i, distKm: distKm})
	}

	workers := params.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	// Each cell reads only its own partition and writes only its own slot
	parts := make([][]models.AlignedRecord, len(cells))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for ci := range cells {
		if len(snapped[ci]) == 0 {
			continue
		}
		ci := ci
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			parts[ci] = joinCell(traj, snapped[ci], cells[ci], samples[ci], params.TimeTolerance)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	total := 0
	for _, part := range parts {
		total += len(part)
	}
	aligned := make([]models.AlignedRecord, 0, total)
	for _, part := range parts {
		aligned = append(aligned, part...)
	}

	sort.SliceStable(aligned, func(i, j int) bool {
		if aligned[i].IndividualID != aligned[j].IndividualID {
			return aligned[i].IndividualID < aligned[j].IndividualID
		}
		return aligned[i].Timestamp.Before(aligned[j].Timestamp)
	})
	return aligned, nil
}

// joinCell performs a nearest-timestamp join with tolerance inside one grid cell
func joinCell(traj []models.TrajectoryPoint, points []snappedPoint, cell spatial.Point, samples []models.ClimateSample, tolerance time.Duration) []models.AlignedRecord {
	out := make([]models.AlignedRecord, 0, len(points))
	for _, sp := range points {
		p := traj[sp.index]
		s, ok := NearestSample(samples, p.Timestamp, tolerance)
		if !ok || math.IsNaN(s.TempC) {
			continue
		}
		out = append(out, models.AlignedRecord{
			TrajectoryPoint: p,
			GridLat:         cell.Lat,
			GridLon:         cell.Lon,
			GridDistanceKm:  sp.distKm,
			ClimateTime:     s.Timestamp,
			TempC:           s.TempC,
			Humidity:        s.Humidity,
			PrecipMM:        s.PrecipMM,
		})
	}
	return out
}

// NearestSample returns the sample closest in time to t among samples sorted
// by timestamp, provided the gap is within tolerance. Equal gaps resolve to
// the earlier sample.
func NearestSample(samples []models.ClimateSample, t time.Time, tolerance time.Duration) (models.ClimateSample, bool) {
	if len(samples) == 0 {
		return models.ClimateSample{}, false
	}

	j := sort.Search(len(samples), func(i int) bool {
		return !samples[i].Timestamp.Before(t)
	})

	best := -1
	var bestGap time.Duration
	if j > 0 {
		best, bestGap = j-1, t.Sub(samples[j-1].Timestamp)
	}
	if j < len(samples) {
		if gap := samples[j].Timestamp.Sub(t); best < 0 || gap < bestGap {
			best, bestGap = j, gap
		}
	}

	if bestGap > tolerance {
		return models.ClimateSample{}, false
	}
	return samples[best], true
}
