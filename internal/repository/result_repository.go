package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jengzang/refugia-backend-go/internal/database"
	"github.com/jengzang/refugia-backend-go/internal/models"
)

// ResultRepository stores and queries the artifacts of pipeline runs
type ResultRepository struct {
	db *sql.DB
}

// NewResultRepository creates a new result repository
func NewResultRepository(db *sql.DB) *ResultRepository {
	return &ResultRepository{db: db}
}

// Result timestamps are stored as unix milliseconds
var recordColumns = []string{
	"run_id", "seq", "individual_id", "species", "timestamp", "lat", "lon", "speed_mps",
	"grid_lat", "grid_lon", "grid_distance_km", "climate_timestamp", "temp_c", "humidity",
	"precip_mm", "heat_threshold_c", "heat_exposure", "heat_event_id", "cluster_id",
}

var eventColumns = []string{
	"run_id", "heat_event_id", "individual_id", "species", "start_time", "end_time",
	"duration_hours", "num_points", "mean_temp_c", "max_temp_c",
}

var clusterColumns = []string{
	"run_id", "cluster_id", "centroid_lat", "centroid_lon", "num_points", "num_individuals",
	"num_events", "first_seen", "last_seen", "years_json", "species_json", "dominant_species",
}

var labeledColumns = []string{
	"run_id", "seq", "individual_id", "species", "timestamp", "lat", "lon", "temp_c",
	"humidity", "precip_mm", "heat_threshold_c", "heat_event_id", "cluster_id",
	"refugia_distance_km", "is_refugia_point",
}

// SaveThresholds replaces the thresholds applied in a run
func (r *ResultRepository) SaveThresholds(ctx context.Context, runID string, thresholds []models.SpeciesThreshold) error {
	return database.Transaction(ctx, r.db, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, "DELETE FROM species_thresholds WHERE run_id = ?", runID); err != nil {
			return fmt.Errorf("failed to clear thresholds: %w", err)
		}
		rows := make([][]any, len(thresholds))
		for i, t := range thresholds {
			rows[i] = []any{runID, t.Species, t.HeatThresholdC, t.Source}
		}
		return database.BatchInsert(ctx, tx, "species_thresholds",
			[]string{"run_id", "species", "heat_threshold_c", "source"}, rows)
	})
}

// SaveDetection replaces the tagged records, heat events and clusters of a
// run in one transaction.
func (r *ResultRepository) SaveDetection(ctx context.Context, runID string, records []models.TaggedRecord,
	events []models.HeatEvent, clusters []models.RefugiaCluster) error {

	return database.Transaction(ctx, r.db, func(tx *sql.Tx) error {
		for _, table := range []string{"aligned_records", "heat_events", "refugia_clusters"} {
			if _, err := tx.ExecContext(ctx, "DELETE FROM "+table+" WHERE run_id = ?", runID); err != nil {
				return fmt.Errorf("failed to clear %s: %w", table, err)
			}
		}

		recordRows := make([][]any, len(records))
		for i, rec := range records {
			recordRows[i] = []any{
				runID, i, rec.IndividualID, rec.Species, rec.Timestamp.UnixMilli(), rec.Lat, rec.Lon,
				floatOrNil(rec.SpeedMPS), rec.GridLat, rec.GridLon, rec.GridDistanceKm,
				rec.ClimateTime.UnixMilli(), rec.TempC, floatOrNil(rec.Humidity), floatOrNil(rec.PrecipMM),
				rec.HeatThresholdC, boolInt(rec.HeatExposure), int64OrNil(rec.HeatEventID),
				intOrNil(rec.Cluster.ClusterID()),
			}
		}
		if err := database.BatchInsert(ctx, tx, "aligned_records", recordColumns, recordRows); err != nil {
			return err
		}

		eventRows := make([][]any, len(events))
		for i, e := range events {
			eventRows[i] = []any{
				runID, e.ID, e.IndividualID, e.Species, e.StartTime.UnixMilli(), e.EndTime.UnixMilli(),
				e.DurationHours, e.NumPoints, e.MeanTempC, e.MaxTempC,
			}
		}
		if err := database.BatchInsert(ctx, tx, "heat_events", eventColumns, eventRows); err != nil {
			return err
		}

		clusterRows := make([][]any, len(clusters))
		for i, c := range clusters {
			years, err := json.Marshal(c.Years)
			if err != nil {
				return err
			}
			species, err := json.Marshal(c.SpeciesList)
			if err != nil {
				return err
			}
			clusterRows[i] = []any{
				runID, c.ID, c.CentroidLat, c.CentroidLon, c.NumPoints, c.NumIndividuals,
				c.NumEvents, c.FirstSeen.UnixMilli(), c.LastSeen.UnixMilli(), string(years), string(species),
				c.DominantSpecies,
			}
		}
		return database.BatchInsert(ctx, tx, "refugia_clusters", clusterColumns, clusterRows)
	})
}

// SaveLabeled replaces the labeled training points of a run
func (r *ResultRepository) SaveLabeled(ctx context.Context, runID string, points []models.LabeledPoint) error {
	return database.Transaction(ctx, r.db, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, "DELETE FROM labeled_points WHERE run_id = ?", runID); err != nil {
			return fmt.Errorf("failed to clear labeled points: %w", err)
		}
		rows := make([][]any, len(points))
		for i, p := range points {
			rows[i] = []any{
				runID, i, p.IndividualID, p.Species, p.Timestamp.UnixMilli(), p.Lat, p.Lon, p.TempC,
				floatOrNil(p.Humidity), floatOrNil(p.PrecipMM), p.HeatThresholdC,
				int64OrNil(p.HeatEventID), intOrNil(p.Cluster.ClusterID()),
				p.RefugiaDistanceKm, boolInt(p.IsRefugiaPoint),
			}
		}
		return database.BatchInsert(ctx, tx, "labeled_points", labeledColumns, rows)
	})
}

// SaveExperiments stores the JSON encoding of a run's experiment report
func (r *ResultRepository) SaveExperiments(ctx context.Context, runID string, report any) error {
	data, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("failed to encode experiments: %w", err)
	}
	query := `
		INSERT INTO run_experiments (run_id, report_json) VALUES (?, ?)
		ON CONFLICT(run_id) DO UPDATE SET report_json = excluded.report_json
	`
	if _, err := r.db.ExecContext(ctx, query, runID, string(data)); err != nil {
		return fmt.Errorf("failed to save experiments: %w", err)
	}
	return nil
}

// GetExperiments returns the stored experiment report of a run
func (r *ResultRepository) GetExperiments(ctx context.Context, runID string) (json.RawMessage, error) {
	var data string
	err := r.db.QueryRowContext(ctx, "SELECT report_json FROM run_experiments WHERE run_id = ?", runID).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("experiments of run %s: %w", runID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get experiments: %w", err)
	}
	return json.RawMessage(data), nil
}

// ListThresholds returns the thresholds applied in a run, ordered by species
func (r *ResultRepository) ListThresholds(ctx context.Context, runID string) ([]models.SpeciesThreshold, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT run_id, species, heat_threshold_c, source
		FROM species_thresholds WHERE run_id = ? ORDER BY species`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to list thresholds: %w", err)
	}
	defer rows.Close()

	out := []models.SpeciesThreshold{}
	for rows.Next() {
		var t models.SpeciesThreshold
		if err := rows.Scan(&t.RunID, &t.Species, &t.HeatThresholdC, &t.Source); err != nil {
			return nil, fmt.Errorf("failed to scan threshold: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// where builds the shared filter clause of artifact listings
func where(f models.ResultFilter) (string, []interface{}) {
	clause := " WHERE run_id = ?"
	args := []interface{}{f.RunID}
	if f.IndividualID != "" {
		clause += " AND individual_id = ?"
		args = append(args, f.IndividualID)
	}
	if f.Species != "" {
		clause += " AND species = ?"
		args = append(args, f.Species)
	}
	return clause, args
}

func (r *ResultRepository) count(ctx context.Context, table, clause string, args []interface{}) (int64, error) {
	var n int64
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+table+clause, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count %s: %w", table, err)
	}
	return n, nil
}

// ListRecords returns a page of tagged records in pipeline order. With
// RefugiaOnly set only heat-event records are returned.
func (r *ResultRepository) ListRecords(ctx context.Context, f models.ResultFilter) ([]models.TaggedRecord, int64, error) {
	f.Normalize()
	clause, args := where(f)
	if f.RefugiaOnly {
		clause += " AND heat_event_id IS NOT NULL"
	}

	total, err := r.count(ctx, "aligned_records", clause, args)
	if err != nil {
		return nil, 0, err
	}

	query := "SELECT individual_id, species, timestamp, lat, lon, speed_mps, grid_lat, grid_lon, " +
		"grid_distance_km, climate_timestamp, temp_c, humidity, precip_mm, heat_threshold_c, " +
		"heat_exposure, heat_event_id, cluster_id FROM aligned_records" + clause +
		" ORDER BY seq LIMIT ? OFFSET ?"
	rows, err := r.db.QueryContext(ctx, query, append(args, f.PageSize, f.Offset())...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list records: %w", err)
	}
	defer rows.Close()

	out := []models.TaggedRecord{}
	for rows.Next() {
		var rec models.TaggedRecord
		var ts, climateTS int64
		var speed, humidity, precip sql.NullFloat64
		var eventID, clusterID sql.NullInt64
		var exposure int
		if err := rows.Scan(&rec.IndividualID, &rec.Species, &ts, &rec.Lat, &rec.Lon, &speed,
			&rec.GridLat, &rec.GridLon, &rec.GridDistanceKm, &climateTS, &rec.TempC, &humidity,
			&precip, &rec.HeatThresholdC, &exposure, &eventID, &clusterID); err != nil {
			return nil, 0, fmt.Errorf("failed to scan record: %w", err)
		}
		rec.Timestamp = time.UnixMilli(ts).UTC()
		rec.ClimateTime = time.UnixMilli(climateTS).UTC()
		rec.SpeedMPS = floatPtr(speed)
		rec.Humidity = floatPtr(humidity)
		rec.PrecipMM = floatPtr(precip)
		rec.HeatExposure = exposure != 0
		rec.HeatEventID = int64Ptr(eventID)
		rec.Cluster = models.LabelFromClusterID(intPtr(clusterID))
		out = append(out, rec)
	}
	return out, total, rows.Err()
}

// ListEvents returns a page of heat events ordered by ID
func (r *ResultRepository) ListEvents(ctx context.Context, f models.ResultFilter) ([]models.HeatEvent, int64, error) {
	f.Normalize()
	clause, args := where(f)

	total, err := r.count(ctx, "heat_events", clause, args)
	if err != nil {
		return nil, 0, err
	}

	query := "SELECT heat_event_id, individual_id, species, start_time, end_time, duration_hours, " +
		"num_points, mean_temp_c, max_temp_c FROM heat_events" + clause +
		" ORDER BY heat_event_id LIMIT ? OFFSET ?"
	rows, err := r.db.QueryContext(ctx, query, append(args, f.PageSize, f.Offset())...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list heat events: %w", err)
	}
	defer rows.Close()

	out := []models.HeatEvent{}
	for rows.Next() {
		var e models.HeatEvent
		var start, end int64
		if err := rows.Scan(&e.ID, &e.IndividualID, &e.Species, &start, &end, &e.DurationHours,
			&e.NumPoints, &e.MeanTempC, &e.MaxTempC); err != nil {
			return nil, 0, fmt.Errorf("failed to scan heat event: %w", err)
		}
		e.StartTime = time.UnixMilli(start).UTC()
		e.EndTime = time.UnixMilli(end).UTC()
		out = append(out, e)
	}
	return out, total, rows.Err()
}

// ListClusters returns a page of cluster summaries ordered by ID. With
// RefugiaOnly set only clusters meeting the refugia recurrence criteria
// are returned. Individual and species filters do not apply to clusters.
func (r *ResultRepository) ListClusters(ctx context.Context, f models.ResultFilter) ([]models.RefugiaCluster, int64, error) {
	f.Normalize()
	clause := " WHERE run_id = ?"
	args := []interface{}{f.RunID}
	if f.RefugiaOnly {
		clause += " AND num_individuals >= ? AND num_events >= ?"
		args = append(args, models.MinRefugiaIndividuals, models.MinRefugiaEvents)
	}

	total, err := r.count(ctx, "refugia_clusters", clause, args)
	if err != nil {
		return nil, 0, err
	}

	query := "SELECT cluster_id, centroid_lat, centroid_lon, num_points, num_individuals, num_events, " +
		"first_seen, last_seen, years_json, species_json, dominant_species FROM refugia_clusters" + clause +
		" ORDER BY cluster_id LIMIT ? OFFSET ?"
	rows, err := r.db.QueryContext(ctx, query, append(args, f.PageSize, f.Offset())...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list clusters: %w", err)
	}
	defer rows.Close()

	out := []models.RefugiaCluster{}
	for rows.Next() {
		var c models.RefugiaCluster
		var first, last int64
		var years, species string
		if err := rows.Scan(&c.ID, &c.CentroidLat, &c.CentroidLon, &c.NumPoints, &c.NumIndividuals,
			&c.NumEvents, &first, &last, &years, &species, &c.DominantSpecies); err != nil {
			return nil, 0, fmt.Errorf("failed to scan cluster: %w", err)
		}
		c.FirstSeen = time.UnixMilli(first).UTC()
		c.LastSeen = time.UnixMilli(last).UTC()
		if err := json.Unmarshal([]byte(years), &c.Years); err != nil {
			return nil, 0, fmt.Errorf("failed to decode cluster years: %w", err)
		}
		if err := json.Unmarshal([]byte(species), &c.SpeciesList); err != nil {
			return nil, 0, fmt.Errorf("failed to decode cluster species: %w", err)
		}
		out = append(out, c)
	}
	return out, total, rows.Err()
}

// ListLabeledPoints returns a page of labeled points in pipeline order.
// With RefugiaOnly set only positive points are returned.
func (r *ResultRepository) ListLabeledPoints(ctx context.Context, f models.ResultFilter) ([]models.LabeledPoint, int64, error) {
	f.Normalize()
	clause, args := where(f)
	if f.RefugiaOnly {
		clause += " AND is_refugia_point = 1"
	}

	total, err := r.count(ctx, "labeled_points", clause, args)
	if err != nil {
		return nil, 0, err
	}

	query := "SELECT individual_id, species, timestamp, lat, lon, temp_c, humidity, precip_mm, " +
		"heat_threshold_c, heat_event_id, cluster_id, refugia_distance_km, is_refugia_point " +
		"FROM labeled_points" + clause + " ORDER BY seq LIMIT ? OFFSET ?"
	rows, err := r.db.QueryContext(ctx, query, append(args, f.PageSize, f.Offset())...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list labeled points: %w", err)
	}
	defer rows.Close()

	out := []models.LabeledPoint{}
	for rows.Next() {
		var p models.LabeledPoint
		var ts int64
		var humidity, precip sql.NullFloat64
		var eventID, clusterID sql.NullInt64
		var positive int
		if err := rows.Scan(&p.IndividualID, &p.Species, &ts, &p.Lat, &p.Lon, &p.TempC, &humidity,
			&precip, &p.HeatThresholdC, &eventID, &clusterID, &p.RefugiaDistanceKm, &positive); err != nil {
			return nil, 0, fmt.Errorf("failed to scan labeled point: %w", err)
		}
		p.Timestamp = time.UnixMilli(ts).UTC()
		p.Humidity = floatPtr(humidity)
		p.PrecipMM = floatPtr(precip)
		p.HeatEventID = int64Ptr(eventID)
		p.Cluster = models.LabelFromClusterID(intPtr(clusterID))
		p.HeatExposure = true
		p.IsRefugiaPoint = positive != 0
		out = append(out, p)
	}
	return out, total, rows.Err()
}
