package models

// LabeledPoint is a heat-event record labeled by its distance to the
// nearest refugia centroid, used as supervised training input.
type LabeledPoint struct {
	TaggedRecord

	RefugiaDistanceKm float64 `json:"refugia_distance_km"`
	IsRefugiaPoint    bool    `json:"is_refugia_point"`
}
