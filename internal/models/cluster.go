package models

import (
	"encoding/json"
	"time"
)

// NoiseClusterID is the external table value for noise points
const NoiseClusterID = -1

type labelKind uint8

const (
	labelUnassigned labelKind = iota
	labelNoise
	labelMember
)

// ClusterLabel is the clustering outcome of a record: a member of a cluster,
// noise, or unassigned (the record was never clustered). The zero value is
// unassigned.
type ClusterLabel struct {
	kind labelKind
	id   int
}

// Member labels a record as belonging to cluster id
func Member(id int) ClusterLabel {
	return ClusterLabel{kind: labelMember, id: id}
}

// Noise labels a record the density criterion rejected
func Noise() ClusterLabel {
	return ClusterLabel{kind: labelNoise}
}

// IsMember reports whether the label is a cluster membership
func (l ClusterLabel) IsMember() bool { return l.kind == labelMember }

// IsNoise reports whether the label marks noise
func (l ClusterLabel) IsNoise() bool { return l.kind == labelNoise }

// IsAssigned reports whether the record went through clustering
func (l ClusterLabel) IsAssigned() bool { return l.kind != labelUnassigned }

// ID returns the cluster id and true for members
func (l ClusterLabel) ID() (int, bool) {
	if l.kind != labelMember {
		return 0, false
	}
	return l.id, true
}

// ClusterID collapses the label to the table representation:
// nil for unassigned, NoiseClusterID for noise, the id for members.
func (l ClusterLabel) ClusterID() *int {
	switch l.kind {
	case labelMember:
		id := l.id
		return &id
	case labelNoise:
		id := NoiseClusterID
		return &id
	default:
		return nil
	}
}

// LabelFromClusterID is the inverse of ClusterID
func LabelFromClusterID(id *int) ClusterLabel {
	switch {
	case id == nil:
		return ClusterLabel{}
	case *id < 0:
		return Noise()
	default:
		return Member(*id)
	}
}

// MarshalJSON encodes the label as its table value
func (l ClusterLabel) MarshalJSON() ([]byte, error) {
	return json.Marshal(l.ClusterID())
}

// UnmarshalJSON decodes a table value
func (l *ClusterLabel) UnmarshalJSON(data []byte) error {
	var id *int
	if err := json.Unmarshal(data, &id); err != nil {
		return err
	}
	*l = LabelFromClusterID(id)
	return nil
}

// RefugiaCluster summarises one density-connected group of heat-event points
type RefugiaCluster struct {
	ID              int       `json:"cluster_id"`
	CentroidLat     float64   `json:"centroid_lat"`
	CentroidLon     float64   `json:"centroid_lon"`
	NumPoints       int       `json:"num_points"`
	NumIndividuals  int       `json:"num_individuals"`
	NumEvents       int       `json:"num_events"`
	FirstSeen       time.Time `json:"first_seen"`
	LastSeen        time.Time `json:"last_seen"`
	Years           []int     `json:"years"`
	SpeciesList     []string  `json:"species_list"`
	DominantSpecies string    `json:"dominant_species"`
}

// Minimum recurrence on both axes for a cluster to count as refugia
const (
	MinRefugiaIndividuals = 2
	MinRefugiaEvents      = 2
)

// IsRefugia reports whether the location recurs across individuals and events
func (c RefugiaCluster) IsRefugia() bool {
	return c.NumIndividuals >= MinRefugiaIndividuals && c.NumEvents >= MinRefugiaEvents
}

type refugiaClusterJSON RefugiaCluster

// MarshalJSON adds the derived is_refugia flag
func (c RefugiaCluster) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		refugiaClusterJSON
		IsRefugia bool `json:"is_refugia"`
	}{refugiaClusterJSON(c), c.IsRefugia()})
}

// FilterRefugia returns the clusters that qualify as refugia
func FilterRefugia(clusters []RefugiaCluster) []RefugiaCluster {
	var out []RefugiaCluster
	for _, c := range clusters {
		if c.IsRefugia() {
			out = append(out, c)
		}
	}
	return out
}
