package analysis

import "errors"

var (
	// ErrSchema is returned when an input table lacks a required column
	ErrSchema = errors.New("missing required column")

	// ErrNoRefugia is returned when points are labeled against an empty refugia set
	ErrNoRefugia = errors.New("refugia clusters are required to label points")

	// ErrNoHeatEvents is returned when a training set is requested without heat-event points
	ErrNoHeatEvents = errors.New("no heat events available for model training")

	// ErrQuality is returned when input missing rates exceed the configured limit
	ErrQuality = errors.New("input quality below limit")

	// ErrInvalidParams is returned for non-positive stage parameters
	ErrInvalidParams = errors.New("invalid parameters")
)
