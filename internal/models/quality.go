package models

// TrajectoryQuality summarises a trajectory table
type TrajectoryQuality struct {
	Points      int     `json:"points"`
	Individuals int     `json:"individuals"`
	Species     int     `json:"species"`
	MissingLat  float64 `json:"missing_lat"`
	MissingLon  float64 `json:"missing_lon"`
}

// ClimateQuality summarises a climate table
type ClimateQuality struct {
	Rows            int     `json:"rows"`
	GridCells       int     `json:"grid_cells"`
	MissingTemp     float64 `json:"missing_temp"`
	MissingHumidity float64 `json:"missing_humidity"`
	MissingPrecip   float64 `json:"missing_precip"`
	TempMin         float64 `json:"temp_min"`
	TempMax         float64 `json:"temp_max"`
}
