package models

import "time"

// RefugiaPrediction is the classifier's refugia probability for one
// species at one climate sample of a future scenario.
type RefugiaPrediction struct {
	Timestamp          time.Time `json:"timestamp"`
	Lat                float64   `json:"lat"`
	Lon                float64   `json:"lon"`
	TempC              float64   `json:"temp_c"`
	Humidity           *float64  `json:"humidity,omitempty"`
	PrecipMM           *float64  `json:"precip_mm,omitempty"`
	Species            string    `json:"species"`
	RefugiaProbability float64   `json:"refugia_probability"`
	IsRefugiaPred      bool      `json:"is_refugia_pred"`
}
