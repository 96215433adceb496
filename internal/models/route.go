package models

import "time"

// Route is the routing gateway's answer for one origin/destination pair.
type Route struct {
	Distance          float64      `json:"distance"`
	Duration          float64      `json:"duration"`
	DistanceKm        float64      `json:"distance_km"`
	DurationMin       float64      `json:"duration_min"`
	DistanceFormatted string       `json:"distance_formatted"`
	DurationFormatted string       `json:"duration_formatted"`
	Start             LatLng       `json:"start"`
	End               LatLng       `json:"end"`
	Coordinates       [][2]float64 `json:"coordinates"`
}

// Position is a volunteer's last reported location.
type Position struct {
	Latitude  float64   `json:"latitude"`
	Longitude float64   `json:"longitude"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (p Position) Coordinate() Coordinate {
	return Coordinate{Latitude: p.Latitude, Longitude: p.Longitude}
}
