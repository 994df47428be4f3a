package models

import (
	"time"
)

// GeoPoint is a GeoJSON point as stored in MongoDB (longitude first).
type GeoPoint struct {
	Type        string    `json:"type" bson:"type" default:"Point"`
	Coordinates []float64 `json:"coordinates" bson:"coordinates" validate:"required,len=2"`
}

func NewGeoPoint(lat, lng float64) GeoPoint {
	return GeoPoint{
		Type:        "Point",
		Coordinates: []float64{lng, lat},
	}
}

func (p GeoPoint) Latitude() float64 {
	if len(p.Coordinates) >= 2 {
		return p.Coordinates[1]
	}
	return 0
}

func (p GeoPoint) Longitude() float64 {
	if len(p.Coordinates) >= 1 {
		return p.Coordinates[0]
	}
	return 0
}

// LocationPoint is one entry of an alert's location trail.
type LocationPoint struct {
	Latitude  float64   `json:"latitude" bson:"latitude"`
	Longitude float64   `json:"longitude" bson:"longitude"`
	Address   string    `json:"address" bson:"address"`
	Timestamp time.Time `json:"timestamp" bson:"timestamp"`
}
