package models

import "time"

type Campground struct {
	ID          int64     `json:"id" yaml:"-"`
	Name        string    `json:"name" yaml:"name"`
	Description string    `json:"description" yaml:"description"`
	Location    string    `json:"location" yaml:"location"`
	Active      bool      `json:"active" yaml:"-"`
	CreatedAt   time.Time `json:"created_at" yaml:"-"`
}

type Site struct {
	ID            int64     `json:"id"`
	CampgroundID  int64     `json:"campground_id"`
	SiteNumber    string    `json:"site_number"`
	SiteType      string    `json:"site_type"`
	MaxOccupancy  int       `json:"max_occupancy"`
	MaxVehicles   int       `json:"max_vehicles"`
	Hookups       string    `json:"hookups"`
	PricePerNight Cents     `json:"price_per_night_cents"`
	Active        bool      `json:"active"`
	Notes         string    `json:"notes"`
	CreatedAt     time.Time `json:"created_at"`
}

// CampgroundSeed describes a campground and its sites in the seed catalog file.
type CampgroundSeed struct {
	Campground `yaml:",inline"`
	Sites      []SiteRangeSeed `yaml:"sites"`
}

// SiteRangeSeed expands to one site per number in [From, To].
type SiteRangeSeed struct {
	From          int    `yaml:"from"`
	To            int    `yaml:"to"`
	SiteType      string `yaml:"type"`
	MaxOccupancy  int    `yaml:"max_occupancy"`
	MaxVehicles   int    `yaml:"max_vehicles"`
	Hookups       string `yaml:"hookups"`
	PricePerNight Cents  `yaml:"price_per_night"`
	Notes         string `yaml:"notes"`
}
