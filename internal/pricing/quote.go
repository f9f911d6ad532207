package pricing

import (
	"errors"

	"campspots/internal/availability"
	"campspots/internal/models"
)

var (
	ErrNoNights      = errors.New("stay must cover at least one night")
	ErrNegativePrice = errors.New("price per night must not be negative")
)

// Quote is the frozen charge for a stay.
type Quote struct {
	Nights        int          `json:"nights"`
	PricePerNight models.Cents `json:"price_per_night_cents"`
	Total         models.Cents `json:"total_amount_cents"`
}

// Calculate prices a stay at a flat nightly rate in integer cents.
func Calculate(pricePerNight models.Cents, stay availability.DateRange) (Quote, error) {
	if pricePerNight < 0 {
		return Quote{}, ErrNegativePrice
	}
	nights := stay.Nights()
	if nights < 1 {
		return Quote{}, ErrNoNights
	}
	return Quote{
		Nights:        nights,
		PricePerNight: pricePerNight,
		Total:         pricePerNight.Times(nights),
	}, nil
}

// ForSite prices a stay on a site at the site's current rate.
func ForSite(site *models.Site, stay availability.DateRange) (Quote, error) {
	return Calculate(site.PricePerNight, stay)
}
