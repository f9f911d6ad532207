package models

import "time"

// BlockedDate marks [StartDate, EndDate] (both inclusive) unavailable.
// With both SiteID and CampgroundID nil the block is global.
type BlockedDate struct {
	ID           int64     `json:"id"`
	SiteID       *int64    `json:"site_id,omitempty"`
	CampgroundID *int64    `json:"campground_id,omitempty"`
	StartDate    time.Time `json:"start_date"`
	EndDate      time.Time `json:"end_date"`
	Reason       string    `json:"reason"`
	CreatedAt    time.Time `json:"created_at"`
}

func (b *BlockedDate) Scope() string {
	switch {
	case b.SiteID != nil:
		return "site"
	case b.CampgroundID != nil:
		return "campground"
	default:
		return "global"
	}
}
