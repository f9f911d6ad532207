package models

import (
	"fmt"
	"time"
)

type Reservation struct {
	ID               int64     `json:"id"`
	SiteID           int64     `json:"site_id"`
	CustomerName     string    `json:"customer_name"`
	CustomerEmail    string    `json:"customer_email"`
	CustomerPhone    string    `json:"customer_phone"`
	ArrivalDate      time.Time `json:"arrival_date"`
	DepartureDate    time.Time `json:"departure_date"`
	Nights           int       `json:"num_nights"`
	Occupants        int       `json:"num_occupants"`
	Vehicles         int       `json:"num_vehicles"`
	VehicleInfo      string    `json:"vehicle_info"`
	SpecialRequests  string    `json:"special_requests"`
	Notes            string    `json:"notes"`
	TotalAmount      Cents     `json:"total_amount_cents"` // frozen at creation
	Currency         string    `json:"currency"`
	GatewaySessionID string    `json:"gateway_session_id"`
	GatewayPaymentID string    `json:"gateway_payment_id"`
	PaymentStatus    string    `json:"payment_status"` // pending, paid, refunded, failed, cancelled
	Status           string    `json:"status"`         // pending, confirmed, cancelled, completed
	CreatedBy        string    `json:"created_by"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
	Version          int64     `json:"version"`
}

// ConfirmationCode is the display identifier derived from the reservation id.
func (r *Reservation) ConfirmationCode() string {
	return fmt.Sprintf("%s%06d", ConfirmationCodePrefix, r.ID)
}

// Holds reports whether the reservation blocks its site for its date range.
func (r *Reservation) Holds() bool {
	return r.Status == StatusPending || r.Status == StatusConfirmed
}

// AwaitingPayment is the initial (pending, pending) state.
func (r *Reservation) AwaitingPayment() bool {
	return r.Status == StatusPending && r.PaymentStatus == PaymentPending
}

// IsConfirmed is the settled (confirmed, paid) state.
func (r *Reservation) IsConfirmed() bool {
	return r.Status == StatusConfirmed && r.PaymentStatus == PaymentPaid
}

// ReservationDetails joins a reservation with its site and campground labels.
type ReservationDetails struct {
	Reservation
	CampgroundID   int64  `json:"campground_id"`
	CampgroundName string `json:"campground_name"`
	SiteNumber     string `json:"site_number"`
	SiteType       string `json:"site_type"`
}

// ReservationFilter narrows admin listings. Zero values mean "any".
type ReservationFilter struct {
	CampgroundID int64
	SiteID       int64
	Status       string
	ArrivalFrom  time.Time
	ArrivalTo    time.Time
	Limit        int
}

// ReservationStats backs the operator dashboard.
type ReservationStats struct {
	Total     int                   `json:"total"`
	Confirmed int                   `json:"confirmed"`
	Pending   int                   `json:"pending"`
	Cancelled int                   `json:"cancelled"`
	Recent    []*ReservationDetails `json:"recent"`
}
