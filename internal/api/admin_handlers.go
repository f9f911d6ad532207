package api

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"campspots/internal/domain"
	"campspots/internal/export"
	"campspots/internal/google"
	"campspots/internal/models"

	"github.com/julienschmidt/httprouter"
)

const (
	defaultListLimit    = 100
	maxListLimit        = 1000
	defaultExportNights = 30
)

type loginBody struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func (s *HTTPServer) handleLogin(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var body loginBody
	if err := decodeJSON(w, r, &body); err != nil {
		writeServiceError(w, r, err)
		return
	}

	token, exp, err := s.auth.Login(strings.TrimSpace(body.Username), body.Password)
	switch {
	case errors.Is(err, errLoginDisabled):
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	case errors.Is(err, errBadCredentials):
		requestLogger(r).Warn().Str("username", body.Username).Msg("operator login rejected")
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	case err != nil:
		writeServiceError(w, r, err)
		return
	}

	requestLogger(r).Info().Str("username", body.Username).Msg("operator logged in")
	writeJSON(w, http.StatusOK, map[string]any{
		"token":      token,
		"token_type": "Bearer",
		"expires_at": exp,
	})
}

func (s *HTTPServer) handleDashboard(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	stats, err := s.deps.Booking.Dashboard(r.Context())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func queryDate(r *http.Request, name string) (time.Time, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return time.Time{}, nil
	}
	d, err := models.ParseDate(raw)
	if err != nil {
		return time.Time{}, domain.Validationf("invalid %s %q, expected YYYY-MM-DD", name, raw)
	}
	return d, nil
}

func reservationFilter(r *http.Request) (models.ReservationFilter, error) {
	var f models.ReservationFilter
	q := r.URL.Query()

	if id, err := queryID(r, "campground_id"); err != nil {
		return f, err
	} else if id != nil {
		f.CampgroundID = *id
	}
	if id, err := queryID(r, "site_id"); err != nil {
		return f, err
	} else if id != nil {
		f.SiteID = *id
	}

	if status := strings.TrimSpace(q.Get("status")); status != "" {
		if !models.IsValidStatus(status) {
			return f, domain.Validationf("unknown status %q", status)
		}
		f.Status = status
	}

	var err error
	if f.ArrivalFrom, err = queryDate(r, "arrival_from"); err != nil {
		return f, err
	}
	if f.ArrivalTo, err = queryDate(r, "arrival_to"); err != nil {
		return f, err
	}

	f.Limit = defaultListLimit
	if raw := strings.TrimSpace(q.Get("limit")); raw != "" {
		n, convErr := strconv.Atoi(raw)
		if convErr != nil || n < 1 {
			return f, domain.Validationf("invalid limit %q", raw)
		}
		f.Limit = min(n, maxListLimit)
	}
	return f, nil
}

func (s *HTTPServer) handleListReservations(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	f, err := reservationFilter(r)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	list, err := s.deps.Booking.ListReservations(r.Context(), f)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"reservations": list, "count": len(list)})
}

func (s *HTTPServer) handleGetReservation(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	id, err := pathID(ps, "id")
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	res, err := s.deps.Booking.GetReservation(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *HTTPServer) handleAdminCancel(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	id, err := pathID(ps, "id")
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	res, err := s.deps.Booking.CancelBooking(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	requestLogger(r).Info().
		Str("operator", principalFrom(r.Context()).Name).
		Int64("reservation_id", res.ID).
		Str("payment_status", res.PaymentStatus).
		Msg("reservation cancelled by operator")
	writeJSON(w, http.StatusOK, res)
}

func (s *HTTPServer) handleExpirePending(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	report, err := s.deps.Booking.ExpireStalePending(r.Context(), time.Now())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	requestLogger(r).Info().
		Str("operator", principalFrom(r.Context()).Name).
		Int("expired", report.Expired).
		Int("confirmed", report.Confirmed).
		Msg("stale pending sweep requested")
	writeJSON(w, http.StatusOK, report)
}

// handleExport streams reservations arriving in [from, to] as xlsx or json.
// With campground_id the xlsx also carries the occupancy grid of those nights.
func (s *HTTPServer) handleExport(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	ctx := r.Context()
	format := strings.ToLower(strings.TrimSpace(r.URL.Query().Get("format")))
	if format == "" {
		format = export.FormatXLSX
	}
	if format != export.FormatXLSX && format != export.FormatJSON {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("unsupported format %q", format))
		return
	}

	from, err := queryDate(r, "from")
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	to, err := queryDate(r, "to")
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	if from.IsZero() {
		from = models.DateOf(time.Now().In(s.cfg.Location()))
	}
	if to.IsZero() {
		to = from.AddDate(0, 0, defaultExportNights)
	}
	if to.Before(from) {
		writeError(w, http.StatusBadRequest, "to must not be before from")
		return
	}
	campgroundID, err := queryID(r, "campground_id")
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	filter := models.ReservationFilter{ArrivalFrom: from, ArrivalTo: to}
	if campgroundID != nil {
		filter.CampgroundID = *campgroundID
	}
	list, err := s.deps.Booking.ListReservations(ctx, filter)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	var grid *google.OccupancyGrid
	if campgroundID != nil && format == export.FormatXLSX {
		if grid, err = s.occupancyGrid(r, *campgroundID, from, to.AddDate(0, 0, 1)); err != nil {
			writeServiceError(w, r, err)
			return
		}
	}

	filename := fmt.Sprintf("reservations_%s_to_%s.%s", models.FormatDate(from), models.FormatDate(to), format)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	if format == export.FormatJSON {
		w.Header().Set("Content-Type", "application/json")
		err = export.WriteJSON(w, list)
	} else {
		w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
		err = export.WriteXLSX(w, list, grid)
	}
	if err != nil {
		// Headers are gone by now; the client sees a truncated body.
		requestLogger(r).Error().Err(err).Str("format", format).Msg("export failed")
		return
	}
	requestLogger(r).Info().Int("rows", len(list)).Str("format", format).Msg("reservations exported")
}

func (s *HTTPServer) occupancyGrid(r *http.Request, campgroundID int64, from, to time.Time) (*google.OccupancyGrid, error) {
	ctx := r.Context()
	sites, err := s.deps.Catalog.ListSites(ctx, campgroundID, false)
	if err != nil {
		return nil, err
	}
	// Stays that began before the window can still cover its first nights.
	holding, err := s.deps.Booking.ListReservations(ctx, models.ReservationFilter{CampgroundID: campgroundID, ArrivalTo: to})
	if err != nil {
		return nil, err
	}
	blocked, err := s.deps.Catalog.ListBlockedDates(ctx, from)
	if err != nil {
		return nil, err
	}
	grid, err := google.BuildOccupancyGrid(from, to, sites, holding, blocked)
	if err != nil {
		return nil, domain.Validationf("%s", err.Error())
	}
	return grid, nil
}

func (s *HTTPServer) handleCreateCampground(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	cg := models.Campground{Active: true}
	if err := decodeJSON(w, r, &cg); err != nil {
		writeServiceError(w, r, err)
		return
	}
	cg.ID = 0
	if err := s.deps.Catalog.CreateCampground(r.Context(), &cg); err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, cg)
}

// handleUpdateCampground applies the body over the stored campground, so
// omitted fields keep their values.
func (s *HTTPServer) handleUpdateCampground(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	id, err := pathID(ps, "id")
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	cg, err := s.deps.Catalog.GetCampground(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	if err := decodeJSON(w, r, cg); err != nil {
		writeServiceError(w, r, err)
		return
	}
	cg.ID = id
	if err := s.deps.Catalog.UpdateCampground(r.Context(), cg); err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, cg)
}

func (s *HTTPServer) handleCreateSite(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	campgroundID, err := pathID(ps, "id")
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	if _, err := s.deps.Catalog.GetCampground(r.Context(), campgroundID); err != nil {
		writeServiceError(w, r, err)
		return
	}

	site := models.Site{Active: true}
	if err := decodeJSON(w, r, &site); err != nil {
		writeServiceError(w, r, err)
		return
	}
	site.ID = 0
	site.CampgroundID = campgroundID
	if err := s.deps.Catalog.CreateSite(r.Context(), &site); err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, site)
}

// handleUpdateSite applies the body over the stored site. A new price only
// affects reservations made afterwards.
func (s *HTTPServer) handleUpdateSite(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	id, err := pathID(ps, "id")
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	site, err := s.deps.Catalog.GetSite(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	campgroundID := site.CampgroundID
	if err := decodeJSON(w, r, site); err != nil {
		writeServiceError(w, r, err)
		return
	}
	site.ID, site.CampgroundID = id, campgroundID
	if err := s.deps.Catalog.UpdateSite(r.Context(), site); err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, site)
}

type blockedDateBody struct {
	SiteID       *int64 `json:"site_id"`
	CampgroundID *int64 `json:"campground_id"`
	StartDate    string `json:"start_date"`
	EndDate      string `json:"end_date"`
	Reason       string `json:"reason"`
}

func (s *HTTPServer) handleListBlockedDates(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	from, err := queryDate(r, "from")
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	if from.IsZero() {
		from = models.DateOf(time.Now().In(s.cfg.Location()))
	}
	list, err := s.deps.Catalog.ListBlockedDates(r.Context(), from)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"blocked_dates": list})
}

func (s *HTTPServer) handleCreateBlockedDate(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var body blockedDateBody
	if err := decodeJSON(w, r, &body); err != nil {
		writeServiceError(w, r, err)
		return
	}
	start, err := models.ParseDate(body.StartDate)
	if err != nil {
		writeServiceError(w, r, domain.Validationf("invalid start_date %q", body.StartDate))
		return
	}
	end, err := models.ParseDate(body.EndDate)
	if err != nil {
		writeServiceError(w, r, domain.Validationf("invalid end_date %q", body.EndDate))
		return
	}

	b := &models.BlockedDate{
		SiteID:       body.SiteID,
		CampgroundID: body.CampgroundID,
		StartDate:    start,
		EndDate:      end,
		Reason:       body.Reason,
	}
	if err := s.deps.Catalog.CreateBlockedDate(r.Context(), b); err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, b)
}

func (s *HTTPServer) handleDeleteBlockedDate(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	id, err := pathID(ps, "id")
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	if err := s.deps.Catalog.DeleteBlockedDate(r.Context(), id); err != nil {
		writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
