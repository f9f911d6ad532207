package google

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"regexp"
	"strconv"
	"sync"
	"time"

	"campspots/internal/models"

	"github.com/rs/zerolog"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"
)

const (
	reservationsSheet = "Reservations"
	occupancySheet    = "Occupancy"
	// Columns A..P of the reservations sheet.
	lastColumn      = "P"
	timestampLayout = "2006-01-02 15:04:05"
)

var (
	errRowNotFound = errors.New("reservation row not found")
	rowRangeRe     = regexp.MustCompile(`![A-Z]+(\d+)`)
)

var reservationHeaders = []interface{}{
	"ID", "Confirmation", "Campground", "Site", "Customer", "Email", "Phone",
	"Arrival", "Departure", "Nights", "Occupants", "Total", "Status", "Payment", "Created At", "Updated At",
}

// SheetsService mirrors reservations into a Google spreadsheet. Rows are
// located by reservation id in column A and cached.
type SheetsService struct {
	service       *sheets.Service
	spreadsheetID string
	rowCache      map[int64]int
	cacheMu       sync.RWMutex
	now           func() time.Time
	logger        *zerolog.Logger
}

func NewSheetsService(ctx context.Context, credentialsFile, spreadsheetID string, logger *zerolog.Logger) (*SheetsService, error) {
	credentialsJSON, err := os.ReadFile(credentialsFile)
	if err != nil {
		return nil, fmt.Errorf("unable to read credentials file: %w", err)
	}

	config, err := google.JWTConfigFromJSON(credentialsJSON, sheets.SpreadsheetsScope)
	if err != nil {
		return nil, fmt.Errorf("unable to parse credentials: %w", err)
	}

	srv, err := sheets.NewService(ctx, option.WithHTTPClient(config.Client(ctx)))
	if err != nil {
		return nil, fmt.Errorf("unable to create Sheets service: %w", err)
	}
	return newSheetsService(srv, spreadsheetID, logger), nil
}

func newSheetsService(srv *sheets.Service, spreadsheetID string, logger *zerolog.Logger) *SheetsService {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &SheetsService{
		service:       srv,
		spreadsheetID: spreadsheetID,
		rowCache:      make(map[int64]int),
		now:           time.Now,
		logger:        logger,
	}
}

// ServiceAccountEmail returns the address the spreadsheet must be shared with.
func ServiceAccountEmail(credentialsFile string) (string, error) {
	file, err := os.ReadFile(credentialsFile)
	if err != nil {
		return "", err
	}
	var creds struct {
		ClientEmail string `json:"client_email"`
	}
	if err := json.Unmarshal(file, &creds); err != nil {
		return "", err
	}
	return creds.ClientEmail, nil
}

func (s *SheetsService) TestConnection(ctx context.Context) error {
	_, err := s.service.Spreadsheets.Values.Get(s.spreadsheetID, reservationsSheet+"!A1").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("connection test failed: %w", err)
	}
	return nil
}

// StartCacheRefresh warms the row cache now and then every interval until ctx ends.
func (s *SheetsService) StartCacheRefresh(ctx context.Context, interval time.Duration) {
	refresh := func() {
		rctx, cancel := context.WithTimeout(ctx, 30*time.Second)
		defer cancel()
		if err := s.WarmUpCache(rctx); err != nil && ctx.Err() == nil {
			s.logger.Warn().Err(err).Msg("sheets row cache refresh failed")
		}
	}

	refresh()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			refresh()
		}
	}
}

// WarmUpCache rebuilds the row index cache from the ID column.
func (s *SheetsService) WarmUpCache(ctx context.Context) error {
	resp, err := s.service.Spreadsheets.Values.Get(s.spreadsheetID, reservationsSheet+"!A:A").Context(ctx).Do()
	if err != nil {
		return err
	}

	cache := make(map[int64]int, len(resp.Values))
	for i, row := range resp.Values {
		if id := cellID(row); id > 0 {
			cache[id] = i + 1
		}
	}

	s.cacheMu.Lock()
	s.rowCache = cache
	s.cacheMu.Unlock()
	return nil
}

func cellID(row []interface{}) int64 {
	if len(row) == 0 {
		return 0
	}
	switch v := row[0].(type) {
	case float64:
		return int64(v)
	case string:
		id, _ := strconv.ParseInt(v, 10, 64)
		return id
	}
	return 0
}

func (s *SheetsService) AppendReservation(ctx context.Context, r *models.ReservationDetails) error {
	resp, err := s.service.Spreadsheets.Values.Append(s.spreadsheetID, reservationsSheet+"!A:A", &sheets.ValueRange{
		Values: [][]interface{}{reservationRowValues(r)},
	}).ValueInputOption("RAW").InsertDataOption("INSERT_ROWS").Context(ctx).Do()
	if err != nil {
		return err
	}

	if resp.Updates != nil {
		if m := rowRangeRe.FindStringSubmatch(resp.Updates.UpdatedRange); m != nil {
			if row, convErr := strconv.Atoi(m[1]); convErr == nil {
				s.setCachedRow(r.ID, row)
			}
		}
	}
	return nil
}

// UpsertReservation rewrites the reservation's row, appending one if absent.
func (s *SheetsService) UpsertReservation(ctx context.Context, r *models.ReservationDetails) error {
	if r == nil {
		return fmt.Errorf("reservation is nil")
	}

	rowIdx, err := s.FindReservationRow(ctx, r.ID)
	if errors.Is(err, errRowNotFound) {
		return s.AppendReservation(ctx, r)
	}
	if err != nil {
		return err
	}

	rangeData := fmt.Sprintf("%s!A%d:%s%d", reservationsSheet, rowIdx, lastColumn, rowIdx)
	_, err = s.service.Spreadsheets.Values.Update(s.spreadsheetID, rangeData, &sheets.ValueRange{
		Values: [][]interface{}{reservationRowValues(r)},
	}).ValueInputOption("RAW").Context(ctx).Do()
	return err
}

// UpdateReservationStatus rewrites the status, payment and updated-at cells.
func (s *SheetsService) UpdateReservationStatus(ctx context.Context, reservationID int64, status, paymentStatus string) error {
	rowIdx, err := s.FindReservationRow(ctx, reservationID)
	if err != nil {
		return err
	}

	statusRange := fmt.Sprintf("%s!M%d:N%d", reservationsSheet, rowIdx, rowIdx)
	_, err = s.service.Spreadsheets.Values.Update(s.spreadsheetID, statusRange, &sheets.ValueRange{
		Values: [][]interface{}{{status, paymentStatus}},
	}).ValueInputOption("RAW").Context(ctx).Do()
	if err != nil {
		return err
	}

	updatedRange := fmt.Sprintf("%s!P%d:P%d", reservationsSheet, rowIdx, rowIdx)
	_, err = s.service.Spreadsheets.Values.Update(s.spreadsheetID, updatedRange, &sheets.ValueRange{
		Values: [][]interface{}{{s.now().UTC().Format(timestampLayout)}},
	}).ValueInputOption("RAW").Context(ctx).Do()
	return err
}

// FindReservationRow returns the 1-based row holding reservationID.
func (s *SheetsService) FindReservationRow(ctx context.Context, reservationID int64) (int, error) {
	if reservationID == 0 {
		return 0, fmt.Errorf("reservation id is required")
	}
	if row, ok := s.getCachedRow(reservationID); ok {
		return row, nil
	}

	resp, err := s.service.Spreadsheets.Values.Get(s.spreadsheetID, reservationsSheet+"!A:A").Context(ctx).Do()
	if err != nil {
		return 0, err
	}
	for i, row := range resp.Values {
		if cellID(row) == reservationID {
			s.setCachedRow(reservationID, i+1)
			return i + 1, nil
		}
	}
	return 0, errRowNotFound
}

// ReplaceReservationsSheet rewrites the whole sheet, header included.
func (s *SheetsService) ReplaceReservationsSheet(ctx context.Context, list []*models.ReservationDetails) error {
	_, err := s.service.Spreadsheets.Values.Clear(s.spreadsheetID, reservationsSheet+"!A:"+lastColumn, &sheets.ClearValuesRequest{}).
		Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("failed to clear reservations sheet: %w", err)
	}

	values := make([][]interface{}, 0, len(list)+1)
	values = append(values, reservationHeaders)
	for _, r := range list {
		values = append(values, reservationRowValues(r))
	}

	_, err = s.service.Spreadsheets.Values.Update(s.spreadsheetID, reservationsSheet+"!A1", &sheets.ValueRange{Values: values}).
		ValueInputOption("RAW").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("failed to update reservations sheet: %w", err)
	}

	cache := make(map[int64]int, len(list))
	for i, r := range list {
		cache[r.ID] = i + 2
	}
	s.cacheMu.Lock()
	s.rowCache = cache
	s.cacheMu.Unlock()
	return nil
}

func (s *SheetsService) getCachedRow(id int64) (int, bool) {
	s.cacheMu.RLock()
	defer s.cacheMu.RUnlock()
	row, ok := s.rowCache[id]
	return row, ok
}

func (s *SheetsService) setCachedRow(id int64, row int) {
	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()
	s.rowCache[id] = row
}

func (s *SheetsService) ClearCache() {
	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()
	s.rowCache = make(map[int64]int)
}

func reservationRowValues(r *models.ReservationDetails) []interface{} {
	return []interface{}{
		r.ID,
		r.ConfirmationCode(),
		r.CampgroundName,
		r.SiteNumber,
		r.CustomerName,
		r.CustomerEmail,
		r.CustomerPhone,
		models.FormatDate(r.ArrivalDate),
		models.FormatDate(r.DepartureDate),
		r.Nights,
		r.Occupants,
		r.TotalAmount.String(),
		r.Status,
		r.PaymentStatus,
		r.CreatedAt.UTC().Format(timestampLayout),
		r.UpdatedAt.UTC().Format(timestampLayout),
	}
}

// GetSheetIDByName returns the numeric id of a sheet tab.
func (s *SheetsService) GetSheetIDByName(ctx context.Context, sheetName string) (int64, error) {
	spreadsheet, err := s.service.Spreadsheets.Get(s.spreadsheetID).Context(ctx).Do()
	if err != nil {
		return 0, fmt.Errorf("unable to get spreadsheet: %w", err)
	}
	for _, sheet := range spreadsheet.Sheets {
		if sheet.Properties.Title == sheetName {
			return sheet.Properties.SheetId, nil
		}
	}
	return 0, fmt.Errorf("sheet '%s' not found", sheetName)
}
