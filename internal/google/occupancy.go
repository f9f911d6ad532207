package google

import (
	"context"
	"fmt"
	"time"

	"campspots/internal/models"

	"google.golang.org/api/sheets/v4"
)

const maxOccupancyNights = 100

// Cell states of the occupancy grid.
const (
	CellFree    = "free"
	CellPending = "pending"
	CellBooked  = "booked"
	CellBlocked = "blocked"
)

type OccupancyCell struct {
	Text  string
	State string
}

// OccupancyGrid has one row per site and one column per night in [From, To).
type OccupancyGrid struct {
	From   time.Time
	Nights []time.Time
	Sites  []*models.Site
	Cells  [][]OccupancyCell
}

// BuildOccupancyGrid lays reservations and blocked dates over the nights of
// [from, to). Cancelled and completed reservations are ignored.
func BuildOccupancyGrid(from, to time.Time, sites []*models.Site, reservations []*models.ReservationDetails, blocked []*models.BlockedDate) (*OccupancyGrid, error) {
	if !to.After(from) {
		return nil, fmt.Errorf("invalid date range: %s - %s", models.FormatDate(from), models.FormatDate(to))
	}

	g := &OccupancyGrid{From: from, Sites: sites}
	for d := from; d.Before(to) && len(g.Nights) < maxOccupancyNights; d = d.AddDate(0, 0, 1) {
		g.Nights = append(g.Nights, d)
	}

	bySite := make(map[int64][]*models.ReservationDetails)
	for _, r := range reservations {
		if r.Holds() {
			bySite[r.SiteID] = append(bySite[r.SiteID], r)
		}
	}

	g.Cells = make([][]OccupancyCell, len(sites))
	for i, site := range sites {
		row := make([]OccupancyCell, len(g.Nights))
		for j, night := range g.Nights {
			row[j] = OccupancyCell{Text: "Free", State: CellFree}
			if b := blockFor(site, night, blocked); b != nil {
				row[j] = OccupancyCell{Text: "Blocked: " + b.Reason, State: CellBlocked}
			}
			for _, r := range bySite[site.ID] {
				if night.Before(r.ArrivalDate) || !night.Before(r.DepartureDate) {
					continue
				}
				state := CellPending
				if r.Status == models.StatusConfirmed {
					state = CellBooked
				}
				row[j] = OccupancyCell{Text: fmt.Sprintf("%s %s", r.ConfirmationCode(), r.CustomerName), State: state}
				break
			}
		}
		g.Cells[i] = row
	}
	return g, nil
}

func blockFor(site *models.Site, night time.Time, blocked []*models.BlockedDate) *models.BlockedDate {
	for _, b := range blocked {
		if night.Before(b.StartDate) || night.After(b.EndDate) {
			continue
		}
		switch {
		case b.SiteID != nil && *b.SiteID != site.ID:
			continue
		case b.CampgroundID != nil && *b.CampgroundID != site.CampgroundID:
			continue
		}
		return b
	}
	return nil
}

func cellColor(state string) *sheets.Color {
	switch state {
	case CellBooked:
		return &sheets.Color{Red: 1.0, Green: 0.78, Blue: 0.81}
	case CellPending:
		return &sheets.Color{Red: 1.0, Green: 0.92, Blue: 0.61}
	case CellBlocked:
		return &sheets.Color{Red: 0.85, Green: 0.85, Blue: 0.85}
	default:
		return &sheets.Color{Red: 1.0, Green: 1.0, Blue: 1.0}
	}
}

// UpdateOccupancySheet rewrites the Occupancy tab with the grid and colors each night.
func (s *SheetsService) UpdateOccupancySheet(ctx context.Context, g *OccupancyGrid) error {
	sheetID, err := s.GetSheetIDByName(ctx, occupancySheet)
	if err != nil {
		return fmt.Errorf("unable to get sheet ID: %w", err)
	}

	_, err = s.service.Spreadsheets.Values.Clear(s.spreadsheetID, occupancySheet+"!A:ZZ", &sheets.ClearValuesRequest{}).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("unable to clear sheet: %w", err)
	}

	var last time.Time
	if n := len(g.Nights); n > 0 {
		last = g.Nights[n-1]
	}
	data := [][]interface{}{
		{fmt.Sprintf("Nights %s - %s", models.FormatDate(g.From), models.FormatDate(last))},
		{},
	}
	header := []interface{}{"Site"}
	for _, night := range g.Nights {
		header = append(header, night.Format("Mon 01-02"))
	}
	data = append(data, header)

	requests := []*sheets.Request{
		{
			RepeatCell: &sheets.RepeatCellRequest{
				Range: &sheets.GridRange{SheetId: sheetID, StartRowIndex: 0, EndRowIndex: 1, StartColumnIndex: 0, EndColumnIndex: 1},
				Cell: &sheets.CellData{UserEnteredFormat: &sheets.CellFormat{
					TextFormat: &sheets.TextFormat{Bold: true, FontSize: 14},
				}},
				Fields: "userEnteredFormat(textFormat)",
			},
		},
		{
			RepeatCell: &sheets.RepeatCellRequest{
				Range: &sheets.GridRange{SheetId: sheetID, StartRowIndex: 2, EndRowIndex: 3, StartColumnIndex: 0, EndColumnIndex: int64(len(header))},
				Cell: &sheets.CellData{UserEnteredFormat: &sheets.CellFormat{
					HorizontalAlignment: "CENTER",
					TextFormat:          &sheets.TextFormat{Bold: true},
					BackgroundColor:     &sheets.Color{Red: 0.86, Green: 0.92, Blue: 0.97},
				}},
				Fields: "userEnteredFormat(backgroundColor,textFormat,horizontalAlignment)",
			},
		},
	}

	for i, site := range g.Sites {
		label := site.SiteNumber
		if site.SiteType != "" {
			label = fmt.Sprintf("%s (%s)", site.SiteNumber, site.SiteType)
		}
		row := []interface{}{label}
		for j, cell := range g.Cells[i] {
			row = append(row, cell.Text)
			requests = append(requests, &sheets.Request{
				RepeatCell: &sheets.RepeatCellRequest{
					Range: &sheets.GridRange{
						SheetId:          sheetID,
						StartRowIndex:    int64(i + 3),
						EndRowIndex:      int64(i + 4),
						StartColumnIndex: int64(j + 1),
						EndColumnIndex:   int64(j + 2),
					},
					Cell: &sheets.CellData{UserEnteredFormat: &sheets.CellFormat{
						BackgroundColor:   cellColor(cell.State),
						VerticalAlignment: "TOP",
						WrapStrategy:      "WRAP",
					}},
					Fields: "userEnteredFormat(backgroundColor,verticalAlignment,wrapStrategy)",
				},
			})
		}
		data = append(data, row)
	}

	requests = append(requests, &sheets.Request{
		UpdateDimensionProperties: &sheets.UpdateDimensionPropertiesRequest{
			Range:      &sheets.DimensionRange{SheetId: sheetID, Dimension: "COLUMNS", StartIndex: 1, EndIndex: int64(len(header))},
			Properties: &sheets.DimensionProperties{PixelSize: 150},
			Fields:     "pixelSize",
		},
	})

	_, err = s.service.Spreadsheets.Values.Update(s.spreadsheetID, occupancySheet+"!A1", &sheets.ValueRange{Values: data}).
		ValueInputOption("RAW").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("unable to update occupancy sheet: %w", err)
	}

	_, err = s.service.Spreadsheets.BatchUpdate(s.spreadsheetID, &sheets.BatchUpdateSpreadsheetRequest{Requests: requests}).
		Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("unable to apply formatting: %w", err)
	}
	return nil
}
