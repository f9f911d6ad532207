// Package export renders reservation listings for operators as XLSX or JSON.
package export

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"campspots/internal/google"
	"campspots/internal/models"

	"github.com/xuri/excelize/v2"
)

const (
	FormatXLSX = "xlsx"
	FormatJSON = "json"

	reservationsSheet = "Reservations"
	occupancySheet    = "Occupancy"
	timestampLayout   = "2006-01-02 15:04:05"
)

// Row is one exported reservation.
type Row struct {
	ConfirmationCode string       `json:"confirmation_code"`
	ReservationID    int64        `json:"reservation_id"`
	CampgroundID     int64        `json:"campground_id"`
	CampgroundName   string       `json:"campground_name"`
	SiteID           int64        `json:"site_id"`
	SiteNumber       string       `json:"site_number"`
	CustomerName     string       `json:"customer_name"`
	CustomerEmail    string       `json:"customer_email"`
	CustomerPhone    string       `json:"customer_phone"`
	ArrivalDate      string       `json:"arrival_date"`
	DepartureDate    string       `json:"departure_date"`
	Nights           int          `json:"num_nights"`
	Occupants        int          `json:"num_occupants"`
	Vehicles         int          `json:"num_vehicles"`
	TotalAmountCents models.Cents `json:"total_amount_cents"`
	TotalAmount      string       `json:"total_amount"`
	Currency         string       `json:"currency"`
	PaymentStatus    string       `json:"payment_status"`
	Status           string       `json:"status"`
	GatewaySessionID string       `json:"gateway_session_id,omitempty"`
	GatewayPaymentID string       `json:"gateway_payment_id,omitempty"`
	CreatedAt        time.Time    `json:"created_at"`
	CreatedBy        string       `json:"created_by"`
}

func NewRow(r *models.ReservationDetails) Row {
	return Row{
		ConfirmationCode: r.ConfirmationCode(),
		ReservationID:    r.ID,
		CampgroundID:     r.CampgroundID,
		CampgroundName:   r.CampgroundName,
		SiteID:           r.SiteID,
		SiteNumber:       r.SiteNumber,
		CustomerName:     r.CustomerName,
		CustomerEmail:    r.CustomerEmail,
		CustomerPhone:    r.CustomerPhone,
		ArrivalDate:      models.FormatDate(r.ArrivalDate),
		DepartureDate:    models.FormatDate(r.DepartureDate),
		Nights:           r.Nights,
		Occupants:        r.Occupants,
		Vehicles:         r.Vehicles,
		TotalAmountCents: r.TotalAmount,
		TotalAmount:      r.TotalAmount.String(),
		Currency:         strings.ToUpper(r.Currency),
		PaymentStatus:    r.PaymentStatus,
		Status:           r.Status,
		GatewaySessionID: r.GatewaySessionID,
		GatewayPaymentID: r.GatewayPaymentID,
		CreatedAt:        r.CreatedAt.UTC(),
		CreatedBy:        r.CreatedBy,
	}
}

var columns = []string{
	"Confirmation", "Campground", "Site", "Customer", "Email", "Phone",
	"Arrival", "Departure", "Nights", "Occupants", "Vehicles", "Total", "Currency",
	"Payment", "Status", "Reservation ID", "Session ID", "Payment ID", "Created At", "Created By",
}

func (r Row) values() []interface{} {
	return []interface{}{
		r.ConfirmationCode, r.CampgroundName, r.SiteNumber, r.CustomerName, r.CustomerEmail, r.CustomerPhone,
		r.ArrivalDate, r.DepartureDate, r.Nights, r.Occupants, r.Vehicles, float64(r.TotalAmountCents) / 100, r.Currency,
		r.PaymentStatus, r.Status, r.ReservationID, r.GatewaySessionID, r.GatewayPaymentID,
		r.CreatedAt.Format(timestampLayout), r.CreatedBy,
	}
}

// WriteJSON writes the reservations as an indented JSON array.
func WriteJSON(w io.Writer, list []*models.ReservationDetails) error {
	rows := make([]Row, 0, len(list))
	for _, r := range list {
		rows = append(rows, NewRow(r))
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(rows)
}

// WriteXLSX writes a workbook with a reservations sheet and, when grid is
// non-nil, an occupancy sheet.
func WriteXLSX(w io.Writer, list []*models.ReservationDetails, grid *google.OccupancyGrid) error {
	f := excelize.NewFile()
	defer f.Close()

	index, err := f.NewSheet(reservationsSheet)
	if err != nil {
		return fmt.Errorf("error creating sheet: %w", err)
	}
	f.SetActiveSheet(index)

	if err := writeReservations(f, list); err != nil {
		return err
	}
	if grid != nil {
		if err := writeOccupancy(f, grid); err != nil {
			return err
		}
	}

	_ = f.DeleteSheet("Sheet1")

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("error writing workbook: %w", err)
	}
	return nil
}

func writeReservations(f *excelize.File, list []*models.ReservationDetails) error {
	header := make([]interface{}, len(columns))
	for i, c := range columns {
		header[i] = c
	}
	if err := f.SetSheetRow(reservationsSheet, "A1", &header); err != nil {
		return fmt.Errorf("error writing header: %w", err)
	}

	for i, r := range list {
		cell, _ := excelize.CoordinatesToCellName(1, i+2)
		values := NewRow(r).values()
		if err := f.SetSheetRow(reservationsSheet, cell, &values); err != nil {
			return fmt.Errorf("error writing row %d: %w", i+2, err)
		}
	}

	lastCol, _ := excelize.ColumnNumberToName(len(columns))
	style, _ := f.NewStyle(&excelize.Style{
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"#DDEBF7"}, Pattern: 1},
		Font:      &excelize.Font{Bold: true},
		Alignment: &excelize.Alignment{Horizontal: "center"},
	})
	_ = f.SetCellStyle(reservationsSheet, "A1", lastCol+"1", style)

	money, _ := f.NewStyle(&excelize.Style{NumFmt: 4})
	if len(list) > 0 {
		_ = f.SetCellStyle(reservationsSheet, "L2", fmt.Sprintf("L%d", len(list)+1), money)
	}

	_ = f.SetColWidth(reservationsSheet, "A", lastCol, 16)
	_ = f.SetColWidth(reservationsSheet, "D", "E", 25)
	_ = f.SetPanes(reservationsSheet, &excelize.Panes{Freeze: true, YSplit: 1, TopLeftCell: "A2", ActivePane: "bottomLeft"})
	return nil
}

func writeOccupancy(f *excelize.File, g *google.OccupancyGrid) error {
	if _, err := f.NewSheet(occupancySheet); err != nil {
		return fmt.Errorf("error creating sheet: %w", err)
	}

	_ = f.SetCellValue(occupancySheet, "A1", fmt.Sprintf("Nights from %s", models.FormatDate(g.From)))
	title, _ := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true, Size: 14}})
	_ = f.SetCellStyle(occupancySheet, "A1", "A1", title)

	header, _ := f.NewStyle(&excelize.Style{
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"#DDEBF7"}, Pattern: 1},
		Font:      &excelize.Font{Bold: true},
		Alignment: &excelize.Alignment{Horizontal: "center"},
	})
	for j, night := range g.Nights {
		cell, _ := excelize.CoordinatesToCellName(j+2, 2)
		_ = f.SetCellValue(occupancySheet, cell, night.Format("Mon 01-02"))
		_ = f.SetCellStyle(occupancySheet, cell, cell, header)
	}

	styles := make(map[string]int)
	for _, state := range []string{google.CellFree, google.CellPending, google.CellBooked, google.CellBlocked} {
		id, err := f.NewStyle(&excelize.Style{
			Fill:      excelize.Fill{Type: "pattern", Color: []string{stateColor(state)}, Pattern: 1},
			Alignment: &excelize.Alignment{Vertical: "top", WrapText: true},
		})
		if err != nil {
			return fmt.Errorf("error creating style: %w", err)
		}
		styles[state] = id
	}

	for i, site := range g.Sites {
		row := i + 3
		label, _ := excelize.CoordinatesToCellName(1, row)
		_ = f.SetCellValue(occupancySheet, label, site.SiteNumber)
		for j, c := range g.Cells[i] {
			cell, _ := excelize.CoordinatesToCellName(j+2, row)
			_ = f.SetCellValue(occupancySheet, cell, c.Text)
			_ = f.SetCellStyle(occupancySheet, cell, cell, styles[c.State])
		}
	}

	lastCol, _ := excelize.ColumnNumberToName(len(g.Nights) + 1)
	_ = f.SetColWidth(occupancySheet, "A", "A", 12)
	_ = f.SetColWidth(occupancySheet, "B", lastCol, 22)
	return nil
}

func stateColor(state string) string {
	switch state {
	case google.CellBooked:
		return "#FFC7CE"
	case google.CellPending:
		return "#FFEB9C"
	case google.CellBlocked:
		return "#D9D9D9"
	default:
		return "#C6EFCE"
	}
}

// SaveFile writes an export into dir and returns its path.
func SaveFile(dir, format string, from, to time.Time, list []*models.ReservationDetails, grid *google.OccupancyGrid) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("error creating export directory: %w", err)
	}

	name := fmt.Sprintf("reservations_%s_to_%s.%s", models.FormatDate(from), models.FormatDate(to), format)
	path := filepath.Join(dir, name)
	file, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("error creating file: %w", err)
	}

	switch format {
	case FormatJSON:
		err = WriteJSON(file, list)
	case FormatXLSX:
		err = WriteXLSX(file, list, grid)
	default:
		err = fmt.Errorf("unknown export format %q", format)
	}
	if closeErr := file.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		_ = os.Remove(path)
		return "", err
	}
	return path, nil
}
