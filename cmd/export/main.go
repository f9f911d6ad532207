package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"campspots/internal/config"
	"campspots/internal/database"
	"campspots/internal/export"
	"campspots/internal/google"
	"campspots/internal/logging"
	"campspots/internal/models"
	"campspots/internal/service"

	"github.com/rs/zerolog"
)

type options struct {
	format       string
	from         string
	to           string
	campgroundID int64
	outDir       string
	pushSheets   bool
}

func main() {
	var opts options
	flag.StringVar(&opts.format, "format", export.FormatXLSX, "output format: xlsx or json")
	flag.StringVar(&opts.from, "from", "", "first arrival date, YYYY-MM-DD (default today)")
	flag.StringVar(&opts.to, "to", "", "last arrival date, YYYY-MM-DD (default from + 30 days)")
	flag.Int64Var(&opts.campgroundID, "campground", 0, "limit to one campground and add its occupancy grid")
	flag.StringVar(&opts.outDir, "out", "", "output directory (default exports.path)")
	flag.BoolVar(&opts.pushSheets, "sheets", false, "also rewrite the Google spreadsheet")
	flag.Parse()

	if err := run(opts); err != nil {
		log.Fatalf("export: %v", err)
	}
}

func run(opts options) error {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "configs/config.yaml"
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	baseLogger, closer, err := logging.New(cfg.Logging, cfg.App)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	if closer != nil {
		defer (func() { _ = closer.Close() })()
	}
	logger := logging.Component(baseLogger, "export")

	from, to, err := exportWindow(opts, cfg.Location())
	if err != nil {
		return err
	}
	if opts.format != export.FormatXLSX && opts.format != export.FormatJSON {
		return fmt.Errorf("unsupported format %q", opts.format)
	}
	if opts.outDir == "" {
		opts.outDir = cfg.Exports.Path
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := database.NewDB(cfg.Database.Path, logger)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	catalog := service.NewCatalogService(db, logger)

	filter := models.ReservationFilter{CampgroundID: opts.campgroundID, ArrivalFrom: from, ArrivalTo: to}
	list, err := db.ListReservations(ctx, filter)
	if err != nil {
		return err
	}

	var grid *google.OccupancyGrid
	if opts.campgroundID != 0 {
		grid, err = occupancyGrid(ctx, db, catalog, opts.campgroundID, from, to.AddDate(0, 0, 1))
		if err != nil {
			return err
		}
	}

	path, err := export.SaveFile(opts.outDir, opts.format, from, to, list, grid)
	if err != nil {
		return err
	}
	logger.Info().Str("file", path).Int("rows", len(list)).Msg("reservations exported")

	if opts.pushSheets {
		return pushToSheets(ctx, cfg, db, grid, logger)
	}
	return nil
}

func exportWindow(opts options, loc *time.Location) (time.Time, time.Time, error) {
	from := models.DateOf(time.Now().In(loc))
	if opts.from != "" {
		d, err := models.ParseDate(opts.from)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("invalid -from %q: %w", opts.from, err)
		}
		from = d
	}
	to := from.AddDate(0, 0, 30)
	if opts.to != "" {
		d, err := models.ParseDate(opts.to)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("invalid -to %q: %w", opts.to, err)
		}
		to = d
	}
	if to.Before(from) {
		return time.Time{}, time.Time{}, errors.New("-to must not be before -from")
	}
	return from, to, nil
}

func occupancyGrid(ctx context.Context, db *database.DB, catalog *service.CatalogService, campgroundID int64, from, to time.Time) (*google.OccupancyGrid, error) {
	sites, err := catalog.ListSites(ctx, campgroundID, false)
	if err != nil {
		return nil, err
	}
	holding, err := db.ListReservations(ctx, models.ReservationFilter{CampgroundID: campgroundID, ArrivalTo: to})
	if err != nil {
		return nil, err
	}
	blocked, err := catalog.ListBlockedDates(ctx, from)
	if err != nil {
		return nil, err
	}
	return google.BuildOccupancyGrid(from, to, sites, holding, blocked)
}

// pushToSheets rewrites the whole reservations tab and, with a grid, the occupancy tab.
func pushToSheets(ctx context.Context, cfg *config.Config, db *database.DB, grid *google.OccupancyGrid, logger *zerolog.Logger) error {
	if cfg.Google.GoogleCredentialsFile == "" || cfg.Google.ReservationSpreadSheetID == "" {
		return errors.New("google credentials_file and reservations_spreadsheet_id are required for -sheets")
	}
	sheets, err := google.NewSheetsService(ctx, cfg.Google.GoogleCredentialsFile, cfg.Google.ReservationSpreadSheetID, logger)
	if err != nil {
		return err
	}

	all, err := db.ListReservations(ctx, models.ReservationFilter{})
	if err != nil {
		return err
	}
	if err := sheets.ReplaceReservationsSheet(ctx, all); err != nil {
		return err
	}
	logger.Info().Int("rows", len(all)).Msg("reservations sheet rewritten")

	if grid != nil {
		if err := sheets.UpdateOccupancySheet(ctx, grid); err != nil {
			return err
		}
		logger.Info().Int("sites", len(grid.Sites)).Int("nights", len(grid.Nights)).Msg("occupancy sheet rewritten")
	}
	return nil
}
