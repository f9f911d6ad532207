package service

import (
	"context"
	"strconv"
	"strings"
	"time"

	"campspots/internal/domain"
	"campspots/internal/models"

	"github.com/rs/zerolog"
)

// AvailabilityView lists bookable campgrounds and, when one is selected, its sites.
type AvailabilityView struct {
	Campgrounds []*models.Campground `json:"campgrounds"`
	Selected    *models.Campground   `json:"selected,omitempty"`
	Sites       []*models.Site       `json:"sites,omitempty"`
}

type CatalogService struct {
	repo   domain.CatalogRepository
	logger *zerolog.Logger
}

func NewCatalogService(repo domain.CatalogRepository, logger *zerolog.Logger) *CatalogService {
	return &CatalogService{repo: repo, logger: logger}
}

func (s *CatalogService) Availability(ctx context.Context, campgroundID *int64) (*AvailabilityView, error) {
	campgrounds, err := s.repo.ListCampgrounds(ctx, true)
	if err != nil {
		return nil, storeError(err, "campgrounds")
	}
	view := &AvailabilityView{Campgrounds: campgrounds}
	if campgroundID == nil {
		return view, nil
	}

	cg, err := s.repo.GetCampground(ctx, *campgroundID)
	if err != nil {
		return nil, storeError(err, "campground %d", *campgroundID)
	}
	if !cg.Active {
		return nil, domain.NotFoundf("campground %d", *campgroundID)
	}
	sites, err := s.repo.ListSites(ctx, cg.ID, true)
	if err != nil {
		return nil, storeError(err, "campground %d sites", cg.ID)
	}
	view.Selected = cg
	view.Sites = sites
	return view, nil
}

func (s *CatalogService) ListCampgrounds(ctx context.Context, activeOnly bool) ([]*models.Campground, error) {
	list, err := s.repo.ListCampgrounds(ctx, activeOnly)
	if err != nil {
		return nil, storeError(err, "campgrounds")
	}
	return list, nil
}

func (s *CatalogService) GetCampground(ctx context.Context, id int64) (*models.Campground, error) {
	cg, err := s.repo.GetCampground(ctx, id)
	if err != nil {
		return nil, storeError(err, "campground %d", id)
	}
	return cg, nil
}

func (s *CatalogService) CreateCampground(ctx context.Context, cg *models.Campground) error {
	cg.Name = strings.TrimSpace(cg.Name)
	if cg.Name == "" {
		return domain.Validationf("campground name is required")
	}
	if err := s.repo.CreateCampground(ctx, cg); err != nil {
		return storeError(err, "campground %q", cg.Name)
	}
	s.logger.Info().Int64("campground_id", cg.ID).Str("name", cg.Name).Msg("campground created")
	return nil
}

func (s *CatalogService) UpdateCampground(ctx context.Context, cg *models.Campground) error {
	cg.Name = strings.TrimSpace(cg.Name)
	if cg.Name == "" {
		return domain.Validationf("campground name is required")
	}
	if err := s.repo.UpdateCampground(ctx, cg); err != nil {
		return storeError(err, "campground %d", cg.ID)
	}
	s.logger.Info().Int64("campground_id", cg.ID).Bool("active", cg.Active).Msg("campground updated")
	return nil
}

func (s *CatalogService) ListSites(ctx context.Context, campgroundID int64, activeOnly bool) ([]*models.Site, error) {
	if _, err := s.repo.GetCampground(ctx, campgroundID); err != nil {
		return nil, storeError(err, "campground %d", campgroundID)
	}
	sites, err := s.repo.ListSites(ctx, campgroundID, activeOnly)
	if err != nil {
		return nil, storeError(err, "campground %d sites", campgroundID)
	}
	return sites, nil
}

func (s *CatalogService) GetSite(ctx context.Context, id int64) (*models.Site, error) {
	site, err := s.repo.GetSite(ctx, id)
	if err != nil {
		return nil, storeError(err, "site %d", id)
	}
	return site, nil
}

func validateSite(site *models.Site) error {
	site.SiteNumber = strings.TrimSpace(site.SiteNumber)
	if site.SiteNumber == "" {
		return domain.Validationf("site number is required")
	}
	if site.PricePerNight < 0 {
		return domain.Validationf("price per night must not be negative")
	}
	if site.MaxOccupancy < 1 {
		return domain.Validationf("max occupancy must be at least 1")
	}
	if site.MaxVehicles < 0 {
		return domain.Validationf("max vehicles must not be negative")
	}
	return nil
}

func (s *CatalogService) CreateSite(ctx context.Context, site *models.Site) error {
	if site.MaxOccupancy == 0 {
		site.MaxOccupancy = models.DefaultMaxOccupancy
	}
	if err := validateSite(site); err != nil {
		return err
	}
	if err := s.repo.CreateSite(ctx, site); err != nil {
		return storeError(err, "site %s", site.SiteNumber)
	}
	s.logger.Info().Int64("site_id", site.ID).Int64("campground_id", site.CampgroundID).Msg("site created")
	return nil
}

// UpdateSite changes a site. Reservations already made keep their frozen totals.
func (s *CatalogService) UpdateSite(ctx context.Context, site *models.Site) error {
	if err := validateSite(site); err != nil {
		return err
	}
	if err := s.repo.UpdateSite(ctx, site); err != nil {
		return storeError(err, "site %d", site.ID)
	}
	s.logger.Info().Int64("site_id", site.ID).Str("price", site.PricePerNight.String()).Msg("site updated")
	return nil
}

func (s *CatalogService) CreateBlockedDate(ctx context.Context, b *models.BlockedDate) error {
	if b.StartDate.IsZero() || b.EndDate.IsZero() {
		return domain.Validationf("start and end dates are required")
	}
	if b.EndDate.Before(b.StartDate) {
		return domain.Validationf("end date must not be before start date")
	}
	if b.SiteID != nil && b.CampgroundID != nil {
		return domain.Validationf("a blocked date applies to a site or a campground, not both")
	}
	b.Reason = strings.TrimSpace(b.Reason)
	if err := s.repo.CreateBlockedDate(ctx, b); err != nil {
		return storeError(err, "blocked date %s scope", b.Scope())
	}
	s.logger.Info().Int64("blocked_date_id", b.ID).Str("scope", b.Scope()).
		Str("start", models.FormatDate(b.StartDate)).Str("end", models.FormatDate(b.EndDate)).Msg("dates blocked")
	return nil
}

func (s *CatalogService) ListBlockedDates(ctx context.Context, from time.Time) ([]*models.BlockedDate, error) {
	list, err := s.repo.ListBlockedDates(ctx, from)
	if err != nil {
		return nil, storeError(err, "blocked dates")
	}
	return list, nil
}

func (s *CatalogService) DeleteBlockedDate(ctx context.Context, id int64) error {
	if err := s.repo.DeleteBlockedDate(ctx, id); err != nil {
		return storeError(err, "blocked date %d", id)
	}
	return nil
}

// SeedCatalog loads campgrounds and their site ranges into an empty store.
// It returns how many campgrounds were created.
func (s *CatalogService) SeedCatalog(ctx context.Context, seeds []models.CampgroundSeed) (int, error) {
	count, err := s.repo.CountCampgrounds(ctx)
	if err != nil {
		return 0, storeError(err, "campgrounds")
	}
	if count > 0 {
		s.logger.Debug().Int("existing", count).Msg("catalog already populated, seed skipped")
		return 0, nil
	}

	created := 0
	for _, seed := range seeds {
		cg := seed.Campground
		cg.Active = true
		if err := s.CreateCampground(ctx, &cg); err != nil {
			return created, err
		}
		created++

		for _, rng := range seed.Sites {
			if rng.To < rng.From {
				return created, domain.Validationf("campground %q: site range %d-%d is reversed", cg.Name, rng.From, rng.To)
			}
			for n := rng.From; n <= rng.To; n++ {
				site := siteFromSeed(cg.ID, n, rng)
				if err := s.CreateSite(ctx, site); err != nil {
					return created, err
				}
			}
		}
	}

	s.logger.Info().Int("campgrounds", created).Msg("catalog seeded")
	return created, nil
}

func siteFromSeed(campgroundID int64, number int, rng models.SiteRangeSeed) *models.Site {
	site := &models.Site{
		CampgroundID:  campgroundID,
		SiteNumber:    strconv.Itoa(number),
		SiteType:      rng.SiteType,
		MaxOccupancy:  rng.MaxOccupancy,
		MaxVehicles:   rng.MaxVehicles,
		Hookups:       rng.Hookups,
		PricePerNight: rng.PricePerNight,
		Notes:         rng.Notes,
		Active:        true,
	}
	if site.MaxOccupancy == 0 {
		site.MaxOccupancy = models.DefaultMaxOccupancy
	}
	if site.MaxVehicles == 0 {
		site.MaxVehicles = models.DefaultMaxVehicles
	}
	if site.PricePerNight == 0 {
		site.PricePerNight = models.DefaultPricePerNight
	}
	return site
}
