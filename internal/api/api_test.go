package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"campspots/internal/config"
	"campspots/internal/database"
	"campspots/internal/gateway"
	"campspots/internal/models"
	"campspots/internal/repository"
	"campspots/internal/service"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2024, 7, 1, 12, 0, 0, 0, time.UTC)

const (
	testAdminUser     = "ranger"
	testAdminPassword = "s3cret-pass"
	testJWTSecret     = "test-jwt-secret"
	readOnlyKey       = "key-readonly"
	fullKey           = "key-full"
)

type testAPI struct {
	db      *database.DB
	sandbox *gateway.Sandbox
	catalog *service.CatalogService
	booking *service.BookingService
	server  *HTTPServer
	ts      *httptest.Server
	sites   []*models.Site
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	hash, err := HashPassword(testAdminPassword)
	require.NoError(t, err)

	return &config.Config{
		App: config.AppConfig{Name: "campspots", Timezone: "UTC"},
		API: config.APIConfig{
			Enabled: true,
			HTTP:    config.APIHTTPConfig{Enabled: true, PublicBaseURL: "http://localhost:8080"},
			Auth: config.APIAuthConfig{
				Enabled:      true,
				HeaderAPIKey: "x-api-key",
				HeaderExtra:  "x-api-extra",
				APIKeys: []config.APIClientKey{
					{Key: readOnlyKey, Extra: "ro", Name: "reports", Permissions: []string{PermReadReservations, PermReadCatalog}},
					{Key: fullKey, Extra: "rw", Name: "front-desk"},
				},
			},
		},
		Admin: config.AdminConfig{
			Username:     testAdminUser,
			PasswordHash: hash,
			JWTSecret:    testJWTSecret,
			TokenTTL:     time.Hour,
		},
		Booking: config.BookingConfig{Currency: "USD", PendingTTL: time.Hour, IdempotencyTTL: time.Hour},
	}
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()
	ctx := context.Background()
	logger := zerolog.New(io.Discard)

	db, err := database.NewDB(filepath.Join(t.TempDir(), "campspots.db"), &logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	catalog := service.NewCatalogService(db, &logger)
	_, err = catalog.SeedCatalog(ctx, []models.CampgroundSeed{{
		Campground: models.Campground{Name: "Pine Hollow", Location: "North ridge"},
		Sites:      []models.SiteRangeSeed{{From: 1, To: 2, SiteType: "tent", MaxOccupancy: 4, MaxVehicles: 1, PricePerNight: 2500}},
	}})
	require.NoError(t, err)
	cgs, err := catalog.ListCampgrounds(ctx, true)
	require.NoError(t, err)
	sites, err := catalog.ListSites(ctx, cgs[0].ID, true)
	require.NoError(t, err)
	require.Len(t, sites, 2)

	cfg := testConfig(t)
	sandbox := gateway.NewSandbox(false)
	booking := service.NewBookingService(db, sandbox, nil, nil, service.BookingOptionsFromConfig(cfg), &logger)
	booking.SetClock(func() time.Time { return testNow })

	srv := NewHTTPServer(cfg, Deps{
		Booking:     booking,
		Catalog:     catalog,
		Idempotency: repository.NewMemoryIdempotencyStore(),
		Store:       db,
	}, &logger)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	return &testAPI{db: db, sandbox: sandbox, catalog: catalog, booking: booking, server: srv, ts: ts, sites: sites}
}

// do sends a request and decodes a JSON response into out when out is non-nil.
func (a *testAPI) do(t *testing.T, method, path string, body any, headers map[string]string, out any) *http.Response {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequest(method, a.ts.URL+path, reader)
	require.NoError(t, err)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })

	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp
}

func fullAccess() map[string]string {
	return map[string]string{"x-api-key": fullKey, "x-api-extra": "rw"}
}

func readOnly() map[string]string {
	return map[string]string{"x-api-key": readOnlyKey, "x-api-extra": "ro"}
}

func bookingPayload(arrival, departure string) map[string]any {
	return map[string]any{
		"customer_name":  "Ada Lovelace",
		"customer_email": "ada@example.com",
		"customer_phone": "555-0100",
		"arrival_date":   arrival,
		"departure_date": departure,
		"num_occupants":  2,
		"num_vehicles":   1,
	}
}
