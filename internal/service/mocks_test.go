package service

import (
	"context"
	"time"

	"campspots/internal/availability"
	"campspots/internal/domain"
	"campspots/internal/models"

	"github.com/stretchr/testify/mock"
)

type mockRepo struct {
	mock.Mock
}

func (m *mockRepo) GetSite(ctx context.Context, id int64) (*models.Site, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Site), args.Error(1)
}
func (m *mockRepo) GetCampground(ctx context.Context, id int64) (*models.Campground, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Campground), args.Error(1)
}
func (m *mockRepo) OccupiedRanges(ctx context.Context, siteID int64, w availability.DateRange) ([]availability.DateRange, error) {
	args := m.Called(ctx, siteID, w)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]availability.DateRange), args.Error(1)
}
func (m *mockRepo) CreateReservationWithLock(ctx context.Context, r *models.Reservation) error {
	return m.Called(ctx, r).Error(0)
}
func (m *mockRepo) GetReservation(ctx context.Context, id int64) (*models.Reservation, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Reservation), args.Error(1)
}
func (m *mockRepo) GetReservationDetails(ctx context.Context, id int64) (*models.ReservationDetails, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.ReservationDetails), args.Error(1)
}
func (m *mockRepo) ListReservations(ctx context.Context, f models.ReservationFilter) ([]*models.ReservationDetails, error) {
	args := m.Called(ctx, f)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.ReservationDetails), args.Error(1)
}
func (m *mockRepo) RecentReservations(ctx context.Context, limit int) ([]*models.ReservationDetails, error) {
	args := m.Called(ctx, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.ReservationDetails), args.Error(1)
}
func (m *mockRepo) CountReservationsByStatus(ctx context.Context) (map[string]int, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[string]int), args.Error(1)
}
func (m *mockRepo) ListStalePending(ctx context.Context, cutoff time.Time, afterID int64, limit int) ([]*models.Reservation, error) {
	args := m.Called(ctx, cutoff, afterID, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Reservation), args.Error(1)
}
func (m *mockRepo) AttachGatewaySession(ctx context.Context, id, v int64, sid string) error {
	return m.Called(ctx, id, v, sid).Error(0)
}
func (m *mockRepo) ConfirmReservation(ctx context.Context, id, v int64, pid string) error {
	return m.Called(ctx, id, v, pid).Error(0)
}
func (m *mockRepo) CancelReservation(ctx context.Context, id, v int64) error {
	return m.Called(ctx, id, v).Error(0)
}

type mockGateway struct {
	mock.Mock
}

func (m *mockGateway) CreatePayableSession(ctx context.Context, req domain.CheckoutRequest) (*domain.CheckoutSession, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.CheckoutSession), args.Error(1)
}
func (m *mockGateway) GetSessionSettlement(ctx context.Context, sid string) (*domain.Settlement, error) {
	args := m.Called(ctx, sid)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Settlement), args.Error(1)
}
func (m *mockGateway) ExpireSession(ctx context.Context, sid string) error {
	return m.Called(ctx, sid).Error(0)
}

type mockEventBus struct {
	mock.Mock
}

func (m *mockEventBus) PublishJSON(et string, p interface{}) error { return m.Called(et, p).Error(0) }

type mockWorker struct {
	mock.Mock
}

func (m *mockWorker) EnqueueTask(ctx context.Context, tt string, rid int64, d *models.ReservationDetails) error {
	return m.Called(ctx, tt, rid, d).Error(0)
}
