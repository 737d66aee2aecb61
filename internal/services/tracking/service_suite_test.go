package tracking

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/BeanBarn/BrewTrack/internal/broker/messages"
	"github.com/BeanBarn/BrewTrack/internal/models"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/suite"

	trackmocks "github.com/BeanBarn/BrewTrack/internal/services/tracking/mocks"
)

const testTopic = "tracking.updated"

var testShop = models.Place{Lat: -26.1467, Lng: 28.0436, Address: "44 Stanley Ave"}

type ServiceSuite struct {
	suite.Suite

	repo     *trackmocks.MockRepository
	geocoder *trackmocks.MockGeocoder
	producer *trackmocks.MockProducer
	limiter  *trackmocks.MockLimiter
	svc      *Service
}

func (s *ServiceSuite) SetupTest() {
	s.repo = &trackmocks.MockRepository{}
	s.geocoder = &trackmocks.MockGeocoder{}
	s.producer = &trackmocks.MockProducer{}
	s.limiter = &trackmocks.MockLimiter{}
	s.svc = New(s.repo, s.geocoder, s.producer, testTopic, s.limiter, Settings{
		Shop:       testShop,
		StaleAfter: 90 * time.Second,
		PingLimit:  12,
		PingWindow: time.Minute,
	}, slog.Default())
}

func (s *ServiceSuite) TestStart_GeocodesAndWritesRecord() {
	s.geocoder.On("Resolve", mock.Anything, "1 Main Rd").
		Return(models.Coordinate{Lat: -26.1517, Lng: 28.0580}, nil).Once()
	s.repo.On("UpsertRecord", mock.Anything, mock.MatchedBy(func(rec *models.TrackingRecord) bool {
		if rec.OrderID != "o1" || rec.CourierID != "c1" || !rec.IsActive {
			return false
		}
		// курьер стартует из кофейни
		if rec.Driver.Lat != testShop.Lat || rec.Driver.Lng != testShop.Lng {
			return false
		}
		if rec.Customer.Lat != -26.1517 || rec.Customer.Address != "1 Main Rd" {
			return false
		}
		return rec.NextSweepAt.Sub(rec.StartedAt) == 90*time.Second
	})).Return(nil).Once()
	s.producer.On("Publish", mock.Anything, testTopic, []byte("o1"), mock.Anything).Return(nil).Once()

	rec, err := s.svc.Start(context.Background(), StartInput{OrderID: "o1", CourierID: "c1", CustomerAddress: "1 Main Rd"})
	s.Require().NoError(err)
	s.Require().True(rec.IsActive)
	s.repo.AssertExpectations(s.T())
	s.geocoder.AssertExpectations(s.T())
	s.producer.AssertExpectations(s.T())
}

func (s *ServiceSuite) TestStart_SuppliedCoordSkipsGeocoder() {
	s.repo.On("UpsertRecord", mock.Anything, mock.MatchedBy(func(rec *models.TrackingRecord) bool {
		return rec.Customer.Lat == -26.2041 && rec.Customer.Lng == 28.0473 && rec.Customer.Address == "1 Main Rd"
	})).Return(nil).Once()
	s.producer.On("Publish", mock.Anything, testTopic, []byte("o1"), mock.Anything).Return(nil).Once()

	_, err := s.svc.Start(context.Background(), StartInput{
		OrderID:         "o1",
		CourierID:       "c1",
		CustomerAddress: "1 Main Rd",
		CustomerCoord:   &models.Coordinate{Lat: -26.2041, Lng: 28.0473},
	})
	s.Require().NoError(err)
	s.geocoder.AssertNotCalled(s.T(), "Resolve", mock.Anything, mock.Anything)

	// координата вне диапазона отклоняется на входе
	_, err = s.svc.Start(context.Background(), StartInput{
		OrderID:         "o2",
		CourierID:       "c1",
		CustomerAddress: "1 Main Rd",
		CustomerCoord:   &models.Coordinate{Lat: 91, Lng: 0},
	})
	s.Require().Error(err)
}

func (s *ServiceSuite) TestStart_ValidateErrors() {
	_, err := s.svc.Start(context.Background(), StartInput{CourierID: "c", CustomerAddress: "a"})
	s.Require().Error(err)
	_, err = s.svc.Start(context.Background(), StartInput{OrderID: "o", CustomerAddress: "a"})
	s.Require().Error(err)
	_, err = s.svc.Start(context.Background(), StartInput{OrderID: "o", CourierID: "c"})
	s.Require().Error(err)
	s.repo.AssertNotCalled(s.T(), "UpsertRecord", mock.Anything, mock.Anything)
}

func (s *ServiceSuite) TestUpdateDriverLocation_HappyPath() {
	active := &models.TrackingRecord{OrderID: "o1", CourierID: "c1", IsActive: true}
	at := time.Now().UTC()
	loc := models.DriverLocation{Lat: -26.1490, Lng: 28.0500, At: at}
	updated := &models.TrackingRecord{OrderID: "o1", CourierID: "c1", IsActive: true, Driver: loc}

	s.repo.On("GetRecord", mock.Anything, "o1").Return(active, nil).Once()
	s.limiter.On("Allow", mock.Anything, "courier:c1:pings", int64(12), time.Minute).
		Return(true, int64(1), nil).Once()
	s.repo.On("UpdateDriverLocation", mock.Anything, "o1", loc, at.Add(90*time.Second)).
		Return(updated, nil).Once()
	s.repo.On("InsertPing", mock.Anything, mock.MatchedBy(func(p *models.LocationPing) bool {
		return p.OrderID == "o1" && p.Lat == loc.Lat && p.PingAt.Equal(at)
	})).Return(nil).Once()
	s.producer.On("Publish", mock.Anything, testTopic, []byte("o1"), mock.Anything).Return(nil).Once()

	out, err := s.svc.UpdateDriverLocation(context.Background(), "o1", loc)
	s.Require().NoError(err)
	s.Require().Equal(loc.Lat, out.Driver.Lat)
	s.repo.AssertExpectations(s.T())
	s.limiter.AssertExpectations(s.T())
}

func (s *ServiceSuite) TestUpdateDriverLocation_NoRecord() {
	s.repo.On("GetRecord", mock.Anything, "o1").Return((*models.TrackingRecord)(nil), nil).Once()
	_, err := s.svc.UpdateDriverLocation(context.Background(), "o1", models.DriverLocation{Lat: 1, Lng: 1})
	s.Require().ErrorIs(err, ErrTrackingNotFound)
}

func (s *ServiceSuite) TestUpdateDriverLocation_InactiveRecord() {
	s.repo.On("GetRecord", mock.Anything, "o1").
		Return(&models.TrackingRecord{OrderID: "o1", IsActive: false}, nil).Once()
	_, err := s.svc.UpdateDriverLocation(context.Background(), "o1", models.DriverLocation{Lat: 1, Lng: 1})
	s.Require().ErrorIs(err, ErrTrackingNotFound)
	s.limiter.AssertNotCalled(s.T(), "Allow", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func (s *ServiceSuite) TestUpdateDriverLocation_RateLimited() {
	active := &models.TrackingRecord{OrderID: "o1", CourierID: "c1", IsActive: true}
	s.repo.On("GetRecord", mock.Anything, "o1").Return(active, nil).Once()
	s.limiter.On("Allow", mock.Anything, "courier:c1:pings", int64(12), time.Minute).
		Return(false, int64(13), nil).Once()

	_, err := s.svc.UpdateDriverLocation(context.Background(), "o1", models.DriverLocation{Lat: 1, Lng: 1})
	s.Require().ErrorIs(err, ErrRateLimited)
	s.repo.AssertNotCalled(s.T(), "UpdateDriverLocation", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func (s *ServiceSuite) TestUpdateDriverLocation_LimiterDown_PingAllowed() {
	active := &models.TrackingRecord{OrderID: "o1", CourierID: "c1", IsActive: true}
	updated := &models.TrackingRecord{OrderID: "o1", IsActive: true}

	s.repo.On("GetRecord", mock.Anything, "o1").Return(active, nil).Once()
	s.limiter.On("Allow", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(false, int64(0), errors.New("redis down")).Once()
	s.repo.On("UpdateDriverLocation", mock.Anything, "o1", mock.Anything, mock.Anything).
		Return(updated, nil).Once()
	s.repo.On("InsertPing", mock.Anything, mock.Anything).Return(nil).Once()
	s.producer.On("Publish", mock.Anything, testTopic, mock.Anything, mock.Anything).Return(nil).Once()

	_, err := s.svc.UpdateDriverLocation(context.Background(), "o1", models.DriverLocation{Lat: 1, Lng: 1})
	s.Require().NoError(err)
}

func (s *ServiceSuite) TestUpdateDriverLocation_OutOfRange() {
	_, err := s.svc.UpdateDriverLocation(context.Background(), "o1", models.DriverLocation{Lat: 91, Lng: 0})
	s.Require().Error(err)
	_, err = s.svc.UpdateDriverLocation(context.Background(), "o1", models.DriverLocation{Lat: 0, Lng: -181})
	s.Require().Error(err)
	s.repo.AssertNotCalled(s.T(), "GetRecord", mock.Anything, mock.Anything)
}

func (s *ServiceSuite) TestUpdateDriverLocation_PingInsertFailureIgnored() {
	active := &models.TrackingRecord{OrderID: "o1", CourierID: "c1", IsActive: true}
	updated := &models.TrackingRecord{OrderID: "o1", IsActive: true}

	s.repo.On("GetRecord", mock.Anything, "o1").Return(active, nil).Once()
	s.limiter.On("Allow", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(true, int64(1), nil).Once()
	s.repo.On("UpdateDriverLocation", mock.Anything, "o1", mock.Anything, mock.Anything).
		Return(updated, nil).Once()
	s.repo.On("InsertPing", mock.Anything, mock.Anything).Return(errors.New("pg down")).Once()
	s.producer.On("Publish", mock.Anything, testTopic, mock.Anything, mock.Anything).Return(nil).Once()

	_, err := s.svc.UpdateDriverLocation(context.Background(), "o1", models.DriverLocation{Lat: 1, Lng: 1})
	s.Require().NoError(err)
}

func (s *ServiceSuite) TestStop_PublishesStopped() {
	stopped := &models.TrackingRecord{OrderID: "o1", IsActive: false}
	s.repo.On("StopRecord", mock.Anything, "o1", mock.Anything).Return(stopped, nil).Once()
	s.producer.On("Publish", mock.Anything, testTopic, []byte("o1"), mock.Anything).Return(nil).Once()

	out, err := s.svc.Stop(context.Background(), "o1")
	s.Require().NoError(err)
	s.Require().False(out.IsActive)
}

func (s *ServiceSuite) TestStop_NotFound() {
	s.repo.On("StopRecord", mock.Anything, "o1", mock.Anything).
		Return((*models.TrackingRecord)(nil), nil).Once()
	_, err := s.svc.Stop(context.Background(), "o1")
	s.Require().ErrorIs(err, ErrTrackingNotFound)
}

func (s *ServiceSuite) TestGet_AbsenceIsNilNotError() {
	s.repo.On("GetRecord", mock.Anything, "o1").Return((*models.TrackingRecord)(nil), nil).Once()

	// отсутствие записи — штатное "трекинга нет", не ошибка
	rec, err := s.svc.Get(context.Background(), "o1")
	s.Require().NoError(err)
	s.Require().Nil(rec)
}

func (s *ServiceSuite) TestSubscribe_InitialSnapshot() {
	active := &models.TrackingRecord{OrderID: "o1", IsActive: true}
	s.repo.On("GetRecord", mock.Anything, "o1").Return(active, nil).Once()

	got := make(chan *models.TrackingRecord, 4)
	unsubscribe, err := s.svc.Subscribe(context.Background(), "o1", func(r *models.TrackingRecord) { got <- r })
	s.Require().NoError(err)
	defer unsubscribe()

	s.Require().NotNil(<-got)
}

func (s *ServiceSuite) TestSubscribe_InactiveRecordIsNilSnapshot() {
	inactive := &models.TrackingRecord{OrderID: "o1", IsActive: false}
	s.repo.On("GetRecord", mock.Anything, "o1").Return(inactive, nil).Once()

	got := make(chan *models.TrackingRecord, 4)
	unsubscribe, err := s.svc.Subscribe(context.Background(), "o1", func(r *models.TrackingRecord) { got <- r })
	s.Require().NoError(err)
	defer unsubscribe()

	s.Require().Nil(<-got)
}

func (s *ServiceSuite) TestApplyUpdate_FansOutReloadedRecord() {
	active := &models.TrackingRecord{OrderID: "o1", IsActive: true}
	s.repo.On("GetRecord", mock.Anything, "o1").Return(active, nil).Once()

	got := make(chan *models.TrackingRecord, 4)
	unsubscribe := s.svc.hub.Subscribe("o1", func(r *models.TrackingRecord) { got <- r })
	defer unsubscribe()

	err := s.svc.ApplyUpdate(context.Background(), messages.TrackingUpdated{OrderID: "o1", Reason: messages.TrackingReasonPing})
	s.Require().NoError(err)

	select {
	case r := <-got:
		s.Require().NotNil(r)
	case <-time.After(2 * time.Second):
		s.FailNow("no snapshot delivered")
	}
}

func (s *ServiceSuite) TestApplyUpdate_StoppedRecordFansOutNil() {
	inactive := &models.TrackingRecord{OrderID: "o1", IsActive: false}
	s.repo.On("GetRecord", mock.Anything, "o1").Return(inactive, nil).Once()

	got := make(chan *models.TrackingRecord, 4)
	unsubscribe := s.svc.hub.Subscribe("o1", func(r *models.TrackingRecord) { got <- r })
	defer unsubscribe()

	err := s.svc.ApplyUpdate(context.Background(), messages.TrackingUpdated{OrderID: "o1", Reason: messages.TrackingReasonStopped})
	s.Require().NoError(err)

	select {
	case r := <-got:
		s.Require().Nil(r)
	case <-time.After(2 * time.Second):
		s.FailNow("no snapshot delivered")
	}
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceSuite))
}
