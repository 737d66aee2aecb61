// Package sweeper — фоновый обходчик активных записей трекинга.
// Запись, по которой курьер давно не присылал пингов, помечается
// деградировавшей, а после серии протухших проверок останавливается.
package sweeper

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/BeanBarn/BrewTrack/internal/broker/messages"
	"github.com/BeanBarn/BrewTrack/internal/models"
	"github.com/pkg/errors"
)

type Repository interface {
	ClaimDueRecords(ctx context.Context, now time.Time, limit int, lease time.Duration) ([]*models.TrackingRecord, error)
	RescheduleSweep(ctx context.Context, orderID string, next time.Time) error
	MarkSweepStale(ctx context.Context, orderID string, next time.Time, autoStop bool, now time.Time) (*models.TrackingRecord, error)
}

type Producer interface {
	Publish(ctx context.Context, topic string, key, value []byte) error
}

type Sweeper struct {
	repo     Repository
	producer Producer
	topic    string

	planner *Planner

	sweepInterval time.Duration
	batchSize     int
	concurrency   int
	lease         time.Duration

	triggerCh chan struct{}

	startedAtUnixNano   int64
	lastCycleUnixNano   atomic.Int64
	lastTriggerUnixNano atomic.Int64
	totalClaimed        atomic.Int64
	totalProcessed      atomic.Int64
	totalStale          atomic.Int64
	totalAutoStopped    atomic.Int64
	totalErrors         atomic.Int64
	inFlight            atomic.Int64
	lastErrorMu         sync.Mutex
	lastError           string
}

func New(repo Repository, producer Producer, topic string) *Sweeper {
	return &Sweeper{
		repo: repo, producer: producer, topic: topic,
		planner:       DefaultPlanner(),
		sweepInterval: 5 * time.Second,
		batchSize:     100,
		concurrency:   10,
		lease:         60 * time.Second,
		triggerCh:     make(chan struct{}, 1),

		startedAtUnixNano: time.Now().UTC().UnixNano(),
	}
}

func DefaultPlanner() *Planner {
	return NewPlanner(DefaultPlannerConfig(), nil)
}

func (s *Sweeper) WithSettings(sweepInterval time.Duration, batchSize, concurrency int, lease time.Duration) *Sweeper {
	if sweepInterval > 0 {
		s.sweepInterval = sweepInterval
	}
	if batchSize > 0 {
		s.batchSize = batchSize
	}
	if concurrency > 0 {
		s.concurrency = concurrency
	}
	if lease > 0 {
		s.lease = lease
	}
	return s
}

func (s *Sweeper) WithPlanner(cfg PlannerConfig) *Sweeper {
	s.planner = NewPlanner(cfg, nil)
	return s
}

// Trigger forces an immediate sweep cycle (best-effort, non-blocking).
func (s *Sweeper) Trigger() {
	s.lastTriggerUnixNano.Store(time.Now().UTC().UnixNano())
	select {
	case s.triggerCh <- struct{}{}:
	default:
	}
}

type Stats struct {
	StartedAt        time.Time  `json:"startedAt"`
	LastCycleAt      *time.Time `json:"lastCycleAt,omitempty"`
	LastTriggerAt    *time.Time `json:"lastTriggerAt,omitempty"`
	TotalClaimed     int64      `json:"totalClaimed"`
	TotalProcessed   int64      `json:"totalProcessed"`
	TotalStale       int64      `json:"totalStale"`
	TotalAutoStopped int64      `json:"totalAutoStopped"`
	TotalErrors      int64      `json:"totalErrors"`
	InFlight         int64      `json:"inFlight"`
	LastError        string     `json:"lastError,omitempty"`
}

func (s *Sweeper) Stats() Stats {
	st := Stats{
		StartedAt:        time.Unix(0, s.startedAtUnixNano).UTC(),
		TotalClaimed:     s.totalClaimed.Load(),
		TotalProcessed:   s.totalProcessed.Load(),
		TotalStale:       s.totalStale.Load(),
		TotalAutoStopped: s.totalAutoStopped.Load(),
		TotalErrors:      s.totalErrors.Load(),
		InFlight:         s.inFlight.Load(),
	}
	if n := s.lastCycleUnixNano.Load(); n > 0 {
		t := time.Unix(0, n).UTC()
		st.LastCycleAt = &t
	}
	if n := s.lastTriggerUnixNano.Load(); n > 0 {
		t := time.Unix(0, n).UTC()
		st.LastTriggerAt = &t
	}
	s.lastErrorMu.Lock()
	st.LastError = s.lastError
	s.lastErrorMu.Unlock()
	return st
}

func (s *Sweeper) Run(ctx context.Context) error {
	t := time.NewTicker(s.sweepInterval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
			s.runOnce(ctx)
		case <-s.triggerCh:
			s.runOnce(ctx)
		}
	}
}

func (s *Sweeper) runOnce(ctx context.Context) {
	now := time.Now().UTC()
	s.lastCycleUnixNano.Store(now.UnixNano())

	items, err := s.repo.ClaimDueRecords(ctx, now, s.batchSize, s.lease)
	if err != nil {
		slog.Error("claim due records", "error", err.Error())
		s.lastErrorMu.Lock()
		s.lastError = err.Error()
		s.lastErrorMu.Unlock()
		return
	}
	s.totalClaimed.Add(int64(len(items)))

	sem := make(chan struct{}, s.concurrency)
	var wg sync.WaitGroup
	for _, rec := range items {
		sem <- struct{}{}
		wg.Add(1)
		recCopy := rec
		s.inFlight.Add(1)
		go func() {
			defer func() {
				s.inFlight.Add(-1)
				<-sem
				wg.Done()
			}()
			if err := s.processOne(ctx, recCopy); err != nil {
				s.totalErrors.Add(1)
				s.lastErrorMu.Lock()
				s.lastError = err.Error()
				s.lastErrorMu.Unlock()
				slog.Error("sweep record", "order_id", recCopy.OrderID, "error", err.Error())
			}
			s.totalProcessed.Add(1)
		}()
	}
	wg.Wait()
}

func (s *Sweeper) processOne(ctx context.Context, rec *models.TrackingRecord) error {
	now := time.Now().UTC()

	if !s.planner.IsStale(rec.LastPingAt, now) {
		return s.repo.RescheduleSweep(ctx, rec.OrderID, now.Add(s.planner.FreshDelay()))
	}

	nextStale := rec.SweepFailCount + 1
	autoStop := s.planner.ShouldAutoStop(nextStale)
	next := now.Add(s.planner.BackoffDelay(nextStale))

	updated, err := s.repo.MarkSweepStale(ctx, rec.OrderID, next, autoStop, now)
	if err != nil {
		return err
	}
	if updated == nil {
		// Запись исчезла между claim и апдейтом, это не ошибка.
		return nil
	}
	s.totalStale.Add(1)

	reason := messages.TrackingReasonDegraded
	if autoStop {
		reason = messages.TrackingReasonAutoStopped
		s.totalAutoStopped.Add(1)
	}
	errText := "no courier pings for " + now.Sub(rec.LastPingAt).Truncate(time.Second).String()
	msg := messages.TrackingUpdated{
		OrderID:   rec.OrderID,
		Reason:    reason,
		UpdatedAt: now,
		Error:     &errText,
	}

	b, err := json.Marshal(msg)
	if err != nil {
		return errors.Wrap(err, "marshal kafka msg")
	}

	// Kafka может быть не готова сразу после старта docker compose.
	// Для демо/устойчивости делаем небольшой retry.
	var pubErr error
	for i := 0; i < 10; i++ {
		if err := s.producer.Publish(ctx, s.topic, []byte(rec.OrderID), b); err == nil {
			pubErr = nil
			break
		} else {
			pubErr = err
			time.Sleep(time.Duration(150*(i+1)) * time.Millisecond)
		}
	}
	return pubErr
}
