package main

import (
	"context"
	"fmt"
	"time"

	"github.com/BeanBarn/BrewTrack/config"
	"github.com/BeanBarn/BrewTrack/internal/broker/kafka"
	"github.com/BeanBarn/BrewTrack/internal/services/sweeper"
	"github.com/BeanBarn/BrewTrack/internal/storage/pgtrack"
)

type workerFactories struct {
	newStorage  func(cfg *config.Config) (repo sweeper.Repository, closeFn func(), err error)
	newProducer func(cfg *config.Config) sweeper.Producer
}

func defaultWorkerFactories() workerFactories {
	return workerFactories{
		newStorage: func(cfg *config.Config) (sweeper.Repository, func(), error) {
			sslMode := cfg.Database.SSLMode
			if sslMode == "" {
				sslMode = "disable"
			}
			connString := fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
				cfg.Database.Username, cfg.Database.Password, cfg.Database.Host, cfg.Database.Port, cfg.Database.DBName, sslMode)
			st, err := pgtrack.New(connString)
			if err != nil {
				return nil, nil, err
			}
			return st, st.Close, nil
		},
		newProducer: func(cfg *config.Config) sweeper.Producer {
			brokers := []string{fmt.Sprintf("%s:%d", cfg.Kafka.Host, cfg.Kafka.Port)}
			return kafka.NewProducer(brokers)
		},
	}
}

// plannerConfigFromConfig переносит в планировщик только заданные значения;
// нули добьются дефолтами внутри NewPlanner.
func plannerConfigFromConfig(cfg *config.Config) sweeper.PlannerConfig {
	sec := func(s int) time.Duration { return time.Duration(s) * time.Second }
	return sweeper.PlannerConfig{
		StaleAfter:     sec(cfg.BrewTrack.TrackingStaleSeconds),
		FreshMinDelay:  sec(cfg.BrewTrack.WorkerFreshMinSeconds),
		FreshMaxDelay:  sec(cfg.BrewTrack.WorkerFreshMaxSeconds),
		Backoff1:       sec(cfg.BrewTrack.WorkerBackoff1Seconds),
		Backoff2:       sec(cfg.BrewTrack.WorkerBackoff2Seconds),
		Backoff3:       sec(cfg.BrewTrack.WorkerBackoff3Seconds),
		Backoff4:       sec(cfg.BrewTrack.WorkerBackoff4Seconds),
		MaxStaleSweeps: int32(cfg.BrewTrack.WorkerMaxStaleSweeps),
	}
}

func RunTrackWorker(ctx context.Context, cfg *config.Config, f workerFactories, swaggerPath string) error {
	topic := cfg.Kafka.TrackingUpdatedTopicName
	if topic == "" {
		topic = "tracking.updated"
	}

	sweepInterval := time.Duration(cfg.BrewTrack.WorkerSweepIntervalSeconds) * time.Second
	if sweepInterval <= 0 {
		sweepInterval = 5 * time.Second
	}
	batchSize := cfg.BrewTrack.WorkerBatchSize
	if batchSize <= 0 {
		batchSize = 100
	}
	concurrency := cfg.BrewTrack.WorkerConcurrency
	if concurrency <= 0 {
		concurrency = 10
	}
	lease := time.Duration(cfg.BrewTrack.WorkerLeaseSeconds) * time.Second
	if lease <= 0 {
		lease = 60 * time.Second
	}

	repo, closeFn, err := f.newStorage(cfg)
	if err != nil {
		return err
	}
	if closeFn != nil {
		defer closeFn()
	}

	producer := f.newProducer(cfg)

	s := sweeper.New(repo, producer, topic).
		WithSettings(sweepInterval, batchSize, concurrency, lease).
		WithPlanner(plannerConfigFromConfig(cfg))

	go func() {
		err := runWorkerHTTPServer(ctx, workerHTTPOpts{
			httpAddr:    cfg.BrewTrack.WorkerHTTPAddr,
			swaggerPath: swaggerPath,
			sweeper:     s,
			cfg:         cfg,
		})
		if err != nil && ctx.Err() == nil {
			panic(err)
		}
	}()

	return s.Run(ctx)
}
