package sweeper

import (
	"math/rand"
	"time"
)

type Rand interface {
	Intn(n int) int
}

type PlannerConfig struct {
	// StaleAfter: без пингов дольше этого запись считается протухшей.
	StaleAfter time.Duration // default: 90 seconds

	FreshMinDelay time.Duration // default: 30 seconds
	FreshMaxDelay time.Duration // default: 60 seconds

	Backoff1 time.Duration // default: 30 seconds
	Backoff2 time.Duration // default: 1 minute
	Backoff3 time.Duration // default: 2 minutes
	Backoff4 time.Duration // default: 5 minutes

	// MaxStaleSweeps: после стольких протухших проверок подряд трекинг
	// останавливается автоматически.
	MaxStaleSweeps int32 // default: 4
}

func DefaultPlannerConfig() PlannerConfig {
	return PlannerConfig{
		StaleAfter: 90 * time.Second,

		FreshMinDelay: 30 * time.Second,
		FreshMaxDelay: 60 * time.Second,

		Backoff1: 30 * time.Second,
		Backoff2: 1 * time.Minute,
		Backoff3: 2 * time.Minute,
		Backoff4: 5 * time.Minute,

		MaxStaleSweeps: 4,
	}
}

type Planner struct {
	cfg PlannerConfig
	r   Rand
}

func NewPlanner(cfg PlannerConfig, r Rand) *Planner {
	def := DefaultPlannerConfig()
	if cfg.StaleAfter <= 0 {
		cfg.StaleAfter = def.StaleAfter
	}
	if cfg.FreshMinDelay <= 0 {
		cfg.FreshMinDelay = def.FreshMinDelay
	}
	if cfg.FreshMaxDelay <= 0 {
		cfg.FreshMaxDelay = def.FreshMaxDelay
	}
	if cfg.FreshMaxDelay < cfg.FreshMinDelay {
		cfg.FreshMaxDelay = cfg.FreshMinDelay
	}
	if cfg.Backoff1 <= 0 {
		cfg.Backoff1 = def.Backoff1
	}
	if cfg.Backoff2 <= 0 {
		cfg.Backoff2 = def.Backoff2
	}
	if cfg.Backoff3 <= 0 {
		cfg.Backoff3 = def.Backoff3
	}
	if cfg.Backoff4 <= 0 {
		cfg.Backoff4 = def.Backoff4
	}
	if cfg.MaxStaleSweeps <= 0 {
		cfg.MaxStaleSweeps = def.MaxStaleSweeps
	}
	if r == nil {
		r = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &Planner{cfg: cfg, r: r}
}

// IsStale проверяет, протухла ли запись к моменту now.
func (p *Planner) IsStale(lastPingAt, now time.Time) bool {
	return now.Sub(lastPingAt) > p.cfg.StaleAfter
}

// FreshDelay выбирает задержку следующей проверки свежей записи.
// Джиттер размазывает проверки, чтобы батчи не синхронизировались.
func (p *Planner) FreshDelay() time.Duration {
	min := p.cfg.FreshMinDelay
	max := p.cfg.FreshMaxDelay
	if max == min {
		return min
	}
	secMin := int(min.Seconds())
	secMax := int(max.Seconds())
	if secMin < 0 {
		secMin = 0
	}
	if secMax < secMin {
		secMax = secMin
	}
	return time.Duration(secMin+p.r.Intn(secMax-secMin+1)) * time.Second
}

// BackoffDelay задаёт лесенку повторных проверок протухшей записи.
func (p *Planner) BackoffDelay(staleCount int32) time.Duration {
	switch {
	case staleCount <= 1:
		return p.cfg.Backoff1
	case staleCount == 2:
		return p.cfg.Backoff2
	case staleCount == 3:
		return p.cfg.Backoff3
	default:
		return p.cfg.Backoff4
	}
}

// ShouldAutoStop: следующая протухшая проверка станет последней?
func (p *Planner) ShouldAutoStop(nextStaleCount int32) bool {
	return nextStaleCount >= p.cfg.MaxStaleSweeps
}
