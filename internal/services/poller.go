package services

import (
	"context"
	"log"
	"reflect"
	"sync"
	"time"

	"github.com/go-co-op/gocron/v2"

	"github.com/chachabrian/parkit-backend/internal/parking"
)

// StatusSource reads the shared status record
type StatusSource interface {
	Status(ctx context.Context) (parking.StatusRecord, error)
}

// StatusCache keeps the latest snapshot for readers of GET /slots
type StatusCache interface {
	CacheStatus(ctx context.Context, rec parking.StatusRecord) error
}

// Poller re-reads the status record on a fixed interval, refreshes the
// cache and notifies listeners when the slots changed. This catches writes
// made outside this process, e.g. by another API instance.
type Poller struct {
	source   StatusSource
	cache    StatusCache
	interval time.Duration
	timeout  time.Duration

	mu        sync.Mutex
	last      *parking.StatusRecord
	listeners []func(parking.StatusRecord)

	scheduler gocron.Scheduler
}

func NewPoller(source StatusSource, cache StatusCache, interval time.Duration) *Poller {
	return &Poller{source: source, cache: cache, interval: interval, timeout: 10 * time.Second}
}

// OnChange registers a listener called with every changed snapshot
func (p *Poller) OnChange(fn func(parking.StatusRecord)) {
	p.mu.Lock()
	p.listeners = append(p.listeners, fn)
	p.mu.Unlock()
}

// Poll performs one read. It reports whether the snapshot changed.
func (p *Poller) Poll(ctx context.Context) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	rec, err := p.source.Status(ctx)
	if err != nil {
		return false, err
	}
	if p.cache != nil {
		if err := p.cache.CacheStatus(ctx, rec); err != nil {
			log.Printf("[poller] cache status: %v", err)
		}
	}

	p.mu.Lock()
	changed := p.last == nil ||
		p.last.AvailableCount != rec.AvailableCount ||
		!reflect.DeepEqual(p.last.Slots, rec.Slots)
	p.last = &rec
	listeners := append(([]func(parking.StatusRecord))(nil), p.listeners...)
	p.mu.Unlock()

	if changed {
		for _, fn := range listeners {
			fn(rec)
		}
	}
	return changed, nil
}

// Start schedules Poll, running it once immediately
func (p *Poller) Start() error {
	s, err := gocron.NewScheduler()
	if err != nil {
		return err
	}
	_, err = s.NewJob(
		gocron.DurationJob(p.interval),
		gocron.NewTask(func() {
			if _, err := p.Poll(context.Background()); err != nil {
				log.Printf("[poller] read status: %v", err)
			}
		}),
		gocron.WithStartAt(gocron.WithStartImmediately()),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		_ = s.Shutdown()
		return err
	}
	p.scheduler = s
	s.Start()
	log.Printf("[poller] polling status every %s", p.interval)
	return nil
}

// Stop shuts the scheduler down
func (p *Poller) Stop() error {
	if p.scheduler == nil {
		return nil
	}
	return p.scheduler.Shutdown()
}
