package quotefeed

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"gopartsync_api/config"
	"gopartsync_api/internal/core/models"
	"gopartsync_api/internal/storage"
	"gopartsync_api/pkg/logger"
)

var ErrFeedBusy = errors.New("feed update already in progress")

type scheduledFeed struct {
	updater  *Updater
	interval time.Duration
	mu       sync.Mutex
}

// Scheduler обновляет прайс-листы по расписанию и по запросу.
// Один прайс-лист никогда не обновляется параллельно.
type Scheduler struct {
	feeds []*scheduledFeed
	log   logger.Logger
}

func NewScheduler(log logger.Logger) *Scheduler {
	return &Scheduler{log: log}
}

// NewSchedulerFromConfig собирает обновления для всех прайс-листов из конфигурации.
func NewSchedulerFromConfig(feeds []config.FeedConfig, fetcher Fetcher, store storage.Store, repricer Repricer, log logger.Logger) (*Scheduler, error) {
	s := NewScheduler(log)
	for _, fc := range feeds {
		supplier, err := models.ParseSupplier(fc.Supplier)
		if err != nil {
			return nil, fmt.Errorf("feed %q: %w", fc.Supplier, err)
		}
		if fc.CSVURL == "" {
			return nil, fmt.Errorf("feed %s: csv_url is required", supplier)
		}
		feed := Feed{Supplier: supplier, InfURL: fc.InfURL, CSVURL: fc.CSVURL}
		s.Add(NewUpdater(feed, fetcher, NewProcessor(), store, repricer, log), fc.Interval)
	}
	return s, nil
}

func (s *Scheduler) Add(u *Updater, interval time.Duration) {
	s.feeds = append(s.feeds, &scheduledFeed{updater: u, interval: interval})
}

func (s *Scheduler) Len() int {
	return len(s.feeds)
}

func (s *Scheduler) runFeed(ctx context.Context, f *scheduledFeed, force bool) (*Result, error) {
	if !f.mu.TryLock() {
		return nil, fmt.Errorf("%s: %w", f.updater.Feed().Supplier, ErrFeedBusy)
	}
	defer f.mu.Unlock()
	return f.updater.Execute(ctx, force)
}

// RefreshAll обновляет все прайс-листы по очереди. Ошибка одного не останавливает остальные.
func (s *Scheduler) RefreshAll(ctx context.Context, force bool) ([]*Result, []error) {
	var (
		results []*Result
		errs    []error
	)
	for _, f := range s.feeds {
		res, err := s.runFeed(ctx, f, force)
		if err != nil {
			s.log.Error("quote feed %s: %v", f.updater.Feed().Supplier, err)
			errs = append(errs, err)
			continue
		}
		results = append(results, res)
	}
	return results, errs
}

// Run запускает по тикеру на каждый прайс-лист и блокируется до отмены ctx.
func (s *Scheduler) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for _, f := range s.feeds {
		if f.interval <= 0 {
			continue
		}
		wg.Add(1)
		go func(f *scheduledFeed) {
			defer wg.Done()
			ticker := time.NewTicker(f.interval)
			defer ticker.Stop()
			for {
				if _, err := s.runFeed(ctx, f, false); err != nil {
					s.log.Error("quote feed %s: %v", f.updater.Feed().Supplier, err)
				}
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
				}
			}
		}(f)
	}
	wg.Wait()
}
