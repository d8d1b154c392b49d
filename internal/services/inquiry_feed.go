package services

import (
	"context"
	"fmt"
	"log"
	"sync/atomic"
	"time"

	"realty/site/internal/metrics"
	"realty/site/internal/models"
)

// Unsubscribe ends a feed subscription. It is safe to call more than once.
type Unsubscribe func()

// IInquiryFeed pushes the full ordered inquiry set to subscribers: once on subscribe
// and again after every change. Intermediate states may be skipped when writes arrive
// in quick succession. No snapshot is delivered after Unsubscribe returns or ctx ends.
type IInquiryFeed interface {
	Subscribe(ctx context.Context, filter models.InquiryFilter, onSnapshot func([]models.Inquiry)) (Unsubscribe, error)
}

type listFunc func(ctx context.Context, filter models.InquiryFilter) ([]models.Inquiry, error)

// snapshotFeed re-queries the store whenever the change bus signals, and optionally
// on a fixed interval to pick up writes made by processes the bus does not reach.
type snapshotFeed struct {
	list         listFunc
	bus          ChangeBus
	pollInterval time.Duration
}

// NewSnapshotFeed builds a feed over any list function. pollInterval <= 0 disables polling.
func NewSnapshotFeed(list listFunc, bus ChangeBus, pollInterval time.Duration) IInquiryFeed {
	return &snapshotFeed{list: list, bus: bus, pollInterval: pollInterval}
}

func (f *snapshotFeed) Subscribe(ctx context.Context, filter models.InquiryFilter, onSnapshot func([]models.Inquiry)) (Unsubscribe, error) {
	if f.bus == nil && f.pollInterval <= 0 {
		return nil, fmt.Errorf("inquiry feed has neither a change bus nor a poll interval")
	}
	subCtx, cancel := context.WithCancel(ctx)

	var changes <-chan struct{}
	if f.bus != nil {
		var err error
		changes, err = f.bus.Listen(subCtx)
		if err != nil {
			cancel()
			return nil, fmt.Errorf("failed to listen for inquiry changes: %w", err)
		}
	}

	initial, err := f.list(subCtx, filter)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("failed to load initial inquiry snapshot: %w", err)
	}

	var closed atomic.Bool
	deliver := func(snapshot []models.Inquiry) {
		if closed.Load() || subCtx.Err() != nil {
			return
		}
		onSnapshot(snapshot)
	}

	var tick <-chan time.Time
	var ticker *time.Ticker
	if f.pollInterval > 0 {
		ticker = time.NewTicker(f.pollInterval)
		tick = ticker.C
	}

	metrics.FeedSubscribers.Inc()
	go func() {
		defer metrics.FeedSubscribers.Dec()
		if ticker != nil {
			defer ticker.Stop()
		}
		deliver(initial)
		for {
			select {
			case <-subCtx.Done():
				return
			case _, ok := <-changes:
				if !ok {
					// Bus gone; keep polling if we can, otherwise the subscription is over.
					if tick == nil {
						return
					}
					changes = nil
					continue
				}
			case <-tick:
			}
			snapshot, err := f.list(subCtx, filter)
			if err != nil {
				if subCtx.Err() == nil {
					log.Printf("Inquiry feed: failed to refresh snapshot: %v", err)
				}
				continue
			}
			deliver(snapshot)
		}
	}()

	return func() {
		closed.Store(true)
		cancel()
	}, nil
}
