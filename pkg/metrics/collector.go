package metrics

import (
	"context"
	"time"
)

// JobCounter reports how many jobs are in a given queue state. Implemented
// by the wiki store.
type JobCounter interface {
	CountJobsByStatus(ctx context.Context, status string) (int, error)
}

// SubscriberCounter reports the number of live event bus subscribers.
type SubscriberCounter interface {
	SubscriberCount() int
}

// Collector periodically samples gauge metrics from the store and event bus.
type Collector struct {
	jobs   JobCounter
	subs   SubscriberCounter
	stopCh chan struct{}
}

// NewCollector creates a new metrics collector
func NewCollector(jobs JobCounter, subs SubscriberCounter) *Collector {
	return &Collector{
		jobs:   jobs,
		subs:   subs,
		stopCh: make(chan struct{}),
	}
}

// Start begins collecting metrics
func (c *Collector) Start() {
	ticker := time.NewTicker(15 * time.Second)
	go func() {
		// Collect immediately on start
		c.collect()

		for {
			select {
			case <-ticker.C:
				c.collect()
			case <-c.stopCh:
				ticker.Stop()
				return
			}
		}
	}()
}

// Stop stops the collector
func (c *Collector) Stop() {
	close(c.stopCh)
}

func (c *Collector) collect() {
	if c.jobs != nil {
		if n, err := c.jobs.CountJobsByStatus(context.Background(), "running"); err == nil {
			ActiveJobs.Set(float64(n))
		}
	}
	if c.subs != nil {
		EventSubscribers.Set(float64(c.subs.SubscriberCount()))
	}
}
