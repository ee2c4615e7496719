package metrics

import (
	"time"

	"media-render/internal/logging"
)

// StatsProvider interface for collecting stats
type StatsProvider interface {
	GetStats() Stats
}

// Stats holds the current job history statistics
type Stats struct {
	TotalJobs     int
	SucceededJobs int
	FailedJobs    int
	CanceledJobs  int
	OpenConns     int
}

// Collector periodically collects and updates metrics
type Collector struct {
	statsProvider StatsProvider
	interval      time.Duration
	stopChan      chan struct{}
}

// NewCollector creates a new metrics collector
func NewCollector(provider StatsProvider, interval time.Duration) *Collector {
	return &Collector{
		statsProvider: provider,
		interval:      interval,
		stopChan:      make(chan struct{}),
	}
}

// Start begins the metrics collection loop
func (c *Collector) Start() {
	go c.collectLoop()
}

// Stop stops the metrics collection
func (c *Collector) Stop() {
	close(c.stopChan)
}

func (c *Collector) collectLoop() {
	// Collect immediately on start
	c.collect()

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.collect()
		case <-c.stopChan:
			return
		}
	}
}

func (c *Collector) collect() {
	if c.statsProvider == nil {
		return
	}

	stats := c.statsProvider.GetStats()

	JobHistoryTotal.WithLabelValues("success").Set(float64(stats.SucceededJobs))
	JobHistoryTotal.WithLabelValues("error").Set(float64(stats.FailedJobs))
	JobHistoryTotal.WithLabelValues("canceled").Set(float64(stats.CanceledJobs))
	DBConnectionsOpen.Set(float64(stats.OpenConns))

	logging.Debug("Metrics collected: jobs=%d, succeeded=%d, failed=%d, canceled=%d",
		stats.TotalJobs, stats.SucceededJobs, stats.FailedJobs, stats.CanceledJobs)
}
