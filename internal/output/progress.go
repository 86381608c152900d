package output

import (
	"fmt"
	"io"
	"sync/atomic"
	"time"

	"github.com/torosent/concbench/internal/metrics"
)

// ProgressReporter displays real-time progress of one run on a single line.
type ProgressReporter struct {
	label     string
	total     int
	collector *metrics.Collector
	inFlight  func() int64
	ticker    *time.Ticker
	done      chan struct{}
	finished  chan struct{}
	writer    io.Writer
	active    int32
}

// NewProgressReporter creates a progress reporter that updates at the given interval.
// inFlight may be nil.
func NewProgressReporter(label string, total int, collector *metrics.Collector, inFlight func() int64, interval time.Duration, writer io.Writer) *ProgressReporter {
	if writer == nil {
		writer = io.Discard
	}
	if inFlight == nil {
		inFlight = func() int64 { return 0 }
	}
	return &ProgressReporter{
		label:     label,
		total:     total,
		collector: collector,
		inFlight:  inFlight,
		ticker:    time.NewTicker(interval),
		done:      make(chan struct{}),
		finished:  make(chan struct{}),
		writer:    writer,
	}
}

// Start begins displaying progress updates in a background goroutine.
func (p *ProgressReporter) Start() {
	if !atomic.CompareAndSwapInt32(&p.active, 0, 1) {
		return // already running
	}
	go p.run()
}

// Stop halts progress updates and prints the final line.
func (p *ProgressReporter) Stop() {
	if atomic.CompareAndSwapInt32(&p.active, 1, 0) {
		close(p.done)
		p.ticker.Stop()
		<-p.finished
		fmt.Fprintln(p.writer, p.line())
	}
}

func (p *ProgressReporter) run() {
	defer close(p.finished)
	for {
		select {
		case <-p.ticker.C:
			fmt.Fprint(p.writer, p.line())
		case <-p.done:
			return
		}
	}
}

func (p *ProgressReporter) line() string {
	stats := p.collector.Stats(p.collector.Elapsed())
	return fmt.Sprintf("\r[%s] Units: %d/%d | In flight: %d | Failures: %d | Cancelled: %d | Units/s: %.1f",
		p.label, stats.Total, p.total, p.inFlight(), stats.Failures, stats.Cancelled, stats.RequestsPerSec)
}
