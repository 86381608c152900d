// Package dashboard renders a live terminal view of benchmark runs.
package dashboard

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	ui "github.com/gizak/termui/v3"
	"github.com/gizak/termui/v3/widgets"

	"github.com/torosent/concbench/internal/metrics"
)

const historyLen = 100

// BenchConfig holds benchmark parameters for display.
type BenchConfig struct {
	Model      string        // platform, virtual or compare
	Requests   int           // units per run
	Delay      time.Duration // simulated blocking wait per unit
	PoolSize   int           // bounded pool size
	SubmitRate int           // units dispatched per second (0 = unlimited)
	Iterations int           // CPU loop length per unit
	Repeat     int
	ConfigFile string
}

// run is the unit source currently attached to the dashboard.
type run struct {
	label     string
	total     int
	collector *metrics.Collector
	inFlight  func() int64
}

// Dashboard renders a live terminal UI for benchmark runs. Runs are attached one at a
// time; finished results accumulate in the results list.
type Dashboard struct {
	ctx          context.Context
	cancel       context.CancelFunc
	shutdownFunc func()
	wg           sync.WaitGroup
	mu           sync.Mutex

	grid            *ui.Grid
	summaryPara     *widgets.Paragraph
	completionGauge *widgets.Gauge
	inFlightSpark   *widgets.SparklineGroup
	latencyPara     *widgets.Paragraph
	errorList       *widgets.List
	resultList      *widgets.List

	current         *run
	inFlightHistory []float64
	results         []metrics.RunResult
	startTime       time.Time
	cfg             BenchConfig
}

// New initializes the terminal. shutdownFunc is called when the user presses q or Ctrl-C.
func New(cfg BenchConfig, shutdownFunc func()) (*Dashboard, error) {
	if err := ui.Init(); err != nil {
		return nil, fmt.Errorf("failed to initialize termui: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	d := &Dashboard{
		ctx:             ctx,
		cancel:          cancel,
		shutdownFunc:    shutdownFunc,
		inFlightHistory: make([]float64, 0, historyLen),
		startTime:       time.Now(),
		cfg:             cfg,
	}
	d.initWidgets()
	d.setupGrid()
	return d, nil
}

func (d *Dashboard) initWidgets() {
	d.summaryPara = widgets.NewParagraph()
	d.summaryPara.Title = "Benchmark"
	d.summaryPara.Text = "Initializing..."
	d.summaryPara.BorderStyle.Fg = ui.ColorCyan

	d.completionGauge = widgets.NewGauge()
	d.completionGauge.Title = "Completed Units"
	d.completionGauge.BarColor = ui.ColorBlue
	d.completionGauge.BorderStyle.Fg = ui.ColorCyan
	d.completionGauge.LabelStyle = ui.NewStyle(ui.ColorWhite)

	sparkline := widgets.NewSparkline()
	sparkline.Title = "Units in flight"
	sparkline.LineColor = ui.ColorGreen
	sparkline.Data = []float64{0}
	d.inFlightSpark = widgets.NewSparklineGroup(sparkline)
	d.inFlightSpark.Title = "Concurrency"
	d.inFlightSpark.BorderStyle.Fg = ui.ColorCyan

	d.latencyPara = widgets.NewParagraph()
	d.latencyPara.Title = "Unit Latency"
	d.latencyPara.Text = "Waiting for data..."
	d.latencyPara.BorderStyle.Fg = ui.ColorCyan

	d.errorList = widgets.NewList()
	d.errorList.Title = "Errors"
	d.errorList.Rows = []string{"[No failures](fg:green)"}
	d.errorList.TextStyle = ui.NewStyle(ui.ColorYellow)
	d.errorList.BorderStyle.Fg = ui.ColorCyan

	d.resultList = widgets.NewList()
	d.resultList.Title = "Finished Runs"
	d.resultList.Rows = []string{"Awaiting results"}
	d.resultList.TextStyle = ui.NewStyle(ui.ColorCyan)
	d.resultList.BorderStyle.Fg = ui.ColorCyan
}

func (d *Dashboard) setupGrid() {
	termWidth, termHeight := ui.TerminalDimensions()

	d.grid = ui.NewGrid()
	d.grid.SetRect(0, 0, termWidth, termHeight)
	d.grid.Set(
		ui.NewRow(0.16,
			ui.NewCol(1.0, d.summaryPara),
		),
		ui.NewRow(0.14,
			ui.NewCol(1.0, d.completionGauge),
		),
		ui.NewRow(0.34,
			ui.NewCol(0.6, d.inFlightSpark),
			ui.NewCol(0.4, d.latencyPara),
		),
		ui.NewRow(0.36,
			ui.NewCol(0.6, d.resultList),
			ui.NewCol(0.4, d.errorList),
		),
	)
}

// Start begins the dashboard update loop.
func (d *Dashboard) Start() {
	d.wg.Add(1)
	go d.loop()
}

// Stop stops the dashboard and restores the terminal.
func (d *Dashboard) Stop() {
	d.cancel()
	d.wg.Wait()
	ui.Close()
	// Give terminal time to restore
	time.Sleep(100 * time.Millisecond)
}

// Attach makes the dashboard follow a run. inFlight may be nil.
func (d *Dashboard) Attach(label string, total int, collector *metrics.Collector, inFlight func() int64) {
	if inFlight == nil {
		inFlight = func() int64 { return 0 }
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.current = &run{label: label, total: total, collector: collector, inFlight: inFlight}
	d.inFlightHistory = d.inFlightHistory[:0]
}

// Detach stops following the current run.
func (d *Dashboard) Detach() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.current = nil
}

// AddResult appends a finished run to the results list.
func (d *Dashboard) AddResult(res metrics.RunResult) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.results = append(d.results, res)
	d.resultList.Rows = formatResultRows(d.results)
}

func (d *Dashboard) loop() {
	defer d.wg.Done()

	ticker := time.NewTicker(250 * time.Millisecond)
	defer ticker.Stop()

	uiEvents := ui.PollEvents()
	d.render()

	for {
		select {
		case <-d.ctx.Done():
			for len(uiEvents) > 0 {
				<-uiEvents
			}
			return
		case e := <-uiEvents:
			select {
			case <-d.ctx.Done():
				return
			default:
			}
			switch e.ID {
			case "q", "<C-c>":
				if d.shutdownFunc != nil {
					d.shutdownFunc()
				}
			case "<Resize>":
				payload := e.Payload.(ui.Resize)
				d.mu.Lock()
				d.grid.SetRect(0, 0, payload.Width, payload.Height)
				d.mu.Unlock()
				ui.Clear()
				d.render()
			}
		case <-ticker.C:
			d.update()
			d.render()
		}
	}
}

func (d *Dashboard) update() {
	d.mu.Lock()
	defer d.mu.Unlock()

	elapsed := time.Since(d.startTime)
	label := "idle"
	if d.current != nil {
		label = d.current.label
	}
	d.summaryPara.Text = fmt.Sprintf("%s\nRunning: %s | Elapsed: %s | Finished runs: %d",
		formatBenchParams(d.cfg), label, elapsed.Round(time.Second), len(d.results))

	if d.current == nil {
		return
	}
	cur := d.current
	stats := cur.collector.Stats(cur.collector.Elapsed())

	d.completionGauge.Percent = completionPercent(stats.Total, cur.total)
	d.completionGauge.Label = fmt.Sprintf("%d/%d (%d%%) | %.1f units/s",
		stats.Total, cur.total, d.completionGauge.Percent, stats.RequestsPerSec)

	inFlight := cur.inFlight()
	d.inFlightHistory = appendBounded(d.inFlightHistory, float64(inFlight), historyLen)
	d.inFlightSpark.Sparklines[0].Data = d.inFlightHistory
	d.inFlightSpark.Title = fmt.Sprintf("Concurrency | In flight: %d", inFlight)

	d.latencyPara.Text = formatLatency(stats)
	d.errorList.Rows = formatErrorRows(stats.Errors, stats.Cancelled)
}

func (d *Dashboard) render() {
	d.mu.Lock()
	defer d.mu.Unlock()
	ui.Render(d.grid)
}

func completionPercent(done int64, total int) int {
	if total <= 0 {
		return 0
	}
	pct := int(done * 100 / int64(total))
	if pct > 100 {
		pct = 100
	}
	return pct
}

func appendBounded(series []float64, v float64, limit int) []float64 {
	series = append(series, v)
	if len(series) > limit {
		series = series[len(series)-limit:]
	}
	return series
}

func formatLatency(stats metrics.UnitStats) string {
	return fmt.Sprintf(
		"Succeeded: %d\nFailed:    %d\nCancelled: %d\nMin:  %.2fms\nMean: %.2fms\nP50:  %.2fms\nP90:  %.2fms\nP99:  %.2fms\nMax:  %.2fms",
		stats.Successes, stats.Failures, stats.Cancelled,
		stats.MinLatencyMs, stats.MeanLatencyMs,
		stats.P50LatencyMs, stats.P90LatencyMs, stats.P99LatencyMs,
		stats.MaxLatencyMs,
	)
}

func formatErrorRows(errs map[string]int, cancelled int64) []string {
	if len(errs) == 0 && cancelled == 0 {
		return []string{"[No failures](fg:green)"}
	}
	names := make([]string, 0, len(errs))
	for name := range errs {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool {
		if errs[names[i]] == errs[names[j]] {
			return names[i] < names[j]
		}
		return errs[names[i]] > errs[names[j]]
	})
	if len(names) > 10 {
		names = names[:10]
	}
	rows := make([]string, 0, len(names)+1)
	for _, name := range names {
		rows = append(rows, fmt.Sprintf("[%s](fg:red) %d", name, errs[name]))
	}
	if cancelled > 0 {
		rows = append(rows, fmt.Sprintf("[Cancelled](fg:yellow) %d", cancelled))
	}
	return rows
}

func formatResultRows(results []metrics.RunResult) []string {
	if len(results) == 0 {
		return []string{"Awaiting results"}
	}
	rows := make([]string, 0, len(results))
	for _, r := range results {
		rows = append(rows, fmt.Sprintf("[%s](fg:cyan) | %d ms | %.1f req/s | %.2f MB",
			r.ThreadType, r.TotalTimeMs, r.ThroughputRPS, r.MemoryUsedMB))
	}
	return rows
}

func formatBenchParams(cfg BenchConfig) string {
	var parts []string

	if cfg.Model != "" {
		parts = append(parts, fmt.Sprintf("Model: %s", cfg.Model))
	}
	parts = append(parts, fmt.Sprintf("Requests: %d", cfg.Requests))
	parts = append(parts, fmt.Sprintf("Delay: %s", cfg.Delay))

	if cfg.Model != "virtual" && cfg.PoolSize > 0 {
		parts = append(parts, fmt.Sprintf("Pool: %d", cfg.PoolSize))
	}
	if cfg.SubmitRate > 0 {
		parts = append(parts, fmt.Sprintf("Rate: %d/s", cfg.SubmitRate))
	} else {
		parts = append(parts, "Rate: unlimited")
	}
	if cfg.Iterations > 0 {
		parts = append(parts, fmt.Sprintf("Iterations: %d", cfg.Iterations))
	}
	if cfg.Repeat > 1 {
		parts = append(parts, fmt.Sprintf("Repeat: %d", cfg.Repeat))
	}
	if cfg.ConfigFile != "" {
		parts = append(parts, fmt.Sprintf("Config: %s", cfg.ConfigFile))
	}
	return strings.Join(parts, " | ")
}
