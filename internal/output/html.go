package output

import (
	"fmt"
	"html/template"
	"io"
	"time"

	"github.com/torosent/concbench/internal/metrics"
	"github.com/torosent/concbench/internal/threshold"
)

// HTMLReportData contains all data needed for the HTML report template.
type HTMLReportData struct {
	GeneratedAt      string
	Runs             []metrics.RunResult
	Comparison       *metrics.FormattedComparison
	Bars             []Bar
	ThresholdSummary *ThresholdSummary
}

// Bar is one row of the total-time chart, scaled against the slowest run.
type Bar struct {
	Label   string
	Value   int64
	Percent float64
}

// ThresholdSummary aggregates evaluated thresholds for the report.
type ThresholdSummary struct {
	Total   int
	Passed  int
	Failed  int
	Results []ThresholdResultJSON
}

// ThresholdResultJSON is the flattened form of one threshold.Result.
type ThresholdResultJSON struct {
	Threshold string  `json:"threshold"`
	Subject   string  `json:"subject"`
	Metric    string  `json:"metric"`
	Aggregate string  `json:"aggregate"`
	Operator  string  `json:"operator"`
	Expected  float64 `json:"expected"`
	Actual    float64 `json:"actual"`
	Pass      bool    `json:"pass"`
}

// GenerateHTMLReport generates a standalone HTML report. cmp may be nil when the runs
// were not compared.
func GenerateHTMLReport(w io.Writer, runs []metrics.RunResult, cmp *metrics.Comparison, thresholdResults []threshold.Result) error {
	var thresholdSummary *ThresholdSummary
	if len(thresholdResults) > 0 {
		thresholdSummary = &ThresholdSummary{
			Total:   len(thresholdResults),
			Results: make([]ThresholdResultJSON, len(thresholdResults)),
		}
		for i, tr := range thresholdResults {
			thresholdSummary.Results[i] = ThresholdResultJSON{
				Threshold: tr.Threshold.Raw,
				Subject:   tr.Subject,
				Metric:    tr.Threshold.Metric,
				Aggregate: tr.Threshold.Aggregate,
				Operator:  tr.Threshold.Operator,
				Expected:  tr.Threshold.Value,
				Actual:    tr.Actual,
				Pass:      tr.Pass,
			}
			if tr.Pass {
				thresholdSummary.Passed++
			} else {
				thresholdSummary.Failed++
			}
		}
	}

	data := HTMLReportData{
		GeneratedAt:      time.Now().Format(time.RFC3339),
		Runs:             runs,
		Bars:             totalTimeBars(runs),
		ThresholdSummary: thresholdSummary,
	}
	if cmp != nil {
		formatted := cmp.Format()
		data.Comparison = &formatted
	}

	tmpl, err := template.New("report").Funcs(template.FuncMap{
		"formatFloat": func(f float64) string {
			return fmt.Sprintf("%.2f", f)
		},
	}).Parse(htmlTemplate)
	if err != nil {
		return fmt.Errorf("failed to parse template: %w", err)
	}

	if err := tmpl.Execute(w, data); err != nil {
		return fmt.Errorf("failed to execute template: %w", err)
	}

	return nil
}

func totalTimeBars(runs []metrics.RunResult) []Bar {
	var longest int64
	for _, r := range runs {
		if r.TotalTimeMs > longest {
			longest = r.TotalTimeMs
		}
	}
	bars := make([]Bar, 0, len(runs))
	for _, r := range runs {
		pct := 0.0
		if longest > 0 {
			pct = float64(r.TotalTimeMs) / float64(longest) * 100
		}
		bars = append(bars, Bar{Label: r.ThreadType, Value: r.TotalTimeMs, Percent: pct})
	}
	return bars
}

const htmlTemplate = `<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <title>Concurrency Benchmark Report</title>
    <style>
        * {
            margin: 0;
            padding: 0;
            box-sizing: border-box;
        }
        body {
            font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, 'Helvetica Neue', Arial, sans-serif;
            background: #f5f7fa;
            color: #2c3e50;
            line-height: 1.6;
            padding: 20px;
        }
        .container {
            max-width: 1200px;
            margin: 0 auto;
            background: white;
            border-radius: 8px;
            box-shadow: 0 2px 8px rgba(0,0,0,0.1);
            overflow: hidden;
        }
        header {
            background: linear-gradient(135deg, #0f766e 0%, #1e3a8a 100%);
            color: white;
            padding: 30px 40px;
        }
        header h1 {
            font-size: 2rem;
            margin-bottom: 10px;
        }
        header .meta {
            opacity: 0.9;
            font-size: 0.9rem;
        }
        .content {
            padding: 40px;
        }
        .grid {
            display: grid;
            grid-template-columns: repeat(auto-fit, minmax(250px, 1fr));
            gap: 20px;
            margin-bottom: 40px;
        }
        .card {
            background: #f8f9fa;
            border-radius: 8px;
            padding: 20px;
            border-left: 4px solid #0f766e;
        }
        .card h3 {
            font-size: 0.9rem;
            color: #6c757d;
            text-transform: uppercase;
            letter-spacing: 0.5px;
            margin-bottom: 10px;
        }
        .card .value {
            font-size: 2rem;
            font-weight: bold;
        }
        .card .subvalue {
            font-size: 0.85rem;
            color: #6c757d;
            margin-top: 5px;
        }
        .section {
            margin-bottom: 40px;
        }
        .section h2 {
            font-size: 1.5rem;
            margin-bottom: 20px;
            padding-bottom: 10px;
            border-bottom: 2px solid #e5e7eb;
        }
        .bar-row {
            display: flex;
            align-items: center;
            margin-bottom: 10px;
        }
        .bar-label {
            width: 200px;
            font-size: 0.9rem;
        }
        .bar {
            height: 24px;
            background: #0f766e;
            border-radius: 4px;
            color: white;
            font-size: 0.8rem;
            padding-left: 8px;
            white-space: nowrap;
        }
        table {
            width: 100%;
            border-collapse: collapse;
            background: white;
        }
        th, td {
            text-align: left;
            padding: 12px;
            border-bottom: 1px solid #e5e7eb;
        }
        th {
            background: #f8f9fa;
            font-weight: 600;
            color: #4b5563;
            font-size: 0.9rem;
            text-transform: uppercase;
            letter-spacing: 0.5px;
        }
        .badge {
            display: inline-block;
            padding: 4px 12px;
            border-radius: 12px;
            font-size: 0.85rem;
            font-weight: 600;
        }
        .badge-success {
            background: #d1fae5;
            color: #065f46;
        }
        .badge-error {
            background: #fee2e2;
            color: #991b1b;
        }
    </style>
</head>
<body>
    <div class="container">
        <header>
            <h1>Concurrency Benchmark Report</h1>
            <div class="meta">Generated: {{.GeneratedAt}} | Runs: {{len .Runs}}</div>
        </header>
        <div class="content">
            {{with .Comparison}}
            <div class="grid">
                <div class="card">
                    <h3>Time Ratio</h3>
                    <div class="value">{{.TimeRatio}}</div>
                    <div class="subvalue">platform / virtual</div>
                </div>
                <div class="card">
                    <h3>Memory Difference</h3>
                    <div class="value">{{.MemoryDifferenceMB}} MB</div>
                    <div class="subvalue">platform - virtual</div>
                </div>
            </div>
            {{end}}

            {{if .Bars}}
            <div class="section">
                <h2>Total Time</h2>
                {{range .Bars}}
                <div class="bar-row">
                    <div class="bar-label">{{.Label}}</div>
                    <div class="bar" style="width: {{formatFloat .Percent}}%">{{.Value}} ms</div>
                </div>
                {{end}}
            </div>
            {{end}}

            <div class="section">
                <h2>Runs</h2>
                <table>
                    <thead>
                        <tr>
                            <th>Thread Type</th>
                            <th>Requests</th>
                            <th>Delay (ms)</th>
                            <th>Total (ms)</th>
                            <th>Avg/Request (ms)</th>
                            <th>Throughput (req/s)</th>
                            <th>Memory (MB)</th>
                            <th>Unit P99 (ms)</th>
                            <th>Failed</th>
                        </tr>
                    </thead>
                    <tbody>
                        {{range .Runs}}
                        <tr>
                            <td>{{.ThreadType}}{{if .PoolSize}} ({{.PoolSize}}){{end}}</td>
                            <td>{{.Requests}}</td>
                            <td>{{.DelayMs}}</td>
                            <td>{{.TotalTimeMs}}</td>
                            <td>{{formatFloat .AvgTimePerRequestMs}}</td>
                            <td>{{formatFloat .ThroughputRPS}}</td>
                            <td>{{formatFloat .MemoryUsedMB}}</td>
                            <td>{{if .Units}}{{formatFloat .Units.P99LatencyMs}}{{else}}-{{end}}</td>
                            <td>{{if .Units}}{{.Units.Failures}}{{else}}-{{end}}</td>
                        </tr>
                        {{end}}
                    </tbody>
                </table>
            </div>

            {{if .ThresholdSummary}}
            <div class="section">
                <h2>Thresholds ({{.ThresholdSummary.Passed}}/{{.ThresholdSummary.Total}} Passed)</h2>
                <table>
                    <thead>
                        <tr>
                            <th>Threshold</th>
                            <th>Subject</th>
                            <th>Expected</th>
                            <th>Actual</th>
                            <th>Status</th>
                        </tr>
                    </thead>
                    <tbody>
                        {{range .ThresholdSummary.Results}}
                        <tr>
                            <td>{{.Threshold}}</td>
                            <td>{{.Subject}}</td>
                            <td>{{.Operator}} {{formatFloat .Expected}}</td>
                            <td>{{formatFloat .Actual}}</td>
                            <td>
                                {{if .Pass}}
                                <span class="badge badge-success">✓ PASS</span>
                                {{else}}
                                <span class="badge badge-error">✗ FAIL</span>
                                {{end}}
                            </td>
                        </tr>
                        {{end}}
                    </tbody>
                </table>
            </div>
            {{end}}
        </div>
    </div>
</body>
</html>
`
