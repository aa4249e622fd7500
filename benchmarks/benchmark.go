package main

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"tierlock/pkg/locking/heavy"
	"tierlock/pkg/locking/monitor"
	"tierlock/pkg/primitives"
)

const benchType primitives.TypeID = 1

// BenchmarkResult captures detailed performance metrics for a single benchmark test.
// It includes timing statistics, throughput metrics, and the lock path
// distribution the scenario produced.
type BenchmarkResult struct {
	Scenario       string           `json:"scenario"`           // Descriptive name of the benchmark test
	Description    string           `json:"description"`        // What the scenario exercises
	Iterations     int              `json:"iterations"`         // Enter/exit pairs per worker
	Workers        int              `json:"workers"`            // Number of concurrent goroutines
	TotalDuration  time.Duration    `json:"total_duration_ns"`  // Total time taken for all iterations
	AvgDuration    time.Duration    `json:"avg_duration_ns"`    // Average time per enter/exit pair
	MinDuration    time.Duration    `json:"min_duration_ns"`    // Fastest pair
	MaxDuration    time.Duration    `json:"max_duration_ns"`    // Slowest pair
	MedianDuration time.Duration    `json:"median_duration_ns"` // Median pair
	P95Duration    time.Duration    `json:"p95_duration_ns"`    // 95th percentile
	P99Duration    time.Duration    `json:"p99_duration_ns"`    // 99th percentile
	OpsPerSecond   float64          `json:"ops_per_second"`     // Throughput metric
	ErrorCount     int              `json:"error_count"`        // Failed enters or exits
	PathCounts     map[string]int64 `json:"path_counts"`        // Which tiers the scenario hit
	Timestamp      time.Time        `json:"timestamp"`          // When this benchmark was executed
}

// BenchmarkReport aggregates results from all benchmark tests into a single report.
type BenchmarkReport struct {
	StartTime     time.Time         `json:"start_time"`
	EndTime       time.Time         `json:"end_time"`
	TotalDuration time.Duration     `json:"total_duration"`
	Results       []BenchmarkResult `json:"results"`
}

// scenario is one benchmark configuration. A fresh manager and counter
// group back every run so the path distribution is attributable.
type scenario struct {
	name        string
	description string
	workers     int
	objects     int
	biasable    bool
	depth       int
}

// main orchestrates the entire benchmark suite execution.
// It reads configuration from environment variables, runs all scenarios,
// and generates both JSON and HTML reports.
//
// Environment variables:
//   - BENCHMARK_OUTPUT: Directory for output reports (default: ./benchmark-results)
//   - BENCHMARK_ITERATIONS: Enter/exit pairs per worker (default: 100000)
func main() {
	outputDir := filepath.Clean(os.Getenv("BENCHMARK_OUTPUT"))
	if outputDir == "." {
		outputDir = "./benchmark-results"
	}

	iterations := 100000
	if iter := os.Getenv("BENCHMARK_ITERATIONS"); iter != "" {
		_, _ = fmt.Sscanf(iter, "%d", &iterations)
	}

	_ = os.MkdirAll(outputDir, 0o750) // #nosec G703

	log.Printf("Starting benchmark suite...")
	log.Printf("Iterations per worker: %d", iterations)

	report := BenchmarkReport{
		StartTime: time.Now(),
		Results:   []BenchmarkResult{},
	}

	scenarios := []scenario{
		{
			name:        "Biased reacquire",
			description: "One thread re-entering its own biased object",
			workers:     1, objects: 1, biasable: true, depth: 1,
		},
		{
			name:        "Uncontended CAS",
			description: "One thread stack-locking a non-biasable object",
			workers:     1, objects: 1, biasable: false, depth: 1,
		},
		{
			name:        "Recursive CAS",
			description: "Nested enters resolved by the recursion sentinel",
			workers:     1, objects: 1, biasable: false, depth: 3,
		},
		{
			name:        "Contended pair",
			description: "Two threads forcing inflation on a single object",
			workers:     2, objects: 1, biasable: false, depth: 1,
		},
		{
			name:        "Contended pool",
			description: "Eight threads over a pool of four objects",
			workers:     8, objects: 4, biasable: false, depth: 1,
		},
	}

	for _, sc := range scenarios {
		log.Printf("%s", "\n"+strings.Repeat("=", 80))
		log.Printf("TEST: %s", sc.name)
		log.Printf("%s", strings.Repeat("=", 80))
		log.Printf("%s", sc.description)
		log.Printf("")

		log.Printf("→ Running %d workers × %d iterations...", sc.workers, iterations)
		result := runBenchmark(sc, iterations)
		report.Results = append(report.Results, result)
		printBenchmarkResult(result)
	}

	report.EndTime = time.Now()
	report.TotalDuration = report.EndTime.Sub(report.StartTime)

	timestamp := time.Now().Format("20060102_150405")
	jsonFile := fmt.Sprintf("%s/benchmark_report_%s.json", outputDir, timestamp)
	htmlFile := fmt.Sprintf("%s/benchmark_report_%s.html", outputDir, timestamp)

	log.Printf("%s", "\n"+strings.Repeat("=", 80))
	log.Printf("BENCHMARK SUITE COMPLETE")
	log.Printf("%s", strings.Repeat("=", 80))
	log.Printf("")
	log.Printf("  Summary:")
	log.Printf("    Total Duration:     %s", formatDuration(report.TotalDuration))
	log.Printf("    Scenarios Run:      %d", len(report.Results))
	log.Printf("")
	log.Printf("  Saving reports...")

	saveJSONReport(report, jsonFile)
	saveHTMLReport(report, htmlFile)

	log.Printf("")
	log.Printf("  ✓ Reports saved to: %s", outputDir) // #nosec G706
	log.Printf("")
	log.Printf("%s", strings.Repeat("=", 80))
}

// runBenchmark executes one scenario on a fresh manager. Every worker
// times each enter/exit pair; the per-pair durations feed the percentile
// statistics and the scenario's counter group records which paths ran.
func runBenchmark(sc scenario, iterations int) BenchmarkResult {
	types := monitor.NewTypeRegistry()
	types.Register(benchType, sc.biasable)
	rt := heavy.NewRuntime(types)
	mgr := monitor.NewManager(types, rt.Table(), rt)

	stats := monitor.NewCounterGroup(sc.name)
	mgr.SetDiagnostics(stats)
	rt.SetDiagnostics(stats)

	pool := make([]*monitor.Object, sc.objects)
	for i := range pool {
		pool[i] = monitor.NewObject(benchType, types)
	}

	durations := make([]time.Duration, 0, iterations*sc.workers)
	var mu sync.Mutex
	var wg sync.WaitGroup

	errorCount := 0
	startTime := time.Now()

	for w := 0; w < sc.workers; w++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()

			th := monitor.NewThread()
			local := make([]time.Duration, 0, iterations)
			failures := 0

			for i := 0; i < iterations; i++ {
				obj := pool[(worker+i)%len(pool)]

				pairStart := time.Now()
				for d := 0; d < sc.depth; d++ {
					if err := mgr.Enter(obj, th); err != nil {
						failures++
					}
				}
				for d := 0; d < sc.depth; d++ {
					if err := mgr.Exit(obj, th); err != nil {
						failures++
					}
				}
				local = append(local, time.Since(pairStart))
			}

			mu.Lock()
			durations = append(durations, local...)
			errorCount += failures
			mu.Unlock()
		}(w)
	}

	wg.Wait()
	totalDuration := time.Since(startTime)

	slices.Sort(durations)

	var sum time.Duration
	for _, d := range durations {
		sum += d
	}

	pathCounts := make(map[string]int64)
	for _, s := range stats.Snapshot() {
		pathCounts[s.Path] = s.Value
	}

	totalOps := iterations * sc.workers
	return BenchmarkResult{
		Scenario:       sc.name,
		Description:    sc.description,
		Iterations:     iterations,
		Workers:        sc.workers,
		TotalDuration:  totalDuration,
		AvgDuration:    sum / time.Duration(len(durations)),
		MinDuration:    durations[0],
		MaxDuration:    durations[len(durations)-1],
		MedianDuration: durations[len(durations)/2],
		P95Duration:    durations[int(float64(len(durations))*0.95)],
		P99Duration:    durations[int(float64(len(durations))*0.99)],
		OpsPerSecond:   float64(totalOps) / totalDuration.Seconds(),
		ErrorCount:     errorCount,
		PathCounts:     pathCounts,
		Timestamp:      time.Now(),
	}
}

// formatDuration formats a duration in a human-readable way with appropriate units.
// Examples: 1.23ms, 456.78µs, 12.34s
func formatDuration(d time.Duration) string {
	switch {
	case d >= time.Second:
		return fmt.Sprintf("%.2fs", d.Seconds())
	case d >= time.Millisecond:
		return fmt.Sprintf("%.2fms", float64(d.Microseconds())/1000.0)
	case d >= time.Microsecond:
		return fmt.Sprintf("%.2fµs", float64(d.Nanoseconds())/1000.0)
	default:
		return fmt.Sprintf("%dns", d.Nanoseconds())
	}
}

// printBenchmarkResult outputs benchmark statistics to the console in a
// human-readable format, including the dominant lock paths.
func printBenchmarkResult(result BenchmarkResult) {
	log.Printf("  ┌─ Results")
	log.Printf("  │  Total Time:        %s", formatDuration(result.TotalDuration))                                        // #nosec G706
	log.Printf("  │  Avg per Pair:      %s", formatDuration(result.AvgDuration))                                          // #nosec G706
	log.Printf("  │  Min / Max:         %s / %s", formatDuration(result.MinDuration), formatDuration(result.MaxDuration)) // #nosec G706
	log.Printf("  │  Median (P50):      %s", formatDuration(result.MedianDuration))                                       // #nosec G706
	log.Printf("  │  P95:               %s", formatDuration(result.P95Duration))                                          // #nosec G706
	log.Printf("  │  P99:               %s", formatDuration(result.P99Duration))                                          // #nosec G706
	log.Printf("  │  Throughput:        %.0f pairs/sec", result.OpsPerSecond)                                             // #nosec G706

	if result.ErrorCount > 0 {
		log.Printf("  │  ⚠ Errors:          %d", result.ErrorCount) // #nosec G706
	}

	log.Printf("  │")
	log.Printf("  │  Paths taken:")
	for _, s := range sortedPaths(result.PathCounts) {
		log.Printf("  │    %-28s %d", s, result.PathCounts[s]) // #nosec G706
	}
	log.Printf("  └─")
}

func sortedPaths(counts map[string]int64) []string {
	paths := make([]string, 0, len(counts))
	for p := range counts {
		paths = append(paths, p)
	}
	slices.Sort(paths)
	return paths
}

// saveJSONReport serializes the benchmark report to a JSON file.
func saveJSONReport(report BenchmarkReport, filename string) {
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		log.Printf("Error marshaling report: %v", err)
		return
	}

	if err := os.WriteFile(filename, data, 0o600); err != nil { // #nosec G703
		log.Printf("Error writing JSON report: %v", err)
		return
	}

	log.Printf("JSON report saved: %s", filename) // #nosec G706
}

// saveHTMLReport generates a styled HTML report from the benchmark results.
// The report uses Tailwind CSS for styling and Cascadia Code font, and
// includes summary information plus a detailed results table.
func saveHTMLReport(report BenchmarkReport, filename string) {
	html := fmt.Sprintf(`<!DOCTYPE html>
<html>
<head>
	<meta charset="UTF-8">
	<meta name="viewport" content="width=device-width, initial-scale=1.0">
	<title>tierlock Benchmark Report - %s</title>
	<script src="https://cdn.tailwindcss.com"></script>
	<link rel="preconnect" href="https://fonts.googleapis.com">
	<link rel="preconnect" href="https://fonts.gstatic.com" crossorigin>
	<link href="https://fonts.googleapis.com/css2?family=Cascadia+Code:wght@400;600;700&display=swap" rel="stylesheet">
	<style>
		body {
			font-family: 'Cascadia Code', monospace;
		}
	</style>
</head>
<body class="bg-gray-100 p-6">
	<div class="max-w-7xl mx-auto bg-white rounded-lg shadow-lg p-8">
		<h1 class="text-4xl font-bold text-gray-800 border-b-4 border-green-500 pb-3 mb-6">
			tierlock Benchmark Report
		</h1>

		<div class="bg-green-50 rounded-lg p-6 mb-8 grid grid-cols-2 md:grid-cols-3 gap-4">
			<div class="space-y-1">
				<div class="text-sm font-semibold text-gray-600">Start Time</div>
				<div class="text-lg text-green-600 font-bold">%s</div>
			</div>
			<div class="space-y-1">
				<div class="text-sm font-semibold text-gray-600">End Time</div>
				<div class="text-lg text-green-600 font-bold">%s</div>
			</div>
			<div class="space-y-1">
				<div class="text-sm font-semibold text-gray-600">Total Duration</div>
				<div class="text-lg text-green-600 font-bold">%v</div>
			</div>
		</div>

		<h2 class="text-2xl font-bold text-gray-700 mt-8 mb-4">Benchmark Results</h2>
		<div class="overflow-x-auto">
			<table class="min-w-full border-collapse">
				<thead>
					<tr class="bg-green-500 text-white">
						<th class="px-4 py-3 text-left font-bold">Scenario</th>
						<th class="px-4 py-3 text-left font-bold">Description</th>
						<th class="px-4 py-3 text-left font-bold">Workers</th>
						<th class="px-4 py-3 text-left font-bold">Iterations</th>
						<th class="px-4 py-3 text-left font-bold">Avg Pair</th>
						<th class="px-4 py-3 text-left font-bold">Min/Max</th>
						<th class="px-4 py-3 text-left font-bold">P95</th>
						<th class="px-4 py-3 text-left font-bold">Pairs/s</th>
					</tr>
				</thead>
				<tbody class="divide-y divide-gray-200">
`,
		report.StartTime.Format("2006-01-02 15:04:05"),
		report.StartTime.Format("2006-01-02 15:04:05"),
		report.EndTime.Format("2006-01-02 15:04:05"),
		report.TotalDuration,
	)

	for _, result := range report.Results {
		html += fmt.Sprintf(`
					<tr class="hover:bg-gray-50 transition-colors">
						<td class="px-4 py-3 font-bold text-gray-800">%s</td>
						<td class="px-4 py-3 text-sm text-gray-700 max-w-md truncate">%s</td>
						<td class="px-4 py-3 text-gray-700">%d</td>
						<td class="px-4 py-3 text-gray-700">%d</td>
						<td class="px-4 py-3 text-gray-700">%v</td>
						<td class="px-4 py-3 text-gray-700">%v / %v</td>
						<td class="px-4 py-3 text-gray-700">%v</td>
						<td class="px-4 py-3 text-green-600 font-semibold">%.2f</td>
					</tr>
`,
			result.Scenario,
			result.Description,
			result.Workers,
			result.Iterations,
			result.AvgDuration,
			result.MinDuration,
			result.MaxDuration,
			result.P95Duration,
			result.OpsPerSecond,
		)
	}

	html += `
				</tbody>
			</table>
		</div>
	</div>
</body>
</html>
`

	if err := os.WriteFile(filename, []byte(html), 0o600); err != nil { // #nosec G703
		log.Printf("Error writing HTML report: %v", err)
		return
	}

	log.Printf("HTML report saved: %s", filename) // #nosec G706
}
