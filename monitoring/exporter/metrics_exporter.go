package main

import (
	"fmt"
	"log"
	"net/http"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"tierlock/pkg/locking/heavy"
	"tierlock/pkg/locking/monitor"
	"tierlock/pkg/lockword"
)

const workloadType = 1

type MetricsCollector struct {
	stats   *monitor.CounterGroup
	started time.Time

	mu         sync.RWMutex
	lastTotal  int64
	lastSample time.Time
	rate       float64
}

func NewMetricsCollector(stats *monitor.CounterGroup) *MetricsCollector {
	now := time.Now()
	return &MetricsCollector{
		stats:      stats,
		started:    now,
		lastSample: now,
	}
}

// UpdateRate recomputes the enter throughput since the previous call.
func (mc *MetricsCollector) UpdateRate() {
	total := int64(0)
	for _, s := range mc.stats.Snapshot() {
		if strings.HasPrefix(s.Path, "lock{") {
			total += s.Value
		}
	}

	mc.mu.Lock()
	defer mc.mu.Unlock()

	now := time.Now()
	elapsed := now.Sub(mc.lastSample).Seconds()
	if elapsed > 0 {
		mc.rate = float64(total-mc.lastTotal) / elapsed
	}
	mc.lastTotal = total
	mc.lastSample = now
}

func (mc *MetricsCollector) GetMetrics() string {
	mc.mu.RLock()
	rate := mc.rate
	mc.mu.RUnlock()

	var b strings.Builder
	b.WriteString("# HELP tierlock_path_total Completions per lock and unlock path\n")
	b.WriteString("# TYPE tierlock_path_total counter\n")
	for _, s := range mc.stats.Snapshot() {
		fmt.Fprintf(&b, "tierlock_path_total{path=%q} %d\n", s.Path, s.Value)
	}

	fmt.Fprintf(&b, `
# HELP tierlock_enters_per_second Current lock acquisitions per second
# TYPE tierlock_enters_per_second gauge
tierlock_enters_per_second %.2f

# HELP tierlock_uptime_seconds Exporter uptime
# TYPE tierlock_uptime_seconds gauge
tierlock_uptime_seconds %.0f

# HELP tierlock_up Exporter up status (1 = up, 0 = down)
# TYPE tierlock_up gauge
tierlock_up 1
`,
		rate,
		time.Since(mc.started).Seconds(),
	)

	return b.String()
}

// StartSimulation drives a steady synthetic workload so scraped counters
// move even when nothing else uses the manager.
func (mc *MetricsCollector) StartSimulation(mgr *monitor.Manager, workers, objects int) {
	shared := make([]*monitor.Object, objects)
	for i := range shared {
		shared[i] = monitor.NewObjectWithHeader(workloadType, lockword.Word(lockword.Unlocked))
	}

	for w := 0; w < workers; w++ {
		go func(seed int) {
			th := monitor.NewThread()
			for i := seed; ; i++ {
				obj := shared[i%len(shared)]
				if err := mgr.Enter(obj, th); err != nil {
					log.Printf("enter failed: %v", err)
					continue
				}
				time.Sleep(time.Microsecond)
				if err := mgr.Exit(obj, th); err != nil {
					log.Printf("exit failed: %v", err)
				}
			}
		}(w)
	}

	go func() {
		ticker := time.NewTicker(5 * time.Second)
		defer ticker.Stop()
		for range ticker.C {
			mc.UpdateRate()
		}
	}()
}

func envInt(name string, fallback int) int {
	if v := os.Getenv(name); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
	}
	return fallback
}

func main() {
	workers := envInt("LOCK_WORKERS", 4)
	objects := envInt("LOCK_OBJECTS", 8)

	metricsPort := os.Getenv("METRICS_PORT")
	if metricsPort == "" {
		metricsPort = "8080"
	}

	log.Printf("Starting tierlock Metrics Exporter...")
	log.Printf("Workload: %d workers over %d objects", workers, objects)
	log.Printf("Metrics Port: %s", metricsPort) // #nosec G706

	types := monitor.NewTypeRegistry()
	// Multiple workers share every object, so biasing would only churn
	// through revocations here.
	types.Register(workloadType, false)
	rt := heavy.NewRuntime(types)
	mgr := monitor.NewManager(types, rt.Table(), rt)

	stats := monitor.NewCounterGroup("exporter")
	mgr.SetDiagnostics(stats)
	rt.SetDiagnostics(stats)

	collector := NewMetricsCollector(stats)
	collector.StartSimulation(mgr, workers, objects)

	mux := http.NewServeMux()
	mux.HandleFunc("/metrics", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4")
		fmt.Fprint(w, collector.GetMetrics())
	})
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprint(w, "OK")
	})

	srv := &http.Server{
		Addr:         ":" + metricsPort,
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	log.Printf("Metrics available at http://localhost:%s/metrics", metricsPort) // #nosec G706
	log.Fatal(srv.ListenAndServe())
}
