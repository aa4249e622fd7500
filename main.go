package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"time"

	"tierlock/pkg/locking/heavy"
	"tierlock/pkg/locking/monitor"
	"tierlock/pkg/lockword"
	"tierlock/pkg/primitives"
	"tierlock/pkg/ui"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"go.uber.org/atomic"
	"golang.org/x/sync/errgroup"
)

type Configuration struct {
	Workers    int
	Objects    int
	Duration   time.Duration
	Contention int
	Biasing    bool
	Balance    bool
	Deflate    bool
	Dashboard  bool
}

const (
	privateType primitives.TypeID = 1
	sharedType  primitives.TypeID = 2
)

func main() {
	config := parseArguments()
	showSplashScreen()

	types := monitor.NewTypeRegistry()
	// Private objects profit from biasing; shared ones are contended from
	// the start, so they go straight to the CAS tier.
	types.Register(privateType, config.Biasing)
	types.Register(sharedType, false)

	rt := heavy.NewRuntime(types)
	mgr := monitor.NewManager(types, rt.Table(), rt)

	stats := monitor.NewCounterGroup("workload")
	mgr.SetDiagnostics(stats)
	rt.SetDiagnostics(stats)

	ops := atomic.NewInt64(0)
	ctx, cancel := context.WithTimeout(context.Background(), config.Duration)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- runWorkload(ctx, config, types, mgr, rt, ops)
	}()

	if config.Dashboard {
		if err := startDashboard(stats, ops, config); err != nil {
			log.Fatalf("Failed to start UI: %v", err)
		}
		cancel()
	}

	if err := <-done; err != nil {
		log.Fatalf("Workload failed: %v", err)
	}
	printSummary(stats, ops.Load(), config)
}

// parseArguments processes command-line flags
func parseArguments() Configuration {
	var config Configuration

	flag.IntVar(&config.Workers, "workers", 8, "Number of locking goroutines")
	flag.IntVar(&config.Objects, "objects", 16, "Shared objects in the contended pool")
	flag.DurationVar(&config.Duration, "duration", 10*time.Second, "How long to run the workload")
	flag.IntVar(&config.Contention, "contention", 20, "Percent of operations that hit the shared pool")
	flag.BoolVar(&config.Biasing, "bias", true, "Enable biased locking for private objects")
	flag.BoolVar(&config.Balance, "balance", false, "Verify per-thread enter/exit balance on shutdown")
	flag.BoolVar(&config.Deflate, "deflate", true, "Periodically deflate idle monitors")
	flag.BoolVar(&config.Dashboard, "tui", false, "Show the live path-counter dashboard")

	flag.Parse()

	if config.Contention < 0 {
		config.Contention = 0
	} else if config.Contention > 100 {
		config.Contention = 100
	}
	return config
}

// showSplashScreen displays an attractive welcome screen
func showSplashScreen() {
	splash := `
╔══════════════════════════════════════════════════════════╗
║                                                          ║
║   ████████╗██╗███████╗██████╗ ██╗      ██████╗  ██████╗  ║
║   ╚══██╔══╝██║██╔════╝██╔══██╗██║     ██╔═══██╗██╔════╝  ║
║      ██║   ██║█████╗  ██████╔╝██║     ██║   ██║██║       ║
║      ██║   ██║██╔══╝  ██╔══██╗██║     ██║   ██║██║       ║
║      ██║   ██║███████╗██║  ██║███████╗╚██████╔╝╚██████╗  ║
║      ╚═╝   ╚═╝╚══════╝╚═╝  ╚═╝╚══════╝ ╚═════╝  ╚═════╝  ║
║                                                          ║
║        Biased, Lightweight and Inflated Locking 🔒       ║
╚══════════════════════════════════════════════════════════╝
`

	style := lipgloss.NewStyle().
		Foreground(lipgloss.Color("#7C3AED")).
		Bold(true)

	fmt.Println(style.Render(splash))
}

// runWorkload drives every tier at once: each worker hammers a private
// object (bias tier), dips into a shared pool at the configured rate
// (CAS and inflated tiers), and occasionally recurses.
func runWorkload(ctx context.Context, config Configuration, types *monitor.TypeRegistry, mgr *monitor.Manager, rt *heavy.Runtime, ops *atomic.Int64) error {
	pool := make([]*monitor.Object, config.Objects)
	for i := range pool {
		pool[i] = monitor.NewObjectWithHeader(sharedType, lockword.Word(lockword.Unlocked))
	}

	var g errgroup.Group
	for w := 0; w < config.Workers; w++ {
		seed := int64(w)
		g.Go(func() error {
			rng := rand.New(rand.NewSource(seed))
			th := monitor.NewThread()
			if config.Balance {
				th.EnableBalanceChecking()
			}
			private := monitor.NewObject(privateType, types)

			for ctx.Err() == nil {
				obj := private
				if rng.Intn(100) < config.Contention {
					obj = pool[rng.Intn(len(pool))]
				}

				depth := 1
				if rng.Intn(16) == 0 {
					depth = 3
				}
				for d := 0; d < depth; d++ {
					if err := mgr.Enter(obj, th); err != nil {
						return err
					}
				}
				for d := 0; d < depth; d++ {
					if err := mgr.Exit(obj, th); err != nil {
						return err
					}
				}
				ops.Inc()
			}

			if config.Balance {
				th.VerifyBalanced()
			}
			return nil
		})
	}

	if config.Deflate {
		g.Go(func() error {
			ticker := time.NewTicker(100 * time.Millisecond)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return nil
				case <-ticker.C:
					for _, obj := range pool {
						rt.DeflateIdle(obj)
					}
				}
			}
		})
	}

	return g.Wait()
}

// startDashboard launches the Bubble Tea UI
func startDashboard(stats *monitor.CounterGroup, ops *atomic.Int64, config Configuration) error {
	status := func() string {
		return fmt.Sprintf("%d workers | %s ops", config.Workers, formatOps(ops.Load()))
	}
	model := ui.NewModel(stats, status)

	p := tea.NewProgram(
		model,
		tea.WithAltScreen(),
	)

	if _, err := p.Run(); err != nil {
		return fmt.Errorf("error running program: %v", err)
	}
	return nil
}

func printSummary(stats *monitor.CounterGroup, ops int64, config Configuration) {
	headerStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("#06B6D4")).
		Bold(true)
	pathStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("#CBD5E1")).
		Width(30)
	valueStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("#10B981")).
		Align(lipgloss.Right).
		Width(14)

	perSecond := float64(ops) / config.Duration.Seconds()
	fmt.Println(headerStyle.Render(fmt.Sprintf(
		"✅ %s operations in %v (%.0f ops/s)", formatOps(ops), config.Duration, perSecond)))
	fmt.Println()

	for _, s := range stats.Snapshot() {
		fmt.Println(pathStyle.Render(s.Path) + valueStyle.Render(fmt.Sprintf("%d", s.Value)))
	}
}

// formatOps limits large counts for display
func formatOps(n int64) string {
	switch {
	case n >= 1_000_000:
		return fmt.Sprintf("%.1fM", float64(n)/1_000_000)
	case n >= 1_000:
		return fmt.Sprintf("%.1fk", float64(n)/1_000)
	default:
		return fmt.Sprintf("%d", n)
	}
}
