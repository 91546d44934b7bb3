// Package holocron parses daemon flags and wires the governance kernel
// behind the MCP stdio server.
package holocron

import (
	"context"
	"flag"
	"fmt"
	"log"
	"time"

	"github.com/docflowGM/holocron/internal/governance/authority"
	"github.com/docflowGM/holocron/internal/governance/delta"
	"github.com/docflowGM/holocron/internal/governance/integrity"
	"github.com/docflowGM/holocron/internal/governance/intent"
	"github.com/docflowGM/holocron/internal/governance/monitor"
	"github.com/docflowGM/holocron/internal/governance/monitor/layers"
	"github.com/docflowGM/holocron/internal/host"
	mcpserver "github.com/docflowGM/holocron/internal/mcp"
	"github.com/docflowGM/holocron/internal/platform/config"
	"github.com/docflowGM/holocron/internal/platform/otel"
	"github.com/docflowGM/holocron/internal/storage"
	"github.com/docflowGM/holocron/internal/storage/memory"
	"github.com/docflowGM/holocron/internal/storage/sqlite"
)

// Config holds daemon configuration.
type Config struct {
	DBPath          string `env:"HOLOCRON_DB_PATH"`
	MonitorMode     string `env:"HOLOCRON_MONITOR_MODE"     envDefault:"monitor"`
	SampleThreshold int    `env:"HOLOCRON_SAMPLE_THRESHOLD" envDefault:"3"`
	Freebuild       bool   `env:"HOLOCRON_FREEBUILD"        envDefault:"false"`
	ApplyBudgetMS   int    `env:"HOLOCRON_APPLY_BUDGET_MS"  envDefault:"200"`
	StormWindowMS   int    `env:"HOLOCRON_STORM_WINDOW_MS"  envDefault:"1000"`
	StormLimit      int    `env:"HOLOCRON_STORM_LIMIT"      envDefault:"30"`
	SeedEntity      string `env:"HOLOCRON_SEED_ENTITY"      envDefault:"sandbox"`
}

// ParseConfig parses environment and flags into a Config.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := config.ParseEnv(&cfg); err != nil {
		return Config{}, err
	}

	fs.StringVar(&cfg.DBPath, "db", cfg.DBPath, "sqlite database path (empty keeps logs in memory)")
	fs.StringVar(&cfg.MonitorMode, "monitor-mode", cfg.MonitorMode, "monitor mode: off, monitor, or enforce")
	fs.IntVar(&cfg.SampleThreshold, "sample-threshold", cfg.SampleThreshold, "aggregated occurrences recorded before escalation")
	fs.BoolVar(&cfg.Freebuild, "freebuild", cfg.Freebuild, "relax prerequisite enforcement for every compiled step")
	fs.IntVar(&cfg.ApplyBudgetMS, "apply-budget-ms", cfg.ApplyBudgetMS, "performance budget per mutation, in milliseconds")
	fs.IntVar(&cfg.StormWindowMS, "storm-window-ms", cfg.StormWindowMS, "event storm detection window, in milliseconds")
	fs.IntVar(&cfg.StormLimit, "storm-limit", cfg.StormLimit, "changes per window before an event storm is reported")
	fs.StringVar(&cfg.SeedEntity, "seed-entity", cfg.SeedEntity, "id of the sandbox entity seeded at startup")
	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Run wires the kernel and serves MCP on stdio until the context ends.
func Run(ctx context.Context, cfg Config) error {
	shutdown, err := otel.Setup(ctx, "holocron")
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdown(shutdownCtx); err != nil {
			log.Printf("otel shutdown: %v", err)
		}
	}()

	mode, err := monitor.ParseMode(cfg.MonitorMode)
	if err != nil {
		return err
	}

	var mutations storage.MutationLogStore
	var violations storage.ViolationStore
	if cfg.DBPath != "" {
		store, err := sqlite.Open(cfg.DBPath)
		if err != nil {
			return fmt.Errorf("open database: %w", err)
		}
		defer func() {
			if err := store.Close(); err != nil {
				log.Printf("close database: %v", err)
			}
		}()
		mutations = store
		violations = store
	} else {
		mutations = memory.NewStore()
		violations = memory.NewStore()
	}

	h := host.NewMemoryHost()
	seedEntity(h, cfg.SeedEntity)

	registry := monitor.NewRegistry(monitor.Options{
		Mode:            mode,
		SampleThreshold: cfg.SampleThreshold,
		Store:           violations,
	})

	asyncFailures := layers.NewAsyncFailures()
	registrations := []struct {
		id    string
		layer monitor.Layer
	}{
		{layers.LayerSovereignty, layers.NewSovereignty(h)},
		{layers.LayerStructure, layers.NewStructure()},
		{layers.LayerAsyncFail, asyncFailures},
		{layers.LayerPerformance, layers.NewPerformance(time.Duration(cfg.ApplyBudgetMS) * time.Millisecond)},
		{layers.LayerEventStorm, layers.NewEventStorm(h, time.Duration(cfg.StormWindowMS)*time.Millisecond, cfg.StormLimit)},
		{layers.LayerSurface, layers.NewSurface()},
	}
	for _, reg := range registrations {
		if err := registry.RegisterLayer(reg.id, reg.layer); err != nil {
			return fmt.Errorf("register layer %s: %w", reg.id, err)
		}
	}
	// a broken layer stays down while the rest of the monitor comes up
	if err := registry.Bootstrap(ctx); err != nil {
		log.Printf("monitor bootstrap: %v", err)
	}

	auth, err := authority.New(authority.Options{
		Host:           h,
		Mutations:      mutations,
		Violations:     violations,
		Monitor:        registry,
		Checker:        integrity.NewChecker(),
		OnAsyncFailure: asyncFailures.Capture,
	})
	if err != nil {
		return err
	}

	server, err := mcpserver.NewServer(mcpserver.Kernel{
		Compiler:   intent.NewCompiler(intent.Options{Freebuild: cfg.Freebuild}),
		Authority:  auth,
		Host:       h,
		Mutations:  mutations,
		Violations: violations,
		Monitor:    registry,
	})
	if err != nil {
		return err
	}
	return server.Serve(ctx)
}

// seedEntity creates the sandbox character every session starts from:
// baseline abilities, level 1, no credits, nothing selected yet.
func seedEntity(h *host.MemoryHost, entityID string) {
	if entityID == "" {
		return
	}
	abilities := map[string]any{}
	for _, key := range []string{"str", "dex", "con", "int", "wis", "cha"} {
		abilities[key] = map[string]any{"base": float64(10)}
	}
	h.PutEntity(entityID, map[string]any{
		"credits":        float64(0),
		"level":          float64(1),
		"skillBudget":    float64(4),
		"forceSensitive": false,
		"abilities":      abilities,
	}, map[string][]delta.Item{})
}
