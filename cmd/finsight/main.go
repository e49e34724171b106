// Command finsight runs the financial reasoning core.
//
// Usage:
//
//	finsight serve
//	finsight ask --user 9f2c... "How much did I spend last month?"
//	finsight version
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"runtime/debug"
	"time"

	"github.com/alecthomas/kong"

	"github.com/finsightai/finsight/pkg/config"
	"github.com/finsightai/finsight/pkg/db"
	"github.com/finsightai/finsight/pkg/llms"
	"github.com/finsightai/finsight/pkg/logger"
	"github.com/finsightai/finsight/pkg/memory"
	"github.com/finsightai/finsight/pkg/modeling"
	"github.com/finsightai/finsight/pkg/montecarlo"
	"github.com/finsightai/finsight/pkg/observability"
	"github.com/finsightai/finsight/pkg/orchestrator"
	"github.com/finsightai/finsight/pkg/planner"
	"github.com/finsightai/finsight/pkg/profile"
	"github.com/finsightai/finsight/pkg/resolver"
	"github.com/finsightai/finsight/pkg/server"
	"github.com/finsightai/finsight/pkg/sqlagent"
)

// CLI defines the command-line interface.
type CLI struct {
	Version VersionCmd `cmd:"" help:"Show version information."`
	Serve   ServeCmd   `cmd:"" help:"Start the HTTP server."`
	Ask     AskCmd     `cmd:"" help:"Answer a single question from the command line."`

	Config    string `help:"Path to a YAML config file overlaid on the environment." type:"existingfile"`
	LogLevel  string `help:"Log level (debug, info, warn, error)." default:"info"`
	LogFormat string `help:"Log format (simple or verbose)." default:"simple"`
}

// VersionCmd shows version information.
type VersionCmd struct{}

func (c *VersionCmd) Run() error {
	version := "dev"
	if info, ok := debug.ReadBuildInfo(); ok {
		if info.Main.Version != "(devel)" && info.Main.Version != "" {
			version = info.Main.Version
		}
	}
	fmt.Printf("finsight version %s\n", version)
	return nil
}

// ServeCmd starts the HTTP server.
type ServeCmd struct {
	Addr string `help:"Listen address (overrides LISTEN_ADDR)."`
}

func (c *ServeCmd) Run(cli *CLI) error {
	deps, err := buildDependencies(cli)
	if err != nil {
		return err
	}
	defer deps.close()

	addr := deps.cfg.ListenAddr
	if c.Addr != "" {
		addr = c.Addr
	}

	srv := server.New(deps.orch, server.BearerUserID{}, deps.metrics)
	return srv.ListenAndServe(addr)
}

// AskCmd answers one question and prints the JSON result.
type AskCmd struct {
	User     string `required:"" help:"User id (UUID)."`
	Session  string `help:"Session id for memory continuity."`
	Question string `arg:"" help:"The question to answer."`
}

func (c *AskCmd) Run(cli *CLI) error {
	deps, err := buildDependencies(cli)
	if err != nil {
		return err
	}
	defer deps.close()

	ctx, cancel := context.WithTimeout(context.Background(), 6*time.Minute)
	defer cancel()

	result := deps.orch.Process(ctx, c.User, c.Question, c.Session)

	out, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}

type dependencies struct {
	cfg     *config.Config
	pool    *db.Pool
	orch    *orchestrator.Orchestrator
	metrics *observability.Metrics
}

func (d *dependencies) close() {
	if d.pool != nil {
		_ = d.pool.Close()
	}
}

func buildDependencies(cli *CLI) (*dependencies, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if cli.Config != "" {
		if err := cfg.ApplyFile(cli.Config); err != nil {
			return nil, err
		}
	}

	level, _ := logger.ParseLevel(cli.LogLevel)
	logger.Init(level, os.Stderr, cli.LogFormat)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	pool, err := db.Open(cfg)
	if err != nil {
		return nil, err
	}

	plannerLLM := llms.NewOpenAIProvider(cfg, cfg.PlannerModel)
	mainLLM := llms.NewOpenAIProvider(cfg, cfg.LLMModel)

	metrics := observability.NewMetrics()

	pl := planner.New(plannerLLM, cfg.DefaultMerchantWindowDays)
	sa := sqlagent.New(mainLLM, nil)
	mc := montecarlo.New(cfg.NumSimulations, 42)
	ma := modeling.NewAgent(mainLLM, mc)
	pb := profile.New(pool, time.Duration(cfg.ProfilePackCacheMinutes)*time.Minute, nil)
	res := resolver.New(pool, time.Duration(cfg.MerchantResolverCacheMinutes)*time.Minute)

	var mem *memory.Store
	if cfg.MemoryEnabled {
		mem, err = memory.NewStore(pool.DB(), "postgres")
		if err != nil {
			pool.Close()
			return nil, fmt.Errorf("failed to initialize memory store: %w", err)
		}
	}

	orch := orchestrator.New(cfg, pl, sa, ma, pb, pool, orchestrator.Options{
		Resolver: res,
		Memory:   mem,
		Metrics:  metrics,
	})

	return &dependencies{cfg: cfg, pool: pool, orch: orch, metrics: metrics}, nil
}

func main() {
	cli := &CLI{}
	kctx := kong.Parse(cli,
		kong.Name("finsight"),
		kong.Description("Multi-agent personal-finance reasoning core."),
		kong.UsageOnError(),
	)
	if err := kctx.Run(cli); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
