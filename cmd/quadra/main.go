// Command quadra runs bounded ETL investigations from the terminal or as
// an HTTP service.
//
// Usage:
//
//	quadra -task "Analyze etl_vendite and propose a fix"
//	quadra -interactive
//	quadra -serve -addr :8080
//	quadra -demo -task "..."   (offline, scripted model)
//
// ANTHROPIC_API_KEY is read from the environment (a .env file is loaded
// when present). A YAML config file can override workspace path, model,
// limits and rates.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/chzyer/readline"
	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"

	"github.com/quadralab/quadra"
	"github.com/quadralab/quadra/models"
	"github.com/quadralab/quadra/server"
	"github.com/quadralab/quadra/tools"
)

const defaultModel = "claude-sonnet-4-20250514"

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "quadra: %v\n", err)
		os.Exit(1)
	}
}

// fileConfig is the YAML configuration file shape. Every field is
// optional; absent values keep the built-in defaults.
type fileConfig struct {
	Workspace string            `yaml:"workspace"`
	Model     string            `yaml:"model"`
	Sandbox   []string          `yaml:"sandbox_command"`
	Rates     *quadra.RateTable `yaml:"rates"`
	Limits    *limitsConfig     `yaml:"limits"`
}

type limitsConfig struct {
	MaxIterations     *int           `yaml:"max_iterations"`
	MaxModelCalls     *int           `yaml:"max_model_calls"`
	MaxTotalCost      *float64       `yaml:"max_total_cost"`
	MaxElapsedSeconds *int           `yaml:"max_elapsed_seconds"`
	ToolCallLimits    map[string]int `yaml:"tool_call_limits"`
	SQLMaxRows        *int           `yaml:"sql_max_rows"`
	SQLRequireLimit   *bool          `yaml:"sql_require_limit"`
	SQLBlockKeywords  []string       `yaml:"sql_block_keywords"`
}

func (c *limitsConfig) apply(policy quadra.LimitPolicy) quadra.LimitPolicy {
	if c == nil {
		return policy
	}
	if c.MaxIterations != nil {
		policy.MaxIterations = *c.MaxIterations
	}
	if c.MaxModelCalls != nil {
		policy.MaxModelCalls = *c.MaxModelCalls
	}
	if c.MaxTotalCost != nil {
		policy.MaxTotalCost = *c.MaxTotalCost
	}
	if c.MaxElapsedSeconds != nil {
		policy.MaxElapsed = time.Duration(*c.MaxElapsedSeconds) * time.Second
	}
	if c.ToolCallLimits != nil {
		policy.ToolCallLimits = c.ToolCallLimits
	}
	if c.SQLMaxRows != nil {
		policy.SQLMaxRows = *c.SQLMaxRows
	}
	if c.SQLRequireLimit != nil {
		policy.SQLRequireRowLimit = *c.SQLRequireLimit
	}
	if c.SQLBlockKeywords != nil {
		policy.SQLBlockedKeywords = c.SQLBlockKeywords
	}
	return policy
}

func run() error {
	var (
		configPath  = flag.String("config", "", "path to YAML config file")
		workspace   = flag.String("workspace", "data", "investigation material directory")
		task        = flag.String("task", "", "task to run (one-shot mode)")
		modelName   = flag.String("model", defaultModel, "model to use")
		interactive = flag.Bool("interactive", false, "interactive prompt mode")
		serve       = flag.Bool("serve", false, "run the HTTP server")
		addr        = flag.String("addr", ":8080", "HTTP listen address (with -serve)")
		demo        = flag.Bool("demo", false, "use the offline scripted model")
		verbose     = flag.Bool("v", false, "debug logging")
	)
	flag.Parse()

	// Missing .env is fine; the key may come from the environment.
	_ = godotenv.Load()

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	cfg := fileConfig{}
	if *configPath != "" {
		b, err := os.ReadFile(*configPath)
		if err != nil {
			return fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return fmt.Errorf("parse config: %w", err)
		}
	}
	if cfg.Workspace != "" {
		*workspace = cfg.Workspace
	}
	if cfg.Model != "" && *modelName == defaultModel {
		*modelName = cfg.Model
	}

	policy := cfg.Limits.apply(quadra.DefaultLimitPolicy())
	rates := quadra.DefaultRateTable()
	if cfg.Rates != nil {
		rates = *cfg.Rates
	}
	var runner tools.Runner
	if len(cfg.Sandbox) > 0 {
		runner = &tools.ExecRunner{Command: cfg.Sandbox}
	}

	model, err := buildModel(*demo, *modelName)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	switch {
	case *serve:
		return serveHTTP(ctx, *addr, model, server.Config{
			WorkspaceRoot: *workspace,
			Runner:        runner,
			Policy:        policy,
			Rates:         rates,
		}, logger)
	case *interactive:
		return interactiveLoop(ctx, model, *workspace, runner, policy, rates, logger)
	case *task != "":
		outcome := newAgent(model, *workspace, runner, policy, rates, logger).Run(ctx, *task)
		printOutcome(outcome, policy)
		return nil
	default:
		flag.Usage()
		return errors.New("one of -task, -interactive or -serve is required")
	}
}

func buildModel(demo bool, modelName string) (quadra.Model, error) {
	if demo {
		return demoModel(), nil
	}
	apiKey := os.Getenv("ANTHROPIC_API_KEY")
	if apiKey == "" {
		return nil, errors.New("ANTHROPIC_API_KEY is not set (use -demo for the offline mode)")
	}
	return models.NewAnthropic(apiKey, modelName)
}

// demoModel replays a short canned investigation so the whole pipeline
// can be exercised without an API key.
func demoModel() quadra.Model {
	return models.NewScripted(
		models.ToolUseStep(quadra.Usage{InputTokens: 900, OutputTokens: 60},
			models.Call("demo-1", "list_available_etls", `{}`)),
		models.ToolUseStep(quadra.Usage{InputTokens: 1100, OutputTokens: 80},
			models.Call("demo-2", "read_quadratura_results", `{"etl_name":"etl_vendite"}`)),
		models.FinalStep(
			"Demo run: the quadratura shows rounding differences on importo_totale; "+
				"add an explicit ROUND(..., 2) to the amount calculation in etl_vendite.",
			quadra.Usage{InputTokens: 1400, OutputTokens: 220},
		),
	)
}

func newAgent(
	model quadra.Model,
	workspace string,
	runner tools.Runner,
	policy quadra.LimitPolicy,
	rates quadra.RateTable,
	logger *slog.Logger,
) *quadra.Agent {
	registry := tools.NewToolset(tools.Config{
		WorkspaceRoot: workspace,
		Runner:        runner,
		SQLMaxRows:    policy.SQLMaxRows,
	})
	return quadra.NewAgent(model, registry).
		WithLimitPolicy(policy).
		WithRateTable(rates).
		WithLogger(logger)
}

func interactiveLoop(
	ctx context.Context,
	model quadra.Model,
	workspace string,
	runner tools.Runner,
	policy quadra.LimitPolicy,
	rates quadra.RateTable,
	logger *slog.Logger,
) error {
	rl, err := readline.New("task> ")
	if err != nil {
		return fmt.Errorf("create readline: %w", err)
	}
	defer rl.Close()

	fmt.Println("Enter an investigation task, or 'q' to quit.")
	for {
		line, err := rl.Readline()
		if err != nil { // readline.ErrInterrupt or io.EOF
			return nil
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if line == "q" || line == "quit" || line == "exit" {
			return nil
		}

		// Each task is a fresh, isolated run with its own tool cache.
		outcome := newAgent(model, workspace, runner, policy, rates, logger).Run(ctx, line)
		printOutcome(outcome, policy)
		if ctx.Err() != nil {
			return nil
		}
	}
}

func serveHTTP(
	ctx context.Context,
	addr string,
	model quadra.Model,
	cfg server.Config,
	logger *slog.Logger,
) error {
	srv := &http.Server{
		Addr:    addr,
		Handler: server.New(model, cfg, logger).Router(),
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("http server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

func printOutcome(outcome *quadra.RunOutcome, policy quadra.LimitPolicy) {
	fmt.Println(strings.Repeat("=", 60))
	fmt.Println("Final report")
	fmt.Println(strings.Repeat("=", 60))
	fmt.Printf("Run:         %s\n", outcome.RunID)
	fmt.Printf("Result:      %s\n", outcome.Reason)
	fmt.Printf("Time:        %.1fs\n", outcome.Stats.Elapsed.Seconds())
	fmt.Printf("Iterations:  %d\n", outcome.Stats.Iterations)
	fmt.Printf("Model calls: %d\n", outcome.Stats.ModelCalls)
	fmt.Printf("Est. cost:   $%.4f / $%.2f\n", outcome.Stats.TotalCost, policy.MaxTotalCost)
	if len(outcome.Stats.ToolCalls) > 0 {
		fmt.Println("Tools called:")
		for name, n := range outcome.Stats.ToolCalls {
			if limit, ok := policy.ToolCallLimits[name]; ok {
				fmt.Printf("  - %s: %d/%d\n", name, n, limit)
			} else {
				fmt.Printf("  - %s: %d\n", name, n)
			}
		}
	}
	fmt.Println(strings.Repeat("=", 60))
	fmt.Println(outcome.FinalText)
}
