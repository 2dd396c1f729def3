package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	flag "github.com/spf13/pflag"

	"github.com/datalens-ai/datalens/pkg/executor"
	"github.com/datalens-ai/datalens/pkg/llm"
	"github.com/datalens-ai/datalens/pkg/logger"
	"github.com/datalens-ai/datalens/pkg/pipeline"
	"github.com/datalens-ai/datalens/pkg/prompts"
	"github.com/datalens-ai/datalens/pkg/schema"
)

var (
	// Set by LDFLAGS
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

const (
	defaultModel     = string(anthropic.ModelClaudeSonnet4_5_20250929)
	defaultMaxTokens = 4096
	defaultCacheTTL  = 5 * time.Minute
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	verboseFlag := flag.Bool("verbose", false, "enable verbose (debug) logging")
	versionFlag := flag.Bool("version", false, "print version and exit")
	datasetFlag := flag.String("dataset", "", "path to the dataset descriptor YAML")
	questionFlag := flag.String("question", "", "question to analyze (or pass as positional arguments)")
	tableFlag := flag.String("table", "", "table reference override (defaults to the descriptor's table)")
	executorFlag := flag.String("executor", "duckdb", "query executor: duckdb or clickhouse")
	duckdbPathFlag := flag.String("duckdb-path", "", "DuckDB database path (empty for in-memory)")
	clickhouseURLFlag := flag.String("clickhouse-url", "http://localhost:8123", "ClickHouse HTTP endpoint (or set CLICKHOUSE_URL env var)")
	modelFlag := flag.String("model", defaultModel, "Anthropic model to use (or set ANTHROPIC_MODEL env var)")
	maxTokensFlag := flag.Int64("max-tokens", defaultMaxTokens, "max tokens per LLM completion")
	metricsAddrFlag := flag.String("metrics-addr", "", "address to listen on for prometheus metrics (empty to disable)")
	flag.Parse()

	if *versionFlag {
		fmt.Printf("datalens %s (commit %s, built %s)\n", version, commit, date)
		return nil
	}

	// Load .env if present; environment wins over flag defaults.
	_ = godotenv.Load()
	if env := os.Getenv("CLICKHOUSE_URL"); env != "" {
		*clickhouseURLFlag = env
	}
	if env := os.Getenv("ANTHROPIC_MODEL"); env != "" {
		*modelFlag = env
	}

	log := logger.New(*verboseFlag)

	question := strings.TrimSpace(*questionFlag)
	if question == "" {
		question = strings.TrimSpace(strings.Join(flag.Args(), " "))
	}
	if question == "" {
		return fmt.Errorf("no question given: use --question or positional arguments")
	}
	if *datasetFlag == "" {
		return fmt.Errorf("--dataset is required")
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		sig := <-sigCh
		log.Info("datalens: received signal", "signal", sig.String())
		cancel()
	}()

	if *metricsAddrFlag != "" {
		go func() {
			listener, err := net.Listen("tcp", *metricsAddrFlag)
			if err != nil {
				log.Error("failed to start prometheus metrics server listener", "error", err)
				return
			}
			log.Info("prometheus metrics server listening", "address", listener.Addr().String())
			http.Handle("/metrics", promhttp.Handler())
			if err := http.Serve(listener, nil); err != nil {
				log.Error("prometheus metrics server stopped", "error", err)
			}
		}()
	}

	if os.Getenv("ANTHROPIC_API_KEY") == "" {
		return fmt.Errorf("ANTHROPIC_API_KEY is not set")
	}
	llmClient := llm.NewAnthropicClient(anthropic.Model(*modelFlag), *maxTokensFlag, log)

	exec, cleanup, err := buildExecutor(*executorFlag, *duckdbPathFlag, *clickhouseURLFlag)
	if err != nil {
		return err
	}
	defer cleanup()

	provider := schema.NewCachedProvider(schema.FileProvider{}, defaultCacheTTL)
	cols, dctx, err := provider.Fetch(ctx, *datasetFlag)
	if err != nil {
		return fmt.Errorf("failed to load dataset descriptor: %w", err)
	}

	tableRef := *tableFlag
	if tableRef == "" {
		if tableRef, err = schema.TableRef(*datasetFlag); err != nil {
			return err
		}
	}

	loadedPrompts, err := prompts.Load()
	if err != nil {
		return fmt.Errorf("failed to load prompts: %w", err)
	}

	engine, err := pipeline.New(&pipeline.Config{
		Logger:   log,
		LLM:      llmClient,
		Executor: exec,
		Schema:   provider,
		Prompts:  loadedPrompts,
	})
	if err != nil {
		return err
	}

	report, err := engine.Analyze(ctx, pipeline.Request{
		Question:       question,
		Columns:        cols,
		DatasetContext: dctx,
		TableRef:       tableRef,
	})
	if err != nil {
		return err
	}

	printReport(report)
	return nil
}

func buildExecutor(kind, duckdbPath, clickhouseURL string) (executor.Executor, func(), error) {
	switch kind {
	case "duckdb":
		exec, err := executor.NewDuckDBExecutor(duckdbPath)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open DuckDB: %w", err)
		}
		return exec, func() { _ = exec.Close() }, nil
	case "clickhouse":
		exec := executor.NewClickHouseExecutor(
			clickhouseURL,
			os.Getenv("CLICKHOUSE_USER"),
			os.Getenv("CLICKHOUSE_PASSWORD"),
		)
		return exec, func() {}, nil
	default:
		return nil, nil, fmt.Errorf("unknown executor %q (want duckdb or clickhouse)", kind)
	}
}

func printReport(report *pipeline.Report) {
	fmt.Println(report.Narrative)
	fmt.Println()

	if report.SQL != "" {
		fmt.Printf("SQL: %s\n\n", report.SQL)
	}

	switch {
	case len(report.Rows) > 0:
		executor.Render(os.Stdout, executor.Result{
			Columns:   report.Columns,
			Rows:      report.Rows,
			TotalRows: report.Metadata.TotalRows,
		})
	case report.Combined != nil && len(report.Combined.Rows) > 0:
		cols := make([]string, 0, len(report.Combined.Rows[0]))
		for col := range report.Combined.Rows[0] {
			cols = append(cols, col)
		}
		sort.Strings(cols)
		executor.Render(os.Stdout, executor.Result{
			Columns:   cols,
			Rows:      report.Combined.Rows,
			TotalRows: report.Metadata.TotalRows,
		})
	}

	if len(report.Insights) > 0 {
		fmt.Println("\nInsights:")
		for _, ins := range report.Insights {
			fmt.Printf("  [%s] %s\n", ins.Importance, ins.Text)
		}
	}

	for _, warning := range report.Metadata.Warnings {
		fmt.Printf("\nWarning: %s\n", warning)
	}
}
