package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"infragraph/config"
	"infragraph/internal/changefeed"
	"infragraph/internal/iql"
	"infragraph/internal/logger"
	"infragraph/internal/rbac"
	"infragraph/internal/snapshot"
	"infragraph/internal/storage"
	"infragraph/pkg/models"
)

func findConfigFile(configArg string) string {
	if configArg != "" {
		path := configArg
		if _, err := os.Stat(path); err == nil {
			return path
		}
		log.Printf("Warning: config file not found at %s, trying default locations", path)
	}

	if _, err := os.Stat("infragraph.yml"); err == nil {
		return "infragraph.yml"
	}

	exePath, err := os.Executable()
	if err == nil {
		exeDir := filepath.Dir(exePath)
		path := filepath.Join(exeDir, "infragraph.yml")
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}

	return "infragraph.yml"
}

func applyDefaults(cfg *config.Config) {
	if cfg.InfraGraph.Storage.Backend == "" {
		cfg.InfraGraph.Storage.Backend = "memory"
	}

	if cfg.InfraGraph.Changefeed.Redis.Addr == "" {
		cfg.InfraGraph.Changefeed.Redis.Addr = "127.0.0.1:6379"
	}
	if cfg.InfraGraph.Changefeed.Redis.Key == "" {
		cfg.InfraGraph.Changefeed.Redis.Key = "infragraph:changes"
	}
	if cfg.InfraGraph.Changefeed.Redis.Timeout == 0 {
		cfg.InfraGraph.Changefeed.Redis.Timeout = 5 * time.Second
	}

	if cfg.InfraGraph.Query.MaxRegexLength <= 0 {
		cfg.InfraGraph.Query.MaxRegexLength = iql.DefaultMaxRegexLength
	}
	if cfg.InfraGraph.Query.TraversalDepth <= 0 {
		cfg.InfraGraph.Query.TraversalDepth = 5
	}
	if cfg.InfraGraph.Query.Translate.ConfidenceThreshold <= 0 {
		cfg.InfraGraph.Query.Translate.ConfidenceThreshold = 0.7
	}

	if cfg.InfraGraph.RBAC.DefaultRole == "" {
		cfg.InfraGraph.RBAC.DefaultRole = models.RoleViewer
	}

	if cfg.InfraGraph.Metrics.Listen == "" {
		cfg.InfraGraph.Metrics.Listen = ":9321"
	}

	if cfg.InfraGraph.Logging.Level == "" {
		cfg.InfraGraph.Logging.Level = "info"
	}
}

func main() {
	configArg := flag.String("config", "", "Path to infragraph.yml")
	principalID := flag.String("principal", "", "Principal id to act as (required)")
	query := flag.String("query", "", "One IQL statement to execute; omit for a stdin REPL")
	translate := flag.Bool("translate", false, "Treat the query as natural language and translate it to IQL first")
	classifyOnly := flag.Bool("classify", false, "Classify the query without executing it")
	exportPath := flag.String("export", "", "Export the principal's visible graph to a JSONL snapshot and exit")
	flag.Parse()

	cfgPath := findConfigFile(*configArg)
	cfg, err := config.LoadConfig(cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config %s: %v\n", cfgPath, err)
		os.Exit(1)
	}
	applyDefaults(cfg)

	ig := cfg.InfraGraph
	if err := logger.Init(ig.Logging.Enabled, ig.Logging.Level, ig.Logging.File, ig.Logging.Console); err != nil {
		fmt.Fprintf(os.Stderr, "failed to init logger: %v\n", err)
		os.Exit(1)
	}

	if *principalID == "" {
		fmt.Fprintln(os.Stderr, "-principal is required")
		os.Exit(2)
	}

	store := storage.NewMemoryStore()

	if ig.Changefeed.Enabled {
		feed, err := changefeed.NewRedisFeed(changefeed.RedisConfig{
			Addr:      ig.Changefeed.Redis.Addr,
			Password:  ig.Changefeed.Redis.Password,
			DB:        ig.Changefeed.Redis.DB,
			Key:       ig.Changefeed.Redis.Key,
			KeyPrefix: ig.Changefeed.Redis.KeyPrefix,
			MaxLen:    ig.Changefeed.Redis.MaxLen,
		})
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to connect changefeed: %v\n", err)
			os.Exit(1)
		}
		defer feed.Close()
		store.SetChangeSink(feed)
	}

	if ig.Storage.Snapshot != "" {
		if _, _, err := snapshot.Load(ig.Storage.Snapshot, store, models.Actor{ID: "snapshot-loader", Kind: "system"}); err != nil {
			fmt.Fprintf(os.Stderr, "failed to load snapshot: %v\n", err)
			os.Exit(1)
		}
	}

	if ig.Metrics.Enabled {
		go func() {
			http.Handle("/metrics", promhttp.Handler())
			logger.Infof("Metrics listening on %s", ig.Metrics.Listen)
			if err := http.ListenAndServe(ig.Metrics.Listen, nil); err != nil {
				logger.Errorf("Metrics listener failed: %v", err)
			}
		}()
	}

	wrapped, err := rbac.Wrap(store, *principalID, ig.RBAC.Policy(), nil)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to wrap storage: %v\n", err)
		os.Exit(1)
	}

	if *exportPath != "" {
		if err := wrapped.Authorize("export", models.PermExport); err != nil {
			fmt.Fprintf(os.Stderr, "export denied: %v\n", err)
			os.Exit(1)
		}
		if err := snapshot.Export(*exportPath, wrapped); err != nil {
			fmt.Fprintf(os.Stderr, "export failed: %v\n", err)
			os.Exit(1)
		}
		return
	}

	executor := iql.NewExecutor(wrapped, iql.ExecutorOptions{
		MaxRegexLength: ig.Query.MaxRegexLength,
		TraversalDepth: ig.Query.TraversalDepth,
	})

	if *query != "" {
		runOne(executor, ig, *query, *translate, *classifyOnly)
		return
	}

	repl(executor, ig, *translate, *classifyOnly)
}

func runOne(executor *iql.Executor, ig config.InfraGraphConfig, text string, translate, classifyOnly bool) {
	statement, err := resolveStatement(ig, text, translate)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
	if classifyOnly {
		printJSON(iql.Classify(statement))
		return
	}
	result, err := executor.Execute(statement)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
	printJSON(result)
}

func repl(executor *iql.Executor, ig config.InfraGraphConfig, translate, classifyOnly bool) {
	scanner := bufio.NewScanner(os.Stdin)
	fmt.Fprintln(os.Stderr, "infragraph> one IQL statement per line, ctrl-d to exit")
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		statement, err := resolveStatement(ig, line, translate)
		if err != nil {
			fmt.Fprintf(os.Stderr, "%v\n", err)
			continue
		}
		if classifyOnly {
			printJSON(iql.Classify(statement))
			continue
		}
		result, err := executor.Execute(statement)
		if err != nil {
			fmt.Fprintf(os.Stderr, "%v\n", err)
			continue
		}
		printJSON(result)
	}
}

func resolveStatement(ig config.InfraGraphConfig, text string, translate bool) (string, error) {
	if !translate {
		return text, nil
	}
	if !ig.Query.Translate.Enabled {
		return "", fmt.Errorf("translation is disabled in config")
	}
	translator := iql.NewTranslator(nil, ig.Query.Translate.ConfidenceThreshold)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	tr, err := translator.Translate(ctx, text)
	if err != nil {
		return "", fmt.Errorf("translate: %w", err)
	}
	logger.Infof("Translated %q -> %q (%s, confidence %.2f)", text, tr.IQL, tr.Source, tr.Confidence)
	return tr.IQL, nil
}

func printJSON(v interface{}) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		fmt.Fprintf(os.Stderr, "failed to encode result: %v\n", err)
	}
}
