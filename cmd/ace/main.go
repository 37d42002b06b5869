// Package main provides the entry point for the ACE trading-playbook loop:
// a Generator/Executor/Reflector/Curator cycle run daily and weekly against
// a single instrument, exposed over an ops HTTP/WebSocket control surface.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/atlas-desktop/ace-playbook/internal/bundlestore"
	"github.com/atlas-desktop/ace-playbook/internal/config"
	"github.com/atlas-desktop/ace-playbook/internal/curator"
	"github.com/atlas-desktop/ace-playbook/internal/cycle"
	"github.com/atlas-desktop/ace-playbook/internal/executor"
	"github.com/atlas-desktop/ace-playbook/internal/generator"
	"github.com/atlas-desktop/ace-playbook/internal/jsonutil"
	"github.com/atlas-desktop/ace-playbook/internal/llm"
	"github.com/atlas-desktop/ace-playbook/internal/market"
	"github.com/atlas-desktop/ace-playbook/internal/metrics"
	"github.com/atlas-desktop/ace-playbook/internal/notify"
	"github.com/atlas-desktop/ace-playbook/internal/obslog"
	"github.com/atlas-desktop/ace-playbook/internal/opsapi"
	"github.com/atlas-desktop/ace-playbook/internal/playbook"
	"github.com/atlas-desktop/ace-playbook/internal/reflector"
	"github.com/atlas-desktop/ace-playbook/internal/replay"
	"github.com/atlas-desktop/ace-playbook/pkg/types"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

func main() {
	configPath := flag.String("config", "", "Path to a YAML config file (optional; env ACE_* and defaults stand alone)")
	dataDir := flag.String("data", "./data", "Data root directory")
	logLevel := flag.String("log-level", "info", "Log level (debug, info, warn, error)")
	llmBaseURL := flag.String("llm-base-url", getEnvOrDefault("ACE_LLM_BASE_URL", "https://api.perplexity.ai"), "Chat-completions base URL")
	llmModel := flag.String("llm-model", getEnvOrDefault("ACE_LLM_MODEL", "sonar"), "Chat-completions model name")
	flag.Parse()

	logger, err := obslog.New(*logLevel)
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Fatal("failed to load configuration", zap.Error(err))
	}
	cfg.Paths = types.DefaultPaths(*dataDir)

	logger.Info("starting ace playbook loop",
		zap.String("pair", cfg.Pair),
		zap.String("data_dir", *dataDir),
		zap.Int("server_port", cfg.Server.Port),
	)

	llmClient := llm.NewHTTPClient(logger, *llmBaseURL, os.Getenv("ACE_LLM_API_KEY"), *llmModel)
	decoder := jsonutil.New(logger, cfg.Paths.DiagnosticDir)
	pbStore := playbook.New(logger, cfg.Paths.DataDir)
	sim := replay.New(logger, cfg)
	exec := executor.New(logger, sim)
	gen := generator.New(logger, llmClient, decoder, cfg)
	refl := reflector.New(logger, llmClient, decoder, cfg)
	cur := curator.New(logger, cfg)
	mkt := market.NewSampleProvider(logger, cfg.Pair, decimal.NewFromFloat(1.1000), cfg.SessionOpenUTC)

	bundles := bundlestore.NewFilesystemStore(logger, cfg.Paths.BundleDir)
	defer bundles.Close()

	metricsReg := metrics.NewRegistry(prometheus.DefaultRegisterer)
	notifier := notify.NewLogNotifier(logger)

	dailyCycle := cycle.NewDailyCycle(logger, cfg, bundles, pbStore, mkt, gen, exec, metricsReg, notifier)
	weeklyCycle := cycle.NewWeeklyCycle(logger, cfg, bundles, pbStore, dailyCycle, refl, cur, metricsReg, notifier)
	runner := cycle.NewRunner(dailyCycle, weeklyCycle)
	artifacts := cycle.NewArtifactIndex(logger, cfg, pbStore)

	server := opsapi.NewServer(logger, cfg.Server, runner, artifacts)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		if err := server.Start(); err != nil {
			logger.Error("ops server error", zap.Error(err))
		}
	}()

	logger.Info("ops server started",
		zap.String("host", cfg.Server.Host),
		zap.Int("port", cfg.Server.Port),
	)

	<-sigChan
	logger.Info("shutdown signal received")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Stop(shutdownCtx); err != nil {
		logger.Error("error during ops server shutdown", zap.Error(err))
	}

	logger.Info("ace playbook loop stopped")
}

func getEnvOrDefault(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}
