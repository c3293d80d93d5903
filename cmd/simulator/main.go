// Command simulator runs a GCFL federated-learning experiment.
//
// The simulator trains a softmax regression model over synthetic client
// shards, compressing gradient exchanges with the configured policy, and
// records per-epoch accuracy and compression ratio. Progress is exposed
// over HTTP while the run is in flight.
//
// # Configuration File
//
// Create a YAML file with simulator settings:
//
//	http_addr: ":8080"
//	metrics_addr: ":8090"
//	log_json: false
//	experiment:
//	  users: 20
//	  sampling_fraction: 0.5
//	  epochs: 10
//	  compressor: "pred_signSGD"
//	  predictive: true
//	  take_turns: true
//	  seed: 1
//
// Omitting the postgres section keeps run records in memory.
//
// # Usage
//
//	go run ./cmd/simulator --config=simulator.yaml
//	go run ./cmd/simulator --compressor=signSGD --epochs=5
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/KAI-YUE/GCFL/api/httpserver"
	"github.com/KAI-YUE/GCFL/cmd/common"
	"github.com/KAI-YUE/GCFL/services"
)

func main() {
	var (
		configPath  = flag.String("config", "", "Path to YAML config file")
		addr        = flag.String("addr", "", "HTTP listen address for the status API")
		metricsAddr = flag.String("metrics-addr", "", "Prometheus metrics listen address")
		enablePprof = flag.Bool("pprof", false, "Enable the pprof debugging API")
		logJSON     = flag.Bool("log-json", false, "Log in JSON format")
		logDebug    = flag.Bool("log-debug", false, "Log at debug level")
		compressor  = flag.String("compressor", "", "Compression policy name")
		epochs      = flag.Int("epochs", 0, "Maximum number of training epochs")
		users       = flag.Int("users", 0, "Number of simulated clients")
		seed        = flag.Int64("seed", 0, "Random seed for data generation and sampling")
	)
	flag.Parse()

	cfg, err := loadConfiguration(*configPath)
	if err != nil {
		fmt.Printf("Error loading config: %v\n", err)
		os.Exit(1)
	}

	// Command-line flags override config file
	if *addr != "" {
		cfg.HTTPAddr = *addr
	}
	if *metricsAddr != "" {
		cfg.MetricsAddr = *metricsAddr
	}
	if *enablePprof {
		cfg.EnablePprof = true
	}
	if *logJSON {
		cfg.LogJSON = true
	}
	if *logDebug {
		cfg.LogDebug = true
	}
	if *compressor != "" {
		cfg.Experiment.Compressor = *compressor
	}
	if *epochs > 0 {
		cfg.Experiment.Epochs = *epochs
	}
	if *users > 0 {
		cfg.Experiment.Users = *users
	}
	if *seed != 0 {
		cfg.Experiment.Seed = *seed
	}

	log := common.NewLogger(cfg)

	store, err := common.NewRecordStore(cfg)
	if err != nil {
		log.Error("Failed to create record store", "err", err)
		os.Exit(1)
	}
	defer store.Close()

	orchestrator, err := services.NewOrchestrator(&cfg.Experiment, store, log)
	if err != nil {
		log.Error("Failed to create orchestrator", "err", err)
		os.Exit(1)
	}

	srv, err := httpserver.New(&httpserver.HTTPServerConfig{
		ListenAddr:               cfg.HTTPAddr,
		MetricsAddr:              cfg.MetricsAddr,
		EnablePprof:              cfg.EnablePprof,
		Log:                      log,
		DrainDuration:            5 * time.Second,
		GracefulShutdownDuration: 10 * time.Second,
		ReadTimeout:              15 * time.Second,
		WriteTimeout:             15 * time.Second,
	}, orchestrator)
	if err != nil {
		log.Error("Failed to create HTTP server", "err", err)
		os.Exit(1)
	}

	srv.RunInBackground()
	defer srv.Shutdown()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
		<-sigChan
		log.Info("Shutting down simulator...")
		cancel()
	}()

	run, err := orchestrator.Run(ctx)
	if err != nil {
		log.Error("Experiment run failed", "err", err)
		os.Exit(1)
	}

	log.Info("Experiment finished",
		"runID", run.RunID,
		"epochs", len(run.Epochs),
		"commRounds", run.CommRounds,
	)
}

func loadConfiguration(configPath string) (*common.Config, error) {
	if configPath != "" {
		return common.LoadConfig(configPath)
	}
	return common.DefaultConfig(), nil
}
