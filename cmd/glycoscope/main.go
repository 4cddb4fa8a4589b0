package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"glycoscope/internal/api"
	"glycoscope/internal/config"
	"glycoscope/internal/engine"
	"glycoscope/internal/ingest"
	"glycoscope/internal/logging"
	"glycoscope/internal/model"
	"glycoscope/internal/normalize"
	"glycoscope/internal/results"
	"glycoscope/internal/storage"
)

var version = "dev"

func main() {
	root := &cobra.Command{
		Use:           "glycoscope",
		Short:         "CGM time-series segmentation and brittleness analysis",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(serveCmd())
	root.AddCommand(analyzeCmd())
	root.AddCommand(versionCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println(version)
		},
	}
}

func serveCmd() *cobra.Command {
	var configPath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the streaming analysis service",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(configPath)
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "path to config file (json or yaml)")
	return cmd
}

func runServe(configPath string) error {
	configPath = config.ResolvePath(configPath)
	var mgr *config.Manager
	if configPath != "" {
		m, err := config.NewManager(configPath)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		mgr = m
	} else {
		mgr = config.NewStaticManager(config.DefaultConfig())
	}
	cfg := mgr.Get()
	logger := logging.NewLogger(cfg.LogLevel)
	logger.Info("glycoscope starting", "version", version, "config", configPath)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	store, err := storage.NewStore(cfg.Storage)
	if err != nil {
		return fmt.Errorf("open storage: %w", err)
	}
	if store != nil {
		if err := store.Init(ctx); err != nil {
			return fmt.Errorf("init storage: %w", err)
		}
		defer store.Close()
	}

	resultsStore := results.NewStore(cfg.Results.StoreLimit)
	eng := engine.NewEngine(cfg, logging.Component(logger, "engine"), resultsStore, store)

	readings := make(chan model.SubjectReading, cfg.Ingest.ChannelBuffer)
	eng.Start(ctx, readings)

	parser := ingest.NewParser()
	ingestLog := logging.Component(logger, "ingest")
	ingest.StartREST(ctx, mgr, readings, ingestLog)
	ingest.StartStream(ctx, mgr, parser, readings, ingestLog)
	ingest.StartKafka(ctx, mgr, parser, readings, ingestLog)

	api.Start(ctx, mgr, resultsStore, eng, logging.Component(logger, "api"), version)

	if configPath != "" {
		go mgr.Watch(3*time.Second,
			func(next *config.Config) {
				logger.Info("config reloaded", "path", configPath)
				eng.UpdateConfig(next)
			},
			func(err error) {
				logger.Warn("config reload failed", "err", err)
			},
			ctx.Done())
	}

	<-ctx.Done()
	logger.Info("glycoscope stopping")
	return nil
}

func analyzeCmd() *cobra.Command {
	var (
		configPath string
		outPath    string
		subject    string
	)
	cmd := &cobra.Command{
		Use:   "analyze <export-file>",
		Short: "Analyze a CGM export file and print the results as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAnalyze(args[0], configPath, outPath, subject)
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "path to config file (json or yaml)")
	cmd.Flags().StringVarP(&outPath, "out", "o", "", "write results to file instead of stdout")
	cmd.Flags().StringVarP(&subject, "subject", "s", "", "analyze only this subject")
	return cmd
}

func runAnalyze(exportPath, configPath, outPath, subject string) error {
	cfg := config.DefaultConfig()
	if configPath != "" {
		loaded, err := config.Load(config.ResolvePath(configPath))
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = loaded
	}
	logger := logging.NewLoggerTo(os.Stderr, cfg.LogLevel)

	bySubject, skipped, err := ingest.LoadFile(exportPath, cfg)
	if err != nil {
		return err
	}
	if skipped > 0 {
		logger.Warn("skipped unparseable lines", "count", skipped)
	}
	if len(bySubject) == 0 {
		return errors.New("no readings found in export")
	}

	subjects := make([]string, 0, len(bySubject))
	for id := range bySubject {
		subjects = append(subjects, id)
	}
	sort.Strings(subjects)

	eng := engine.NewEngine(cfg, logging.Component(logger, "engine"), nil, nil)
	ctx := context.Background()

	out := make([]*model.AnalysisResult, 0, len(subjects))
	for _, id := range subjects {
		if subject != "" && id != subject {
			continue
		}
		series, err := normalize.BuildSeries(uuid.NewString(), id, bySubject[id])
		if err != nil {
			logger.Warn("skipping subject", "subject_id", id, "err", err)
			continue
		}
		result, err := eng.Analyze(ctx, series, nil)
		if err != nil && !errors.Is(err, engine.ErrQualityRejected) {
			logger.Warn("analysis failed", "subject_id", id, "err", err)
			continue
		}
		out = append(out, result)
	}
	if len(out) == 0 {
		return errors.New("no subjects analyzed")
	}

	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return err
	}
	if outPath != "" {
		return os.WriteFile(outPath, append(data, '\n'), 0o644)
	}
	fmt.Println(string(data))
	return nil
}
