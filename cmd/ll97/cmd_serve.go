package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"ll97dash/db"
	qhttp "ll97dash/http"
	"ll97dash/ml"
	"ll97dash/monitoring"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the dashboard and JSON API",
	Long: `Loads both classifiers, opens the statistics database and serves the
dashboard, the JSON API, the live prediction feed and Prometheus metrics
until SIGINT or SIGTERM.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 1. Initialize database
	if err := db.InitDB(cfg.Database.Path); err != nil {
		return fmt.Errorf("init database: %w", err)
	}
	defer db.Close()
	logger.Info("database initialized", zap.String("path", cfg.Database.Path))

	// 2. Load models
	eng, err := loadEngine(cfg, logger)
	if err != nil {
		return err
	}
	defer eng.Close()
	now := time.Now()
	for _, info := range eng.infos() {
		if err := db.SaveModelLoad(info, now); err != nil {
			logger.Warn("failed to record model load", zap.String("model", info.Name), zap.Error(err))
		}
	}

	// 3. Monitoring
	metrics := monitoring.NewMetrics()
	hub := monitoring.NewHub(logger, cfg.Http.AllowedOrigins)
	publishers := monitoring.MultiPublisher{hub}
	if len(cfg.Events.Brokers) > 0 {
		kp, err := monitoring.NewKafkaPublisher(cfg.Events.Brokers, cfg.Events.Topic)
		if err != nil {
			return fmt.Errorf("kafka publisher: %w", err)
		}
		publishers = append(publishers, kp)
		logger.Info("publishing predictions to kafka",
			zap.Strings("brokers", cfg.Events.Brokers),
			zap.String("topic", cfg.Events.Topic))
	}
	defer publishers.Close()

	// 4. Wire handlers
	qhttp.SetLogger(logger)
	qhttp.SetAssembler(eng.assembler)
	qhttp.SetPredictor(eng.predictor)
	qhttp.SetModels(eng.infos())
	qhttp.SetMetrics(metrics)
	qhttp.SetHub(hub)
	qhttp.SetPublisher(publishers)

	// 5. Run until a signal arrives
	server := qhttp.NewServer(qhttp.ServerConfigFrom(cfg.Http), logger)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(server.Start)
	g.Go(func() error { return hub.Run(gctx) })
	if cfg.Models.Watch {
		w, err := ml.NewWatcher(logger, eng.infos()...)
		if err != nil {
			return fmt.Errorf("model watcher: %w", err)
		}
		g.Go(func() error { return w.Run(gctx) })
	}
	g.Go(func() error {
		<-gctx.Done()
		return server.Stop(context.Background())
	})

	err = g.Wait()
	logger.Info("exiting")
	return err
}
