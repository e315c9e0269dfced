package main

import (
	"context"
	"errors"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"handsign/internal/metrics"
	"handsign/internal/publisher"
	"handsign/internal/server"
	"handsign/internal/service"
	"handsign/internal/thumbnail"
)

const shutdownTimeout = 10 * time.Second

func newServeCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the ingestion API",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), *configPath)
		},
	}
}

func runServe(ctx context.Context, configPath string) error {
	cfg, logger, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	gin.SetMode(gin.ReleaseMode)

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m, err := metrics.New(reg)
	if err != nil {
		return err
	}

	repo, err := openRepository(ctx, cfg.Database, logger)
	if err != nil {
		return err
	}
	defer repo.Close()

	blobs, err := openBlobStore(ctx, cfg.Storage)
	if err != nil {
		return err
	}

	mqttPub := publisher.NewMQTT(cfg.MQTT, logger, m)
	connectCtx, cancel := context.WithTimeout(ctx, cfg.MQTT.ConnectTimeout)
	if err := mqttPub.Connect(connectCtx); err != nil {
		logger.Warn("MQTT broker not reachable yet, retrying in background", "broker", cfg.MQTT.Broker, "error", err)
	}
	cancel()
	defer mqttPub.Disconnect()

	sinks := publisher.Fanout{mqttPub}
	if cfg.Kafka.Enabled {
		mirror := publisher.NewKafka(cfg.Kafka.Brokers)
		defer mirror.Close()
		sinks = append(sinks, mirror)
	}

	coord := service.NewCoordinator(blobs, repo, sinks, service.OptionsFrom(cfg.MQTT), logger, m)
	srv := server.NewServer(cfg, server.Deps{
		Ingest:   coord,
		History:  service.NewHistory(repo),
		Blobs:    blobs,
		Gatherer: reg,
		Checks: map[string]server.Check{
			"database": repo.Ping,
			"mqtt": func(context.Context) error {
				if !mqttPub.IsConnected() {
					return errors.New("not connected")
				}
				return nil
			},
		},
		Logger: logger,
	})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(srv.Start)
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		logger.Info("shutting down")
		return srv.Stop(shutdownCtx)
	})
	if cfg.Thumbnails.Enabled {
		worker := thumbnail.NewWorker(cfg.Kafka, cfg.MQTT.JSONTopic(), cfg.Thumbnails.Size, blobs, logger, m)
		g.Go(func() error { return worker.Run(gctx) })
	}
	return g.Wait()
}
