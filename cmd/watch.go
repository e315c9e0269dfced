package main

import (
	"context"

	"github.com/spf13/cobra"

	"handsign/internal/metrics"
	"handsign/internal/publisher"
)

func newWatchCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Log every translation broadcast until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			ctx := cmd.Context()

			mqttCfg := cfg.MQTT
			mqttCfg.ClientIDPrefix += "-watch"
			client := publisher.NewMQTT(mqttCfg, logger, metrics.NewUnregistered())

			filter := cfg.MQTT.WildcardTopic()
			err = client.Subscribe(filter, publisher.AtLeastOnce, func(topic string, payload []byte) {
				logger.Info("received", "topic", topic, "payload", string(payload))
			})
			if err != nil {
				return err
			}

			connectCtx, cancel := context.WithTimeout(ctx, cfg.MQTT.ConnectTimeout)
			if err := client.Connect(connectCtx); err != nil {
				logger.Warn("MQTT broker not reachable yet, retrying in background", "broker", cfg.MQTT.Broker, "error", err)
			}
			cancel()
			defer client.Disconnect()

			logger.Info("watching", "filter", filter)
			<-ctx.Done()
			return nil
		},
	}
}
