package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/psds-microservice/workshop-service/internal/clock"
	"github.com/psds-microservice/workshop-service/internal/database"
	"github.com/psds-microservice/workshop-service/internal/kafka"
	"github.com/psds-microservice/workshop-service/internal/service"
	"github.com/spf13/cobra"
)

const republishBatch = 100

var republishCmd = &cobra.Command{
	Use:   "republish-events",
	Short: "Publish every ticket as ticket.snapshot to Kafka (rebuild downstream consumers)",
	RunE:  runRepublish,
}

func runRepublish(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	producer := kafka.NewProducer(kafka.ParseBrokers(cfg.KafkaBrokers), cfg.KafkaTopicTicket)
	if !producer.Enabled() {
		return errors.New("republish-events: KAFKA_BROKERS and KAFKA_TOPIC_TICKET must be set")
	}
	defer producer.Close()

	ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Minute)
	defer cancel()
	db, err := database.Open(ctx, cfg.DSN())
	if err != nil {
		return fmt.Errorf("db: %w", err)
	}

	clk := clock.Real()
	tickets := service.NewTicketService(db, clk, nil, nil)
	sent := 0
	err = tickets.All(ctx, republishBatch, func(batch []service.TicketView) error {
		now := clk.Now()
		for i := range batch {
			producer.ProduceTicketEvent(ctx, service.SnapshotEvent(&batch[i], now))
		}
		sent += len(batch)
		slog.Info("republish-events: progress", "sent", sent)
		return ctx.Err()
	})
	if err != nil {
		return fmt.Errorf("republish-events: %w", err)
	}
	slog.Info("republish-events: done", "sent", sent)
	return nil
}
