package cmd

import (
	"context"
	"fmt"
	"log"
	"os"

	"orderdesk/archive"
	"orderdesk/config"
	"orderdesk/events"
	"orderdesk/forecast"
)

// newBus builds the realtime bus: a Redis relay when REDIS_ADDR is set so
// several server instances share one feed, an in-process hub otherwise.
// Kafka, when configured, receives a copy of every event.
func newBus(cfg *config.Config) (events.Bus, error) {
	var bus events.Bus
	if cfg.RedisAddr != "" {
		client := events.NewRedisClient(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		bus = events.NewRedisBus(client, cfg.RedisChannelPrefix, cfg.EventBuffer)
		log.Printf("[EVENTS] relaying through redis at %s", cfg.RedisAddr)
	} else {
		bus = events.NewHub(cfg.EventBuffer)
	}

	if cfg.KafkaBrokers == "" {
		return bus, nil
	}
	producer, err := events.NewKafkaProducer(cfg.KafkaBrokers)
	if err != nil {
		return nil, fmt.Errorf("kafka producer: %w", err)
	}
	log.Printf("[EVENTS] mirroring events to kafka %s", cfg.KafkaBrokers)
	return events.NewTee(bus, events.NewKafkaSink(producer, cfg.KafkaTopicPrefix)), nil
}

// newForecastService returns the computation the engine guards. In process
// mode it defaults to re-running this binary as `orderdesk forecaster`.
func newForecastService(cfg *config.Config) (forecast.Service, error) {
	if cfg.ForecastMode == "inprocess" {
		log.Println("[FORECAST] running regression in process")
		return forecast.RegressionService{}, nil
	}

	command, args := cfg.ForecastCommand, cfg.ForecastArgs
	if command == "" {
		exe, err := os.Executable()
		if err != nil {
			return nil, fmt.Errorf("locate forecaster binary: %w", err)
		}
		command = exe
		args = append([]string{"forecaster"}, args...)
	}
	breaker := forecast.NewCircuitBreaker("forecaster", cfg.ForecastBreakerThreshold, cfg.ForecastBreakerReset)
	log.Printf("[FORECAST] external process %s, timeout %s", command, cfg.ForecastTimeout)
	return forecast.NewProcessService(command, args, cfg.ForecastTimeout, breaker), nil
}

func newEngine(cfg *config.Config, svc forecast.Service) *forecast.Engine {
	return forecast.NewEngine(svc, forecast.EngineConfig{
		MinPoints:     cfg.ForecastMinPoints,
		MaxHorizon:    cfg.ForecastMaxHorizon,
		CacheTTL:      cfg.ForecastCacheTTL,
		MaxConcurrent: cfg.ForecastMaxConcurrent,
	})
}

// newArchiver returns nil when no bucket is configured.
func newArchiver(ctx context.Context, cfg *config.Config) (archive.Archiver, error) {
	if cfg.ArchiveS3Bucket == "" {
		return nil, nil
	}
	client, err := archive.NewS3Client(ctx, cfg.AWSRegion)
	if err != nil {
		return nil, err
	}
	log.Printf("[REPORTS] archiving forecast reports to s3://%s/%s", cfg.ArchiveS3Bucket, cfg.ArchiveS3Prefix)
	return archive.NewS3Archiver(client, cfg.ArchiveS3Bucket, cfg.ArchiveS3Prefix), nil
}
