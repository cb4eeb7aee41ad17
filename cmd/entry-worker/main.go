package main

import (
	"context"
	"errors"
	"os"

	"budgetagent/internal/amqp"
	"budgetagent/internal/cli"
	"budgetagent/internal/config"
	"budgetagent/internal/log"
	"budgetagent/internal/worker"
)

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger(log.ComponentWorker)
	cfg := cli.LoadAndValidateConfig(logger.Logger, (*config.Config).ValidateWorker)

	logger.Info("Starting entry-worker", log.FieldOperation, log.OpStartup,
		"exchange", cfg.AMQPExchange, "queue", cfg.AMQPQueue, log.FieldBackend, cfg.DataBackend)

	stack, err := cli.BuildStack(context.Background(), cfg, logger.Logger)
	if err != nil {
		logger.Error("Failed to initialize insights stack", log.FieldError, err)
		os.Exit(1)
	}

	client, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
	if err != nil {
		logger.Error("Failed to initialize AMQP client", log.FieldError, err)
		stack.Close(logger.Logger)
		os.Exit(1)
	}

	w := worker.NewEntryWorker(stack.Service, client, cfg.WorkerIncludeAI, logger.Logger)

	ctx, done := cli.GracefulShutdown(logger.Logger, cfg.ShutdownTimeout, func(context.Context) {
		if err := client.Close(); err != nil {
			logger.Error("AMQP close error", log.FieldError, err)
		}
		stack.Close(logger.Logger)
	})

	if err := client.ConsumeEntryCreated(ctx, w.HandleEntryCreated); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("Message consumption failed", log.FieldError, err)
		client.Close()
		stack.Close(logger.Logger)
		os.Exit(1)
	}

	cli.WaitForShutdown(ctx, done)
	logger.Info("Worker stopped gracefully")
}
