package main

import (
	"context"
	"errors"
	"net/http"
	"os"

	"budgetagent/internal/cli"
	apphttp "budgetagent/internal/http"
	"budgetagent/internal/log"
)

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger(log.ComponentApp)
	cfg := cli.LoadAndValidateConfig(logger.Logger, nil)

	logger.Info("Starting budgetagent", log.FieldOperation, log.OpStartup,
		"port", cfg.Port, log.FieldBackend, cfg.DataBackend)

	stack, err := cli.BuildStack(context.Background(), cfg, logger.Logger)
	if err != nil {
		logger.Error("Failed to initialize insights stack", log.FieldError, err)
		os.Exit(1)
	}

	srv := apphttp.NewServer(":"+cfg.Port, stack.Service, apphttp.Options{
		APIKey:       cfg.AgentAPIKey,
		RateLimitRPM: cfg.RateLimitRPM,
		CORSOrigins:  cfg.CORSOrigins,
		Logger:       logger.WithComponent(log.ComponentHTTP),
		Ready:        stack.Ledger,
	})
	srv.MaxHeaderBytes = 1 << 16 // 64KB

	ctx, done := cli.GracefulShutdown(logger.Logger, cfg.ShutdownTimeout, func(ctx context.Context) {
		if err := srv.Shutdown(ctx); err != nil {
			logger.Error("Server shutdown error", log.FieldError, err)
		}
		stack.Close(logger.Logger)
	})

	logger.Info("HTTP server listening", "addr", srv.Addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("Server error", log.FieldError, err, "port", cfg.Port)
		os.Exit(1)
	}

	cli.WaitForShutdown(ctx, done)
	logger.Info("Server stopped gracefully")
}
