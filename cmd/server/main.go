package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/subosito/gotenv"
	"go.uber.org/zap"

	"github.com/guardhq/renewal-workflow/internal/config"
	"github.com/guardhq/renewal-workflow/internal/dispatcher"
	"github.com/guardhq/renewal-workflow/internal/engine"
	"github.com/guardhq/renewal-workflow/internal/gateway"
	"github.com/guardhq/renewal-workflow/internal/httpapi"
	"github.com/guardhq/renewal-workflow/internal/hrsync"
	"github.com/guardhq/renewal-workflow/internal/repository"
	"github.com/guardhq/renewal-workflow/internal/scanner"
	"github.com/guardhq/renewal-workflow/internal/sms"
	"github.com/guardhq/renewal-workflow/internal/worker"
	"github.com/guardhq/renewal-workflow/internal/workflow"
	"github.com/guardhq/renewal-workflow/pkg/database"
	"github.com/guardhq/renewal-workflow/pkg/utils"
)

func main() {
	// Local overrides for development; missing .env is fine
	_ = gotenv.Load()

	configPath := "configs/config.yaml"
	if p := os.Getenv("CONFIG_PATH"); p != "" {
		configPath = p
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger, err := utils.NewLogger(utils.LoggerConfig{
		Level:      cfg.Logger.Level,
		OutputPath: cfg.Logger.OutputPath,
		Format:     cfg.Logger.Format,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("Starting license renewal workflow service",
		zap.Int("port", cfg.Server.Port))

	db, err := database.New(database.Config{
		Path:            cfg.Database.Path,
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
	}, logger)
	if err != nil {
		logger.Fatal("Failed to initialize database", zap.Error(err))
	}
	defer db.Close()

	migrator := database.NewMigrator(db, logger)
	if err := migrator.RunMigrations(cfg.Database.MigrationsDir); err != nil {
		logger.Fatal("Failed to run database migrations", zap.Error(err))
	}

	instanceRepo := repository.NewInstanceRepository(db.DB, logger)
	eventRepo := repository.NewEventRepository(db.DB, logger)
	documentRepo := repository.NewDocumentRepository(db.DB, logger)
	confirmationRepo := repository.NewConfirmationRepository(db.DB, logger)
	dispatchRepo := repository.NewDispatchRepository(db.DB, logger)

	gw := gateway.NewOpenAIGateway(
		cfg.OpenAI.APIKey,
		cfg.OpenAI.Model,
		cfg.OpenAI.Temperature,
		cfg.OpenAI.MaxTokens,
		cfg.OpenAI.Timeout,
		logger,
	)

	smsClient := sms.NewClient(sms.Config{
		BaseURL:    cfg.SMS.BaseURL,
		AccountSID: cfg.SMS.AccountSID,
		AuthToken:  cfg.SMS.AuthToken,
		FromNumber: cfg.SMS.FromNumber,
		APITimeout: cfg.SMS.APITimeout,
	}, logger)

	hrClient := hrsync.NewClient(hrsync.Config{
		BaseURL:    cfg.HRSync.BaseURL,
		APIKey:     cfg.HRSync.APIKey,
		APITimeout: cfg.HRSync.APITimeout,
	}, logger)

	retry := &dispatcher.RetryStrategy{
		MaxAttempts: cfg.Workflow.DispatchMaxAttempts,
		BaseBackoff: cfg.Workflow.DispatchBaseBackoff,
		MaxBackoff:  cfg.Workflow.DispatchMaxBackoff,
		Jitter:      true,
	}
	disp := dispatcher.New(smsClient, hrClient, hrClient, hrClient, dispatchRepo, eventRepo, retry, logger)

	rules := workflow.Rules{
		ConfidenceThreshold:  cfg.Workflow.ConfidenceThreshold,
		MaxReminders:         cfg.Workflow.MaxReminders,
		MaxSubmissionRetries: cfg.Workflow.MaxSubmissionRetries,
	}
	eng := engine.New(db, instanceRepo, eventRepo, documentRepo, confirmationRepo, gw, disp, rules, logger)

	timeoutScanner := scanner.New(instanceRepo, eng, cfg.Workflow.ScanInterval, cfg.Workflow.StaleAfter, logger)

	manager := worker.NewManager(logger)
	manager.Register(timeoutScanner)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := manager.StartAll(ctx); err != nil {
		logger.Fatal("Failed to start background workers", zap.Error(err))
	}

	server := httpapi.NewServer(httpapi.ServerConfig{
		Host:         cfg.Server.Host,
		Port:         cfg.Server.Port,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}, eng, instanceRepo, eventRepo, logger)

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- server.Start(ctx)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		logger.Info("Shutdown signal received", zap.String("signal", sig.String()))
	case err := <-serverErr:
		if err != nil {
			logger.Error("HTTP server exited", zap.Error(err))
		}
	}

	cancel()
	manager.StopAll()
	if err := server.Stop(); err != nil {
		logger.Error("Server shutdown error", zap.Error(err))
	}

	logger.Info("Shutdown complete")
}
