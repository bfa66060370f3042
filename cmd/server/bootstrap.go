package main

import (
	"context"
	"time"

	"github.com/huangang/condovote/internal/config"
	"github.com/huangang/condovote/internal/handlers"
	"github.com/huangang/condovote/internal/models"
	"github.com/huangang/condovote/internal/services"
	"github.com/huangang/condovote/internal/utils"
	"github.com/huangang/condovote/pkg/logger"
	"github.com/prometheus/client_golang/prometheus"
	"gorm.io/gorm"
)

// appServices holds all initialized services and handlers needed by the application.
type appServices struct {
	db        *gorm.DB
	engine    *services.Engine
	hub       *services.EventHub
	registry  *prometheus.Registry
	storage   services.FileStorage
	taskQueue services.TaskQueue
	worker    *services.Worker
	scheduler *services.Scheduler
}

// bootstrap initializes all application dependencies: database, engine, queue, schedulers.
func bootstrap(cfg *config.Config) *appServices {
	utils.SetJWTSecret(cfg.JWT.Secret)

	// Initialize database
	if err := models.InitDB(&cfg.Database); err != nil {
		logger.Fatalf("Failed to connect to database: %v", err)
	}

	// Auto migrate database
	if err := models.AutoMigrate(); err != nil {
		logger.Fatalf("Failed to migrate database: %v", err)
	}
	db := models.GetDB()

	// Initialize system logger
	services.InitSystemLogger(db)

	hub := services.GetEventHub()

	var (
		registry *prometheus.Registry
		metrics  *services.Metrics
	)
	if cfg.Metrics.Enabled {
		registry = prometheus.NewRegistry()
		metrics = services.NewMetrics(registry)
		services.RegisterHubGauge(registry, hub)
	}

	storage, err := services.NewFileStorage(context.Background(), &cfg.Storage)
	if err != nil {
		logger.Fatalf("Failed to initialize document storage: %v", err)
	}

	// Initialize task queue (uses Redis if enabled, otherwise sync mode)
	taskQueue := services.InitTaskQueue(cfg)

	engine := services.NewEngine(db, services.Options{
		OTPWindow: time.Duration(cfg.Assembly.OTPWindowSeconds) * time.Second,
		Events:    hub,
		Metrics:   metrics,
		Queue:     taskQueue,
		Storage:   storage,
		Upload: services.UploadPolicy{
			MaxBytes:     cfg.Storage.MaxBytes,
			AllowedTypes: cfg.Storage.AllowedTypes,
		},
	})

	if syncQueue, ok := taskQueue.(*services.SyncQueue); ok {
		syncQueue.SetProcessor(engine.Agenda.RecordResult)
	}

	// Start async worker when the queue actually reached Redis
	var worker *services.Worker
	if taskQueue.IsAsync() {
		worker = services.NewWorker(&cfg.Redis)
		if worker != nil {
			worker.SetProcessor(engine.Agenda.RecordResult)
			if err := worker.Start(); err != nil {
				logger.Error().Err(err).Msg("Failed to start worker")
			}
		}
	}

	if registry != nil {
		if err := handlers.RegisterServerMetrics(registry, db, taskQueue); err != nil {
			logger.Warn().Err(err).Msg("Failed to register server metrics")
		}
	}

	// Start OTP rotation and audit log retention jobs
	scheduler := services.NewScheduler(db, engine, cfg.Assembly.OTPRotateEvery, cfg.Log.RetentionDays)
	if err := scheduler.Start(); err != nil {
		logger.Fatalf("Failed to start scheduler: %v", err)
	}

	return &appServices{
		db:        db,
		engine:    engine,
		hub:       hub,
		registry:  registry,
		storage:   storage,
		taskQueue: taskQueue,
		worker:    worker,
		scheduler: scheduler,
	}
}

// shutdown gracefully stops all services.
func (s *appServices) shutdown() {
	s.scheduler.Stop()
	logger.Info().Msg("All schedulers stopped")

	if s.worker != nil {
		s.worker.Stop()
	}
	if s.taskQueue != nil {
		s.taskQueue.Close()
	}
	if s.storage != nil {
		s.storage.Close()
	}
	if sqlDB, err := s.db.DB(); err == nil {
		sqlDB.Close()
	}
}
