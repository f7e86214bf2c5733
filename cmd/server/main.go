// cmd/server/main.go
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/coopcredito/solicitudes-backend/internal/config"
	"github.com/coopcredito/solicitudes-backend/internal/database"
	"github.com/coopcredito/solicitudes-backend/internal/i18n"
	"github.com/coopcredito/solicitudes-backend/internal/jobs"
	"github.com/coopcredito/solicitudes-backend/internal/router"
	"github.com/coopcredito/solicitudes-backend/internal/services"
)

func main() {
	logrus.SetFormatter(&logrus.JSONFormatter{})

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logrus.WithError(err).Fatal("Failed to load configuration")
	}

	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	} else {
		logrus.SetLevel(logrus.DebugLevel)
	}

	// Initialize database
	db, err := database.Initialize(cfg.Database)
	if err != nil {
		logrus.WithError(err).Fatal("Failed to initialize database")
	}
	defer database.Close(db)

	if cfg.Database.AutoMigrate {
		if err := database.RunMigrations(db); err != nil {
			logrus.WithError(err).Fatal("Failed to run migrations")
		}
	}

	if cfg.Database.SeedData {
		if err := database.SeedInitialData(db, cfg.Database.AdminPassword); err != nil {
			logrus.WithError(err).Fatal("Failed to seed initial data")
		}
	}

	if err := i18n.Initialize(cfg.I18n.DefaultLocale); err != nil {
		logrus.WithError(err).Fatal("Failed to initialize i18n")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	registry, fallback, err := services.LoadRegistryOrDefault(ctx, db)
	if err != nil {
		logrus.WithError(err).Fatal("Invalid persisted estado catalog")
	}
	if fallback {
		logrus.Warn("Estado catalog table is empty, using the built-in catalog")
	}

	svc, err := router.NewServices(db, cfg, registry, services.SystemClock{})
	if err != nil {
		logrus.WithError(err).Fatal("Failed to initialize services")
	}

	r := router.Initialize(db, cfg, svc)

	expiryJob := jobs.NewSignatureExpiryJob(svc.Signatures, svc.Clock, cfg.Workflow.ExpirySweepInterval)
	go expiryJob.Start(ctx)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Server.Port),
		Handler:      r,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		IdleTimeout:  time.Duration(cfg.Server.IdleTimeout) * time.Second,
	}

	// Start server in a goroutine
	go func() {
		logrus.WithField("port", cfg.Server.Port).Info("Starting server")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logrus.WithError(err).Fatal("Failed to start server")
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	<-ctx.Done()
	logrus.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logrus.WithError(err).Error("Server forced to shutdown")
		os.Exit(1)
	}

	logrus.Info("Server exited")
}
