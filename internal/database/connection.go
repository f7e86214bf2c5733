// internal/database/connection.go
package database

import (
	"errors"
	"fmt"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/sirupsen/logrus"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/coopcredito/solicitudes-backend/internal/config"
	"github.com/coopcredito/solicitudes-backend/internal/models"
)

func Initialize(cfg config.DatabaseConfig) (*gorm.DB, error) {
	gormConfig := &gorm.Config{
		TranslateError: true,
		NowFunc:        func() time.Time { return time.Now().UTC() },
	}

	// Configure GORM logger
	if cfg.LogLevel == "silent" {
		gormConfig.Logger = logger.Default.LogMode(logger.Silent)
	} else {
		gormConfig.Logger = logger.Default.LogMode(logger.Info)
	}

	var dialector gorm.Dialector
	switch cfg.Driver {
	case "sqlite":
		dialector = sqlite.Open(cfg.DSN())
	default:
		dialector = postgres.Open(cfg.DSN())
	}

	db, err := gorm.Open(dialector, gormConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// Get underlying sql.DB
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}

	// Configure connection pool
	if cfg.Driver == "sqlite" {
		// A single writer connection avoids SQLITE_BUSY under concurrent transitions
		sqlDB.SetMaxOpenConns(1)
		sqlDB.SetMaxIdleConns(1)
	} else {
		sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
		sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	sqlDB.SetConnMaxLifetime(time.Duration(cfg.MaxLifetime) * time.Second)

	// Test connection
	if err := sqlDB.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	logrus.WithField("driver", cfg.Driver).Info("Database connection established")
	return db, nil
}

func Close(db *gorm.DB) {
	sqlDB, err := db.DB()
	if err != nil {
		logrus.WithError(err).Error("Error getting underlying sql.DB")
		return
	}

	if err := sqlDB.Close(); err != nil {
		logrus.WithError(err).Error("Error closing database connection")
	} else {
		logrus.Info("Database connection closed")
	}
}

func RunMigrations(db *gorm.DB) error {
	logrus.Info("Running database migrations...")

	err := db.AutoMigrate(
		&models.User{},
		&models.EstadoSolicitud{},
		&models.SolicitudCredito{},
		&models.TimelineEntry{},
		&models.DocumentRequirement{},
		&models.SubmittedDocument{},
		&models.SignatureTransaction{},
		&models.Signatory{},
		&models.AuditLog{},
		&models.Notification{},
	)
	if err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	// Create indexes
	if err := createIndexes(db); err != nil {
		return fmt.Errorf("failed to create indexes: %w", err)
	}

	logrus.Info("Database migrations completed")
	return nil
}

func createIndexes(db *gorm.DB) error {
	indexes := []string{
		// At most one active submission per document type and application
		"CREATE UNIQUE INDEX IF NOT EXISTS idx_submitted_documents_active ON submitted_documents(solicitud_id, type) WHERE active",

		"CREATE INDEX IF NOT EXISTS idx_solicitudes_owner_estado ON solicitudes_credito(owner_username, estado_codigo)",
		"CREATE INDEX IF NOT EXISTS idx_solicitudes_created_at ON solicitudes_credito(created_at DESC)",
		"CREATE INDEX IF NOT EXISTS idx_signature_transactions_state ON signature_transactions(state, deadline)",
		"CREATE INDEX IF NOT EXISTS idx_audit_logs_resource ON audit_logs(resource_type, resource_id)",
		"CREATE INDEX IF NOT EXISTS idx_notifications_recipient ON notifications(recipient_username, status)",
	}

	for _, index := range indexes {
		if err := db.Exec(index).Error; err != nil {
			logrus.WithError(err).WithField("index", index).Warn("Failed to create index")
			// Continue with other indexes instead of failing completely
		}
	}

	return nil
}

// Seed initial data
func SeedInitialData(db *gorm.DB, adminPassword string) error {
	logrus.Info("Seeding initial data...")

	// State catalog; rows are reference data and are never overwritten
	for _, estado := range models.DefaultEstadoCatalog() {
		var count int64
		if err := db.Model(&models.EstadoSolicitud{}).Where("code = ?", estado.Code).Count(&count).Error; err != nil {
			return fmt.Errorf("failed to check estado %s: %w", estado.Code, err)
		}
		if count == 0 {
			estado := estado
			if err := db.Create(&estado).Error; err != nil {
				return fmt.Errorf("failed to seed estado %s: %w", estado.Code, err)
			}
		}
	}

	// Default document requirements
	defaultRequirements := []models.DocumentRequirement{
		{Type: "CEDULA", Mandatory: true, Description: "Documento de identidad del solicitante"},
		{Type: "CERTIFICADO_LABORAL", Mandatory: true, Description: "Certificado laboral expedido por el empleador"},
		{Type: "DESPRENDIBLE_NOMINA", Mandatory: true, Description: "Últimos desprendibles de nómina"},
		{Type: "EXTRACTO_BANCARIO", Mandatory: false, Description: "Extracto bancario reciente"},
	}
	for _, requirement := range defaultRequirements {
		var count int64
		db.Model(&models.DocumentRequirement{}).Where("type = ?", requirement.Type).Count(&count)
		if count == 0 {
			requirement := requirement
			if err := db.Create(&requirement).Error; err != nil {
				logrus.WithError(err).WithField("type", requirement.Type).Warn("Failed to seed document requirement")
			}
		}
	}

	// Create default admin user
	var admin models.User
	err := db.Where("username = ?", "admin").First(&admin).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		admin = models.User{
			Username: "admin",
			Email:    "admin@cooperativa.local",
			FullName: "Administrador del sistema",
			Roles:    models.Roles{models.RoleAdministrador, models.RoleAnalista},
			Status:   models.UserStatusActive,
		}
		if err := admin.SetPassword(adminPassword); err != nil {
			return fmt.Errorf("failed to set admin password: %w", err)
		}
		if err := db.Create(&admin).Error; err != nil {
			return fmt.Errorf("failed to create admin user: %w", err)
		}
		logrus.Info("Default admin user created")
	} else if err != nil {
		return fmt.Errorf("failed to look up admin user: %w", err)
	}

	logrus.Info("Initial data seeding completed")
	return nil
}

// Transaction helper
func WithTransaction(db *gorm.DB, fn func(*gorm.DB) error) error {
	tx := db.Begin()
	if tx.Error != nil {
		return tx.Error
	}

	defer func() {
		if r := recover(); r != nil {
			tx.Rollback()
			panic(r)
		}
	}()

	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}

	return tx.Commit().Error
}
