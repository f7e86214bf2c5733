// internal/router/router.go
package router

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/coopcredito/solicitudes-backend/internal/config"
	"github.com/coopcredito/solicitudes-backend/internal/handlers"
	"github.com/coopcredito/solicitudes-backend/internal/middleware"
	"github.com/coopcredito/solicitudes-backend/internal/models"
	"github.com/coopcredito/solicitudes-backend/internal/services"
	"github.com/coopcredito/solicitudes-backend/internal/utils"
)

// Services is the wired workflow core shared by the HTTP layer and the
// background jobs.
type Services struct {
	Registry      *services.EstadoRegistry
	Ledger        *services.TimelineLedger
	Documents     *services.DocumentGate
	Signatures    *services.SignatureProcess
	StateMachine  *services.StateMachine
	Notifications *services.NotificationService
	Storage       *services.StorageService
	Auth          *services.AuthService
	Users         *services.UserService
	Admin         *services.AdminService
	Clock         services.Clock
}

func NewServices(db *gorm.DB, cfg *config.Config, registry *services.EstadoRegistry, clock services.Clock) (*Services, error) {
	storageService, err := services.NewStorageService(cfg, clock)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	locks := services.NewSolicitudLocks()
	notificationService := services.NewNotificationService(db, cfg)
	ledger := services.NewTimelineLedger(db, registry, clock)
	gate := services.NewDocumentGate(db, clock)
	numbers := services.NewNumberGenerator(services.NewGormNumberStore(db), clock, cfg.Workflow.NumberPrefix, cfg.Workflow.NumberMaxAttempts)

	stateMachine := services.NewStateMachine(db, registry, ledger, gate, numbers, locks, clock, services.DocumentPolicy(cfg.Workflow.DocumentPolicy))
	stateMachine.SetNotifier(notificationService)

	return &Services{
		Registry:      registry,
		Ledger:        ledger,
		Documents:     gate,
		Signatures:    services.NewSignatureProcess(db, ledger, clock, cfg.Workflow.SignatureTTL, locks),
		StateMachine:  stateMachine,
		Notifications: notificationService,
		Storage:       storageService,
		Auth:          services.NewAuthService(db, cfg, notificationService),
		Users:         services.NewUserService(db),
		Admin:         services.NewAdminService(db, clock, notificationService),
		Clock:         clock,
	}, nil
}

func Initialize(db *gorm.DB, cfg *config.Config, svc *Services) *gin.Engine {
	// Initialize handlers
	authHandler := handlers.NewAuthHandler(svc.Auth)
	estadoHandler := handlers.NewEstadoHandler(svc.Registry)
	solicitudHandler := handlers.NewSolicitudHandler(svc.StateMachine)
	documentHandler := handlers.NewDocumentHandler(svc.Documents, svc.StateMachine, svc.Storage)
	signatureHandler := handlers.NewSignatureHandler(svc.Signatures, svc.StateMachine, svc.Clock)
	notificationHandler := handlers.NewNotificationHandler(svc.Notifications)
	userHandler := handlers.NewUserHandler(svc.Users)
	adminHandler := handlers.NewAdminHandler(svc.Admin)

	// Set JWT secret
	utils.SetJWTSecret(cfg.JWT.SecretKey)

	r := gin.New()

	// Global middleware
	r.Use(gin.Recovery())
	r.Use(middleware.RequestLogger())
	r.Use(middleware.CORS(cfg.Server.CORSOrigins))
	r.Use(middleware.I18nMiddleware())
	r.Use(middleware.GeneralRateLimit())
	r.Use(middleware.AuditLogMiddleware(db))

	// Health check
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "healthy",
			"version": "1.0.0",
		})
	})

	staff := middleware.RoleRequired(models.RoleAnalista, models.RoleAdministrador)
	admin := middleware.RoleRequired(models.RoleAdministrador)

	// API v1 routes
	v1 := r.Group("/v1")
	{
		// Authentication routes
		auth := v1.Group("/auth")
		{
			auth.POST("/register", middleware.AuthRateLimit(), authHandler.Register)
			auth.POST("/login", middleware.AuthRateLimit(), authHandler.Login)
			auth.POST("/refresh", middleware.AuthRateLimit(), authHandler.RefreshToken)
			auth.GET("/me", middleware.AuthRequired(), authHandler.Me)
		}

		protected := v1.Group("")
		protected.Use(middleware.AuthRequired())
		{
			protected.GET("/estados", estadoHandler.List)
			protected.GET("/document-requirements", documentHandler.Requirements)

			solicitudes := protected.Group("/solicitudes")
			{
				solicitudes.POST("", solicitudHandler.Create)
				solicitudes.GET("", solicitudHandler.List)
				solicitudes.GET("/:id", solicitudHandler.Get)
				solicitudes.GET("/:id/timeline", solicitudHandler.Timeline)
				solicitudes.POST("/:id/transitions", staff, solicitudHandler.Transition)
				solicitudes.POST("/:id/notes", staff, solicitudHandler.AddNote)
				solicitudes.DELETE("/:id", admin, solicitudHandler.Archive)
				solicitudes.POST("/:id/restore", admin, solicitudHandler.Restore)

				solicitudes.POST("/:id/documents", middleware.UploadRateLimit(), documentHandler.Submit)
				solicitudes.GET("/:id/documents/status", documentHandler.Status)

				solicitudes.POST("/:id/signatures", staff, signatureHandler.Initiate)
				solicitudes.GET("/:id/signatures", signatureHandler.ListForSolicitud)
			}

			documents := protected.Group("/documents")
			{
				documents.PUT("/:docId/state", staff, documentHandler.SetState)
				documents.GET("/:docId/download", documentHandler.Download)
			}

			signatures := protected.Group("/signatures")
			{
				signatures.GET("/:txId", signatureHandler.Get)
				signatures.POST("/:txId/events", staff, signatureHandler.RecordEvent)
				signatures.POST("/:txId/cancel", staff, signatureHandler.Cancel)
				signatures.POST("/:txId/check-expiry", staff, signatureHandler.CheckExpiry)
			}

			users := protected.Group("/users")
			{
				users.PUT("/profile", userHandler.UpdateProfile)
				users.PUT("/password", middleware.AuthRateLimit(), userHandler.ChangePassword)
			}

			notifications := protected.Group("/notifications")
			{
				notifications.GET("", notificationHandler.List)
				notifications.PUT("/:id/read", notificationHandler.MarkRead)
			}

			adminGroup := protected.Group("/admin")
			adminGroup.Use(admin)
			{
				adminGroup.POST("/document-requirements", documentHandler.RegisterRequirement)
				adminGroup.GET("/dashboard/stats", adminHandler.GetDashboardStats)
				adminGroup.GET("/users", adminHandler.GetUsers)
				adminGroup.PUT("/users/:username/roles", authHandler.AssignRoles)
				adminGroup.PUT("/users/:username/status", adminHandler.UpdateUserStatus)
			}
		}
	}

	return r
}
