package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/filedesk/backend/internal/config"
	"github.com/filedesk/backend/internal/database"
	"github.com/filedesk/backend/internal/handlers"
	"github.com/filedesk/backend/internal/mailer"
	"github.com/filedesk/backend/internal/middleware"
	"github.com/filedesk/backend/internal/models"
	"github.com/filedesk/backend/internal/services"
	"github.com/filedesk/backend/internal/storage"
	"github.com/filedesk/backend/pkg/logger"
	"github.com/filedesk/backend/pkg/utils"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/session"
)

func main() {
	logger.Init()

	cfg := config.Load()
	utils.ConfigureJWT(cfg.JWT.Secret, cfg.JWT.ExpirationHours)
	utils.ConfigureEncryption(cfg.JWT.Secret)

	go func() {
		ticker := time.NewTicker(10 * time.Minute)
		defer ticker.Stop()
		for range ticker.C {
			utils.CleanupExpiredJTIs()
		}
	}()

	db, err := database.Connect(cfg.DB)
	if err != nil {
		log.Fatalf("database connection failed: %v", err)
	}

	storageClient, err := storage.NewMinIOClient(cfg.MinIO)
	if err != nil {
		log.Fatalf("minio initialization failed: %v", err)
	}
	if err := storageClient.EnsureBucket(context.Background()); err != nil {
		log.Fatalf("failed ensuring minio bucket: %v", err)
	}

	smtpMailer, err := mailer.NewSMTPMailer(cfg.SMTP)
	if err != nil {
		log.Fatalf("smtp initialization failed: %v", err)
	}

	sessions := session.New(session.Config{
		CookieHTTPOnly: true,
		Expiration:     cfg.Session.Expiration,
		KeyLookup:      "cookie:" + cfg.Session.CookieName,
	})

	activityService := services.NewActivityService(db)
	assignmentService := services.NewAssignmentService(db)

	authHandler := handlers.NewAuthHandler(db, sessions, smtpMailer, activityService)
	mfaHandler := handlers.NewMFAHandler(db, activityService)
	filesHandler := handlers.NewFilesHandler(db, storageClient, activityService)
	categoriesHandler := handlers.NewCategoriesHandler(db, assignmentService, activityService)
	usersHandler := handlers.NewUsersHandler(db, activityService)
	profileHandler := handlers.NewProfileHandler(db, storageClient, activityService)
	dashboardHandler := handlers.NewDashboardHandler(db)
	activityHandler := handlers.NewActivityHandler(db)

	authMiddleware := middleware.NewAuthMiddleware(db)

	app := fiber.New(fiber.Config{BodyLimit: 100 * 1024 * 1024})
	app.Use(recover.New(recover.Config{EnableStackTrace: true}))
	app.Use(middleware.CORS())
	app.Use(middleware.RequestLogger())
	app.Use(middleware.SecurityLogger())

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.Status(fiber.StatusOK).JSON(fiber.Map{"status": "ok"})
	})

	api := app.Group("/api")

	anyRole := middleware.RequireRoles(models.UserRoleEmployee, models.UserRoleManager, models.UserRoleAdmin)
	managerOrAdmin := middleware.RequireRoles(models.UserRoleManager, models.UserRoleAdmin)
	adminOnly := middleware.RequireRoles(models.UserRoleAdmin)

	authRoutes := api.Group("/auth")
	authRoutes.Post("/send-otp", authHandler.SendOTP)
	authRoutes.Post("/verify-otp", authHandler.VerifyOTP)
	authRoutes.Post("/register", authHandler.Register)
	authRoutes.Post("/login", authHandler.Login)
	authRoutes.Post("/forgot-password", authHandler.ForgotPassword)
	authRoutes.Post("/logout", authMiddleware.RequireAuth, authHandler.Logout)
	authRoutes.Get("/me", authMiddleware.RequireAuth, authHandler.Me)
	authRoutes.Put("/password", authMiddleware.RequireAuth, authHandler.ChangePassword)

	mfaRoutes := api.Group("/auth/mfa")
	mfaRoutes.Get("/status", authMiddleware.RequireAuth, mfaHandler.Status)
	mfaRoutes.Post("/totp/setup", authMiddleware.RequireAuth, mfaHandler.TOTPSetup)
	mfaRoutes.Post("/totp/verify-setup", authMiddleware.RequireAuth, mfaHandler.TOTPVerifySetup)
	mfaRoutes.Post("/totp/disable", authMiddleware.RequireAuth, mfaHandler.TOTPDisable)
	mfaRoutes.Post("/totp/verify", mfaHandler.VerifyTOTP)
	mfaRoutes.Post("/recovery/verify", mfaHandler.VerifyRecovery)

	fileRoutes := api.Group("/files", authMiddleware.RequireAuth)
	fileRoutes.Post("/upload", anyRole, filesHandler.Upload)
	fileRoutes.Get("/", anyRole, filesHandler.List)
	fileRoutes.Get("/:id/download", anyRole, filesHandler.Download)
	fileRoutes.Get("/:id", anyRole, filesHandler.Get)
	fileRoutes.Put("/:id", managerOrAdmin, filesHandler.Update)
	fileRoutes.Put("/:id/content", managerOrAdmin, filesHandler.ReplaceContent)
	fileRoutes.Delete("/:id", managerOrAdmin, filesHandler.Delete)

	categoryRoutes := api.Group("/categories", authMiddleware.RequireAuth, managerOrAdmin)
	categoryRoutes.Get("/", categoriesHandler.List)
	categoryRoutes.Post("/", categoriesHandler.Create)

	assignmentRoutes := api.Group("/assignments", authMiddleware.RequireAuth, managerOrAdmin)
	assignmentRoutes.Get("/", categoriesHandler.ListAssignments)
	assignmentRoutes.Post("/", categoriesHandler.CreateAssignment)
	assignmentRoutes.Put("/:id", categoriesHandler.Reassign)
	assignmentRoutes.Delete("/:id", categoriesHandler.DeleteAssignment)

	api.Get("/employees", authMiddleware.RequireAuth, managerOrAdmin, categoriesHandler.ListEmployees)

	userRoutes := api.Group("/users", authMiddleware.RequireAuth)
	userRoutes.Get("/", managerOrAdmin, usersHandler.List)
	userRoutes.Delete("/:id", adminOnly, usersHandler.Delete)

	profileRoutes := api.Group("/profile", authMiddleware.RequireAuth)
	profileRoutes.Get("/", profileHandler.Get)
	profileRoutes.Put("/", profileHandler.Update)
	profileRoutes.Post("/avatar", profileHandler.UploadAvatar)

	dashboardRoutes := api.Group("/dashboard", authMiddleware.RequireAuth)
	dashboardRoutes.Get("/", dashboardHandler.Summary)
	dashboardRoutes.Get("/charts", dashboardHandler.ChartData)

	activityRoutes := api.Group("/activity", authMiddleware.RequireAuth, adminOnly)
	activityRoutes.Get("/", activityHandler.List)
	activityRoutes.Get("/export", activityHandler.ExportCSV)

	listenAddr := fmt.Sprintf(":%s", cfg.Server.Port)

	logger.Info("server_starting", map[string]interface{}{
		"port":    cfg.Server.Port,
		"address": listenAddr,
	})

	errCh := make(chan error, 1)
	go func() {
		errCh <- app.Listen(listenAddr)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		log.Printf("shutting down server due to signal: %s", sig)
		shutdownDone := make(chan struct{})
		go func() {
			_ = app.Shutdown()
			close(shutdownDone)
		}()
		select {
		case <-shutdownDone:
		case <-time.After(10 * time.Second):
			log.Print("forced shutdown timeout reached")
		}
	case err := <-errCh:
		if err != nil {
			log.Fatalf("server error: %v", err)
		}
	}
}
