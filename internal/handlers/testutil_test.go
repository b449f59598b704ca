package handlers

import (
	"bytes"
	"context"
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/filedesk/backend/internal/database"
	"github.com/filedesk/backend/internal/middleware"
	"github.com/filedesk/backend/internal/models"
	"github.com/filedesk/backend/internal/services"
	"github.com/filedesk/backend/pkg/logger"
	"github.com/filedesk/backend/pkg/utils"
	gosqlite "github.com/glebarez/go-sqlite"
	"github.com/glebarez/sqlite"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/session"
	"gorm.io/gorm"
)

// fakeMailer records outbound mail instead of sending it.
type fakeMailer struct {
	mu   sync.Mutex
	sent []fakeMail
	fail bool
}

type fakeMail struct {
	To      string
	Subject string
	Body    string
}

func (m *fakeMailer) Send(_ context.Context, to, subject, body string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail {
		return fmt.Errorf("smtp unavailable")
	}
	m.sent = append(m.sent, fakeMail{To: to, Subject: subject, Body: body})
	return nil
}

var otpPattern = regexp.MustCompile(`\b(\d{6})\b`)

func (m *fakeMailer) lastOTP(t *testing.T) string {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.sent) == 0 {
		t.Fatal("no mail was sent")
	}
	match := otpPattern.FindStringSubmatch(m.sent[len(m.sent)-1].Body)
	if match == nil {
		t.Fatalf("no OTP found in mail body %q", m.sent[len(m.sent)-1].Body)
	}
	return match[1]
}

// fakeStore keeps objects in a map.
type fakeStore struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func newFakeStore() *fakeStore {
	return &fakeStore{objects: map[string][]byte{}}
}

func (s *fakeStore) Upload(_ context.Context, objectName string, reader io.Reader, _ int64, _ string) error {
	data, err := io.ReadAll(reader)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[objectName] = data
	return nil
}

func (s *fakeStore) Download(_ context.Context, objectName string) (io.ReadCloser, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.objects[objectName]
	if !ok {
		return nil, fmt.Errorf("object %s not found", objectName)
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (s *fakeStore) Delete(_ context.Context, objectName string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.objects, objectName)
	return nil
}

type testEnv struct {
	app    *fiber.App
	db     *gorm.DB
	mailer *fakeMailer
	store  *fakeStore
}

var testSetupOnce sync.Once

func setupTestEnv(t *testing.T) *testEnv {
	t.Helper()

	testSetupOnce.Do(func() {
		gosqlite.MustRegisterScalarFunction("NOW", 0, func(ctx *gosqlite.FunctionContext, args []driver.Value) (driver.Value, error) {
			return time.Now().UTC(), nil
		})
		logger.Init()
		utils.ConfigureJWT("test-secret", 24)
		utils.ConfigureEncryption("test-secret")
	})

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed opening in-memory sqlite database: %v", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("failed getting sql.DB from gorm: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)

	t.Cleanup(func() {
		_ = sqlDB.Close()
	})

	if err := database.Migrate(db); err != nil {
		t.Fatalf("failed automigrating models: %v", err)
	}

	mail := &fakeMailer{}
	store := newFakeStore()

	sessions := session.New(session.Config{
		CookieHTTPOnly: true,
		Expiration:     time.Hour,
		KeyLookup:      "cookie:filedesk_session",
	})

	activityService := services.NewActivityService(db)
	assignmentService := services.NewAssignmentService(db)

	authHandler := NewAuthHandler(db, sessions, mail, activityService)
	mfaHandler := NewMFAHandler(db, activityService)
	filesHandler := NewFilesHandler(db, store, activityService)
	categoriesHandler := NewCategoriesHandler(db, assignmentService, activityService)
	usersHandler := NewUsersHandler(db, activityService)
	profileHandler := NewProfileHandler(db, store, activityService)
	dashboardHandler := NewDashboardHandler(db)
	activityHandler := NewActivityHandler(db)

	authMiddleware := middleware.NewAuthMiddleware(db)

	app := fiber.New(fiber.Config{BodyLimit: 100 * 1024 * 1024})
	app.Use(recover.New(recover.Config{EnableStackTrace: true}))
	app.Use(middleware.CORS())
	app.Use(middleware.RequestLogger())
	app.Use(middleware.SecurityLogger())

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

	return &testEnv{app: app, db: db, mailer: mail, store: store}
}

func createTestUser(t *testing.T, db *gorm.DB, email, password string, role models.UserRole) (*models.User, string) {
	t.Helper()

	hash, err := utils.HashPassword(password)
	if err != nil {
		t.Fatalf("failed hashing password: %v", err)
	}

	user := &models.User{
		Email:        email,
		PasswordHash: hash,
		FirstName:    "Test",
		LastName:     "User",
		Role:         role,
	}
	if err := db.Create(user).Error; err != nil {
		t.Fatalf("failed creating test user: %v", err)
	}

	token, err := utils.GenerateToken(user)
	if err != nil {
		t.Fatalf("failed generating auth token: %v", err)
	}

	return user, token
}

func authHeaders(token string) map[string]string {
	return map[string]string{"Authorization": "Bearer " + token}
}

func performRequest(t *testing.T, app *fiber.App, method, path string, body io.Reader, headers map[string]string) *http.Response {
	t.Helper()

	req := httptest.NewRequest(method, path, body)
	for key, value := range headers {
		req.Header.Set(key, value)
	}

	resp, err := app.Test(req, int((10 * time.Second).Milliseconds()))
	if err != nil {
		t.Fatalf("request %s %s failed: %v", method, path, err)
	}

	return resp
}

func performJSONRequest(t *testing.T, app *fiber.App, method, path string, payload any, headers map[string]string) *http.Response {
	t.Helper()

	var body io.Reader
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			t.Fatalf("failed to marshal payload: %v", err)
		}
		body = bytes.NewReader(encoded)
	}

	requestHeaders := map[string]string{}
	for key, value := range headers {
		requestHeaders[key] = value
	}
	if payload != nil {
		requestHeaders["Content-Type"] = "application/json"
	}

	return performRequest(t, app, method, path, body, requestHeaders)
}

// sessionCookie extracts the session cookie from a response so the next
// request in a registration flow can carry it.
func sessionCookie(t *testing.T, resp *http.Response) string {
	t.Helper()
	for _, c := range resp.Cookies() {
		if c.Name == "filedesk_session" {
			return c.Name + "=" + c.Value
		}
	}
	t.Fatal("response carries no session cookie")
	return ""
}

func withCookie(headers map[string]string, cookie string) map[string]string {
	merged := map[string]string{"Cookie": cookie}
	for key, value := range headers {
		merged[key] = value
	}
	return merged
}

func multipartBody(t *testing.T, field, filename string, content []byte, fields map[string]string) (io.Reader, string) {
	t.Helper()

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	part, err := w.CreateFormFile(field, filename)
	if err != nil {
		t.Fatalf("failed creating form file: %v", err)
	}
	if _, err := part.Write(content); err != nil {
		t.Fatalf("failed writing form file: %v", err)
	}

	for key, value := range fields {
		if err := w.WriteField(key, value); err != nil {
			t.Fatalf("failed writing form field: %v", err)
		}
	}

	if err := w.Close(); err != nil {
		t.Fatalf("failed closing multipart writer: %v", err)
	}

	return &buf, w.FormDataContentType()
}

func decodeJSONMap(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("failed reading response body: %v", err)
	}

	var payload map[string]any
	if err := json.Unmarshal(raw, &payload); err != nil {
		t.Fatalf("failed decoding JSON response: %v body=%q", err, string(raw))
	}

	return payload
}

func assertStatus(t *testing.T, resp *http.Response, expected int) {
	t.Helper()
	if resp.StatusCode != expected {
		t.Fatalf("expected status %d, got %d", expected, resp.StatusCode)
	}
}

func assertEnvelopeError(t *testing.T, body map[string]any, expected string) {
	t.Helper()
	if success, _ := body["success"].(bool); success {
		t.Fatalf("expected success=false, got %+v", body)
	}
	if got, _ := body["error"].(string); got != expected {
		t.Fatalf("expected error %q, got %q", expected, got)
	}
}
