package handlers

import (
	"testing"

	"github.com/filedesk/backend/internal/models"
	"github.com/filedesk/backend/internal/services"
)

func TestSendOTPRequiresEmail(t *testing.T) {
	env := setupTestEnv(t)

	resp := performJSONRequest(t, env.app, "POST", "/api/auth/send-otp", map[string]any{"email": ""}, nil)
	assertStatus(t, resp, 400)

	body := decodeJSONMap(t, resp)
	if body["status"] != "error" {
		t.Fatalf("expected status error, got %+v", body)
	}
	if len(env.mailer.sent) != 0 {
		t.Fatal("no mail should be sent for an empty email")
	}
}

func TestSendOTPMailFailure(t *testing.T) {
	env := setupTestEnv(t)
	env.mailer.fail = true

	resp := performJSONRequest(t, env.app, "POST", "/api/auth/send-otp", map[string]any{"email": "new@filedesk.local"}, nil)
	assertStatus(t, resp, 500)
}

func TestOTPVerifyLifecycle(t *testing.T) {
	env := setupTestEnv(t)

	resp := performJSONRequest(t, env.app, "POST", "/api/auth/send-otp", map[string]any{"email": "new@filedesk.local"}, nil)
	assertStatus(t, resp, 200)
	cookie := sessionCookie(t, resp)
	otp := env.mailer.lastOTP(t)

	// Wrong code is rejected and the right one still works afterwards.
	wrong := "000000"
	if wrong == otp {
		wrong = "000001"
	}
	resp = performJSONRequest(t, env.app, "POST", "/api/auth/verify-otp", map[string]any{"otp": wrong}, withCookie(nil, cookie))
	assertStatus(t, resp, 400)

	resp = performJSONRequest(t, env.app, "POST", "/api/auth/verify-otp", map[string]any{"otp": otp}, withCookie(nil, cookie))
	assertStatus(t, resp, 200)
}

func TestResendInvalidatesPreviousOTP(t *testing.T) {
	env := setupTestEnv(t)

	resp := performJSONRequest(t, env.app, "POST", "/api/auth/send-otp", map[string]any{"email": "new@filedesk.local"}, nil)
	assertStatus(t, resp, 200)
	cookie := sessionCookie(t, resp)
	firstOTP := env.mailer.lastOTP(t)

	resp = performJSONRequest(t, env.app, "POST", "/api/auth/send-otp", map[string]any{"email": "new@filedesk.local"}, withCookie(nil, cookie))
	assertStatus(t, resp, 200)
	secondOTP := env.mailer.lastOTP(t)

	if firstOTP != secondOTP {
		resp = performJSONRequest(t, env.app, "POST", "/api/auth/verify-otp", map[string]any{"otp": firstOTP}, withCookie(nil, cookie))
		assertStatus(t, resp, 400)
	}

	resp = performJSONRequest(t, env.app, "POST", "/api/auth/verify-otp", map[string]any{"otp": secondOTP}, withCookie(nil, cookie))
	assertStatus(t, resp, 200)
}

func TestVerifyOTPWithoutSend(t *testing.T) {
	env := setupTestEnv(t)

	resp := performJSONRequest(t, env.app, "POST", "/api/auth/verify-otp", map[string]any{"otp": "123456"}, nil)
	assertStatus(t, resp, 400)
}

func verifyEmail(t *testing.T, env *testEnv, email string) string {
	t.Helper()

	resp := performJSONRequest(t, env.app, "POST", "/api/auth/send-otp", map[string]any{"email": email}, nil)
	assertStatus(t, resp, 200)
	cookie := sessionCookie(t, resp)

	resp = performJSONRequest(t, env.app, "POST", "/api/auth/verify-otp", map[string]any{"otp": env.mailer.lastOTP(t)}, withCookie(nil, cookie))
	assertStatus(t, resp, 200)

	return cookie
}

func TestRegisterRequiresVerifiedEmail(t *testing.T) {
	env := setupTestEnv(t)

	resp := performJSONRequest(t, env.app, "POST", "/api/auth/register", map[string]any{
		"email":           "new@filedesk.local",
		"password":        "password123",
		"confirmPassword": "password123",
		"firstName":       "New",
		"lastName":        "Person",
		"role":            "employee",
	}, nil)
	assertStatus(t, resp, 400)

	var count int64
	env.db.Model(&models.User{}).Count(&count)
	if count != 0 {
		t.Fatal("no account should be created without a verified email")
	}
}

func TestRegisterRejectsMismatchedEmail(t *testing.T) {
	env := setupTestEnv(t)
	cookie := verifyEmail(t, env, "verified@filedesk.local")

	resp := performJSONRequest(t, env.app, "POST", "/api/auth/register", map[string]any{
		"email":           "other@filedesk.local",
		"password":        "password123",
		"confirmPassword": "password123",
		"firstName":       "New",
		"lastName":        "Person",
		"role":            "employee",
	}, withCookie(nil, cookie))
	assertStatus(t, resp, 400)
}

func TestRegisterEmployee(t *testing.T) {
	env := setupTestEnv(t)
	cookie := verifyEmail(t, env, "emp@filedesk.local")

	resp := performJSONRequest(t, env.app, "POST", "/api/auth/register", map[string]any{
		"email":           "emp@filedesk.local",
		"password":        "password123",
		"confirmPassword": "password123",
		"firstName":       "Em",
		"lastName":        "Ployee",
		"role":            "employee",
	}, withCookie(nil, cookie))
	assertStatus(t, resp, 201)

	body := decodeJSONMap(t, resp)
	if body["status"] != "success" {
		t.Fatalf("expected success, got %+v", body)
	}
	if body["token"] == nil || body["token"] == "" {
		t.Fatal("registration should issue a token")
	}

	var user models.User
	if err := env.db.First(&user, "email = ?", "emp@filedesk.local").Error; err != nil {
		t.Fatalf("account not created: %v", err)
	}
	if user.Role != models.UserRoleEmployee {
		t.Fatalf("expected employee role, got %s", user.Role)
	}

	var activityCount int64
	env.db.Model(&models.ActivityLog{}).Where("user_id = ?", user.ID).Count(&activityCount)
	if activityCount != 1 {
		t.Fatalf("expected one registration activity entry, got %d", activityCount)
	}
}

func TestRegisterManagerRequiresPasscode(t *testing.T) {
	env := setupTestEnv(t)
	cookie := verifyEmail(t, env, "mgr@filedesk.local")

	payload := map[string]any{
		"email":           "mgr@filedesk.local",
		"password":        "password123",
		"confirmPassword": "password123",
		"firstName":       "Man",
		"lastName":        "Ager",
		"role":            "manager",
		"passcode":        "WRONG1",
	}

	resp := performJSONRequest(t, env.app, "POST", "/api/auth/register", payload, withCookie(nil, cookie))
	assertStatus(t, resp, 400)

	body := decodeJSONMap(t, resp)
	errs, _ := body["errors"].(map[string]any)
	if errs["passcode"] == nil {
		t.Fatalf("expected a passcode field error, got %+v", body)
	}

	var count int64
	env.db.Model(&models.User{}).Count(&count)
	if count != 0 {
		t.Fatal("manager account must not be created with a wrong passcode")
	}

	// The session is still usable with the correct code for today.
	payload["passcode"] = services.DailyPasscode()
	resp = performJSONRequest(t, env.app, "POST", "/api/auth/register", payload, withCookie(nil, cookie))
	assertStatus(t, resp, 201)
}

func TestRegisterValidation(t *testing.T) {
	env := setupTestEnv(t)
	createTestUser(t, env.db, "taken@filedesk.local", "password123", models.UserRoleEmployee)

	cookie := verifyEmail(t, env, "taken@filedesk.local")

	resp := performJSONRequest(t, env.app, "POST", "/api/auth/register", map[string]any{
		"email":           "taken@filedesk.local",
		"password":        "password123",
		"confirmPassword": "different456",
		"firstName":       "",
		"lastName":        "Person",
		"role":            "employee",
	}, withCookie(nil, cookie))
	assertStatus(t, resp, 400)

	body := decodeJSONMap(t, resp)
	errs, _ := body["errors"].(map[string]any)
	for _, field := range []string{"email", "confirmPassword", "firstName"} {
		if errs[field] == nil {
			t.Fatalf("expected field error for %q, got %+v", field, errs)
		}
	}
}
