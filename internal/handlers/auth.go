package handlers

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"strings"

	"github.com/filedesk/backend/internal/mailer"
	"github.com/filedesk/backend/internal/middleware"
	"github.com/filedesk/backend/internal/models"
	"github.com/filedesk/backend/internal/services"
	"github.com/filedesk/backend/pkg/logger"
	"github.com/filedesk/backend/pkg/utils"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/session"
	"gorm.io/gorm"
)

// Session keys for the registration workflow. The four keys live and die
// together: send-otp writes the first three, verify-otp adds the last, and a
// successful registration clears all of them.
const (
	sessionKeyOTP           = "email_otp"
	sessionKeyEmailToVerify = "email_to_verify"
	sessionKeyOTPSent       = "otp_sent"
	sessionKeyEmailVerified = "email_verified"
)

type AuthHandler struct {
	DB       *gorm.DB
	Sessions *session.Store
	Mailer   mailer.Mailer
	Activity *services.ActivityService
}

func NewAuthHandler(db *gorm.DB, sessions *session.Store, m mailer.Mailer, activity *services.ActivityService) *AuthHandler {
	return &AuthHandler{DB: db, Sessions: sessions, Mailer: m, Activity: activity}
}

func generateOTP() (string, error) {
	// Uniform six digits, 100000..999999.
	n, err := rand.Int(rand.Reader, big.NewInt(900000))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%06d", n.Int64()+100000), nil
}

// SendOTP starts (or restarts) email verification. Re-sending overwrites any
// previous code and verification state for the session, so only the newest
// code is ever acceptable.
func (h *AuthHandler) SendOTP(c *fiber.Ctx) error {
	var req struct {
		Email string `json:"email"`
	}
	if err := c.BodyParser(&req); err != nil {
		return utils.StatusError(c, fiber.StatusBadRequest, "Invalid request body")
	}

	email := strings.TrimSpace(strings.ToLower(req.Email))
	if email == "" {
		return utils.StatusError(c, fiber.StatusBadRequest, "Email is required.")
	}

	otp, err := generateOTP()
	if err != nil {
		return utils.StatusError(c, fiber.StatusInternalServerError, "Could not generate verification code.")
	}

	sess, err := h.Sessions.Get(c)
	if err != nil {
		return utils.StatusError(c, fiber.StatusInternalServerError, "Session unavailable.")
	}

	body := fmt.Sprintf("Your FileDesk verification code is %s.", otp)
	if err := h.Mailer.Send(c.Context(), email, "Your verification code", body); err != nil {
		logger.Error("otp_send_failed", err, map[string]interface{}{"email": email})
		return utils.StatusError(c, fiber.StatusInternalServerError, "Failed to send verification email.")
	}

	sess.Set(sessionKeyOTP, otp)
	sess.Set(sessionKeyEmailToVerify, email)
	sess.Set(sessionKeyOTPSent, true)
	sess.Delete(sessionKeyEmailVerified)
	if err := sess.Save(); err != nil {
		return utils.StatusError(c, fiber.StatusInternalServerError, "Session unavailable.")
	}

	logger.Info("otp_sent", map[string]interface{}{"email": email})
	return utils.StatusSuccess(c, fiber.StatusOK, "Verification code sent.")
}

// VerifyOTP checks the submitted code against the session's. A mismatch
// leaves the session untouched so the caller may retry with the same code.
func (h *AuthHandler) VerifyOTP(c *fiber.Ctx) error {
	var req struct {
		OTP string `json:"otp"`
	}
	if err := c.BodyParser(&req); err != nil {
		return utils.StatusError(c, fiber.StatusBadRequest, "Invalid request body")
	}

	sess, err := h.Sessions.Get(c)
	if err != nil {
		return utils.StatusError(c, fiber.StatusInternalServerError, "Session unavailable.")
	}

	stored, _ := sess.Get(sessionKeyOTP).(string)
	if stored == "" {
		return utils.StatusError(c, fiber.StatusBadRequest, "No verification code was requested.")
	}

	if strings.TrimSpace(req.OTP) != stored {
		return utils.StatusError(c, fiber.StatusBadRequest, "Invalid verification code.")
	}

	sess.Set(sessionKeyEmailVerified, true)
	if err := sess.Save(); err != nil {
		return utils.StatusError(c, fiber.StatusInternalServerError, "Session unavailable.")
	}

	return utils.StatusSuccess(c, fiber.StatusOK, "Email verified.")
}

// Register finalizes self-registration. The email must have been verified in
// this session and must match the verified address; admin and manager
// sign-ups additionally require today's passcode. On any failure the session
// state is left intact so the caller can correct and resubmit.
func (h *AuthHandler) Register(c *fiber.Ctx) error {
	var req struct {
		Email           string `json:"email"`
		Password        string `json:"password"`
		ConfirmPassword string `json:"confirmPassword"`
		FirstName       string `json:"firstName"`
		LastName        string `json:"lastName"`
		Role            string `json:"role"`
		Passcode        string `json:"passcode"`
	}
	if err := c.BodyParser(&req); err != nil {
		return utils.StatusError(c, fiber.StatusBadRequest, "Invalid request body")
	}

	sess, err := h.Sessions.Get(c)
	if err != nil {
		return utils.StatusError(c, fiber.StatusInternalServerError, "Session unavailable.")
	}

	verified, _ := sess.Get(sessionKeyEmailVerified).(bool)
	verifiedEmail, _ := sess.Get(sessionKeyEmailToVerify).(string)
	email := strings.TrimSpace(strings.ToLower(req.Email))

	if !verified || verifiedEmail == "" || email != verifiedEmail {
		return utils.StatusError(c, fiber.StatusBadRequest, "Please verify your email before registering.")
	}

	errs := map[string]string{}
	if req.FirstName == "" {
		errs["firstName"] = "First name is required."
	}
	if req.LastName == "" {
		errs["lastName"] = "Last name is required."
	}
	if len(req.Password) < 8 {
		errs["password"] = "Password must be at least 8 characters."
	}
	if req.Password != req.ConfirmPassword {
		errs["confirmPassword"] = "Passwords do not match."
	}

	role := models.UserRole(req.Role)
	if !models.ValidRole(role) {
		errs["role"] = "Invalid role."
	} else if models.PrivilegedRole(role) && req.Passcode != services.DailyPasscode() {
		errs["passcode"] = "Invalid passcode."
	}

	var existing models.User
	if err := h.DB.First(&existing, "email = ?", email).Error; err == nil {
		errs["email"] = "An account with this email already exists."
	}

	if len(errs) > 0 {
		return utils.StatusFieldErrors(c, errs)
	}

	hash, err := utils.HashPassword(req.Password)
	if err != nil {
		return utils.StatusError(c, fiber.StatusInternalServerError, "Failed to create account.")
	}

	user := models.User{
		Email:        email,
		PasswordHash: hash,
		FirstName:    req.FirstName,
		LastName:     req.LastName,
		Role:         role,
	}
	if err := h.DB.Create(&user).Error; err != nil {
		logger.Error("register_create_failed", err, map[string]interface{}{"email": email})
		return utils.StatusError(c, fiber.StatusInternalServerError, "Failed to create account.")
	}

	sess.Delete(sessionKeyOTP)
	sess.Delete(sessionKeyEmailToVerify)
	sess.Delete(sessionKeyOTPSent)
	sess.Delete(sessionKeyEmailVerified)
	if err := sess.Save(); err != nil {
		logger.Warn("register_session_clear_failed", map[string]interface{}{"email": email})
	}

	token, err := utils.GenerateToken(&user)
	if err != nil {
		return utils.StatusError(c, fiber.StatusInternalServerError, "Failed to create session token.")
	}

	h.Activity.Record(&user, c.IP(), fmt.Sprintf("Registered as %s", user.Role))
	logger.InfoWithUser(user.ID.String(), "user_registered", map[string]interface{}{
		"email": email,
		"role":  string(user.Role),
	})

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"status":  "success",
		"message": "Account created.",
		"token":   token,
		"user":    user,
	})
}

func (h *AuthHandler) Login(c *fiber.Ctx) error {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := c.BodyParser(&req); err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid request body")
	}

	email := strings.TrimSpace(strings.ToLower(req.Email))

	var user models.User
	if err := h.DB.First(&user, "email = ?", email).Error; err != nil {
		logger.Warn("login_unknown_email", map[string]interface{}{"email": email, "ip": c.IP()})
		return utils.Error(c, fiber.StatusUnauthorized, "invalid credentials")
	}

	if !utils.CheckPassword(req.Password, user.PasswordHash) {
		logger.WarnWithUser(user.ID.String(), "login_bad_password", map[string]interface{}{"ip": c.IP()})
		return utils.Error(c, fiber.StatusUnauthorized, "invalid credentials")
	}

	var mfa models.MFAConfig
	if err := h.DB.First(&mfa, "user_id = ? AND totp_enabled = ?", user.ID, true).Error; err == nil {
		mfaToken, err := utils.GenerateMFAToken(user.ID, user.Email)
		if err != nil {
			return utils.Error(c, fiber.StatusInternalServerError, "failed to generate MFA challenge")
		}
		return utils.Success(c, fiber.StatusOK, fiber.Map{
			"mfaRequired": true,
			"mfaToken":    mfaToken,
		})
	}

	token, err := utils.GenerateToken(&user)
	if err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed to generate token")
	}

	h.Activity.Record(&user, c.IP(), "Logged in")
	return utils.Success(c, fiber.StatusOK, fiber.Map{
		"token": token,
		"user":  user,
	})
}

// Logout only records the activity entry; the JWT itself stays valid until
// expiry and the client discards it.
func (h *AuthHandler) Logout(c *fiber.Ctx) error {
	user := middleware.GetCurrentUser(c)
	h.Activity.Record(user, c.IP(), "Logged out")
	return utils.Success(c, fiber.StatusOK, fiber.Map{"message": "logged out"})
}

func (h *AuthHandler) Me(c *fiber.Ctx) error {
	user := middleware.GetCurrentUser(c)
	if user == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	var withProfile models.User
	if err := h.DB.Preload("Profile").First(&withProfile, "id = ?", user.ID).Error; err != nil {
		return utils.Error(c, fiber.StatusNotFound, "user not found")
	}

	return utils.Success(c, fiber.StatusOK, withProfile)
}

func (h *AuthHandler) ChangePassword(c *fiber.Ctx) error {
	user := middleware.GetCurrentUser(c)
	if user == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	var req struct {
		OldPassword     string `json:"oldPassword"`
		NewPassword     string `json:"newPassword"`
		ConfirmPassword string `json:"confirmPassword"`
	}
	if err := c.BodyParser(&req); err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid request body")
	}

	if !utils.CheckPassword(req.OldPassword, user.PasswordHash) {
		return utils.Error(c, fiber.StatusUnauthorized, "current password is incorrect")
	}
	if len(req.NewPassword) < 8 {
		return utils.Error(c, fiber.StatusBadRequest, "new password must be at least 8 characters")
	}
	if req.NewPassword != req.ConfirmPassword {
		return utils.Error(c, fiber.StatusBadRequest, "passwords do not match")
	}

	hash, err := utils.HashPassword(req.NewPassword)
	if err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed to update password")
	}

	if err := h.DB.Model(user).Update("password_hash", hash).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed to update password")
	}

	h.Activity.Record(user, c.IP(), "Changed password")
	return utils.Success(c, fiber.StatusOK, fiber.Map{"message": "password updated"})
}

// ForgotPassword resets a password by email without a reset link. The reset
// form is only reachable alongside the OTP-verified registration flow, which
// is why a plain email match is accepted here.
func (h *AuthHandler) ForgotPassword(c *fiber.Ctx) error {
	var req struct {
		Email           string `json:"email"`
		NewPassword     string `json:"newPassword"`
		ConfirmPassword string `json:"confirmPassword"`
	}
	if err := c.BodyParser(&req); err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid request body")
	}

	if len(req.NewPassword) < 8 {
		return utils.Error(c, fiber.StatusBadRequest, "new password must be at least 8 characters")
	}
	if req.NewPassword != req.ConfirmPassword {
		return utils.Error(c, fiber.StatusBadRequest, "passwords do not match")
	}

	email := strings.TrimSpace(strings.ToLower(req.Email))

	var user models.User
	if err := h.DB.First(&user, "email = ?", email).Error; err != nil {
		return utils.Error(c, fiber.StatusNotFound, "no account found for this email")
	}

	hash, err := utils.HashPassword(req.NewPassword)
	if err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed to reset password")
	}

	if err := h.DB.Model(&user).Update("password_hash", hash).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed to reset password")
	}

	h.Activity.Record(&user, c.IP(), "Reset password")
	return utils.Success(c, fiber.StatusOK, fiber.Map{"message": "password reset"})
}
