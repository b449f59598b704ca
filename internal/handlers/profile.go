package handlers

import (
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/filedesk/backend/internal/middleware"
	"github.com/filedesk/backend/internal/models"
	"github.com/filedesk/backend/internal/services"
	"github.com/filedesk/backend/internal/storage"
	"github.com/filedesk/backend/pkg/utils"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type ProfileHandler struct {
	DB       *gorm.DB
	Storage  storage.ObjectStore
	Activity *services.ActivityService
}

func NewProfileHandler(db *gorm.DB, store storage.ObjectStore, activity *services.ActivityService) *ProfileHandler {
	return &ProfileHandler{DB: db, Storage: store, Activity: activity}
}

// loadOrInit returns the caller's profile, creating an empty one seeded from
// the account's name on first access.
func (h *ProfileHandler) loadOrInit(user *models.User) (*models.Profile, error) {
	var profile models.Profile
	err := h.DB.First(&profile, "user_id = ?", user.ID).Error
	if err == nil {
		return &profile, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	profile = models.Profile{
		UserID:    user.ID,
		FirstName: user.FirstName,
		LastName:  user.LastName,
	}
	if err := h.DB.Create(&profile).Error; err != nil {
		return nil, err
	}
	return &profile, nil
}

func (h *ProfileHandler) Get(c *fiber.Ctx) error {
	user := middleware.GetCurrentUser(c)

	profile, err := h.loadOrInit(user)
	if err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed to load profile")
	}

	return utils.Success(c, fiber.StatusOK, profile)
}

func (h *ProfileHandler) Update(c *fiber.Ctx) error {
	user := middleware.GetCurrentUser(c)

	var req struct {
		FirstName  *string `json:"firstName"`
		LastName   *string `json:"lastName"`
		DOB        *string `json:"dob"`
		Phone      *string `json:"phone"`
		Country    *string `json:"country"`
		City       *string `json:"city"`
		PostalCode *string `json:"postalCode"`
	}
	if err := c.BodyParser(&req); err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid request body")
	}

	profile, err := h.loadOrInit(user)
	if err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed to load profile")
	}

	if req.FirstName != nil {
		profile.FirstName = *req.FirstName
	}
	if req.LastName != nil {
		profile.LastName = *req.LastName
	}
	if req.DOB != nil {
		if *req.DOB == "" {
			profile.DOB = nil
		} else {
			dob, err := time.Parse("2006-01-02", *req.DOB)
			if err != nil {
				return utils.Error(c, fiber.StatusBadRequest, "dob must be YYYY-MM-DD")
			}
			profile.DOB = &dob
		}
	}
	if req.Phone != nil {
		profile.Phone = *req.Phone
	}
	if req.Country != nil {
		profile.Country = *req.Country
	}
	if req.City != nil {
		profile.City = *req.City
	}
	if req.PostalCode != nil {
		profile.PostalCode = *req.PostalCode
	}

	err = h.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Save(profile).Error; err != nil {
			return err
		}
		// Keep the account's display name in step with the profile.
		return tx.Model(&models.User{}).Where("id = ?", user.ID).Updates(map[string]interface{}{
			"first_name": profile.FirstName,
			"last_name":  profile.LastName,
		}).Error
	})
	if err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed to update profile")
	}

	h.Activity.Record(user, c.IP(), "Updated profile")
	return utils.Success(c, fiber.StatusOK, profile)
}

func (h *ProfileHandler) UploadAvatar(c *fiber.Ctx) error {
	user := middleware.GetCurrentUser(c)

	fileHeader, err := c.FormFile("avatar")
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "avatar file is required")
	}

	src, err := fileHeader.Open()
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "failed to read uploaded file")
	}
	defer src.Close()

	contentType := fileHeader.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	profile, err := h.loadOrInit(user)
	if err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed to load profile")
	}

	objectName := fmt.Sprintf("avatars/%s%s", uuid.New().String(), filepath.Ext(fileHeader.Filename))
	if err := h.Storage.Upload(c.Context(), objectName, src, fileHeader.Size, contentType); err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed to store avatar")
	}

	profile.AvatarPath = &objectName
	if err := h.DB.Save(profile).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed to update profile")
	}

	h.Activity.Record(user, c.IP(), "Updated profile picture")
	return utils.Success(c, fiber.StatusOK, profile)
}
