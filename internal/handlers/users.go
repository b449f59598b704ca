package handlers

import (
	"fmt"

	"github.com/filedesk/backend/internal/middleware"
	"github.com/filedesk/backend/internal/models"
	"github.com/filedesk/backend/internal/services"
	"github.com/filedesk/backend/pkg/logger"
	"github.com/filedesk/backend/pkg/utils"
	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

type UsersHandler struct {
	DB       *gorm.DB
	Activity *services.ActivityService
}

func NewUsersHandler(db *gorm.DB, activity *services.ActivityService) *UsersHandler {
	return &UsersHandler{DB: db, Activity: activity}
}

func (h *UsersHandler) List(c *fiber.Ctx) error {
	params := utils.ParsePagination(c)

	var total int64
	if err := h.DB.Model(&models.User{}).Count(&total).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed to count users")
	}

	var users []models.User
	err := params.Apply(h.DB.Model(&models.User{}).Order("created_at DESC")).
		Find(&users).Error
	if err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed to list users")
	}

	return utils.Paginated(c, users, params.Page, params.Limit, total)
}

// Delete removes an account. The actor cannot remove themselves. The user's
// activity rows survive with a nullified actor reference and their recorded
// role string intact; their access grants are removed and their uploads are
// soft-deleted.
func (h *UsersHandler) Delete(c *fiber.Ctx) error {
	actor := middleware.GetCurrentUser(c)

	id, err := parseUUID(c, "id")
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid user id")
	}

	if id == actor.ID {
		return utils.Error(c, fiber.StatusBadRequest, "You cannot delete yourself.")
	}

	var target models.User
	if err := h.DB.First(&target, "id = ?", id).Error; err != nil {
		return utils.Error(c, fiber.StatusNotFound, "user not found")
	}

	err = h.DB.Transaction(func(tx *gorm.DB) error {
		if err := h.Activity.DetachUser(tx, target.ID); err != nil {
			return err
		}
		if err := tx.Where("user_id = ?", target.ID).Delete(&models.FileAccess{}).Error; err != nil {
			return err
		}
		if err := tx.Where("user_id = ?", target.ID).Delete(&models.Profile{}).Error; err != nil {
			return err
		}
		if err := tx.Where("uploader_id = ?", target.ID).Delete(&models.File{}).Error; err != nil {
			return err
		}
		return tx.Delete(&target).Error
	})
	if err != nil {
		logger.ErrorWithUser(actor.ID.String(), "user_delete_failed", err, map[string]interface{}{
			"target_id": target.ID.String(),
		})
		return utils.Error(c, fiber.StatusInternalServerError, "failed to delete user")
	}

	h.Activity.Record(actor, c.IP(), fmt.Sprintf("Deleted user %s", target.Email))
	return utils.Success(c, fiber.StatusOK, fiber.Map{"message": "user deleted"})
}
