package handlers

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"time"

	"github.com/filedesk/backend/internal/models"
	"github.com/filedesk/backend/pkg/utils"
	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

type ActivityHandler struct {
	DB *gorm.DB
}

func NewActivityHandler(db *gorm.DB) *ActivityHandler {
	return &ActivityHandler{DB: db}
}

// List returns the activity log newest first. Rows belonging to deleted
// users appear with a null user and their role snapshot.
func (h *ActivityHandler) List(c *fiber.Ctx) error {
	params := utils.ParsePagination(c)

	var total int64
	if err := h.DB.Model(&models.ActivityLog{}).Count(&total).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed to count activity")
	}

	var entries []models.ActivityLog
	err := params.Apply(
		h.DB.Model(&models.ActivityLog{}).Preload("User").Order("created_at DESC"),
	).Find(&entries).Error
	if err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed to list activity")
	}

	return utils.Paginated(c, entries, params.Page, params.Limit, total)
}

// ExportCSV streams the full log as a CSV attachment, oldest first.
func (h *ActivityHandler) ExportCSV(c *fiber.Ctx) error {
	var entries []models.ActivityLog
	if err := h.DB.Preload("User").Order("created_at ASC").Find(&entries).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed to export activity")
	}

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	if err := w.Write([]string{"timestamp", "user", "role", "action", "ip_address"}); err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed to export activity")
	}

	for _, entry := range entries {
		userEmail := ""
		if entry.User != nil {
			userEmail = entry.User.Email
		}
		record := []string{
			entry.CreatedAt.UTC().Format(time.RFC3339),
			userEmail,
			entry.Role,
			entry.Action,
			entry.IPAddress,
		}
		if err := w.Write(record); err != nil {
			return utils.Error(c, fiber.StatusInternalServerError, "failed to export activity")
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed to export activity")
	}

	filename := fmt.Sprintf("activity-log-%s.csv", time.Now().UTC().Format("2006-01-02"))
	c.Set("Content-Type", "text/csv")
	c.Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	return c.Status(fiber.StatusOK).Send(buf.Bytes())
}
