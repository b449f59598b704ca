package handlers

import (
	"fmt"
	"io"
	"path/filepath"

	"github.com/filedesk/backend/internal/middleware"
	"github.com/filedesk/backend/internal/models"
	"github.com/filedesk/backend/internal/services"
	"github.com/filedesk/backend/internal/storage"
	"github.com/filedesk/backend/pkg/logger"
	"github.com/filedesk/backend/pkg/utils"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type FilesHandler struct {
	DB       *gorm.DB
	Storage  storage.ObjectStore
	Activity *services.ActivityService
}

func NewFilesHandler(db *gorm.DB, store storage.ObjectStore, activity *services.ActivityService) *FilesHandler {
	return &FilesHandler{DB: db, Storage: store, Activity: activity}
}

// visibleFiles narrows a file query to what the role may see: admins see
// everything, managers see employee uploads plus their own, employees see
// only their own. Grants widen access per file, not the listing.
func (h *FilesHandler) visibleFiles(user *models.User) *gorm.DB {
	q := h.DB.Model(&models.File{})
	switch user.Role {
	case models.UserRoleAdmin:
		return q
	case models.UserRoleManager:
		return q.Where(
			"uploader_id = ? OR uploader_id IN (?)",
			user.ID,
			h.DB.Model(&models.User{}).Select("id").Where("role = ?", models.UserRoleEmployee),
		)
	default:
		return q.Where("uploader_id = ?", user.ID)
	}
}

func (h *FilesHandler) canAccess(user *models.User, file *models.File) bool {
	switch {
	case user.Role == models.UserRoleAdmin:
		return true
	case file.UploaderID == user.ID:
		return true
	case user.Role == models.UserRoleManager:
		var uploader models.User
		if err := h.DB.First(&uploader, "id = ?", file.UploaderID).Error; err == nil {
			if uploader.Role == models.UserRoleEmployee {
				return true
			}
		}
	}

	var grant models.FileAccess
	err := h.DB.First(&grant, "file_id = ? AND user_id = ? AND can_view = ?", file.ID, user.ID, true).Error
	return err == nil
}

func (h *FilesHandler) Upload(c *fiber.Ctx) error {
	user := middleware.GetCurrentUser(c)

	fileHeader, err := c.FormFile("file")
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "file is required")
	}

	title := c.FormValue("title")
	if title == "" {
		title = fileHeader.Filename
	}
	description := c.FormValue("description")

	src, err := fileHeader.Open()
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "failed to read uploaded file")
	}
	defer src.Close()

	contentType := fileHeader.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	objectName := fmt.Sprintf("files/%s%s", uuid.New().String(), filepath.Ext(fileHeader.Filename))
	if err := h.Storage.Upload(c.Context(), objectName, src, fileHeader.Size, contentType); err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed to store file")
	}

	file := models.File{
		Title:       title,
		Description: description,
		MimeType:    contentType,
		Size:        fileHeader.Size,
		StoragePath: objectName,
		UploaderID:  user.ID,
	}
	if err := h.DB.Create(&file).Error; err != nil {
		logger.ErrorWithUser(user.ID.String(), "file_record_create_failed", err, map[string]interface{}{
			"object_name": objectName,
		})
		return utils.Error(c, fiber.StatusInternalServerError, "failed to save file record")
	}

	h.Activity.Record(user, c.IP(), fmt.Sprintf("Uploaded file %q", file.Title))
	return utils.Success(c, fiber.StatusCreated, file)
}

func (h *FilesHandler) List(c *fiber.Ctx) error {
	user := middleware.GetCurrentUser(c)
	params := utils.ParsePagination(c)

	var total int64
	if err := h.visibleFiles(user).Count(&total).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed to count files")
	}

	var files []models.File
	err := params.Apply(h.visibleFiles(user).Preload("Uploader").Order("created_at DESC")).
		Find(&files).Error
	if err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed to list files")
	}

	return utils.Paginated(c, files, params.Page, params.Limit, total)
}

func (h *FilesHandler) Get(c *fiber.Ctx) error {
	user := middleware.GetCurrentUser(c)

	id, err := parseUUID(c, "id")
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid file id")
	}

	var file models.File
	if err := h.DB.Preload("Uploader").Preload("EditedBy").First(&file, "id = ?", id).Error; err != nil {
		return utils.Error(c, fiber.StatusNotFound, "file not found")
	}

	if !h.canAccess(user, &file) {
		return utils.Error(c, fiber.StatusNotFound, "file not found")
	}

	return utils.Success(c, fiber.StatusOK, file)
}

// Update edits title/description metadata and stamps the edit audit pair.
// The original upload keeps EditedAt/EditedByID unset until the first edit.
func (h *FilesHandler) Update(c *fiber.Ctx) error {
	user := middleware.GetCurrentUser(c)

	id, err := parseUUID(c, "id")
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid file id")
	}

	var req struct {
		Title       *string `json:"title"`
		Description *string `json:"description"`
	}
	if err := c.BodyParser(&req); err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid request body")
	}

	var file models.File
	if err := h.DB.First(&file, "id = ?", id).Error; err != nil {
		return utils.Error(c, fiber.StatusNotFound, "file not found")
	}

	if req.Title != nil {
		if *req.Title == "" {
			return utils.Error(c, fiber.StatusBadRequest, "title cannot be empty")
		}
		file.Title = *req.Title
	}
	if req.Description != nil {
		file.Description = *req.Description
	}

	h.stampEdit(&file, user)
	if err := h.DB.Save(&file).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed to update file")
	}

	h.Activity.Record(user, c.IP(), fmt.Sprintf("Edited file %q", file.Title))
	return utils.Success(c, fiber.StatusOK, file)
}

// ReplaceContent swaps the stored object for a new upload while keeping the
// file's identity and grants. Counts as an edit.
func (h *FilesHandler) ReplaceContent(c *fiber.Ctx) error {
	user := middleware.GetCurrentUser(c)

	id, err := parseUUID(c, "id")
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid file id")
	}

	var file models.File
	if err := h.DB.First(&file, "id = ?", id).Error; err != nil {
		return utils.Error(c, fiber.StatusNotFound, "file not found")
	}

	fileHeader, err := c.FormFile("file")
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "file is required")
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

	oldObject := file.StoragePath
	objectName := fmt.Sprintf("files/%s%s", uuid.New().String(), filepath.Ext(fileHeader.Filename))
	if err := h.Storage.Upload(c.Context(), objectName, src, fileHeader.Size, contentType); err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed to store file")
	}

	file.StoragePath = objectName
	file.MimeType = contentType
	file.Size = fileHeader.Size
	h.stampEdit(&file, user)

	if err := h.DB.Save(&file).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed to update file")
	}

	if err := h.Storage.Delete(c.Context(), oldObject); err != nil {
		logger.Warn("stale_object_delete_failed", map[string]interface{}{
			"object_name": oldObject,
		})
	}

	h.Activity.Record(user, c.IP(), fmt.Sprintf("Replaced contents of file %q", file.Title))
	return utils.Success(c, fiber.StatusOK, file)
}

func (h *FilesHandler) stampEdit(file *models.File, user *models.User) {
	now := nowUTC()
	file.EditedAt = &now
	file.EditedByID = &user.ID
}

func (h *FilesHandler) Delete(c *fiber.Ctx) error {
	user := middleware.GetCurrentUser(c)

	id, err := parseUUID(c, "id")
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid file id")
	}

	var file models.File
	if err := h.DB.First(&file, "id = ?", id).Error; err != nil {
		return utils.Error(c, fiber.StatusNotFound, "file not found")
	}

	if err := h.DB.Delete(&file).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed to delete file")
	}

	if err := h.Storage.Delete(c.Context(), file.StoragePath); err != nil {
		logger.Warn("object_delete_failed", map[string]interface{}{
			"object_name": file.StoragePath,
		})
	}

	h.Activity.Record(user, c.IP(), fmt.Sprintf("Deleted file %q", file.Title))
	return utils.Success(c, fiber.StatusOK, fiber.Map{"message": "file deleted"})
}

func (h *FilesHandler) Download(c *fiber.Ctx) error {
	user := middleware.GetCurrentUser(c)

	id, err := parseUUID(c, "id")
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid file id")
	}

	var file models.File
	if err := h.DB.First(&file, "id = ?", id).Error; err != nil {
		return utils.Error(c, fiber.StatusNotFound, "file not found")
	}

	if !h.canAccess(user, &file) {
		return utils.Error(c, fiber.StatusNotFound, "file not found")
	}

	obj, err := h.Storage.Download(c.Context(), file.StoragePath)
	if err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed to fetch file")
	}

	data, err := io.ReadAll(obj)
	obj.Close()
	if err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed to read file")
	}

	h.Activity.Record(user, c.IP(), fmt.Sprintf("Downloaded file %q", file.Title))

	c.Set("Content-Type", file.MimeType)
	c.Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", file.Title))
	return c.Status(fiber.StatusOK).Send(data)
}
