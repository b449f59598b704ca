package handlers

import (
	"errors"
	"fmt"

	"github.com/filedesk/backend/internal/middleware"
	"github.com/filedesk/backend/internal/models"
	"github.com/filedesk/backend/internal/services"
	"github.com/filedesk/backend/pkg/utils"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type CategoriesHandler struct {
	DB          *gorm.DB
	Assignments *services.AssignmentService
	Activity    *services.ActivityService
}

func NewCategoriesHandler(db *gorm.DB, assignments *services.AssignmentService, activity *services.ActivityService) *CategoriesHandler {
	return &CategoriesHandler{DB: db, Assignments: assignments, Activity: activity}
}

func (h *CategoriesHandler) List(c *fiber.Ctx) error {
	var categories []models.Category
	if err := h.DB.Order("name ASC").Find(&categories).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed to list categories")
	}
	return utils.Success(c, fiber.StatusOK, categories)
}

func (h *CategoriesHandler) Create(c *fiber.Ctx) error {
	user := middleware.GetCurrentUser(c)

	var req struct {
		Name        string `json:"name"`
		Description string `json:"description"`
	}
	if err := c.BodyParser(&req); err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid request body")
	}
	if req.Name == "" {
		return utils.Error(c, fiber.StatusBadRequest, "name is required")
	}

	category := models.Category{Name: req.Name, Description: req.Description}
	if err := h.DB.Create(&category).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed to create category")
	}

	h.Activity.Record(user, c.IP(), fmt.Sprintf("Created category %q", category.Name))
	return utils.Success(c, fiber.StatusCreated, category)
}

// ListAssignments returns file-category mappings with their audit stamps,
// newest first.
func (h *CategoriesHandler) ListAssignments(c *fiber.Ctx) error {
	params := utils.ParsePagination(c)

	var total int64
	if err := h.DB.Model(&models.FileCategoryMapping{}).Count(&total).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed to count assignments")
	}

	var mappings []models.FileCategoryMapping
	err := params.Apply(
		h.DB.Preload("File").Preload("Category").Preload("AssignedBy").Preload("ReassignedBy").
			Order("created_at DESC"),
	).Find(&mappings).Error
	if err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed to list assignments")
	}

	return utils.Paginated(c, mappings, params.Page, params.Limit, total)
}

type assignmentRequest struct {
	FileID     uuid.UUID   `json:"fileID"`
	CategoryID uuid.UUID   `json:"categoryID"`
	GranteeIDs []uuid.UUID `json:"granteeIDs"`
}

func (h *CategoriesHandler) CreateAssignment(c *fiber.Ctx) error {
	user := middleware.GetCurrentUser(c)

	var req assignmentRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid request body")
	}
	if req.FileID == uuid.Nil || req.CategoryID == uuid.Nil {
		return utils.Error(c, fiber.StatusBadRequest, "fileID and categoryID are required")
	}

	mapping, err := h.Assignments.Assign(req.FileID, req.CategoryID, user, req.GranteeIDs)
	if err != nil {
		return assignmentError(c, err)
	}

	h.Activity.Record(user, c.IP(), fmt.Sprintf("Assigned file to category (%d users granted access)", len(req.GranteeIDs)))
	return utils.Success(c, fiber.StatusCreated, mapping)
}

func (h *CategoriesHandler) Reassign(c *fiber.Ctx) error {
	user := middleware.GetCurrentUser(c)

	id, err := parseUUID(c, "id")
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid assignment id")
	}

	// GranteeIDs is a pointer so an omitted field (keep current access) is
	// distinguishable from an explicit empty list (revoke everyone).
	var req struct {
		CategoryID uuid.UUID    `json:"categoryID"`
		GranteeIDs *[]uuid.UUID `json:"granteeIDs"`
	}
	if err := c.BodyParser(&req); err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid request body")
	}
	if req.CategoryID == uuid.Nil {
		return utils.Error(c, fiber.StatusBadRequest, "categoryID is required")
	}

	mapping, err := h.Assignments.Reassign(id, req.CategoryID, user, req.GranteeIDs)
	if err != nil {
		return assignmentError(c, err)
	}

	action := "Reassigned file (access unchanged)"
	if req.GranteeIDs != nil {
		action = fmt.Sprintf("Reassigned file (%d users granted access)", len(*req.GranteeIDs))
	}
	h.Activity.Record(user, c.IP(), action)
	return utils.Success(c, fiber.StatusOK, mapping)
}

func (h *CategoriesHandler) DeleteAssignment(c *fiber.Ctx) error {
	user := middleware.GetCurrentUser(c)

	id, err := parseUUID(c, "id")
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid assignment id")
	}

	if err := h.Assignments.Remove(id); err != nil {
		return assignmentError(c, err)
	}

	h.Activity.Record(user, c.IP(), "Removed a file-category assignment")
	return utils.Success(c, fiber.StatusOK, fiber.Map{"message": "assignment removed"})
}

// ListEmployees backs the grantee picker on the assignment form.
func (h *CategoriesHandler) ListEmployees(c *fiber.Ctx) error {
	var employees []models.User
	err := h.DB.Where("role = ?", models.UserRoleEmployee).
		Order("first_name ASC").
		Find(&employees).Error
	if err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed to list employees")
	}
	return utils.Success(c, fiber.StatusOK, employees)
}

func assignmentError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, services.ErrFileNotFound):
		return utils.Error(c, fiber.StatusNotFound, "file not found")
	case errors.Is(err, services.ErrCategoryNotFound):
		return utils.Error(c, fiber.StatusNotFound, "category not found")
	case errors.Is(err, services.ErrMappingNotFound):
		return utils.Error(c, fiber.StatusNotFound, "assignment not found")
	default:
		return utils.Error(c, fiber.StatusInternalServerError, "assignment operation failed")
	}
}
