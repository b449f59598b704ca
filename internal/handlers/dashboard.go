package handlers

import (
	"time"

	"github.com/filedesk/backend/internal/middleware"
	"github.com/filedesk/backend/internal/models"
	"github.com/filedesk/backend/pkg/utils"
	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

type DashboardHandler struct {
	DB *gorm.DB
}

func NewDashboardHandler(db *gorm.DB) *DashboardHandler {
	return &DashboardHandler{DB: db}
}

// Summary returns the landing-page totals and the five newest files. File
// counts respect the caller's visibility scope; user and category totals are
// global.
func (h *DashboardHandler) Summary(c *fiber.Ctx) error {
	user := middleware.GetCurrentUser(c)

	fh := NewFilesHandler(h.DB, nil, nil)

	var fileCount, categoryCount, userCount int64
	if err := fh.visibleFiles(user).Count(&fileCount).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed to load dashboard")
	}
	h.DB.Model(&models.Category{}).Count(&categoryCount)
	h.DB.Model(&models.User{}).Count(&userCount)

	var recent []models.File
	err := fh.visibleFiles(user).Preload("Uploader").Order("created_at DESC").Limit(5).Find(&recent).Error
	if err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed to load dashboard")
	}

	return utils.Success(c, fiber.StatusOK, fiber.Map{
		"totalFiles":      fileCount,
		"totalCategories": categoryCount,
		"totalUsers":      userCount,
		"recentFiles":     recent,
	})
}

type uploadsPerDay struct {
	Day   string `json:"day"`
	Count int64  `json:"count"`
}

type categoryCount struct {
	Name  string `json:"name"`
	Count int64  `json:"count"`
}

// ChartData feeds the dashboard charts: uploads per day over the trailing
// seven days (including empty days) and file counts per category.
func (h *DashboardHandler) ChartData(c *fiber.Ctx) error {
	user := middleware.GetCurrentUser(c)

	since := time.Now().UTC().AddDate(0, 0, -6).Truncate(24 * time.Hour)

	var files []models.File
	err := NewFilesHandler(h.DB, nil, nil).visibleFiles(user).
		Where("created_at >= ?", since).
		Find(&files).Error
	if err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed to load chart data")
	}

	byDay := map[string]int64{}
	for _, f := range files {
		byDay[f.CreatedAt.UTC().Format("2006-01-02")]++
	}

	uploads := make([]uploadsPerDay, 0, 7)
	for i := 0; i < 7; i++ {
		day := since.AddDate(0, 0, i).Format("2006-01-02")
		uploads = append(uploads, uploadsPerDay{Day: day, Count: byDay[day]})
	}

	var perCategory []categoryCount
	err = h.DB.Model(&models.FileCategoryMapping{}).
		Select("categories.name AS name, COUNT(file_category_mappings.id) AS count").
		Joins("JOIN categories ON categories.id = file_category_mappings.category_id").
		Group("categories.name").
		Order("categories.name ASC").
		Scan(&perCategory).Error
	if err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed to load chart data")
	}

	return utils.Success(c, fiber.StatusOK, fiber.Map{
		"uploadsPerDay":   uploads,
		"filesByCategory": perCategory,
	})
}
