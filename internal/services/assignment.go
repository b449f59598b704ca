package services

import (
	"errors"
	"time"

	"github.com/filedesk/backend/internal/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	ErrFileNotFound     = errors.New("file not found")
	ErrCategoryNotFound = errors.New("category not found")
	ErrMappingNotFound  = errors.New("assignment not found")
)

// AssignmentService owns the file-to-category mapping rows and the per-user
// view grants derived from them. Grants are upserted on (file_id, user_id),
// so assigning the same file to the same person twice never duplicates a row.
type AssignmentService struct {
	DB *gorm.DB
}

func NewAssignmentService(db *gorm.DB) *AssignmentService {
	return &AssignmentService{DB: db}
}

// Assign places a file into a category and grants view access to each listed
// employee. The mapping records who made the assignment and when.
func (s *AssignmentService) Assign(fileID, categoryID uuid.UUID, actor *models.User, granteeIDs []uuid.UUID) (*models.FileCategoryMapping, error) {
	var file models.File
	if err := s.DB.First(&file, "id = ?", fileID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrFileNotFound
		}
		return nil, err
	}

	var category models.Category
	if err := s.DB.First(&category, "id = ?", categoryID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrCategoryNotFound
		}
		return nil, err
	}

	mapping := models.FileCategoryMapping{
		FileID:     fileID,
		CategoryID: categoryID,
	}
	if actor != nil {
		mapping.AssignedByID = &actor.ID
	}

	err := s.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&mapping).Error; err != nil {
			return err
		}
		return s.grantView(tx, fileID, granteeIDs)
	})
	if err != nil {
		return nil, err
	}

	return &mapping, nil
}

// Reassign moves an existing mapping to a new category. A nil grantee set
// means "leave access alone": category-only reassignments keep every existing
// grant. When a set is supplied the file's grants are replaced wholesale:
// every prior grant is removed and the submitted grantees get fresh view-only
// access, so an empty non-nil set revokes all access. The original assignment
// stamp is kept; the reassignment stamp records this edit.
func (s *AssignmentService) Reassign(mappingID, categoryID uuid.UUID, actor *models.User, granteeIDs *[]uuid.UUID) (*models.FileCategoryMapping, error) {
	var mapping models.FileCategoryMapping
	if err := s.DB.First(&mapping, "id = ?", mappingID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrMappingNotFound
		}
		return nil, err
	}

	var category models.Category
	if err := s.DB.First(&category, "id = ?", categoryID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrCategoryNotFound
		}
		return nil, err
	}

	now := time.Now()
	mapping.CategoryID = categoryID
	mapping.ReassignedAt = &now
	mapping.ReassignedByID = nil
	if actor != nil {
		mapping.ReassignedByID = &actor.ID
	}

	err := s.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Save(&mapping).Error; err != nil {
			return err
		}
		if granteeIDs == nil {
			return nil
		}
		if err := tx.Where("file_id = ?", mapping.FileID).Delete(&models.FileAccess{}).Error; err != nil {
			return err
		}
		return s.grantView(tx, mapping.FileID, *granteeIDs)
	})
	if err != nil {
		return nil, err
	}

	return &mapping, nil
}

// Remove deletes a mapping. Grants issued while the mapping existed are left
// in place; unlinking a file from a category does not revoke access.
func (s *AssignmentService) Remove(mappingID uuid.UUID) error {
	res := s.DB.Delete(&models.FileCategoryMapping{}, "id = ?", mappingID)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrMappingNotFound
	}
	return nil
}

func (s *AssignmentService) grantView(tx *gorm.DB, fileID uuid.UUID, granteeIDs []uuid.UUID) error {
	for _, userID := range granteeIDs {
		grant := models.FileAccess{
			FileID:  fileID,
			UserID:  userID,
			CanView: true,
			CanEdit: false,
		}
		err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "file_id"}, {Name: "user_id"}},
			DoUpdates: clause.Assignments(map[string]interface{}{"can_view": true, "can_edit": false}),
		}).Create(&grant).Error
		if err != nil {
			return err
		}
	}
	return nil
}
