package services

import (
	"github.com/filedesk/backend/internal/models"
	"github.com/filedesk/backend/pkg/logger"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type ActivityService struct {
	DB *gorm.DB
}

func NewActivityService(db *gorm.DB) *ActivityService {
	return &ActivityService{DB: db}
}

// Record appends one immutable activity row. The actor's role is snapshotted
// as a string so the entry stays meaningful after the account is deleted; a
// nil actor is recorded as Anonymous with no user reference. Only successful
// actions are recorded, synchronously with the request that performed them.
func (s *ActivityService) Record(actor *models.User, ip, action string) {
	row := models.ActivityLog{
		Role:      models.AnonymousRole,
		Action:    action,
		IPAddress: ip,
	}
	if actor != nil {
		row.UserID = &actor.ID
		row.Role = string(actor.Role)
	}

	if err := s.DB.Create(&row).Error; err != nil {
		logger.Error("activity_log_insert_failed", err, map[string]interface{}{
			"action": action,
		})
	}
}

// DetachUser nullifies the actor reference on all rows for a deleted
// principal while keeping the rows and their recorded role strings intact.
// It runs on the caller's transaction so the detach commits or rolls back
// with the deletion itself.
func (s *ActivityService) DetachUser(tx *gorm.DB, userID uuid.UUID) error {
	return tx.Model(&models.ActivityLog{}).
		Where("user_id = ?", userID).
		Update("user_id", nil).Error
}
