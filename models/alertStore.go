package models

import (
	"context"

	"bitbucket.org/mmdatafocus/bpo_backend/utils"
	"gorm.io/gorm"
)

// AlertStore is the gorm-backed persistence behind the alert lifecycle
// operations in the workflow package.
type AlertStore struct {
	DB *gorm.DB
}

func NewAlertStore(db *gorm.DB) *AlertStore {
	return &AlertStore{DB: db}
}

func (s *AlertStore) FetchAlert(ctx context.Context, companyId string, id int) (*Alert, error) {
	return utils.FetchModel[Alert](s.DB, ctx, companyId, id)
}

func (s *AlertStore) InsertAlert(ctx context.Context, alert *Alert) error {
	return s.DB.WithContext(ctx).Create(alert).Error
}

// SaveAlertTransition persists a validated transition as a single update.
// Fields are written as-is, so a nil ResolvedAt clears the column.
func (s *AlertStore) SaveAlertTransition(ctx context.Context, alert *Alert) error {
	return s.DB.WithContext(ctx).Model(&Alert{}).
		Where("id = ?", alert.ID).
		Updates(map[string]interface{}{
			"status":           alert.Status,
			"resolution_type":  alert.ResolutionType,
			"resolution_notes": alert.ResolutionNotes,
			"resolved_by":      alert.ResolvedBy,
			"resolved_at":      alert.ResolvedAt,
		}).Error
}

func (s *AlertStore) ListAlerts(ctx context.Context, companyId string, status *AlertStatus) ([]*Alert, error) {
	dbCtx := s.DB.WithContext(ctx).Where("company_id = ?", companyId)
	if status != nil {
		dbCtx = dbCtx.Where("status = ?", *status)
	}
	var alerts []*Alert
	if err := dbCtx.Order("created_at DESC").Find(&alerts).Error; err != nil {
		return nil, err
	}
	return alerts, nil
}
