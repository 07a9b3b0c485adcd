package models

import (
	"context"
	"time"

	"bitbucket.org/mmdatafocus/bpo_backend/config"
	"bitbucket.org/mmdatafocus/bpo_backend/utils"
	"gorm.io/gorm"
)

// ScheduleStore is the gorm-backed persistence behind scheduling and
// cancellation, with a best-effort Redis read cache on single-row fetches.
// A Redis outage degrades to plain database reads.
type ScheduleStore struct {
	DB *gorm.DB
}

func NewScheduleStore(db *gorm.DB) *ScheduleStore {
	return &ScheduleStore{DB: db}
}

func scheduledMessageCacheKey(companyId, id string) string {
	return "scheduled_message:" + companyId + ":" + id
}

func (s *ScheduleStore) InsertScheduledMessage(ctx context.Context, msg *ScheduledMessage) error {
	return s.DB.WithContext(ctx).Create(msg).Error
}

func (s *ScheduleStore) FetchScheduledMessage(ctx context.Context, companyId string, id string) (*ScheduledMessage, error) {
	cacheKey := scheduledMessageCacheKey(companyId, id)
	var cached ScheduledMessage
	if found, err := config.GetRedisObject(cacheKey, &cached); err == nil && found {
		return &cached, nil
	}

	msg, err := utils.FetchModel[ScheduledMessage](s.DB, ctx, companyId, id)
	if err != nil {
		return nil, err
	}
	_ = config.SetRedisObject(cacheKey, msg, 5*time.Minute)
	return msg, nil
}

func (s *ScheduleStore) FetchScheduledMessageByKey(ctx context.Context, companyId string, key string) (*ScheduledMessage, error) {
	count, err := utils.ResourceCountWhere[ScheduledMessage](s.DB, ctx, companyId, "idempotency_key = ?", key)
	if err != nil {
		return nil, err
	}
	if count == 0 {
		return nil, utils.ErrorRecordNotFound
	}

	var existing ScheduledMessage
	err = s.DB.WithContext(ctx).
		Where("company_id = ? AND idempotency_key = ?", companyId, key).
		First(&existing).Error
	if err != nil {
		return nil, err
	}
	return &existing, nil
}

func (s *ScheduleStore) MarkCanceled(ctx context.Context, companyId string, id string) error {
	err := s.DB.WithContext(ctx).Model(&ScheduledMessage{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":          ScheduledMessageStatusCanceled,
			"next_attempt_at": nil,
		}).Error
	if err != nil {
		return err
	}
	return config.RemoveRedisKey(scheduledMessageCacheKey(companyId, id))
}

func (s *ScheduleStore) ListScheduledMessages(ctx context.Context, companyId string) ([]*ScheduledMessage, error) {
	return utils.FetchAllModels[ScheduledMessage](s.DB, ctx, companyId)
}
