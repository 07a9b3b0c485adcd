package models

import (
	"context"
	"time"

	"gorm.io/gorm"
)

// DispatchStore is the gorm-backed persistence used by the message
// dispatcher: it reads the due view and writes outcomes back to the
// scheduled_messages and conversation history tables.
type DispatchStore struct {
	DB *gorm.DB
}

func NewDispatchStore(db *gorm.DB) *DispatchStore {
	return &DispatchStore{DB: db}
}

// FetchDueMessages returns up to limit rows in view order. No extra filtering
// or sorting is imposed here; due-ness and ordering belong to the view.
func (s *DispatchStore) FetchDueMessages(ctx context.Context, limit int) ([]*PendingMessage, error) {
	var rows []*PendingMessage
	err := s.DB.WithContext(ctx).
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (s *DispatchStore) MarkMessageSent(ctx context.Context, id string, sentAt time.Time) error {
	return s.DB.WithContext(ctx).Model(&ScheduledMessage{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":          ScheduledMessageStatusSent,
			"sent_at":         &sentAt,
			"attempt_count":   gorm.Expr("attempt_count + 1"),
			"next_attempt_at": nil,
			"last_error":      nil,
		}).Error
}

func (s *DispatchStore) MarkMessageFailed(ctx context.Context, id string, reason string) error {
	return s.DB.WithContext(ctx).Model(&ScheduledMessage{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":        ScheduledMessageStatusFailed,
			"attempt_count": gorm.Expr("attempt_count + 1"),
			"last_error":    &reason,
		}).Error
}

func (s *DispatchStore) RecordOutboundMessage(ctx context.Context, msg *ConversationMessage) error {
	return s.DB.WithContext(ctx).Create(msg).Error
}
