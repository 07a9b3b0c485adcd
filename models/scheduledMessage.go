package models

import (
	"strings"
	"time"

	"bitbucket.org/mmdatafocus/bpo_backend/utils"
)

type ScheduledMessageStatus string

const (
	ScheduledMessageStatusScheduled ScheduledMessageStatus = "scheduled"
	ScheduledMessageStatusSent      ScheduledMessageStatus = "sent"
	ScheduledMessageStatusFailed    ScheduledMessageStatus = "failed"
	ScheduledMessageStatusCanceled  ScheduledMessageStatus = "canceled"
)

type MessageRecurrence string

const (
	RecurrenceNone    MessageRecurrence = "none"
	RecurrenceDaily   MessageRecurrence = "daily"
	RecurrenceWeekly  MessageRecurrence = "weekly"
	RecurrenceMonthly MessageRecurrence = "monthly"
)

func (r MessageRecurrence) Valid() bool {
	switch r {
	case RecurrenceNone, RecurrenceDaily, RecurrenceWeekly, RecurrenceMonthly:
		return true
	}
	return false
}

// ScheduledMessage is one future WhatsApp send. The body is stored fully
// substituted at creation time. Recurring messages are re-enqueued by the
// scheduler after each successful firing; this service never re-enqueues.
type ScheduledMessage struct {
	ID             string                 `gorm:"type:char(36);primaryKey" json:"id"`
	CompanyId      string                 `gorm:"index;not null" json:"company_id" binding:"required"`
	Phone          string                 `gorm:"size:32;not null" json:"phone" binding:"required"`
	Body           string                 `gorm:"type:text;not null" json:"body" binding:"required"`
	ScheduledAt    time.Time              `gorm:"index;not null" json:"scheduled_at" binding:"required"`
	Recurrence     MessageRecurrence      `gorm:"type:enum('none','daily','weekly','monthly');not null;default:'none'" json:"recurrence"`
	TemplateId     *string                `gorm:"size:100;default:null" json:"template_id"`
	Variables      []byte                 `gorm:"type:json" json:"variables"`
	IdempotencyKey *string                `gorm:"size:255;uniqueIndex;default:null" json:"idempotency_key"`
	Status         ScheduledMessageStatus `gorm:"type:enum('scheduled','sent','failed','canceled');not null;default:'scheduled'" json:"status"`
	AttemptCount   int                    `gorm:"default:0" json:"attempt_count"`
	NextAttemptAt  *time.Time             `gorm:"index" json:"next_attempt_at"`
	SentAt         *time.Time             `json:"sent_at"`
	LastError      *string                `gorm:"type:text;default:null" json:"last_error"`
	CorrelationId  string                 `gorm:"size:64" json:"correlation_id"`
	CreatedAt      time.Time              `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time              `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewScheduledMessage struct {
	CompanyId      string            `json:"company_id" validate:"required"`
	Phone          string            `json:"phone" validate:"required"`
	Body           string            `json:"body" validate:"required"`
	ScheduledAt    time.Time         `json:"scheduled_at" validate:"required"`
	Recurrence     MessageRecurrence `json:"recurrence"`
	TemplateId     *string           `json:"template_id"`
	Variables      map[string]string `json:"variables"`
	IdempotencyKey *string           `json:"idempotency_key"`
}

// Validate rejects before anything is persisted (fail fast, no partial writes).
// A zero Recurrence means "none"; any other unknown value is an error.
func (input *NewScheduledMessage) Validate(now time.Time) error {
	if err := validate.Struct(input); err != nil {
		return utils.NewInvalidArgument("scheduled_message", err.Error())
	}
	if input.Recurrence == "" {
		input.Recurrence = RecurrenceNone
	}
	if !input.Recurrence.Valid() {
		return utils.NewInvalidArgument("recurrence", "must be one of none, daily, weekly, monthly")
	}
	if !input.ScheduledAt.After(now) {
		return utils.NewInvalidArgument("scheduled_at", "must be in the future")
	}
	if _, err := utils.NormalizePhoneNumber(input.Phone, utils.CountryCode); err != nil {
		return utils.NewInvalidArgument("phone", err.Error())
	}
	return nil
}

// SubstituteVariables replaces every {{key}} occurrence with its value.
// Keys absent from variables stay as literal {{key}} text.
func SubstituteVariables(body string, variables map[string]string) string {
	if len(variables) == 0 {
		return body
	}
	for k, v := range variables {
		body = strings.ReplaceAll(body, "{{"+k+"}}", v)
	}
	return body
}

