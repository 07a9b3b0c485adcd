package workflow

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"bitbucket.org/mmdatafocus/bpo_backend/models"
	"bitbucket.org/mmdatafocus/bpo_backend/utils"
	"github.com/google/uuid"
)

// ScheduleStore is what scheduling and cancellation need from persistence.
// models.ScheduleStore is the production implementation; tests substitute
// fakes.
type ScheduleStore interface {
	InsertScheduledMessage(ctx context.Context, msg *models.ScheduledMessage) error
	FetchScheduledMessage(ctx context.Context, companyId string, id string) (*models.ScheduledMessage, error)
	FetchScheduledMessageByKey(ctx context.Context, companyId string, key string) (*models.ScheduledMessage, error)
	MarkCanceled(ctx context.Context, companyId string, id string) error
	ListScheduledMessages(ctx context.Context, companyId string) ([]*models.ScheduledMessage, error)
}

// MessageScheduler owns the write side of the message pipeline: accepting
// future sends and canceling them. Firing due rows is MessageDispatcher's job.
type MessageScheduler struct {
	Store ScheduleStore
}

func NewMessageScheduler(store ScheduleStore) *MessageScheduler {
	return &MessageScheduler{Store: store}
}

func (m *MessageScheduler) Schedule(ctx context.Context, input *models.NewScheduledMessage) (*models.ScheduledMessage, error) {
	if err := input.Validate(time.Now()); err != nil {
		return nil, err
	}

	// Idempotent create: a repeated key returns the original row untouched.
	if input.IdempotencyKey != nil && *input.IdempotencyKey != "" {
		existing, err := m.Store.FetchScheduledMessageByKey(ctx, input.CompanyId, *input.IdempotencyKey)
		if err == nil {
			return existing, nil
		}
		if !errors.Is(err, utils.ErrorRecordNotFound) {
			return nil, err
		}
	}

	phone, err := utils.NormalizePhoneNumber(input.Phone, utils.CountryCode)
	if err != nil {
		return nil, utils.NewInvalidArgument("phone", err.Error())
	}

	var variablesJSON []byte
	if len(input.Variables) > 0 {
		variablesJSON, err = json.Marshal(input.Variables)
		if err != nil {
			return nil, err
		}
	}

	correlationId, ok := utils.GetCorrelationIdFromContext(ctx)
	if !ok || correlationId == "" {
		correlationId = uuid.NewString()
	}

	scheduledAt := input.ScheduledAt.UTC()
	msg := &models.ScheduledMessage{
		ID:             uuid.NewString(),
		CompanyId:      input.CompanyId,
		Phone:          phone,
		Body:           models.SubstituteVariables(input.Body, input.Variables),
		ScheduledAt:    scheduledAt,
		Recurrence:     input.Recurrence,
		TemplateId:     input.TemplateId,
		Variables:      variablesJSON,
		IdempotencyKey: input.IdempotencyKey,
		Status:         models.ScheduledMessageStatusScheduled,
		AttemptCount:   0,
		NextAttemptAt:  &scheduledAt,
		CorrelationId:  correlationId,
	}
	if err := m.Store.InsertScheduledMessage(ctx, msg); err != nil {
		return nil, err
	}
	return msg, nil
}

// Cancel is terminal and idempotent: it re-applies the canceled marker
// regardless of current status, including sent and already canceled rows.
// A message mid-send in a concurrent dispatch run is not interrupted;
// cancellation only stops future attempts.
func (m *MessageScheduler) Cancel(ctx context.Context, id string) (*models.ScheduledMessage, error) {
	companyId, ok := utils.GetCompanyIdFromContext(ctx)
	if !ok || companyId == "" {
		return nil, utils.NewInvalidArgument("company_id", "required")
	}

	msg, err := m.Store.FetchScheduledMessage(ctx, companyId, id)
	if err != nil {
		return nil, err
	}

	if err := m.Store.MarkCanceled(ctx, companyId, id); err != nil {
		return nil, err
	}
	msg.Status = models.ScheduledMessageStatusCanceled
	msg.NextAttemptAt = nil
	return msg, nil
}

func (m *MessageScheduler) Get(ctx context.Context, id string) (*models.ScheduledMessage, error) {
	companyId, ok := utils.GetCompanyIdFromContext(ctx)
	if !ok || companyId == "" {
		return nil, utils.NewInvalidArgument("company_id", "required")
	}
	return m.Store.FetchScheduledMessage(ctx, companyId, id)
}

func (m *MessageScheduler) List(ctx context.Context) ([]*models.ScheduledMessage, error) {
	companyId, ok := utils.GetCompanyIdFromContext(ctx)
	if !ok || companyId == "" {
		return nil, utils.NewInvalidArgument("company_id", "required")
	}
	return m.Store.ListScheduledMessages(ctx, companyId)
}
