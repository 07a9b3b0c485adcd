package workflow

import (
	"context"
	"time"

	"bitbucket.org/mmdatafocus/bpo_backend/models"
	"bitbucket.org/mmdatafocus/bpo_backend/utils"
)

// AlertStore is what the lifecycle operations need from persistence.
// models.AlertStore is the production implementation; tests substitute fakes.
type AlertStore interface {
	FetchAlert(ctx context.Context, companyId string, id int) (*models.Alert, error)
	InsertAlert(ctx context.Context, alert *models.Alert) error
	SaveAlertTransition(ctx context.Context, alert *models.Alert) error
	ListAlerts(ctx context.Context, companyId string, status *models.AlertStatus) ([]*models.Alert, error)
}

// AlertLifecycle owns the alert status state machine: alerts are raised
// pending and every later mutation goes through Transition.
type AlertLifecycle struct {
	Store AlertStore
}

func NewAlertLifecycle(store AlertStore) *AlertLifecycle {
	return &AlertLifecycle{Store: store}
}

func (l *AlertLifecycle) Create(ctx context.Context, input *models.NewAlert) (*models.Alert, error) {
	companyId, ok := utils.GetCompanyIdFromContext(ctx)
	if !ok || companyId == "" {
		return nil, utils.NewInvalidArgument("company_id", "required")
	}
	if err := input.Validate(); err != nil {
		return nil, err
	}
	priority := input.Priority
	if priority == "" {
		priority = models.AlertPriorityMedium
	}

	alert := &models.Alert{
		CompanyId: companyId,
		AlertType: input.AlertType,
		Priority:  priority,
		Title:     input.Title,
		Message:   input.Message,
		Status:    models.AlertStatusPending,
	}
	if err := l.Store.InsertAlert(ctx, alert); err != nil {
		return nil, err
	}
	return alert, nil
}

// Transition applies one validated status transition and persists it as a
// single update. A rejected transition touches nothing. No retry: a store
// failure is surfaced to the caller. Concurrent transitions on the same alert
// are last-writer-wins.
func (l *AlertLifecycle) Transition(ctx context.Context, id int, input *models.AlertStatusChange) (*models.Alert, error) {
	companyId, ok := utils.GetCompanyIdFromContext(ctx)
	if !ok || companyId == "" {
		return nil, utils.NewInvalidArgument("company_id", "required")
	}

	alert, err := l.Store.FetchAlert(ctx, companyId, id)
	if err != nil {
		return nil, err
	}

	if err := models.ValidateAlertTransition(alert.Status, input.Status); err != nil {
		return nil, err
	}

	// The acting user from the request context is the resolver unless the
	// caller names one explicitly.
	if input.ResolvedBy == nil && input.Status != models.AlertStatusPending {
		if userId, ok := utils.GetUserIdFromContext(ctx); ok {
			input.ResolvedBy = &userId
		}
	}

	alert.Status = input.Status
	alert.ResolutionType = input.ResolutionType
	alert.ResolutionNotes = input.ResolutionNotes
	alert.ResolvedBy = input.ResolvedBy
	// resolved_at tracks the moment status leaves pending and is cleared when
	// it returns to pending.
	if input.Status != models.AlertStatusPending {
		now := time.Now().UTC()
		alert.ResolvedAt = &now
	} else {
		alert.ResolvedAt = nil
	}

	if err := l.Store.SaveAlertTransition(ctx, alert); err != nil {
		return nil, err
	}
	return alert, nil
}

func (l *AlertLifecycle) Get(ctx context.Context, id int) (*models.Alert, error) {
	companyId, ok := utils.GetCompanyIdFromContext(ctx)
	if !ok || companyId == "" {
		return nil, utils.NewInvalidArgument("company_id", "required")
	}
	return l.Store.FetchAlert(ctx, companyId, id)
}

func (l *AlertLifecycle) List(ctx context.Context, status *models.AlertStatus) ([]*models.Alert, error) {
	companyId, ok := utils.GetCompanyIdFromContext(ctx)
	if !ok || companyId == "" {
		return nil, utils.NewInvalidArgument("company_id", "required")
	}
	return l.Store.ListAlerts(ctx, companyId, status)
}
