package workflow

import (
	"context"
	"errors"
	"testing"

	"bitbucket.org/mmdatafocus/bpo_backend/models"
	"bitbucket.org/mmdatafocus/bpo_backend/utils"
)

type fakeAlertStore struct {
	alerts map[int]*models.Alert
	nextId int
	saves  int
}

func newFakeAlertStore(alerts ...*models.Alert) *fakeAlertStore {
	s := &fakeAlertStore{alerts: map[int]*models.Alert{}, nextId: 1}
	for _, a := range alerts {
		if a.ID >= s.nextId {
			s.nextId = a.ID + 1
		}
		copied := *a
		s.alerts[a.ID] = &copied
	}
	return s
}

func (s *fakeAlertStore) FetchAlert(ctx context.Context, companyId string, id int) (*models.Alert, error) {
	a, ok := s.alerts[id]
	if !ok || a.CompanyId != companyId {
		return nil, utils.ErrorRecordNotFound
	}
	copied := *a
	return &copied, nil
}

func (s *fakeAlertStore) InsertAlert(ctx context.Context, alert *models.Alert) error {
	alert.ID = s.nextId
	s.nextId++
	copied := *alert
	s.alerts[alert.ID] = &copied
	return nil
}

func (s *fakeAlertStore) SaveAlertTransition(ctx context.Context, alert *models.Alert) error {
	s.saves++
	copied := *alert
	s.alerts[alert.ID] = &copied
	return nil
}

func (s *fakeAlertStore) ListAlerts(ctx context.Context, companyId string, status *models.AlertStatus) ([]*models.Alert, error) {
	var out []*models.Alert
	for _, a := range s.alerts {
		if a.CompanyId != companyId {
			continue
		}
		if status != nil && a.Status != *status {
			continue
		}
		copied := *a
		out = append(out, &copied)
	}
	return out, nil
}

func companyContext(companyId string) context.Context {
	return utils.SetCompanyIdInContext(context.Background(), companyId)
}

func storedAlert(id int, status models.AlertStatus) *models.Alert {
	return &models.Alert{
		ID:        id,
		CompanyId: "company-1",
		AlertType: models.AlertTypeFeeDivergence,
		Priority:  models.AlertPriorityHigh,
		Title:     "Divergência de tarifa",
		Status:    status,
	}
}

func TestAlertCreateStartsPending(t *testing.T) {
	store := newFakeAlertStore()
	l := NewAlertLifecycle(store)

	alert, err := l.Create(companyContext("company-1"), &models.NewAlert{
		AlertType: models.AlertTypeValueMismatch,
		Title:     "Valor divergente",
	})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if alert.Status != models.AlertStatusPending {
		t.Fatalf("status = %q, want pending", alert.Status)
	}
	if alert.Priority != models.AlertPriorityMedium {
		t.Fatalf("priority = %q, want medium default", alert.Priority)
	}
	if alert.ResolvedAt != nil {
		t.Fatal("new alert must have no resolved_at")
	}
}

func TestAlertCreateWithoutCompany(t *testing.T) {
	l := NewAlertLifecycle(newFakeAlertStore())

	_, err := l.Create(context.Background(), &models.NewAlert{
		AlertType: models.AlertTypeValueMismatch,
		Title:     "Valor divergente",
	})
	if !utils.IsInvalidArgument(err) {
		t.Fatalf("error = %v, want invalid argument", err)
	}
}

func TestAlertTransitionSetsResolvedAt(t *testing.T) {
	tests := []struct {
		name   string
		target models.AlertStatus
	}{
		{"pending to resolved", models.AlertStatusResolved},
		{"pending to ignored", models.AlertStatusIgnored},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newFakeAlertStore(storedAlert(1, models.AlertStatusPending))
			l := NewAlertLifecycle(store)

			alert, err := l.Transition(companyContext("company-1"), 1, &models.AlertStatusChange{Status: tt.target})
			if err != nil {
				t.Fatalf("Transition() error = %v", err)
			}
			if alert.Status != tt.target {
				t.Fatalf("status = %q, want %q", alert.Status, tt.target)
			}
			if alert.ResolvedAt == nil {
				t.Fatal("leaving pending must stamp resolved_at")
			}
			if stored := store.alerts[1]; stored.ResolvedAt == nil {
				t.Fatal("stored row must carry resolved_at")
			}
		})
	}
}

func TestAlertTransitionBackToPendingClearsResolvedAt(t *testing.T) {
	store := newFakeAlertStore(storedAlert(1, models.AlertStatusPending))
	l := NewAlertLifecycle(store)
	ctx := companyContext("company-1")

	if _, err := l.Transition(ctx, 1, &models.AlertStatusChange{Status: models.AlertStatusResolved}); err != nil {
		t.Fatalf("resolve error = %v", err)
	}
	alert, err := l.Transition(ctx, 1, &models.AlertStatusChange{Status: models.AlertStatusPending})
	if err != nil {
		t.Fatalf("reopen error = %v", err)
	}
	if alert.ResolvedAt != nil {
		t.Fatal("returning to pending must clear resolved_at")
	}
	if stored := store.alerts[1]; stored.ResolvedAt != nil {
		t.Fatal("stored row must have resolved_at cleared")
	}
	if stored := store.alerts[1]; stored.Status != models.AlertStatusPending {
		t.Fatalf("stored status = %q, want pending", stored.Status)
	}
}

func TestAlertRejectedTransitionLeavesRowUntouched(t *testing.T) {
	store := newFakeAlertStore(storedAlert(1, models.AlertStatusResolved))
	l := NewAlertLifecycle(store)

	_, err := l.Transition(companyContext("company-1"), 1, &models.AlertStatusChange{Status: models.AlertStatusResolved})
	if !utils.IsInvalidTransition(err) {
		t.Fatalf("error = %v, want invalid transition", err)
	}
	if store.saves != 0 {
		t.Fatalf("saves = %d, want 0 on rejected transition", store.saves)
	}
	if stored := store.alerts[1]; stored.Status != models.AlertStatusResolved {
		t.Fatalf("stored status = %q, want unchanged resolved", stored.Status)
	}
}

func TestAlertTransitionUnknownStatus(t *testing.T) {
	store := newFakeAlertStore(storedAlert(1, models.AlertStatusPending))
	l := NewAlertLifecycle(store)

	_, err := l.Transition(companyContext("company-1"), 1, &models.AlertStatusChange{Status: "archived"})
	if !utils.IsInvalidArgument(err) {
		t.Fatalf("error = %v, want invalid argument", err)
	}
	if store.saves != 0 {
		t.Fatal("unknown status must not reach the store")
	}
}

func TestAlertTransitionNotFound(t *testing.T) {
	l := NewAlertLifecycle(newFakeAlertStore())

	_, err := l.Transition(companyContext("company-1"), 99, &models.AlertStatusChange{Status: models.AlertStatusResolved})
	if !errors.Is(err, utils.ErrorRecordNotFound) {
		t.Fatalf("error = %v, want record not found", err)
	}
}

func TestAlertTransitionIsTenantScoped(t *testing.T) {
	store := newFakeAlertStore(storedAlert(1, models.AlertStatusPending))
	l := NewAlertLifecycle(store)

	_, err := l.Transition(companyContext("company-2"), 1, &models.AlertStatusChange{Status: models.AlertStatusResolved})
	if !errors.Is(err, utils.ErrorRecordNotFound) {
		t.Fatalf("error = %v, want record not found for another tenant", err)
	}
}

func TestAlertTransitionResolverDefaultsFromContext(t *testing.T) {
	store := newFakeAlertStore(storedAlert(1, models.AlertStatusPending))
	l := NewAlertLifecycle(store)
	ctx := utils.SetUserIdInContext(companyContext("company-1"), 42)

	alert, err := l.Transition(ctx, 1, &models.AlertStatusChange{Status: models.AlertStatusResolved})
	if err != nil {
		t.Fatalf("Transition() error = %v", err)
	}
	if alert.ResolvedBy == nil || *alert.ResolvedBy != 42 {
		t.Fatalf("resolved_by = %v, want acting user 42", alert.ResolvedBy)
	}
}

func TestAlertTransitionExplicitResolverWins(t *testing.T) {
	store := newFakeAlertStore(storedAlert(1, models.AlertStatusPending))
	l := NewAlertLifecycle(store)
	ctx := utils.SetUserIdInContext(companyContext("company-1"), 42)

	resolver := 7
	alert, err := l.Transition(ctx, 1, &models.AlertStatusChange{
		Status:     models.AlertStatusResolved,
		ResolvedBy: &resolver,
	})
	if err != nil {
		t.Fatalf("Transition() error = %v", err)
	}
	if alert.ResolvedBy == nil || *alert.ResolvedBy != 7 {
		t.Fatalf("resolved_by = %v, want explicit 7", alert.ResolvedBy)
	}
}

func TestAlertListFiltersByStatus(t *testing.T) {
	store := newFakeAlertStore(
		storedAlert(1, models.AlertStatusPending),
		storedAlert(2, models.AlertStatusResolved),
		storedAlert(3, models.AlertStatusPending),
	)
	l := NewAlertLifecycle(store)

	status := models.AlertStatusPending
	alerts, err := l.List(companyContext("company-1"), &status)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(alerts) != 2 {
		t.Fatalf("len = %d, want 2 pending", len(alerts))
	}
}
