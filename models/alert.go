package models

import (
	"time"

	"bitbucket.org/mmdatafocus/bpo_backend/utils"
)

type AlertStatus string

const (
	AlertStatusPending  AlertStatus = "pending"
	AlertStatusResolved AlertStatus = "resolved"
	AlertStatusIgnored  AlertStatus = "ignored"
)

type AlertType string

const (
	AlertTypeFeeDivergence         AlertType = "fee_divergence"
	AlertTypeReconciliationPending AlertType = "reconciliation_pending"
	AlertTypePaymentNotFound       AlertType = "payment_not_found"
	AlertTypeValueMismatch         AlertType = "value_mismatch"
	AlertTypeOrphanEntry           AlertType = "orphan_entry"
	AlertTypeBalanceDivergence     AlertType = "balance_divergence"
)

type AlertPriority string

const (
	AlertPriorityLow      AlertPriority = "low"
	AlertPriorityMedium   AlertPriority = "medium"
	AlertPriorityHigh     AlertPriority = "high"
	AlertPriorityCritical AlertPriority = "critical"
)

type AlertResolutionType string

const (
	AlertResolutionCorrected     AlertResolutionType = "corrected"
	AlertResolutionFalsePositive AlertResolutionType = "false_positive"
	AlertResolutionIgnore        AlertResolutionType = "ignore"
)

// Alert is a detected financial irregularity waiting for human review.
// Rows are raised by the reconciliation jobs and never physically deleted;
// the only mutation path is UpdateAlertStatus.
type Alert struct {
	ID              int                  `gorm:"primary_key" json:"id"`
	CompanyId       string               `gorm:"index;not null" json:"company_id" binding:"required"`
	AlertType       AlertType            `gorm:"type:enum('fee_divergence','reconciliation_pending','payment_not_found','value_mismatch','orphan_entry','balance_divergence');not null" json:"alert_type" binding:"required"`
	Priority        AlertPriority        `gorm:"type:enum('low','medium','high','critical');not null;default:'medium'" json:"priority"`
	Title           string               `gorm:"size:255;not null" json:"title" binding:"required"`
	Message         string               `gorm:"type:text" json:"message"`
	Status          AlertStatus          `gorm:"type:enum('pending','resolved','ignored');not null;default:'pending'" json:"status"`
	ResolutionType  *AlertResolutionType `gorm:"type:enum('corrected','false_positive','ignore');default:null" json:"resolution_type"`
	ResolutionNotes *string              `gorm:"type:text;default:null" json:"resolution_notes"`
	ResolvedBy      *int                 `gorm:"default:null" json:"resolved_by"`
	ResolvedAt      *time.Time           `json:"resolved_at"`
	CreatedAt       time.Time            `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt       time.Time            `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewAlert struct {
	AlertType AlertType     `json:"alert_type" validate:"required"`
	Priority  AlertPriority `json:"priority"`
	Title     string        `json:"title" validate:"required"`
	Message   string        `json:"message"`
}

type AlertStatusChange struct {
	Status          AlertStatus          `json:"status" validate:"required"`
	ResolutionType  *AlertResolutionType `json:"resolution_type"`
	ResolutionNotes *string              `json:"resolution_notes"`
	ResolvedBy      *int                 `json:"resolved_by"`
}

func (s AlertStatus) Valid() bool {
	switch s {
	case AlertStatusPending, AlertStatusResolved, AlertStatusIgnored:
		return true
	}
	return false
}

// Every status can reach both other statuses; no status transitions to itself.
var allowedAlertTransitions = map[AlertStatus][]AlertStatus{
	AlertStatusPending:  {AlertStatusResolved, AlertStatusIgnored},
	AlertStatusResolved: {AlertStatusPending, AlertStatusIgnored},
	AlertStatusIgnored:  {AlertStatusPending, AlertStatusResolved},
}

// ValidateAlertTransition checks requested against the transition table.
// The requested value is checked before the table so an unknown status is an
// invalid argument, not an invalid transition.
func ValidateAlertTransition(current, requested AlertStatus) error {
	if !requested.Valid() {
		return utils.NewInvalidArgument("status", "must be one of pending, resolved, ignored")
	}
	for _, s := range allowedAlertTransitions[current] {
		if s == requested {
			return nil
		}
	}
	return &utils.InvalidTransitionError{From: string(current), To: string(requested)}
}

func (input *NewAlert) Validate() error {
	if err := validate.Struct(input); err != nil {
		return utils.NewInvalidArgument("alert", err.Error())
	}
	return nil
}
