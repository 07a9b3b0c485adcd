package models

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// TemplateTag selects the rendering function for a due message's structured
// payload. The set is closed: adding a report type means adding a constant
// and a case in RenderTemplate, checked at compile time.
type TemplateTag string

const (
	TemplateTagDailyCashPosition     TemplateTag = "daily_cash_position"
	TemplateTagFeeDivergence         TemplateTag = "fee_divergence"
	TemplateTagReconciliationPending TemplateTag = "reconciliation_pending"
	TemplateTagPaymentNotFound       TemplateTag = "payment_not_found"
	TemplateTagValueMismatch         TemplateTag = "value_mismatch"
	TemplateTagOrphanEntry           TemplateTag = "orphan_entry"
	TemplateTagBalanceDivergence     TemplateTag = "balance_divergence"
)

// TemplatePayload is the structured data carried by a pending row. Each
// template reads the fields it needs; unused fields stay zero.
type TemplatePayload struct {
	Date        string          `json:"date"`
	Balance     decimal.Decimal `json:"balance"`
	Available   decimal.Decimal `json:"available"`
	RunwayDays  int             `json:"runway_days"`
	Account     string          `json:"account"`
	Description string          `json:"description"`
	Expected    decimal.Decimal `json:"expected"`
	Actual      decimal.Decimal `json:"actual"`
	Count       int             `json:"count"`
}

// RenderTemplate returns the narrative text for a known tag. ok is false for
// unknown tags so the caller falls back to the row's stored literal text.
func RenderTemplate(tag TemplateTag, payload TemplatePayload) (text string, ok bool) {
	switch tag {
	case TemplateTagDailyCashPosition:
		return fmt.Sprintf("Cash today (%s): **R$%s** · Available today: **R$%s** · Runway: **%d days**.",
			payload.Date, money(payload.Balance), money(payload.Available), payload.RunwayDays), true
	case TemplateTagFeeDivergence:
		return fmt.Sprintf("Fee divergence on %s: expected **R$%s**, charged **R$%s** (%s).",
			payload.Date, money(payload.Expected), money(payload.Actual), payload.Description), true
	case TemplateTagReconciliationPending:
		return fmt.Sprintf("Reconciliation pending for %s: **%d** entries open as of %s.",
			payload.Account, payload.Count, payload.Date), true
	case TemplateTagPaymentNotFound:
		return fmt.Sprintf("Payment of **R$%s** expected on %s was not found (%s).",
			money(payload.Expected), payload.Date, payload.Description), true
	case TemplateTagValueMismatch:
		return fmt.Sprintf("Value mismatch on %s: expected **R$%s**, found **R$%s**.",
			payload.Date, money(payload.Expected), money(payload.Actual)), true
	case TemplateTagOrphanEntry:
		return fmt.Sprintf("Orphan entry of **R$%s** on %s in %s with no matching document.",
			money(payload.Actual), payload.Date, payload.Account), true
	case TemplateTagBalanceDivergence:
		return fmt.Sprintf("Balance divergence in %s on %s: ledger **R$%s** vs bank **R$%s**.",
			payload.Account, payload.Date, money(payload.Expected), money(payload.Actual)), true
	default:
		return "", false
	}
}

func money(d decimal.Decimal) string {
	return d.StringFixed(2)
}
