package models

import (
	"strings"
	"testing"

	"github.com/shopspring/decimal"
)

func TestRenderTemplate(t *testing.T) {
	payload := TemplatePayload{
		Date:        "2026-03-10",
		Balance:     decimal.NewFromInt(15000),
		Available:   decimal.NewFromFloat(12500.50),
		RunwayDays:  45,
		Account:     "Itaú 1234",
		Description: "card acquirer",
		Expected:    decimal.NewFromFloat(150.00),
		Actual:      decimal.NewFromFloat(162.30),
		Count:       7,
	}

	tests := []struct {
		tag      TemplateTag
		contains []string
	}{
		{TemplateTagDailyCashPosition, []string{"R$15000.00", "R$12500.50", "45 days"}},
		{TemplateTagFeeDivergence, []string{"R$150.00", "R$162.30", "card acquirer"}},
		{TemplateTagReconciliationPending, []string{"Itaú 1234", "7", "2026-03-10"}},
		{TemplateTagPaymentNotFound, []string{"R$150.00", "2026-03-10"}},
		{TemplateTagValueMismatch, []string{"R$150.00", "R$162.30"}},
		{TemplateTagOrphanEntry, []string{"R$162.30", "Itaú 1234"}},
		{TemplateTagBalanceDivergence, []string{"Itaú 1234", "R$150.00", "R$162.30"}},
	}

	for _, tt := range tests {
		t.Run(string(tt.tag), func(t *testing.T) {
			text, ok := RenderTemplate(tt.tag, payload)
			if !ok {
				t.Fatalf("RenderTemplate(%q) ok = false, want true", tt.tag)
			}
			for _, want := range tt.contains {
				if !strings.Contains(text, want) {
					t.Errorf("RenderTemplate(%q) = %q, missing %q", tt.tag, text, want)
				}
			}
		})
	}
}

func TestRenderTemplateUnknownTag(t *testing.T) {
	text, ok := RenderTemplate(TemplateTag("quarterly_report"), TemplatePayload{})
	if ok {
		t.Fatal("unknown tag must report ok = false")
	}
	if text != "" {
		t.Fatalf("unknown tag text = %q, want empty", text)
	}
}
