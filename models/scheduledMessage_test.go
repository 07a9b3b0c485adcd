package models

import (
	"testing"
	"time"

	"bitbucket.org/mmdatafocus/bpo_backend/utils"
)

func TestSubstituteVariables(t *testing.T) {
	tests := []struct {
		name      string
		body      string
		variables map[string]string
		want      string
	}{
		{
			name:      "all keys present",
			body:      "Olá {{nome}}, valor {{valor}}",
			variables: map[string]string{"nome": "Maria", "valor": "R$150,00"},
			want:      "Olá Maria, valor R$150,00",
		},
		{
			name:      "missing key stays literal",
			body:      "Olá {{nome}}, valor {{valor}}",
			variables: map[string]string{"nome": "Maria"},
			want:      "Olá Maria, valor {{valor}}",
		},
		{
			name:      "no variables",
			body:      "Olá {{nome}}",
			variables: nil,
			want:      "Olá {{nome}}",
		},
		{
			name:      "repeated key",
			body:      "{{x}} e {{x}}",
			variables: map[string]string{"x": "a"},
			want:      "a e a",
		},
		{
			name:      "unused variable is ignored",
			body:      "sem placeholders",
			variables: map[string]string{"nome": "Maria"},
			want:      "sem placeholders",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := SubstituteVariables(tt.body, tt.variables)
			if got != tt.want {
				t.Fatalf("SubstituteVariables() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestNewScheduledMessageValidate(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	base := func() NewScheduledMessage {
		return NewScheduledMessage{
			CompanyId:   "company-1",
			Phone:       "+5511999990000",
			Body:        "Olá {{nome}}",
			ScheduledAt: now.Add(time.Hour),
		}
	}

	tests := []struct {
		name    string
		mutate  func(*NewScheduledMessage)
		wantErr bool
	}{
		{"valid", func(m *NewScheduledMessage) {}, false},
		{"phone without plus", func(m *NewScheduledMessage) { m.Phone = "5511999990000" }, false},
		{"weekly recurrence", func(m *NewScheduledMessage) { m.Recurrence = RecurrenceWeekly }, false},
		{"missing company", func(m *NewScheduledMessage) { m.CompanyId = "" }, true},
		{"missing phone", func(m *NewScheduledMessage) { m.Phone = "" }, true},
		{"missing body", func(m *NewScheduledMessage) { m.Body = "" }, true},
		{"invalid phone", func(m *NewScheduledMessage) { m.Phone = "12345" }, true},
		{"scheduled in the past", func(m *NewScheduledMessage) { m.ScheduledAt = now.Add(-time.Minute) }, true},
		{"scheduled exactly now", func(m *NewScheduledMessage) { m.ScheduledAt = now }, true},
		{"unknown recurrence", func(m *NewScheduledMessage) { m.Recurrence = "yearly" }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			input := base()
			tt.mutate(&input)
			err := input.Validate(now)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !utils.IsInvalidArgument(err) {
				t.Fatalf("Validate() error type = %T, want InvalidArgumentError", err)
			}
		})
	}
}

func TestNewScheduledMessageValidateDefaultsRecurrence(t *testing.T) {
	input := NewScheduledMessage{
		CompanyId:   "company-1",
		Phone:       "+5511999990000",
		Body:        "hi",
		ScheduledAt: time.Now().Add(time.Hour),
	}
	if err := input.Validate(time.Now()); err != nil {
		t.Fatalf("Validate() unexpected error: %v", err)
	}
	if input.Recurrence != RecurrenceNone {
		t.Fatalf("Recurrence = %q, want %q", input.Recurrence, RecurrenceNone)
	}
}
