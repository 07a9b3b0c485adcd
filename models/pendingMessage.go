package models

import "time"

// PendingMessage is one row of the due-for-send projection. The view is
// materialized by the store (scheduled rows whose next_attempt_at has
// arrived); due-ness is computed there, never here. Read-only.
type PendingMessage struct {
	ID          string    `json:"id"`
	CompanyId   string    `json:"company_id"`
	Phone       string    `json:"phone"`
	Message     string    `json:"message"`
	MessageType string    `json:"message_type"`
	Data        []byte    `json:"data"`
	ScheduledAt time.Time `json:"scheduled_at"`
}

func (PendingMessage) TableName() string {
	return "pending_whatsapp_messages"
}
