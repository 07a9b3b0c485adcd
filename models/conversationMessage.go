package models

import (
	"time"
)

type ConversationDirection string

const (
	ConversationDirectionInbound  ConversationDirection = "inbound"
	ConversationDirectionOutbound ConversationDirection = "outbound"
)

// ConversationMessage is the WhatsApp conversation history. Append-only:
// rows are never updated or deleted. Outbound rows are written by the
// dispatcher after a confirmed send; inbound rows by the webhook intake
// (outside this service).
type ConversationMessage struct {
	ID            int                   `gorm:"primary_key" json:"id"`
	CompanyId     string                `gorm:"index;not null" json:"company_id"`
	Phone         string                `gorm:"size:32;index;not null" json:"phone"`
	Direction     ConversationDirection `gorm:"type:enum('inbound','outbound');not null" json:"direction"`
	Message       string                `gorm:"type:text" json:"message"`
	Data          []byte                `gorm:"type:json" json:"data"`
	CorrelationId string                `gorm:"size:64" json:"correlation_id"`
	CreatedAt     time.Time             `gorm:"autoCreateTime" json:"created_at"`
}
