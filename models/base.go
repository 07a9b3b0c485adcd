package models

import (
	"log"

	"bitbucket.org/mmdatafocus/bpo_backend/config"
	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// MigrateTable runs AutoMigrate for the tables this service owns.
// pending_whatsapp_messages is a view maintained by the store and is
// deliberately not migrated here.
func MigrateTable() {
	db := config.GetDB()
	err := db.AutoMigrate(
		&Alert{},
		&ScheduledMessage{},
		&ConversationMessage{},
	)
	if err != nil {
		log.Printf("auto migrate failed: %v", err)
	}
}
